package main

import (
	"fmt"
	"time"

	"github.com/jittakal/poolstore/internal/buffer"
	"github.com/jittakal/poolstore/internal/config/dto"
	"github.com/jittakal/poolstore/internal/coord"
	"github.com/jittakal/poolstore/internal/database"
	"github.com/jittakal/poolstore/internal/flush"
	"github.com/jittakal/poolstore/internal/kafka"
	"github.com/jittakal/poolstore/internal/loadgen"
	"github.com/jittakal/poolstore/internal/observability"
	"github.com/jittakal/poolstore/internal/partition"
	"github.com/jittakal/poolstore/internal/pool"
	"github.com/jittakal/poolstore/internal/server"
	"github.com/jittakal/poolstore/internal/storage"
	"github.com/jittakal/poolstore/pkg/mutation"
)

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

func seconds(s int) time.Duration {
	return time.Duration(s) * time.Second
}

func loggingConfig(cfg dto.LoggingConfig) observability.LoggingConfig {
	return observability.LoggingConfig{
		Level:     cfg.Level,
		Format:    cfg.Format,
		Output:    cfg.Output,
		AddSource: cfg.AddSource,
	}
}

func tracingConfig(cfg *dto.ApplicationConfig) observability.TracingConfig {
	return observability.TracingConfig{
		Enabled:        cfg.Observability.Tracing.Enabled,
		ServiceName:    cfg.Application.Name,
		ServiceVersion: cfg.Application.Version,
		Environment:    cfg.Application.Environment,
		SamplingRate:   cfg.Observability.Tracing.SampleRate,
		BatchTimeout:   5 * time.Second,
		Output:         cfg.Observability.Tracing.Output,
	}
}

func redisConfig(cfg dto.RedisConfig) coord.RedisConfig {
	return coord.RedisConfig{
		Addr:         cfg.Addr,
		Username:     cfg.Username,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  millis(cfg.DialTimeoutMS),
		ReadTimeout:  millis(cfg.ReadTimeoutMS),
		WriteTimeout: millis(cfg.WriteTimeoutMS),
		TLSEnabled:   cfg.TLSEnabled,
		KeyPrefix:    cfg.KeyPrefix,
	}
}

// databaseConfig overlays the configured pool settings on the driver
// defaults; zero values keep the default.
func databaseConfig(cfg dto.DatabaseConfig) database.Config {
	out := database.DefaultConfig(cfg.Driver, cfg.DSN)
	if cfg.MaxOpenConns > 0 {
		out.MaxOpenConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		out.MaxIdleConns = cfg.MaxIdleConns
	}
	if cfg.ConnMaxLifetimeSeconds > 0 {
		out.ConnMaxLifetime = seconds(cfg.ConnMaxLifetimeSeconds)
	}
	if cfg.ConnMaxIdleTimeSeconds > 0 {
		out.ConnMaxIdleTime = seconds(cfg.ConnMaxIdleTimeSeconds)
	}
	if cfg.ConnectTimeoutSeconds > 0 {
		out.ConnectTimeout = seconds(cfg.ConnectTimeoutSeconds)
	}
	return out
}

func poolConfig(cfg dto.PoolConfig) pool.Config {
	return pool.Config{MaxPools: cfg.MaxPools, InitialPools: cfg.InitialPools}
}

func bufferConfig(cfg *dto.ApplicationConfig) buffer.Config {
	return buffer.Config{
		MaxPackageSize: cfg.Pool.MaxPackageSize,
		Retry: buffer.RetryConfig{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: millis(cfg.Retry.InitialBackoffMS),
			MaxBackoff:     millis(cfg.Retry.MaxBackoffMS),
		},
	}
}

func flushConfig(cfg dto.FlushConfig) flush.Config {
	return flush.Config{
		GracePeriod:   millis(cfg.GracePeriodMS),
		CommitTimeout: seconds(cfg.CommitTimeoutSeconds),
	}
}

func partitionConfig(cfg dto.PartitionConfig) (partition.Config, error) {
	policy, err := partition.NewCompositePolicy(partition.PolicyConfig{
		MaxRows:    cfg.MaxRows,
		MaxAgeDays: cfg.MaxAgeDays,
		Strategy:   cfg.Strategy,
	})
	if err != nil {
		return partition.Config{}, err
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return partition.Config{}, fmt.Errorf("invalid partition timezone: %w", err)
		}
	}

	return partition.Config{
		Schema:   partition.DefaultSchema(),
		Policy:   policy,
		CacheTTL: seconds(cfg.CacheTTLSeconds),
		Location: loc,
	}, nil
}

func securityConfig(cfg dto.KafkaConfig) kafka.SecurityConfig {
	return kafka.SecurityConfig{
		SecurityProtocol: cfg.SecurityProtocol,
		SASLMechanism:    cfg.SASLMechanism,
		SASLUsername:     cfg.SASLUsername,
		SASLPassword:     cfg.SASLPassword,
		AWSRegion:        cfg.AWSRegion,
		TLSSkipVerify:    cfg.TLSSkipVerify,
	}
}

func consumerConfig(cfg dto.KafkaConfig) kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		BootstrapServers:    cfg.BootstrapServers,
		GroupID:             cfg.Consumer.GroupID,
		Security:            securityConfig(cfg),
		AutoOffsetReset:     cfg.Consumer.AutoOffsetReset,
		MaxPollIntervalMS:   cfg.Consumer.MaxPollIntervalMS,
		SessionTimeoutMS:    cfg.Consumer.SessionTimeoutMS,
		HeartbeatIntervalMS: cfg.Consumer.HeartbeatIntervalMS,
	}
}

func processorConfig(cfg dto.RetryConfig) kafka.ProcessorConfig {
	return kafka.ProcessorConfig{
		InitialBackoff: millis(cfg.InitialBackoffMS),
		MaxBackoff:     millis(cfg.MaxBackoffMS),
	}
}

func archiveConfig(cfg *dto.ApplicationConfig) storage.Config {
	a := cfg.Archive
	format := mutation.FileFormat(a.Format)
	return storage.Config{
		Backend:     a.Backend,
		Format:      format,
		Compression: cfg.CompressionFor(a.Format),
		File:        storage.FileConfig{BasePath: a.File.BasePath},
		S3: storage.S3Config{
			Bucket:       a.S3.Bucket,
			Region:       a.S3.Region,
			BasePath:     a.S3.BasePath,
			Endpoint:     a.S3.Endpoint,
			UsePathStyle: a.S3.UsePathStyle,
			SSEEnabled:   a.S3.SSEEnabled,
			SSEKMSKeyID:  a.S3.SSEKMSKeyID,
		},
		GCS: storage.GCSConfig{
			Bucket:               a.GCS.Bucket,
			ProjectID:            a.GCS.ProjectID,
			BasePath:             a.GCS.BasePath,
			CredentialsFile:      a.GCS.CredentialsFile,
			CredentialsJSON:      a.GCS.CredentialsJSON,
			Endpoint:             a.GCS.Endpoint,
			UseDefaultCredential: a.GCS.UseDefaultCredential,
		},
		Azure: storage.AzureConfig{
			AccountName:   a.Azure.AccountName,
			AccountKey:    a.Azure.AccountKey,
			ContainerName: a.Azure.Container,
			BasePath:      a.Azure.BasePath,
			Endpoint:      a.Azure.Endpoint,
		},
	}
}

func serverConfig(cfg dto.ObservabilityConfig) server.Config {
	return server.Config{
		HealthEnabled:  cfg.Health.Enabled,
		HealthPort:     cfg.Health.Port,
		LivenessPath:   cfg.Health.LivenessPath,
		ReadinessPath:  cfg.Health.ReadinessPath,
		MetricsEnabled: cfg.Metrics.Enabled,
		MetricsPort:    cfg.Metrics.Port,
		MetricsPath:    cfg.Metrics.Path,
	}
}

func loadgenConfig(cfg dto.LoadgenConfig) loadgen.Config {
	return loadgen.Config{
		Topic:    cfg.Topic,
		Keyword:  cfg.Keyword,
		UIDs:     cfg.UIDs,
		Count:    cfg.Count,
		Rate:     cfg.Rate,
		Source:   cfg.Source,
		Seed:     cfg.Seed,
		Parallel: cfg.Parallel,
	}
}
