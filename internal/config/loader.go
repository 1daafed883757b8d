// Package config loads the service configuration from YAML and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/spf13/viper"

	"github.com/jittakal/poolstore/internal/config/dto"
)

// EnvPrefix prefixes every environment override, e.g. APP_REDIS_ADDR.
const EnvPrefix = "APP"

// Loader handles configuration loading and validation
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return &Loader{v: v}
}

// Viper exposes the underlying viper instance so CLI flags can be bound.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}

// Load loads configuration from file and environment variables. A missing
// file is not an error; defaults and the environment still apply.
func (l *Loader) Load(path string) (*dto.ApplicationConfig, error) {
	l.setDefaults()

	if path != "" {
		l.v.SetConfigFile(path)
		if err := l.v.ReadInConfig(); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	// Only expand values containing ${...}
	for _, key := range l.v.AllKeys() {
		value := l.v.GetString(key)
		if strings.Contains(value, "${") {
			l.v.Set(key, os.ExpandEnv(value))
		}
	}

	var config dto.ApplicationConfig
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func (l *Loader) setDefaults() {
	// Application defaults
	l.v.SetDefault("application.name", "poolstore")
	l.v.SetDefault("application.version", "1.0.0")
	l.v.SetDefault("application.environment", "development")

	// Redis defaults
	l.v.SetDefault("redis.addr", "localhost:6379")
	l.v.SetDefault("redis.username", "")
	l.v.SetDefault("redis.password", "")
	l.v.SetDefault("redis.db", 0)
	l.v.SetDefault("redis.pool_size", 20)
	l.v.SetDefault("redis.dial_timeout_ms", 5000)
	l.v.SetDefault("redis.read_timeout_ms", 3000)
	l.v.SetDefault("redis.write_timeout_ms", 3000)
	l.v.SetDefault("redis.tls_enabled", false)
	l.v.SetDefault("redis.key_prefix", "")
	l.v.SetDefault("redis.in_memory", false)

	// Database defaults
	l.v.SetDefault("database.driver", "sqlite3")
	l.v.SetDefault("database.dsn", "file:poolstore.db?_busy_timeout=5000")
	l.v.SetDefault("database.max_open_conns", 10)
	l.v.SetDefault("database.max_idle_conns", 5)
	l.v.SetDefault("database.conn_max_lifetime_seconds", 1800)
	l.v.SetDefault("database.conn_max_idle_time_seconds", 300)
	l.v.SetDefault("database.connect_timeout_seconds", 10)

	// Pool defaults
	l.v.SetDefault("pool.max_pools", 100)
	l.v.SetDefault("pool.initial_pools", 5)
	l.v.SetDefault("pool.max_package_size", 512*1024)
	l.v.SetDefault("pool.max_mutation_bytes", 1<<20)
	l.v.SetDefault("pool.reset_on_start", false)

	// Flush defaults
	l.v.SetDefault("flush.grace_period_ms", 5000)
	l.v.SetDefault("flush.commit_timeout_seconds", 30)
	l.v.SetDefault("flush.drain_on_shutdown", true)

	// Partition defaults
	l.v.SetDefault("partition.max_rows", 0)
	l.v.SetDefault("partition.max_age_days", 1)
	l.v.SetDefault("partition.strategy", "any")
	l.v.SetDefault("partition.cache_ttl_seconds", 60)
	l.v.SetDefault("partition.timezone", "UTC")

	// Kafka defaults
	l.v.SetDefault("kafka.enabled", false)
	l.v.SetDefault("kafka.bootstrap_servers", []string{})
	l.v.SetDefault("kafka.security_protocol", "PLAINTEXT")
	l.v.SetDefault("kafka.sasl_mechanism", "PLAIN")
	l.v.SetDefault("kafka.sasl_username", "")
	l.v.SetDefault("kafka.sasl_password", "")
	l.v.SetDefault("kafka.aws_region", "us-east-1")
	l.v.SetDefault("kafka.tls_skip_verify", false)
	l.v.SetDefault("kafka.alarm_topic", "")
	l.v.SetDefault("kafka.consumer.group_id", "poolstore")
	l.v.SetDefault("kafka.consumer.topics", []string{"mutations"})
	l.v.SetDefault("kafka.consumer.auto_offset_reset", "earliest")
	l.v.SetDefault("kafka.consumer.max_poll_interval_ms", 300000)
	l.v.SetDefault("kafka.consumer.session_timeout_ms", 30000)
	l.v.SetDefault("kafka.consumer.heartbeat_interval_ms", 10000)
	l.v.SetDefault("kafka.dlq.enabled", true)
	l.v.SetDefault("kafka.dlq.topic_suffix", "-dlq")

	// Archive defaults
	l.v.SetDefault("archive.enabled", false)
	l.v.SetDefault("archive.backend", "file")
	l.v.SetDefault("archive.format", "parquet")
	l.v.SetDefault("archive.compression", "")
	l.v.SetDefault("archive.file.base_path", "./stuck")
	l.v.SetDefault("archive.s3.bucket", "")
	l.v.SetDefault("archive.s3.region", "")
	l.v.SetDefault("archive.s3.base_path", "")
	l.v.SetDefault("archive.s3.endpoint", "")
	l.v.SetDefault("archive.s3.use_path_style", false)
	l.v.SetDefault("archive.s3.sse_enabled", true)
	l.v.SetDefault("archive.s3.sse_kms_key_id", "")
	l.v.SetDefault("archive.gcs.bucket", "")
	l.v.SetDefault("archive.gcs.project_id", "")
	l.v.SetDefault("archive.gcs.base_path", "")
	l.v.SetDefault("archive.gcs.credentials_file", "")
	l.v.SetDefault("archive.gcs.credentials_json", "")
	l.v.SetDefault("archive.gcs.endpoint", "")
	l.v.SetDefault("archive.gcs.use_default_credential", false)
	l.v.SetDefault("archive.azure.account_name", "")
	l.v.SetDefault("archive.azure.account_key", "")
	l.v.SetDefault("archive.azure.container", "")
	l.v.SetDefault("archive.azure.base_path", "")
	l.v.SetDefault("archive.azure.endpoint", "")

	// Format defaults
	l.v.SetDefault("parquet.compression", "snappy")
	l.v.SetDefault("avro.codec", "gzip")

	// Retry defaults
	l.v.SetDefault("retry.max_attempts", 5)
	l.v.SetDefault("retry.initial_backoff_ms", 100)
	l.v.SetDefault("retry.max_backoff_ms", 5000)

	// Loadgen defaults
	l.v.SetDefault("loadgen.topic", "mutations")
	l.v.SetDefault("loadgen.keyword", "events")
	l.v.SetDefault("loadgen.uids", []string{"u1", "u2", "u3"})
	l.v.SetDefault("loadgen.count", 1000)
	l.v.SetDefault("loadgen.rate", 100)
	l.v.SetDefault("loadgen.source", "poolstore/loadgen")
	l.v.SetDefault("loadgen.seed", 0)
	l.v.SetDefault("loadgen.parallel", 1)

	// Observability defaults
	l.v.SetDefault("observability.logging.level", "info")
	l.v.SetDefault("observability.logging.format", "json")
	l.v.SetDefault("observability.logging.output", "stdout")
	l.v.SetDefault("observability.logging.add_source", false)
	l.v.SetDefault("observability.metrics.enabled", true)
	l.v.SetDefault("observability.metrics.port", 9090)
	l.v.SetDefault("observability.metrics.path", "/metrics")
	l.v.SetDefault("observability.tracing.enabled", false)
	l.v.SetDefault("observability.tracing.output", "stdout")
	l.v.SetDefault("observability.tracing.sample_rate", 0.1)
	l.v.SetDefault("observability.health.enabled", true)
	l.v.SetDefault("observability.health.port", 8080)
	l.v.SetDefault("observability.health.liveness_path", "/health/live")
	l.v.SetDefault("observability.health.readiness_path", "/health/ready")

	// Shutdown defaults
	l.v.SetDefault("shutdown.grace_period_seconds", 30)
	l.v.SetDefault("shutdown.force_timeout_seconds", 60)
}

var (
	supportedDrivers    = []string{"sqlite3", "postgres", "pgx", "mysql"}
	supportedBackends   = []string{"file", "s3", "gcs", "azure"}
	supportedFormats    = []string{"parquet", "avro"}
	supportedStrategies = []string{"any", "all"}
)

// Validate validates the configuration
func (l *Loader) Validate(config *dto.ApplicationConfig) error {
	if err := config.Validate(); err != nil {
		return err
	}

	if !slices.Contains(supportedDrivers, config.Database.Driver) {
		return fmt.Errorf("unsupported database driver: %s", config.Database.Driver)
	}
	if config.Database.DSN == "" {
		return errors.New("database.dsn is required")
	}

	if err := config.Pool.Validate(); err != nil {
		return err
	}
	if config.Flush.GracePeriodMS < 0 {
		return fmt.Errorf("invalid flush grace period: %d", config.Flush.GracePeriodMS)
	}

	if !slices.Contains(supportedStrategies, config.Partition.Strategy) {
		return fmt.Errorf("unsupported rollover strategy: %s", config.Partition.Strategy)
	}
	if config.Partition.MaxRows < 0 || config.Partition.MaxAgeDays < 0 {
		return errors.New("partition limits cannot be negative")
	}

	if config.Kafka.Enabled && config.Kafka.SecurityProtocol == "" {
		return errors.New("kafka.security_protocol is required")
	}

	if config.Archive.Enabled {
		if err := validateArchive(&config.Archive); err != nil {
			return err
		}
	}

	if config.Retry.MaxAttempts < 1 {
		return fmt.Errorf("invalid retry max attempts: %d", config.Retry.MaxAttempts)
	}

	// Port validation
	if config.Observability.Metrics.Enabled && !validPort(config.Observability.Metrics.Port) {
		return fmt.Errorf("invalid metrics port: %d", config.Observability.Metrics.Port)
	}
	if config.Observability.Health.Enabled && !validPort(config.Observability.Health.Port) {
		return fmt.Errorf("invalid health port: %d", config.Observability.Health.Port)
	}

	return nil
}

func validateArchive(archive *dto.ArchiveConfig) error {
	if !slices.Contains(supportedBackends, archive.Backend) {
		return fmt.Errorf("unsupported archive backend: %s", archive.Backend)
	}
	if !slices.Contains(supportedFormats, archive.Format) {
		return fmt.Errorf("unsupported archive format: %s", archive.Format)
	}

	switch archive.Backend {
	case "s3":
		if archive.S3.Bucket == "" {
			return errors.New("archive.s3.bucket is required for S3 backend")
		}
		if archive.S3.Region == "" {
			return errors.New("archive.s3.region is required for S3 backend")
		}
	case "azure":
		if archive.Azure.AccountName == "" {
			return errors.New("archive.azure.account_name is required for Azure backend")
		}
		if archive.Azure.Container == "" {
			return errors.New("archive.azure.container is required for Azure backend")
		}
	case "gcs":
		if archive.GCS.Bucket == "" {
			return errors.New("archive.gcs.bucket is required for GCS backend")
		}
	case "file":
		if archive.File.BasePath == "" {
			return errors.New("archive.file.base_path is required for file backend")
		}
	}
	return nil
}

func validPort(port int) bool {
	return port >= 1 && port <= 65535
}
