// Package dto holds the configuration structures decoded by the loader.
package dto

import (
	"fmt"
	"time"
)

// ApplicationConfig is the root configuration structure
type ApplicationConfig struct {
	Application   ApplicationInfo     `mapstructure:"application"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Pool          PoolConfig          `mapstructure:"pool"`
	Flush         FlushConfig         `mapstructure:"flush"`
	Partition     PartitionConfig     `mapstructure:"partition"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Archive       ArchiveConfig       `mapstructure:"archive"`
	Parquet       ParquetConfig       `mapstructure:"parquet"`
	Avro          AvroConfig          `mapstructure:"avro"`
	Retry         RetryConfig         `mapstructure:"retry"`
	Loadgen       LoadgenConfig       `mapstructure:"loadgen"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Shutdown      ShutdownConfig      `mapstructure:"shutdown"`
}

// ApplicationInfo contains application metadata
type ApplicationInfo struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

// RedisConfig contains coordination store settings
type RedisConfig struct {
	Addr           string `mapstructure:"addr"`
	Username       string `mapstructure:"username"`
	Password       string `mapstructure:"password"`
	DB             int    `mapstructure:"db"`
	PoolSize       int    `mapstructure:"pool_size"`
	DialTimeoutMS  int    `mapstructure:"dial_timeout_ms"`
	ReadTimeoutMS  int    `mapstructure:"read_timeout_ms"`
	WriteTimeoutMS int    `mapstructure:"write_timeout_ms"`
	TLSEnabled     bool   `mapstructure:"tls_enabled"`
	KeyPrefix      string `mapstructure:"key_prefix"`
	// InMemory swaps Redis for a process-local store.
	InMemory bool `mapstructure:"in_memory"`
}

// DatabaseConfig contains relational engine settings
type DatabaseConfig struct {
	Driver                 string `mapstructure:"driver"`
	DSN                    string `mapstructure:"dsn"`
	MaxOpenConns           int    `mapstructure:"max_open_conns"`
	MaxIdleConns           int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int    `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int    `mapstructure:"conn_max_idle_time_seconds"`
	ConnectTimeoutSeconds  int    `mapstructure:"connect_timeout_seconds"`
}

// PoolConfig contains pool registry and buffer settings
type PoolConfig struct {
	MaxPools         int   `mapstructure:"max_pools"`
	InitialPools     int   `mapstructure:"initial_pools"`
	MaxPackageSize   int64 `mapstructure:"max_package_size"`
	MaxMutationBytes int   `mapstructure:"max_mutation_bytes"`
	ResetOnStart     bool  `mapstructure:"reset_on_start"`
}

// FlushConfig contains drain settings
type FlushConfig struct {
	GracePeriodMS        int `mapstructure:"grace_period_ms"`
	CommitTimeoutSeconds int `mapstructure:"commit_timeout_seconds"`
	// DrainOnShutdown drains the active pool once before exit.
	DrainOnShutdown bool `mapstructure:"drain_on_shutdown"`
}

// PartitionConfig contains partition rollover settings
type PartitionConfig struct {
	MaxRows         int64  `mapstructure:"max_rows"`
	MaxAgeDays      int    `mapstructure:"max_age_days"`
	Strategy        string `mapstructure:"strategy"`
	CacheTTLSeconds int    `mapstructure:"cache_ttl_seconds"`
	Timezone        string `mapstructure:"timezone"`
}

// KafkaConfig contains Kafka-related configuration
type KafkaConfig struct {
	Enabled          bool           `mapstructure:"enabled"`
	BootstrapServers []string       `mapstructure:"bootstrap_servers"`
	SecurityProtocol string         `mapstructure:"security_protocol"`
	SASLMechanism    string         `mapstructure:"sasl_mechanism"`
	SASLUsername     string         `mapstructure:"sasl_username"`
	SASLPassword     string         `mapstructure:"sasl_password"`
	AWSRegion        string         `mapstructure:"aws_region"`
	TLSSkipVerify    bool           `mapstructure:"tls_skip_verify"`
	AlarmTopic       string         `mapstructure:"alarm_topic"`
	Consumer         ConsumerConfig `mapstructure:"consumer"`
	DLQ              DLQConfig      `mapstructure:"dlq"`
}

// ConsumerConfig contains Kafka consumer configuration
type ConsumerConfig struct {
	GroupID             string   `mapstructure:"group_id"`
	Topics              []string `mapstructure:"topics"`
	AutoOffsetReset     string   `mapstructure:"auto_offset_reset"`
	MaxPollIntervalMS   int      `mapstructure:"max_poll_interval_ms"`
	SessionTimeoutMS    int      `mapstructure:"session_timeout_ms"`
	HeartbeatIntervalMS int      `mapstructure:"heartbeat_interval_ms"`
}

// DLQConfig contains dead letter queue configuration
type DLQConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	TopicSuffix string `mapstructure:"topic_suffix"`
}

// ArchiveConfig contains stuck-batch archive configuration
type ArchiveConfig struct {
	Enabled     bool        `mapstructure:"enabled"`
	Backend     string      `mapstructure:"backend"`
	Format      string      `mapstructure:"format"`
	Compression string      `mapstructure:"compression"`
	S3          S3Config    `mapstructure:"s3"`
	Azure       AzureConfig `mapstructure:"azure"`
	GCS         GCSConfig   `mapstructure:"gcs"`
	File        FileConfig  `mapstructure:"file"`
}

// S3Config contains AWS S3 configuration
type S3Config struct {
	Bucket       string `mapstructure:"bucket"`
	Region       string `mapstructure:"region"`
	BasePath     string `mapstructure:"base_path"`
	Endpoint     string `mapstructure:"endpoint"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
	SSEEnabled   bool   `mapstructure:"sse_enabled"`
	SSEKMSKeyID  string `mapstructure:"sse_kms_key_id"`
}

// AzureConfig contains Azure Blob Storage configuration
type AzureConfig struct {
	AccountName string `mapstructure:"account_name"`
	AccountKey  string `mapstructure:"account_key"`
	Container   string `mapstructure:"container"`
	BasePath    string `mapstructure:"base_path"`
	Endpoint    string `mapstructure:"endpoint"`
}

// GCSConfig contains Google Cloud Storage configuration
type GCSConfig struct {
	Bucket               string `mapstructure:"bucket"`
	ProjectID            string `mapstructure:"project_id"`
	BasePath             string `mapstructure:"base_path"`
	CredentialsFile      string `mapstructure:"credentials_file"`
	CredentialsJSON      string `mapstructure:"credentials_json"`
	Endpoint             string `mapstructure:"endpoint"`
	UseDefaultCredential bool   `mapstructure:"use_default_credential"`
}

// FileConfig contains local filesystem configuration
type FileConfig struct {
	BasePath string `mapstructure:"base_path"`
}

// ParquetConfig contains Parquet format settings
type ParquetConfig struct {
	Compression string `mapstructure:"compression"`
}

// AvroConfig contains Avro format settings
type AvroConfig struct {
	Codec string `mapstructure:"codec"`
}

// RetryConfig contains append retry settings
type RetryConfig struct {
	MaxAttempts      int `mapstructure:"max_attempts"`
	InitialBackoffMS int `mapstructure:"initial_backoff_ms"`
	MaxBackoffMS     int `mapstructure:"max_backoff_ms"`
}

// LoadgenConfig contains synthetic load settings
type LoadgenConfig struct {
	Topic    string   `mapstructure:"topic"`
	Keyword  string   `mapstructure:"keyword"`
	UIDs     []string `mapstructure:"uids"`
	Count    int      `mapstructure:"count"`
	Rate     int      `mapstructure:"rate"`
	Source   string   `mapstructure:"source"`
	Seed     int64    `mapstructure:"seed"`
	Parallel int      `mapstructure:"parallel"`
}

// ObservabilityConfig contains observability settings
type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Tracing TracingConfig `mapstructure:"tracing"`
	Health  HealthConfig  `mapstructure:"health"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"`
	Output    string `mapstructure:"output"`
	AddSource bool   `mapstructure:"add_source"`
}

// MetricsConfig contains metrics settings
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

// TracingConfig contains tracing settings
type TracingConfig struct {
	Enabled    bool    `mapstructure:"enabled"`
	Output     string  `mapstructure:"output"`
	SampleRate float64 `mapstructure:"sample_rate"`
}

// HealthConfig contains health check settings
type HealthConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Port          int    `mapstructure:"port"`
	LivenessPath  string `mapstructure:"liveness_path"`
	ReadinessPath string `mapstructure:"readiness_path"`
}

// ShutdownConfig contains shutdown settings
type ShutdownConfig struct {
	GracePeriodSeconds  int `mapstructure:"grace_period_seconds"`
	ForceTimeoutSeconds int `mapstructure:"force_timeout_seconds"`
}

// GracePeriod returns the shutdown grace period.
func (c ShutdownConfig) GracePeriod() time.Duration {
	return time.Duration(c.GracePeriodSeconds) * time.Second
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	if c.Application.Name == "" {
		return fmt.Errorf("application name is required")
	}
	if c.Database.Driver == "" {
		return fmt.Errorf("database driver is required")
	}
	if !c.Redis.InMemory && c.Redis.Addr == "" {
		return fmt.Errorf("redis address is required")
	}
	if c.Kafka.Enabled {
		if err := c.Kafka.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate validates Kafka configuration.
func (c *KafkaConfig) Validate() error {
	if len(c.BootstrapServers) == 0 {
		return fmt.Errorf("kafka bootstrap servers are required")
	}
	if c.Consumer.GroupID == "" {
		return fmt.Errorf("kafka consumer group ID is required")
	}
	if len(c.Consumer.Topics) == 0 {
		return fmt.Errorf("kafka consumer topics are required")
	}
	if c.DLQ.Enabled && c.DLQ.TopicSuffix == "" {
		return fmt.Errorf("kafka dlq topic suffix is required when dlq is enabled")
	}
	return nil
}

// Validate validates pool configuration.
func (c *PoolConfig) Validate() error {
	if c.MaxPools < 1 {
		return fmt.Errorf("pool max_pools must be positive, got %d", c.MaxPools)
	}
	if c.InitialPools < 0 || c.InitialPools > c.MaxPools {
		return fmt.Errorf("pool initial_pools must be within [0, %d], got %d", c.MaxPools, c.InitialPools)
	}
	if c.MaxPackageSize < 1 {
		return fmt.Errorf("pool max_package_size must be positive, got %d", c.MaxPackageSize)
	}
	return nil
}

// CompressionFor returns the archive codec for the configured format.
// An explicit archive.compression wins over the per-format defaults.
func (c *ApplicationConfig) CompressionFor(format string) string {
	if c.Archive.Compression != "" {
		return c.Archive.Compression
	}
	if format == "avro" {
		return c.Avro.Codec
	}
	return c.Parquet.Compression
}
