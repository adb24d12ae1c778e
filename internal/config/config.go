package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/grasp-labs/ds-envelope-go-sdk/envelope"
)

// Config holds the envelopectl configuration.
type Config struct {
	LogLevel string        `yaml:"log_level" env:"ENVELOPE_LOG_LEVEL"`
	AWS      AWSConfig     `yaml:"aws"`
	KMS      KMSConfig     `yaml:"kms"`
	Storage  StorageConfig `yaml:"storage"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Retry    RetryConfig   `yaml:"retry"`
}

// AWSConfig holds AWS SDK settings. Credentials come from the default chain.
type AWSConfig struct {
	Region     string `yaml:"region" env:"ENVELOPE_AWS_REGION"`
	S3Endpoint string `yaml:"s3_endpoint" env:"ENVELOPE_S3_ENDPOINT"` // S3-compatible backends
}

// KMSConfig selects the KMS key. KeyID wins over KeyIDParameter.
type KMSConfig struct {
	KeyID          string        `yaml:"key_id" env:"ENVELOPE_KMS_KEY_ID"`
	KeyIDParameter string        `yaml:"key_id_parameter" env:"ENVELOPE_KMS_KEY_ID_PARAMETER"` // SSM parameter name
	ParameterTTL   time.Duration `yaml:"parameter_ttl" env:"ENVELOPE_KMS_PARAMETER_TTL"`
}

// StorageConfig holds where sealed data goes.
type StorageConfig struct {
	Bucket      string `yaml:"bucket" env:"ENVELOPE_BUCKET"`
	DatabaseDSN string `yaml:"database_dsn" env:"ENVELOPE_DATABASE_DSN"`
	Table       string `yaml:"table" env:"ENVELOPE_TABLE"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled    bool   `yaml:"enabled" env:"ENVELOPE_METRICS_ENABLED"`
	ListenAddr string `yaml:"listen_addr" env:"ENVELOPE_METRICS_LISTEN_ADDR"`
}

// RetryConfig bounds the CLI's retries of transient KMS failures.
type RetryConfig struct {
	InitialInterval time.Duration `yaml:"initial_interval" env:"ENVELOPE_RETRY_INITIAL_INTERVAL"`
	MaxInterval     time.Duration `yaml:"max_interval" env:"ENVELOPE_RETRY_MAX_INTERVAL"`
	MaxElapsedTime  time.Duration `yaml:"max_elapsed_time" env:"ENVELOPE_RETRY_MAX_ELAPSED_TIME"`
}

// LoadConfig loads configuration from a file and environment variables.
// A missing file is not an error; environment variables override the file.
func LoadConfig(path string) (*Config, error) {
	config := &Config{
		LogLevel: "info",
		AWS: AWSConfig{
			Region: "eu-north-1",
		},
		KMS: KMSConfig{
			ParameterTTL: 5 * time.Minute,
		},
		Storage: StorageConfig{
			Table: "envelope_records",
		},
		Metrics: MetricsConfig{
			ListenAddr: ":9090",
		},
		Retry: RetryConfig{
			InitialInterval: 500 * time.Millisecond,
			MaxInterval:     3 * time.Second,
			MaxElapsedTime:  10 * time.Second,
		},
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if len(data) > 0 {
			if err := yaml.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	loadFromEnv(config)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

func loadFromEnv(config *Config) {
	if v := os.Getenv("ENVELOPE_LOG_LEVEL"); v != "" {
		config.LogLevel = v
	}
	if v := os.Getenv("ENVELOPE_AWS_REGION"); v != "" {
		config.AWS.Region = v
	}
	if v := os.Getenv("ENVELOPE_S3_ENDPOINT"); v != "" {
		config.AWS.S3Endpoint = v
	}
	if v := os.Getenv("ENVELOPE_KMS_KEY_ID"); v != "" {
		config.KMS.KeyID = v
	}
	if v := os.Getenv("ENVELOPE_KMS_KEY_ID_PARAMETER"); v != "" {
		config.KMS.KeyIDParameter = v
	}
	if v := os.Getenv("ENVELOPE_KMS_PARAMETER_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.KMS.ParameterTTL = d
		}
	}
	if v := os.Getenv("ENVELOPE_BUCKET"); v != "" {
		config.Storage.Bucket = v
	}
	if v := os.Getenv("ENVELOPE_DATABASE_DSN"); v != "" {
		config.Storage.DatabaseDSN = v
	}
	if v := os.Getenv("ENVELOPE_TABLE"); v != "" {
		config.Storage.Table = v
	}
	if v := os.Getenv("ENVELOPE_METRICS_ENABLED"); v != "" {
		config.Metrics.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("ENVELOPE_METRICS_LISTEN_ADDR"); v != "" {
		config.Metrics.ListenAddr = v
	}
	if v := os.Getenv("ENVELOPE_RETRY_INITIAL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Retry.InitialInterval = d
		}
	}
	if v := os.Getenv("ENVELOPE_RETRY_MAX_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Retry.MaxInterval = d
		}
	}
	if v := os.Getenv("ENVELOPE_RETRY_MAX_ELAPSED_TIME"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			config.Retry.MaxElapsedTime = d
		}
	}
}

// Validate checks the configuration. Errors match envelope.ErrConfiguration.
func (c *Config) Validate() error {
	var errs []error
	if c.KMS.KeyID == "" && c.KMS.KeyIDParameter == "" {
		errs = append(errs, errors.New("kms.key_id or kms.key_id_parameter is required"))
	}
	if c.KMS.KeyID == "" && c.KMS.KeyIDParameter != "" && c.KMS.ParameterTTL < 0 {
		errs = append(errs, errors.New("kms.parameter_ttl must not be negative"))
	}
	if c.AWS.Region == "" {
		errs = append(errs, errors.New("aws.region is required"))
	}
	if c.Retry.InitialInterval <= 0 || c.Retry.MaxInterval < c.Retry.InitialInterval {
		errs = append(errs, errors.New("retry intervals must be positive and max_interval >= initial_interval"))
	}
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", envelope.ErrConfiguration, errors.Join(errs...))
}
