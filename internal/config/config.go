// Package config loads and defaults the pipeline worker's configuration,
// following the teacher's viper-based Load()/validateConfig() split.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full process configuration for the worker entry point.
type Config struct {
	Environment string         `mapstructure:"environment"`
	Worker      WorkerConfig   `mapstructure:"worker"`
	Job         JobConfig      `mapstructure:"job"`
	Callback    CallbackConfig `mapstructure:"callback"`
	Queue       QueueConfig    `mapstructure:"queue"`
	Storage     StorageConfig  `mapstructure:"storage"`
	Database    DatabaseConfig `mapstructure:"database"`
	Redis       RedisConfig    `mapstructure:"redis"`
	TempDirName string         `mapstructure:"temp_dir_name"`
}

// WorkerConfig configures the worker pool's dequeue concurrency.
type WorkerConfig struct {
	Concurrency int `mapstructure:"concurrency"`
}

// JobConfig configures per-job timeouts and debug behavior.
type JobConfig struct {
	TimeoutMs int `mapstructure:"timeout_ms"`
	DebugMode bool `mapstructure:"debug_mode"`
}

// CallbackConfig configures the callback dispatcher: request timeout, retry
// budget, and the SSRF allow-list.
type CallbackConfig struct {
	TimeoutMs        int      `mapstructure:"timeout_ms"`
	MaxRetries       int      `mapstructure:"max_retries"`
	AllowedDomains   []string `mapstructure:"allowed_domains"`
	APIRetryDelayMs  int      `mapstructure:"api_retry_delay_ms"`
}

// QueueConfig configures queue retention and retry policy.
type QueueConfig struct {
	JobAttempts          int `mapstructure:"job_attempts"`
	BackoffDelayMs       int `mapstructure:"backoff_delay_ms"`
	CompletedAgeSeconds  int `mapstructure:"completed_age_seconds"`
	FailedAgeSeconds     int `mapstructure:"failed_age_seconds"`
	CompletedCount       int `mapstructure:"completed_count"`
	FailedCount          int `mapstructure:"failed_count"`
}

// StorageConfig describes the managed object storage backend.
type StorageConfig struct {
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

// DatabaseConfig describes the Postgres connection the job repository uses.
type DatabaseConfig struct {
	URL             string `mapstructure:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// RedisConfig describes the Redis connection backing the job queue.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Load reads configuration from env vars (prefixed PIPELINE_) and an optional
// config file, applies defaults for every field, then validates the result.
func Load() (Config, error) {
	var cfg Config

	viper.SetDefault("environment", "development")

	viper.SetDefault("worker.concurrency", 2)
	viper.SetDefault("job.timeout_ms", 10*60*1000)
	viper.SetDefault("job.debug_mode", false)

	viper.SetDefault("callback.timeout_ms", 30*1000)
	viper.SetDefault("callback.max_retries", 3)
	viper.SetDefault("callback.allowed_domains", []string{})
	viper.SetDefault("callback.api_retry_delay_ms", 1000)

	viper.SetDefault("queue.job_attempts", 3)
	viper.SetDefault("queue.backoff_delay_ms", 5000)
	viper.SetDefault("queue.completed_age_seconds", 24*60*60)
	viper.SetDefault("queue.failed_age_seconds", 7*24*60*60)
	viper.SetDefault("queue.completed_count", 100)
	viper.SetDefault("queue.failed_count", 1000)

	viper.SetDefault("storage.type", "s3")

	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.conn_max_lifetime", 300)

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("temp_dir_name", "video-pipeline")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("/etc/pipeline-core")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("PIPELINE")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, fmt.Errorf("error reading config file: %w", err)
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return cfg, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validateConfig(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func validateConfig(cfg Config) error {
	if cfg.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker concurrency must be positive")
	}
	if cfg.Job.TimeoutMs <= 0 {
		return fmt.Errorf("job timeout must be positive")
	}
	if cfg.Callback.MaxRetries < 0 {
		return fmt.Errorf("callback max retries must not be negative")
	}
	if cfg.Queue.JobAttempts <= 0 {
		return fmt.Errorf("queue job attempts must be positive")
	}
	return nil
}

// JobTimeout returns the configured job timeout as a time.Duration.
func (c Config) JobTimeout() time.Duration {
	return time.Duration(c.Job.TimeoutMs) * time.Millisecond
}

// CallbackTimeout returns the configured callback timeout as a time.Duration.
func (c CallbackConfig) CallbackTimeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// BackoffDelay returns the configured queue backoff base delay.
func (c QueueConfig) BackoffDelay() time.Duration {
	return time.Duration(c.BackoffDelayMs) * time.Millisecond
}
