package litepool

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jirevwe/litepool/static"
	"github.com/spf13/viper"
)

const (
	SourceDir = "dir"
	SourceS3  = "s3"
)

// Config is the file and environment configuration of the litepool binary.
// Environment variables use the LITEPOOL_ prefix, e.g. LITEPOOL_POOL_SIZE or
// LITEPOOL_S3_BUCKET.
type Config struct {
	Addr        string          `mapstructure:"addr"`
	PoolSize    int             `mapstructure:"pool_size"`
	Timeout     time.Duration   `mapstructure:"timeout"`
	Source      string          `mapstructure:"source"`
	PageDir     string          `mapstructure:"page_dir"`
	S3          static.S3Config `mapstructure:"s3"`
	JournalPath string          `mapstructure:"journal_path"`
	MetricsAddr string          `mapstructure:"metrics_addr"`
	LogLevel    string          `mapstructure:"log_level"`
}

func DefaultConfig() *Config {
	return &Config{
		Addr:     DefaultAddr,
		PoolSize: DefaultPoolSize,
		Timeout:  30 * time.Second,
		Source:   SourceDir,
		PageDir:  "www",
		S3: static.S3Config{
			Region: "us-east-1",
			UseSSL: true,
		},
		LogLevel: "info",
	}
}

// SetDefaults registers every key of DefaultConfig on v so that
// environment variables and flags can override them.
func SetDefaults(v *viper.Viper) {
	d := DefaultConfig()
	v.SetDefault("addr", d.Addr)
	v.SetDefault("pool_size", d.PoolSize)
	v.SetDefault("timeout", d.Timeout)
	v.SetDefault("source", d.Source)
	v.SetDefault("page_dir", d.PageDir)
	v.SetDefault("s3.endpoint", d.S3.Endpoint)
	v.SetDefault("s3.region", d.S3.Region)
	v.SetDefault("s3.bucket", d.S3.Bucket)
	v.SetDefault("s3.access_key", d.S3.AccessKey)
	v.SetDefault("s3.secret_key", d.S3.SecretKey)
	v.SetDefault("s3.use_ssl", d.S3.UseSSL)
	v.SetDefault("s3.prefix", d.S3.Prefix)
	v.SetDefault("journal_path", d.JournalPath)
	v.SetDefault("metrics_addr", d.MetricsAddr)
	v.SetDefault("log_level", d.LogLevel)
}

// LoadConfig reads path (YAML, JSON or TOML, chosen by extension) when it
// is not empty, applies LITEPOOL_* environment variables and validates the
// result.
func LoadConfig(v *viper.Viper, path string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix("litepool")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be greater than zero, got %d", c.PoolSize)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("timeout must be non-negative")
	}

	switch c.Source {
	case SourceDir:
		if c.PageDir == "" {
			return fmt.Errorf("page_dir is required when source is %q", SourceDir)
		}
	case SourceS3:
		if c.S3.Endpoint == "" || c.S3.Bucket == "" {
			return fmt.Errorf("s3.endpoint and s3.bucket are required when source is %q", SourceS3)
		}
	default:
		return fmt.Errorf("unknown page source %q", c.Source)
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}

	return nil
}

// Pages builds the page source selected by Source.
func (c *Config) Pages(ctx context.Context) (static.Source, error) {
	if c.Source == SourceS3 {
		return static.NewS3(ctx, c.S3)
	}
	return static.NewDir(c.PageDir), nil
}

// Level returns the slog level named by LogLevel.
func (c *Config) Level() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}
