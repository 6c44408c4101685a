package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// maxPresignLifetime is the longest lifetime S3 accepts for a presigned URL.
const maxPresignLifetime = 7 * 24 * time.Hour

// Config holds all configuration for sharegate
type Config struct {
	// Server configuration
	Listen   string `mapstructure:"listen"`
	DataDir  string `mapstructure:"data_dir"`
	LogLevel string `mapstructure:"log_level"`

	Share   ShareConfig   `mapstructure:"share"`
	Auth    AuthConfig    `mapstructure:"auth"`
	Storage StorageConfig `mapstructure:"storage"`
	Stats   StatsConfig   `mapstructure:"stats"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// ShareConfig defines share link settings
type ShareConfig struct {
	// Code length bounds are consumed by the code provider only.
	CodeMinLength    int    `mapstructure:"code_min_length"`
	CodeMaxLength    int    `mapstructure:"code_max_length"`
	CodeAlphabetSeed string `mapstructure:"code_alphabet_seed"`

	// DownloadLinkTTL is the lifetime of presigned download URLs.
	DownloadLinkTTL time.Duration `mapstructure:"download_link_ttl"`

	// PublicBaseURL is prefixed to share codes when rendering share URLs.
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// AuthConfig defines how caller identities are verified
type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	JWTIssuer string        `mapstructure:"jwt_issuer"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"` // lifetime of tokens minted by the CLI
}

// StorageConfig defines the S3-compatible object store used for presigned downloads
type StorageConfig struct {
	Endpoint     string `mapstructure:"endpoint"`
	Region       string `mapstructure:"region"`
	Bucket       string `mapstructure:"bucket"`
	AccessKey    string `mapstructure:"access_key"`
	SecretKey    string `mapstructure:"secret_key"`
	UsePathStyle bool   `mapstructure:"use_path_style"`
}

// StatsConfig defines the precomputed statistics cache
type StatsConfig struct {
	Enable          bool          `mapstructure:"enable"`
	RefreshSchedule string        `mapstructure:"refresh_schedule"` // cron expression with seconds field
	MaxAge          time.Duration `mapstructure:"max_age"`
}

// MetricsConfig defines metrics configuration
type MetricsConfig struct {
	Enable   bool   `mapstructure:"enable"`
	Path     string `mapstructure:"path"`
	Interval int    `mapstructure:"interval"` // seconds between host metric samples, 0 disables
}

// Load loads configuration from various sources
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("SHAREGATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8090")
	// NO default for data_dir - must be explicitly configured
	v.SetDefault("log_level", "info")

	v.SetDefault("share.code_min_length", 7)
	v.SetDefault("share.code_max_length", 10)
	v.SetDefault("share.code_alphabet_seed", "")
	v.SetDefault("share.download_link_ttl", 15*time.Minute)
	v.SetDefault("share.public_base_url", "http://localhost:8090/s/")

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "sharegate")
	v.SetDefault("auth.token_ttl", time.Hour)

	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.access_key", "")
	v.SetDefault("storage.secret_key", "")
	v.SetDefault("storage.use_path_style", true)

	v.SetDefault("stats.enable", true)
	v.SetDefault("stats.refresh_schedule", "0 */5 * * * *")
	v.SetDefault("stats.max_age", 10*time.Minute)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.interval", 10)
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":    "listen",
		"data-dir":  "data_dir",
		"log-level": "log_level",
	}

	for flag, key := range flags {
		f := cmd.Flags().Lookup(flag)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return err
		}
	}

	return nil
}

func validate(cfg *Config) error {
	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir is required: specify via --data-dir flag, config file, or SHAREGATE_DATA_DIR environment variable")
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}

	if cfg.Share.CodeMinLength < 1 {
		return fmt.Errorf("share.code_min_length must be at least 1, got %d", cfg.Share.CodeMinLength)
	}
	if cfg.Share.CodeMaxLength < cfg.Share.CodeMinLength {
		return fmt.Errorf("share.code_max_length (%d) must not be less than share.code_min_length (%d)",
			cfg.Share.CodeMaxLength, cfg.Share.CodeMinLength)
	}

	if cfg.Share.DownloadLinkTTL <= 0 {
		return fmt.Errorf("share.download_link_ttl must be positive")
	}
	if cfg.Share.DownloadLinkTTL > maxPresignLifetime {
		return fmt.Errorf("share.download_link_ttl cannot exceed %s", maxPresignLifetime)
	}

	if cfg.Stats.Enable && cfg.Stats.RefreshSchedule == "" {
		return fmt.Errorf("stats.refresh_schedule is required when stats are enabled")
	}

	return nil
}
