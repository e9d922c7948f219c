package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	// Tool locations
	LibsDir      string `mapstructure:"libs-dir"`
	ManifestPath string `mapstructure:"manifest-path"`
	FSMDBPath    string `mapstructure:"fsm-db-path"`

	// Release asset overrides (empty = platform default)
	DownloaderURL string `mapstructure:"downloader-url"`
	TranscoderURL string `mapstructure:"transcoder-url"`

	// S3 mirror (empty bucket = fetch from upstream URLs)
	MirrorBucket string `mapstructure:"mirror-bucket"`
	MirrorRegion string `mapstructure:"mirror-region"`
	MirrorPrefix string `mapstructure:"mirror-prefix"`

	// S3-compatible server (empty = AWS)
	MirrorEndpoint string `mapstructure:"mirror-endpoint"`

	HTTPTimeout   time.Duration `mapstructure:"http-timeout"`
	SuccessWindow time.Duration `mapstructure:"success-window"`

	// Archive extraction limits
	MaxEntrySize        int64   `mapstructure:"max-entry-size"`
	MaxTotalSize        int64   `mapstructure:"max-total-size"`
	MaxCompressionRatio float64 `mapstructure:"max-compression-ratio"`

	// Logging
	LogLevel string `mapstructure:"log-level"`
	LogFile  string `mapstructure:"log-file"`

	// Static destinations, "label=path" or "path"
	Drives []string `mapstructure:"drives"`
}

// Load reads configuration from environment, config file, and defaults
func Load() (*Config, error) {
	viper.SetDefault("libs-dir", "libs")
	viper.SetDefault("manifest-path", ".convertisseur/manifest.db")
	viper.SetDefault("fsm-db-path", ".convertisseur/fsm")
	viper.SetDefault("downloader-url", "")
	viper.SetDefault("transcoder-url", "")
	viper.SetDefault("mirror-bucket", "")
	viper.SetDefault("mirror-region", "us-east-1")
	viper.SetDefault("mirror-prefix", "")
	viper.SetDefault("mirror-endpoint", "")
	viper.SetDefault("http-timeout", 10*time.Minute)
	viper.SetDefault("success-window", 2*time.Second)
	viper.SetDefault("max-entry-size", 512*1024*1024)
	viper.SetDefault("max-total-size", 512*1024*1024)
	viper.SetDefault("max-compression-ratio", 100.0)
	viper.SetDefault("log-level", "info")
	viper.SetDefault("log-file", "")
	viper.SetDefault("drives", []string{})

	// Environment variables (CONVERTISSEUR_LIBS_DIR, etc.)
	viper.SetEnvPrefix("CONVERTISSEUR")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	// Config file (optional)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.convertisseur")

	// Read config file (ignore if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Validate checks configuration for errors
func (c *Config) Validate() error {
	if c.LibsDir == "" {
		return fmt.Errorf("libs-dir cannot be empty")
	}
	if c.ManifestPath == "" {
		return fmt.Errorf("manifest-path cannot be empty")
	}
	if c.FSMDBPath == "" {
		return fmt.Errorf("fsm-db-path cannot be empty")
	}
	if c.MirrorBucket != "" && c.MirrorRegion == "" {
		return fmt.Errorf("mirror-region is required when mirror-bucket is set")
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("http-timeout must be non-negative")
	}
	if c.SuccessWindow <= 0 {
		return fmt.Errorf("success-window must be positive")
	}
	if c.MaxEntrySize <= 0 {
		return fmt.Errorf("max-entry-size must be positive")
	}
	if c.MaxTotalSize <= 0 {
		return fmt.Errorf("max-total-size must be positive")
	}
	if c.MaxCompressionRatio <= 0 {
		return fmt.Errorf("max-compression-ratio must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log-level must be one of debug, info, warn, error")
	}
	return nil
}
