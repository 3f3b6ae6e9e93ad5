package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the ytgrab server.
// It maps to the structure of ytgrab.yml.
type Config struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// DownloadDir is where artifacts are written; AbsDownloadDir is the
	// resolved absolute path.
	DownloadDir    string `mapstructure:"download_dir"`
	AbsDownloadDir string `mapstructure:"-"`

	Database struct {
		Path string `mapstructure:"path"`
	} `mapstructure:"database"`

	RatePerMinute int    `mapstructure:"rate_per_minute"`
	LogLevel      string `mapstructure:"log_level"`

	Version string `mapstructure:"-"`
}

// Version is the application version reported by --version and /healthz.
const Version = "1.0.0"

// Load reads configuration from ytgrab.yml in the current directory,
// applying YTGRAB_* environment overrides and defaults.
// A missing config file is not an error.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("ytgrab")
	v.SetConfigType("yml")
	v.AddConfigPath(".")

	// YTGRAB_DATABASE_PATH overrides database.path, and so on.
	v.SetEnvPrefix("YTGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	v.SetDefault("download_dir", "downloads")
	v.SetDefault("database.path", "")
	v.SetDefault("rate_per_minute", 60)
	v.SetDefault("log_level", "info")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	cfg.Version = Version
	return &cfg, nil
}

// Validate checks that all required configuration is present and valid.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.RatePerMinute < 1 {
		c.RatePerMinute = 60
	}
	c.LogLevel = strings.ToLower(c.LogLevel)
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level: %s (must be debug|info|warn|error)", c.LogLevel)
	}
	return nil
}

// Addr returns the full server address as host:port.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ResolveDownloadDir expands the download directory path and resolves it to
// an absolute path.
func (c *Config) ResolveDownloadDir() error {
	if c.DownloadDir == "" {
		c.DownloadDir = "downloads"
	}

	if strings.HasPrefix(c.DownloadDir, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("expand home directory: %w", err)
		}
		c.DownloadDir = filepath.Join(home, c.DownloadDir[2:])
	} else if c.DownloadDir == "~" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("expand home directory: %w", err)
		}
		c.DownloadDir = home
	}

	abs, err := filepath.Abs(c.DownloadDir)
	if err != nil {
		return fmt.Errorf("resolve absolute path for %s: %w", c.DownloadDir, err)
	}
	c.AbsDownloadDir = abs
	return nil
}

// Summary returns a one-line summary of key configuration for startup logs.
func (c *Config) Summary() map[string]any {
	return map[string]any{
		"addr":            c.Addr(),
		"download_dir":    c.AbsDownloadDir,
		"db_path":         c.Database.Path,
		"rate_per_minute": c.RatePerMinute,
		"log_level":       c.LogLevel,
		"version":         c.Version,
	}
}

// DefaultDBPath returns the cross-platform default path for the SQLite DB
// - Windows: %APPDATA%/ytgrab/ytgrab.db
// - Linux/macOS: $HOME/.cache/ytgrab/ytgrab.db
func DefaultDBPath() string {
	if runtime.GOOS == "windows" {
		if appdata := os.Getenv("APPDATA"); appdata != "" {
			return filepath.Join(appdata, "ytgrab", "ytgrab.db")
		}
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, "AppData", "Roaming", "ytgrab", "ytgrab.db")
		}
		return "ytgrab.db"
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "ytgrab", "ytgrab.db")
	}
	return filepath.Join("ytgrab", "ytgrab.db")
}
