package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration.
type Config struct {
	API      APIConfig
	Database DatabaseConfig
	Log      LogConfig
	UI       UIConfig
	Exports  ExportsConfig
	Journal  JournalConfig
}

// APIConfig points at the logistics backend.
type APIConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

// DatabaseConfig holds sqlite settings for the local journal.
type DatabaseConfig struct {
	Path string
}

type LogConfig struct {
	Path  string
	Level string
}

// UIConfig holds presentation and list behaviour settings.
type UIConfig struct {
	PerPage          int           `mapstructure:"per_page"`
	SearchDebounce   time.Duration `mapstructure:"search_debounce"`
	FilterResetsPage bool          `mapstructure:"filter_resets_page"`
	CurrencySymbol   string        `mapstructure:"currency_symbol"`
	DateFormat       string        `mapstructure:"date_format"`
}

// ExportsConfig selects where downloaded spreadsheets go.
type ExportsConfig struct {
	Driver string
	Dir    string
	S3     S3Config
}

type S3Config struct {
	Region        string
	Bucket        string
	Prefix        string
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type JournalConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
}

// Load reads configuration from file and env. Env var overrides use prefix DESPACHO_.
func Load() (Config, error) {
	v := viper.New()
	home := os.Getenv("HOME")

	// default values
	v.SetDefault("api.base_url", "http://localhost:5000")
	v.SetDefault("api.timeout", 30*time.Second)
	v.SetDefault("api.retry_attempts", 3)
	v.SetDefault("api.retry_delay", 5*time.Second)
	v.SetDefault("database.path", filepath.Join(home, ".local", "share", "despacho", "despacho.db"))
	v.SetDefault("log.path", filepath.Join(home, ".local", "state", "despacho", "despacho.log"))
	v.SetDefault("log.level", "info")
	v.SetDefault("ui.per_page", 100)
	v.SetDefault("ui.search_debounce", 500*time.Millisecond)
	v.SetDefault("ui.filter_resets_page", false)
	v.SetDefault("ui.currency_symbol", "R$")
	v.SetDefault("ui.date_format", "02/01/2006")
	v.SetDefault("exports.driver", "local")
	v.SetDefault("exports.dir", filepath.Join(home, "Downloads", "despacho"))
	v.SetDefault("exports.s3.region", "")
	v.SetDefault("exports.s3.bucket", "")
	v.SetDefault("exports.s3.prefix", "exports")
	v.SetDefault("exports.s3.public_base_url", "")
	v.SetDefault("journal.batch_size", 16)
	v.SetDefault("journal.flush_interval", 2*time.Second)

	v.SetConfigType("toml")

	cfgPath := os.Getenv("DESPACHO_CONFIG")
	if cfgPath != "" {
		v.SetConfigFile(cfgPath)
	} else {
		v.AddConfigPath(filepath.Join(home, ".config", "despacho"))
		v.SetConfigName("config")
	}

	v.SetEnvPrefix("DESPACHO")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// read config file if present
	_ = v.ReadInConfig()

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if c.UI.PerPage <= 0 {
		c.UI.PerPage = 100
	}
	c.API.BaseURL = strings.TrimRight(c.API.BaseURL, "/")
	return c, nil
}

// Save writes the provided config to disk, creating the config directory if needed.
// The settings modal uses it to persist list behaviour toggles.
func Save(cfg Config) error {
	path := os.Getenv("DESPACHO_CONFIG")
	if path == "" {
		path = filepath.Join(os.Getenv("HOME"), ".config", "despacho", "config.toml")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	v := viper.New()
	v.SetConfigType("toml")
	v.Set("api.base_url", cfg.API.BaseURL)
	v.Set("api.timeout", cfg.API.Timeout.String())
	v.Set("api.retry_attempts", cfg.API.RetryAttempts)
	v.Set("api.retry_delay", cfg.API.RetryDelay.String())
	v.Set("database.path", cfg.Database.Path)
	v.Set("log.path", cfg.Log.Path)
	v.Set("log.level", cfg.Log.Level)
	v.Set("ui.per_page", cfg.UI.PerPage)
	v.Set("ui.search_debounce", cfg.UI.SearchDebounce.String())
	v.Set("ui.filter_resets_page", cfg.UI.FilterResetsPage)
	v.Set("ui.currency_symbol", cfg.UI.CurrencySymbol)
	v.Set("ui.date_format", cfg.UI.DateFormat)
	v.Set("exports.driver", cfg.Exports.Driver)
	v.Set("exports.dir", cfg.Exports.Dir)
	v.Set("exports.s3.region", cfg.Exports.S3.Region)
	v.Set("exports.s3.bucket", cfg.Exports.S3.Bucket)
	v.Set("exports.s3.prefix", cfg.Exports.S3.Prefix)
	v.Set("exports.s3.public_base_url", cfg.Exports.S3.PublicBaseURL)
	v.Set("journal.batch_size", cfg.Journal.BatchSize)
	v.Set("journal.flush_interval", cfg.Journal.FlushInterval.String())

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
