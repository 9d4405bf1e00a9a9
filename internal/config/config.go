// Package config loads the application configuration from a YAML file with
// environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the full application configuration, matching config.yaml.
type Config struct {
	Lark     LarkConfig     `mapstructure:"lark"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Bitable  BitableConfig  `mapstructure:"bitable"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Store    StoreConfig    `mapstructure:"store"`
	Lock     LockConfig     `mapstructure:"lock"`
	Log      LogConfig      `mapstructure:"log"`
}

// LarkConfig holds the open-platform app credentials and endpoint.
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// CalendarConfig controls the calendar source.
type CalendarConfig struct {
	// TokenFile is where the authorization flow leaves the user token.
	TokenFile string `mapstructure:"token_file"`
	// SnapshotDir receives one JSON payload per person per fetch.
	SnapshotDir string `mapstructure:"snapshot_dir"`
	// WindowMonths is how many months past the current one to pull.
	WindowMonths int `mapstructure:"window_months"`
}

// BitableConfig identifies the target table for uploads.
type BitableConfig struct {
	AppToken string `mapstructure:"app_token"`
	TableID  string `mapstructure:"table_id"`
}

// SyncConfig controls cycle scheduling and batching.
type SyncConfig struct {
	// Cron is the schedule expression (with seconds field).
	Cron string `mapstructure:"cron"`
	// BatchSize caps records per transport call.
	BatchSize int `mapstructure:"batch_size"`
	// Timeout bounds each network call in a cycle.
	Timeout time.Duration `mapstructure:"timeout"`
	// Debounce is how long the watch mode waits after the last snapshot
	// change before running a cycle.
	Debounce time.Duration `mapstructure:"debounce"`
}

// StoreConfig locates the tracking database.
type StoreConfig struct {
	Path string `mapstructure:"path"`
}

// LockConfig locates the single-instance advisory lock file.
type LockConfig struct {
	Path string `mapstructure:"path"`
}

// LogConfig controls the logger.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
	// File enables an additional rotated file sink when non-empty.
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// Load reads configuration from path (or the default search locations when
// path is empty), applying defaults first and environment overrides last.
func Load(path string) (*Config, error) {
	// Secrets may live in a local .env; absence is fine.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is acceptable: defaults plus env vars
		// fully describe a working setup. Anything else (an unreadable
		// or malformed file) fails startup rather than silently running
		// on defaults.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	overrideFromEnv(&cfg)
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lark.base_url", "https://open.larksuite.com/open-apis")
	v.SetDefault("calendar.token_file", "data/feishu_data.json")
	v.SetDefault("calendar.snapshot_dir", "data/personal_calendars")
	v.SetDefault("calendar.window_months", 2)
	v.SetDefault("sync.cron", "0 0 10 * * 1-5")
	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.timeout", 30*time.Second)
	v.SetDefault("sync.debounce", 2*time.Second)
	v.SetDefault("store.path", "data/record_tracking/upload_tracker.db")
	v.SetDefault("lock.path", "data/larksync.lock")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)
}

// overrideFromEnv applies environment variables for secrets and identifiers
// that should not live in a committed YAML file.
func overrideFromEnv(cfg *Config) {
	if v := os.Getenv("LARK_APP_ID"); v != "" {
		cfg.Lark.AppID = v
	}
	if v := os.Getenv("LARK_APP_SECRET"); v != "" {
		cfg.Lark.AppSecret = v
	}
	if v := os.Getenv("LARK_APP_TOKEN"); v != "" {
		cfg.Bitable.AppToken = v
	}
	if v := os.Getenv("LARK_TABLE_ID"); v != "" {
		cfg.Bitable.TableID = v
	}
}

// Validate checks the fields every command needs. Commands with extra
// requirements (credentials for upload) check those at use time.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("store.path is required")
	}
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	return nil
}
