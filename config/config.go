package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Log         Logger                `mapstructure:"logger"`
	DB          Database              `mapstructure:"database"`
	API         API                   `mapstructure:"api"`
	Scheduler   Scheduler             `mapstructure:"scheduler"`
	Cache       Cache                 `mapstructure:"cache"`
	Telegram    TelegramConfig        `mapstructure:"telegram"`
	DataSources map[string]DataSource `mapstructure:"datasources"`
	ADR         ADR                   `mapstructure:"adr"`
}

type Logger struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

type Database struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	DBName          string `mapstructure:"name"`
	SSLMode         string `mapstructure:"ssl_mode"`
	TimeZone        string `mapstructure:"time_zone"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime string `mapstructure:"conn_max_lifetime"`
	LogLevel        string `mapstructure:"log_level"`
}

// DSN renders the libpq connection string used by gorm and golang-migrate.
func (d Database) DSN() string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=%s",
		d.Host, d.User, d.Password, d.DBName, d.Port, d.SSLMode)
	if d.TimeZone != "" {
		dsn += fmt.Sprintf(" TimeZone=%s", d.TimeZone)
	}
	return dsn
}

// URL renders the postgres:// form required by golang-migrate.
func (d Database) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

type Scheduler struct {
	Enabled                 bool          `mapstructure:"enabled"`
	PollInterval            time.Duration `mapstructure:"poll_interval"`
	MaxConcurrency          int           `mapstructure:"max_concurrency"`
	DefaultTimeout          time.Duration `mapstructure:"default_timeout"`
	MaxBackoff              time.Duration `mapstructure:"max_backoff"`
	RecoveryCeiling         time.Duration `mapstructure:"recovery_ceiling"`
	CancelGracePeriod       time.Duration `mapstructure:"cancel_grace_period"`
	HistoryRetentionDays    int           `mapstructure:"history_retention_days"`
	RetentionInterval       time.Duration `mapstructure:"retention_interval"`
	MaxOutputBytes          int           `mapstructure:"max_output_bytes"`
	AllowedParameterSources []string      `mapstructure:"allowed_parameter_sources"`
}

type API struct {
	Port           int           `mapstructure:"port"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	RateBurst      int           `mapstructure:"rate_burst"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type Cache struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type TelegramConfig struct {
	Enabled                   bool          `mapstructure:"enabled"`
	BotToken                  string        `mapstructure:"bot_token"`
	ChatID                    int64         `mapstructure:"chat_id"`
	TimeoutDuration           time.Duration `mapstructure:"timeout_duration"`
	MaxGlobalRequestPerSecond int           `mapstructure:"max_global_request_per_second"`
	AlertMinLevel             string        `mapstructure:"alert_min_level"`
}

// DataSource is a named auxiliary connection. Driver is pgx, postgres or mysql.
type DataSource struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ADR struct {
	VendorBaseURL           string        `mapstructure:"vendor_base_url"`
	VendorAPIKey            string        `mapstructure:"vendor_api_key"`
	CredentialBaseURL       string        `mapstructure:"credential_base_url"`
	CredentialAPIKey        string        `mapstructure:"credential_api_key"`
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	WindowDaysBefore        int           `mapstructure:"window_days_before"`
	WindowDaysAfter         int           `mapstructure:"window_days_after"`
	CredentialLeadDays      int           `mapstructure:"credential_lead_days"`
	RegularityToleranceDays int           `mapstructure:"regularity_tolerance_days"`
	MaxConcurrency          int           `mapstructure:"max_concurrency"`
	RequestsPerSecond       float64       `mapstructure:"requests_per_second"`
	RequestBurst            int           `mapstructure:"request_burst"`
	SyncDataSource          string        `mapstructure:"sync_datasource"`
	SyncRoutine             string        `mapstructure:"sync_routine"`
	StatusCacheTTL          time.Duration `mapstructure:"status_cache_ttl"`
	CredentialCacheTTL      time.Duration `mapstructure:"credential_cache_ttl"`
	HistoryLimit            int           `mapstructure:"history_limit"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.encoding", "json")

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.time_zone", "UTC")
	v.SetDefault("database.log_level", "Warn")

	v.SetDefault("api.port", 8080)
	v.SetDefault("api.rate_limit", 10)
	v.SetDefault("api.rate_burst", 30)
	v.SetDefault("api.request_timeout", 10*time.Minute)

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.poll_interval", 5*time.Second)
	v.SetDefault("scheduler.max_concurrency", 10)
	v.SetDefault("scheduler.default_timeout", 60*time.Minute)
	v.SetDefault("scheduler.max_backoff", 24*time.Hour)
	v.SetDefault("scheduler.recovery_ceiling", 2*time.Hour)
	v.SetDefault("scheduler.cancel_grace_period", 30*time.Second)
	v.SetDefault("scheduler.history_retention_days", 90)
	v.SetDefault("scheduler.retention_interval", 24*time.Hour)
	v.SetDefault("scheduler.max_output_bytes", 64*1024)

	v.SetDefault("cache.default_expiration", 30*time.Minute)
	v.SetDefault("cache.cleanup_interval", 10*time.Minute)

	v.SetDefault("telegram.enabled", false)
	v.SetDefault("telegram.timeout_duration", 10*time.Second)
	v.SetDefault("telegram.max_global_request_per_second", 20)
	v.SetDefault("telegram.alert_min_level", "error")

	v.SetDefault("adr.request_timeout", 30*time.Second)
	v.SetDefault("adr.window_days_before", 0)
	v.SetDefault("adr.window_days_after", 4)
	v.SetDefault("adr.credential_lead_days", 7)
	v.SetDefault("adr.regularity_tolerance_days", 5)
	v.SetDefault("adr.max_concurrency", 4)
	v.SetDefault("adr.requests_per_second", 5)
	v.SetDefault("adr.request_burst", 5)
	v.SetDefault("adr.sync_routine", "adr_account_source")
	v.SetDefault("adr.status_cache_ttl", 24*time.Hour)
	v.SetDefault("adr.credential_cache_ttl", time.Hour)
	v.SetDefault("adr.history_limit", 20)
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file loaded:", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AddConfigPath(".")
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		fmt.Println("No config file loaded:", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default returns the configuration defaults without reading any file or
// environment. Used by tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}
