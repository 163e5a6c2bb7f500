package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/garyjia/invoicebot/internal/normalize"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Database  DatabaseConfig  `mapstructure:"database"`
	IMAP      IMAPConfig      `mapstructure:"imap"`
	OpenAI    OpenAIConfig    `mapstructure:"openai"`
	Sheets    SheetsConfig    `mapstructure:"sheets"`
	Ingest    IngestConfig    `mapstructure:"ingest"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ForceSSL     bool          `mapstructure:"force_ssl"`
	RateLimit    int           `mapstructure:"rate_limit"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// DatabaseConfig holds the SQLite configuration for the ledger and company store
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// IMAPConfig holds mailbox connection settings
type IMAPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	User               string        `mapstructure:"user"`
	Password           string        `mapstructure:"password"`
	TLS                bool          `mapstructure:"tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Mailbox            string        `mapstructure:"mailbox"`
	DialTimeout        time.Duration `mapstructure:"dial_timeout"`
	CommandTimeout     time.Duration `mapstructure:"command_timeout"`
}

// Address returns host:port
func (c IMAPConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// OpenAIConfig holds extraction service settings
type OpenAIConfig struct {
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Model       string        `mapstructure:"model"`
	Temperature float32       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

// SheetsConfig holds the table sink settings
type SheetsConfig struct {
	SpreadsheetID   string `mapstructure:"spreadsheet_id"`
	Range           string `mapstructure:"range"`
	CredentialsFile string `mapstructure:"credentials_file"`
	CredentialsJSON string `mapstructure:"credentials_json"`
}

// IngestConfig holds ingestion cycle settings
type IngestConfig struct {
	Interval   time.Duration `mapstructure:"interval"`
	Delivery   string        `mapstructure:"delivery"`
	DateFormat string        `mapstructure:"date_format"`
	LockFile   string        `mapstructure:"lock_file"`
}

// DashboardConfig holds table source and presentation settings
type DashboardConfig struct {
	CSVURL        string        `mapstructure:"csv_url"`
	CompaniesJSON string        `mapstructure:"companies_json"`
	Fallback      string        `mapstructure:"fallback"`
	Locale        string        `mapstructure:"locale"`
	FetchTimeout  time.Duration `mapstructure:"fetch_timeout"`
	Auth          AuthConfig    `mapstructure:"auth"`
}

// AuthConfig enables HTTP basic auth on the dashboard API when both fields are set
type AuthConfig struct {
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
}

// Enabled reports whether credentials are configured
func (a AuthConfig) Enabled() bool {
	return a.Username != "" && a.Password != ""
}

// Delivery modes for the mailbox read mark
const (
	DeliveryAtMostOnce  = "at_most_once"
	DeliveryAtLeastOnce = "at_least_once"
)

// Dashboard fallbacks when the table source cannot be read
const (
	FallbackEmpty  = "empty"
	FallbackSample = "sample"
)

// Load loads configuration from an optional file (YAML unless the extension
// names another viper format such as .toml or .json) and environment variables
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if filepath.Ext(configPath) == "" {
			v.SetConfigType("yaml")
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 3000)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.force_ssl", false)
	v.SetDefault("server.rate_limit", 300)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	v.SetDefault("database.path", "data/invoicebot.db")
	v.SetDefault("database.max_open_conns", 4)
	v.SetDefault("database.max_idle_conns", 2)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("imap.port", 993)
	v.SetDefault("imap.tls", true)
	v.SetDefault("imap.insecure_skip_verify", false)
	v.SetDefault("imap.mailbox", "INBOX")
	v.SetDefault("imap.dial_timeout", 30*time.Second)
	v.SetDefault("imap.command_timeout", 30*time.Second)

	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.max_tokens", 500)
	v.SetDefault("openai.timeout", 60*time.Second)

	v.SetDefault("sheets.range", "GT Invoices!A:F")
	v.SetDefault("sheets.credentials_file", "google-credentials.json")

	v.SetDefault("ingest.interval", time.Minute)
	v.SetDefault("ingest.delivery", DeliveryAtMostOnce)
	v.SetDefault("ingest.date_format", "dmy")
	v.SetDefault("ingest.lock_file", "")

	v.SetDefault("dashboard.fallback", FallbackSample)
	v.SetDefault("dashboard.locale", "ru-RU")
	v.SetDefault("dashboard.fetch_timeout", 20*time.Second)
}

// bindEnvVars binds the deployment environment variables
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("server.port", "PORT")
	_ = v.BindEnv("server.force_ssl", "FORCE_SSL")
	_ = v.BindEnv("server.rate_limit", "RATE_LIMIT")
	_ = v.BindEnv("logger.level", "LOG_LEVEL")
	_ = v.BindEnv("logger.format", "LOG_FORMAT")
	_ = v.BindEnv("database.path", "DATABASE_PATH")

	_ = v.BindEnv("imap.host", "IMAP_HOST")
	_ = v.BindEnv("imap.port", "IMAP_PORT")
	_ = v.BindEnv("imap.user", "IMAP_USER")
	_ = v.BindEnv("imap.password", "IMAP_PASSWORD")
	_ = v.BindEnv("imap.tls", "IMAP_TLS")
	_ = v.BindEnv("imap.insecure_skip_verify", "IMAP_INSECURE_SKIP_VERIFY")

	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("openai.model", "OPENAI_MODEL")

	_ = v.BindEnv("sheets.spreadsheet_id", "GOOGLE_SPREADSHEET_ID")
	_ = v.BindEnv("sheets.range", "GOOGLE_SHEET_RANGE")
	_ = v.BindEnv("sheets.credentials_file", "GOOGLE_APPLICATION_CREDENTIALS")
	_ = v.BindEnv("sheets.credentials_json", "GOOGLE_CREDENTIALS")

	_ = v.BindEnv("ingest.interval", "INGEST_INTERVAL")
	_ = v.BindEnv("ingest.delivery", "INGEST_DELIVERY")
	_ = v.BindEnv("ingest.date_format", "INGEST_DATE_FORMAT")
	_ = v.BindEnv("ingest.lock_file", "INGEST_LOCK_FILE")

	_ = v.BindEnv("dashboard.csv_url", "GOOGLE_SHEETS_CSV_URL")
	_ = v.BindEnv("dashboard.companies_json", "COMPANIES_JSON")
	_ = v.BindEnv("dashboard.fallback", "DASHBOARD_FALLBACK")
	_ = v.BindEnv("dashboard.locale", "DASHBOARD_LOCALE")
	_ = v.BindEnv("dashboard.auth.username", "DASHBOARD_USER")
	_ = v.BindEnv("dashboard.auth.password", "DASHBOARD_PASSWORD")
}

// Validate checks settings shared by every command
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", c.Server.Port)
	}
	if c.Server.RateLimit < 0 {
		return fmt.Errorf("server.rate_limit must not be negative")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	switch c.Dashboard.Fallback {
	case FallbackEmpty, FallbackSample:
	default:
		return fmt.Errorf("dashboard.fallback must be %q or %q", FallbackEmpty, FallbackSample)
	}
	return nil
}

// ValidateIngest checks the settings required by the ingestion cycle
func (c *Config) ValidateIngest() error {
	var missing []string
	if c.IMAP.Host == "" {
		missing = append(missing, "imap.host")
	}
	if c.IMAP.User == "" {
		missing = append(missing, "imap.user")
	}
	if c.IMAP.Password == "" {
		missing = append(missing, "imap.password")
	}
	if c.OpenAI.APIKey == "" {
		missing = append(missing, "openai.api_key")
	}
	if c.Sheets.SpreadsheetID == "" {
		missing = append(missing, "sheets.spreadsheet_id")
	}
	if c.Sheets.CredentialsFile == "" && c.Sheets.CredentialsJSON == "" {
		missing = append(missing, "sheets.credentials_file")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}

	if c.Ingest.Interval <= 0 {
		return fmt.Errorf("ingest.interval must be positive")
	}
	switch c.Ingest.Delivery {
	case DeliveryAtMostOnce, DeliveryAtLeastOnce:
	default:
		return fmt.Errorf("ingest.delivery must be %q or %q", DeliveryAtMostOnce, DeliveryAtLeastOnce)
	}
	if !normalize.DateFormat(c.Ingest.DateFormat).Valid() {
		return fmt.Errorf("ingest.date_format must be %q or %q", normalize.DateFormatDMY, normalize.DateFormatISO)
	}
	return nil
}

// ValidateDashboard checks the settings used by the dashboard API
func (c *Config) ValidateDashboard() error {
	auth := c.Dashboard.Auth
	if (auth.Username == "") != (auth.Password == "") {
		return fmt.Errorf("dashboard.auth requires both username and password")
	}
	if c.Dashboard.FetchTimeout <= 0 {
		return fmt.Errorf("dashboard.fetch_timeout must be positive")
	}
	return nil
}
