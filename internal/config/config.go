// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Mailpit MailpitConfig `mapstructure:"mailpit"`
	AI      AIConfig      `mapstructure:"ai"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
	Report  ReportConfig  `mapstructure:"report"`
	Storage StorageConfig `mapstructure:"storage"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// MailpitConfig contains the mailbox store connection configuration
type MailpitConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	RequestTimeout     time.Duration `mapstructure:"request_timeout"`
	PageLimit          int           `mapstructure:"page_limit"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
}

// AIConfig contains the generative summarizer configuration
type AIConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	Model          string        `mapstructure:"model"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxBodyChars   int           `mapstructure:"max_body_chars"`
}

// SMTPConfig contains outbound mail transport configuration
type SMTPConfig struct {
	Host               string        `mapstructure:"host"`
	Port               int           `mapstructure:"port"`
	Username           string        `mapstructure:"username"`
	Password           string        `mapstructure:"password"`
	FromEmail          string        `mapstructure:"from_email"`
	FromName           string        `mapstructure:"from_name"`
	ToEmails           []string      `mapstructure:"to_emails"`
	UseTLS             bool          `mapstructure:"use_tls"`
	UseStartTLS        bool          `mapstructure:"use_start_tls"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// ReportConfig contains daily report scheduling and windowing configuration
type ReportConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	DailyAt      string `mapstructure:"daily_at"`      // HH:MM local time
	WindowPolicy string `mapstructure:"window_policy"` // today, yesterday
	AttachJSON   bool   `mapstructure:"attach_json"`
}

// StorageConfig contains run-history database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json, text
	Output string `mapstructure:"output"` // stdout, file
	File   string `mapstructure:"file"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("ALERT_SUMMARIZER")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if baseURL := os.Getenv("MAILPIT_BASE_URL"); baseURL != "" {
		config.Mailpit.BaseURL = baseURL
	}
	if apiKey := os.Getenv("GEMINI_API_KEY"); apiKey != "" {
		config.AI.APIKey = apiKey
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "alert-summarizer")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Mailpit defaults
	viper.SetDefault("mailpit.base_url", "http://localhost:8025")
	viper.SetDefault("mailpit.request_timeout", "15s")
	viper.SetDefault("mailpit.page_limit", 1000)
	viper.SetDefault("mailpit.insecure_skip_verify", false)

	// AI defaults
	viper.SetDefault("ai.base_url", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("ai.model", "gemini-2.0-flash")
	viper.SetDefault("ai.request_timeout", "30s")
	viper.SetDefault("ai.max_body_chars", 500)

	// SMTP defaults
	viper.SetDefault("smtp.host", "localhost")
	viper.SetDefault("smtp.port", 587)
	viper.SetDefault("smtp.from_email", "alerts@example.com")
	viper.SetDefault("smtp.from_name", "Alert Summarizer")
	viper.SetDefault("smtp.use_tls", false)
	viper.SetDefault("smtp.use_start_tls", true)
	viper.SetDefault("smtp.timeout", "30s")

	// Report defaults (end-of-day run summarizes the current day)
	viper.SetDefault("report.enabled", true)
	viper.SetDefault("report.daily_at", "23:59")
	viper.SetDefault("report.window_policy", "today")
	viper.SetDefault("report.attach_json", true)

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/runs.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "30s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Mailpit.BaseURL == "" {
		return fmt.Errorf("mailpit base URL is required")
	}
	if len(c.SMTP.ToEmails) == 0 {
		return fmt.Errorf("at least one report recipient is required")
	}
	if c.SMTP.Host == "" {
		return fmt.Errorf("SMTP host is required")
	}
	if c.Report.WindowPolicy != "today" && c.Report.WindowPolicy != "yesterday" {
		return fmt.Errorf("report window policy must be today or yesterday, got %q", c.Report.WindowPolicy)
	}
	if _, err := time.Parse("15:04", c.Report.DailyAt); err != nil {
		return fmt.Errorf("report daily_at must be HH:MM, got %q", c.Report.DailyAt)
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	return nil
}
