package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/haulwise/rebate-claims/internal/domain/rule"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Config holds all application configuration
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	OpenAI     OpenAIConfig     `mapstructure:"openai"`
	Rebate     RebateConfig     `mapstructure:"rebate"`
	Enrichment EnrichmentConfig `mapstructure:"enrichment"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Lark       LarkConfig       `mapstructure:"lark"`
	Logger     LoggerConfig     `mapstructure:"logger"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// OpenAIConfig holds OpenAI API configuration
type OpenAIConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	BaseURL     string  `mapstructure:"base_url"`
	Model       string  `mapstructure:"model"`
	Temperature float32 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	PromptsPath string  `mapstructure:"prompts_path"` // empty uses the built-in prompts
}

// RebateConfig holds the business-rule constants
type RebateConfig struct {
	Rate                     float64       `mapstructure:"rate"`
	Cap                      float64       `mapstructure:"cap"`
	VarianceTolerancePercent float64       `mapstructure:"variance_tolerance_percent"`
	SubmissionWindow         time.Duration `mapstructure:"submission_window"`
	FutureSkew               time.Duration `mapstructure:"future_skew"`
}

// EnrichmentConfig holds the document-analysis worker pool settings
type EnrichmentConfig struct {
	Workers       int           `mapstructure:"workers"`
	QueueSize     int           `mapstructure:"queue_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	BaseBackoff   time.Duration `mapstructure:"base_backoff"`
	MaxBackoff    time.Duration `mapstructure:"max_backoff"`
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
	StaleAfter    time.Duration `mapstructure:"stale_after"`
	SweepBatch    int           `mapstructure:"sweep_batch"`
}

// StorageConfig holds receipt image storage configuration
type StorageConfig struct {
	ReceiptDir    string `mapstructure:"receipt_dir"`
	MaxImageBytes int64  `mapstructure:"max_image_bytes"`
	PDFDPI        int    `mapstructure:"pdf_dpi"`
}

// LarkConfig holds the reviewer alert channel configuration
type LarkConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	AppID        string `mapstructure:"app_id"`
	AppSecret    string `mapstructure:"app_secret"`
	ReviewChatID string `mapstructure:"review_chat_id"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// Load reads configuration from an optional .env file, an optional YAML file at
// configPath and the environment, in increasing order of precedence.
func Load(configPath string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		} else if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to stat config file: %w", err)
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
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	v.SetDefault("database.path", "data/rebate_claims.db")
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o")
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.max_tokens", 1200)
	v.SetDefault("openai.prompts_path", "")

	v.SetDefault("rebate.rate", 0.10)
	v.SetDefault("rebate.cap", 25.00)
	v.SetDefault("rebate.variance_tolerance_percent", 20.0)
	v.SetDefault("rebate.submission_window", 48*time.Hour)
	v.SetDefault("rebate.future_skew", 15*time.Minute)

	v.SetDefault("enrichment.workers", 4)
	v.SetDefault("enrichment.queue_size", 256)
	v.SetDefault("enrichment.timeout", 60*time.Second)
	v.SetDefault("enrichment.max_attempts", 2)
	v.SetDefault("enrichment.base_backoff", 2*time.Second)
	v.SetDefault("enrichment.max_backoff", 20*time.Second)
	v.SetDefault("enrichment.sweep_interval", time.Minute)
	v.SetDefault("enrichment.stale_after", 5*time.Minute)
	v.SetDefault("enrichment.sweep_batch", 50)

	v.SetDefault("storage.receipt_dir", "data/receipts")
	v.SetDefault("storage.max_image_bytes", 10<<20)
	v.SetDefault("storage.pdf_dpi", 150)

	v.SetDefault("lark.enabled", false)
	v.SetDefault("lark.app_id", "")
	v.SetDefault("lark.app_secret", "")
	v.SetDefault("lark.review_chat_id", "")

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")
}

// bindEnvVars maps the conventional secret names onto config keys
func bindEnvVars(v *viper.Viper) {
	_ = v.BindEnv("openai.api_key", "OPENAI_API_KEY")
	_ = v.BindEnv("openai.base_url", "OPENAI_BASE_URL")
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.review_chat_id", "LARK_REVIEW_CHAT_ID")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.OpenAI.APIKey == "" {
		return fmt.Errorf("openai.api_key is required")
	}

	if err := c.Rebate.Policy().Validate(); err != nil {
		return fmt.Errorf("rebate: %w", err)
	}

	if c.Enrichment.Workers <= 0 {
		return fmt.Errorf("enrichment.workers must be positive")
	}
	if c.Enrichment.QueueSize <= 0 {
		return fmt.Errorf("enrichment.queue_size must be positive")
	}
	if c.Enrichment.MaxAttempts <= 0 {
		return fmt.Errorf("enrichment.max_attempts must be positive")
	}
	if c.Enrichment.Timeout <= 0 {
		return fmt.Errorf("enrichment.timeout must be positive")
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_id and lark.app_secret are required when lark is enabled")
		}
		if c.Lark.ReviewChatID == "" {
			return fmt.Errorf("lark.review_chat_id is required when lark is enabled")
		}
	}

	return nil
}

// Policy converts the configured constants into a rule.Policy
func (r RebateConfig) Policy() rule.Policy {
	return rule.Policy{
		RebateRate:               decimal.NewFromFloat(r.Rate),
		RebateCap:                decimal.NewFromFloat(r.Cap),
		VarianceTolerancePercent: decimal.NewFromFloat(r.VarianceTolerancePercent),
		SubmissionWindow:         r.SubmissionWindow,
		FutureSkew:               r.FutureSkew,
	}
}

// Address returns the host:port the HTTP server listens on
func (s ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
