package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Azure      AzureConfig      `mapstructure:"azure"`
	Tavily     TavilyConfig     `mapstructure:"tavily"`
	Incident   IncidentConfig   `mapstructure:"incident"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	AppID    string `mapstructure:"app_id"`
	Name     string `mapstructure:"name"`
	Port     int    `mapstructure:"port"`
	TenantID string `mapstructure:"tenant_id"`
}

type AzureConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	APIKey     string `mapstructure:"api_key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

type TavilyConfig struct {
	APIKey     string `mapstructure:"api_key"`
	MaxResults int    `mapstructure:"max_results"`
}

type IncidentConfig struct {
	// PublishBaseURL hosts the /summary and /status collaborator endpoints
	PublishBaseURL   string        `mapstructure:"publish_base_url"`
	SummaryThreshold int           `mapstructure:"summary_threshold"`
	ClassifierWindow int           `mapstructure:"classifier_window"`
	GeneratorWindow  int           `mapstructure:"generator_window"`
	FallbackWindow   int           `mapstructure:"fallback_window"`
	MinConfidence    int           `mapstructure:"min_confidence"`
	PublishTimeout   time.Duration `mapstructure:"publish_timeout"`
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`
	// IdleExpiry closes an incident's tracking window after this much
	// inactivity. Zero keeps the source behavior of tracking forever.
	IdleExpiry time.Duration `mapstructure:"idle_expiry"`
}

type StorageConfig struct {
	Type       string       `mapstructure:"type"`
	MaxRecords int          `mapstructure:"max_records"`
	File       FileLogConfig `mapstructure:"file"`
	SQLite     SQLiteConfig  `mapstructure:"sqlite"`
	Redis      RedisConfig   `mapstructure:"redis"`
	RefsPath   string        `mapstructure:"refs_path"`
}

type FileLogConfig struct {
	Path string `mapstructure:"path"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	viper.BindEnv("bot.app_id", "BOT_ID")
	viper.BindEnv("bot.tenant_id", "BOT_TENANT_ID")
	viper.BindEnv("azure.endpoint", "AZURE_OPENAI_ENDPOINT")
	viper.BindEnv("azure.api_key", "AZURE_OPENAI_API_KEY")
	viper.BindEnv("azure.deployment", "AZURE_OPENAI_MODEL_DEPLOYMENT_NAME")
	viper.BindEnv("tavily.api_key", "TAVILY_API_KEY")
	viper.BindEnv("incident.publish_base_url", "INCIDENT_API_BASE_URL")
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Bot.Port == 0 {
		cfg.Bot.Port = 3978
	}
	if cfg.Bot.Name == "" {
		cfg.Bot.Name = "TeamsTaskAgent"
	}
	if cfg.Tavily.MaxResults == 0 {
		cfg.Tavily.MaxResults = 3
	}
	if cfg.Incident.PublishBaseURL == "" {
		cfg.Incident.PublishBaseURL = "http://localhost:8092"
	}
	if cfg.Incident.SummaryThreshold == 0 {
		cfg.Incident.SummaryThreshold = 5
	}
	if cfg.Incident.ClassifierWindow == 0 {
		cfg.Incident.ClassifierWindow = 15
	}
	if cfg.Incident.GeneratorWindow == 0 {
		cfg.Incident.GeneratorWindow = 12
	}
	if cfg.Incident.FallbackWindow == 0 {
		cfg.Incident.FallbackWindow = 20
	}
	if cfg.Incident.MinConfidence == 0 {
		cfg.Incident.MinConfidence = 7
	}
	if cfg.Incident.PublishTimeout == 0 {
		cfg.Incident.PublishTimeout = 30 * time.Second
	}
	if cfg.Incident.SweepInterval == 0 {
		cfg.Incident.SweepInterval = 5 * time.Minute
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "sqlite"
	}
	if cfg.Storage.MaxRecords == 0 {
		cfg.Storage.MaxRecords = 100
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = "data/messages.db"
	}
	if cfg.Storage.File.Path == "" {
		cfg.Storage.File.Path = "data/group_chat_messages.json"
	}
	if cfg.Storage.RefsPath == "" {
		cfg.Storage.RefsPath = "data/conversation_references.json"
	}
	if cfg.Monitoring.Metrics.Path == "" {
		cfg.Monitoring.Metrics.Path = "/metrics"
	}
	if cfg.Azure.APIVersion == "" {
		cfg.Azure.APIVersion = "2024-02-15-preview"
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "en"
	}
	if len(cfg.I18n.Languages) == 0 {
		cfg.I18n.Languages = []string{"en"}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Azure.Endpoint == "" {
		return fmt.Errorf("azure openai endpoint is required")
	}
	if cfg.Azure.APIKey == "" {
		return fmt.Errorf("azure openai api key is required")
	}
	if cfg.Azure.Deployment == "" {
		return fmt.Errorf("azure openai deployment name is required")
	}
	return nil
}
