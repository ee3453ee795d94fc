package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Judge   JudgeConfig   `yaml:"judge" mapstructure:"judge"`
	Collect CollectConfig `yaml:"collect" mapstructure:"collect"`
	Report  ReportConfig  `yaml:"report" mapstructure:"report"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Path        string `yaml:"path" mapstructure:"path"`
	Dir         string `yaml:"dir" mapstructure:"dir"`
}

// JudgeConfig holds the admin interface connection settings.
type JudgeConfig struct {
	BaseURL         string  `yaml:"base_url" mapstructure:"base_url"`
	SessionCookie   string  `yaml:"session_cookie" mapstructure:"session_cookie"`
	PageTimeoutSecs int     `yaml:"page_timeout_secs" mapstructure:"page_timeout_secs"`
	MaxRate         float64 `yaml:"max_rate" mapstructure:"max_rate"`
}

// CollectConfig configures the collection run.
type CollectConfig struct {
	MaxPages         int `yaml:"max_pages" mapstructure:"max_pages"`
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	PageDelayMinSecs int `yaml:"page_delay_min_secs" mapstructure:"page_delay_min_secs"`
	PageDelayMaxSecs int `yaml:"page_delay_max_secs" mapstructure:"page_delay_max_secs"`
	RetryCeiling     int `yaml:"retry_ceiling" mapstructure:"retry_ceiling"`
	BackoffBaseSecs  int `yaml:"backoff_base_secs" mapstructure:"backoff_base_secs"`
	BackoffCapSecs   int `yaml:"backoff_cap_secs" mapstructure:"backoff_cap_secs"`
}

// ReportConfig configures report output.
type ReportConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ServerConfig configures the status server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SUBAUDIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "subaudit.db")
	v.SetDefault("store.dir", "pages")
	v.SetDefault("judge.page_timeout_secs", 45)
	v.SetDefault("judge.max_rate", 0.5)
	v.SetDefault("collect.max_pages", 190)
	v.SetDefault("collect.batch_size", 5)
	v.SetDefault("collect.page_delay_min_secs", 3)
	v.SetDefault("collect.page_delay_max_secs", 6)
	v.SetDefault("collect.retry_ceiling", 2)
	v.SetDefault("collect.backoff_base_secs", 2)
	v.SetDefault("collect.backoff_cap_secs", 60)
	v.SetDefault("report.dir", "reports")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
