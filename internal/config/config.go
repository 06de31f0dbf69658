package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Geobase GeobaseConfig `yaml:"geobase" mapstructure:"geobase"`
	Planif  PlanifConfig  `yaml:"planif" mapstructure:"planif"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// GeobaseConfig configures the street-segment dataset download and cache.
type GeobaseConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TTLHours    int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	City        string `yaml:"city" mapstructure:"city"`
}

// TTL returns the freshness horizon as a duration.
func (c GeobaseConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// Timeout returns the download timeout as a duration.
func (c GeobaseConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// PlanifConfig configures the Planif-Neige scheduling API client and poller.
type PlanifConfig struct {
	DataURL          string `yaml:"data_url" mapstructure:"data_url"`
	MetadataURL      string `yaml:"metadata_url" mapstructure:"metadata_url"`
	PollIntervalMins int    `yaml:"poll_interval_mins" mapstructure:"poll_interval_mins"`
	TimeoutSecs      int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent        string `yaml:"user_agent" mapstructure:"user_agent"`
}

// PollInterval returns the polling cadence as a duration.
func (c PlanifConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMins) * time.Minute
}

// Timeout returns the request timeout as a duration.
func (c PlanifConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("NEIGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

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

// SetDefaults registers default values on the given viper instance.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "neige.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("geobase.url", "https://donnees.montreal.ca/dataset/88493b16-220f-4709-b57b-1ea57c5ba405/resource/16f7fa0a-9ce6-4b29-a7fc-00842c593927/download/gbdouble.json")
	v.SetDefault("geobase.ttl_hours", 24)
	v.SetDefault("geobase.timeout_secs", 120)
	v.SetDefault("geobase.city", "Montréal")
	v.SetDefault("planif.data_url", "https://planifneige.montreal.ca/api/planifications")
	v.SetDefault("planif.metadata_url", "https://planifneige.montreal.ca/api/metadata")
	v.SetDefault("planif.poll_interval_mins", 10)
	v.SetDefault("planif.timeout_secs", 30)
	v.SetDefault("planif.user_agent", "neige-cli/1.0")
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
