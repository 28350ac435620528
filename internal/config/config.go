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
	Cluster ClusterConfig `yaml:"cluster" mapstructure:"cluster"`
	Embed   EmbedConfig   `yaml:"embed" mapstructure:"embed"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ClusterConfig configures coordinate clustering defaults.
type ClusterConfig struct {
	KMin        int     `yaml:"k_min" mapstructure:"k_min"`
	KMax        int     `yaml:"k_max" mapstructure:"k_max"`
	MaxIter     int     `yaml:"max_iter" mapstructure:"max_iter"`
	Sensitivity float64 `yaml:"sensitivity" mapstructure:"sensitivity"`
	Seed        uint64  `yaml:"seed" mapstructure:"seed"`
}

// EmbedConfig configures categorical embedding defaults.
type EmbedConfig struct {
	OOVBuckets int `yaml:"oov_buckets" mapstructure:"oov_buckets"`
	Dimension  int `yaml:"dimension" mapstructure:"dimension"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port      int     `yaml:"port" mapstructure:"port"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	RateBurst int     `yaml:"rate_burst" mapstructure:"rate_burst"`
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
	v.SetEnvPrefix("MLPREP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "mlprep.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.rate_limit", 10.0)
	v.SetDefault("server.rate_burst", 20)
	v.SetDefault("cluster.k_min", 4)
	v.SetDefault("cluster.k_max", 12)
	v.SetDefault("cluster.max_iter", 300)
	v.SetDefault("cluster.sensitivity", 1.0)
	v.SetDefault("cluster.seed", 42)
	v.SetDefault("embed.oov_buckets", 2)
	v.SetDefault("embed.dimension", 8)

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

// Validate checks that the configuration is usable for the given mode.
// Modes: "cluster", "embed", "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "cluster":
		if c.Cluster.KMin < 1 {
			problems = append(problems, "cluster.k_min must be >= 1")
		}
		if c.Cluster.KMax < c.Cluster.KMin {
			problems = append(problems, "cluster.k_max must be >= cluster.k_min")
		}
		if c.Cluster.MaxIter < 1 {
			problems = append(problems, "cluster.max_iter must be >= 1")
		}
		if c.Cluster.Sensitivity <= 0 {
			problems = append(problems, "cluster.sensitivity must be > 0")
		}
	case "embed":
		if c.Embed.OOVBuckets < 1 {
			problems = append(problems, "embed.oov_buckets must be >= 1")
		}
		if c.Embed.Dimension < 1 {
			problems = append(problems, "embed.dimension must be >= 1")
		}
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Server.RateLimit <= 0 {
			problems = append(problems, "server.rate_limit must be > 0")
		}
		if c.Server.RateBurst < 1 {
			problems = append(problems, "server.rate_burst must be >= 1")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
	}
	return nil
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
