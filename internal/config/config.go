package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/arrowline/internal/arrowline"
	"github.com/sells-group/arrowline/internal/queue"
	"github.com/sells-group/arrowline/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig      `yaml:"store" mapstructure:"store"`
	Queue  queue.Config     `yaml:"queue" mapstructure:"queue"`
	Server ServerConfig     `yaml:"server" mapstructure:"server"`
	Log    LogConfig        `yaml:"log" mapstructure:"log"`
	Layer  arrowline.Config `yaml:"layer" mapstructure:"layer"`
}

// StoreConfig configures the task store backend.
type StoreConfig struct {
	Driver      string           `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string           `yaml:"database_url" mapstructure:"database_url"`
	Pool        store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int           `yaml:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `yaml:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout" mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	MaxBodyBytes    int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins" mapstructure:"allowed_origins"`
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
	v.SetEnvPrefix("ARROWLINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "arrowline.db")
	v.SetDefault("store.pool.max_conns", 10)
	v.SetDefault("store.pool.min_conns", 2)
	v.SetDefault("store.pool.prepare_statements", false)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("queue.concurrency", 4)
	v.SetDefault("queue.rate", 0)
	v.SetDefault("queue.batch_size", 100)
	v.SetDefault("queue.package_name", "")
	v.SetDefault("queue.stale_after", "30m")
	v.SetDefault("queue.retry.max_attempts", 3)
	v.SetDefault("queue.retry.initial_backoff", "100ms")
	v.SetDefault("queue.retry.max_backoff", "5s")
	v.SetDefault("queue.retry.multiplier", 2.0)
	v.SetDefault("queue.retry.jitter_fraction", 0.25)
	v.SetDefault("layer.sort.property", "")
	v.SetDefault("layer.sort.order", string(arrowline.SortAsc))
	v.SetDefault("layer.sort.type", string(arrowline.PropertyNumber))
	v.SetDefault("layer.sort.date_time_format", "")
	v.SetDefault("layer.center", string(arrowline.CenterVertexMean))
	v.SetDefault("layer.anchor", string(arrowline.AnchorMidpoint))

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

// Validate checks the settings a command mode depends on. Modes are
// "build", "serve" and "queue".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "build":
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Server.MaxBodyBytes < 0 {
			errs = append(errs, "server.max_body_bytes must be >= 0")
		}
		errs = append(errs, c.validateStore()...)
	case "queue":
		errs = append(errs, c.validateStore()...)
		if c.Queue.Concurrency < 1 || c.Queue.Concurrency > 64 {
			errs = append(errs, "queue.concurrency must be between 1 and 64")
		}
		if c.Queue.Rate < 0 {
			errs = append(errs, "queue.rate must be >= 0")
		}
		if c.Queue.StaleAfter < 0 {
			errs = append(errs, "queue.stale_after must be >= 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if err := c.Layer.Validate(); err != nil {
		errs = append(errs, "layer: "+err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateStore() []string {
	var errs []string
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	return errs
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
