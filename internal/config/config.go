package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Check     CheckConfig     `yaml:"check" mapstructure:"check"`
	Schema    SchemaConfig    `yaml:"schema" mapstructure:"schema"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig selects the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds API credentials and request sizing.
type AnthropicConfig struct {
	Key          string `yaml:"key" mapstructure:"key"`
	Model        string `yaml:"model" mapstructure:"model"`
	MaxTokens    int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxBatchSize int    `yaml:"max_batch_size" mapstructure:"max_batch_size"`
	SystemPrompt string `yaml:"system_prompt" mapstructure:"system_prompt"`
	WarmCache    bool   `yaml:"warm_cache" mapstructure:"warm_cache"`
}

// BatchConfig controls batch submission pacing and polling.
type BatchConfig struct {
	Dir              string  `yaml:"dir" mapstructure:"dir"`
	PollIntervalSecs int     `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	PollTimeoutMins  int     `yaml:"poll_timeout_mins" mapstructure:"poll_timeout_mins"`
	SubmitRPS        float64 `yaml:"submit_rps" mapstructure:"submit_rps"`
	MaxIterations    int     `yaml:"max_iterations" mapstructure:"max_iterations"`
}

// CheckConfig controls the consistency checker.
type CheckConfig struct {
	Workers int `yaml:"workers" mapstructure:"workers"`
}

// SchemaConfig points at an optional schema override file.
type SchemaConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
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
	v.SetEnvPrefix("ODD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "odd.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.max_batch_size", 100)
	v.SetDefault("anthropic.system_prompt", "")
	v.SetDefault("anthropic.warm_cache", false)
	v.SetDefault("batch.dir", "batches")
	v.SetDefault("batch.poll_interval_secs", 30)
	v.SetDefault("batch.poll_timeout_mins", 24*60)
	v.SetDefault("batch.submit_rps", 1.0)
	v.SetDefault("batch.max_iterations", 3)
	v.SetDefault("check.workers", 4)
	v.SetDefault("schema.path", "")

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

// Validate checks the settings a command mode depends on. Mode "batch"
// requires API credentials on top of the common checks.
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Check.Workers < 1 || c.Check.Workers > 64 {
		problems = append(problems, fmt.Sprintf("check.workers must be between 1 and 64, got %d", c.Check.Workers))
	}

	switch mode {
	case "normalize", "check", "flatten", "runs":
	case "batch":
		if c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required")
		}
		if c.Anthropic.Model == "" {
			problems = append(problems, "anthropic.model is required")
		}
		if c.Anthropic.MaxTokens <= 0 {
			problems = append(problems, "anthropic.max_tokens must be positive")
		}
		if c.Anthropic.MaxBatchSize <= 0 {
			problems = append(problems, "anthropic.max_batch_size must be positive")
		}
		if c.Batch.SubmitRPS <= 0 {
			problems = append(problems, "batch.submit_rps must be positive")
		}
		if c.Batch.PollIntervalSecs <= 0 {
			problems = append(problems, "batch.poll_interval_secs must be positive")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
