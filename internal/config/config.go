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
	Store        StoreConfig        `yaml:"store" mapstructure:"store"`
	OpenRouter   OpenRouterConfig   `yaml:"openrouter" mapstructure:"openrouter"`
	Perplexity   PerplexityConfig   `yaml:"perplexity" mapstructure:"perplexity"`
	Anthropic    AnthropicConfig    `yaml:"anthropic" mapstructure:"anthropic"`
	Scan         ScanConfig         `yaml:"scan" mapstructure:"scan"`
	Verification VerificationConfig `yaml:"verification" mapstructure:"verification"`
	Budget       BudgetConfig       `yaml:"budget" mapstructure:"budget"`
	Pricing      PricingConfig      `yaml:"pricing" mapstructure:"pricing"`
	Monitoring   MonitoringConfig   `yaml:"monitoring" mapstructure:"monitoring"`
	Temporal     TemporalConfig     `yaml:"temporal" mapstructure:"temporal"`
	Server       ServerConfig       `yaml:"server" mapstructure:"server"`
	Log          LogConfig          `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// OpenRouterConfig holds OpenRouter API settings.
type OpenRouterConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ScanConfig configures scan batch execution.
type ScanConfig struct {
	ChunkSize          int    `yaml:"chunk_size" mapstructure:"chunk_size"`
	MaxConcurrent      int    `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	CallsPerMinute     int    `yaml:"calls_per_minute" mapstructure:"calls_per_minute"`
	CallTimeoutSecs    int    `yaml:"call_timeout_secs" mapstructure:"call_timeout_secs"`
	PanelsPath         string `yaml:"panels_path" mapstructure:"panels_path"`
	AggregateLookbackD int    `yaml:"aggregate_lookback_days" mapstructure:"aggregate_lookback_days"`
}

// VerificationConfig configures the gap verification loop.
type VerificationConfig struct {
	MaxAttempts int `yaml:"max_attempts" mapstructure:"max_attempts"`
	DelayHours  int `yaml:"delay_hours" mapstructure:"delay_hours"`
}

// BudgetConfig holds defaults applied when a brand has no explicit policy.
type BudgetConfig struct {
	DefaultAlertAtPercent int `yaml:"default_alert_at_percent" mapstructure:"default_alert_at_percent"`
}

// PricingConfig points at per-model rates; empty path means built-in rates.
type PricingConfig struct {
	RatesPath string `yaml:"rates_path" mapstructure:"rates_path"`
}

// MonitoringConfig configures alert delivery and health snapshots.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	LookbackHours        int     `yaml:"lookback_hours" mapstructure:"lookback_hours"`
}

// TemporalConfig configures the durable workflow runtime.
type TemporalConfig struct {
	HostPort  string `yaml:"host_port" mapstructure:"host_port"`
	Namespace string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue string `yaml:"task_queue" mapstructure:"task_queue"`
	ScanCron  string `yaml:"scan_cron" mapstructure:"scan_cron"`
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
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("scan.chunk_size", 5)
	v.SetDefault("scan.max_concurrent", 5)
	v.SetDefault("scan.calls_per_minute", 60)
	v.SetDefault("scan.call_timeout_secs", 60)
	v.SetDefault("scan.aggregate_lookback_days", 30)
	v.SetDefault("verification.max_attempts", 3)
	v.SetDefault("verification.delay_hours", 24)
	v.SetDefault("budget.default_alert_at_percent", 80)
	v.SetDefault("monitoring.failure_rate_threshold", 0.5)
	v.SetDefault("monitoring.lookback_hours", 24)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "visibility")
	v.SetDefault("temporal.scan_cron", "0 6 * * *")

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

// Validate checks that the fields required by the given run mode are set.
// Modes: "scan", "verify", "serve", "worker", "budget".
func (c *Config) Validate(mode string) error {
	var missing []string

	requireStore := func() {
		if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required for the postgres driver")
		}
	}
	requireProviders := func() {
		if c.OpenRouter.Key == "" {
			missing = append(missing, "openrouter.key is required")
		}
		if c.Perplexity.Key == "" {
			missing = append(missing, "perplexity.key is required")
		}
	}

	switch mode {
	case "scan", "verify":
		requireStore()
		requireProviders()
	case "worker":
		requireStore()
		requireProviders()
		if c.Temporal.HostPort == "" {
			missing = append(missing, "temporal.host_port is required")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			missing = append(missing, "server.port must be > 0")
		}
	case "budget", "migrate":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode == "scan" || mode == "verify" || mode == "worker" {
		if c.Scan.MaxConcurrent < 1 || c.Scan.MaxConcurrent > 50 {
			missing = append(missing, "scan.max_concurrent must be between 1 and 50")
		}
		if c.Scan.ChunkSize < 1 {
			missing = append(missing, "scan.chunk_size must be >= 1")
		}
		if c.Verification.MaxAttempts < 1 {
			missing = append(missing, "verification.max_attempts must be >= 1")
		}
	}
	if c.Budget.DefaultAlertAtPercent < 1 || c.Budget.DefaultAlertAtPercent > 100 {
		missing = append(missing, "budget.default_alert_at_percent must be between 1 and 100")
	}

	if len(missing) > 0 {
		return eris.New("config: " + strings.Join(missing, "; "))
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
