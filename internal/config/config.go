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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Reconcile ReconcileConfig `yaml:"reconcile" mapstructure:"reconcile"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// PipelineConfig configures routing and auto-decision policy.
type PipelineConfig struct {
	// ConfidenceThreshold forces human review for any field whose
	// extraction confidence is at or below it.
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	// AutoDecision enables routing straight from RECONCILED to a terminal
	// stage when the overall score crosses a threshold. Off by default:
	// every document passes through FINAL_REVIEW.
	AutoDecision         bool    `yaml:"auto_decision" mapstructure:"auto_decision"`
	AutoApproveThreshold float64 `yaml:"auto_approve_threshold" mapstructure:"auto_approve_threshold"`
	AutoRejectThreshold  float64 `yaml:"auto_reject_threshold" mapstructure:"auto_reject_threshold"`
}

// FetchConfig configures the fetch orchestrator.
type FetchConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries  int    `yaml:"max_retries" mapstructure:"max_retries"`
	BackoffMs   int    `yaml:"backoff_ms" mapstructure:"backoff_ms"`
	TargetsFile string `yaml:"targets_file" mapstructure:"targets_file"`
}

// ReconcileConfig configures field comparison.
type ReconcileConfig struct {
	FuzzyThreshold    float64 `yaml:"fuzzy_threshold" mapstructure:"fuzzy_threshold"`
	NumericTolerance  float64 `yaml:"numeric_tolerance" mapstructure:"numeric_tolerance"`
	DateToleranceDays int     `yaml:"date_tolerance_days" mapstructure:"date_tolerance_days"`
}

// ExtractConfig configures the extraction collaborator.
type ExtractConfig struct {
	Provider     string  `yaml:"provider" mapstructure:"provider"`
	AnthropicKey string  `yaml:"anthropic_key" mapstructure:"anthropic_key"`
	Model        string  `yaml:"model" mapstructure:"model"`
	MaxTokens    int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Confidence   float64 `yaml:"default_confidence" mapstructure:"default_confidence"`
}

// ServerConfig configures the HTTP surface.
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

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOCPIPE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "docpipe.db")
	v.SetDefault("pipeline.confidence_threshold", 0.7)
	v.SetDefault("pipeline.auto_decision", false)
	v.SetDefault("pipeline.auto_approve_threshold", 0.95)
	v.SetDefault("pipeline.auto_reject_threshold", 0.2)
	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.backoff_ms", 500)
	v.SetDefault("fetch.targets_file", "targets.yaml")
	v.SetDefault("reconcile.fuzzy_threshold", 0.85)
	v.SetDefault("reconcile.numeric_tolerance", 0.0001)
	v.SetDefault("reconcile.date_tolerance_days", 0)
	v.SetDefault("extract.provider", "text")
	v.SetDefault("extract.model", "claude-haiku-4-5-20251001")
	v.SetDefault("extract.max_tokens", 2048)
	v.SetDefault("extract.default_confidence", 0.9)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
