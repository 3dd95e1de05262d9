// Package config loads the application configuration from file, environment and .env.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/Lauiee/AdvisorAI-Api/internal/conversation"
	"github.com/Lauiee/AdvisorAI-Api/internal/embedcache"
	"github.com/Lauiee/AdvisorAI-Api/internal/matching"
)

const (
	App       = "advisor-matcher"
	EnvPrefix = "ADVISOR"

	CatalogFile     = "file"
	CatalogPostgres = "postgres"
)

type Config struct {
	Catalog  CatalogConfig   `mapstructure:"catalog"`
	AI       AIConfig        `mapstructure:"ai"`
	Cache    CacheConfig     `mapstructure:"cache"`
	Matching matching.Config `mapstructure:"matching"`
	Chat     ChatConfig      `mapstructure:"chat"`
	Metrics  MetricsConfig   `mapstructure:"metrics"`
}

type CatalogConfig struct {
	Source   string         `mapstructure:"source"`
	File     string         `mapstructure:"file"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	DSN     string `mapstructure:"dsn" json:"-"`
	DSNFile string `mapstructure:"dsn-file"`
}

type AIConfig struct {
	Provider string       `mapstructure:"provider"`
	Gemini   GeminiConfig `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey             string `mapstructure:"api-key" json:"-"`
	APIKeyFile         string `mapstructure:"api-key-file"`
	ChatModel          string `mapstructure:"chat-model"`
	EmbeddingModel     string `mapstructure:"embedding-model"`
	MaxRetries         int    `mapstructure:"max-retries"`
	MaxLogLength       int    `mapstructure:"max-log-length"`
	EmbeddingBatchSize int    `mapstructure:"embedding-batch-size"`
}

type CacheConfig struct {
	Redis embedcache.Config `mapstructure:"redis"`
}

type ChatConfig struct {
	conversation.Weights `mapstructure:",squash"`
	EvaluationTimeout    time.Duration `mapstructure:"evaluation-timeout"`
}

type MetricsConfig struct {
	File string `mapstructure:"file"`
}

// Default returns the configuration used for every key the file and environment leave unset.
func Default() Config {
	return Config{
		Catalog: CatalogConfig{Source: CatalogFile, File: "professor_data.json"},
		AI: AIConfig{
			Provider: "gemini",
			Gemini: GeminiConfig{
				ChatModel:          "gemini-2.5-flash",
				EmbeddingModel:     "text-embedding-004",
				MaxRetries:         3,
				MaxLogLength:       200,
				EmbeddingBatchSize: 100,
			},
		},
		Cache: CacheConfig{Redis: embedcache.Config{Address: "localhost:6379", TTL: 30 * 24 * time.Hour}},
		Matching: matching.Config{
			Concurrency:   matching.DefaultConcurrency,
			TaskTimeout:   matching.DefaultTaskTimeout,
			FallbackScore: matching.DefaultFallbackScore,
		},
		Chat: ChatConfig{Weights: conversation.DefaultWeights(), EvaluationTimeout: 60 * time.Second},
	}
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("loading .env: %w", err)
	}
	return nil
}

// Prepare points v at the config file and wires environment overrides such as
// ADVISOR_CATALOG_SOURCE. A missing default config file is not an error.
func Prepare(v *viper.Viper, cfgFile string) error {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config %s: %w", cfgFile, err)
		}
		return nil
	}

	v.AddConfigPath(".")
	v.SetConfigName(App)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config: %w", err)
		}
	}
	return nil
}

// Load unmarshals v over the defaults and validates the result.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	bindEnv(v)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	fillCalibration(&cfg.Matching.Calibration)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillCalibration applies the built-in curves after decoding so a file that
// lists its own breakpoints replaces the default table instead of merging into it.
func fillCalibration(c *matching.Calibration) {
	def := matching.DefaultCalibration().Default
	if c.Default.Indicator == (matching.IndicatorCurve{}) {
		c.Default.Indicator = def.Indicator
	}
	if len(c.Default.Aggregate.Breakpoints) == 0 {
		c.Default.Aggregate = def.Aggregate
	}
}

// bindEnv registers the keys AutomaticEnv cannot discover on its own because
// Unmarshal only consults keys viper already knows about.
func bindEnv(v *viper.Viper) {
	for _, key := range []string{
		"catalog.source", "catalog.file", "catalog.postgres.dsn", "catalog.postgres.dsn-file",
		"ai.gemini.api-key", "ai.gemini.api-key-file", "ai.gemini.chat-model", "ai.gemini.embedding-model",
		"cache.redis.enabled", "cache.redis.address", "cache.redis.password",
		"matching.concurrency", "matching.task-timeout", "metrics.file",
	} {
		_ = v.BindEnv(key)
	}
}

func (c *Config) Validate() error {
	switch c.Catalog.Source {
	case CatalogFile:
		if strings.TrimSpace(c.Catalog.File) == "" {
			return errors.New("catalog.file is required for the file catalog")
		}
	case CatalogPostgres:
	default:
		return fmt.Errorf("unsupported catalog source %q", c.Catalog.Source)
	}

	if p := strings.ToLower(strings.TrimSpace(c.AI.Provider)); p != "" && p != "gemini" {
		return fmt.Errorf("unsupported ai provider: %s", c.AI.Provider)
	}

	if err := c.Matching.Validate(); err != nil {
		return err
	}
	if err := c.Chat.Weights.Validate(); err != nil {
		return fmt.Errorf("chat: %w", err)
	}
	return nil
}
