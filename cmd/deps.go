package cmd

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
	"github.com/Lauiee/AdvisorAI-Api/internal/ai/gemini"
	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/config"
	"github.com/Lauiee/AdvisorAI-Api/internal/conversation"
	"github.com/Lauiee/AdvisorAI-Api/internal/embedcache"
	"github.com/Lauiee/AdvisorAI-Api/internal/logger"
	"github.com/Lauiee/AdvisorAI-Api/internal/matching"
	"github.com/Lauiee/AdvisorAI-Api/internal/metrics"
	"github.com/Lauiee/AdvisorAI-Api/internal/secrets"
)

const providerGemini = "gemini"

// deps holds everything a command builds from the configuration. Capabilities
// are created lazily so commands only pay for what they use.
type deps struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Recorder

	client  *genai.Client
	closers []func() error
}

// setup builds the logger and loads the configuration. Any failure here is fatal.
func setup() *deps {
	zl, err := logger.New(logger.Options{
		JSON:  viper.GetBool("json"),
		Debug: viper.GetBool("debug"),
	})
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	cfg, err := getConfig()
	if err != nil {
		zl.Fatal("getting a config", zap.Error(err))
	}

	zl.Debug("starting with config",
		zap.String("catalog_source", cfg.Catalog.Source),
		zap.String("chat_model", cfg.AI.Gemini.ChatModel),
		zap.String("embedding_model", cfg.AI.Gemini.EmbeddingModel),
		zap.Bool("redis_cache", cfg.Cache.Redis.Enabled),
		zap.Int("concurrency", cfg.Matching.Concurrency),
	)

	return &deps{config: cfg, logger: zl, metrics: metrics.New()}
}

// close releases opened resources and writes the metrics textfile when configured.
func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			d.logger.Warn("closing resource", zap.Error(err))
		}
	}

	if path := strings.TrimSpace(d.config.Metrics.File); path != "" {
		if err := d.metrics.WriteTextfile(path); err != nil {
			d.logger.Warn("writing metrics textfile", zap.String("filename", path), zap.Error(err))
		} else {
			d.logger.Debug("metrics written", zap.String("filename", path))
		}
	}

	_ = d.logger.Sync()
}

func (d *deps) genaiClient(ctx context.Context) (*genai.Client, error) {
	if d.client != nil {
		return d.client, nil
	}

	gc := d.config.AI.Gemini
	apiKey, err := secrets.Load(secrets.Source{
		Name:  "gemini api key",
		Value: gc.APIKey,
		File:  gc.APIKeyFile,
		Env:   "GEMINI_API_KEY",
	})
	if err != nil {
		return nil, fmt.Errorf("%w (set ai.gemini.api-key-file or GEMINI_API_KEY)", err)
	}

	client, err := gemini.NewClient(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	d.client = client
	return client, nil
}

// embedder returns the Gemini embedder, behind the Redis cache when it is enabled.
// An unreachable Redis only disables the cache.
func (d *deps) embedder(ctx context.Context) (ai.Embedder, error) {
	client, err := d.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	gc := d.config.AI.Gemini
	remote := gemini.NewEmbedder(client, gc.EmbeddingModel, gc.EmbeddingBatchSize, gc.MaxRetries, logger.WithAI(d.logger, providerGemini, gc.EmbeddingModel))

	rc := d.config.Cache.Redis
	if !rc.Enabled {
		return remote, nil
	}

	rdb, err := embedcache.NewClient(ctx, rc)
	if err != nil {
		d.logger.Warn("embedding cache disabled", zap.Error(err))
		return remote, nil
	}
	d.closers = append(d.closers, rdb.Close)

	return embedcache.New(remote, rdb, remote.Model(), rc, d.logger, d.metrics), nil
}

func (d *deps) evaluator(ctx context.Context) (ai.Evaluator, error) {
	client, err := d.genaiClient(ctx)
	if err != nil {
		return nil, err
	}

	gc := d.config.AI.Gemini
	genLogger := logger.WithAI(d.logger, providerGemini, gc.ChatModel).With(zap.Int("ai_retry_attempts", gc.MaxRetries))
	generator := gemini.NewGenerator(client, gc.ChatModel, gc.MaxRetries, genLogger)

	return gemini.NewEvaluator(generator, gc.MaxLogLength, genLogger), nil
}

func (d *deps) catalog(ctx context.Context) (catalog.Catalog, error) {
	switch d.config.Catalog.Source {
	case config.CatalogPostgres:
		return d.postgres(ctx)
	case config.CatalogFile:
		mem, err := catalog.LoadFile(d.config.Catalog.File)
		if err != nil {
			return nil, err
		}
		d.logger.Info("catalog loaded", zap.String("filename", d.config.Catalog.File))
		return mem, nil
	default:
		return nil, fmt.Errorf("unsupported catalog source %q", d.config.Catalog.Source)
	}
}

func (d *deps) postgres(ctx context.Context) (*catalog.Postgres, error) {
	pc := d.config.Catalog.Postgres
	dsn, err := secrets.Load(secrets.Source{
		Name:  "postgres dsn",
		Value: pc.DSN,
		File:  pc.DSNFile,
		Env:   "DATABASE_URL",
	})
	if err != nil {
		return nil, err
	}

	store, err := catalog.OpenPostgres(dsn)
	if err != nil {
		return nil, err
	}
	if err := store.Ping(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	d.closers = append(d.closers, store.Close)

	return store, nil
}

func (d *deps) matcher(ctx context.Context) (*matching.Matcher, error) {
	embedder, err := d.embedder(ctx)
	if err != nil {
		return nil, fmt.Errorf("building embedder: %w", err)
	}

	cat, err := d.catalog(ctx)
	if err != nil {
		return nil, fmt.Errorf("opening catalog: %w", err)
	}

	return matching.NewMatcher(matching.Deps{
		Embedder: embedder,
		Catalog:  cat,
		Logger:   d.logger,
		Recorder: d.metrics,
	}, d.config.Matching)
}

// chatScorer fails when the evaluator cannot be built, missing credentials included.
// Length-based scoring only covers evaluation failures of individual transcripts.
func (d *deps) chatScorer(ctx context.Context) (*conversation.Scorer, error) {
	evaluator, err := d.evaluator(ctx)
	if err != nil {
		return nil, fmt.Errorf("building chat evaluator: %w", err)
	}

	return conversation.NewScorer(evaluator, d.config.Chat.EvaluationTimeout, d.logger, d.metrics), nil
}
