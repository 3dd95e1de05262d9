// Package embedcache keeps embeddings in Redis so repeated runs skip the API
// for texts that were embedded before.
package embedcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
)

const (
	defaultPrefix = "advisor:embedding:"
	defaultTTL    = 30 * 24 * time.Hour
)

type Config struct {
	Enabled  bool          `mapstructure:"enabled"`
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
	Prefix   string        `mapstructure:"prefix"`
}

// HitRecorder counts how many texts came from the cache and how many from the wrapped embedder.
type HitRecorder interface {
	EmbeddedTexts(source string, n int)
}

// Embedder wraps another embedder with a Redis read-through cache. Redis
// errors are logged and the call falls through to the wrapped embedder.
type Embedder struct {
	next     ai.Embedder
	rdb      redis.Cmdable
	model    string
	prefix   string
	ttl      time.Duration
	logger   *zap.Logger
	recorder HitRecorder
}

// NewClient opens a Redis client from cfg and checks connectivity.
func NewClient(ctx context.Context, cfg Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.Address, err)
	}
	return rdb, nil
}

// New keys entries by model so vectors from different models never mix.
func New(next ai.Embedder, rdb redis.Cmdable, model string, cfg Config, logger *zap.Logger, recorder HitRecorder) *Embedder {
	if cfg.Prefix == "" {
		cfg.Prefix = defaultPrefix
	}
	if cfg.TTL <= 0 {
		cfg.TTL = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		next:     next,
		rdb:      rdb,
		model:    model,
		prefix:   cfg.Prefix,
		ttl:      cfg.TTL,
		logger:   logger,
		recorder: recorder,
	}
}

func (e *Embedder) key(text string) string {
	sum := sha256.Sum256([]byte(e.model + "\x00" + text))
	return e.prefix + hex.EncodeToString(sum[:])
}

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return [][]float64{}, nil
	}

	keys := make([]string, len(texts))
	for i, text := range texts {
		keys[i] = e.key(text)
	}

	out := make([][]float64, len(texts))
	cached, err := e.rdb.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		e.logger.Warn("embedding cache read failed", zap.Error(err))
		cached = nil
	}

	for i, v := range cached {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var vec []float64
		if err := json.Unmarshal([]byte(raw), &vec); err != nil || len(vec) == 0 {
			continue
		}
		out[i] = vec
	}

	var missIdx []int
	var missTexts []string
	for i, vec := range out {
		if vec == nil {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, texts[i])
		}
	}

	e.record("cache", len(texts)-len(missIdx))
	if len(missIdx) == 0 {
		return out, nil
	}

	fresh, err := e.next.Embed(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	if len(fresh) != len(missTexts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(fresh), len(missTexts))
	}
	e.record("remote", len(missTexts))

	pipe := e.rdb.Pipeline()
	for j, i := range missIdx {
		out[i] = fresh[j]
		data, err := json.Marshal(fresh[j])
		if err != nil {
			continue
		}
		pipe.Set(ctx, keys[i], data, e.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		e.logger.Warn("embedding cache write failed", zap.Error(err), zap.Int("texts", len(missIdx)))
	}

	e.logger.Debug("embedding cache lookup",
		zap.Int("texts", len(texts)),
		zap.Int("hits", len(texts)-len(missIdx)),
	)

	return out, nil
}

func (e *Embedder) record(source string, n int) {
	if e.recorder != nil && n > 0 {
		e.recorder.EmbeddedTexts(source, n)
	}
}
