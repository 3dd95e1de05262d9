package gemini

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/Lauiee/AdvisorAI-Api/internal/similarity"
)

const (
	defaultEmbeddingModel = "text-embedding-004"
	defaultBatchSize      = 100
)

type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder turns texts into embedding vectors through the Gemini embeddings API.
type Embedder struct {
	models     contentEmbedder
	model      string
	batchSize  int
	maxRetries int
	logger     *zap.Logger
}

func NewEmbedder(client *genai.Client, model string, batchSize, maxRetries int, logger *zap.Logger) *Embedder {
	if strings.TrimSpace(model) == "" {
		model = defaultEmbeddingModel
	}
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Embedder{
		models:     client.Models,
		model:      model,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

func (e *Embedder) Model() string {
	return e.model
}

// Embed sends texts in batches of at most batchSize and keeps their order.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, 0, len(texts))

	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		batch := texts[start:end]

		contents := make([]*genai.Content, len(batch))
		for i, text := range batch {
			contents[i] = &genai.Content{
				Role:  genai.RoleUser,
				Parts: []*genai.Part{{Text: text}},
			}
		}

		var resp *genai.EmbedContentResponse
		err := withRetries(ctx, e.logger, e.maxRetries, func() error {
			var err error
			resp, err = e.models.EmbedContent(ctx, e.model, contents, nil)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("embedding %d texts: %w", len(batch), err)
		}

		if resp == nil || len(resp.Embeddings) != len(batch) {
			got := 0
			if resp != nil {
				got = len(resp.Embeddings)
			}
			return nil, fmt.Errorf("embedding response has %d vectors for %d texts", got, len(batch))
		}

		for i, emb := range resp.Embeddings {
			if emb == nil || len(emb.Values) == 0 {
				return nil, fmt.Errorf("embedding %d in batch is empty", i)
			}
			out = append(out, similarity.ToFloat64(emb.Values))
		}

		e.logger.Debug("embedded batch",
			zap.Int("batch_start", start),
			zap.Int("batch_size", len(batch)),
		)
	}

	return out, nil
}
