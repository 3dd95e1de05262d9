package gemini

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"go.uber.org/zap"
	"google.golang.org/genai"
)

type fakeModels struct {
	batches [][]string
	errs    []error
	short   bool
}

func (f *fakeModels) EmbedContent(_ context.Context, _ string, contents []*genai.Content, _ *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error) {
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return nil, err
		}
	}

	texts := make([]string, len(contents))
	resp := &genai.EmbedContentResponse{}
	for i, c := range contents {
		texts[i] = c.Parts[0].Text
		resp.Embeddings = append(resp.Embeddings, &genai.ContentEmbedding{
			Values: []float32{float32(len(texts[i])), 1},
		})
	}
	f.batches = append(f.batches, texts)

	if f.short {
		resp.Embeddings = resp.Embeddings[:len(resp.Embeddings)-1]
	}
	return resp, nil
}

func TestEmbedderBatchesAndKeepsOrder(t *testing.T) {
	models := &fakeModels{}
	e := &Embedder{models: models, model: "m", batchSize: 2, maxRetries: 1, logger: zap.NewNop()}

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc", "dddd", "eeeee"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(models.batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(models.batches))
	}
	if len(vectors) != 5 {
		t.Fatalf("expected 5 vectors, got %d", len(vectors))
	}
	for i, v := range vectors {
		if v[0] != float64(i+1) {
			t.Fatalf("vector %d out of order: %v", i, v)
		}
	}
}

func TestEmbedderRetriesTransientFailure(t *testing.T) {
	stubSleep(t)

	models := &fakeModels{errs: []error{genai.APIError{Code: http.StatusServiceUnavailable}}}
	e := &Embedder{models: models, model: "m", batchSize: 10, maxRetries: 2, logger: zap.NewNop()}

	if _, err := e.Embed(context.Background(), []string{"x"}); err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
}

func TestEmbedderErrors(t *testing.T) {
	stubSleep(t)

	models := &fakeModels{errs: []error{errors.New("denied")}}
	e := &Embedder{models: models, model: "m", batchSize: 10, maxRetries: 3, logger: zap.NewNop()}
	if _, err := e.Embed(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected permanent error to surface")
	}

	e.models = &fakeModels{short: true}
	if _, err := e.Embed(context.Background(), []string{"x", "y"}); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestEmbedderEmptyInput(t *testing.T) {
	models := &fakeModels{}
	e := &Embedder{models: models, model: "m", batchSize: 10, maxRetries: 1, logger: zap.NewNop()}

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil || len(vectors) != 0 || len(models.batches) != 0 {
		t.Fatalf("expected no call for empty input, got %v %v", vectors, err)
	}
}
