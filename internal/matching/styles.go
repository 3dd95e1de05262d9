package matching

import (
	"context"
	"fmt"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
)

// StyleTable holds learning-style embeddings computed once per run. It is
// never written after construction, so tasks read it without locking.
type StyleTable struct {
	vectors map[string][]float64
}

// PrecomputeStyles embeds all styles in a single call.
func PrecomputeStyles(ctx context.Context, embedder ai.Embedder, styles []string) (*StyleTable, error) {
	table := &StyleTable{vectors: make(map[string][]float64, len(styles))}
	if len(styles) == 0 {
		return table, nil
	}

	vectors, err := embedder.Embed(ctx, styles)
	if err != nil {
		return nil, fmt.Errorf("embedding learning styles: %w", err)
	}
	if len(vectors) != len(styles) {
		return nil, fmt.Errorf("embedding learning styles: got %d vectors for %d styles", len(vectors), len(styles))
	}

	for i, style := range styles {
		table.vectors[style] = vectors[i]
	}
	return table, nil
}

func (t *StyleTable) Lookup(style string) ([]float64, bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.vectors[style]
	return v, ok
}

func (t *StyleTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.vectors)
}
