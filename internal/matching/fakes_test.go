package matching

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

var errEmbeddingDown = errors.New("embedding service unavailable")

// fakeEmbedder returns fixed vectors for known texts and a rune histogram otherwise.
type fakeEmbedder struct {
	mu      sync.Mutex
	fixed   map[string][]float64
	failOn  string
	stallOn string
	release chan struct{}
	delay   time.Duration
	batches [][]string

	inFlight int
	peak     int
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float64, error) {
	f.mu.Lock()
	f.batches = append(f.batches, append([]string(nil), texts...))
	f.inFlight++
	f.peak = max(f.peak, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	for _, text := range texts {
		if f.failOn != "" && strings.Contains(text, f.failOn) {
			return nil, errEmbeddingDown
		}
		if f.stallOn != "" && strings.Contains(text, f.stallOn) {
			<-f.release
			return nil, errEmbeddingDown
		}
	}

	out := make([][]float64, len(texts))
	for i, text := range texts {
		if v, ok := f.fixed[text]; ok {
			out[i] = v
			continue
		}
		out[i] = histogram(text)
	}
	return out, nil
}

func (f *fakeEmbedder) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.batches...)
}

func (f *fakeEmbedder) peakInFlight() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.peak
}

func histogram(text string) []float64 {
	v := make([]float64, 16)
	for i, r := range []rune(text) {
		v[(int(r)+i)%16]++
	}
	return v
}

type failingCatalog struct {
	catalog.Catalog
	err error
}

func (f failingCatalog) ProfessorIDs(context.Context) ([]string, error) {
	return nil, f.err
}

func qa(professor string, ind indicators.Indicator, chunk, answer string) catalog.Record {
	return catalog.Record{
		ProfessorID: professor,
		ChunkID:     chunk,
		Type:        catalog.RecordTypeQA,
		Indicator:   ind.Label,
		Question:    "question " + chunk,
		Answer:      answer,
	}
}

// fullProfessor has two answers for every indicator.
func fullProfessor(id, flavor string) []catalog.Record {
	var records []catalog.Record
	for _, ind := range indicators.All() {
		records = append(records,
			qa(id, ind, id+"-"+ind.Key+"1", flavor+" 디지털 전환 사례 기반 연구 "+ind.Key),
			qa(id, ind, id+"-"+ind.Key+"2", flavor+" 협업형 프로젝트 중심 지도 "+ind.Key),
		)
	}
	return records
}

func mustCatalog(records ...[]catalog.Record) *catalog.Memory {
	var all []catalog.Record
	for _, r := range records {
		all = append(all, r...)
	}
	cat, err := catalog.NewMemory(all)
	if err != nil {
		panic(err)
	}
	return cat
}
