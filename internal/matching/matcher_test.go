package matching

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

var scenarioApplicant = Applicant{
	InterestKeyword: "디지털 전환",
	LearningStyles:  []string{"사례 기반", "협업형"},
}

type countingRecorder struct {
	mu       sync.Mutex
	runs     int
	statuses map[string]int
}

func (r *countingRecorder) RunStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs++
}

func (r *countingRecorder) ProfessorScored(status string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.statuses == nil {
		r.statuses = map[string]int{}
	}
	r.statuses[status]++
}

func newTestMatcher(t *testing.T, emb *fakeEmbedder, cat catalog.Catalog, cfg Config, log *zap.Logger) *Matcher {
	t.Helper()
	m, err := NewMatcher(Deps{Embedder: emb, Catalog: cat, Logger: log}, cfg)
	require.NoError(t, err)
	return m
}

func assertSorted(t *testing.T, results []MatchResult) {
	t.Helper()
	assert.True(t, sort.SliceIsSorted(results, func(a, b int) bool {
		return results[a].TotalScore > results[b].TotalScore
	}), "results must be sorted by total score descending")
}

func TestMatchAllEndToEndWithMissingIndicator(t *testing.T) {
	var partial []catalog.Record
	for _, rec := range fullProfessor("prof_003", "정량 분석") {
		if rec.Indicator != indicators.Methodology.Label {
			partial = append(partial, rec)
		}
	}
	cat := mustCatalog(fullProfessor("prof_001", "경영 혁신"), fullProfessor("prof_002", "데이터 과학"), partial)

	m := newTestMatcher(t, &fakeEmbedder{}, cat, Config{}, nil)
	report, err := m.MatchAll(context.Background(), scenarioApplicant, []string{"prof_001", "prof_002", "prof_003"})
	require.NoError(t, err)

	require.Equal(t, 3, report.Len())
	assert.Zero(t, report.Failures)
	assertSorted(t, report.Results)
	assert.NotEmpty(t, report.RunID)

	res := report.FindByID("prof_003")
	require.NotNil(t, res)
	assert.Equal(t, 0, res.Breakdown["B"])
	for _, key := range []string{"A", "C", "D", "E"} {
		assert.GreaterOrEqual(t, res.Breakdown[key], 60, "indicator %s must be computed independently", key)
	}
	for _, r := range report.Results {
		assert.GreaterOrEqual(t, r.TotalScore, MinTotalScore)
		assert.LessOrEqual(t, r.TotalScore, MaxTotalScore)
		assert.Len(t, r.IndicatorScores, 5)
	}
}

func TestMatchAllIsolatesFailingProfessor(t *testing.T) {
	ids := []string{"prof_001", "prof_002", "prof_003", "prof_004", "prof_005"}
	var records [][]catalog.Record
	for _, id := range ids {
		flavor := "연구 " + id
		if id == "prof_004" {
			flavor = "BROKEN"
		}
		records = append(records, fullProfessor(id, flavor))
	}

	core, logs := observer.New(zapcore.WarnLevel)
	recorder := &countingRecorder{}
	emb := &fakeEmbedder{failOn: "BROKEN"}

	m, err := NewMatcher(Deps{Embedder: emb, Catalog: mustCatalog(records...), Logger: zap.New(core), Recorder: recorder}, Config{FallbackScore: 70})
	require.NoError(t, err)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, ids)
	require.NoError(t, err)

	require.Len(t, report.Results, 5)
	assert.Equal(t, 1, report.Failures)
	assertSorted(t, report.Results)

	failed := report.FindByID("prof_004")
	require.NotNil(t, failed)
	assert.True(t, failed.Fallback())
	assert.Equal(t, 70, failed.TotalScore)
	assert.Empty(t, failed.Breakdown)
	assert.Contains(t, failed.Failure.Reason, errEmbeddingDown.Error())
	assert.False(t, failed.Failure.Timeout)

	for _, r := range report.Results {
		if r.ProfessorID != "prof_004" {
			assert.False(t, r.Fallback(), "%s should have a real score", r.ProfessorID)
			assert.Len(t, r.Breakdown, 5)
		}
	}

	entries := logs.FilterMessage("professor scoring failed, using fallback score").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "prof_004", entries[0].ContextMap()["professor_id"])
	assert.Equal(t, report.RunID, entries[0].ContextMap()["run_id"])

	assert.Equal(t, 1, recorder.runs)
	assert.Equal(t, map[string]int{"ok": 4, "fallback": 1}, recorder.statuses)
}

func TestMatchAllTimesOutStalledTask(t *testing.T) {
	emb := &fakeEmbedder{stallOn: "STALL", release: make(chan struct{})}
	t.Cleanup(func() { close(emb.release) })

	cat := mustCatalog(fullProfessor("fast", "빠른 응답"), fullProfessor("slow", "STALL"))
	m := newTestMatcher(t, emb, cat, Config{TaskTimeout: 50 * time.Millisecond}, zap.NewNop())

	started := time.Now()
	report, err := m.MatchAll(context.Background(), scenarioApplicant, nil)
	require.NoError(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)

	require.Len(t, report.Results, 2)
	slow := report.FindByID("slow")
	require.NotNil(t, slow)
	assert.True(t, slow.Fallback())
	assert.True(t, slow.Failure.Timeout)
	assert.False(t, report.FindByID("fast").Fallback())
}

func TestMatchAllListsCatalogWhenIDsOmitted(t *testing.T) {
	cat := mustCatalog(fullProfessor("b", "x"), fullProfessor("a", "y"))
	m := newTestMatcher(t, &fakeEmbedder{}, cat, Config{Concurrency: 1}, nil)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Len())
}

func TestMatchAllUnknownProfessorScoresZeroIndicators(t *testing.T) {
	m := newTestMatcher(t, &fakeEmbedder{}, mustCatalog(fullProfessor("a", "x")), Config{}, nil)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, []string{"ghost"})
	require.NoError(t, err)

	res := report.Results[0]
	assert.False(t, res.Fallback())
	assert.Equal(t, MinTotalScore, res.TotalScore)
	for _, score := range res.Breakdown {
		assert.Zero(t, score)
	}
}

func TestMatchAllStylePrepassFailureDoesNotAbort(t *testing.T) {
	emb := &fakeEmbedder{failOn: "협업형"}
	m := newTestMatcher(t, emb, mustCatalog(fullProfessor("a", "x")), Config{}, nil)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, []string{"a"})
	require.NoError(t, err)
	require.Len(t, report.Results, 1)
	// Every batch in the task carries the failing text, so the professor falls back.
	assert.True(t, report.Results[0].Fallback())
}

func TestMatchAllErrors(t *testing.T) {
	cat := mustCatalog(fullProfessor("a", "x"))

	m := newTestMatcher(t, &fakeEmbedder{}, cat, Config{}, nil)
	_, err := m.MatchAll(context.Background(), Applicant{}, nil)
	assert.ErrorIs(t, err, ErrInvalidApplicant)

	_, err = m.MatchAll(context.Background(), scenarioApplicant, []string{})
	assert.ErrorIs(t, err, ErrNoProfessors)

	listErr := errors.New("catalog offline")
	m = newTestMatcher(t, &fakeEmbedder{}, failingCatalog{Catalog: cat, err: listErr}, Config{}, nil)
	_, err = m.MatchAll(context.Background(), scenarioApplicant, nil)
	assert.ErrorIs(t, err, listErr)
}

func TestNewMatcherValidatesConfig(t *testing.T) {
	cat := mustCatalog(fullProfessor("a", "x"))

	_, err := NewMatcher(Deps{Catalog: cat}, Config{})
	assert.Error(t, err)

	_, err = NewMatcher(Deps{Embedder: &fakeEmbedder{}, Catalog: cat}, Config{FallbackScore: 50})
	assert.Error(t, err)

	bad := DefaultCalibration()
	bad.Default.Indicator.Exponent = 0.5
	_, err = NewMatcher(Deps{Embedder: &fakeEmbedder{}, Catalog: cat}, Config{Calibration: bad})
	assert.ErrorIs(t, err, ErrInvalidCalibration)
}

func TestReportDumpAndSummary(t *testing.T) {
	ids := []string{"a", "b"}
	emb := &fakeEmbedder{failOn: "BROKEN"}
	m := newTestMatcher(t, emb, mustCatalog(fullProfessor("a", "x"), fullProfessor("b", "BROKEN")), Config{}, nil)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, ids)
	require.NoError(t, err)

	lines := report.Summary()
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], "A=")
	assert.Contains(t, lines[1], "fallback")

	name, err := report.DumpToTmpFile()
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(name) })

	data, err := os.ReadFile(name)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"run_id"`)
	assert.Contains(t, string(data), `"failure"`)
}

func TestMatchAllBoundsConcurrencyAndEmbedsStylesOnce(t *testing.T) {
	var ids []string
	var records [][]catalog.Record
	for _, id := range []string{"p1", "p2", "p3", "p4", "p5", "p6", "p7"} {
		ids = append(ids, id)
		records = append(records, fullProfessor(id, "연구 "+id))
	}

	emb := &fakeEmbedder{delay: 5 * time.Millisecond}
	m := newTestMatcher(t, emb, mustCatalog(records...), Config{Concurrency: 2}, nil)

	report, err := m.MatchAll(context.Background(), scenarioApplicant, ids)
	require.NoError(t, err)
	require.Equal(t, len(ids), report.Len())
	assert.Zero(t, report.Failures)

	assert.LessOrEqual(t, emb.peakInFlight(), 2)

	for _, style := range scenarioApplicant.LearningStyles {
		batches := 0
		for _, batch := range emb.calls() {
			for _, text := range batch {
				if text == style {
					batches++
					break
				}
			}
		}
		assert.Equal(t, 1, batches, "style %q must be embedded once per run", style)
	}
}
