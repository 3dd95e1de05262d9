package matching

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

func TestScoreIndicatorKeyword(t *testing.T) {
	emb := &fakeEmbedder{fixed: map[string][]float64{
		"디지털 전환": {1, 0},
		"same":   {1, 0},
		"other":  {0, 1},
	}}
	cat := mustCatalog([]catalog.Record{
		qa("p1", indicators.Keyword, "c1", "same"),
		qa("p1", indicators.Keyword, "c2", "other"),
	})
	scorer := NewScorer(emb, cat, DefaultCalibration())

	score, err := scorer.ScoreIndicator(context.Background(), Applicant{InterestKeyword: "디지털 전환"}, "p1", indicators.Keyword, nil)
	require.NoError(t, err)

	assert.Equal(t, "A", score.Indicator)
	assert.Equal(t, 2, score.QACount)
	assert.InDelta(t, 0.5, score.RawSimilarity, 1e-9)
	assert.Equal(t, 90, score.Score)
	require.Len(t, score.Details, 2)
	assert.Equal(t, 1.0, score.Details[0].Similarity)
	assert.Equal(t, 0.0, score.Details[1].Similarity)
	assert.Empty(t, score.Details[0].MatchedStyle)

	calls := emb.calls()
	require.Len(t, calls, 1, "keyword and answers must be embedded in one call")
	assert.Equal(t, []string{"디지털 전환", "same", "other"}, calls[0])
}

func TestScoreIndicatorKeywordMidBand(t *testing.T) {
	y := math.Sqrt(1 - 0.3*0.3)
	emb := &fakeEmbedder{fixed: map[string][]float64{
		"k":   {1, 0},
		"mid": {0.3, y},
	}}
	cat := mustCatalog([]catalog.Record{qa("p1", indicators.Keyword, "c1", "mid")})

	score, err := NewScorer(emb, cat, DefaultCalibration()).
		ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k"}, "p1", indicators.Keyword, nil)
	require.NoError(t, err)
	assert.Equal(t, 71, score.Score)
	assert.Equal(t, 0.3, score.Details[0].Similarity)
}

func TestScoreIndicatorStylesUsesBestStyle(t *testing.T) {
	emb := &fakeEmbedder{fixed: map[string][]float64{
		"사례 기반": {1, 0},
		"협업형":   {0, 1},
		"team":  {0, 1},
		"both":  {1, 1},
	}}
	cat := mustCatalog([]catalog.Record{
		qa("p1", indicators.Methodology, "c1", "team"),
		qa("p1", indicators.Methodology, "c2", "both"),
	})
	scorer := NewScorer(emb, cat, DefaultCalibration())
	applicant := Applicant{InterestKeyword: "k", LearningStyles: []string{"사례 기반", "협업형"}}

	table, err := PrecomputeStyles(context.Background(), emb, applicant.LearningStyles)
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
	assert.Zero(t, (*StyleTable)(nil).Len())

	score, err := scorer.ScoreIndicator(context.Background(), applicant, "p1", indicators.Methodology, table)
	require.NoError(t, err)

	assert.Equal(t, 2, score.QACount)
	assert.Equal(t, "협업형", score.Details[0].MatchedStyle)
	assert.Equal(t, 1.0, score.Details[0].Similarity)
	// A tie keeps the first style.
	assert.Equal(t, "사례 기반", score.Details[1].MatchedStyle)
	assert.Equal(t, 0.707, score.Details[1].Similarity)
	assert.Equal(t, 90, score.Score)

	calls := emb.calls()
	require.Len(t, calls, 2)
	assert.Equal(t, []string{"team", "both"}, calls[1], "cached styles must not be embedded again")
}

func TestScoreIndicatorStylesWithoutTable(t *testing.T) {
	emb := &fakeEmbedder{}
	cat := mustCatalog([]catalog.Record{qa("p1", indicators.Communicate, "c1", "answer")})

	score, err := NewScorer(emb, cat, DefaultCalibration()).ScoreIndicator(context.Background(),
		Applicant{InterestKeyword: "k", LearningStyles: []string{"s1", "s2"}}, "p1", indicators.Communicate, &StyleTable{})
	require.NoError(t, err)
	assert.Equal(t, 1, score.QACount)

	calls := emb.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, []string{"s1", "s2", "answer"}, calls[0])
}

func TestScoreIndicatorPartialData(t *testing.T) {
	emb := &fakeEmbedder{}
	cat := mustCatalog([]catalog.Record{
		qa("p1", indicators.Academic, "c1", "answer one"),
		qa("p1", indicators.Academic, "c2", "answer two"),
		qa("p1", indicators.Preferred, "c3", "   "),
	})
	scorer := NewScorer(emb, cat, DefaultCalibration())
	ctx := context.Background()

	noEntries, err := scorer.ScoreIndicator(ctx, Applicant{InterestKeyword: "k"}, "p1", indicators.Keyword, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, noEntries.Score)
	assert.Equal(t, 0, noEntries.QACount)

	noStyles, err := scorer.ScoreIndicator(ctx, Applicant{InterestKeyword: "k"}, "p1", indicators.Academic, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, noStyles.Score)
	assert.Equal(t, 2, noStyles.QACount)

	blank, err := scorer.ScoreIndicator(ctx, Applicant{InterestKeyword: "k", LearningStyles: []string{"s"}}, "p1", indicators.Preferred, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, blank.QACount)

	assert.Empty(t, emb.calls(), "partial data must not reach the embedder")
}

func TestScoreIndicatorPropagatesEmbeddingFailure(t *testing.T) {
	emb := &fakeEmbedder{failOn: "answer"}
	cat := mustCatalog([]catalog.Record{qa("p1", indicators.Keyword, "c1", "answer")})

	_, err := NewScorer(emb, cat, DefaultCalibration()).
		ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k"}, "p1", indicators.Keyword, nil)
	assert.ErrorIs(t, err, errEmbeddingDown)
}

func TestScoreIndicatorRejectsMixedDimensions(t *testing.T) {
	emb := &fakeEmbedder{fixed: map[string][]float64{
		"k":     {1, 0},
		"short": {1, 0},
		"long":  {1, 0, 0},
	}}
	cat := mustCatalog([]catalog.Record{
		qa("p1", indicators.Keyword, "c1", "short"),
		qa("p1", indicators.Keyword, "c2", "long"),
		qa("p1", indicators.Communicate, "c3", "short"),
	})
	scorer := NewScorer(emb, cat, DefaultCalibration())

	_, err := scorer.ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k"}, "p1", indicators.Keyword, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	// A style table from a different model must not be compared silently.
	table := &StyleTable{vectors: map[string][]float64{"s": {1, 0, 0}}}
	_, err = scorer.ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k", LearningStyles: []string{"s"}}, "p1", indicators.Communicate, table)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestScoreIndicatorUsesProfessorProfile(t *testing.T) {
	emb := &fakeEmbedder{fixed: map[string][]float64{"k": {1, 0}, "far": {0, 1}}}
	cat := mustCatalog([]catalog.Record{
		qa("p1", indicators.Keyword, "c1", "far"),
		qa("p2", indicators.Keyword, "c2", "far"),
	})
	cal := DefaultCalibration()
	cal.Profiles = map[string]Profile{"p2": {Indicator: IndicatorCurve{Low: 0.15, High: 0.40, Floor: 80, Ceiling: 95, Exponent: 1}}}
	scorer := NewScorer(emb, cat, cal)

	s1, err := scorer.ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k"}, "p1", indicators.Keyword, nil)
	require.NoError(t, err)
	s2, err := scorer.ScoreIndicator(context.Background(), Applicant{InterestKeyword: "k"}, "p2", indicators.Keyword, nil)
	require.NoError(t, err)

	assert.Equal(t, 60, s1.Score)
	assert.Equal(t, 80, s2.Score)
}

func TestApplicantValidation(t *testing.T) {
	assert.NoError(t, Applicant{InterestKeyword: "AI"}.Validate())
	assert.ErrorIs(t, Applicant{}.Validate(), ErrInvalidApplicant)
	assert.ErrorIs(t, Applicant{InterestKeyword: "AI", LearningStyles: []string{""}}.Validate(), ErrInvalidApplicant)

	n := Applicant{InterestKeyword: " AI ", LearningStyles: []string{" a", "a", "b "}}.Normalize()
	assert.Equal(t, Applicant{InterestKeyword: "AI", LearningStyles: []string{"a", "b"}}, n)
}
