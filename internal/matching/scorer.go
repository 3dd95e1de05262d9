package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
	"github.com/Lauiee/AdvisorAI-Api/internal/similarity"
	"github.com/Lauiee/AdvisorAI-Api/internal/utils"
)

const answerPreviewRunes = 100

// ErrDimensionMismatch is returned when embeddings compared with each other differ in length.
var ErrDimensionMismatch = errors.New("embedding dimensions differ")

// QADetail records how one answer compared against the applicant signal.
type QADetail struct {
	ChunkID       string  `json:"chunk_id"`
	Question      string  `json:"question"`
	AnswerPreview string  `json:"answer_preview"`
	Similarity    float64 `json:"similarity"`
	MatchedStyle  string  `json:"matched_style,omitempty"`
}

type IndicatorScore struct {
	Indicator string `json:"indicator"`
	Label     string `json:"label"`
	// Score is 0 when no answer was compared, otherwise within the profile's indicator range.
	Score         int        `json:"score"`
	QACount       int        `json:"qa_count"`
	RawSimilarity float64    `json:"raw_similarity"`
	Details       []QADetail `json:"details"`
}

// Scorer computes indicator scores for one professor at a time. It keeps no
// per-call state and is safe for concurrent use.
type Scorer struct {
	embedder    ai.Embedder
	catalog     catalog.Catalog
	calibration Calibration
}

func NewScorer(embedder ai.Embedder, cat catalog.Catalog, calibration Calibration) *Scorer {
	return &Scorer{embedder: embedder, catalog: cat, calibration: calibration}
}

// ScoreIndicator scores one indicator. Styles missing from the table are
// embedded in the same call as the answers.
func (s *Scorer) ScoreIndicator(ctx context.Context, applicant Applicant, professorID string, ind indicators.Indicator, styles *StyleTable) (IndicatorScore, error) {
	result := IndicatorScore{Indicator: ind.Key, Label: ind.Label, Details: []QADetail{}}

	entries, err := s.catalog.QAEntries(ctx, professorID, ind)
	if err != nil {
		return result, err
	}
	entries = usableEntries(entries)
	if len(entries) == 0 {
		return result, nil
	}

	curve := s.calibration.For(professorID).Indicator

	switch ind.Kind {
	case indicators.KindKeyword:
		err = s.scoreKeyword(ctx, applicant.InterestKeyword, entries, &result)
	default:
		result.QACount = len(entries)
		if len(applicant.LearningStyles) == 0 {
			return result, nil
		}
		err = s.scoreStyles(ctx, applicant.LearningStyles, entries, styles, &result)
	}
	if err != nil {
		return result, fmt.Errorf("indicator %s: %w", ind.Key, err)
	}

	result.Score = curve.Remap(result.RawSimilarity)
	return result, nil
}

func (s *Scorer) scoreKeyword(ctx context.Context, keyword string, entries []catalog.QAEntry, result *IndicatorScore) error {
	texts := make([]string, 0, len(entries)+1)
	texts = append(texts, keyword)
	for _, e := range entries {
		texts = append(texts, e.Answer)
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}

	keywordVec := vectors[0]
	var sum float64
	for i, e := range entries {
		sim := similarity.Cosine(keywordVec, vectors[i+1])
		sum += sim
		result.Details = append(result.Details, detail(e, sim, ""))
	}

	result.QACount = len(entries)
	result.RawSimilarity = sum / float64(len(entries))
	return nil
}

func (s *Scorer) scoreStyles(ctx context.Context, styles []string, entries []catalog.QAEntry, table *StyleTable, result *IndicatorScore) error {
	var missing []string
	for _, style := range styles {
		if _, ok := table.Lookup(style); !ok {
			missing = append(missing, style)
		}
	}

	texts := make([]string, 0, len(missing)+len(entries))
	texts = append(texts, missing...)
	for _, e := range entries {
		texts = append(texts, e.Answer)
	}

	vectors, err := s.embed(ctx, texts)
	if err != nil {
		return err
	}

	local := make(map[string][]float64, len(missing))
	for i, style := range missing {
		local[style] = vectors[i]
	}
	styleVec := func(style string) []float64 {
		if v, ok := table.Lookup(style); ok {
			return v
		}
		return local[style]
	}

	dim := len(vectors[len(vectors)-1])
	for _, style := range styles {
		if err := sameDimension(dim, [][]float64{styleVec(style)}); err != nil {
			return fmt.Errorf("style %q: %w", style, err)
		}
	}

	var sum float64
	for i, e := range entries {
		answerVec := vectors[len(missing)+i]
		best, bestStyle := math.Inf(-1), ""
		for _, style := range styles {
			if sim := similarity.Cosine(styleVec(style), answerVec); sim > best {
				best, bestStyle = sim, style
			}
		}
		sum += best
		result.Details = append(result.Details, detail(e, best, bestStyle))
	}

	result.RawSimilarity = sum / float64(len(entries))
	return nil
}

func (s *Scorer) embed(ctx context.Context, texts []string) ([][]float64, error) {
	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vectors), len(texts))
	}
	if len(vectors) > 0 {
		if err := sameDimension(len(vectors[0]), vectors); err != nil {
			return nil, err
		}
	}
	return vectors, nil
}

// sameDimension rejects empty vectors and vectors whose length differs from dim.
func sameDimension(dim int, vectors [][]float64) error {
	for i, v := range vectors {
		if len(v) == 0 || len(v) != dim {
			return fmt.Errorf("%w: vector %d has %d dimensions, want %d", ErrDimensionMismatch, i, len(v), dim)
		}
	}
	return nil
}

// ScoreProfessor scores all five indicators and aggregates them.
func (s *Scorer) ScoreProfessor(ctx context.Context, applicant Applicant, professorID string, styles *StyleTable) (MatchResult, error) {
	scores := make([]IndicatorScore, 0, len(indicators.All()))
	for _, ind := range indicators.All() {
		score, err := s.ScoreIndicator(ctx, applicant, professorID, ind, styles)
		if err != nil {
			return MatchResult{}, err
		}
		scores = append(scores, score)
	}

	return s.calibration.Aggregate(professorID, scores)
}

func usableEntries(entries []catalog.QAEntry) []catalog.QAEntry {
	out := entries[:0:0]
	for _, e := range entries {
		if strings.TrimSpace(e.Answer) != "" {
			out = append(out, e)
		}
	}
	return out
}

func detail(e catalog.QAEntry, sim float64, style string) QADetail {
	return QADetail{
		ChunkID:       e.ChunkID,
		Question:      e.Question,
		AnswerPreview: utils.Preview(e.Answer, answerPreviewRunes),
		Similarity:    math.Round(sim*1000) / 1000,
		MatchedStyle:  style,
	}
}
