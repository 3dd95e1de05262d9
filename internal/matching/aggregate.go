package matching

import (
	"fmt"

	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

type MatchResult struct {
	ProfessorID     string           `json:"professor_id"`
	TotalScore      int              `json:"total_score"`
	WeightedAverage float64          `json:"weighted_average"`
	IndicatorScores []IndicatorScore `json:"indicator_scores"`
	Breakdown       map[string]int   `json:"breakdown"`
	Failure         *Failure         `json:"failure,omitempty"`
}

// Failure explains why a result carries the fallback score instead of a computed one.
type Failure struct {
	Reason  string `json:"reason"`
	Timeout bool   `json:"timeout"`
}

func (r MatchResult) Fallback() bool {
	return r.Failure != nil
}

// Aggregate combines indicator scores with the fixed weights and maps the
// weighted average through the professor's aggregate curve. The average is
// taken over the total weight of all indicators, so an indicator missing from
// scores counts as 0.
func (c Calibration) Aggregate(professorID string, scores []IndicatorScore) (MatchResult, error) {
	result := MatchResult{
		ProfessorID:     professorID,
		IndicatorScores: scores,
		Breakdown:       make(map[string]int, len(scores)),
	}

	var weighted float64
	for _, s := range scores {
		ind, err := indicators.Parse(s.Indicator)
		if err != nil {
			return MatchResult{}, err
		}
		if _, dup := result.Breakdown[ind.Key]; dup {
			return MatchResult{}, fmt.Errorf("indicator %s scored twice", ind.Key)
		}
		result.Breakdown[ind.Key] = s.Score
		weighted += float64(s.Score) * ind.Weight
	}

	result.WeightedAverage = weighted / indicators.TotalWeight()
	result.TotalScore = c.For(professorID).Aggregate.Remap(result.WeightedAverage)

	return result, nil
}
