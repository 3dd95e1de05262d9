package matching

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidCalibration is returned when a curve would break the score range or monotonicity.
var ErrInvalidCalibration = errors.New("invalid calibration")

const (
	// MinTotalScore and MaxTotalScore bound every aggregated total.
	MinTotalScore = 70
	MaxTotalScore = 98
)

// IndicatorCurve maps a mean cosine similarity onto an indicator score.
// Below Low the score is Floor, above High it is Ceiling, and in between it
// follows Floor + n^Exponent*(Ceiling-Floor) with n the position inside [Low, High],
// rounded to the nearest integer.
type IndicatorCurve struct {
	Low      float64 `mapstructure:"low" json:"low"`
	High     float64 `mapstructure:"high" json:"high"`
	Floor    int     `mapstructure:"floor" json:"floor"`
	Ceiling  int     `mapstructure:"ceiling" json:"ceiling"`
	Exponent float64 `mapstructure:"exponent" json:"exponent"`
}

func (c IndicatorCurve) isZero() bool {
	return c == IndicatorCurve{}
}

func (c IndicatorCurve) Validate() error {
	switch {
	case c.Low >= c.High:
		return fmt.Errorf("%w: indicator low %.3f must be below high %.3f", ErrInvalidCalibration, c.Low, c.High)
	case c.Floor < 0 || c.Ceiling > 100 || c.Floor > c.Ceiling:
		return fmt.Errorf("%w: indicator range [%d, %d] must lie within [0, 100]", ErrInvalidCalibration, c.Floor, c.Ceiling)
	case c.Exponent < 1:
		return fmt.Errorf("%w: indicator exponent %.2f must be at least 1", ErrInvalidCalibration, c.Exponent)
	}
	return nil
}

func (c IndicatorCurve) Remap(raw float64) int {
	if math.IsNaN(raw) || raw <= c.Low {
		return c.Floor
	}
	if raw >= c.High {
		return c.Ceiling
	}

	n := (raw - c.Low) / (c.High - c.Low)
	score := float64(c.Floor) + math.Pow(n, c.Exponent)*float64(c.Ceiling-c.Floor)
	return min(max(int(math.Round(score)), c.Floor), c.Ceiling)
}

// Breakpoint pins a weighted average to a total score.
type Breakpoint struct {
	Average float64 `mapstructure:"average" json:"average"`
	Score   float64 `mapstructure:"score" json:"score"`
}

// AggregateCurve interpolates linearly between breakpoints and holds the end
// values flat outside them. Results are clamped to [MinTotalScore, MaxTotalScore].
type AggregateCurve struct {
	Breakpoints []Breakpoint `mapstructure:"breakpoints" json:"breakpoints"`
}

func (c AggregateCurve) Validate() error {
	if len(c.Breakpoints) < 2 {
		return fmt.Errorf("%w: aggregate curve needs at least 2 breakpoints", ErrInvalidCalibration)
	}

	for i, bp := range c.Breakpoints {
		if bp.Score < MinTotalScore || bp.Score > MaxTotalScore {
			return fmt.Errorf("%w: breakpoint %d score %.1f outside [%d, %d]", ErrInvalidCalibration, i, bp.Score, MinTotalScore, MaxTotalScore)
		}
		if i == 0 {
			continue
		}
		prev := c.Breakpoints[i-1]
		if bp.Average <= prev.Average {
			return fmt.Errorf("%w: breakpoint averages must increase (%.1f after %.1f)", ErrInvalidCalibration, bp.Average, prev.Average)
		}
		if bp.Score < prev.Score {
			return fmt.Errorf("%w: breakpoint scores must not decrease (%.1f after %.1f)", ErrInvalidCalibration, bp.Score, prev.Score)
		}
	}
	return nil
}

func (c AggregateCurve) Remap(avg float64) int {
	points := c.Breakpoints
	if len(points) == 0 {
		return MinTotalScore
	}

	var score float64
	switch {
	case math.IsNaN(avg) || avg <= points[0].Average:
		score = points[0].Score
	case avg >= points[len(points)-1].Average:
		score = points[len(points)-1].Score
	default:
		for i := 1; i < len(points); i++ {
			lo, hi := points[i-1], points[i]
			if avg <= hi.Average {
				t := (avg - lo.Average) / (hi.Average - lo.Average)
				score = lo.Score + t*(hi.Score-lo.Score)
				break
			}
		}
	}

	return min(max(int(math.Round(score)), MinTotalScore), MaxTotalScore)
}

// Profile is the pair of curves applied to one professor.
type Profile struct {
	Indicator IndicatorCurve `mapstructure:"indicator" json:"indicator"`
	Aggregate AggregateCurve `mapstructure:"aggregate" json:"aggregate"`
}

// Calibration holds the default profile plus per-professor overrides. An
// override may set only one of its curves; the other comes from Default.
type Calibration struct {
	Default  Profile            `mapstructure:"default" json:"default"`
	Profiles map[string]Profile `mapstructure:"profiles" json:"profiles,omitempty"`
}

// DefaultCalibration maps the empirical 0.15..0.40 similarity band onto 60..90
// with a squared curve, and weighted averages of 60..90 onto 70..98.
func DefaultCalibration() Calibration {
	return Calibration{
		Default: Profile{
			Indicator: IndicatorCurve{Low: 0.15, High: 0.40, Floor: 60, Ceiling: 90, Exponent: 2},
			Aggregate: AggregateCurve{Breakpoints: []Breakpoint{
				{Average: 60, Score: 70},
				{Average: 70, Score: 76},
				{Average: 80, Score: 86},
				{Average: 90, Score: 98},
			}},
		},
	}
}

func (c Calibration) For(professorID string) Profile {
	profile, ok := c.Profiles[professorID]
	if !ok {
		return c.Default
	}
	if profile.Indicator.isZero() {
		profile.Indicator = c.Default.Indicator
	}
	if len(profile.Aggregate.Breakpoints) == 0 {
		profile.Aggregate = c.Default.Aggregate
	}
	return profile
}

func (c Calibration) Validate() error {
	if err := c.Default.Indicator.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}
	if err := c.Default.Aggregate.Validate(); err != nil {
		return fmt.Errorf("default: %w", err)
	}

	for id := range c.Profiles {
		p := c.For(id)
		if err := p.Indicator.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", id, err)
		}
		if err := p.Aggregate.Validate(); err != nil {
			return fmt.Errorf("profile %s: %w", id, err)
		}
	}
	return nil
}
