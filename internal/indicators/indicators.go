// Package indicators holds the fixed set of evaluation categories a match is
// decomposed into.
package indicators

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownIndicator is returned when a label does not name one of the five indicators.
var ErrUnknownIndicator = errors.New("unknown indicator")

// Kind selects how the applicant side of an indicator is embedded.
type Kind int

const (
	// KindKeyword compares the single interest keyword against every answer.
	KindKeyword Kind = iota
	// KindStyle compares every learning style against every answer and keeps the best one per answer.
	KindStyle
)

type Indicator struct {
	Key    string
	Label  string
	Weight float64
	Kind   Kind
}

var (
	Keyword     = Indicator{Key: "A", Label: "A. 연구 키워드 (Research Keyword)", Weight: 1.3, Kind: KindKeyword}
	Methodology = Indicator{Key: "B", Label: "B. 연구 방법론 (Research Methodology)", Weight: 1.2, Kind: KindStyle}
	Communicate = Indicator{Key: "C", Label: "C. 커뮤니케이션 (Communication)", Weight: 1.0, Kind: KindStyle}
	Academic    = Indicator{Key: "D", Label: "D. 학문 접근도 (Academic Approach)", Weight: 1.0, Kind: KindStyle}
	Preferred   = Indicator{Key: "E", Label: "E. 교수 선호도 (Preferred Student Type)", Weight: 1.0, Kind: KindStyle}
)

var all = []Indicator{Keyword, Methodology, Communicate, Academic, Preferred}

// All returns the indicators in their fixed order.
func All() []Indicator {
	out := make([]Indicator, len(all))
	copy(out, all)
	return out
}

// TotalWeight is the sum of all indicator weights.
func TotalWeight() float64 {
	var total float64
	for _, ind := range all {
		total += ind.Weight
	}
	return total
}

// Parse resolves either a bare key ("B") or a full label ("B. 연구 방법론 (...)").
func Parse(label string) (Indicator, error) {
	trimmed := strings.TrimSpace(label)
	for _, ind := range all {
		if trimmed == ind.Label || strings.EqualFold(trimmed, ind.Key) {
			return ind, nil
		}
		if strings.HasPrefix(strings.ToUpper(trimmed), ind.Key+".") {
			return ind, nil
		}
	}

	return Indicator{}, fmt.Errorf("%w: %q", ErrUnknownIndicator, label)
}
