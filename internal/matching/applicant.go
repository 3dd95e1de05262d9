package matching

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ErrInvalidApplicant wraps validation failures of the applicant signal.
var ErrInvalidApplicant = errors.New("invalid applicant")

var validate = validator.New(validator.WithRequiredStructEnabled())

// Applicant is the signal an applicant provides: one interest keyword and
// zero or more learning styles.
type Applicant struct {
	InterestKeyword string   `json:"interest_keyword" validate:"required"`
	LearningStyles  []string `json:"learning_styles" validate:"dive,required"`
}

// Normalize trims the keyword and styles and drops duplicate styles, keeping first occurrences.
func (a Applicant) Normalize() Applicant {
	out := Applicant{InterestKeyword: strings.TrimSpace(a.InterestKeyword)}

	seen := make(map[string]struct{}, len(a.LearningStyles))
	for _, style := range a.LearningStyles {
		style = strings.TrimSpace(style)
		if _, ok := seen[style]; ok {
			continue
		}
		seen[style] = struct{}{}
		out.LearningStyles = append(out.LearningStyles, style)
	}

	return out
}

func (a Applicant) Validate() error {
	if err := validate.Struct(a); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidApplicant, err)
	}
	return nil
}
