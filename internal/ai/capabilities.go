package ai

import (
	"context"
)

// Embedder maps texts to vectors. The result has the same length and order as
// texts and every vector shares one dimensionality.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// Evaluation is the structured verdict on a chat between an applicant and a professor.
// Sub-scores and Total are on a 0..100 scale.
type Evaluation struct {
	DepthQuality  float64 `mapstructure:"depth_quality" json:"depth_quality"`
	AnswerQuality float64 `mapstructure:"answer_quality" json:"answer_quality"`
	Engagement    float64 `mapstructure:"engagement" json:"engagement"`
	Relevance     float64 `mapstructure:"relevance" json:"relevance"`
	Total         float64 `mapstructure:"total_score" json:"total_score"`
	Analysis      string  `mapstructure:"analysis" json:"analysis"`
	Raw           string  `mapstructure:"-" json:"-"`
}

// EvaluationRequest carries the transcript and the applicant context it is judged against.
type EvaluationRequest struct {
	ProfessorID     string
	InterestKeyword string
	LearningStyles  []string
	Conversation    string
}

type Evaluator interface {
	Evaluate(ctx context.Context, req EvaluationRequest) (*Evaluation, error)
}
