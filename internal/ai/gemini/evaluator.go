package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	_ "embed"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
	"github.com/Lauiee/AdvisorAI-Api/internal/utils"
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
}

//go:embed prompts/evaluate_chat.md
var evaluatePrompt string

const (
	defaultMaxLogLength = 200
	evaluatorSystem     = "You evaluate academic advising conversations and answer strictly in JSON."
)

var errEmptyTranscript = errors.New("conversation is empty")

// Evaluator scores a chat transcript with a Gemini model.
type Evaluator struct {
	generator contentGenerator
	logger    *zap.Logger
	maxLogLen int
}

func NewEvaluator(generator contentGenerator, maxLogLength int, logger *zap.Logger) *Evaluator {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Evaluator{
		generator: generator,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (e *Evaluator) Evaluate(ctx context.Context, req ai.EvaluationRequest) (*ai.Evaluation, error) {
	if strings.TrimSpace(req.Conversation) == "" {
		return nil, errEmptyTranscript
	}

	prompt := buildPrompt(req)

	e.logger.Debug("gemini evaluate request",
		zap.String("professor_id", req.ProfessorID),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, e.maxLogLen)),
	)

	raw, err := e.generator.GenerateContent(ctx, evaluatorSystem, prompt)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("gemini evaluate response",
		zap.String("professor_id", req.ProfessorID),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, e.maxLogLen)),
	)

	evaluation, err := parseEvaluation(raw)
	if err != nil {
		return nil, err
	}
	evaluation.Raw = raw

	return evaluation, nil
}

func buildPrompt(req ai.EvaluationRequest) string {
	template := evaluatePrompt
	if strings.TrimSpace(template) == "" {
		template = "Conversation:\n{{TRANSCRIPT}}\n\nJSON Response:"
	}

	styles := strings.Join(req.LearningStyles, ", ")
	if styles == "" {
		styles = "none"
	}

	replacer := strings.NewReplacer(
		"{{PROFESSOR_ID}}", req.ProfessorID,
		"{{KEYWORD}}", req.InterestKeyword,
		"{{STYLES}}", styles,
		"{{TRANSCRIPT}}", req.Conversation,
	)
	return replacer.Replace(template)
}

func parseEvaluation(raw string) (*ai.Evaluation, error) {
	cleaned := extractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	if _, ok := data["total_score"]; !ok {
		return nil, errors.New("parse gemini response: total_score is missing")
	}

	var evaluation ai.Evaluation
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &evaluation,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(data); err != nil {
		return nil, fmt.Errorf("decode gemini response: %w", err)
	}

	evaluation.DepthQuality = clampScore(evaluation.DepthQuality)
	evaluation.AnswerQuality = clampScore(evaluation.AnswerQuality)
	evaluation.Engagement = clampScore(evaluation.Engagement)
	evaluation.Relevance = clampScore(evaluation.Relevance)
	evaluation.Total = clampScore(evaluation.Total)
	evaluation.Analysis = strings.TrimSpace(evaluation.Analysis)

	return &evaluation, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	raw = strings.TrimSpace(raw)

	// Models sometimes wrap the object in prose.
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start > 0 && end > start {
		raw = raw[start : end+1]
	}

	return raw
}

func clampScore(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
