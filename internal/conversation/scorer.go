// Package conversation scores applicant/professor chats and blends that score
// into the initial matching score.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
	"github.com/Lauiee/AdvisorAI-Api/internal/logger"
	"github.com/Lauiee/AdvisorAI-Api/internal/utils"
)

const (
	RoleApplicant = "user"
	RoleProfessor = "professor"

	MinChatScore = 70
	MaxChatScore = 98

	// fallbackLengthCap is the average message length that earns the top fallback score.
	fallbackLengthCap = 500

	AnalysisEmpty    = "No chat history to evaluate."
	AnalysisTooShort = "The conversation is too short to evaluate; at least one question and one answer are needed."

	// AnalysisCompleted stands in when the evaluator scores a chat without explaining it.
	AnalysisCompleted = "Conversation analysis completed."

	SourceLLM      = "llm"
	SourceFallback = "fallback"
	SourceEmpty    = "empty"

	defaultEvaluationTimeout = 60 * time.Second
)

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Details explains how a chat score was produced.
type Details struct {
	Source        string  `json:"source"`
	DepthQuality  float64 `json:"depth_quality,omitempty"`
	AnswerQuality float64 `json:"answer_quality,omitempty"`
	Engagement    float64 `json:"engagement,omitempty"`
	Relevance     float64 `json:"relevance,omitempty"`
	RawTotal      float64 `json:"raw_total,omitempty"`
	MessageCount  int     `json:"message_count"`
	AvgLength     float64 `json:"avg_length,omitempty"`
	// Reason is set when the evaluator could not be used.
	Reason string `json:"reason,omitempty"`
}

// Score is 0 when there was no usable conversation, otherwise within [MinChatScore, MaxChatScore].
type Score struct {
	ChatScore int     `json:"chat_score"`
	Analysis  string  `json:"analysis"`
	Details   Details `json:"details"`
}

// Applicant is the context the evaluator judges relevance against.
type Applicant struct {
	InterestKeyword string
	LearningStyles  []string
}

// Recorder counts chat scores by source.
type Recorder interface {
	ChatScored(source string)
}

type Scorer struct {
	evaluator ai.Evaluator
	timeout   time.Duration
	logger    *zap.Logger
	recorder  Recorder
}

// NewScorer accepts a nil evaluator, in which case every usable transcript gets the fallback score.
func NewScorer(evaluator ai.Evaluator, timeout time.Duration, log *zap.Logger, recorder Recorder) *Scorer {
	if timeout <= 0 {
		timeout = defaultEvaluationTimeout
	}
	return &Scorer{
		evaluator: evaluator,
		timeout:   timeout,
		logger:    logger.WithFields(log),
		recorder:  recorder,
	}
}

func (s *Scorer) ScoreChat(ctx context.Context, transcript []Message, applicant Applicant, professorID string) Score {
	log := logger.WithFields(s.logger, logger.MatchFields("", professorID)...)

	if len(transcript) == 0 {
		return s.done(Score{Analysis: AnalysisEmpty, Details: Details{Source: SourceEmpty}})
	}

	questions, answers := split(transcript)
	if len(transcript) < 2 || len(questions) == 0 || len(answers) == 0 {
		return s.done(Score{
			Analysis: AnalysisTooShort,
			Details:  Details{Source: SourceEmpty, MessageCount: len(transcript)},
		})
	}

	if s.evaluator == nil {
		return s.done(fallbackScore(transcript, "no evaluator configured"))
	}

	evalCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	evaluation, err := s.evaluator.Evaluate(evalCtx, ai.EvaluationRequest{
		ProfessorID:     professorID,
		InterestKeyword: applicant.InterestKeyword,
		LearningStyles:  applicant.LearningStyles,
		Conversation:    Conversation(questions, answers),
	})
	if err == nil && evaluation == nil {
		err = errors.New("evaluator returned no result")
	}
	if err != nil {
		log.Warn("chat evaluation failed, using length-based score", zap.Error(err))
		return s.done(fallbackScore(transcript, err.Error()))
	}

	score := Score{
		Analysis: evaluation.Analysis,
		Details: Details{
			Source:        SourceLLM,
			DepthQuality:  evaluation.DepthQuality,
			AnswerQuality: evaluation.AnswerQuality,
			Engagement:    evaluation.Engagement,
			Relevance:     evaluation.Relevance,
			RawTotal:      evaluation.Total,
			MessageCount:  len(transcript),
		},
	}
	if strings.TrimSpace(score.Analysis) == "" {
		score.Analysis = AnalysisCompleted
	}
	if evaluation.Total > 0 {
		score.ChatScore = remapTotal(evaluation.Total)
	}

	log.Debug("chat scored",
		zap.Float64("raw_total", evaluation.Total),
		zap.Int("chat_score", score.ChatScore),
		zap.String("analysis_preview", utils.TruncateForLog(score.Analysis, 80)),
	)
	return s.done(score)
}

func (s *Scorer) done(score Score) Score {
	if s.recorder != nil {
		s.recorder.ChatScored(score.Details.Source)
	}
	return score
}

func split(transcript []Message) (questions, answers []string) {
	for _, m := range transcript {
		switch m.Role {
		case RoleApplicant:
			questions = append(questions, m.Content)
		case RoleProfessor:
			answers = append(answers, m.Content)
		}
	}
	return questions, answers
}

// Conversation pairs the i-th applicant message with the i-th professor reply.
// Unpaired trailing messages are dropped.
func Conversation(questions, answers []string) string {
	n := min(len(questions), len(answers))
	pairs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pairs = append(pairs, fmt.Sprintf("질문: %s\n답변: %s", questions[i], answers[i]))
	}
	return strings.Join(pairs, "\n\n")
}

// remapTotal maps a 0..100 total onto the chat band, truncating.
func remapTotal(total float64) int {
	total = math.Max(0, math.Min(100, total))
	return clampChat(int(total/100*(MaxChatScore-MinChatScore) + MinChatScore))
}

func fallbackScore(transcript []Message, reason string) Score {
	var runes int
	for _, m := range transcript {
		runes += utf8.RuneCountInString(m.Content)
	}
	avg := float64(runes) / float64(len(transcript))

	value := math.Min(avg, fallbackLengthCap) / fallbackLengthCap * (MaxChatScore - MinChatScore)
	return Score{
		ChatScore: clampChat(int(value + MinChatScore)),
		Analysis:  fmt.Sprintf("Scored from message length: %d messages, %.0f characters on average.", len(transcript), avg),
		Details: Details{
			Source:       SourceFallback,
			MessageCount: len(transcript),
			AvgLength:    math.Round(avg*10) / 10,
			Reason:       reason,
		},
	}
}

func clampChat(v int) int {
	return utils.Clamp(v, MinChatScore, MaxChatScore)
}
