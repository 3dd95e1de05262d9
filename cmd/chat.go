package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/conversation"
	"github.com/Lauiee/AdvisorAI-Api/internal/matching"
)

var scoreChatCmd = &cobra.Command{
	Use:   "score-chat",
	Short: "Score an applicant/professor chat transcript and blend it with the matching score",
	Run: func(cmd *cobra.Command, _ []string) {
		scoreChat(cmd)
	},
}

type chatReport struct {
	ProfessorID string                  `json:"professor_id"`
	Chat        conversation.Score      `json:"chat"`
	Final       conversation.FinalScore `json:"final"`
}

func init() {
	rootCmd.AddCommand(scoreChatCmd)

	scoreChatCmd.Flags().StringP("transcript", "t", "", "JSON file with an array of {role, content} messages")
	scoreChatCmd.Flags().StringP("professor", "p", "", "professor id the chat was held with")
	scoreChatCmd.Flags().StringP("keyword", "k", "", "applicant interest keyword")
	scoreChatCmd.Flags().StringSliceP("style", "s", nil, "applicant learning style, may be repeated")
	scoreChatCmd.Flags().Int("initial-score", 0, "initial matching score. Default is to compute it by matching the professor")

	scoreChatCmd.MarkFlagRequired("transcript")
	scoreChatCmd.MarkFlagRequired("professor")
	scoreChatCmd.MarkFlagRequired("keyword")
}

func scoreChat(cmd *cobra.Command) {
	ctx := context.Background()

	d := setup()
	defer d.close()
	logger := d.logger

	transcriptFile, _ := cmd.Flags().GetString("transcript")
	professorID, _ := cmd.Flags().GetString("professor")
	applicant := applicantFromFlags(cmd)

	transcript, err := readTranscript(transcriptFile)
	if err != nil {
		logger.Fatal("reading transcript", zap.String("filename", transcriptFile), zap.Error(err))
	}

	scorer, err := d.chatScorer(ctx)
	if err != nil {
		logger.Fatal("preparing the chat scorer", zap.Error(err))
	}

	initial, _ := cmd.Flags().GetInt("initial-score")
	if initial == 0 {
		initial, err = initialScore(ctx, d, applicant, professorID)
		if err != nil {
			logger.Fatal("computing initial score", zap.String("professor_id", professorID), zap.Error(err))
		}
	}

	chat := scorer.ScoreChat(ctx, transcript, conversation.Applicant{
		InterestKeyword: applicant.InterestKeyword,
		LearningStyles:  applicant.LearningStyles,
	}, professorID)

	report := chatReport{
		ProfessorID: professorID,
		Chat:        chat,
		Final:       d.config.Chat.Weights.Combine(initial, chat.ChatScore),
	}

	logger.Info("chat scored",
		zap.String("professor_id", professorID),
		zap.Int("chat_score", chat.ChatScore),
		zap.Int("final_score", report.Final.FinalScore),
		zap.String("source", chat.Details.Source),
	)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logger.Error("writing result", zap.Error(err))
	}
}

func readTranscript(path string) ([]conversation.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var messages []conversation.Message
	if err := json.Unmarshal(data, &messages); err != nil {
		return nil, fmt.Errorf("decoding transcript: %w", err)
	}
	return messages, nil
}

func initialScore(ctx context.Context, d *deps, applicant matching.Applicant, professorID string) (int, error) {
	matcher, err := d.matcher(ctx)
	if err != nil {
		return 0, err
	}

	report, err := matcher.MatchAll(ctx, applicant, []string{professorID})
	if err != nil {
		return 0, err
	}

	res := report.FindByID(professorID)
	if res == nil {
		return 0, fmt.Errorf("no result for professor %s", professorID)
	}
	if res.Fallback() {
		d.logger.Warn("initial score is the fallback score", zap.String("reason", res.Failure.Reason))
	}
	return res.TotalScore, nil
}
