package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/Lauiee/AdvisorAI-Api/internal/matching"
)

const (
	PromptShowBreakdown = "Show indicator breakdown"
	PromptShowProfessor = "Show professor details"
	PromptDumpReport    = "Dump report to file"
	PromptExit          = "Exit"
	PromptBack          = "back"
)

var errExit = errors.New("exit requested")

var prompt = promptui.Select{
	Label: "What next?",
	Items: []string{PromptShowBreakdown, PromptShowProfessor, PromptDumpReport, PromptExit},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Rank professors for an applicant's interest keyword and learning styles",
	Run: func(cmd *cobra.Command, _ []string) {
		match(cmd)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)

	matchCmd.Flags().StringP("keyword", "k", "", "applicant interest keyword")
	matchCmd.Flags().StringSliceP("style", "s", nil, "applicant learning style, may be repeated")
	matchCmd.Flags().StringSliceP("professor", "p", nil, "professor id to match against, may be repeated. Default is the whole catalog")
	matchCmd.Flags().StringP("output", "o", "", "write the report as JSON to this file")
	matchCmd.Flags().BoolP("auto-aprove", "y", false, "do not show the interactive menu after matching")

	matchCmd.MarkFlagRequired("keyword")
}

func applicantFromFlags(cmd *cobra.Command) matching.Applicant {
	keyword, _ := cmd.Flags().GetString("keyword")
	styles, _ := cmd.Flags().GetStringSlice("style")
	return matching.Applicant{InterestKeyword: keyword, LearningStyles: styles}
}

func match(cmd *cobra.Command) {
	ctx := context.Background()

	d := setup()
	defer d.close()
	logger := d.logger

	logger.Info("starting the advisor-matcher", zap.String("version", version))

	matcher, err := d.matcher(ctx)
	if err != nil {
		logger.Fatal("preparing the matcher", zap.Error(err))
	}

	var professors []string
	if cmd.Flags().Changed("professor") {
		professors, _ = cmd.Flags().GetStringSlice("professor")
	}

	report, err := matcher.MatchAll(ctx, applicantFromFlags(cmd), professors)
	if err != nil {
		logger.Error("matching failed", zap.Error(err))
		return
	}

	for _, line := range report.Summary() {
		logger.Info(line, zap.String("run_id", report.RunID))
	}

	if output, _ := cmd.Flags().GetString("output"); output != "" {
		if err := report.ToFile(output); err != nil {
			logger.Error("writing report", zap.String("filename", output), zap.Error(err))
			return
		}
		logger.Info("report written", zap.String("filename", output))
	}

	if auto, _ := cmd.Flags().GetBool("auto-aprove"); auto {
		return
	}

	for {
		_, action, err := prompt.Run()
		if err != nil {
			logger.Info("exiting", zap.Error(err))
			return
		}

		if err := handleAction(action, logger, report); err != nil {
			if errors.Is(err, errExit) {
				return
			}
			logger.Error("exiting", zap.Error(err))
			return
		}
	}
}

func handleAction(action string, logger *zap.Logger, report *matching.Report) error {
	switch action {
	case PromptShowBreakdown:
		for _, line := range report.Summary() {
			fmt.Println(line)
		}
		return nil
	case PromptShowProfessor:
		return showProfessor(logger, report)
	case PromptDumpReport:
		filename, err := report.DumpToTmpFile()
		if err != nil {
			return fmt.Errorf("dump report to file: %w", err)
		}
		logger.Info("dumping report to file", zap.String("filename", filename))
		return nil
	case PromptExit:
		logger.Info("exiting", zap.String("reason", "got exit from prompt"))
		return errExit
	default:
		return fmt.Errorf("invalid action: %s", action)
	}
}

// showProfessor lets the user pick one ranked professor and prints its indicator scores.
func showProfessor(logger *zap.Logger, report *matching.Report) error {
	items := make([]string, 0, report.Len()+1)
	for _, res := range report.Results {
		items = append(items, res.ProfessorID)
	}

	professorPrompt := promptui.Select{
		Label: "Choose a professor and press ENTER",
		Items: append(items, PromptBack),
	}

	_, selected, err := professorPrompt.Run()
	if err != nil {
		return err
	}
	if selected == PromptBack {
		return nil
	}

	res := report.FindByID(selected)
	if res == nil {
		return fmt.Errorf("there is no such professor id %s", selected)
	}

	pretty, _ := json.MarshalIndent(res, "", "  ")
	logger.Info(string(pretty), zap.Int("total_score", res.TotalScore))
	return nil
}
