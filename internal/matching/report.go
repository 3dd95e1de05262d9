package matching

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

// Report is the outcome of one MatchAll run.
type Report struct {
	RunID      string        `json:"run_id"`
	Applicant  Applicant     `json:"applicant"`
	Results    []MatchResult `json:"results"`
	Failures   int           `json:"failures"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

func (r *Report) Len() int {
	return len(r.Results)
}

func (r *Report) FindByID(professorID string) *MatchResult {
	for i := range r.Results {
		if r.Results[i].ProfessorID == professorID {
			return &r.Results[i]
		}
	}
	return nil
}

// Summary renders one line per professor in rank order.
func (r *Report) Summary() []string {
	lines := make([]string, 0, len(r.Results))
	for rank, res := range r.Results {
		if res.Fallback() {
			lines = append(lines, fmt.Sprintf("%d. %s %d (fallback: %s)", rank+1, res.ProfessorID, res.TotalScore, res.Failure.Reason))
			continue
		}

		parts := make([]string, 0, len(res.Breakdown))
		for _, ind := range indicators.All() {
			parts = append(parts, fmt.Sprintf("%s=%d", ind.Key, res.Breakdown[ind.Key]))
		}
		lines = append(lines, fmt.Sprintf("%d. %s %d [%s]", rank+1, res.ProfessorID, res.TotalScore, strings.Join(parts, " ")))
	}
	return lines
}

// DumpToTmpFile writes the report as indented JSON to a new temp file and returns its name.
func (r *Report) DumpToTmpFile() (string, error) {
	file, err := os.CreateTemp("", "matching_*.json")
	if err != nil {
		return "", err
	}
	defer file.Close()

	if err := r.encode(file); err != nil {
		return "", err
	}
	return file.Name(), nil
}

func (r *Report) ToFile(path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return r.encode(file)
}

func (r *Report) encode(file *os.File) error {
	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}
