// Package catalog provides read access to professors' question/answer corpora.
package catalog

import (
	"context"
	"errors"
	"sort"

	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

// ErrInvalidCatalog marks catalog data that cannot be used at all.
var ErrInvalidCatalog = errors.New("invalid catalog")

// RecordTypeQA is the record type carrying indicator-tagged statements.
const RecordTypeQA = "qa"

// QAEntry is one question/answer statement of a professor.
type QAEntry struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	ChunkID  string `json:"chunk_id"`
}

// Record is the stored shape of a catalog row.
type Record struct {
	ProfessorID string `json:"professor_id"`
	ChunkID     string `json:"chunk_id"`
	Type        string `json:"type"`
	Indicator   string `json:"indicator,omitempty"`
	Question    string `json:"question,omitempty"`
	Answer      string `json:"answer,omitempty"`
}

// Catalog resolves QA entries per (professor, indicator) and lists professors.
type Catalog interface {
	QAEntries(ctx context.Context, professorID string, indicator indicators.Indicator) ([]QAEntry, error)
	ProfessorIDs(ctx context.Context) ([]string, error)
}

// Memory is an in-memory catalog indexed by professor and indicator key.
type Memory struct {
	entries    map[string]map[string][]QAEntry
	professors []string
}

// NewMemory indexes records. Non-QA records only contribute professor ids.
func NewMemory(records []Record) (*Memory, error) {
	m := &Memory{entries: make(map[string]map[string][]QAEntry)}
	seen := make(map[string]struct{})

	for _, rec := range records {
		if rec.ProfessorID == "" {
			continue
		}
		if _, ok := seen[rec.ProfessorID]; !ok {
			seen[rec.ProfessorID] = struct{}{}
			m.professors = append(m.professors, rec.ProfessorID)
		}

		if rec.Type != RecordTypeQA {
			continue
		}

		ind, err := indicators.Parse(rec.Indicator)
		if err != nil {
			return nil, errors.Join(ErrInvalidCatalog, err)
		}

		byIndicator, ok := m.entries[rec.ProfessorID]
		if !ok {
			byIndicator = make(map[string][]QAEntry)
			m.entries[rec.ProfessorID] = byIndicator
		}
		byIndicator[ind.Key] = append(byIndicator[ind.Key], QAEntry{
			Question: rec.Question,
			Answer:   rec.Answer,
			ChunkID:  rec.ChunkID,
		})
	}

	sort.Strings(m.professors)
	return m, nil
}

func (m *Memory) QAEntries(_ context.Context, professorID string, indicator indicators.Indicator) ([]QAEntry, error) {
	entries := m.entries[professorID][indicator.Key]
	out := make([]QAEntry, len(entries))
	copy(out, entries)
	return out, nil
}

func (m *Memory) ProfessorIDs(_ context.Context) ([]string, error) {
	out := make([]string, len(m.professors))
	copy(out, m.professors)
	return out, nil
}
