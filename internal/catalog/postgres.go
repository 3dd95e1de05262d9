package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/Lauiee/AdvisorAI-Api/internal/indicators"
)

const schemaDDL = `CREATE TABLE IF NOT EXISTS professor_qa (
	chunk_id     TEXT PRIMARY KEY,
	professor_id TEXT NOT NULL,
	type         TEXT NOT NULL,
	indicator    TEXT NOT NULL DEFAULT '',
	question     TEXT NOT NULL DEFAULT '',
	answer       TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS professor_qa_lookup ON professor_qa (professor_id, indicator)`

const (
	upsertQuery = `INSERT INTO professor_qa (chunk_id, professor_id, type, indicator, question, answer)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (chunk_id) DO UPDATE SET professor_id = EXCLUDED.professor_id, type = EXCLUDED.type,
indicator = EXCLUDED.indicator, question = EXCLUDED.question, answer = EXCLUDED.answer`

	entriesQuery = `SELECT question, answer, chunk_id FROM professor_qa
WHERE professor_id = $1 AND type = 'qa' AND indicator = $2 ORDER BY chunk_id`

	professorsQuery = `SELECT DISTINCT professor_id FROM professor_qa ORDER BY professor_id`
)

// Postgres serves the catalog from the professor_qa table. Indicators are
// stored by key ("A".."E").
type Postgres struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return NewPostgres(db), nil
}

func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("creating professor_qa schema: %w", err)
	}
	return nil
}

// Import upserts records in one transaction and returns how many were written.
func (p *Postgres) Import(ctx context.Context, records []Record) (int, error) {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertQuery)
	if err != nil {
		return 0, fmt.Errorf("prepare import: %w", err)
	}
	defer stmt.Close()

	written := 0
	for _, rec := range records {
		key := ""
		if rec.Type == RecordTypeQA {
			ind, err := indicators.Parse(rec.Indicator)
			if err != nil {
				return 0, fmt.Errorf("chunk %s: %w", rec.ChunkID, err)
			}
			key = ind.Key
		}

		if _, err := stmt.ExecContext(ctx, rec.ChunkID, rec.ProfessorID, rec.Type, key, rec.Question, rec.Answer); err != nil {
			return 0, fmt.Errorf("upsert chunk %s: %w", rec.ChunkID, err)
		}
		written++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit import: %w", err)
	}

	return written, nil
}

func (p *Postgres) QAEntries(ctx context.Context, professorID string, indicator indicators.Indicator) ([]QAEntry, error) {
	rows, err := p.db.QueryContext(ctx, entriesQuery, professorID, indicator.Key)
	if err != nil {
		return nil, fmt.Errorf("querying qa entries for %s/%s: %w", professorID, indicator.Key, err)
	}
	defer rows.Close()

	var entries []QAEntry
	for rows.Next() {
		var e QAEntry
		if err := rows.Scan(&e.Question, &e.Answer, &e.ChunkID); err != nil {
			return nil, fmt.Errorf("scanning qa entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func (p *Postgres) ProfessorIDs(ctx context.Context) ([]string, error) {
	rows, err := p.db.QueryContext(ctx, professorsQuery)
	if err != nil {
		return nil, fmt.Errorf("listing professors: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning professor id: %w", err)
		}
		ids = append(ids, id)
	}

	return ids, rows.Err()
}
