package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Lauiee/AdvisorAI-Api/internal/ai"
	"github.com/Lauiee/AdvisorAI-Api/internal/catalog"
	"github.com/Lauiee/AdvisorAI-Api/internal/logger"
)

var (
	// ErrTaskTimeout marks a professor task that exceeded Config.TaskTimeout.
	ErrTaskTimeout = errors.New("professor task timed out")
	// ErrNoProfessors is returned when there is nothing to match against.
	ErrNoProfessors = errors.New("no professors to match")
)

const (
	DefaultConcurrency   = 5
	DefaultTaskTimeout   = 60 * time.Second
	DefaultFallbackScore = MinTotalScore
)

// Config tunes the fan-out. Zero values select the defaults.
type Config struct {
	Concurrency   int           `mapstructure:"concurrency" validate:"gte=0"`
	TaskTimeout   time.Duration `mapstructure:"task-timeout" validate:"gte=0"`
	FallbackScore int           `mapstructure:"fallback-score" validate:"eq=0|min=70,max=98"`
	Calibration   Calibration   `mapstructure:"calibration"`
}

func (c Config) withDefaults() Config {
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = DefaultTaskTimeout
	}
	if c.FallbackScore == 0 {
		c.FallbackScore = DefaultFallbackScore
	}
	if len(c.Calibration.Default.Aggregate.Breakpoints) == 0 && c.Calibration.Default.Indicator.isZero() {
		profiles := c.Calibration.Profiles
		c.Calibration = DefaultCalibration()
		c.Calibration.Profiles = profiles
	}
	return c
}

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("matching config: %w", err)
	}
	return c.withDefaults().Calibration.Validate()
}

// Recorder receives matching telemetry. Status is "ok" or "fallback".
type Recorder interface {
	RunStarted()
	ProfessorScored(status string, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) RunStarted()                            {}
func (nopRecorder) ProfessorScored(string, time.Duration) {}

// Deps are the capabilities a Matcher needs.
type Deps struct {
	Embedder ai.Embedder
	Catalog  catalog.Catalog
	Logger   *zap.Logger
	Recorder Recorder
}

// Matcher ranks professors for an applicant.
type Matcher struct {
	scorer   *Scorer
	embedder ai.Embedder
	catalog  catalog.Catalog
	cfg      Config
	logger   *zap.Logger
	recorder Recorder
	newRunID func() string
}

func NewMatcher(deps Deps, cfg Config) (*Matcher, error) {
	if deps.Embedder == nil {
		return nil, errors.New("matcher requires an embedder")
	}
	if deps.Catalog == nil {
		return nil, errors.New("matcher requires a catalog")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	recorder := deps.Recorder
	if recorder == nil {
		recorder = nopRecorder{}
	}

	return &Matcher{
		scorer:   NewScorer(deps.Embedder, deps.Catalog, cfg.Calibration),
		embedder: deps.Embedder,
		catalog:  deps.Catalog,
		cfg:      cfg,
		logger:   logger.WithFields(deps.Logger),
		recorder: recorder,
		newRunID: uuid.NewString,
	}, nil
}

// MatchAll scores every professor in professorIDs, or the whole catalog when
// professorIDs is nil, and returns results ordered by total score. A failing
// professor gets the fallback score; only invalid input or an unreadable
// catalog listing is returned as an error.
func (m *Matcher) MatchAll(ctx context.Context, applicant Applicant, professorIDs []string) (*Report, error) {
	applicant = applicant.Normalize()
	if err := applicant.Validate(); err != nil {
		return nil, err
	}

	if professorIDs == nil {
		ids, err := m.catalog.ProfessorIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing professors: %w", err)
		}
		professorIDs = ids
	}
	if len(professorIDs) == 0 {
		return nil, ErrNoProfessors
	}

	report := &Report{
		RunID:     m.newRunID(),
		Applicant: applicant,
		StartedAt: time.Now().UTC(),
	}
	log := logger.WithFields(m.logger, logger.MatchFields(report.RunID, "")...)
	m.recorder.RunStarted()

	log.Info("matching started",
		zap.Int("professors", len(professorIDs)),
		zap.Int("learning_styles", len(applicant.LearningStyles)),
	)

	styles, err := PrecomputeStyles(ctx, m.embedder, applicant.LearningStyles)
	if err != nil {
		// Tasks embed the styles themselves when the table is empty.
		log.Warn("learning style pre-pass failed", zap.Error(err))
		styles = &StyleTable{}
	}
	log.Debug("learning styles embedded", zap.Int("styles", styles.Len()))

	results := make([]MatchResult, len(professorIDs))

	var g errgroup.Group
	g.SetLimit(min(len(professorIDs), m.cfg.Concurrency))
	for i, id := range professorIDs {
		g.Go(func() error {
			results[i] = m.runTask(ctx, log, applicant, id, styles)
			return nil
		})
	}
	_ = g.Wait()

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].TotalScore > results[b].TotalScore
	})

	for _, r := range results {
		if r.Fallback() {
			report.Failures++
		}
	}
	report.Results = results
	report.FinishedAt = time.Now().UTC()

	log.Info("matching finished",
		zap.Int("results", len(results)),
		zap.Int("failures", report.Failures),
		zap.Duration("elapsed", report.FinishedAt.Sub(report.StartedAt)),
	)

	return report, nil
}

type taskOutcome struct {
	result MatchResult
	err    error
}

func (m *Matcher) runTask(ctx context.Context, log *zap.Logger, applicant Applicant, professorID string, styles *StyleTable) MatchResult {
	started := time.Now()
	log = logger.WithFields(log, logger.MatchFields("", professorID)...)

	taskCtx, cancel := context.WithTimeout(ctx, m.cfg.TaskTimeout)
	defer cancel()

	done := make(chan taskOutcome, 1)
	go func() {
		res, err := m.scorer.ScoreProfessor(taskCtx, applicant, professorID, styles)
		done <- taskOutcome{result: res, err: err}
	}()

	var outcome taskOutcome
	select {
	case outcome = <-done:
	case <-taskCtx.Done():
		err := taskCtx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w after %s", ErrTaskTimeout, m.cfg.TaskTimeout)
		}
		outcome = taskOutcome{err: err}
	}

	elapsed := time.Since(started)
	if outcome.err != nil {
		log.Warn("professor scoring failed, using fallback score",
			zap.Int("fallback_score", m.cfg.FallbackScore),
			zap.Error(outcome.err),
		)
		m.recorder.ProfessorScored("fallback", elapsed)
		return m.fallback(professorID, outcome.err)
	}

	log.Debug("professor scored",
		zap.Int("total_score", outcome.result.TotalScore),
		zap.Any("breakdown", outcome.result.Breakdown),
		zap.Duration("elapsed", elapsed),
	)
	m.recorder.ProfessorScored("ok", elapsed)
	return outcome.result
}

func (m *Matcher) fallback(professorID string, err error) MatchResult {
	return MatchResult{
		ProfessorID:     professorID,
		TotalScore:      m.cfg.FallbackScore,
		IndicatorScores: []IndicatorScore{},
		Breakdown:       map[string]int{},
		Failure: &Failure{
			Reason:  err.Error(),
			Timeout: errors.Is(err, ErrTaskTimeout),
		},
	}
}
