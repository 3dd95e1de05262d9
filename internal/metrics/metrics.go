package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder owns the matcher's collectors. Each Recorder registers on its own
// registry so runs and tests never share counters.
type Recorder struct {
	registry *prometheus.Registry

	runs          prometheus.Counter
	professors    *prometheus.CounterVec
	taskDuration  prometheus.Histogram
	embeddedTexts *prometheus.CounterVec
	chatScores    *prometheus.CounterVec
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		runs: factory.NewCounter(prometheus.CounterOpts{
			Name: "matching_runs_total",
			Help: "Total number of matching runs",
		}),
		professors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "matching_professor_results_total",
			Help: "Professor results by outcome",
		}, []string{"status"}),
		taskDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_task_duration_seconds",
			Help:    "Duration of one professor scoring task",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}),
		embeddedTexts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "embedding_texts_total",
			Help: "Texts embedded, by source",
		}, []string{"source"}),
		chatScores: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chat_scores_total",
			Help: "Chat scores produced, by source",
		}, []string{"source"}),
	}
}

func (r *Recorder) RunStarted() {
	r.runs.Inc()
}

func (r *Recorder) ProfessorScored(status string, elapsed time.Duration) {
	r.professors.WithLabelValues(status).Inc()
	r.taskDuration.Observe(elapsed.Seconds())
}

func (r *Recorder) EmbeddedTexts(source string, n int) {
	r.embeddedTexts.WithLabelValues(source).Add(float64(n))
}

func (r *Recorder) ChatScored(source string) {
	r.chatScores.WithLabelValues(source).Inc()
}

func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (r *Recorder) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, r.registry)
}
