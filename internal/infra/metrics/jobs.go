package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() {
	register(jobsProcessedTotal, phaseDuration, fanoutOutcomes, queueDepth, autoGenerated)
}

var (
	jobsProcessedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poetry_jobs_processed_total",
			Help: "Total number of pipeline jobs processed, labeled by outcome.",
		},
		[]string{"status"}, // 'completed', 'retrying', 'failed', 'cancelled'
	)

	phaseDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "poetry_phase_duration_seconds",
			Help:    "Pipeline phase duration.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"phase", "outcome"},
	)

	fanoutOutcomes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "poetry_fanout_outcomes_total",
			Help: "Commentary fan-out results per provider.",
		},
		[]string{"provider", "outcome"},
	)

	queueDepth = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "poetry_queue_depth",
			Help: "Broker job counts by state.",
		},
		[]string{"state"},
	)

	autoGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "poetry_auto_generated_jobs_total",
			Help: "Jobs submitted by the auto-generate schedule.",
		},
	)
)

func IncJob(status string) {
	jobsProcessedTotal.WithLabelValues(norm(status)).Inc()
}

func ObservePhase(phase, outcome string, d time.Duration) {
	phaseDuration.WithLabelValues(norm(phase), norm(outcome)).Observe(d.Seconds())
}

func IncFanout(provider, outcome string) {
	fanoutOutcomes.WithLabelValues(norm(provider), norm(outcome)).Inc()
}

func SetQueueDepth(waiting, active, completed, failed, delayed int64) {
	queueDepth.WithLabelValues("waiting").Set(float64(waiting))
	queueDepth.WithLabelValues("active").Set(float64(active))
	queueDepth.WithLabelValues("completed").Set(float64(completed))
	queueDepth.WithLabelValues("failed").Set(float64(failed))
	queueDepth.WithLabelValues("delayed").Set(float64(delayed))
}

func AddAutoGenerated(n int) {
	autoGenerated.Add(float64(n))
}

// PipelineObserver forwards orchestrator telemetry to the collectors above.
type PipelineObserver struct{}

func (PipelineObserver) ObservePhase(phase, outcome string, d time.Duration) {
	ObservePhase(phase, outcome, d)
}

func (PipelineObserver) FanoutOutcome(provider, outcome string) {
	IncFanout(provider, outcome)
}
