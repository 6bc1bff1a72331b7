package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fieldserve/backend/internal/models"
)

// Recorder tracks dispatch outcomes in Prometheus metrics.
type Recorder struct {
	outcomes      *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// NewRecorder registers dispatch metrics on the provided registerer. If reg
// is nil, the default registerer is used. Already-registered collectors are
// reused.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dispatch_outcomes_total",
		Help: "Total number of dispatch decisions by outcome",
	}, []string{"outcome", "emergency"})
	batchDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "dispatch_batch_duration_seconds",
		Help:    "Wall-clock duration of capacity-aware batch runs",
		Buckets: prometheus.DefBuckets,
	})

	if err := reg.Register(outcomes); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			outcomes = are.ExistingCollector.(*prometheus.CounterVec)
		} else {
			return nil, err
		}
	}
	if err := reg.Register(batchDuration); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			batchDuration = are.ExistingCollector.(prometheus.Histogram)
		} else {
			return nil, err
		}
	}

	return &Recorder{outcomes: outcomes, batchDuration: batchDuration}, nil
}

// RecordRecommendation counts a single-job dispatch decision.
func (r *Recorder) RecordRecommendation(rec models.DispatchRecommendation) {
	outcome := "auto_assigned"
	if rec.RequiresManualDispatch {
		outcome = "manual_dispatch"
	}
	r.outcomes.WithLabelValues(outcome, strconv.FormatBool(rec.IsEmergency)).Inc()
}

// RecordBatch counts batch outcomes and observes the run duration.
func (r *Recorder) RecordBatch(result models.BatchResult) {
	for range result.Assignments {
		r.outcomes.WithLabelValues("batch_assigned", "false").Inc()
	}
	for range result.Unassigned {
		r.outcomes.WithLabelValues("batch_unassigned", "false").Inc()
	}
	r.batchDuration.Observe(float64(result.Stats.ElapsedMs) / 1000)
}
