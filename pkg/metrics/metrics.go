package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AttackDuration records how long each named attack ran on the GPU host,
	// per pkg/remotejob's result reconciliation. Labeled by attack name so
	// the histogram doubles as the raw material for pkg/review's per-attack
	// duration rollups when scraped directly instead of read from state.
	AttackDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sluice_attack_duration_seconds",
			Help:    "Duration of a single attack run on the GPU host, by attack name",
			Buckets: []float64{30, 60, 300, 900, 1800, 3600, 7200, 14400, 28800},
		},
		[]string{"attack"},
	)

	// AttackCracksTotal counts new cracks per attack, mirroring the state
	// store's attackStats.totalCracked but exposed for scraping between runs.
	AttackCracksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_attack_cracks_total",
			Help: "Total plaintexts recovered by a named attack, across all batches",
		},
		[]string{"attack"},
	)

	// ROIScore is pkg/review's marginalROI for a named attack, updated each
	// time the review engine runs. A Gauge because ROI can drop as well as
	// rise as an attack's cohort of batches grows.
	ROIScore = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sluice_attack_roi_score",
			Help: "Review engine's marginal ROI score for a named attack",
		},
		[]string{"attack"},
	)

	// BatchCracked is the running cracked count for a batch, updated as the
	// orchestrator drives it through ATTACKS.
	BatchCracked = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "sluice_batch_cracked_total",
			Help: "Cracked hashes so far for a batch",
		},
		[]string{"batch"},
	)

	// OracleQueriesTotal counts breach-count oracle lookups made by the
	// feedback analyzer (answers served from the oracle cache included), by
	// outcome (promoted, hit, miss).
	OracleQueriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sluice_oracle_queries_total",
			Help: "Breach-count oracle queries issued by the feedback analyzer",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		AttackDuration,
		AttackCracksTotal,
		ROIScore,
		BatchCracked,
		OracleQueriesTotal,
	)
}

// Handler returns the Prometheus scrape HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations and observing the elapsed time
// against a histogram.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer, starting now.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
