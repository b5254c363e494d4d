/*
Package metrics provides Prometheus metrics collection and exposition for
sluice's ROI and remote-job observability.

Unlike a cluster daemon's metrics surface, sluice is a CLI driven once per
batch invocation, so this package carries no background collector: each
metric is set directly by the component that knows the value (pkg/remotejob
observes attack duration as a job finishes, pkg/review sets ROI gauges when
it runs). An optional /metrics HTTP endpoint exposes whatever has been set
so far via Handler(), for scraping between runs.

# Metrics catalog

sluice_attack_duration_seconds{attack}: histogram, attack wall-clock time.
sluice_attack_cracks_total{attack}: counter, cumulative cracks per attack.
sluice_attack_roi_score{attack}: gauge, pkg/review's marginalROI.
sluice_batch_cracked_total{batch}: gauge, running cracked count per batch.
sluice_oracle_queries_total{outcome}: counter, breach-count oracle calls.

# Timer helper

	timer := metrics.NewTimer()
	// ... run an attack ...
	timer.ObserveDurationVec(metrics.AttackDuration, attackName)
*/
package metrics
