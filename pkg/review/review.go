// Package review implements the read-only Review/ROI Engine (spec §4.8): it
// joins per-attack aggregates out of the state store into a cost/benefit
// table and a set of recommendations. It never mutates the state store or
// the attack order — only the operator (or a future automated step) acts on
// its output.
package review

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sluicehq/sluice/pkg/metrics"
	"github.com/sluicehq/sluice/pkg/stage2"
	"github.com/sluicehq/sluice/pkg/types"
)

// Row is one attack's joined ROI aggregate across every batch it has run in.
type Row struct {
	Attack       string
	Tier         int
	Batches      int
	Cracks       int
	Rate         float64  // cracks / summed hashCount
	CracksPerMin *float64 // nil if this attack's total duration is 0 (deferred)
	CostSharePct float64  // % of non-deferred attack time spent here
	MarginalROI  float64  // (rate*100) / costSharePct; 0 if costSharePct is 0
}

// Kind names a recommendation category.
type Kind string

const (
	KindDrop        Kind = "DROP"
	KindKeepOnTrial Kind = "KEEP_ON_TRIAL"
	KindBudgetAlert Kind = "BUDGET_ALERT"
	KindReorder     Kind = "REORDER"
	KindInvestigate Kind = "INVESTIGATE"
)

// Recommendation is one actionable finding surfaced by the review pass.
type Recommendation struct {
	Kind    Kind
	Attack  string
	Message string
}

// Report is the full output of one review pass.
type Report struct {
	Rows            []Row
	Recommendations []Recommendation
}

// Build joins snapshot's batches and per-attack stats into a Report. order is
// the current attack order (from stage2.DefaultOrder or the state's stored
// order), used only for REORDER's adjacency check — never mutated.
func Build(snapshot *types.State, order []string) Report {
	agg := aggregate(snapshot)

	var rows []Row
	totalCracks := 0
	totalNonDeferredDuration := 0.0
	for _, a := range agg {
		totalCracks += a.cracks
		if a.durationSeconds > 0 {
			totalNonDeferredDuration += a.durationSeconds
		}
	}

	for name, a := range agg {
		row := Row{
			Attack:  name,
			Tier:    tierOf(name),
			Batches: a.batches,
			Cracks:  a.cracks,
		}
		if a.hashCount > 0 {
			row.Rate = float64(a.cracks) / float64(a.hashCount)
		}
		if a.durationSeconds > 0 {
			perMin := float64(a.cracks) / (a.durationSeconds / 60)
			row.CracksPerMin = &perMin
			if totalNonDeferredDuration > 0 {
				row.CostSharePct = 100 * a.durationSeconds / totalNonDeferredDuration
			}
		}
		if row.CostSharePct > 0 {
			row.MarginalROI = (row.Rate * 100) / row.CostSharePct
		}
		rows = append(rows, row)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Attack < rows[j].Attack })

	byAttack := make(map[string]Row, len(rows))
	for _, r := range rows {
		byAttack[r.Attack] = r
	}

	var recs []Recommendation
	for _, r := range rows {
		if r.Batches >= 3 && r.Rate < 0.0001 && r.Cracks < 10 {
			recs = append(recs, Recommendation{
				Kind: KindDrop, Attack: r.Attack,
				Message: fmt.Sprintf("%s: %d batches, rate %.6f, %d cracks — below the effectiveness floor", r.Attack, r.Batches, r.Rate, r.Cracks),
			})
		}
		if r.Batches < 3 {
			recs = append(recs, Recommendation{
				Kind: KindKeepOnTrial, Attack: r.Attack,
				Message: fmt.Sprintf("%s: only %d batch(es) so far, not enough data to judge", r.Attack, r.Batches),
			})
		}
		if totalCracks > 0 && r.CostSharePct > 50 && float64(r.Cracks)/float64(totalCracks) < 0.3 {
			recs = append(recs, Recommendation{
				Kind: KindBudgetAlert, Attack: r.Attack,
				Message: fmt.Sprintf("%s: consumes %.1f%% of attack time but only %.1f%% of cracks", r.Attack, r.CostSharePct, 100*float64(r.Cracks)/float64(totalCracks)),
			})
		}
	}

	recs = append(recs, reorderRecommendations(order, byAttack)...)
	if inv, ok := investigate(snapshot); ok {
		recs = append(recs, inv)
	}

	return Report{Rows: rows, Recommendations: recs}
}

// Export publishes each row's marginalROI to metrics.ROIScore, for an
// optional /metrics endpoint. Review itself stays read-only; Export is the
// one place this package touches process-global state.
func (r Report) Export() {
	for _, row := range r.Rows {
		metrics.ROIScore.WithLabelValues(row.Attack).Set(row.MarginalROI)
	}
}

type attackAggregate struct {
	batches         int
	cracks          int
	hashCount       int
	durationSeconds float64
}

func aggregate(snapshot *types.State) map[string]*attackAggregate {
	agg := make(map[string]*attackAggregate)
	for _, b := range snapshot.Batches {
		for _, r := range b.AttackResults {
			a := agg[r.Attack]
			if a == nil {
				a = &attackAggregate{}
				agg[r.Attack] = a
			}
			a.batches++
			a.cracks += r.NewCracks
			a.hashCount += b.HashCount
			a.durationSeconds += r.DurationSeconds
		}
	}
	return agg
}

func tierOf(name string) int {
	if a, ok := stage2.ByName(name); ok {
		return a.Tier
	}
	return -1
}

// reorderRecommendations flags adjacent (or adjacent-tier) pairs in order
// where the later-positioned attack's cracks/min beats the earlier one's by
// at least 1.5x, per spec §4.8.
func reorderRecommendations(order []string, byAttack map[string]Row) []Recommendation {
	var recs []Recommendation
	for i := 0; i+1 < len(order); i++ {
		upper, ok1 := byAttack[order[i]]
		lower, ok2 := byAttack[order[i+1]]
		if !ok1 || !ok2 || upper.CracksPerMin == nil || lower.CracksPerMin == nil {
			continue
		}
		if tierDiff := lower.Tier - upper.Tier; tierDiff < 0 || tierDiff > 1 {
			continue
		}
		if *lower.CracksPerMin >= 1.5*(*upper.CracksPerMin) {
			recs = append(recs, Recommendation{
				Kind:   KindReorder,
				Attack: lower.Attack,
				Message: fmt.Sprintf("%s (%.0f/min) above %s (%.0f/min)", lower.Attack, *lower.CracksPerMin, upper.Attack, *upper.CracksPerMin),
			})
		}
	}
	return recs
}

// feedbackAttackPrefixes names the attack families fed by the Feedback
// Analyzer's growing BETA.txt/cohort wordlists (spec §4.5 tier 3) — these
// are the cracks the INVESTIGATE check watches for stalling.
var feedbackAttackPrefixes = []string{"beta-", "cohort-"}

func isFeedbackAttack(name string) bool {
	for _, p := range feedbackAttackPrefixes {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}

// investigate flags a stalled feedback loop: across the last 5 completed
// batches (ordered by CompletedAt), feedback-tagged cracks have not grown
// (last <= first).
func investigate(snapshot *types.State) (Recommendation, bool) {
	type batchCracks struct {
		name        string
		completedAt int64
		cracks      int
	}
	var completed []batchCracks
	for name, b := range snapshot.Batches {
		if b.Status != types.BatchCompleted {
			continue
		}
		cracks := 0
		for _, r := range b.AttackResults {
			if isFeedbackAttack(r.Attack) {
				cracks += r.NewCracks
			}
		}
		completed = append(completed, batchCracks{name: name, completedAt: b.CompletedAt.UnixNano(), cracks: cracks})
	}
	sort.Slice(completed, func(i, j int) bool { return completed[i].completedAt < completed[j].completedAt })

	if len(completed) > 5 {
		completed = completed[len(completed)-5:]
	}
	if len(completed) < 5 {
		return Recommendation{}, false
	}

	first, last := completed[0].cracks, completed[len(completed)-1].cracks
	if last > first {
		return Recommendation{}, false
	}

	var series []string
	for _, c := range completed {
		series = append(series, fmt.Sprintf("%d", c.cracks))
	}
	return Recommendation{
		Kind:   KindInvestigate,
		Attack: "",
		Message: fmt.Sprintf("feedback-tagged cracks not improving %d → %d over the last 5 batches (%s); check BETA.txt/cohort quality",
			first, last, strings.Join(series, ", ")),
	}, true
}
