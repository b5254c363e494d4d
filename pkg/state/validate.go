package state

import (
	"fmt"

	"github.com/sluicehq/sluice/pkg/types"
)

// validate checks the invariants documented in pkg/state's doc.go and returns
// a human-readable warning for each violation found. It never blocks a save —
// callers log the warnings and persist anyway.
func validate(st *types.State) []string {
	var warnings []string

	for name, b := range st.Batches {
		applied := make(map[string]bool, len(b.AttacksApplied))
		for _, a := range b.AttacksApplied {
			applied[a] = true
		}
		for _, a := range b.AttacksRemaining {
			if applied[a] {
				warnings = append(warnings, fmt.Sprintf("batch %s: attack %q present in both attacksApplied and attacksRemaining", name, a))
			}
		}

		if b.Cracked > b.HashCount {
			warnings = append(warnings, fmt.Sprintf("batch %s: cracked (%d) exceeds hashCount (%d)", name, b.Cracked, b.HashCount))
		}

		if b.Status == types.BatchCompleted {
			if b.CompletedAt.IsZero() {
				warnings = append(warnings, fmt.Sprintf("batch %s: status completed but completedAt is unset", name))
			}
			if len(b.AttacksRemaining) != 0 {
				warnings = append(warnings, fmt.Sprintf("batch %s: status completed but attacksRemaining is non-empty", name))
			}
		}

		if len(b.AttackResults) != len(b.AttacksApplied) {
			warnings = append(warnings, fmt.Sprintf("batch %s: attackResults has %d entries but attacksApplied has %d", name, len(b.AttackResults), len(b.AttacksApplied)))
		} else {
			for i, r := range b.AttackResults {
				if r.Attack != b.AttacksApplied[i] {
					warnings = append(warnings, fmt.Sprintf("batch %s: attackResults[%d] is %q but attacksApplied[%d] is %q", name, i, r.Attack, i, b.AttacksApplied[i]))
					break
				}
			}
		}

		if b.Cracked == 0 && len(b.AttacksApplied) >= 1 {
			warnings = append(warnings, fmt.Sprintf("batch %s: suspicious — %d attacks applied but zero cracks", name, len(b.AttacksApplied)))
		}
	}

	return warnings
}
