package state

import (
	"fmt"
	"time"

	"github.com/sluicehq/sluice/pkg/types"
)

// InitBatch creates a fresh record for name with status pending. attackOrder
// is the scheduler's current compiled-in default order — deliberately NOT
// the on-disk state.AttackOrder, which may be stale relative to the binary
// actually running.
func (s *Store) InitBatch(name, hashlistID string, hashCount int, attackOrder []string) (*types.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()

	if b, ok := st.Batches[name]; ok {
		return b, nil
	}

	remaining := make([]string, len(attackOrder))
	copy(remaining, attackOrder)

	b := &types.Batch{
		Name:             name,
		HashlistID:       hashlistID,
		HashCount:        hashCount,
		AttacksApplied:   []string{},
		AttacksRemaining: remaining,
		TaskIDs:          make(map[string]string),
		Status:           types.BatchPending,
		StartedAt:        time.Now(),
	}
	st.Batches[name] = b
	return b, s.saveLocked()
}

// GetBatch returns the batch record, or nil if none exists yet.
func (s *Store) GetBatch(name string) (*types.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()
	return st.Batches[name], nil
}

// StartAttack marks attack as in_progress on batch, recording its external
// task id and bumping lastAttackAt.
func (s *Store) StartAttack(batch, attack, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()

	b, ok := st.Batches[batch]
	if !ok {
		return fmt.Errorf("start attack: batch %q not found", batch)
	}
	b.Status = types.BatchInProgress
	if b.TaskIDs == nil {
		b.TaskIDs = make(map[string]string)
	}
	b.TaskIDs[attack] = taskID
	b.LastAttackAt = time.Now()
	return s.saveLocked()
}

// CompleteAttack records the outcome of attack on batch. A duplicate call for
// an attack already in attacksApplied is a no-op — the caller may safely
// retry completeAttack after a crash between the write and its acknowledgment.
func (s *Store) CompleteAttack(batch, attack string, cracked int, durationSeconds float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()

	b, ok := st.Batches[batch]
	if !ok {
		return fmt.Errorf("complete attack: batch %q not found", batch)
	}

	for _, a := range b.AttacksApplied {
		if a == attack {
			s.logger.Info().Str("batch", batch).Str("attack", attack).Msg("completeAttack called again for an already-applied attack, ignoring")
			return nil
		}
	}

	b.AttacksRemaining = removeString(b.AttacksRemaining, attack)
	b.AttacksApplied = append(b.AttacksApplied, attack)

	rate := 0.0
	if b.HashCount > 0 {
		rate = float64(cracked) / float64(b.HashCount)
	}
	b.AttackResults = append(b.AttackResults, types.AttackResult{
		Attack:          attack,
		NewCracks:       cracked,
		DurationSeconds: durationSeconds,
		CrackRate:       rate,
	})
	b.Cracked += cracked
	b.LastAttackAt = time.Now()

	stats := st.Stats[attack]
	if stats == nil {
		stats = &types.AttackStats{}
		st.Stats[attack] = stats
	}
	stats.Attempted++
	stats.TotalCracked += cracked
	stats.TotalHashes += b.HashCount
	if stats.TotalHashes > 0 {
		stats.AvgRate = float64(stats.TotalCracked) / float64(stats.TotalHashes)
	}
	stats.AvgTimeSeconds = runningAverage(stats.AvgTimeSeconds, stats.Attempted, durationSeconds)

	if len(b.AttacksRemaining) == 0 {
		b.Status = types.BatchCompleted
		b.CompletedAt = time.Now()
	}

	return s.saveLocked()
}

// FailBatch marks batch as failed with the given error message.
func (s *Store) FailBatch(name string, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()

	b, ok := st.Batches[name]
	if !ok {
		return fmt.Errorf("fail batch: batch %q not found", name)
	}
	b.Status = types.BatchFailed
	b.Error = cause.Error()
	return s.saveLocked()
}

// SetFeedback records the outcome of a batch's feedback run.
func (s *Store) SetFeedback(name string, fb types.Feedback) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()

	b, ok := st.Batches[name]
	if !ok {
		return fmt.Errorf("set feedback: batch %q not found", name)
	}
	fb.ProcessedAt = time.Now()
	b.Feedback = &fb
	return s.saveLocked()
}

// SetAttackOrder overwrites the top-level attack order. The review command
// reads it back as the current order; InitBatch does not use it, so neither
// new batches nor one already in flight are seeded from it.
func (s *Store) SetAttackOrder(order []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()
	st.AttackOrder = order
	return s.saveLocked()
}

// Snapshot returns the store's live in-memory state (not a copy), for
// read-only consumers like the review engine. Callers must not mutate it.
func (s *Store) Snapshot() (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded(), nil
}

func removeString(list []string, target string) []string {
	out := list[:0]
	for _, v := range list {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}

func runningAverage(avg float64, n int, sample float64) float64 {
	if n <= 1 {
		return sample
	}
	return avg + (sample-avg)/float64(n)
}
