package stage2

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/pkg/coordservice"
	"github.com/sluicehq/sluice/pkg/state"
	"github.com/sluicehq/sluice/pkg/types"
)

// fakeCoord simulates the coordination service: every CreateTask call is an
// immediately-complete task, and bumps the hashlist's cracked count by a
// fixed increment so before/after deltas are deterministic.
type fakeCoord struct {
	mu          sync.Mutex
	crackedLen  int
	increment   int
	taskCounter int
	failFirstN  int
	calls       int
}

func (f *fakeCoord) CreateHashlist(ctx context.Context, name string, hashes []string) (string, error) {
	return "hl-" + name, nil
}

func (f *fakeCoord) CreateTask(ctx context.Context, hashlistID, attackCmd, wordlistFileID, ruleFileID, mask string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.calls <= f.failFirstN {
		return "", errors.New("simulated 503")
	}
	f.taskCounter++
	f.crackedLen += f.increment
	return "task-" + string(rune('0'+f.taskCounter)), nil
}

func (f *fakeCoord) GetTaskStatus(ctx context.Context, taskID string) (coordservice.TaskStatus, error) {
	return coordservice.TaskStatus{PercentComplete: 100}, nil
}

func (f *fakeCoord) GetCrackedHashes(ctx context.Context, hashlistID string) ([]coordservice.CrackedPair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	pairs := make([]coordservice.CrackedPair, f.crackedLen)
	return pairs, nil
}

// laggingCoord always fails GetTaskStatus, simulating an HTTP status
// endpoint whose cache never catches up within the test.
type laggingCoord struct {
	fakeCoord
}

func (l *laggingCoord) GetTaskStatus(ctx context.Context, taskID string) (coordservice.TaskStatus, error) {
	return coordservice.TaskStatus{}, errors.New("status endpoint unavailable")
}

// fakeInspector simulates coordservice.Inspector's SQL introspection,
// reporting the task done once calls reaches doneAfter.
type fakeInspector struct {
	mu        sync.Mutex
	calls     int
	doneAfter int
}

func (f *fakeInspector) TaskCompleted(ctx context.Context, taskID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.calls >= f.doneAfter, nil
}

func (f *fakeInspector) HashlistArchived(ctx context.Context, hashlistID string) (bool, error) {
	return false, nil
}

func testStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New(filepath.Join(t.TempDir(), "sand-state.json"))
	_, err := s.Load()
	require.NoError(t, err)
	return s
}

func TestRunBatchExistingRecordDrivesRemainingAttacks(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0001", "hl-0001", 100, []string{"brute-3-digit", "brute-4-digit"})
	require.NoError(t, err)

	coord := &fakeCoord{increment: 5}
	sched := New(Config{Coord: coord, PollInterval: time.Millisecond}, store)

	err = sched.RunBatch(context.Background(), "batch-0001", func() ([]string, error) {
		t.Fatal("loadHashes should not be called for an existing batch record")
		return nil, nil
	})
	require.NoError(t, err)

	batch, err := store.GetBatch("batch-0001")
	require.NoError(t, err)
	require.Equal(t, types.BatchCompleted, batch.Status)
	require.Equal(t, 10, batch.Cracked)
	require.Empty(t, batch.AttacksRemaining)
	require.Equal(t, []string{"brute-3-digit", "brute-4-digit"}, batch.AttacksApplied)
}

func TestRunBatchNewRecordRegistersHashlist(t *testing.T) {
	store := testStore(t)
	coord := &fakeCoord{increment: 1}
	sched := New(Config{Coord: coord, PollInterval: time.Millisecond}, store)

	loadCalls := 0
	err := sched.RunBatch(context.Background(), "batch-0002", func() ([]string, error) {
		loadCalls++
		return []string{"A", "B", "C"}, nil
	})
	require.NoError(t, err)
	require.Equal(t, 1, loadCalls)

	batch, err := store.GetBatch("batch-0002")
	require.NoError(t, err)
	require.Equal(t, "hl-batch-0002", batch.HashlistID)
	require.Equal(t, 3, batch.HashCount)
	require.Equal(t, types.BatchCompleted, batch.Status)
	require.Equal(t, DefaultOrder(), batch.AttacksApplied)
}

func TestRunBatchRetriesSubmissionThenSucceeds(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0003", "hl-0003", 50, []string{"brute-3-digit"})
	require.NoError(t, err)

	coord := &fakeCoord{increment: 2, failFirstN: 2}
	sched := New(Config{Coord: coord, PollInterval: time.Millisecond, RetryBackoff: time.Millisecond}, store)

	err = sched.RunBatch(context.Background(), "batch-0003", nil)
	require.NoError(t, err)
	require.Equal(t, 3, coord.calls)

	batch, err := store.GetBatch("batch-0003")
	require.NoError(t, err)
	require.Equal(t, types.BatchCompleted, batch.Status)
}

func TestRunBatchFailsAfterExhaustingRetries(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0004", "hl-0004", 50, []string{"brute-3-digit"})
	require.NoError(t, err)

	coord := &fakeCoord{failFirstN: 10}
	sched := New(Config{Coord: coord, PollInterval: time.Millisecond, RetryBackoff: time.Millisecond, MaxAttempts: 3}, store)

	err = sched.RunBatch(context.Background(), "batch-0004", nil)
	require.Error(t, err)
	require.Equal(t, 3, coord.calls)

	batch, err := store.GetBatch("batch-0004")
	require.NoError(t, err)
	require.Equal(t, types.BatchFailed, batch.Status)
	require.Contains(t, batch.Error, "brute-3-digit")
}

func TestRunBatchFallsBackToInspectorWhenStatusLags(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0006", "hl-0006", 50, []string{"brute-3-digit"})
	require.NoError(t, err)

	coord := &laggingCoord{fakeCoord: fakeCoord{increment: 4}}
	inspector := &fakeInspector{doneAfter: 2}
	sched := New(Config{
		Coord:        coord,
		Inspector:    inspector,
		PollInterval: time.Millisecond,
	}, store)

	err = sched.RunBatch(context.Background(), "batch-0006", nil)
	require.NoError(t, err)

	batch, err := store.GetBatch("batch-0006")
	require.NoError(t, err)
	require.Equal(t, types.BatchCompleted, batch.Status)
}

func TestRunBatchUnknownAttackNameErrors(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0005", "hl-0005", 10, []string{"not-a-real-attack"})
	require.NoError(t, err)

	coord := &fakeCoord{}
	sched := New(Config{Coord: coord, PollInterval: time.Millisecond}, store)

	err = sched.RunBatch(context.Background(), "batch-0005", nil)
	require.Error(t, err)
}
