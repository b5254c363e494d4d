package orchestrator

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/pkg/stage1"
	"github.com/sluicehq/sluice/pkg/state"
	"github.com/sluicehq/sluice/pkg/types"
)

type fakeStage1 struct {
	calls int
	err   error
}

func (f *fakeStage1) Process(ctx context.Context, batchName string) (stage1.Record, error) {
	f.calls++
	if f.err != nil {
		return stage1.Record{}, f.err
	}
	return stage1.Record{Name: batchName, Status: stage1.StatusCompleted}, nil
}

type fakeStage2 struct {
	calls      int
	err        error
	hashesSeen []string
}

func (f *fakeStage2) RunBatch(ctx context.Context, batchName string, loadHashes func() ([]string, error)) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if loadHashes != nil {
		hashes, err := loadHashes()
		if err != nil {
			return err
		}
		f.hashesSeen = hashes
	}
	return nil
}

type fakeFeedback struct {
	calls int
	err   error
	fb    types.Feedback
}

func (f *fakeFeedback) Process(ctx context.Context, batchName string) (types.Feedback, error) {
	f.calls++
	if f.err != nil {
		return types.Feedback{}, f.err
	}
	return f.fb, nil
}

func testStore(t *testing.T) *state.Store {
	t.Helper()
	s := state.New(filepath.Join(t.TempDir(), "sand-state.json"))
	_, err := s.Load()
	require.NoError(t, err)
	return s
}

func writeSandFile(t *testing.T, dir, batchName string, hashes []string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(dir, 0o755))
	f, err := os.Create(filepath.Join(dir, batchName+".txt.gz"))
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	for _, h := range hashes {
		_, err := gz.Write([]byte(h + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())
}

func TestResumeStepNoRecordIsSync(t *testing.T) {
	store := testStore(t)
	o := New(Config{}, store, &fakeStage1{}, &fakeStage2{}, &fakeFeedback{})

	step, err := o.ResumeStep("batch-0001")
	require.NoError(t, err)
	require.Equal(t, StepSync, step)
}

func TestResumeStepAttacksRemainingIsAttacks(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0001", "hl-0001", 10, []string{"brute-3-digit", "brute-4-digit"})
	require.NoError(t, err)
	require.NoError(t, store.StartAttack("batch-0001", "brute-3-digit", "task-1"))

	o := New(Config{}, store, &fakeStage1{}, &fakeStage2{}, &fakeFeedback{})
	step, err := o.ResumeStep("batch-0001")
	require.NoError(t, err)
	require.Equal(t, StepAttacks, step)
}

func TestResumeStepCompletedNoFeedbackIsFeedback(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0001", "hl-0001", 10, []string{"brute-3-digit"})
	require.NoError(t, err)
	require.NoError(t, store.StartAttack("batch-0001", "brute-3-digit", "task-1"))
	require.NoError(t, store.CompleteAttack("batch-0001", "brute-3-digit", 3, 1.0))

	o := New(Config{}, store, &fakeStage1{}, &fakeStage2{}, &fakeFeedback{})
	step, err := o.ResumeStep("batch-0001")
	require.NoError(t, err)
	require.Equal(t, StepFeedback, step)

	done, err := o.IsFullyProcessed("batch-0001")
	require.NoError(t, err)
	require.False(t, done)
}

func TestRunDrivesFullyThroughOnFreshBatch(t *testing.T) {
	dir := t.TempDir()
	sandDir := filepath.Join(dir, "sand")
	writeSandFile(t, sandDir, "batch-0001", []string{"AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"})

	store := testStore(t)
	s1 := &fakeStage1{}
	s2 := &stage2CompletingFake{store: store}
	fb := &fakeFeedback{fb: types.Feedback{RootsFound: 2}}

	o := New(Config{SandDir: sandDir}, store, s1, s2, fb)

	res, err := o.Run(context.Background(), "batch-0001")
	require.NoError(t, err)
	require.Equal(t, StepSync, res.ResumedFrom)
	require.Equal(t, 1, s1.calls)
	require.Equal(t, 1, s2.calls)
	require.Equal(t, 1, fb.calls)
	require.NoError(t, res.FeedbackErr)
	require.NotNil(t, res.Batch.Feedback)
	require.Equal(t, 2, res.Batch.Feedback.RootsFound)

	done, err := o.IsFullyProcessed("batch-0001")
	require.NoError(t, err)
	require.True(t, done)
}

// stage2CompletingFake drives a batch to completion against the real state
// store as a side effect of RunBatch, the way the real scheduler does.
type stage2CompletingFake struct {
	store *state.Store
	calls int
}

func (f *stage2CompletingFake) RunBatch(ctx context.Context, batchName string, loadHashes func() ([]string, error)) error {
	f.calls++
	if loadHashes != nil {
		if _, err := loadHashes(); err != nil {
			return err
		}
	}
	if _, err := f.store.InitBatch(batchName, "hl-"+batchName, 10, []string{"brute-3-digit"}); err != nil {
		return err
	}
	if err := f.store.StartAttack(batchName, "brute-3-digit", "task-1"); err != nil {
		return err
	}
	return f.store.CompleteAttack(batchName, "brute-3-digit", 3, 1.0)
}

func TestRunSkipsFeedbackWhenAlreadyRecorded(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0002", "hl-0002", 10, []string{"brute-3-digit"})
	require.NoError(t, err)
	require.NoError(t, store.StartAttack("batch-0002", "brute-3-digit", "task-1"))
	require.NoError(t, store.CompleteAttack("batch-0002", "brute-3-digit", 1, 1.0))
	require.NoError(t, store.SetFeedback("batch-0002", types.Feedback{RootsFound: 5}))

	fb := &fakeFeedback{}
	o := New(Config{}, store, &fakeStage1{}, &fakeStage2{}, fb)

	res, err := o.Run(context.Background(), "batch-0002")
	require.NoError(t, err)
	require.Equal(t, StepDone, res.ResumedFrom)
	require.Equal(t, 0, fb.calls, "feedback must not be re-run once already recorded")
}

func TestRunReturnsResumeErrorOnStage1Failure(t *testing.T) {
	store := testStore(t)
	s1 := &fakeStage1{err: os.ErrInvalid}
	o := New(Config{}, store, s1, &fakeStage2{}, &fakeFeedback{})

	_, err := o.Run(context.Background(), "batch-0003")
	require.Error(t, err)
	require.Contains(t, err.Error(), "--resume")
}

func TestRunRecordsFeedbackErrorWithoutFailingRun(t *testing.T) {
	store := testStore(t)
	_, err := store.InitBatch("batch-0004", "hl-0004", 10, []string{"brute-3-digit"})
	require.NoError(t, err)
	require.NoError(t, store.StartAttack("batch-0004", "brute-3-digit", "task-1"))
	require.NoError(t, store.CompleteAttack("batch-0004", "brute-3-digit", 1, 1.0))

	fb := &fakeFeedback{err: os.ErrPermission}
	o := New(Config{}, store, &fakeStage1{}, &fakeStage2{}, fb)

	res, runErr := o.Run(context.Background(), "batch-0004")
	require.NoError(t, runErr)
	require.Error(t, res.FeedbackErr)
}
