package framework_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/pkg/coordservice"
	"github.com/sluicehq/sluice/pkg/orchestrator"
	"github.com/sluicehq/sluice/pkg/stage1"
	"github.com/sluicehq/sluice/pkg/stage2"
	"github.com/sluicehq/sluice/pkg/types"
	"github.com/sluicehq/sluice/test/framework"
)

// fakeCoord is a minimal stage2.CoordClient: every task completes
// instantly and cracks the hashes listed in hashesToFakeCrack.
type fakeCoord struct {
	hashesToFakeCrack []string
}

func (f *fakeCoord) CreateHashlist(ctx context.Context, name string, hashes []string) (string, error) {
	return "hl-" + name, nil
}

func (f *fakeCoord) CreateTask(ctx context.Context, hashlistID, attackCmd, wordlistFileID, ruleFileID, mask string) (string, error) {
	return "task-1", nil
}

func (f *fakeCoord) GetTaskStatus(ctx context.Context, taskID string) (coordservice.TaskStatus, error) {
	return coordservice.TaskStatus{PercentComplete: 100}, nil
}

func (f *fakeCoord) GetCrackedHashes(ctx context.Context, hashlistID string) ([]coordservice.CrackedPair, error) {
	pairs := make([]coordservice.CrackedPair, len(f.hashesToFakeCrack))
	for i, h := range f.hashesToFakeCrack {
		pairs[i] = coordservice.CrackedPair{Hash: h, Plain: "summer2024"}
	}
	return pairs, nil
}

// fakeStage1 reports a batch already synced — this harness exercises Stage
// 2 through the orchestrator, not the remote SSH side of Stage 1.
type fakeStage1 struct{}

func (fakeStage1) Process(ctx context.Context, batchName string) (stage1.Record, error) {
	return stage1.Record{Name: batchName, Status: stage1.StatusCompleted}, nil
}

type fakeFeedback struct{}

func (fakeFeedback) Process(ctx context.Context, batchName string) (types.Feedback, error) {
	return types.Feedback{RootsFound: 1, ProcessedAt: time.Time{}}, nil
}

func TestOrchestratorMaterializesFileTiersForAFreshBatch(t *testing.T) {
	h := framework.NewHarness(t, t.TempDir())

	hashA := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	hashB := "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	h.WriteSandBatch("batch-0001", []string{hashA, hashB})

	coord := &fakeCoord{hashesToFakeCrack: []string{hashA}}
	sched := stage2.New(stage2.Config{
		Coord:        coord,
		PollInterval: time.Millisecond,
		SandDir:      h.Cfg.Data.SandDir(),
		DiamondsDir:  h.Cfg.Data.DiamondsDir(),
		GlassDir:     h.Cfg.Data.GlassDir(),
	}, h.Store)

	orch := orchestrator.New(orchestrator.Config{SandDir: h.Cfg.Data.SandDir()}, h.Store, fakeStage1{}, sched, fakeFeedback{})

	res, err := orch.Run(context.Background(), "batch-0001")
	require.NoError(t, err)
	require.Equal(t, orchestrator.StepSync, res.ResumedFrom)

	asrt := framework.NewAssertions(t, h)
	asrt.BatchStatus("batch-0001", types.BatchCompleted)
	asrt.DiamondsPairsFile("batch-0001", hashA+":summer2024")
	asrt.GlassFile("batch-0001", hashB)
	asrt.StateBackupExists()

	globalPairs := filepath.Join(h.Cfg.Data.DiamondsDir(), "hash_plaintext_pairs.jsonl")
	asrt.FileContains(globalPairs, "summer2024")

	done, err := orch.IsFullyProcessed("batch-0001")
	require.NoError(t, err)
	require.True(t, done)
}
