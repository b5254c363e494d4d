// Package orchestrator drives one SAND batch through the five-step batch
// state machine (SYNC, ATTACKS, COLLECT, FEEDBACK, REBUILD), computing its
// resume point from the state store alone so a crash at any step is safe to
// restart.
package orchestrator

import (
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/material"
	"github.com/sluicehq/sluice/pkg/stage1"
	"github.com/sluicehq/sluice/pkg/state"
	"github.com/sluicehq/sluice/pkg/types"
)

// Step names one of the five stages a batch passes through.
type Step string

const (
	StepSync     Step = "sync"
	StepAttacks  Step = "attacks"
	StepCollect  Step = "collect"
	StepFeedback Step = "feedback"
	StepRebuild  Step = "rebuild"
	StepDone     Step = "done"
)

// Stage1Processor is the subset of *stage1.Processor the orchestrator needs.
type Stage1Processor interface {
	Process(ctx context.Context, batchName string) (stage1.Record, error)
}

// Stage2Scheduler is the subset of *stage2.Scheduler the orchestrator needs.
type Stage2Scheduler interface {
	RunBatch(ctx context.Context, batchName string, loadHashes func() ([]string, error)) error
}

// FeedbackAnalyzer is the subset of *feedback.Analyzer the orchestrator needs.
type FeedbackAnalyzer interface {
	Process(ctx context.Context, batchName string) (types.Feedback, error)
}

// Config configures an Orchestrator.
type Config struct {
	SandDir string // where Stage 1 writes batch-NNNN.txt.gz; read back to seed Stage 2's hashlist

	// RebuildCommand, if set, is invoked after a successful FEEDBACK pass to
	// regenerate whatever derived assets (merged dictionaries, compiled
	// rule files) the next Stage 1 run depends on. Empty makes REBUILD a
	// no-op.
	RebuildCommand []string
	RebuildTimeout time.Duration
}

func (c *Config) setDefaults() {
	if c.RebuildTimeout == 0 {
		c.RebuildTimeout = 2 * time.Minute
	}
}

// Orchestrator is the batch state machine described in spec §4.7.
type Orchestrator struct {
	cfg      Config
	state    *state.Store
	stage1   Stage1Processor
	stage2   Stage2Scheduler
	feedback FeedbackAnalyzer
	logger   zerolog.Logger
}

// New creates an Orchestrator.
func New(cfg Config, store *state.Store, s1 Stage1Processor, s2 Stage2Scheduler, fb FeedbackAnalyzer) *Orchestrator {
	cfg.setDefaults()
	return &Orchestrator{cfg: cfg, state: store, stage1: s1, stage2: s2, feedback: fb, logger: log.WithComponent("orchestrator")}
}

// ResumeStep computes, from state alone, which step batchName should
// (re)start at. No sidecar file is consulted.
func (o *Orchestrator) ResumeStep(batchName string) (Step, error) {
	b, err := o.state.GetBatch(batchName)
	if err != nil {
		return "", fmt.Errorf("load batch %s: %w", batchName, err)
	}
	if b == nil || b.Status == types.BatchPending || b.Status == types.BatchFailed {
		return StepSync, nil
	}
	if b.Status == types.BatchInProgress {
		if len(b.AttacksRemaining) > 0 {
			return StepAttacks, nil
		}
		return StepCollect, nil
	}
	if b.Feedback == nil {
		return StepFeedback, nil
	}
	return StepDone, nil
}

// IsFullyProcessed reports whether batchName needs no further work — used by
// --next to skip batches that have already been through FEEDBACK.
func (o *Orchestrator) IsFullyProcessed(batchName string) (bool, error) {
	step, err := o.ResumeStep(batchName)
	if err != nil {
		return false, err
	}
	return step == StepDone, nil
}

// Result summarizes one Run invocation.
type Result struct {
	Batch       *types.Batch
	ResumedFrom Step
	FeedbackErr error // non-fatal: batch's cracks are already durable
	RebuildErr  error // non-fatal: feedback is already durable
}

// Run drives batchName through whichever steps remain. A failure in
// SYNC/ATTACKS/COLLECT is fatal and returned as an error naming a
// copy-pasteable resume command, per spec §4.7's failure semantics. FEEDBACK
// and REBUILD failures are recorded on Result instead of failing the run,
// since the batch's cracks are durable by the time either step runs.
func (o *Orchestrator) Run(ctx context.Context, batchName string) (Result, error) {
	step, err := o.ResumeStep(batchName)
	if err != nil {
		return Result{}, err
	}
	logger := o.logger.With().Str("batch", batchName).Str("resumedFrom", string(step)).Logger()
	logger.Info().Msg("starting batch run")

	if step == StepSync || step == StepAttacks || step == StepCollect {
		if _, err := o.stage1.Process(ctx, batchName); err != nil {
			return Result{}, o.resumeErr(batchName, StepSync, err)
		}
		loadHashes := func() ([]string, error) { return o.loadSandHashes(batchName) }
		if err := o.stage2.RunBatch(ctx, batchName, loadHashes); err != nil {
			return Result{}, o.resumeErr(batchName, StepAttacks, err)
		}
	}

	batch, err := o.state.GetBatch(batchName)
	if err != nil {
		return Result{}, fmt.Errorf("reload batch %s after attacks: %w", batchName, err)
	}
	res := Result{Batch: batch, ResumedFrom: step}

	if batch.Feedback == nil {
		fb, ferr := o.feedback.Process(ctx, batchName)
		if ferr != nil {
			res.FeedbackErr = ferr
			logger.Error().Err(ferr).Msg("feedback stage failed; batch cracks remain durable, retry the feedback step alone")
			return res, nil
		}
		if err := o.state.SetFeedback(batchName, fb); err != nil {
			res.FeedbackErr = fmt.Errorf("persist feedback: %w", err)
			return res, nil
		}
		batch, err = o.state.GetBatch(batchName)
		if err != nil {
			return res, fmt.Errorf("reload batch %s after feedback: %w", batchName, err)
		}
		res.Batch = batch
	}

	if err := o.rebuild(ctx, logger); err != nil {
		res.RebuildErr = err
		logger.Error().Err(err).Msg("rebuild step failed, non-fatal")
	}
	return res, nil
}

func (o *Orchestrator) resumeErr(batchName string, step Step, cause error) error {
	batchArg := batchName
	if n, err := strconv.Atoi(strings.TrimPrefix(batchName, "batch-")); err == nil {
		batchArg = strconv.Itoa(n)
	}
	return fmt.Errorf("batch %s failed at %s: %w (resume with: sluice --batch %s --resume)", batchName, step, cause, batchArg)
}

// loadSandHashes reads batchName's SAND file (written by Stage 1) back into
// a sorted hash list, used only the first time Stage 2 registers a batch's
// hashlist with the coordination service.
func (o *Orchestrator) loadSandHashes(batchName string) ([]string, error) {
	path := filepath.Join(o.cfg.SandDir, batchName+".txt.gz")
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open sand file %s: %w", path, err)
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("open gzip reader for %s: %w", path, err)
	}
	defer gz.Close()

	set, err := material.LoadHashSet(gz)
	if err != nil {
		return nil, fmt.Errorf("parse sand file %s: %w", path, err)
	}
	hashes := make([]string, 0, len(set))
	for h := range set {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)
	return hashes, nil
}

// rebuild runs the configured rebuild command, if any, after a successful
// FEEDBACK pass.
func (o *Orchestrator) rebuild(ctx context.Context, logger zerolog.Logger) error {
	if len(o.cfg.RebuildCommand) == 0 {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, o.cfg.RebuildTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, o.cfg.RebuildCommand[0], o.cfg.RebuildCommand[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("rebuild command %v: %w (output: %s)", o.cfg.RebuildCommand, err, strings.TrimSpace(string(out)))
	}
	logger.Info().Str("output", strings.TrimSpace(string(out))).Msg("rebuild step complete")
	return nil
}
