package stage2

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/coordservice"
	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/metrics"
	"github.com/sluicehq/sluice/pkg/state"
	"github.com/sluicehq/sluice/pkg/types"
)

// CoordClient is the subset of *coordservice.Client the scheduler needs,
// narrowed to an interface so tests can supply a fake.
type CoordClient interface {
	CreateHashlist(ctx context.Context, name string, hashes []string) (string, error)
	CreateTask(ctx context.Context, hashlistID, attackCmd, wordlistFileID, ruleFileID, mask string) (string, error)
	GetTaskStatus(ctx context.Context, taskID string) (coordservice.TaskStatus, error)
	GetCrackedHashes(ctx context.Context, hashlistID string) ([]coordservice.CrackedPair, error)
}

// TaskInspector is the subset of *coordservice.Inspector the scheduler falls
// back to when the HTTP status endpoint's cache lags the database (spec
// §4.9's "advanced checks the HTTP API doesn't surface").
type TaskInspector interface {
	TaskCompleted(ctx context.Context, taskID string) (bool, error)
	HashlistArchived(ctx context.Context, hashlistID string) (bool, error)
}

// Config configures a Scheduler.
type Config struct {
	Coord        CoordClient
	PollInterval time.Duration // default 30s, per spec §4.5
	MaxAttempts  int           // submission retry attempts, default 3
	RetryBackoff time.Duration // backoff unit between submission retries, default 1s

	// Inspector is optional. When set, two consecutive failed
	// GetTaskStatus polls fall back to a direct SQL read of the
	// coordination service's own Task/Hashlist tables before continuing to
	// wait — the HTTP API's cache lagging the database is exactly the case
	// spec §4.9 carries the SQL introspection half of the adapter for. A
	// nil Inspector just means the scheduler waits out the HTTP outage.
	Inspector TaskInspector

	// SandDir, DiamondsDir and GlassDir locate the file tiers this batch
	// materializes once every attack has run. Leaving SandDir or
	// DiamondsDir empty skips materialization entirely (most tests in this
	// package only care about the state-store side of Stage 2).
	SandDir     string
	DiamondsDir string
	GlassDir    string
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.MaxAttempts == 0 {
		c.MaxAttempts = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = time.Second
	}
}

// Scheduler drives one SAND batch through the default attack order.
type Scheduler struct {
	cfg    Config
	state  *state.Store
	logger zerolog.Logger
}

// New creates a Scheduler backed by stateStore.
func New(cfg Config, stateStore *state.Store) *Scheduler {
	cfg.setDefaults()
	return &Scheduler{cfg: cfg, state: stateStore, logger: log.WithComponent("stage2")}
}

// RunBatch drives batchName through every attack in attacksRemaining until
// empty. loadHashes is called only if batchName has no state record yet, to
// register a new hashlist with the coordination service.
func (s *Scheduler) RunBatch(ctx context.Context, batchName string, loadHashes func() ([]string, error)) error {
	logger := s.logger.With().Str("batch", batchName).Logger()

	batch, err := s.state.GetBatch(batchName)
	if err != nil {
		return fmt.Errorf("load batch %s: %w", batchName, err)
	}
	if batch == nil {
		hashes, err := loadHashes()
		if err != nil {
			return fmt.Errorf("load sand hashes for %s: %w", batchName, err)
		}
		hashlistID, err := s.cfg.Coord.CreateHashlist(ctx, batchName, hashes)
		if err != nil {
			return fmt.Errorf("create hashlist for %s: %w", batchName, err)
		}
		batch, err = s.state.InitBatch(batchName, hashlistID, len(hashes), DefaultOrder())
		if err != nil {
			return fmt.Errorf("init batch %s: %w", batchName, err)
		}
		logger.Info().Str("hashlistId", hashlistID).Int("hashCount", len(hashes)).Msg("registered new batch")
	}

	for len(batch.AttacksRemaining) > 0 {
		name := batch.AttacksRemaining[0]
		attack, ok := ByName(name)
		if !ok {
			return fmt.Errorf("batch %s: attack %q is not in the compiled-in attack table", batchName, name)
		}

		if err := s.runOneAttack(ctx, logger, batchName, batch, attack); err != nil {
			if failErr := s.state.FailBatch(batchName, err); failErr != nil {
				logger.Error().Err(failErr).Msg("failed to persist batch failure")
			}
			return fmt.Errorf("batch %s: attack %s: %w", batchName, name, err)
		}

		batch, err = s.state.GetBatch(batchName)
		if err != nil {
			return fmt.Errorf("reload batch %s: %w", batchName, err)
		}
	}

	logger.Info().Int("cracked", batch.Cracked).Msg("batch exhausted all attacks")

	if err := s.materializeBatch(ctx, batchName, batch.HashlistID); err != nil {
		return fmt.Errorf("materialize diamonds/glass for %s: %w", batchName, err)
	}
	return nil
}

// runOneAttack submits attack, polls it to completion, and records the
// outcome. Submission failures retry with linear backoff up to
// cfg.MaxAttempts before being surfaced to the caller.
func (s *Scheduler) runOneAttack(ctx context.Context, logger zerolog.Logger, batchName string, batch *types.Batch, attack Attack) error {
	before, err := s.crackedCount(ctx, batch.HashlistID)
	if err != nil {
		return fmt.Errorf("read baseline cracked count: %w", err)
	}

	start := time.Now()
	var taskID string
	for attempt := 1; ; attempt++ {
		taskID, err = s.cfg.Coord.CreateTask(ctx, batch.HashlistID, attack.Command, attack.WordlistID, attack.RuleID, attack.Mask)
		if err == nil {
			break
		}
		if attempt >= s.cfg.MaxAttempts {
			return fmt.Errorf("submit attack %s after %d attempts: %w", attack.Name, attempt, err)
		}
		logger.Warn().Err(err).Str("attack", attack.Name).Int("attempt", attempt).Msg("attack submission failed, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * s.cfg.RetryBackoff):
		}
	}

	if err := s.state.StartAttack(batchName, attack.Name, taskID); err != nil {
		return fmt.Errorf("record attack start: %w", err)
	}
	logger.Info().Str("attack", attack.Name).Str("taskId", taskID).Msg("attack submitted")

	if err := s.pollUntilComplete(ctx, taskID, batch.HashlistID); err != nil {
		return fmt.Errorf("poll task %s: %w", taskID, err)
	}

	after, err := s.crackedCount(ctx, batch.HashlistID)
	if err != nil {
		return fmt.Errorf("read final cracked count: %w", err)
	}
	delta := after - before
	if delta < 0 {
		delta = 0
	}
	duration := time.Since(start).Seconds()

	if err := s.state.CompleteAttack(batchName, attack.Name, delta, duration); err != nil {
		return fmt.Errorf("record attack completion: %w", err)
	}

	metrics.AttackCracksTotal.WithLabelValues(attack.Name).Add(float64(delta))
	metrics.BatchCracked.WithLabelValues(batchName).Add(float64(delta))
	logger.Info().Str("attack", attack.Name).Int("newCracks", delta).Float64("durationSeconds", duration).Msg("attack completed")
	return nil
}

// pollUntilComplete waits for the task to reach 100% progress or archival,
// at cfg.PollInterval. A successfully submitted attack is never cancelled —
// the GPU host is exclusively ours and a restart costs more than waiting.
//
// Two consecutive GetTaskStatus failures fall back to cfg.Inspector (when
// configured) so a lagging HTTP cache doesn't stall the batch behind a
// status endpoint that the database already disagrees with.
func (s *Scheduler) pollUntilComplete(ctx context.Context, taskID, hashlistID string) error {
	missedPolls := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.cfg.PollInterval):
		}

		status, err := s.cfg.Coord.GetTaskStatus(ctx, taskID)
		if err != nil {
			missedPolls++
			s.logger.Warn().Err(err).Str("taskId", taskID).Msg("task status poll failed, will retry next interval")
			if s.cfg.Inspector != nil && missedPolls >= 2 {
				done, insErr := s.taskDoneViaInspector(ctx, taskID, hashlistID)
				if insErr != nil {
					s.logger.Warn().Err(insErr).Str("taskId", taskID).Msg("sql introspection fallback also failed")
				} else if done {
					s.logger.Info().Str("taskId", taskID).Msg("task completion confirmed via sql introspection after HTTP status lagged")
					return nil
				}
			}
			continue
		}
		missedPolls = 0
		if status.IsArchived || status.PercentComplete >= 100 {
			return nil
		}
	}
}

// taskDoneViaInspector consults the coordination service's own database:
// first the Task table's completion flag, then the Hashlist's archival flag
// (the getTaskStatus isArchived bit tracks per-task archival; the hashlist
// can be archived independently, e.g. by a storage-quota sweep).
func (s *Scheduler) taskDoneViaInspector(ctx context.Context, taskID, hashlistID string) (bool, error) {
	completed, err := s.cfg.Inspector.TaskCompleted(ctx, taskID)
	if err != nil {
		return false, err
	}
	if completed {
		return true, nil
	}
	return s.cfg.Inspector.HashlistArchived(ctx, hashlistID)
}

func (s *Scheduler) crackedCount(ctx context.Context, hashlistID string) (int, error) {
	pairs, err := s.cfg.Coord.GetCrackedHashes(ctx, hashlistID)
	if err != nil {
		return 0, err
	}
	return len(pairs), nil
}
