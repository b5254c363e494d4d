package remotejob

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/metrics"
	"github.com/sluicehq/sluice/pkg/remoteshell"
)

// Kind classifies why a job failed, per spec §4.3's reporting contract.
type Kind string

const (
	KindNetwork Kind = "network"
	KindLaunch  Kind = "launch"
	KindOrphan  Kind = "orphan"
	KindTimeout Kind = "timeout"
)

// Error is a human-readable, classified job failure.
type Error struct {
	Kind   Kind
	Reason string
}

func (e *Error) Error() string { return fmt.Sprintf("%s: %s", e.Kind, e.Reason) }

// ShellClient is the subset of *remoteshell.Shell the controller needs,
// narrowed to an interface so tests can supply a fake.
type ShellClient interface {
	ExecShell(ctx context.Context, cmd string, timeout time.Duration) (string, error)
}

// Config configures one Controller.
type Config struct {
	Shell             ShellClient
	WorkDir           string        // remote working directory the cracking command runs from
	PollInterval      time.Duration // default 30s
	ReconnectCap      time.Duration // backoff cap, default 30s
	ReconnectLimit    time.Duration // total reconnect budget, default 300s
	ProbeTimeout      time.Duration // per-probe SSH exec timeout, default 15s
	LaunchConfirmWait time.Duration // post-launch confirmation wait, default 3s
	PotfileReadGap    time.Duration // gap between the 3 reconciliation reads, default 5s
}

func (c *Config) setDefaults() {
	if c.PollInterval == 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.ReconnectCap == 0 {
		c.ReconnectCap = 30 * time.Second
	}
	if c.ReconnectLimit == 0 {
		c.ReconnectLimit = 300 * time.Second
	}
	if c.ProbeTimeout == 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.LaunchConfirmWait == 0 {
		c.LaunchConfirmWait = 3 * time.Second
	}
	if c.PotfileReadGap == 0 {
		c.PotfileReadGap = 5 * time.Second
	}
}

// AttackSpec is the full remote command line for one attack plus the
// side-channel paths the controller watches.
type AttackSpec struct {
	Name        string // attack name, used only for logging/metrics
	Command     string // full cracking-binary command line
	PotfilePath string // remote path to the potfile
	LogPath     string // remote path for stdout+stderr capture
}

// Result is the reconciled outcome of one attack run.
type Result struct {
	NewCracks       int
	DurationSeconds float64
}

// Controller drives one cracking process on the GPU host through its
// IDLE->RUNNING->DONE/FAILED lifecycle for a single batch at a time.
type Controller struct {
	cfg    Config
	logger zerolog.Logger
	phase  Phase
}

// New creates a Controller. cfg.Shell must be non-nil.
func New(cfg Config) *Controller {
	cfg.setDefaults()
	return &Controller{cfg: cfg, logger: log.WithComponent("remotejob"), phase: PhaseIdle}
}

// Phase returns the controller's current position in the spec §4.3 state
// machine. Single-writer per Controller: callers never observe a phase from
// a concurrent RunAttack.
func (c *Controller) Phase() Phase { return c.phase }

func (c *Controller) setPhase(p Phase) {
	if c.phase == p {
		return
	}
	c.logger.Debug().Str("from", string(c.phase)).Str("to", string(p)).Msg("phase transition")
	c.phase = p
}

// RunAttack launches (or adopts) batchName's session running spec, polls it
// to completion, and returns the potfile-reconciled crack delta.
func (c *Controller) RunAttack(ctx context.Context, batchName string, spec AttackSpec) (Result, error) {
	logger := c.logger.With().Str("batch", batchName).Str("attack", spec.Name).Logger()
	start := time.Now()

	before, err := c.potfileCount(ctx, spec.PotfilePath)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Reason: fmt.Sprintf("read potfile before launch: %v", err)}
	}

	if err := c.launch(ctx, batchName, spec); err != nil {
		c.setPhase(PhaseFailed)
		return Result{}, err
	}
	c.setPhase(PhaseRunning)

	if err := c.pollUntilDone(ctx, logger, batchName, spec); err != nil {
		c.setPhase(PhaseFailed)
		return Result{}, err
	}
	c.setPhase(PhaseDone)

	after, err := c.reconcilePotfile(ctx, spec.PotfilePath)
	if err != nil {
		return Result{}, &Error{Kind: KindNetwork, Reason: fmt.Sprintf("read potfile after completion: %v", err)}
	}

	duration := time.Since(start).Seconds()
	newCracks := after - before
	if newCracks < 0 {
		logger.Warn().Int("before", before).Int("after", after).Msg("potfile count decreased, clamping newCracks to 0")
		newCracks = 0
	}

	metrics.AttackDuration.WithLabelValues(spec.Name).Observe(duration)
	logger.Info().Int("newCracks", newCracks).Float64("durationSeconds", duration).Msg("attack completed")

	return Result{NewCracks: newCracks, DurationSeconds: duration}, nil
}

// launch adopts an existing session with our name, refuses to proceed if a
// cracking process is running under a different session (orphan), or starts
// a fresh detached session and confirms it came up within 3s.
func (c *Controller) launch(ctx context.Context, batchName string, spec AttackSpec) error {
	sessionAlive, err := c.probeSessionAlive(ctx, batchName)
	if err != nil {
		return &Error{Kind: KindNetwork, Reason: err.Error()}
	}
	if sessionAlive {
		c.logger.Info().Str("batch", batchName).Msg("adopting existing session")
		return nil
	}

	processRunning, err := c.probeProcessRunning(ctx, spec)
	if err != nil {
		return &Error{Kind: KindNetwork, Reason: err.Error()}
	}
	if processRunning {
		return &Error{Kind: KindOrphan, Reason: "cracking process is running but not under our session name"}
	}

	// Clear a stale log from a previous attack on this spec's path before
	// launching, so the log-done probe never matches a leftover marker.
	if _, err := c.cfg.Shell.ExecShell(ctx, fmt.Sprintf("rm -f %s", shellQuote(spec.LogPath)), c.cfg.ProbeTimeout); err != nil && remoteshell.IsNetwork(err) {
		return &Error{Kind: KindNetwork, Reason: err.Error()}
	}

	launchCmd := fmt.Sprintf("cd %s && %s > %s 2>&1", shellQuote(c.cfg.WorkDir), spec.Command, shellQuote(spec.LogPath))
	tmuxCmd := fmt.Sprintf("tmux new-session -d -s %s %s", shellQuote(batchName), shellQuote("sh -c "+shellQuote(launchCmd)))
	if _, err := c.cfg.Shell.ExecShell(ctx, tmuxCmd, c.cfg.ProbeTimeout); err != nil {
		if remoteshell.IsNetwork(err) {
			return &Error{Kind: KindNetwork, Reason: err.Error()}
		}
		return &Error{Kind: KindLaunch, Reason: err.Error()}
	}

	time.Sleep(c.cfg.LaunchConfirmWait)

	processRunning, perr := c.probeProcessRunning(ctx, spec)
	sessionAlive, serr := c.probeSessionAlive(ctx, batchName)
	if perr != nil || serr != nil {
		return &Error{Kind: KindNetwork, Reason: "could not confirm launch"}
	}
	if !processRunning && !sessionAlive {
		tail, _ := c.cfg.Shell.ExecShell(ctx, fmt.Sprintf("tail -c 2000 %s 2>/dev/null || true", shellQuote(spec.LogPath)), c.cfg.ProbeTimeout)
		return &Error{Kind: KindLaunch, Reason: fmt.Sprintf("neither process nor session appeared after launch; log tail: %s", tail)}
	}
	return nil
}

// pollUntilDone runs the three-probe poll loop until the job is DONE or a
// reconnect attempt exhausts its budget. Orphans are detected at launch, not
// here.
func (c *Controller) pollUntilDone(ctx context.Context, logger zerolog.Logger, batchName string, spec AttackSpec) error {
	missed := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}

		processRunning, perr := c.probeProcessRunning(ctx, spec)
		sessionAlive, serr := c.probeSessionAlive(ctx, batchName)
		logDone, lerr := c.probeLogDone(ctx, spec)

		if perr != nil || serr != nil || lerr != nil {
			c.setPhase(PhaseReconnecting)
			if err := c.reconnect(ctx, logger, batchName); err != nil {
				return err
			}
			c.setPhase(PhaseRunning)
			continue
		}

		switch decidePoll(processRunning, sessionAlive, logDone) {
		case outcomeRunning:
			missed = 0
			logger.Debug().Msg("attack still running")
		case outcomeDone:
			return nil
		case outcomeMissed:
			missed++
			logger.Warn().Int("missed", missed).Msg("process and session both absent without a log-done marker")
			if missed >= maxMissedPolls {
				logger.Warn().Msg("treating process exit without marker as done; potfile is authoritative")
				return nil
			}
		}
	}
}

// reconnect retries the session-alive probe with backoff 10s*attempt capped
// at ReconnectCap, giving up after ReconnectLimit total elapsed time.
func (c *Controller) reconnect(ctx context.Context, logger zerolog.Logger, batchName string) error {
	deadline := time.Now().Add(c.cfg.ReconnectLimit)
	attempt := 0
	for {
		attempt++
		backoff := time.Duration(attempt) * 10 * time.Second
		if backoff > c.cfg.ReconnectCap {
			backoff = c.cfg.ReconnectCap
		}
		logger.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("ssh drop suspected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		if _, err := c.probeSessionAlive(ctx, batchName); err == nil {
			logger.Info().Msg("reconnected")
			return nil
		}

		if time.Now().After(deadline) {
			return &Error{Kind: KindTimeout, Reason: fmt.Sprintf("gave up reconnecting after %s", c.cfg.ReconnectLimit)}
		}
	}
}

// reconcilePotfile reads the potfile line count three times, PotfileReadGap
// apart, and returns the last count when the three are non-decreasing (a
// guard against reading mid-rotation). Otherwise it repeats the three-read
// sequence, up to three sequences (nine reads) in all, and then returns the
// latest count.
func (c *Controller) reconcilePotfile(ctx context.Context, path string) (int, error) {
	const reads = 3
	gap := c.cfg.PotfileReadGap

	for attempt := 0; ; attempt++ {
		counts := make([]int, 0, reads)
		nonDecreasing := true
		for i := 0; i < reads; i++ {
			count, err := c.potfileCount(ctx, path)
			if err != nil {
				return 0, err
			}
			if i > 0 && count < counts[i-1] {
				nonDecreasing = false
			}
			counts = append(counts, count)
			if i < reads-1 {
				time.Sleep(gap)
			}
		}
		if nonDecreasing {
			return counts[len(counts)-1], nil
		}
		if attempt >= 2 {
			// Three attempts at a stable read is enough; trust the latest.
			return counts[len(counts)-1], nil
		}
		c.logger.Warn().Ints("counts", counts).Msg("potfile count decreased mid-read, retrying the 3-read sequence")
	}
}

func (c *Controller) potfileCount(ctx context.Context, path string) (int, error) {
	out, err := c.cfg.Shell.ExecShell(ctx, fmt.Sprintf("wc -l < %s 2>/dev/null || echo 0", shellQuote(path)), c.cfg.ProbeTimeout)
	if err != nil {
		if remoteshell.IsNetwork(err) {
			return 0, err
		}
		return 0, nil
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(out))
	if convErr != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Controller) probeProcessRunning(ctx context.Context, spec AttackSpec) (bool, error) {
	pattern := spec.Command
	if idx := strings.IndexByte(pattern, ' '); idx > 0 {
		pattern = pattern[:idx]
	}
	return c.probeBool(ctx, fmt.Sprintf("pgrep -f %s >/dev/null 2>&1", shellQuote(pattern)))
}

func (c *Controller) probeSessionAlive(ctx context.Context, batchName string) (bool, error) {
	return c.probeBool(ctx, fmt.Sprintf("tmux has-session -t %s 2>/dev/null", shellQuote(batchName)))
}

func (c *Controller) probeLogDone(ctx context.Context, spec AttackSpec) (bool, error) {
	out, err := c.cfg.Shell.ExecShell(ctx, fmt.Sprintf("tail -c 4000 %s 2>/dev/null || true", shellQuote(spec.LogPath)), c.cfg.ProbeTimeout)
	if err != nil {
		if remoteshell.IsNetwork(err) {
			return false, err
		}
		return false, nil
	}
	return strings.Contains(out, "Exhausted") || strings.Contains(out, "Cracked"), nil
}

// probeBool runs cmd and interprets a non-zero exit as "false" (the
// condition under test didn't hold) rather than an error — only a
// network-classified failure is a genuine probe error that should trigger
// reconnection.
func (c *Controller) probeBool(ctx context.Context, cmd string) (bool, error) {
	_, err := c.cfg.Shell.ExecShell(ctx, cmd, c.cfg.ProbeTimeout)
	if err == nil {
		return true, nil
	}
	if remoteshell.IsNetwork(err) {
		return false, err
	}
	return false, nil
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

// IsOrphan reports whether err is a classified orphan-process failure.
func IsOrphan(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == KindOrphan
}
