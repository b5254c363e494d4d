package remotejob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/pkg/remoteshell"
)

// scriptedShell is a fake ShellClient whose responses are driven by simple
// substring matching against the command, so tests can script a sequence of
// probe outcomes without a real SSH connection.
type scriptedShell struct {
	mu           sync.Mutex
	sessionAlive bool
	processAlive bool
	potfileLines int
	logMarker    bool
}

func (s *scriptedShell) ExecShell(_ context.Context, cmd string, _ time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case strings.Contains(cmd, "tmux has-session"):
		if s.sessionAlive {
			return "", nil
		}
		return "", &remoteshell.Error{Kind: remoteshell.KindLaunch, Cause: fmt.Errorf("no session")}
	case strings.Contains(cmd, "tmux new-session"):
		s.sessionAlive = true
		s.processAlive = true
		return "", nil
	case strings.Contains(cmd, "pgrep -f"):
		if s.processAlive {
			return "", nil
		}
		return "", &remoteshell.Error{Kind: remoteshell.KindLaunch, Cause: fmt.Errorf("no match")}
	case strings.Contains(cmd, "tail -c 4000"):
		if s.logMarker {
			return "Status: Cracked", nil
		}
		return "Status: Running", nil
	case strings.Contains(cmd, "tail -c 2000"):
		return "launch failed output", nil
	case strings.Contains(cmd, "wc -l"):
		return fmt.Sprintf("%d", s.potfileLines), nil
	case strings.Contains(cmd, "rm -f"):
		return "", nil
	}
	return "", nil
}

func testConfig(shell ShellClient) Config {
	return Config{
		Shell:             shell,
		WorkDir:           "/opt/sluice",
		PollInterval:      10 * time.Millisecond,
		ReconnectCap:      20 * time.Millisecond,
		ReconnectLimit:    100 * time.Millisecond,
		ProbeTimeout:      time.Second,
		LaunchConfirmWait: time.Millisecond,
		PotfileReadGap:    time.Millisecond,
	}
}

func TestRunAttackHappyPath(t *testing.T) {
	shell := &scriptedShell{potfileLines: 100}
	c := New(testConfig(shell))

	spec := AttackSpec{
		Name:        "brute-4",
		Command:     "hashcat -m 100 hashes.txt -a 3",
		PotfilePath: "/opt/sluice/potfiles/batch-0001.pot",
		LogPath:     "/opt/sluice/logs/batch-0001.log",
	}

	// After launch, the session comes alive; mark the log done and bump the
	// potfile count once polling has started so RunAttack observes the
	// DONE transition on roughly the first poll.
	go func() {
		time.Sleep(15 * time.Millisecond)
		shell.mu.Lock()
		shell.logMarker = true
		shell.processAlive = false
		shell.sessionAlive = false
		shell.potfileLines = 137
		shell.mu.Unlock()
	}()

	result, err := c.RunAttack(context.Background(), "batch-0001", spec)
	require.NoError(t, err)
	require.Equal(t, 37, result.NewCracks)
	require.Equal(t, PhaseDone, c.Phase())
}

func TestControllerPhaseStartsIdle(t *testing.T) {
	c := New(testConfig(&scriptedShell{}))
	require.Equal(t, PhaseIdle, c.Phase())
}

func TestRunAttackOrphanDetected(t *testing.T) {
	shell := &scriptedShell{processAlive: true, sessionAlive: false}
	c := New(testConfig(shell))

	spec := AttackSpec{
		Name:        "brute-4",
		Command:     "hashcat -m 100 hashes.txt -a 3",
		PotfilePath: "/opt/sluice/potfiles/batch-0001.pot",
		LogPath:     "/opt/sluice/logs/batch-0001.log",
	}

	_, err := c.RunAttack(context.Background(), "batch-0001", spec)
	require.Error(t, err)
	require.True(t, IsOrphan(err))
	require.Equal(t, PhaseFailed, c.Phase())
}

func TestRunAttackAdoptsExistingSession(t *testing.T) {
	shell := &scriptedShell{sessionAlive: true, processAlive: true, potfileLines: 5}
	c := New(testConfig(shell))

	spec := AttackSpec{
		Name:        "brute-4",
		Command:     "hashcat -m 100 hashes.txt -a 3",
		PotfilePath: "/opt/sluice/potfiles/batch-0001.pot",
		LogPath:     "/opt/sluice/logs/batch-0001.log",
	}

	go func() {
		time.Sleep(15 * time.Millisecond)
		shell.mu.Lock()
		shell.logMarker = true
		shell.processAlive = false
		shell.sessionAlive = false
		shell.potfileLines = 12
		shell.mu.Unlock()
	}()

	result, err := c.RunAttack(context.Background(), "batch-0001", spec)
	require.NoError(t, err)
	require.Equal(t, 7, result.NewCracks)
}

func TestRunAttackMissedPollsEndsDone(t *testing.T) {
	// A fresh launch succeeds normally, but the process then exits without
	// ever writing a terminal marker: two consecutive missed polls should
	// still resolve to DONE, trusting the potfile.
	shell := &scriptedShell{sessionAlive: false, processAlive: false, potfileLines: 9}
	c := New(testConfig(shell))

	spec := AttackSpec{
		Name:        "brute-4",
		Command:     "hashcat -m 100 hashes.txt -a 3",
		PotfilePath: "/opt/sluice/potfiles/batch-0001.pot",
		LogPath:     "/opt/sluice/logs/batch-0001.log",
	}

	// The fake's own tmux-new-session handler marks the session+process
	// alive at launch. Simulate the process vanishing without a marker
	// shortly after, once polling is underway.
	go func() {
		time.Sleep(15 * time.Millisecond)
		shell.mu.Lock()
		shell.processAlive = false
		shell.sessionAlive = false
		shell.potfileLines = 20
		shell.mu.Unlock()
	}()

	result, err := c.RunAttack(context.Background(), "batch-0001", spec)
	require.NoError(t, err)
	require.Equal(t, 11, result.NewCracks)
}
