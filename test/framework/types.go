// Package framework is an integration harness for sluice's CLI: it stages
// a temporary data directory with the GRAVEL/SAND/PEARLS/DIAMONDS/GLASS file
// tiers and a state store, then lets a test drive the orchestrator and
// assert on what landed on disk, without a live remote host or
// coordination service.
package framework

import (
	"time"

	"github.com/sluicehq/sluice/pkg/config"
	"github.com/sluicehq/sluice/pkg/state"
)

// TestingT is an interface matching *testing.T, so the framework can run
// under any test runner without importing "testing" directly.
type TestingT interface {
	Logf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Fatalf(format string, args ...interface{})
	FailNow()
	Failed() bool
	Name() string
	Helper()
}

// Harness owns one staged data directory and the config/state pair pointed
// at it. Config.Remote and Config.CoordService keep config.New()'s defaults —
// callers that need a live shell/coordination client inject fakes directly
// into the component under test rather than through the harness.
type Harness struct {
	T       TestingT
	DataDir string
	Cfg     *config.Config
	Store   *state.Store
}

const defaultPollInterval = 50 * time.Millisecond
