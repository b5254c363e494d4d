package framework

import (
	"os"
	"strings"

	"github.com/sluicehq/sluice/pkg/types"
)

// Assertions provides test assertion helpers over a Harness's staged data
// directory and state store.
type Assertions struct {
	t TestingT
	h *Harness
}

// NewAssertions creates an Assertions bound to h.
func NewAssertions(t TestingT, h *Harness) *Assertions {
	return &Assertions{t: t, h: h}
}

// BatchStatus asserts batchName's recorded status equals want.
func (a *Assertions) BatchStatus(batchName string, want types.BatchStatus) {
	a.t.Helper()

	b, err := a.h.Store.GetBatch(batchName)
	if err != nil {
		a.t.Fatalf("load batch %s: %v", batchName, err)
	}
	if b == nil {
		a.t.Fatalf("batch %s has no state record", batchName)
	}
	if b.Status != want {
		a.t.Fatalf("batch %s status = %s, want %s", batchName, b.Status, want)
	}
}

// BatchCracked asserts batchName's cracked count equals want.
func (a *Assertions) BatchCracked(batchName string, want int) {
	a.t.Helper()

	b, err := a.h.Store.GetBatch(batchName)
	if err != nil {
		a.t.Fatalf("load batch %s: %v", batchName, err)
	}
	if b == nil {
		a.t.Fatalf("batch %s has no state record", batchName)
	}
	if b.Cracked != want {
		a.t.Fatalf("batch %s cracked = %d, want %d", batchName, b.Cracked, want)
	}
}

// FileContains asserts path exists and its contents contain substr.
func (a *Assertions) FileContains(path, substr string) {
	a.t.Helper()

	data, err := os.ReadFile(path)
	if err != nil {
		a.t.Fatalf("read %s: %v", path, err)
	}
	if !strings.Contains(string(data), substr) {
		a.t.Fatalf("%s does not contain %q", path, substr)
	}
}

// FileNotExists asserts path does not exist.
func (a *Assertions) FileNotExists(path string) {
	a.t.Helper()

	if _, err := os.Stat(path); err == nil {
		a.t.Fatalf("%s exists, expected it not to", path)
	} else if !os.IsNotExist(err) {
		a.t.Fatalf("stat %s: %v", path, err)
	}
}

// DiamondsPairsFile asserts the batch's hash:plain DIAMONDS file exists and
// contains substr — typically one "hash:plaintext" pair.
func (a *Assertions) DiamondsPairsFile(batchName, substr string) {
	a.t.Helper()
	a.FileContains(a.h.Cfg.Data.DiamondsDir()+"/"+batchName+".txt", substr)
}

// GlassFile asserts the batch's uncracked-residue GLASS file exists and
// contains substr.
func (a *Assertions) GlassFile(batchName, substr string) {
	a.t.Helper()
	a.FileContains(a.h.Cfg.Data.GlassDir()+"/"+batchName+".txt", substr)
}

// StateBackupExists asserts the state store's backup-before-write copy
// exists — it appears once a save overwrites an existing state file, i.e.
// from the second successful save on.
func (a *Assertions) StateBackupExists() {
	a.t.Helper()
	if _, err := os.Stat(a.h.Cfg.Data.SandStatePath() + ".bak"); err != nil {
		a.t.Fatalf("state backup file missing: %v", err)
	}
}
