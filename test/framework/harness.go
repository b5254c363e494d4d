package framework

import (
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sluicehq/sluice/pkg/config"
	"github.com/sluicehq/sluice/pkg/state"
)

// NewHarness stages a fresh data directory (every file tier's subdir
// created empty) under dataDir and loads an empty state store at its
// conventional path.
func NewHarness(t TestingT, dataDir string) *Harness {
	t.Helper()

	cfg := config.New()
	cfg.Data.Dir = dataDir

	for _, dir := range []string{
		cfg.Data.GravelDir(), cfg.Data.SandDir(), cfg.Data.DiamondsDir(),
		cfg.Data.GlassDir(), cfg.Data.CohortDir(), cfg.Data.FeedbackDir(),
		filepath.Dir(cfg.Data.PearlsPath()),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("stage data dir %s: %v", dir, err)
		}
	}

	store := state.New(cfg.Data.SandStatePath())
	if _, err := store.Load(); err != nil {
		t.Fatalf("load fresh state store: %v", err)
	}

	return &Harness{T: t, DataDir: dataDir, Cfg: cfg, Store: store}
}

// WriteGravelBatch writes a plain-text GRAVEL file for batchName, one
// 40-char hex hash per line — the input Stage 1 reads.
func (h *Harness) WriteGravelBatch(batchName string, hashes []string) string {
	h.T.Helper()
	path := filepath.Join(h.Cfg.Data.GravelDir(), batchName+".txt")
	if err := writeLines(path, hashes); err != nil {
		h.T.Fatalf("write gravel batch %s: %v", batchName, err)
	}
	return path
}

// WriteSandBatch writes a gzip-compressed SAND file for batchName, the
// form Stage 1 produces and Stage 2/the orchestrator read back.
func (h *Harness) WriteSandBatch(batchName string, hashes []string) string {
	h.T.Helper()
	path := filepath.Join(h.Cfg.Data.SandDir(), batchName+".txt.gz")
	f, err := os.Create(path)
	if err != nil {
		h.T.Fatalf("create sand batch %s: %v", batchName, err)
	}
	defer f.Close()

	gz := gzip.NewWriter(f)
	defer gz.Close()
	for _, hash := range hashes {
		if _, err := fmt.Fprintln(gz, hash); err != nil {
			h.T.Fatalf("write sand batch %s: %v", batchName, err)
		}
	}
	return path
}

func writeLines(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, line := range lines {
		if _, err := fmt.Fprintln(f, line); err != nil {
			return err
		}
	}
	return nil
}
