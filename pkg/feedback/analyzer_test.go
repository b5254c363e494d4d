package feedback

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAnalyzerProcessEndToEnd(t *testing.T) {
	dir := t.TempDir()
	diamondsDir := filepath.Join(dir, "diamonds")
	require.NoError(t, os.MkdirAll(diamondsDir, 0o755))

	plaintexts := "dragonfly2024\ndragonfly7\ndragonfly99\nfalconry1\nfalconry2\nfalconry3\ncarlosalberto9\nqq\nxQ7$kP9!vZ2@\n"
	require.NoError(t, os.WriteFile(filepath.Join(diamondsDir, "passwords-batch-0001.txt"), []byte(plaintexts), 0o644))

	a := New(Config{
		DiamondsDir: diamondsDir,
		BetaPath:    filepath.Join(dir, "feedback", "BETA.txt"),
		RulePath:    filepath.Join(dir, "feedback", "unobtainium.rule"),
		CohortDir:   filepath.Join(dir, "cohorts"),
	})

	fb, err := a.Process(context.Background(), "batch-0001")
	require.NoError(t, err)
	require.Greater(t, fb.RootsFound, 0)
	require.Greater(t, fb.BetaAdded, 0)

	data, err := os.ReadFile(filepath.Join(dir, "feedback", "BETA.txt"))
	require.NoError(t, err)
	require.Contains(t, string(data), "carlosalberto")
	require.Contains(t, string(data), "dragonfly")
}

func TestAnalyzerProcessIsIdempotentOnSecondRun(t *testing.T) {
	dir := t.TempDir()
	diamondsDir := filepath.Join(dir, "diamonds")
	require.NoError(t, os.MkdirAll(diamondsDir, 0o755))
	plaintexts := "dragonfly2024\ndragonfly7\ndragonfly99\n"
	require.NoError(t, os.WriteFile(filepath.Join(diamondsDir, "passwords-batch-0001.txt"), []byte(plaintexts), 0o644))

	cfg := Config{
		DiamondsDir: diamondsDir,
		BetaPath:    filepath.Join(dir, "feedback", "BETA.txt"),
		RulePath:    filepath.Join(dir, "feedback", "unobtainium.rule"),
		CohortDir:   filepath.Join(dir, "cohorts"),
	}

	first, err := New(cfg).Process(context.Background(), "batch-0001")
	require.NoError(t, err)
	require.Equal(t, 1, first.BetaAdded)

	second, err := New(cfg).Process(context.Background(), "batch-0001")
	require.NoError(t, err)
	require.Equal(t, 0, second.BetaAdded, "the root is already in BETA.txt, a second run must not duplicate it")

	data, err := os.ReadFile(filepath.Join(dir, "feedback", "BETA.txt"))
	require.NoError(t, err)
	require.Equal(t, 1, strings.Count(string(data), "dragonfly"))
}
