package stage2

import (
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sluicehq/sluice/pkg/coordservice"
)

// pairCoord is a fakeCoord that returns a fixed set of cracked pairs
// instead of empty placeholders, so materializeBatch has something to
// write.
type pairCoord struct {
	fakeCoord
	pairs []coordservice.CrackedPair
}

func (p *pairCoord) GetCrackedHashes(ctx context.Context, hashlistID string) ([]coordservice.CrackedPair, error) {
	return p.pairs, nil
}

func TestRunBatchMaterializesDiamondsAndGlass(t *testing.T) {
	dir := t.TempDir()
	sandDir := filepath.Join(dir, "sand")
	diamondsDir := filepath.Join(dir, "diamonds")
	glassDir := filepath.Join(dir, "glass")
	require.NoError(t, os.MkdirAll(sandDir, 0o755))

	hashA := "AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"
	hashB := "BBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBBB"
	hashC := "CCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCCC"

	sandPath := filepath.Join(sandDir, "batch-0006.txt.gz")
	f, err := os.Create(sandPath)
	require.NoError(t, err)
	gz := gzip.NewWriter(f)
	for _, h := range []string{hashA, hashB, hashC} {
		_, err := gz.Write([]byte(h + "\n"))
		require.NoError(t, err)
	}
	require.NoError(t, gz.Close())
	require.NoError(t, f.Close())

	store := testStore(t)
	_, err = store.InitBatch("batch-0006", "hl-0006", 10, []string{"brute-3-digit"})
	require.NoError(t, err)

	coord := &pairCoord{
		fakeCoord: fakeCoord{increment: 1},
		pairs: []coordservice.CrackedPair{
			{Hash: hashA, Plain: "dragonfly2024"},
			{Hash: hashB, Plain: "dragonfly2024"},
		},
	}
	sched := New(Config{
		Coord:        coord,
		PollInterval: time.Millisecond,
		SandDir:      sandDir,
		DiamondsDir:  diamondsDir,
		GlassDir:     glassDir,
	}, store)

	err = sched.RunBatch(context.Background(), "batch-0006", nil)
	require.NoError(t, err)

	pairsData, err := os.ReadFile(filepath.Join(diamondsDir, "batch-0006.txt"))
	require.NoError(t, err)
	require.Contains(t, string(pairsData), hashA+":dragonfly2024")
	require.Contains(t, string(pairsData), hashB+":dragonfly2024")

	passwordsData, err := os.ReadFile(filepath.Join(diamondsDir, "passwords-batch-0006.txt"))
	require.NoError(t, err)
	require.Equal(t, "dragonfly2024\n", string(passwordsData))

	globalData, err := os.ReadFile(filepath.Join(diamondsDir, "hash_plaintext_pairs.jsonl"))
	require.NoError(t, err)
	require.Contains(t, string(globalData), "dragonfly2024")

	glassData, err := os.ReadFile(filepath.Join(glassDir, "batch-0006.txt"))
	require.NoError(t, err)
	require.Equal(t, hashC+"\n", string(glassData))
}
