package feedback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadBaselineMissingFileIsEmpty(t *testing.T) {
	b, err := LoadBaseline(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	require.False(t, b.Has("anything"))
}

func TestLoadBaselineLowercasesEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "baseline.txt")
	require.NoError(t, os.WriteFile(path, []byte("Password\nDragon\n"), 0o644))

	b, err := LoadBaseline(path)
	require.NoError(t, err)
	require.True(t, b.Has("password"))
	require.True(t, b.Has("DRAGON"))
}

func TestIsNewRootRejectsBaselineAndKeyboardPatterns(t *testing.T) {
	b, err := LoadBaseline("")
	require.NoError(t, err)
	b.words["dragon"] = struct{}{}
	th := DefaultThresholds()

	require.False(t, IsNewRoot("dragon", b, th))
	require.False(t, IsNewRoot("qwerty", b, th))
	require.False(t, IsNewRoot("ab", b, th))
	require.True(t, IsNewRoot("phoenixrising", b, th))
}

func TestRootTrackerAggregatesFrequencyAndSamples(t *testing.T) {
	tr := NewRootTracker()
	tr.Add("dragon", "dragon123")
	tr.Add("dragon", "Dragon2024")
	tr.Add("falcon", "falcon7")

	all := tr.All()
	require.Len(t, all, 2)
	require.Equal(t, "dragon", all[0].Root)
	require.Equal(t, 2, all[0].Frequency)
	require.Len(t, all[0].Samples, 2)
}
