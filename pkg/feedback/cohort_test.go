package feedback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMatchCohortsFindsNamedCategory(t *testing.T) {
	matched := MatchCohorts("carlosmendez", DefaultCohorts())
	require.Contains(t, matched, "names-romanized-es")
}

func TestMatchCohortsNoMatch(t *testing.T) {
	matched := MatchCohorts("zzqqxxyy", DefaultCohorts())
	require.Empty(t, matched)
}

func TestIsKeyboardPatternRejectsWalk(t *testing.T) {
	require.True(t, IsKeyboardPattern("qwerty123"[:6]))
	require.False(t, IsKeyboardPattern("dragonfly"))
}

func TestMatchDiscoveryDoubleLetter(t *testing.T) {
	matched := MatchDiscovery("kittteh", DefaultDiscoveryPatterns())
	require.Contains(t, matched, "double-letter-pet")
}

func TestDefaultDiscoveryPatternsCompile(t *testing.T) {
	require.NotPanics(t, func() {
		patterns := DefaultDiscoveryPatterns()
		require.NotEmpty(t, patterns)
	})
}
