package feedback

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitExtractsPrefixRootSuffix(t *testing.T) {
	// The trailing digit run is stripped before the trailing special run, so
	// digits followed by "!" are not a trailing digit run and stay in the root.
	prefix, root, suffix := Split("123dragonfly456!")
	require.Equal(t, "123", prefix)
	require.Equal(t, "dragonfly456", root)
	require.Equal(t, "!", suffix)
}

func TestSplitNoAffixes(t *testing.T) {
	prefix, root, suffix := Split("banana")
	require.Equal(t, "", prefix)
	require.Equal(t, "banana", root)
	require.Equal(t, "", suffix)
}

func TestClassifyLongStructuredRoot(t *testing.T) {
	c := Classify("dragonfly2024", DefaultThresholds())
	require.True(t, c.Structured)
	require.Equal(t, "dragonfly", c.Root)
}

func TestClassifyShortGarbageRootRejected(t *testing.T) {
	// "xfr" has no vowel at all, so it must never be structured regardless
	// of entropy — the vowel guard exists precisely for roots like this.
	c := Classify("xfr99", DefaultThresholds())
	require.False(t, c.Structured)
}

func TestClassifyShortVowelRootAccepted(t *testing.T) {
	// "best" has a vowel, low entropy, and a healthy vowel ratio.
	c := Classify("best99", DefaultThresholds())
	require.True(t, c.Structured)
	require.Equal(t, "best", c.Root)
}

func TestClassifyHighEntropyRandomRejected(t *testing.T) {
	c := Classify("xQ7$kP9!vZ2@mR5#", DefaultThresholds())
	require.False(t, c.Structured)
}

func TestEntropyOfRepeatedCharIsZero(t *testing.T) {
	require.Equal(t, 0.0, Entropy("aaaa"))
}

func TestVowelRatio(t *testing.T) {
	require.InDelta(t, 0.4, VowelRatio("eaxyz"), 0.001)
}
