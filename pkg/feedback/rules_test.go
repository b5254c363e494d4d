package feedback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRuleSetObservesSuffixAndCapitalize(t *testing.T) {
	rs := NewRuleSet()
	rs.Observe("Dragon2024", Classify("Dragon2024", DefaultThresholds()))

	lines := rs.Lines()
	require.Contains(t, lines, "c")
	require.Contains(t, lines, "$2$0$2$4")
}

func TestRuleSetObservesLeetSubstitution(t *testing.T) {
	rs := NewRuleSet()
	rs.Observe("p4ssword", Classify("p4ssword", DefaultThresholds()))

	lines := rs.Lines()
	require.Contains(t, lines, "sa4")
}

func TestLoadBaselineRulesSkipsCommentsAndBlank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "best64.rule")
	require.NoError(t, os.WriteFile(path, []byte("# header\n\nc\n$1\n"), 0o644))

	rules, err := LoadBaselineRules([]string{path})
	require.NoError(t, err)
	require.Contains(t, rules, "c")
	require.Contains(t, rules, "$1")
	require.NotContains(t, rules, "# header")
}

func TestLoadBaselineRulesMissingFileIsEmpty(t *testing.T) {
	rules, err := LoadBaselineRules([]string{filepath.Join(t.TempDir(), "missing.rule")})
	require.NoError(t, err)
	require.Empty(t, rules)
}
