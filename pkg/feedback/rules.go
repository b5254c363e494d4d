package feedback

import (
	"bufio"
	"fmt"
	"os"
	"sort"
	"strings"
)

// RuleSet accumulates hashcat-syntax append rules mined from a batch's
// structured passwords (spec §4.6.6): observed suffix patterns, a
// capitalize-first-letter rule if any sample used it, and leet-substitution
// rules for the digit/letter pairs actually seen.
type RuleSet struct {
	suffixes     map[string]struct{}
	order        []string
	capitalize   bool
	leetObserved map[rune]rune // letter -> digit substitution seen
}

// NewRuleSet returns an empty accumulator.
func NewRuleSet() *RuleSet {
	return &RuleSet{suffixes: make(map[string]struct{}), leetObserved: make(map[rune]rune)}
}

// reverseLeet maps a commonly-substituted digit back to the letter it
// stands in for, so a digit found embedded inside an otherwise-alphabetic
// run can be attributed to a substitution rather than a genuine numeric
// prefix or suffix.
var reverseLeet = map[byte]rune{'4': 'a', '3': 'e', '1': 'i', '0': 'o', '5': 's'}

// Observe feeds one plaintext and its §4.6.1 split into the rule set: a
// structured plaintext's suffix becomes an append-rule candidate; every
// plaintext (structured or not, per §4.6.6's "across all plaintexts") is
// checked for a capitalize pattern and scanned for leet substitutions
// embedded in its root zone.
func (rs *RuleSet) Observe(plain string, c Classification) {
	if c.Structured && c.Suffix != "" {
		if _, ok := rs.suffixes[c.Suffix]; !ok {
			rs.suffixes[c.Suffix] = struct{}{}
			rs.order = append(rs.order, c.Suffix)
		}
	}

	runes := []rune(plain)
	if len(runes) > 0 && isUpper(runes[0]) {
		allLowerRest := true
		for _, r := range runes[1:] {
			if isUpper(r) {
				allLowerRest = false
				break
			}
		}
		if allLowerRest {
			rs.capitalize = true
		}
	}

	lo := len(c.Prefix)
	hi := len(plain) - len(c.Suffix)
	for i := lo; i < hi && i < len(plain); i++ {
		letter, ok := reverseLeet[plain[i]]
		if !ok {
			continue
		}
		rs.leetObserved[letter] = rune(plain[i])
	}
}

func isUpper(r rune) bool { return r >= 'A' && r <= 'Z' }

// appendRule renders suffix as a hashcat append-rule string: one "$<char>"
// token per character, in order.
func appendRule(suffix string) string {
	var b strings.Builder
	for _, r := range suffix {
		b.WriteByte('$')
		b.WriteRune(r)
	}
	return b.String()
}

// Lines renders every accumulated rule as hashcat-syntax text, sorted for a
// deterministic diff, before baseline dedup.
func (rs *RuleSet) Lines() []string {
	var lines []string
	if rs.capitalize {
		lines = append(lines, "c")
	}

	letters := make([]rune, 0, len(rs.leetObserved))
	for l := range rs.leetObserved {
		letters = append(letters, l)
	}
	sort.Slice(letters, func(i, j int) bool { return letters[i] < letters[j] })
	for _, l := range letters {
		lines = append(lines, fmt.Sprintf("s%c%c", l, rs.leetObserved[l]))
	}

	suffixes := make([]string, len(rs.order))
	copy(suffixes, rs.order)
	sort.Strings(suffixes)
	for _, s := range suffixes {
		lines = append(lines, appendRule(s))
	}
	return lines
}

// LoadBaselineRules reads every rule line (ignoring blank lines and
// `#`-prefixed comments) from each baseline rule file, for dedup against
// newly mined rules.
func LoadBaselineRules(paths []string) (map[string]struct{}, error) {
	seen := make(map[string]struct{})
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("open baseline rule file %s: %w", path, err)
		}
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			seen[line] = struct{}{}
		}
		err = scanner.Err()
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("read baseline rule file %s: %w", path, err)
		}
	}
	return seen, nil
}

// WriteRuleFile writes lines (already deduplicated against the baseline) to
// path as UNOBTAINIUM.rule, one independently-appliable rule per line.
func WriteRuleFile(path string, lines []string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rule file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "# generated by sluice's feedback analyzer, one append-style rule per line")
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}
