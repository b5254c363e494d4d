package feedback

import (
	"regexp"
	"strings"
)

// Cohort is a named cultural/linguistic/topical category matched against a
// discovered root by an explicit list of regexes, per spec §4.6.3. A root
// may match zero, one, or several cohorts.
type Cohort struct {
	Name     string
	Patterns []*regexp.Regexp
	// SeedFile is the on-disk wordlist this cohort grows (spec §4.6.7). A
	// cohort with no seed file is report-only.
	SeedFile string
}

// DiscoveryPattern probes the unclassified residue for a potential new
// cohort (spec §4.6.4). Discovery is a human-curated research backlog, not
// an automatic promotion: a match only ever gets surfaced in a report.
type DiscoveryPattern struct {
	Name    string
	Pattern *regexp.Regexp
}

func mustCompileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

// DefaultCohorts is the compiled-in set of named cohorts: a handful of
// romanized-name cohorts across languages, plus pop-culture sub-domains
// (music, gaming, sports), matching spec §4.6.3's examples.
func DefaultCohorts() []Cohort {
	return []Cohort{
		{
			Name:     "names-romanized-es",
			SeedFile: "cohorts/names-es.txt",
			Patterns: mustCompileAll(
				`^(jose|juan|maria|carlos|luis|javier|miguel|pedro|jesus|fernando)[a-z]*$`,
				`^(guadalupe|alejandro|francisco|rodriguez|gonzalez)[a-z]*$`,
			),
		},
		{
			Name:     "names-romanized-ru",
			SeedFile: "cohorts/names-ru.txt",
			Patterns: mustCompileAll(
				`^(ivan|dmitri[iy]?|vladimir|sergei|andrei|alexei|mikhail)[a-z]*$`,
				`^(natasha|olga|tatiana|svetlana|irina|ekaterina)[a-z]*$`,
			),
		},
		{
			Name:     "names-romanized-ar",
			SeedFile: "cohorts/names-ar.txt",
			Patterns: mustCompileAll(
				`^(mohamed|ahmed|mohammed|abdullah|ali|hassan|hussein|omar)[a-z]*$`,
				`^(fatima|aisha|khadija|zainab|maryam)[a-z]*$`,
			),
		},
		{
			Name:     "pop-music",
			SeedFile: "cohorts/pop-music.txt",
			Patterns: mustCompileAll(
				`^(beyonce|rihanna|drake|eminem|beatles|metallica|nirvana|madonna)[a-z]*$`,
				`^.*(rockstar|popstar|rapper|guitar|melody)$`,
			),
		},
		{
			Name:     "pop-gaming",
			SeedFile: "cohorts/pop-gaming.txt",
			Patterns: mustCompileAll(
				`^(minecraft|fortnite|pokemon|zelda|mario|sonic|warcraft|skyrim)[a-z]*$`,
				`^.*(gamer|gaming|player1|speedrun)$`,
			),
		},
		{
			Name:     "pop-sports",
			SeedFile: "cohorts/pop-sports.txt",
			Patterns: mustCompileAll(
				`^(messi|ronaldo|jordan|kobe|lebron|brady|federer)[a-z]*$`,
				`^.*(footy|soccer|basketball|baseball|gridiron)$`,
			),
		},
	}
}

// doubledLetterPattern builds an RE2-expressible stand-in for a backreference
// match on a repeated letter ("kitty", "bella"): Go's regexp is RE2 and
// rejects \1-style backreferences outright, so the 26 doubled-letter pairs
// are enumerated as an explicit alternation instead.
func doubledLetterPattern() string {
	pairs := make([]string, 26)
	for i := 0; i < 26; i++ {
		l := string(rune('a' + i))
		pairs[i] = l + l
	}
	return `^[a-z]*(` + strings.Join(pairs, "|") + `)[a-z]*$`
}

// DefaultDiscoveryPatterns is the compiled-in set of discovery probes run
// over unclassified residue, per spec §4.6.4.
func DefaultDiscoveryPatterns() []DiscoveryPattern {
	return []DiscoveryPattern{
		{Name: "double-letter-pet", Pattern: regexp.MustCompile(doubledLetterPattern())},
		{Name: "ends-in-boo-or-poo", Pattern: regexp.MustCompile(`^[a-z]{2,}(boo|poo|kins|bear)$`)},
		{Name: "food-suffix", Pattern: regexp.MustCompile(`^[a-z]{2,}(cake|pie|taco|sushi)$`)},
	}
}

// KeyboardPatternPrefixes is the compiled-in set of keyboard-walk prefixes
// a root must not start with to count as a new discovery, per spec §4.6.2.
var KeyboardPatternPrefixes = []string{
	"qwer", "asdf", "zxcv", "qaz", "wsx", "edc", "1qaz", "qwerty", "asdfgh",
}

// MatchCohorts returns the names of every cohort whose pattern matches root.
func MatchCohorts(root string, cohorts []Cohort) []string {
	var matched []string
	for _, c := range cohorts {
		for _, p := range c.Patterns {
			if p.MatchString(root) {
				matched = append(matched, c.Name)
				break
			}
		}
	}
	return matched
}

// MatchDiscovery returns the names of every discovery pattern that matches
// root.
func MatchDiscovery(root string, patterns []DiscoveryPattern) []string {
	var matched []string
	for _, p := range patterns {
		if p.Pattern.MatchString(root) {
			matched = append(matched, p.Name)
		}
	}
	return matched
}

// IsKeyboardPattern reports whether root is a fragment of a known
// keyboard-walk pattern, disqualifying it from new-root discovery even if
// otherwise structured.
func IsKeyboardPattern(root string) bool {
	for _, p := range KeyboardPatternPrefixes {
		if len(root) >= len(p) && root[:len(p)] == p {
			return true
		}
	}
	return false
}
