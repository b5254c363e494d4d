package stage2

// Mode names a hashcat attack mode. The constants below match
// krakenhashes' models.AttackMode values exactly, since both projects
// submit attacks to the same family of remote cracking services.
type Mode int

const (
	ModeStraight           Mode = 0
	ModeCombination        Mode = 1
	ModeBruteForce         Mode = 3
	ModeHybridWordlistMask Mode = 6
	ModeHybridMaskWordlist Mode = 7
	ModeAssociation        Mode = 9
)

// Attack is one fully specified entry in the default attack order: a name,
// its tier, and everything the coordination-service adapter needs to
// construct the remote task. This is the single table the scheduler
// consults — no attack name is special-cased anywhere outside it.
type Attack struct {
	Name       string
	Tier       int
	Mode       Mode
	Command    string // full hashcat command line, for logging and task submission
	WordlistID string // coordination-service asset id, empty if unused by this mode
	RuleID     string // coordination-service asset id, empty if unused by this mode
	Mask       string // hashcat mask, empty if unused by this mode
}

// defaultOrder is the compile-time default attack order: instant exhaustive
// brute force first, then high-ROI targeted attacks, then funnel masks,
// then feedback-driven attacks fed by pkg/feedback's growing wordlist, then
// hybrids, then long-password discovery, then low-ROI clean-up. Tiers run
// 0 through 4; ties within a tier keep list order.
var defaultOrder = []Attack{
	// Tier 0: instant exhaustive brute force over short keyspaces.
	{Name: "brute-3-digit", Tier: 0, Mode: ModeBruteForce, Mask: "?d?d?d", Command: "hashcat -m 100 -a 3 ?d?d?d"},
	{Name: "brute-4-digit", Tier: 0, Mode: ModeBruteForce, Mask: "?d?d?d?d", Command: "hashcat -m 100 -a 3 ?d?d?d?d"},
	{Name: "brute-3-lower", Tier: 0, Mode: ModeBruteForce, Mask: "?l?l?l", Command: "hashcat -m 100 -a 3 ?l?l?l"},
	{Name: "brute-4-lower", Tier: 0, Mode: ModeBruteForce, Mask: "?l?l?l?l", Command: "hashcat -m 100 -a 3 ?l?l?l?l"},

	// Tier 1: high-ROI straight dictionary attacks, lengths 6-7.
	{Name: "rockyou-best64", Tier: 1, Mode: ModeStraight, WordlistID: "rockyou", RuleID: "best64", Command: "hashcat -m 100 -a 0 rockyou.txt -r best64.rule"},
	{Name: "rockyou-d3ad0ne", Tier: 1, Mode: ModeStraight, WordlistID: "rockyou", RuleID: "d3ad0ne", Command: "hashcat -m 100 -a 0 rockyou.txt -r d3ad0ne.rule"},
	{Name: "baseline-onerulerule", Tier: 1, Mode: ModeStraight, WordlistID: "baseline", RuleID: "onerule", Command: "hashcat -m 100 -a 0 baseline.txt -r onerule.rule"},
	{Name: "brute-6-digit", Tier: 1, Mode: ModeBruteForce, Mask: "?d?d?d?d?d?d", Command: "hashcat -m 100 -a 3 ?d?d?d?d?d?d"},
	{Name: "brute-7-digit", Tier: 1, Mode: ModeBruteForce, Mask: "?d?d?d?d?d?d?d", Command: "hashcat -m 100 -a 3 ?d?d?d?d?d?d?d"},

	// Tier 2: funnel masks for short lowercase combinations.
	{Name: "funnel-5-lower", Tier: 2, Mode: ModeBruteForce, Mask: "?l?l?l?l?l", Command: "hashcat -m 100 -a 3 ?l?l?l?l?l"},
	{Name: "funnel-6-lower", Tier: 2, Mode: ModeBruteForce, Mask: "?l?l?l?l?l?l", Command: "hashcat -m 100 -a 3 ?l?l?l?l?l?l"},
	{Name: "funnel-lower-2digit-suffix", Tier: 2, Mode: ModeHybridWordlistMask, WordlistID: "baseline", Mask: "?d?d", Command: "hashcat -m 100 -a 6 baseline.txt ?d?d"},
	{Name: "funnel-lower-4digit-suffix", Tier: 2, Mode: ModeHybridWordlistMask, WordlistID: "baseline", Mask: "?d?d?d?d", Command: "hashcat -m 100 -a 6 baseline.txt ?d?d?d?d"},

	// Tier 3: feedback attacks fed by the growing cohort wordlist and rule
	// set, plus targeted hybrids.
	{Name: "beta-wordlist-best64", Tier: 3, Mode: ModeStraight, WordlistID: "beta", RuleID: "best64", Command: "hashcat -m 100 -a 0 beta.txt -r best64.rule"},
	{Name: "beta-wordlist-unobtainium", Tier: 3, Mode: ModeStraight, WordlistID: "beta", RuleID: "unobtainium", Command: "hashcat -m 100 -a 0 beta.txt -r unobtainium.rule"},
	{Name: "beta-year-suffix", Tier: 3, Mode: ModeHybridWordlistMask, WordlistID: "beta", Mask: "?d?d?d?d", Command: "hashcat -m 100 -a 6 beta.txt ?d?d?d?d"},
	{Name: "cohort-names-best64", Tier: 3, Mode: ModeStraight, WordlistID: "cohort-names", RuleID: "best64", Command: "hashcat -m 100 -a 0 cohort-names.txt -r best64.rule"},
	{Name: "cohort-popculture-best64", Tier: 3, Mode: ModeStraight, WordlistID: "cohort-popculture", RuleID: "best64", Command: "hashcat -m 100 -a 0 cohort-popculture.txt -r best64.rule"},

	// Tier 4a: long-password discovery.
	{Name: "brute-8-lower", Tier: 4, Mode: ModeBruteForce, Mask: "?l?l?l?l?l?l?l?l", Command: "hashcat -m 100 -a 3 ?l?l?l?l?l?l?l?l"},
	{Name: "combinator-baseline-baseline", Tier: 4, Mode: ModeCombination, WordlistID: "baseline", Command: "hashcat -m 100 -a 1 baseline.txt baseline.txt"},
	{Name: "beta-mask-8-mixed", Tier: 4, Mode: ModeHybridMaskWordlist, WordlistID: "beta", Mask: "?u?l?l?l?l?l", Command: "hashcat -m 100 -a 7 ?u?l?l?l?l?l beta.txt"},

	// Tier 4b: low-ROI clean-up, kept last by design.
	{Name: "brute-5-upper", Tier: 4, Mode: ModeBruteForce, Mask: "?u?u?u?u?u", Command: "hashcat -m 100 -a 3 ?u?u?u?u?u"},
	{Name: "association-known-pairs", Tier: 4, Mode: ModeAssociation, Command: "hashcat -m 100 -a 9"},
}

// DefaultOrder returns the compiled-in default attack order's names, in
// order. Callers must treat this as immutable; attacksRemaining is seeded
// from a copy of it, never the slice itself.
func DefaultOrder() []string {
	names := make([]string, len(defaultOrder))
	for i, a := range defaultOrder {
		names[i] = a.Name
	}
	return names
}

// ByName looks up an attack's full definition. ok is false for a name not
// in the compiled-in table — the scheduler treats that as a programming
// error, not a runtime condition to recover from.
func ByName(name string) (Attack, bool) {
	for _, a := range defaultOrder {
		if a.Name == name {
			return a, true
		}
	}
	return Attack{}, false
}
