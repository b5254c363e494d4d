/*
Package feedback implements sluice's Feedback Analyzer: it streams a batch's
DIAMONDS (plaintexts recovered by Stage 2), classifies each as structured or
random by per-character entropy and a vowel/consonant heuristic, extracts a
root from every structured password, matches roots against named cultural
and topical cohorts, and surfaces unclassified residue against a set of
human-curated discovery patterns.

Borderline unclassified roots may be checked against an external breach-
count oracle (pkg/oraclecache), capped at 200 queries per batch and bounded
to 20 in flight at a time via golang.org/x/sync/errgroup, matching spec
§4.6.5 and §5's concurrency model — the only concurrency anywhere in
sluice outside the GPU-bound single-writer orchestrator.

The analyzer's two outputs are BETA.txt (a prioritized wordlist of newly
discovered roots) and UNOBTAINIUM.rule (append-style transformation rules
derived from observed suffix and leet-substitution patterns), both
deduplicated against their respective baseline files before writing.
*/
package feedback
