package feedback

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/material"
	"github.com/sluicehq/sluice/pkg/types"
)

// Config configures an Analyzer.
type Config struct {
	DiamondsDir string // dir holding batch-NNNN.txt / passwords-batch-NNNN.txt
	BetaPath    string // data/feedback/BETA.txt
	RulePath    string // data/feedback/unobtainium.rule

	BaselineWordlistPath string
	BaselineRulePaths    []string
	CohortDir            string

	Thresholds           Thresholds
	MinDiscoveryMatches  int
	Oracle               OracleCounter
	OracleConfig         OracleConfig
}

func (c *Config) setDefaults() {
	if c.Thresholds == (Thresholds{}) {
		c.Thresholds = DefaultThresholds()
	}
	if c.MinDiscoveryMatches == 0 {
		c.MinDiscoveryMatches = 3
	}
	if c.OracleConfig == (OracleConfig{}) {
		c.OracleConfig = DefaultOracleConfig()
	}
}

// Analyzer drives one batch's DIAMONDS through classification, root
// extraction, cohort matching, oracle promotion, and BETA.txt/
// UNOBTAINIUM.rule generation.
type Analyzer struct {
	cfg    Config
	logger zerolog.Logger
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	cfg.setDefaults()
	return &Analyzer{cfg: cfg, logger: log.WithComponent("feedback")}
}

// Process runs the full feedback pipeline for batchName and returns the
// Feedback record to be stored against that batch.
func (a *Analyzer) Process(ctx context.Context, batchName string) (types.Feedback, error) {
	logger := a.logger.With().Str("batch", batchName).Logger()

	plaintexts, err := a.readPlaintexts(batchName)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("read diamonds for %s: %w", batchName, err)
	}

	baseline, err := LoadBaseline(a.cfg.BaselineWordlistPath)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("load baseline wordlist: %w", err)
	}
	existingBeta, err := readLines(a.cfg.BetaPath)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("read existing beta file: %w", err)
	}
	for w := range existingBeta {
		baseline.words[w] = struct{}{}
	}

	tracker := NewRootTracker()
	rules := NewRuleSet()
	structuredCount, randomCount := 0, 0
	for _, plain := range plaintexts {
		c := Classify(plain, a.cfg.Thresholds)
		rules.Observe(plain, c)
		if c.Structured {
			structuredCount++
			tracker.Add(c.Root, plain)
		} else {
			randomCount++
		}
	}

	cohorts := DefaultCohorts()
	discovery := DefaultDiscoveryPatterns()
	entries, report, err := AssembleBeta(ctx, tracker.All(), cohorts, discovery, baseline, a.cfg.Thresholds, a.cfg.Oracle, a.cfg.OracleConfig, a.cfg.MinDiscoveryMatches, logger)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("assemble beta entries: %w", err)
	}

	betaAdded, err := appendBetaFile(a.cfg.BetaPath, entries)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("write beta file: %w", err)
	}

	cohortGrowth, err := GrowCohorts(tracker.All(), cohorts, a.cfg.CohortDir)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("grow cohorts: %w", err)
	}

	ruleLines, err := a.newRuleLines(rules)
	if err != nil {
		return types.Feedback{}, fmt.Errorf("filter new rule lines: %w", err)
	}
	if err := appendRuleFile(a.cfg.RulePath, ruleLines); err != nil {
		return types.Feedback{}, fmt.Errorf("write rule file: %w", err)
	}

	var cohortNames []string
	for name := range cohortGrowth {
		cohortNames = append(cohortNames, name)
	}

	fb := types.Feedback{
		RootsFound:      len(tracker.All()),
		BetaAdded:       betaAdded,
		RulesAdded:      len(ruleLines),
		CohortsGrown:    cohortNames,
		OraclePromoted:  len(report.OraclePromoted),
		StructuredCount: structuredCount,
		RandomCount:     randomCount,
		ProcessedAt:     time.Now(),
	}
	logger.Info().
		Int("rootsFound", fb.RootsFound).
		Int("betaAdded", fb.BetaAdded).
		Int("rulesAdded", fb.RulesAdded).
		Int("oraclePromoted", fb.OraclePromoted).
		Msg("feedback pass complete")
	return fb, nil
}

// readPlaintexts prefers the unique-plaintext sidecar file per batch; if
// absent it falls back to parsing the hash:plain pairs file.
func (a *Analyzer) readPlaintexts(batchName string) ([]string, error) {
	passwordsPath := joinPath(a.cfg.DiamondsDir, "passwords-"+batchName+".txt")
	if lines, err := readLinesList(passwordsPath); err == nil {
		return lines, nil
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	pairsPath := joinPath(a.cfg.DiamondsDir, batchName+".txt")
	f, err := os.Open(pairsPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", pairsPath, err)
	}
	defer f.Close()

	pairs, _, err := material.ParsePotfile(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", pairsPath, err)
	}
	out := make([]string, len(pairs))
	for i, p := range pairs {
		out[i] = p.Plain
	}
	return out, nil
}

func readLinesList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines, scanner.Err()
}

func readLines(path string) (map[string]struct{}, error) {
	out := make(map[string]struct{})
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return out, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out[line] = struct{}{}
		}
	}
	return out, nil
}

// appendBetaFile appends entries not already present in path's existing
// contents, preserving whatever lines a prior batch already wrote, and
// returns how many lines were actually newly written.
func appendBetaFile(path string, entries []BetaEntry) (int, error) {
	existing, err := readLines(path)
	if err != nil {
		return 0, err
	}

	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("create beta dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return 0, fmt.Errorf("open beta file %s: %w", path, err)
	}
	defer f.Close()

	added := 0
	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, ok := existing[e.Root]; ok {
			continue
		}
		if _, err := fmt.Fprintln(w, e.Root); err != nil {
			return added, fmt.Errorf("append beta entry %q: %w", e.Root, err)
		}
		added++
	}
	return added, w.Flush()
}

// newRuleLines filters rules' accumulated lines against both the baseline
// rule files and the rule file's own existing contents, so a second run
// over the same batch is a no-op.
func (a *Analyzer) newRuleLines(rules *RuleSet) ([]string, error) {
	baseline, err := LoadBaselineRules(a.cfg.BaselineRulePaths)
	if err != nil {
		return nil, err
	}
	existing, err := readLines(a.cfg.RulePath)
	if err != nil {
		return nil, err
	}

	var out []string
	for _, line := range rules.Lines() {
		if _, ok := baseline[line]; ok {
			continue
		}
		if _, ok := existing[line]; ok {
			continue
		}
		out = append(out, line)
	}
	return out, nil
}

// appendRuleFile appends lines to path, creating it with a header comment
// if it doesn't exist yet.
func appendRuleFile(path string, lines []string) error {
	if len(lines) == 0 {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return WriteRuleFile(path, nil)
		}
		return nil
	}

	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create rule dir %s: %w", dir, err)
		}
	}
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open rule file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if needsHeader {
		fmt.Fprintln(w, "# generated by sluice's feedback analyzer, one append-style rule per line")
	}
	for _, line := range lines {
		fmt.Fprintln(w, line)
	}
	return w.Flush()
}
