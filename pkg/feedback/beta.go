package feedback

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/sluicehq/sluice/pkg/metrics"
)

// BetaEntry is one root destined for BETA.txt, tagged with the reason it
// was included so the final sort (spec §4.6.5 step 4) can order cohort
// matches first, then oracle promotions, then by local frequency.
type BetaEntry struct {
	Root      string
	Source    string // "cohort", "oracle", "frequency"
	Frequency int
}

// OracleCounter is the subset of *oraclecache.Oracle the analyzer needs.
type OracleCounter interface {
	Count(ctx context.Context, plaintext string) int64
}

// OracleConfig bounds the borderline-root oracle queries per spec §4.6.5 /
// §5: at most MaxQueries per batch, issued BatchSize at a time with Gap
// between batches. Every query of a batch runs concurrently, so BatchSize
// is also the number of queries in flight at once.
type OracleConfig struct {
	MaxQueries  int
	BatchSize   int
	Gap         time.Duration
	PromoteAt   int64
}

// DefaultOracleConfig matches spec §4.6.5's documented defaults.
func DefaultOracleConfig() OracleConfig {
	return OracleConfig{MaxQueries: 200, BatchSize: 20, Gap: 200 * time.Millisecond, PromoteAt: 1000}
}

// Report summarizes one feedback run for logging and the stored Feedback
// record.
type Report struct {
	CohortMatched    []string
	OraclePromoted   []string
	PotentialCohorts map[string][]string
	CohortGrowth     map[string][]string // cohort name -> roots newly appended to its seed file
}

// AssembleBeta applies spec §4.6.5's four-step assembly rule over roots,
// returning the entries destined for BETA.txt (already sorted) and a
// Report describing what happened along the way.
func AssembleBeta(
	ctx context.Context,
	roots []*RootInfo,
	cohorts []Cohort,
	discovery []DiscoveryPattern,
	baseline *Baseline,
	th Thresholds,
	oracle OracleCounter,
	oracleCfg OracleConfig,
	minDiscoveryMatches int,
	logger zerolog.Logger,
) ([]BetaEntry, Report, error) {
	var cohortGroup, frequencyGroup []BetaEntry
	included := make(map[string]bool)
	discoveryHits := make(map[string][]string)
	report := Report{PotentialCohorts: make(map[string][]string)}

	var borderline []*RootInfo

	for _, r := range roots {
		if !IsNewRoot(r.Root, baseline, th) {
			continue
		}
		r.New = true
		r.Cohorts = MatchCohorts(r.Root, cohorts)

		if len(r.Cohorts) > 0 {
			cohortGroup = append(cohortGroup, BetaEntry{Root: r.Root, Source: "cohort", Frequency: r.Frequency})
			included[r.Root] = true
			report.CohortMatched = append(report.CohortMatched, r.Root)
			continue
		}

		r.Discovery = MatchDiscovery(r.Root, discovery)
		for _, d := range r.Discovery {
			discoveryHits[d] = append(discoveryHits[d], r.Root)
		}

		if r.Frequency >= 3 && len(r.Root) >= 5 {
			frequencyGroup = append(frequencyGroup, BetaEntry{Root: r.Root, Source: "frequency", Frequency: r.Frequency})
			included[r.Root] = true
			continue
		}

		if len(r.Root) >= 4 {
			borderline = append(borderline, r)
		}
	}

	for name, roots := range discoveryHits {
		if len(roots) >= minDiscoveryMatches {
			report.PotentialCohorts[name] = roots
		}
	}

	oracleGroup, err := promoteBorderline(ctx, borderline, included, oracle, oracleCfg, logger)
	if err != nil {
		return nil, report, fmt.Errorf("promote borderline roots: %w", err)
	}
	for _, e := range oracleGroup {
		report.OraclePromoted = append(report.OraclePromoted, e.Root)
	}

	sort.Slice(cohortGroup, func(i, j int) bool { return cohortGroup[i].Root < cohortGroup[j].Root })
	sort.Slice(oracleGroup, func(i, j int) bool { return oracleGroup[i].Root < oracleGroup[j].Root })
	sort.Slice(frequencyGroup, func(i, j int) bool {
		if frequencyGroup[i].Frequency != frequencyGroup[j].Frequency {
			return frequencyGroup[i].Frequency > frequencyGroup[j].Frequency
		}
		return frequencyGroup[i].Root < frequencyGroup[j].Root
	})

	entries := make([]BetaEntry, 0, len(cohortGroup)+len(oracleGroup)+len(frequencyGroup))
	entries = append(entries, cohortGroup...)
	entries = append(entries, oracleGroup...)
	entries = append(entries, frequencyGroup...)
	return entries, report, nil
}

// promoteBorderline queries the oracle for up to oracleCfg.MaxQueries
// borderline roots, BatchSize at a time with Gap between batches, each
// batch's queries run concurrently via errgroup. A root whose count meets
// PromoteAt is promoted to BETA.txt regardless of local frequency.
func promoteBorderline(ctx context.Context, borderline []*RootInfo, included map[string]bool, oracle OracleCounter, cfg OracleConfig, logger zerolog.Logger) ([]BetaEntry, error) {
	if oracle == nil || len(borderline) == 0 {
		return nil, nil
	}

	if len(borderline) > cfg.MaxQueries {
		borderline = borderline[:cfg.MaxQueries]
	}

	var promoted []BetaEntry
	for start := 0; start < len(borderline); start += cfg.BatchSize {
		end := start + cfg.BatchSize
		if end > len(borderline) {
			end = len(borderline)
		}
		batch := borderline[start:end]

		g, gctx := errgroup.WithContext(ctx)
		counts := make([]int64, len(batch))
		for i, r := range batch {
			i, r := i, r
			g.Go(func() error {
				counts[i] = oracle.Count(gctx, r.Root)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return promoted, err
		}

		for i, r := range batch {
			r.OracleN = counts[i]
			outcome := "miss"
			if counts[i] >= cfg.PromoteAt {
				r.OracleHit = true
				outcome = "promoted"
				if !included[r.Root] {
					included[r.Root] = true
					promoted = append(promoted, BetaEntry{Root: r.Root, Source: "oracle", Frequency: r.Frequency})
					logger.Info().Str("root", r.Root).Int64("breaches", counts[i]).Msg("HIBP promoted")
				}
			} else if counts[i] > 0 {
				outcome = "hit"
			}
			metrics.OracleQueriesTotal.WithLabelValues(outcome).Inc()
		}

		if end < len(borderline) {
			select {
			case <-ctx.Done():
				return promoted, ctx.Err()
			case <-time.After(cfg.Gap):
			}
		}
	}
	return promoted, nil
}

// WriteBetaFile writes entries' roots to path, one per line, in the order
// given (the caller is responsible for having sorted them per §4.6.5).
func WriteBetaFile(path string, entries []BetaEntry) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create beta file %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range entries {
		if _, err := fmt.Fprintln(w, e.Root); err != nil {
			return fmt.Errorf("write beta entry %q: %w", e.Root, err)
		}
	}
	return w.Flush()
}

// appendUnique appends value to the file at path unless it's already
// present (newline-delimited, exact match), returning whether it was added.
func appendUnique(path, value string, cache map[string]map[string]struct{}) (bool, error) {
	seen, ok := cache[path]
	if !ok {
		seen = make(map[string]struct{})
		if data, err := os.ReadFile(path); err == nil {
			for _, line := range strings.Split(string(data), "\n") {
				line = strings.TrimSpace(line)
				if line != "" {
					seen[line] = struct{}{}
				}
			}
		} else if !os.IsNotExist(err) {
			return false, fmt.Errorf("read cohort seed file %s: %w", path, err)
		}
		cache[path] = seen
	}

	if _, ok := seen[value]; ok {
		return false, nil
	}

	if dir := dirOf(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return false, fmt.Errorf("create cohort dir %s: %w", dir, err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open cohort seed file %s: %w", path, err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, value); err != nil {
		return false, fmt.Errorf("append to cohort seed file %s: %w", path, err)
	}
	seen[value] = struct{}{}
	return true, nil
}

func dirOf(path string) string {
	idx := strings.LastIndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[:idx]
}

// GrowCohorts appends every cohort-matched new root to its cohort's seed
// file, per spec §4.6.7. The per-file contents are cached so multiple
// roots sharing a cohort don't re-read the file from disk. A root already
// present in its cohort's file is a no-op on the second invocation.
func GrowCohorts(roots []*RootInfo, cohorts []Cohort, cohortDir string) (map[string][]string, error) {
	byName := make(map[string]string, len(cohorts))
	for _, c := range cohorts {
		if c.SeedFile == "" {
			continue
		}
		byName[c.Name] = joinPath(cohortDir, c.SeedFile)
	}

	cache := make(map[string]map[string]struct{})
	grown := make(map[string][]string)
	for _, r := range roots {
		if !r.New {
			continue
		}
		for _, name := range r.Cohorts {
			path, ok := byName[name]
			if !ok {
				continue
			}
			added, err := appendUnique(path, r.Root, cache)
			if err != nil {
				return grown, fmt.Errorf("grow cohort %s: %w", name, err)
			}
			if added {
				grown[name] = append(grown[name], r.Root)
			}
		}
	}
	return grown, nil
}

func joinPath(dir, name string) string {
	if dir == "" {
		return name
	}
	return strings.TrimRight(dir, "/") + "/" + name
}
