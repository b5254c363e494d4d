package main

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sluicehq/sluice/pkg/config"
	"github.com/sluicehq/sluice/pkg/coordservice"
	"github.com/sluicehq/sluice/pkg/feedback"
	"github.com/sluicehq/sluice/pkg/oraclecache"
	"github.com/sluicehq/sluice/pkg/orchestrator"
	"github.com/sluicehq/sluice/pkg/remoteshell"
	"github.com/sluicehq/sluice/pkg/stage1"
	"github.com/sluicehq/sluice/pkg/stage2"
	"github.com/sluicehq/sluice/pkg/state"
)

// app wires together every component from a loaded Config. Built once per
// process invocation; nothing here is safe to share across goroutines.
type app struct {
	cfg         *config.Config
	store       *state.Store
	orch        *orchestrator.Orchestrator
	oracleCache *oraclecache.Cache
	inspector   *coordservice.Inspector
}

func newApp(cfgPath string) (*app, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	shell := remoteshell.New(remoteshell.Config{
		Host:           cfg.Remote.Host,
		Port:           cfg.Remote.Port,
		User:           cfg.Remote.User,
		PrivateKeyPath: cfg.Remote.PrivateKeyPath,
	})

	stage1Store := stage1.NewStore(cfg.Data.GravelStatePath())
	stage1Proc := stage1.New(stage1.Config{
		Shell:      shell,
		WorkDir:    cfg.Remote.WorkDir,
		GravelDir:  cfg.Data.GravelDir(),
		PearlsPath: cfg.Data.PearlsPath(),
		SandDir:    cfg.Data.SandDir(),
	}, stage1Store)

	coordClient, err := coordservice.New(coordservice.Config{
		BaseURL: cfg.CoordService.BaseURL,
		APIKey:  cfg.CoordService.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build coordination-service client: %w", err)
	}

	sandState := state.New(cfg.Data.SandStatePath())
	if _, err := sandState.Load(); err != nil {
		return nil, fmt.Errorf("load state store: %w", err)
	}

	// The SQL introspection half of the coordination-service adapter (spec
	// §4.9) is optional: it only kicks in as pkg/stage2's fallback for a
	// status endpoint whose cache lags the database, so an empty DSN just
	// means the scheduler waits out an HTTP outage instead.
	var inspector *coordservice.Inspector
	if cfg.CoordService.SQLDSN != "" {
		inspector, err = coordservice.NewInspector(cfg.CoordService.SQLDSN)
		if err != nil {
			return nil, fmt.Errorf("build coordination-service sql inspector: %w", err)
		}
	}

	stage2Cfg := stage2.Config{
		Coord:       coordClient,
		SandDir:     cfg.Data.SandDir(),
		DiamondsDir: cfg.Data.DiamondsDir(),
		GlassDir:    cfg.Data.GlassDir(),
	}
	if inspector != nil {
		stage2Cfg.Inspector = inspector
	}
	stage2Sched := stage2.New(stage2Cfg, sandState)

	var oracle feedback.OracleCounter
	oracleCache, err := oraclecache.Open(cfg.Oracle.CacheDBPath)
	if err != nil {
		return nil, fmt.Errorf("open oracle cache: %w", err)
	}
	if cfg.Oracle.BaseURL != "" {
		o, err := oraclecache.New(oraclecache.Config{BaseURL: cfg.Oracle.BaseURL}, oracleCache)
		if err != nil {
			return nil, fmt.Errorf("build oracle client: %w", err)
		}
		oracle = o
	}

	oracleCfg := feedback.DefaultOracleConfig()
	if cfg.Oracle.MaxPerBatch > 0 {
		oracleCfg.MaxQueries = cfg.Oracle.MaxPerBatch
	}
	if cfg.Oracle.BatchOf > 0 {
		oracleCfg.BatchSize = cfg.Oracle.BatchOf
	}
	if cfg.Oracle.GapMillis > 0 {
		oracleCfg.Gap = time.Duration(cfg.Oracle.GapMillis) * time.Millisecond
	}

	analyzer := feedback.New(feedback.Config{
		DiamondsDir:  cfg.Data.DiamondsDir(),
		BetaPath:     cfg.Data.BetaPath(),
		RulePath:     cfg.Data.RulePath(),
		CohortDir:    cfg.Data.CohortDir(),
		Oracle:       oracle,
		OracleConfig: oracleCfg,
	})

	orch := orchestrator.New(orchestrator.Config{
		SandDir: cfg.Data.SandDir(),
	}, sandState, stage1Proc, stage2Sched, analyzer)

	return &app{cfg: cfg, store: sandState, orch: orch, oracleCache: oracleCache, inspector: inspector}, nil
}

func (a *app) Close() error {
	if a.inspector != nil {
		if err := a.inspector.Close(); err != nil {
			return err
		}
	}
	if a.oracleCache != nil {
		return a.oracleCache.Close()
	}
	return nil
}

// batchName renders a batch number into the fixed "batch-NNNN" form used
// throughout the file tiers and the state store.
func batchName(n int) string {
	return fmt.Sprintf("batch-%04d", n)
}

var batchFileRe = regexp.MustCompile(`^batch-(\d{4})\.txt(\.gz)?$`)

// discoverBatchNumbers lists every batch number with a GRAVEL file on disk,
// in ascending order — the universe --next scans over.
func discoverBatchNumbers(gravelDir string) ([]int, error) {
	entries, err := os.ReadDir(gravelDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read gravel dir %s: %w", gravelDir, err)
	}
	seen := make(map[int]bool)
	for _, e := range entries {
		m := batchFileRe.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		seen[n] = true
	}
	numbers := make([]int, 0, len(seen))
	for n := range seen {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)
	return numbers, nil
}

// nextUnprocessed returns the smallest batch number strictly greater than
// after whose batch is not yet fully processed, per spec §4.7's "--next skips
// fully-processed batches" rule.
func (a *app) nextUnprocessed(after int) (int, bool, error) {
	numbers, err := discoverBatchNumbers(a.cfg.Data.GravelDir())
	if err != nil {
		return 0, false, err
	}
	for _, n := range numbers {
		if n <= after {
			continue
		}
		done, err := a.orch.IsFullyProcessed(batchName(n))
		if err != nil {
			return 0, false, err
		}
		if !done {
			return n, true, nil
		}
	}
	return 0, false, nil
}

func ensureDataDirs(cfg *config.Config) error {
	dirs := []string{
		cfg.Data.GravelDir(), cfg.Data.SandDir(), cfg.Data.DiamondsDir(),
		cfg.Data.GlassDir(), cfg.Data.CohortDir(), cfg.Data.FeedbackDir(),
		filepath.Dir(cfg.Data.PearlsPath()),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return fmt.Errorf("create data dir %s: %w", d, err)
		}
	}
	return nil
}
