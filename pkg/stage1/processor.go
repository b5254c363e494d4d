package stage1

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/material"
	"github.com/sluicehq/sluice/pkg/remotejob"
)

// Shell is the subset of *remoteshell.Shell the processor needs: command
// execution plus the file transfer pair used to stage inputs and collect
// the potfile.
type Shell interface {
	ExecShell(ctx context.Context, cmd string, timeout time.Duration) (string, error)
	UploadFile(ctx context.Context, local, remotePath string, timeout time.Duration) error
	DownloadFile(ctx context.Context, remotePath, local string, timeout time.Duration) error
}

// Config configures a Processor.
type Config struct {
	Shell   Shell
	WorkDir string // remote base dir, containing hashlists/, wordlists/, rules/, potfiles/

	DictionaryLocalPath  string
	DictionaryRemoteName string
	RuleLocalPath        string
	RuleRemoteName       string
	HashMode             string // hashcat -m value, e.g. "100" for raw SHA-1

	GravelDir string // local dir of batch-NNNN.txt[.gz] files
	PearlsPath string // local global PEARLS JSONL path
	SandDir    string // local dir for per-batch SAND output

	UploadTimeout time.Duration
	ExecTimeout   time.Duration

	// RemoteJob overrides the underlying remotejob.Controller's timing, for
	// tests. Zero values fall back to remotejob's own defaults.
	RemoteJob remotejob.Config
}

func (c *Config) setDefaults() {
	if c.HashMode == "" {
		c.HashMode = "100"
	}
	if c.UploadTimeout == 0 {
		c.UploadTimeout = 5 * time.Minute
	}
	if c.ExecTimeout == 0 {
		c.ExecTimeout = 30 * time.Second
	}
}

// Processor drives one batch through GRAVEL -> PEARLS + SAND with the fixed
// universal attack.
type Processor struct {
	cfg        Config
	store      *Store
	controller *remotejob.Controller
	logger     zerolog.Logger
}

// New creates a Processor. stateStore persists batch outcomes to
// gravel-state.json.
func New(cfg Config, stateStore *Store) *Processor {
	cfg.setDefaults()
	jobCfg := cfg.RemoteJob
	jobCfg.Shell = cfg.Shell
	jobCfg.WorkDir = cfg.WorkDir
	controller := remotejob.New(jobCfg)
	return &Processor{
		cfg:        cfg,
		store:      stateStore,
		controller: controller,
		logger:     log.WithComponent("stage1"),
	}
}

// Process drives batchName through Stage 1, returning the stored record.
// If batchName already completed, the stored record is returned unchanged
// and nothing is re-run.
func (p *Processor) Process(ctx context.Context, batchName string) (Record, error) {
	if existing := p.store.Get(batchName); existing != nil && existing.Status == StatusCompleted {
		p.logger.Info().Str("batch", batchName).Msg("stage1 already completed, returning stored result")
		return *existing, nil
	}

	logger := p.logger.With().Str("batch", batchName).Logger()
	start := time.Now()

	gravelLocal, err := p.findGravelFile(batchName)
	if err != nil {
		return Record{}, p.fail(batchName, err)
	}

	remoteHashPath := p.remotePath("hashlists", batchName+".txt")
	if err := p.ensureRemoteFile(ctx, gravelLocal, remoteHashPath); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("stage hash file: %w", err))
	}

	remoteDictPath := p.remotePath("wordlists", p.cfg.DictionaryRemoteName)
	if err := p.ensureRemoteFile(ctx, p.cfg.DictionaryLocalPath, remoteDictPath); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("stage dictionary: %w", err))
	}
	remoteRulePath := p.remotePath("rules", p.cfg.RuleRemoteName)
	if err := p.ensureRemoteFile(ctx, p.cfg.RuleLocalPath, remoteRulePath); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("stage rule file: %w", err))
	}

	remotePotfilePath := p.remotePath("potfiles", batchName+".pot")
	spec := remotejob.AttackSpec{
		Name:        "stage1-universal",
		PotfilePath: remotePotfilePath,
		LogPath:     p.remotePath("potfiles", batchName+".log"),
		Command: fmt.Sprintf(
			"hashcat -m %s -a 0 %s %s -r %s --potfile-path %s -O --status --status-timer 30",
			p.cfg.HashMode, remoteHashPath, remoteDictPath, remoteRulePath, remotePotfilePath,
		),
	}

	// The controller's own NewCracks is a potfile-line-delta estimate; the
	// authoritative count comes from parsing the downloaded potfile below,
	// so its Result is discarded here.
	if _, err := p.controller.RunAttack(ctx, batchName, spec); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("run universal attack: %w", err))
	}

	localPotfile := filepath.Join(p.cfg.SandDir, batchName+".pot")
	if err := p.cfg.Shell.DownloadFile(ctx, remotePotfilePath, localPotfile, p.cfg.UploadTimeout); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("download potfile: %w", err))
	}
	defer os.Remove(localPotfile)

	potfileFile, err := os.Open(localPotfile)
	if err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("open downloaded potfile: %w", err))
	}
	pairs, malformed, err := material.ParsePotfile(potfileFile)
	potfileFile.Close()
	if err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("parse potfile: %w", err))
	}

	pearlsSet := make(map[string]struct{}, len(pairs))
	for _, pair := range pairs {
		pearlsSet[pair.Hash] = struct{}{}
	}

	sandPath := filepath.Join(p.cfg.SandDir, batchName+".txt.gz")
	diffStats, err := material.DiffFile(gravelLocal, pearlsSet, sandPath)
	if err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("compute sand: %w", err))
	}

	if err := p.appendPearls(pairs); err != nil {
		return Record{}, p.fail(batchName, fmt.Errorf("append pearls: %w", err))
	}

	if diffStats.Written+len(pairs) != diffStats.GravelLines-diffStats.Malformed {
		logger.Warn().
			Int("sandWritten", diffStats.Written).
			Int("pearlsAdded", len(pairs)).
			Int("gravelLines", diffStats.GravelLines).
			Msg("stage1 invariant violated: |PEARLS| + |SAND| != |GRAVEL| - malformed; state is persisted anyway")
	}

	crackRate := 0.0
	if diffStats.GravelLines > 0 {
		crackRate = float64(len(pairs)) / float64(diffStats.GravelLines)
	}

	rec := Record{
		Name:            batchName,
		Status:          StatusCompleted,
		GravelLines:     diffStats.GravelLines,
		PearlsAdded:     len(pairs),
		SandWritten:     diffStats.Written,
		Malformed:       malformed + diffStats.Malformed,
		CrackRate:       crackRate,
		DurationSeconds: time.Since(start).Seconds(),
		StartedAt:       start,
		CompletedAt:     time.Now(),
	}
	if err := p.store.Put(rec); err != nil {
		return rec, fmt.Errorf("persist stage1 record: %w", err)
	}

	if _, err := p.cfg.Shell.ExecShell(ctx, fmt.Sprintf("rm -f %s %s", remoteHashPath, remotePotfilePath), p.cfg.ExecTimeout); err != nil {
		logger.Warn().Err(err).Msg("failed to clean up remote hash file and potfile, continuing")
	}

	logger.Info().Int("pearls", rec.PearlsAdded).Int("sand", rec.SandWritten).
		Float64("durationSeconds", rec.DurationSeconds).Msg("stage1 complete")
	return rec, nil
}

func (p *Processor) fail(batchName string, cause error) error {
	rec := Record{Name: batchName, Status: StatusFailed, Error: cause.Error()}
	if err := p.store.Put(rec); err != nil {
		p.logger.Error().Err(err).Str("batch", batchName).Msg("failed to persist stage1 failure record")
	}
	return cause
}

func (p *Processor) appendPearls(pairs []material.Pair) error {
	if err := os.MkdirAll(filepath.Dir(p.cfg.PearlsPath), 0o755); err != nil {
		return fmt.Errorf("create pearls dir: %w", err)
	}
	f, err := os.OpenFile(p.cfg.PearlsPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open pearls file: %w", err)
	}
	defer f.Close()
	return material.AppendPairsJSONL(f, pairs)
}

// findGravelFile locates batchName's GRAVEL file, plain or gzipped.
func (p *Processor) findGravelFile(batchName string) (string, error) {
	for _, suffix := range []string{".txt", ".txt.gz"} {
		path := filepath.Join(p.cfg.GravelDir, batchName+suffix)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("no gravel file found for batch %s under %s", batchName, p.cfg.GravelDir)
}

func (p *Processor) remotePath(subdir, name string) string {
	return strings.TrimRight(p.cfg.WorkDir, "/") + "/" + subdir + "/" + name
}

// ensureRemoteFile uploads local to remotePath unless a remote file of the
// same byte size already exists there — a cheap substitute for a checksum
// that avoids re-uploading the dictionary and rule file on every batch.
func (p *Processor) ensureRemoteFile(ctx context.Context, local, remotePath string) error {
	info, err := os.Stat(local)
	if err != nil {
		return fmt.Errorf("stat local file %s: %w", local, err)
	}

	out, err := p.cfg.Shell.ExecShell(ctx, fmt.Sprintf("stat -c%%s %s 2>/dev/null || echo -1", remotePath), p.cfg.ExecTimeout)
	if err != nil {
		return fmt.Errorf("probe remote file size: %w", err)
	}
	remoteSize, convErr := strconv.ParseInt(strings.TrimSpace(out), 10, 64)
	if convErr == nil && remoteSize == info.Size() {
		return nil
	}

	if _, err := p.cfg.Shell.ExecShell(ctx, fmt.Sprintf("mkdir -p %s", filepath.Dir(remotePath)), p.cfg.ExecTimeout); err != nil {
		return fmt.Errorf("create remote dir: %w", err)
	}
	return p.cfg.Shell.UploadFile(ctx, local, remotePath, p.cfg.UploadTimeout)
}
