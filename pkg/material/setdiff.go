package material

import (
	"bufio"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
)

// DefaultBatchSize is the default number of lines per SAND output file.
const DefaultBatchSize = 1_000_000

// DiffStats summarizes one run of the streaming set-difference engine.
type DiffStats struct {
	GravelLines int // total lines read across all GRAVEL batch files
	Malformed   int // lines skipped for not being 40 chars long after trim
	Cracked     int // lines present in PEARLS, excluded from SAND
	Written     int // lines written to SAND
	OutputFiles int
}

// LoadHashSet reads a PEARLS-formatted file (lines of HASH:PLAIN, or a
// pure hash-per-line file) into a membership set keyed by uppercase hex hash.
// This is the engine's one unavoidable in-memory cost: for 2x10^8 40-char hex
// hashes stored as strings, expect on the order of 8GB resident including Go
// map overhead.
func LoadHashSet(r io.Reader) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		hash := line
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			hash = line[:idx]
		}
		hash = strings.ToUpper(strings.TrimSpace(hash))
		if len(hash) != 40 {
			continue
		}
		set[hash] = struct{}{}
	}
	return set, scanner.Err()
}

// openMaybeGzip opens path and, if it ends in .gz, wraps it in a gzip
// reader. Either way one io.ReadCloser is returned, whose Close closes the
// gzip reader (if any) and the file.
func openMaybeGzip(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if strings.HasSuffix(path, ".gz") {
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		return &gzipReadCloser{gz: gz, f: f}, nil
	}
	return f, nil
}

type gzipReadCloser struct {
	gz *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }
func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	fErr := g.f.Close()
	if gzErr != nil {
		return gzErr
	}
	return fErr
}

// Diff streams every GRAVEL batch file in gravelDir (plain or gzipped, one
// uppercase 40-char hex hash per line), subtracts pearls, and writes the
// residue to gzipped SAND files of at most batchSize lines each under
// outDir, named batch-NNNN.txt.gz and numbered from startIndex+1.
//
// Output preserves the concatenated order of the input files (sorted by
// name) and, within each, line order — deterministic by design so a given
// GRAVEL/PEARLS pair always produces the same SAND files.
func Diff(gravelDir string, pearls map[string]struct{}, outDir string, batchSize, startIndex int) (DiffStats, error) {
	logger := log.WithComponent("material")
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	entries, err := os.ReadDir(gravelDir)
	if err != nil {
		return DiffStats{}, fmt.Errorf("read gravel dir: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		files = append(files, e.Name())
	}
	sort.Strings(files)

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return DiffStats{}, fmt.Errorf("create output dir: %w", err)
	}

	var stats DiffStats
	w := newSandWriter(outDir, batchSize, startIndex, logger)

	for _, name := range files {
		path := filepath.Join(gravelDir, name)
		if err := diffOneFile(path, pearls, w, &stats); err != nil {
			w.abort()
			return stats, fmt.Errorf("diff %s: %w", path, err)
		}
	}

	if err := w.close(); err != nil {
		return stats, fmt.Errorf("flush final sand batch: %w", err)
	}
	stats.OutputFiles = w.filesWritten

	if stats.Written+stats.Cracked != stats.GravelLines-stats.Malformed {
		logger.Warn().
			Int("written", stats.Written).
			Int("cracked", stats.Cracked).
			Int("gravelLines", stats.GravelLines).
			Int("malformed", stats.Malformed).
			Msg("set-difference accounting mismatch: |SAND| + |PEARLS n GRAVEL| != |GRAVEL| - malformed")
	}
	return stats, nil
}

// DiffFile streams a single GRAVEL batch file (plain or gzipped) against
// pearls and writes the residue as one gzipped file at outPath — the
// per-batch form Stage 1 uses, as opposed to Diff's directory-wide,
// size-rolled-over form used when re-chunking SAND for Stage 2.
func DiffFile(gravelPath string, pearls map[string]struct{}, outPath string) (DiffStats, error) {
	rc, err := openMaybeGzip(gravelPath)
	if err != nil {
		return DiffStats{}, fmt.Errorf("open gravel file %s: %w", gravelPath, err)
	}
	defer rc.Close()

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return DiffStats{}, fmt.Errorf("create output dir: %w", err)
	}
	out, err := os.Create(outPath)
	if err != nil {
		return DiffStats{}, fmt.Errorf("create %s: %w", outPath, err)
	}
	gz := gzip.NewWriter(out)

	var stats DiffStats
	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.GravelLines++
		hash := strings.ToUpper(line)
		if len(hash) != 40 {
			stats.Malformed++
			continue
		}
		if _, cracked := pearls[hash]; cracked {
			stats.Cracked++
			continue
		}
		if _, err := gz.Write([]byte(hash + "\n")); err != nil {
			gz.Close()
			out.Close()
			os.Remove(outPath)
			return stats, fmt.Errorf("write sand line: %w", err)
		}
		stats.Written++
	}
	if err := scanner.Err(); err != nil {
		gz.Close()
		out.Close()
		os.Remove(outPath)
		return stats, fmt.Errorf("scan gravel file: %w", err)
	}

	if err := gz.Close(); err != nil {
		out.Close()
		os.Remove(outPath)
		return stats, fmt.Errorf("close gzip writer: %w", err)
	}
	if err := out.Close(); err != nil {
		return stats, fmt.Errorf("close %s: %w", outPath, err)
	}
	stats.OutputFiles = 1

	if stats.Written+stats.Cracked != stats.GravelLines-stats.Malformed {
		log.WithComponent("material").Warn().
			Int("written", stats.Written).
			Int("cracked", stats.Cracked).
			Int("gravelLines", stats.GravelLines).
			Int("malformed", stats.Malformed).
			Msg("set-difference accounting mismatch: |SAND| + |PEARLS n GRAVEL| != |GRAVEL| - malformed")
	}
	return stats, nil
}

func diffOneFile(path string, pearls map[string]struct{}, w *sandWriter, stats *DiffStats) error {
	rc, err := openMaybeGzip(path)
	if err != nil {
		return err
	}
	defer rc.Close()

	scanner := bufio.NewScanner(rc)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		stats.GravelLines++
		hash := strings.ToUpper(line)
		if len(hash) != 40 {
			stats.Malformed++
			continue
		}
		if _, cracked := pearls[hash]; cracked {
			stats.Cracked++
			continue
		}
		if err := w.write(hash); err != nil {
			return err
		}
		stats.Written++
	}
	return scanner.Err()
}

// sandWriter buffers SAND output and rolls over to a new gzipped file every
// batchSize lines.
type sandWriter struct {
	outDir       string
	batchSize    int
	index        int
	logger       zerolog.Logger
	lines        int
	f            *os.File
	gz           *gzip.Writer
	filesWritten int
}

func newSandWriter(outDir string, batchSize, startIndex int, logger zerolog.Logger) *sandWriter {
	return &sandWriter{outDir: outDir, batchSize: batchSize, index: startIndex, logger: logger}
}

func (w *sandWriter) write(hash string) error {
	if w.f == nil {
		if err := w.openNext(); err != nil {
			return err
		}
	}
	if _, err := w.gz.Write([]byte(hash + "\n")); err != nil {
		return err
	}
	w.lines++
	if w.lines >= w.batchSize {
		return w.rollOver()
	}
	return nil
}

func (w *sandWriter) openNext() error {
	w.index++
	name := fmt.Sprintf("batch-%04d.txt.gz", w.index)
	path := filepath.Join(w.outDir, name)
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	w.f = f
	w.gz = gzip.NewWriter(f)
	w.lines = 0
	return nil
}

func (w *sandWriter) rollOver() error {
	if err := w.flush(); err != nil {
		return err
	}
	w.f = nil
	w.gz = nil
	w.filesWritten++
	return nil
}

func (w *sandWriter) flush() error {
	if w.gz == nil {
		return nil
	}
	if err := w.gz.Close(); err != nil {
		return err
	}
	return w.f.Close()
}

func (w *sandWriter) close() error {
	if w.f == nil {
		return nil
	}
	if w.lines > 0 {
		if err := w.flush(); err != nil {
			return err
		}
		w.filesWritten++
		w.f = nil
		w.gz = nil
	}
	return nil
}

// abort removes a partially written output file after an I/O failure, per
// the fatal-I/O policy: a failed write is reported with the partial file
// removed, never left behind half-written.
func (w *sandWriter) abort() {
	if w.f == nil {
		return
	}
	path := w.f.Name()
	w.gz.Close()
	w.f.Close()
	os.Remove(path)
}
