package stage2

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sluicehq/sluice/pkg/material"
)

// materializeBatch writes the batch's DIAMONDS and GLASS artifacts once
// every attack has run: the full (hash, plaintext) pairs are downloaded
// from the coordination service, written as the batch's own JSONL and
// hash:plain files plus a unique-plaintext sidecar, appended to the global
// DIAMONDS JSONL, and diffed against the batch's SAND file to produce
// GLASS = SAND - DIAMONDS (spec §2, §6). A zero-value SandDir or DiamondsDir
// in Config disables this step, for callers that only care about the
// state-store side of Stage 2 (e.g. most of this package's own tests); a
// zero-value GlassDir skips only the GLASS diff.
func (s *Scheduler) materializeBatch(ctx context.Context, batchName, hashlistID string) error {
	if s.cfg.SandDir == "" || s.cfg.DiamondsDir == "" {
		return nil
	}

	pairs, err := s.cfg.Coord.GetCrackedHashes(ctx, hashlistID)
	if err != nil {
		return fmt.Errorf("download cracked hashes for diamonds: %w", err)
	}

	materialPairs := make([]material.Pair, len(pairs))
	cracked := make(map[string]struct{}, len(pairs))
	for i, p := range pairs {
		materialPairs[i] = material.Pair{Hash: p.Hash, Plain: p.Plain}
		cracked[p.Hash] = struct{}{}
	}

	if err := os.MkdirAll(s.cfg.DiamondsDir, 0o755); err != nil {
		return fmt.Errorf("create diamonds dir: %w", err)
	}

	batchPairsPath := filepath.Join(s.cfg.DiamondsDir, batchName+".txt")
	if err := writeHashPlainPairs(batchPairsPath, materialPairs); err != nil {
		return fmt.Errorf("write batch diamonds file: %w", err)
	}

	passwordsPath := filepath.Join(s.cfg.DiamondsDir, "passwords-"+batchName+".txt")
	if err := writeUniquePlaintexts(passwordsPath, materialPairs); err != nil {
		return fmt.Errorf("write batch passwords file: %w", err)
	}

	globalPath := filepath.Join(s.cfg.DiamondsDir, "hash_plaintext_pairs.jsonl")
	f, err := os.OpenFile(globalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open global diamonds jsonl: %w", err)
	}
	defer f.Close()
	if err := material.AppendPairsJSONL(f, materialPairs); err != nil {
		return fmt.Errorf("append global diamonds jsonl: %w", err)
	}

	if s.cfg.GlassDir != "" {
		sandPath := filepath.Join(s.cfg.SandDir, batchName+".txt.gz")
		if _, err := os.Stat(sandPath); err == nil {
			if err := os.MkdirAll(s.cfg.GlassDir, 0o755); err != nil {
				return fmt.Errorf("create glass dir: %w", err)
			}
			glassPath := filepath.Join(s.cfg.GlassDir, batchName+".txt")
			if err := writeGlassResidue(sandPath, cracked, glassPath); err != nil {
				return fmt.Errorf("compute glass: %w", err)
			}
		}
	}
	return nil
}

// writeGlassResidue reads sandPath (gzip-compressed, one uppercase 40-char
// hex hash per line, per spec §2) and writes every hash not present in
// cracked to glassPath as plain text — GLASS is kept uncompressed since,
// unlike SAND, its size is the batch's failure count rather than its whole
// keyspace.
func writeGlassResidue(sandPath string, cracked map[string]struct{}, glassPath string) error {
	in, err := os.Open(sandPath)
	if err != nil {
		return fmt.Errorf("open sand file %s: %w", sandPath, err)
	}
	defer in.Close()
	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("open gzip reader for %s: %w", sandPath, err)
	}
	defer gz.Close()

	out, err := os.Create(glassPath)
	if err != nil {
		return fmt.Errorf("create glass file %s: %w", glassPath, err)
	}
	defer out.Close()
	w := bufio.NewWriter(out)

	scanner := bufio.NewScanner(gz)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		hash := strings.ToUpper(strings.TrimSpace(scanner.Text()))
		if hash == "" {
			continue
		}
		if _, ok := cracked[hash]; ok {
			continue
		}
		if _, err := fmt.Fprintln(w, hash); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("scan sand file %s: %w", sandPath, err)
	}
	return w.Flush()
}

func writeHashPlainPairs(path string, pairs []material.Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	for _, p := range pairs {
		if _, err := fmt.Fprintf(f, "%s:%s\n", p.Hash, p.Plain); err != nil {
			return err
		}
	}
	return nil
}

func writeUniquePlaintexts(path string, pairs []material.Pair) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	seen := make(map[string]struct{}, len(pairs))
	for _, p := range pairs {
		if _, ok := seen[p.Plain]; ok {
			continue
		}
		seen[p.Plain] = struct{}{}
		if _, err := fmt.Fprintln(f, p.Plain); err != nil {
			return err
		}
	}
	return nil
}
