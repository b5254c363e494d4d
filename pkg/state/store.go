package state

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
	"github.com/sluicehq/sluice/pkg/types"
)

// Store persists one State to a single JSON file with backup-before-write.
// It is safe for concurrent use, though the orchestrator's single-writer
// discipline means contention is not expected in practice.
type Store struct {
	path    string
	logger  zerolog.Logger
	mu      sync.Mutex
	state   *types.State
	loaded  bool
	pending *time.Timer
}

// New creates a Store backed by path. The file is not read until Load or the
// first accessor call, matching the teacher's lazy-open pattern for on-disk
// stores.
func New(path string) *Store {
	return &Store{
		path:   path,
		logger: log.WithComponent("state"),
	}
}

// Load reads the JSON file if present, migrating missing fields to their
// zero-value defaults. A missing file yields a fresh default state; an
// unparseable file logs a warning and also yields a fresh default state
// rather than failing — the store's job is to never block the orchestrator
// on a corrupt-but-recoverable history. Any other read error is returned.
func (s *Store) Load() (*types.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked()
}

func (s *Store) loadLocked() (*types.State, error) {
	if s.loaded {
		return s.state, nil
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			s.state = types.NewState()
			s.loaded = true
			return s.state, nil
		}
		return nil, fmt.Errorf("read state file: %w", err)
	}

	st := types.NewState()
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("state file unparseable, starting from a fresh default state")
		s.state = types.NewState()
		s.loaded = true
		return s.state, nil
	}

	migrate(st)
	s.state = st
	s.loaded = true
	return s.state, nil
}

// migrate fills nil maps left by older or hand-edited state files.
func migrate(st *types.State) {
	if st.Batches == nil {
		st.Batches = make(map[string]*types.Batch)
	}
	if st.Stats == nil {
		st.Stats = make(map[string]*types.AttackStats)
	}
	for _, b := range st.Batches {
		if b.TaskIDs == nil {
			b.TaskIDs = make(map[string]string)
		}
	}
}

// Save persists the current in-memory state: validate (logging but not
// blocking on warnings), back up the existing file, and
// write pretty-printed JSON. A write failure leaves the .bak intact and is
// returned to the caller for retry — the store never silently loses an
// acknowledged write.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if s.state == nil {
		return fmt.Errorf("save called before load")
	}

	for _, w := range validate(s.state) {
		s.logger.Warn().Str("warning", w).Msg("state invariant warning")
	}

	if err := backup(s.path); err != nil {
		return fmt.Errorf("backup state file: %w", err)
	}

	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("rename temp state file into place: %w", err)
	}
	return nil
}

// backup copies the existing file at path to path+".bak" if it exists. A
// missing source file is not an error — there is nothing to back up yet.
func backup(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return os.WriteFile(path+".bak", data, 0o644)
}

// SaveDebounced schedules a save after delay, coalescing rapid updates into
// one write. Any pending save is superseded by a later call; Flush forces an
// immediate write of whatever is pending.
func (s *Store) SaveDebounced(delay time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(delay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.pending = nil
		if err := s.saveLocked(); err != nil {
			s.logger.Error().Err(err).Msg("debounced state save failed")
		}
	})
}

// Flush cancels any pending debounced save and writes immediately. It should
// be called from a shutdown hook so a crash between debounce and fire never
// loses an acknowledged mutation.
func (s *Store) Flush() error {
	s.mu.Lock()
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()
	return s.Save()
}

// ensureLoaded loads the state file on first use of a mutating accessor, so
// tests and callers don't have to remember to call Load before InitBatch.
func (s *Store) ensureLoaded() *types.State {
	if !s.loaded {
		_, _ = s.loadLocked()
	}
	return s.state
}

// Path returns the backing file path, mainly for logging and tests.
func (s *Store) Path() string { return s.path }
