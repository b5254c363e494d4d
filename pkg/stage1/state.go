package stage1

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sluicehq/sluice/pkg/log"
)

// Status is a Stage 1 batch record's lifecycle state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Record is one batch's Stage 1 outcome — deliberately smaller than Stage
// 2's types.Batch, per spec.md's "gravel-state.json ... smaller, same
// discipline" note: Stage 1 runs exactly one attack per batch, so there is
// no attack order to track.
type Record struct {
	Name            string  `json:"name"`
	Status          Status  `json:"status"`
	GravelLines     int     `json:"gravelLines"`
	PearlsAdded     int     `json:"pearlsAdded"`
	SandWritten     int     `json:"sandWritten"`
	Malformed       int     `json:"malformed"`
	CrackRate       float64 `json:"crackRate"`
	DurationSeconds float64 `json:"durationSeconds"`
	Error           string  `json:"error,omitempty"`

	StartedAt   time.Time `json:"startedAt,omitempty"`
	CompletedAt time.Time `json:"completedAt,omitempty"`
}

// State is the on-disk shape of the Stage 1 state file: one Record per
// batch name.
type State struct {
	Batches map[string]*Record `json:"batches"`
}

// Store persists State to a single JSON file with the same backup-before-
// write, write-temp-then-rename discipline as pkg/state.Store.
type Store struct {
	path   string
	logger zerolog.Logger
	mu     sync.Mutex
	state  *State
	loaded bool
}

// NewStore creates a Store backed by path. The file is not read until first
// use.
func NewStore(path string) *Store {
	return &Store{path: path, logger: log.WithComponent("stage1")}
}

func (s *Store) ensureLoaded() *State {
	if s.loaded {
		return s.state
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn().Err(err).Str("path", s.path).Msg("stage1 state file unreadable, starting fresh")
		}
		s.state = &State{Batches: make(map[string]*Record)}
		s.loaded = true
		return s.state
	}
	st := &State{}
	if err := json.Unmarshal(data, st); err != nil {
		s.logger.Warn().Err(err).Str("path", s.path).Msg("stage1 state file unparseable, starting fresh")
		s.state = &State{Batches: make(map[string]*Record)}
		s.loaded = true
		return s.state
	}
	if st.Batches == nil {
		st.Batches = make(map[string]*Record)
	}
	s.state = st
	s.loaded = true
	return s.state
}

// Get returns the record for name, or nil if none exists yet.
func (s *Store) Get(name string) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensureLoaded().Batches[name]
}

// Put writes (or overwrites) the record for rec.Name and persists it.
func (s *Store) Put(rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.ensureLoaded()
	st.Batches[rec.Name] = &rec
	return s.saveLocked()
}

func (s *Store) saveLocked() error {
	if err := backup(s.path); err != nil {
		return fmt.Errorf("backup stage1 state file: %w", err)
	}
	data, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal stage1 state: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp stage1 state file: %w", err)
	}
	return os.Rename(tmp, s.path)
}

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
