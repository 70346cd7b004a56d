// Package reconcile decides, for every note across the two stores, whether
// it is new, modified, deleted, or already in sync. The sync-state file is
// the only thing that makes new-vs-deleted distinguishable: listings alone
// cannot tell a never-seen note from one that vanished on one side.
package reconcile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aretw0/notebridge/pkg/note"
)

// Side names one of the two stores in state bookkeeping.
type Side string

const (
	SideJoplin Side = "joplin"
	SideVault  Side = "vault"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == SideJoplin {
		return SideVault
	}
	return SideJoplin
}

// StateEntry records the last-known sync state for one identity. An entry is
// created on first successful transfer and updated after every one since;
// it is never removed except by explicit cleanup (Forget).
type StateEntry struct {
	LastSyncedJoplin time.Time   `json:"last_synced_joplin"`
	LastSyncedVault  time.Time   `json:"last_synced_vault"`
	LastSource       note.Source `json:"last_source"`
	LastVersion      int         `json:"last_version"`
	Title            string      `json:"title,omitempty"`
	Container        string      `json:"container,omitempty"`
}

type stateFile struct {
	Version   int                    `json:"version"`
	UpdatedAt time.Time              `json:"updated_at"`
	Entries   map[string]*StateEntry `json:"entries"`
}

// State is the persisted identity -> StateEntry mapping. The file is plain
// indented JSON, one entry per identity, safe to hand-edit for recovery.
type State struct {
	path  string
	file  stateFile
	dirty bool
	mu    sync.RWMutex
}

// LoadState reads the state file. A missing file yields an empty state. A
// corrupt file also yields an empty state: treating every note as
// never-seen surfaces extra confirmations instead of silent deletions.
func LoadState(path string) (*State, error) {
	s := &State{
		path: path,
		file: stateFile{Version: 1, Entries: make(map[string]*StateEntry)},
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sync state: %w", err)
	}

	if err := json.Unmarshal(data, &s.file); err != nil {
		s.file = stateFile{Version: 1, Entries: make(map[string]*StateEntry)}
		return s, nil
	}
	if s.file.Entries == nil {
		s.file.Entries = make(map[string]*StateEntry)
	}
	return s, nil
}

// Get returns the entry for an identity, if one exists.
func (s *State) Get(id string) (*StateEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.file.Entries[id]
	return e, ok
}

// Len returns the number of tracked identities.
func (s *State) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.file.Entries)
}

// Record reports a successful transfer for an identity: the given side's
// last-synced timestamp is set and the source/version bookkeeping updated.
func (s *State) Record(id string, side Side, ts time.Time, source note.Source, version int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.file.Entries[id]
	if !ok {
		e = &StateEntry{LastVersion: 1}
		s.file.Entries[id] = e
	}
	switch side {
	case SideJoplin:
		e.LastSyncedJoplin = ts
	case SideVault:
		e.LastSyncedVault = ts
	}
	e.LastSource = source
	if version > e.LastVersion {
		e.LastVersion = version
	}
	s.dirty = true
}

// Describe stores human-readable context (title, container) alongside an
// entry so deletion candidates can be justified later.
func (s *State) Describe(id, title, container string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.file.Entries[id]; ok {
		e.Title = title
		e.Container = container
		s.dirty = true
	}
}

// Forget removes an identity after an explicit, confirmed deletion.
func (s *State) Forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.file.Entries[id]; ok {
		delete(s.file.Entries, id)
		s.dirty = true
	}
}

// Save persists the state if anything changed, writing atomically via a
// temp file and rename.
func (s *State) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.dirty {
		return nil
	}
	s.file.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(&s.file, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return err
	}

	s.dirty = false
	return nil
}
