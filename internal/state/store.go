package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Entry records what the destination last accepted for one identifier.
type Entry struct {
	Identifier string    `json:"identifier"`
	DatasetID  string    `json:"dataset_id"`
	Signature  string    `json:"signature"`
	SyncedAt   time.Time `json:"synced_at"`
	Status     string    `json:"status"`
}

// Snapshot is the complete set of identifiers known to be present on
// the destination after the last completed run. It is loaded at run
// start and replaced wholesale at run end, never mutated in between.
type Snapshot struct {
	entries map[string]Entry
}

func NewSnapshot() *Snapshot {
	return &Snapshot{entries: make(map[string]Entry)}
}

func (s *Snapshot) Get(identifier string) (Entry, bool) {
	e, ok := s.entries[identifier]
	return e, ok
}

func (s *Snapshot) Put(e Entry) {
	s.entries[e.Identifier] = e
}

func (s *Snapshot) Len() int {
	return len(s.entries)
}

// Identifiers returns all known identifiers in sorted order.
func (s *Snapshot) Identifiers() []string {
	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type Option func(*Store)

func WithLogger(logger *zap.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// Store persists snapshots as a single JSON file keyed by identifier.
type Store struct {
	path   string
	logger *zap.Logger
}

func NewStore(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: zap.NewNop(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Load reads the previous snapshot. A missing file yields an empty
// snapshot (first run); a corrupt file is an error since syncing
// against bad state would delete everything on the destination.
func (s *Store) Load() (*Snapshot, error) {
	bs, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		s.logger.Info("no state file found, starting with empty snapshot",
			zap.String("path", s.path))
		return NewSnapshot(), nil
	}
	if err != nil {
		return nil, err
	}

	var entries map[string]Entry
	if err := json.Unmarshal(bs, &entries); err != nil {
		return nil, fmt.Errorf("state: corrupt state file %s: %w", s.path, err)
	}

	snap := NewSnapshot()
	for id, e := range entries {
		if e.Identifier == "" {
			e.Identifier = id
		}
		snap.Put(e)
	}

	s.logger.Info("state loaded",
		zap.String("path", s.path),
		zap.Int("entries", snap.Len()),
	)
	return snap, nil
}

// Replace atomically overwrites the state file with the new snapshot.
// The snapshot is written to a temp file in the same directory and
// renamed into place, so a killed run leaves the old file intact.
func (s *Store) Replace(snap *Snapshot) error {
	bs, err := json.MarshalIndent(snap.entries, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".datasets-*.json")
	if err != nil {
		return err
	}

	if _, err := tmp.Write(bs); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	s.logger.Info("state replaced",
		zap.String("path", s.path),
		zap.Int("entries", snap.Len()),
	)
	return nil
}
