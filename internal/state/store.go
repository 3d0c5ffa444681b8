// Package state persists the pipeline's crash-safe state file. Every save
// goes through a temp file in the same directory followed by an atomic
// rename, so a concurrent reader observes either the old or the new state,
// never a partial write.
package state

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/yanun0323/errors"

	"main/internal/schema"
)

// Store reads and writes the canonical state file.
type Store struct {
	path string
}

// NewStore creates a store for the given state file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the canonical state file location.
func (s *Store) Path() string {
	return s.path
}

// Load reads the persisted state. A missing file yields a zero state so a
// first run starts clean; any other failure is surfaced.
func (s *Store) Load() (schema.PersistedState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return schema.PersistedState{}, nil
		}
		return schema.PersistedState{}, errors.Wrap(err, "read state file")
	}
	var st schema.PersistedState
	if err := json.Unmarshal(data, &st); err != nil {
		return schema.PersistedState{}, errors.Wrap(err, "decode state file").With("path", s.path)
	}
	return st, nil
}

// Save writes the state atomically: marshal, temp file in the same
// directory, fsync, rename over the canonical path. A failed save leaves
// the previous file fully intact.
func (s *Store) Save(st schema.PersistedState) error {
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encode state")
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, "create state dir")
		}
	}

	tmp, err := os.CreateTemp(dir, ".state-*.tmp")
	if err != nil {
		return errors.Wrap(err, "create temp state file")
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "write temp state file")
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "sync temp state file")
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "close temp state file")
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrap(err, "replace state file")
	}
	return nil
}

// RolloverIfNewDay resets the daily counters when the persisted trading date
// differs from today. The kill switch and circuit breaker survive rollover;
// they require an explicit reset.
func RolloverIfNewDay(st schema.PersistedState, tradingDate string) schema.PersistedState {
	if st.LastTradeDate == tradingDate {
		return st
	}
	st.DailyPnL = 0
	st.DailyTrades = 0
	st.ConsecutiveLosses = 0
	st.LastTradeDate = tradingDate
	return st
}
