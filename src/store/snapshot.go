package store

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/tiendc/go-deepcopy"
	"gopkg.in/yaml.v3"
)

// snapshot returns a detached copy of the tables so encoding can run without holding the lock.
func (s *Store) snapshot() (tables, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := newTables()
	if err := deepcopy.Copy(&snap, &s.t); err != nil {
		return tables{}, fmt.Errorf("copy tables: %w", err)
	}
	return snap, nil
}

// Save writes the store to path as YAML. The file is replaced atomically.
func (s *Store) Save(path string) error {
	snap, err := s.snapshot()
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := yaml.NewEncoder(tmp)
	if err := enc.Encode(snap); err != nil {
		tmp.Close()
		return fmt.Errorf("encode store: %w", err)
	}
	if err := enc.Close(); err != nil {
		tmp.Close()
		return fmt.Errorf("encode store: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	slog.Debug("Store saved", "path", path, "elevators", len(snap.Elevators), "requests", len(snap.Requests))
	return nil
}

// Load replaces the store contents with the file at path. A missing file leaves the store
// untouched and reports false.
func (s *Store) Load(path string) (bool, error) {
	file, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("open store file: %w", err)
	}
	defer file.Close()

	loaded := newTables()
	if err := yaml.NewDecoder(file).Decode(&loaded); err != nil {
		return false, fmt.Errorf("decode store file %s: %w", path, err)
	}
	if loaded.Buildings == nil {
		loaded.Buildings = make(map[string]buildingRow)
	}
	if loaded.Elevators == nil {
		loaded.Elevators = make(map[string]elevatorRow)
	}
	if loaded.Requests == nil {
		loaded.Requests = make(map[string]requestRow)
	}

	s.mu.Lock()
	s.t = loaded
	s.mu.Unlock()
	slog.Info("Store loaded", "path", path, "buildings", len(loaded.Buildings), "elevators", len(loaded.Elevators), "requests", len(loaded.Requests))
	return true, nil
}
