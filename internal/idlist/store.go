package idlist

import "fmt"

// Store binds list operations to one configured path. The zero value (or a
// Store built from "none") is disabled: Load returns an empty list and Save is
// a no-op.
type Store struct {
	path    string
	enabled bool
}

// NewStore builds a Store from a raw configured path.
func NewStore(raw string) Store {
	path, enabled := ParsePath(raw)
	return Store{path: path, enabled: enabled}
}

// Enabled reports whether the store is backed by a file.
func (s Store) Enabled() bool {
	return s.enabled
}

// Path returns the resolved file path, or "" when disabled.
func (s Store) Path() string {
	return s.path
}

// Load reads the current list. Disabled stores yield an empty list.
func (s Store) Load() ([]string, error) {
	if !s.enabled {
		return []string{}, nil
	}
	return Read(s.path)
}

// Save atomically replaces the list. Disabled stores ignore the call.
func (s Store) Save(ids []string) error {
	if !s.enabled {
		return nil
	}
	return Write(s.path, ids)
}

// Add merges ids into the persisted list (existing entries first) and returns
// the number of identifiers that were not already present.
func (s Store) Add(ids ...string) (int, error) {
	if !s.enabled || len(ids) == 0 {
		return 0, nil
	}
	current, err := s.Load()
	if err != nil {
		return 0, err
	}
	merged := Merge(current, ids)
	added := len(merged) - len(current)
	if added == 0 {
		return 0, nil
	}
	if err := s.Save(merged); err != nil {
		return 0, fmt.Errorf("add to list: %w", err)
	}
	return added, nil
}
