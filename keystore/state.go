package keystore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// State records which split addresses the authority has issued.
// Persisted as JSON next to the sealed seed.
type State struct {
	Chain     string            `json:"chain"`
	NextIndex uint32            `json:"next_index"`
	Addresses map[string]uint32 `json:"addresses"` // address -> derivation index
}

func newState(chain string) *State {
	return &State{Chain: chain, Addresses: map[string]uint32{}}
}

// Validate checks a loaded state for index reuse.
func (s *State) Validate() error {
	seen := make(map[uint32]string, len(s.Addresses))
	for addr, idx := range s.Addresses {
		if idx >= s.NextIndex {
			return fmt.Errorf("keystore: address %s has index %d >= next index %d", addr, idx, s.NextIndex)
		}
		if prev, ok := seen[idx]; ok {
			return fmt.Errorf("keystore: index %d issued to both %s and %s", idx, prev, addr)
		}
		seen[idx] = addr
	}
	return nil
}

func loadState(path string) (*State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("keystore: read state: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("keystore: parse state: %w", err)
	}
	if st.Addresses == nil {
		st.Addresses = map[string]uint32{}
	}
	if err := st.Validate(); err != nil {
		return nil, err
	}
	return &st, nil
}

// save writes the state through a temp file so a crash never leaves a
// truncated file behind.
func (s *State) save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("keystore: encode state: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("keystore: create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("keystore: write state: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("keystore: replace state: %w", err)
	}
	return nil
}
