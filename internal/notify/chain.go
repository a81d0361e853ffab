package notify

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// chainHead is the persisted chain position.
type chainHead struct {
	Sequence uint64 `json:"sequence"`
	Hash     string `json:"hash"`
}

// chainState tracks the event chain across runs. When a head path is
// configured the state survives process restarts.
type chainState struct {
	mu   sync.Mutex
	path string
	head chainHead
}

func newChainState(path string) (*chainState, error) {
	s := &chainState{path: path}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading chain head: %w", err)
	}
	if err := json.Unmarshal(data, &s.head); err != nil {
		return nil, fmt.Errorf("parsing chain head: %w", err)
	}
	return s, nil
}

// next returns the chain position for the event being sealed.
func (s *chainState) next() ChainInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return ChainInfo{
		Sequence: s.head.Sequence + 1,
		PrevHash: s.head.Hash,
	}
}

// advance commits the emitted event's hash as the new chain head.
func (s *chainState) advance(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.head.Sequence++
	s.head.Hash = hash
	if s.path == "" {
		return nil
	}

	data, err := json.Marshal(s.head)
	if err != nil {
		return fmt.Errorf("marshaling chain head: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating chain head dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing chain head: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publishing chain head: %w", err)
	}
	return nil
}
