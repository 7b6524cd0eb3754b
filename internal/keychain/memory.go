package keychain

import (
	"fmt"
	"sort"
	"sync"
)

// MemoryStore is an in-memory implementation of Binding for testing.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	fail    error
}

type memoryEntry struct {
	Entry
	opts EntryOptions
}

// NewMemoryStore creates a new in-memory binding.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]memoryEntry)}
}

// FailWith makes every subsequent call return err, as a declined
// authentication prompt would. Pass nil to restore normal behaviour.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fail = err
}

func (s *MemoryStore) SetEntry(server, username, secret string, opts EntryOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.entries[server] = memoryEntry{Entry: Entry{Username: username, Secret: secret}, opts: opts}
	return nil
}

func (s *MemoryStore) GetEntry(server string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.fail != nil {
		return nil, s.fail
	}
	e, ok := s.entries[server]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, server)
	}
	cp := e.Entry
	return &cp, nil
}

func (s *MemoryStore) ResetEntry(server string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	delete(s.entries, server)
	return nil
}

func (s *MemoryStore) Available() bool { return true }

// Servers returns the stored entry names, sorted.
func (s *MemoryStore) Servers() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	servers := make([]string, 0, len(s.entries))
	for k := range s.entries {
		servers = append(servers, k)
	}
	sort.Strings(servers)
	return servers
}

// Options returns the options an entry was stored with.
func (s *MemoryStore) Options(server string) (EntryOptions, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[server]
	return e.opts, ok
}
