package raft

import "sync"

// MemPersister is an in-memory Persister, the Go analogue of
// original_source's MemoryIo test double. Used by this package's own
// tests and available to callers (e.g. engine's tests) that want a Raft
// node without touching disk.
type MemPersister struct {
	mu      sync.Mutex
	term    Term
	vote    *NodeId
	entries []Entry
}

func NewMemPersister() *MemPersister { return &MemPersister{} }

func (m *MemPersister) SaveState(term Term, votedFor *NodeId) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.term = term
	m.vote = votedFor
	return nil
}

func (m *MemPersister) LoadState() (Term, *NodeId, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.term, m.vote, nil
}

func (m *MemPersister) Append(entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entries...)
	return nil
}

func (m *MemPersister) TruncateFrom(from LogIndex) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if from < 1 {
		return nil
	}
	if int(from) <= len(m.entries) {
		m.entries = m.entries[:from-1]
	}
	return nil
}

func (m *MemPersister) EntryAt(index LogIndex) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 1 || int(index) > len(m.entries) {
		return Entry{}, false
	}
	return m.entries[index-1], true
}

func (m *MemPersister) LastIndex() LogIndex {
	m.mu.Lock()
	defer m.mu.Unlock()
	return LogIndex(len(m.entries))
}

func (m *MemPersister) LastTerm() Term {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) == 0 {
		return 0
	}
	return m.entries[len(m.entries)-1].Term
}

func (m *MemPersister) TermAt(index LogIndex) (Term, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if index < 1 || int(index) > len(m.entries) {
		return 0, false
	}
	return m.entries[index-1].Term, true
}
