package fsm

import (
	"errors"
	"sync"

	"josefine/raft"
)

var ErrKeyNotFound = errors.New("fsm: key not found")

// Store is a raft.StateMachine: an in-memory key/value map rebuilt
// entirely from the entries Raft replays through Apply. Direct
// grounding: the teacher's storage.Store, minus its own WAL (struct
// fields data/mu carried over verbatim; the wal field and recover() path
// are dropped since raft.Persister now owns durability of the record
// these commands were derived from).
type Store struct {
	mu   sync.RWMutex
	data map[string][]byte

	// lastApplied guards against re-applying the same index twice if the
	// driver ever redelivers (defensive bookkeeping the teacher's WAL
	// replay didn't need, since here the source of truth is the Raft log
	// itself, which can legitimately be replayed from index 1 on
	// restart).
	lastApplied raft.LogIndex
}

func NewStore() *Store {
	return &Store{data: make(map[string][]byte)}
}

// Apply implements raft.StateMachine. Entries are delivered strictly in
// order by DrainCommitted, so index is only used for the idempotency
// guard, never as a storage key.
func (s *Store) Apply(index raft.LogIndex, payload []byte) ([]byte, error) {
	cmd, err := DecodeCommand(payload)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if index <= s.lastApplied {
		return nil, nil
	}

	switch cmd.Op {
	case OpPut:
		valueCopy := make([]byte, len(cmd.Value))
		copy(valueCopy, cmd.Value)
		s.data[cmd.Key] = valueCopy
	case OpDelete:
		delete(s.data, cmd.Key)
	}
	s.lastApplied = index
	return nil, nil
}

// Get is a local, non-consensus read: the spec's read path is served
// straight from the FSM's current state rather than going through
// Propose, since a read doesn't need to become a log entry.
func (s *Store) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)
	return valueCopy, nil
}

func (s *Store) Stats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return map[string]any{"num_keys": len(s.data)}
}
