// Package fsm is the user state machine committed Raft entries are
// delivered to (raft.StateMachine, spec.md §6's "Core -> FSM
// (out-of-scope collaborator)"). Store is a WAL-less key/value map: Raft's
// own log is already the durable record each command can be replayed
// from, so the FSM itself only needs to be rebuildable by replaying
// entries 1..commit_index through Apply, not durable in its own right.
package fsm

import (
	"bytes"
	"encoding/gob"
	"fmt"
)

// OpKind mirrors the teacher's storage/wal.go OpType (OpPut/OpDelete),
// renamed Kind to match this package's naming. Put and Delete are the
// only operations; there is no no-op kind.
type OpKind uint8

const (
	OpPut OpKind = iota + 1
	OpDelete
)

// Command is what a client Put/Delete (PutCommand/DeleteCommand, called
// by server.BrokerServer) encodes into a raft.Entry's Payload; topic
// creation uses catalog's own command encoding instead. gob-encoded for the same reason raft/persist.go
// gob-encodes log records: no protoc available, and a private wire
// format has no cross-language requirement.
type Command struct {
	Op    OpKind
	Key   string
	Value []byte
}

// tag prefixes every payload this package produces so a fan-out FSM (one
// Raft log feeding both fsm.Store and catalog.Catalog, say) can tell
// which collaborator a committed entry belongs to by inspecting one byte
// rather than attempting a decode and hoping a mismatched gob type
// fails loudly instead of silently decoding into the wrong shape.
const tag = 0x01

func EncodeCommand(c Command) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tag)
	if err := gob.NewEncoder(&buf).Encode(c); err != nil {
		return nil, fmt.Errorf("fsm: encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// IsCommand reports whether payload carries this package's tag, letting
// a caller route a committed entry without decoding it.
func IsCommand(payload []byte) bool {
	return len(payload) > 0 && payload[0] == tag
}

func DecodeCommand(payload []byte) (Command, error) {
	if !IsCommand(payload) {
		return Command{}, fmt.Errorf("fsm: payload missing command tag")
	}
	var c Command
	if err := gob.NewDecoder(bytes.NewReader(payload[1:])).Decode(&c); err != nil {
		return Command{}, fmt.Errorf("fsm: decode command: %w", err)
	}
	return c, nil
}

func PutCommand(key string, value []byte) ([]byte, error) {
	return EncodeCommand(Command{Op: OpPut, Key: key, Value: value})
}

func DeleteCommand(key string) ([]byte, error) {
	return EncodeCommand(Command{Op: OpDelete, Key: key})
}
