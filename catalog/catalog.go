// Package catalog restores the topic/partition metadata collaborator
// spec.md §1 names but the distillation otherwise drops. A topic is
// just another Raft-proposed command (catalog.CreateTopics encodes a
// request and submits it through a Proposer); Catalog.Apply is the
// raft.StateMachine committed entries land on, separate from fsm.Store.
package catalog

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"sync"

	iradix "github.com/hashicorp/go-immutable-radix"

	"josefine/raft"
)

// PartitionAssignment records which brokers replicate one partition and
// which of them currently leads it.
type PartitionAssignment struct {
	Index    int
	Leader   string
	Replicas []string
}

// TopicMetadata is one entry in the catalog, indexed by name.
type TopicMetadata struct {
	ID                string
	Name              string
	Partitions        []PartitionAssignment
	ReplicationFactor int
}

// Catalog is an immutable-radix-tree-indexed map from topic name to
// TopicMetadata, grounded on blastbao-leifdb's use of
// hashicorp/go-immutable-radix for its own indexed state -- a library
// the teacher itself never imported but the rest of the retrieved pack
// does, for exactly this "lots of point lookups and ordered scans over
// string keys" shape.
type Catalog struct {
	mu   sync.RWMutex
	tree *iradix.Tree
}

func NewCatalog() *Catalog {
	return &Catalog{tree: iradix.New()}
}

// catalogCommand is what CreateTopics encodes into a raft.Entry payload.
type catalogCommand struct {
	Kind  catalogCommandKind
	Topic TopicMetadata
}

type catalogCommandKind uint8

const (
	cmdEnsureTopic catalogCommandKind = iota + 1
)

// tag prefixes every payload this package produces, the sibling of
// fsm.tag: a fan-out FSM routes a committed entry to Catalog or Store by
// checking this byte rather than attempting (and possibly
// mis-succeeding) a speculative gob decode.
const tag = 0x02

func encodeEnsureTopic(t TopicMetadata) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(tag)
	if err := gob.NewEncoder(&buf).Encode(catalogCommand{Kind: cmdEnsureTopic, Topic: t}); err != nil {
		return nil, fmt.Errorf("catalog: encode command: %w", err)
	}
	return buf.Bytes(), nil
}

// IsCommand reports whether payload carries this package's tag.
func IsCommand(payload []byte) bool {
	return len(payload) > 0 && payload[0] == tag
}

// Apply implements raft.StateMachine: it is the collaborator
// CreateTopics's proposals eventually land on once committed.
func (c *Catalog) Apply(_ raft.LogIndex, payload []byte) ([]byte, error) {
	if !IsCommand(payload) {
		return nil, fmt.Errorf("catalog: payload missing command tag")
	}
	var cmd catalogCommand
	if err := gob.NewDecoder(bytes.NewReader(payload[1:])).Decode(&cmd); err != nil {
		return nil, fmt.Errorf("catalog: decode command: %w", err)
	}

	switch cmd.Kind {
	case cmdEnsureTopic:
		c.mu.Lock()
		tree, _, _ := c.tree.Insert([]byte(cmd.Topic.Name), cmd.Topic)
		c.tree = tree
		c.mu.Unlock()
	}
	return nil, nil
}

func (c *Catalog) Topic(name string) (TopicMetadata, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.tree.Get([]byte(name))
	if !ok {
		return TopicMetadata{}, false
	}
	return v.(TopicMetadata), true
}

// Topics returns every topic in lexical order, the kind of ordered scan
// a radix tree gives for free over a plain map.
func (c *Catalog) Topics() []TopicMetadata {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []TopicMetadata
	c.tree.Root().Walk(func(_ []byte, v any) bool {
		out = append(out, v.(TopicMetadata))
		return false
	})
	return out
}
