// Package cluster is the bootstrap address book: the static (or
// config-supplied) mapping from raft.NodeId to dial address that lets a
// freshly started node build its raft.Config and its engine.Transport
// before anything has been elected. It does not decide who owns what --
// that is catalog.BrokerRing's job once the cluster is actually up.
//
// Adapted from the teacher's NodeRegistry, which mapped nodeID/address
// pairs for a Dynamo-style ring. The identity/address bookkeeping and
// locking are unchanged; GetNodeForKey and GetKeyDistribution are gone
// since partition placement now belongs to catalog.
package cluster

import (
	"fmt"
	"sort"
	"sync"

	"josefine/raft"
)

// Member is one entry in the registry: a cluster participant's identity
// and the address its transport should dial to reach it.
type Member struct {
	ID      raft.NodeId
	Address string
}

// Registry tracks the static cluster membership used to bootstrap a
// raft.Config and resolve peer addresses for the transport.
type Registry struct {
	mu      sync.RWMutex
	members map[raft.NodeId]Member
}

func NewRegistry() *Registry {
	return &Registry{members: make(map[raft.NodeId]Member)}
}

// Add registers a member. Re-adding an existing ID updates its address,
// the one case where a running cluster's bootstrap list legitimately
// changes (an operator fixing a stale DNS entry, say).
func (r *Registry) Add(id raft.NodeId, address string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[id] = Member{ID: id, Address: address}
}

func (r *Registry) Remove(id raft.NodeId) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.members, id)
}

func (r *Registry) Get(id raft.NodeId) (Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.members[id]
	if !ok {
		return Member{}, fmt.Errorf("cluster: node %d not registered", id)
	}
	return m, nil
}

// Members returns every registered member ordered by ID, so two nodes
// booting from the same registry content build an identical raft.Config
// peer list regardless of map iteration order.
func (r *Registry) Members() []Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Member, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Peers returns every member except self as raft.Peer, the shape
// raft.Config.Peers wants directly.
func (r *Registry) Peers(self raft.NodeId) []raft.Peer {
	members := r.Members()
	out := make([]raft.Peer, 0, len(members))
	for _, m := range members {
		if m.ID == self {
			continue
		}
		out = append(out, raft.Peer{ID: m.ID, Address: m.Address})
	}
	return out
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
