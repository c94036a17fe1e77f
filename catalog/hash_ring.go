package catalog

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"sort"
	"sync"
)

// DefaultVirtualNodes is the number of virtual points placed on the ring
// per broker.
const DefaultVirtualNodes = 256

// BrokerRing assigns partitions to brokers via consistent hashing,
// re-themed from the teacher's cluster.HashRing (which decided "which
// replica stores this key" for a Dynamo-style KV) into "which broker
// leads/replicates this partition." The ring mechanics -- MD5 hash,
// sorted virtual-node positions, clockwise walk for a preference list --
// are unchanged; only what a ring position means changed.
type BrokerRing struct {
	virtualNodes int
	ring         map[uint32]string
	sortedHashes []uint32
	brokers      map[string]bool
	mu           sync.RWMutex
}

func NewBrokerRing(virtualNodes int) *BrokerRing {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}
	return &BrokerRing{
		virtualNodes: virtualNodes,
		ring:         make(map[uint32]string),
		brokers:      make(map[string]bool),
	}
}

func (r *BrokerRing) AddBroker(brokerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.brokers[brokerID] {
		return
	}
	r.brokers[brokerID] = true

	for i := 0; i < r.virtualNodes; i++ {
		vkey := fmt.Sprintf("%s-vnode-%d", brokerID, i)
		hash := hashKey(vkey)
		r.ring[hash] = brokerID
		r.sortedHashes = append(r.sortedHashes, hash)
	}
	sort.Slice(r.sortedHashes, func(i, j int) bool { return r.sortedHashes[i] < r.sortedHashes[j] })
}

func (r *BrokerRing) RemoveBroker(brokerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.brokers[brokerID] {
		return
	}
	delete(r.brokers, brokerID)

	kept := r.sortedHashes[:0:0]
	for _, h := range r.sortedHashes {
		if r.ring[h] == brokerID {
			delete(r.ring, h)
			continue
		}
		kept = append(kept, h)
	}
	r.sortedHashes = kept
}

func (r *BrokerRing) BrokerCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.brokers)
}

// PartitionKey is the ring key for one topic partition: stable so the
// same partition always maps to the same preference list as long as the
// broker set is unchanged.
func PartitionKey(topic string, partition int) string {
	return fmt.Sprintf("%s/%d", topic, partition)
}

// PreferenceList returns up to n distinct brokers in clockwise ring
// order starting from the partition's primary -- the Go analogue of the
// teacher's GetPreferenceList, renamed because the first entry here is
// "leader", not "primary replica holder."
func (r *BrokerRing) PreferenceList(key string, n int) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.sortedHashes) == 0 {
		return nil, fmt.Errorf("catalog: no brokers registered in the ring")
	}
	if n > len(r.brokers) {
		n = len(r.brokers)
	}

	hash := hashKey(key)
	idx := sort.Search(len(r.sortedHashes), func(i int) bool { return r.sortedHashes[i] >= hash })
	if idx >= len(r.sortedHashes) {
		idx = 0
	}

	result := make([]string, 0, n)
	seen := make(map[string]bool, n)
	for len(result) < n && len(seen) < len(r.brokers) {
		brokerID := r.ring[r.sortedHashes[idx]]
		if !seen[brokerID] {
			result = append(result, brokerID)
			seen[brokerID] = true
		}
		idx = (idx + 1) % len(r.sortedHashes)
	}
	return result, nil
}

func hashKey(key string) uint32 {
	sum := md5.Sum([]byte(key))
	return binary.BigEndian.Uint32(sum[:4])
}
