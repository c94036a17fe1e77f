package catalog

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Proposer is the slice of engine.Engine that CreateTopics needs:
// submit a payload and let the single Apply-calling goroutine decide
// what happens to it. CreateTopics never touches raft.Node directly --
// per spec.md §5, Node belongs exclusively to that one goroutine.
type Proposer interface {
	Propose(ctx context.Context, payload []byte) error
}

// TopicSpec is a client's request to create one topic, the Go shape of
// the original's CreatableTopic.
type TopicSpec struct {
	Name              string
	NumPartitions     int
	ReplicationFactor int
}

// CreateTopics assigns partitions via the broker ring and proposes an
// EnsureTopic command per topic, adapted from original_source's
// Broker::create_topic/make_partitions: there, partition leaders are
// chosen by shuffling the broker list per partition; here the choice is
// made deterministically via consistent hashing so repeated calls (e.g.
// a retried CreateTopics after a timeout) assign the same brokers
// instead of reshuffling randomly each time.
func CreateTopics(ctx context.Context, proposer Proposer, ring *BrokerRing, reqs []TopicSpec) ([]TopicMetadata, error) {
	results := make([]TopicMetadata, 0, len(reqs))

	for _, req := range reqs {
		if req.NumPartitions <= 0 {
			return nil, fmt.Errorf("catalog: topic %q needs at least 1 partition", req.Name)
		}

		meta := TopicMetadata{
			ID:                uuid.NewString(),
			Name:              req.Name,
			ReplicationFactor: req.ReplicationFactor,
			Partitions:        make([]PartitionAssignment, req.NumPartitions),
		}

		for i := 0; i < req.NumPartitions; i++ {
			replicas, err := ring.PreferenceList(PartitionKey(req.Name, i), req.ReplicationFactor)
			if err != nil {
				return nil, fmt.Errorf("catalog: assign partition %d of %q: %w", i, req.Name, err)
			}
			if len(replicas) == 0 {
				return nil, fmt.Errorf("catalog: no brokers available to host %q partition %d", req.Name, i)
			}
			meta.Partitions[i] = PartitionAssignment{
				Index:    i,
				Leader:   replicas[0],
				Replicas: replicas,
			}
		}

		payload, err := encodeEnsureTopic(meta)
		if err != nil {
			return nil, err
		}
		if err := proposer.Propose(ctx, payload); err != nil {
			return nil, fmt.Errorf("catalog: propose topic %q: %w", req.Name, err)
		}

		results = append(results, meta)
	}
	return results, nil
}
