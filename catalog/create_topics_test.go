package catalog

import (
	"context"
	"testing"
)

type recordingProposer struct {
	proposed [][]byte
}

func (p *recordingProposer) Propose(_ context.Context, payload []byte) error {
	p.proposed = append(p.proposed, payload)
	return nil
}

func TestCreateTopicsAssignsPartitionsAndProposes(t *testing.T) {
	ring := NewBrokerRing(16)
	ring.AddBroker("broker-1")
	ring.AddBroker("broker-2")
	ring.AddBroker("broker-3")

	p := &recordingProposer{}
	metas, err := CreateTopics(context.Background(), p, ring, []TopicSpec{
		{Name: "orders", NumPartitions: 3, ReplicationFactor: 2},
	})
	if err != nil {
		t.Fatalf("CreateTopics: %v", err)
	}
	if len(metas) != 1 {
		t.Fatalf("want 1 topic, got %d", len(metas))
	}
	if len(metas[0].Partitions) != 3 {
		t.Fatalf("want 3 partitions, got %d", len(metas[0].Partitions))
	}
	for _, part := range metas[0].Partitions {
		if len(part.Replicas) != 2 {
			t.Errorf("partition %d: want 2 replicas, got %d", part.Index, len(part.Replicas))
		}
		if part.Leader != part.Replicas[0] {
			t.Errorf("partition %d: want leader to be the first replica, got %q vs %q", part.Index, part.Leader, part.Replicas[0])
		}
	}
	if len(p.proposed) != 1 {
		t.Fatalf("want exactly 1 proposal (one EnsureTopic command), got %d", len(p.proposed))
	}
}

func TestCreateTopicsRejectsZeroPartitions(t *testing.T) {
	ring := NewBrokerRing(16)
	ring.AddBroker("broker-1")

	_, err := CreateTopics(context.Background(), &recordingProposer{}, ring, []TopicSpec{
		{Name: "bad", NumPartitions: 0, ReplicationFactor: 1},
	})
	if err == nil {
		t.Fatal("want an error for a topic with 0 partitions")
	}
}

func TestIsCommandRejectsForeignPayload(t *testing.T) {
	if IsCommand([]byte{0x01, 0xff}) {
		t.Error("want IsCommand false for a payload tagged for a different collaborator")
	}
	payload, err := encodeEnsureTopic(TopicMetadata{Name: "orders"})
	if err != nil {
		t.Fatalf("encodeEnsureTopic: %v", err)
	}
	if !IsCommand(payload) {
		t.Error("want IsCommand true for a payload this package produced")
	}
}

func TestCatalogApplyIndexesByName(t *testing.T) {
	c := NewCatalog()
	payload, err := encodeEnsureTopic(TopicMetadata{Name: "orders", ReplicationFactor: 2})
	if err != nil {
		t.Fatalf("encodeEnsureTopic: %v", err)
	}
	if _, err := c.Apply(1, payload); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	meta, ok := c.Topic("orders")
	if !ok {
		t.Fatal("want topic 'orders' to be present after Apply")
	}
	if meta.ReplicationFactor != 2 {
		t.Errorf("want replication factor 2, got %d", meta.ReplicationFactor)
	}
}
