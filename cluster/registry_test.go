package cluster

import (
	"testing"
)

func TestAddAndGet(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "localhost:9001")

	m, err := r.Get(1)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Address != "localhost:9001" {
		t.Errorf("want address localhost:9001, got %q", m.Address)
	}
}

func TestGetUnknownNodeErrors(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Get(99); err == nil {
		t.Fatal("want an error for an unregistered node")
	}
}

func TestMembersOrderedByID(t *testing.T) {
	r := NewRegistry()
	r.Add(3, "c")
	r.Add(1, "a")
	r.Add(2, "b")

	members := r.Members()
	if len(members) != 3 {
		t.Fatalf("want 3 members, got %d", len(members))
	}
	for i := 1; i < len(members); i++ {
		if members[i-1].ID >= members[i].ID {
			t.Fatalf("members not ordered by ID: %+v", members)
		}
	}
}

func TestPeersExcludesSelf(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "a")
	r.Add(2, "b")
	r.Add(3, "c")

	peers := r.Peers(2)
	if len(peers) != 2 {
		t.Fatalf("want 2 peers excluding self, got %d", len(peers))
	}
	for _, p := range peers {
		if p.ID == 2 {
			t.Errorf("Peers(2) must not include self, got %+v", peers)
		}
	}
}

func TestRemove(t *testing.T) {
	r := NewRegistry()
	r.Add(1, "a")
	r.Remove(1)

	if r.Count() != 0 {
		t.Errorf("want 0 members after Remove, got %d", r.Count())
	}
	if _, err := r.Get(1); err == nil {
		t.Fatal("want an error getting a removed node")
	}
}
