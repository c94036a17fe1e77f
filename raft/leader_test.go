package raft

import (
	"testing"
	"time"
)

func TestSingleNodeProposeCommitsImmediately(t *testing.T) {
	n := newTestNode(t, 1)
	n, err := n.Apply(TimeoutCommand(), epoch)
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}
	if n.Role() != RoleLeader {
		t.Fatalf("want Leader, got %v", n.Role())
	}

	n, err = n.Apply(ProposeCommand([]byte("hello")), epoch)
	if err != nil {
		t.Fatalf("Apply(Propose): %v", err)
	}

	if n.CommitIndex() != 1 {
		t.Fatalf("want a self-quorum cluster to commit immediately, got commit_index=%d", n.CommitIndex())
	}
	committed := n.DrainCommitted()
	if len(committed) != 1 || string(committed[0].Payload) != "hello" {
		t.Errorf("want the proposed entry delivered to the fsm, got %+v", committed)
	}
}

func TestProposeDoesNotCommitWithoutPeerAcks(t *testing.T) {
	n := newTestNode(t, 1, 2, 3)
	n, err := n.Apply(TimeoutCommand(), epoch)
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}
	n, err = n.Apply(VoteResponseCommand(VoteResponse{Term: 1, VoterID: 2, Granted: true}), epoch)
	if err != nil {
		t.Fatalf("Apply(VoteResponse): %v", err)
	}
	if n.Role() != RoleLeader {
		t.Fatalf("want Leader, got %v", n.Role())
	}
	n.DrainOutbound() // discard the initial heartbeat broadcast

	n, err = n.Apply(ProposeCommand([]byte("pending")), epoch)
	if err != nil {
		t.Fatalf("Apply(Propose): %v", err)
	}

	if n.CommitIndex() != 0 {
		t.Errorf("want commit_index to stay at 0 until a majority of peers ack, got %d", n.CommitIndex())
	}
}

func TestAppendResponseFailureDecrementsNextIndex(t *testing.T) {
	n := newTestNode(t, 1, 2)
	n.term = 5
	n.r = role{kind: RoleLeader, leader: &leaderState{
		progress: map[NodeId]*Progress{
			2: {NextIndex: 10, MatchIndex: 9},
		},
		nextHeartbeat: epoch.Add(time.Hour),
	}}

	n, err := n.Apply(AppendResponseCommand(AppendResponse{
		Term: 5, FollowerID: 2, Success: false,
	}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendResponse): %v", err)
	}

	if n.r.leader.progress[2].NextIndex != 9 {
		t.Errorf("want NextIndex decremented to 9, got %d", n.r.leader.progress[2].NextIndex)
	}
}

func TestAppendResponseFailureUsesConflictHint(t *testing.T) {
	n := newTestNode(t, 1, 2)
	n.term = 5
	n.r = role{kind: RoleLeader, leader: &leaderState{
		progress: map[NodeId]*Progress{
			2: {NextIndex: 10, MatchIndex: 9},
		},
		nextHeartbeat: epoch.Add(time.Hour),
	}}

	n, err := n.Apply(AppendResponseCommand(AppendResponse{
		Term: 5, FollowerID: 2, Success: false, ConflictIndex: 3,
	}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendResponse): %v", err)
	}

	if n.r.leader.progress[2].NextIndex != 3 {
		t.Errorf("want NextIndex to jump straight to the conflict hint 3, got %d", n.r.leader.progress[2].NextIndex)
	}
}
