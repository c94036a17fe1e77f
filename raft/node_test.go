package raft

import (
	"errors"
	"testing"
	"time"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func testConfig(id NodeId, peers ...NodeId) Config {
	ps := make([]Peer, 0, len(peers))
	for _, p := range peers {
		ps = append(ps, Peer{ID: p, Address: "localhost"})
	}
	return Config{
		NodeID:             id,
		Peers:              ps,
		HeartbeatTimeout:   10 * time.Millisecond,
		MinElectionTimeout: 100 * time.Millisecond,
		MaxElectionTimeout: 200 * time.Millisecond,
	}
}

func newTestNode(t *testing.T, id NodeId, peers ...NodeId) *Node {
	t.Helper()
	n, err := NewNode(testConfig(id, peers...), NewMemPersister(), NewNopLogger(), epoch)
	if err != nil {
		t.Fatalf("NewNode: %v", err)
	}
	return n
}

// Scenario 1 (§8): 2-node cluster, Follower times out -> Candidate at
// term 1, votes for itself, sends exactly one VoteRequest.
func TestScenario1_FollowerTimeoutTwoNode(t *testing.T) {
	n := newTestNode(t, 1, 2)
	if n.Role() != RoleFollower {
		t.Fatalf("want Follower, got %v", n.Role())
	}

	n, err := n.Apply(TimeoutCommand(), epoch)
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}

	if n.Role() != RoleCandidate {
		t.Errorf("want Candidate, got %v", n.Role())
	}
	if n.Term() != 1 {
		t.Errorf("want term 1, got %d", n.Term())
	}
	if n.votedFor == nil || *n.votedFor != 1 {
		t.Errorf("want self-vote for node 1, got %v", n.votedFor)
	}

	out := n.DrainOutbound()
	if len(out) != 1 {
		t.Fatalf("want exactly 1 outbound VoteRequest, got %d", len(out))
	}
	if out[0].VoteReq == nil || out[0].VoteReq.Term != 1 {
		t.Errorf("bad VoteRequest: %+v", out[0].VoteReq)
	}
	if out[0].To != 2 {
		t.Errorf("want VoteRequest addressed to node 2, got %d", out[0].To)
	}
}

// Scenario 2 (§8): single-node cluster, Follower Timeout -> Leader in
// one transition.
func TestScenario2_SingleNodeTimeoutBecomesLeader(t *testing.T) {
	n := newTestNode(t, 1)
	n, err := n.Apply(TimeoutCommand(), epoch)
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}

	if n.Role() != RoleLeader {
		t.Errorf("want Leader, got %v", n.Role())
	}
	if n.Term() != 1 {
		t.Errorf("want term 1, got %d", n.Term())
	}
}

// Scenario 3 (§8): a Leader that receives an AppendEntries at a higher
// term steps down to Follower at the new term, clears voted_for, adopts
// the sender as leader_id, and still replies success.
func TestScenario3_LeaderStepsDownOnHigherTerm(t *testing.T) {
	n := newTestNode(t, 1, 2, 3)
	n, err := n.Apply(TimeoutCommand(), epoch) // -> Candidate term 1
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}
	n, err = n.Apply(VoteResponseCommand(VoteResponse{Term: 1, VoterID: 2, Granted: true}), epoch)
	if err != nil {
		t.Fatalf("Apply(VoteResponse): %v", err)
	}
	if n.Role() != RoleLeader {
		t.Fatalf("want Leader after quorum, got %v", n.Role())
	}

	// Directly install Leader state at term 3 with an established cluster,
	// standing in for "has already led for a couple of terms."
	n.term = 3
	n.votedFor = nil
	n.r = role{kind: RoleLeader, leader: &leaderState{
		progress: map[NodeId]*Progress{
			2: {NextIndex: 1, MatchIndex: 0},
			3: {NextIndex: 1, MatchIndex: 0},
		},
		nextHeartbeat: epoch.Add(10 * time.Millisecond),
	}}
	n.DrainOutbound() // discard the election traffic from the setup above

	n, err = n.Apply(AppendEntriesCommand(AppendEntries{Term: 4, LeaderID: 2}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendEntries): %v", err)
	}

	if n.Role() != RoleFollower {
		t.Errorf("want Follower after stepping down, got %v", n.Role())
	}
	if n.Term() != 4 {
		t.Errorf("want term 4, got %d", n.Term())
	}
	if n.votedFor != nil {
		t.Errorf("want voted_for cleared, got %v", n.votedFor)
	}
	if n.r.follower.leaderID == nil || *n.r.follower.leaderID != 2 {
		t.Errorf("want leader_id=2, got %v", n.r.follower.leaderID)
	}

	out := n.DrainOutbound()
	if len(out) != 1 || out[0].AppendResp == nil || !out[0].AppendResp.Success {
		t.Errorf("want a single successful AppendResponse, got %+v", out)
	}
}

// Scenario 4 (§8): a Follower whose log ends at (term=2, index=5) denies
// a VoteRequest at term=3 whose candidate log ends at (term=2, index=4)
// -- same term, shorter log -- while still adopting the higher term.
func TestScenario4_VoteDeniedForShorterLogSameTerm(t *testing.T) {
	n := newTestNode(t, 1, 2)
	if err := n.log.append([]Entry{
		{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 1, Index: 3}, {Term: 2, Index: 4}, {Term: 2, Index: 5},
	}); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	n, err := n.Apply(VoteRequestCommand(VoteRequest{
		Term: 3, CandidateID: 2, LastLogTerm: 2, LastLogIndex: 4,
	}), epoch)
	if err != nil {
		t.Fatalf("Apply(VoteRequest): %v", err)
	}

	out := n.DrainOutbound()
	if len(out) != 1 || out[0].VoteResp == nil {
		t.Fatalf("want a single VoteResponse, got %+v", out)
	}
	if out[0].VoteResp.Granted {
		t.Errorf("want vote denied for a log shorter at the same term")
	}
	if n.Term() != 3 {
		t.Errorf("want term advanced to 3 regardless of denial, got %d", n.Term())
	}
	if n.votedFor != nil {
		t.Errorf("want no recorded vote after a denial, got %v", n.votedFor)
	}
}

// Scenario 5 (§8): a 3-node Leader at term 2 with a 7-entry log learns,
// via an AppendResponse carrying match_index=7 from one peer (the other
// already at match_index=7), that a majority now has entry 7 -- commit
// advances to 7 and entries 1..7 are delivered to the FSM in order.
func TestScenario5_CommitAdvancesOnMajorityMatch(t *testing.T) {
	n := newTestNode(t, 1, 2, 3)
	var entries []Entry
	for i := LogIndex(1); i <= 7; i++ {
		entries = append(entries, Entry{Term: 2, Index: i, Payload: []byte{byte(i)}})
	}
	if err := n.log.append(entries); err != nil {
		t.Fatalf("seed log: %v", err)
	}
	n.term = 2
	n.r = role{kind: RoleLeader, leader: &leaderState{
		progress: map[NodeId]*Progress{
			2: {NextIndex: 8, MatchIndex: 0},
			3: {NextIndex: 8, MatchIndex: 7},
		},
		nextHeartbeat: epoch.Add(time.Hour),
	}}

	n, err := n.Apply(AppendResponseCommand(AppendResponse{
		Term: 2, FollowerID: 2, Success: true, MatchIndex: 7,
	}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendResponse): %v", err)
	}

	if n.CommitIndex() != 7 {
		t.Fatalf("want commit_index=7, got %d", n.CommitIndex())
	}
	committed := n.DrainCommitted()
	if len(committed) != 7 {
		t.Fatalf("want 7 entries delivered to the fsm, got %d", len(committed))
	}
	for i, e := range committed {
		if e.Index != LogIndex(i+1) {
			t.Errorf("committed entry %d out of order: %+v", i, e)
		}
	}
}

// Scenario 6 (§8): Follower log [(1,1),(1,2),(2,3)] receives
// AppendEntries{prev=(1,2), entries=[(3,3),(3,4)], leader_commit=3} ->
// local log becomes [(1,1),(1,2),(3,3),(3,4)], commit_index=3,
// success=true.
func TestScenario6_ConflictingSuffixTruncated(t *testing.T) {
	n := newTestNode(t, 1, 2)
	if err := n.log.append([]Entry{
		{Term: 1, Index: 1}, {Term: 1, Index: 2}, {Term: 2, Index: 3},
	}); err != nil {
		t.Fatalf("seed log: %v", err)
	}

	n, err := n.Apply(AppendEntriesCommand(AppendEntries{
		Term:         3,
		LeaderID:     2,
		PrevLogIndex: 2,
		PrevLogTerm:  1,
		Entries:      []Entry{{Term: 3, Index: 3}, {Term: 3, Index: 4}},
		LeaderCommit: 3,
	}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendEntries): %v", err)
	}

	if n.log.lastIndex() != 4 {
		t.Fatalf("want log to end at index 4, got %d", n.log.lastIndex())
	}
	if e, ok := n.log.entryAt(3); !ok || e.Term != 3 {
		t.Errorf("want entry 3 at term 3, got %+v ok=%v", e, ok)
	}
	if e, ok := n.log.entryAt(4); !ok || e.Term != 3 {
		t.Errorf("want entry 4 at term 3, got %+v ok=%v", e, ok)
	}
	if n.CommitIndex() != 3 {
		t.Errorf("want commit_index=3, got %d", n.CommitIndex())
	}

	out := n.DrainOutbound()
	if len(out) != 1 || out[0].AppendResp == nil || !out[0].AppendResp.Success {
		t.Fatalf("want a single successful AppendResponse, got %+v", out)
	}
	if out[0].AppendResp.MatchIndex != 4 {
		t.Errorf("want match_index=4, got %d", out[0].AppendResp.MatchIndex)
	}
}

func TestNewNodeStartsAsFollowerTermZero(t *testing.T) {
	n := newTestNode(t, 1, 2, 3)
	if n.Role() != RoleFollower {
		t.Errorf("want Follower, got %v", n.Role())
	}
	if n.Term() != 0 {
		t.Errorf("want term 0, got %d", n.Term())
	}
	if n.log.lastIndex() != 0 {
		t.Errorf("want empty log, got lastIndex=%d", n.log.lastIndex())
	}
	if n.votedFor != nil {
		t.Errorf("want no recorded vote, got %v", n.votedFor)
	}
}

func TestOnlyOneVotePerTerm(t *testing.T) {
	n := newTestNode(t, 1, 2, 3)
	n, err := n.Apply(VoteRequestCommand(VoteRequest{Term: 1, CandidateID: 2}), epoch)
	if err != nil {
		t.Fatalf("Apply(VoteRequest 2): %v", err)
	}
	out := n.DrainOutbound()
	if !out[0].VoteResp.Granted {
		t.Fatalf("want first vote this term granted")
	}

	n, err = n.Apply(VoteRequestCommand(VoteRequest{Term: 1, CandidateID: 3}), epoch)
	if err != nil {
		t.Fatalf("Apply(VoteRequest 3): %v", err)
	}
	out = n.DrainOutbound()
	if out[0].VoteResp.Granted {
		t.Errorf("want second vote this term denied")
	}
}

func TestIdempotentHeartbeat(t *testing.T) {
	n := newTestNode(t, 1, 2)
	n, err := n.Apply(AppendEntriesCommand(AppendEntries{Term: 1, LeaderID: 2}), epoch)
	if err != nil {
		t.Fatalf("Apply(AppendEntries) 1: %v", err)
	}
	firstDeadline := n.r.follower.electionDeadline

	later := epoch.Add(time.Millisecond)
	n, err = n.Apply(AppendEntriesCommand(AppendEntries{Term: 1, LeaderID: 2}), later)
	if err != nil {
		t.Fatalf("Apply(AppendEntries) 2: %v", err)
	}

	if n.log.lastIndex() != 0 {
		t.Errorf("want repeated empty heartbeat to leave the log empty, got lastIndex=%d", n.log.lastIndex())
	}
	if n.r.follower.electionDeadline.Equal(firstDeadline) {
		t.Errorf("want election deadline refreshed by a second heartbeat")
	}
}

func TestTickNoopWhenDeadlineUnchanged(t *testing.T) {
	n := newTestNode(t, 1, 2)
	n, err := n.Apply(TickCommand(), epoch)
	if err != nil {
		t.Fatalf("Apply(Tick): %v", err)
	}
	if n.Role() != RoleFollower {
		t.Errorf("want Follower, got %v", n.Role())
	}
	if out := n.DrainOutbound(); len(out) != 0 {
		t.Errorf("want no outbound traffic from a no-op tick, got %d", len(out))
	}
}

func TestProposeOnFollowerReturnsNotLeader(t *testing.T) {
	n := newTestNode(t, 1, 2)
	_, err := n.Apply(ProposeCommand([]byte("x")), epoch)
	var nl *NotLeader
	if !errors.As(err, &nl) {
		t.Fatalf("want *NotLeader, got %v", err)
	}
}

func TestProposeEmptyPayloadIsInvalidCommand(t *testing.T) {
	n := newTestNode(t, 1)
	n, err := n.Apply(TimeoutCommand(), epoch) // -> Leader (single node)
	if err != nil {
		t.Fatalf("Apply(Timeout): %v", err)
	}
	if n.Role() != RoleLeader {
		t.Fatalf("want Leader, got %v", n.Role())
	}

	_, err = n.Apply(ProposeCommand(nil), epoch)
	var ic *InvalidCommand
	if !errors.As(err, &ic) {
		t.Fatalf("want *InvalidCommand, got %v", err)
	}
}

func TestAddPeerIsLegalInAnyRole(t *testing.T) {
	n := newTestNode(t, 1)
	n, err := n.Apply(AddPeerCommand(Peer{ID: 2, Address: "host:2"}), epoch)
	if err != nil {
		t.Fatalf("Apply(AddPeer): %v", err)
	}
	if len(n.peers) != 1 {
		t.Errorf("want 1 peer registered, got %d", len(n.peers))
	}
}
