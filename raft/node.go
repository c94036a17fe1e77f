package raft

import (
	"math/rand"
	"time"
)

// StateMachine is the out-of-scope collaborator committed entries are
// delivered to (§6, "Core -> FSM"). The core never calls it directly;
// entries queue inside Node until the driver calls DrainCommitted and
// forwards them to whatever implements this interface.
type StateMachine interface {
	Apply(index LogIndex, payload []byte) ([]byte, error)
}

// RoleKind tags which of the three roles a Node currently occupies.
type RoleKind int

const (
	RoleFollower RoleKind = iota
	RoleCandidate
	RoleLeader
)

func (k RoleKind) String() string {
	switch k {
	case RoleFollower:
		return "Follower"
	case RoleCandidate:
		return "Candidate"
	case RoleLeader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// followerState is only populated when Kind == RoleFollower.
type followerState struct {
	leaderID         *NodeId
	electionDeadline time.Time
}

// candidateState is only populated when Kind == RoleCandidate.
type candidateState struct {
	votes            map[NodeId]bool
	electionDeadline time.Time
}

// leaderState is only populated when Kind == RoleLeader.
type leaderState struct {
	progress      map[NodeId]*Progress
	nextHeartbeat time.Time
}

// role is the tagged union backing CommonState.Role (§3). Exactly one of
// follower/candidate/leader is non-nil, matching RoleKind. A role
// transition always constructs a brand new role value and drops the old
// one outright - see follower.go/candidate.go/leader.go - so "only
// Leader has non-empty Progress" and "only Follower has leader_id" hold
// by construction, never by runtime bookkeeping.
type role struct {
	kind      RoleKind
	follower  *followerState
	candidate *candidateState
	leader    *leaderState
}

// Outbound is one RPC the driver must send on the core's behalf to the
// single peer named by To. There is no broadcast form: VoteRequest and
// the Leader's AppendEntries are emitted as a distinct Outbound per peer
// (see candidate.go and leader.go).
type Outbound struct {
	To         NodeId
	VoteReq    *VoteRequest
	VoteResp   *VoteResponse
	AppendReq  *AppendEntries
	AppendResp *AppendResponse
}

// CommandKind enumerates the stimuli §4.1 names.
type CommandKind int

const (
	CmdTick CommandKind = iota
	CmdTimeout
	CmdVoteRequest
	CmdVoteResponse
	CmdAppendEntries
	CmdAppendResponse
	CmdPropose
	CmdAddPeer
)

// Command is the single entry point's argument type. Heartbeat is not a
// distinct kind: a driver constructs an AppendEntriesCommand with a nil
// Entries slice, per the unification spec.md §4.1 recommends and §9
// resolves as the adopted behavior.
type Command struct {
	Kind CommandKind

	VoteReq    *VoteRequest
	VoteResp   *VoteResponse
	AppendReq  *AppendEntries
	AppendResp *AppendResponse
	Payload    []byte
	NewPeer    *Peer
}

func TickCommand() Command             { return Command{Kind: CmdTick} }
func TimeoutCommand() Command           { return Command{Kind: CmdTimeout} }
func VoteRequestCommand(r VoteRequest) Command {
	return Command{Kind: CmdVoteRequest, VoteReq: &r}
}
func VoteResponseCommand(r VoteResponse) Command {
	return Command{Kind: CmdVoteResponse, VoteResp: &r}
}
func AppendEntriesCommand(r AppendEntries) Command {
	return Command{Kind: CmdAppendEntries, AppendReq: &r}
}
func HeartbeatCommand(term Term, leaderID NodeId, prevLogIndex LogIndex, prevLogTerm Term, leaderCommit LogIndex) Command {
	return AppendEntriesCommand(AppendEntries{
		Term:         term,
		LeaderID:     leaderID,
		PrevLogIndex: prevLogIndex,
		PrevLogTerm:  prevLogTerm,
		LeaderCommit: leaderCommit,
	})
}
func AppendResponseCommand(r AppendResponse) Command {
	return Command{Kind: CmdAppendResponse, AppendResp: &r}
}
func ProposeCommand(payload []byte) Command { return Command{Kind: CmdPropose, Payload: payload} }
func AddPeerCommand(p Peer) Command         { return Command{Kind: CmdAddPeer, NewPeer: &p} }

// noCopy causes `go vet` to flag accidental copies of Node; Node is the
// sole owner of its state and must only ever be handled by pointer (see
// design note: "State declared copyable despite heap data" resolved by
// making Node non-copyable).
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Node is a single cluster participant's complete state: the persisted
// current_term/voted_for/log (CommonState, §3), the volatile commit
// bookkeeping, and the current Role. Every Apply call either mutates in
// place and returns the same pointer, or - on a role transition -
// constructs the new role in place on the same Node, matching §9's
// "construct a new role record, drop the old."
type Node struct {
	_ noCopy

	id   NodeId
	cfg  Config
	rng  *rand.Rand
	log  *Log
	logr *Logger

	peers map[NodeId]Peer

	term     Term
	votedFor *NodeId

	commitIndex LogIndex
	lastApplied LogIndex

	r role

	pendingCommits []Entry
	outbox         []Outbound
}

// NewNode constructs a Node as a Follower at term 0 with an empty log, as
// required by §3's "Lifecycle": the very first action is loading
// persisted state (which, on a brand-new node, is simply the zero
// value), never writing before it has something to write.
func NewNode(cfg Config, persister Persister, logger *Logger, now time.Time) (*Node, error) {
	term, votedFor, err := persister.LoadState()
	if err != nil {
		return nil, &Persistence{Op: "load state", Err: err}
	}

	peers := make(map[NodeId]Peer, len(cfg.Peers))
	for _, p := range cfg.Peers {
		peers[p.ID] = p
	}

	n := &Node{
		id:       cfg.NodeID,
		cfg:      cfg,
		rng:      rand.New(rand.NewSource(int64(cfg.NodeID) + 1)),
		log:      newLog(persister),
		logr:     logger,
		peers:    peers,
		term:     term,
		votedFor: votedFor,
	}
	n.r = role{kind: RoleFollower, follower: &followerState{
		electionDeadline: now.Add(n.randomElectionTimeout()),
	}}
	return n, nil
}

func (n *Node) ID() NodeId     { return n.id }
func (n *Node) Term() Term     { return n.term }
func (n *Node) Role() RoleKind { return n.r.kind }

// LeaderHint returns the best known leader id, if any: itself when
// Leader, the adopted leader when Follower, nil otherwise.
func (n *Node) LeaderHint() *NodeId {
	switch n.r.kind {
	case RoleLeader:
		id := n.id
		return &id
	case RoleFollower:
		return n.r.follower.leaderID
	default:
		return nil
	}
}

func (n *Node) CommitIndex() LogIndex { return n.commitIndex }
func (n *Node) LastApplied() LogIndex { return n.lastApplied }

// Peers returns the current peer set, addresses included, for a driver
// that needs to resolve an Outbound's destination NodeId to a dial
// target.
func (n *Node) Peers() []Peer {
	out := make([]Peer, 0, len(n.peers))
	for _, p := range n.peers {
		out = append(out, p)
	}
	return out
}

// DrainCommitted returns and clears entries that have become committed
// since the last call. The driver forwards these, in order, to the
// user-supplied StateMachine by calling its Apply once per entry.
func (n *Node) DrainCommitted() []Entry {
	if len(n.pendingCommits) == 0 {
		return nil
	}
	out := n.pendingCommits
	n.pendingCommits = nil
	return out
}

// DrainOutbound returns and clears the RPCs the driver must send as a
// result of the most recent Apply calls. Order is preserved.
func (n *Node) DrainOutbound() []Outbound {
	if len(n.outbox) == 0 {
		return nil
	}
	out := n.outbox
	n.outbox = nil
	return out
}

func (n *Node) send(o Outbound) { n.outbox = append(n.outbox, o) }

func (n *Node) randomElectionTimeout() time.Duration {
	lo, hi := n.cfg.MinElectionTimeout, n.cfg.MaxElectionTimeout
	if hi <= lo {
		return lo
	}
	span := hi - lo
	return lo + time.Duration(n.rng.Int63n(int64(span)))
}

// Apply is the single entry point named in spec.md §4.1/§6: every
// external stimulus flows through here, processed to completion before
// the next one begins (§5). It never blocks and never reads the wall
// clock; now is supplied by the driver.
func (n *Node) Apply(cmd Command, now time.Time) (*Node, error) {
	switch cmd.Kind {
	case CmdAddPeer:
		n.applyAddPeer(*cmd.NewPeer)
		return n, nil
	}

	switch n.r.kind {
	case RoleFollower:
		return n.applyFollower(cmd, now)
	case RoleCandidate:
		return n.applyCandidate(cmd, now)
	case RoleLeader:
		return n.applyLeader(cmd, now)
	default:
		panic("raft: unreachable role kind")
	}
}

// applyAddPeer is the bootstrap-only membership operation (§4.1: "no
// joint consensus"). It is legal in any role and simply adds the peer to
// the map the driver owns the lifetime of; a Leader additionally gains a
// Progress entry for the new peer so it's included in future commit
// quorum counting.
func (n *Node) applyAddPeer(p Peer) {
	if _, exists := n.peers[p.ID]; exists {
		return
	}
	n.peers[p.ID] = p
	n.cfg.Peers = append(n.cfg.Peers, p)
	if n.r.kind == RoleLeader {
		n.r.leader.progress[p.ID] = &Progress{
			NextIndex:  n.log.lastIndex() + 1,
			MatchIndex: 0,
		}
	}
}

// persistVote durably stores (term, votedFor) before any handler that
// depends on it returns, per §3's "persistent state is written
// synchronously before any outbound message that depends on it is sent."
func (n *Node) persistVote(term Term, votedFor *NodeId) error {
	if err := n.log.p.SaveState(term, votedFor); err != nil {
		return &Persistence{Op: "save term/vote", Err: err}
	}
	n.term = term
	n.votedFor = votedFor
	return nil
}

// quorum is ceil((N+1)/2) where N is the cluster size including self,
// i.e. a majority of the full cluster (GLOSSARY: Quorum).
func (n *Node) quorum() int { return n.cfg.quorum() }

// stepDownToFollower is the shared "become a Follower" transition used by
// every role whenever it observes a term it cannot contest (§4.3, §4.4:
// "on term > current anywhere: step down"). Term/voted_for are only
// reset when the term actually advances - a Candidate reverting to
// Follower on an equal-term AppendEntries keeps its own self-vote
// intact, since invariant 2 (at most one vote per term) was already
// satisfied by that self-vote.
func (n *Node) stepDownToFollower(term Term, leaderID *NodeId, now time.Time) error {
	if term > n.term {
		if err := n.persistVote(term, nil); err != nil {
			return err
		}
	}
	n.r = role{kind: RoleFollower, follower: &followerState{
		leaderID:         leaderID,
		electionDeadline: now.Add(n.randomElectionTimeout()),
	}}
	return nil
}

func (n *Node) peerIDs() []NodeId {
	ids := make([]NodeId, 0, len(n.peers))
	for id := range n.peers {
		ids = append(ids, id)
	}
	return ids
}
