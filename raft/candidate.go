package raft

import "time"

// becomeCandidate runs the Candidate's entry actions exactly once (§4.3):
// bump the term, vote for self, clear any prior ballot, broadcast
// VoteRequest to every peer, and draw a fresh randomized deadline. A
// single-node cluster satisfies its own quorum the instant it votes for
// itself, so it becomes Leader in the very same transition (§8 boundary
// behavior: "single-node cluster: Timeout -> Leader in one transition").
func (n *Node) becomeCandidate(now time.Time) (*Node, error) {
	newTerm := n.term + 1
	self := n.id
	if err := n.persistVote(newTerm, &self); err != nil {
		return n, err
	}

	n.r = role{kind: RoleCandidate, candidate: &candidateState{
		votes:            map[NodeId]bool{n.id: true},
		electionDeadline: now.Add(n.randomElectionTimeout()),
	}}
	n.logr.LogElectionStart(n.id, newTerm)

	for _, peer := range n.peers {
		n.send(Outbound{To: peer.ID, VoteReq: &VoteRequest{
			Term:         newTerm,
			CandidateID:  n.id,
			LastLogIndex: n.log.lastIndex(),
			LastLogTerm:  n.log.lastTerm(),
		}})
	}

	if n.grantedVotes() >= n.quorum() {
		return n.becomeLeader(now)
	}
	return n, nil
}

func (n *Node) grantedVotes() int {
	count := 0
	for _, granted := range n.r.candidate.votes {
		if granted {
			count++
		}
	}
	return count
}

func (n *Node) applyCandidate(cmd Command, now time.Time) (*Node, error) {
	cs := n.r.candidate

	switch cmd.Kind {
	case CmdTick:
		if !now.Before(cs.electionDeadline) {
			return n.applyCandidate(TimeoutCommand(), now)
		}
		return n, nil

	case CmdTimeout:
		// Re-enter Candidate: term advances again and a new round of
		// votes is solicited (§4.3: "On Timeout: re-enter Candidate with
		// term+=1 again").
		n.logr.LogElectionLost(n.id, n.term, "timed out waiting for quorum")
		return n.becomeCandidate(now)

	case CmdVoteRequest:
		req := *cmd.VoteReq
		if req.Term > n.term {
			if err := n.stepDownToFollower(req.Term, nil, now); err != nil {
				return n, err
			}
			return n.applyFollower(cmd, now)
		}
		// Already voted for self this term; deny without persisting
		// anything new.
		n.send(Outbound{To: req.CandidateID, VoteResp: &VoteResponse{Term: n.term, VoterID: n.id, Granted: false}})
		return n, nil

	case CmdVoteResponse:
		resp := *cmd.VoteResp
		if resp.Term > n.term {
			if err := n.stepDownToFollower(resp.Term, nil, now); err != nil {
				return n, err
			}
			return n, nil
		}
		if resp.Term < n.term {
			return n, nil
		}
		cs.votes[resp.VoterID] = resp.Granted
		if n.grantedVotes() >= n.quorum() {
			n.logr.LogElectionWon(n.id, n.term)
			return n.becomeLeader(now)
		}
		// A majority of denials is allowed to simply let the election
		// timeout and retry rather than stepping down immediately (§4.3:
		// "majority denial permitted (non-mandatory) to just wait for
		// timeout").
		return n, nil

	case CmdAppendEntries:
		req := *cmd.AppendReq
		if req.Term >= n.term {
			leaderID := req.LeaderID
			if err := n.stepDownToFollower(req.Term, &leaderID, now); err != nil {
				return n, err
			}
			// Re-dispatch the very same command to the new Follower
			// role rather than dropping it (§9 design note).
			return n.applyFollower(cmd, now)
		}
		n.send(Outbound{To: req.LeaderID, AppendResp: &AppendResponse{Term: n.term, FollowerID: n.id, Success: false}})
		return n, nil

	case CmdAppendResponse:
		return n, nil

	case CmdPropose:
		return n, &NotLeader{LeaderHint: n.LeaderHint()}

	default:
		return n, nil
	}
}
