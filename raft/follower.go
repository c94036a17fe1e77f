package raft

import "time"

// applyFollower implements §4.2. The Follower is the cluster's resting
// state: it waits out a randomized election deadline, grants votes to
// candidates whose log is at least as current as its own, and applies
// whatever a Leader at or above its term replicates to it.
func (n *Node) applyFollower(cmd Command, now time.Time) (*Node, error) {
	fs := n.r.follower

	switch cmd.Kind {
	case CmdTick:
		if !now.Before(fs.electionDeadline) {
			return n.applyFollower(TimeoutCommand(), now)
		}
		return n, nil

	case CmdTimeout:
		n.logr.LogElectionTimeout(n.id, n.term)
		return n.becomeCandidate(now)

	case CmdVoteRequest:
		return n, n.handleVoteRequestAsFollower(*cmd.VoteReq, now)

	case CmdVoteResponse:
		// A stray vote response addressed to a node that is no longer
		// (or never was, this term) a Candidate is simply stale; ignore.
		return n, nil

	case CmdAppendEntries:
		return n, n.handleAppendEntriesAsFollower(*cmd.AppendReq, now)

	case CmdAppendResponse:
		// Followers never send AppendEntries, so never expect a response.
		return n, nil

	case CmdPropose:
		return n, &NotLeader{LeaderHint: n.LeaderHint()}

	default:
		return n, nil
	}
}

func (n *Node) handleVoteRequestAsFollower(req VoteRequest, now time.Time) error {
	if req.Term < n.term {
		n.send(Outbound{To: req.CandidateID, VoteResp: &VoteResponse{Term: n.term, VoterID: n.id, Granted: false}})
		return nil
	}

	if req.Term > n.term {
		if err := n.persistVote(req.Term, nil); err != nil {
			return err
		}
	}

	canVote := n.votedFor == nil || *n.votedFor == req.CandidateID
	upToDate := n.log.upToDate(req.LastLogTerm, req.LastLogIndex)
	granted := canVote && upToDate

	if granted {
		if err := n.persistVote(n.term, &req.CandidateID); err != nil {
			return err
		}
		n.r.follower.electionDeadline = now.Add(n.randomElectionTimeout())
		n.logr.LogVoteGranted(n.id, req.CandidateID, n.term)
	} else {
		n.logr.LogVoteDenied(n.id, req.CandidateID, n.term)
	}

	n.send(Outbound{To: req.CandidateID, VoteResp: &VoteResponse{Term: n.term, VoterID: n.id, Granted: granted}})
	return nil
}

func (n *Node) handleAppendEntriesAsFollower(req AppendEntries, now time.Time) error {
	if req.Term < n.term {
		n.send(Outbound{To: req.LeaderID, AppendResp: &AppendResponse{Term: n.term, FollowerID: n.id, Success: false}})
		return nil
	}

	if req.Term > n.term {
		if err := n.persistVote(req.Term, nil); err != nil {
			return err
		}
	}

	leaderID := req.LeaderID
	n.r.follower.leaderID = &leaderID
	n.r.follower.electionDeadline = now.Add(n.randomElectionTimeout())
	n.logr.LogAppendEntries(n.id, req.LeaderID, n.term, len(req.Entries))

	if req.PrevLogIndex > 0 {
		entry, ok := n.log.entryAt(req.PrevLogIndex)
		if !ok || entry.Term != req.PrevLogTerm {
			n.send(Outbound{To: req.LeaderID, AppendResp: &AppendResponse{
				Term: n.term, FollowerID: n.id, Success: false,
				ConflictIndex: conflictIndexHint(n.log, req.PrevLogIndex),
				ConflictTerm:  conflictTermHint(n.log, req.PrevLogIndex),
			}})
			return nil
		}
	}

	if err := n.reconcileSuffix(req.PrevLogIndex, req.Entries); err != nil {
		return err
	}

	lastNewIndex := req.PrevLogIndex + LogIndex(len(req.Entries))
	if req.LeaderCommit > n.commitIndex {
		newCommit := req.LeaderCommit
		if lastNewIndex < newCommit {
			newCommit = lastNewIndex
		}
		n.advanceCommit(newCommit)
	}

	n.send(Outbound{To: req.LeaderID, AppendResp: &AppendResponse{
		Term: n.term, FollowerID: n.id, Success: true, MatchIndex: lastNewIndex,
	}})
	return nil
}

// reconcileSuffix implements "delete conflicting suffix + append" (§4.2,
// §4.6's literal scenario 6): walk the incoming entries against what's
// already on disk starting at prevLogIndex+1; the moment one disagrees
// in term, truncate from there and append the remainder of entries.
// Entries that already match exactly are left untouched so a duplicate
// AppendEntries is idempotent (§8).
func (n *Node) reconcileSuffix(prevLogIndex LogIndex, entries []Entry) error {
	i := 0
	idx := prevLogIndex + 1
	for ; i < len(entries); i, idx = i+1, idx+1 {
		existing, ok := n.log.entryAt(idx)
		if !ok {
			break
		}
		if existing.Term != entries[i].Term {
			if err := n.log.truncateFrom(idx); err != nil {
				return err
			}
			break
		}
	}
	if i < len(entries) {
		if err := n.log.append(entries[i:]); err != nil {
			return err
		}
	}
	return nil
}

// advanceCommit moves commit_index forward and immediately queues the
// newly committed entries for the FSM (§4.5/§5), advancing last_applied
// in lockstep so the invariant last_applied <= commit_index never gets a
// chance to be observed false.
func (n *Node) advanceCommit(newCommit LogIndex) {
	if newCommit <= n.commitIndex {
		return
	}
	for idx := n.commitIndex + 1; idx <= newCommit; idx++ {
		if entry, ok := n.log.entryAt(idx); ok {
			n.pendingCommits = append(n.pendingCommits, entry)
		}
	}
	n.commitIndex = newCommit
	n.lastApplied = newCommit
}

func conflictIndexHint(log *Log, prevLogIndex LogIndex) LogIndex {
	entry, ok := log.entryAt(prevLogIndex)
	if !ok {
		// Follower's log is shorter than the leader assumed; point the
		// leader at the first index past what we actually have.
		return log.lastIndex() + 1
	}
	conflictTerm := entry.Term
	idx := prevLogIndex
	for idx > 1 {
		prior, ok := log.entryAt(idx - 1)
		if !ok || prior.Term != conflictTerm {
			break
		}
		idx--
	}
	return idx
}

func conflictTermHint(log *Log, prevLogIndex LogIndex) Term {
	entry, ok := log.entryAt(prevLogIndex)
	if !ok {
		return 0
	}
	return entry.Term
}
