package raft

import "time"

// becomeLeader runs the Leader's entry actions (§4.4): initialize
// Progress for every peer at {next_index = last_log_index+1,
// match_index = 0}, and emit an immediate empty AppendEntries heartbeat
// so followers learn about the new term without waiting a full
// heartbeat interval.
func (n *Node) becomeLeader(now time.Time) (*Node, error) {
	progress := make(map[NodeId]*Progress, len(n.peers))
	for id := range n.peers {
		progress[id] = &Progress{NextIndex: n.log.lastIndex() + 1, MatchIndex: 0}
	}

	n.r = role{kind: RoleLeader, leader: &leaderState{
		progress:      progress,
		nextHeartbeat: now.Add(n.cfg.HeartbeatTimeout),
	}}
	n.logr.LogStateChange(n.id, n.term)

	n.broadcastAppendEntries()
	return n, nil
}

func (n *Node) broadcastAppendEntries() {
	ls := n.r.leader
	for id := range n.peers {
		prog := ls.progress[id]
		prevIndex := prog.NextIndex - 1
		prevTerm := n.log.termAt(prevIndex)

		var entries []Entry
		for idx := prog.NextIndex; idx <= n.log.lastIndex(); idx++ {
			if e, ok := n.log.entryAt(idx); ok {
				entries = append(entries, e)
			}
		}

		n.send(Outbound{To: id, AppendReq: &AppendEntries{
			Term:         n.term,
			LeaderID:     n.id,
			PrevLogIndex: prevIndex,
			PrevLogTerm:  prevTerm,
			Entries:      entries,
			LeaderCommit: n.commitIndex,
		}})
	}
	n.logr.LogHeartbeatSent(n.id, n.term, len(n.peers))
}

func (n *Node) applyLeader(cmd Command, now time.Time) (*Node, error) {
	ls := n.r.leader

	switch cmd.Kind {
	case CmdTick, CmdTimeout:
		if !now.Before(ls.nextHeartbeat) {
			n.broadcastAppendEntries()
			ls.nextHeartbeat = now.Add(n.cfg.HeartbeatTimeout)
		}
		return n, nil

	case CmdVoteRequest:
		req := *cmd.VoteReq
		if req.Term > n.term {
			if err := n.stepDownToFollower(req.Term, nil, now); err != nil {
				return n, err
			}
			return n.applyFollower(cmd, now)
		}
		n.send(Outbound{To: req.CandidateID, VoteResp: &VoteResponse{Term: n.term, VoterID: n.id, Granted: false}})
		return n, nil

	case CmdVoteResponse:
		resp := *cmd.VoteResp
		if resp.Term > n.term {
			if err := n.stepDownToFollower(resp.Term, nil, now); err != nil {
				return n, err
			}
		}
		return n, nil

	case CmdAppendEntries:
		req := *cmd.AppendReq
		if req.Term > n.term {
			leaderID := req.LeaderID
			if err := n.stepDownToFollower(req.Term, &leaderID, now); err != nil {
				return n, err
			}
			return n.applyFollower(cmd, now)
		}
		// Per invariant 6 (at most one leader per term) this should
		// never legitimately happen at req.Term == n.term; treat it as
		// stale either way and keep leading.
		n.send(Outbound{To: req.LeaderID, AppendResp: &AppendResponse{Term: n.term, FollowerID: n.id, Success: false}})
		return n, nil

	case CmdAppendResponse:
		return n, n.handleAppendResponse(*cmd.AppendResp, now)

	case CmdPropose:
		if len(cmd.Payload) == 0 {
			return n, &InvalidCommand{Reason: "propose with empty payload"}
		}
		entry := Entry{Term: n.term, Index: n.log.lastIndex() + 1, Payload: cmd.Payload}
		if err := n.log.append([]Entry{entry}); err != nil {
			return n, err
		}
		// Self always counts toward quorum, so a single-node (or more
		// generally quorum-already-satisfied-by-self) cluster commits the
		// instant it appends rather than waiting on an AppendResponse
		// that will never arrive.
		n.recomputeCommitIndex()
		// Not otherwise acknowledged to the submitter here: durability is
		// local only. The caller (via the engine) learns the proposal is
		// safe once commit_index reaches entry.Index (§5).
		return n, nil

	default:
		return n, nil
	}
}

func (n *Node) handleAppendResponse(resp AppendResponse, now time.Time) error {
	if resp.Term > n.term {
		return n.stepDownToFollower(resp.Term, nil, now)
	}
	if resp.Term < n.term {
		return nil
	}

	prog, ok := n.r.leader.progress[resp.FollowerID]
	if !ok {
		return nil
	}

	if resp.Success {
		if resp.MatchIndex > prog.MatchIndex {
			prog.MatchIndex = resp.MatchIndex
		}
		prog.NextIndex = prog.MatchIndex + 1
		n.recomputeCommitIndex()
		return nil
	}

	if resp.ConflictIndex > 0 {
		prog.NextIndex = resp.ConflictIndex
	} else if prog.NextIndex > 1 {
		prog.NextIndex--
	}
	return nil
}

// recomputeCommitIndex implements §4.4's commit rule: the highest index M
// such that a majority of the cluster (including self) have replicated
// it AND the entry at M was proposed in the current term. The same-term
// restriction is non-negotiable - it is what prevents a Leader from
// committing (and thus exposing to the FSM) an entry from a prior term
// that a future leader could still overwrite.
func (n *Node) recomputeCommitIndex() {
	ls := n.r.leader
	for m := n.log.lastIndex(); m > n.commitIndex; m-- {
		entry, ok := n.log.entryAt(m)
		if !ok || entry.Term != n.term {
			continue
		}
		count := 1 // self
		for _, prog := range ls.progress {
			if prog.MatchIndex >= m {
				count++
			}
		}
		if count >= n.quorum() {
			n.advanceCommit(m)
			return
		}
	}
}
