package raft

// Persister is the core's sole interface to durable storage (§4.5, §6).
// Every method that can fail is fatal on error: the caller must treat a
// non-nil error as grounds to halt the node (§4.6). A concrete
// implementation lives in persist.go, adapted from the teacher's
// write-ahead log.
type Persister interface {
	// SaveState durably writes current_term and voted_for together so a
	// crash can never observe one updated without the other.
	SaveState(term Term, votedFor *NodeId) error
	LoadState() (term Term, votedFor *NodeId, err error)

	// Append durably writes entries to the end of the log. Callers only
	// ever append at last_index+1; appending out of sequence is a
	// programming error, not a runtime one.
	Append(entries []Entry) error

	// TruncateFrom durably removes every entry at index >= from.
	TruncateFrom(from LogIndex) error

	// EntryAt returns the entry at index, or ok=false if it doesn't exist.
	EntryAt(index LogIndex) (entry Entry, ok bool)

	// LastIndex and LastTerm describe the tail of the log. LastIndex==0
	// means the log is empty.
	LastIndex() LogIndex
	LastTerm() Term

	// TermAt returns the term of the entry at index, or ok=false.
	TermAt(index LogIndex) (term Term, ok bool)
}

// Log is a thin, pure-Go convenience wrapper around a Persister that the
// role handlers use so they never touch the interface's error-returning
// methods directly except where a failure is genuinely possible
// (Append/TruncateFrom/SaveState). Reads never fail once a Persister is
// loaded, since failures there are fatal at startup.
type Log struct {
	p Persister
}

func newLog(p Persister) *Log { return &Log{p: p} }

func (l *Log) lastIndex() LogIndex { return l.p.LastIndex() }
func (l *Log) lastTerm() Term      { return l.p.LastTerm() }

func (l *Log) entryAt(index LogIndex) (Entry, bool) { return l.p.EntryAt(index) }

func (l *Log) termAt(index LogIndex) Term {
	if index == 0 {
		return 0
	}
	t, ok := l.p.TermAt(index)
	if !ok {
		return 0
	}
	return t
}

// append durably writes entries starting at lastIndex()+1. Fatal on
// persister error per §4.6.
func (l *Log) append(entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}
	if err := l.p.Append(entries); err != nil {
		return &Persistence{Op: "log append", Err: err}
	}
	return nil
}

// truncateFrom durably deletes every entry at index >= from. Fatal on
// persister error.
func (l *Log) truncateFrom(from LogIndex) error {
	if err := l.p.TruncateFrom(from); err != nil {
		return &Persistence{Op: "log truncate", Err: err}
	}
	return nil
}

// upToDate reports whether (candidateLastTerm, candidateLastIndex) is at
// least as up-to-date as this log, per the Raft log comparison rule used
// in vote granting (§4.2): higher term wins outright; equal term, longer
// (or equal) log wins.
func (l *Log) upToDate(candidateLastTerm Term, candidateLastIndex LogIndex) bool {
	myTerm, myIndex := l.lastTerm(), l.lastIndex()
	if candidateLastTerm != myTerm {
		return candidateLastTerm > myTerm
	}
	return candidateLastIndex >= myIndex
}
