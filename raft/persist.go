package raft

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FilePersister is the concrete Persister (§6: "Persisted state layout").
// It is the Raft analogue of the teacher's storage/wal.go: an append-only
// file of length-prefixed binary records, flushed and fsynced before a
// write is considered durable. Two files are kept: state.bin holds
// (current_term, voted_for) as a single atomically-replaced record, and
// log.bin holds the append-only sequence of Entry records keyed by
// position (index 1 is the first record).
type FilePersister struct {
	mu sync.Mutex

	dir       string
	logFile   *os.File
	logWriter *bufio.Writer

	entries []Entry  // entries[i] is the entry at index i+1
	offsets []int64  // offsets[i] is the byte offset log.bin entry i+1 starts at
	term    Term
	vote    *NodeId
}

const statefileName = "state.bin"
const logfileName = "log.bin"

type stateRecord struct {
	Term    uint64
	Vote    uint64
	HasVote bool
}

// NewFilePersister opens (creating if necessary) the on-disk state under
// dir and replays the existing log into memory.
func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create persister dir: %w", err)
	}

	logPath := filepath.Join(dir, logfileName)
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	p := &FilePersister{
		dir:       dir,
		logFile:   f,
		logWriter: bufio.NewWriter(f),
	}

	if err := p.replayLog(); err != nil {
		return nil, fmt.Errorf("replay log: %w", err)
	}
	if err := p.loadStateFile(); err != nil {
		return nil, fmt.Errorf("load state: %w", err)
	}
	return p, nil
}

func (p *FilePersister) statePath() string { return filepath.Join(p.dir, statefileName) }

func (p *FilePersister) loadStateFile() error {
	data, err := os.ReadFile(p.statePath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	var rec stateRecord
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&rec); err != nil {
		return err
	}
	p.term = Term(rec.Term)
	if rec.HasVote {
		v := NodeId(rec.Vote)
		p.vote = &v
	}
	return nil
}

// SaveState durably writes (term, votedFor) via write-to-temp-then-rename
// so a crash never observes a half-written record (§6: "atomic durable
// updates of (current_term, voted_for) required").
func (p *FilePersister) SaveState(term Term, votedFor *NodeId) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rec := stateRecord{Term: uint64(term)}
	if votedFor != nil {
		rec.HasVote = true
		rec.Vote = uint64(*votedFor)
	}

	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(rec); err != nil {
		return err
	}

	tmp := p.statePath() + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	tf, err := os.OpenFile(tmp, os.O_RDWR, 0o644)
	if err != nil {
		return err
	}
	if err := tf.Sync(); err != nil {
		tf.Close()
		return err
	}
	if err := tf.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, p.statePath()); err != nil {
		return err
	}

	p.term = term
	p.vote = votedFor
	return nil
}

func (p *FilePersister) LoadState() (Term, *NodeId, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.term, p.vote, nil
}

func (p *FilePersister) Append(entries []Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, e := range entries {
		offset, err := p.logFile.Seek(0, io.SeekCurrent)
		if err != nil {
			return err
		}
		// account for whatever's still buffered and not yet flushed
		offset += int64(p.logWriter.Buffered())

		if err := writeRecord(p.logWriter, e); err != nil {
			return err
		}
		if err := p.logWriter.Flush(); err != nil {
			return err
		}
		if err := p.logFile.Sync(); err != nil {
			return err
		}

		p.entries = append(p.entries, e)
		p.offsets = append(p.offsets, offset)
	}
	return nil
}

func (p *FilePersister) TruncateFrom(from LogIndex) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if from < 1 || int(from) > len(p.entries)+1 {
		return nil
	}
	if int(from) > len(p.entries) {
		return nil
	}

	cut := p.offsets[from-1]
	if err := p.logFile.Truncate(cut); err != nil {
		return err
	}
	if err := p.logFile.Sync(); err != nil {
		return err
	}
	if _, err := p.logFile.Seek(cut, io.SeekStart); err != nil {
		return err
	}
	p.logWriter = bufio.NewWriter(p.logFile)

	p.entries = p.entries[:from-1]
	p.offsets = p.offsets[:from-1]
	return nil
}

func (p *FilePersister) EntryAt(index LogIndex) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 1 || int(index) > len(p.entries) {
		return Entry{}, false
	}
	return p.entries[index-1], true
}

func (p *FilePersister) LastIndex() LogIndex {
	p.mu.Lock()
	defer p.mu.Unlock()
	return LogIndex(len(p.entries))
}

func (p *FilePersister) LastTerm() Term {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.entries) == 0 {
		return 0
	}
	return p.entries[len(p.entries)-1].Term
}

func (p *FilePersister) TermAt(index LogIndex) (Term, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if index < 1 || int(index) > len(p.entries) {
		return 0, false
	}
	return p.entries[index-1].Term, true
}

func (p *FilePersister) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.logWriter.Flush(); err != nil {
		return err
	}
	return p.logFile.Close()
}

func (p *FilePersister) replayLog() error {
	if _, err := p.logFile.Seek(0, io.SeekStart); err != nil {
		return err
	}
	r := bufio.NewReader(p.logFile)

	var offset int64
	for {
		e, n, err := readRecord(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		p.entries = append(p.entries, e)
		p.offsets = append(p.offsets, offset)
		offset += n
	}
	if _, err := p.logFile.Seek(0, io.SeekEnd); err != nil {
		return err
	}
	return nil
}

// writeRecord/readRecord use the same length-prefixed-binary shape as
// the teacher's storage/wal.go Write/readEntry, just gob-encoding the
// payload instead of hand-marshaling Key/Value fields.
func writeRecord(w *bufio.Writer, e Entry) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(e); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(buf.Len())); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

func readRecord(r *bufio.Reader) (Entry, int64, error) {
	var length uint32
	if err := binary.Read(r, binary.LittleEndian, &length); err != nil {
		return Entry{}, 0, err
	}
	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return Entry{}, 0, err
	}
	var e Entry
	if err := gob.NewDecoder(bytes.NewReader(body)).Decode(&e); err != nil {
		return Entry{}, 0, err
	}
	return e, int64(4 + length), nil
}
