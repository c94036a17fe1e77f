// raft/logging.go
package raft

import "go.uber.org/zap"

// Logger provides structured logging for Raft. Same specialized method
// surface the original stdlib-log version exposed (LogStateChange,
// LogElectionStart, LogVoteGranted, ...); the backing implementation is
// now a *zap.Logger instead of log.Printf, so every call site gets
// structured fields instead of a formatted string.
type Logger struct {
	z *zap.Logger
}

// NewLogger creates a new logger scoped to one node.
func NewLogger(z *zap.Logger, id NodeId) *Logger {
	return &Logger{z: z.With(zap.Uint64("node_id", uint64(id)))}
}

// NewNopLogger is used by tests and anywhere a real sink hasn't been
// wired up yet.
func NewNopLogger() *Logger { return &Logger{z: zap.NewNop()} }

func (l *Logger) LogStateChange(id NodeId, term Term) {
	l.z.Info("👑 became leader", zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogElectionStart(id NodeId, term Term) {
	l.z.Info("🗳️  starting election", zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogElectionWon(id NodeId, term Term) {
	l.z.Info("👑 WON election", zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogElectionLost(id NodeId, term Term, reason string) {
	l.z.Info("❌ LOST election", zap.Uint64("term", uint64(term)), zap.String("reason", reason))
}

func (l *Logger) LogVoteGranted(id, candidate NodeId, term Term) {
	l.z.Debug("✅ granted vote", zap.Uint64("candidate", uint64(candidate)), zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogVoteDenied(id, candidate NodeId, term Term) {
	l.z.Debug("❌ denied vote", zap.Uint64("candidate", uint64(candidate)), zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogHeartbeatSent(id NodeId, term Term, numPeers int) {
	l.z.Debug("💓 sent heartbeat", zap.Uint64("term", uint64(term)), zap.Int("peers", numPeers))
}

func (l *Logger) LogHeartbeatReceived(id, leader NodeId, term Term) {
	l.z.Debug("💓 received heartbeat", zap.Uint64("leader", uint64(leader)), zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogAppendEntries(id, leader NodeId, term Term, numEntries int) {
	l.z.Debug("📥 received AppendEntries",
		zap.Uint64("leader", uint64(leader)), zap.Uint64("term", uint64(term)), zap.Int("entries", numEntries))
}

func (l *Logger) LogCommit(id NodeId, index LogIndex) {
	l.z.Info("✅ commit index advanced", zap.Uint64("index", uint64(index)))
}

func (l *Logger) LogApply(id NodeId, index LogIndex) {
	l.z.Debug("⚡ applied entry to fsm", zap.Uint64("index", uint64(index)))
}

func (l *Logger) LogStepDown(id NodeId, oldTerm, newTerm Term) {
	l.z.Info("⬇️  stepping down", zap.Uint64("old_term", uint64(oldTerm)), zap.Uint64("new_term", uint64(newTerm)))
}

func (l *Logger) LogElectionTimeout(id NodeId, term Term) {
	l.z.Debug("⏰ election timeout", zap.Uint64("term", uint64(term)))
}

func (l *Logger) LogElectionTimerReset(id NodeId) {
	l.z.Debug("🔄 election timer reset")
}
