package engine

import (
	"context"
	"sync"
	"time"

	"josefine/raft"
)

// Engine is the single goroutine that calls raft.Node.Apply, generalizing
// the teacher's raft_core.go run() loop (a select over an election timer,
// a heartbeat timer, and an applyCh) to dispatch through the new
// Apply(Command, now) entry point instead of inlined role logic.
type Engine struct {
	mu   sync.Mutex
	node *raft.Node

	clock     Clock
	transport Transport
	fsm       raft.StateMachine

	commands chan raft.Command
	proposals chan proposal
	shutdown  chan struct{}
	done      chan struct{}

	tickInterval time.Duration
}

// proposal is a client-submitted command paired with the channel its
// caller is blocked on, so apply() can report the real Apply error (a
// *raft.NotLeader redirect, most commonly) instead of the caller having
// to infer success from silence.
type proposal struct {
	cmd  raft.Command
	errc chan error
}

// NewEngine wires a Node to a clock, a transport, and an FSM. tick is how
// often the driver polls the clock with a CmdTick (typically a fraction
// of HeartbeatTimeout); it is the Go analogue of the teacher's 10ms
// "check timers" granularity.
func NewEngine(node *raft.Node, clock Clock, transport Transport, fsm raft.StateMachine, tick time.Duration) *Engine {
	return &Engine{
		node:         node,
		clock:        clock,
		transport:    transport,
		fsm:          fsm,
		commands:     make(chan raft.Command, 256),
		proposals:    make(chan proposal, 256),
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		tickInterval: tick,
	}
}

// Enqueue posts a command onto the driver's command queue. Safe to call
// from any goroutine (the RaftService RPC handler, say) - it never
// touches raft.Node directly. Client proposals go through Propose and
// ticks are applied by Run itself; neither uses Enqueue.
func (e *Engine) Enqueue(cmd raft.Command) { e.commands <- cmd }

// Propose submits a client command and blocks until the driver has
// attempted to apply it, returning whatever error Apply produced
// (typically *raft.NotLeader, carrying a LeaderHint a client can redirect
// to). It does NOT wait for the entry to commit; callers that need that
// learn it by watching CommitIndex/DrainCommitted results surfacing
// through the FSM (spec.md §5).
func (e *Engine) Propose(ctx context.Context, payload []byte) error {
	errc := make(chan error, 1)
	select {
	case e.proposals <- proposal{cmd: raft.ProposeCommand(payload), errc: errc}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run is the main event loop, analogous to the teacher's run(): it owns
// the only call to Apply and fans out whatever Apply produces (outbound
// RPCs, committed entries) after each command.
func (e *Engine) Run() {
	defer close(e.done)

	ticker := e.clock.NewTimer(e.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-e.shutdown:
			return

		case <-ticker.C():
			e.apply(raft.TickCommand())
			ticker.Reset(e.tickInterval)

		case cmd := <-e.commands:
			e.apply(cmd)

		case p := <-e.proposals:
			p.errc <- e.apply(p.cmd)
		}
	}
}

// Shutdown stops the driver loop and waits for it to exit.
func (e *Engine) Shutdown() {
	close(e.shutdown)
	<-e.done
}

// apply is the sole call site of raft.Node.Apply. It returns whatever
// error Apply produced so the proposals path can hand it straight back
// to the blocked caller; the tick/RPC path (apply's other callers)
// ignores the return value since nothing is waiting on it.
func (e *Engine) apply(cmd raft.Command) error {
	e.mu.Lock()
	now := e.clock.Now()
	node, err := e.node.Apply(cmd, now)
	e.node = node
	outbound := node.DrainOutbound()
	committed := node.DrainCommitted()
	e.mu.Unlock()

	if err != nil {
		// NotLeader/InvalidCommand are ordinary rejections a caller is
		// expected to see; anything else (a *raft.Persistence) is fatal
		// per §4.6 and is the caller's job to notice via a future
		// error-reporting channel. The driver itself keeps running so a
		// single bad command can't wedge the loop.
		return err
	}

	e.dispatch(outbound)
	e.deliver(committed)
	return nil
}

func (e *Engine) dispatch(outbound []raft.Outbound) {
	for _, o := range outbound {
		peer, ok := e.peer(o.To)
		if !ok {
			continue
		}
		go e.transport.Send(context.Background(), peer, o)
	}
}

func (e *Engine) peer(id raft.NodeId) (raft.Peer, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range e.node.Peers() {
		if p.ID == id {
			return p, true
		}
	}
	return raft.Peer{}, false
}

func (e *Engine) deliver(entries []raft.Entry) {
	for _, entry := range entries {
		if _, err := e.fsm.Apply(entry.Index, entry.Payload); err != nil {
			// The FSM is out-of-scope collaborator territory (spec.md
			// §6): a failure here is the application's problem, not the
			// Raft core's. Logging is the engine's responsibility once a
			// logger is threaded through; left for the caller to observe
			// via CommitIndex in the meantime.
			continue
		}
	}
}

// Node returns the current node snapshot for read-only inspection (e.g.
// a status RPC). Callers must not retain it across an Apply call.
func (e *Engine) Node() *raft.Node {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.node
}
