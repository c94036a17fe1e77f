package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"josefine/raft"
	"josefine/replication"
)

// skipThreshold is how many recent consecutive failures a peer accrues
// before GRPCTransport stops dialing it every tick and waits for the
// failure window to age out; Raft's own heartbeat cadence still retries
// the peer on the next tick after that, so this only trims redundant
// dial attempts against a peer that is clearly down.
const skipThreshold = 3

// GRPCTransport dials peers lazily and reuses connections, the same
// shape as the teacher's client.KVClient (insecure transport
// credentials), just addressed by raft.Peer instead of a single fixed
// server address and fanning out to whichever peer an Outbound names.
// Connections are created with grpc.NewClient, which does not block
// until the peer is reachable; a down peer surfaces as a failed Invoke.
type GRPCTransport struct {
	selfID raft.NodeId

	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	dialTimeout time.Duration
	failures    *replication.FailureTracker
}

func NewGRPCTransport(selfID raft.NodeId) *GRPCTransport {
	return &GRPCTransport{
		selfID:      selfID,
		conns:       make(map[string]*grpc.ClientConn),
		dialTimeout: 2 * time.Second,
		failures:    replication.NewFailureTracker(replication.DefaultMaxAge),
	}
}

func (t *GRPCTransport) Send(ctx context.Context, to raft.Peer, o raft.Outbound) {
	now := time.Now()
	if t.failures.ShouldSkip(to.Address, now, skipThreshold) {
		return
	}

	conn, err := t.connFor(to.Address)
	if err != nil {
		t.failures.RecordFailure(to.Address, now)
		return
	}

	frame := outboundToFrame(t.selfID, o)
	ctx, cancel := context.WithTimeout(ctx, t.dialTimeout)
	defer cancel()

	var ack Ack
	if err := conn.Invoke(ctx, "/"+raftServiceName+"/Send", &frame, &ack); err != nil {
		t.failures.RecordFailure(to.Address, now)
		return
	}
	t.failures.RecordSuccess(to.Address)
}

func (t *GRPCTransport) connFor(addr string) (*grpc.ClientConn, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[addr]; ok {
		return c, nil
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(gobCodec{}.Name())),
	)
	if err != nil {
		return nil, fmt.Errorf("engine: dial %s: %w", addr, err)
	}
	t.conns[addr] = conn
	return conn, nil
}

func (t *GRPCTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	var firstErr error
	for _, c := range t.conns {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
