package engine

import (
	"context"

	"josefine/raft"
)

// Transport sends one outbound RPC to a peer and, for request/response
// pairs, is expected to feed the reply back onto the Engine's own
// command queue (via Engine.Enqueue) rather than returning it
// synchronously - RPCs happen off the single Apply-calling goroutine,
// matching spec.md §5's "Suspension ... lives in the driver."
type Transport interface {
	Send(ctx context.Context, to raft.Peer, o raft.Outbound)
}

// inboundServer is what a concrete transport (e.g. the gRPC RaftService
// in service.go) needs
// from the Engine to turn a received RPC into a Command.
type inboundServer interface {
	Enqueue(cmd raft.Command)
}
