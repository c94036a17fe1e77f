package engine

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"

	"josefine/raft"
)

func init() {
	encoding.RegisterCodec(gobCodec{})
}

// Frame is the single wire message exchanged between peers: exactly one
// of the four pointers is set, mirroring raft.Outbound's own shape so
// the server side can turn it straight back into a raft.Command.
type Frame struct {
	From       raft.NodeId
	VoteReq    *raft.VoteRequest
	VoteResp   *raft.VoteResponse
	AppendReq  *raft.AppendEntries
	AppendResp *raft.AppendResponse
}

// Ack is the empty reply every RaftService RPC returns; replies that
// themselves carry Raft semantics (a VoteResponse to a VoteRequest, say)
// travel back as a *new*, independent Frame rather than as the unary
// RPC's return value, so the sending side's own Enqueue/dispatch loop is
// the only place that ever constructs a raft.Command.
type Ack struct{}

// raftServiceName is this module's analogue of the teacher's proto
// package name, used to build the ServiceDesc's method table by hand
// since protoc cannot be invoked in this environment.
const raftServiceName = "josefine.engine.RaftService"

// RaftServiceServer is implemented by whatever wants to receive frames;
// Engine implements it via Enqueue.
type RaftServiceServer interface {
	inboundServer
}

// RegisterRaftServiceServer wires an Engine into a *grpc.Server using a
// hand-built ServiceDesc (the teacher's server/grpc_server.go instead
// registers a protoc-generated kvstore.proto.KVStoreServer; the shape of
// registering a server against a *grpc.Server is unchanged, only the
// descriptor's origin is).
func RegisterRaftServiceServer(s *grpc.Server, srv RaftServiceServer) {
	s.RegisterService(&raftServiceDesc, srv)
}

var raftServiceDesc = grpc.ServiceDesc{
	ServiceName: raftServiceName,
	HandlerType: (*RaftServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "Send",
			Handler:    sendHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "engine/raft_service.proto",
}

func sendHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(Frame)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return handleFrame(srv.(RaftServiceServer), ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + raftServiceName + "/Send"}
	handler := func(ctx context.Context, req any) (any, error) {
		return handleFrame(srv.(RaftServiceServer), ctx, req.(*Frame))
	}
	return interceptor(ctx, in, info, handler)
}

func handleFrame(srv RaftServiceServer, _ context.Context, in *Frame) (*Ack, error) {
	cmd, ok := frameToCommand(in)
	if !ok {
		return nil, fmt.Errorf("engine: empty frame from node %d", in.From)
	}
	srv.Enqueue(cmd)
	return &Ack{}, nil
}

func frameToCommand(f *Frame) (raft.Command, bool) {
	switch {
	case f.VoteReq != nil:
		return raft.VoteRequestCommand(*f.VoteReq), true
	case f.VoteResp != nil:
		return raft.VoteResponseCommand(*f.VoteResp), true
	case f.AppendReq != nil:
		return raft.AppendEntriesCommand(*f.AppendReq), true
	case f.AppendResp != nil:
		return raft.AppendResponseCommand(*f.AppendResp), true
	default:
		return raft.Command{}, false
	}
}

func outboundToFrame(from raft.NodeId, o raft.Outbound) Frame {
	return Frame{
		From:       from,
		VoteReq:    o.VoteReq,
		VoteResp:   o.VoteResp,
		AppendReq:  o.AppendReq,
		AppendResp: o.AppendResp,
	}
}
