// Package server is the client-facing RPC surface, the Go analogue of
// the teacher's server/grpc_server.go (a GRPCServer wrapping a
// storage.LSMStore behind Put/Get/Delete/Stats RPCs generated from
// kvstore.proto). Here the wrapped collaborator is engine.Engine plus
// fsm.Store and catalog.Catalog, and the descriptor is hand-built (see
// engine/codec.go) since protoc cannot be invoked in this environment
// and the teacher's generated package was never retrieved.
package server

import (
	"context"
	"errors"

	"google.golang.org/grpc"

	"josefine/catalog"
	"josefine/cluster"
	_ "josefine/engine" // registers the "gob" grpc.Codec this service negotiates
	"josefine/fsm"
	"josefine/raft"
)

const brokerServiceName = "josefine.server.Broker"

// Proposer is the slice of engine.Engine the broker surface needs to
// submit client writes through the single Apply-calling goroutine.
type Proposer interface {
	Propose(ctx context.Context, payload []byte) error
}

// PutRequest/PutResponse etc. mirror the teacher's proto request/
// response shapes field-for-field (a Success/Error pair plus whatever
// payload the call needs), just as plain Go structs instead of
// protoc-generated ones.
type PutRequest struct {
	Key   string
	Value []byte
}

type PutResponse struct {
	Success    bool
	Error      string
	LeaderHint string
}

type GetRequest struct {
	Key string
}

type GetResponse struct {
	Value []byte
	Found bool
	Error string
}

type DeleteRequest struct {
	Key string
}

type DeleteResponse struct {
	Success    bool
	Error      string
	LeaderHint string
}

type CreateTopicsRequest struct {
	Topics []catalog.TopicSpec
}

type CreateTopicsResponse struct {
	Topics     []catalog.TopicMetadata
	Error      string
	LeaderHint string
}

type StatusRequest struct{}

type StatusResponse struct {
	NodeID      uint64
	Role        string
	CommitIndex uint64
	Topics      []catalog.TopicMetadata
}

// BrokerServer implements the client-facing RPCs on top of a Proposer
// (normally *engine.Engine), the fsm.Store committed writes land on, and
// the Catalog committed topic metadata lands on.
type BrokerServer struct {
	nodeID   raft.NodeId
	proposer Proposer
	store    *fsm.Store
	catalog  *catalog.Catalog
	ring     *catalog.BrokerRing
	registry *cluster.Registry
	node     func() *raft.Node
}

func NewBrokerServer(nodeID raft.NodeId, proposer Proposer, store *fsm.Store, cat *catalog.Catalog, ring *catalog.BrokerRing, registry *cluster.Registry, node func() *raft.Node) *BrokerServer {
	return &BrokerServer{
		nodeID:   nodeID,
		proposer: proposer,
		store:    store,
		catalog:  cat,
		ring:     ring,
		registry: registry,
		node:     node,
	}
}

func (b *BrokerServer) Put(ctx context.Context, req *PutRequest) (*PutResponse, error) {
	payload, err := fsm.PutCommand(req.Key, req.Value)
	if err != nil {
		return &PutResponse{Error: err.Error()}, nil
	}
	if err := b.proposer.Propose(ctx, payload); err != nil {
		return b.putError(err), nil
	}
	return &PutResponse{Success: true}, nil
}

func (b *BrokerServer) putError(err error) *PutResponse {
	resp := &PutResponse{Error: err.Error()}
	var notLeader *raft.NotLeader
	if errors.As(err, &notLeader) {
		resp.LeaderHint = b.hintAddress(notLeader)
	}
	return resp
}

func (b *BrokerServer) Delete(ctx context.Context, req *DeleteRequest) (*DeleteResponse, error) {
	payload, err := fsm.DeleteCommand(req.Key)
	if err != nil {
		return &DeleteResponse{Error: err.Error()}, nil
	}
	if err := b.proposer.Propose(ctx, payload); err != nil {
		resp := &DeleteResponse{Error: err.Error()}
		var notLeader *raft.NotLeader
		if errors.As(err, &notLeader) {
			resp.LeaderHint = b.hintAddress(notLeader)
		}
		return resp, nil
	}
	return &DeleteResponse{Success: true}, nil
}

// Get is served locally off this node's own fsm.Store rather than
// routed through Raft: a linearizable read would need a read-index or
// lease round trip through the leader (§4 Non-goals excludes that), so
// Get here is a dirty read that may lag the leader by however far this
// node's apply loop is behind.
func (b *BrokerServer) Get(_ context.Context, req *GetRequest) (*GetResponse, error) {
	value, err := b.store.Get(req.Key)
	if err != nil {
		if errors.Is(err, fsm.ErrKeyNotFound) {
			return &GetResponse{Found: false}, nil
		}
		return &GetResponse{Error: err.Error()}, nil
	}
	return &GetResponse{Value: value, Found: true}, nil
}

func (b *BrokerServer) CreateTopics(ctx context.Context, req *CreateTopicsRequest) (*CreateTopicsResponse, error) {
	metas, err := catalog.CreateTopics(ctx, b.proposer, b.ring, req.Topics)
	if err != nil {
		resp := &CreateTopicsResponse{Error: err.Error()}
		var notLeader *raft.NotLeader
		if errors.As(err, &notLeader) {
			resp.LeaderHint = b.hintAddress(notLeader)
		}
		return resp, nil
	}
	return &CreateTopicsResponse{Topics: metas}, nil
}

func (b *BrokerServer) Status(_ context.Context, _ *StatusRequest) (*StatusResponse, error) {
	n := b.node()
	return &StatusResponse{
		NodeID:      uint64(b.nodeID),
		Role:        n.Role().String(),
		CommitIndex: uint64(n.CommitIndex()),
		Topics:      b.catalog.Topics(),
	}, nil
}

func (b *BrokerServer) hintAddress(err *raft.NotLeader) string {
	if err.LeaderHint == nil || b.registry == nil {
		return ""
	}
	m, lookupErr := b.registry.Get(*err.LeaderHint)
	if lookupErr != nil {
		return ""
	}
	return m.Address
}

// RegisterBrokerServer wires a BrokerServer into a *grpc.Server using a
// hand-built ServiceDesc, the client-facing sibling of
// engine.RegisterRaftServiceServer.
func RegisterBrokerServer(s *grpc.Server, srv *BrokerServer) {
	s.RegisterService(&brokerServiceDesc, srv)
}

// brokerServer is the minimal interface grpc.Server.RegisterService
// checks BrokerServer against; every exported RPC method is dispatched
// through the handlers below instead of reflection, so this only needs
// to be non-empty enough to assert against.
type brokerServer interface {
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

var brokerServiceDesc = grpc.ServiceDesc{
	ServiceName: brokerServiceName,
	HandlerType: (*brokerServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Put", Handler: putHandler},
		{MethodName: "Get", Handler: getHandler},
		{MethodName: "Delete", Handler: deleteHandler},
		{MethodName: "CreateTopics", Handler: createTopicsHandler},
		{MethodName: "Status", Handler: statusHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "server/broker.proto",
}

func putHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(PutRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	b := srv.(*BrokerServer)
	if interceptor == nil {
		return b.Put(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Put"}
	handler := func(ctx context.Context, req any) (any, error) { return b.Put(ctx, req.(*PutRequest)) }
	return interceptor(ctx, in, info, handler)
}

func getHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	b := srv.(*BrokerServer)
	if interceptor == nil {
		return b.Get(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Get"}
	handler := func(ctx context.Context, req any) (any, error) { return b.Get(ctx, req.(*GetRequest)) }
	return interceptor(ctx, in, info, handler)
}

func deleteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(DeleteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	b := srv.(*BrokerServer)
	if interceptor == nil {
		return b.Delete(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Delete"}
	handler := func(ctx context.Context, req any) (any, error) { return b.Delete(ctx, req.(*DeleteRequest)) }
	return interceptor(ctx, in, info, handler)
}

func createTopicsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CreateTopicsRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	b := srv.(*BrokerServer)
	if interceptor == nil {
		return b.CreateTopics(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/CreateTopics"}
	handler := func(ctx context.Context, req any) (any, error) {
		return b.CreateTopics(ctx, req.(*CreateTopicsRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func statusHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(StatusRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	b := srv.(*BrokerServer)
	if interceptor == nil {
		return b.Status(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + brokerServiceName + "/Status"}
	handler := func(ctx context.Context, req any) (any, error) { return b.Status(ctx, req.(*StatusRequest)) }
	return interceptor(ctx, in, info, handler)
}
