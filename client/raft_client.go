// Package client is a thin RPC client for the server package's
// client-facing RPCs, the Go analogue of the teacher's client.KVClient.
// The method shapes (Put/Get/Delete, a per-call timeout context, Close)
// are unchanged; what moved is the wire format (gob over a hand-built
// ServiceDesc instead of a protoc-generated stub, see engine/codec.go)
// and the addition of leader-redirect retry, since writes in a Raft
// cluster can only land on whichever node is currently Leader.
package client

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"josefine/catalog"
	_ "josefine/engine" // registers the "gob" grpc.Codec this client negotiates
	"josefine/server"
)

const defaultTimeout = 5 * time.Second
const maxRedirects = 5

// RaftClient dials one broker and follows NotLeader redirects (carried
// back as a LeaderHint address on the RPC response, not as a transport-
// level error) until a write lands on the current Leader.
type RaftClient struct {
	conn *grpc.ClientConn
	addr string
}

func NewRaftClient(serverAddr string) (*RaftClient, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	conn, err := grpc.DialContext(ctx, serverAddr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithBlock(),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("gob")),
	)
	if err != nil {
		return nil, fmt.Errorf("client: connect to %s: %w", serverAddr, err)
	}
	return &RaftClient{conn: conn, addr: serverAddr}, nil
}

func (c *RaftClient) Put(key string, value []byte) error {
	return c.withRedirect(func(conn *grpc.ClientConn) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		var resp server.PutResponse
		if err := conn.Invoke(ctx, "/josefine.server.Broker/Put", &server.PutRequest{Key: key, Value: value}, &resp); err != nil {
			return "", fmt.Errorf("client: Put RPC: %w", err)
		}
		if !resp.Success {
			if resp.LeaderHint != "" {
				return resp.LeaderHint, fmt.Errorf("client: not leader")
			}
			return "", fmt.Errorf("client: Put failed: %s", resp.Error)
		}
		return "", nil
	})
}

func (c *RaftClient) Delete(key string) error {
	return c.withRedirect(func(conn *grpc.ClientConn) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		var resp server.DeleteResponse
		if err := conn.Invoke(ctx, "/josefine.server.Broker/Delete", &server.DeleteRequest{Key: key}, &resp); err != nil {
			return "", fmt.Errorf("client: Delete RPC: %w", err)
		}
		if !resp.Success {
			if resp.LeaderHint != "" {
				return resp.LeaderHint, fmt.Errorf("client: not leader")
			}
			return "", fmt.Errorf("client: Delete failed: %s", resp.Error)
		}
		return "", nil
	})
}

// Get never redirects: any node can serve a (possibly stale) read
// straight off its own fsm.Store, per server.BrokerServer.Get.
func (c *RaftClient) Get(key string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var resp server.GetResponse
	if err := c.conn.Invoke(ctx, "/josefine.server.Broker/Get", &server.GetRequest{Key: key}, &resp); err != nil {
		return nil, fmt.Errorf("client: Get RPC: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("client: Get failed: %s", resp.Error)
	}
	if !resp.Found {
		return nil, fmt.Errorf("client: key not found")
	}
	return resp.Value, nil
}

func (c *RaftClient) CreateTopics(topics []catalog.TopicSpec) ([]catalog.TopicMetadata, error) {
	var metas []catalog.TopicMetadata
	err := c.withRedirectErr(func(conn *grpc.ClientConn) (string, error) {
		ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
		defer cancel()
		var resp server.CreateTopicsResponse
		if err := conn.Invoke(ctx, "/josefine.server.Broker/CreateTopics", &server.CreateTopicsRequest{Topics: topics}, &resp); err != nil {
			return "", fmt.Errorf("client: CreateTopics RPC: %w", err)
		}
		if resp.Error != "" {
			if resp.LeaderHint != "" {
				return resp.LeaderHint, fmt.Errorf("client: not leader")
			}
			return "", fmt.Errorf("client: CreateTopics failed: %s", resp.Error)
		}
		metas = resp.Topics
		return "", nil
	})
	return metas, err
}

func (c *RaftClient) Status() (*server.StatusResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var resp server.StatusResponse
	if err := c.conn.Invoke(ctx, "/josefine.server.Broker/Status", &server.StatusRequest{}, &resp); err != nil {
		return nil, fmt.Errorf("client: Status RPC: %w", err)
	}
	return &resp, nil
}

// withRedirect retries attempt against whatever node the client is
// currently dialed, redialing to a returned LeaderHint up to
// maxRedirects times before giving up.
func (c *RaftClient) withRedirect(attempt func(*grpc.ClientConn) (string, error)) error {
	return c.withRedirectErr(attempt)
}

func (c *RaftClient) withRedirectErr(attempt func(*grpc.ClientConn) (string, error)) error {
	conn := c.conn
	for i := 0; i < maxRedirects; i++ {
		hint, err := attempt(conn)
		if err == nil {
			return nil
		}
		if hint == "" {
			return err
		}
		newConn, dialErr := grpc.DialContext(context.Background(), hint,
			grpc.WithTransportCredentials(insecure.NewCredentials()),
			grpc.WithDefaultCallOptions(grpc.CallContentSubtype("gob")),
		)
		if dialErr != nil {
			return fmt.Errorf("client: redirect dial %s: %w", hint, dialErr)
		}
		if conn != c.conn {
			conn.Close()
		}
		conn = newConn
	}
	return fmt.Errorf("client: exceeded %d leader redirects", maxRedirects)
}

func (c *RaftClient) Close() error {
	return c.conn.Close()
}
