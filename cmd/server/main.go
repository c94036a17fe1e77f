// Command server boots one Raft-backed broker node: it loads config,
// opens a FilePersister under the configured data directory, wires the
// Raft core into engine.Engine with a gRPC peer transport, and serves
// the client-facing BrokerServer RPCs. Grounded on the teacher's
// cmd/server/main.go for the flag-parsing and REPL shape, generalized
// from a single-process storage.Store CLI into a cluster node that also
// answers client RPCs over the network (kept, per spec.md §1, as a
// secondary local console for operators alongside the RPC surface).
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"josefine/catalog"
	"josefine/cluster"
	"josefine/config"
	"josefine/engine"
	"josefine/fsm"
	"josefine/raft"
	"josefine/server"
)

func main() {
	configPath := flag.String("config", "./josefine.yaml", "Path to the node's YAML config file")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	nodeID := raft.NodeId(cfg.Raft.NodeID)
	registry := cluster.NewRegistry()
	registry.Add(nodeID, cfg.Broker.RaftAddress)
	for _, p := range cfg.Cluster {
		registry.Add(raft.NodeId(p.NodeID), p.Address)
	}

	persister, err := raft.NewFilePersister(cfg.Raft.DataDir)
	if err != nil {
		logger.Fatal("failed to open persister", zap.Error(err))
	}
	defer persister.Close()

	raftLogger := raft.NewLogger(logger, nodeID)
	node, err := raft.NewNode(cfg.ToRaftConfig(registry.Peers(nodeID)), persister, raftLogger, time.Now())
	if err != nil {
		logger.Fatal("failed to start raft node", zap.Error(err))
	}

	store := fsm.NewStore()
	cat := catalog.NewCatalog()
	ring := catalog.NewBrokerRing(cfg.Broker.VirtualNodes)
	ring.AddBroker(fmt.Sprintf("%d", nodeID))

	fsmFanout := multiFSM{store: store, catalog: cat}
	transport := engine.NewGRPCTransport(nodeID)
	defer transport.Close()

	eng := engine.NewEngine(node, engine.RealClock(), transport, fsmFanout, cfg.Raft.HeartbeatTimeout/5)
	go eng.Run()
	defer eng.Shutdown()

	brokerSrv := server.NewBrokerServer(nodeID, eng, store, cat, ring, registry, eng.Node)

	raftListener, err := net.Listen("tcp", cfg.Broker.RaftAddress)
	if err != nil {
		logger.Fatal("failed to listen for peers", zap.Error(err))
	}
	raftGRPC := grpc.NewServer()
	engine.RegisterRaftServiceServer(raftGRPC, eng)
	go raftGRPC.Serve(raftListener)
	defer raftGRPC.Stop()

	clientListener, err := net.Listen("tcp", cfg.Broker.ListenAddress)
	if err != nil {
		logger.Fatal("failed to listen for clients", zap.Error(err))
	}
	clientGRPC := grpc.NewServer()
	server.RegisterBrokerServer(clientGRPC, brokerSrv)
	go clientGRPC.Serve(clientListener)
	defer clientGRPC.Stop()

	logger.Info("node started",
		zap.Uint64("node_id", cfg.Raft.NodeID),
		zap.String("raft_address", cfg.Broker.RaftAddress),
		zap.String("client_address", cfg.Broker.ListenAddress))

	go runConsole()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	logger.Info("shutting down")
}

// multiFSM fans a committed entry out to whichever of Store/Catalog
// understands it, since the two collaborators share one Raft log but
// decode different command encodings.
type multiFSM struct {
	store   *fsm.Store
	catalog *catalog.Catalog
}

func (m multiFSM) Apply(index raft.LogIndex, payload []byte) ([]byte, error) {
	switch {
	case fsm.IsCommand(payload):
		return m.store.Apply(index, payload)
	case catalog.IsCommand(payload):
		return m.catalog.Apply(index, payload)
	default:
		return nil, fmt.Errorf("cmd/server: unrecognized committed payload")
	}
}

// runConsole is a local operator console, unchanged in spirit from the
// teacher's cmd/server/main.go scanner loop: a running node otherwise
// has no terminal UI, so QUIT here just lets an interactive operator
// signal intent without reaching for kill(1).
func runConsole() {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Println("node running; talk to it with cmd/client. Type QUIT to detach this console.")

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		switch strings.ToUpper(line) {
		case "QUIT", "EXIT":
			return
		case "":
		default:
			fmt.Println("use the client CLI (cmd/client) to talk to this node over RPC")
		}
	}
}
