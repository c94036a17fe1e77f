package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Raft.HeartbeatTimeout != 50*time.Millisecond {
		t.Errorf("want default heartbeat timeout, got %v", cfg.Raft.HeartbeatTimeout)
	}
}

func TestLoadParsesYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := "raft:\n  node_id: 1\n  heartbeat_timeout: 25ms\nbroker:\n  listen_address: 127.0.0.1:9000\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Raft.NodeID != 1 {
		t.Errorf("want node_id 1, got %d", cfg.Raft.NodeID)
	}
	if cfg.Raft.HeartbeatTimeout != 25*time.Millisecond {
		t.Errorf("want heartbeat_timeout 25ms, got %v", cfg.Raft.HeartbeatTimeout)
	}
	if cfg.Broker.ListenAddress != "127.0.0.1:9000" {
		t.Errorf("want listen_address override, got %q", cfg.Broker.ListenAddress)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	os.WriteFile(path, []byte("raft:\n  node_id: 1\n"), 0o644)

	t.Setenv("JOSEFINE_RAFT_NODE_ID", "7")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Raft.NodeID != 7 {
		t.Errorf("want env override to win, got node_id=%d", cfg.Raft.NodeID)
	}
}

func TestToRaftConfig(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	cfg.Raft.NodeID = 3
	raftCfg := cfg.ToRaftConfig(nil)
	if uint64(raftCfg.NodeID) != 3 {
		t.Errorf("want NodeID 3, got %d", raftCfg.NodeID)
	}
	if raftCfg.MinElectionTimeout != cfg.Raft.MinElectionTimeout {
		t.Errorf("want MinElectionTimeout carried through")
	}
}
