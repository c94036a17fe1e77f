// Package config loads a node's settings from a YAML file with
// JOSEFINE_-prefixed environment variable overrides, the Go analogue of
// original_source's config.rs (a File merge followed by an
// Environment::with_prefix("JOSEFINE") merge). gopkg.in/yaml.v2 stands
// in for the Rust `config` crate's file layer; the env-override pass is
// hand-rolled since nothing in the retrieved pack pulls in a dedicated
// env-overlay library.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"josefine/raft"
)

// RaftSettings mirrors original_source's RaftConfig fields
// (heartbeat_timeout, min/max_election_timeout, cluster node list),
// renamed to Go case and with timeouts as time.Duration instead of a
// raw tick count.
type RaftSettings struct {
	NodeID             uint64        `yaml:"node_id"`
	HeartbeatTimeout   time.Duration `yaml:"heartbeat_timeout"`
	MinElectionTimeout time.Duration `yaml:"min_election_timeout"`
	MaxElectionTimeout time.Duration `yaml:"max_election_timeout"`
	DataDir            string        `yaml:"data_dir"`
}

// BrokerSettings is the client-facing surface's own knobs: where it
// listens and how many virtual nodes the partition-assignment ring uses.
type BrokerSettings struct {
	ListenAddress string `yaml:"listen_address"`
	RaftAddress   string `yaml:"raft_address"`
	VirtualNodes  int    `yaml:"virtual_nodes"`
}

// Peer is one other cluster member's bootstrap address, loaded into a
// cluster.Registry at startup.
type Peer struct {
	NodeID  uint64 `yaml:"node_id"`
	Address string `yaml:"address"`
}

// Config is the top-level settings document, the Go analogue of
// original_source's JosefineConfig { raft: RaftConfig, broker:
// BrokerConfig }.
type Config struct {
	Raft    RaftSettings    `yaml:"raft"`
	Broker  BrokerSettings  `yaml:"broker"`
	Cluster []Peer          `yaml:"cluster"`
}

func defaults() Config {
	return Config{
		Raft: RaftSettings{
			HeartbeatTimeout:   50 * time.Millisecond,
			MinElectionTimeout: 150 * time.Millisecond,
			MaxElectionTimeout: 300 * time.Millisecond,
			DataDir:            "./data",
		},
		Broker: BrokerSettings{
			ListenAddress: "0.0.0.0:7000",
			RaftAddress:   "0.0.0.0:7001",
			VirtualNodes:  256,
		},
	}
}

// Load reads path (if it exists; a missing file just means "use the
// defaults plus env") and then overlays any JOSEFINE_-prefixed
// environment variables, matching config.rs's merge(File).merge(Env)
// order, so the environment always wins.
func Load(path string) (Config, error) {
	cfg := defaults()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyEnvOverrides walks the same fields Load just unmarshaled,
// applying JOSEFINE_<SECTION>_<FIELD> if set. It is a fixed list rather
// than a reflection-driven walk since Config's shape is small and
// stable, and a fixed list makes the supported variables
// greppable/documentable in one place.
func applyEnvOverrides(cfg *Config) error {
	if v, ok := lookupUint("JOSEFINE_RAFT_NODE_ID"); ok {
		cfg.Raft.NodeID = v
	}
	if v, ok := lookupDuration("JOSEFINE_RAFT_HEARTBEAT_TIMEOUT"); ok {
		cfg.Raft.HeartbeatTimeout = v
	}
	if v, ok := lookupDuration("JOSEFINE_RAFT_MIN_ELECTION_TIMEOUT"); ok {
		cfg.Raft.MinElectionTimeout = v
	}
	if v, ok := lookupDuration("JOSEFINE_RAFT_MAX_ELECTION_TIMEOUT"); ok {
		cfg.Raft.MaxElectionTimeout = v
	}
	if v, ok := os.LookupEnv("JOSEFINE_RAFT_DATA_DIR"); ok {
		cfg.Raft.DataDir = v
	}
	if v, ok := os.LookupEnv("JOSEFINE_BROKER_LISTEN_ADDRESS"); ok {
		cfg.Broker.ListenAddress = v
	}
	if v, ok := os.LookupEnv("JOSEFINE_BROKER_RAFT_ADDRESS"); ok {
		cfg.Broker.RaftAddress = v
	}
	if v, ok := lookupUint("JOSEFINE_BROKER_VIRTUAL_NODES"); ok {
		cfg.Broker.VirtualNodes = int(v)
	}
	return nil
}

func lookupUint(key string) (uint64, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func lookupDuration(key string) (time.Duration, bool) {
	raw, ok := os.LookupEnv(key)
	if !ok || raw == "" {
		return 0, false
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, false
	}
	return d, true
}

// ToRaftConfig builds a raft.Config from the loaded settings plus the
// peer list resolved by the caller (normally cluster.Registry.Peers).
func (c Config) ToRaftConfig(peers []raft.Peer) raft.Config {
	return raft.Config{
		NodeID:             raft.NodeId(c.Raft.NodeID),
		Peers:              peers,
		HeartbeatTimeout:   c.Raft.HeartbeatTimeout,
		MinElectionTimeout: c.Raft.MinElectionTimeout,
		MaxElectionTimeout: c.Raft.MaxElectionTimeout,
	}
}
