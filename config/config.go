// Package config loads the YAML configuration shared by the blobshard binaries.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
	"github.com/KelvinWu602/blobshard/distributor"
	"github.com/KelvinWu602/blobshard/ipfs"
	"github.com/KelvinWu602/blobshard/logging"
	"github.com/KelvinWu602/blobshard/rstore"
)

// Storage backends a node can run on.
const (
	BackendFS    = "fs"
	BackendRedis = "redis"
	BackendIPFS  = "ipfs"
)

// Config represents the content of a single config.yaml file.
type Config struct {
	Log       logging.Options `yaml:"log"`
	Coding    Coding          `yaml:"coding"`
	Sequencer Sequencer       `yaml:"sequencer"`
	Node      Node            `yaml:"node"`
	Retrieval Retrieval       `yaml:"retrieval"`
}

// Coding is the template every blob is encoded with. A zero shard size is derived from
// each blob's length.
type Coding struct {
	DataShards   int    `yaml:"data_shards"`
	ParityShards int    `yaml:"parity_shards"`
	ShardSize    int    `yaml:"shard_size"`
	Hash         string `yaml:"hash"`
}

type Sequencer struct {
	GRPCListen    string   `yaml:"grpc_listen"`
	HTTPListen    string   `yaml:"http_listen"`
	DBPath        string   `yaml:"db_path"`
	Nodes         []uint32 `yaml:"nodes"`
	QueueCapacity int      `yaml:"queue_capacity"`
	Seed          int64    `yaml:"seed"`
}

type Node struct {
	ID            uint32         `yaml:"id"`
	GRPCListen    string         `yaml:"grpc_listen"`
	Sequencer     string         `yaml:"sequencer"`
	Backend       string         `yaml:"backend"`
	StorageDir    string         `yaml:"storage_dir"`
	MetricsListen string         `yaml:"metrics_listen"`
	Backoff       time.Duration  `yaml:"backoff"`
	Redis         rstore.Options `yaml:"redis"`
	IPFS          ipfs.Options   `yaml:"ipfs"`
}

type NodeAddr struct {
	ID   uint32 `yaml:"id"`
	Addr string `yaml:"addr"`
}

type Retrieval struct {
	Timeout   time.Duration `yaml:"timeout"`
	Sequencer string        `yaml:"sequencer"`
	Nodes     []NodeAddr    `yaml:"nodes"`
	OutputDir string        `yaml:"output_dir"`
}

// Default is returned when no config file is given. Every field of a file that is
// given starts from these values.
func Default() Config {
	return Config{
		Log: logging.DefaultOptions(),
		Coding: Coding{
			DataShards:   128,
			ParityShards: 32,
			ShardSize:    1024,
			Hash:         commitment.SHA256.Name,
		},
		Sequencer: Sequencer{
			GRPCListen:    ":50051",
			HTTPListen:    ":8080",
			DBPath:        "./data/meta",
			Nodes:         []uint32{1, 2, 3},
			QueueCapacity: distributor.DefaultQueueCapacity,
		},
		Node: Node{
			ID:         1,
			GRPCListen: ":50061",
			Sequencer:  "localhost:50051",
			Backend:    BackendFS,
			StorageDir: "./data/shards",
			Backoff:    time.Second,
			Redis:      rstore.Options{Addr: "localhost:6379", Timeout: 5 * time.Second},
			IPFS:       ipfs.DefaultOptions,
		},
		Retrieval: Retrieval{
			Timeout:   30 * time.Second,
			Sequencer: "localhost:50051",
			Nodes: []NodeAddr{
				{ID: 1, Addr: "localhost:50061"},
				{ID: 2, Addr: "localhost:50062"},
				{ID: 3, Addr: "localhost:50063"},
			},
			OutputDir: ".",
		},
	}
}

// Load reads the file at path over the defaults. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	file, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer file.Close()
	return parse(file)
}

func parse(r io.Reader) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks the coding template and the node settings.
func (c Config) Validate() error {
	if err := c.Coding.Validate(); err != nil {
		return err
	}
	switch c.Node.Backend {
	case BackendFS, BackendRedis, BackendIPFS:
	default:
		return fmt.Errorf("%w: unknown node backend %q", blueprint.ErrInvalidParameters, c.Node.Backend)
	}
	if blueprint.NodeID(c.Node.ID) == blueprint.AllNodes {
		return fmt.Errorf("%w: node id %d is reserved", blueprint.ErrInvalidParameters, c.Node.ID)
	}
	seen := make(map[uint32]bool, len(c.Retrieval.Nodes))
	for _, n := range c.Retrieval.Nodes {
		if blueprint.NodeID(n.ID) == blueprint.AllNodes || seen[n.ID] {
			return fmt.Errorf("%w: retrieval node id %d is reserved or repeated", blueprint.ErrInvalidParameters, n.ID)
		}
		seen[n.ID] = true
	}
	return nil
}

// Validate checks the bounds that do not depend on a blob's length.
func (c Coding) Validate() error {
	switch {
	case c.DataShards < 1:
		return fmt.Errorf("%w: data shards %d < 1", blueprint.ErrInvalidParameters, c.DataShards)
	case c.ParityShards < 1:
		return fmt.Errorf("%w: parity shards %d < 1", blueprint.ErrInvalidParameters, c.ParityShards)
	case c.DataShards+c.ParityShards > blueprint.MaxTotalShards:
		return fmt.Errorf("%w: %d total shards exceed %d", blueprint.ErrInvalidParameters, c.DataShards+c.ParityShards, blueprint.MaxTotalShards)
	case c.ShardSize < 0 || c.ShardSize%blueprint.SymbolSize != 0:
		return fmt.Errorf("%w: shard size %d", blueprint.ErrInvalidParameters, c.ShardSize)
	}
	if _, err := commitment.HasherByName(c.Hash); err != nil {
		return err
	}
	return nil
}

// Hasher resolves the configured commitment hash.
func (c Coding) Hasher() (commitment.Hasher, error) {
	return commitment.HasherByName(c.Hash)
}

// NodeIDs converts the seeded roster.
func (s Sequencer) NodeIDs() []blueprint.NodeID {
	ids := make([]blueprint.NodeID, len(s.Nodes))
	for i, id := range s.Nodes {
		ids[i] = blueprint.NodeID(id)
	}
	return ids
}
