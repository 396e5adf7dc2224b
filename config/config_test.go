package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
)

// go test -run TestDefaults -v
func TestDefaults(t *testing.T) {
	assert := assert.New(t)

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Unexpected error when loading defaults: %s", err)
	}
	assert.Equal(Default(), cfg)
	assert.NoError(cfg.Validate())
	assert.Equal(128, cfg.Coding.DataShards)
	assert.Equal(32, cfg.Coding.ParityShards)
	assert.Equal(1024, cfg.Coding.ShardSize)
	assert.Equal([]blueprint.NodeID{1, 2, 3}, cfg.Sequencer.NodeIDs())

	hasher, err := cfg.Coding.Hasher()
	if err != nil {
		t.Fatalf("Unexpected error when resolving hasher: %s", err)
	}
	assert.Equal(commitment.SHA256.Name, hasher.Name)
}

func TestOverrides(t *testing.T) {
	assert := assert.New(t)

	cfg, err := parse(strings.NewReader(`
coding:
  parity_shards: 64
  hash: blake3
node:
  id: 7
  backend: redis
  backoff: 250ms
  redis:
    addr: redis:6379
retrieval:
  timeout: 5s
  nodes:
    - {id: 4, addr: "node4:50061"}
`))
	if err != nil {
		t.Fatalf("Unexpected error when parsing config: %s", err)
	}
	assert.Equal(128, cfg.Coding.DataShards, "unset fields keep their default")
	assert.Equal(64, cfg.Coding.ParityShards)
	assert.Equal("blake3", cfg.Coding.Hash)
	assert.Equal(uint32(7), cfg.Node.ID)
	assert.Equal(BackendRedis, cfg.Node.Backend)
	assert.Equal(250*time.Millisecond, cfg.Node.Backoff)
	assert.Equal("redis:6379", cfg.Node.Redis.Addr)
	assert.Equal(5*time.Second, cfg.Node.Redis.Timeout)
	assert.Equal(5*time.Second, cfg.Retrieval.Timeout)
	assert.Equal([]NodeAddr{{ID: 4, Addr: "node4:50061"}}, cfg.Retrieval.Nodes)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("sequencer:\n  nodes: [5, 6]\n"), 0o600); err != nil {
		t.Fatalf("Unexpected error when writing config: %s", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Unexpected error when loading config: %s", err)
	}
	assert.Equal(t, []uint32{5, 6}, cfg.Sequencer.Nodes)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestEmptyFileIsDefault(t *testing.T) {
	cfg, err := parse(strings.NewReader(""))
	if err != nil {
		t.Fatalf("Unexpected error when parsing empty config: %s", err)
	}
	assert.Equal(t, Default(), cfg)
}

func TestInvalidConfigs(t *testing.T) {
	for _, doc := range []string{
		"coding: {data_shards: 0}",
		"coding: {parity_shards: 0}",
		"coding: {data_shards: 200, parity_shards: 56}",
		"coding: {shard_size: -1}",
		"coding: {hash: md5}",
		"node: {backend: s3}",
		"node: {id: 0}",
		"retrieval: {nodes: [{id: 1, addr: a}, {id: 1, addr: b}]}",
		"unknown_section: true",
		"coding: [1, 2]",
	} {
		_, err := parse(strings.NewReader(doc))
		assert.Error(t, err, doc)
	}
}
