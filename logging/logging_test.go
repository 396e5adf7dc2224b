package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

// go test -run TestFileOutput -v
func TestFileOutput(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "logs", "blobshard.log")
	opts := DefaultOptions()
	opts.Console = false
	opts.File = path
	opts.Format = "json"

	logger, err := New(opts)
	if err != nil {
		t.Fatalf("Unexpected error when creating logger: %s", err)
	}
	logger.Debug("below the level")
	logger.Info("shard stored", zap.String("module", "node"))
	logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Unexpected error when reading log file: %s", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	assert.Len(lines, 1)
	assert.Contains(lines[0], `"msg":"shard stored"`)
	assert.Contains(lines[0], `"module":"node"`)
}

func TestBadOptions(t *testing.T) {
	assert := assert.New(t)

	opts := DefaultOptions()
	opts.Level = "loud"
	_, err := New(opts)
	assert.Error(err)

	opts = DefaultOptions()
	opts.Format = "xml"
	_, err = New(opts)
	assert.Error(err)
}

func TestNoOutputIsNop(t *testing.T) {
	opts := DefaultOptions()
	opts.Console = false
	logger, err := New(opts)
	if err != nil {
		t.Fatalf("Unexpected error when creating logger: %s", err)
	}
	assert.False(t, logger.Core().Enabled(zap.ErrorLevel))
}
