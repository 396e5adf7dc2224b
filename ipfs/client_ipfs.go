package ipfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

var errRequestTimeout error = errors.New("req timeout exceeded")
var errConnectionRefused error = errors.New("connection refused")
var errNotExist error = errors.New("file does not exist")

// ipfsClient is a connection with the IPFS daemon, restricted to the MFS commands
// the shard store needs.
type ipfsClient struct {
	sh      *shell.Shell
	host    string
	timeout time.Duration
}

func newIPFSClient(host string, timeout time.Duration) *ipfsClient {
	return &ipfsClient{sh: shell.NewShell(host), host: host, timeout: timeout}
}

// waitDaemon blocks until the daemon answers or ctx ends, checking once per second.
func (req *ipfsClient) waitDaemon(ctx context.Context) error {
	for {
		if req.isDaemonAlive(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("ipfs daemon at %s: %w", req.host, ctx.Err())
		case <-time.After(time.Second):
		}
	}
}

// isDaemonAlive sends HEAD /api/v0/id. The RPC API only accepts POST, so a live daemon
// answers 405.
func (req *ipfsClient) isDaemonAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	url := req.host
	if !strings.HasPrefix(url, "http") {
		url = "http://" + url
	}
	r, err := http.NewRequestWithContext(ctx, http.MethodHead, url+"/api/v0/id", nil)
	if err != nil {
		return false
	}
	res, err := http.DefaultClient.Do(r)
	if err != nil {
		return false
	}
	res.Body.Close()
	return res.StatusCode == http.StatusMethodNotAllowed
}

func (req *ipfsClient) createDirectory(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	err := req.sh.FilesMkdir(ctx, path, func(rb *shell.RequestBuilder) error {
		rb.Option("parents", true) // no error if existing
		return nil
	})
	return ipfsErrorClassifier(ctx, err)
}

// writeFile replaces the content of the file at path, creating it when missing.
func (req *ipfsClient) writeFile(ctx context.Context, path string, data io.Reader) error {
	options := func(rb *shell.RequestBuilder) error {
		rb.Option("create", true)   // create file if not exist
		rb.Option("truncate", true) // drop the previous content
		rb.Option("parents", true)
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	return ipfsErrorClassifier(ctx, req.sh.FilesWrite(ctx, path, data, options))
}

// readFile loads the whole file. The body is consumed before the timeout context ends.
func (req *ipfsClient) readFile(ctx context.Context, path string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	content, err := req.sh.FilesRead(ctx, path)
	if err != nil {
		return nil, ipfsErrorClassifier(ctx, err)
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return nil, ipfsErrorClassifier(ctx, err)
	}
	return data, nil
}

// listDirectory returns the entry names of an MFS directory.
func (req *ipfsClient) listDirectory(ctx context.Context, path string) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	entries, err := req.sh.FilesLs(ctx, path)
	if err != nil {
		return nil, ipfsErrorClassifier(ctx, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name)
	}
	return names, nil
}

func (req *ipfsClient) removeFile(ctx context.Context, path string) error {
	ctx, cancel := context.WithTimeout(ctx, req.timeout)
	defer cancel()
	return ipfsErrorClassifier(ctx, req.sh.FilesRm(ctx, path, true))
}

func ipfsErrorClassifier(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", errRequestTimeout, err)
	}
	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return fmt.Errorf("%w: %v", errConnectionRefused, err)
	case strings.Contains(errStr, "does not exist"):
		return fmt.Errorf("%w: %v", errNotExist, err)
	default:
		return err
	}
}
