package ipfs

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// fakeDaemon answers the subset of the MFS RPC API used by the store.
type fakeDaemon struct {
	mu    sync.Mutex
	files map[string][]byte
	dirs  map[string]bool
}

func newFakeDaemon(t *testing.T) (*fakeDaemon, string) {
	d := &fakeDaemon{files: make(map[string][]byte), dirs: map[string]bool{"/": true}}
	srv := httptest.NewServer(d)
	t.Cleanup(srv.Close)
	return d, strings.TrimPrefix(srv.URL, "http://")
}

func (d *fakeDaemon) fail(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]any{"Message": msg, "Code": 0, "Type": "error"})
}

func (d *fakeDaemon) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/api/v0/id" && r.Method == http.MethodHead {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	q := r.URL.Query()
	arg := q.Get("arg")
	switch r.URL.Path {
	case "/api/v0/files/mkdir":
		d.dirs[arg] = true
	case "/api/v0/files/write":
		if _, ok := d.files[arg]; !ok && q.Get("create") != "true" {
			d.fail(w, "file does not exist")
			return
		}
		mr, err := r.MultipartReader()
		if err != nil {
			d.fail(w, err.Error())
			return
		}
		var content []byte
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				break
			}
			if err != nil {
				d.fail(w, err.Error())
				return
			}
			if part.Header.Get("Content-Type") == "application/x-directory" {
				continue
			}
			data, _ := io.ReadAll(part)
			content = append(content, data...)
		}
		if q.Get("truncate") != "true" {
			content = append(append([]byte(nil), d.files[arg]...), content...)
		}
		d.files[arg] = content
	case "/api/v0/files/read":
		data, ok := d.files[arg]
		if !ok {
			d.fail(w, "file does not exist")
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.Write(data)
	case "/api/v0/files/ls":
		type entry struct {
			Name string
			Type int
			Size uint64
			Hash string
		}
		entries := []entry{}
		for p, data := range d.files {
			name, found := strings.CutPrefix(p, arg+"/")
			if found && !strings.Contains(name, "/") {
				entries = append(entries, entry{Name: name, Size: uint64(len(data))})
			}
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"Entries": entries})
	case "/api/v0/files/rm":
		if _, ok := d.files[arg]; !ok {
			d.fail(w, "file does not exist")
			return
		}
		delete(d.files, arg)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (d *fakeDaemon) file(p string) ([]byte, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.files[p]
	return data, ok
}

func newTestStore(t *testing.T) (*IPFS, *fakeDaemon) {
	d, host := newFakeDaemon(t)
	store, err := New(context.Background(), Options{Host: host, Root: "/shards", Timeout: 2 * time.Second}, nil)
	if err != nil {
		t.Fatalf("Unexpected error when creating the IPFS store: %s", err)
	}
	return store, d
}

// go test -run TestIPFSPutAndShards -v
func TestIPFSPutAndShards(t *testing.T) {
	store, d := newTestStore(t)
	ctx := context.Background()
	assert.True(t, d.dirs["/shards"], "root directory is created")

	require.NoError(t, store.Put(ctx, blueprint.Record{BlobName: "0xaa", NodeID: 1, Index: 4, Data: []byte("four")}))
	require.NoError(t, store.Put(ctx, blueprint.Record{BlobName: "0xaa", NodeID: 1, Index: 0, Data: []byte("zero")}))
	require.NoError(t, store.Put(ctx, blueprint.Record{BlobName: "0xaa", NodeID: 2, Index: 1, Data: []byte("one")}))

	raw, ok := d.file("/shards/chunk_0xaa_1_4.bin")
	require.True(t, ok)
	assert.Equal(t, []byte("four"), raw)

	shards, err := store.Shards(ctx, "0xaa", 1)
	require.NoError(t, err)
	assert.Equal(t, []blueprint.Shard{{Index: 0, Data: []byte("zero")}, {Index: 4, Data: []byte("four")}}, shards)
}

func TestIPFSDuplicatePutTruncates(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	rec := blueprint.Record{BlobName: "0xaa", NodeID: 1, Index: 0, Data: []byte("a longer first value")}
	require.NoError(t, store.Put(ctx, rec))
	rec.Data = []byte("short")
	require.NoError(t, store.Put(ctx, rec))

	shards, err := store.Shards(ctx, "0xaa", 1)
	require.NoError(t, err)
	assert.Equal(t, []blueprint.Shard{{Index: 0, Data: []byte("short")}}, shards)
}

func TestIPFSDeleteAll(t *testing.T) {
	store, d := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.Put(ctx, blueprint.Record{BlobName: "0xaa", NodeID: 1, Index: 0, Data: []byte{1}}))
	require.NoError(t, store.Put(ctx, blueprint.Record{BlobName: "0xbb", NodeID: 2, Index: 1, Data: []byte{2}}))
	d.mu.Lock()
	d.files["/shards/README"] = []byte("kept")
	d.mu.Unlock()

	require.NoError(t, store.DeleteAll(ctx))
	_, ok := d.file("/shards/chunk_0xaa_1_0.bin")
	assert.False(t, ok)
	_, ok = d.file("/shards/README")
	assert.True(t, ok, "foreign files are left alone")
}

func TestReadMissingFile(t *testing.T) {
	_, host := newFakeDaemon(t)
	client := newIPFSClient(host, time.Second)
	_, err := client.readFile(context.Background(), "/nope")
	assert.ErrorIs(t, err, errNotExist)
}

func TestNewGivesUpWhenDaemonIsDown(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 1500*time.Millisecond)
	defer cancel()
	_, err := New(ctx, Options{Host: "127.0.0.1:1", Timeout: 200 * time.Millisecond}, nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
