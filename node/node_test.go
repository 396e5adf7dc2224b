package node

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/fsstore"
)

const blobName = "0xc0ffee"

type fakeStream struct {
	ch chan blueprint.Delivery
}

func (s *fakeStream) Recv() (blueprint.Delivery, error) {
	d, ok := <-s.ch
	if !ok {
		return blueprint.Delivery{}, io.EOF
	}
	return d, nil
}

// fakeSource fails the first subscription, then hands out the queued streams.
type fakeSource struct {
	mu       sync.Mutex
	attempts int
	streams  chan *fakeStream
}

func (s *fakeSource) Subscribe(ctx context.Context, nodeID blueprint.NodeID) (Stream, error) {
	s.mu.Lock()
	s.attempts++
	first := s.attempts == 1
	s.mu.Unlock()
	if first {
		return nil, errors.New("sequencer unavailable")
	}
	select {
	case stream := <-s.streams:
		return stream, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

type failingStore struct{}

func (failingStore) Put(context.Context, blueprint.Record) error { return errors.New("disk full") }
func (failingStore) Shards(context.Context, string, blueprint.NodeID) ([]blueprint.Shard, error) {
	return nil, errors.New("disk gone")
}
func (failingStore) DeleteAll(context.Context) error { return errors.New("read-only") }

func newTestNode(t *testing.T, id blueprint.NodeID) *Node {
	store, err := fsstore.New(t.TempDir())
	require.NoError(t, err)
	n, err := New(id, store, Options{Backoff: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("Unexpected error when creating node %d: %s", id, err)
	}
	return n
}

// go test -run TestReceiveIgnoresOtherNodes -v
func TestReceiveIgnoresOtherNodes(t *testing.T) {
	n := newTestNode(t, 1)
	ctx := context.Background()

	require.NoError(t, n.Receive(ctx, blueprint.Delivery{NodeID: 2, Index: 0, Data: []byte("theirs"), BlobName: blobName}))
	require.NoError(t, n.Receive(ctx, blueprint.Delivery{NodeID: 1, Index: 3, Data: []byte("mine"), BlobName: blobName}))

	shards, err := n.Shards(ctx, blobName)
	require.NoError(t, err)
	assert.Equal(t, []blueprint.Shard{{Index: 3, Data: []byte("mine")}}, shards)
}

func TestConcurrentDuplicateReceive(t *testing.T) {
	n := newTestNode(t, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d := blueprint.Delivery{NodeID: 1, Index: 0, Data: []byte{byte(i), byte(i)}, BlobName: blobName}
			assert.NoError(t, n.Receive(ctx, d))
		}(i)
	}
	wg.Wait()

	shards, err := n.Shards(ctx, blobName)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, shards[0].Data[0], shards[0].Data[1])
	assert.Zero(t, n.locks.size(), "key locks are released")

	// a later write wins
	require.NoError(t, n.Receive(ctx, blueprint.Delivery{NodeID: 1, Index: 0, Data: []byte("last"), BlobName: blobName}))
	shards, err = n.Shards(ctx, blobName)
	require.NoError(t, err)
	assert.Equal(t, []byte("last"), shards[0].Data)
}

// go test -run TestRunResubscribesAndStores -v
func TestRunResubscribesAndStores(t *testing.T) {
	n := newTestNode(t, 1)
	stream := &fakeStream{ch: make(chan blueprint.Delivery, 3)}
	stream.ch <- blueprint.Delivery{NodeID: 1, Index: 0, Data: []byte("a"), BlobName: blobName}
	stream.ch <- blueprint.Delivery{NodeID: 2, Index: 1, Data: []byte("b"), BlobName: blobName}
	stream.ch <- blueprint.Delivery{NodeID: 1, Index: 2, Data: []byte("c"), BlobName: blobName}
	close(stream.ch)

	source := &fakeSource{streams: make(chan *fakeStream, 1)}
	source.streams <- stream

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- n.Run(ctx, source) }()

	require.Eventually(t, func() bool {
		shards, err := n.Shards(context.Background(), blobName)
		return err == nil && len(shards) == 2
	}, 5*time.Second, 10*time.Millisecond)
	// first attempt failed, second consumed the stream, third waits after EOF
	require.Eventually(t, func() bool { return source.count() >= 3 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestStorageFailuresAreWrapped(t *testing.T) {
	n, err := New(1, failingStore{}, Options{})
	require.NoError(t, err)
	ctx := context.Background()

	err = n.Receive(ctx, blueprint.Delivery{NodeID: 1, BlobName: blobName, Data: []byte{1}})
	assert.ErrorIs(t, err, blueprint.ErrNodeStorage)
	_, err = n.Shards(ctx, blobName)
	assert.ErrorIs(t, err, blueprint.ErrNodeStorage)
	assert.ErrorIs(t, n.DeleteAll(ctx), blueprint.ErrNodeStorage)
}

func TestDeleteAll(t *testing.T) {
	n := newTestNode(t, 4)
	ctx := context.Background()
	require.NoError(t, n.Receive(ctx, blueprint.Delivery{NodeID: 4, Index: 1, Data: []byte{1}, BlobName: blobName}))
	require.NoError(t, n.DeleteAll(ctx))
	shards, err := n.Shards(ctx, blobName)
	require.NoError(t, err)
	assert.Empty(t, shards)
}

func TestNewRejectsReservedID(t *testing.T) {
	_, err := New(blueprint.AllNodes, failingStore{}, Options{})
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)
	_, err = New(1, nil, Options{})
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)
}
