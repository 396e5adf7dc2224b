package rstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/blobshard/blueprint"
)

const blobName = "0xaabbcc"

func newTestStore(t *testing.T) (*RSTORE, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	r := New(Options{Addr: mr.Addr()})
	t.Cleanup(func() { r.Close() })
	return r, mr
}

// go test -run TestPutAndShards -v
func TestPutAndShards(t *testing.T) {
	r, mr := newTestStore(t)
	ctx := context.Background()

	for _, index := range []uint32{7, 2, 11} {
		err := r.Put(ctx, blueprint.Record{BlobName: blobName, NodeID: 1, Index: index, Data: []byte{byte(index)}})
		if err != nil {
			t.Fatalf("Unexpected error when storing shard %d: %s", index, err)
		}
	}
	// other node, same blob
	require.NoError(t, r.Put(ctx, blueprint.Record{BlobName: blobName, NodeID: 2, Index: 3, Data: []byte{3}}))

	shards, err := r.Shards(ctx, blobName, 1)
	require.NoError(t, err)
	assert.Equal(t, []blueprint.Shard{
		{Index: 2, Data: []byte{2}},
		{Index: 7, Data: []byte{7}},
		{Index: 11, Data: []byte{11}},
	}, shards)

	assert.Equal(t, "\x03", mr.HGet(Key(blobName, 2), "3"), "values are stored raw")
}

func TestDuplicatePutKeepsLatest(t *testing.T) {
	r, mr := newTestStore(t)
	ctx := context.Background()

	rec := blueprint.Record{BlobName: blobName, NodeID: 1, Index: 0, Data: []byte("first")}
	require.NoError(t, r.Put(ctx, rec))
	rec.Data = []byte("second")
	require.NoError(t, r.Put(ctx, rec))

	shards, err := r.Shards(ctx, blobName, 1)
	require.NoError(t, err)
	require.Len(t, shards, 1)
	assert.Equal(t, []byte("second"), shards[0].Data)
	assert.Len(t, mr.Keys(), 1)
}

func TestDeleteAll(t *testing.T) {
	r, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, r.DeleteAll(ctx), "empty keyspace")
	require.NoError(t, r.Put(ctx, blueprint.Record{BlobName: blobName, NodeID: 1, Index: 0, Data: []byte{1}}))
	require.NoError(t, r.Put(ctx, blueprint.Record{BlobName: "0xdd", NodeID: 2, Index: 1, Data: []byte{2}}))
	require.NoError(t, mr.Set("unrelated", "kept"))

	require.NoError(t, r.DeleteAll(ctx))
	assert.Equal(t, []string{"unrelated"}, mr.Keys())

	shards, err := r.Shards(ctx, blobName, 1)
	require.NoError(t, err)
	assert.Empty(t, shards)
}

func TestUnreachableRedis(t *testing.T) {
	r := New(Options{Addr: "127.0.0.1:1", Timeout: time.Second})
	defer r.Close()
	err := r.Put(context.Background(), blueprint.Record{BlobName: blobName, NodeID: 1, Data: []byte{1}})
	assert.Error(t, err)
}

func TestInvalidBlobName(t *testing.T) {
	r, _ := newTestStore(t)
	err := r.Put(context.Background(), blueprint.Record{BlobName: "a:b_c", NodeID: 1})
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)
}

// go test -run TestShardsIsolatedByBlobName -v
func TestShardsIsolatedByBlobName(t *testing.T) {
	assert := assert.New(t)
	r, _ := newTestStore(t)
	ctx := context.Background()

	if err := r.Put(ctx, blueprint.Record{BlobName: "a:1", NodeID: 2, Index: 7, Data: []byte("other")}); err != nil {
		t.Fatalf("Unexpected error when storing shard: %s", err)
	}
	if err := r.Put(ctx, blueprint.Record{BlobName: "b", NodeID: 1, Index: 3, Data: []byte("b")}); err != nil {
		t.Fatalf("Unexpected error when storing shard: %s", err)
	}

	for _, name := range []string{"a", "*", "?", "[ab]"} {
		shards, err := r.Shards(ctx, name, 1)
		if err != nil {
			t.Fatalf("Unexpected error when listing %q: %s", name, err)
		}
		assert.Empty(shards, "blob %q matches no other blob", name)
	}

	shards, err := r.Shards(ctx, "a:1", 2)
	require.NoError(t, err)
	assert.Equal([]blueprint.Shard{{Index: 7, Data: []byte("other")}}, shards)
}
