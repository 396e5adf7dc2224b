package distributor

import (
	"context"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KelvinWu602/blobshard/blueprint"
)

const testBlob = "0xabcdef"

func makeShards(n int) [][]byte {
	shards := make([][]byte, n)
	for i := range shards {
		shards[i] = []byte(fmt.Sprintf("shard-%d", i))
	}
	return shards
}

func drain(sub *Subscription) []blueprint.Delivery {
	var got []blueprint.Delivery
	for {
		select {
		case d, ok := <-sub.C():
			if !ok {
				return got
			}
			got = append(got, d)
		default:
			return got
		}
	}
}

// go test -run TestAssign -v
func TestAssign(t *testing.T) {
	assert := assert.New(t)
	online := []blueprint.NodeID{1, 2, 3}
	deliveries, err := Assign(makeShards(160), testBlob, online, rand.New(rand.NewSource(1)))
	if err != nil {
		t.Fatalf("Unexpected error when assigning shards: %s", err)
	}
	assert.Len(deliveries, 160)
	seen := make(map[blueprint.NodeID]int)
	for i, d := range deliveries {
		assert.Equal(uint32(i), d.Index)
		assert.Equal(testBlob, d.BlobName)
		assert.Contains(online, d.NodeID)
		seen[d.NodeID]++
	}
	// with 160 draws every node is hit
	assert.Len(seen, 3)

	again, err := Assign(makeShards(160), testBlob, online, rand.New(rand.NewSource(1)))
	require.NoError(t, err)
	assert.Equal(deliveries, again, "same seed, same assignment")
}

func TestAssignErrors(t *testing.T) {
	_, err := Assign(makeShards(4), testBlob, nil, nil)
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)

	_, err = Assign(makeShards(4), "bad_name", []blueprint.NodeID{1}, nil)
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)

	_, err = Assign(makeShards(256), testBlob, []blueprint.NodeID{1}, nil)
	assert.ErrorIs(t, err, blueprint.ErrInvalidParameters)
}

// go test -run TestSubscribersReceiveTheirDeliveriesInOrder -v
func TestSubscribersReceiveTheirDeliveriesInOrder(t *testing.T) {
	hub := NewHub(0, nil)
	defer hub.Close()

	subs := map[blueprint.NodeID]*Subscription{
		1: hub.Subscribe(1),
		2: hub.Subscribe(2),
		3: hub.Subscribe(3),
	}
	all := hub.Subscribe(blueprint.AllNodes)

	deliveries, err := Assign(makeShards(100), testBlob, []blueprint.NodeID{1, 2, 3}, rand.New(rand.NewSource(5)))
	require.NoError(t, err)
	dropped, err := hub.Publish(context.Background(), deliveries)
	require.NoError(t, err)
	assert.Zero(t, dropped)

	for id, sub := range subs {
		var want []blueprint.Delivery
		for _, d := range deliveries {
			if d.NodeID == id {
				want = append(want, d)
			}
		}
		assert.Equal(t, want, drain(sub), "node %d", id)
	}
	assert.Equal(t, deliveries, drain(all))
}

func TestLateSubscriberReceivesNothing(t *testing.T) {
	hub := NewHub(10, nil)
	defer hub.Close()

	deliveries, err := Assign(makeShards(5), testBlob, []blueprint.NodeID{1}, nil)
	require.NoError(t, err)
	_, err = hub.Publish(context.Background(), deliveries)
	require.NoError(t, err)

	late := hub.Subscribe(1)
	assert.Empty(t, drain(late))
}

// go test -run TestOverflowDropsWithoutBlocking -v
func TestOverflowDropsWithoutBlocking(t *testing.T) {
	hub := NewHub(3, nil)
	defer hub.Close()

	slow := hub.Subscribe(1)
	fast := hub.Subscribe(2)

	var deliveries []blueprint.Delivery
	for i := 0; i < 5; i++ {
		deliveries = append(deliveries,
			blueprint.Delivery{NodeID: 1, Index: uint32(2 * i), BlobName: testBlob},
			blueprint.Delivery{NodeID: 2, Index: uint32(2*i + 1), BlobName: testBlob})
	}

	done := make(chan int)
	go func() {
		// the first batch fills both queues exactly; only node 2 is drained before the second
		dropped, err := hub.Publish(context.Background(), deliveries[:6])
		assert.NoError(t, err)
		got := drain(fast)
		assert.Len(t, got, 3)
		more, err := hub.Publish(context.Background(), deliveries[6:])
		assert.NoError(t, err)
		done <- dropped + more
	}()

	select {
	case dropped := <-done:
		// node 1 overflowed by two, node 2 never did
		assert.Equal(t, 2, dropped)
	case <-time.After(5 * time.Second):
		t.Fatal("Publish blocked on a full subscriber queue")
	}

	gotSlow := drain(slow)
	require.Len(t, gotSlow, 3)
	assert.Equal(t, []uint32{0, 2, 4}, []uint32{gotSlow[0].Index, gotSlow[1].Index, gotSlow[2].Index})
	gotFast := drain(fast)
	require.Len(t, gotFast, 2)
	assert.Equal(t, uint32(7), gotFast[0].Index)
	assert.Equal(t, uint32(9), gotFast[1].Index)
}

func TestCloseSemantics(t *testing.T) {
	hub := NewHub(1, nil)
	sub := hub.Subscribe(1)
	sub.Close()
	sub.Close()
	_, ok := <-sub.C()
	assert.False(t, ok, "closed subscription channel must be closed")

	other := hub.Subscribe(2)
	hub.Close()
	hub.Close()
	_, ok = <-other.C()
	assert.False(t, ok)

	_, err := hub.Publish(context.Background(), []blueprint.Delivery{{NodeID: 2}})
	assert.ErrorIs(t, err, ErrClosed)

	afterClose := hub.Subscribe(3)
	_, ok = <-afterClose.C()
	assert.False(t, ok)
	afterClose.Close()
}

func TestPublishHonoursContext(t *testing.T) {
	hub := NewHub(10, nil)
	defer hub.Close()
	sub := hub.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := hub.Publish(ctx, []blueprint.Delivery{{NodeID: 1, BlobName: testBlob}})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, drain(sub))
}
