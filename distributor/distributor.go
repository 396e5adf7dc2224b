// Package distributor assigns shards to storage nodes and fans the resulting deliveries
// out to live subscribers.
//
// Fan-out is not durable. A subscriber only sees deliveries published after it
// subscribed, and a subscriber that falls more than its queue capacity behind loses the
// overflow. The publisher never waits for a subscriber.
package distributor

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// DefaultQueueCapacity is the per-subscription queue bound.
const DefaultQueueCapacity = 1000

// ErrClosed is returned by Publish after Close.
var ErrClosed = errors.New("distributor: hub closed")

// Assign picks one uniformly random destination per shard from the online roster.
// Every shard is sent to exactly one node. Nodes may receive several shards or none.
func Assign(shards [][]byte, blobName string, online []blueprint.NodeID, rng *rand.Rand) ([]blueprint.Delivery, error) {
	if len(online) == 0 {
		return nil, fmt.Errorf("%w: no storage node online", blueprint.ErrInvalidParameters)
	}
	if err := blueprint.ValidateBlobName(blobName); err != nil {
		return nil, err
	}
	if len(shards) > blueprint.MaxTotalShards {
		return nil, fmt.Errorf("%w: %d shards exceed %d", blueprint.ErrInvalidParameters, len(shards), blueprint.MaxTotalShards)
	}
	pick := rand.Intn
	if rng != nil {
		pick = rng.Intn
	}
	deliveries := make([]blueprint.Delivery, len(shards))
	for i, shard := range shards {
		deliveries[i] = blueprint.Delivery{
			NodeID:   online[pick(len(online))],
			Index:    uint32(i),
			Data:     shard,
			BlobName: blobName,
		}
	}
	return deliveries, nil
}

// Subscription is one registered consumer of a Hub.
type Subscription struct {
	ID     uuid.UUID
	NodeID blueprint.NodeID

	ch   chan blueprint.Delivery
	hub  *Hub
	once sync.Once
}

// C yields deliveries in publish order. It is closed by Close or when the hub closes.
func (s *Subscription) C() <-chan blueprint.Delivery {
	return s.ch
}

// Close unregisters the subscription. It is safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub is a bounded, non-blocking broadcaster of deliveries.
type Hub struct {
	logger   *zap.Logger
	capacity int

	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscription
	closed bool
}

// NewHub creates a hub whose subscriptions buffer up to capacity deliveries.
// A capacity below 1 selects DefaultQueueCapacity.
func NewHub(capacity int, logger *zap.Logger) *Hub {
	if capacity < 1 {
		capacity = DefaultQueueCapacity
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger.With(zap.String("module", "distributor")),
		capacity: capacity,
		subs:     make(map[uuid.UUID]*Subscription),
	}
}

// Subscribe registers a consumer for deliveries addressed to nodeID.
// blueprint.AllNodes receives every delivery.
func (h *Hub) Subscribe(nodeID blueprint.NodeID) *Subscription {
	sub := &Subscription{
		ID:     uuid.New(),
		NodeID: nodeID,
		ch:     make(chan blueprint.Delivery, h.capacity),
		hub:    h,
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		sub.once.Do(func() { close(sub.ch) })
		return sub
	}
	h.subs[sub.ID] = sub
	subscribers.Inc()
	h.logger.Info("subscriber registered", zap.Stringer("subscription", sub.ID), zap.Uint32("node", uint32(nodeID)))
	return sub
}

// Publish offers every delivery to every matching subscriber without blocking.
// It returns the number of deliveries that were dropped on full queues.
func (h *Hub) Publish(ctx context.Context, deliveries []blueprint.Delivery) (int, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		return 0, ErrClosed
	}
	dropped := 0
	for _, d := range deliveries {
		if err := ctx.Err(); err != nil {
			return dropped, err
		}
		for _, sub := range h.subs {
			if sub.NodeID != blueprint.AllNodes && sub.NodeID != d.NodeID {
				continue
			}
			select {
			case sub.ch <- d:
				publishedTotal.Inc()
			default:
				dropped++
				droppedTotal.Inc()
				h.logger.Warn("subscriber queue full, dropping delivery",
					zap.Stringer("subscription", sub.ID),
					zap.Uint32("node", uint32(d.NodeID)),
					zap.String("blob", d.BlobName),
					zap.Uint32("index", d.Index))
			}
		}
	}
	return dropped, nil
}

// Close unregisters and closes every subscription. Later Publish calls fail with ErrClosed.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, sub := range h.subs {
		delete(h.subs, id)
		sub.once.Do(func() { close(sub.ch) })
		subscribers.Dec()
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subs[sub.ID]; ok {
		delete(h.subs, sub.ID)
		subscribers.Dec()
		h.logger.Info("subscriber removed", zap.Stringer("subscription", sub.ID))
	}
	sub.once.Do(func() { close(sub.ch) })
}

// Subscribers returns the number of registered subscriptions.
func (h *Hub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}
