// Package feed provides ChainFeed implementations: an in-memory channel and an HTTP
// endpoint that pushes into it.
package feed

import (
	"context"
	"errors"
	"sync"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// ErrClosed is returned when pushing into a closed Channel.
var ErrClosed = errors.New("feed: closed")

// Channel is an in-memory blueprint.ChainFeed. Events are delivered in push order.
type Channel struct {
	ch     chan blueprint.FeedEvent
	mu     sync.RWMutex
	closed bool
}

func NewChannel(capacity int) *Channel {
	if capacity < 0 {
		capacity = 0
	}
	return &Channel{ch: make(chan blueprint.FeedEvent, capacity)}
}

func (c *Channel) Events() <-chan blueprint.FeedEvent {
	return c.ch
}

// Commit pushes a Committed event carrying blobs. It blocks while the channel is full.
func (c *Channel) Commit(ctx context.Context, blobs ...blueprint.Sidecar) error {
	return c.push(ctx, blueprint.FeedEvent{Kind: blueprint.Committed, Blobs: blobs})
}

func (c *Channel) Reorg(ctx context.Context) error {
	return c.push(ctx, blueprint.FeedEvent{Kind: blueprint.Reorged})
}

func (c *Channel) Revert(ctx context.Context) error {
	return c.push(ctx, blueprint.FeedEvent{Kind: blueprint.Reverted})
}

func (c *Channel) push(ctx context.Context, ev blueprint.FeedEvent) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the feed. Pushes blocked on a full channel must return before it does.
func (c *Channel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
}
