// Package sequencer turns committed blobs into shard deliveries: it encodes each blob,
// builds its commitment, records the metadata and publishes the shards to storage nodes.
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
	"github.com/KelvinWu602/blobshard/distributor"
	"github.com/KelvinWu602/blobshard/erasure"
	"github.com/KelvinWu602/blobshard/metastore"
)

// Index is where blob metadata is kept. *metastore.Store implements it.
type Index interface {
	Put(ctx context.Context, rec metastore.BlobRecord) error
	Get(ctx context.Context, blobName string) (metastore.BlobRecord, error)
	Delete(ctx context.Context, blobName string) error
}

// Coding is the coding template applied to every blob. A zero ShardSize is derived
// from the blob length.
type Coding struct {
	DataShards   int
	ParityShards int
	ShardSize    int
}

type Options struct {
	Coding Coding
	Hasher commitment.Hasher
	// QueueCapacity bounds blobs waiting for the ingest worker.
	QueueCapacity int
	// Seed makes shard assignment reproducible. Zero seeds from the clock.
	Seed   int64
	Logger *zap.Logger
}

type Sequencer struct {
	coding   Coding
	hasher   commitment.Hasher
	capacity int
	index    Index
	hub      *distributor.Hub
	roster   *Roster
	logger   *zap.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func New(index Index, hub *distributor.Hub, roster *Roster, opts Options) (*Sequencer, error) {
	if index == nil || hub == nil || roster == nil {
		return nil, fmt.Errorf("%w: sequencer needs an index, a hub and a roster", blueprint.ErrInvalidParameters)
	}
	if opts.Hasher.New == nil {
		opts.Hasher = commitment.SHA256
	}
	if opts.QueueCapacity < 1 {
		opts.QueueCapacity = distributor.DefaultQueueCapacity
	}
	if opts.Seed == 0 {
		opts.Seed = time.Now().UnixNano()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Sequencer{
		coding:   opts.Coding,
		hasher:   opts.Hasher,
		capacity: opts.QueueCapacity,
		index:    index,
		hub:      hub,
		roster:   roster,
		logger:   opts.Logger.With(zap.String("module", "sequencer")),
		rng:      rand.New(rand.NewSource(opts.Seed)),
	}, nil
}

func (s *Sequencer) Hub() *distributor.Hub { return s.hub }

func (s *Sequencer) Roster() *Roster { return s.roster }

// Record returns the metadata of an ingested blob.
func (s *Sequencer) Record(ctx context.Context, blobName string) (metastore.BlobRecord, error) {
	return s.index.Get(ctx, blobName)
}

// Ingest encodes blob, commits to its shards, stores the record and publishes one
// delivery per shard to the online roster. Nothing is recorded when no node is online,
// and the record is removed again if publishing fails.
func (s *Sequencer) Ingest(ctx context.Context, id blueprint.BlobID, blob []byte) (*metastore.BlobRecord, error) {
	name := id.String()
	params, err := blueprint.NewParams(len(blob), s.coding.DataShards, s.coding.ParityShards, s.coding.ShardSize)
	if err != nil {
		return nil, err
	}
	shards, err := erasure.Encode(blob, params)
	if err != nil {
		return nil, err
	}
	tree, err := commitment.Build(shards, s.hasher)
	if err != nil {
		return nil, err
	}
	rec := metastore.BlobRecord{
		BlobName:      name,
		VersionedHash: id.VersionedHash(),
		Root:          tree.Root(),
		Params:        params,
		HashName:      s.hasher.Name,
		CreatedAt:     time.Now().UTC(),
	}

	s.rngMu.Lock()
	deliveries, err := distributor.Assign(shards, name, s.roster.Online(), s.rng)
	s.rngMu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := s.index.Put(ctx, rec); err != nil {
		return nil, fmt.Errorf("recording %s: %w", name, err)
	}
	dropped, err := s.hub.Publish(ctx, deliveries)
	if err != nil {
		// a blob that was not distributed keeps no record
		if derr := s.index.Delete(context.WithoutCancel(ctx), name); derr != nil {
			s.logger.Warn("failed to remove record of unpublished blob", zap.String("blob", name), zap.Error(derr))
		}
		return nil, fmt.Errorf("publishing %s: %w", name, err)
	}
	s.logger.Info("blob published",
		zap.String("blob", name),
		zap.Stringer("root", rec.Root),
		zap.Int("shards", len(deliveries)),
		zap.Int("dropped", dropped))
	return &rec, nil
}

type job struct {
	ctx     context.Context
	sidecar blueprint.Sidecar
}

// Run consumes feed until it closes or ctx ends. Committed blobs are ingested in order by
// a single worker. A Reorged or Reverted event cancels every blob that is queued or
// being ingested at that moment.
func (s *Sequencer) Run(ctx context.Context, feed blueprint.ChainFeed) error {
	genCtx, genCancel := context.WithCancel(ctx)
	defer func() { genCancel() }()

	// the worker drains what is queued before Run returns
	queue := make(chan job, s.capacity)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.worker(queue)
	}()
	defer func() {
		close(queue)
		wg.Wait()
	}()

	events := feed.Events()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("gracefully stopped feed loop")
			return nil
		case ev, ok := <-events:
			if !ok {
				s.logger.Info("chain feed closed")
				return nil
			}
			switch ev.Kind {
			case blueprint.Committed:
				for _, sc := range ev.Blobs {
					select {
					case queue <- job{ctx: genCtx, sidecar: sc}:
					case <-ctx.Done():
						return nil
					}
				}
			case blueprint.Reorged, blueprint.Reverted:
				s.logger.Warn("cancelling in-flight ingestion", zap.Stringer("event", ev.Kind))
				genCancel()
				genCtx, genCancel = context.WithCancel(ctx)
			}
		}
	}
}

func (s *Sequencer) worker(queue <-chan job) {
	for j := range queue {
		name := j.sidecar.Commitment.String()
		if j.ctx.Err() != nil {
			cancelledTotal.Inc()
			s.logger.Info("skipping cancelled blob", zap.String("blob", name))
			continue
		}
		_, err := s.Ingest(j.ctx, j.sidecar.Commitment, j.sidecar.Data)
		switch {
		case err == nil:
			ingestedTotal.Inc()
		case errors.Is(err, context.Canceled):
			cancelledTotal.Inc()
			s.logger.Info("blob cancelled while ingesting", zap.String("blob", name))
		default:
			ingestErrorsTotal.Inc()
			s.logger.Error("failed to ingest blob", zap.String("blob", name), zap.Error(err))
		}
	}
}
