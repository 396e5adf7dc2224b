// Package retriever gathers shards of one blob from many storage nodes at once and
// decodes the blob as soon as enough distinct shards have arrived.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/KelvinWu602/blobshard/blueprint"
	"github.com/KelvinWu602/blobshard/commitment"
	"github.com/KelvinWu602/blobshard/erasure"
)

// DefaultTimeout bounds a whole retrieval session.
const DefaultTimeout = 30 * time.Second

// ShardStream yields the shards a node holds for one blob, then io.EOF.
type ShardStream interface {
	Recv() (blueprint.Shard, error)
}

// NodeClient is the retrieval side of one storage node.
//
// Retrieve returns as soon as enough shards arrived or the session timed out, without
// waiting for the remaining fetches. Streams returned by FetchShards must therefore
// end Recv with an error once ctx is cancelled, otherwise their goroutines outlive the
// session. gRPC client streams already behave this way.
type NodeClient interface {
	ID() blueprint.NodeID
	FetchShards(ctx context.Context, blobName string) (ShardStream, error)
}

// Options tunes a Retriever. The zero value is usable.
type Options struct {
	Timeout time.Duration
	// Hasher is used to rebuild the commitment. It defaults to commitment.SHA256.
	Hasher commitment.Hasher
	Logger *zap.Logger
}

type Retriever struct {
	timeout time.Duration
	hasher  commitment.Hasher
	logger  *zap.Logger
}

func New(opts Options) *Retriever {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Hasher.New == nil {
		opts.Hasher = commitment.SHA256
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Retriever{
		timeout: opts.Timeout,
		hasher:  opts.Hasher,
		logger:  opts.Logger.With(zap.String("module", "retriever")),
	}
}

// session is the transient state of one Retrieve call.
type session struct {
	id     uuid.UUID
	params blueprint.Params
	logger *zap.Logger

	mu     sync.Mutex
	shards map[uint32][]byte
	enough chan struct{}
	once   sync.Once
}

// add keeps the first copy of every index and signals once DataShards distinct
// indices are present.
func (s *session) add(index uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.shards[index]; dup {
		return
	}
	s.shards[index] = data
	if len(s.shards) >= s.params.DataShards {
		s.once.Do(func() { close(s.enough) })
	}
}

func (s *session) snapshot() map[uint32][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[uint32][]byte, len(s.shards))
	for index, data := range s.shards {
		out[index] = data
	}
	return out
}

// Retrieve fetches shards of blobName from every node concurrently, decodes the blob and,
// when expected is non-nil, checks the rebuilt commitment against it.
//
// Node failures are logged and excluded. Collection stops when DataShards distinct shards
// are present, when every node has finished or failed, or when the session times out.
func (r *Retriever) Retrieve(ctx context.Context, blobName string, nodes []NodeClient, params blueprint.Params, expected *commitment.Digest) ([]byte, error) {
	if err := blueprint.ValidateBlobName(blobName); err != nil {
		return nil, err
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()
	defer func() { retrievalDuration.Observe(time.Since(start).Seconds()) }()

	sess := &session{
		id:     uuid.New(),
		params: params,
		shards: make(map[uint32][]byte, params.DataShards),
		enough: make(chan struct{}),
	}
	sess.logger = r.logger.With(zap.Stringer("session", sess.id), zap.String("blob", blobName))
	sess.logger.Info("retrieval started", zap.Int("nodes", len(nodes)), zap.Int("need", params.DataShards))

	sessionCtx, cancelSession := context.WithTimeout(ctx, r.timeout)
	defer cancelSession()
	fetchCtx, cancelFetch := context.WithCancel(sessionCtx)
	defer cancelFetch()

	var wg sync.WaitGroup
	for _, n := range nodes {
		wg.Add(1)
		go func(n NodeClient) {
			defer wg.Done()
			r.fetch(fetchCtx, sess, n, blobName)
		}(n)
	}
	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	var cause error
	select {
	case <-sess.enough:
	case <-allDone:
	case <-sessionCtx.Done():
		cause = sessionCtx.Err()
	}
	// outstanding fetches are no longer needed
	cancelFetch()

	shards := sess.snapshot()
	if len(shards) < params.DataShards {
		retrievalsTotal.WithLabelValues("insufficient").Inc()
		err := &blueprint.InsufficientShardsError{Present: len(shards), Required: params.DataShards, Cause: cause}
		sess.logger.Warn("retrieval failed", zap.Error(err))
		return nil, err
	}

	blob, err := erasure.Decode(shards, params)
	if err != nil {
		retrievalsTotal.WithLabelValues("decode_error").Inc()
		return nil, fmt.Errorf("decoding %s: %w", blobName, err)
	}
	if expected != nil {
		if err := r.checkCommitment(blob, params, *expected); err != nil {
			retrievalsTotal.WithLabelValues("commitment_mismatch").Inc()
			sess.logger.Warn("retrieval failed", zap.Error(err))
			return nil, err
		}
	}
	retrievalsTotal.WithLabelValues("ok").Inc()
	sess.logger.Info("retrieval finished", zap.Int("shards", len(shards)), zap.Duration("took", time.Since(start)))
	return blob, nil
}

func (r *Retriever) fetch(ctx context.Context, sess *session, n NodeClient, blobName string) {
	logger := sess.logger.With(zap.Uint32("node", uint32(n.ID())))
	stream, err := n.FetchShards(ctx, blobName)
	if err != nil {
		if ctx.Err() == nil {
			nodeFailuresTotal.Inc()
			logger.Warn("node unreachable, excluding it", zap.Error(err))
		}
		return
	}
	total := uint32(sess.params.TotalShards())
	received := 0
	for {
		shard, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			logger.Debug("node finished", zap.Int("shards", received))
			return
		}
		if err != nil {
			if ctx.Err() == nil {
				nodeFailuresTotal.Inc()
				logger.Warn("node stream failed, excluding the rest of it", zap.Int("shards", received), zap.Error(err))
			}
			return
		}
		if shard.Index >= total || len(shard.Data) != sess.params.ShardSize {
			discardedShardsTotal.Inc()
			logger.Warn("discarding malformed shard", zap.Uint32("index", shard.Index), zap.Int("size", len(shard.Data)))
			continue
		}
		received++
		sess.add(shard.Index, shard.Data)
	}
}

// checkCommitment re-encodes blob with the same params and compares the rebuilt root.
func (r *Retriever) checkCommitment(blob []byte, params blueprint.Params, expected commitment.Digest) error {
	shards, err := erasure.Encode(blob, params)
	if err != nil {
		return fmt.Errorf("re-encoding: %w", err)
	}
	tree, err := commitment.Build(shards, r.hasher)
	if err != nil {
		return fmt.Errorf("rebuilding commitment: %w", err)
	}
	if root := tree.Root(); root != expected {
		return fmt.Errorf("%w: got %s, want %s", blueprint.ErrCommitmentMismatch, root, expected)
	}
	return nil
}
