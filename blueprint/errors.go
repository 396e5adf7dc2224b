package blueprint

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidParameters reports a coding configuration outside its bounds.
	ErrInvalidParameters = errors.New("invalid parameters")
	// ErrInsufficientShards reports fewer distinct shards than DataShards.
	ErrInsufficientShards = errors.New("insufficient shards")
	// ErrReconstructionMismatch reports a supplied parity shard that disagrees with its recomputation.
	ErrReconstructionMismatch = errors.New("reconstruction mismatch")
	// ErrCommitmentMismatch reports a reconstructed blob whose root differs from the expected commitment.
	ErrCommitmentMismatch = errors.New("commitment mismatch")
	// ErrTransport reports an unreachable node or a broken stream.
	ErrTransport = errors.New("transport error")
	// ErrNodeStorage reports a local read or write failure on a storage node.
	ErrNodeStorage = errors.New("node storage error")
)

// InsufficientShardsError carries the counts behind ErrInsufficientShards.
type InsufficientShardsError struct {
	Present  int
	Required int
	// Cause is set when collection stopped early, e.g. on session timeout.
	Cause error
}

func (e *InsufficientShardsError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("insufficient shards: have %d, need %d: %v", e.Present, e.Required, e.Cause)
	}
	return fmt.Sprintf("insufficient shards: have %d, need %d", e.Present, e.Required)
}

func (e *InsufficientShardsError) Unwrap() []error {
	if e.Cause != nil {
		return []error{ErrInsufficientShards, e.Cause}
	}
	return []error{ErrInsufficientShards}
}
