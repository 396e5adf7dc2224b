// Package erasure encodes blobs into systematic Reed-Solomon shard sets over GF(2^8)
// and decodes them back from any DataShards-sized subset.
package erasure

import (
	"bytes"
	"fmt"

	rs "github.com/klauspost/reedsolomon"

	"github.com/KelvinWu602/blobshard/blueprint"
)

// Encode zero-pads blob to DataShards*ShardSize bytes, splits it into the systematic
// shards and fills ParityShards parity shards. The returned shards do not alias blob.
func Encode(blob []byte, params blueprint.Params) ([][]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	if len(blob) != params.OriginalLength {
		return nil, fmt.Errorf("%w: blob is %d bytes, params say %d",
			blueprint.ErrInvalidParameters, len(blob), params.OriginalLength)
	}
	enc, err := newEncoder(params)
	if err != nil {
		return nil, err
	}
	shards := newShards(params)
	for i := 0; i < params.DataShards; i++ {
		start := i * params.ShardSize
		if start >= len(blob) {
			break
		}
		copy(shards[i], blob[start:min(start+params.ShardSize, len(blob))])
	}
	if err := enc.Encode(shards); err != nil {
		return nil, fmt.Errorf("reedsolomon encode: %w", err)
	}
	return shards, nil
}

// EncodeBlob derives Params from the blob length and encodes it. A zero shardSize
// is derived as ceil(len(blob)/dataShards).
func EncodeBlob(blob []byte, dataShards, parityShards, shardSize int) ([][]byte, blueprint.Params, error) {
	params, err := blueprint.NewParams(len(blob), dataShards, parityShards, shardSize)
	if err != nil {
		return nil, blueprint.Params{}, err
	}
	shards, err := Encode(blob, params)
	if err != nil {
		return nil, blueprint.Params{}, err
	}
	return shards, params, nil
}

// Decode rebuilds the original blob from a sparse shard map.
//
// At least DataShards distinct entries must be present. Every supplied parity shard is
// checked against its recomputation from the solved systematic shards.
func Decode(sparse map[uint32][]byte, params blueprint.Params) ([]byte, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	total := params.TotalShards()
	shards := make([][]byte, total)
	present := 0
	for index, data := range sparse {
		if data == nil {
			continue
		}
		if int(index) >= total {
			return nil, fmt.Errorf("%w: shard index %d out of range [0,%d)",
				blueprint.ErrInvalidParameters, index, total)
		}
		if len(data) != params.ShardSize {
			return nil, fmt.Errorf("%w: shard %d is %d bytes, want %d",
				blueprint.ErrInvalidParameters, index, len(data), params.ShardSize)
		}
		// copy so that reconstruction never writes into caller buffers
		shards[index] = bytes.Clone(data)
		present++
	}
	if present < params.DataShards {
		return nil, &blueprint.InsufficientShardsError{Present: present, Required: params.DataShards}
	}

	enc, err := newEncoder(params)
	if err != nil {
		return nil, err
	}
	if err := enc.ReconstructData(shards); err != nil {
		return nil, fmt.Errorf("reedsolomon reconstruct: %w", err)
	}
	if err := checkParity(enc, shards, params); err != nil {
		return nil, err
	}

	out := make([]byte, 0, params.DataShards*params.ShardSize)
	for _, shard := range shards[:params.DataShards] {
		out = append(out, shard...)
	}
	return out[:params.OriginalLength], nil
}

// checkParity recomputes all parity shards from the systematic ones and compares them
// with the parity shards the caller supplied.
func checkParity(enc rs.Encoder, shards [][]byte, params blueprint.Params) error {
	supplied := false
	for _, shard := range shards[params.DataShards:] {
		if shard != nil {
			supplied = true
			break
		}
	}
	if !supplied {
		return nil
	}
	full := newShards(params)
	copy(full, shards[:params.DataShards])
	if err := enc.Encode(full); err != nil {
		return fmt.Errorf("reedsolomon encode: %w", err)
	}
	for i := params.DataShards; i < params.TotalShards(); i++ {
		if shards[i] != nil && !bytes.Equal(shards[i], full[i]) {
			return fmt.Errorf("%w: parity shard %d", blueprint.ErrReconstructionMismatch, i)
		}
	}
	return nil
}

func newEncoder(params blueprint.Params) (rs.Encoder, error) {
	// the total is bounded by 255 in Params.Validate, so the GF(2^8) codec is always chosen
	enc, err := rs.New(params.DataShards, params.ParityShards)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", blueprint.ErrInvalidParameters, err)
	}
	return enc, nil
}

func newShards(params blueprint.Params) [][]byte {
	shards := make([][]byte, params.TotalShards())
	for i := range shards {
		shards[i] = make([]byte, params.ShardSize)
	}
	return shards
}
