package blueprint

import "fmt"

// SymbolSize is the granularity of the GF(2^8) code in bytes. Shard sizes are multiples of it.
const SymbolSize int = 1

// Params is the single coding configuration shared by encoder, decoder, distributor and retriever.
type Params struct {
	DataShards     int `json:"data_shards" yaml:"data_shards"`
	ParityShards   int `json:"parity_shards" yaml:"parity_shards"`
	ShardSize      int `json:"shard_size" yaml:"shard_size"`
	OriginalLength int `json:"original_length" yaml:"original_length"`
}

// NewParams builds validated Params for a blob of the given length.
// A zero shardSize is derived as ceil(length/dataShards) rounded up to SymbolSize.
func NewParams(length, dataShards, parityShards, shardSize int) (Params, error) {
	p := Params{
		DataShards:     dataShards,
		ParityShards:   parityShards,
		ShardSize:      shardSize,
		OriginalLength: length,
	}
	if dataShards >= 1 && shardSize == 0 {
		p.ShardSize = roundUp((length+dataShards-1)/dataShards, SymbolSize)
	}
	if err := p.Validate(); err != nil {
		return Params{}, err
	}
	return p, nil
}

// Validate checks every bound of the coding configuration.
func (p Params) Validate() error {
	switch {
	case p.DataShards < 1:
		return fmt.Errorf("%w: data shards %d < 1", ErrInvalidParameters, p.DataShards)
	case p.ParityShards < 1:
		return fmt.Errorf("%w: parity shards %d < 1", ErrInvalidParameters, p.ParityShards)
	case p.TotalShards() > MaxTotalShards:
		return fmt.Errorf("%w: %d total shards exceed %d", ErrInvalidParameters, p.TotalShards(), MaxTotalShards)
	case p.OriginalLength <= 0:
		return fmt.Errorf("%w: blob length %d", ErrInvalidParameters, p.OriginalLength)
	case p.ShardSize <= 0 || p.ShardSize%SymbolSize != 0:
		return fmt.Errorf("%w: shard size %d", ErrInvalidParameters, p.ShardSize)
	case p.ShardSize*p.DataShards < p.OriginalLength:
		return fmt.Errorf("%w: %d data shards of %d bytes cannot hold %d bytes",
			ErrInvalidParameters, p.DataShards, p.ShardSize, p.OriginalLength)
	}
	return nil
}

// TotalShards is DataShards + ParityShards.
func (p Params) TotalShards() int {
	return p.DataShards + p.ParityShards
}

func roundUp(n, multiple int) int {
	if n%multiple == 0 {
		return n
	}
	return n + multiple - n%multiple
}
