package commitment

import (
	"fmt"
	"hash"

	"github.com/minio/sha256-simd"
	"github.com/zeebo/blake3"
)

// Hasher is the hash primitive applied to leaves and interior nodes alike.
// Its digest must be DigestSize bytes.
type Hasher struct {
	Name string
	New  func() hash.Hash
}

// SHA256 is the default primitive. It is the hash EIP-4844 uses for versioned blob hashes.
var SHA256 = Hasher{Name: "sha256", New: sha256.New}

// BLAKE3 selects 32-byte BLAKE3.
var BLAKE3 = Hasher{Name: "blake3", New: func() hash.Hash { return blake3.New() }}

// HasherByName resolves a configured primitive. An empty name selects SHA256.
func HasherByName(name string) (Hasher, error) {
	switch name {
	case "", SHA256.Name:
		return SHA256, nil
	case BLAKE3.Name:
		return BLAKE3, nil
	default:
		return Hasher{}, fmt.Errorf("unknown commitment hash %q", name)
	}
}

func (h Hasher) check() error {
	if h.New == nil {
		return fmt.Errorf("commitment: hasher %q has no constructor", h.Name)
	}
	if size := h.New().Size(); size != DigestSize {
		return fmt.Errorf("commitment: hasher %q produces %d-byte digests, want %d", h.Name, size, DigestSize)
	}
	return nil
}
