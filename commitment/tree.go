// Package commitment builds the Merkle commitment over a shard set and the
// membership proofs that tie a single shard to it.
//
// Leaves are H(0x00 || shard) and interior nodes are H(0x01 || left || right), with the
// same primitive H throughout. When a level has an odd number of digests the last one is
// duplicated before pairing. The combiner must be a cryptographic hash: an additive or
// otherwise linear combiner lets anyone forge shards that verify.
package commitment

import (
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"strings"
)

// DigestSize is the size of every leaf, node and root digest.
const DigestSize = 32

const (
	leafPrefix byte = 0x00
	nodePrefix byte = 0x01
)

// Digest is a leaf, interior node or root of the tree. The root is the Commitment.
type Digest [DigestSize]byte

// String returns the hex wire form.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// ParseDigest parses the hex wire form, with or without a 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return d, fmt.Errorf("parsing digest: %w", err)
	}
	if len(raw) != DigestSize {
		return d, fmt.Errorf("digest is %d bytes, want %d", len(raw), DigestSize)
	}
	copy(d[:], raw)
	return d, nil
}

// Side is the position of a sibling relative to the running digest.
type Side uint8

const (
	Left Side = iota
	Right
)

// PathNode is one step of a membership proof.
type PathNode struct {
	Sibling Digest
	Side    Side
}

// Tree holds every level of the tree, leaves first.
type Tree struct {
	hasher Hasher
	levels [][]Digest
}

var errEmptyShardSet = errors.New("commitment: empty shard set")

// Build hashes every shard into a leaf and folds the levels up to a single root.
func Build(shards [][]byte, hasher Hasher) (*Tree, error) {
	if len(shards) == 0 {
		return nil, errEmptyShardSet
	}
	if err := hasher.check(); err != nil {
		return nil, err
	}
	h := hasher.New()
	leaves := make([]Digest, len(shards))
	for i, shard := range shards {
		leaves[i] = sum(h, leafPrefix, shard)
	}
	levels := [][]Digest{leaves}
	for level := leaves; len(level) > 1; {
		next := make([]Digest, (len(level)+1)/2)
		for i := range next {
			left := level[2*i]
			right := left
			if 2*i+1 < len(level) {
				right = level[2*i+1]
			}
			next[i] = combine(h, left, right)
		}
		levels = append(levels, next)
		level = next
	}
	return &Tree{hasher: hasher, levels: levels}, nil
}

// Root returns the commitment.
func (t *Tree) Root() Digest {
	return t.levels[len(t.levels)-1][0]
}

// Leaves returns a copy of the leaf digests in shard order.
func (t *Tree) Leaves() []Digest {
	return append([]Digest(nil), t.levels[0]...)
}

// Path returns the siblings needed to recompute the root from leaf index, bottom-up.
func (t *Tree) Path(index int) ([]PathNode, error) {
	if index < 0 || index >= len(t.levels[0]) {
		return nil, fmt.Errorf("commitment: leaf index %d out of range [0,%d)", index, len(t.levels[0]))
	}
	path := make([]PathNode, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		if index%2 == 0 {
			sibling := level[index]
			if index+1 < len(level) {
				sibling = level[index+1]
			}
			path = append(path, PathNode{Sibling: sibling, Side: Right})
		} else {
			path = append(path, PathNode{Sibling: level[index-1], Side: Left})
		}
		index /= 2
	}
	return path, nil
}

// LeafDigest hashes a single shard the way Build does.
func LeafDigest(hasher Hasher, shard []byte) Digest {
	return sum(hasher.New(), leafPrefix, shard)
}

// Verify recomputes the root from a leaf digest and its path and compares it with root.
func Verify(hasher Hasher, leaf Digest, path []PathNode, root Digest) bool {
	if hasher.check() != nil {
		return false
	}
	h := hasher.New()
	running := leaf
	for _, step := range path {
		switch step.Side {
		case Left:
			running = combine(h, step.Sibling, running)
		case Right:
			running = combine(h, running, step.Sibling)
		default:
			return false
		}
	}
	return running == root
}

func combine(h hash.Hash, left, right Digest) Digest {
	var buf [2 * DigestSize]byte
	copy(buf[:DigestSize], left[:])
	copy(buf[DigestSize:], right[:])
	return sum(h, nodePrefix, buf[:])
}

func sum(h hash.Hash, prefix byte, data []byte) Digest {
	h.Reset()
	h.Write([]byte{prefix})
	h.Write(data)
	var d Digest
	h.Sum(d[:0])
	return d
}
