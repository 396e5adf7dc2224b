package blueprint

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto/kzg4844"
	"github.com/minio/sha256-simd"
)

// BlobIDSize is the length of a compressed KZG commitment.
const BlobIDSize int = 48

// BlobID is the commitment a blob is identified by. It is treated as an opaque value.
type BlobID kzg4844.Commitment

// ParseBlobID parses the hex form of a commitment, with or without the 0x prefix.
func ParseBlobID(s string) (BlobID, error) {
	var id BlobID
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	raw, err := hexutil.Decode(s)
	if err != nil {
		return id, fmt.Errorf("%w: blob id: %v", ErrInvalidParameters, err)
	}
	if len(raw) != BlobIDSize {
		return id, fmt.Errorf("%w: blob id is %d bytes, want %d", ErrInvalidParameters, len(raw), BlobIDSize)
	}
	copy(id[:], raw)
	return id, nil
}

// String returns the 0x-prefixed lowercase hex form. It is also the blob name used on disk.
func (id BlobID) String() string {
	return hexutil.Encode(id[:])
}

// VersionedHash returns the EIP-4844 versioned hash of the commitment.
func (id BlobID) VersionedHash() [32]byte {
	c := kzg4844.Commitment(id)
	return kzg4844.CalcBlobHashV1(sha256.New(), &c)
}

// ChunkFileName returns the file name a storage node uses for one shard.
func ChunkFileName(blobName string, nodeID NodeID, index uint32) string {
	return fmt.Sprintf("chunk_%s_%d_%d.bin", blobName, nodeID, index)
}

// ParseChunkFileName is the inverse of ChunkFileName.
// Blob names never contain '_', so the last two fields are unambiguous.
func ParseChunkFileName(name string) (blobName string, nodeID NodeID, index uint32, ok bool) {
	if !strings.HasPrefix(name, "chunk_") || !strings.HasSuffix(name, ".bin") {
		return "", 0, 0, false
	}
	fields := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, "chunk_"), ".bin"), "_")
	if len(fields) != 3 || fields[0] == "" {
		return "", 0, 0, false
	}
	n, err := strconv.ParseUint(fields[1], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	i, err := strconv.ParseUint(fields[2], 10, 32)
	if err != nil {
		return "", 0, 0, false
	}
	return fields[0], NodeID(n), uint32(i), true
}

// ValidateBlobName rejects names that cannot be embedded in a chunk file name.
func ValidateBlobName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty blob name", ErrInvalidParameters)
	}
	if strings.ContainsAny(name, "_/\\") {
		return fmt.Errorf("%w: blob name %q contains a reserved character", ErrInvalidParameters, name)
	}
	return nil
}
