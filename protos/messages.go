// Package protos holds the wire messages and gRPC service descriptors of blobshard.
//
// Messages are encoded in the protobuf wire format and travel under the "blobshard"
// codec, so clients must call with grpc.CallContentSubtype(protos.CodecName) or use the
// clients in this package, which do so. blobshard.proto describes the same messages and
// services.
package protos

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every wire message.
type Message interface {
	// MarshalWire appends the wire encoding of the message to b.
	MarshalWire(b []byte) []byte
	// UnmarshalWire resets the message and decodes b into it.
	UnmarshalWire(b []byte) error
}

// BlobChunk carries one shard from the sequencer to a storage node, or from a storage
// node to a retriever.
type BlobChunk struct {
	NodeId     uint32
	ChunkIndex uint32
	Chunk      []byte
	Name       string
}

func (m *BlobChunk) MarshalWire(b []byte) []byte {
	b = appendVarint(b, 1, uint64(m.NodeId))
	b = appendVarint(b, 2, uint64(m.ChunkIndex))
	b = appendBytes(b, 3, m.Chunk)
	b = appendString(b, 4, m.Name)
	return b
}

func (m *BlobChunk) UnmarshalWire(b []byte) error {
	*m = BlobChunk{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			return setUint32(&m.NodeId, typ, v)
		case 2:
			return setUint32(&m.ChunkIndex, typ, v)
		case 3:
			return setBytes(&m.Chunk, typ, raw)
		case 4:
			return setString(&m.Name, typ, raw)
		}
		return nil
	})
}

type SubscribeRequest struct {
	NodeId uint32
}

func (m *SubscribeRequest) MarshalWire(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.NodeId))
}

func (m *SubscribeRequest) UnmarshalWire(b []byte) error {
	*m = SubscribeRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		if num == 1 {
			return setUint32(&m.NodeId, typ, v)
		}
		return nil
	})
}

type NodeOnlineRequest struct {
	NodeId uint32
}

func (m *NodeOnlineRequest) MarshalWire(b []byte) []byte {
	return appendVarint(b, 1, uint64(m.NodeId))
}

func (m *NodeOnlineRequest) UnmarshalWire(b []byte) error {
	*m = NodeOnlineRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, _ []byte) error {
		if num == 1 {
			return setUint32(&m.NodeId, typ, v)
		}
		return nil
	})
}

type NodeOnlineResponse struct {
	Message string
}

func (m *NodeOnlineResponse) MarshalWire(b []byte) []byte {
	return appendString(b, 1, m.Message)
}

func (m *NodeOnlineResponse) UnmarshalWire(b []byte) error {
	*m = NodeOnlineResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if num == 1 {
			return setString(&m.Message, typ, raw)
		}
		return nil
	})
}

type FetchShardsRequest struct {
	BlobName string
}

func (m *FetchShardsRequest) MarshalWire(b []byte) []byte {
	return appendString(b, 1, m.BlobName)
}

func (m *FetchShardsRequest) UnmarshalWire(b []byte) error {
	*m = FetchShardsRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if num == 1 {
			return setString(&m.BlobName, typ, raw)
		}
		return nil
	})
}

type BlobInfoRequest struct {
	BlobName string
}

func (m *BlobInfoRequest) MarshalWire(b []byte) []byte {
	return appendString(b, 1, m.BlobName)
}

func (m *BlobInfoRequest) UnmarshalWire(b []byte) error {
	*m = BlobInfoRequest{}
	return walk(b, func(num protowire.Number, typ protowire.Type, _ uint64, raw []byte) error {
		if num == 1 {
			return setString(&m.BlobName, typ, raw)
		}
		return nil
	})
}

// BlobInfoResponse is what a reconstruction needs to know about a blob.
type BlobInfoResponse struct {
	BlobName       string
	Root           []byte
	DataShards     uint32
	ParityShards   uint32
	ShardSize      uint32
	OriginalLength uint64
	VersionedHash  []byte
	Hash           string
}

func (m *BlobInfoResponse) MarshalWire(b []byte) []byte {
	b = appendString(b, 1, m.BlobName)
	b = appendBytes(b, 2, m.Root)
	b = appendVarint(b, 3, uint64(m.DataShards))
	b = appendVarint(b, 4, uint64(m.ParityShards))
	b = appendVarint(b, 5, uint64(m.ShardSize))
	b = appendVarint(b, 6, m.OriginalLength)
	b = appendBytes(b, 7, m.VersionedHash)
	b = appendString(b, 8, m.Hash)
	return b
}

func (m *BlobInfoResponse) UnmarshalWire(b []byte) error {
	*m = BlobInfoResponse{}
	return walk(b, func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error {
		switch num {
		case 1:
			return setString(&m.BlobName, typ, raw)
		case 2:
			return setBytes(&m.Root, typ, raw)
		case 3:
			return setUint32(&m.DataShards, typ, v)
		case 4:
			return setUint32(&m.ParityShards, typ, v)
		case 5:
			return setUint32(&m.ShardSize, typ, v)
		case 6:
			if typ != protowire.VarintType {
				return fmt.Errorf("field 6: wire type %d", typ)
			}
			m.OriginalLength = v
		case 7:
			return setBytes(&m.VersionedHash, typ, raw)
		case 8:
			return setString(&m.Hash, typ, raw)
		}
		return nil
	})
}

// Proto3 omits fields holding their zero value.

func appendVarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

// walk visits every field of b. Varint fields arrive in v, length-delimited ones in raw.
// Unknown fields are skipped.
func walk(b []byte, visit func(num protowire.Number, typ protowire.Type, v uint64, raw []byte) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		var v uint64
		var raw []byte
		switch typ {
		case protowire.VarintType:
			v, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			raw, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]
		if typ != protowire.VarintType && typ != protowire.BytesType {
			continue
		}
		if err := visit(num, typ, v, raw); err != nil {
			return err
		}
	}
	return nil
}

func setUint32(dst *uint32, typ protowire.Type, v uint64) error {
	if typ != protowire.VarintType {
		return fmt.Errorf("expected varint, got wire type %d", typ)
	}
	*dst = uint32(v)
	return nil
}

func setBytes(dst *[]byte, typ protowire.Type, raw []byte) error {
	if typ != protowire.BytesType {
		return fmt.Errorf("expected bytes, got wire type %d", typ)
	}
	*dst = append([]byte(nil), raw...)
	return nil
}

func setString(dst *string, typ protowire.Type, raw []byte) error {
	if typ != protowire.BytesType {
		return fmt.Errorf("expected bytes, got wire type %d", typ)
	}
	*dst = string(raw)
	return nil
}
