package protos

import (
	"fmt"

	"google.golang.org/grpc/encoding"
)

// CodecName is the gRPC content subtype the services are served under.
const CodecName = "blobshard"

func init() {
	encoding.RegisterCodec(Codec{})
}

// Codec encodes Message values in the protobuf wire format.
type Codec struct{}

func (Codec) Marshal(v any) ([]byte, error) {
	m, ok := v.(Message)
	if !ok {
		return nil, fmt.Errorf("protos: cannot marshal %T", v)
	}
	return m.MarshalWire(nil), nil
}

func (Codec) Unmarshal(data []byte, v any) error {
	m, ok := v.(Message)
	if !ok {
		return fmt.Errorf("protos: cannot unmarshal into %T", v)
	}
	return m.UnmarshalWire(data)
}

func (Codec) Name() string { return CodecName }
