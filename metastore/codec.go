package metastore

import "github.com/fxamacker/cbor/v2"

// encMode writes Core Deterministic CBOR, so a record always encodes to the same bytes.
var encMode cbor.EncMode

var decMode cbor.DecMode

func init() {
	var err error
	encOptions := cbor.CoreDetEncOptions()
	encOptions.Time = cbor.TimeRFC3339Nano
	encMode, err = encOptions.EncMode()
	if err != nil {
		panic("metastore: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("metastore: CBOR decoder initialization failed: " + err.Error())
	}
}

func marshal(v any) ([]byte, error) {
	return encMode.Marshal(v)
}

func unmarshal(data []byte, v any) error {
	return decMode.Unmarshal(data, v)
}
