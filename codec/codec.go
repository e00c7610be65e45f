// Package codec turns cached values into bytes and back.
//
// The cache bucket stores offsync.Snapshot values through a Codec; page-side
// data helpers (offsync.Data) accept any Codec, including Protobuf for typed
// messages.
package codec

import "fmt"

// Codec encodes/decodes values V to []byte for storage.
type Codec[V any] interface {
	Encode(V) ([]byte, error)
	Decode([]byte) (V, error)
}

// Names accepted by ByName.
const (
	NameCBOR    = "cbor"
	NameMsgpack = "msgpack"
	NameJSON    = "json"
)

// ByName returns the codec registered under name. An empty name selects CBOR.
// maxDecode > 0 wraps the result in a Limit codec.
func ByName[V any](name string, maxDecode int) (Codec[V], error) {
	var inner Codec[V]
	switch name {
	case "", NameCBOR:
		cb, err := NewCBOR[V](false)
		if err != nil {
			return nil, err
		}
		inner = cb
	case NameMsgpack:
		inner = Msgpack[V]{}
	case NameJSON:
		inner = JSON[V]{}
	default:
		return nil, fmt.Errorf("codec: unknown codec %q", name)
	}
	if maxDecode > 0 {
		return Limit[V]{Inner: inner, MaxDecode: maxDecode}, nil
	}
	return inner, nil
}
