package offsync

import (
	"context"
	"fmt"

	c "github.com/unkn0wn-root/offsync/codec"
)

// Data stores typed values in a bucket through PutData/GetData, for state the
// page wants offline outside the request path (last-seen habit streaks, a
// draft form). Any codec works, including codec.Protobuf.
type Data[V any] struct {
	cache Cache
	codec c.Codec[V]
}

func NewData[V any](cache Cache, codec c.Codec[V]) *Data[V] {
	return &Data[V]{cache: cache, codec: codec}
}

func (d *Data[V]) Put(ctx context.Context, key string, v V) error {
	b, err := d.codec.Encode(v)
	if err != nil {
		return fmt.Errorf("offsync: encode %q: %w", key, err)
	}
	return d.cache.PutData(ctx, key, b)
}

// Get misses (ok=false, err=nil) on absent keys and on values that no longer
// decode with this codec.
func (d *Data[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V
	b, ok, err := d.cache.GetData(ctx, key)
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := d.codec.Decode(b)
	if err != nil {
		return zero, false, nil
	}
	return v, true, nil
}
