// Package wire frames values written to a cache provider.
//
// Every value carries the name of the bucket (cache generation) it was written
// for. A reader that finds a different name treats the value as foreign and
// deletes it, so a provider shared between processes can never serve a value
// from a superseded generation even if the eviction pass missed a key.
package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// MaxGenerationLen is the longest generation name Encode accepts.
const MaxGenerationLen = 0xFFFF

const (
	version      byte = 1
	KindResponse byte = 1
	KindData     byte = 2
)

var (
	ErrCorrupt = errors.New("offsync: corrupt entry")
	magic4     = [...]byte{'O', 'F', 'S', 'C'}
)

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// Entry: magic(4) | ver(1) | kind(1) | nameLen(u16 be) | name | vlen(u32 be) | payload(vlen)
func Encode(kind byte, generation string, payload []byte) []byte {
	if l := len(generation); l == 0 || l > MaxGenerationLen {
		panic("offsync: invalid generation name length")
	}
	var buf bytes.Buffer
	buf.Grow(4 + 1 + 1 + 2 + len(generation) + 4 + len(payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kind)

	var u2 [2]byte
	var u4 [4]byte

	binary.BigEndian.PutUint16(u2[:], uint16(len(generation)))
	buf.Write(u2[:])
	buf.WriteString(generation)

	binary.BigEndian.PutUint32(u4[:], uint32(len(payload)))
	buf.Write(u4[:])

	buf.Write(payload)
	return buf.Bytes()
}

// Decode validates the frame and returns its parts. Trailing bytes are corruption.
func Decode(b []byte) (kind byte, generation string, payload []byte, err error) {
	const hdr = 4 + 1 + 1 + 2
	if len(b) < hdr || !hasMagic(b) || b[4] != version {
		return 0, "", nil, ErrCorrupt
	}
	kind = b[5]
	if kind != KindResponse && kind != KindData {
		return 0, "", nil, ErrCorrupt
	}
	off := 6

	nlen := int(binary.BigEndian.Uint16(b[off : off+2]))
	off += 2
	if nlen == 0 || nlen > len(b)-off {
		return 0, "", nil, ErrCorrupt
	}
	generation = string(b[off : off+nlen])
	off += nlen

	if off+4 > len(b) {
		return 0, "", nil, ErrCorrupt
	}
	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return 0, "", nil, ErrCorrupt
	}
	return kind, generation, b[off : off+vlen], nil
}
