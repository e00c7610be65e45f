package wire

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	cases := []struct {
		kind    byte
		gen     string
		payload []byte
	}{
		{KindResponse, "app-cache-v1.0.0", nil},
		{KindResponse, "app-cache-v1.0.1", []byte("<html></html>")},
		{KindData, "g", []byte{0, 1, 2, 3}},
	}
	for _, tc := range cases {
		enc := Encode(tc.kind, tc.gen, tc.payload)
		kind, gen, p, err := Decode(enc)
		if err != nil {
			t.Fatalf("Decode: %v", err)
		}
		if kind != tc.kind || gen != tc.gen {
			t.Fatalf("header mismatch: got (%d,%q) want (%d,%q)", kind, gen, tc.kind, tc.gen)
		}
		if !bytes.Equal(p, tc.payload) {
			t.Fatalf("payload mismatch: got %x want %x", p, tc.payload)
		}
	}
}

func TestRejectsTrailingBytes(t *testing.T) {
	enc := Encode(KindResponse, "v1", []byte("x"))
	enc = append(enc, 0xDE, 0xAD)
	if _, _, _, err := Decode(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestRejectsCorruptHeaders(t *testing.T) {
	enc := Encode(KindResponse, "v1", []byte("abc"))

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, _, _, err := Decode(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, _, _, err := Decode(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = 9
	if _, _, _, err := Decode(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// name length pointing past the buffer
	badName := append([]byte(nil), enc...)
	binary.BigEndian.PutUint16(badName[6:8], 0xFFFF)
	if _, _, _, err := Decode(badName); err == nil {
		t.Fatalf("expected error on oversized name length")
	}

	if _, _, _, err := Decode(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated payload")
	}
}

func TestEncodePanicsOnEmptyGeneration(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Fatalf("expected panic")
		}
	}()
	_ = Encode(KindData, "", nil)
}

func TestForeignBytesAreCorrupt(t *testing.T) {
	if _, _, _, err := Decode([]byte(strings.Repeat("z", 32))); err == nil {
		t.Fatalf("expected error on foreign bytes")
	}
}
