package codec

import (
	"strings"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

type page struct {
	URL    string    `json:"url" cbor:"url" msgpack:"url"`
	Body   []byte    `json:"body" cbor:"body" msgpack:"body"`
	Stored time.Time `json:"stored" cbor:"stored" msgpack:"stored"`
}

func TestByNameRoundTrip(t *testing.T) {
	in := page{URL: "/dashboard", Body: []byte("<html>ok</html>"), Stored: time.Unix(1700000000, 0).UTC()}
	for _, name := range []string{"", NameCBOR, NameMsgpack, NameJSON} {
		c, err := ByName[page](name, 0)
		if err != nil {
			t.Fatalf("ByName(%q): %v", name, err)
		}
		b, err := c.Encode(in)
		if err != nil {
			t.Fatalf("%q encode: %v", name, err)
		}
		out, err := c.Decode(b)
		if err != nil {
			t.Fatalf("%q decode: %v", name, err)
		}
		if out.URL != in.URL || string(out.Body) != string(in.Body) || !out.Stored.Equal(in.Stored) {
			t.Fatalf("%q mismatch: got %+v want %+v", name, out, in)
		}
	}
}

func TestMsgpackCompactInts(t *testing.T) {
	type status struct {
		Code int `msgpack:"c"`
	}
	b, err := Msgpack[status]{}.Encode(status{Code: 200})
	if err != nil {
		t.Fatal(err)
	}
	// fixmap(1) + fixstr "c" + uint8 200
	if len(b) != 5 {
		t.Fatalf("encoded %d bytes (%x), want 5", len(b), b)
	}
	out, err := Msgpack[status]{}.Decode(b)
	if err != nil || out.Code != 200 {
		t.Fatalf("decode = %+v, %v", out, err)
	}
}

func TestByNameUnknown(t *testing.T) {
	if _, err := ByName[page]("gob", 0); err == nil {
		t.Fatalf("expected error for unknown codec")
	}
}

func TestLimitRejectsOversized(t *testing.T) {
	c, err := ByName[page](NameJSON, 16)
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(page{URL: strings.Repeat("x", 64)})
	if err != nil {
		t.Fatalf("encode must not be limited: %v", err)
	}
	if _, err := c.Decode(b); err == nil {
		t.Fatalf("expected decode to reject %d bytes", len(b))
	}
}

func TestProtobufStruct(t *testing.T) {
	c := NewProtobuf(func() *structpb.Struct { return &structpb.Struct{} })
	in, err := structpb.NewStruct(map[string]any{"title": "Buy milk", "done": false})
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.Encode(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decode(b)
	if err != nil {
		t.Fatal(err)
	}
	if !proto.Equal(in, out) {
		t.Fatalf("protobuf mismatch: got %v want %v", out, in)
	}
}
