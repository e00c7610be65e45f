package ristretto

import (
	"bytes"
	"context"
	"testing"
)

func TestSetIsVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	p, err := New(DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close(ctx)

	ok, err := p.Set(ctx, "bucket:v1:GET /", []byte("home"), 4, 0)
	if err != nil || !ok {
		t.Fatalf("Set ok=%v err=%v", ok, err)
	}
	got, hit, err := p.Get(ctx, "bucket:v1:GET /")
	if err != nil || !hit || !bytes.Equal(got, []byte("home")) {
		t.Fatalf("Get hit=%v err=%v got=%q", hit, err, got)
	}
	if err := p.Del(ctx, "bucket:v1:GET /"); err != nil {
		t.Fatal(err)
	}
	if _, hit, _ := p.Get(ctx, "bucket:v1:GET /"); hit {
		t.Fatalf("expected miss after Del")
	}
}

func TestInvalidConfig(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatalf("expected error for zero config")
	}
}
