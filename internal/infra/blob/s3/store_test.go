package s3

import (
	"context"
	"io"
	"strings"
	"testing"

	"datacore/internal/blob/core"
)

func TestMockPutGetRoundTrip(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	key := core.FileKey("ds-1", 1, "f-1")

	info, err := store.Put(ctx, key, strings.NewReader("content"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("content")) {
		t.Fatalf("unexpected size %d", info.Size)
	}

	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "content" {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ContentType != "text/plain" {
		t.Fatalf("content type lost: %+v", got)
	}

	if _, err := store.Put(ctx, key, strings.NewReader("other"), core.PutOptions{}); err == nil {
		t.Fatal("put must refuse existing keys")
	}
}

func TestMockListByPrefix(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()

	for _, id := range []string{"f-1", "f-2"} {
		if _, err := store.Put(ctx, core.FileKey("ds-1", 1, id), strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, err := store.Put(ctx, core.FileKey("ds-2", 1, "f-3"), strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	infos, err := store.List(ctx, core.VersionPrefix("ds-1", 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 objects, got %d", len(infos))
	}
}

func TestMockDeleteAndHead(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	key := core.FileKey("ds-1", 1, "f-1")

	if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Head(ctx, key); err != nil {
		t.Fatalf("head: %v", err)
	}
	if _, err := store.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Head(ctx, key); err == nil {
		t.Fatal("head after delete should fail")
	}
}

func TestPresignProducesURL(t *testing.T) {
	store := NewMockForTests()
	u, err := store.PresignURL(context.Background(), "datasets/ds-1/1/f-1", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "mock-bucket") {
		t.Fatalf("unexpected url %q", u)
	}
	if _, err := store.PresignURL(context.Background(), "k", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatal("PUT presign should be unsupported")
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatal("expected bucket requirement error")
	}
}
