package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"datacore/internal/blob/core"
)

func TestPutGetRoundTrip(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := core.FileKey("ds-1", 1, "f-1")

	info, err := store.Put(ctx, key, strings.NewReader("hello"), core.PutOptions{ContentType: "text/plain"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ContentType != "text/plain" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "hello" {
		t.Fatalf("unexpected body %q", body)
	}
	if got.Key != key {
		t.Fatalf("unexpected key %q", got.Key)
	}

	if _, err := store.Put(ctx, key, strings.NewReader("again"), core.PutOptions{}); err == nil {
		t.Fatal("put must refuse existing keys")
	}
}

func TestListByVersionPrefix(t *testing.T) {
	store := New()
	ctx := context.Background()
	for _, id := range []string{"f-1", "f-2"} {
		if _, err := store.Put(ctx, core.FileKey("ds-1", 1, id), strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	if _, err := store.Put(ctx, core.FileKey("ds-1", 2, "f-3"), strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}

	infos, err := store.List(ctx, core.VersionPrefix("ds-1", 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 files for version 1, got %d", len(infos))
	}
}

func TestDeleteAndHead(t *testing.T) {
	store := New()
	ctx := context.Background()
	key := core.FileKey("ds-1", 1, "f-1")

	if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if _, err := store.Head(ctx, key); err != nil {
		t.Fatalf("head: %v", err)
	}

	existed, err := store.Delete(ctx, key)
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, key)
	if err != nil || existed {
		t.Fatalf("second delete should report missing: existed=%v err=%v", existed, err)
	}
	if _, err := store.Head(ctx, key); err == nil {
		t.Fatal("head after delete should fail")
	}
}

func TestPresignUnsupported(t *testing.T) {
	if _, err := New().PresignURL(context.Background(), "k", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected ErrUnsupported, got %v", err)
	}
}
