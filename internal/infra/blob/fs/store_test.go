package fs

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"datacore/internal/blob/core"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return store
}

func TestPutComputesDigestAndRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	key := core.FileKey("ds-1", 1, "f-1")

	info, err := store.Put(ctx, key, strings.NewReader("payload"), core.PutOptions{ContentType: "text/plain", Metadata: map[string]string{"name": "data.csv"}})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != int64(len("payload")) || info.ETag == "" {
		t.Fatalf("unexpected info: %+v", info)
	}

	got, rc, err := store.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if string(body) != "payload" {
		t.Fatalf("unexpected body %q", body)
	}
	if got.ETag != info.ETag || got.Metadata["name"] != "data.csv" {
		t.Fatalf("metadata lost on read: %+v", got)
	}

	if _, err := store.Put(ctx, key, strings.NewReader("other"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("second put error = %v, want ErrExists", err)
	}
	if _, _, err := store.Get(ctx, core.FileKey("ds-1", 1, "missing")); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("missing get error = %v, want ErrNotFound", err)
	}
}

func TestSanitizeKeyRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, key := range []string{"", "../escape", "/absolute", "a/../../b"} {
		if _, err := store.Put(ctx, key, strings.NewReader("x"), core.PutOptions{}); err == nil {
			t.Fatalf("key %q should be rejected", key)
		}
	}
}

func TestListAndDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"f-1", "f-2"} {
		if _, err := store.Put(ctx, core.FileKey("ds-1", 1, id), strings.NewReader("x"), core.PutOptions{}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}

	infos, err := store.List(ctx, core.VersionPrefix("ds-1", 1))
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(infos))
	}

	existed, err := store.Delete(ctx, core.FileKey("ds-1", 1, "f-1"))
	if err != nil || !existed {
		t.Fatalf("delete: existed=%v err=%v", existed, err)
	}
	existed, err = store.Delete(ctx, core.FileKey("ds-1", 1, "f-1"))
	if err != nil || existed {
		t.Fatalf("repeat delete should report missing: existed=%v err=%v", existed, err)
	}
	infos, _ = store.List(ctx, core.VersionPrefix("ds-1", 1))
	if len(infos) != 1 {
		t.Fatalf("expected 1 entry after delete, got %d", len(infos))
	}
}

func TestPresignURLOnlyGet(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	u, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{})
	if err != nil {
		t.Fatalf("presign: %v", err)
	}
	if !strings.Contains(u, "some/key") {
		t.Fatalf("unexpected url %q", u)
	}
	if _, err := store.PresignURL(ctx, "some/key", core.SignedURLOptions{Method: "PUT"}); err == nil {
		t.Fatal("PUT presign should be unsupported")
	}
}
