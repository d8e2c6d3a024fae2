package core

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	blobmemory "datacore/internal/infra/blob/memory"
	"datacore/pkg/domain"
)

func TestAttachFileToPrivateLatest(t *testing.T) {
	blobs := blobmemory.New()
	f := newFixture(t, WithBlobStore(blobs))
	alice := creatorOf("user-1")
	v := f.mustCreate(t, alice, "title")

	file, out, err := f.svc.AttachFile(context.Background(), v.VersionID(),
		File{Name: "readings.csv", ContentType: "text/csv"},
		strings.NewReader("a,b\n1,2\n"), alice)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}
	if out.Status != OutcomeCommitted {
		t.Fatalf("outcome = %s", out.Status)
	}
	if file.Size != int64(len("a,b\n1,2\n")) || file.Checksum == "" {
		t.Fatalf("unexpected record %+v", file)
	}

	stored, err := f.svc.GetFile(context.Background(), v.VersionID(), file.ID, alice)
	if err != nil {
		t.Fatalf("get file: %v", err)
	}
	if stored.Name != "readings.csv" || stored.StorageKey != file.StorageKey {
		t.Fatalf("unexpected stored record %+v", stored)
	}

	info, rc, err := f.svc.FileContent(context.Background(), v.VersionID(), file.ID, alice)
	if err != nil {
		t.Fatalf("content: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != "a,b\n1,2\n" || info.Size != file.Size {
		t.Fatalf("content = %q size = %d", data, info.Size)
	}
}

func TestAttachFileRequiresPrivateState(t *testing.T) {
	f := newFixture(t, WithBlobStore(blobmemory.New()))
	alice := creatorOf("user-1")
	published := f.mustPublish(t, alice, f.mustCreate(t, alice, "title"))

	_, _, err := f.svc.AttachFile(context.Background(), published.VersionID(),
		File{Name: "late.csv"}, strings.NewReader("x"), alice)
	var serr domain.InvalidStateError
	if !errors.As(err, &serr) {
		t.Fatalf("error = %v, want InvalidStateError", err)
	}
}

func TestAttachFileByStrangerIsDenied(t *testing.T) {
	f := newFixture(t, WithBlobStore(blobmemory.New()))
	v := f.mustCreate(t, creatorOf("user-1"), "title")

	_, _, err := f.svc.AttachFile(context.Background(), v.VersionID(),
		File{Name: "x.bin"}, strings.NewReader("x"), creatorOf("user-2"))
	var aerr domain.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("error = %v, want AuthorizationError", err)
	}
}

func TestAttachFileRejectsBlankName(t *testing.T) {
	f := newFixture(t, WithBlobStore(blobmemory.New()))
	alice := creatorOf("user-1")
	v := f.mustCreate(t, alice, "title")

	_, _, err := f.svc.AttachFile(context.Background(), v.VersionID(),
		File{Name: "  "}, strings.NewReader("x"), alice)
	var verr domain.ValidationError
	if !errors.As(err, &verr) || verr.Field != "name" {
		t.Fatalf("error = %v, want ValidationError on name", err)
	}
}

func TestFileReadFollowsVersionAccess(t *testing.T) {
	f := newFixture(t, WithBlobStore(blobmemory.New()))
	alice := creatorOf("user-1")
	v := f.mustCreate(t, alice, "title")
	file, _, err := f.svc.AttachFile(context.Background(), v.VersionID(),
		File{Name: "data.bin"}, strings.NewReader("payload"), alice)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	_, err = f.svc.GetFile(context.Background(), v.VersionID(), file.ID, creatorOf("user-2"))
	var aerr domain.AuthorizationError
	if !errors.As(err, &aerr) {
		t.Fatalf("stranger error = %v, want AuthorizationError", err)
	}

	token, err := f.svc.CreateReviewToken(context.Background(), v.DatasetID, alice)
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	files, err := f.svc.ListFiles(context.Background(), v.VersionID(), Principal{ReviewToken: token.Token})
	if err != nil || len(files) != 1 {
		t.Fatalf("token list = %d files, err=%v", len(files), err)
	}
}

func TestDeleteVersionRemovesFiles(t *testing.T) {
	blobs := blobmemory.New()
	f := newFixture(t, WithBlobStore(blobs))
	alice := creatorOf("user-1")
	v := f.mustCreate(t, alice, "title")
	file, _, err := f.svc.AttachFile(context.Background(), v.VersionID(),
		File{Name: "data.bin"}, strings.NewReader("payload"), alice)
	if err != nil {
		t.Fatalf("attach: %v", err)
	}

	current, _ := f.store.GetVersion(v.VersionID())
	if _, err := f.svc.Delete(context.Background(), v.VersionID(), current.Dataset.ModifiedAt, alice); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := f.store.GetFile(file.ID); ok {
		t.Fatal("file record survived version delete")
	}
	if _, err := blobs.Head(context.Background(), file.StorageKey); err == nil {
		t.Fatal("blob survived version delete")
	}
}

func TestGetFileUnknownID(t *testing.T) {
	f := newFixture(t, WithBlobStore(blobmemory.New()))
	alice := creatorOf("user-1")
	v := f.mustCreate(t, alice, "title")

	_, err := f.svc.GetFile(context.Background(), v.VersionID(), "missing", alice)
	var nferr domain.NotFoundError
	if !errors.As(err, &nferr) {
		t.Fatalf("error = %v, want NotFoundError", err)
	}
}
