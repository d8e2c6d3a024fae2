// Package fs stores blobs as files under a root directory. Object keys map
// to relative paths; descriptive attributes live in a JSON sidecar next to
// each payload so a plain directory copy moves the store intact.
package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"datacore/internal/blob/core"
)

const (
	defaultRoot   = "./filedata"
	sidecarSuffix = ".attrs"
)

// Store is a filesystem-backed blob store. Writes land in a temp file and are
// renamed into place; concurrent writers beyond per-key creation are not
// coordinated.
type Store struct {
	root string
}

// New opens a store rooted at dir, creating the directory when absent. An
// empty dir falls back to ./filedata.
func New(dir string) (*Store, error) {
	if dir == "" {
		dir = defaultRoot
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &Store{root: dir}, nil
}

func (s *Store) Driver() core.Driver { return core.DriverFilesystem }

// sidecar carries the attributes the filesystem cannot.
type sidecar struct {
	ContentType string            `json:"content_type,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	ETag        string            `json:"etag"`
	Size        int64             `json:"size_bytes"`
	StoredAt    time.Time         `json:"stored_at"`
}

// Put streams r into a temp file while hashing it, then renames the result
// under the key. Existing keys are refused.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts core.PutOptions) (core.Info, error) {
	payloadPath, attrsPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	if _, err := os.Stat(payloadPath); err == nil {
		return core.Info{}, fmt.Errorf("put %s: %w", key, core.ErrExists)
	}
	if err := os.MkdirAll(filepath.Dir(payloadPath), 0o755); err != nil {
		return core.Info{}, err
	}

	tmp, err := os.CreateTemp(filepath.Dir(payloadPath), ".partial-*")
	if err != nil {
		return core.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err != nil {
		_ = tmp.Close()
		return core.Info{}, fmt.Errorf("write %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return core.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return core.Info{}, err
	}
	if err := os.Rename(tmp.Name(), payloadPath); err != nil {
		return core.Info{}, err
	}

	attrs := sidecar{
		ContentType: opts.ContentType,
		Metadata:    copyMeta(opts.Metadata),
		ETag:        hex.EncodeToString(digest.Sum(nil)),
		Size:        size,
		StoredAt:    time.Now().UTC(),
	}
	if err := writeSidecar(attrsPath, attrs); err != nil {
		return core.Info{}, err
	}
	return s.infoFrom(key, attrs), nil
}

// Get opens the payload and reads the sidecar. The returned reader is the
// open file handle; the caller closes it.
func (s *Store) Get(_ context.Context, key string) (core.Info, io.ReadCloser, error) {
	payloadPath, attrsPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, nil, err
	}
	file, err := os.Open(payloadPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, nil, fmt.Errorf("get %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, nil, err
	}
	attrs, err := readSidecar(attrsPath)
	if err != nil {
		_ = file.Close()
		return core.Info{}, nil, err
	}
	return s.infoFrom(key, attrs), file, nil
}

// Head reads the sidecar only.
func (s *Store) Head(_ context.Context, key string) (core.Info, error) {
	_, attrsPath, err := s.resolve(key)
	if err != nil {
		return core.Info{}, err
	}
	attrs, err := readSidecar(attrsPath)
	if errors.Is(err, fs.ErrNotExist) {
		return core.Info{}, fmt.Errorf("head %s: %w", key, core.ErrNotFound)
	}
	if err != nil {
		return core.Info{}, err
	}
	return s.infoFrom(key, attrs), nil
}

// Delete removes payload and sidecar, reporting whether the key existed.
func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	payloadPath, attrsPath, err := s.resolve(key)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(payloadPath); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err := os.Remove(payloadPath); err != nil {
		return false, err
	}
	_ = os.Remove(attrsPath)
	return true, nil
}

// List walks the tree collecting sidecars whose key carries the prefix.
func (s *Store) List(_ context.Context, prefix string) ([]core.Info, error) {
	var out []core.Info
	walk := func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() || !strings.HasSuffix(path, sidecarSuffix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, strings.TrimSuffix(path, sidecarSuffix))
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		attrs, err := readSidecar(path)
		if err != nil {
			return err
		}
		out = append(out, s.infoFrom(key, attrs))
		return nil
	}
	if err := filepath.WalkDir(s.root, walk); err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL returns a development URL. Only GET is supported.
func (s *Store) PresignURL(_ context.Context, key string, opts core.SignedURLOptions) (string, error) {
	if opts.Method != "" && !strings.EqualFold(opts.Method, "GET") {
		return "", core.ErrUnsupported
	}
	return s.localURL(key), nil
}

// resolve validates the key and maps it to payload and sidecar paths. Keys
// must stay inside the root: no blanks, no absolute paths, no traversal.
func (s *Store) resolve(key string) (payloadPath, attrsPath string, err error) {
	if strings.TrimSpace(key) == "" {
		return "", "", errors.New("blob key must not be blank")
	}
	if strings.HasPrefix(key, "/") || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("blob key %q escapes the store root", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if strings.HasPrefix(clean, "..") {
		return "", "", fmt.Errorf("blob key %q escapes the store root", key)
	}
	payloadPath = filepath.Join(s.root, clean)
	return payloadPath, payloadPath + sidecarSuffix, nil
}

func (s *Store) infoFrom(key string, attrs sidecar) core.Info {
	return core.Info{
		Key:          key,
		Size:         attrs.Size,
		ContentType:  attrs.ContentType,
		ETag:         attrs.ETag,
		Metadata:     copyMeta(attrs.Metadata),
		LastModified: attrs.StoredAt,
		URL:          s.localURL(key),
	}
}

func (s *Store) localURL(key string) string {
	return (&url.URL{Scheme: "http", Host: "local.blob", Path: "/" + key}).String()
}

func writeSidecar(path string, attrs sidecar) error {
	payload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	return os.WriteFile(path, payload, 0o644)
}

func readSidecar(path string) (sidecar, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return sidecar{}, err
	}
	var attrs sidecar
	if err := json.Unmarshal(payload, &attrs); err != nil {
		return sidecar{}, fmt.Errorf("decode sidecar %s: %w", path, err)
	}
	return attrs, nil
}

func copyMeta(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
