package core

import (
	"context"
	"io"
	"strings"
	"time"

	"datacore/internal/auth"
	blobcore "datacore/internal/blob/core"
	"datacore/pkg/domain"
)

// AttachFile stores content in the blob backend and registers a file record
// on the latest, private version. The blob write happens first so a failed
// transaction leaves at worst an orphan blob, never a dangling record.
func (s *Service) AttachFile(ctx context.Context, id VersionID, file File, r io.Reader, p Principal) (File, Outcome, error) {
	started := time.Now()
	op := auth.OpUpdate

	if s.blobs == nil {
		return File{}, Outcome{}, s.fail(op, started, domain.TechnicalError{Op: "core.attach", Err: blobcore.ErrUnsupported})
	}
	if strings.TrimSpace(file.Name) == "" {
		return File{}, Outcome{}, s.fail(op, started, domain.ValidationError{Field: "name", Reason: "file name must not be blank"})
	}

	latest, ok := s.store.LatestVersion(id.DatasetID)
	if !ok {
		return File{}, Outcome{}, s.fail(op, started, domain.NotFoundError{Entity: domain.EntityDataset, ID: id.DatasetID})
	}
	if err := s.auth.Decide(ctx, op, p, auth.RecordOf(latest)); err != nil {
		return File{}, Outcome{}, s.fail(op, started, err)
	}
	if latest.VersionNumber != id.Number {
		return File{}, Outcome{}, s.fail(op, started, domain.InvalidStateError{Reason: "files can only be attached to the latest version"})
	}
	if latest.State != domain.StatePrivate {
		return File{}, Outcome{}, s.fail(op, started, domain.InvalidStateError{Reason: "files can only be attached to a private version"})
	}

	fileID := s.newID()
	key := blobcore.FileKey(id.DatasetID, id.Number, fileID)
	info, err := s.blobs.Put(ctx, key, r, blobcore.PutOptions{
		ContentType: file.ContentType,
		Metadata:    map[string]string{"filename": file.Name},
	})
	if err != nil {
		return File{}, Outcome{}, s.fail(op, started, domain.TechnicalError{Op: "core.attach", Err: err})
	}

	var created File
	rules, err := s.store.RunInTransaction(ctx, func(tx Transaction) error {
		if _, ok := tx.FindVersion(id); !ok {
			return domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: id.String()}
		}
		var err error
		created, err = tx.CreateFile(File{
			ID:            fileID,
			DatasetID:     id.DatasetID,
			VersionNumber: id.Number,
			Name:          file.Name,
			Size:          info.Size,
			Checksum:      info.ETag,
			ContentType:   file.ContentType,
			StorageKey:    key,
			CreatorID:     p.Account.ID,
		})
		return err
	})
	if err != nil {
		if _, delErr := s.blobs.Delete(ctx, key); delErr != nil {
			s.log.Warn().Str("key", key).Err(delErr).Msg("orphan blob cleanup failed")
		}
		return File{}, Outcome{}, s.fail(op, started, err)
	}

	out := committed(rules)
	s.finish(op, started, out, id)
	return created, out, nil
}

// GetFile returns the file record. Access follows the read rule of the
// owning version.
func (s *Service) GetFile(ctx context.Context, id VersionID, fileID string, p Principal) (File, error) {
	started := time.Now()
	op := auth.OpGet

	f, err := s.authorizedFile(ctx, id, fileID, p)
	if err != nil {
		return File{}, s.fail(op, started, err)
	}
	s.metrics.Observe(string(op), "ok", started)
	return f, nil
}

// FileContent streams the stored bytes. The caller owns the returned reader.
func (s *Service) FileContent(ctx context.Context, id VersionID, fileID string, p Principal) (blobcore.Info, io.ReadCloser, error) {
	started := time.Now()
	op := auth.OpGet

	if s.blobs == nil {
		return blobcore.Info{}, nil, s.fail(op, started, domain.TechnicalError{Op: "core.content", Err: blobcore.ErrUnsupported})
	}
	f, err := s.authorizedFile(ctx, id, fileID, p)
	if err != nil {
		return blobcore.Info{}, nil, s.fail(op, started, err)
	}
	info, rc, err := s.blobs.Get(ctx, f.StorageKey)
	if err != nil {
		return blobcore.Info{}, nil, s.fail(op, started, domain.TechnicalError{Op: "core.content", Err: err})
	}
	s.metrics.Observe(string(op), "ok", started)
	return info, rc, nil
}

// ListFiles returns the file records of a version, readable under the same
// rule as the version itself.
func (s *Service) ListFiles(ctx context.Context, id VersionID, p Principal) ([]File, error) {
	started := time.Now()
	op := auth.OpGet

	v, ok := s.store.GetVersion(id)
	if !ok {
		return nil, s.fail(op, started, domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: id.String()})
	}
	if err := s.auth.Decide(ctx, op, p, auth.RecordOf(v)); err != nil {
		return nil, s.fail(op, started, err)
	}
	s.metrics.Observe(string(op), "ok", started)
	return s.store.FilesOf(id), nil
}

func (s *Service) authorizedFile(ctx context.Context, id VersionID, fileID string, p Principal) (File, error) {
	v, ok := s.store.GetVersion(id)
	if !ok {
		return File{}, domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: id.String()}
	}
	if err := s.auth.Decide(ctx, auth.OpGet, p, auth.RecordOf(v)); err != nil {
		return File{}, err
	}
	f, ok := s.store.GetFile(fileID)
	if !ok || f.DatasetID != id.DatasetID || f.VersionNumber != id.Number {
		return File{}, domain.NotFoundError{Entity: domain.EntityFile, ID: fileID}
	}
	return f, nil
}
