// Package export renders dataset version metadata into downloadable
// artifacts. Exports run asynchronously: a request is queued, rendered in a
// background goroutine, and the resulting artifacts land in the blob store
// under the exports/ prefix. Every status change leaves an audit entry.
package export

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	blobcore "datacore/internal/blob/core"
	"datacore/internal/core"
	"datacore/internal/logging"
	"datacore/pkg/domain"
)

// Status describes the lifecycle stage of an export request.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// Artifact captures one stored rendition of a version's metadata.
type Artifact struct {
	ID          string    `json:"id"`
	Format      Format    `json:"format"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	StorageKey  string    `json:"storage_key"`
	Checksum    string    `json:"checksum,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record tracks an export request and its resulting artifacts.
type Record struct {
	ID          string           `json:"id"`
	VersionID   domain.VersionID `json:"version_id"`
	Formats     []Format         `json:"formats"`
	Status      Status           `json:"status"`
	Error       string           `json:"error,omitempty"`
	Artifacts   []Artifact       `json:"artifacts,omitempty"`
	RequestedBy string           `json:"requested_by"`
	Reason      string           `json:"reason,omitempty"`
	CreatedAt   time.Time        `json:"created_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
}

func (r Record) copy() Record {
	cp := r
	cp.Formats = append([]Format(nil), r.Formats...)
	cp.Artifacts = append([]Artifact(nil), r.Artifacts...)
	if r.CompletedAt != nil {
		at := *r.CompletedAt
		cp.CompletedAt = &at
	}
	return cp
}

// Input represents an enqueue request for the worker. The principal is
// carried through so reads happen with the requester's rights, not the
// worker's.
type Input struct {
	VersionID domain.VersionID
	Formats   []Format
	Principal domain.Principal
	Reason    string
}

// AuditLogger records export audit entries.
type AuditLogger interface {
	Record(ctx context.Context, entry AuditEntry)
}

// AuditEntry captures audit trail metadata for exports.
type AuditEntry struct {
	ID         string           `json:"id"`
	Action     string           `json:"action"`
	Actor      string           `json:"actor"`
	VersionID  domain.VersionID `json:"version_id"`
	Status     Status           `json:"status"`
	Reason     string           `json:"reason,omitempty"`
	Note       string           `json:"note,omitempty"`
	OccurredAt time.Time        `json:"occurred_at"`
}

// Worker executes metadata exports asynchronously.
type Worker struct {
	svc   *core.Service
	blobs blobcore.Store
	audit AuditLogger
	log   zerolog.Logger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id    string
	input Input
}

// NewWorker constructs an export worker over the lifecycle service and the
// blob store holding finished artifacts.
func NewWorker(svc *core.Service, blobs blobcore.Store, audit AuditLogger) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		svc:    svc,
		blobs:  blobs,
		audit:  audit,
		log:    logging.Nop(),
		queue:  make(chan task, 32),
		jobs:   make(map[string]*Record),
		ctx:    ctx,
		cancel: cancel,
	}
}

// WithLogger sets the structured logger and returns the worker.
func (w *Worker) WithLogger(log zerolog.Logger) *Worker {
	w.log = log
	return w
}

// Start begins processing export requests.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop signals the worker to halt and waits for completion.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			return
		case t := <-w.queue:
			w.process(t)
		}
	}
}

// Enqueue schedules an export job and returns the queued record. The version
// is read immediately so unauthorized or missing targets fail synchronously.
func (w *Worker) Enqueue(ctx context.Context, input Input) (Record, error) {
	if w.ctx.Err() != nil {
		return Record{}, fmt.Errorf("export worker stopped")
	}
	if w.blobs == nil {
		return Record{}, fmt.Errorf("export blob store not configured")
	}
	if _, err := w.svc.Get(ctx, input.VersionID, input.Principal); err != nil {
		return Record{}, err
	}

	formats := input.Formats
	if len(formats) == 0 {
		formats = []Format{FormatJSON, FormatCSV}
	}
	uniq := make([]Format, 0, len(formats))
	seen := make(map[Format]struct{})
	for _, format := range formats {
		if _, duplicate := seen[format]; duplicate {
			continue
		}
		if _, known := renderers[format]; !known {
			return Record{}, fmt.Errorf("unknown export format %s", format)
		}
		uniq = append(uniq, format)
		seen[format] = struct{}{}
	}

	id := uuid.NewString()
	now := time.Now().UTC()
	record := Record{
		ID:          id,
		VersionID:   input.VersionID,
		Formats:     uniq,
		Status:      StatusQueued,
		RequestedBy: actorOf(input.Principal),
		Reason:      input.Reason,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	w.mu.Lock()
	w.jobs[id] = &record
	queued := record.copy()
	w.mu.Unlock()

	w.record(ctx, id, StatusQueued, "")

	select {
	case w.queue <- task{id: id, input: input}:
	default:
		w.fail(id, "export queue full")
		return Record{}, fmt.Errorf("export queue full")
	}
	return queued, nil
}

// Get returns a snapshot of the export record.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	record, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return record.copy(), true
}

func (w *Worker) process(t task) {
	w.mu.RLock()
	record, ok := w.jobs[t.id]
	var formats []Format
	if ok {
		formats = append([]Format(nil), record.Formats...)
	}
	w.mu.RUnlock()
	if !ok {
		return
	}

	w.updateStatus(t.id, StatusRunning, "")

	version, err := w.svc.Get(w.ctx, t.input.VersionID, t.input.Principal)
	if err != nil {
		w.fail(t.id, fmt.Sprintf("load version: %v", err))
		return
	}

	artifacts := make([]Artifact, 0, len(formats))
	for _, format := range formats {
		payload, contentType, err := render(format, version)
		if err != nil {
			w.fail(t.id, err.Error())
			return
		}
		artifactID := uuid.NewString()
		key := artifactKey(version.VersionID(), t.id, format)
		info, err := w.blobs.Put(w.ctx, key, bytes.NewReader(payload), blobcore.PutOptions{
			ContentType: contentType,
			Metadata:    map[string]string{"export": t.id, "format": string(format)},
		})
		if err != nil {
			w.fail(t.id, fmt.Sprintf("store artifact: %v", err))
			return
		}
		artifacts = append(artifacts, Artifact{
			ID:          artifactID,
			Format:      format,
			ContentType: contentType,
			SizeBytes:   info.Size,
			StorageKey:  key,
			Checksum:    info.ETag,
			CreatedAt:   time.Now().UTC(),
		})
	}
	w.complete(t.id, artifacts)
}

func (w *Worker) updateStatus(id string, status Status, message string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = status
		record.Error = message
		record.UpdatedAt = now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, status, message)
}

func (w *Worker) complete(id string, artifacts []Artifact) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusSucceeded
		record.Error = ""
		record.Artifacts = artifacts
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.record(w.ctx, id, StatusSucceeded, "")
}

func (w *Worker) fail(id, reason string) {
	now := time.Now().UTC()
	w.mu.Lock()
	if record, ok := w.jobs[id]; ok {
		record.Status = StatusFailed
		record.Error = reason
		record.UpdatedAt = now
		record.CompletedAt = &now
	}
	w.mu.Unlock()
	w.log.Warn().Str("export", id).Str("reason", reason).Msg("export failed")
	w.record(w.ctx, id, StatusFailed, reason)
}

func (w *Worker) record(ctx context.Context, id string, status Status, note string) {
	if w.audit == nil {
		return
	}
	w.mu.RLock()
	record, ok := w.jobs[id]
	var entry AuditEntry
	if ok {
		entry = AuditEntry{
			ID:         uuid.NewString(),
			Action:     "metadata_export",
			Actor:      record.RequestedBy,
			VersionID:  record.VersionID,
			Status:     status,
			Reason:     record.Reason,
			Note:       note,
			OccurredAt: time.Now().UTC(),
		}
	}
	w.mu.RUnlock()
	if ok {
		w.audit.Record(ctx, entry)
	}
}

func artifactKey(id domain.VersionID, jobID string, format Format) string {
	return fmt.Sprintf("exports/%s/%d/%s.%s", id.DatasetID, id.Number, jobID, extensionOf(format))
}

func actorOf(p domain.Principal) string {
	if p.Account.ID != "" {
		return p.Account.ID
	}
	if p.ReviewToken != "" {
		return "review-token"
	}
	return "anonymous"
}
