// Package memory provides an in-memory implementation of the core persistence
// store used for tests and ephemeral environments.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"datacore/pkg/domain"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain
// persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// Dataset aliases domain.Dataset for in-memory persistence operations.
	Dataset = domain.Dataset
	// DatasetVersion aliases domain.DatasetVersion.
	DatasetVersion = domain.DatasetVersion
	// VersionID aliases domain.VersionID.
	VersionID = domain.VersionID
	// File aliases domain.File.
	File = domain.File
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction representing a mutable unit of work.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView providing read-only state.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	datasets map[string]Dataset
	versions map[string]DatasetVersion
	files    map[string]File
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Datasets map[string]Dataset        `json:"datasets"`
	Versions map[string]DatasetVersion `json:"versions"`
	Files    map[string]File           `json:"files"`
}

func newMemoryState() memoryState {
	return memoryState{
		datasets: make(map[string]Dataset),
		versions: make(map[string]DatasetVersion),
		files:    make(map[string]File),
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Datasets: make(map[string]Dataset, len(state.datasets)),
		Versions: make(map[string]DatasetVersion, len(state.versions)),
		Files:    make(map[string]File, len(state.files)),
	}
	for k, v := range state.datasets {
		s.Datasets[k] = v
	}
	for k, v := range state.versions {
		s.Versions[k] = cloneVersion(v)
	}
	for k, v := range state.files {
		s.Files[k] = v
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for k, v := range s.Datasets {
		state.datasets[k] = v
	}
	for k, v := range s.Versions {
		state.versions[k] = cloneVersion(v)
	}
	for k, v := range s.Files {
		state.files[k] = v
	}
	return state
}

// migrateSnapshot repairs snapshots written by older processes: nil maps are
// materialized and records whose parent no longer exists are dropped.
func migrateSnapshot(snapshot Snapshot) Snapshot {
	if snapshot.Datasets == nil {
		snapshot.Datasets = map[string]Dataset{}
	}
	if snapshot.Versions == nil {
		snapshot.Versions = map[string]DatasetVersion{}
	}
	if snapshot.Files == nil {
		snapshot.Files = map[string]File{}
	}

	datasetExists := func(id string) bool {
		_, ok := snapshot.Datasets[id]
		return ok
	}

	for key, version := range snapshot.Versions {
		if version.DatasetID == "" || !datasetExists(version.DatasetID) {
			delete(snapshot.Versions, key)
			continue
		}
		if version.VersionNumber <= 0 {
			delete(snapshot.Versions, key)
			continue
		}
		// Resolved parents are recomputed on read, never persisted.
		version.Dataset = Dataset{}
		snapshot.Versions[key] = version
	}

	for id, file := range snapshot.Files {
		key := VersionID{DatasetID: file.DatasetID, Number: file.VersionNumber}.String()
		if _, ok := snapshot.Versions[key]; !ok {
			delete(snapshot.Files, id)
		}
	}

	return snapshot
}

func (s memoryState) clone() memoryState {
	cloned := newMemoryState()
	for k, v := range s.datasets {
		cloned.datasets[k] = v
	}
	for k, v := range s.versions {
		cloned.versions[k] = cloneVersion(v)
	}
	for k, v := range s.files {
		cloned.files[k] = v
	}
	return cloned
}

func cloneVersion(v DatasetVersion) DatasetVersion {
	cp := v
	cp.Metadata = domain.CloneMetadata(v.Metadata)
	return cp
}

func decorateVersion(state *memoryState, v DatasetVersion) DatasetVersion {
	if parent, ok := state.datasets[v.DatasetID]; ok {
		v.Dataset = parent
	}
	return v
}

func versionsOf(state *memoryState, datasetID string) []DatasetVersion {
	var out []DatasetVersion
	for _, v := range state.versions {
		if v.DatasetID == datasetID {
			out = append(out, cloneVersion(decorateVersion(state, v)))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VersionNumber < out[j].VersionNumber })
	return out
}

func latestVersion(state *memoryState, datasetID string) (DatasetVersion, bool) {
	var latest DatasetVersion
	found := false
	for _, v := range state.versions {
		if v.DatasetID != datasetID {
			continue
		}
		if !found || v.VersionNumber > latest.VersionNumber {
			latest = v
			found = true
		}
	}
	if !found {
		return DatasetVersion{}, false
	}
	return cloneVersion(decorateVersion(state, latest)), true
}

func latestPublicVersion(state *memoryState, datasetID string) (DatasetVersion, bool) {
	var latest DatasetVersion
	found := false
	for _, v := range state.versions {
		if v.DatasetID != datasetID || v.State != domain.StatePublic {
			continue
		}
		if !found || v.VersionNumber > latest.VersionNumber {
			latest = v
			found = true
		}
	}
	if !found {
		return DatasetVersion{}, false
	}
	return cloneVersion(decorateVersion(state, latest)), true
}

func filesOf(state *memoryState, id VersionID) []File {
	var out []File
	for _, f := range state.files {
		if f.DatasetID == id.DatasetID && f.VersionNumber == id.Number {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Store provides an in-memory transactional store for the core domain.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetNowFunc overrides the transaction time source. Intended for tests.
func (s *Store) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nowFn = now
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(migrateSnapshot(snapshot))
}

// RulesEngine exposes the currently configured engine.
func (s *Store) RulesEngine() *RulesEngine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

type transaction struct {
	store   *Store
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListDatasets returns all datasets within the transaction snapshot.
func (v transactionView) ListDatasets() []Dataset {
	out := make([]Dataset, 0, len(v.state.datasets))
	for _, d := range v.state.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListVersions returns all dataset versions within the snapshot.
func (v transactionView) ListVersions() []DatasetVersion {
	out := make([]DatasetVersion, 0, len(v.state.versions))
	for _, ver := range v.state.versions {
		out = append(out, cloneVersion(decorateVersion(v.state, ver)))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DatasetID != out[j].DatasetID {
			return out[i].DatasetID < out[j].DatasetID
		}
		return out[i].VersionNumber < out[j].VersionNumber
	})
	return out
}

// FindDataset retrieves a dataset by ID from the snapshot.
func (v transactionView) FindDataset(id string) (Dataset, bool) {
	d, ok := v.state.datasets[id]
	return d, ok
}

// FindVersion retrieves a version by identity from the snapshot.
func (v transactionView) FindVersion(id VersionID) (DatasetVersion, bool) {
	ver, ok := v.state.versions[id.String()]
	if !ok {
		return DatasetVersion{}, false
	}
	return cloneVersion(decorateVersion(v.state, ver)), true
}

// VersionsOf returns all versions of a dataset ordered by version number.
func (v transactionView) VersionsOf(datasetID string) []DatasetVersion {
	return versionsOf(v.state, datasetID)
}

// LatestVersion returns the newest version of a dataset.
func (v transactionView) LatestVersion(datasetID string) (DatasetVersion, bool) {
	return latestVersion(v.state, datasetID)
}

// LatestPublicVersion returns the newest public version of a dataset.
func (v transactionView) LatestPublicVersion(datasetID string) (DatasetVersion, bool) {
	return latestPublicVersion(v.state, datasetID)
}

// FindFile retrieves a file record by ID from the snapshot.
func (v transactionView) FindFile(id string) (File, bool) {
	f, ok := v.state.files[id]
	return f, ok
}

// FilesOf returns the files attached to a version ordered by ID.
func (v transactionView) FilesOf(id VersionID) []File {
	return filesOf(v.state, id)
}

// RunInTransaction executes fn within a transactional copy of the store state.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil {
		view := newTransactionView(&tx.state)
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := s.state.clone()
	view := newTransactionView(&snapshot)
	return fn(view)
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// CreateDataset stores a new dataset aggregate.
func (tx *transaction) CreateDataset(d Dataset) (Dataset, error) {
	if d.ID == "" {
		return Dataset{}, domain.ValidationError{Field: "id", Reason: "dataset id is required"}
	}
	if _, exists := tx.state.datasets[d.ID]; exists {
		return Dataset{}, domain.ValidationError{Field: "id", Reason: "dataset already exists"}
	}
	d.CreatedAt = tx.now
	d.ModifiedAt = tx.now
	tx.state.datasets[d.ID] = d
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionCreate, After: d})
	return d, nil
}

// UpdateDataset mutates an existing dataset and stamps its modification time.
func (tx *transaction) UpdateDataset(id string, mutator func(*Dataset) error) (Dataset, error) {
	current, ok := tx.state.datasets[id]
	if !ok {
		return Dataset{}, domain.NotFoundError{Entity: domain.EntityDataset, ID: id}
	}
	before := current
	if err := mutator(&current); err != nil {
		return Dataset{}, err
	}
	current.ID = id
	current.ModifiedAt = tx.now
	tx.state.datasets[id] = current
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionUpdate, Before: before, After: current})
	return current, nil
}

// DeleteDataset removes a dataset. Versions must be deleted first.
func (tx *transaction) DeleteDataset(id string) error {
	current, ok := tx.state.datasets[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDataset, ID: id}
	}
	for _, v := range tx.state.versions {
		if v.DatasetID == id {
			return domain.InvalidStateError{Reason: "dataset still has versions"}
		}
	}
	delete(tx.state.datasets, id)
	tx.recordChange(Change{Entity: domain.EntityDataset, Action: domain.ActionDelete, Before: current})
	return nil
}

// CreateVersion stores a new dataset version.
func (tx *transaction) CreateVersion(v DatasetVersion) (DatasetVersion, error) {
	if v.DatasetID == "" {
		return DatasetVersion{}, domain.ValidationError{Field: "dataset_id", Reason: "dataset id is required"}
	}
	if v.VersionNumber <= 0 {
		return DatasetVersion{}, domain.ValidationError{Field: "version_number", Reason: "version number must be positive"}
	}
	if _, ok := tx.state.datasets[v.DatasetID]; !ok {
		return DatasetVersion{}, domain.NotFoundError{Entity: domain.EntityDataset, ID: v.DatasetID}
	}
	key := v.VersionID().String()
	if _, exists := tx.state.versions[key]; exists {
		return DatasetVersion{}, domain.ValidationError{Field: "version_number", Reason: "version already exists"}
	}
	v.CreatedAt = tx.now
	v.ModifiedAt = tx.now
	v.Dataset = Dataset{}
	tx.state.versions[key] = cloneVersion(v)
	stored := cloneVersion(decorateVersion(&tx.state, v))
	tx.recordChange(Change{Entity: domain.EntityDatasetVersion, Action: domain.ActionCreate, After: stored})
	return stored, nil
}

// UpdateVersion mutates an existing version and stamps its modification time.
func (tx *transaction) UpdateVersion(id VersionID, mutator func(*DatasetVersion) error) (DatasetVersion, error) {
	key := id.String()
	current, ok := tx.state.versions[key]
	if !ok {
		return DatasetVersion{}, domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: key}
	}
	before := cloneVersion(decorateVersion(&tx.state, current))
	working := cloneVersion(decorateVersion(&tx.state, current))
	if err := mutator(&working); err != nil {
		return DatasetVersion{}, err
	}
	working.DatasetID = id.DatasetID
	working.VersionNumber = id.Number
	working.ModifiedAt = tx.now
	working.Dataset = Dataset{}
	tx.state.versions[key] = cloneVersion(working)
	stored := cloneVersion(decorateVersion(&tx.state, working))
	tx.recordChange(Change{Entity: domain.EntityDatasetVersion, Action: domain.ActionUpdate, Before: before, After: stored})
	return stored, nil
}

// DeleteVersion removes a version. Attached files must be deleted first.
func (tx *transaction) DeleteVersion(id VersionID) error {
	key := id.String()
	current, ok := tx.state.versions[key]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: key}
	}
	for _, f := range tx.state.files {
		if f.DatasetID == id.DatasetID && f.VersionNumber == id.Number {
			return domain.InvalidStateError{Reason: "version still has files"}
		}
	}
	delete(tx.state.versions, key)
	tx.recordChange(Change{Entity: domain.EntityDatasetVersion, Action: domain.ActionDelete, Before: cloneVersion(current)})
	return nil
}

// CreateFile stores a new file record.
func (tx *transaction) CreateFile(f File) (File, error) {
	if f.ID == "" {
		return File{}, domain.ValidationError{Field: "id", Reason: "file id is required"}
	}
	if _, exists := tx.state.files[f.ID]; exists {
		return File{}, domain.ValidationError{Field: "id", Reason: "file already exists"}
	}
	key := VersionID{DatasetID: f.DatasetID, Number: f.VersionNumber}.String()
	if _, ok := tx.state.versions[key]; !ok {
		return File{}, domain.NotFoundError{Entity: domain.EntityDatasetVersion, ID: key}
	}
	f.CreatedAt = tx.now
	tx.state.files[f.ID] = f
	tx.recordChange(Change{Entity: domain.EntityFile, Action: domain.ActionCreate, After: f})
	return f, nil
}

// DeleteFile removes a file record.
func (tx *transaction) DeleteFile(id string) error {
	current, ok := tx.state.files[id]
	if !ok {
		return domain.NotFoundError{Entity: domain.EntityFile, ID: id}
	}
	delete(tx.state.files, id)
	tx.recordChange(Change{Entity: domain.EntityFile, Action: domain.ActionDelete, Before: current})
	return nil
}

// FindDataset exposes dataset lookup within the transaction scope.
func (tx *transaction) FindDataset(id string) (Dataset, bool) {
	d, ok := tx.state.datasets[id]
	return d, ok
}

// FindVersion exposes version lookup within the transaction scope.
func (tx *transaction) FindVersion(id VersionID) (DatasetVersion, bool) {
	v, ok := tx.state.versions[id.String()]
	if !ok {
		return DatasetVersion{}, false
	}
	return cloneVersion(decorateVersion(&tx.state, v)), true
}

// LatestVersion exposes the newest version within the transaction scope.
func (tx *transaction) LatestVersion(datasetID string) (DatasetVersion, bool) {
	return latestVersion(&tx.state, datasetID)
}

// VersionsOf exposes the ordered version list within the transaction scope.
func (tx *transaction) VersionsOf(datasetID string) []DatasetVersion {
	return versionsOf(&tx.state, datasetID)
}

// FindFile exposes file lookup within the transaction scope.
func (tx *transaction) FindFile(id string) (File, bool) {
	f, ok := tx.state.files[id]
	return f, ok
}

func (tx *transaction) FilesOf(id VersionID) []File {
	return filesOf(&tx.state, id)
}

// GetDataset returns a dataset outside a transaction.
func (s *Store) GetDataset(id string) (Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.state.datasets[id]
	return d, ok
}

// GetVersion returns a version outside a transaction.
func (s *Store) GetVersion(id VersionID) (DatasetVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.state.versions[id.String()]
	if !ok {
		return DatasetVersion{}, false
	}
	return cloneVersion(decorateVersion(&s.state, v)), true
}

// LatestVersion returns the newest version of a dataset.
func (s *Store) LatestVersion(datasetID string) (DatasetVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestVersion(&s.state, datasetID)
}

// LatestPublicVersion returns the newest public version of a dataset.
func (s *Store) LatestPublicVersion(datasetID string) (DatasetVersion, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return latestPublicVersion(&s.state, datasetID)
}

// VersionsOf returns all versions of a dataset ordered by version number.
func (s *Store) VersionsOf(datasetID string) []DatasetVersion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return versionsOf(&s.state, datasetID)
}

// GetFile returns a file record outside a transaction.
func (s *Store) GetFile(id string) (File, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	f, ok := s.state.files[id]
	return f, ok
}

// FilesOf returns the files attached to a version.
func (s *Store) FilesOf(id VersionID) []File {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return filesOf(&s.state, id)
}
