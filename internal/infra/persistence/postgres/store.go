// Package postgres durably stores the dataset state in PostgreSQL. The
// in-memory store keeps transactional semantics; after every successful
// commit the full state is written to a JSONB bucket table, and the table is
// read back once at open.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"datacore/internal/infra/persistence/memory"
	"datacore/pkg/domain"
)

var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/datacore?sslmode=disable"
)

const stateDDL = `CREATE TABLE IF NOT EXISTS state (
	bucket TEXT PRIMARY KEY,
	payload JSONB NOT NULL
)`

const stateUpsert = `INSERT INTO state(bucket,payload) VALUES($1,$2)
	ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store wraps the in-memory store with PostgreSQL durability.
type Store struct {
	*memory.Store
	db *sql.DB
	mu sync.Mutex
}

// NewStore connects with the DSN (defaultDSN when empty), creates the state
// table when missing, and hydrates the in-memory store from any snapshot.
func NewStore(dsn string, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(driverName, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, stateDDL); err != nil {
		return nil, fmt.Errorf("ensure state table: %w", err)
	}
	snapshot, err := readState(ctx, db)
	if err != nil {
		return nil, err
	}

	mem := memory.NewStore(engine)
	mem.ImportState(snapshot)
	return &Store{Store: mem, db: db}, nil
}

// RunInTransaction delegates to the in-memory store and, on success, writes
// the new state to PostgreSQL. A failed write surfaces as the transaction
// error; the in-memory state is already committed at that point, so the
// caller should treat it as fatal.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	return res, s.saveState(ctx)
}

// DB exposes the connection for integration tests.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the database connection.
func (s *Store) Close() error { return s.db.Close() }

// buckets maps snapshot sections to their state-table rows.
func buckets(snapshot *memory.Snapshot) map[string]any {
	return map[string]any{
		"datasets": &snapshot.Datasets,
		"versions": &snapshot.Versions,
		"files":    &snapshot.Files,
	}
}

func readState(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var snapshot memory.Snapshot
	sections := buckets(&snapshot)
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		section, known := sections[bucket]
		if !known || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, section); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode bucket %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) saveState(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin state tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	for bucket, section := range buckets(&snapshot) {
		payload, err := json.Marshal(section)
		if err != nil {
			return fmt.Errorf("encode bucket %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, stateUpsert, bucket, payload); err != nil {
			return fmt.Errorf("upsert bucket %s: %w", bucket, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit state tx: %w", err)
	}
	committed = true
	return nil
}

// OverrideSQLOpen swaps the connection opener for tests; the returned
// function restores the previous one.
func OverrideSQLOpen(fn func(driverName, dsn string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
