// Package history persists scan records per identity and exposes a live
// view of each identity's record set. Every query is scoped by the fixed
// application id plus the caller's identity; no cross-identity read or
// write is expressible through this API, and keeping that boundary is
// this package's core safety contract.
package history

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"linkscout/internal/logging"
	"linkscout/internal/model"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed schema.sql
var schemaFS embed.FS

var (
	ErrRecordNotFound = errors.New("scan record not found")
	ErrStoreClosed    = errors.New("history store is closed")
)

// subscriber is one live view over a single identity's records.
type subscriber struct {
	identity model.Identity
	ch       chan []model.ScanRecord
}

// Store is the SQLite-backed history adapter. Safe for concurrent use.
type Store struct {
	db     *sql.DB
	appID  string
	logger logging.Logger

	mu        sync.Mutex
	subs      map[int]subscriber
	nextSubID int
	closed    bool
}

// NewStore opens (or creates) the SQLite database at dbPath, applies the
// schema and returns a Store namespaced by appID.
func NewStore(dbPath, appID string, logger logging.Logger) (*Store, error) {
	if appID == "" {
		return nil, fmt.Errorf("appID is required")
	}
	if dbPath == "" {
		return nil, fmt.Errorf("dbPath is required")
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}

	schemaSQL, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema.sql: %w", err)
	}
	if _, err := db.Exec(string(schemaSQL)); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	logger.Info("history store opened",
		logging.Field{Key: "path", Value: dbPath},
		logging.Field{Key: "app_id", Value: appID})

	return &Store{
		db:     db,
		appID:  appID,
		logger: logger,
		subs:   make(map[int]subscriber),
	}, nil
}

// Append writes a new record into the identity's namespace. The store
// assigns the record id; the returned copy carries it. The write either
// fully succeeds or fails as a unit.
func (s *Store) Append(ctx context.Context, identity model.Identity, record model.ScanRecord) (model.ScanRecord, error) {
	if identity == "" {
		return model.ScanRecord{}, fmt.Errorf("identity is required")
	}

	record.ID = uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scans (id, app_id, user_id, url, status, reason, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		record.ID, s.appID, string(identity), record.URL, string(record.Status), record.Reason, record.Timestamp)
	if err != nil {
		return model.ScanRecord{}, fmt.Errorf("insert scan record: %w", err)
	}

	s.logger.Debug("scan record appended",
		logging.Field{Key: "id", Value: record.ID},
		logging.Field{Key: "status", Value: string(record.Status)})

	s.broadcast(ctx, identity)
	return record, nil
}

// Snapshot returns the complete current record set for the identity.
// No ordering is guaranteed; callers sort.
func (s *Store) Snapshot(ctx context.Context, identity model.Identity) ([]model.ScanRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, url, status, reason, timestamp FROM scans WHERE app_id = ? AND user_id = ?`,
		s.appID, string(identity))
	if err != nil {
		return nil, fmt.Errorf("query scan records: %w", err)
	}
	defer rows.Close()

	records := []model.ScanRecord{}
	for rows.Next() {
		var r model.ScanRecord
		var status string
		if err := rows.Scan(&r.ID, &r.URL, &status, &r.Reason, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Status = model.ScanStatus(status)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return records, nil
}

// Remove deletes exactly one record by id from the identity's namespace.
// Returns ErrRecordNotFound when no such record exists there.
func (s *Store) Remove(ctx context.Context, identity model.Identity, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM scans WHERE app_id = ? AND user_id = ? AND id = ?`,
		s.appID, string(identity), id)
	if err != nil {
		return fmt.Errorf("delete scan record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrRecordNotFound
	}

	s.logger.Debug("scan record removed", logging.Field{Key: "id", Value: id})
	s.broadcast(ctx, identity)
	return nil
}

// Subscribe establishes a live view over one identity's records. The
// channel receives the complete current set after every mutation (not a
// delta); a slow receiver may skip intermediate snapshots but always ends
// up with a complete one. Callers must invoke the cancel func on teardown
// or identity change, or the view leaks.
func (s *Store) Subscribe(identity model.Identity) (<-chan []model.ScanRecord, func()) {
	ch := make(chan []model.ScanRecord, 4)

	s.mu.Lock()
	id := s.nextSubID
	s.nextSubID++
	s.subs[id] = subscriber{identity: identity, ch: ch}
	s.mu.Unlock()

	cancel := func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
	return ch, cancel
}

// broadcast pushes a fresh full snapshot to every subscriber of the given
// identity. Snapshot failures break the live view only; they are logged
// and never surfaced to the caller that mutated the store.
func (s *Store) broadcast(ctx context.Context, identity model.Identity) {
	s.mu.Lock()
	targets := make([]subscriber, 0, len(s.subs))
	for _, sub := range s.subs {
		if sub.identity == identity {
			targets = append(targets, sub)
		}
	}
	s.mu.Unlock()

	if len(targets) == 0 {
		return
	}

	records, err := s.Snapshot(ctx, identity)
	if err != nil {
		s.logger.Error("live view snapshot failed", logging.Field{Key: "error", Value: err.Error()})
		return
	}

	for _, sub := range targets {
		// Never drop the freshest set. When the buffer is full, evict the
		// oldest buffered snapshot instead, so the last value a subscriber
		// drains is always the current record set even if it stalled.
		select {
		case sub.ch <- records:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- records:
			default:
			}
		}
	}
}

// Close releases the database. Outstanding subscriptions stop receiving
// updates but their channels are left open for the cancel funcs to clean up.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrStoreClosed
	}
	s.closed = true
	s.mu.Unlock()

	return s.db.Close()
}
