// Package sqlite provides a store.Store backed by an SQLite database file.
//
// The database runs in WAL mode with a single open connection. Route headers
// are persisted as an ordered JSON array so that their order and casing
// survive a round trip.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/mocify/mocify/pkg/route"
	"github.com/mocify/mocify/pkg/store"
)

// Config configures the SQLite store.
type Config struct {
	// Path is the database file. Use ":memory:" for a throwaway database.
	Path string

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration

	// CheckpointInterval is how often the WAL is checkpointed.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// MaxReadConns sizes the read-only pool that serves lookups.
	// Default: 4
	MaxReadConns int
}

// Store implements store.Store on top of SQLite.
type Store struct {
	// db is the single writer connection; reader is a read-only pool so
	// request-time route lookups do not queue behind writes. For ":memory:"
	// both are the same handle.
	db        *sql.DB
	reader    *sql.DB
	path      string
	interval  time.Duration
	done      chan struct{}
	closed    atomic.Bool
	closeOnce sync.Once

	listRoutesStmt     *sql.Stmt
	getCollectionStmt  *sql.Stmt
	listCollectionStmt *sql.Stmt
}

// Open opens (creating if needed) the database at path with default settings.
func Open(path string) (*Store, error) {
	return OpenWithConfig(Config{Path: path})
}

// OpenWithConfig opens the database described by cfg.
func OpenWithConfig(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite: db path cannot be empty")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	if cfg.CheckpointInterval <= 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.MaxReadConns <= 0 {
		cfg.MaxReadConns = 4
	}

	pragmas := fmt.Sprintf("_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)", cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", "file:"+cfg.Path+"?"+pragmas+"&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open database: %w", err)
	}

	// SQLite only supports a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &Store{
		db:       db,
		reader:   db,
		path:     cfg.Path,
		interval: cfg.CheckpointInterval,
		done:     make(chan struct{}),
	}

	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: initialize schema: %w", err)
	}

	// Every connection to ":memory:" is its own database, so readers share
	// the writer there. On a file, WAL lets readers run beside the writer.
	if cfg.Path != ":memory:" {
		reader, err := sql.Open("sqlite", "file:"+cfg.Path+"?"+pragmas+"&_pragma=query_only(1)")
		if err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: open read pool: %w", err)
		}
		reader.SetMaxOpenConns(cfg.MaxReadConns)
		reader.SetMaxIdleConns(cfg.MaxReadConns)
		s.reader = reader
	}

	if err := s.prepareStatements(); err != nil {
		s.closeDBs()
		return nil, fmt.Errorf("sqlite: prepare statements: %w", err)
	}

	go s.checkpointLoop()
	return s, nil
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		port INTEGER NOT NULL UNIQUE,
		base_path TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS routes (
		id TEXT PRIMARY KEY,
		collection_id TEXT NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
		name TEXT NOT NULL DEFAULT '',
		method TEXT NOT NULL,
		path TEXT NOT NULL,
		status_code INTEGER NOT NULL,
		response_body TEXT,
		response_headers TEXT NOT NULL DEFAULT '[]',
		delay_ms INTEGER,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		UNIQUE (collection_id, method, path)
	);

	CREATE INDEX IF NOT EXISTS idx_routes_collection ON routes(collection_id, created_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) prepareStatements() error {
	var err error

	s.listRoutesStmt, err = s.reader.Prepare(`
		SELECT id, collection_id, name, method, path, status_code,
			response_body, response_headers, delay_ms, created_at, updated_at
		FROM routes
		WHERE collection_id = ?
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return fmt.Errorf("list routes statement: %w", err)
	}

	s.getCollectionStmt, err = s.reader.Prepare(`
		SELECT id, name, description, port, base_path, created_at, updated_at
		FROM collections
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("get collection statement: %w", err)
	}

	s.listCollectionStmt, err = s.reader.Prepare(`
		SELECT id, name, description, port, base_path, created_at, updated_at
		FROM collections
		ORDER BY created_at DESC, rowid DESC
	`)
	if err != nil {
		return fmt.Errorf("list collections statement: %w", err)
	}

	return nil
}

// storedHeader is the on-disk shape of one response header.
type storedHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCollection(row scanner) (*route.Collection, error) {
	var (
		c                    route.Collection
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Name, &c.Description, &c.Port, &c.BasePath, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = time.Unix(0, createdAt).UTC()
	c.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &c, nil
}

func scanRoute(row scanner) (*route.Route, error) {
	var (
		r                    route.Route
		method, headersJSON  string
		body                 sql.NullString
		delay                sql.NullInt64
		createdAt, updatedAt int64
	)
	err := row.Scan(&r.ID, &r.CollectionID, &r.Name, &method, &r.Path, &r.StatusCode,
		&body, &headersJSON, &delay, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	r.Method, err = route.ParseMethod(method)
	if err != nil {
		return nil, fmt.Errorf("route %s: %w", r.ID, err)
	}
	if body.Valid {
		r.ResponseBody = route.StringPtr(body.String)
	}
	if delay.Valid {
		r.DelayMs = route.IntPtr(int(delay.Int64))
	}

	var headers []storedHeader
	if err := json.Unmarshal([]byte(headersJSON), &headers); err != nil {
		return nil, fmt.Errorf("route %s: decode headers: %w", r.ID, err)
	}
	for _, h := range headers {
		r.ResponseHeaders = append(r.ResponseHeaders, route.Header{Name: h.Name, Value: h.Value})
	}

	r.CreatedAt = time.Unix(0, createdAt).UTC()
	r.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &r, nil
}

// GetCollection retrieves a collection by ID.
func (s *Store) GetCollection(ctx context.Context, id string) (*route.Collection, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	c, err := scanCollection(s.getCollectionStmt.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("collection %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get collection: %w", err)
	}
	return c, nil
}

// ListCollections returns all collections, newest first.
func (s *Store) ListCollections(ctx context.Context) ([]*route.Collection, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.listCollectionStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list collections: %w", err)
	}
	defer rows.Close()

	var out []*route.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan collection: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate collections: %w", err)
	}
	return out, nil
}

// ListRoutes returns the routes of a collection, newest first.
func (s *Store) ListRoutes(ctx context.Context, collectionID string) ([]*route.Route, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	rows, err := s.listRoutesStmt.QueryContext(ctx, collectionID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list routes: %w", err)
	}
	defer rows.Close()

	var out []*route.Route
	for rows.Next() {
		r, err := scanRoute(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan route: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate routes: %w", err)
	}
	return out, nil
}

// PutCollection creates or replaces a collection. CreatedAt of an existing
// row is preserved.
func (s *Store) PutCollection(ctx context.Context, c *route.Collection) error {
	if c == nil {
		return nil
	}
	if err := c.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}

	now := time.Now().UTC()
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO collections (id, name, description, port, base_path, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			port = excluded.port,
			base_path = excluded.base_path,
			updated_at = excluded.updated_at
	`, c.ID, c.Name, c.Description, c.Port, c.BasePath, createdAt.UnixNano(), now.UnixNano())
	if err != nil {
		if isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE) {
			return fmt.Errorf("port %d: %w", c.Port, store.ErrDuplicate)
		}
		return fmt.Errorf("sqlite: put collection: %w", err)
	}

	stored, err := s.GetCollection(ctx, c.ID)
	if err != nil {
		return err
	}
	c.CreatedAt, c.UpdatedAt = stored.CreatedAt, stored.UpdatedAt
	return nil
}

// DeleteCollection removes a collection; its routes go with it.
func (s *Store) DeleteCollection(ctx context.Context, id string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete collection: %w", err)
	}
	return requireAffected(res, "collection "+id)
}

// PutRoute creates or replaces a route. A route without an ID gets a random
// UUID.
func (s *Store) PutRoute(ctx context.Context, r *route.Route) error {
	if r == nil {
		return nil
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if s.closed.Load() {
		return store.ErrClosed
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	headers := make([]storedHeader, 0, len(r.ResponseHeaders))
	for _, h := range r.ResponseHeaders {
		headers = append(headers, storedHeader{Name: h.Name, Value: h.Value})
	}
	headersJSON, err := json.Marshal(headers)
	if err != nil {
		return fmt.Errorf("sqlite: encode headers: %w", err)
	}

	var body sql.NullString
	if r.ResponseBody != nil {
		body = sql.NullString{String: *r.ResponseBody, Valid: true}
	}
	var delay sql.NullInt64
	if r.DelayMs != nil {
		delay = sql.NullInt64{Int64: int64(*r.DelayMs), Valid: true}
	}

	now := time.Now().UTC()
	createdAt := r.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO routes (id, collection_id, name, method, path, status_code,
			response_body, response_headers, delay_ms, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			collection_id = excluded.collection_id,
			name = excluded.name,
			method = excluded.method,
			path = excluded.path,
			status_code = excluded.status_code,
			response_body = excluded.response_body,
			response_headers = excluded.response_headers,
			delay_ms = excluded.delay_ms,
			updated_at = excluded.updated_at
	`, r.ID, r.CollectionID, r.Name, r.Method.String(), r.Path, r.StatusCode,
		body, string(headersJSON), delay, createdAt.UnixNano(), now.UnixNano())
	switch {
	case err == nil:
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY):
		return fmt.Errorf("collection %s: %w", r.CollectionID, store.ErrNotFound)
	case isConstraint(err, sqlite3.SQLITE_CONSTRAINT_UNIQUE):
		return fmt.Errorf("route %s in collection %s: %w", r.Key(), r.CollectionID, store.ErrDuplicate)
	default:
		return fmt.Errorf("sqlite: put route: %w", err)
	}

	var created, updated int64
	err = s.db.QueryRowContext(ctx, `SELECT created_at, updated_at FROM routes WHERE id = ?`, r.ID).
		Scan(&created, &updated)
	if err != nil {
		return fmt.Errorf("sqlite: reload route: %w", err)
	}
	r.CreatedAt = time.Unix(0, created).UTC()
	r.UpdatedAt = time.Unix(0, updated).UTC()
	return nil
}

// DeleteRoute removes a route by ID.
func (s *Store) DeleteRoute(ctx context.Context, id string) error {
	if s.closed.Load() {
		return store.ErrClosed
	}
	res, err := s.db.ExecContext(ctx, `DELETE FROM routes WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: delete route: %w", err)
	}
	return requireAffected(res, "route "+id)
}

// Path returns the database file path.
func (s *Store) Path() string { return s.path }

// Close releases the database. Close is idempotent.
func (s *Store) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.done)

		for _, stmt := range []*sql.Stmt{s.listRoutesStmt, s.getCollectionStmt, s.listCollectionStmt} {
			if stmt != nil {
				_ = stmt.Close()
			}
		}
		_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
		closeErr = s.closeDBs()
	})
	return closeErr
}

func (s *Store) closeDBs() error {
	var readErr error
	if s.reader != s.db {
		readErr = s.reader.Close()
	}
	return errors.Join(s.db.Close(), readErr)
}

func (s *Store) checkpointLoop() {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

func requireAffected(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, store.ErrNotFound)
	}
	return nil
}

// isConstraint reports whether err is an SQLite constraint violation with
// the given extended code.
func isConstraint(err error, code int) bool {
	var serr *sqlite.Error
	if !errors.As(err, &serr) {
		return false
	}
	if serr.Code() == code {
		return true
	}
	// Connections without extended result codes only report the primary code.
	if serr.Code() != sqlite3.SQLITE_CONSTRAINT {
		return false
	}
	switch code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return strings.Contains(serr.Error(), "UNIQUE")
	case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY:
		return strings.Contains(serr.Error(), "FOREIGN KEY")
	}
	return false
}

var _ store.Store = (*Store)(nil)
