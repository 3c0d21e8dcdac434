package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db  *sql.DB
	cfg Config
}

// Config holds SQLite store configuration
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// NewSQLiteStore creates a new SQLite store instance
func NewSQLiteStore(cfg Config) (*SQLiteStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	// Set defaults
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}

	return &SQLiteStore{
		cfg: cfg,
	}, nil
}

// Init initializes the database connection and enables WAL mode.
func (s *SQLiteStore) Init(ctx context.Context) error {
	// Open database with SQLite-specific connection parameters
	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	// Verify connection and set PRAGMAs
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	// Ensure foreign keys are enabled (connection-level setting)
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs database migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	// Create migration source from embedded FS
	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	// Create database driver
	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	// Create migration instance
	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	// Run migrations
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return s.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
}

// CommitTx commits a transaction
func (s *SQLiteStore) CommitTx(tx *sql.Tx) error {
	return tx.Commit()
}

// RollbackTx rolls back a transaction
func (s *SQLiteStore) RollbackTx(tx *sql.Tx) error {
	return tx.Rollback()
}

// CreateOperation creates a new operation record
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *Operation) error {
	query := `
		INSERT INTO operations (id, subject, kind, status, phase, progress, message, error, result, started_at, completed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		op.ID,
		op.Subject,
		op.Kind,
		op.Status,
		op.Phase,
		op.Progress,
		op.Message,
		op.Error,
		op.Result,
		op.StartedAt,
		op.CompletedAt,
		op.CreatedAt,
		op.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// GetOperation retrieves an operation by ID
func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `
		SELECT id, subject, kind, status, phase, progress, message, error, result, started_at, completed_at, created_at, updated_at
		FROM operations
		WHERE id = ?
	`

	op := &Operation{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&op.ID,
		&op.Subject,
		&op.Kind,
		&op.Status,
		&op.Phase,
		&op.Progress,
		&op.Message,
		&op.Error,
		&op.Result,
		&op.StartedAt,
		&op.CompletedAt,
		&op.CreatedAt,
		&op.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("operation not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// UpdateOperationPhase records a phase transition for a running operation
func (s *SQLiteStore) UpdateOperationPhase(ctx context.Context, id, phase string, progress int, message string) error {
	query := `
		UPDATE operations
		SET phase = ?, progress = ?, message = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, phase, progress, message, id)
	if err != nil {
		return fmt.Errorf("failed to update operation phase: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

// CompleteOperation marks an operation terminal. Phase and progress come in
// through UpdateOperationPhase; this only settles the outcome.
func (s *SQLiteStore) CompleteOperation(ctx context.Context, id string, status OperationStatus, errMsg, resultJSON *string) error {
	query := `
		UPDATE operations
		SET status = ?, error = ?, result = ?, completed_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`

	result, err := s.db.ExecContext(ctx, query, status, errMsg, resultJSON, id)
	if err != nil {
		return fmt.Errorf("failed to complete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

// ListOperations lists a subject's operations, newest first, with pagination
func (s *SQLiteStore) ListOperations(ctx context.Context, subject string, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, subject, kind, status, phase, progress, message, error, result, started_at, completed_at, created_at, updated_at
		FROM operations
		WHERE subject = ?
		ORDER BY started_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, subject, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	ops := []*Operation{}
	for rows.Next() {
		op := &Operation{}
		err := rows.Scan(
			&op.ID,
			&op.Subject,
			&op.Kind,
			&op.Status,
			&op.Phase,
			&op.Progress,
			&op.Message,
			&op.Error,
			&op.Result,
			&op.StartedAt,
			&op.CompletedAt,
			&op.CreatedAt,
			&op.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating operations: %w", err)
	}

	return ops, nil
}

// LatestOperation returns the subject's most recently started operation
func (s *SQLiteStore) LatestOperation(ctx context.Context, subject string) (*Operation, error) {
	ops, err := s.ListOperations(ctx, subject, 1, 0)
	if err != nil {
		return nil, err
	}
	if len(ops) == 0 {
		return nil, fmt.Errorf("no operations recorded for subject: %s", subject)
	}
	return ops[0], nil
}

// DeleteOperation deletes an operation by ID
func (s *SQLiteStore) DeleteOperation(ctx context.Context, id string) error {
	query := `DELETE FROM operations WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return nil
}

// AppendLogEntry appends an event log record. Replaying the same record ID
// refreshes the stored timestamp, which is how coalesced heartbeats stay
// current without growing the log.
func (s *SQLiteStore) AppendLogEntry(ctx context.Context, entry *LogEntry) error {
	query := `
		INSERT INTO log_entries (id, operation_id, type, raw_type, message, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			timestamp = excluded.timestamp
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		entry.OperationID,
		entry.Type,
		entry.RawType,
		entry.Message,
		entry.Timestamp,
	)

	if err != nil {
		return fmt.Errorf("failed to append log entry: %w", err)
	}

	return nil
}

// ListLogEntries lists an operation's log records in arrival order
func (s *SQLiteStore) ListLogEntries(ctx context.Context, operationID string, limit, offset int) ([]*LogEntry, error) {
	query := `
		SELECT id, operation_id, type, raw_type, message, timestamp
		FROM log_entries
		WHERE operation_id = ?
		ORDER BY timestamp ASC, rowid ASC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, operationID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list log entries: %w", err)
	}
	defer rows.Close()

	entries := []*LogEntry{}
	for rows.Next() {
		entry := &LogEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.OperationID,
			&entry.Type,
			&entry.RawType,
			&entry.Message,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating log entries: %w", err)
	}

	return entries, nil
}

// UpsertGeneratedFile inserts or replaces one generated artifact
func (s *SQLiteStore) UpsertGeneratedFile(ctx context.Context, file *GeneratedFile) error {
	query := `
		INSERT INTO generated_files (operation_id, path, content, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(operation_id, path) DO UPDATE SET
			content = excluded.content
	`

	result, err := s.db.ExecContext(ctx, query,
		file.OperationID,
		file.Path,
		file.Content,
		file.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to upsert generated file: %w", err)
	}

	// Get the auto-generated ID
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get generated file ID: %w", err)
	}

	file.ID = id
	return nil
}

// ListGeneratedFiles lists an operation's generated artifacts by path
func (s *SQLiteStore) ListGeneratedFiles(ctx context.Context, operationID string) ([]*GeneratedFile, error) {
	query := `
		SELECT id, operation_id, path, content, created_at
		FROM generated_files
		WHERE operation_id = ?
		ORDER BY path ASC
	`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list generated files: %w", err)
	}
	defer rows.Close()

	files := []*GeneratedFile{}
	for rows.Next() {
		file := &GeneratedFile{}
		err := rows.Scan(
			&file.ID,
			&file.OperationID,
			&file.Path,
			&file.Content,
			&file.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan generated file: %w", err)
		}
		files = append(files, file)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating generated files: %w", err)
	}

	return files, nil
}

// HealthCheck verifies the database connection is healthy
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}
