package stores

import (
	"context"
	"database/sql"
	"time"
)

// OperationStatus is the recorded lifecycle status of a tracked operation.
type OperationStatus string

const (
	OperationStatusRunning   OperationStatus = "running"
	OperationStatusSucceeded OperationStatus = "succeeded"
	OperationStatusFailed    OperationStatus = "failed"
)

// Operation is one tracked server-side operation: a plan, apply, destroy,
// or generate run observed through the push stream.
type Operation struct {
	ID          string          `json:"id"`
	Subject     string          `json:"subject"`
	Kind        string          `json:"kind"`
	Status      OperationStatus `json:"status"`
	Phase       string          `json:"phase"`
	Progress    int             `json:"progress"`
	Message     string          `json:"message"`
	Error       *string         `json:"error,omitempty"`
	Result      *string         `json:"result,omitempty"` // JSON blob
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// LogEntry is one durable record of the append-only event log. The ID is
// assigned by the in-memory aggregator, so replaying a coalesced heartbeat
// refreshes the existing row instead of inserting a new one.
type LogEntry struct {
	ID          string    `json:"id"`
	OperationID string    `json:"operation_id"`
	Type        string    `json:"type"`
	RawType     string    `json:"raw_type,omitempty"`
	Message     string    `json:"message"`
	Timestamp   time.Time `json:"timestamp"`
}

// GeneratedFile is one artifact produced by a generation operation.
type GeneratedFile struct {
	ID          int64     `json:"id"`
	OperationID string    `json:"operation_id"`
	Path        string    `json:"path"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store defines the interface for the persistence layer
type Store interface {
	// Lifecycle
	Init(ctx context.Context) error
	Close() error
	Migrate(ctx context.Context) error

	// Transaction support
	BeginTx(ctx context.Context) (*sql.Tx, error)
	CommitTx(tx *sql.Tx) error
	RollbackTx(tx *sql.Tx) error

	// Operation records
	CreateOperation(ctx context.Context, op *Operation) error
	GetOperation(ctx context.Context, id string) (*Operation, error)
	UpdateOperationPhase(ctx context.Context, id, phase string, progress int, message string) error
	CompleteOperation(ctx context.Context, id string, status OperationStatus, errMsg, result *string) error
	ListOperations(ctx context.Context, subject string, limit, offset int) ([]*Operation, error)
	LatestOperation(ctx context.Context, subject string) (*Operation, error)
	DeleteOperation(ctx context.Context, id string) error

	// Event log
	AppendLogEntry(ctx context.Context, entry *LogEntry) error
	ListLogEntries(ctx context.Context, operationID string, limit, offset int) ([]*LogEntry, error)

	// Generated artifacts
	UpsertGeneratedFile(ctx context.Context, file *GeneratedFile) error
	ListGeneratedFiles(ctx context.Context, operationID string) ([]*GeneratedFile, error)

	// Utility
	HealthCheck(ctx context.Context) error
}
