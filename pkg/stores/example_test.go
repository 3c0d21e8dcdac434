package stores_test

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/skylift/skylift/pkg/stores"
)

// ExampleNewSQLiteStore demonstrates creating and initializing a new SQLite store.
func ExampleNewSQLiteStore() {
	// Create store configuration
	store, err := stores.NewSQLiteStore(stores.Config{
		Path:            ":memory:", // Use in-memory database for example
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	})
	if err != nil {
		log.Fatal(err)
	}

	// Initialize the database connection
	ctx := context.Background()
	if err := store.Init(ctx); err != nil {
		log.Fatal(err)
	}

	// Run migrations
	if err := store.Migrate(ctx); err != nil {
		log.Fatal(err)
	}

	defer store.Close()

	// Store is now ready to use
	fmt.Println("Store initialized successfully")
	// Output: Store initialized successfully
}

// ExampleSQLiteStore_CreateOperation demonstrates recording a tracked operation.
func ExampleSQLiteStore_CreateOperation() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record a newly started operation
	op := &stores.Operation{
		ID:        "op-001",
		Subject:   "project-demo",
		Kind:      "apply",
		Status:    stores.OperationStatusRunning,
		Phase:     "deploying",
		Progress:  75,
		Message:   "Deploying infrastructure",
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	if err := store.CreateOperation(ctx, op); err != nil {
		log.Fatal(err)
	}

	// Retrieve the operation
	retrieved, err := store.GetOperation(ctx, "op-001")
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Operation: %s, Phase: %s\n", retrieved.ID, retrieved.Phase)
	// Output: Operation: op-001, Phase: deploying
}

// ExampleSQLiteStore_AppendLogEntry demonstrates persisting the event log.
func ExampleSQLiteStore_AppendLogEntry() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record the owning operation first
	op := &stores.Operation{
		ID:        "op-002",
		Subject:   "project-demo",
		Kind:      "plan",
		Status:    stores.OperationStatusRunning,
		Phase:     "planning",
		Progress:  25,
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = store.CreateOperation(ctx, op)

	// Append a log record
	entry := &stores.LogEntry{
		ID:          "rec-001",
		OperationID: op.ID,
		Type:        "status",
		RawType:     "terraform_status",
		Message:     "Planning infrastructure",
		Timestamp:   time.Now(),
	}

	if err := store.AppendLogEntry(ctx, entry); err != nil {
		log.Fatal(err)
	}

	// Retrieve the log
	entries, err := store.ListLogEntries(ctx, op.ID, 10, 0)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("Entry count: %d, Message: %s\n", len(entries), entries[0].Message)
	// Output: Entry count: 1, Message: Planning infrastructure
}

// ExampleSQLiteStore_UpsertGeneratedFile demonstrates storing generated artifacts.
func ExampleSQLiteStore_UpsertGeneratedFile() {
	store, _ := stores.NewSQLiteStore(stores.Config{Path: ":memory:"})
	ctx := context.Background()
	_ = store.Init(ctx)
	_ = store.Migrate(ctx)
	defer store.Close()

	// Record the owning operation first
	op := &stores.Operation{
		ID:        "op-003",
		Subject:   "project-demo",
		Kind:      "generate",
		Status:    stores.OperationStatusRunning,
		Phase:     "generating",
		Progress:  80,
		StartedAt: time.Now(),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	_ = store.CreateOperation(ctx, op)

	// Store a generated file
	file := &stores.GeneratedFile{
		OperationID: op.ID,
		Path:        "main.tf",
		Content:     `resource "google_cloud_run_service" "app" {}`,
		CreatedAt:   time.Now(),
	}

	if err := store.UpsertGeneratedFile(ctx, file); err != nil {
		log.Fatal(err)
	}

	// List the operation's artifacts
	files, err := store.ListGeneratedFiles(ctx, op.ID)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Printf("File count: %d, Path: %s\n", len(files), files[0].Path)
	// Output: File count: 1, Path: main.tf
}
