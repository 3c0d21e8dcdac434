package commands

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/skylift/skylift/pkg/stores"
	"github.com/skylift/skylift/pkg/telemetry"
	"github.com/skylift/skylift/pkg/tracker"
)

// recorder persists tracker signals into the local database. Signals can
// fire before the operation id is known (the initial phase signal arrives
// inside Start), so everything is buffered until bind is called with the
// operation handle. Store failures are logged, never fatal: the live view
// keeps working when the disk does not.
type recorder struct {
	store  stores.Store
	logger *telemetry.Logger

	mu      sync.Mutex
	opID    string
	pending []func(ctx context.Context)
}

func newRecorder(store stores.Store, logger *telemetry.Logger) *recorder {
	return &recorder{
		store:  store,
		logger: logger.NewComponentLogger("recorder"),
	}
}

// bind creates the operation row and flushes buffered signals.
func (r *recorder) bind(ctx context.Context, subject string, handle tracker.OperationHandle, state tracker.PhaseState) {
	now := time.Now().UTC()
	op := &stores.Operation{
		ID:        handle.OperationID,
		Subject:   subject,
		Kind:      string(handle.Kind),
		Status:    stores.OperationStatusRunning,
		Phase:     string(state.Phase),
		Progress:  state.Progress,
		Message:   state.Message,
		StartedAt: handle.StartedAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.store.CreateOperation(ctx, op); err != nil {
		r.logger.WithError(err).Warn("Failed to record operation start")
		return
	}

	r.mu.Lock()
	r.opID = handle.OperationID
	pending := r.pending
	r.pending = nil
	r.mu.Unlock()

	for _, fn := range pending {
		fn(ctx)
	}
}

// enqueue runs fn now when bound, or buffers it until bind.
func (r *recorder) enqueue(fn func(ctx context.Context, opID string)) {
	r.mu.Lock()
	opID := r.opID
	if opID == "" {
		r.pending = append(r.pending, func(ctx context.Context) {
			r.mu.Lock()
			id := r.opID
			r.mu.Unlock()
			fn(ctx, id)
		})
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	fn(context.Background(), opID)
}

// phase persists one phase transition.
func (r *recorder) phase(state tracker.PhaseState) {
	r.enqueue(func(ctx context.Context, opID string) {
		err := r.store.UpdateOperationPhase(ctx, opID, string(state.Phase), state.Progress, state.Message)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to record phase transition")
		}
	})
}

// log persists one event log record.
func (r *recorder) log(rec tracker.LogRecord) {
	r.enqueue(func(ctx context.Context, opID string) {
		entry := &stores.LogEntry{
			ID:          rec.ID,
			OperationID: opID,
			Type:        string(rec.Type),
			RawType:     rec.RawType,
			Message:     rec.Message,
			Timestamp:   rec.Timestamp,
		}
		if err := r.store.AppendLogEntry(ctx, entry); err != nil {
			r.logger.WithError(err).Warn("Failed to record log entry")
		}
	})
}

// terminal settles the operation row and persists generated artifacts.
func (r *recorder) terminal(success bool, state tracker.PhaseState) {
	r.enqueue(func(ctx context.Context, opID string) {
		status := stores.OperationStatusSucceeded
		var errMsg *string
		if !success {
			status = stores.OperationStatusFailed
			msg := state.Error
			errMsg = &msg
		}

		var resultJSON *string
		if buf, err := json.Marshal(state.Result); err == nil {
			s := string(buf)
			resultJSON = &s
		}

		if err := r.store.CompleteOperation(ctx, opID, status, errMsg, resultJSON); err != nil {
			r.logger.WithError(err).Warn("Failed to record operation outcome")
		}

		now := time.Now().UTC()
		for path, content := range state.Result.Files {
			file := &stores.GeneratedFile{
				OperationID: opID,
				Path:        path,
				Content:     content,
				CreatedAt:   now,
			}
			if err := r.store.UpsertGeneratedFile(ctx, file); err != nil {
				r.logger.WithError(err).WithField("path", path).Warn("Failed to record generated file")
			}
		}
	})
}
