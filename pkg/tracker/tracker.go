// Package tracker turns the deployment backend's push stream into a live,
// monotonic progress record. It owns the phase state machine, the append-only
// event log, and the stream session lifecycle for one subject (project).
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/skylift/skylift/pkg/protocol"
	"github.com/skylift/skylift/pkg/telemetry"
)

// Backend is the synchronous half of the deployment API: it starts
// operations and answers point-in-time status questions. Implementations
// return *TrackerError so callers can classify failures.
type Backend interface {
	// StartOperation starts a server-side operation for the subject and
	// returns its operation id.
	StartOperation(ctx context.Context, subject string, kind OperationKind, params map[string]string) (string, error)

	// FetchStatus returns the subject's resting status without opening a
	// stream.
	FetchStatus(ctx context.Context, subject string) (*RestingStatus, error)
}

// StreamOpener opens the push channel for one operation id and delivers
// classified events strictly in arrival order, one at a time. The returned
// cancel function is idempotent, safe after natural termination, and
// local-observation-only: the remote job may keep running.
type StreamOpener interface {
	Open(ctx context.Context, operationID string, deliver func(*protocol.Event)) (cancel func(), err error)
}

// Config configures a Tracker.
type Config struct {
	// Subject is the project this tracker owns state for.
	Subject string

	// Backend starts operations and serves resting status.
	Backend Backend

	// Streams opens push channels.
	Streams StreamOpener

	// Logger is the component logger. A zero value logs to stdout.
	Logger *telemetry.Logger

	// Metrics records tracker metrics. Optional.
	Metrics *telemetry.Metrics

	// CoalesceWindow bounds heartbeat coalescing in the log. Zero means
	// DefaultCoalesceWindow.
	CoalesceWindow time.Duration

	// ReconcileTimeout bounds a resting-status fetch. Zero means 10s.
	ReconcileTimeout time.Duration
}

// Tracker serializes all PhaseState mutation for one subject. Exactly one
// stream session is live at a time; starting a new operation of any kind
// replaces the previous session (last writer wins).
type Tracker struct {
	subject          string
	backend          Backend
	streams          StreamOpener
	logger           *telemetry.Logger
	metrics          *telemetry.Metrics
	reconcileTimeout time.Duration

	mu     sync.Mutex
	state  PhaseState
	handle *OperationHandle
	sess   *session
	log    *LogAggregator

	lastKind   OperationKind
	lastParams map[string]string

	onPhaseChange func(PhaseState)
	onLogAppended func(LogRecord)
	onTerminal    func(success bool, state PhaseState)
}

// session is the exclusively owned handle on one open push channel.
type session struct {
	operationID string
	cancel      func()
	terminal    bool
}

// New creates a tracker for one subject.
func New(cfg Config) (*Tracker, error) {
	if cfg.Subject == "" {
		return nil, NewValidationError("subject is required")
	}
	if cfg.Backend == nil {
		return nil, NewValidationError("backend is required")
	}
	if cfg.Streams == nil {
		return nil, NewValidationError("stream opener is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	timeout := cfg.ReconcileTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Tracker{
		subject:          cfg.Subject,
		backend:          cfg.Backend,
		streams:          cfg.Streams,
		logger:           logger.NewComponentLogger("tracker").WithField("subject", cfg.Subject),
		metrics:          cfg.Metrics,
		reconcileTimeout: timeout,
		state:            PhaseState{Phase: PhaseNotStarted},
		log:              NewLogAggregator(cfg.CoalesceWindow),
	}, nil
}

// OnPhaseChange registers the phase-change signal. Register before Start.
func (t *Tracker) OnPhaseChange(fn func(PhaseState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onPhaseChange = fn
}

// OnLogAppended registers the log-append signal. Register before Start.
func (t *Tracker) OnLogAppended(fn func(LogRecord)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLogAppended = fn
}

// OnTerminal registers the terminal signal, fired exactly once per
// operation. Register before Start.
func (t *Tracker) OnTerminal(fn func(success bool, state PhaseState)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onTerminal = fn
}

// Start begins a new operation: it cancels any live session, resets the
// phase state to the kind's initial phase, starts the server-side job, and
// opens its push channel. Preconditions (a successful plan before apply,
// and so on) are the caller's responsibility.
func (t *Tracker) Start(ctx context.Context, kind OperationKind, params map[string]string) (OperationHandle, error) {
	if err := kind.Validate(); err != nil {
		return OperationHandle{}, NewValidationError(err.Error()).WithCode(ErrCodeValidationFailed)
	}

	// Replace any live session before the new operation exists so two
	// sessions never mutate one PhaseState.
	t.Cancel()

	opID, err := t.backend.StartOperation(ctx, t.subject, kind, params)
	if err != nil {
		return OperationHandle{}, err
	}

	handle := OperationHandle{
		OperationID: opID,
		Kind:        kind,
		StartedAt:   time.Now().UTC(),
	}

	t.mu.Lock()
	t.state.Reset(kind)
	t.handle = &handle
	t.lastKind = kind
	t.lastParams = params
	sess := &session{operationID: opID}
	t.sess = sess
	initial := t.state
	phaseFn := t.onPhaseChange
	t.mu.Unlock()

	t.metrics.RecordOperationStarted(string(kind))
	t.logger.WithField("operation_id", opID).Infof("started %s operation", kind)
	if phaseFn != nil {
		phaseFn(initial)
	}

	cancel, err := t.streams.Open(ctx, opID, func(evt *protocol.Event) {
		t.deliver(sess, evt)
	})
	if err != nil {
		terr := NewTransportError("failed to open stream", err).WithOperation(opID)
		t.deliver(sess, protocol.NewConnectionLost())
		return handle, terr
	}

	t.mu.Lock()
	if t.sess == sess {
		sess.cancel = cancel
	} else {
		// Replaced while we were opening. Tear the late channel down.
		t.mu.Unlock()
		cancel()
		return handle, nil
	}
	t.mu.Unlock()

	return handle, nil
}

// Retry re-runs the last operation, preserving the accumulated log.
func (t *Tracker) Retry(ctx context.Context) (OperationHandle, error) {
	t.mu.Lock()
	kind := t.lastKind
	params := t.lastParams
	t.mu.Unlock()
	if kind == "" {
		return OperationHandle{}, NewValidationError("no operation to retry")
	}
	return t.Start(ctx, kind, params)
}

// Reset cancels any live session and restores the initial PhaseState for
// the kind, clearing the log. This is the explicit full-reset entrypoint
// hosts use to offer a clean retry.
func (t *Tracker) Reset(kind OperationKind) error {
	if err := kind.Validate(); err != nil {
		return NewValidationError(err.Error())
	}
	t.Cancel()

	t.mu.Lock()
	t.state.Reset(kind)
	t.handle = nil
	t.log.Clear()
	snap := t.state
	phaseFn := t.onPhaseChange
	t.mu.Unlock()

	if phaseFn != nil {
		phaseFn(snap)
	}
	return nil
}

// Cancel tears down the live session, if any. Idempotent; callable any
// number of times. It does not stop the remote job and does not touch the
// phase state: the caller chose to stop observing.
func (t *Tracker) Cancel() {
	t.mu.Lock()
	sess := t.sess
	t.sess = nil
	t.mu.Unlock()

	if sess != nil && sess.cancel != nil {
		sess.cancel()
	}
}

// State returns a snapshot of the current phase state.
func (t *Tracker) State() PhaseState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Handle returns the live operation handle, or nil when no operation has
// been started since the last reset.
func (t *Tracker) Handle() *OperationHandle {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.handle == nil {
		return nil
	}
	h := *t.handle
	return &h
}

// Records returns a copy of the append-only event log.
func (t *Tracker) Records() []LogRecord {
	return t.log.Records()
}

// deliver applies one classified event. All mutation is serialized through
// the tracker lock; signal callbacks run outside it.
func (t *Tracker) deliver(sess *session, evt *protocol.Event) {
	t.mu.Lock()
	if sess != t.sess || sess.terminal {
		t.mu.Unlock()
		// Late event for a replaced or finished session. Not an error.
		t.metrics.RecordStaleEvent()
		t.logger.WithField("operation_id", sess.operationID).
			Debugf("dropping %s event for inactive operation", evt.Type)
		return
	}

	t.metrics.RecordEventClassified(string(evt.Type))

	changed := t.state.Apply(evt)
	rec, appended := t.log.Append(evt)
	if !appended && evt.Type == protocol.EventHeartbeat {
		t.metrics.RecordHeartbeatCoalesced()
	}

	terminal := false
	if evt.Type.IsTerminal() && t.state.Phase.IsTerminal() {
		sess.terminal = true
		terminal = true
		t.sess = nil
	}

	snap := t.state
	phaseFn := t.onPhaseChange
	logFn := t.onLogAppended
	terminalFn := t.onTerminal
	handle := t.handle
	t.mu.Unlock()

	if appended && logFn != nil {
		logFn(rec)
	}
	if changed && phaseFn != nil {
		phaseFn(snap)
	}
	if terminal {
		// A terminal event closes its session exactly once.
		if sess.cancel != nil {
			sess.cancel()
		}
		success := snap.Phase != PhaseFailed
		outcome := "success"
		if !success {
			outcome = "failure"
		}
		var kind OperationKind
		var elapsed time.Duration
		if handle != nil {
			kind = handle.Kind
			elapsed = time.Since(handle.StartedAt)
		}
		t.metrics.RecordOperationCompleted(string(kind), outcome, elapsed)
		t.logger.WithField("operation_id", sess.operationID).
			WithField("phase", string(snap.Phase)).
			Infof("operation finished: %s", outcome)
		if terminalFn != nil {
			terminalFn(success, snap)
		}
	}
}
