package tracker

import (
	"context"
)

// Resting status values reported by the workflow-status endpoint.
const (
	StatusNotStarted   = "not_started"
	StatusInitializing = "initializing"
	StatusAnalyzing    = "analyzing"
	StatusPlanning     = "planning"
	StatusGenerating   = "generating"
	StatusProvisioning = "provisioning"
	StatusConfiguring  = "configuring"
	StatusDeploying    = "deploying"
	StatusDeployed     = "deployed"
	StatusDestroying   = "destroying"
	StatusDestroyed    = "destroyed"
	StatusFailed       = "failed"
	StatusPaused       = "paused"
)

// RestingStatus is a point-in-time answer from the synchronous status
// endpoint, independent of any open stream.
type RestingStatus struct {
	// Status is one of the Status* constants, or free text for forward
	// compatibility.
	Status string `json:"status"`

	// Error carries the failure reason when Status is failed.
	Error string `json:"error,omitempty"`

	// DeploymentURL is the primary service URL once deployed.
	DeploymentURL string `json:"deployment_url,omitempty"`

	// Endpoints are all deployed endpoints keyed by name.
	Endpoints map[string]string `json:"endpoints,omitempty"`
}

// Reconcile fetches the subject's resting status and, when no stream
// session is live, replaces the phase state with its mapping so a finished
// or mid-flight operation is reflected without waiting on a stream. The
// fetch is bounded by the configured timeout; on failure the returned state
// is the best-effort unknown phase rather than an indefinite hang.
//
// Reconcile never opens a stream. When the returned state reports
// InProgress, the caller decides whether to attach a subscriber.
func (t *Tracker) Reconcile(ctx context.Context) (PhaseState, error) {
	t.mu.Lock()
	live := t.sess != nil
	current := t.state
	t.mu.Unlock()
	if live {
		// A live session already owns the state; the stream is the fresher
		// source of truth.
		return current, nil
	}

	ctx, cancel := context.WithTimeout(ctx, t.reconcileTimeout)
	defer cancel()

	rs, err := t.backend.FetchStatus(ctx, t.subject)
	if err != nil {
		t.logger.WithError(err).Warn("status fetch failed")
		return PhaseState{Phase: PhaseUnknown, Message: "status unknown"}, err
	}

	mapped := MapRestingStatus(rs)

	t.mu.Lock()
	if t.sess != nil {
		// A session opened while we were fetching; its events win.
		current = t.state
		t.mu.Unlock()
		return current, nil
	}
	changed := t.state.Phase != mapped.Phase || t.state.Message != mapped.Message
	t.state = mapped
	t.lastKind = mapped.Kind
	phaseFn := t.onPhaseChange
	t.mu.Unlock()

	if changed && phaseFn != nil {
		phaseFn(mapped)
	}
	return mapped, nil
}

// MapRestingStatus maps a resting status onto the phase state the full
// event replay for that outcome would have produced.
func MapRestingStatus(rs *RestingStatus) PhaseState {
	state := PhaseState{Message: rs.Status}

	switch rs.Status {
	case StatusNotStarted:
		state.Kind = KindPlan
		state.Phase = PhaseAwaitingCredentials

	case StatusPlanning:
		state.Kind = KindPlan
		state.Phase = PhasePlanning

	case StatusProvisioning, StatusConfiguring, StatusDeploying:
		state.Kind = KindApply
		state.Phase = PhaseDeploying

	case StatusDeployed:
		state.Kind = KindApply
		state.Phase = PhaseDeployed
		state.Message = "deployed"
		if rs.DeploymentURL != "" || len(rs.Endpoints) > 0 {
			state.Result.Outputs = make(map[string]string, len(rs.Endpoints)+1)
			if rs.DeploymentURL != "" {
				state.Result.Outputs["url"] = rs.DeploymentURL
			}
			for name, url := range rs.Endpoints {
				state.Result.Outputs[name] = url
			}
		}

	case StatusDestroying:
		state.Kind = KindDestroy
		state.Phase = PhaseDestroying

	case StatusDestroyed:
		state.Kind = KindDestroy
		state.Phase = PhaseDestroyed

	case StatusInitializing, StatusAnalyzing:
		state.Kind = KindGenerate
		state.Phase = PhaseAnalyzing

	case StatusGenerating:
		state.Kind = KindGenerate
		state.Phase = PhaseGenerating

	case StatusPaused:
		// Paused is a resting hold, not a failure and not in flight. Leave
		// the status text as the message so callers can tell it apart from
		// a project that was never started.
		state.Kind = KindApply
		state.Phase = PhaseAwaitingCredentials

	case StatusFailed:
		state.Phase = PhaseFailed
		state.Error = rs.Error
		if state.Error == "" {
			state.Error = "operation failed"
		}
		state.Message = state.Error

	default:
		state.Phase = PhaseUnknown
		state.Message = "status unknown"
	}

	if p := state.Phase.Progress(); p >= 0 {
		state.Progress = p
	}
	return state
}
