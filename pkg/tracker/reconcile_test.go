package tracker

import (
	"context"
	"testing"
)

func TestMapRestingStatus(t *testing.T) {
	tests := []struct {
		name     string
		rs       RestingStatus
		kind     OperationKind
		phase    Phase
		progress int
	}{
		{"not started", RestingStatus{Status: StatusNotStarted}, KindPlan, PhaseAwaitingCredentials, 0},
		{"planning", RestingStatus{Status: StatusPlanning}, KindPlan, PhasePlanning, 25},
		{"provisioning", RestingStatus{Status: StatusProvisioning}, KindApply, PhaseDeploying, 75},
		{"configuring", RestingStatus{Status: StatusConfiguring}, KindApply, PhaseDeploying, 75},
		{"deploying", RestingStatus{Status: StatusDeploying}, KindApply, PhaseDeploying, 75},
		{"deployed", RestingStatus{Status: StatusDeployed}, KindApply, PhaseDeployed, 100},
		{"destroying", RestingStatus{Status: StatusDestroying}, KindDestroy, PhaseDestroying, 75},
		{"destroyed", RestingStatus{Status: StatusDestroyed}, KindDestroy, PhaseDestroyed, 100},
		{"initializing", RestingStatus{Status: StatusInitializing}, KindGenerate, PhaseAnalyzing, 40},
		{"analyzing", RestingStatus{Status: StatusAnalyzing}, KindGenerate, PhaseAnalyzing, 40},
		{"generating", RestingStatus{Status: StatusGenerating}, KindGenerate, PhaseGenerating, 80},
		{"paused", RestingStatus{Status: StatusPaused}, KindApply, PhaseAwaitingCredentials, 0},
		{"failed", RestingStatus{Status: StatusFailed, Error: "boom"}, "", PhaseFailed, 0},
		{"unrecognized", RestingStatus{Status: "hibernating"}, "", PhaseUnknown, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			state := MapRestingStatus(&tt.rs)
			if state.Kind != tt.kind || state.Phase != tt.phase || state.Progress != tt.progress {
				t.Errorf("got kind=%s phase=%s progress=%d, want %s/%s/%d",
					state.Kind, state.Phase, state.Progress, tt.kind, tt.phase, tt.progress)
			}
		})
	}
}

func TestMapRestingStatusDeployedOutputs(t *testing.T) {
	state := MapRestingStatus(&RestingStatus{
		Status:        StatusDeployed,
		DeploymentURL: "https://app.example.com",
		Endpoints:     map[string]string{"api": "https://api.example.com"},
	})
	if state.Message != "deployed" {
		t.Errorf("message = %q", state.Message)
	}
	if state.Result.Outputs["url"] != "https://app.example.com" {
		t.Errorf("url output = %q", state.Result.Outputs["url"])
	}
	if state.Result.Outputs["api"] != "https://api.example.com" {
		t.Errorf("api output = %q", state.Result.Outputs["api"])
	}
}

func TestMapRestingStatusPaused(t *testing.T) {
	state := MapRestingStatus(&RestingStatus{Status: StatusPaused})
	if state.Message != "paused" {
		t.Errorf("message = %q, want %q", state.Message, "paused")
	}
	if state.Phase.IsTerminal() {
		t.Errorf("paused mapped to terminal phase %s", state.Phase)
	}
	if state.Phase == PhaseUnknown {
		t.Error("paused mapped to the unknown phase")
	}
}

func TestMapRestingStatusFailedDefaults(t *testing.T) {
	state := MapRestingStatus(&RestingStatus{Status: StatusFailed})
	if state.Error != "operation failed" || state.Message != "operation failed" {
		t.Errorf("error=%q message=%q", state.Error, state.Message)
	}

	state = MapRestingStatus(&RestingStatus{Status: StatusFailed, Error: "credentials rejected"})
	if state.Error != "credentials rejected" {
		t.Errorf("error = %q", state.Error)
	}
}

func TestReconcileMapsStatus(t *testing.T) {
	backend := &mockBackend{status: &RestingStatus{Status: StatusDeployed, DeploymentURL: "https://app.example.com"}}
	trk := newTestTracker(t, backend, newMockOpener())

	var signal *PhaseState
	trk.OnPhaseChange(func(s PhaseState) { signal = &s })

	state, err := trk.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if state.Phase != PhaseDeployed || state.Progress != 100 {
		t.Fatalf("state = %+v", state)
	}
	if got := trk.State(); got.Phase != PhaseDeployed {
		t.Errorf("tracker state not replaced: %+v", got)
	}
	if signal == nil || signal.Phase != PhaseDeployed {
		t.Errorf("phase signal = %+v", signal)
	}
}

func TestReconcileFetchFailure(t *testing.T) {
	backend := &mockBackend{statusErr: NewTransportError("request failed", nil)}
	trk := newTestTracker(t, backend, newMockOpener())

	state, err := trk.Reconcile(context.Background())
	if !IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if state.Phase != PhaseUnknown || state.Message != "status unknown" {
		t.Errorf("state = %+v", state)
	}
}

func TestReconcileLiveSessionWins(t *testing.T) {
	backend := &mockBackend{status: &RestingStatus{Status: StatusDestroyed}}
	opener := newMockOpener()
	trk := newTestTracker(t, backend, opener)

	if _, err := trk.Start(context.Background(), KindApply, nil); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	opener.send("op-1", statusEvent("Deploying application"))

	state, err := trk.Reconcile(context.Background())
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if state.Phase != PhaseDeploying {
		t.Errorf("live session state overridden: %+v", state)
	}
	if backend.fetchCalls != 0 {
		t.Errorf("status fetched despite live session: %d calls", backend.fetchCalls)
	}
}

func TestReconcileRepeatDoesNotResignal(t *testing.T) {
	backend := &mockBackend{status: &RestingStatus{Status: StatusDeployed}}
	trk := newTestTracker(t, backend, newMockOpener())

	signals := 0
	trk.OnPhaseChange(func(PhaseState) { signals++ })

	if _, err := trk.Reconcile(context.Background()); err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if _, err := trk.Reconcile(context.Background()); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	if signals != 1 {
		t.Errorf("phase signals = %d, want 1", signals)
	}
}
