package tracker

import (
	"testing"

	"github.com/skylift/skylift/pkg/protocol"
)

func statusEvent(message string) *protocol.Event {
	return &protocol.Event{Type: protocol.EventStatus, RawType: "status", Message: message}
}

func completeEvent(success bool, message string, result *protocol.ResultPayload) *protocol.Event {
	return &protocol.Event{
		Type:    protocol.EventOperationComplete,
		RawType: "complete",
		Message: message,
		Success: success,
		Result:  result,
	}
}

func TestNewPhaseState(t *testing.T) {
	state := NewPhaseState(KindPlan)
	if state.Phase != PhasePlanning {
		t.Errorf("initial phase = %s, want %s", state.Phase, PhasePlanning)
	}
	if state.Progress != 0 {
		t.Errorf("initial progress = %d, want 0", state.Progress)
	}
	if state.InProgress() != true {
		t.Error("plan state should be in progress")
	}

	idle := NewPhaseState(KindGenerate)
	if idle.Phase != PhaseConnecting {
		t.Errorf("initial generate phase = %s, want %s", idle.Phase, PhaseConnecting)
	}
}

func TestPlanLifecycle(t *testing.T) {
	state := NewPhaseState(KindPlan)

	if !state.Apply(statusEvent("Validating credentials")) {
		t.Fatal("expected state change")
	}
	if state.Phase != PhaseValidating || state.Progress != 10 {
		t.Fatalf("after validating: phase=%s progress=%d", state.Phase, state.Progress)
	}

	if !state.Apply(statusEvent("Planning infrastructure changes")) {
		t.Fatal("expected state change")
	}
	if state.Phase != PhasePlanning || state.Progress != 25 {
		t.Fatalf("after planning: phase=%s progress=%d", state.Phase, state.Progress)
	}

	result := &protocol.ResultPayload{PlanOutput: "Plan: 3 to add, 0 to change, 0 to destroy."}
	if !state.Apply(completeEvent(true, "Plan generated", result)) {
		t.Fatal("expected state change on completion")
	}
	if state.Phase != PhasePlanReady || state.Progress != 50 {
		t.Fatalf("after completion: phase=%s progress=%d", state.Phase, state.Progress)
	}
	if state.Message != "Plan generated" {
		t.Errorf("message = %q", state.Message)
	}
	if state.Result.PlanOutput != result.PlanOutput {
		t.Errorf("plan output = %q", state.Result.PlanOutput)
	}
	if state.InProgress() {
		t.Error("terminal state should not be in progress")
	}
}

func TestApplyLifecycle(t *testing.T) {
	state := NewPhaseState(KindApply)

	state.Apply(statusEvent("Provisioning compute instances"))
	if state.Phase != PhaseDeploying || state.Progress != 75 {
		t.Fatalf("after provisioning: phase=%s progress=%d", state.Phase, state.Progress)
	}

	outputs := map[string]string{"url": "https://app.example.com"}
	state.Apply(completeEvent(true, "", &protocol.ResultPayload{Outputs: outputs}))
	if state.Phase != PhaseDeployed || state.Progress != 100 {
		t.Fatalf("after completion: phase=%s progress=%d", state.Phase, state.Progress)
	}
	if state.Result.Outputs["url"] != "https://app.example.com" {
		t.Errorf("outputs = %v", state.Result.Outputs)
	}
}

func TestDuplicateTerminalIsIdempotent(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(completeEvent(true, "done", nil))

	if state.Apply(completeEvent(true, "done again", nil)) {
		t.Error("duplicate terminal event should not change state")
	}
	if state.Apply(statusEvent("late status")) {
		t.Error("post-terminal status should not change state")
	}
	if state.Phase != PhaseDeployed || state.Message != "done" {
		t.Errorf("state mutated after terminal: %+v", state)
	}
}

func TestGenerateLifecycle(t *testing.T) {
	state := NewPhaseState(KindGenerate)

	if !state.Apply(&protocol.Event{Type: protocol.EventAnalysisStart}) {
		t.Fatal("expected state change on analysis start")
	}
	if state.Phase != PhaseAnalyzing || state.Progress != 40 {
		t.Fatalf("after analysis start: phase=%s progress=%d", state.Phase, state.Progress)
	}
	if state.Message != "Analyzing repository" {
		t.Errorf("message = %q", state.Message)
	}

	state.Apply(&protocol.Event{Type: protocol.EventAnalysisChunk, Content: "This repo "})
	state.Apply(&protocol.Event{Type: protocol.EventAnalysisChunk, Content: "is a Go service."})
	if state.Result.AnalysisText != "This repo is a Go service." {
		t.Errorf("analysis text = %q", state.Result.AnalysisText)
	}
	if state.Apply(&protocol.Event{Type: protocol.EventAnalysisChunk}) {
		t.Error("empty chunk should not change state")
	}

	if !state.Apply(&protocol.Event{Type: protocol.EventAnalysisComplete}) {
		t.Fatal("expected state change on analysis complete")
	}
	if state.Message != "Analysis complete" {
		t.Errorf("message = %q", state.Message)
	}
	if state.Apply(&protocol.Event{Type: protocol.EventAnalysisComplete}) {
		t.Error("repeated analysis complete should not change state")
	}

	state.Apply(statusEvent("Generating Terraform code"))
	if state.Phase != PhaseGenerating || state.Progress != 80 {
		t.Fatalf("after generating: phase=%s progress=%d", state.Phase, state.Progress)
	}

	state.Apply(&protocol.Event{
		Type:  protocol.EventArtifactProduced,
		Files: map[string]string{"main.tf": "v1", "vars.tf": "vars"},
	})
	state.Apply(&protocol.Event{
		Type:       protocol.EventArtifactProduced,
		Files:      map[string]string{"main.tf": "v2"},
		GitHubURLs: map[string]string{"infra": "https://github.com/acme/infra"},
	})
	if got := state.Result.Files["main.tf"]; got != "v2" {
		t.Errorf("later artifact should win, got %q", got)
	}
	if got := state.Result.Files["vars.tf"]; got != "vars" {
		t.Errorf("earlier artifact lost, got %q", got)
	}
	if state.Result.RepositoryURLs["infra"] == "" {
		t.Error("repository URL not merged")
	}

	state.Apply(statusEvent("Committing files to repository"))
	if state.Phase != PhaseCommitting || state.Progress != 90 {
		t.Fatalf("after committing: phase=%s progress=%d", state.Phase, state.Progress)
	}

	state.Apply(completeEvent(true, "Infrastructure generated", nil))
	if state.Phase != PhaseReadyToDeploy || state.Progress != 100 {
		t.Fatalf("after completion: phase=%s progress=%d", state.Phase, state.Progress)
	}
	if state.Result.Files["main.tf"] != "v2" {
		t.Error("files should survive completion")
	}
}

func TestProgressNeverRegresses(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(statusEvent("Deploying application"))
	if state.Progress != 75 {
		t.Fatalf("progress = %d, want 75", state.Progress)
	}

	// A lower-ranked keyword arriving late must not pull progress back.
	changed := state.Apply(statusEvent("Planning follow-up changes"))
	if state.Phase != PhaseDeploying || state.Progress != 75 {
		t.Fatalf("regressed: phase=%s progress=%d", state.Phase, state.Progress)
	}
	// Message still updates.
	if !changed || state.Message != "Planning follow-up changes" {
		t.Errorf("changed=%v message=%q", changed, state.Message)
	}
}

func TestUnmatchedStatusKeepsPhase(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(statusEvent("Deploying application"))

	if !state.Apply(statusEvent("Waiting for the backend")) {
		t.Fatal("new message should count as a change")
	}
	if state.Phase != PhaseDeploying || state.Progress != 75 {
		t.Fatalf("phase=%s progress=%d", state.Phase, state.Progress)
	}

	if state.Apply(statusEvent("Waiting for the backend")) {
		t.Error("identical message should not count as a change")
	}
	if state.Apply(statusEvent("")) {
		t.Error("empty message should not count as a change")
	}
}

func TestFailureFreezesProgress(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(statusEvent("Deploying application"))

	evt := &protocol.Event{Type: protocol.EventOperationError, Message: "quota exceeded"}
	if !state.Apply(evt) {
		t.Fatal("expected state change on error")
	}
	if state.Phase != PhaseFailed {
		t.Errorf("phase = %s, want %s", state.Phase, PhaseFailed)
	}
	if state.Progress != 75 {
		t.Errorf("progress = %d, want frozen 75", state.Progress)
	}
	if state.Error != "quota exceeded" || state.Message != "quota exceeded" {
		t.Errorf("error=%q message=%q", state.Error, state.Message)
	}
}

func TestConnectionLostFails(t *testing.T) {
	state := NewPhaseState(KindPlan)
	state.Apply(statusEvent("Planning infrastructure"))

	if !state.Apply(protocol.NewConnectionLost()) {
		t.Fatal("expected state change")
	}
	if state.Phase != PhaseFailed || state.Error != "stream disconnected" {
		t.Fatalf("phase=%s error=%q", state.Phase, state.Error)
	}
	if state.Progress != 25 {
		t.Errorf("progress = %d, want frozen 25", state.Progress)
	}
	if state.Apply(statusEvent("late status")) {
		t.Error("events after disconnect should be no-ops")
	}
}

func TestFailureMessageFallback(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(completeEvent(false, "", &protocol.ResultPayload{Error: "terraform exited 1"}))
	if state.Error != "terraform exited 1" {
		t.Errorf("error = %q, want result error", state.Error)
	}

	state = NewPhaseState(KindApply)
	state.Apply(completeEvent(false, "", nil))
	if state.Error != "operation failed" {
		t.Errorf("error = %q, want default", state.Error)
	}
}

func TestLivenessEventsIgnored(t *testing.T) {
	state := NewPhaseState(KindApply)
	for _, evt := range []*protocol.Event{
		{Type: protocol.EventConnected},
		{Type: protocol.EventHeartbeat},
		{Type: protocol.EventUnknown, RawType: "mystery"},
		{Type: protocol.EventProgressOutput, Content: "aws_instance.web: Creating...\n"},
	} {
		if state.Apply(evt) {
			t.Errorf("event %s should not change phase state", evt.Type)
		}
	}
}

func TestReset(t *testing.T) {
	state := NewPhaseState(KindApply)
	state.Apply(statusEvent("Deploying application"))
	state.Apply(completeEvent(false, "boom", nil))

	state.Reset(KindPlan)
	if state.Phase != PhasePlanning || state.Progress != 0 {
		t.Fatalf("after reset: phase=%s progress=%d", state.Phase, state.Progress)
	}
	if state.Error != "" || state.Message != "" {
		t.Errorf("reset should clear error and message: %+v", state)
	}
}
