package tracker

import (
	"time"

	"github.com/skylift/skylift/pkg/protocol"
)

// OperationHandle identifies one running server-side operation. Handles are
// immutable; a new operation of the same kind replaces the old handle.
type OperationHandle struct {
	OperationID string        `json:"operation_id"`
	Kind        OperationKind `json:"kind"`
	StartedAt   time.Time     `json:"started_at"`
}

// OperationResult holds the kind-specific payload accumulated over an
// operation's lifetime.
type OperationResult struct {
	// PlanOutput is the rendered plan text from a successful plan.
	PlanOutput string `json:"plan_output,omitempty"`

	// Outputs are the key/value deployment outputs from a successful apply.
	Outputs map[string]string `json:"outputs,omitempty"`

	// AnalysisText is the accumulated AI analysis text. Chunks append, they
	// never replace.
	AnalysisText string `json:"analysis_text,omitempty"`

	// Files maps generated file paths to contents. Later messages overwrite
	// the same path.
	Files map[string]string `json:"files,omitempty"`

	// RepositoryURLs maps repository names to their URLs.
	RepositoryURLs map[string]string `json:"repository_urls,omitempty"`
}

// PhaseState is the single owned progress record for one subject. It is
// mutated only by Apply and Reset, under the tracker's lock.
type PhaseState struct {
	Kind     OperationKind   `json:"kind"`
	Phase    Phase           `json:"phase"`
	Message  string          `json:"message,omitempty"`
	Progress int             `json:"progress"`
	Error    string          `json:"error,omitempty"`
	Result   OperationResult `json:"result"`
}

// NewPhaseState returns the initial state for an operation of the given
// kind: the kind's initial phase at progress zero.
func NewPhaseState(kind OperationKind) PhaseState {
	return PhaseState{
		Kind:  kind,
		Phase: kind.InitialPhase(),
	}
}

// InProgress returns true if the state describes a live, non-terminal
// operation.
func (s *PhaseState) InProgress() bool {
	return s.Phase != PhaseUnknown && s.Phase != PhaseNotStarted &&
		s.Phase != PhaseAwaitingCredentials && !s.Phase.IsTerminal()
}

// Apply advances the state machine by one typed event and reports whether
// the state changed. Events after a terminal phase are no-ops, which makes
// duplicate terminal delivery idempotent. Progress never decreases.
func (s *PhaseState) Apply(evt *protocol.Event) bool {
	if s.Phase.IsTerminal() {
		return false
	}

	switch evt.Type {
	case protocol.EventStatus:
		return s.applyStatus(evt.Message)

	case protocol.EventAnalysisStart:
		return s.transition(PhaseAnalyzing, "Analyzing repository")

	case protocol.EventAnalysisChunk:
		if evt.Content == "" {
			return false
		}
		s.Result.AnalysisText += evt.Content
		return true

	case protocol.EventAnalysisComplete:
		if s.Message == "Analysis complete" {
			return false
		}
		s.Message = "Analysis complete"
		return true

	case protocol.EventArtifactProduced:
		return s.mergeArtifacts(evt)

	case protocol.EventOperationComplete:
		if !evt.Success {
			return s.fail(failureMessage(evt))
		}
		return s.complete(evt)

	case protocol.EventOperationError:
		return s.fail(failureMessage(evt))

	case protocol.EventConnectionLost:
		return s.fail("stream disconnected")

	default:
		// connected, heartbeat and unknown events never touch phase state.
		return false
	}
}

// Reset replaces the state wholesale with the initial state for the kind.
// The only sanctioned way progress goes back to zero.
func (s *PhaseState) Reset(kind OperationKind) {
	*s = NewPhaseState(kind)
}

func (s *PhaseState) applyStatus(message string) bool {
	changed := false
	if message != "" && message != s.Message {
		s.Message = message
		changed = true
	}

	phase, ok := phaseForStatus(s.Kind, message)
	if !ok {
		// Unmatched status text keeps the prior phase and progress. Progress
		// must never regress on free-text input.
		return changed
	}
	if p := phase.Progress(); p >= s.Progress {
		if s.Phase != phase || s.Progress != p {
			s.Phase = phase
			s.Progress = p
			changed = true
		}
	}
	return changed
}

func (s *PhaseState) transition(phase Phase, message string) bool {
	p := phase.Progress()
	if p < s.Progress {
		return false
	}
	if s.Phase == phase && s.Progress == p && s.Message == message {
		return false
	}
	s.Phase = phase
	s.Progress = p
	s.Message = message
	return true
}

func (s *PhaseState) mergeArtifacts(evt *protocol.Event) bool {
	if len(evt.Files) == 0 && len(evt.GitHubURLs) == 0 {
		return false
	}
	if len(evt.Files) > 0 && s.Result.Files == nil {
		s.Result.Files = make(map[string]string, len(evt.Files))
	}
	for path, content := range evt.Files {
		s.Result.Files[path] = content
	}
	if len(evt.GitHubURLs) > 0 && s.Result.RepositoryURLs == nil {
		s.Result.RepositoryURLs = make(map[string]string, len(evt.GitHubURLs))
	}
	for name, url := range evt.GitHubURLs {
		s.Result.RepositoryURLs[name] = url
	}
	return true
}

func (s *PhaseState) complete(evt *protocol.Event) bool {
	phase := s.Kind.SuccessPhase()
	s.Phase = phase
	s.Progress = phase.Progress()
	if evt.Message != "" {
		s.Message = evt.Message
	}
	s.Error = ""
	if evt.Result != nil {
		if evt.Result.PlanOutput != "" {
			s.Result.PlanOutput = evt.Result.PlanOutput
		}
		if len(evt.Result.Outputs) > 0 {
			s.Result.Outputs = evt.Result.Outputs
		}
	}
	return true
}

func (s *PhaseState) fail(message string) bool {
	// Progress freezes at whatever the operation had reached.
	s.Phase = PhaseFailed
	s.Error = message
	s.Message = message
	return true
}

func failureMessage(evt *protocol.Event) string {
	if evt.Message != "" {
		return evt.Message
	}
	if evt.Result != nil && evt.Result.Error != "" {
		return evt.Result.Error
	}
	return "operation failed"
}
