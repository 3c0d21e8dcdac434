package tracker

import (
	"fmt"
	"strings"
)

// OperationKind represents the kind of long-running operation being tracked.
type OperationKind string

const (
	// KindPlan generates an infrastructure execution plan.
	KindPlan OperationKind = "plan"

	// KindApply provisions infrastructure from a previously generated plan.
	KindApply OperationKind = "apply"

	// KindDestroy tears down previously provisioned infrastructure.
	KindDestroy OperationKind = "destroy"

	// KindGenerate runs the AI-assisted code generation workflow.
	KindGenerate OperationKind = "generate"
)

// Validate checks if the operation kind is valid.
func (k OperationKind) Validate() error {
	switch k {
	case KindPlan, KindApply, KindDestroy, KindGenerate:
		return nil
	default:
		return fmt.Errorf("invalid operation kind: %s", k)
	}
}

// IsProvisioning returns true for kinds driven by the infrastructure
// lifecycle state machine rather than the generation one.
func (k OperationKind) IsProvisioning() bool {
	return k == KindPlan || k == KindApply || k == KindDestroy
}

// Phase represents a named point in an operation's lifecycle state machine.
type Phase string

// Provisioning lifecycle phases.
const (
	PhaseAwaitingCredentials Phase = "awaiting_credentials"
	PhaseValidating          Phase = "validating"
	PhasePlanning            Phase = "planning"
	PhasePlanReady           Phase = "plan_ready"
	PhaseDeploying           Phase = "deploying"
	PhaseDeployed            Phase = "deployed"
	PhaseDestroying          Phase = "destroying"
	PhaseDestroyed           Phase = "destroyed"
)

// Generation lifecycle phases.
const (
	PhaseNotStarted    Phase = "not_started"
	PhaseConnecting    Phase = "connecting"
	PhaseAnalyzing     Phase = "analyzing"
	PhaseGenerating    Phase = "generating"
	PhaseCommitting    Phase = "committing"
	PhaseReadyToDeploy Phase = "ready_to_deploy"
)

// Phases shared by both lifecycles.
const (
	// PhaseFailed is reachable from any non-terminal phase.
	PhaseFailed Phase = "failed"

	// PhaseUnknown is the best-effort answer when a status fetch times out.
	PhaseUnknown Phase = "unknown"
)

// IsTerminal returns true if no further phase mutation may follow.
func (p Phase) IsTerminal() bool {
	switch p {
	case PhasePlanReady, PhaseDeployed, PhaseDestroyed, PhaseReadyToDeploy, PhaseFailed:
		return true
	default:
		return false
	}
}

// Validate checks if the phase is valid.
func (p Phase) Validate() error {
	switch p {
	case PhaseAwaitingCredentials, PhaseValidating, PhasePlanning, PhasePlanReady,
		PhaseDeploying, PhaseDeployed, PhaseDestroying, PhaseDestroyed,
		PhaseNotStarted, PhaseConnecting, PhaseAnalyzing, PhaseGenerating,
		PhaseCommitting, PhaseReadyToDeploy, PhaseFailed, PhaseUnknown:
		return nil
	default:
		return fmt.Errorf("invalid phase: %s", p)
	}
}

// phaseProgress is the total progress table over all known phases. Progress
// for PhaseFailed and PhaseUnknown is intentionally absent: a failed
// operation freezes the progress it had reached.
var phaseProgress = map[Phase]int{
	PhaseAwaitingCredentials: 0,
	PhaseValidating:          10,
	PhasePlanning:            25,
	PhasePlanReady:           50,
	PhaseDeploying:           75,
	PhaseDeployed:            100,
	PhaseDestroying:          75,
	PhaseDestroyed:           100,

	PhaseNotStarted:    0,
	PhaseConnecting:    10,
	PhaseAnalyzing:     40,
	PhaseGenerating:    80,
	PhaseCommitting:    90,
	PhaseReadyToDeploy: 100,
}

// Progress returns the table progress for the phase, or -1 when the phase
// has no fixed progress value (failed, unknown).
func (p Phase) Progress() int {
	if v, ok := phaseProgress[p]; ok {
		return v
	}
	return -1
}

// InitialPhase returns the phase an operation of this kind starts in.
func (k OperationKind) InitialPhase() Phase {
	switch k {
	case KindPlan:
		return PhasePlanning
	case KindApply:
		return PhaseDeploying
	case KindDestroy:
		return PhaseDestroying
	case KindGenerate:
		return PhaseConnecting
	default:
		return PhaseUnknown
	}
}

// SuccessPhase returns the terminal phase a successful operation of this
// kind ends in.
func (k OperationKind) SuccessPhase() Phase {
	switch k {
	case KindPlan:
		return PhasePlanReady
	case KindApply:
		return PhaseDeployed
	case KindDestroy:
		return PhaseDestroyed
	case KindGenerate:
		return PhaseReadyToDeploy
	default:
		return PhaseUnknown
	}
}

// statusKeyword maps a known status-message keyword to a phase. Keywords are
// matched case-insensitively as substrings, first match wins.
type statusKeyword struct {
	keyword string
	phase   Phase
}

// Keyword order matters: "destroy" is checked before the deploy tokens, and
// "plan" last so "applying plan" resolves to the deploy phase.
var provisioningKeywords = []statusKeyword{
	{"validat", PhaseValidating},
	{"destroy", PhaseDestroying},
	{"provision", PhaseDeploying},
	{"configur", PhaseDeploying},
	{"deploy", PhaseDeploying},
	{"apply", PhaseDeploying},
	{"plan", PhasePlanning},
}

var generationKeywords = []statusKeyword{
	{"connect", PhaseConnecting},
	{"analy", PhaseAnalyzing},
	{"commit", PhaseCommitting},
	{"push", PhaseCommitting},
	{"generat", PhaseGenerating},
}

// phaseForStatus matches a free-text status message against the keyword
// table for the kind's lifecycle. The second return value is false when the
// message matches nothing, in which case the caller keeps the prior phase
// and progress untouched.
func phaseForStatus(kind OperationKind, message string) (Phase, bool) {
	table := generationKeywords
	if kind.IsProvisioning() {
		table = provisioningKeywords
	}
	lower := strings.ToLower(message)
	for _, kw := range table {
		if strings.Contains(lower, kw.keyword) {
			return kw.phase, true
		}
	}
	return "", false
}
