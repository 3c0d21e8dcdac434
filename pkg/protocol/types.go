// Package protocol defines the JSON push-message protocol emitted by the
// Skylift deployment backend and the typed event taxonomy derived from it.
package protocol

import (
	"fmt"
	"time"
)

// EventType represents the classified type of a push message.
type EventType string

const (
	// EventConnected indicates the push channel was accepted by the server.
	EventConnected EventType = "connected"
	// EventHeartbeat indicates a no-op liveness signal.
	EventHeartbeat EventType = "heartbeat"
	// EventStatus indicates a human-readable status update for the running operation.
	EventStatus EventType = "status"
	// EventProgressOutput indicates raw tool output (e.g. terraform stdout lines).
	EventProgressOutput EventType = "progress_output"
	// EventAnalysisStart indicates an AI analysis pass has begun.
	EventAnalysisStart EventType = "analysis_start"
	// EventAnalysisChunk indicates an incremental piece of AI analysis text.
	EventAnalysisChunk EventType = "analysis_chunk"
	// EventAnalysisComplete indicates the AI analysis pass has finished.
	EventAnalysisComplete EventType = "analysis_complete"
	// EventArtifactProduced indicates generated files were produced.
	EventArtifactProduced EventType = "artifact_produced"
	// EventOperationComplete indicates the operation finished (success or failure).
	EventOperationComplete EventType = "operation_complete"
	// EventOperationError indicates the server reported a fatal operation error.
	EventOperationError EventType = "operation_error"
	// EventConnectionLost is synthesized locally when the channel drops before
	// a terminal event. It never appears on the wire.
	EventConnectionLost EventType = "connection_lost"
	// EventUnknown indicates a well-formed message of an unrecognized type.
	EventUnknown EventType = "unknown"
)

// Validate checks if the event type is valid.
func (t EventType) Validate() error {
	switch t {
	case EventConnected, EventHeartbeat, EventStatus, EventProgressOutput,
		EventAnalysisStart, EventAnalysisChunk, EventAnalysisComplete,
		EventArtifactProduced, EventOperationComplete, EventOperationError,
		EventConnectionLost, EventUnknown:
		return nil
	default:
		return fmt.Errorf("invalid event type: %s", t)
	}
}

// IsTerminal returns true if the event ends the operation's stream session.
func (t EventType) IsTerminal() bool {
	return t == EventOperationComplete || t == EventOperationError ||
		t == EventConnectionLost
}

// Message is the wire format of one push message. The server emits exactly
// one JSON object per message; fields beyond Type are populated depending on
// the message type.
type Message struct {
	Type      string         `json:"type"`
	Status    string         `json:"status,omitempty"`
	Message   string         `json:"message,omitempty"`
	Success   *bool          `json:"success,omitempty"`
	Result    *ResultPayload `json:"result,omitempty"`
	Content   string         `json:"content,omitempty"`
	Data      *DataPayload   `json:"data,omitempty"`
	Timestamp float64        `json:"timestamp,omitempty"` // unix seconds
}

// ResultPayload carries the kind-specific outcome of a terminal message.
type ResultPayload struct {
	PlanOutput string            `json:"plan_output,omitempty"`
	Outputs    map[string]string `json:"outputs,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// DataPayload carries generated-file artifacts.
type DataPayload struct {
	Files      map[string]string `json:"files,omitempty"`
	Count      int               `json:"count,omitempty"`
	GitHubURLs map[string]string `json:"github_urls,omitempty"`
}

// Event is one classified push message.
type Event struct {
	// Type is the classified event type.
	Type EventType

	// RawType is the wire-level type string, preserved for diagnostics.
	RawType string

	// Message is the human-readable status or error text, if any.
	Message string

	// Content is incremental analysis or tool-output text, if any.
	Content string

	// Success reports the outcome of an EventOperationComplete.
	Success bool

	// Result is the kind-specific outcome payload, if any.
	Result *ResultPayload

	// Files maps generated file paths to contents for EventArtifactProduced.
	Files map[string]string

	// GitHubURLs maps repository names to URLs for EventArtifactProduced.
	GitHubURLs map[string]string

	// Timestamp is the server-reported emission time, or the local receive
	// time when the server did not include one.
	Timestamp time.Time
}

// Wire-level type strings recognized by the classifier. The backend emits
// several aliases for the same logical event (legacy terraform_* names).
const (
	typeConnected         = "connected"
	typeKeepalive         = "keepalive"
	typeHeartbeat         = "heartbeat"
	typeStatus            = "status"
	typeTerraformStatus   = "terraform_status"
	typeProgressOutput    = "progress_output"
	typeTerraformOutput   = "terraform_output"
	typePlanComplete      = "plan_complete"
	typeApplyComplete     = "apply_complete"
	typeDestroyComplete   = "destroy_complete"
	typeComplete          = "complete"
	typePlanError         = "plan_error"
	typeApplyError        = "apply_error"
	typeDestroyError      = "destroy_error"
	typeError             = "error"
	typeAnalysisStart     = "perplexity_start"
	typeAnalysisIterStart = "perplexity_iteration_start"
	typeAnalysisChunk     = "perplexity_chunk"
	typeAnalysisComplete  = "perplexity_complete"
	typeFilesGenerated    = "files_generated"
)
