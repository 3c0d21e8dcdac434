package protocol

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// Classify parses one raw push message into a typed event. Malformed JSON or
// a missing type field returns an error; callers treat that as non-fatal and
// keep the stream open. A well-formed message with an unrecognized type
// classifies as EventUnknown so it can be logged without affecting state.
func Classify(raw []byte) (*Event, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("malformed push message: %w", err)
	}
	if msg.Type == "" {
		return nil, fmt.Errorf("push message missing type field")
	}
	return ClassifyMessage(&msg), nil
}

// ClassifyMessage maps a decoded wire message onto the event taxonomy.
func ClassifyMessage(msg *Message) *Event {
	evt := &Event{
		RawType:   msg.Type,
		Message:   msg.Message,
		Content:   msg.Content,
		Result:    msg.Result,
		Timestamp: messageTime(msg.Timestamp),
	}

	switch msg.Type {
	case typeConnected:
		evt.Type = EventConnected

	case typeKeepalive, typeHeartbeat:
		evt.Type = EventHeartbeat

	case typeStatus, typeTerraformStatus:
		evt.Type = EventStatus
		if evt.Message == "" {
			evt.Message = msg.Status
		}

	case typeProgressOutput, typeTerraformOutput:
		evt.Type = EventProgressOutput
		if evt.Content == "" {
			evt.Content = msg.Message
		}

	case typePlanComplete, typeApplyComplete, typeDestroyComplete, typeComplete:
		evt.Type = EventOperationComplete
		// Completion messages without an explicit success flag report success;
		// failures arrive either as success=false or as a *_error message.
		evt.Success = msg.Success == nil || *msg.Success
		if !evt.Success && evt.Message == "" && msg.Result != nil {
			evt.Message = msg.Result.Error
		}

	case typePlanError, typeApplyError, typeDestroyError, typeError:
		evt.Type = EventOperationError
		if evt.Message == "" && msg.Result != nil {
			evt.Message = msg.Result.Error
		}
		if evt.Message == "" {
			evt.Message = "operation failed"
		}

	case typeAnalysisStart, typeAnalysisIterStart:
		evt.Type = EventAnalysisStart

	case typeAnalysisChunk:
		evt.Type = EventAnalysisChunk

	case typeAnalysisComplete:
		evt.Type = EventAnalysisComplete

	case typeFilesGenerated:
		evt.Type = EventArtifactProduced
		if msg.Data != nil {
			evt.Files = msg.Data.Files
			evt.GitHubURLs = msg.Data.GitHubURLs
		}

	default:
		evt.Type = EventUnknown
	}

	return evt
}

// NewConnectionLost builds the locally synthesized event for a channel that
// closed before any terminal event arrived.
func NewConnectionLost() *Event {
	return &Event{
		Type:      EventConnectionLost,
		RawType:   string(EventConnectionLost),
		Message:   "stream disconnected",
		Timestamp: time.Now().UTC(),
	}
}

// messageTime converts the wire timestamp (unix seconds, possibly fractional)
// to a time.Time, falling back to the local clock when absent.
func messageTime(ts float64) time.Time {
	if ts <= 0 {
		return time.Now().UTC()
	}
	sec, frac := math.Modf(ts)
	return time.Unix(int64(sec), int64(frac*float64(time.Second))).UTC()
}
