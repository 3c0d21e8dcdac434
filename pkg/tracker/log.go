package tracker

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/skylift/skylift/pkg/protocol"
)

// DefaultCoalesceWindow is how close together two heartbeat records must be
// for the second one to be dropped.
const DefaultCoalesceWindow = 3 * time.Second

// LogRecord is one entry in the append-only operation log.
type LogRecord struct {
	ID        string             `json:"id"`
	Timestamp time.Time          `json:"timestamp"`
	Type      protocol.EventType `json:"type"`
	RawType   string             `json:"raw_type,omitempty"`
	Message   string             `json:"message"`
}

// LogAggregator keeps the append-only, de-duplicating record of every
// classified event for one subject. The only mutation it ever performs is
// heartbeat coalescing: a heartbeat landing within the coalesce window of a
// preceding heartbeat refreshes that record instead of appending a new one.
type LogAggregator struct {
	mu       sync.Mutex
	window   time.Duration
	records  []LogRecord
	lastTime time.Time
}

// NewLogAggregator creates an aggregator with the given coalesce window.
// A zero window uses DefaultCoalesceWindow.
func NewLogAggregator(window time.Duration) *LogAggregator {
	if window <= 0 {
		window = DefaultCoalesceWindow
	}
	return &LogAggregator{window: window}
}

// Append records one classified event. It returns the resulting record and
// whether a new record was appended; a coalesced heartbeat returns the
// refreshed existing record and false.
func (l *LogAggregator) Append(evt *protocol.Event) (LogRecord, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := evt.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	// Timestamps are monotonic per session regardless of what the server
	// put on the wire.
	if ts.Before(l.lastTime) {
		ts = l.lastTime
	}

	if evt.Type == protocol.EventHeartbeat && len(l.records) > 0 {
		last := &l.records[len(l.records)-1]
		if last.Type == protocol.EventHeartbeat && ts.Sub(last.Timestamp) < l.window {
			last.Timestamp = ts
			l.lastTime = ts
			return *last, false
		}
	}

	rec := LogRecord{
		ID:        uuid.NewString(),
		Timestamp: ts,
		Type:      evt.Type,
		RawType:   evt.RawType,
		Message:   recordMessage(evt),
	}
	l.records = append(l.records, rec)
	l.lastTime = ts
	return rec, true
}

// Records returns a copy of the log in arrival order.
func (l *LogAggregator) Records() []LogRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]LogRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records.
func (l *LogAggregator) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Clear drops all records. Used only by an explicit full reset.
func (l *LogAggregator) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.records = nil
	l.lastTime = time.Time{}
}

// recordMessage derives the human-readable log line for an event.
func recordMessage(evt *protocol.Event) string {
	switch evt.Type {
	case protocol.EventConnected:
		return "stream connected"
	case protocol.EventHeartbeat:
		return "waiting on server"
	case protocol.EventProgressOutput:
		return strings.TrimRight(evt.Content, "\n")
	case protocol.EventAnalysisStart:
		return "analysis started"
	case protocol.EventAnalysisChunk:
		return snippet(evt.Content)
	case protocol.EventAnalysisComplete:
		return "analysis complete"
	case protocol.EventArtifactProduced:
		return fmt.Sprintf("%d file(s) generated", len(evt.Files))
	case protocol.EventOperationComplete:
		if evt.Success {
			return "operation completed"
		}
		return "operation failed: " + failureMessage(evt)
	case protocol.EventOperationError:
		return "operation failed: " + failureMessage(evt)
	case protocol.EventUnknown:
		// Tagged with the wire type so unrecognized traffic stays diagnosable.
		return fmt.Sprintf("unrecognized event type %q", evt.RawType)
	default:
		return evt.Message
	}
}

func snippet(s string) string {
	s = strings.TrimSpace(s)
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
