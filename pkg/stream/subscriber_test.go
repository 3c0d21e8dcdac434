package stream

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/skylift/skylift/pkg/protocol"
)

// sseHandler writes the given SSE frames and returns. Each frame is written
// with its trailing blank line and flushed individually.
func sseHandler(frames ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			fmt.Fprintf(w, "%s\n\n", frame)
			flusher.Flush()
		}
	}
}

func newTestSubscriber(t *testing.T, serverURL string) *Subscriber {
	t.Helper()
	sub, err := NewSubscriber(Config{BaseURL: serverURL})
	if err != nil {
		t.Fatalf("failed to create subscriber: %v", err)
	}
	return sub
}

// collect opens the stream and gathers delivered events on a channel.
func collect(t *testing.T, sub *Subscriber, operationID string) (chan *protocol.Event, func()) {
	t.Helper()
	events := make(chan *protocol.Event, 32)
	cancel, err := sub.Open(t.Context(), operationID, func(evt *protocol.Event) {
		events <- evt
	})
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	return events, cancel
}

func nextEvent(t *testing.T, events chan *protocol.Event) *protocol.Event {
	t.Helper()
	select {
	case evt := <-events:
		return evt
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

func expectNoEvent(t *testing.T, events chan *protocol.Event) {
	t.Helper()
	select {
	case evt := <-events:
		t.Fatalf("unexpected event: %s", evt.Type)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewSubscriberRequiresBaseURL(t *testing.T) {
	if _, err := NewSubscriber(Config{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}

func TestOpenRequiresOperationID(t *testing.T) {
	sub := newTestSubscriber(t, "http://localhost:0")
	if _, err := sub.Open(t.Context(), "", func(*protocol.Event) {}); err == nil {
		t.Fatal("expected error for empty operation id")
	}
}

func TestOpenDeliversEventsInOrder(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`data: {"type":"connected"}`,
		`data: {"type":"status","message":"Deploying application"}`,
		`data: {"type":"apply_complete","success":true,"result":{"outputs":{"url":"https://app.example.com"}}}`,
	))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")
	defer cancel()

	if evt := nextEvent(t, events); evt.Type != protocol.EventConnected {
		t.Fatalf("first event = %s", evt.Type)
	}
	evt := nextEvent(t, events)
	if evt.Type != protocol.EventStatus || evt.Message != "Deploying application" {
		t.Fatalf("second event = %+v", evt)
	}
	evt = nextEvent(t, events)
	if evt.Type != protocol.EventOperationComplete || !evt.Success {
		t.Fatalf("third event = %+v", evt)
	}
	if evt.Result == nil || evt.Result.Outputs["url"] != "https://app.example.com" {
		t.Fatalf("result = %+v", evt.Result)
	}

	// A terminal event ends the session cleanly; no synthetic disconnect.
	expectNoEvent(t, events)
}

func TestOpenSynthesizesConnectionLost(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`data: {"type":"status","message":"Planning"}`,
	))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")
	defer cancel()

	if evt := nextEvent(t, events); evt.Type != protocol.EventStatus {
		t.Fatalf("first event = %s", evt.Type)
	}
	evt := nextEvent(t, events)
	if evt.Type != protocol.EventConnectionLost {
		t.Fatalf("expected connection_lost, got %s", evt.Type)
	}
	if evt.Message != "stream disconnected" {
		t.Errorf("message = %q", evt.Message)
	}
}

func TestOpenCancelSuppressesConnectionLost(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"type\":\"connected\"}\n\n")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")

	if evt := nextEvent(t, events); evt.Type != protocol.EventConnected {
		t.Fatalf("first event = %s", evt.Type)
	}

	// Cancelling is idempotent and must not surface a synthetic disconnect.
	cancel()
	cancel()
	expectNoEvent(t, events)
}

func TestOpenSkipsMalformedFrames(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		`data: {"type":"status","message":`,
		`data: {"type":"complete","success":true}`,
	))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")
	defer cancel()

	// The malformed frame is dropped; the stream continues to the terminal.
	evt := nextEvent(t, events)
	if evt.Type != protocol.EventOperationComplete {
		t.Fatalf("expected operation_complete, got %s", evt.Type)
	}
	expectNoEvent(t, events)
}

func TestOpenJoinsMultiLineData(t *testing.T) {
	frame := "data: {\"type\":\"status\",\ndata: \"message\":\"Deploying\"}"
	server := httptest.NewServer(sseHandler(
		frame,
		`data: {"type":"complete","success":true}`,
	))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")
	defer cancel()

	evt := nextEvent(t, events)
	if evt.Type != protocol.EventStatus || evt.Message != "Deploying" {
		t.Fatalf("event = %+v", evt)
	}
}

func TestOpenIgnoresCommentsAndFields(t *testing.T) {
	server := httptest.NewServer(sseHandler(
		": keepalive ping",
		"event: message\nid: 7\ndata: {\"type\":\"complete\",\"success\":true}",
	))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	events, cancel := collect(t, sub, "op-1")
	defer cancel()

	evt := nextEvent(t, events)
	if evt.Type != protocol.EventOperationComplete {
		t.Fatalf("expected operation_complete, got %s", evt.Type)
	}
}

func TestOpenRejectsErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such operation", http.StatusNotFound)
	}))
	defer server.Close()

	sub := newTestSubscriber(t, server.URL)
	_, err := sub.Open(t.Context(), "op-404", func(*protocol.Event) {})
	if err == nil || !strings.Contains(err.Error(), "stream request rejected") {
		t.Fatalf("err = %v", err)
	}
}

func TestOpenSendsStreamHeaders(t *testing.T) {
	var gotAccept, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAccept = r.Header.Get("Accept")
		gotAuth = r.Header.Get("Authorization")
		sseHandler(`data: {"type":"complete","success":true}`)(w, r)
	}))
	defer server.Close()

	sub, err := NewSubscriber(Config{
		BaseURL: server.URL,
		Token:   func(context.Context) (string, error) { return "secret-token", nil },
	})
	if err != nil {
		t.Fatalf("failed to create subscriber: %v", err)
	}

	events, cancel := collect(t, sub, "op-1")
	defer cancel()
	nextEvent(t, events)

	if gotAccept != "text/event-stream" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotAuth != "Bearer secret-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
}

func TestOpenStalledCallback(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	stalled := make(chan string, 1)
	sub, err := NewSubscriber(Config{
		BaseURL:          server.URL,
		InactivityWindow: 50 * time.Millisecond,
		OnStalled:        func(operationID string) { stalled <- operationID },
	})
	if err != nil {
		t.Fatalf("failed to create subscriber: %v", err)
	}

	_, cancel := collect(t, sub, "op-1")
	defer cancel()

	select {
	case id := <-stalled:
		if id != "op-1" {
			t.Errorf("stalled operation = %q", id)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("stalled callback never fired")
	}
}
