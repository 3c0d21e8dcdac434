// Package stream owns the push-channel lifecycle: it opens the server-sent
// event stream for one operation, feeds raw messages to the protocol
// classifier, and delivers typed events strictly in arrival order. It has no
// retry policy of its own; recovery after a drop is the caller's decision.
package stream

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/skylift/skylift/pkg/protocol"
	"github.com/skylift/skylift/pkg/telemetry"
)

// DefaultInactivityWindow is how long a stream may stay silent (no events,
// no keepalives) before the stalled callback fires. A tunable default, not
// a contract.
const DefaultInactivityWindow = 90 * time.Second

// Config configures a Subscriber.
type Config struct {
	// BaseURL is the backend base URL, e.g. "https://api.skylift.dev".
	BaseURL string

	// HTTPClient performs the streaming request. Must not have a global
	// timeout; the stream outlives any sane request deadline. Defaults to a
	// client with sane transport settings.
	HTTPClient *http.Client

	// Token returns the bearer token for the stream request. Optional.
	Token func(ctx context.Context) (string, error)

	// Logger is the component logger.
	Logger *telemetry.Logger

	// Metrics records stream metrics. Optional.
	Metrics *telemetry.Metrics

	// InactivityWindow bounds stream silence before OnStalled fires. Zero
	// means DefaultInactivityWindow.
	InactivityWindow time.Duration

	// OnStalled is called with the operation id when the stream has been
	// silent past the inactivity window. The session stays open; closing
	// and reopening is the caller's call. Optional.
	OnStalled func(operationID string)
}

// Subscriber opens push channels for operations.
type Subscriber struct {
	baseURL    string
	client     *http.Client
	token      func(ctx context.Context) (string, error)
	logger     *telemetry.Logger
	metrics    *telemetry.Metrics
	inactivity time.Duration
	onStalled  func(operationID string)
}

// NewSubscriber creates a subscriber from the given configuration.
func NewSubscriber(cfg Config) (*Subscriber, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Transport: http.DefaultTransport}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	window := cfg.InactivityWindow
	if window <= 0 {
		window = DefaultInactivityWindow
	}
	return &Subscriber{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		client:     client,
		token:      cfg.Token,
		logger:     logger.NewComponentLogger("stream"),
		metrics:    cfg.Metrics,
		inactivity: window,
		onStalled:  cfg.OnStalled,
	}, nil
}

// Open opens the push channel for one operation id. It returns after
// transport setup; delivery happens on a single background goroutine, one
// event at a time, so the caller never sees concurrent delivery. If the
// channel closes without a preceding terminal event, a connection_lost
// event is synthesized and the session ends. The returned cancel function
// is idempotent and safe after natural termination.
func (s *Subscriber) Open(ctx context.Context, operationID string, deliver func(*protocol.Event)) (func(), error) {
	if operationID == "" {
		return nil, fmt.Errorf("operation id is required")
	}

	url := fmt.Sprintf("%s/operations/%s/events", s.baseURL, operationID)
	ctx, cancelCtx := context.WithCancel(ctx)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		cancelCtx()
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if s.token != nil {
		tok, err := s.token(ctx)
		if err != nil {
			cancelCtx()
			return nil, fmt.Errorf("token source: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		cancelCtx()
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancelCtx()
		return nil, fmt.Errorf("stream request rejected: %s", resp.Status)
	}

	sess := &streamSession{
		operationID: operationID,
		cancelCtx:   cancelCtx,
	}

	go s.consume(ctx, sess, resp, deliver)

	return sess.cancel, nil
}

// streamSession tracks per-stream teardown state.
type streamSession struct {
	operationID string
	cancelCtx   context.CancelFunc
	once        sync.Once
	mu          sync.Mutex
	cancelled   bool
}

func (ss *streamSession) cancel() {
	ss.once.Do(func() {
		ss.mu.Lock()
		ss.cancelled = true
		ss.mu.Unlock()
		ss.cancelCtx()
	})
}

func (ss *streamSession) wasCancelled() bool {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	return ss.cancelled
}

// consume reads SSE frames until the stream ends, delivering classified
// events in order from this single goroutine.
func (s *Subscriber) consume(ctx context.Context, sess *streamSession, resp *http.Response, deliver func(*protocol.Event)) {
	defer resp.Body.Close()
	defer sess.cancelCtx()

	logger := s.logger.WithField("operation_id", sess.operationID)

	watchdog := time.AfterFunc(s.inactivity, func() {
		logger.Warnf("no stream activity for %s", s.inactivity)
		if s.onStalled != nil {
			s.onStalled(sess.operationID)
		}
	})
	defer watchdog.Stop()

	scanner := bufio.NewScanner(resp.Body)
	// Generated-file payloads can be large.
	const maxFrame = 4 * 1024 * 1024
	scanner.Buffer(make([]byte, 64*1024), maxFrame)

	terminal := false
	var data bytes.Buffer

	flush := func() bool {
		if data.Len() == 0 {
			return false
		}
		payload := data.Bytes()
		data.Reset()

		evt, err := protocol.Classify(payload)
		if err != nil {
			// Malformed messages are absorbed here; the stream continues.
			s.metrics.RecordParseError()
			logger.WithError(err).Warn("dropping malformed push message")
			return false
		}
		deliver(evt)
		return evt.Type.IsTerminal()
	}

	for scanner.Scan() {
		watchdog.Reset(s.inactivity)
		line := scanner.Text()

		switch {
		case line == "":
			// Frame boundary.
			if flush() {
				terminal = true
			}
		case strings.HasPrefix(line, ":"):
			// SSE comment, counts as liveness only.
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		default:
			// event:/id:/retry: fields carry nothing we use.
		}

		if terminal {
			break
		}
	}

	if !terminal {
		if flush() {
			terminal = true
		}
	}

	if err := scanner.Err(); err != nil && !sess.wasCancelled() {
		logger.WithError(err).Debug("stream read ended with error")
	}

	if !terminal && !sess.wasCancelled() && ctx.Err() == nil {
		// The channel closed under us without a terminal event. Surface that
		// as a terminal connection_lost; no automatic retry here.
		s.metrics.RecordConnectionLost()
		logger.Warn("stream closed without terminal event")
		deliver(protocol.NewConnectionLost())
	}
}
