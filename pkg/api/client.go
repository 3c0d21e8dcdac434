// Package api is the client for the Skylift backend's synchronous
// endpoints: starting operations, fetching resting status, and validating
// cloud credentials. The push stream lives in package stream.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/skylift/skylift/pkg/telemetry"
	"github.com/skylift/skylift/pkg/tracker"
)

// TokenSource provides the bearer token for backend requests. Session
// issuance itself is external; the client only attaches tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token implements TokenSource.
func (t StaticToken) Token(context.Context) (string, error) {
	return string(t), nil
}

// Config configures a Client.
type Config struct {
	// BaseURL is the backend base URL.
	BaseURL string

	// Token provides bearer tokens. Optional.
	Token TokenSource

	// HTTPClient performs requests. Defaults to a client with a 30s timeout.
	HTTPClient *http.Client

	// Logger is the component logger.
	Logger *telemetry.Logger
}

// Client talks to the backend's synchronous endpoints. It implements
// tracker.Backend.
type Client struct {
	baseURL string
	token   TokenSource
	client  *http.Client
	logger  *telemetry.Logger
}

// NewClient creates a backend client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = telemetry.NopLogger()
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		client:  client,
		logger:  logger.NewComponentLogger("api"),
	}, nil
}

// startRequest is the wire request for starting an operation.
type startRequest struct {
	Kind   string            `json:"kind"`
	Params map[string]string `json:"params,omitempty"`
}

// startResponse is the wire response for a started operation.
type startResponse struct {
	OperationID string `json:"operation_id"`
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (e *errorResponse) message() string {
	if e.Detail != "" {
		return e.Detail
	}
	return e.Error
}

// StartOperation starts a server-side operation for the subject and returns
// its operation id. Implements tracker.Backend.
func (c *Client) StartOperation(ctx context.Context, subject string, kind tracker.OperationKind, params map[string]string) (string, error) {
	body := startRequest{Kind: string(kind), Params: params}
	var out startResponse

	path := fmt.Sprintf("/projects/%s/operations", subject)
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return "", err
	}
	if out.OperationID == "" {
		return "", tracker.NewServerError("backend returned no operation id").
			WithCode(tracker.ErrCodeServerRejected)
	}
	c.logger.WithField("operation_id", out.OperationID).
		Debugf("started %s for %s", kind, subject)
	return out.OperationID, nil
}

// workflowStatusResponse is the wire shape of the workflow-status endpoint.
type workflowStatusResponse struct {
	Status           string            `json:"status"`
	DeploymentStatus string            `json:"deployment_status,omitempty"`
	DeploymentURL    string            `json:"deployment_url,omitempty"`
	Endpoints        map[string]string `json:"endpoints,omitempty"`
	Error            string            `json:"error,omitempty"`
}

// FetchStatus returns the subject's resting status. Implements
// tracker.Backend.
func (c *Client) FetchStatus(ctx context.Context, subject string) (*tracker.RestingStatus, error) {
	var out workflowStatusResponse
	path := fmt.Sprintf("/projects/%s/workflow/status", subject)
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}

	// The deployment status is the authoritative one once any deployment
	// activity exists; the workflow status covers the generation phases.
	status := out.DeploymentStatus
	if status == "" || status == tracker.StatusNotStarted {
		if out.Status != "" {
			status = out.Status
		}
	}
	return &tracker.RestingStatus{
		Status:        status,
		Error:         out.Error,
		DeploymentURL: out.DeploymentURL,
		Endpoints:     out.Endpoints,
	}, nil
}

// CredentialCheck is one named pass/fail result from credential validation.
type CredentialCheck struct {
	Name    string `json:"name"`
	Passed  bool   `json:"passed"`
	Message string `json:"message,omitempty"`
}

// ValidationResult is the outcome of a credential validation run.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Checks []CredentialCheck `json:"checks,omitempty"`
}

// ValidateCredentials synchronously validates the subject's cloud
// credentials and returns per-check messages.
func (c *Client) ValidateCredentials(ctx context.Context, subject string) (*ValidationResult, error) {
	var out ValidationResult
	path := fmt.Sprintf("/projects/%s/credentials/validate", subject)
	if err := c.do(ctx, http.MethodPost, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs one JSON request/response round trip, classifying failures
// into the tracker error taxonomy.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return tracker.NewValidationError(err.Error())
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return tracker.NewTransportError("building request", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != nil {
		tok, err := c.token.Token(ctx)
		if err != nil {
			return tracker.NewTransportError("token source", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return tracker.NewTransportError("request failed", err).
			WithCode(tracker.ErrCodeTransport)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var envelope errorResponse
		msg := resp.Status
		if err := json.NewDecoder(resp.Body).Decode(&envelope); err == nil {
			if m := envelope.message(); m != "" {
				msg = m
			}
		}
		switch {
		case resp.StatusCode == http.StatusBadRequest ||
			resp.StatusCode == http.StatusUnprocessableEntity:
			return tracker.NewValidationError(msg).WithCode(tracker.ErrCodeValidationFailed)
		default:
			return tracker.NewServerError(msg).WithCode(tracker.ErrCodeServerRejected)
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return tracker.NewParseError("decoding response", err)
	}
	return nil
}
