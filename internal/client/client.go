// Package client is the HTTP client the briefsmith CLI uses to talk to the
// daemon API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"briefsmith/internal/api"
)

// ErrAPIUnavailable is returned when no daemon API address is configured.
var ErrAPIUnavailable = errors.New("daemon API unavailable")

// APIError is a non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("%s (%d)", e.Message, e.StatusCode)
}

// Client calls the daemon API.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

// New builds a client for bind, which may omit the scheme. token, when set,
// is sent as a bearer credential.
func New(bind, token string) (*Client, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, ErrAPIUnavailable
	}
	if !strings.Contains(bind, "://") {
		bind = "http://" + bind
	}
	base, err := url.Parse(bind)
	if err != nil {
		return nil, err
	}
	base.Path = ""
	base.RawQuery = ""
	base.Fragment = ""

	return &Client{
		base:  base,
		http:  &http.Client{Timeout: 60 * time.Second},
		token: strings.TrimSpace(token),
	}, nil
}

// Status returns the daemon status.
func (c *Client) Status(ctx context.Context) (api.DaemonStatus, error) {
	var out api.DaemonStatus
	err := c.do(ctx, http.MethodGet, "/api/status", nil, nil, "", &out)
	return out, err
}

// CreateSession creates a session and starts its brief run.
func (c *Client) CreateSession(ctx context.Context, req api.CreateSessionRequest, idempotencyKey string) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, http.MethodPost, "/api/sessions", nil, req, idempotencyKey, &out)
	return out, err
}

// ListSessions returns the caller's sessions, newest first.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]api.SessionSummary, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out api.SessionListResponse
	err := c.do(ctx, http.MethodGet, "/api/sessions", query, nil, "", &out)
	return out.Sessions, err
}

// Session returns a session with its status view.
func (c *Client) Session(ctx context.Context, id string) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, http.MethodGet, sessionPath(id), nil, nil, "", &out)
	return out, err
}

// Upload stores the source document of a session created with an upload.
func (c *Client) Upload(ctx context.Context, id, filename string, data []byte, idempotencyKey string) (api.SessionResponse, error) {
	query := url.Values{}
	if filename != "" {
		query.Set("filename", filename)
	}
	var out api.SessionResponse
	err := c.send(ctx, http.MethodPut, sessionPath(id, "upload"), query, bytes.NewReader(data), "application/octet-stream", idempotencyKey, &out)
	return out, err
}

// Artifact returns one artifact version; version 0 selects the latest.
func (c *Client) Artifact(ctx context.Context, id, kind string, version int) (api.ArtifactResponse, error) {
	query := url.Values{}
	if version > 0 {
		query.Set("version", strconv.Itoa(version))
	}
	var out api.ArtifactResponse
	err := c.do(ctx, http.MethodGet, sessionPath(id, "artifacts", kind), query, nil, "", &out)
	return out, err
}

// ArtifactVersions lists the stored versions of one artifact kind.
func (c *Client) ArtifactVersions(ctx context.Context, id, kind string) ([]api.ArtifactVersion, error) {
	var out api.ArtifactVersionsResponse
	err := c.do(ctx, http.MethodGet, sessionPath(id, "artifacts", kind, "versions"), nil, nil, "", &out)
	return out.Versions, err
}

// Audit returns the session's audit trail.
func (c *Client) Audit(ctx context.Context, id string, limit int) ([]api.AuditEntry, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out api.AuditResponse
	err := c.do(ctx, http.MethodGet, sessionPath(id, "audit"), query, nil, "", &out)
	return out.Entries, err
}

// SendPacket delivers the latest prep packet to the interviewee.
func (c *Client) SendPacket(ctx context.Context, id string) (api.SessionResponse, error) {
	var out api.SessionResponse
	err := c.do(ctx, http.MethodPost, sessionPath(id, "packet"), nil, nil, "", &out)
	return out, err
}

// UpdateBrief starts a revision run.
func (c *Client) UpdateBrief(ctx context.Context, id, idempotencyKey string) (api.TriggerResponse, error) {
	var out api.TriggerResponse
	err := c.do(ctx, http.MethodPost, sessionPath(id, "update-brief"), nil, nil, idempotencyKey, &out)
	return out, err
}

// Retry starts a fresh brief run after a brief-run failure.
func (c *Client) Retry(ctx context.Context, id, idempotencyKey string) (api.TriggerResponse, error) {
	var out api.TriggerResponse
	err := c.do(ctx, http.MethodPost, sessionPath(id, "retry"), nil, nil, idempotencyKey, &out)
	return out, err
}

// GenerateSynthesis starts a synthesis run from interview notes.
func (c *Client) GenerateSynthesis(ctx context.Context, id string, notes api.SynthesisRequest, idempotencyKey string) (api.TriggerResponse, error) {
	var out api.TriggerResponse
	err := c.do(ctx, http.MethodPost, sessionPath(id, "synthesis"), nil, notes, idempotencyKey, &out)
	return out, err
}

func sessionPath(id string, parts ...string) string {
	segments := append([]string{"/api/sessions", url.PathEscape(id)}, parts...)
	return strings.Join(segments, "/")
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, idempotencyKey string, out any) error {
	var reader io.Reader
	contentType := ""
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
		contentType = "application/json"
	}
	return c.send(ctx, method, path, query, reader, contentType, idempotencyKey, out)
}

func (c *Client) send(ctx context.Context, method, path string, query url.Values, body io.Reader, contentType, idempotencyKey string, out any) error {
	if c == nil {
		return ErrAPIUnavailable
	}
	endpoint := c.base.ResolveReference(&url.URL{Path: path, RawQuery: query.Encode()})
	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var payload api.ErrorResponse
		if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload); err == nil {
			apiErr.Code = payload.Code
			apiErr.Message = payload.Error
		}
		return apiErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// IsAPIUnavailable reports whether err means the daemon could not be reached.
func IsAPIUnavailable(err error) bool {
	if err == nil {
		return false
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		err = urlErr.Err
	}
	var opErr *net.OpError
	return errors.Is(err, ErrAPIUnavailable) || errors.As(err, &opErr)
}

// StatusCode returns the HTTP status of an APIError, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
