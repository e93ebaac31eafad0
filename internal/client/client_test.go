package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"briefsmith/internal/api"
	"briefsmith/internal/client"
)

func TestClientSendsCredentialsAndIdempotencyKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/sessions/abc/update-brief" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "k1" {
			t.Errorf("idempotency key = %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		_ = json.NewEncoder(w).Encode(api.TriggerResponse{SessionID: "abc", Status: "updating_brief", Run: &api.Run{ID: 7, AttemptToken: "k1"}})
	}))
	defer server.Close()

	c, err := client.New(strings.TrimPrefix(server.URL, "http://"), "secret")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	resp, err := c.UpdateBrief(context.Background(), "abc", "k1")
	if err != nil {
		t.Fatalf("UpdateBrief: %v", err)
	}
	if resp.Run == nil || resp.Run.ID != 7 || resp.Status != "updating_brief" {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestClientDecodesErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_ = json.NewEncoder(w).Encode(api.ErrorResponse{Error: "cannot start revision run while session is brief_ready", Code: "precondition_failed"})
	}))
	defer server.Close()

	c, err := client.New(server.URL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	_, err = c.UpdateBrief(context.Background(), "abc", "")
	var apiErr *client.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.Code != "precondition_failed" || client.StatusCode(err) != http.StatusPreconditionFailed {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestClientUploadAndQueries(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPut && r.URL.Path == "/api/sessions/abc/upload":
			body, _ := io.ReadAll(r.Body)
			if string(body) != "notes" || r.URL.Query().Get("filename") != "notes.txt" {
				t.Errorf("unexpected upload %q %q", body, r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(api.SessionResponse{Session: api.Session{ID: "abc", Uploaded: true}})
		case r.URL.Path == "/api/sessions/abc/artifacts/brief":
			if r.URL.Query().Get("version") != "2" {
				t.Errorf("version query = %q", r.URL.RawQuery)
			}
			_ = json.NewEncoder(w).Encode(api.ArtifactResponse{SessionID: "abc", Kind: "brief", Version: 2, Content: json.RawMessage(`{"title":"x"}`)})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := client.New(server.URL, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess, err := c.Upload(context.Background(), "abc", "notes.txt", []byte("notes"), "")
	if err != nil || !sess.Session.Uploaded {
		t.Fatalf("Upload = %+v, %v", sess, err)
	}
	art, err := c.Artifact(context.Background(), "abc", "brief", 2)
	if err != nil || art.Version != 2 {
		t.Fatalf("Artifact = %+v, %v", art, err)
	}
}

func TestIsAPIUnavailable(t *testing.T) {
	if _, err := client.New("", ""); !client.IsAPIUnavailable(err) {
		t.Fatalf("empty bind should be unavailable, got %v", err)
	}
	c, err := client.New("127.0.0.1:1", "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.Status(context.Background()); !client.IsAPIUnavailable(err) {
		t.Fatalf("expected unavailable error, got %v", err)
	}
}
