package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"briefsmith/internal/api"
)

type recordedRequest struct {
	Method         string
	Path           string
	Query          string
	Authorization  string
	IdempotencyKey string
	Body           []byte
}

// fakeAPI is a canned daemon API that records every request it receives.
type fakeAPI struct {
	t      *testing.T
	server *httptest.Server
	mux    *http.ServeMux

	mu       sync.Mutex
	requests []recordedRequest
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{t: t, mux: http.NewServeMux()}
	f.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.requests = append(f.requests, recordedRequest{
			Method:         r.Method,
			Path:           r.URL.Path,
			Query:          r.URL.RawQuery,
			Authorization:  r.Header.Get("Authorization"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
			Body:           body,
		})
		f.mu.Unlock()
		r.Body = io.NopCloser(bytes.NewReader(body))
		f.mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.server.Close)
	return f
}

func (f *fakeAPI) handleJSON(pattern string, status int, payload any) {
	f.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(payload)
	})
}

func (f *fakeAPI) last() recordedRequest {
	f.t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		f.t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeAPI) all() []recordedRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]recordedRequest(nil), f.requests...)
}

func (f *fakeAPI) bind() string {
	return strings.TrimPrefix(f.server.URL, "http://")
}

type cliConfig struct {
	bind      string
	token     string
	jwtSecret string
}

// writeCLIConfig writes a minimal config file rooted in a temp directory and
// clears credential env vars so only the file applies.
func writeCLIConfig(t *testing.T, c cliConfig) string {
	t.Helper()
	for _, key := range []string{"BRIEFSMITH_API_TOKEN", "BRIEFSMITH_JWT_SECRET", "OPENROUTER_API_KEY", "LLM_API_KEY", "NTFY_TOPIC"} {
		t.Setenv(key, "")
	}
	base := t.TempDir()
	content := fmt.Sprintf(`[paths]
data_dir = %q
log_dir = %q
blob_dir = %q

[api]
bind = %q
token = %q
jwt_secret = %q
`, filepath.Join(base, "data"), filepath.Join(base, "logs"), filepath.Join(base, "blobs"), c.bind, c.token, c.jwtSecret)

	path := filepath.Join(base, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func runCLI(t *testing.T, configPath string, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	full := args
	if configPath != "" {
		full = append([]string{"--config", configPath}, args...)
	}
	cmd.SetArgs(full)
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, haystack, needle string) {
	t.Helper()
	if !strings.Contains(haystack, needle) {
		t.Fatalf("expected %q to contain %q", haystack, needle)
	}
}

func sampleSessionResponse(id, status string) api.SessionResponse {
	return api.SessionResponse{
		Session: api.Session{
			ID:                  id,
			CompanyName:         "Acme Logistics",
			LeaderName:          "Dana Ruiz",
			LeaderTitle:         "COO",
			SourceURLs:          []string{"https://acme.example"},
			Status:              status,
			CurrentBriefVersion: 1,
		},
		Status: api.StatusView{
			SessionID:           id,
			Status:              status,
			CurrentBriefVersion: 1,
		},
	}
}
