package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"briefsmith/internal/config"
	"briefsmith/internal/logging"
	"briefsmith/internal/pipeline"
	"briefsmith/internal/services"
)

const (
	maxJSONBody   = 1 << 20
	maxUploadBody = 20 << 20
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	pipeline *pipeline.Manager
	auth     *authenticator
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.API.Bind),
		logger:   logging.NewComponentLogger(logger, "api"),
		daemon:   d,
		pipeline: d.pipeline,
		auth:     newAuthenticator(cfg.API.Token, cfg.API.JWTSecret, cfg.API.JWTIssuer),
	}

	mux := http.NewServeMux()
	protected := srv.auth.middleware

	mux.HandleFunc("GET /api/status", protected(srv.handleStatus))
	mux.HandleFunc("POST /api/sessions", protected(srv.handleCreateSession))
	mux.HandleFunc("GET /api/sessions", protected(srv.handleListSessions))
	mux.HandleFunc("GET /api/sessions/{id}", protected(srv.handleGetSession))
	mux.HandleFunc("PUT /api/sessions/{id}/upload", protected(srv.handleUpload))
	mux.HandleFunc("GET /api/sessions/{id}/artifacts/{kind}", protected(srv.handleArtifact))
	mux.HandleFunc("GET /api/sessions/{id}/artifacts/{kind}/versions", protected(srv.handleArtifactVersions))
	mux.HandleFunc("GET /api/sessions/{id}/audit", protected(srv.handleAudit))
	mux.HandleFunc("POST /api/sessions/{id}/packet", protected(srv.handleSendPacket))
	mux.HandleFunc("POST /api/sessions/{id}/update-brief", protected(srv.handleUpdateBrief))
	mux.HandleFunc("POST /api/sessions/{id}/synthesis", protected(srv.handleSynthesis))
	mux.HandleFunc("POST /api/sessions/{id}/retry", protected(srv.handleRetry))

	// The interviewee form is public; the unguessable session id is the credential.
	mux.HandleFunc("GET /api/feedback/{id}", srv.handleGetPacket)
	mux.HandleFunc("POST /api/feedback/{id}", srv.handleSubmitFeedback)

	srv.handler = srv.withRequestID(mux)
	srv.server = &http.Server{
		Handler:           srv.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s.bind == "" {
		s.logger.Info("api server disabled (empty bind)")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.mu.Lock()
	s.listener = listener
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	s.mu.Lock()
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
	s.mu.Unlock()
}

func (s *apiServer) addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// withRequestID tags every request with a correlation id, echoed in the
// X-Request-ID response header and attached to log records.
func (s *apiServer) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *apiServer) decodeJSON(w http.ResponseWriter, r *http.Request, target any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(fmt.Sprintf("invalid request body: %v", err), "validation"))
		return false
	}
	return true
}

// writeError maps err to a status code. Server-side failures are logged;
// client errors are returned verbatim.
func (s *apiServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusForError(err)
	message := services.Message(err)
	if status >= http.StatusInternalServerError {
		logging.ErrorWithContext(logging.WithContext(r.Context(), s.logger), "api request failed", "api_error",
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Error(err),
		)
		if status == http.StatusInternalServerError {
			message = "internal error"
		}
	}
	writeJSON(w, status, errorBody(message, code))
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
