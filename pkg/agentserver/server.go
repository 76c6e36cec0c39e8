package agentserver

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinycrab/tinycrab/pkg/agent"
	"github.com/tinycrab/tinycrab/pkg/orchestrator"
	"github.com/tinycrab/tinycrab/pkg/sessionkey"
)

// sessionIDPattern matches a caller-supplied session id already in the
// "...-<16 hex chars>" shape (§4.8): such ids are reused verbatim rather
// than having a fresh suffix appended.
var sessionIDPattern = regexp.MustCompile(`.+-[0-9a-f]{16}$`)

// Config configures a Server.
type Config struct {
	ID        string
	Port      int
	DataDir   string
	Provider  string
	Model     string
	AuthStore *agent.AuthStore
	Logger    zerolog.Logger
}

// Server implements C8: a loopback-bound HTTP server fronting exactly one
// Orchestrator (and therefore one session manager, one memory store).
type Server struct {
	cfg    Config
	logger zerolog.Logger
	orch   *orchestrator.Orchestrator

	server   *http.Server
	pidPath  string
	startAt  time.Time
}

// New constructs a Server and the Orchestrator it fronts, creating the
// agent's workspace/sessions/memory directories if absent.
func New(cfg Config) (*Server, error) {
	if cfg.ID == "" {
		return nil, fmt.Errorf("agentserver: id is required")
	}
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("agentserver: port is required")
	}
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("agentserver: dataDir is required")
	}

	for _, sub := range []string{"workspace", "sessions", "memory"} {
		if err := os.MkdirAll(filepath.Join(cfg.DataDir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("agentserver: create %s directory: %w", sub, err)
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Provider:  cfg.Provider,
		Model:     cfg.Model,
		AuthStore: cfg.AuthStore,
		DataDir:   cfg.DataDir,
		Logger:    cfg.Logger,
	})
	if err != nil {
		return nil, err
	}
	if err := orch.Cron.Start(); err != nil {
		return nil, fmt.Errorf("agentserver: start cron: %w", err)
	}

	return &Server{
		cfg:     cfg,
		logger:  cfg.Logger,
		orch:    orch,
		pidPath: filepath.Join(cfg.DataDir, "server.pid"),
		startAt: time.Now(),
	}, nil
}

// Run binds the HTTP listener, writes server.pid, runs the orchestrator's
// bus loop in the background, and blocks until ctx is canceled. On return
// the listener is shut down gracefully and server.pid is removed.
func (s *Server) Run(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/info", s.handleInfo)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/stop", s.handleStop)

	s.server = &http.Server{
		Addr:    fmt.Sprintf("127.0.0.1:%d", s.cfg.Port),
		Handler: mux,
	}

	if err := os.WriteFile(s.pidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("agentserver: write pid file: %w", err)
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go func() { _ = s.orch.Run(runCtx) }()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("agent", s.cfg.ID).Int("port", s.cfg.Port).Msg("agentserver: listening")
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			s.shutdown()
			return err
		}
	}

	return s.shutdown()
}

func (s *Server) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var firstErr error
	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			firstErr = err
		}
	}
	if err := s.orch.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	os.Remove(s.pidPath)
	return firstErr
}

// Stop requests an orderly shutdown; it is called by the /stop handler
// from a separate goroutine after the response has been written.
func (s *Server) Stop() {
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = s.shutdown()
		os.Exit(0)
	}()
}

type healthResponse struct {
	Status string `json:"status"`
	Agent  string `json:"agent"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Agent: s.cfg.ID})
}

type infoResponse struct {
	ID             string `json:"id"`
	Status         string `json:"status"`
	Port           int    `json:"port"`
	PID            int    `json:"pid"`
	Workspace      string `json:"workspace"`
	SessionsDir    string `json:"sessionsDir"`
	MemoryDir      string `json:"memoryDir"`
	ActiveSessions int    `json:"activeSessions"`
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, infoResponse{
		ID:             s.cfg.ID,
		Status:         "running",
		Port:           s.cfg.Port,
		PID:            os.Getpid(),
		Workspace:      filepath.Join(s.cfg.DataDir, "workspace"),
		SessionsDir:    filepath.Join(s.cfg.DataDir, "sessions"),
		MemoryDir:      filepath.Join(s.cfg.DataDir, "memory"),
		ActiveSessions: len(s.orch.Sessions.ListSessions()),
	})
}

type chatRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
}

type chatResponse struct {
	Response  string `json:"response"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "message is required"})
		return
	}

	sessionID, err := resolveSessionID(req.SessionID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	key, err := sessionkey.Build("http", sessionID, "")
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	reply, err := s.orch.PromptWithFlush(r.Context(), key, req.Message)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Response: reply, SessionID: sessionID})
}

// resolveSessionID implements §4.8's session id rules: a missing id gets a
// fresh "session-<16 hex>" id; an id already ending in "-<16 hex>" is
// reused verbatim; anything else gets that suffix appended.
func resolveSessionID(requested string) (string, error) {
	if requested == "" {
		suffix, err := randomHex(16)
		if err != nil {
			return "", err
		}
		return "session-" + suffix, nil
	}
	if sessionIDPattern.MatchString(requested) {
		return requested, nil
	}
	suffix, err := randomHex(16)
	if err != nil {
		return "", err
	}
	return requested + "-" + suffix, nil
}

func randomHex(n int) (string, error) {
	buf := make([]byte, n/2)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("agentserver: generate session suffix: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

type sessionsResponse struct {
	Sessions []string `json:"sessions"`
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: s.orch.Sessions.ListSessions()})
}

type stopResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
		return
	}
	writeJSON(w, http.StatusOK, stopResponse{Status: "stopping"})
	s.Stop()
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
