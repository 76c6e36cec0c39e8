// Package supervisor implements C9: it spawns, tracks, and reconciles
// per-agent server subprocesses (pkg/agentserver, launched via
// cmd/agentserver), and exposes handle operations the CLI or an in-process
// orchestrator uses to talk to them over HTTP.
package supervisor

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
)

const (
	defaultStartPort      = 9000
	defaultHost           = "127.0.0.1"
	readinessPollInterval = 200 * time.Millisecond
	readinessMaxAttempts  = 30
	closeDrainDelay       = 200 * time.Millisecond
)

// Config configures a Supervisor.
type Config struct {
	DataDir         string
	Host            string
	StartPort       int
	AgentServerPath string
	Provider        string
	Model           string
	APIKey          string
	Logger          zerolog.Logger
}

type agentRecord struct {
	info Info
	cmd  *exec.Cmd
}

// Supervisor implements C9.
type Supervisor struct {
	cfg    Config
	host   string
	binary string
	logger zerolog.Logger

	ports *portAllocator

	mu     sync.Mutex
	agents map[string]*agentRecord
}

// New constructs a Supervisor. Call Init before Spawn to reconcile any
// agents already on disk from a previous run.
func New(cfg Config) (*Supervisor, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("supervisor: dataDir is required")
	}
	host := cfg.Host
	if host == "" {
		host = defaultHost
	}
	startPort := cfg.StartPort
	if startPort == 0 {
		startPort = defaultStartPort
	}
	binary, err := resolveAgentServerPath(cfg.AgentServerPath)
	if err != nil {
		return nil, err
	}

	return &Supervisor{
		cfg:    cfg,
		host:   host,
		binary: binary,
		logger: cfg.Logger,
		ports:  newPortAllocator(host, startPort),
		agents: make(map[string]*agentRecord),
	}, nil
}

func resolveAgentServerPath(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if path, err := exec.LookPath("agentserver"); err == nil {
		return path, nil
	}
	if self, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(self), "agentserver")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("supervisor: could not locate the agentserver binary; set Config.AgentServerPath")
}

func (s *Supervisor) agentsDir() string {
	return filepath.Join(s.cfg.DataDir, "agents")
}

func (s *Supervisor) agentDir(id string) string {
	return filepath.Join(s.agentsDir(), id)
}

// Init creates <data>/agents/ if missing and reconciles the supervisor's
// in-memory state with whatever is recorded on disk from a previous run
// (§4.9 init).
func (s *Supervisor) Init() error {
	if err := os.MkdirAll(s.agentsDir(), 0o755); err != nil {
		return fmt.Errorf("supervisor: create agents dir: %w", err)
	}

	entries, err := os.ReadDir(s.agentsDir())
	if err != nil {
		return fmt.Errorf("supervisor: read agents dir: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id := entry.Name()
		meta, ok := s.readMeta(id)
		if !ok {
			continue
		}
		s.ports.observe(meta.Port)

		info := Info{ID: id, Port: meta.Port, CreatedAt: meta.CreatedAt, DataDir: s.agentDir(id), Status: StatusStopped}
		if pid, ok := s.readPID(id); ok {
			if processAlive(pid) && s.ports.isHealthy(meta.Port) {
				info.PID = pid
				info.Status = StatusRunning
			} else {
				os.Remove(s.pidPath(id))
			}
		}
		s.agents[id] = &agentRecord{info: info}
	}

	return nil
}

func (s *Supervisor) readMeta(id string) (metaFile, bool) {
	data, err := os.ReadFile(filepath.Join(s.agentDir(id), "meta.json"))
	if err != nil {
		return metaFile{}, false
	}
	var meta metaFile
	if err := json.Unmarshal(data, &meta); err != nil {
		return metaFile{}, false
	}
	return meta, true
}

func (s *Supervisor) pidPath(id string) string {
	return filepath.Join(s.agentDir(id), "server.pid")
}

func (s *Supervisor) readPID(id string) (int, bool) {
	data, err := os.ReadFile(s.pidPath(id))
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(string(data))
	if err != nil {
		return 0, false
	}
	return pid, true
}

func processAlive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}

// Spawn starts (or reattaches to) the agent server for id, returning a
// Handle once it answers /health.
func (s *Supervisor) Spawn(ctx context.Context, id string, opts SpawnOptions) (*Handle, error) {
	s.mu.Lock()
	if rec, ok := s.agents[id]; ok && rec.info.Status == StatusRunning {
		handle := s.handleFor(id, rec.info.Port)
		s.mu.Unlock()
		reattachLogger := s.logger.With().Str("agent_id", id).Logger()
		reattachLogger.Debug().Msg("agent already running, reattaching")
		return handle, nil
	}
	port := 0
	if rec, ok := s.agents[id]; ok {
		port = rec.info.Port
	}
	s.mu.Unlock()

	if port == 0 {
		port = s.ports.allocate()
	}

	dir := s.agentDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("supervisor: create agent dir: %w", err)
	}

	provider := opts.Provider
	if provider == "" {
		provider = s.cfg.Provider
	}
	model := opts.Model
	if model == "" {
		model = s.cfg.Model
	}
	apiKey := opts.APIKey
	if apiKey == "" {
		apiKey = s.cfg.APIKey
	}

	agentLog := s.logger.With().Str("agent_id", id).Int("port", port).Logger()

	cmd := exec.CommandContext(context.Background(), s.binary,
		"--id", id,
		"--port", strconv.Itoa(port),
		"--data-dir", dir,
		"--provider", provider,
		"--model", model,
	)
	cmd.Stdout = nil
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("supervisor: open stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: start agent server: %w", err)
	}
	fmt.Fprintf(stdin, "%s\n", apiKey)
	stdin.Close()
	agentLog.Info().Str("provider", provider).Int("pid", cmd.Process.Pid).Msg("agent server started, waiting for health check")

	if !s.waitHealthy(ctx, port) {
		_ = cmd.Process.Kill()
		agentLog.Warn().Msg("agent server did not become healthy in time, killed")
		return nil, fmt.Errorf("supervisor: agent %q did not become healthy in time", id)
	}
	agentLog.Info().Msg("agent server healthy")

	createdAt := time.Now().UnixMilli()
	meta := metaFile{CreatedAt: createdAt, Port: port}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("supervisor: marshal meta: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644); err != nil {
		return nil, fmt.Errorf("supervisor: write meta: %w", err)
	}

	s.mu.Lock()
	s.agents[id] = &agentRecord{
		info: Info{ID: id, Port: port, PID: cmd.Process.Pid, CreatedAt: createdAt, Status: StatusRunning, DataDir: dir},
		cmd:  cmd,
	}
	s.mu.Unlock()

	return s.handleFor(id, port), nil
}

func (s *Supervisor) waitHealthy(ctx context.Context, port int) bool {
	for attempt := 0; attempt < readinessMaxAttempts; attempt++ {
		if s.ports.isHealthy(port) {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(readinessPollInterval):
		}
	}
	return s.ports.isHealthy(port)
}

// Get returns a handle to a known agent, refreshing its status first.
func (s *Supervisor) Get(id string) (*Handle, bool) {
	s.mu.Lock()
	rec, ok := s.agents[id]
	s.mu.Unlock()
	if !ok {
		return nil, false
	}
	s.refreshStatus(id, rec)
	if rec.info.Status != StatusRunning {
		return nil, false
	}
	return s.handleFor(id, rec.info.Port), true
}

// List returns every known agent's info, refreshing status via /health
// first (§4.9: "list refreshes each agent's status").
func (s *Supervisor) List() []Info {
	s.mu.Lock()
	recs := make([]*agentRecord, 0, len(s.agents))
	for _, rec := range s.agents {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	out := make([]Info, 0, len(recs))
	for _, rec := range recs {
		id := rec.info.ID
		s.refreshStatus(id, rec)
		out = append(out, rec.info)
	}
	return out
}

func (s *Supervisor) refreshStatus(id string, rec *agentRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ports.isHealthy(rec.info.Port) {
		rec.info.Status = StatusStopped
	}
}

func (s *Supervisor) handleFor(id string, port int) *Handle {
	return &Handle{sup: s, id: id, baseURL: fmt.Sprintf("http://%s:%d", s.host, port)}
}

// Close stops every running agent: POST /stop to each, wait briefly, then
// discard handles (§4.9 close()).
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.agents))
	for id, rec := range s.agents {
		if rec.info.Status == StatusRunning {
			ids = append(ids, id)
		}
	}
	s.mu.Unlock()

	s.logger.Info().Int("agent_count", len(ids)).Msg("supervisor closing, stopping all running agents")
	for _, id := range ids {
		if handle, ok := s.Get(id); ok {
			_ = handle.Stop(ctx)
		}
	}
	time.Sleep(closeDrainDelay)

	s.mu.Lock()
	s.agents = make(map[string]*agentRecord)
	s.mu.Unlock()
	return nil
}
