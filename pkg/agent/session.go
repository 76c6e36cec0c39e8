package agent

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

const defaultMaxContextTokens = 200000

// historyRecord is the on-disk shape of one persisted conversation
// message, one per line of history.jsonl.
type historyRecord struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCalls  []ToolCall             `json:"tool_calls,omitempty"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
}

// Session is the façade's concrete Session value (§4.3): it advances an
// LLM conversation one turn at a time, looping any tool calls to
// completion before prompt() returns, and persists its own history to
// SessionDirectory.
type Session struct {
	mu       sync.Mutex
	cfg      Config
	provider LLMProvider
	history  []AgentMessage
	lastText string

	historyPath string
}

// NewSession constructs a Session per cfg, resuming any history already
// present under cfg.SessionDirectory.
func NewSession(cfg Config) (*Session, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("agent: model is required")
	}
	if cfg.Provider == "" {
		cfg.Provider = "openai"
	}

	apiKey := ""
	if cfg.AuthStore != nil {
		apiKey, _ = cfg.AuthStore.Get(cfg.Provider)
	}

	factory := &ProviderFactory{Logger: cfg.Logger, AgentID: cfg.AgentID}
	provider, err := factory.NewProvider(AuthProfile{Provider: cfg.Provider, APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("agent: %w", err)
	}

	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = defaultMaxContextTokens
	}

	s := &Session{cfg: cfg, provider: provider}

	if cfg.SessionDirectory != "" {
		if err := os.MkdirAll(cfg.SessionDirectory, 0o755); err != nil {
			return nil, fmt.Errorf("agent: create session directory: %w", err)
		}
		s.historyPath = filepath.Join(cfg.SessionDirectory, "history.jsonl")
		if err := s.loadHistory(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

func (s *Session) loadHistory() error {
	f, err := os.Open(s.historyPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("agent: load history: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var rec historyRecord
		if err := json.Unmarshal(line, &rec); err != nil {
			continue // malformed lines are skipped, mirroring memory store semantics
		}
		s.history = append(s.history, AgentMessage{
			Role:       rec.Role,
			Content:    rec.Content,
			ToolCalls:  rec.ToolCalls,
			ToolCallID: rec.ToolCallID,
		})
	}
	return scanner.Err()
}

func (s *Session) appendHistory(msg AgentMessage) error {
	s.history = append(s.history, msg)
	if s.historyPath == "" {
		return nil
	}
	f, err := os.OpenFile(s.historyPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("agent: open history: %w", err)
	}
	defer f.Close()

	line, err := json.Marshal(historyRecord{
		Role:       msg.Role,
		Content:    msg.Content,
		ToolCalls:  msg.ToolCalls,
		ToolCallID: msg.ToolCallID,
	})
	if err != nil {
		return fmt.Errorf("agent: marshal history record: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("agent: write history: %w", err)
	}
	return nil
}

// Prompt advances the conversation by one turn: it sends text plus the
// accumulated history to the provider, executes any returned tool calls
// via cfg.ToolExecutor, and loops until a tool-call-free response arrives
// or the turn cap is hit.
func (s *Session) Prompt(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.appendHistory(AgentMessage{Role: "user", Content: text}); err != nil {
		return err
	}

	const maxTurns = 10
	for turn := 0; turn < maxTurns; turn++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		req := LLMRequest{
			Model:        s.cfg.Model,
			Messages:     s.history,
			Tools:        s.cfg.Tools,
			Temperature:  s.cfg.Temperature,
			MaxTokens:    s.cfg.MaxTokens,
			SystemPrompt: s.cfg.SystemPrompt,
			Timeout:      s.cfg.RequestTimeout,
		}

		resp, err := s.callWithRetry(ctx, req)
		if err != nil {
			return fmt.Errorf("agent: provider call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			s.lastText = resp.Content
			return s.appendHistory(AgentMessage{Role: "assistant", Content: resp.Content})
		}

		if err := s.appendHistory(AgentMessage{Role: "assistant", Content: resp.Content, ToolCalls: resp.ToolCalls}); err != nil {
			return err
		}

		for _, tc := range resp.ToolCalls {
			output, toolErr := s.executeTool(tc)
			content := output
			if toolErr != nil {
				content = toolErr.Error()
			}
			if err := s.appendHistory(AgentMessage{Role: "tool", Content: content, ToolCallID: tc.ID}); err != nil {
				return err
			}
		}
	}

	return fmt.Errorf("agent: maximum tool-call turns exceeded")
}

func (s *Session) executeTool(tc ToolCall) (string, error) {
	if s.cfg.ToolExecutor == nil {
		return "", fmt.Errorf("tool %q is not available to this session", tc.Name)
	}
	return s.cfg.ToolExecutor.Execute(tc.Name, tc.Parameters)
}

func (s *Session) callWithRetry(ctx context.Context, req LLMRequest) (*LLMResponse, error) {
	maxRetries := s.cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := s.provider.Call(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if !IsRetryableError(err) {
			return nil, err
		}
	}
	return nil, lastErr
}

// GetLastAssistantText returns the most recent assistant reply, if any.
func (s *Session) GetLastAssistantText() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastText == "" {
		return "", false
	}
	return s.lastText, true
}

// GetContextUsage estimates how full the conversation context is,
// expressed as a fraction of cfg.MaxContextTokens.
func (s *Session) GetContextUsage() (*ContextUsage, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tokens := EstimateTokens(s.history)
	return &ContextUsage{Percent: float64(tokens) / float64(s.cfg.MaxContextTokens)}, true
}

// Close releases any resources held by the session. The in-process façade
// has none beyond the already-flushed history file.
func (s *Session) Close() error {
	return nil
}
