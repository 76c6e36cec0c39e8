package subagent

import (
	"context"
	"fmt"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/tinycrab/tinycrab/pkg/bus"
)

// Facade is the subset of the session façade (C3) a subagent worker needs:
// a single prompt call and the resulting assistant text. Subagents never
// share a Manager/C5 cache with the main agent — each gets a dedicated,
// disposable session.
type Facade interface {
	Prompt(ctx context.Context, text string) error
	GetLastAssistantText() (string, bool)
}

// FacadeConfig is what the manager passes to FacadeFactory when spawning a
// worker: the tool list has already been filtered of denied names.
type FacadeConfig struct {
	SessionKey   string
	Tools        []Tool
	SystemPrompt string
}

// FacadeFactory constructs a fresh, isolated façade session for a subagent
// run. Implementations typically call agent.NewSession with cfg translated
// into an agent.Config.
type FacadeFactory func(cfg FacadeConfig) (Facade, error)

// Config configures a Manager.
type Config struct {
	FacadeFactory FacadeFactory
	Bus           *bus.Bus
	BaseTools     []Tool
	Logger        zerolog.Logger
}

type runningState struct {
	cancel   chan struct{}
	canceled bool
}

// Manager implements C6: it spawns, tracks, and announces the completion
// of subagent runs.
type Manager struct {
	factory   FacadeFactory
	bus       *bus.Bus
	baseTools []Tool
	logger    zerolog.Logger

	mu      sync.Mutex
	records map[string]*Record
	running map[string]*runningState

	routeMu sync.Mutex
	channel string
	chatID  string
}

// NewManager constructs a Manager.
func NewManager(cfg Config) *Manager {
	if cfg.FacadeFactory == nil {
		panic("subagent: FacadeFactory is required")
	}
	return &Manager{
		factory:   cfg.FacadeFactory,
		bus:       cfg.Bus,
		baseTools: cfg.BaseTools,
		logger:    cfg.Logger,
		records:   make(map[string]*Record),
		running:   make(map[string]*runningState),
	}
}

// SetRoutingContext records the (channel, chatId) the orchestrator is
// currently dispatching for, so a Spawn call with no explicit channel/chatId
// routes its announcement back to the originator.
func (m *Manager) SetRoutingContext(channel, chatID string) {
	m.routeMu.Lock()
	defer m.routeMu.Unlock()
	m.channel, m.chatID = channel, chatID
}

func (m *Manager) routingContext() (string, string) {
	m.routeMu.Lock()
	defer m.routeMu.Unlock()
	return m.channel, m.chatID
}

// Spawn allocates an id, registers a running record, and starts the
// background worker. It returns immediately; work proceeds asynchronously.
func (m *Manager) Spawn(params SpawnParams) (string, error) {
	id, err := gonanoid.Generate("abcdefghijklmnopqrstuvwxyz0123456789", 8)
	if err != nil {
		return "", fmt.Errorf("subagent: allocate id: %w", err)
	}

	channel, chatID := params.Channel, params.ChatID
	if channel == "" && chatID == "" {
		channel, chatID = m.routingContext()
	}
	parent := channel + ":" + chatID

	rec := &Record{
		ID:            id,
		Label:         params.Label,
		Task:          params.Task,
		SessionKey:    "subagent:" + parent + ":" + id,
		ParentChannel: channel,
		ParentChatID:  chatID,
		Status:        StatusRunning,
		StartedAt:     time.Now().UnixMilli(),
	}

	st := &runningState{cancel: make(chan struct{})}

	m.mu.Lock()
	m.records[id] = rec
	m.running[id] = st
	m.mu.Unlock()

	if params.TimeoutSeconds > 0 {
		go func() {
			timer := time.NewTimer(time.Duration(params.TimeoutSeconds) * time.Second)
			defer timer.Stop()
			select {
			case <-timer.C:
				m.fireTimeout(id)
			case <-st.cancel:
			}
		}()
	}

	go m.runWorker(rec, params, st)

	return id, nil
}

func (m *Manager) runWorker(rec *Record, params SpawnParams, st *runningState) {
	start := time.Now()
	tools := FilterDenied(m.baseTools)

	facade, err := m.factory(FacadeConfig{
		SessionKey:   rec.SessionKey,
		Tools:        tools,
		SystemPrompt: systemContext(rec),
	})
	if err != nil {
		m.finishFailed(rec, st, err.Error(), start)
		return
	}

	done := make(chan error, 1)
	go func() {
		done <- facade.Prompt(context.Background(), params.Task)
	}()

	select {
	case err := <-done:
		if err != nil {
			m.finishFailed(rec, st, err.Error(), start)
			return
		}
		text, ok := facade.GetLastAssistantText()
		if !ok || text == "" {
			text = "Done"
		}
		m.finishCompleted(rec, st, text, start)
	case <-st.cancel:
		// Timeout branch already transitioned the record; nothing more to do.
	}
}

func (m *Manager) fireTimeout(id string) {
	m.mu.Lock()
	rec, ok := m.records[id]
	st := m.running[id]
	if !ok || st == nil || st.canceled {
		m.mu.Unlock()
		return
	}
	st.canceled = true
	rec.Status = StatusFailed
	rec.Error = "Timeout exceeded"
	now := time.Now().UnixMilli()
	rec.CompletedAt = &now
	rec.RuntimeMs = now - rec.StartedAt
	delete(m.running, id)
	m.mu.Unlock()

	close(st.cancel)
	m.announce(rec, fmt.Sprintf("[Subagent %s%s failed]\nError: Timeout exceeded\nRuntime: %dms", rec.ID, labelSuffix(rec.Label), rec.RuntimeMs))
}

func (m *Manager) finishCompleted(rec *Record, st *runningState, text string, start time.Time) {
	m.mu.Lock()
	if st.canceled {
		m.mu.Unlock()
		return
	}
	st.canceled = true
	rec.Status = StatusCompleted
	rec.Result = text
	now := time.Now().UnixMilli()
	rec.CompletedAt = &now
	rec.RuntimeMs = time.Since(start).Milliseconds()
	delete(m.running, rec.ID)
	m.mu.Unlock()

	m.announce(rec, fmt.Sprintf("[Subagent %s%s completed successfully]\n%s\nRuntime: %dms", rec.ID, labelSuffix(rec.Label), text, rec.RuntimeMs))
}

func (m *Manager) finishFailed(rec *Record, st *runningState, reason string, start time.Time) {
	m.mu.Lock()
	if st.canceled {
		m.mu.Unlock()
		return
	}
	st.canceled = true
	rec.Status = StatusFailed
	rec.Error = reason
	now := time.Now().UnixMilli()
	rec.CompletedAt = &now
	rec.RuntimeMs = time.Since(start).Milliseconds()
	delete(m.running, rec.ID)
	m.mu.Unlock()

	m.announce(rec, fmt.Sprintf("[Subagent %s%s failed]\nError: %s\nRuntime: %dms", rec.ID, labelSuffix(rec.Label), reason, rec.RuntimeMs))
}

// Stop aborts a running subagent. It returns whether anything was stopped.
func (m *Manager) Stop(id string) bool {
	m.mu.Lock()
	rec, ok := m.records[id]
	st := m.running[id]
	if !ok || st == nil || st.canceled {
		m.mu.Unlock()
		return false
	}
	st.canceled = true
	rec.Status = StatusCompleted
	rec.Result = "Stopped by request"
	now := time.Now().UnixMilli()
	rec.CompletedAt = &now
	rec.RuntimeMs = now - rec.StartedAt
	delete(m.running, id)
	m.mu.Unlock()

	close(st.cancel)
	m.announce(rec, fmt.Sprintf("[Subagent %s%s stopped]\nStopped by request\nRuntime: %dms", rec.ID, labelSuffix(rec.Label), rec.RuntimeMs))
	return true
}

func (m *Manager) announce(rec *Record, text string) {
	if m.bus == nil || rec.ParentChannel == "" {
		return
	}
	m.bus.PublishOutbound(bus.Message{Channel: rec.ParentChannel, ChatID: rec.ParentChatID, Text: text})
}

// Get returns a subagent record by id.
func (m *Manager) Get(id string) (Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// List returns subagent records, optionally filtered by status.
func (m *Manager) List(filter ListFilter) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		if filter.Status != "" && rec.Status != filter.Status {
			continue
		}
		out = append(out, *rec)
	}
	return out
}

// Cleanup removes non-running records older than maxAgeMs (default 30min)
// and returns the number removed.
func (m *Manager) Cleanup(maxAgeMs int64) int {
	if maxAgeMs <= 0 {
		maxAgeMs = 30 * 60 * 1000
	}
	cutoff := time.Now().UnixMilli() - maxAgeMs

	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for id, rec := range m.records {
		if rec.Status == StatusRunning {
			continue
		}
		if rec.CompletedAt != nil && *rec.CompletedAt < cutoff {
			delete(m.records, id)
			removed++
		}
	}
	return removed
}

func systemContext(rec *Record) string {
	return fmt.Sprintf(
		"You are a subagent spawned to complete one task in isolation. "+
			"Session key: %s. Created at: %s. "+
			"You cannot spawn further subagents, schedule cron jobs, or access the parent's memory. "+
			"Complete the task and reply with your findings.",
		rec.SessionKey, time.UnixMilli(rec.StartedAt).UTC().Format(time.RFC3339))
}

func labelSuffix(label string) string {
	if label == "" {
		return ""
	}
	return " (" + label + ")"
}
