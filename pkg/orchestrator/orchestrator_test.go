package orchestrator

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycrab/tinycrab/pkg/bus"
	"github.com/tinycrab/tinycrab/pkg/cron"
	"github.com/tinycrab/tinycrab/pkg/memory"
	"github.com/tinycrab/tinycrab/pkg/session"
	"github.com/tinycrab/tinycrab/pkg/subagent"
)

type stubFacade struct {
	replies []string
	calls   []string
	percent float64
	lastErr error
}

func (f *stubFacade) Prompt(_ context.Context, text string) error {
	f.calls = append(f.calls, text)
	return f.lastErr
}

func (f *stubFacade) GetLastAssistantText() (string, bool) {
	if len(f.replies) == 0 {
		return "", false
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, true
}

func (f *stubFacade) GetContextUsage() (*session.ContextUsage, bool) {
	return &session.ContextUsage{Percent: f.percent}, true
}

func newTestOrchestrator(t *testing.T, facades map[string]*stubFacade) *Orchestrator {
	t.Helper()
	dir := t.TempDir()

	memStore, err := memory.Open(filepath.Join(dir, "memory.jsonl"))
	require.NoError(t, err)

	sessions := session.NewManager(session.ManagerConfig{
		Factory: func(key string) (session.Facade, error) {
			f, ok := facades[key]
			if !ok {
				f = &stubFacade{replies: []string{"ok"}}
				facades[key] = f
			}
			return f, nil
		},
	})
	t.Cleanup(func() { _ = sessions.Close() })

	subMgr := subagent.NewManager(subagent.Config{
		FacadeFactory: func(subagent.FacadeConfig) (subagent.Facade, error) {
			return nil, assert.AnError
		},
		Bus: bus.New(),
	})

	cronSvc := cron.NewService(cron.Options{StorePath: filepath.Join(dir, "cron.json")})
	require.NoError(t, cronSvc.Start())
	t.Cleanup(cronSvc.Stop)

	return &Orchestrator{
		cfg:            Config{DataDir: dir},
		Bus:            bus.New(),
		Sessions:       sessions,
		Memory:         memStore,
		Subagents:      subMgr,
		Cron:           cronSvc,
		flushThreshold: defaultFlushThreshold,
	}
}

func TestPromptWithFlushSkipsFlushBelowThreshold(t *testing.T) {
	facades := map[string]*stubFacade{"cli:abc": {replies: []string{"hello"}, percent: 0.1}}
	o := newTestOrchestrator(t, facades)

	reply, err := o.PromptWithFlush(context.Background(), "cli:abc", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	assert.Equal(t, []string{"hi"}, facades["cli:abc"].calls)
}

func TestPromptWithFlushIssuesSilentTurnAboveThreshold(t *testing.T) {
	facades := map[string]*stubFacade{"cli:abc": {replies: []string{"NO_REPLY", "hello"}, percent: 0.95}}
	o := newTestOrchestrator(t, facades)

	reply, err := o.PromptWithFlush(context.Background(), "cli:abc", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", reply)
	require.Len(t, facades["cli:abc"].calls, 2)
	assert.Contains(t, facades["cli:abc"].calls[0], "remember now")
	assert.Equal(t, "hi", facades["cli:abc"].calls[1])
}

func TestHandleInboundStatusRepliesSynchronously(t *testing.T) {
	facades := map[string]*stubFacade{}
	o := newTestOrchestrator(t, facades)

	var got bus.Message
	o.Bus.Subscribe("cli", func(m bus.Message) { got = m })

	o.handleInbound(context.Background(), bus.Message{Channel: "cli", ChatID: "abc", Text: "/status"})

	assert.Contains(t, got.Text, "subagent")
	assert.Contains(t, got.Text, "cron job")
}

func TestHandleInboundSpawnDispatchesToSubagentManager(t *testing.T) {
	facades := map[string]*stubFacade{}
	o := newTestOrchestrator(t, facades)

	var got bus.Message
	o.Bus.Subscribe("cli", func(m bus.Message) { got = m })

	o.handleInbound(context.Background(), bus.Message{Channel: "cli", ChatID: "abc", Text: "/spawn do the thing"})

	assert.Contains(t, got.Text, "Spawned subagent")
}

func TestHandleInboundSpawnWithoutTaskShowsUsage(t *testing.T) {
	facades := map[string]*stubFacade{}
	o := newTestOrchestrator(t, facades)

	var got bus.Message
	o.Bus.Subscribe("cli", func(m bus.Message) { got = m })

	o.handleInbound(context.Background(), bus.Message{Channel: "cli", ChatID: "abc", Text: "/spawn "})

	assert.Contains(t, got.Text, "usage")
}

func TestHandleInboundDefaultPromptsSession(t *testing.T) {
	facades := map[string]*stubFacade{"cli:abc": {replies: []string{"hi there"}}}
	o := newTestOrchestrator(t, facades)

	var got bus.Message
	o.Bus.Subscribe("cli", func(m bus.Message) { got = m })

	o.handleInbound(context.Background(), bus.Message{Channel: "cli", ChatID: "abc", Text: "hello"})

	assert.Equal(t, "hi there", got.Text)
}

func TestRunStopsWhenContextCanceled(t *testing.T) {
	facades := map[string]*stubFacade{}
	o := newTestOrchestrator(t, facades)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- o.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}
