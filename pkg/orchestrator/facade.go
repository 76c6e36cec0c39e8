package orchestrator

import (
	"context"

	"github.com/tinycrab/tinycrab/pkg/agent"
	"github.com/tinycrab/tinycrab/pkg/session"
)

// sessionFacade adapts *agent.Session to session.Facade (and its optional
// ContextUsageReporter/Closer capabilities). It exists because
// agent.ContextUsage and session.ContextUsage are distinct named types even
// though they share a shape: session.Factory implementations can't return
// an *agent.Session directly and have it satisfy
// session.ContextUsageReporter.
type sessionFacade struct {
	inner *agent.Session
}

func newSessionFacade(inner *agent.Session) *sessionFacade {
	return &sessionFacade{inner: inner}
}

func (f *sessionFacade) Prompt(ctx context.Context, text string) error {
	return f.inner.Prompt(ctx, text)
}

func (f *sessionFacade) GetLastAssistantText() (string, bool) {
	return f.inner.GetLastAssistantText()
}

func (f *sessionFacade) GetContextUsage() (*session.ContextUsage, bool) {
	usage, ok := f.inner.GetContextUsage()
	if !ok || usage == nil {
		return nil, false
	}
	return &session.ContextUsage{Percent: usage.Percent}, true
}

func (f *sessionFacade) Close() error {
	return f.inner.Close()
}
