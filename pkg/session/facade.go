package session

import "context"

// Facade is the abstract capability tinycrab requires from a live LLM
// session (§4.3): advance the conversation one turn, and report the last
// assistant reply. Implementations may additionally satisfy
// ContextUsageReporter and/or io-style Close — both optional per the
// façade's polymorphic capability set.
type Facade interface {
	Prompt(ctx context.Context, text string) error
	GetLastAssistantText() (string, bool)
}

// ContextUsage reports how full the underlying conversation context is.
type ContextUsage struct {
	Percent float64
}

// ContextUsageReporter is an optional façade capability used for
// pre-compaction hints (§4.10).
type ContextUsageReporter interface {
	GetContextUsage() (*ContextUsage, bool)
}

// Closer is an optional façade capability; sessions without persistent
// resources may omit it.
type Closer interface {
	Close() error
}

// Factory constructs a fresh Facade for key. It is invoked at most once
// per concurrent create for a given key (single-flight, §4.5).
type Factory func(key string) (Facade, error)
