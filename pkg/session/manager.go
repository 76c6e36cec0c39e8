package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxSessions is the default LRU cache capacity.
	DefaultMaxSessions = 100
	// DefaultTTL is the default idle timeout before a session is
	// eligible for cleanup.
	DefaultTTL = 30 * time.Minute
)

// record is one live, cached session and its per-key serialization lock.
// The lock plays the role of the design notes' "opChain": turns on this
// key acquire it in arrival order and release it when settled, so the
// next arrival begins only after the previous one finished — regardless
// of whether it succeeded.
type record struct {
	key            string
	facade         Facade
	createdAt      time.Time
	lastAccessedAt time.Time

	opMu sync.Mutex
}

type pendingCreate struct {
	done   chan struct{}
	record *record
	err    error
}

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	Factory     Factory
	MaxSessions int
	TTL         time.Duration
	Logger      zerolog.Logger
}

// Manager is the per-agent-process session manager (C5).
type Manager struct {
	factory     Factory
	maxSessions int
	ttl         time.Duration
	logger      zerolog.Logger

	mu       sync.Mutex
	sessions map[string]*record
	pending  map[string]*pendingCreate

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewManager constructs a Manager and starts its background cleanup timer.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Factory == nil {
		panic("session: Factory is required")
	}
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = DefaultMaxSessions
	}
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}

	m := &Manager{
		factory:     cfg.Factory,
		maxSessions: cfg.MaxSessions,
		ttl:         cfg.TTL,
		logger:      cfg.Logger,
		sessions:    make(map[string]*record),
		pending:     make(map[string]*pendingCreate),
		stopCh:      make(chan struct{}),
	}

	m.wg.Add(1)
	go m.cleanupLoop()

	return m
}

func cleanupInterval(ttl time.Duration) time.Duration {
	interval := ttl / 6
	if interval < 60*time.Second {
		interval = 60 * time.Second
	}
	return interval
}

func (m *Manager) cleanupLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(cleanupInterval(m.ttl))
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.evictExpired()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) evictExpired() {
	cutoff := time.Now().Add(-m.ttl)

	m.mu.Lock()
	var expired []*record
	for key, rec := range m.sessions {
		if rec.lastAccessedAt.Before(cutoff) {
			expired = append(expired, rec)
			delete(m.sessions, key)
		}
	}
	m.mu.Unlock()

	for _, rec := range expired {
		m.closeRecordAsync(rec)
	}
}

func (m *Manager) closeRecordAsync(rec *record) {
	closer, ok := rec.facade.(Closer)
	if !ok {
		return
	}
	go func() {
		rec.opMu.Lock()
		defer rec.opMu.Unlock()
		if err := closer.Close(); err != nil {
			m.logger.Warn().Str("session_key", rec.key).Err(err).Msg("session close failed")
		}
	}()
}

// GetOrCreateByKey resolves the live session for key, creating it via the
// configured Factory if absent, joining an in-flight creation if one is
// already underway (single-flight), and evicting the least-recently-used
// entry first if the cache is at capacity.
func (m *Manager) GetOrCreateByKey(key string) (Facade, error) {
	m.mu.Lock()
	if rec, ok := m.sessions[key]; ok {
		rec.lastAccessedAt = time.Now()
		m.mu.Unlock()
		return rec.facade, nil
	}
	if p, ok := m.pending[key]; ok {
		m.mu.Unlock()
		<-p.done
		if p.err != nil {
			return nil, p.err
		}
		return p.record.facade, nil
	}

	// No live session, no in-flight creation: become the creator.
	p := &pendingCreate{done: make(chan struct{})}
	m.pending[key] = p
	m.evictVictimLocked()
	m.mu.Unlock()

	facade, err := m.factory(key)

	m.mu.Lock()
	delete(m.pending, key)
	if err != nil {
		p.err = err
		m.mu.Unlock()
		close(p.done)
		return nil, err
	}

	now := time.Now()
	rec := &record{key: key, facade: facade, createdAt: now, lastAccessedAt: now}
	m.sessions[key] = rec
	p.record = rec
	m.mu.Unlock()
	close(p.done)

	return rec.facade, nil
}

// evictVictimLocked must be called with m.mu held. If the cache is at
// capacity, it removes the least-recently-accessed session and closes it
// asynchronously (fire-and-forget) so the new creation is never blocked
// on the old session's teardown.
func (m *Manager) evictVictimLocked() {
	if len(m.sessions) < m.maxSessions {
		return
	}

	var victimKey string
	var oldest time.Time
	first := true
	for key, rec := range m.sessions {
		if first || rec.lastAccessedAt.Before(oldest) {
			victimKey = key
			oldest = rec.lastAccessedAt
			first = false
		}
	}
	if victimKey == "" {
		return
	}

	victim := m.sessions[victimKey]
	delete(m.sessions, victimKey)
	m.logger.Info().Str("session_key", victimKey).Msg("evicting least-recently-used session")
	m.closeRecordAsync(victim)
}

// WithSession resolves the session for key (creating it if necessary)
// then runs fn after the key's previously arrived turn has settled,
// whether or not that previous turn succeeded. Turns on distinct keys
// never block each other.
func (m *Manager) WithSession(ctx context.Context, key string, fn func(Facade) (string, error)) (string, error) {
	facade, err := m.GetOrCreateByKey(key)
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	rec, ok := m.sessions[key]
	m.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("session: key %q was evicted before its turn could run", key)
	}

	rec.opMu.Lock()
	defer rec.opMu.Unlock()

	result, err := fn(facade)

	m.mu.Lock()
	rec.lastAccessedAt = time.Now()
	m.mu.Unlock()

	return result, err
}

// ListSessions returns the keys of all currently cached sessions.
func (m *Manager) ListSessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.sessions))
	for key := range m.sessions {
		keys = append(keys, key)
	}
	return keys
}

// Close stops the cleanup timer and closes every cached session
// synchronously.
func (m *Manager) Close() error {
	m.stopOnce.Do(func() { close(m.stopCh) })
	m.wg.Wait()

	m.mu.Lock()
	recs := make([]*record, 0, len(m.sessions))
	for key, rec := range m.sessions {
		recs = append(recs, rec)
		delete(m.sessions, key)
	}
	m.mu.Unlock()

	var firstErr error
	for _, rec := range recs {
		rec.opMu.Lock()
		if closer, ok := rec.facade.(Closer); ok {
			if err := closer.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		rec.opMu.Unlock()
	}
	return firstErr
}
