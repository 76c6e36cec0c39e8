// Package session implements the session manager (C5): a per-agent LRU,
// TTL-bounded cache of live façade sessions with single-flight creation
// and strict per-key serialization of turns.
//
// Invariants:
// - At most one Session object exists per key at any instant.
// - Turns on the same key run strictly serially; turns on different keys
//   run concurrently.
// - Eviction is least-recently-accessed by lastAccessedAt.
//
// Usage:
//
//	mgr := session.NewManager(session.ManagerConfig{Factory: facadeFactory})
//	defer mgr.Close()
//	reply, _ := mgr.WithSession(ctx, "http:abc123", func(s session.Facade) (string, error) {
//		if err := s.Prompt(ctx, "hello"); err != nil {
//			return "", err
//		}
//		text, _ := s.GetLastAssistantText()
//		return text, nil
//	})
package session
