// Package agentserver implements the per-agent HTTP server (§4.8): a
// loopback-bound process owning exactly one memory store and one session
// manager, reachable by the supervisor over /health, /info, /chat,
// /sessions, and /stop.
//
//	srv, err := agentserver.New(agentserver.Config{
//		ID:       "main",
//		Port:     9000,
//		DataDir:  "/data/agents/main",
//		Provider: "openai",
//		Model:    "gpt-4o",
//		AuthStore: authStore,
//	})
//	srv.Run(ctx)
package agentserver
