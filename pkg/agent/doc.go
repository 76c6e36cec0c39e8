// Package agent implements the LLM-session façade (C3): a Session value
// backed by a real provider (Anthropic, OpenAI) that advances a
// conversation one turn at a time, looping tool calls to completion before
// returning control to the caller.
//
// Usage:
//
//	sess, _ := agent.NewSession(agent.Config{
//		Model:           "claude-sonnet-4",
//		WorkspacePath:   workspaceDir,
//		SessionDirectory: sessionDir,
//		AuthStore:       store,
//	})
//	_ = sess.Prompt(context.Background(), "hello")
//	text, _ := sess.GetLastAssistantText()
package agent
