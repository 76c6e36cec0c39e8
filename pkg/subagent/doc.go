// Package subagent implements the subagent manager (C6): spawning a
// transient, tool-restricted LLM session to execute a single task in the
// background and announcing its outcome back to the requester's channel.
//
// Usage:
//
//	mgr := subagent.NewManager(subagent.Config{FacadeFactory: newFacade, Bus: bus, BaseTools: tools})
//	id, _ := mgr.Spawn(subagent.SpawnParams{Task: "summarize the thread", Channel: "cli", ChatID: "abc"})
package subagent
