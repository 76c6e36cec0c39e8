package subagent

import (
	"fmt"

	"github.com/tinycrab/tinycrab/pkg/agent"
)

// GuardExecutor wraps a tool executor so that denied tool names are
// short-circuited into a structured error result rather than executed,
// regardless of whether the tool list handed to the façade was already
// filtered. This is the second enforcement layer described in §4.6: a
// caller flag (isSubagent, carried implicitly by constructing the guard at
// all) that blocks the call even if a denied tool name slipped through.
type GuardExecutor struct {
	Inner agent.ToolExecutor
}

// Execute implements agent.ToolExecutor.
func (g GuardExecutor) Execute(name string, params map[string]interface{}) (string, error) {
	if IsDenied(name) {
		if name == "spawn_subagent" {
			return "", fmt.Errorf("nested_spawn_blocked")
		}
		return "", fmt.Errorf("denied_tool: %s is not available to subagents", name)
	}
	if g.Inner == nil {
		return "", fmt.Errorf("no tool executor configured")
	}
	return g.Inner.Execute(name, params)
}
