package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/tinycrab/tinycrab/pkg/cron"
	"github.com/tinycrab/tinycrab/pkg/memory"
	"github.com/tinycrab/tinycrab/pkg/subagent"
)

// baseTools returns the full tool set a top-level (non-subagent) session
// sees: memory recall/remember, subagent lifecycle, and cron management.
// Subagent sessions see this list with subagent.FilterDenied applied.
func baseTools() []subagent.Tool {
	return []subagent.Tool{
		toolDef("remember", "Store a fact worth recalling later.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"content":    map[string]interface{}{"type": "string"},
				"importance": map[string]interface{}{"type": "number", "description": "0 to 1"},
				"tags":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
			},
			"required": []string{"content"},
		}),
		toolDef("recall", "Search remembered facts by query and/or tags.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"query":      map[string]interface{}{"type": "string"},
				"tags":       map[string]interface{}{"type": "array", "items": map[string]interface{}{"type": "string"}},
				"maxResults": map[string]interface{}{"type": "integer"},
			},
		}),
		toolDef("spawn_subagent", "Spawn an isolated subagent to perform a task and report back.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"task":           map[string]interface{}{"type": "string"},
				"label":          map[string]interface{}{"type": "string"},
				"timeoutSeconds": map[string]interface{}{"type": "integer"},
			},
			"required": []string{"task"},
		}),
		toolDef("stop_subagent", "Stop a running subagent by id.", map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"id": map[string]interface{}{"type": "string"}},
			"required":   []string{"id"},
		}),
		toolDef("list_subagents", "List subagents, optionally filtered by status.", map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"status": map[string]interface{}{"type": "string"}},
		}),
		toolDef("cron_schedule", "Schedule a recurring or one-shot job.", map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"name":           map[string]interface{}{"type": "string"},
				"kind":           map[string]interface{}{"type": "string", "description": "at | every | cron"},
				"atMs":           map[string]interface{}{"type": "integer"},
				"everyMs":        map[string]interface{}{"type": "integer"},
				"expr":           map[string]interface{}{"type": "string"},
				"tz":             map[string]interface{}{"type": "string"},
				"message":        map[string]interface{}{"type": "string"},
				"deleteAfterRun": map[string]interface{}{"type": "boolean"},
			},
			"required": []string{"name", "kind"},
		}),
		toolDef("cron_list", "List scheduled jobs.", map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"includeDisabled": map[string]interface{}{"type": "boolean"}},
		}),
		toolDef("cron_cancel", "Cancel a scheduled job by id.", map[string]interface{}{
			"type":       "object",
			"properties": map[string]interface{}{"id": map[string]interface{}{"type": "string"}},
			"required":   []string{"id"},
		}),
	}
}

func toolDef(name, description string, schema map[string]interface{}) subagent.Tool {
	return subagent.Tool{
		Name: name,
		Impl: map[string]interface{}{
			"name":         name,
			"description":  description,
			"input_schema": schema,
		},
	}
}

// toolRouter implements agent.ToolExecutor by dispatching to the memory
// store, subagent manager, and cron service by tool name.
type toolRouter struct {
	memory    *memory.Store
	subagents *subagent.Manager
	cron      *cron.Service
	sessionID string
}

func (r *toolRouter) Execute(name string, params map[string]interface{}) (string, error) {
	switch name {
	case "remember":
		return r.remember(params)
	case "recall":
		return r.recall(params)
	case "spawn_subagent":
		return r.spawnSubagent(params)
	case "stop_subagent":
		return r.stopSubagent(params)
	case "list_subagents":
		return r.listSubagents(params)
	case "cron_schedule":
		return r.cronSchedule(params)
	case "cron_list":
		return r.cronList(params)
	case "cron_cancel":
		return r.cronCancel(params)
	default:
		return "", fmt.Errorf("tool %q is not available", name)
	}
}

func (r *toolRouter) remember(params map[string]interface{}) (string, error) {
	content, _ := params["content"].(string)
	if content == "" {
		return "", fmt.Errorf("content is required")
	}
	importance, _ := params["importance"].(float64)
	tags := stringSlice(params["tags"])

	entry, err := r.memory.Add(content, importance, tags, r.sessionID)
	if err != nil {
		return "", err
	}
	return marshalResult(entry)
}

func (r *toolRouter) recall(params map[string]interface{}) (string, error) {
	query, _ := params["query"].(string)
	tags := stringSlice(params["tags"])
	maxResults := intField(params["maxResults"])

	results, err := r.memory.Search(memory.SearchOptions{
		Query:      query,
		Tags:       tags,
		SessionID:  r.sessionID,
		MaxResults: maxResults,
	})
	if err != nil {
		return "", err
	}
	return marshalResult(results)
}

func (r *toolRouter) spawnSubagent(params map[string]interface{}) (string, error) {
	task, _ := params["task"].(string)
	if task == "" {
		return "", fmt.Errorf("task is required")
	}
	label, _ := params["label"].(string)
	timeoutSeconds := intField(params["timeoutSeconds"])

	id, err := r.subagents.Spawn(subagent.SpawnParams{
		Task:           task,
		Label:          label,
		TimeoutSeconds: timeoutSeconds,
	})
	if err != nil {
		return "", err
	}
	return marshalResult(map[string]string{"id": id})
}

func (r *toolRouter) stopSubagent(params map[string]interface{}) (string, error) {
	id, _ := params["id"].(string)
	if id == "" {
		return "", fmt.Errorf("id is required")
	}
	stopped := r.subagents.Stop(id)
	return marshalResult(map[string]bool{"stopped": stopped})
}

func (r *toolRouter) listSubagents(params map[string]interface{}) (string, error) {
	status, _ := params["status"].(string)
	records := r.subagents.List(subagent.ListFilter{Status: subagent.Status(status)})
	return marshalResult(records)
}

func (r *toolRouter) cronSchedule(params map[string]interface{}) (string, error) {
	name, _ := params["name"].(string)
	kind, _ := params["kind"].(string)
	if name == "" || kind == "" {
		return "", fmt.Errorf("name and kind are required")
	}

	schedule := cron.Schedule{
		Kind:    cron.ScheduleKind(kind),
		AtMs:    int64(intField(params["atMs"])),
		EveryMs: int64(intField(params["everyMs"])),
		Expr:    stringField(params["expr"]),
		TZ:      stringField(params["tz"]),
	}
	deleteAfterRun, _ := params["deleteAfterRun"].(bool)

	job, err := r.cron.Add(cron.AddParams{
		Name:           name,
		Enabled:        true,
		DeleteAfterRun: deleteAfterRun,
		Schedule:       schedule,
		Payload: cron.Payload{
			Kind:    cron.PayloadKindAgentTurn,
			Message: stringField(params["message"]),
		},
	})
	if err != nil {
		return "", err
	}
	return marshalResult(job)
}

func (r *toolRouter) cronList(params map[string]interface{}) (string, error) {
	includeDisabled, _ := params["includeDisabled"].(bool)
	return marshalResult(r.cron.List(includeDisabled))
}

func (r *toolRouter) cronCancel(params map[string]interface{}) (string, error) {
	id, _ := params["id"].(string)
	if id == "" {
		return "", fmt.Errorf("id is required")
	}
	if err := r.cron.Remove(id); err != nil {
		return "", err
	}
	return marshalResult(map[string]bool{"canceled": true})
}

func marshalResult(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal tool result: %w", err)
	}
	return string(data), nil
}

func stringSlice(v interface{}) []string {
	raw, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func intField(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func stringField(v interface{}) string {
	s, _ := v.(string)
	return s
}
