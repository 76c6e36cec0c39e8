package orchestrator

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinycrab/tinycrab/pkg/bus"
	"github.com/tinycrab/tinycrab/pkg/cron"
	"github.com/tinycrab/tinycrab/pkg/memory"
	"github.com/tinycrab/tinycrab/pkg/subagent"
)

func newTestRouter(t *testing.T) *toolRouter {
	t.Helper()
	dir := t.TempDir()

	memStore, err := memory.Open(filepath.Join(dir, "memory.jsonl"))
	require.NoError(t, err)

	subMgr := subagent.NewManager(subagent.Config{
		FacadeFactory: func(subagent.FacadeConfig) (subagent.Facade, error) {
			return nil, assert.AnError
		},
		Bus: bus.New(),
	})

	cronSvc := cron.NewService(cron.Options{StorePath: filepath.Join(dir, "cron.json")})
	require.NoError(t, cronSvc.Start())
	t.Cleanup(cronSvc.Stop)

	return &toolRouter{memory: memStore, subagents: subMgr, cron: cronSvc, sessionID: "s1"}
}

func TestToolRouterUnknownToolErrors(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Execute("does_not_exist", nil)
	assert.Error(t, err)
}

func TestToolRouterRememberRequiresContent(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Execute("remember", map[string]interface{}{})
	assert.Error(t, err)
}

func TestToolRouterRememberAndRecall(t *testing.T) {
	r := newTestRouter(t)

	out, err := r.Execute("remember", map[string]interface{}{"content": "likes tea", "importance": 0.6})
	require.NoError(t, err)
	assert.Contains(t, out, "likes tea")

	out, err = r.Execute("recall", map[string]interface{}{"query": "tea"})
	require.NoError(t, err)
	assert.Contains(t, out, "likes tea")
}

func TestToolRouterCronScheduleListCancel(t *testing.T) {
	r := newTestRouter(t)

	out, err := r.Execute("cron_schedule", map[string]interface{}{
		"name": "reminder", "kind": "every", "everyMs": float64(60000), "message": "ping",
	})
	require.NoError(t, err)
	assert.Contains(t, out, "reminder")

	out, err = r.Execute("cron_list", map[string]interface{}{"includeDisabled": true})
	require.NoError(t, err)
	assert.Contains(t, out, "reminder")

	jobs := r.cron.List(true)
	require.Len(t, jobs, 1)

	out, err = r.Execute("cron_cancel", map[string]interface{}{"id": jobs[0].ID})
	require.NoError(t, err)
	assert.Contains(t, out, "canceled")
	assert.Empty(t, r.cron.List(true))
}

func TestToolRouterSpawnSubagentRequiresTask(t *testing.T) {
	r := newTestRouter(t)
	_, err := r.Execute("spawn_subagent", map[string]interface{}{})
	assert.Error(t, err)
}

func TestToolRouterStopSubagentUnknownID(t *testing.T) {
	r := newTestRouter(t)
	out, err := r.Execute("stop_subagent", map[string]interface{}{"id": "nonexistent"})
	require.NoError(t, err)
	assert.Contains(t, out, "false")
}

func TestToolRouterListSubagentsEmpty(t *testing.T) {
	r := newTestRouter(t)
	out, err := r.Execute("list_subagents", map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, "[]", out)
}

func TestBaseToolsCoversEveryRoutedName(t *testing.T) {
	tools := baseTools()
	names := make(map[string]bool, len(tools))
	for _, tool := range tools {
		names[tool.Name] = true
	}
	for _, name := range []string{
		"remember", "recall", "spawn_subagent", "stop_subagent",
		"list_subagents", "cron_schedule", "cron_list", "cron_cancel",
	} {
		assert.True(t, names[name], "missing tool definition for %s", name)
		assert.True(t, subagent.IsDenied(name), "tool %s should be in the subagent denylist", name)
	}
}
