package cron

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockCallbacks struct {
	mu           sync.Mutex
	systemEvents []string
	agentJobs    []Job
	events       []Event
}

func newMockCallbacks() *mockCallbacks {
	return &mockCallbacks{}
}

func (m *mockCallbacks) executeSystemEvent(text, jobID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.systemEvents = append(m.systemEvents, text)
}

func (m *mockCallbacks) executeAgentTurn(job Job, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.agentJobs = append(m.agentJobs, job)
	return "", nil
}

func (m *mockCallbacks) onEvent(evt Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockCallbacks) eventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.events)
}

func (m *mockCallbacks) systemEventCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.systemEvents)
}

func (m *mockCallbacks) agentJobCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.agentJobs)
}

func newTestService(t *testing.T) (*Service, *mockCallbacks, string) {
	storePath := filepath.Join(t.TempDir(), "cron.json")
	callbacks := newMockCallbacks()
	s := NewService(Options{
		StorePath:          storePath,
		ExecuteSystemEvent: callbacks.executeSystemEvent,
		ExecuteAgentTurn:   callbacks.executeAgentTurn,
		OnEvent:            callbacks.onEvent,
	})
	require.NoError(t, s.Start())
	return s, callbacks, storePath
}

func everyJob(name string, everyMs int64) AddParams {
	return AddParams{
		Name:    name,
		Enabled: true,
		Schedule: Schedule{
			Kind:    ScheduleKindEvery,
			EveryMs: everyMs,
		},
		Payload: Payload{Kind: PayloadKindSystemEvent, Text: "hello"},
	}
}

func TestAddAssignsIDAndSchedulesTimer(t *testing.T) {
	s, _, _ := newTestService(t)
	defer s.Stop()

	job, err := s.Add(everyJob("job-a", 60_000))
	require.NoError(t, err)
	assert.NotEmpty(t, job.ID)
	require.NotNil(t, job.State.NextRunAtMs)
	assert.Greater(t, *job.State.NextRunAtMs, nowMs())
}

func TestAddRejectsEmptyName(t *testing.T) {
	s, _, _ := newTestService(t)
	defer s.Stop()

	_, err := s.Add(AddParams{Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 1000}})
	assert.Error(t, err)
}

func TestUpdateRenameAndRescheduleOnEnable(t *testing.T) {
	s, _, _ := newTestService(t)
	defer s.Stop()

	job, err := s.Add(everyJob("job-b", 60_000))
	require.NoError(t, err)

	disabled := false
	_, err = s.Update(job.ID, Patch{Enabled: &disabled})
	require.NoError(t, err)

	newName := "job-b-renamed"
	enabled := true
	updated, err := s.Update(job.ID, Patch{Name: &newName, Enabled: &enabled})
	require.NoError(t, err)
	assert.Equal(t, newName, updated.Name)
	assert.True(t, updated.Enabled)
}

func TestRemoveDropsJobAndPersists(t *testing.T) {
	s, _, storePath := newTestService(t)
	defer s.Stop()

	job, err := s.Add(everyJob("job-c", 60_000))
	require.NoError(t, err)

	require.NoError(t, s.Remove(job.ID))
	jobs := s.List(true)
	assert.Empty(t, jobs)

	data, err := os.ReadFile(storePath)
	require.NoError(t, err)
	assert.NotContains(t, string(data), job.ID)
}

func TestRunForceExecutesRegardlessOfDueTime(t *testing.T) {
	s, callbacks, _ := newTestService(t)
	defer s.Stop()

	job, err := s.Add(everyJob("job-d", 3_600_000))
	require.NoError(t, err)

	require.NoError(t, s.Run(job.ID, RunModeForce))
	assert.Equal(t, 1, callbacks.systemEventCount())
}

func TestRunDueSkipsWhenNotYetDue(t *testing.T) {
	s, callbacks, _ := newTestService(t)
	defer s.Stop()

	job, err := s.Add(everyJob("job-e", 3_600_000))
	require.NoError(t, err)

	require.NoError(t, s.Run(job.ID, RunModeDue))
	assert.Equal(t, 0, callbacks.systemEventCount())
	assert.Equal(t, 1, callbacks.eventCount())
	assert.Equal(t, EventSkip, callbacks.events[0].Type)
}

func TestDeleteAfterRunRemovesJobOnSuccess(t *testing.T) {
	s, _, _ := newTestService(t)
	defer s.Stop()

	job, err := s.Add(AddParams{
		Name:           "one-shot",
		Enabled:        true,
		DeleteAfterRun: true,
		Schedule:       Schedule{Kind: ScheduleKindAt, AtMs: nowMs() + 50},
		Payload:        Payload{Kind: PayloadKindSystemEvent, Text: "bye"},
	})
	require.NoError(t, err)

	require.NoError(t, s.Run(job.ID, RunModeForce))
	jobs := s.List(true)
	for _, j := range jobs {
		assert.NotEqual(t, job.ID, j.ID)
	}
}

func TestDeleteAfterRunRemovesJobOnFailureToo(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")
	callbacks := newMockCallbacks()
	s := NewService(Options{
		StorePath: storePath,
		ExecuteAgentTurn: func(job Job, message string) (string, error) {
			return "", fmt.Errorf("boom")
		},
		OnEvent: callbacks.onEvent,
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	job, err := s.Add(AddParams{
		Name:           "failing-one-shot",
		Enabled:        true,
		DeleteAfterRun: true,
		Schedule:       Schedule{Kind: ScheduleKindAt, AtMs: nowMs() + 50},
		Payload:        Payload{Kind: PayloadKindAgentTurn, Message: "hi"},
	})
	require.NoError(t, err)

	err = s.Run(job.ID, RunModeForce)
	assert.Error(t, err)

	jobs := s.List(true)
	for _, j := range jobs {
		assert.NotEqual(t, job.ID, j.ID)
	}
}

func TestAgentTurnFailurePropagatesAndReschedules(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")
	callbacks := newMockCallbacks()
	s := NewService(Options{
		StorePath: storePath,
		ExecuteAgentTurn: func(job Job, message string) (string, error) {
			return "", fmt.Errorf("boom")
		},
		OnEvent: callbacks.onEvent,
	})
	require.NoError(t, s.Start())
	defer s.Stop()

	job, err := s.Add(AddParams{
		Name:     "failing",
		Enabled:  true,
		Schedule: Schedule{Kind: ScheduleKindEvery, EveryMs: 60_000},
		Payload:  Payload{Kind: PayloadKindAgentTurn, Message: "hi"},
	})
	require.NoError(t, err)

	err = s.Run(job.ID, RunModeForce)
	assert.Error(t, err)

	got := callbacks.events[len(callbacks.events)-1]
	assert.Equal(t, EventError, got.Type)
	assert.Equal(t, "boom", got.Error)
}

func TestStartLoadsPersistedJobs(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "cron.json")

	s1 := NewService(Options{StorePath: storePath})
	require.NoError(t, s1.Start())
	job, err := s1.Add(everyJob("persisted", 60_000))
	require.NoError(t, err)
	s1.Stop()

	s2 := NewService(Options{StorePath: storePath})
	require.NoError(t, s2.Start())
	defer s2.Stop()

	jobs := s2.List(true)
	require.Len(t, jobs, 1)
	assert.Equal(t, job.ID, jobs[0].ID)
}

func TestStartMissingFileIsEmpty(t *testing.T) {
	storePath := filepath.Join(t.TempDir(), "does-not-exist.json")
	s := NewService(Options{StorePath: storePath})
	require.NoError(t, s.Start())
	defer s.Stop()
	assert.Empty(t, s.List(true))
}

func TestStopCancelsTimers(t *testing.T) {
	s, _, _ := newTestService(t)
	_, err := s.Add(everyJob("job-f", 60_000))
	require.NoError(t, err)

	s.Stop()
	s.opMu.Lock()
	count := len(s.timers)
	s.opMu.Unlock()
	assert.Equal(t, 0, count)
}

func TestPersistIsAtomicNoLeftoverTempFile(t *testing.T) {
	s, _, storePath := newTestService(t)
	defer s.Stop()

	_, err := s.Add(everyJob("job-g", 60_000))
	require.NoError(t, err)

	_, err = os.Stat(storePath + ".tmp")
	assert.True(t, os.IsNotExist(err))

	_, err = os.Stat(storePath)
	assert.NoError(t, err)
}

func TestListFiltersDisabled(t *testing.T) {
	s, _, _ := newTestService(t)
	defer s.Stop()

	enabledJob := everyJob("enabled", 60_000)
	_, err := s.Add(enabledJob)
	require.NoError(t, err)

	disabledJob := everyJob("disabled", 60_000)
	disabledJob.Enabled = false
	_, err = s.Add(disabledJob)
	require.NoError(t, err)

	assert.Len(t, s.List(false), 1)
	assert.Len(t, s.List(true), 2)
}

var _ = time.Now
