package cron

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Options configures a Service. The three execution callbacks let the
// orchestrator (§4.9) route payloads without this package knowing about
// the bus or session manager: ExecuteSystemEvent publishes inbound on
// channel "cron" with chatId=job.id; ExecuteAgentTurn runs the job's
// message through an isolated cron session and returns the reply;
// Deliver forwards an agentTurn reply outbound per the job's Delivery.
type Options struct {
	StorePath          string
	ExecuteSystemEvent func(text string, jobID string)
	ExecuteAgentTurn   func(job Job, message string) (string, error)
	Deliver            func(channel, chatID, text string)
	OnEvent            func(Event)
	Logger             zerolog.Logger
}

// Service implements C7: a persisted, timer-driven job scheduler whose
// mutations are all serialized through a single operation chain (opMu).
type Service struct {
	opts Options

	opMu    sync.Mutex
	jobs    map[string]*Job
	timers  map[string]*time.Timer
	running bool
}

// NewService constructs a Service. Start must be called to load persisted
// jobs and arm timers.
func NewService(opts Options) *Service {
	if opts.OnEvent == nil {
		opts.OnEvent = func(Event) {}
	}
	return &Service{
		opts:   opts,
		jobs:   make(map[string]*Job),
		timers: make(map[string]*time.Timer),
	}
}

// Start loads the persisted job list (a missing file is treated as empty)
// and arms a timer for every enabled job.
func (s *Service) Start() error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	jobs, err := s.load()
	if err != nil {
		return err
	}
	for i := range jobs {
		job := jobs[i]
		s.jobs[job.ID] = &job
	}
	s.running = true
	for _, job := range s.jobs {
		if job.Enabled {
			s.armLocked(job)
		}
	}
	return nil
}

// Stop disables further timer fires and cancels every armed timer.
func (s *Service) Stop() {
	s.opMu.Lock()
	defer s.opMu.Unlock()
	s.running = false
	for id, t := range s.timers {
		t.Stop()
		delete(s.timers, id)
	}
}

// Add assigns an id and timestamps, computes nextRunAtMs, persists, and
// arms a timer if enabled.
func (s *Service) Add(input AddParams) (Job, error) {
	if input.Name == "" {
		return Job{}, fmt.Errorf("job name is required")
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	now := nowMs()
	next := nextRunAtMs(input.Schedule)
	job := &Job{
		ID:             uuid.NewString(),
		Name:           input.Name,
		Enabled:        input.Enabled,
		DeleteAfterRun: input.DeleteAfterRun,
		CreatedAtMs:    now,
		UpdatedAtMs:    now,
		Schedule:       input.Schedule,
		Payload:        input.Payload,
		Delivery:       input.Delivery,
		State:          JobState{NextRunAtMs: &next},
	}
	s.jobs[job.ID] = job
	if err := s.persistLocked(); err != nil {
		delete(s.jobs, job.ID)
		return Job{}, err
	}
	if job.Enabled {
		s.armLocked(job)
	}
	return *job, nil
}

// Update merges patch into the job identified by id; ids and CreatedAtMs
// are immutable.
func (s *Service) Update(id string, patch Patch) (Job, error) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	job, ok := s.jobs[id]
	if !ok {
		return Job{}, fmt.Errorf("job not found: %s", id)
	}

	scheduleChanged := false
	enabledChanged := false
	wasEnabled := job.Enabled

	if patch.Name != nil {
		job.Name = *patch.Name
	}
	if patch.Enabled != nil {
		job.Enabled = *patch.Enabled
		enabledChanged = wasEnabled != job.Enabled
	}
	if patch.DeleteAfterRun != nil {
		job.DeleteAfterRun = *patch.DeleteAfterRun
	}
	if patch.Schedule != nil {
		job.Schedule = *patch.Schedule
		scheduleChanged = true
	}
	if patch.Payload != nil {
		job.Payload = *patch.Payload
	}
	if patch.Delivery != nil {
		job.Delivery = *patch.Delivery
	}
	job.UpdatedAtMs = nowMs()

	if scheduleChanged {
		next := nextRunAtMs(job.Schedule)
		job.State.NextRunAtMs = &next
	}

	if err := s.persistLocked(); err != nil {
		return Job{}, err
	}

	if scheduleChanged || enabledChanged {
		s.cancelLocked(id)
		if job.Enabled {
			s.armLocked(job)
		}
	}

	return *job, nil
}

// Remove drops a job and cancels its timer.
func (s *Service) Remove(id string) error {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if _, ok := s.jobs[id]; !ok {
		return fmt.Errorf("job not found: %s", id)
	}
	s.cancelLocked(id)
	delete(s.jobs, id)
	return s.persistLocked()
}

// Run executes a job immediately. mode="force" ignores nextRunAtMs;
// mode="due" skips (emitting an EventSkip) if the job isn't due yet.
func (s *Service) Run(id string, mode RunMode) error {
	s.opMu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.opMu.Unlock()
		return fmt.Errorf("job not found: %s", id)
	}
	if mode == RunModeDue && job.State.NextRunAtMs != nil && *job.State.NextRunAtMs > nowMs() {
		s.opMu.Unlock()
		s.opts.OnEvent(Event{Type: EventSkip, Job: *job})
		return nil
	}
	s.opMu.Unlock()

	return s.executeJob(id)
}

// List returns jobs sorted by CreatedAtMs; includeDisabled controls
// whether disabled jobs are included.
func (s *Service) List(includeDisabled bool) []Job {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	out := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		if !includeDisabled && !job.Enabled {
			continue
		}
		out = append(out, *job)
	}
	for i := 0; i < len(out)-1; i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAtMs < out[i].CreatedAtMs {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

func (s *Service) armLocked(job *Job) {
	if job.State.NextRunAtMs == nil {
		return
	}
	delay := *job.State.NextRunAtMs - nowMs()
	if delay < 0 {
		delay = 0
	}
	id := job.ID
	s.timers[id] = time.AfterFunc(time.Duration(delay)*time.Millisecond, func() {
		_ = s.executeJob(id)
	})
}

func (s *Service) cancelLocked(id string) {
	if t, ok := s.timers[id]; ok {
		t.Stop()
		delete(s.timers, id)
	}
}

// executeJob implements the execution path of §4.7 steps 1-5.
func (s *Service) executeJob(id string) error {
	s.opMu.Lock()
	job, ok := s.jobs[id]
	if !ok {
		s.opMu.Unlock()
		return nil
	}
	startMs := nowMs()
	job.State.RunningAtMs = &startMs
	s.opMu.Unlock()

	var runErr error
	var reply string
	switch job.Payload.Kind {
	case PayloadKindSystemEvent:
		if s.opts.ExecuteSystemEvent != nil {
			s.opts.ExecuteSystemEvent(job.Payload.Text, job.ID)
		}
	case PayloadKindAgentTurn:
		if s.opts.ExecuteAgentTurn != nil {
			reply, runErr = s.opts.ExecuteAgentTurn(*job, job.Payload.Message)
		}
	}
	if runErr == nil && reply != "" && job.Delivery != nil && s.opts.Deliver != nil {
		s.opts.Deliver(job.Delivery.Channel, job.Delivery.ChatID, reply)
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	job, ok = s.jobs[id]
	if !ok {
		return nil
	}
	job.State.RunningAtMs = nil
	job.State.LastRunAtMs = &startMs

	evt := Event{Job: *job}
	if runErr != nil {
		job.State.LastStatus = "error"
		job.State.LastError = runErr.Error()
		evt.Type = EventError
		evt.Error = runErr.Error()
	} else {
		job.State.LastStatus = "ok"
		job.State.LastError = ""
		evt.Type = EventRun
	}

	next := nextRunAtMs(job.Schedule)
	job.State.NextRunAtMs = &next

	if job.DeleteAfterRun {
		s.cancelLocked(id)
		delete(s.jobs, id)
	} else if job.Enabled {
		s.cancelLocked(id)
		s.armLocked(job)
	}

	evt.Job = *job
	if err := s.persistLocked(); err != nil {
		s.opts.Logger.Error().Err(err).Str("job_id", id).Msg("cron: persist failed after execution")
	}
	s.opts.OnEvent(evt)

	return runErr
}

func (s *Service) load() ([]Job, error) {
	data, err := os.ReadFile(s.opts.StorePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("cron: read store: %w", err)
	}
	var file storeFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("cron: parse store: %w", err)
	}
	return file.Jobs, nil
}

// persistLocked must be called with opMu held. It writes the entire job
// list as one atomic temp-file-then-rename operation.
func (s *Service) persistLocked() error {
	jobs := make([]Job, 0, len(s.jobs))
	for _, job := range s.jobs {
		jobs = append(jobs, *job)
	}
	data, err := json.MarshalIndent(storeFile{Version: 1, Jobs: jobs}, "", "  ")
	if err != nil {
		return fmt.Errorf("cron: marshal store: %w", err)
	}

	dir := filepath.Dir(s.opts.StorePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("cron: create store dir: %w", err)
	}

	tmp := s.opts.StorePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("cron: write temp store: %w", err)
	}
	if err := os.Rename(tmp, s.opts.StorePath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cron: rename store: %w", err)
	}
	return nil
}
