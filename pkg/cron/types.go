package cron

import "time"

// ScheduleKind selects how a job's next run time is computed.
type ScheduleKind string

const (
	ScheduleKindAt    ScheduleKind = "at"
	ScheduleKindEvery ScheduleKind = "every"
	ScheduleKindCron  ScheduleKind = "cron"
)

// Schedule is a time specification for job execution (§4.7).
type Schedule struct {
	Kind ScheduleKind `json:"kind"`

	// AtMs is the fire time for a "kind=at" schedule, in epoch milliseconds.
	AtMs int64 `json:"atMs,omitempty"`

	// EveryMs and AnchorMs describe a "kind=every" schedule.
	EveryMs  int64  `json:"everyMs,omitempty"`
	AnchorMs *int64 `json:"anchorMs,omitempty"`

	// Expr and TZ describe a "kind=cron" schedule: a standard 5-field
	// cron expression, optionally evaluated in a named timezone.
	Expr string `json:"expr,omitempty"`
	TZ   string `json:"tz,omitempty"`
}

// PayloadKind selects what executeJob does for a job.
type PayloadKind string

const (
	PayloadKindSystemEvent PayloadKind = "systemEvent"
	PayloadKindAgentTurn   PayloadKind = "agentTurn"
)

// Payload is the action a job performs when it fires.
type Payload struct {
	Kind PayloadKind `json:"kind"`

	// Text is published inbound on channel "cron" for a systemEvent payload.
	Text string `json:"text,omitempty"`

	// Message is prompted into the job's isolated cron session for an
	// agentTurn payload.
	Message string `json:"message,omitempty"`
}

// Delivery optionally forwards an agentTurn job's reply outbound.
type Delivery struct {
	Channel string `json:"channel,omitempty"`
	ChatID  string `json:"chatId,omitempty"`
}

// JobState is the runtime state attached to a Job.
type JobState struct {
	NextRunAtMs *int64 `json:"nextRunAtMs,omitempty"`
	RunningAtMs *int64 `json:"runningAtMs,omitempty"`
	LastRunAtMs *int64 `json:"lastRunAtMs,omitempty"`
	LastStatus  string `json:"lastStatus,omitempty"` // "ok" | "error" | "skipped"
	LastError   string `json:"lastError,omitempty"`
}

// Job is a complete cron job definition (§4.7).
type Job struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Enabled        bool      `json:"enabled"`
	DeleteAfterRun bool      `json:"deleteAfterRun,omitempty"`
	CreatedAtMs    int64     `json:"createdAtMs"`
	UpdatedAtMs    int64     `json:"updatedAtMs"`
	Schedule       Schedule  `json:"schedule"`
	Payload        Payload   `json:"payload"`
	Delivery       *Delivery `json:"delivery,omitempty"`
	State          JobState  `json:"state"`
}

// AddParams are the arguments to Add.
type AddParams struct {
	Name           string
	Enabled        bool
	DeleteAfterRun bool
	Schedule       Schedule
	Payload        Payload
	Delivery       *Delivery
}

// Patch contains the fields Update may change; nil fields are left as-is.
// IDs and CreatedAtMs are always immutable.
type Patch struct {
	Name           *string
	Enabled        *bool
	DeleteAfterRun *bool
	Schedule       *Schedule
	Payload        *Payload
	Delivery       **Delivery
}

// RunMode selects how Run treats a job that isn't yet due.
type RunMode string

const (
	RunModeDue   RunMode = "due"
	RunModeForce RunMode = "force"
)

// EventType is the kind of observability event emitted after an execution
// path (§4.7).
type EventType string

const (
	EventRun   EventType = "run"
	EventError EventType = "error"
	EventSkip  EventType = "skip"
)

// Event is emitted after each execution path.
type Event struct {
	Type  EventType
	Job   Job
	Error string
}

// storeFile is the on-disk persistence format: { version: 1, jobs: [...] }.
type storeFile struct {
	Version int   `json:"version"`
	Jobs    []Job `json:"jobs"`
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}
