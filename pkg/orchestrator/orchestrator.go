// Package orchestrator implements C10: the in-process hub that owns the
// bus, session manager, memory store, subagent manager, and cron service
// for one agent, wires the tool router every session sees, and runs the
// bus-consumption loop described in §4.9 for channels that don't go
// through the per-agent HTTP server's /chat endpoint directly.
package orchestrator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tinycrab/tinycrab/pkg/agent"
	"github.com/tinycrab/tinycrab/pkg/bus"
	"github.com/tinycrab/tinycrab/pkg/cron"
	"github.com/tinycrab/tinycrab/pkg/memory"
	"github.com/tinycrab/tinycrab/pkg/session"
	"github.com/tinycrab/tinycrab/pkg/sessionkey"
	"github.com/tinycrab/tinycrab/pkg/subagent"
)

// defaultFlushThreshold is the context-usage fraction above which a turn
// triggers the pre-compaction memory flush (§4.10).
const defaultFlushThreshold = 0.80

// Config configures an Orchestrator.
type Config struct {
	Provider  string
	Model     string
	AuthStore *agent.AuthStore
	DataDir   string

	MaxSessions int
	SessionTTL  time.Duration

	FlushThreshold float64

	Logger zerolog.Logger
}

// Orchestrator implements C10. It is the single owner of the bus, session
// manager, memory store, subagent manager, and cron service for one agent
// process.
type Orchestrator struct {
	cfg    Config
	logger zerolog.Logger

	Bus       *bus.Bus
	Sessions  *session.Manager
	Memory    *memory.Store
	Subagents *subagent.Manager
	Cron      *cron.Service

	flushThreshold float64
}

// New constructs an Orchestrator and all of its owned components. The
// caller must call Cron.Start and, if it wants the bus-consumption loop,
// Run in a goroutine.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.DataDir == "" {
		return nil, fmt.Errorf("orchestrator: dataDir is required")
	}
	if cfg.FlushThreshold <= 0 {
		cfg.FlushThreshold = defaultFlushThreshold
	}

	memStore, err := memory.Open(filepath.Join(cfg.DataDir, "memory", "memory.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open memory store: %w", err)
	}

	o := &Orchestrator{
		cfg:            cfg,
		logger:         cfg.Logger,
		Bus:            bus.New(),
		Memory:         memStore,
		flushThreshold: cfg.FlushThreshold,
	}

	o.Sessions = session.NewManager(session.ManagerConfig{
		Factory:     o.topLevelFactory,
		MaxSessions: cfg.MaxSessions,
		TTL:         cfg.SessionTTL,
		Logger:      cfg.Logger,
	})

	o.Subagents = subagent.NewManager(subagent.Config{
		FacadeFactory: o.subagentFactory,
		Bus:           o.Bus,
		BaseTools:     baseTools(),
		Logger:        cfg.Logger,
	})

	o.Cron = cron.NewService(cron.Options{
		StorePath:          filepath.Join(cfg.DataDir, "cron", "jobs.json"),
		ExecuteSystemEvent: o.executeCronSystemEvent,
		ExecuteAgentTurn:   o.executeCronAgentTurn,
		Deliver:            o.deliverOutbound,
		OnEvent: func(evt cron.Event) {
			o.logger.Info().Str("job_id", evt.Job.ID).Str("type", string(evt.Type)).Str("error", evt.Error).Msg("cron event")
		},
		Logger: cfg.Logger,
	})

	return o, nil
}

// toolRouterFor constructs the tool router bound to sessionID, the scope
// memory remember/recall calls are attributed to.
func (o *Orchestrator) toolRouterFor(sessionID string) *toolRouter {
	return &toolRouter{
		memory:    o.Memory,
		subagents: o.Subagents,
		cron:      o.Cron,
		sessionID: sessionID,
	}
}

func toolInterfaces(tools []subagent.Tool) []interface{} {
	out := make([]interface{}, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Impl)
	}
	return out
}

// topLevelFactory builds the façade used for any session reached through
// the bus loop or the HTTP /chat endpoint: full tool access.
func (o *Orchestrator) topLevelFactory(key string) (session.Facade, error) {
	inner, err := agent.NewSession(agent.Config{
		Model:            o.cfg.Model,
		Provider:         o.cfg.Provider,
		Tools:            toolInterfaces(baseTools()),
		SessionDirectory: filepath.Join(o.cfg.DataDir, "sessions", sanitizeKey(key)),
		AuthStore:        o.cfg.AuthStore,
		ToolExecutor:     o.toolRouterFor(key),
	})
	if err != nil {
		return nil, err
	}
	return newSessionFacade(inner), nil
}

// subagentFactory builds the façade for an isolated subagent run. Its
// tool list has already been filtered of denied names by pkg/subagent;
// GuardExecutor is the second enforcement layer in case a denied name
// slips through some future tool source.
func (o *Orchestrator) subagentFactory(cfg subagent.FacadeConfig) (subagent.Facade, error) {
	inner, err := agent.NewSession(agent.Config{
		Model:            o.cfg.Model,
		Provider:         o.cfg.Provider,
		Tools:            toolInterfaces(cfg.Tools),
		SessionDirectory: filepath.Join(o.cfg.DataDir, "sessions", sanitizeKey(cfg.SessionKey)),
		AuthStore:        o.cfg.AuthStore,
		SystemPrompt:     cfg.SystemPrompt,
		ToolExecutor:     subagent.GuardExecutor{Inner: o.toolRouterFor(cfg.SessionKey)},
	})
	if err != nil {
		return nil, err
	}
	return newSessionFacade(inner), nil
}

func sanitizeKey(key string) string {
	return strings.ReplaceAll(key, ":", "_")
}

func (o *Orchestrator) deliverOutbound(channel, chatID, text string) {
	o.Bus.PublishOutbound(bus.Message{Channel: channel, ChatID: chatID, Text: text})
}

func (o *Orchestrator) executeCronSystemEvent(text, jobID string) {
	o.Bus.PublishInbound(bus.Message{Channel: "cron", ChatID: jobID, Text: text})
}

// executeCronAgentTurn runs message through an isolated cron session keyed
// by the job's id, going through the same pre-compaction flush wrapper as
// any other turn.
func (o *Orchestrator) executeCronAgentTurn(job cron.Job, message string) (string, error) {
	key, err := sessionkey.Build("cron", job.ID, "")
	if err != nil {
		return "", err
	}
	return o.PromptWithFlush(context.Background(), key, message)
}

// PromptWithFlush resolves a session by key and runs fn's prompt through
// it, first issuing a silent pre-compaction flush turn if the session's
// reported context usage is at or above the flush threshold (§4.10). The
// flush turn's own reply is discarded; a flush failure is logged and
// otherwise ignored, never surfaced to the caller.
func (o *Orchestrator) PromptWithFlush(ctx context.Context, key string, text string) (string, error) {
	return o.Sessions.WithSession(ctx, key, func(facade session.Facade) (string, error) {
		o.maybeFlush(ctx, key, facade)

		if err := facade.Prompt(ctx, text); err != nil {
			return "", err
		}
		reply, _ := facade.GetLastAssistantText()
		return reply, nil
	})
}

func (o *Orchestrator) maybeFlush(ctx context.Context, key string, facade session.Facade) {
	reporter, ok := facade.(session.ContextUsageReporter)
	if !ok {
		return
	}
	usage, ok := reporter.GetContextUsage()
	if !ok || usage == nil || usage.Percent < o.flushThreshold {
		return
	}

	const flushPrompt = "Your context is nearly full and will soon be compacted. " +
		"If there is anything you need to remember, call remember now. " +
		"Otherwise reply with exactly NO_REPLY."
	if err := facade.Prompt(ctx, flushPrompt); err != nil {
		o.logger.Warn().Str("session_key", key).Err(err).Msg("orchestrator: pre-compaction flush failed")
	}
}

// Run consumes the bus's inbound queue until ctx is done, dispatching each
// message per §4.9: "/spawn <task>" starts a subagent, "/status" replies
// synchronously with a summary, and anything else is prompted into the
// originating channel's session.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		msg, ok := o.Bus.ConsumeInbound(ctx.Done())
		if !ok {
			return ctx.Err()
		}
		o.handleInbound(ctx, msg)
	}
}

func (o *Orchestrator) handleInbound(ctx context.Context, msg bus.Message) {
	o.Subagents.SetRoutingContext(msg.Channel, msg.ChatID)

	switch {
	case strings.HasPrefix(msg.Text, "/spawn "):
		task := strings.TrimSpace(strings.TrimPrefix(msg.Text, "/spawn "))
		if task == "" {
			o.deliverOutbound(msg.Channel, msg.ChatID, "usage: /spawn <task>")
			return
		}
		id, err := o.Subagents.Spawn(subagent.SpawnParams{Task: task, Channel: msg.Channel, ChatID: msg.ChatID})
		if err != nil {
			o.deliverOutbound(msg.Channel, msg.ChatID, fmt.Sprintf("failed to spawn subagent: %v", err))
			return
		}
		o.deliverOutbound(msg.Channel, msg.ChatID, fmt.Sprintf("Spawned subagent %s", id))

	case strings.TrimSpace(msg.Text) == "/status":
		o.deliverOutbound(msg.Channel, msg.ChatID, o.statusSummary())

	default:
		key, err := sessionkey.Build(msg.Channel, msg.ChatID, "")
		if err != nil {
			o.logger.Warn().Err(err).Str("channel", msg.Channel).Str("chat_id", msg.ChatID).Msg("orchestrator: dropping message with invalid session key")
			return
		}
		reply, err := o.PromptWithFlush(ctx, key, msg.Text)
		if err != nil {
			o.logger.Error().Err(err).Str("session_key", key).Msg("orchestrator: prompt failed")
			return
		}
		if reply != "" {
			o.deliverOutbound(msg.Channel, msg.ChatID, reply)
		}
	}
}

func (o *Orchestrator) statusSummary() string {
	running := o.Subagents.List(subagent.ListFilter{Status: subagent.StatusRunning})
	jobs := o.Cron.List(true)
	return fmt.Sprintf("%d subagent(s) running, %d cron job(s) scheduled, %d session(s) cached",
		len(running), len(jobs), len(o.Sessions.ListSessions()))
}

// Close stops the cron service and closes every cached session.
func (o *Orchestrator) Close() error {
	o.Cron.Stop()
	return o.Sessions.Close()
}
