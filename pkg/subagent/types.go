package subagent

// Status is the lifecycle state of a subagent run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// deniedToolNames must never appear in a subagent's tool list (§4.6).
var deniedToolNames = map[string]bool{
	"spawn_subagent": true,
	"stop_subagent":  true,
	"list_subagents": true,
	"remember":       true,
	"recall":         true,
	"cron_schedule":  true,
	"cron_list":      true,
	"cron_cancel":    true,
}

// IsDenied reports whether a tool name is in the subagent denylist.
func IsDenied(name string) bool {
	return deniedToolNames[name]
}

// Tool is the minimal shape the manager needs to filter a tool list by
// name; the rest of a tool's definition stays opaque to this package.
type Tool struct {
	Name string
	Impl interface{}
}

// FilterDenied returns a copy of tools with every denied name removed.
func FilterDenied(tools []Tool) []Tool {
	out := make([]Tool, 0, len(tools))
	for _, t := range tools {
		if !IsDenied(t.Name) {
			out = append(out, t)
		}
	}
	return out
}

// Record is a subagent run's tracked state.
type Record struct {
	ID             string
	Label          string
	Task           string
	SessionKey     string
	ParentChannel  string
	ParentChatID   string
	Status         Status
	Result         string
	Error          string
	StartedAt      int64
	CompletedAt    *int64
	RuntimeMs      int64
}

// SpawnParams are the arguments to Spawn.
type SpawnParams struct {
	Task           string
	Label          string
	Channel        string
	ChatID         string
	TimeoutSeconds int
}

// ListFilter narrows List by status; a zero value lists everything.
type ListFilter struct {
	Status Status
}
