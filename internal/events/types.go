package events

import (
	"time"

	"github.com/google/uuid"
)

// Kind is the closed set of event variants the bus can carry. Every
// Kind has exactly one corresponding payload struct below; subscribers
// type-switch on Kind to recover it.
type Kind string

const (
	KindAgentCreated         Kind = "agent:created"
	KindAgentStatusChanged   Kind = "agent:status-changed"
	KindAgentStopped         Kind = "agent:stopped"
	KindAgentExited          Kind = "agent:exited"
	KindAgentHeartbeatTimeout Kind = "agent:heartbeat-timeout"
	KindAgentRestartExhausted Kind = "agent:restart-exhausted"
	KindTaskDispatched       Kind = "task:dispatched"
	KindTaskCompleted        Kind = "task:completed"
	KindTaskFailed           Kind = "task:failed"
	KindPoolCreated          Kind = "pool:created"
	KindPoolScaled           Kind = "pool:scaled"
)

// AllKinds lists every event kind the bus can emit, mirroring the
// teacher's AllEventTypes enumerator.
func AllKinds() []Kind {
	return []Kind{
		KindAgentCreated, KindAgentStatusChanged, KindAgentStopped, KindAgentExited,
		KindAgentHeartbeatTimeout, KindAgentRestartExhausted,
		KindTaskDispatched, KindTaskCompleted, KindTaskFailed,
		KindPoolCreated, KindPoolScaled,
	}
}

// Event is the envelope carried on the bus. Payload holds one of the
// typed structs below, matching Kind.
type Event struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	AgentID   string    `json:"agentId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	Payload   any       `json:"payload"`
}

// New builds an Event with a generated ID and timestamp, following the
// teacher's events.NewEvent constructor.
func New(kind Kind, agentID string, payload any) Event {
	return Event{
		ID:        uuid.New().String(),
		Kind:      kind,
		AgentID:   agentID,
		CreatedAt: time.Now(),
		Payload:   payload,
	}
}

// AgentCreated fires once an agent record is admitted by the manager.
type AgentCreated struct {
	AgentID string `json:"agentId"`
	Type    string `json:"type"`
	PoolID  string `json:"poolId,omitempty"`
}

// AgentStatusChanged fires on every lifecycle transition.
type AgentStatusChanged struct {
	AgentID string `json:"agentId"`
	From    string `json:"from"`
	To      string `json:"to"`
}

// AgentStopped fires when a caller explicitly requested the stop.
type AgentStopped struct {
	AgentID string `json:"agentId"`
	Reason  string `json:"reason,omitempty"`
}

// AgentExited fires every time the child process exits: on its own,
// cleanly or via crash, and also after a caller's Stop; it feeds the
// restart-policy decision.
type AgentExited struct {
	AgentID  string `json:"agentId"`
	ExitCode int    `json:"exitCode"`
	Crashed  bool   `json:"crashed"`
}

// AgentHeartbeatTimeout fires when the health monitor confirms an agent
// has gone stale and the process is genuinely dead.
type AgentHeartbeatTimeout struct {
	AgentID       string        `json:"agentId"`
	SinceLastSeen time.Duration `json:"sinceLastSeen"`
}

// AgentRestartExhausted fires when MaxRestarts is exceeded within the
// crash window and the agent is parked in the error state.
type AgentRestartExhausted struct {
	AgentID      string `json:"agentId"`
	RestartCount int    `json:"restartCount"`
}

// TaskDispatched fires when a task is handed to an agent.
type TaskDispatched struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
}

// TaskCompleted fires when a dispatched task's result arrives.
type TaskCompleted struct {
	TaskID   string        `json:"taskId"`
	AgentID  string        `json:"agentId"`
	Duration time.Duration `json:"duration"`
}

// TaskFailed fires when a dispatched task errors, times out, or the
// agent that owned it exits before replying.
type TaskFailed struct {
	TaskID  string `json:"taskId"`
	AgentID string `json:"agentId"`
	Reason  string `json:"reason"`
}

// PoolCreated fires when a new pool is provisioned.
type PoolCreated struct {
	PoolID       string `json:"poolId"`
	TemplateName string `json:"templateName"`
	InitialSize  int    `json:"initialSize"`
}

// PoolScaled fires after a scale-up or scale-down completes.
type PoolScaled struct {
	PoolID   string `json:"poolId"`
	FromSize int    `json:"fromSize"`
	ToSize   int    `json:"toSize"`
}
