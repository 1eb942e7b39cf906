// Package types defines the domain model shared by the supervisor,
// dispatcher, health monitor, pool engine, and the manager facade that
// fronts them.
package types

import "time"

// AgentStatus is the lifecycle state of a supervised agent process.
type AgentStatus string

const (
	AgentStarting AgentStatus = "starting"
	AgentRunning  AgentStatus = "running"
	AgentStopping AgentStatus = "stopping"
	AgentStopped  AgentStatus = "stopped"
	AgentCrashed  AgentStatus = "crashed"
	AgentError    AgentStatus = "error"
	// AgentRemoved is a terminal marker used only in persistence; a
	// removed agent no longer has a live process entry in the
	// supervisor at all.
	AgentRemoved AgentStatus = "removed"
)

// TaskStatus is the lifecycle state of a dispatched task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskTimedOut  TaskStatus = "timed_out"
	TaskCancelled TaskStatus = "cancelled"
)

// AgentConfig describes how to spawn and restart an agent process.
type AgentConfig struct {
	Type             string            `json:"type" yaml:"type"`
	Command          string            `json:"command" yaml:"command"`
	Args             []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env              map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	WorkDir          string            `json:"workDir,omitempty" yaml:"workDir,omitempty"`
	MaxRestarts      int               `json:"maxRestarts" yaml:"maxRestarts"`
	MaxConcurrent    int               `json:"maxConcurrentTasks" yaml:"maxConcurrentTasks"`
	RestartBackoff   time.Duration     `json:"restartBackoff" yaml:"restartBackoff"`
	RestartBackoffCap time.Duration    `json:"restartBackoffCap" yaml:"restartBackoffCap"`
	CrashWindow      time.Duration     `json:"crashWindow" yaml:"crashWindow"`
	HeartbeatTimeout time.Duration     `json:"heartbeatTimeout" yaml:"heartbeatTimeout"`
	DefaultPrompt    string            `json:"defaultPrompt,omitempty" yaml:"defaultPrompt,omitempty"`
}

// DefaultAgentConfig returns sensible defaults for an agent config that
// did not specify its restart/concurrency knobs explicitly.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		MaxRestarts:       3,
		MaxConcurrent:     1,
		RestartBackoff:    time.Second,
		RestartBackoffCap: 30 * time.Second,
		CrashWindow:       time.Minute,
		HeartbeatTimeout:  45 * time.Second,
	}
}

// Agent is the manager-level record of a supervised agent.
type Agent struct {
	ID              string      `json:"id"`
	Type            string      `json:"type"`
	Status          AgentStatus `json:"status"`
	Config          AgentConfig `json:"config"`
	PID             int         `json:"pid,omitempty"`
	PoolID          string      `json:"poolId,omitempty"`
	RestartCount    int         `json:"restartCount"`
	InFlightTasks   int         `json:"inFlightTasks"`
	LastHeartbeat   time.Time   `json:"lastHeartbeat"`
	LastCrashTime   time.Time   `json:"lastCrashTime,omitempty"`
	StopRequested   bool        `json:"stopRequested"`
	CreatedAt       time.Time   `json:"createdAt"`
	UpdatedAt       time.Time   `json:"updatedAt"`
}

// ProcessRecord is the low-level OS process bookkeeping owned by the
// supervisor, kept separate from the manager-facing Agent record.
type ProcessRecord struct {
	AgentID   string    `json:"agentId"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

// Task is the persisted record of a unit of work dispatched to an agent.
type Task struct {
	ID            string         `json:"id"`
	AgentID       string         `json:"agentId"`
	Description   string         `json:"description"`
	Payload       map[string]any `json:"payload,omitempty"`
	Status        TaskStatus     `json:"status"`
	Result        *TaskResult    `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	StartedAt     time.Time      `json:"startedAt,omitempty"`
	CompletedAt   time.Time      `json:"completedAt,omitempty"`
	TimeoutAfter  time.Duration  `json:"timeoutAfter,omitempty"`
}

// TaskRequest is the envelope sent to a child agent process over the
// wire protocol to ask it to perform work.
type TaskRequest struct {
	ID          string         `json:"id"`
	Description string         `json:"description"`
	Payload     map[string]any `json:"payload,omitempty"`
}

// TaskResult is the envelope a child agent process sends back in
// response to a TaskRequest.
type TaskResult struct {
	ID      string         `json:"id"`
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Template describes how the pool engine should provision new agents of
// a given type when scaling up.
type Template struct {
	Name   string      `json:"name" yaml:"name"`
	Config AgentConfig `json:"config" yaml:"config"`
	Min    int         `json:"min" yaml:"min"`
	Max    int         `json:"max" yaml:"max"`
}

// Pool groups agents provisioned from the same template and tracks the
// free/busy membership the scaling engine operates on.
type Pool struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	TemplateName string    `json:"templateName"`
	MinSize      int       `json:"minSize"`
	MaxSize      int       `json:"maxSize"`
	Free         []string  `json:"free"`
	Busy         []string  `json:"busy"`
	AutoScale    bool      `json:"autoScale"`

	// ScaleUpThreshold/ScaleDownThreshold are fractions of
	// |busy|/currentSize the sweep compares utilisation against.
	ScaleUpThreshold   float64       `json:"scaleUpThreshold"`
	ScaleDownThreshold float64       `json:"scaleDownThreshold"`
	ScaleAmount        int           `json:"scaleAmount"`
	MaxScaleOperations int           `json:"maxScaleOperations"`
	Cooldown           time.Duration `json:"cooldown"`
	LastScaleAt        time.Time     `json:"lastScaleAt"`

	CreatedAt time.Time `json:"createdAt"`
}

// CurrentSize is the pool's total membership, free and busy combined.
func (p Pool) CurrentSize() int { return len(p.Free) + len(p.Busy) }

// Utilisation is the fraction of the pool currently busy, used by the
// scaling sweep's threshold comparisons. A pool with no members at all
// is reported as fully idle.
func (p Pool) Utilisation() float64 {
	size := p.CurrentSize()
	if size == 0 {
		return 0
	}
	return float64(len(p.Busy)) / float64(size)
}

// HealthSnapshot is a point-in-time composite health score for one agent.
type HealthSnapshot struct {
	AgentID         string    `json:"agentId"`
	Responsiveness  float64   `json:"responsiveness"`
	Performance     float64   `json:"performance"`
	Reliability     float64   `json:"reliability"`
	ResourceUsage   float64   `json:"resourceUsage"`
	Overall         float64   `json:"overall"`
	TakenAt         time.Time `json:"takenAt"`
}

// PendingTask is the dispatcher's bookkeeping entry for a task awaiting
// a reply from its agent. Fail delivers a well-typed failure pushed in
// from outside the normal result path — the owning agent stopping or
// exiting before it replied — distinct from a context timeout/cancel,
// which the waiting ExecuteTask call detects itself via ctx.Done().
type PendingTask struct {
	TaskID    string
	AgentID   string
	Done      chan TaskResult
	Fail      chan error
	CreatedAt time.Time
}

// Session records the terminal/process session an agent is attached to,
// following the teacher's agents/sessions data split.
type Session struct {
	AgentID    string    `json:"agentId"`
	TerminalID string    `json:"terminalId"`
	Status     string    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	EndedAt    time.Time `json:"endedAt,omitempty"`
}
