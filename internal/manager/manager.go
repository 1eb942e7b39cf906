// Package manager implements the single Agent Manager facade that
// fronts the supervisor, dispatcher, health monitor, and pool engine,
// collapsing the teacher's separate handler/captain layers into one
// concrete type, following cmd/cliaimonitor/main.go's component-wiring
// order and internal/handlers/supervisor.go's facade shape.
package manager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/cliaimonitor/agentctl/internal/dispatcher"
	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/events"
	"github.com/cliaimonitor/agentctl/internal/health"
	"github.com/cliaimonitor/agentctl/internal/persistence"
	"github.com/cliaimonitor/agentctl/internal/pool"
	"github.com/cliaimonitor/agentctl/internal/supervisor"
	"github.com/cliaimonitor/agentctl/internal/types"
	"github.com/google/uuid"
)

// Manager is the single entry point embedding code talks to.
type Manager struct {
	supervisor *supervisor.Supervisor
	dispatcher *dispatcher.Dispatcher
	health     *health.Monitor
	pool       *pool.Engine
	store      *persistence.Store
	bus        *events.Bus

	mu            sync.Mutex
	inFlightCount map[string]int
}

// Config bundles the collaborators a Manager is built from, so callers
// wire persistence/bus/supervisor/dispatcher/health/pool once in main
// and hand the finished graph to New.
type Config struct {
	Store      *persistence.Store
	Bus        *events.Bus
	Supervisor *supervisor.Supervisor
	Dispatcher *dispatcher.Dispatcher
	Health     *health.Monitor
	Pool       *pool.Engine
}

// New builds a Manager from cfg.
func New(cfg Config) *Manager {
	m := &Manager{
		supervisor:    cfg.Supervisor,
		dispatcher:    cfg.Dispatcher,
		health:        cfg.Health,
		pool:          cfg.Pool,
		store:         cfg.Store,
		bus:           cfg.Bus,
		inFlightCount: make(map[string]int),
	}
	return m
}

// AttachHealth wires the health monitor in after construction, letting
// main build the monitor from this same Manager (as its AgentSource)
// without a construction-order cycle.
func (m *Manager) AttachHealth(h *health.Monitor) { m.health = h }

// AttachPool wires the pool engine in after construction, for the same
// reason AttachHealth exists.
func (m *Manager) AttachPool(p *pool.Engine) { m.pool = p }

// Run starts the health monitor's sweep loop; it blocks until ctx is
// cancelled.
func (m *Manager) Run(ctx context.Context) {
	m.health.Run(ctx)
}

// CreateAgent provisions a new agent and persists its initial record.
// It satisfies pool.AgentProvisioner.
func (m *Manager) CreateAgent(ctx context.Context, cfg types.AgentConfig) (types.Agent, error) {
	agentID := uuid.New().String()
	agent, err := m.supervisor.Create(ctx, agentID, cfg)
	if err != nil {
		return types.Agent{}, err
	}
	if m.store != nil {
		if err := m.store.SaveAgent(agent); err != nil {
			return types.Agent{}, err
		}
	}
	return agent, nil
}

// StopAgent requests a graceful stop, satisfying pool.AgentProvisioner.
// Cancelling every pending task of agentID is done here, not inside the
// supervisor, because the Task Dispatcher exclusively owns Pending Task
// entries; the supervisor only knows about processes.
func (m *Manager) StopAgent(agentID string, reason string) error {
	m.dispatcher.CancelAgentTasks(agentID, errs.Cancelled, "agent stopping: "+reason)

	if err := m.supervisor.Stop(agentID, reason, 10*time.Second); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.inFlightCount, agentID)
	m.mu.Unlock()
	return nil
}

// RestartAgent forces an immediate restart via the supervisor, for
// callers that want to force a restart through the facade. It does the
// same as Restart, which is the method health.AgentSource uses.
func (m *Manager) RestartAgent(ctx context.Context, agentID string) error {
	return m.supervisor.Restart(ctx, agentID)
}

// RemoveAgent stops an agent (if still running) and marks its persisted
// record removed. Removal is a status update, not a row deletion, so a
// second call against an already-removed agent is idempotent: it finds
// AgentRemoved and returns nil rather than NotFound.
func (m *Manager) RemoveAgent(agentID string) error {
	if _, err := m.supervisor.Get(agentID); err == nil {
		_ = m.supervisor.Stop(agentID, "removed", 10*time.Second)
	}
	m.mu.Lock()
	delete(m.inFlightCount, agentID)
	m.mu.Unlock()

	if m.store == nil {
		return nil
	}

	agent, err := m.store.GetAgent(agentID)
	if err != nil {
		return err
	}
	if agent.Status == types.AgentRemoved {
		return nil
	}
	agent.Status = types.AgentRemoved
	agent.UpdatedAt = time.Now()
	return m.store.SaveAgent(agent)
}

// ExecuteTask dispatches req to agentID, enforcing the per-agent
// maxConcurrentTasks limit at the facade layer (Open Question #1:
// enforced here, not inside the dispatcher, which stays a pure
// correlation layer).
func (m *Manager) ExecuteTask(ctx context.Context, agentID string, req types.TaskRequest, timeout time.Duration) (types.TaskResult, error) {
	agent, err := m.supervisor.Get(agentID)
	if err != nil {
		return types.TaskResult{}, err
	}
	if agent.Status != types.AgentRunning {
		return types.TaskResult{}, errs.Conflictf("manager.ExecuteTask", fmt.Errorf("agent %s is %s, not running", agentID, agent.Status))
	}

	limit := agent.Config.MaxConcurrent
	if limit <= 0 {
		limit = 1
	}

	m.mu.Lock()
	if m.inFlightCount[agentID] >= limit {
		m.mu.Unlock()
		return types.TaskResult{}, errs.Capacityf("manager.ExecuteTask", fmt.Errorf("agent %s at capacity (%d/%d)", agentID, m.inFlightCount[agentID], limit))
	}
	m.inFlightCount[agentID]++
	m.mu.Unlock()

	defer func() {
		m.mu.Lock()
		m.inFlightCount[agentID]--
		m.mu.Unlock()
	}()

	if m.store != nil {
		_ = m.store.SaveTask(types.Task{
			ID: req.ID, AgentID: agentID, Description: req.Description, Payload: req.Payload,
			Status: types.TaskRunning, CreatedAt: time.Now(), StartedAt: time.Now(),
		})
	}

	res, err := m.dispatcher.ExecuteTask(ctx, agentID, req, timeout)

	if m.store != nil {
		status := types.TaskCompleted
		taskErr := ""
		if err != nil {
			status = types.TaskFailed
			taskErr = err.Error()
			if errs.Is(err, errs.Timeout) {
				status = types.TaskTimedOut
			}
		} else if !res.Success {
			status = types.TaskFailed
			taskErr = res.Error
		}
		_ = m.store.SaveTask(types.Task{
			ID: req.ID, AgentID: agentID, Description: req.Description, Payload: req.Payload,
			Status: status, Result: &res, Error: taskErr, CreatedAt: time.Now(), CompletedAt: time.Now(),
		})
	}

	return res, err
}

// List returns every supervised agent, satisfying health.AgentSource.
func (m *Manager) List() []types.Agent {
	return m.supervisor.List()
}

// Get returns a single agent by id.
func (m *Manager) Get(agentID string) (types.Agent, error) {
	return m.supervisor.Get(agentID)
}

// Restart satisfies health.AgentSource by delegating to the supervisor.
func (m *Manager) Restart(ctx context.Context, agentID string) error {
	return m.supervisor.Restart(ctx, agentID)
}

// SetStatus satisfies health.AgentSource by delegating to the
// supervisor's lifecycle state machine.
func (m *Manager) SetStatus(agentID string, status types.AgentStatus) error {
	return m.supervisor.SetStatus(agentID, status)
}

// RegisterTemplate adds a named agent template the pool engine can
// provision pools from.
func (m *Manager) RegisterTemplate(tmpl types.Template) {
	m.pool.RegisterTemplate(tmpl)
}

// CreatePool provisions a new pool of agents from the named template.
func (m *Manager) CreatePool(ctx context.Context, name, templateName string, opts pool.CreateOptions) (types.Pool, error) {
	return m.pool.CreatePool(ctx, name, templateName, opts)
}

// ScalePool adjusts poolID to count agents.
func (m *Manager) ScalePool(ctx context.Context, poolID string, count int) error {
	return m.pool.ScalePool(ctx, poolID, count)
}

// Stats returns the manager's aggregate view: agent count by status.
func (m *Manager) Stats() map[types.AgentStatus]int {
	out := make(map[types.AgentStatus]int)
	for _, a := range m.supervisor.List() {
		out[a.Status]++
	}
	return out
}

// Subscribe exposes the underlying event bus to embedding code that
// wants to observe lifecycle events (dashboards, CLIs, alerting).
func (m *Manager) Subscribe(target string, kinds []events.Kind) <-chan events.Event {
	return m.bus.Subscribe(target, kinds)
}
