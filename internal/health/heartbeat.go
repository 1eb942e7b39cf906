package health

import (
	"context"
	"log"
	"time"

	"github.com/cliaimonitor/agentctl/internal/events"
	"github.com/cliaimonitor/agentctl/internal/types"
	"golang.org/x/sys/unix"
)

const (
	// DefaultCheckInterval is how often the heartbeat sweep runs,
	// following the teacher's HeartbeatCheckInterval constant.
	DefaultCheckInterval = 15 * time.Second
)

// AgentSource is the subset of the manager's view of agents the monitor
// needs: a snapshot of every supervised agent plus the ability to act on
// a stale one.
type AgentSource interface {
	List() []types.Agent
	Restart(ctx context.Context, agentID string) error
	SetStatus(agentID string, status types.AgentStatus) error
}

// Monitor runs the periodic heartbeat and composite-health scans.
type Monitor struct {
	agents   AgentSource
	bus      *events.Bus
	sampler  ResourceSampler
	metrics  func(agentID string) AgentMetrics
	interval time.Duration

	criticalThreshold float64
}

// NewMonitor creates a Monitor. metricsFn supplies the rolling metrics
// the composite score is computed from; a nil value treats every agent
// as having no history (a perfect score), which is appropriate for an
// agent freshly created.
func NewMonitor(agents AgentSource, bus *events.Bus, sampler ResourceSampler, metricsFn func(string) AgentMetrics) *Monitor {
	if sampler == nil {
		sampler = ProcSampler{}
	}
	if metricsFn == nil {
		metricsFn = func(string) AgentMetrics { return AgentMetrics{} }
	}
	return &Monitor{
		agents:            agents,
		bus:               bus,
		sampler:           sampler,
		metrics:           metricsFn,
		interval:          DefaultCheckInterval,
		criticalThreshold: 0.3,
	}
}

// Run starts the ticker-driven sweep loop; it blocks until ctx is
// cancelled, following the teacher's StartHeartbeatChecker.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.sweep(ctx)
		}
	}
}

func (m *Monitor) sweep(ctx context.Context) {
	for _, agent := range m.agents.List() {
		m.checkHeartbeat(ctx, agent)
		m.checkHealth(ctx, agent)
	}
}

// checkHeartbeat implements the stale-agent detection and confirmed-dead
// vs. false-alarm distinction from the teacher's handleStaleAgent.
func (m *Monitor) checkHeartbeat(ctx context.Context, agent types.Agent) {
	if agent.Status != types.AgentRunning {
		return
	}

	timeout := agent.Config.HeartbeatTimeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	since := time.Since(agent.LastHeartbeat)
	if since <= timeout {
		return
	}

	if agent.StopRequested {
		// Approved-stop-request short-circuit: don't respawn an agent
		// that's already on its way out.
		return
	}

	if pidAlive(agent.PID) {
		// False alarm: process is alive, just slow to report in. Reset
		// is the manager's job on the next real heartbeat; nothing to
		// do here but avoid a spurious restart.
		return
	}

	m.publish(events.KindAgentHeartbeatTimeout, agent.ID, events.AgentHeartbeatTimeout{
		AgentID: agent.ID, SinceLastSeen: since,
	})

	next, shouldRestart := decideHeartbeatOutcome(agent.RestartCount, agent.Config.MaxRestarts)
	_ = m.agents.SetStatus(agent.ID, next)

	if !shouldRestart {
		m.publish(events.KindAgentRestartExhausted, agent.ID, events.AgentRestartExhausted{
			AgentID: agent.ID, RestartCount: agent.RestartCount,
		})
		return
	}

	log.Printf("[HEALTH] agent %s confirmed dead after %s, restarting", agent.ID, since)
	if err := m.agents.Restart(ctx, agent.ID); err != nil {
		log.Printf("[HEALTH] failed to restart agent %s: %v", agent.ID, err)
	}
}

// decideHeartbeatOutcome implements the spec's heartbeat-timeout rule: a
// confirmed-dead agent always transitions to error, and a restart is
// additionally requested when restart budget remains.
func decideHeartbeatOutcome(restartCount, maxRestarts int) (types.AgentStatus, bool) {
	return types.AgentError, restartCount < maxRestarts
}

// checkHealth computes the composite score and applies the
// critical-health restart rule.
func (m *Monitor) checkHealth(ctx context.Context, agent types.Agent) {
	if agent.Status != types.AgentRunning {
		return
	}

	cpu, mem, _, err := m.sampler.Sample(agent.PID)
	if err != nil {
		log.Printf("[HEALTH] sample failed for agent %s: %v", agent.ID, err)
	}

	snap := Score(m.metrics(agent.ID), cpu, mem)
	snap.AgentID = agent.ID
	snap.TakenAt = time.Now()

	if IsCritical(snap, m.criticalThreshold) {
		log.Printf("[HEALTH] agent %s critical (overall=%.2f), restarting", agent.ID, snap.Overall)
		if err := m.agents.Restart(ctx, agent.ID); err != nil {
			log.Printf("[HEALTH] failed to restart unhealthy agent %s: %v", agent.ID, err)
		}
	}
}

// pidAlive double-checks liveness via a zero-signal, following the
// teacher's os.FindProcess + Signal(os.Signal(nil)) idiom, using
// golang.org/x/sys/unix.Kill directly so the check never goes through
// the (on some platforms faked) os.Process.Signal path.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return unix.Kill(pid, 0) == nil
}
