// Package dispatcher correlates outbound task requests with the
// eventual reply from the owning agent, following the dispatch-state
// map and per-call cancellation shape of the teacher's
// internal/supervisor/dispatcher.go, narrowed from "spawn a plan of
// agents" to "await one reply per outstanding task."
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/events"
	"github.com/cliaimonitor/agentctl/internal/supervisor"
	"github.com/cliaimonitor/agentctl/internal/types"
)

// Sender is the subset of supervisor.Supervisor the dispatcher needs,
// narrowed for testability.
type Sender interface {
	SendMessage(agentID string, msg supervisor.Message) error
}

// Dispatcher owns the map of tasks awaiting a reply.
type Dispatcher struct {
	mu      sync.Mutex
	pending map[string]*types.PendingTask

	sender Sender
	bus    *events.Bus
}

// New creates a Dispatcher that sends task requests via sender and
// publishes lifecycle events on bus.
func New(sender Sender, bus *events.Bus) *Dispatcher {
	return &Dispatcher{
		pending: make(map[string]*types.PendingTask),
		sender:  sender,
		bus:     bus,
	}
}

// ExecuteTask sends req to agentID and blocks until a matching result
// arrives, ctx is cancelled, or timeout elapses — whichever comes first.
// A zero timeout means ctx alone governs the wait.
func (d *Dispatcher) ExecuteTask(ctx context.Context, agentID string, req types.TaskRequest, timeout time.Duration) (types.TaskResult, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan types.TaskResult, 1)
	fail := make(chan error, 1)
	pt := &types.PendingTask{
		TaskID:    req.ID,
		AgentID:   agentID,
		Done:      done,
		Fail:      fail,
		CreatedAt: time.Now(),
	}

	d.mu.Lock()
	if _, exists := d.pending[req.ID]; exists {
		d.mu.Unlock()
		return types.TaskResult{}, errs.Conflictf("dispatcher.ExecuteTask", fmt.Errorf("task %s already in flight", req.ID))
	}
	d.pending[req.ID] = pt
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		delete(d.pending, req.ID)
		d.mu.Unlock()
	}()

	data, err := json.Marshal(req)
	if err != nil {
		return types.TaskResult{}, errs.ValidationFailedf("dispatcher.ExecuteTask", err)
	}

	if err := d.sender.SendMessage(agentID, supervisor.Message{
		ID:   req.ID,
		Type: supervisor.MsgTask,
		Data: data,
		To:   agentID,
	}); err != nil {
		return types.TaskResult{}, errs.ProcessErrorf("dispatcher.ExecuteTask", err)
	}

	d.publish(events.KindTaskDispatched, agentID, events.TaskDispatched{TaskID: req.ID, AgentID: agentID})
	start := time.Now()

	select {
	case res := <-done:
		if res.Success {
			d.publish(events.KindTaskCompleted, agentID, events.TaskCompleted{
				TaskID: req.ID, AgentID: agentID, Duration: time.Since(start),
			})
		} else {
			d.publish(events.KindTaskFailed, agentID, events.TaskFailed{
				TaskID: req.ID, AgentID: agentID, Reason: res.Error,
			})
		}
		return res, nil
	case err := <-fail:
		d.publish(events.KindTaskFailed, agentID, events.TaskFailed{TaskID: req.ID, AgentID: agentID, Reason: err.Error()})
		return types.TaskResult{}, err
	case <-ctx.Done():
		reason := "cancelled"
		kind := errs.Cancelled
		if ctx.Err() == context.DeadlineExceeded {
			reason = "timeout"
			kind = errs.Timeout
		}
		d.publish(events.KindTaskFailed, agentID, events.TaskFailed{TaskID: req.ID, AgentID: agentID, Reason: reason})
		return types.TaskResult{}, errs.New(kind, "dispatcher.ExecuteTask", fmt.Errorf("task %s %s", req.ID, reason))
	}
}

// HandleMessage feeds an inbound supervisor.Message into the dispatcher;
// register it with supervisor.Supervisor.OnMessage. Messages that don't
// match a pending task (or aren't of type result) are ignored — they
// belong to the health monitor or another handler.
func (d *Dispatcher) HandleMessage(agentID string, msg supervisor.Message) {
	if msg.Type != supervisor.MsgResult {
		return
	}
	var res types.TaskResult
	if err := json.Unmarshal(msg.Data, &res); err != nil {
		return
	}

	d.mu.Lock()
	pt, ok := d.pending[res.ID]
	d.mu.Unlock()
	if !ok {
		return
	}

	select {
	case pt.Done <- res:
	default:
	}
}

// CancelAgentTasks fails every pending task owned by agentID with a
// well-typed error of the given kind — errs.Cancelled when the owning
// agent is being stopped by a caller, errs.ProcessExit when it exited
// unexpectedly — so callers can distinguish the two by Kind rather than
// by message text.
func (d *Dispatcher) CancelAgentTasks(agentID string, kind errs.Kind, reason string) {
	d.mu.Lock()
	var owned []*types.PendingTask
	for _, pt := range d.pending {
		if pt.AgentID == agentID {
			owned = append(owned, pt)
		}
	}
	d.mu.Unlock()

	for _, pt := range owned {
		err := errs.New(kind, "dispatcher.CancelAgentTasks", fmt.Errorf("%s", reason))
		select {
		case pt.Fail <- err:
		default:
		}
	}
}

func (d *Dispatcher) publish(kind events.Kind, agentID string, payload any) {
	if d.bus == nil {
		return
	}
	d.bus.Publish(agentID, events.New(kind, agentID, payload))
}
