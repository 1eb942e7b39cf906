// Package pool implements the template-driven pool and scaling engine,
// adapting the ScaleWorkers delta algorithm and atomic PoolStats shape
// from other_examples/a600330b_odvcencio-buckley__pkg-agent-pool.go.go
// from goroutine workers to supervised child agent processes, plus the
// free/busy membership tracking and cooldown-windowed implicit scaling
// sweep the template delta algorithm alone doesn't cover.
package pool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/events"
	"github.com/cliaimonitor/agentctl/internal/types"
	"github.com/google/uuid"
)

// DefaultScaleUpThreshold and DefaultScaleDownThreshold are the
// utilisation fractions a pool uses when a caller doesn't supply its
// own.
const (
	DefaultScaleUpThreshold   = 0.8
	DefaultScaleDownThreshold = 0.3
	DefaultScaleAmount        = 1
	DefaultMaxScaleOperations = 1
	DefaultCooldown           = 5 * time.Minute
)

// AgentProvisioner is the subset of the manager the pool engine needs to
// create and stop agents.
type AgentProvisioner interface {
	CreateAgent(ctx context.Context, cfg types.AgentConfig) (types.Agent, error)
	StopAgent(agentID string, reason string) error
}

// Stats tracks pool-wide counters using atomics, following the
// teacher's PoolStats.
type Stats struct {
	Created atomic.Int64
	Removed atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats for reporting.
type StatsSnapshot struct {
	Created int64 `json:"created"`
	Removed int64 `json:"removed"`
}

// CreateOptions configures a new pool's sizing and scaling policy.
type CreateOptions struct {
	MinSize            int
	MaxSize            int
	AutoScale          bool
	ScaleUpThreshold   float64
	ScaleDownThreshold float64
	ScaleAmount        int
	MaxScaleOperations int
	Cooldown           time.Duration
}

// Engine owns every pool, the template registry pools provision agents
// from, and applies the implicit scaling policy.
type Engine struct {
	mu        sync.RWMutex
	pools     map[string]*types.Pool
	stats     map[string]*Stats
	templates map[string]types.Template

	provisioner AgentProvisioner
	bus         *events.Bus
}

// New creates an Engine that provisions agents through provisioner and
// publishes lifecycle events on bus.
func New(provisioner AgentProvisioner, bus *events.Bus) *Engine {
	return &Engine{
		pools:       make(map[string]*types.Pool),
		stats:       make(map[string]*Stats),
		templates:   make(map[string]types.Template),
		provisioner: provisioner,
		bus:         bus,
	}
}

// RegisterTemplate adds or replaces a named template in the registry,
// used by callers at startup (e.g. reading config.Runtime.Templates).
func (e *Engine) RegisterTemplate(tmpl types.Template) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.templates[tmpl.Name] = tmpl
}

// TemplateByName looks up a registered template by name, returning a
// well-typed NotFound error for an unknown name rather than silently
// substituting a default.
func (e *Engine) TemplateByName(name string) (types.Template, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tmpl, ok := e.templates[name]
	if !ok {
		return types.Template{}, errs.NotFoundf("pool.TemplateByName", fmt.Errorf("template %s", name))
	}
	return tmpl, nil
}

// CreatePool resolves templateName and eagerly provisions minSize
// agents into its free list, registering a new pool.
func (e *Engine) CreatePool(ctx context.Context, name, templateName string, opts CreateOptions) (types.Pool, error) {
	tmpl, err := e.TemplateByName(templateName)
	if err != nil {
		return types.Pool{}, err
	}
	if opts.MinSize < 0 || opts.MaxSize < opts.MinSize {
		return types.Pool{}, errs.ValidationFailedf("pool.CreatePool", fmt.Errorf("invalid min/max %d/%d", opts.MinSize, opts.MaxSize))
	}

	p := &types.Pool{
		ID:                 uuid.New().String(),
		Name:               name,
		TemplateName:       templateName,
		MinSize:            opts.MinSize,
		MaxSize:            opts.MaxSize,
		AutoScale:          opts.AutoScale,
		ScaleUpThreshold:   orDefault(opts.ScaleUpThreshold, DefaultScaleUpThreshold),
		ScaleDownThreshold: orDefaultNonZero(opts.ScaleDownThreshold, DefaultScaleDownThreshold),
		ScaleAmount:        orDefaultInt(opts.ScaleAmount, DefaultScaleAmount),
		MaxScaleOperations: orDefaultInt(opts.MaxScaleOperations, DefaultMaxScaleOperations),
		Cooldown:           orDefaultDuration(opts.Cooldown, DefaultCooldown),
		CreatedAt:          time.Now(),
	}

	for i := 0; i < opts.MinSize; i++ {
		agent, err := e.provisioner.CreateAgent(ctx, tmpl.Config)
		if err != nil {
			return types.Pool{}, errs.ProcessErrorf("pool.CreatePool", err)
		}
		p.Free = append(p.Free, agent.ID)
	}

	e.mu.Lock()
	e.pools[p.ID] = p
	e.stats[p.ID] = &Stats{}
	e.stats[p.ID].Created.Add(int64(len(p.Free)))
	e.mu.Unlock()

	e.publish(events.KindPoolCreated, events.PoolCreated{
		PoolID: p.ID, TemplateName: templateName, InitialSize: len(p.Free),
	})
	return *p, nil
}

// orDefault/orDefaultInt/orDefaultDuration fill in a pool's scaling
// knobs when the caller left them at their zero value.
func orDefault(v, def float64) float64 {
	if v == 0 {
		return def
	}
	return v
}

// orDefaultNonZero exists alongside orDefault only because
// scaleDownThreshold's zero value (0) is itself a legitimate setting in
// theory but never a useful one in practice, so it's treated the same
// as "unset".
func orDefaultNonZero(v, def float64) float64 { return orDefault(v, def) }

func orDefaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}

// ScalePool adjusts pool poolID to have exactly targetSize agents.
// Growth provisions new agents straight into the free list; shrinkage
// removes agents from the free list only, per the invariant that a
// scale-down never touches a busy agent.
func (e *Engine) ScalePool(ctx context.Context, poolID string, targetSize int) error {
	e.mu.Lock()
	p, ok := e.pools[poolID]
	if !ok {
		e.mu.Unlock()
		return errs.NotFoundf("pool.ScalePool", fmt.Errorf("pool %s", poolID))
	}
	if targetSize < p.MinSize || targetSize > p.MaxSize {
		e.mu.Unlock()
		return errs.ValidationFailedf("pool.ScalePool", fmt.Errorf("target %d outside [%d,%d]", targetSize, p.MinSize, p.MaxSize))
	}
	templateName := p.TemplateName
	fromSize := p.CurrentSize()
	stats := e.stats[poolID]
	e.mu.Unlock()

	if targetSize > fromSize {
		tmpl, err := e.TemplateByName(templateName)
		if err != nil {
			return err
		}
		for i := fromSize; i < targetSize; i++ {
			agent, err := e.provisioner.CreateAgent(ctx, tmpl.Config)
			if err != nil {
				return errs.ProcessErrorf("pool.ScalePool", err)
			}
			e.mu.Lock()
			p.Free = append(p.Free, agent.ID)
			e.mu.Unlock()
			stats.Created.Add(1)
		}
	} else if targetSize < fromSize {
		toRemove := fromSize - targetSize

		e.mu.Lock()
		if len(p.Free) < toRemove {
			e.mu.Unlock()
			return errs.Capacityf("pool.ScalePool", fmt.Errorf("pool %s has only %d free agents, need to remove %d", poolID, len(p.Free), toRemove))
		}
		removing := append([]string(nil), p.Free[len(p.Free)-toRemove:]...)
		p.Free = p.Free[:len(p.Free)-toRemove]
		e.mu.Unlock()

		for _, agentID := range removing {
			if err := e.provisioner.StopAgent(agentID, "pool scale-down"); err != nil {
				return errs.ProcessErrorf("pool.ScalePool", err)
			}
			stats.Removed.Add(1)
		}
	}

	e.publish(events.KindPoolScaled, events.PoolScaled{PoolID: poolID, FromSize: fromSize, ToSize: targetSize})
	return nil
}

// MarkBusy moves agentID from free to busy within poolID's membership;
// it is a no-op when agentID is not in the free list.
func (e *Engine) MarkBusy(poolID, agentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poolID]
	if !ok {
		return errs.NotFoundf("pool.MarkBusy", fmt.Errorf("pool %s", poolID))
	}
	if !removeString(&p.Free, agentID) {
		return nil // already busy, or not a member of this pool; no-op
	}
	p.Busy = append(p.Busy, agentID)
	return nil
}

// MarkFree moves agentID from busy back to free within poolID's
// membership; it is a no-op when agentID is not in the busy list.
func (e *Engine) MarkFree(poolID, agentID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.pools[poolID]
	if !ok {
		return errs.NotFoundf("pool.MarkFree", fmt.Errorf("pool %s", poolID))
	}
	if !removeString(&p.Busy, agentID) {
		return nil
	}
	p.Free = append(p.Free, agentID)
	return nil
}

func removeString(list *[]string, v string) bool {
	for i, s := range *list {
		if s == v {
			*list = append((*list)[:i], (*list)[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the pool record for poolID.
func (e *Engine) Get(poolID string) (types.Pool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	p, ok := e.pools[poolID]
	if !ok {
		return types.Pool{}, errs.NotFoundf("pool.Get", fmt.Errorf("pool %s", poolID))
	}
	return *p, nil
}

// List returns a snapshot of every pool the engine owns.
func (e *Engine) List() []types.Pool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]types.Pool, 0, len(e.pools))
	for _, p := range e.pools {
		out = append(out, *p)
	}
	return out
}

// Stats returns a snapshot of poolID's counters.
func (e *Engine) Stats(poolID string) (StatsSnapshot, error) {
	e.mu.RLock()
	s, ok := e.stats[poolID]
	e.mu.RUnlock()
	if !ok {
		return StatsSnapshot{}, errs.NotFoundf("pool.Stats", fmt.Errorf("pool %s", poolID))
	}
	return StatsSnapshot{Created: s.Created.Load(), Removed: s.Removed.Load()}, nil
}

// RunSweeper ticks Sweep every interval until ctx is cancelled.
func (e *Engine) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Sweep(ctx)
		}
	}
}

// Sweep examines every auto-scaling pool's utilisation against its
// thresholds and scales it within its cooldown window, up to
// MaxScaleOperations adjustments per window.
func (e *Engine) Sweep(ctx context.Context) {
	e.mu.RLock()
	pools := make([]*types.Pool, 0, len(e.pools))
	for _, p := range e.pools {
		pools = append(pools, p)
	}
	e.mu.RUnlock()

	now := time.Now()
	for _, p := range pools {
		e.sweepOne(ctx, p, now)
	}
}

func (e *Engine) sweepOne(ctx context.Context, p *types.Pool, now time.Time) {
	e.mu.Lock()
	if !p.AutoScale {
		e.mu.Unlock()
		return
	}
	if now.Sub(p.LastScaleAt) < p.Cooldown {
		e.mu.Unlock()
		return
	}
	util := p.Utilisation()
	size := p.CurrentSize()
	var target int
	switch {
	case util > p.ScaleUpThreshold:
		target = min(size+p.ScaleAmount*p.MaxScaleOperations, p.MaxSize)
	case util < p.ScaleDownThreshold:
		target = max(size-p.ScaleAmount*p.MaxScaleOperations, p.MinSize)
	default:
		target = size
	}
	poolID := p.ID
	e.mu.Unlock()

	if target == size {
		return
	}

	if err := e.ScalePool(ctx, poolID, target); err != nil {
		return
	}

	e.mu.Lock()
	p.LastScaleAt = now
	e.mu.Unlock()
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func (e *Engine) publish(kind events.Kind, payload any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish("all", events.New(kind, "", payload))
}
