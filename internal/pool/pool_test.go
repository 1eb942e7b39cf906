package pool

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/cliaimonitor/agentctl/internal/errs"
	"github.com/cliaimonitor/agentctl/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeProvisioner struct {
	mu      sync.Mutex
	next    int
	stopped []string
}

func (f *fakeProvisioner) CreateAgent(ctx context.Context, cfg types.AgentConfig) (types.Agent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	return types.Agent{ID: fmt.Sprintf("agent-%d", f.next), Type: cfg.Type}, nil
}

func (f *fakeProvisioner) StopAgent(agentID string, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, agentID)
	return nil
}

func newTestEngine(prov *fakeProvisioner) *Engine {
	e := New(prov, nil)
	e.RegisterTemplate(types.Template{Name: "worker"})
	return e
}

func TestTemplateByNameUnknownIsNotFound(t *testing.T) {
	e := newTestEngine(&fakeProvisioner{})
	_, err := e.TemplateByName("ghost")
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestCreatePoolProvisionsMinAgents(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 2, MaxSize: 5})
	require.NoError(t, err)
	require.Len(t, p.Free, 2)
	require.Empty(t, p.Busy)

	stats, err := e.Stats(p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Created)
}

func TestCreatePoolUnknownTemplateIsNotFound(t *testing.T) {
	e := newTestEngine(&fakeProvisioner{})
	_, err := e.CreatePool(context.Background(), "pool-1", "ghost", CreateOptions{MinSize: 1, MaxSize: 2})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestCreatePoolRejectsInvalidMinMax(t *testing.T) {
	e := newTestEngine(&fakeProvisioner{})
	_, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 5, MaxSize: 2})
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ValidationFailed))
}

func TestScalePoolUp(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 1, MaxSize: 5})
	require.NoError(t, err)

	require.NoError(t, e.ScalePool(context.Background(), p.ID, 3))

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.CurrentSize())
	require.Len(t, got.Free, 3)

	stats, err := e.Stats(p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), stats.Created)
}

func TestScalePoolDown(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 1, MaxSize: 5})
	require.NoError(t, err)
	require.NoError(t, e.ScalePool(context.Background(), p.ID, 3))

	require.NoError(t, e.ScalePool(context.Background(), p.ID, 1))

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.CurrentSize())

	stats, err := e.Stats(p.ID)
	require.NoError(t, err)
	require.Equal(t, int64(2), stats.Removed)
	require.Len(t, prov.stopped, 2)
}

func TestScalePoolDownNeverTouchesBusyAgents(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 0, MaxSize: 5})
	require.NoError(t, err)
	require.NoError(t, e.ScalePool(context.Background(), p.ID, 2))
	p, err = e.Get(p.ID)
	require.NoError(t, err)
	require.NoError(t, e.MarkBusy(p.ID, p.Free[0]))

	err = e.ScalePool(context.Background(), p.ID, 0)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.Capacity))
}

func TestScalePoolRejectsOutOfRange(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 1, MaxSize: 3})
	require.NoError(t, err)

	err = e.ScalePool(context.Background(), p.ID, 10)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.ValidationFailed))
}

func TestScalePoolUnknownPool(t *testing.T) {
	e := newTestEngine(&fakeProvisioner{})
	err := e.ScalePool(context.Background(), "missing", 2)
	require.Error(t, err)
	require.True(t, errs.Is(err, errs.NotFound))
}

func TestMarkBusyAndMarkFreeMoveMembership(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{MinSize: 2, MaxSize: 5})
	require.NoError(t, err)
	agentID := p.Free[0]

	require.NoError(t, e.MarkBusy(p.ID, agentID))
	got, err := e.Get(p.ID)
	require.NoError(t, err)
	require.Contains(t, got.Busy, agentID)
	require.NotContains(t, got.Free, agentID)

	require.NoError(t, e.MarkFree(p.ID, agentID))
	got, err = e.Get(p.ID)
	require.NoError(t, err)
	require.Contains(t, got.Free, agentID)
	require.NotContains(t, got.Busy, agentID)
}

func TestSweepScalesUpWhenUtilisationExceedsThreshold(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{
		MinSize: 2, MaxSize: 5, AutoScale: true,
		ScaleUpThreshold: 0.5, ScaleAmount: 1, MaxScaleOperations: 1, Cooldown: time.Minute,
	})
	require.NoError(t, err)
	require.NoError(t, e.MarkBusy(p.ID, p.Free[0]))
	require.NoError(t, e.MarkBusy(p.ID, p.Free[1]))

	e.Sweep(context.Background())

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, 3, got.CurrentSize())
}

func TestSweepRespectsCooldown(t *testing.T) {
	prov := &fakeProvisioner{}
	e := newTestEngine(prov)

	p, err := e.CreatePool(context.Background(), "pool-1", "worker", CreateOptions{
		MinSize: 2, MaxSize: 5, AutoScale: true,
		ScaleUpThreshold: 0.5, ScaleAmount: 1, MaxScaleOperations: 1, Cooldown: time.Hour,
	})
	require.NoError(t, err)
	require.NoError(t, e.MarkBusy(p.ID, p.Free[0]))
	require.NoError(t, e.MarkBusy(p.ID, p.Free[1]))

	e.mu.Lock()
	e.pools[p.ID].LastScaleAt = time.Now()
	e.mu.Unlock()

	e.Sweep(context.Background())

	got, err := e.Get(p.ID)
	require.NoError(t, err)
	require.Equal(t, 2, got.CurrentSize(), "cooldown window should have suppressed the scale-up")
}
