package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/cliaimonitor/agentctl/internal/types"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	agents []types.Agent
	stats  map[types.AgentStatus]int
}

func (f *fakeLister) List() []types.Agent                  { return f.agents }
func (f *fakeLister) Stats() map[types.AgentStatus]int { return f.stats }

func TestHealthzReturnsOK(t *testing.T) {
	r := NewRouter(&fakeLister{})
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "ok", body["status"])
}

func TestAgentsReturnsListedAgents(t *testing.T) {
	lister := &fakeLister{agents: []types.Agent{{ID: "agent-1", Status: types.AgentRunning}}}
	r := NewRouter(lister)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/agents", nil))

	var agents []types.Agent
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &agents))
	require.Len(t, agents, 1)
	require.Equal(t, "agent-1", agents[0].ID)
}

func TestStatsReturnsCounts(t *testing.T) {
	lister := &fakeLister{stats: map[types.AgentStatus]int{types.AgentRunning: 3}}
	r := NewRouter(lister)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	var stats map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	require.Equal(t, 3, stats["running"])
}
