// Package httpapi exposes a minimal read-only status surface over the
// manager facade, following the route-registration style of the
// teacher's internal/router/router.go. This is not the dashboard the
// runtime's scope excludes — there are no write endpoints.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cliaimonitor/agentctl/internal/types"
	"github.com/gorilla/mux"
)

// AgentLister is the subset of the manager the HTTP surface needs.
type AgentLister interface {
	List() []types.Agent
	Stats() map[types.AgentStatus]int
}

// NewRouter builds a *mux.Router exposing GET /healthz, GET /agents and
// GET /stats.
func NewRouter(m AgentLister) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", healthzHandler).Methods(http.MethodGet)
	r.HandleFunc("/agents", agentsHandler(m)).Methods(http.MethodGet)
	r.HandleFunc("/stats", statsHandler(m)).Methods(http.MethodGet)
	return r
}

func healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func agentsHandler(m AgentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.List())
	}
}

func statsHandler(m AgentLister) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(m.Stats())
	}
}
