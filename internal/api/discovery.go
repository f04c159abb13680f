package api

import (
	"net/http"

	"github.com/soochol/minizaps/internal/zaps"
)

// banner identifies the service.
// GET /
func (s *Server) banner(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"message": ServiceName,
		"status":  "running",
	})
}

// health pings the run store and lists the registered connectors.
// GET /health
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Health check failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "healthy",
		"database":   "connected",
		"connectors": s.registry.List(),
	})
}

// listActive returns the runs executing in this process.
// GET /api/active
func (s *Server) listActive(w http.ResponseWriter, _ *http.Request) {
	active := map[string]zaps.ActiveRun{}
	if s.active != nil {
		active = s.active.Snapshot()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"active_workflows": active,
		"count":            len(active),
	})
}

// listConnectors returns each connector type's config schema.
// GET /api/connectors
func (s *Server) listConnectors(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Schemas())
}

// listWorkflows returns the names of the available definitions.
// GET /api/workflows
func (s *Server) listWorkflows(w http.ResponseWriter, _ *http.Request) {
	if s.loader == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	names, err := s.loader.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// listSchedules returns the configured cron schedules.
// GET /api/schedules
func (s *Server) listSchedules(w http.ResponseWriter, _ *http.Request) {
	if s.schedulerSvc == nil {
		writeJSON(w, http.StatusOK, []zaps.Schedule{})
		return
	}
	writeJSON(w, http.StatusOK, s.schedulerSvc.ListSchedules())
}

// getSchedulerStats returns current concurrency usage.
// GET /api/scheduler/stats
func (s *Server) getSchedulerStats(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{}
	if s.limiter != nil {
		resp["concurrency"] = s.limiter.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
