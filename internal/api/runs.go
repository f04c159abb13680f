package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/soochol/minizaps/internal/definition"
	"github.com/soochol/minizaps/internal/services"
	"github.com/soochol/minizaps/internal/zaps"
)

type triggerRequest struct {
	WorkflowName string         `json:"workflow_name"`
	Payload      map[string]any `json:"payload"`
	MaxRetries   *int           `json:"max_retries"`
}

type controlRequest struct {
	Action string `json:"action"`
}

// triggerWorkflow creates a run and starts it in the background.
// POST /api/trigger
func (s *Server) triggerWorkflow(w http.ResponseWriter, r *http.Request) {
	var req triggerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	rec, err := s.workflowSvc.Trigger(r.Context(), services.TriggerRequest{
		WorkflowName: req.WorkflowName,
		Payload:      req.Payload,
		MaxRetries:   req.MaxRetries,
		TriggerType:  zaps.TriggerManual,
	})
	if errors.Is(err, definition.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Workflow not found")
		return
	}
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// controlRun pauses, stops or resumes a run.
// POST /api/runs/{id}/control
func (s *Server) controlRun(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id := chi.URLParam(r, "id")
	res, err := s.statusCtl.Apply(r.Context(), id, req.Action)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "Workflow run not found")
			return
		}
		if status == http.StatusInternalServerError {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// getRun returns a single run record including its logs.
// GET /api/runs/{id}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.runHistorySvc.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "Workflow run not found")
			return
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// listRuns returns recent runs, newest first.
// GET /api/runs?limit=100
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.runHistorySvc.ListRuns(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// parseLimit reads the limit query parameter. Missing means the default;
// the service clamps the value.
func parseLimit(r *http.Request) (int, error) {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return services.DefaultRunListLimit, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	return n, nil
}
