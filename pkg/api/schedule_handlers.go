package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldvine/fieldvine/pkg/httputil"
	"github.com/fieldvine/fieldvine/pkg/schedule"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// ScheduleHandlers handles schedule entry HTTP requests
type ScheduleHandlers struct {
	executor *schedule.Executor
}

// NewScheduleHandlers creates a new ScheduleHandlers
func NewScheduleHandlers(executor *schedule.Executor) *ScheduleHandlers {
	return &ScheduleHandlers{executor: executor}
}

// RegisterRoutes registers schedule entry routes
func (h *ScheduleHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/schedule-entries/{id}", h.Get).Methods("GET")
	router.HandleFunc("/schedule-entries/{id}/skip", h.Skip).Methods("POST")
	router.HandleFunc("/schedule-entries/{id}/materialize", h.Materialize).Methods("POST")
}

// Get returns a schedule entry by ID
func (h *ScheduleHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	entry, err := h.executor.GetEntry(r.Context(), id)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	httputil.WriteSuccess(w, entry)
}

// skipRequest is the body for Skip. Version carries the entry version the
// caller last saw; a stale version is rejected with 409.
type skipRequest struct {
	Reason  string `json:"reason"`
	Version *int64 `json:"version,omitempty"`
}

// Skip marks a pending entry skipped without affecting the rest of the
// schedule
func (h *ScheduleHandlers) Skip(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req skipRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Reason, "reason") {
		return
	}

	if err := h.executor.Skip(r.Context(), id, req.Reason, actorFromRequest(r), req.Version); err != nil {
		writeScheduleError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Materialize converts a pending entry into a job immediately instead of
// waiting for the sweep. Returns 200 with the job, or 202 when another
// worker holds the claim.
func (h *ScheduleHandlers) Materialize(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	job, err := h.executor.MaterializeJob(r.Context(), id)
	if err != nil {
		writeScheduleError(w, err)
		return
	}
	if job == nil {
		httputil.WriteAccepted(w, map[string]string{
			"status": "claimed",
		})
		return
	}
	httputil.WriteSuccess(w, job)
}

// writeScheduleError maps schedule domain errors to HTTP statuses
func writeScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, schedule.ErrVersionConflict):
		httputil.WriteConflict(w, err.Error())
	case errors.Is(err, schedule.ErrNotPending),
		errors.Is(err, schedule.ErrPastDate),
		errors.Is(err, schedule.ErrTooLate),
		errors.Is(err, subscriptions.ErrNotActive):
		httputil.WriteUnprocessable(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
