package api

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldvine/fieldvine/pkg/httputil"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// SubscriptionHandlers handles subscription lifecycle HTTP requests
type SubscriptionHandlers struct {
	service subscriptions.Service
}

// NewSubscriptionHandlers creates a new SubscriptionHandlers
func NewSubscriptionHandlers(service subscriptions.Service) *SubscriptionHandlers {
	return &SubscriptionHandlers{service: service}
}

// RegisterRoutes registers subscription routes
func (h *SubscriptionHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/subscriptions", h.Create).Methods("POST")
	router.HandleFunc("/subscriptions/{id}", h.Get).Methods("GET")
	router.HandleFunc("/subscriptions/{id}/pause", h.Pause).Methods("POST")
	router.HandleFunc("/subscriptions/{id}/resume", h.Resume).Methods("POST")
	router.HandleFunc("/subscriptions/{id}/cancel", h.Cancel).Methods("POST")
	router.HandleFunc("/subscriptions/{id}/line-items", h.ReplaceLineItems).Methods("PUT")
}

// Create creates a new subscription
func (h *SubscriptionHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req subscriptions.CreateSubscriptionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	sub, err := h.service.Create(r.Context(), &req, actorFromRequest(r))
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteCreated(w, sub)
}

// Get returns a subscription by ID
func (h *SubscriptionHandlers) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), id)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteSuccess(w, sub)
}

// Pause pauses an active subscription
func (h *SubscriptionHandlers) Pause(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req subscriptions.PauseRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.Pause(r.Context(), id, &req, actorFromRequest(r)); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Resume resumes a paused subscription
func (h *SubscriptionHandlers) Resume(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Resume(r.Context(), id, actorFromRequest(r)); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// cancelRequest is the body for Cancel
type cancelRequest struct {
	Reason string `json:"reason"`
}

// Cancel cancels a subscription
func (h *SubscriptionHandlers) Cancel(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req cancelRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if !httputil.RequireNonEmpty(w, req.Reason, "reason") {
		return
	}

	if err := h.service.Cancel(r.Context(), id, req.Reason, actorFromRequest(r)); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// replaceLineItemsRequest is the body for ReplaceLineItems
type replaceLineItemsRequest struct {
	LineItems []*subscriptions.LineItemInput `json:"line_items"`
}

// ReplaceLineItems replaces the full set of line items on a subscription.
// Existing invoices keep their snapshotted lines.
func (h *SubscriptionHandlers) ReplaceLineItems(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req replaceLineItemsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.UpdateLineItems(r.Context(), id, req.LineItems, actorFromRequest(r)); err != nil {
		writeSubscriptionError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// writeSubscriptionError maps subscription domain errors to HTTP statuses
func writeSubscriptionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, subscriptions.ErrValidation):
		httputil.WriteValidationError(w, err.Error())
	case errors.Is(err, subscriptions.ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, subscriptions.ErrNotActive),
		errors.Is(err, subscriptions.ErrNotPaused),
		errors.Is(err, subscriptions.ErrTerminal):
		httputil.WriteUnprocessable(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
