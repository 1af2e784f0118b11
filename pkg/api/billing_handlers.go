package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldvine/fieldvine/pkg/billing"
	"github.com/fieldvine/fieldvine/pkg/httputil"
)

// BillingHandlers handles invoice HTTP requests
type BillingHandlers struct {
	invoices *billing.Generator
}

// NewBillingHandlers creates a new BillingHandlers
func NewBillingHandlers(invoices *billing.Generator) *BillingHandlers {
	return &BillingHandlers{invoices: invoices}
}

// RegisterRoutes registers billing routes
func (h *BillingHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/subscriptions/{id}/invoices", h.GenerateInvoice).Methods("POST")
	router.HandleFunc("/invoices/{id}", h.GetInvoice).Methods("GET")
}

// generateInvoiceRequest is the body for GenerateInvoice. All fields are
// optional; omitted period bounds are derived from the subscription's
// billing state.
type generateInvoiceRequest struct {
	PeriodStart     *string `json:"period_start,omitempty"`
	PeriodEnd       *string `json:"period_end,omitempty"`
	ScheduleEntryID *int64  `json:"schedule_entry_id,omitempty"`
}

// GenerateInvoice issues an invoice for a subscription immediately instead
// of waiting for the billing sweep
func (h *BillingHandlers) GenerateInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var body generateInvoiceRequest
	if !httputil.ParseJSONOrError(w, r, &body) {
		return
	}

	req := &billing.GenerateInvoiceRequest{
		SubscriptionID:  id,
		ScheduleEntryID: body.ScheduleEntryID,
	}
	var err error
	if req.PeriodStart, err = parseOptionalDate(body.PeriodStart); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if req.PeriodEnd, err = parseOptionalDate(body.PeriodEnd); err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}

	invoice, err := h.invoices.GenerateInvoice(r.Context(), req, actorFromRequest(r))
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.WriteCreated(w, invoice)
}

// GetInvoice returns an invoice with its line items
func (h *BillingHandlers) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	invoice, err := h.invoices.GetInvoice(r.Context(), id)
	if err != nil {
		writeBillingError(w, err)
		return
	}
	httputil.WriteSuccess(w, invoice)
}

func parseOptionalDate(value *string) (*time.Time, error) {
	if value == nil || *value == "" {
		return nil, nil
	}
	t, err := httputil.ParseDate(*value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// writeBillingError maps billing domain errors to HTTP statuses
func writeBillingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, billing.ErrSubscriptionNotFound),
		errors.Is(err, billing.ErrInvoiceNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, billing.ErrSubscriptionTerminal):
		httputil.WriteUnprocessable(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}
