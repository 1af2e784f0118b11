package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fieldvine/fieldvine/pkg/httputil"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// defaultUpcoming is how many upcoming visits the portal shows per
// subscription when the client does not ask for a specific count
const defaultUpcoming = 3

// maxUpcoming caps the upcoming visit count per subscription
const maxUpcoming = 26

// PortalHandlers serves the customer portal read model
type PortalHandlers struct {
	service subscriptions.Service
}

// NewPortalHandlers creates a new PortalHandlers
func NewPortalHandlers(service subscriptions.Service) *PortalHandlers {
	return &PortalHandlers{service: service}
}

// RegisterRoutes registers portal routes
func (h *PortalHandlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/customers/{id}/subscriptions", h.ListSubscriptions).Methods("GET")
}

// ListSubscriptions returns a customer's subscriptions with their upcoming
// visits
func (h *PortalHandlers) ListSubscriptions(w http.ResponseWriter, r *http.Request) {
	customerID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	businessID, err := httputil.ParseQueryInt64(r, "business_id", 0)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if !httputil.RequirePositive(w, businessID, "business_id") {
		return
	}

	upcoming, err := httputil.ParseQueryInt(r, "upcoming", defaultUpcoming)
	if err != nil {
		httputil.WriteValidationError(w, err.Error())
		return
	}
	if upcoming < 0 {
		httputil.WriteValidationError(w, "upcoming must not be negative")
		return
	}
	if upcoming > maxUpcoming {
		upcoming = maxUpcoming
	}

	subs, err := h.service.ListByCustomer(r.Context(), businessID, customerID, upcoming)
	if err != nil {
		writeSubscriptionError(w, err)
		return
	}
	if subs == nil {
		subs = []*subscriptions.CustomerSubscription{}
	}
	httputil.WriteSuccess(w, subs)
}
