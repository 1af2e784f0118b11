package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/fieldvine/fieldvine/pkg/billing"
	"github.com/fieldvine/fieldvine/pkg/httputil"
	"github.com/fieldvine/fieldvine/pkg/observability"
	"github.com/fieldvine/fieldvine/pkg/schedule"
	"github.com/fieldvine/fieldvine/pkg/subscriptions"
)

// maxBodyBytes bounds request bodies; the largest legitimate payload is a
// line-item replacement, which stays well under this.
const maxBodyBytes = 1 << 20

// Server is the HTTP API server
type Server struct {
	router  *mux.Router
	metrics *observability.Metrics
	logger  *logrus.Logger

	subscriptionHandlers *SubscriptionHandlers
	scheduleHandlers     *ScheduleHandlers
	billingHandlers      *BillingHandlers
	portalHandlers       *PortalHandlers
}

// NewServer creates a new API server wired to the given services
func NewServer(subs subscriptions.Service, executor *schedule.Executor, invoices *billing.Generator, metrics *observability.Metrics, logger *logrus.Logger) *Server {
	if metrics == nil {
		metrics = observability.NewMetrics(nil)
	}
	if logger == nil {
		logger = logrus.New()
	}

	s := &Server{
		router:               mux.NewRouter(),
		metrics:              metrics,
		logger:               logger,
		subscriptionHandlers: NewSubscriptionHandlers(subs),
		scheduleHandlers:     NewScheduleHandlers(executor),
		billingHandlers:      NewBillingHandlers(invoices),
		portalHandlers:       NewPortalHandlers(subs),
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.RecoveryMiddleware(s.logger),
		httputil.ContentTypeMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
		s.metricsMiddleware,
	)
}

func (s *Server) setupRoutes() {
	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	s.subscriptionHandlers.RegisterRoutes(v1)
	s.scheduleHandlers.RegisterRoutes(v1)
	s.billingHandlers.RegisterRoutes(v1)
	s.portalHandlers.RegisterRoutes(v1)
}

// metricsMiddleware records request count and duration labeled by route
// template rather than raw path, keeping label cardinality bounded
func (s *Server) metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		s.metrics.InstrumentHandler(path, next).ServeHTTP(w, r)
	})
}

// Router returns the configured HTTP handler
func (s *Server) Router() http.Handler {
	return s.router
}
