package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	mw "github.com/kiranshivaraju/redmeters/internal/api/middleware"
	"github.com/kiranshivaraju/redmeters/internal/api/response"
)

// Dependencies holds all handler and middleware dependencies for the router.
type Dependencies struct {
	Auth      *mw.Auth
	RateLimit *mw.RateLimit

	HealthHandler http.HandlerFunc

	ListMeters        http.HandlerFunc
	GetMeter          http.HandlerFunc
	ListMeterReadings http.HandlerFunc
	CreateMeter       http.HandlerFunc
	UpdateMeter       http.HandlerFunc

	ListCustomers    http.HandlerFunc
	GetCustomer      http.HandlerFunc
	CustomerSegments http.HandlerFunc

	ListPredictions http.HandlerFunc
	GetPrediction   http.HandlerFunc
	DetectAnomalies http.HandlerFunc
	DemandForecast  http.HandlerFunc

	ListAlerts   http.HandlerFunc
	ResolveAlert http.HandlerFunc

	Overview             http.HandlerFunc
	GridHealth           http.HandlerFunc
	TransformerAnalytics http.HandlerFunc

	CreateKeyHandler http.HandlerFunc
	ListKeysHandler  http.HandlerFunc
	RevokeKeyHandler http.HandlerFunc
}

// NewRouter builds the Chi router with middleware stack and all routes.
func NewRouter(deps Dependencies) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(mw.Logger)
	r.Use(mw.Recovery)

	// Public health check
	r.Get("/api/v1/health", orNotImplemented(deps.HealthHandler))

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(deps.Auth.Authenticate)
		r.Use(deps.RateLimit.Limit)

		r.Get("/api/v1/meters", orNotImplemented(deps.ListMeters))
		r.Post("/api/v1/meters", orNotImplemented(deps.CreateMeter))
		r.Get("/api/v1/meters/{id}", orNotImplemented(deps.GetMeter))
		r.Put("/api/v1/meters/{id}", orNotImplemented(deps.UpdateMeter))
		r.Get("/api/v1/meters/{id}/readings", orNotImplemented(deps.ListMeterReadings))

		// "segments" must register before "{id}" so chi does not treat it
		// as a customer id.
		r.Get("/api/v1/customers/segments", orNotImplemented(deps.CustomerSegments))
		r.Get("/api/v1/customers", orNotImplemented(deps.ListCustomers))
		r.Get("/api/v1/customers/{id}", orNotImplemented(deps.GetCustomer))

		r.Get("/api/v1/predictions/demand-forecast", orNotImplemented(deps.DemandForecast))
		r.Post("/api/v1/predictions/anomalies", orNotImplemented(deps.DetectAnomalies))
		r.Get("/api/v1/predictions", orNotImplemented(deps.ListPredictions))
		r.Get("/api/v1/predictions/{id}", orNotImplemented(deps.GetPrediction))

		r.Get("/api/v1/alerts", orNotImplemented(deps.ListAlerts))
		r.Put("/api/v1/alerts/{id}/resolve", orNotImplemented(deps.ResolveAlert))

		r.Get("/api/v1/analytics/overview", orNotImplemented(deps.Overview))
		r.Get("/api/v1/analytics/grid-health", orNotImplemented(deps.GridHealth))
		r.Get("/api/v1/analytics/transformers", orNotImplemented(deps.TransformerAnalytics))

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(deps.Auth.RequireScope("admin"))

			r.Post("/api/v1/admin/keys", orNotImplemented(deps.CreateKeyHandler))
			r.Get("/api/v1/admin/keys", orNotImplemented(deps.ListKeysHandler))
			r.Delete("/api/v1/admin/keys/{keyID}", orNotImplemented(deps.RevokeKeyHandler))
		})
	})

	return r
}

// orNotImplemented returns the handler if non-nil, or a 501 placeholder.
func orNotImplemented(h http.HandlerFunc) http.HandlerFunc {
	if h != nil {
		return h
	}
	return func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "Endpoint not yet implemented", nil)
	}
}
