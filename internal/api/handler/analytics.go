package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/cache"
	"github.com/kiranshivaraju/redmeters/internal/store"
)

// overviewTTL bounds the staleness of the dashboard overview. The aggregate
// query touches every table, so it is not recomputed on every request.
const overviewTTL = 30 * time.Second

// gridHealthTTL is shorter: the trailing-hour aggregate moves with every
// simulator batch and dashboards poll it frequently.
const gridHealthTTL = 15 * time.Second

// NewOverviewHandler returns an http.HandlerFunc for GET /api/v1/analytics/overview.
func NewOverviewHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cached, ok, err := ca.Get(r.Context(), cache.OverviewKey()); err == nil && ok {
			var stats store.OverviewStats
			if json.Unmarshal(cached, &stats) == nil {
				response.JSON(w, &stats)
				return
			}
		}

		stats, err := st.OverviewStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to compute overview", nil)
			return
		}

		if encoded, err := json.Marshal(stats); err == nil {
			// Cache write failures are not worth failing the request over.
			_ = ca.Set(r.Context(), cache.OverviewKey(), encoded, overviewTTL)
		}

		response.JSON(w, stats)
	}
}

// NewGridHealthHandler returns an http.HandlerFunc for
// GET /api/v1/analytics/grid-health.
func NewGridHealthHandler(st store.Store, ca cache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		now := time.Now().UTC()

		var stats *store.GridHealthStats
		if cached, ok, err := ca.Get(r.Context(), cache.GridHealthKey()); err == nil && ok {
			var s store.GridHealthStats
			if json.Unmarshal(cached, &s) == nil {
				stats = &s
			}
		}

		if stats == nil {
			var err error
			stats, err = st.GridHealthStats(r.Context(), now.Add(-time.Hour))
			if err != nil {
				response.Error(w, http.StatusInternalServerError,
					"INTERNAL_ERROR", "Failed to compute grid health", nil)
				return
			}
			if encoded, err := json.Marshal(stats); err == nil {
				_ = ca.Set(r.Context(), cache.GridHealthKey(), encoded, gridHealthTTL)
			}
		}

		response.JSON(w, map[string]any{
			"timestamp":             now.Format(time.RFC3339),
			"readings_last_hour":    stats.ReadingsLastHour,
			"avg_voltage":           stats.AvgVoltage,
			"voltage_range":         map[string]float64{"min": stats.MinVoltage, "max": stats.MaxVoltage},
			"avg_power_factor":      stats.AvgPowerFactor,
			"total_consumption_kwh": stats.TotalConsumptionKWh,
			"total_demand_kw":       stats.TotalDemandKW,
			"anomaly_rate":          stats.AnomalyRate,
		})
	}
}

// NewTransformerAnalyticsHandler returns an http.HandlerFunc for
// GET /api/v1/analytics/transformers.
func NewTransformerAnalyticsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := st.TransformerStats(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to compute transformer stats", nil)
			return
		}

		response.JSON(w, stats)
	}
}
