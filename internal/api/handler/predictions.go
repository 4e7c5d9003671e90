package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

const defaultForecastHours = 72

// Detector runs an on-demand anomaly detection pass.
type Detector interface {
	Detect(ctx context.Context, meterIDs []int64) ([]models.AnomalyResult, error)
}

// NewListPredictionsHandler returns an http.HandlerFunc for GET /api/v1/predictions.
func NewListPredictionsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		predictionType := r.URL.Query().Get("type")
		limit := queryInt(r, "limit", 50)

		predictions, err := st.ListPredictions(r.Context(), predictionType, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list predictions", nil)
			return
		}
		if predictions == nil {
			predictions = []*models.Prediction{}
		}

		response.JSON(w, map[string]any{
			"predictions": predictions,
			"total":       len(predictions),
		})
	}
}

// NewGetPredictionHandler returns an http.HandlerFunc for GET /api/v1/predictions/{id}.
func NewGetPredictionHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		prediction, err := st.GetPrediction(r.Context(), id)
		if err != nil {
			notFoundOrInternal(w, err, "Prediction not found")
			return
		}

		response.JSON(w, prediction)
	}
}

// NewDetectAnomaliesHandler returns an http.HandlerFunc for
// POST /api/v1/predictions/anomalies. Runs a synchronous detection pass over
// the trailing hour of readings, optionally restricted to the given meters.
func NewDetectAnomaliesHandler(detector Detector) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			MeterIDs []int64 `json:"meter_ids"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}

		results, err := detector.Detect(r.Context(), req.MeterIDs)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"DETECTION_FAILED", "Anomaly detection pass failed", nil)
			return
		}

		anomalies := 0
		for _, res := range results {
			if res.IsAnomaly {
				anomalies++
			}
		}

		response.JSON(w, map[string]any{
			"anomalies_detected": anomalies,
			"results":            results,
		})
	}
}

// NewDemandForecastHandler returns an http.HandlerFunc for
// GET /api/v1/predictions/demand-forecast.
func NewDemandForecastHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		hours := queryInt(r, "hours", defaultForecastHours)
		now := time.Now().UTC()

		forecasts, err := st.ListDemandForecasts(r.Context(), now.Add(time.Duration(hours)*time.Hour))
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list demand forecasts", nil)
			return
		}
		if forecasts == nil {
			forecasts = []*models.DemandForecast{}
		}

		response.JSON(w, map[string]any{
			"forecasts":    forecasts,
			"hours_ahead":  hours,
			"generated_at": now.Format(time.RFC3339),
		})
	}
}
