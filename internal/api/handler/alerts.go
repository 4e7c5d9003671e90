package handler

import (
	"encoding/json"
	"net/http"

	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// NewListAlertsHandler returns an http.HandlerFunc for GET /api/v1/alerts.
func NewListAlertsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := store.AlertFilter{
			ActiveOnly: r.URL.Query().Get("active") == "true",
			Severity:   r.URL.Query().Get("severity"),
			Limit:      queryInt(r, "limit", 50),
		}

		alerts, err := st.ListAlerts(r.Context(), filter)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list alerts", nil)
			return
		}
		if alerts == nil {
			alerts = []*models.Alert{}
		}

		active, critical, err := st.CountActiveAlerts(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to count alerts", nil)
			return
		}

		response.JSON(w, map[string]any{
			"alerts":         alerts,
			"active_count":   active,
			"critical_count": critical,
		})
	}
}

// NewResolveAlertHandler returns an http.HandlerFunc for
// PUT /api/v1/alerts/{id}/resolve.
func NewResolveAlertHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		var req struct {
			ResolvedBy string `json:"resolved_by"`
		}
		if r.Body != nil && r.ContentLength != 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "Invalid JSON body", nil)
				return
			}
		}
		if req.ResolvedBy == "" {
			req.ResolvedBy = "system"
		}

		alert, err := st.ResolveAlert(r.Context(), id, req.ResolvedBy)
		if err != nil {
			notFoundOrInternal(w, err, "Alert not found")
			return
		}

		response.JSON(w, alert)
	}
}
