package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

const (
	defaultMeterLimit   = 100
	defaultReadingLimit = 1000
	readingWindow       = 7 * 24 * time.Hour
)

// NewListMetersHandler returns an http.HandlerFunc for GET /api/v1/meters.
func NewListMetersHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", defaultMeterLimit)
		offset := queryInt(r, "offset", 0)

		meters, total, err := st.ListMeters(r.Context(), limit, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list meters", nil)
			return
		}
		if meters == nil {
			meters = []*models.SmartMeter{}
		}

		response.Collection(w, meters, response.PaginationMeta{
			Page:    offset/max(limit, 1) + 1,
			Limit:   limit,
			Total:   total,
			HasNext: offset+len(meters) < total,
		})
	}
}

// NewGetMeterHandler returns an http.HandlerFunc for GET /api/v1/meters/{id}.
// With include_readings=true, the trailing week of readings rides along.
func NewGetMeterHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		meter, err := st.GetMeter(r.Context(), id)
		if err != nil {
			meterError(w, err)
			return
		}

		if r.URL.Query().Get("include_readings") != "true" {
			response.JSON(w, meter)
			return
		}

		now := time.Now().UTC()
		readings, err := st.ListMeterReadings(r.Context(), meter.ID, now.Add(-readingWindow), now, defaultReadingLimit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load readings", nil)
			return
		}
		if readings == nil {
			readings = []*models.MeterReading{}
		}

		response.JSON(w, map[string]any{
			"meter":    meter,
			"readings": readings,
		})
	}
}

// NewListMeterReadingsHandler returns an http.HandlerFunc for
// GET /api/v1/meters/{id}/readings.
func NewListMeterReadingsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		meter, err := st.GetMeter(r.Context(), id)
		if err != nil {
			meterError(w, err)
			return
		}

		now := time.Now().UTC()
		from := now.Add(-readingWindow)
		to := now
		if v := r.URL.Query().Get("from"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "from must be a valid RFC3339 timestamp", nil)
				return
			}
			from = t
		}
		if v := r.URL.Query().Get("to"); v != "" {
			t, err := time.Parse(time.RFC3339, v)
			if err != nil {
				response.Error(w, http.StatusBadRequest,
					"INVALID_REQUEST", "to must be a valid RFC3339 timestamp", nil)
				return
			}
			to = t
		}
		limit := queryInt(r, "limit", defaultReadingLimit)

		readings, err := st.ListMeterReadings(r.Context(), meter.ID, from, to, limit)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list readings", nil)
			return
		}
		if readings == nil {
			readings = []*models.MeterReading{}
		}

		response.JSON(w, map[string]any{
			"meter_id":     meter.ID,
			"meter_number": meter.MeterNumber,
			"readings":     readings,
			"count":        len(readings),
		})
	}
}

type meterRequest struct {
	MeterNumber   string     `json:"meter_number"`
	CustomerID    *int64     `json:"customer_id"`
	TransformerID *int64     `json:"transformer_id"`
	MeterType     string     `json:"meter_type"`
	Status        string     `json:"status"`
	InstalledAt   *time.Time `json:"installed_at"`
}

// NewCreateMeterHandler returns an http.HandlerFunc for POST /api/v1/meters.
func NewCreateMeterHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req meterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}
		if req.MeterNumber == "" {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "meter_number is required", nil)
			return
		}
		if req.Status == "" {
			req.Status = models.MeterStatusActive
		}

		meter := &models.SmartMeter{
			MeterNumber:   req.MeterNumber,
			CustomerID:    req.CustomerID,
			TransformerID: req.TransformerID,
			MeterType:     req.MeterType,
			Status:        req.Status,
			InstalledAt:   req.InstalledAt,
		}
		if err := st.CreateMeter(r.Context(), meter); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict,
					"DUPLICATE_METER", "A meter with that number already exists", nil)
				return
			}
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to create meter", nil)
			return
		}

		response.Created(w, meter)
	}
}

// NewUpdateMeterHandler returns an http.HandlerFunc for PUT /api/v1/meters/{id}.
func NewUpdateMeterHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		meter, err := st.GetMeter(r.Context(), id)
		if err != nil {
			meterError(w, err)
			return
		}

		var req meterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest,
				"INVALID_REQUEST", "Invalid JSON body", nil)
			return
		}

		if req.MeterNumber != "" {
			meter.MeterNumber = req.MeterNumber
		}
		if req.CustomerID != nil {
			meter.CustomerID = req.CustomerID
		}
		if req.TransformerID != nil {
			meter.TransformerID = req.TransformerID
		}
		if req.MeterType != "" {
			meter.MeterType = req.MeterType
		}
		if req.Status != "" {
			meter.Status = req.Status
		}
		if req.InstalledAt != nil {
			meter.InstalledAt = req.InstalledAt
		}

		if err := st.UpdateMeter(r.Context(), meter); err != nil {
			if errors.Is(err, store.ErrDuplicateKey) {
				response.Error(w, http.StatusConflict,
					"DUPLICATE_METER", "A meter with that number already exists", nil)
				return
			}
			meterError(w, err)
			return
		}

		response.JSON(w, meter)
	}
}

func meterError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Meter not found", nil)
		return
	}
	response.Error(w, http.StatusInternalServerError,
		"INTERNAL_ERROR", "An unexpected error occurred", nil)
}

// pathID parses a positive int64 path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil || id <= 0 {
		response.Error(w, http.StatusBadRequest,
			"INVALID_REQUEST", name+" must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, name string, defaultVal int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}
