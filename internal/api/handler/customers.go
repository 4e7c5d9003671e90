package handler

import (
	"errors"
	"math"
	"net/http"
	"sort"
	"strings"

	"github.com/kiranshivaraju/redmeters/internal/api/response"
	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// NewListCustomersHandler returns an http.HandlerFunc for GET /api/v1/customers.
func NewListCustomersHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := queryInt(r, "limit", defaultMeterLimit)
		offset := queryInt(r, "offset", 0)
		segment := r.URL.Query().Get("segment")

		customers, total, err := st.ListCustomers(r.Context(), segment, limit, offset)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to list customers", nil)
			return
		}
		if customers == nil {
			customers = []*models.Customer{}
		}

		response.Collection(w, customers, response.PaginationMeta{
			Page:    offset/max(limit, 1) + 1,
			Limit:   limit,
			Total:   total,
			HasNext: offset+len(customers) < total,
		})
	}
}

// NewGetCustomerHandler returns an http.HandlerFunc for GET /api/v1/customers/{id}.
func NewGetCustomerHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}

		customer, err := st.GetCustomer(r.Context(), id)
		if err != nil {
			notFoundOrInternal(w, err, "Customer not found")
			return
		}

		response.JSON(w, customer)
	}
}

type segmentSummary struct {
	SegmentID   string  `json:"segment_id"`
	SegmentName string  `json:"segment_name"`
	Count       int     `json:"count"`
	Percentage  float64 `json:"percentage"`
}

// NewCustomerSegmentsHandler returns an http.HandlerFunc for
// GET /api/v1/customers/segments.
func NewCustomerSegmentsHandler(st store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		counts, err := st.CustomerSegmentCounts(r.Context())
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to load segment counts", nil)
			return
		}

		total := 0
		for _, n := range counts {
			total += n
		}

		segments := make([]segmentSummary, 0, len(counts))
		for segment, n := range counts {
			pct := 0.0
			if total > 0 {
				pct = math.Round(float64(n)/float64(total)*1000) / 10
			}
			segments = append(segments, segmentSummary{
				SegmentID:   segment,
				SegmentName: segmentName(segment),
				Count:       n,
				Percentage:  pct,
			})
		}
		sort.Slice(segments, func(i, j int) bool {
			return segments[i].SegmentID < segments[j].SegmentID
		})

		response.JSON(w, map[string]any{
			"segments":        segments,
			"total_customers": total,
		})
	}
}

// segmentName turns "evening_residential_peak" into "Evening Residential Peak".
func segmentName(segment string) string {
	if segment == "" {
		return "Unsegmented"
	}
	words := strings.Split(segment, "_")
	for i, word := range words {
		if word != "" {
			words[i] = strings.ToUpper(word[:1]) + word[1:]
		}
	}
	return strings.Join(words, " ")
}

func notFoundOrInternal(w http.ResponseWriter, err error, msg string) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", msg, nil)
		return
	}
	response.Error(w, http.StatusInternalServerError,
		"INTERNAL_ERROR", "An unexpected error occurred", nil)
}
