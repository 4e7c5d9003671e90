package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/redmeters/internal/api"
	"github.com/kiranshivaraju/redmeters/internal/api/handler"
	mw "github.com/kiranshivaraju/redmeters/internal/api/middleware"
	"github.com/kiranshivaraju/redmeters/internal/cache"
	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// ─── test fixtures ───────────────────────────────────────────────────────────

var testRawKey = "rm_test_contract_key_1234567890"

func testKeyHash() string {
	h, _ := bcrypt.GenerateFromPassword([]byte(testRawKey), bcrypt.MinCost)
	return string(h)
}

// ─── mock store ──────────────────────────────────────────────────────────────

type mockStore struct {
	meters    map[int64]*models.SmartMeter
	readings  []*models.MeterReading
	alerts    map[int64]*models.Alert
	customers map[int64]*models.Customer
	keys      []*models.APIKey

	nextMeterID int64
	nextAlertID int64
}

func newMockStore() *mockStore {
	return &mockStore{
		meters:      make(map[int64]*models.SmartMeter),
		alerts:      make(map[int64]*models.Alert),
		customers:   make(map[int64]*models.Customer),
		nextMeterID: 1,
		nextAlertID: 1,
		keys: []*models.APIKey{{
			ID:        uuid.New(),
			Name:      "test-key",
			KeyHash:   testKeyHash(),
			KeyPrefix: testRawKey[:8],
			Scopes:    []string{"read", "admin"},
		}},
	}
}

func (s *mockStore) Ping(_ context.Context) error { return nil }

func (s *mockStore) ListMeters(_ context.Context, limit, offset int) ([]*models.SmartMeter, int, error) {
	var all []*models.SmartMeter
	for i := int64(1); i < s.nextMeterID; i++ {
		if m, ok := s.meters[i]; ok {
			all = append(all, m)
		}
	}
	total := len(all)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return all[offset:end], total, nil
}

func (s *mockStore) GetMeter(_ context.Context, id int64) (*models.SmartMeter, error) {
	m, ok := s.meters[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return m, nil
}

func (s *mockStore) CreateMeter(_ context.Context, m *models.SmartMeter) error {
	for _, existing := range s.meters {
		if existing.MeterNumber == m.MeterNumber {
			return store.ErrDuplicateKey
		}
	}
	m.ID = s.nextMeterID
	s.nextMeterID++
	m.CreatedAt = time.Now()
	m.UpdatedAt = m.CreatedAt
	s.meters[m.ID] = m
	return nil
}

func (s *mockStore) UpdateMeter(_ context.Context, m *models.SmartMeter) error {
	if _, ok := s.meters[m.ID]; !ok {
		return store.ErrNotFound
	}
	s.meters[m.ID] = m
	return nil
}

func (s *mockStore) ListActiveMeters(_ context.Context) ([]*models.SmartMeter, error) {
	var out []*models.SmartMeter
	for _, m := range s.meters {
		if m.Status == models.MeterStatusActive {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *mockStore) InsertReading(_ context.Context, r *models.MeterReading) error {
	r.ID = int64(len(s.readings) + 1)
	s.readings = append(s.readings, r)
	return nil
}

func (s *mockStore) ListRecentReadings(_ context.Context, _ []int64, _ time.Time, _ int) ([]*models.MeterReading, error) {
	return s.readings, nil
}

func (s *mockStore) ListMeterReadings(_ context.Context, meterID int64, _, _ time.Time, _ int) ([]*models.MeterReading, error) {
	var out []*models.MeterReading
	for _, r := range s.readings {
		if r.MeterID == meterID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *mockStore) AverageConsumption(_ context.Context, _ int64, _ time.Time) (float64, bool, error) {
	return 0, false, nil
}

func (s *mockStore) UpdateReadingQuality(_ context.Context, _ int64, _ string) error { return nil }

func (s *mockStore) CreateAlert(_ context.Context, a *models.Alert) error {
	a.ID = s.nextAlertID
	s.nextAlertID++
	a.CreatedAt = time.Now()
	s.alerts[a.ID] = a
	return nil
}

func (s *mockStore) GetAlert(_ context.Context, id int64) (*models.Alert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return a, nil
}

func (s *mockStore) ListAlerts(_ context.Context, filter store.AlertFilter) ([]*models.Alert, error) {
	var out []*models.Alert
	for i := int64(1); i < s.nextAlertID; i++ {
		a, ok := s.alerts[i]
		if !ok {
			continue
		}
		if filter.ActiveOnly && !a.Active() {
			continue
		}
		if filter.Severity != "" && a.Severity != filter.Severity {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *mockStore) ResolveAlert(_ context.Context, id int64, by string) (*models.Alert, error) {
	a, ok := s.alerts[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	now := time.Now()
	a.ResolvedAt = &now
	a.ResolvedBy = &by
	return a, nil
}

func (s *mockStore) CountActiveAlerts(_ context.Context) (int, int, error) {
	active, critical := 0, 0
	for _, a := range s.alerts {
		if a.Active() {
			active++
			if a.Severity == models.SeverityCritical {
				critical++
			}
		}
	}
	return active, critical, nil
}

func (s *mockStore) DeleteResolvedAlertsBefore(_ context.Context, _ time.Time) (int64, error) {
	return 0, nil
}

func (s *mockStore) ListCustomers(_ context.Context, _ string, _, _ int) ([]*models.Customer, int, error) {
	var out []*models.Customer
	for _, c := range s.customers {
		out = append(out, c)
	}
	return out, len(out), nil
}

func (s *mockStore) GetCustomer(_ context.Context, id int64) (*models.Customer, error) {
	c, ok := s.customers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return c, nil
}

func (s *mockStore) CustomerSegmentCounts(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, c := range s.customers {
		segment := ""
		if c.SegmentID != nil {
			segment = *c.SegmentID
		}
		counts[segment]++
	}
	return counts, nil
}

func (s *mockStore) ListTransformers(_ context.Context) ([]*models.Transformer, error) {
	return nil, nil
}

func (s *mockStore) GetTransformer(_ context.Context, _ int64) (*models.Transformer, error) {
	return nil, store.ErrNotFound
}

func (s *mockStore) TransformerStats(_ context.Context) (*store.TransformerStats, error) {
	return &store.TransformerStats{ByStatus: map[string]int{}}, nil
}

func (s *mockStore) CreatePrediction(_ context.Context, _ *models.Prediction) error { return nil }

func (s *mockStore) GetPrediction(_ context.Context, _ int64) (*models.Prediction, error) {
	return nil, store.ErrNotFound
}

func (s *mockStore) ListPredictions(_ context.Context, _ string, _ int) ([]*models.Prediction, error) {
	return nil, nil
}

func (s *mockStore) ListDemandForecasts(_ context.Context, _ time.Time) ([]*models.DemandForecast, error) {
	return nil, nil
}

func (s *mockStore) OverviewStats(_ context.Context) (*store.OverviewStats, error) {
	return &store.OverviewStats{
		TotalMeters:  len(s.meters),
		ActiveMeters: len(s.meters),
	}, nil
}

func (s *mockStore) GridHealthStats(_ context.Context, _ time.Time) (*store.GridHealthStats, error) {
	return &store.GridHealthStats{ReadingsLastHour: len(s.readings), AvgVoltage: 230.0}, nil
}

func (s *mockStore) ResolveAsset(ctx context.Context, ref models.AssetRef) (models.Asset, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	return s.GetMeter(ctx, ref.ID)
}

func (s *mockStore) GetAPIKeyByPrefix(_ context.Context, prefix string) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.KeyPrefix == prefix && k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) UpdateAPIKeyLastUsed(_ context.Context, _ uuid.UUID) error { return nil }

func (s *mockStore) CreateAPIKey(_ context.Context, key *models.APIKey) error {
	for _, existing := range s.keys {
		if existing.Name == key.Name && existing.DeletedAt == nil {
			return store.ErrDuplicateKey
		}
	}
	s.keys = append(s.keys, key)
	return nil
}

func (s *mockStore) ListAPIKeys(_ context.Context) ([]*models.APIKey, error) {
	var out []*models.APIKey
	for _, k := range s.keys {
		if k.DeletedAt == nil {
			out = append(out, k)
		}
	}
	return out, nil
}

func (s *mockStore) RevokeAPIKey(_ context.Context, id uuid.UUID) error {
	for _, k := range s.keys {
		if k.ID == id && k.DeletedAt == nil {
			now := time.Now()
			k.DeletedAt = &now
			return nil
		}
	}
	return store.ErrNotFound
}

var _ store.Store = (*mockStore)(nil)

// ─── mock cache ──────────────────────────────────────────────────────────────

type mockCache struct {
	entries  map[string][]byte
	counters map[string]int64
}

func newMockCache() *mockCache {
	return &mockCache{
		entries:  make(map[string][]byte),
		counters: make(map[string]int64),
	}
}

func (c *mockCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.entries[key] = value
	return nil
}

func (c *mockCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := c.entries[key]
	return v, ok, nil
}

func (c *mockCache) Delete(_ context.Context, key string) error {
	delete(c.entries, key)
	return nil
}

func (c *mockCache) Ping(_ context.Context) error { return nil }

func (c *mockCache) IncrWithExpiry(_ context.Context, key string, _ time.Duration) (int64, error) {
	c.counters[key]++
	return c.counters[key], nil
}

var _ cache.Cache = (*mockCache)(nil)

// ─── mock detector ───────────────────────────────────────────────────────────

type mockDetector struct {
	results []models.AnomalyResult
	err     error
	gotIDs  []int64
}

func (d *mockDetector) Detect(_ context.Context, meterIDs []int64) ([]models.AnomalyResult, error) {
	d.gotIDs = meterIDs
	return d.results, d.err
}

// ─── test harness ────────────────────────────────────────────────────────────

type testServer struct {
	server   *httptest.Server
	store    *mockStore
	cache    *mockCache
	detector *mockDetector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	ms := newMockStore()
	mc := newMockCache()
	md := &mockDetector{}

	deps := api.Dependencies{
		Auth:      mw.NewAuth(ms),
		RateLimit: mw.NewRateLimit(mc, 100),

		ListMeters:        handler.NewListMetersHandler(ms),
		GetMeter:          handler.NewGetMeterHandler(ms),
		ListMeterReadings: handler.NewListMeterReadingsHandler(ms),
		CreateMeter:       handler.NewCreateMeterHandler(ms),
		UpdateMeter:       handler.NewUpdateMeterHandler(ms),

		ListCustomers:    handler.NewListCustomersHandler(ms),
		GetCustomer:      handler.NewGetCustomerHandler(ms),
		CustomerSegments: handler.NewCustomerSegmentsHandler(ms),

		ListPredictions: handler.NewListPredictionsHandler(ms),
		GetPrediction:   handler.NewGetPredictionHandler(ms),
		DetectAnomalies: handler.NewDetectAnomaliesHandler(md),
		DemandForecast:  handler.NewDemandForecastHandler(ms),

		ListAlerts:   handler.NewListAlertsHandler(ms),
		ResolveAlert: handler.NewResolveAlertHandler(ms),

		Overview:             handler.NewOverviewHandler(ms, mc),
		GridHealth:           handler.NewGridHealthHandler(ms, mc),
		TransformerAnalytics: handler.NewTransformerAnalyticsHandler(ms),

		CreateKeyHandler: handler.NewCreateKeyHandler(ms),
		ListKeysHandler:  handler.NewListKeysHandler(ms),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(ms),
	}

	router := api.NewRouter(deps)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &testServer{server: srv, store: ms, cache: mc, detector: md}
}

func (ts *testServer) authRequest(method, path string, body any) *http.Request {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, ts.server.URL+path, &buf)
	req.Header.Set("Authorization", "Bearer "+testRawKey)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (ts *testServer) unauthRequest(method, path string) *http.Request {
	req, _ := http.NewRequest(method, ts.server.URL+path, nil)
	return req
}

func parseBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func (ts *testServer) seedMeter(t *testing.T, number string) *models.SmartMeter {
	t.Helper()
	m := &models.SmartMeter{
		MeterNumber: number,
		MeterType:   "residential",
		Status:      models.MeterStatusActive,
	}
	require.NoError(t, ts.store.CreateMeter(context.Background(), m))
	return m
}

// ─── GET /api/v1/meters ──────────────────────────────────────────────────────

func TestListMeters_200_Paginated(t *testing.T) {
	ts := newTestServer(t)
	for _, n := range []string{"SM-0001", "SM-0002", "SM-0003"} {
		ts.seedMeter(t, n)
	}

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters?limit=2", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].([]any)
	assert.Len(t, data, 2)

	meta := body["meta"].(map[string]any)
	assert.Equal(t, float64(3), meta["total"])
	assert.Equal(t, true, meta["has_next"])
}

// ─── POST /api/v1/meters ─────────────────────────────────────────────────────

func TestCreateMeter_201(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/meters", map[string]any{
		"meter_number": "SM-NEW",
		"meter_type":   "commercial",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SM-NEW", data["meter_number"])
	assert.Equal(t, "active", data["status"]) // default when omitted
	assert.NotZero(t, data["id"])
}

func TestCreateMeter_400_MissingNumber(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/meters", map[string]any{
		"meter_type": "residential",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "INVALID_REQUEST", errObj["code"])
}

func TestCreateMeter_409_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMeter(t, "SM-DUP")

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/meters", map[string]any{
		"meter_number": "SM-DUP",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DUPLICATE_METER", errObj["code"])
}

// ─── GET /api/v1/meters/{id} ─────────────────────────────────────────────────

func TestGetMeter_200(t *testing.T) {
	ts := newTestServer(t)
	m := ts.seedMeter(t, "SM-GET")

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/1", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, m.MeterNumber, data["meter_number"])
}

func TestGetMeter_200_WithReadings(t *testing.T) {
	ts := newTestServer(t)
	m := ts.seedMeter(t, "SM-INC")
	require.NoError(t, ts.store.InsertReading(context.Background(), &models.MeterReading{
		MeterID: m.ID, ReadingTime: time.Now(), ConsumptionKWh: 0.5,
		Voltage: 230, PowerFactor: 0.95, QualityFlag: models.QualityNormal,
	}))

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/1?include_readings=true", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.NotNil(t, data["meter"])
	readings := data["readings"].([]any)
	assert.Len(t, readings, 1)
}

func TestGetMeter_404(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/999", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "NOT_FOUND", errObj["code"])
}

func TestGetMeter_400_BadID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/abc", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── PUT /api/v1/meters/{id} ─────────────────────────────────────────────────

func TestUpdateMeter_200_Partial(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMeter(t, "SM-UPD")

	resp, err := http.DefaultClient.Do(ts.authRequest("PUT", "/api/v1/meters/1", map[string]any{
		"status": "maintenance",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "maintenance", data["status"])
	assert.Equal(t, "SM-UPD", data["meter_number"]) // untouched fields survive
}

// ─── GET /api/v1/meters/{id}/readings ────────────────────────────────────────

func TestListMeterReadings_200(t *testing.T) {
	ts := newTestServer(t)
	m := ts.seedMeter(t, "SM-RD")
	require.NoError(t, ts.store.InsertReading(context.Background(), &models.MeterReading{
		MeterID: m.ID, ReadingTime: time.Now(), ConsumptionKWh: 0.5,
		Voltage: 230, PowerFactor: 0.95, QualityFlag: models.QualityNormal,
	}))

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/1/readings", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "SM-RD", data["meter_number"])
	assert.Equal(t, float64(1), data["count"])
}

func TestListMeterReadings_400_BadTimestamp(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMeter(t, "SM-TS")

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters/1/readings?from=yesterday", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// ─── GET /api/v1/customers/segments ──────────────────────────────────────────

func TestCustomerSegments_200(t *testing.T) {
	ts := newTestServer(t)
	segment := "ev_charging_households"
	ts.store.customers[1] = &models.Customer{ID: 1, SegmentID: &segment}
	ts.store.customers[2] = &models.Customer{ID: 2, SegmentID: &segment}
	ts.store.customers[3] = &models.Customer{ID: 3}

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/customers/segments", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(3), data["total_customers"])

	segments := data["segments"].([]any)
	require.Len(t, segments, 2)
	// Sorted by segment id: "" (unsegmented) first.
	first := segments[0].(map[string]any)
	assert.Equal(t, "Unsegmented", first["segment_name"])
	second := segments[1].(map[string]any)
	assert.Equal(t, "Ev Charging Households", second["segment_name"])
	assert.Equal(t, 66.7, second["percentage"])
}

// ─── POST /api/v1/predictions/anomalies ──────────────────────────────────────

func TestDetectAnomalies_200(t *testing.T) {
	ts := newTestServer(t)
	ts.detector.results = []models.AnomalyResult{
		{MeterID: 1, AnomalyScore: 0.95, IsAnomaly: true, DetectionMethod: models.DetectionRuleBased},
		{MeterID: 2, AnomalyScore: 0.1, IsAnomaly: false, DetectionMethod: models.DetectionRuleBased},
	}

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/predictions/anomalies", map[string]any{
		"meter_ids": []int64{1, 2},
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["anomalies_detected"])
	assert.Len(t, data["results"].([]any), 2)
	assert.Equal(t, []int64{1, 2}, ts.detector.gotIDs)
}

func TestDetectAnomalies_500_DetectorError(t *testing.T) {
	ts := newTestServer(t)
	ts.detector.err = context.DeadlineExceeded

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/predictions/anomalies", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DETECTION_FAILED", errObj["code"])
}

// ─── GET /api/v1/alerts ──────────────────────────────────────────────────────

func TestListAlerts_200_WithCounts(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.CreateAlert(context.Background(), &models.Alert{
		Title: "Voltage Anomaly", Severity: models.SeverityCritical,
		Source: models.SourceAnomalyDetection,
		Asset:  models.AssetRef{Type: models.AssetSmartMeter, ID: 1},
	}))
	require.NoError(t, ts.store.CreateAlert(context.Background(), &models.Alert{
		Title: "Power_factor Anomaly", Severity: models.SeverityWarning,
		Source: models.SourceAnomalyDetection,
		Asset:  models.AssetRef{Type: models.AssetSmartMeter, ID: 2},
	}))

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/alerts", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Len(t, data["alerts"].([]any), 2)
	assert.Equal(t, float64(2), data["active_count"])
	assert.Equal(t, float64(1), data["critical_count"])
}

// ─── PUT /api/v1/alerts/{id}/resolve ─────────────────────────────────────────

func TestResolveAlert_200(t *testing.T) {
	ts := newTestServer(t)
	require.NoError(t, ts.store.CreateAlert(context.Background(), &models.Alert{
		Title: "Voltage Anomaly", Severity: models.SeverityWarning,
		Source: models.SourceAnomalyDetection,
		Asset:  models.AssetRef{Type: models.AssetSmartMeter, ID: 1},
	}))

	resp, err := http.DefaultClient.Do(ts.authRequest("PUT", "/api/v1/alerts/1/resolve", map[string]any{
		"resolved_by": "oncall",
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, "oncall", data["resolved_by"])
	assert.NotNil(t, data["resolved_at"])
}

func TestResolveAlert_404(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("PUT", "/api/v1/alerts/999/resolve", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// ─── GET /api/v1/analytics/overview ──────────────────────────────────────────

func TestOverview_200_PopulatesCache(t *testing.T) {
	ts := newTestServer(t)
	ts.seedMeter(t, "SM-OV")

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analytics/overview", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(1), data["total_meters"])

	_, cached := ts.cache.entries[cache.OverviewKey()]
	assert.True(t, cached, "overview should be written to cache")
}

func TestOverview_200_ServedFromCache(t *testing.T) {
	ts := newTestServer(t)

	stale := store.OverviewStats{TotalMeters: 42}
	encoded, _ := json.Marshal(&stale)
	ts.cache.entries[cache.OverviewKey()] = encoded

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analytics/overview", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(42), data["total_meters"]) // cached value wins
}

// ─── GET /api/v1/analytics/grid-health ───────────────────────────────────────

func TestGridHealth_200(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analytics/grid-health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(230), data["avg_voltage"])
	assert.NotNil(t, data["voltage_range"])

	_, cached := ts.cache.entries[cache.GridHealthKey()]
	assert.True(t, cached, "grid health should be written to cache")
}

func TestGridHealth_200_ServedFromCache(t *testing.T) {
	ts := newTestServer(t)

	stale := store.GridHealthStats{ReadingsLastHour: 99, AvgVoltage: 228.5}
	encoded, _ := json.Marshal(&stale)
	ts.cache.entries[cache.GridHealthKey()] = encoded

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/analytics/grid-health", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(99), data["readings_last_hour"])
	assert.Equal(t, 228.5, data["avg_voltage"]) // cached value wins
}

// ─── Admin key endpoints ─────────────────────────────────────────────────────

func TestCreateKey_201_WithRawKey(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{
		"name":   "dashboard",
		"scopes": []string{"read"},
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	rawKey := data["key"].(string)
	assert.Equal(t, "rm_", rawKey[:3])
	assert.Equal(t, rawKey[:8], data["key_prefix"])
}

func TestCreateKey_409_Duplicate(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("POST", "/api/v1/admin/keys", map[string]any{
		"name": "test-key", // seeded key already uses this name
	}))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "DUPLICATE_KEY", errObj["code"])
}

func TestListKeys_DoesNotExposeHash(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/admin/keys", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].([]any)
	require.NotEmpty(t, data)

	firstKey := data[0].(map[string]any)
	assert.NotEmpty(t, firstKey["key_prefix"])
	assert.Nil(t, firstKey["key_hash"]) // hash NOT serialized
}

func TestRevokeKey_200(t *testing.T) {
	ts := newTestServer(t)
	extra := &models.APIKey{
		ID: uuid.New(), Name: "revoke-me", KeyHash: "h", KeyPrefix: "rm_revk1",
		Scopes: []string{"read"},
	}
	require.NoError(t, ts.store.CreateAPIKey(context.Background(), extra))

	resp, err := http.DefaultClient.Do(ts.authRequest("DELETE", "/api/v1/admin/keys/"+extra.ID.String(), nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := parseBody(t, resp)
	data := body["data"].(map[string]any)
	assert.Equal(t, true, data["revoked"])
}

func TestRevokeKey_400_BadUUID(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("DELETE", "/api/v1/admin/keys/not-a-uuid", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAdminEndpoints_403_WithoutAdminScope(t *testing.T) {
	ts := newTestServer(t)

	noAdminKey := "rm_noadmin_1234567890abcdef"
	noAdminHash, _ := bcrypt.GenerateFromPassword([]byte(noAdminKey), bcrypt.MinCost)
	ts.store.keys = append(ts.store.keys, &models.APIKey{
		ID:        uuid.New(),
		Name:      "no-admin-key",
		KeyHash:   string(noAdminHash),
		KeyPrefix: noAdminKey[:8],
		Scopes:    []string{"read"},
	})

	req, _ := http.NewRequest("GET", ts.server.URL+"/api/v1/admin/keys", nil)
	req.Header.Set("Authorization", "Bearer "+noAdminKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	body := parseBody(t, resp)
	errObj := body["error"].(map[string]any)
	assert.Equal(t, "FORBIDDEN", errObj["code"])
}

// ─── Auth middleware contract ────────────────────────────────────────────────

func TestAuth_AllProtectedEndpoints_Reject401(t *testing.T) {
	ts := newTestServer(t)

	endpoints := []struct {
		method string
		path   string
	}{
		{"GET", "/api/v1/meters"},
		{"POST", "/api/v1/meters"},
		{"GET", "/api/v1/meters/1"},
		{"GET", "/api/v1/customers"},
		{"GET", "/api/v1/customers/segments"},
		{"GET", "/api/v1/predictions"},
		{"POST", "/api/v1/predictions/anomalies"},
		{"GET", "/api/v1/alerts"},
		{"GET", "/api/v1/analytics/overview"},
		{"POST", "/api/v1/admin/keys"},
		{"GET", "/api/v1/admin/keys"},
	}

	for _, ep := range endpoints {
		t.Run(ep.method+" "+ep.path, func(t *testing.T) {
			resp, err := http.DefaultClient.Do(ts.unauthRequest(ep.method, ep.path))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
			body := parseBody(t, resp)
			errObj := body["error"].(map[string]any)
			assert.Equal(t, "INVALID_TOKEN", errObj["code"])
		})
	}
}

// ─── Rate limiting contract ─────────────────────────────────────────────────

func TestRateLimit_Headers_Present(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.authRequest("GET", "/api/v1/meters", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Limit"))
	assert.NotEmpty(t, resp.Header.Get("X-RateLimit-Remaining"))
}

// ─── Response format contract ───────────────────────────────────────────────

func TestResponseFormat_ErrorEnvelope(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.DefaultClient.Do(ts.unauthRequest("GET", "/api/v1/meters"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	body := parseBody(t, resp)
	assert.Contains(t, body, "error")
	errObj := body["error"].(map[string]any)
	assert.NotEmpty(t, errObj["code"])
	assert.NotEmpty(t, errObj["message"])
}
