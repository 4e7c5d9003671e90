package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the data access interface. All database operations go through here.
type Store interface {
	Ping(ctx context.Context) error

	ListMeters(ctx context.Context, limit, offset int) ([]*models.SmartMeter, int, error)
	GetMeter(ctx context.Context, id int64) (*models.SmartMeter, error)
	CreateMeter(ctx context.Context, m *models.SmartMeter) error
	UpdateMeter(ctx context.Context, m *models.SmartMeter) error
	ListActiveMeters(ctx context.Context) ([]*models.SmartMeter, error)

	InsertReading(ctx context.Context, r *models.MeterReading) error
	ListRecentReadings(ctx context.Context, meterIDs []int64, since time.Time, limit int) ([]*models.MeterReading, error)
	ListMeterReadings(ctx context.Context, meterID int64, from, to time.Time, limit int) ([]*models.MeterReading, error)
	AverageConsumption(ctx context.Context, meterID int64, since time.Time) (float64, bool, error)
	UpdateReadingQuality(ctx context.Context, readingID int64, flag string) error

	CreateAlert(ctx context.Context, a *models.Alert) error
	GetAlert(ctx context.Context, id int64) (*models.Alert, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error)
	ResolveAlert(ctx context.Context, id int64, by string) (*models.Alert, error)
	CountActiveAlerts(ctx context.Context) (active, critical int, err error)
	DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	ListCustomers(ctx context.Context, segment string, limit, offset int) ([]*models.Customer, int, error)
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	CustomerSegmentCounts(ctx context.Context) (map[string]int, error)

	ListTransformers(ctx context.Context) ([]*models.Transformer, error)
	GetTransformer(ctx context.Context, id int64) (*models.Transformer, error)
	TransformerStats(ctx context.Context) (*TransformerStats, error)

	CreatePrediction(ctx context.Context, p *models.Prediction) error
	GetPrediction(ctx context.Context, id int64) (*models.Prediction, error)
	ListPredictions(ctx context.Context, predictionType string, limit int) ([]*models.Prediction, error)

	ListDemandForecasts(ctx context.Context, until time.Time) ([]*models.DemandForecast, error)

	OverviewStats(ctx context.Context) (*OverviewStats, error)
	GridHealthStats(ctx context.Context, since time.Time) (*GridHealthStats, error)

	ResolveAsset(ctx context.Context, ref models.AssetRef) (models.Asset, error)

	GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error)
	UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
	ListAPIKeys(ctx context.Context) ([]*models.APIKey, error)
	RevokeAPIKey(ctx context.Context, id uuid.UUID) error
}

// AlertFilter narrows alert listings. Zero values mean "no filter".
type AlertFilter struct {
	ActiveOnly bool
	Severity   string
	Limit      int
}

// OverviewStats backs the analytics overview endpoint.
type OverviewStats struct {
	TotalMeters    int `json:"total_meters"`
	ActiveMeters   int `json:"active_meters"`
	TotalReadings  int `json:"total_readings"`
	ReadingsToday  int `json:"readings_today"`
	AnomaliesToday int `json:"anomalies_today"`
	AlertsActive   int `json:"alerts_active"`
	AlertsCritical int `json:"alerts_critical"`
	CustomersTotal int `json:"customers_total"`
}

// GridHealthStats aggregates the trailing hour of readings.
type GridHealthStats struct {
	ReadingsLastHour    int     `json:"readings_last_hour"`
	AvgVoltage          float64 `json:"avg_voltage"`
	MinVoltage          float64 `json:"min_voltage"`
	MaxVoltage          float64 `json:"max_voltage"`
	AvgPowerFactor      float64 `json:"avg_power_factor"`
	TotalConsumptionKWh float64 `json:"total_consumption_kwh"`
	TotalDemandKW       float64 `json:"total_demand_kw"`
	AnomalyRate         float64 `json:"anomaly_rate"`
}

// TransformerStats aggregates the transformer fleet.
type TransformerStats struct {
	Total          int            `json:"total"`
	Operational    int            `json:"operational"`
	HighRisk       int            `json:"high_risk"`
	Aging          int            `json:"aging"`
	ByStatus       map[string]int `json:"by_status"`
	AvgFailureRisk float64        `json:"avg_failure_risk"`
	AvgAgeYears    float64        `json:"avg_age_years"`
}
