package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// --- Smart Meters ---

const meterColumns = `id, meter_number, customer_id, transformer_id, meter_type, status, installed_at, created_at, updated_at`

func scanMeter(row pgx.Row) (*models.SmartMeter, error) {
	var m models.SmartMeter
	err := row.Scan(&m.ID, &m.MeterNumber, &m.CustomerID, &m.TransformerID,
		&m.MeterType, &m.Status, &m.InstalledAt, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *PostgresStore) ListMeters(ctx context.Context, limit, offset int) ([]*models.SmartMeter, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM smart_meters`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count meters: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+meterColumns+` FROM smart_meters ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list meters: %w", err)
	}
	defer rows.Close()

	var meters []*models.SmartMeter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan meter: %w", err)
		}
		meters = append(meters, m)
	}
	return meters, total, rows.Err()
}

func (s *PostgresStore) GetMeter(ctx context.Context, id int64) (*models.SmartMeter, error) {
	m, err := scanMeter(s.pool.QueryRow(ctx,
		`SELECT `+meterColumns+` FROM smart_meters WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get meter: %w", err)
	}
	return m, nil
}

func (s *PostgresStore) CreateMeter(ctx context.Context, m *models.SmartMeter) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO smart_meters (meter_number, customer_id, transformer_id, meter_type, status, installed_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())
		 RETURNING id, created_at, updated_at`,
		m.MeterNumber, m.CustomerID, m.TransformerID, m.MeterType, m.Status, m.InstalledAt,
	).Scan(&m.ID, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create meter: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateMeter(ctx context.Context, m *models.SmartMeter) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE smart_meters SET meter_number = $2, customer_id = $3, transformer_id = $4,
		   meter_type = $5, status = $6, installed_at = $7, updated_at = NOW()
		 WHERE id = $1`,
		m.ID, m.MeterNumber, m.CustomerID, m.TransformerID, m.MeterType, m.Status, m.InstalledAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("update meter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListActiveMeters(ctx context.Context) ([]*models.SmartMeter, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+meterColumns+` FROM smart_meters WHERE status = 'active' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list active meters: %w", err)
	}
	defer rows.Close()

	var meters []*models.SmartMeter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, fmt.Errorf("scan meter: %w", err)
		}
		meters = append(meters, m)
	}
	return meters, rows.Err()
}

// --- Meter Readings ---

const readingColumns = `id, meter_id, reading_time, consumption_kwh, demand_kw, voltage, power_factor, quality_flag`

func scanReading(row pgx.Row) (*models.MeterReading, error) {
	var r models.MeterReading
	err := row.Scan(&r.ID, &r.MeterID, &r.ReadingTime, &r.ConsumptionKWh,
		&r.DemandKW, &r.Voltage, &r.PowerFactor, &r.QualityFlag)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) InsertReading(ctx context.Context, r *models.MeterReading) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO meter_readings (meter_id, reading_time, consumption_kwh, demand_kw, voltage, power_factor, quality_flag)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		r.MeterID, r.ReadingTime, r.ConsumptionKWh, r.DemandKW, r.Voltage, r.PowerFactor, r.QualityFlag,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListRecentReadings(ctx context.Context, meterIDs []int64, since time.Time, limit int) ([]*models.MeterReading, error) {
	query := `SELECT ` + readingColumns + ` FROM meter_readings WHERE reading_time > $1`
	args := []any{since}
	if len(meterIDs) > 0 {
		query += ` AND meter_id = ANY($2)`
		args = append(args, meterIDs)
	}
	query += fmt.Sprintf(` ORDER BY reading_time DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list recent readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.MeterReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

func (s *PostgresStore) ListMeterReadings(ctx context.Context, meterID int64, from, to time.Time, limit int) ([]*models.MeterReading, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+readingColumns+` FROM meter_readings
		 WHERE meter_id = $1 AND reading_time BETWEEN $2 AND $3
		 ORDER BY reading_time DESC LIMIT $4`,
		meterID, from, to, limit)
	if err != nil {
		return nil, fmt.Errorf("list meter readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.MeterReading
	for rows.Next() {
		r, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// AverageConsumption returns the mean consumption for a meter since the given
// time. The second return is false when the meter has no readings in the window.
func (s *PostgresStore) AverageConsumption(ctx context.Context, meterID int64, since time.Time) (float64, bool, error) {
	var avg *float64
	err := s.pool.QueryRow(ctx,
		`SELECT AVG(consumption_kwh) FROM meter_readings WHERE meter_id = $1 AND reading_time > $2`,
		meterID, since,
	).Scan(&avg)
	if err != nil {
		return 0, false, fmt.Errorf("average consumption: %w", err)
	}
	if avg == nil {
		return 0, false, nil
	}
	return *avg, true, nil
}

func (s *PostgresStore) UpdateReadingQuality(ctx context.Context, readingID int64, flag string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE meter_readings SET quality_flag = $2 WHERE id = $1`, readingID, flag)
	if err != nil {
		return fmt.Errorf("update reading quality: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Alerts ---

const alertColumns = `id, title, description, severity, source, confidence, asset_type, asset_id, detected_at, resolved_at, resolved_by, created_at`

func scanAlert(row pgx.Row) (*models.Alert, error) {
	var a models.Alert
	var assetType string
	err := row.Scan(&a.ID, &a.Title, &a.Description, &a.Severity, &a.Source,
		&a.Confidence, &assetType, &a.Asset.ID, &a.DetectedAt, &a.ResolvedAt,
		&a.ResolvedBy, &a.CreatedAt)
	if err != nil {
		return nil, err
	}
	a.Asset.Type = models.AssetType(assetType)
	return &a, nil
}

func (s *PostgresStore) CreateAlert(ctx context.Context, a *models.Alert) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO alerts (title, description, severity, source, confidence, asset_type, asset_id, detected_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		 RETURNING id, created_at`,
		a.Title, a.Description, a.Severity, a.Source, a.Confidence,
		string(a.Asset.Type), a.Asset.ID, a.DetectedAt,
	).Scan(&a.ID, &a.CreatedAt)
	if err != nil {
		return fmt.Errorf("create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetAlert(ctx context.Context, id int64) (*models.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`SELECT `+alertColumns+` FROM alerts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) ListAlerts(ctx context.Context, filter AlertFilter) ([]*models.Alert, error) {
	query := `SELECT ` + alertColumns + ` FROM alerts`
	var conditions []string
	var args []any

	if filter.ActiveOnly {
		conditions = append(conditions, "resolved_at IS NULL")
	}
	if filter.Severity != "" {
		args = append(args, filter.Severity)
		conditions = append(conditions, fmt.Sprintf("severity = $%d", len(args)))
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list alerts: %w", err)
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *PostgresStore) ResolveAlert(ctx context.Context, id int64, by string) (*models.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx,
		`UPDATE alerts SET resolved_at = NOW(), resolved_by = $2 WHERE id = $1
		 RETURNING `+alertColumns, id, by))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("resolve alert: %w", err)
	}
	return a, nil
}

func (s *PostgresStore) CountActiveAlerts(ctx context.Context) (int, int, error) {
	var active, critical int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*), COUNT(*) FILTER (WHERE severity = 'critical')
		 FROM alerts WHERE resolved_at IS NULL`,
	).Scan(&active, &critical)
	if err != nil {
		return 0, 0, fmt.Errorf("count active alerts: %w", err)
	}
	return active, critical, nil
}

func (s *PostgresStore) DeleteResolvedAlertsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM alerts WHERE resolved_at IS NOT NULL AND resolved_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete resolved alerts: %w", err)
	}
	return tag.RowsAffected(), nil
}

// --- Customers ---

const customerColumns = `id, customer_hash, segment_id, segment_confidence, tariff_type, solar_installed, ev_charging, demand_response_opted_in, created_at, updated_at`

func scanCustomer(row pgx.Row) (*models.Customer, error) {
	var c models.Customer
	err := row.Scan(&c.ID, &c.CustomerHash, &c.SegmentID, &c.SegmentConfidence,
		&c.TariffType, &c.SolarInstalled, &c.EVCharging, &c.DemandResponseOptedIn,
		&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *PostgresStore) ListCustomers(ctx context.Context, segment string, limit, offset int) ([]*models.Customer, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM customers`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count customers: %w", err)
	}

	if limit <= 0 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + customerColumns + ` FROM customers`
	args := []any{}
	if segment != "" {
		query += ` WHERE segment_id = $1`
		args = append(args, segment)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list customers: %w", err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan customer: %w", err)
		}
		customers = append(customers, c)
	}
	return customers, total, rows.Err()
}

func (s *PostgresStore) GetCustomer(ctx context.Context, id int64) (*models.Customer, error) {
	c, err := scanCustomer(s.pool.QueryRow(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get customer: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) CustomerSegmentCounts(ctx context.Context) (map[string]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT COALESCE(segment_id, ''), COUNT(*) FROM customers GROUP BY segment_id`)
	if err != nil {
		return nil, fmt.Errorf("customer segment counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var segment string
		var count int
		if err := rows.Scan(&segment, &count); err != nil {
			return nil, fmt.Errorf("scan segment count: %w", err)
		}
		counts[segment] = count
	}
	return counts, rows.Err()
}

// --- Transformers ---

const transformerColumns = `id, transformer_number, capacity_kva, age_years, status, failure_risk, created_at, updated_at`

func scanTransformer(row pgx.Row) (*models.Transformer, error) {
	var t models.Transformer
	err := row.Scan(&t.ID, &t.TransformerNumber, &t.CapacityKVA, &t.AgeYears,
		&t.Status, &t.FailureRisk, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *PostgresStore) ListTransformers(ctx context.Context) ([]*models.Transformer, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+transformerColumns+` FROM transformers ORDER BY transformer_number`)
	if err != nil {
		return nil, fmt.Errorf("list transformers: %w", err)
	}
	defer rows.Close()

	var transformers []*models.Transformer
	for rows.Next() {
		t, err := scanTransformer(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transformer: %w", err)
		}
		transformers = append(transformers, t)
	}
	return transformers, rows.Err()
}

func (s *PostgresStore) GetTransformer(ctx context.Context, id int64) (*models.Transformer, error) {
	t, err := scanTransformer(s.pool.QueryRow(ctx,
		`SELECT `+transformerColumns+` FROM transformers WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get transformer: %w", err)
	}
	return t, nil
}

func (s *PostgresStore) TransformerStats(ctx context.Context) (*TransformerStats, error) {
	var stats TransformerStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'operational'),
		        COUNT(*) FILTER (WHERE failure_risk > 0.7),
		        COUNT(*) FILTER (WHERE age_years > 20),
		        COALESCE(AVG(failure_risk), 0),
		        COALESCE(AVG(age_years), 0)
		 FROM transformers`,
	).Scan(&stats.Total, &stats.Operational, &stats.HighRisk, &stats.Aging,
		&stats.AvgFailureRisk, &stats.AvgAgeYears)
	if err != nil {
		return nil, fmt.Errorf("transformer stats: %w", err)
	}

	rows, err := s.pool.Query(ctx, `SELECT status, COUNT(*) FROM transformers GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("transformer status counts: %w", err)
	}
	defer rows.Close()

	stats.ByStatus = make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan status count: %w", err)
		}
		stats.ByStatus[status] = count
	}
	return &stats, rows.Err()
}

// --- Predictions ---

const predictionColumns = `id, prediction_type, asset_type, asset_id, probability, confidence, details, predicted_for, created_at`

func scanPrediction(row pgx.Row) (*models.Prediction, error) {
	var p models.Prediction
	var assetType string
	err := row.Scan(&p.ID, &p.PredictionType, &assetType, &p.Asset.ID,
		&p.Probability, &p.Confidence, &p.Details, &p.PredictedFor, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	p.Asset.Type = models.AssetType(assetType)
	return &p, nil
}

func (s *PostgresStore) CreatePrediction(ctx context.Context, p *models.Prediction) error {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO predictions (prediction_type, asset_type, asset_id, probability, confidence, details, predicted_for, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		 RETURNING id, created_at`,
		p.PredictionType, string(p.Asset.Type), p.Asset.ID, p.Probability,
		p.Confidence, p.Details, p.PredictedFor,
	).Scan(&p.ID, &p.CreatedAt)
	if err != nil {
		return fmt.Errorf("create prediction: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPrediction(ctx context.Context, id int64) (*models.Prediction, error) {
	p, err := scanPrediction(s.pool.QueryRow(ctx,
		`SELECT `+predictionColumns+` FROM predictions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get prediction: %w", err)
	}
	return p, nil
}

func (s *PostgresStore) ListPredictions(ctx context.Context, predictionType string, limit int) ([]*models.Prediction, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + predictionColumns + ` FROM predictions`
	args := []any{}
	if predictionType != "" {
		query += ` WHERE prediction_type = $1`
		args = append(args, predictionType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list predictions: %w", err)
	}
	defer rows.Close()

	var predictions []*models.Prediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, fmt.Errorf("scan prediction: %w", err)
		}
		predictions = append(predictions, p)
	}
	return predictions, rows.Err()
}

// --- Demand Forecasts ---

func (s *PostgresStore) ListDemandForecasts(ctx context.Context, until time.Time) ([]*models.DemandForecast, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, forecast_time, predicted_demand_mw, confidence_lower, confidence_upper, actual_demand_mw, created_at
		 FROM demand_forecasts
		 WHERE forecast_time > NOW() AND forecast_time < $1
		 ORDER BY forecast_time`, until)
	if err != nil {
		return nil, fmt.Errorf("list demand forecasts: %w", err)
	}
	defer rows.Close()

	var forecasts []*models.DemandForecast
	for rows.Next() {
		var f models.DemandForecast
		if err := rows.Scan(&f.ID, &f.ForecastTime, &f.PredictedDemandMW,
			&f.ConfidenceLower, &f.ConfidenceUpper, &f.ActualDemandMW, &f.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan demand forecast: %w", err)
		}
		forecasts = append(forecasts, &f)
	}
	return forecasts, rows.Err()
}

// --- Analytics ---

func (s *PostgresStore) OverviewStats(ctx context.Context) (*OverviewStats, error) {
	var stats OverviewStats
	err := s.pool.QueryRow(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM smart_meters),
		   (SELECT COUNT(*) FROM smart_meters WHERE status = 'active'),
		   (SELECT COUNT(*) FROM meter_readings),
		   (SELECT COUNT(*) FROM meter_readings WHERE reading_time > CURRENT_DATE),
		   (SELECT COUNT(*) FROM meter_readings WHERE reading_time > CURRENT_DATE AND quality_flag = 'anomaly'),
		   (SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL),
		   (SELECT COUNT(*) FROM alerts WHERE resolved_at IS NULL AND severity = 'critical'),
		   (SELECT COUNT(*) FROM customers)`,
	).Scan(&stats.TotalMeters, &stats.ActiveMeters, &stats.TotalReadings,
		&stats.ReadingsToday, &stats.AnomaliesToday, &stats.AlertsActive,
		&stats.AlertsCritical, &stats.CustomersTotal)
	if err != nil {
		return nil, fmt.Errorf("overview stats: %w", err)
	}
	return &stats, nil
}

func (s *PostgresStore) GridHealthStats(ctx context.Context, since time.Time) (*GridHealthStats, error) {
	var stats GridHealthStats
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COALESCE(AVG(voltage), 0),
		        COALESCE(MIN(voltage), 0),
		        COALESCE(MAX(voltage), 0),
		        COALESCE(AVG(power_factor), 0),
		        COALESCE(SUM(consumption_kwh), 0),
		        COALESCE(SUM(demand_kw), 0),
		        CASE WHEN COUNT(*) = 0 THEN 0
		             ELSE COUNT(*) FILTER (WHERE quality_flag = 'anomaly')::float / COUNT(*) * 100
		        END
		 FROM meter_readings WHERE reading_time > $1`, since,
	).Scan(&stats.ReadingsLastHour, &stats.AvgVoltage, &stats.MinVoltage,
		&stats.MaxVoltage, &stats.AvgPowerFactor, &stats.TotalConsumptionKWh,
		&stats.TotalDemandKW, &stats.AnomalyRate)
	if err != nil {
		return nil, fmt.Errorf("grid health stats: %w", err)
	}
	return &stats, nil
}

// --- Asset resolution ---

// ResolveAsset dispatches on the reference's type tag, one typed lookup per
// variant. The alerts table carries no foreign key to its asset.
func (s *PostgresStore) ResolveAsset(ctx context.Context, ref models.AssetRef) (models.Asset, error) {
	if err := ref.Validate(); err != nil {
		return nil, err
	}
	switch ref.Type {
	case models.AssetSmartMeter:
		return s.GetMeter(ctx, ref.ID)
	case models.AssetTransformer:
		return s.GetTransformer(ctx, ref.ID)
	case models.AssetCustomer:
		return s.GetCustomer(ctx, ref.ID)
	default:
		return nil, fmt.Errorf("unknown asset type %q", ref.Type)
	}
}

// --- API Keys ---

func (s *PostgresStore) GetAPIKeyByPrefix(ctx context.Context, prefix string) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE key_prefix = $1 AND deleted_at IS NULL`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api key by prefix: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) UpdateAPIKeyLastUsed(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET last_used_at = NOW(), updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("update api key last used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CreateAPIKey(ctx context.Context, key *models.APIKey) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO api_keys (id, name, key_hash, key_prefix, scopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		key.ID, key.Name, key.KeyHash, key.KeyPrefix, key.Scopes, key.CreatedAt, key.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create api key: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListAPIKeys(ctx context.Context) ([]*models.APIKey, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, key_hash, key_prefix, scopes, last_used_at, deleted_at, created_at, updated_at
		 FROM api_keys WHERE deleted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()

	var keys []*models.APIKey
	for rows.Next() {
		var k models.APIKey
		if err := rows.Scan(&k.ID, &k.Name, &k.KeyHash, &k.KeyPrefix, &k.Scopes,
			&k.LastUsedAt, &k.DeletedAt, &k.CreatedAt, &k.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		keys = append(keys, &k)
	}
	return keys, rows.Err()
}

func (s *PostgresStore) RevokeAPIKey(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE api_keys SET deleted_at = NOW(), updated_at = NOW()
		 WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return false
}
