package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/store"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// anomalyRate is the fraction of generated readings that carry an injected
// anomaly.
const anomalyRate = 0.02

const defaultSegment = "evening_residential_peak"

// profile describes a segment's consumption pattern in kWh per 15-minute
// interval. Peak ranges are inclusive; an end past 24 wraps over midnight.
type profile struct {
	base        float64
	peakStart   int
	peakEnd     int
	peakMult    float64
	solarOffset bool
}

var segmentProfiles = map[string]profile{
	"early_morning_industrial":  {base: 2.5, peakStart: 4, peakEnd: 10, peakMult: 2.0},
	"business_hours_commercial": {base: 1.8, peakStart: 8, peakEnd: 18, peakMult: 1.8},
	"evening_residential_peak":  {base: 0.4, peakStart: 17, peakEnd: 22, peakMult: 2.5},
	"solar_battery_households":  {base: 0.3, peakStart: 18, peakEnd: 21, peakMult: 1.5, solarOffset: true},
	"ev_charging_households":    {base: 0.5, peakStart: 21, peakEnd: 24, peakMult: 3.0},
	"efficiency_optimizers":     {base: 0.25, peakStart: 7, peakEnd: 9, peakMult: 1.3},
	"high_consumption_all_day":  {base: 1.2, peakStart: 6, peakEnd: 22, peakMult: 1.4},
	"seasonal_variation_heavy":  {base: 0.8, peakStart: 15, peakEnd: 21, peakMult: 2.2},
	"weekend_shift_users":       {base: 0.5, peakStart: 10, peakEnd: 16, peakMult: 1.6},
	"night_owl_households":      {base: 0.35, peakStart: 22, peakEnd: 26, peakMult: 2.0},
	"retired_home_all_day":      {base: 0.6, peakStart: 8, peakEnd: 20, peakMult: 1.2},
	"low_use_minimal":           {base: 0.15, peakStart: 18, peakEnd: 21, peakMult: 1.5},
}

// Store is the slice of the data layer the simulator needs.
type Store interface {
	ListActiveMeters(ctx context.Context) ([]*models.SmartMeter, error)
	GetCustomer(ctx context.Context, id int64) (*models.Customer, error)
	InsertReading(ctx context.Context, r *models.MeterReading) error
}

// Simulator generates plausible readings for all active meters based on
// customer segments and time-of-day patterns, injecting occasional anomalies
// so downstream detection has something to find.
type Simulator struct {
	store Store
	rng   *rand.Rand
}

// New creates a Simulator with a time-seeded random source.
func New(st Store) *Simulator {
	seed := uint64(time.Now().UnixNano())
	return &Simulator{
		store: st,
		rng:   rand.New(rand.NewPCG(seed, seed>>1)),
	}
}

// GenerateBatch writes one reading for every active meter at the given time.
// Returns the generated readings and how many carry an injected anomaly.
func (s *Simulator) GenerateBatch(ctx context.Context, at time.Time) ([]*models.MeterReading, int, error) {
	meters, err := s.store.ListActiveMeters(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("listing active meters: %w", err)
	}

	segments := make(map[int64]string)
	var readings []*models.MeterReading
	anomalies := 0

	for _, meter := range meters {
		segment := defaultSegment
		if meter.CustomerID != nil {
			cached, ok := segments[*meter.CustomerID]
			if !ok {
				cached = defaultSegment
				customer, err := s.store.GetCustomer(ctx, *meter.CustomerID)
				if err == nil && customer.SegmentID != nil {
					cached = *customer.SegmentID
				}
				segments[*meter.CustomerID] = cached
			}
			segment = cached
		}

		reading := s.generateReading(meter.ID, segment, at)
		if err := s.store.InsertReading(ctx, reading); err != nil {
			return nil, 0, fmt.Errorf("inserting reading for meter %d: %w", meter.ID, err)
		}

		readings = append(readings, reading)
		if reading.Anomaly() {
			anomalies++
		}
	}

	slog.Info("simulated readings", "readings", len(readings), "anomalies", anomalies)
	return readings, anomalies, nil
}

func (s *Simulator) generateReading(meterID int64, segment string, at time.Time) *models.MeterReading {
	p, ok := segmentProfiles[segment]
	if !ok {
		p = segmentProfiles[defaultSegment]
	}

	isAnomaly := s.rng.Float64() < anomalyRate
	consumption := s.consumption(p, at, isAnomaly)

	flag := models.QualityNormal
	if isAnomaly {
		flag = models.QualityAnomaly
	}

	return &models.MeterReading{
		MeterID:        meterID,
		ReadingTime:    at,
		ConsumptionKWh: consumption,
		DemandKW:       consumption * 4, // 15-min interval -> hourly rate
		Voltage:        s.voltage(isAnomaly),
		PowerFactor:    s.powerFactor(isAnomaly),
		QualityFlag:    flag,
	}
}

func (s *Simulator) consumption(p profile, at time.Time, isAnomaly bool) float64 {
	hour := at.Hour()

	multiplier := 1.0
	if inPeakHours(hour, p.peakStart, p.peakEnd) {
		multiplier = p.peakMult
	}
	// Solar generation offsets grid draw during daylight.
	if p.solarOffset && hour >= 9 && hour <= 16 {
		multiplier *= 0.3
	}

	// ±20% jitter.
	consumption := p.base * multiplier * (0.8 + s.rng.Float64()*0.4)

	// Injected spike: 3-5x normal.
	if isAnomaly && s.rng.Float64() < 0.5 {
		consumption *= 3.0 + s.rng.Float64()*2.0
	}

	return round(consumption, 3)
}

func (s *Simulator) voltage(isAnomaly bool) float64 {
	v := 230.0 + (s.rng.Float64()*4 - 2)

	if isAnomaly && s.rng.Float64() < 0.5 {
		if s.rng.Float64() < 0.5 {
			v -= 15 + s.rng.Float64()*20
		} else {
			v += 15 + s.rng.Float64()*30
		}
	}

	return round(v, 2)
}

func (s *Simulator) powerFactor(isAnomaly bool) float64 {
	pf := 0.92 + s.rng.Float64()*0.06

	if isAnomaly && s.rng.Float64() < 0.3 {
		pf = 0.65 + s.rng.Float64()*0.18
	}

	return round(pf, 4)
}

// inPeakHours handles peak ranges that cross midnight (e.g. 22-26 covers
// 22:00 through 01:59).
func inPeakHours(hour, start, end int) bool {
	if end > 24 {
		return hour >= start || hour < end-24
	}
	return hour >= start && hour <= end
}

func round(x float64, digits int) float64 {
	pow := math.Pow(10, float64(digits))
	return math.Round(x*pow) / pow
}

var _ Store = (store.Store)(nil)
