package detection

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/cache"
	"github.com/kiranshivaraju/redmeters/internal/ml"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

const (
	fetchWindow    = time.Hour
	fetchLimit     = 10000
	baselineWindow = 7 * 24 * time.Hour
	baselineTTL    = 15 * time.Minute
)

// Store is the slice of the data layer the detection service needs.
type Store interface {
	ListRecentReadings(ctx context.Context, meterIDs []int64, since time.Time, limit int) ([]*models.MeterReading, error)
	AverageConsumption(ctx context.Context, meterID int64, since time.Time) (float64, bool, error)
	UpdateReadingQuality(ctx context.Context, readingID int64, flag string) error
	CreateAlert(ctx context.Context, a *models.Alert) error
	GetMeter(ctx context.Context, id int64) (*models.SmartMeter, error)
}

// BaselineCache holds per-meter baseline averages between detection passes so
// a pass over many readings from the same meter does not recompute the 7-day
// mean every run.
type BaselineCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Service runs detection passes over recent readings. Stateless and safe for
// concurrent invocations.
type Service struct {
	store      Store
	scorer     models.MLScorer
	modelsPath string
	baselines  BaselineCache
	now        func() time.Time
}

// NewService creates a detection Service. baselines may be nil, in which case
// every pass reads baselines from the store.
func NewService(st Store, scorer models.MLScorer, modelsPath string, baselines BaselineCache) *Service {
	return &Service{
		store:      st,
		scorer:     scorer,
		modelsPath: modelsPath,
		baselines:  baselines,
		now:        time.Now,
	}
}

// Detect evaluates all readings from the trailing hour, optionally restricted
// to the given meters. The ML scorer is used when the trained model artifact
// is present; a scorer failure falls back to rule-based scoring for the whole
// batch and never propagates. Storage failures are not recoverable locally
// and always surface to the caller, on either path. Results come back in
// fetch order (newest first).
func (s *Service) Detect(ctx context.Context, meterIDs []int64) ([]models.AnomalyResult, error) {
	now := s.now().UTC()

	readings, err := s.store.ListRecentReadings(ctx, meterIDs, now.Add(-fetchWindow), fetchLimit)
	if err != nil {
		return nil, fmt.Errorf("fetching readings: %w", err)
	}
	if len(readings) == 0 {
		return []models.AnomalyResult{}, nil
	}

	// Checked fresh every pass so a newly trained artifact takes effect
	// without a restart.
	if ml.ModelAvailable(s.modelsPath) {
		results, err := s.scoreWithML(ctx, readings)
		if err != nil {
			slog.Warn("ml scorer failed, falling back to rules",
				"scorer", s.scorer.Name(),
				"readings", len(readings),
				"error", err)
			return s.detectWithRules(ctx, readings, now)
		}
		if err := s.persistMLResults(ctx, readings, results, now); err != nil {
			return nil, err
		}
		return results, nil
	}

	return s.detectWithRules(ctx, readings, now)
}

// scoreWithML invokes the external scorer. Only errors from here trigger the
// rule fallback: a failure writing alerts or quality flags afterwards is a
// storage problem, not a model problem.
func (s *Service) scoreWithML(ctx context.Context, readings []*models.MeterReading) ([]models.AnomalyResult, error) {
	batch := make([]models.MeterReading, len(readings))
	for i, r := range readings {
		batch[i] = *r
	}
	return s.scorer.Score(ctx, batch)
}

func (s *Service) persistMLResults(ctx context.Context, readings []*models.MeterReading, results []models.AnomalyResult, now time.Time) error {
	for i, res := range results {
		if res.IsAnomaly {
			if err := s.store.CreateAlert(ctx, buildMLAlert(res, now)); err != nil {
				return fmt.Errorf("creating alert for meter %d: %w", res.MeterID, err)
			}
		}
		if err := s.updateQuality(ctx, readings[i], res.IsAnomaly); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) detectWithRules(ctx context.Context, readings []*models.MeterReading, now time.Time) ([]models.AnomalyResult, error) {
	results := make([]models.AnomalyResult, 0, len(readings))
	baselines := make(map[int64]float64)
	meterNumbers := make(map[int64]string)

	for _, r := range readings {
		baseline, ok := baselines[r.MeterID]
		if !ok {
			avg, err := s.baseline(ctx, r.MeterID, now)
			if err != nil {
				return nil, err
			}
			baseline = avg
			baselines[r.MeterID] = baseline
		}

		res := Score(*r, baseline)
		results = append(results, res)

		if res.IsAnomaly {
			number, ok := meterNumbers[r.MeterID]
			if !ok {
				meter, err := s.store.GetMeter(ctx, r.MeterID)
				if err != nil {
					return nil, fmt.Errorf("fetching meter %d: %w", r.MeterID, err)
				}
				number = meter.MeterNumber
				meterNumbers[r.MeterID] = number
			}
			if err := s.store.CreateAlert(ctx, buildRuleAlert(number, res, now)); err != nil {
				return nil, fmt.Errorf("creating alert for meter %d: %w", r.MeterID, err)
			}
		}

		if err := s.updateQuality(ctx, r, res.IsAnomaly); err != nil {
			return nil, err
		}
	}

	return results, nil
}

// baseline returns the meter's trailing 7-day mean consumption, consulting
// the cache first. Cache failures fall through to the store; a meter with no
// history gets a zero baseline, which skips the consumption check.
func (s *Service) baseline(ctx context.Context, meterID int64, now time.Time) (float64, error) {
	key := cache.BaselineKey(meterID)
	if s.baselines != nil {
		if raw, ok, err := s.baselines.Get(ctx, key); err == nil && ok {
			if avg, perr := strconv.ParseFloat(string(raw), 64); perr == nil {
				return avg, nil
			}
		}
	}

	avg, found, err := s.store.AverageConsumption(ctx, meterID, now.Add(-baselineWindow))
	if err != nil {
		return 0, fmt.Errorf("fetching baseline for meter %d: %w", meterID, err)
	}
	if !found {
		avg = 0
	}
	if s.baselines != nil {
		// A stale-by-minutes baseline is fine; write failures are not worth
		// failing the pass over.
		_ = s.baselines.Set(ctx, key, strconv.AppendFloat(nil, avg, 'g', -1, 64), baselineTTL)
	}
	return avg, nil
}

// updateQuality rewrites a reading's quality flag to match the evaluation
// just performed, skipping the write when the flag already agrees.
func (s *Service) updateQuality(ctx context.Context, r *models.MeterReading, anomaly bool) error {
	flag := models.QualityNormal
	if anomaly {
		flag = models.QualityAnomaly
	}
	if r.QualityFlag == flag {
		return nil
	}
	if err := s.store.UpdateReadingQuality(ctx, r.ID, flag); err != nil {
		return fmt.Errorf("updating quality flag for reading %d: %w", r.ID, err)
	}
	r.QualityFlag = flag
	return nil
}
