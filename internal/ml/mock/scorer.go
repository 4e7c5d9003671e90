package mock

import (
	"context"

	"github.com/kiranshivaraju/redmeters/internal/ml"
	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// MockScorer satisfies models.MLScorer for testing.
type MockScorer struct {
	Name_     string
	ScoreFunc func(ctx context.Context, readings []models.MeterReading) ([]models.AnomalyResult, error)
	Calls     int
}

func (m *MockScorer) Name() string { return m.Name_ }

func (m *MockScorer) Score(ctx context.Context, readings []models.MeterReading) ([]models.AnomalyResult, error) {
	m.Calls++
	if m.ScoreFunc != nil {
		return m.ScoreFunc(ctx, readings)
	}
	return nil, nil
}

// NewMockScorer returns a MockScorer that scores every reading as normal.
func NewMockScorer() *MockScorer {
	return &MockScorer{
		Name_: "mock",
		ScoreFunc: func(_ context.Context, readings []models.MeterReading) ([]models.AnomalyResult, error) {
			results := make([]models.AnomalyResult, len(readings))
			for i, r := range readings {
				results[i] = models.AnomalyResult{
					MeterID:         r.MeterID,
					ReadingTime:     r.ReadingTime,
					AnomalyScore:    0.1,
					IsAnomaly:       false,
					DetectionMethod: models.DetectionMLModel,
				}
			}
			return results, nil
		},
	}
}

// NewFailingScorer returns a MockScorer that always returns the given error.
func NewFailingScorer(err error) *MockScorer {
	return &MockScorer{
		Name_: "mock-failing",
		ScoreFunc: func(_ context.Context, _ []models.MeterReading) ([]models.AnomalyResult, error) {
			return nil, err
		},
	}
}

// NewBlockingScorer returns a MockScorer that blocks until context is cancelled.
func NewBlockingScorer() *MockScorer {
	return &MockScorer{
		Name_: "mock-blocking",
		ScoreFunc: func(ctx context.Context, _ []models.MeterReading) ([]models.AnomalyResult, error) {
			<-ctx.Done()
			return nil, ml.ErrScoreTimeout
		},
	}
}

// Compile-time check that MockScorer implements MLScorer.
var _ models.MLScorer = (*MockScorer)(nil)
