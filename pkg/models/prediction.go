package models

import (
	"encoding/json"
	"time"
)

// Prediction is a stored model output (failure risk, demand estimate, etc.)
// attached to an asset via a tagged reference.
type Prediction struct {
	ID             int64           `db:"id"              json:"id"`
	PredictionType string          `db:"prediction_type" json:"prediction_type"`
	Asset          AssetRef        `db:"-"               json:"asset"`
	Probability    float64         `db:"probability"     json:"probability"`
	Confidence     float64         `db:"confidence"      json:"confidence"`
	Details        json.RawMessage `db:"details"         json:"details,omitempty"`
	PredictedFor   *time.Time      `db:"predicted_for"   json:"predicted_for,omitempty"`
	CreatedAt      time.Time       `db:"created_at"      json:"created_at"`
}
