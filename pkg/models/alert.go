package models

import "time"

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

const (
	SourceAnomalyDetection  = "anomaly_detection"
	SourceFailurePrediction = "failure_prediction"
	SourceManual            = "manual"
)

// Alert is a persisted, human-actionable notification derived from a positive
// anomaly determination. The description's first line is a summary; the
// remaining lines are one bullet per contributing reason. Alerts reference
// their asset via a tagged AssetRef rather than a foreign key.
type Alert struct {
	ID          int64      `db:"id"          json:"id"`
	Title       string     `db:"title"       json:"title"`
	Description string     `db:"description" json:"description"`
	Severity    string     `db:"severity"    json:"severity"`
	Source      string     `db:"source"      json:"source"`
	Confidence  int        `db:"confidence"  json:"confidence"`
	Asset       AssetRef   `db:"-"           json:"asset"`
	DetectedAt  time.Time  `db:"detected_at" json:"detected_at"`
	ResolvedAt  *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	ResolvedBy  *string    `db:"resolved_by" json:"resolved_by,omitempty"`
	CreatedAt   time.Time  `db:"created_at"  json:"created_at"`
}

func (a *Alert) Active() bool {
	return a.ResolvedAt == nil
}
