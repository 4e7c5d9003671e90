package models

import (
	"context"
	"time"
)

const (
	DetectionRuleBased = "rule_based"
	DetectionMLModel   = "ml_model"
)

const (
	ReasonVoltage     = "voltage"
	ReasonPowerFactor = "power_factor"
	ReasonConsumption = "consumption"
)

// MLScorer is the interface every external scoring integration must implement.
// Never invoke a concrete scorer directly — always inject this interface.
type MLScorer interface {
	// Score evaluates a batch of readings and returns one result per reading,
	// in input order. Any failure must surface as an error; implementations
	// must never report a partial batch as success.
	Score(ctx context.Context, readings []MeterReading) ([]AnomalyResult, error)
	// Name returns the scorer identifier (e.g., "http", "subprocess").
	Name() string
}

// AnomalyResult is the outcome of evaluating a single reading. It is
// constructed per reading, consumed by the orchestrator and alert writer,
// and never persisted.
type AnomalyResult struct {
	MeterID         int64     `json:"meter_id"`
	ReadingTime     time.Time `json:"reading_time"`
	AnomalyScore    float64   `json:"anomaly_score"`
	IsAnomaly       bool      `json:"is_anomaly"`
	DetectionMethod string    `json:"detection_method"`
	Reasons         []Reason  `json:"reasons,omitempty"`
}

// Reason records one rule-based signal that contributed to an anomaly score.
// Contributions are additive and the total is clamped to 1.0, so reasons can
// under-represent severity when several signals fire at once.
type Reason struct {
	Type         string  `json:"type"`
	Severity     string  `json:"severity"`
	Message      string  `json:"message"`
	Value        float64 `json:"value"`
	Threshold    string  `json:"threshold"`
	Contribution float64 `json:"contribution"`
}
