package detection

import (
	"fmt"
	"math"

	"github.com/kiranshivaraju/redmeters/pkg/models"
)

const (
	nominalVoltage = 230.0

	voltageDevThreshold  = 0.06
	voltageDevCritical   = 0.10
	voltageWeight        = 0.4
	powerFactorThreshold = 0.85
	powerFactorCritical  = 0.75
	powerFactorWeight    = 0.3
	consumptionThreshold = 2.0
	consumptionCritical  = 4.0
	consumptionWeight    = 0.3

	anomalyThreshold = 0.7
)

// Score evaluates a single reading against the rule set. baseline is the
// meter's trailing 7-day mean consumption; pass zero or negative to skip the
// consumption check. Contributions are additive and the total is clamped to
// 1.0, so co-occurring signals can be under-represented.
func Score(r models.MeterReading, baseline float64) models.AnomalyResult {
	score := 0.0
	var reasons []models.Reason

	if r.Voltage > 0 {
		dev := math.Abs(r.Voltage-nominalVoltage) / nominalVoltage
		if dev > voltageDevThreshold {
			score += dev * voltageWeight
			direction := "LOW"
			if r.Voltage > nominalVoltage {
				direction = "HIGH"
			}
			severity := models.SeverityWarning
			if dev > voltageDevCritical {
				severity = models.SeverityCritical
			}
			reasons = append(reasons, models.Reason{
				Type:     models.ReasonVoltage,
				Severity: severity,
				Message: fmt.Sprintf("Voltage %s: %.1fV (%.1f%% deviation from %dV nominal)",
					direction, r.Voltage, dev*100, int(nominalVoltage)),
				Value:        r.Voltage,
				Threshold:    "216-244V",
				Contribution: round3(dev * voltageWeight),
			})
		}
	}

	if r.PowerFactor > 0 && r.PowerFactor < powerFactorThreshold {
		gap := powerFactorThreshold - r.PowerFactor
		score += gap * powerFactorWeight
		severity := models.SeverityWarning
		if r.PowerFactor < powerFactorCritical {
			severity = models.SeverityCritical
		}
		reasons = append(reasons, models.Reason{
			Type:     models.ReasonPowerFactor,
			Severity: severity,
			Message: fmt.Sprintf("Low power factor: %.3f (minimum threshold: %.2f)",
				r.PowerFactor, powerFactorThreshold),
			Value:        r.PowerFactor,
			Threshold:    ">= 0.85",
			Contribution: round3(gap * powerFactorWeight),
		})
	}

	if baseline > 0 {
		dev := math.Abs(r.ConsumptionKWh-baseline) / baseline
		if dev > consumptionThreshold {
			score += dev * consumptionWeight
			direction := "drop"
			if r.ConsumptionKWh > baseline {
				direction = "spike"
			}
			severity := models.SeverityWarning
			if dev > consumptionCritical {
				severity = models.SeverityCritical
			}
			reasons = append(reasons, models.Reason{
				Type:     models.ReasonConsumption,
				Severity: severity,
				Message: fmt.Sprintf("Consumption %s: %.3f kWh (%.0f%% vs 7-day avg of %.3f kWh)",
					direction, r.ConsumptionKWh, dev*100, baseline),
				Value:        r.ConsumptionKWh,
				Threshold:    fmt.Sprintf("within %.0fx of 7-day avg", consumptionThreshold),
				Contribution: round3(dev * consumptionWeight),
			})
		}
	}

	score = math.Min(score, 1.0)

	return models.AnomalyResult{
		MeterID:         r.MeterID,
		ReadingTime:     r.ReadingTime,
		AnomalyScore:    score,
		IsAnomaly:       score > anomalyThreshold,
		DetectionMethod: models.DetectionRuleBased,
		Reasons:         reasons,
	}
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
