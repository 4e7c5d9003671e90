package detection

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// buildRuleAlert constructs the alert for a rule-flagged reading. The title
// names the distinct reason types; the description opens with the meter and
// time, then one bullet per reason in firing order.
func buildRuleAlert(meterNumber string, res models.AnomalyResult, now time.Time) *models.Alert {
	severity := models.SeverityWarning
	var types []string
	seen := make(map[string]bool)
	var bullets []string

	for _, reason := range res.Reasons {
		if reason.Severity == models.SeverityCritical {
			severity = models.SeverityCritical
		}
		if !seen[reason.Type] {
			seen[reason.Type] = true
			types = append(types, capitalize(reason.Type))
		}
		bullets = append(bullets, "• "+reason.Message)
	}

	return &models.Alert{
		Title: strings.Join(types, ", ") + " Anomaly",
		Description: fmt.Sprintf("Meter %s at %s:\n\n%s",
			meterNumber, res.ReadingTime.Format("2006-01-02 15:04"), strings.Join(bullets, "\n")),
		Severity:   severity,
		Source:     models.SourceAnomalyDetection,
		Confidence: int(math.Round(res.AnomalyScore * 100)),
		Asset:      models.AssetRef{Type: models.AssetSmartMeter, ID: res.MeterID},
		DetectedAt: now,
	}
}

// buildMLAlert constructs the alert for an ML-flagged result. The model gives
// no per-rule reasons, so the description stays generic.
func buildMLAlert(res models.AnomalyResult, now time.Time) *models.Alert {
	severity := models.SeverityWarning
	if res.AnomalyScore > 0.9 {
		severity = models.SeverityCritical
	}

	return &models.Alert{
		Title:       "Anomaly Detected",
		Description: fmt.Sprintf("ML model detected anomaly on meter %d", res.MeterID),
		Severity:    severity,
		Source:      models.SourceAnomalyDetection,
		Confidence:  int(math.Round(res.AnomalyScore * 100)),
		Asset:       models.AssetRef{Type: models.AssetSmartMeter, ID: res.MeterID},
		DetectedAt:  now,
	}
}

// capitalize uppercases the first byte only, so "power_factor" stays
// "Power_factor" in alert titles.
func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
