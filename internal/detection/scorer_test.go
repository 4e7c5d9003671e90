package detection_test

import (
	"testing"
	"time"

	"github.com/kiranshivaraju/redmeters/internal/detection"
	"github.com/kiranshivaraju/redmeters/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func reading(consumption, voltage, pf float64) models.MeterReading {
	return models.MeterReading{
		ID:             1,
		MeterID:        42,
		ReadingTime:    time.Date(2026, 8, 30, 14, 30, 0, 0, time.UTC),
		ConsumptionKWh: consumption,
		DemandKW:       consumption * 4,
		Voltage:        voltage,
		PowerFactor:    pf,
		QualityFlag:    models.QualityNormal,
	}
}

func TestScore_NormalReading(t *testing.T) {
	res := detection.Score(reading(0.5, 230.0, 0.95), 0.5)

	assert.Equal(t, 0.0, res.AnomalyScore)
	assert.False(t, res.IsAnomaly)
	assert.Equal(t, models.DetectionRuleBased, res.DetectionMethod)
	assert.Empty(t, res.Reasons)
	assert.Equal(t, int64(42), res.MeterID)
}

func TestScore_VoltageHighCritical(t *testing.T) {
	res := detection.Score(reading(0.5, 260.0, 0.95), 0.5)

	require.Len(t, res.Reasons, 1)
	reason := res.Reasons[0]
	assert.Equal(t, models.ReasonVoltage, reason.Type)
	assert.Equal(t, models.SeverityCritical, reason.Severity)
	assert.Equal(t, "Voltage HIGH: 260.0V (13.0% deviation from 230V nominal)", reason.Message)
	assert.Equal(t, 260.0, reason.Value)
	assert.Equal(t, "216-244V", reason.Threshold)
	assert.Equal(t, 0.052, reason.Contribution)
	assert.False(t, res.IsAnomaly)
}

func TestScore_VoltageLowWarning(t *testing.T) {
	// 212V is a 7.8% deviation: past the 6% trigger, under the 10% critical line.
	res := detection.Score(reading(0.5, 212.0, 0.95), 0.5)

	require.Len(t, res.Reasons, 1)
	reason := res.Reasons[0]
	assert.Equal(t, models.SeverityWarning, reason.Severity)
	assert.Contains(t, reason.Message, "Voltage LOW: 212.0V")
}

func TestScore_VoltageBelowTriggerDoesNotFire(t *testing.T) {
	// 243V is a 5.7% deviation, under the 6% trigger.
	res := detection.Score(reading(0.5, 243.0, 0.95), 0.5)

	assert.Empty(t, res.Reasons)
	assert.Equal(t, 0.0, res.AnomalyScore)
}

func TestScore_ZeroVoltageSkipsCheck(t *testing.T) {
	res := detection.Score(reading(0.5, 0, 0.95), 0.5)

	assert.Empty(t, res.Reasons)
}

func TestScore_LowPowerFactorWarning(t *testing.T) {
	res := detection.Score(reading(0.5, 230.0, 0.80), 0.5)

	require.Len(t, res.Reasons, 1)
	reason := res.Reasons[0]
	assert.Equal(t, models.ReasonPowerFactor, reason.Type)
	assert.Equal(t, models.SeverityWarning, reason.Severity)
	assert.Equal(t, "Low power factor: 0.800 (minimum threshold: 0.85)", reason.Message)
	assert.Equal(t, ">= 0.85", reason.Threshold)
	assert.Equal(t, 0.015, reason.Contribution)
	assert.False(t, res.IsAnomaly)
}

func TestScore_VeryLowPowerFactorCritical(t *testing.T) {
	res := detection.Score(reading(0.5, 230.0, 0.70), 0.5)

	require.Len(t, res.Reasons, 1)
	assert.Equal(t, models.SeverityCritical, res.Reasons[0].Severity)
}

func TestScore_ConsumptionSpike(t *testing.T) {
	res := detection.Score(reading(4.0, 230.0, 0.95), 1.0)

	require.Len(t, res.Reasons, 1)
	reason := res.Reasons[0]
	assert.Equal(t, models.ReasonConsumption, reason.Type)
	assert.Equal(t, models.SeverityWarning, reason.Severity)
	assert.Equal(t, "Consumption spike: 4.000 kWh (300% vs 7-day avg of 1.000 kWh)", reason.Message)
	assert.Equal(t, 0.9, reason.Contribution)
	assert.True(t, res.IsAnomaly)
	assert.InDelta(t, 0.9, res.AnomalyScore, 1e-9)
}

func TestScore_ConsumptionSpikeCritical(t *testing.T) {
	// Deviation over 4x the baseline escalates to critical.
	res := detection.Score(reading(6.0, 230.0, 0.95), 1.0)

	require.Len(t, res.Reasons, 1)
	assert.Equal(t, models.SeverityCritical, res.Reasons[0].Severity)
}

func TestScore_ZeroBaselineSkipsConsumptionCheck(t *testing.T) {
	res := detection.Score(reading(100.0, 230.0, 0.95), 0)

	assert.Empty(t, res.Reasons)
	assert.False(t, res.IsAnomaly)
}

func TestScore_ClampsToOne(t *testing.T) {
	// All three rules firing hard push the raw sum past 1.0.
	res := detection.Score(reading(10.0, 300.0, 0.30), 1.0)

	assert.Equal(t, 1.0, res.AnomalyScore)
	assert.True(t, res.IsAnomaly)
	assert.Len(t, res.Reasons, 3)
}

func TestScore_ReasonsBelowThresholdAreNotAnomalies(t *testing.T) {
	// A lone power factor reason contributes far too little to flag.
	res := detection.Score(reading(0.5, 230.0, 0.76), 0.5)

	require.Len(t, res.Reasons, 1)
	assert.False(t, res.IsAnomaly)
}

func TestScore_ExactlyAtThresholdIsNotAnomalous(t *testing.T) {
	// 622.15V gives a voltage contribution of 0.682 and a 0.79 power factor
	// adds 0.018; in float64 the sum lands exactly on 0.7, which must not
	// flag (the comparison is strictly greater-than).
	res := detection.Score(reading(0.5, 622.15, 0.79), 0)

	assert.Equal(t, 0.7, res.AnomalyScore)
	assert.False(t, res.IsAnomaly)
	assert.Len(t, res.Reasons, 2)
}

func TestScore_JustAboveThresholdIsAnomalous(t *testing.T) {
	// 632.5V is a 175% deviation; 1.75 * 0.4 rounds up to the float64 just
	// above 0.7.
	res := detection.Score(reading(0.5, 632.5, 0.95), 0)

	assert.Greater(t, res.AnomalyScore, 0.7)
	assert.InDelta(t, 0.7, res.AnomalyScore, 1e-9)
	assert.True(t, res.IsAnomaly)
}

func TestScore_ReasonOrderIsVoltagePowerFactorConsumption(t *testing.T) {
	res := detection.Score(reading(10.0, 300.0, 0.30), 1.0)

	require.Len(t, res.Reasons, 3)
	assert.Equal(t, models.ReasonVoltage, res.Reasons[0].Type)
	assert.Equal(t, models.ReasonPowerFactor, res.Reasons[1].Type)
	assert.Equal(t, models.ReasonConsumption, res.Reasons[2].Type)
}
