package ml

import (
	"fmt"
	"time"

	"github.com/kiranshivaraju/redmeters/pkg/models"
)

// scoreRequest is the JSON batch sent to a scorer, one item per reading.
type scoreRequest struct {
	Readings []scoreRequestItem `json:"readings"`
}

type scoreRequestItem struct {
	MeterID        int64   `json:"meter_id"`
	ReadingTime    string  `json:"reading_time"`
	ConsumptionKWh float64 `json:"consumption_kwh"`
	DemandKW       float64 `json:"demand_kw"`
	Voltage        float64 `json:"voltage"`
	PowerFactor    float64 `json:"power_factor"`
}

type scoreResponse struct {
	Results []scoreResponseItem `json:"results"`
}

type scoreResponseItem struct {
	MeterID         int64   `json:"meter_id"`
	ReadingTime     string  `json:"reading_time"`
	AnomalyScore    float64 `json:"anomaly_score"`
	IsAnomaly       bool    `json:"is_anomaly"`
	DetectionMethod string  `json:"detection_method"`
}

func buildRequest(readings []models.MeterReading) scoreRequest {
	items := make([]scoreRequestItem, len(readings))
	for i, r := range readings {
		items[i] = scoreRequestItem{
			MeterID:        r.MeterID,
			ReadingTime:    r.ReadingTime.UTC().Format(time.RFC3339),
			ConsumptionKWh: r.ConsumptionKWh,
			DemandKW:       r.DemandKW,
			Voltage:        r.Voltage,
			PowerFactor:    r.PowerFactor,
		}
	}
	return scoreRequest{Readings: items}
}

// parseResults validates a scorer response against the input batch. The
// contract is strict: one result per reading, in input order. A partial or
// reordered batch is treated as a scorer failure, never as a partial success.
func parseResults(readings []models.MeterReading, resp scoreResponse) ([]models.AnomalyResult, error) {
	if len(resp.Results) != len(readings) {
		return nil, fmt.Errorf("%w: got %d results for %d readings",
			ErrInvalidResponse, len(resp.Results), len(readings))
	}

	results := make([]models.AnomalyResult, len(resp.Results))
	for i, item := range resp.Results {
		if item.MeterID != readings[i].MeterID {
			return nil, fmt.Errorf("%w: result %d is for meter %d, expected %d",
				ErrInvalidResponse, i, item.MeterID, readings[i].MeterID)
		}
		if item.AnomalyScore < 0 || item.AnomalyScore > 1 {
			return nil, fmt.Errorf("%w: result %d has score %f outside [0, 1]",
				ErrInvalidResponse, i, item.AnomalyScore)
		}

		// The adapter owns the tag: results from this path are always
		// ml_model, whatever the scorer reports about itself.
		results[i] = models.AnomalyResult{
			MeterID:         item.MeterID,
			ReadingTime:     readings[i].ReadingTime,
			AnomalyScore:    item.AnomalyScore,
			IsAnomaly:       item.IsAnomaly,
			DetectionMethod: models.DetectionMLModel,
		}
	}
	return results, nil
}
