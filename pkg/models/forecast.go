package models

import "time"

// DemandForecast is one point of a system-level demand forecast. Forecast
// generation lives outside this backend; rows are stored and served only.
type DemandForecast struct {
	ID                int64     `db:"id"                  json:"id"`
	ForecastTime      time.Time `db:"forecast_time"       json:"forecast_time"`
	PredictedDemandMW float64   `db:"predicted_demand_mw" json:"predicted_demand_mw"`
	ConfidenceLower   float64   `db:"confidence_lower"    json:"confidence_lower"`
	ConfidenceUpper   float64   `db:"confidence_upper"    json:"confidence_upper"`
	ActualDemandMW    *float64  `db:"actual_demand_mw"    json:"actual_demand_mw,omitempty"`
	CreatedAt         time.Time `db:"created_at"          json:"created_at"`
}
