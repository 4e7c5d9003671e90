package models

import "time"

const (
	QualityNormal  = "normal"
	QualityAnomaly = "anomaly"
)

// MeterReading is one timestamped measurement from a single smart meter.
// The quality flag is written only by the detection pass or the simulator,
// never by the API layer, and reflects the most recent evaluation.
type MeterReading struct {
	ID             int64     `db:"id"              json:"id"`
	MeterID        int64     `db:"meter_id"        json:"meter_id"`
	ReadingTime    time.Time `db:"reading_time"    json:"reading_time"`
	ConsumptionKWh float64   `db:"consumption_kwh" json:"consumption_kwh"`
	DemandKW       float64   `db:"demand_kw"       json:"demand_kw"`
	Voltage        float64   `db:"voltage"         json:"voltage"`
	PowerFactor    float64   `db:"power_factor"    json:"power_factor"`
	QualityFlag    string    `db:"quality_flag"    json:"quality_flag"`
}

func (r *MeterReading) Anomaly() bool {
	return r.QualityFlag == QualityAnomaly
}
