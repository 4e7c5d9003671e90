// Package models contains shared data models used across the RedMeters codebase.
package models

import "time"

const (
	MeterStatusActive         = "active"
	MeterStatusInactive       = "inactive"
	MeterStatusMaintenance    = "maintenance"
	MeterStatusDecommissioned = "decommissioned"
)

// SmartMeter represents a deployed electricity meter. A meter may be attached
// to a customer and to the distribution transformer that feeds it.
type SmartMeter struct {
	ID            int64      `db:"id"             json:"id"`
	MeterNumber   string     `db:"meter_number"   json:"meter_number"`
	CustomerID    *int64     `db:"customer_id"    json:"customer_id,omitempty"`
	TransformerID *int64     `db:"transformer_id" json:"transformer_id,omitempty"`
	MeterType     string     `db:"meter_type"     json:"meter_type"`
	Status        string     `db:"status"         json:"status"`
	InstalledAt   *time.Time `db:"installed_at"   json:"installed_at,omitempty"`
	CreatedAt     time.Time  `db:"created_at"     json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"     json:"updated_at"`
}

func (m *SmartMeter) AssetType() AssetType { return AssetSmartMeter }
func (m *SmartMeter) AssetID() int64       { return m.ID }
