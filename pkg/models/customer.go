package models

import "time"

// Customer is an anonymized account holder. The segment fields are written by
// an offline segmentation job; this backend only reads them.
type Customer struct {
	ID                    int64     `db:"id"                       json:"id"`
	CustomerHash          string    `db:"customer_hash"            json:"customer_hash"`
	SegmentID             *string   `db:"segment_id"               json:"segment_id,omitempty"`
	SegmentConfidence     *float64  `db:"segment_confidence"       json:"segment_confidence,omitempty"`
	TariffType            string    `db:"tariff_type"              json:"tariff_type"`
	SolarInstalled        bool      `db:"solar_installed"          json:"solar_installed"`
	EVCharging            bool      `db:"ev_charging"              json:"ev_charging"`
	DemandResponseOptedIn bool      `db:"demand_response_opted_in" json:"demand_response_opted_in"`
	CreatedAt             time.Time `db:"created_at"               json:"created_at"`
	UpdatedAt             time.Time `db:"updated_at"               json:"updated_at"`
}

func (c *Customer) AssetType() AssetType { return AssetCustomer }
func (c *Customer) AssetID() int64       { return c.ID }
