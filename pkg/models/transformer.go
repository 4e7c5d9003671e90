package models

import "time"

// Transformer is a distribution transformer feeding a group of meters.
type Transformer struct {
	ID                int64     `db:"id"                 json:"id"`
	TransformerNumber string    `db:"transformer_number" json:"transformer_number"`
	CapacityKVA       float64   `db:"capacity_kva"       json:"capacity_kva"`
	AgeYears          float64   `db:"age_years"          json:"age_years"`
	Status            string    `db:"status"             json:"status"`
	FailureRisk       float64   `db:"failure_risk"       json:"failure_risk"`
	CreatedAt         time.Time `db:"created_at"         json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"         json:"updated_at"`
}

func (t *Transformer) AssetType() AssetType { return AssetTransformer }
func (t *Transformer) AssetID() int64       { return t.ID }
