package models

import "fmt"

// AssetType discriminates the kind of asset an alert or prediction points at.
type AssetType string

const (
	AssetSmartMeter  AssetType = "smart_meter"
	AssetTransformer AssetType = "transformer"
	AssetCustomer    AssetType = "customer"
)

// AssetRef is a tagged reference to a grid asset. Resolution to the concrete
// row happens through the store, one typed lookup per variant.
type AssetRef struct {
	Type AssetType `json:"asset_type"`
	ID   int64     `json:"asset_id"`
}

// Asset is implemented by every model an AssetRef can resolve to.
type Asset interface {
	AssetType() AssetType
	AssetID() int64
}

func (r AssetRef) Validate() error {
	switch r.Type {
	case AssetSmartMeter, AssetTransformer, AssetCustomer:
	default:
		return fmt.Errorf("unknown asset type %q", r.Type)
	}
	if r.ID <= 0 {
		return fmt.Errorf("asset id must be positive, got %d", r.ID)
	}
	return nil
}
