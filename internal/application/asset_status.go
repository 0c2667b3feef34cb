package application

import "github.com/example/orgdesk/internal/persistence"

// DeriveAssetStatus is the single source of truth for an asset's status.
// A manual override (Under Repair, Damaged, Retired) sticks; otherwise the
// asset is Assigned while any unit is out and Available when none are.
// Partial and full allocation both map to Assigned.
func DeriveAssetStatus(quantity, quantityAssigned int, override persistence.AssetStatus) persistence.AssetStatus {
	if override.Manual() {
		return override
	}
	if quantity > 0 && quantityAssigned > 0 {
		return persistence.AssetAssigned
	}
	return persistence.AssetAvailable
}

// statusOverride returns the asset's current manual status, if any.
func statusOverride(asset persistence.Asset) persistence.AssetStatus {
	if asset.Status.Manual() {
		return asset.Status
	}
	return ""
}
