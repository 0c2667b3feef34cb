package application

import (
	"context"
	"fmt"
	"sort"

	"github.com/example/orgdesk/internal/persistence"
)

const recentAssignmentsLimit = 10

// CategoryStat aggregates assets of one category.
type CategoryStat struct {
	Category      persistence.AssetCategory
	Assets        int
	Units         int
	AssignedUnits int
}

// UtilizationPercent is the share of units currently assigned.
func (c CategoryStat) UtilizationPercent() float64 {
	if c.Units == 0 {
		return 0
	}
	return float64(c.AssignedUnits) * 100 / float64(c.Units)
}

// AssetStats is the inventory summary.
type AssetStats struct {
	TotalAssets    int
	TotalUnits     int
	AssignedUnits  int
	AvailableUnits int
	ByStatus       map[persistence.AssetStatus]int
	ByCategory     []CategoryStat
}

// HeldAsset is one active assignment as seen from its holder.
type HeldAsset struct {
	AssignmentID string
	AssetID      string
	AssetCode    string
	AssetName    string
	Quantity     int
}

// HolderSummary groups the active assignments of one employee.
type HolderSummary struct {
	EmployeeID   string
	EmployeeName string
	Department   string
	Units        int
	Assets       []HeldAsset
}

// RoomHolding groups the active assignments placed in one room.
type RoomHolding struct {
	Room   string
	Units  int
	Assets []HeldAsset
}

// DetailedAnalytics is the extended inventory report.
type DetailedAnalytics struct {
	Summary           AssetStats
	ByCondition       map[persistence.AssetCondition]int
	Holders           []HolderSummary
	Rooms             []RoomHolding
	ActiveAssignments int
	RecentAssignments []AssignmentDetail
}

// AssetStats aggregates the active catalog.
func (s *AssetService) AssetStats(ctx context.Context, principal Principal) (stats AssetStats, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "AssetStats", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to aggregate asset stats", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	var assets []persistence.Asset
	assets, err = s.assets.ListAssets(ctx, persistence.AssetFilter{})
	if err != nil {
		err = mapRepoError("Asset", err)
		return
	}
	stats = summarizeAssets(assets)
	return
}

// DetailedAnalytics aggregates the catalog together with who holds what.
func (s *AssetService) DetailedAnalytics(ctx context.Context, principal Principal) (report DetailedAnalytics, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "DetailedAnalytics", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to build asset analytics", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	var assets []persistence.Asset
	assets, err = s.assets.ListAssets(ctx, persistence.AssetFilter{IncludeInactive: true})
	if err != nil {
		err = mapRepoError("Asset", err)
		return
	}
	byID := make(map[string]persistence.Asset, len(assets))
	active := make([]persistence.Asset, 0, len(assets))
	report.ByCondition = make(map[persistence.AssetCondition]int)
	for _, asset := range assets {
		byID[asset.ID] = asset
		if asset.IsActive {
			active = append(active, asset)
			report.ByCondition[asset.Condition]++
		}
	}
	report.Summary = summarizeAssets(active)

	var open []persistence.AssetAssignment
	open, err = s.assets.ListAssignments(ctx, persistence.AssignmentFilter{
		Statuses: []persistence.AssignmentStatus{persistence.AssignmentActive},
	})
	if err != nil {
		err = mapRepoError("Assignment", err)
		return
	}
	report.ActiveAssignments = len(open)

	holders := make(map[string]*HolderSummary)
	rooms := make(map[string]*RoomHolding)
	for _, a := range open {
		asset := byID[a.AssetID]
		held := HeldAsset{AssignmentID: a.ID, AssetID: a.AssetID, AssetCode: asset.Code, AssetName: asset.Name, Quantity: a.Quantity}
		if a.EmployeeID != "" {
			h, ok := holders[a.EmployeeID]
			if !ok {
				h = &HolderSummary{EmployeeID: a.EmployeeID}
				if employee, lookupErr := s.employees.GetEmployee(ctx, a.EmployeeID); lookupErr == nil {
					h.EmployeeName = employee.DisplayName
					h.Department = employee.Department
				}
				holders[a.EmployeeID] = h
			}
			h.Units += a.Quantity
			h.Assets = append(h.Assets, held)
			continue
		}
		r, ok := rooms[a.Room]
		if !ok {
			r = &RoomHolding{Room: a.Room}
			rooms[a.Room] = r
		}
		r.Units += a.Quantity
		r.Assets = append(r.Assets, held)
	}

	for _, h := range holders {
		report.Holders = append(report.Holders, *h)
	}
	sort.Slice(report.Holders, func(i, j int) bool {
		if report.Holders[i].Units == report.Holders[j].Units {
			return report.Holders[i].EmployeeName < report.Holders[j].EmployeeName
		}
		return report.Holders[i].Units > report.Holders[j].Units
	})
	for _, r := range rooms {
		report.Rooms = append(report.Rooms, *r)
	}
	sort.Slice(report.Rooms, func(i, j int) bool { return report.Rooms[i].Room < report.Rooms[j].Room })

	var recent []persistence.AssetAssignment
	recent, err = s.assets.ListAssignments(ctx, persistence.AssignmentFilter{Limit: recentAssignmentsLimit})
	if err != nil {
		err = mapRepoError("Assignment", err)
		return
	}
	report.RecentAssignments = s.describe(ctx, recent, byID)
	return
}

func summarizeAssets(assets []persistence.Asset) AssetStats {
	stats := AssetStats{ByStatus: make(map[persistence.AssetStatus]int)}
	categories := make(map[persistence.AssetCategory]*CategoryStat)
	for _, asset := range assets {
		stats.TotalAssets++
		stats.TotalUnits += asset.Quantity
		stats.AssignedUnits += asset.QuantityAssigned
		stats.ByStatus[asset.Status]++

		c, ok := categories[asset.Category]
		if !ok {
			c = &CategoryStat{Category: asset.Category}
			categories[asset.Category] = c
		}
		c.Assets++
		c.Units += asset.Quantity
		c.AssignedUnits += asset.QuantityAssigned
	}
	stats.AvailableUnits = stats.TotalUnits - stats.AssignedUnits

	for _, category := range persistence.AssetCategories {
		if c, ok := categories[category]; ok {
			stats.ByCategory = append(stats.ByCategory, *c)
		}
	}
	return stats
}
