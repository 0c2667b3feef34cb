package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

func TestDeriveAssetStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		quantity int
		assigned int
		override persistence.AssetStatus
		want     persistence.AssetStatus
	}{
		{name: "nothing assigned", quantity: 10, assigned: 0, want: persistence.AssetAvailable},
		{name: "partially assigned", quantity: 10, assigned: 3, want: persistence.AssetAssigned},
		{name: "fully assigned", quantity: 10, assigned: 10, want: persistence.AssetAssigned},
		{name: "repair sticks", quantity: 10, assigned: 3, override: persistence.AssetUnderRepair, want: persistence.AssetUnderRepair},
		{name: "damaged sticks when idle", quantity: 1, assigned: 0, override: persistence.AssetDamaged, want: persistence.AssetDamaged},
		{name: "retired sticks", quantity: 4, assigned: 0, override: persistence.AssetRetired, want: persistence.AssetRetired},
		{name: "derived override ignored", quantity: 4, assigned: 0, override: persistence.AssetAssigned, want: persistence.AssetAvailable},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, application.DeriveAssetStatus(tc.quantity, tc.assigned, tc.override))
		})
	}
}

// Any interleaving of assigns and returns keeps the counter in range and
// equal to the units held by active assignments.
func TestAssetQuantityInvariantHolds(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := testfixtures.NewHarness(t)
		ctx := context.Background()
		admin := h.SeedEmployee(t, testfixtures.AsAdmin())
		holder := h.SeedEmployee(t)
		total := rapid.IntRange(1, 8).Draw(rt, "quantity")
		asset := h.SeedAsset(t, testfixtures.WithQuantity(total))

		var active []string
		steps := rapid.IntRange(1, 25).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			if len(active) > 0 && rapid.Bool().Draw(rt, "return") {
				idx := rapid.IntRange(0, len(active)-1).Draw(rt, "which")
				_, err := h.Assets.Return(ctx, application.ReturnParams{
					Principal:    testfixtures.PrincipalOf(admin),
					AssignmentID: active[idx],
					Condition:    persistence.ConditionGood,
				})
				if err != nil {
					rt.Fatalf("return: %v", err)
				}
				active = append(active[:idx], active[idx+1:]...)
			} else {
				want := rapid.IntRange(1, total+1).Draw(rt, "units")
				before := h.Asset(t, asset.ID)
				result, err := h.Assets.Assign(ctx, application.AssignParams{
					Principal:  testfixtures.PrincipalOf(admin),
					AssetID:    asset.ID,
					EmployeeID: holder.ID,
					Quantity:   &want,
				})
				if want > before.Available() {
					if err == nil {
						rt.Fatalf("assigned %d with only %d available", want, before.Available())
					}
				} else {
					if err != nil {
						rt.Fatalf("assign: %v", err)
					}
					active = append(active, result.Assignment.ID)
				}
			}

			current := h.Asset(t, asset.ID)
			open, err := h.Repos.Assets.ListAssignments(ctx, persistence.AssignmentFilter{
				AssetID:  asset.ID,
				Statuses: []persistence.AssignmentStatus{persistence.AssignmentActive},
			})
			if err != nil {
				rt.Fatalf("list assignments: %v", err)
			}
			held := 0
			for _, a := range open {
				held += a.Quantity
			}
			if current.QuantityAssigned < 0 || current.QuantityAssigned > current.Quantity {
				rt.Fatalf("assigned %d outside [0,%d]", current.QuantityAssigned, current.Quantity)
			}
			if held != current.QuantityAssigned {
				rt.Fatalf("active assignments hold %d but counter says %d", held, current.QuantityAssigned)
			}
			if want := application.DeriveAssetStatus(current.Quantity, current.QuantityAssigned, ""); current.Status != want {
				rt.Fatalf("status %s, want %s", current.Status, want)
			}
		}
	})
}

func TestAssetAnalytics(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := h.SeedEmployee(t, testfixtures.AsAdmin())
	worker := h.SeedEmployee(t)
	laptops := h.SeedAsset(t, testfixtures.WithQuantity(4))
	h.SeedAsset(t, testfixtures.WithCategory(persistence.CategoryMonitor), testfixtures.WithQuantity(2), testfixtures.WithAssetStatus(persistence.AssetUnderRepair))
	h.SeedAsset(t, testfixtures.Retired())

	qty := 3
	_, err := h.Assets.Assign(ctx, application.AssignParams{
		Principal:  testfixtures.PrincipalOf(admin),
		AssetID:    laptops.ID,
		EmployeeID: worker.ID,
		Quantity:   &qty,
	})
	require.NoError(t, err)

	_, err = h.Assets.AssetStats(ctx, testfixtures.PrincipalOf(worker))
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	stats, err := h.Assets.AssetStats(ctx, testfixtures.PrincipalOf(admin))
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalAssets)
	assert.Equal(t, 6, stats.TotalUnits)
	assert.Equal(t, 3, stats.AssignedUnits)
	assert.Equal(t, 3, stats.AvailableUnits)
	assert.Equal(t, 1, stats.ByStatus[persistence.AssetAssigned])
	assert.Equal(t, 1, stats.ByStatus[persistence.AssetUnderRepair])
	require.Len(t, stats.ByCategory, 2)
	assert.Equal(t, persistence.CategoryLaptop, stats.ByCategory[0].Category)
	assert.InDelta(t, 75.0, stats.ByCategory[0].UtilizationPercent(), 0.001)

	report, err := h.Assets.DetailedAnalytics(ctx, testfixtures.PrincipalOf(admin))
	require.NoError(t, err)
	assert.Equal(t, 1, report.ActiveAssignments)
	require.Len(t, report.Holders, 1)
	assert.Equal(t, worker.DisplayName, report.Holders[0].EmployeeName)
	assert.Equal(t, 3, report.Holders[0].Units)
	assert.Empty(t, report.Rooms)
	require.Len(t, report.RecentAssignments, 1)
	assert.Equal(t, laptops.Name, report.RecentAssignments[0].AssetName)
}
