package persistence_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/persistence/memory"
	"github.com/example/orgdesk/internal/testfixtures"
)

type backend struct {
	name string
	open func(t *testing.T) persistence.Repositories
}

var backends = []backend{
	{name: "memory", open: func(*testing.T) persistence.Repositories { return memory.Open().Repositories() }},
	{name: "sqlite", open: func(t *testing.T) persistence.Repositories { return testfixtures.OpenSQLiteStore(t).Repositories() }},
	{name: "mongo", open: func(t *testing.T) persistence.Repositories { return testfixtures.OpenMongoStore(t).Repositories() }},
}

// forEachBackend runs fn against a fresh store of every implementation. The
// mongo backend is skipped unless testfixtures.MongoURIEnv is set.
func forEachBackend(t *testing.T, fn func(t *testing.T, repos persistence.Repositories)) {
	t.Helper()
	for _, b := range backends {
		b := b
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			fn(t, b.open(t))
		})
	}
}

func seedEmployee(t *testing.T, repos persistence.Repositories, opts ...testfixtures.EmployeeOption) persistence.Employee {
	t.Helper()
	employee := testfixtures.NewEmployeeFixture(opts...).Persistence()
	require.NoError(t, repos.Employees.CreateEmployee(context.Background(), employee))
	return employee
}

func ptr[T any](v T) *T { return &v }

func TestEmployeeRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		alice := seedEmployee(t, repos,
			testfixtures.WithEmail("Alice@Example.com"),
			testfixtures.WithDisplayName("Alice"),
			testfixtures.AsManager(),
			testfixtures.WithDeviceUserID("17"),
		)
		bob := seedEmployee(t, repos, testfixtures.WithDisplayName("Bob"), testfixtures.Inactive())

		fetched, err := repos.Employees.GetEmployee(ctx, alice.ID)
		require.NoError(t, err)
		assert.Equal(t, alice, fetched)

		byEmail, err := repos.Employees.GetEmployeeByEmail(ctx, "alice@example.com")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byEmail.ID)

		byDevice, err := repos.Employees.GetEmployeeByDeviceUserID(ctx, "17")
		require.NoError(t, err)
		assert.Equal(t, alice.ID, byDevice.ID)

		_, err = repos.Employees.GetEmployeeByDeviceUserID(ctx, "")
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		_, err = repos.Employees.GetEmployee(ctx, "missing")
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		t.Run("uniqueness", func(t *testing.T) {
			dupEmail := testfixtures.NewEmployeeFixture(testfixtures.WithEmail("ALICE@example.com")).Persistence()
			assert.ErrorIs(t, repos.Employees.CreateEmployee(ctx, dupEmail), persistence.ErrDuplicate)

			dupDevice := testfixtures.NewEmployeeFixture(testfixtures.WithDeviceUserID("17")).Persistence()
			assert.ErrorIs(t, repos.Employees.CreateEmployee(ctx, dupDevice), persistence.ErrDuplicate)

			assert.ErrorIs(t, repos.Employees.CreateEmployee(ctx, alice), persistence.ErrDuplicate)
			assert.ErrorIs(t, repos.Employees.CreateEmployee(ctx, persistence.Employee{Email: "x@example.com"}), persistence.ErrConstraintViolation)

			clash := bob
			clash.Email = alice.Email
			assert.ErrorIs(t, repos.Employees.UpdateEmployee(ctx, clash), persistence.ErrDuplicate)
		})

		t.Run("update", func(t *testing.T) {
			updated := bob
			updated.IsActive = true
			updated.Role = persistence.RoleAdmin
			updated.UpdatedAt = bob.UpdatedAt.Add(time.Hour)
			require.NoError(t, repos.Employees.UpdateEmployee(ctx, updated))

			fetched, err := repos.Employees.GetEmployee(ctx, bob.ID)
			require.NoError(t, err)
			assert.Equal(t, updated, fetched)

			ghost := updated
			ghost.ID = "ghost"
			ghost.Email = "ghost@example.com"
			assert.ErrorIs(t, repos.Employees.UpdateEmployee(ctx, ghost), persistence.ErrNotFound)

			updated.IsActive = false
			updated.Role = persistence.RoleEmployee
			require.NoError(t, repos.Employees.UpdateEmployee(ctx, updated))
		})

		t.Run("list", func(t *testing.T) {
			all, err := repos.Employees.ListEmployees(ctx, persistence.EmployeeFilter{})
			require.NoError(t, err)
			require.Len(t, all, 2)
			assert.Equal(t, []string{"Alice", "Bob"}, []string{all[0].DisplayName, all[1].DisplayName})

			active, err := repos.Employees.ListEmployees(ctx, persistence.EmployeeFilter{ActiveOnly: true})
			require.NoError(t, err)
			require.Len(t, active, 1)
			assert.Equal(t, alice.ID, active[0].ID)

			managers, err := repos.Employees.ListEmployees(ctx, persistence.EmployeeFilter{Roles: []persistence.Role{persistence.RoleManager, persistence.RoleAdmin}})
			require.NoError(t, err)
			require.Len(t, managers, 1)
			assert.Equal(t, alice.ID, managers[0].ID)
		})
	})
}

func TestSessionRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		employee := seedEmployee(t, repos)
		base := testfixtures.ReferenceTime()

		session := testfixtures.NewSession(employee.ID, time.Hour)
		created, err := repos.Sessions.CreateSession(ctx, session)
		require.NoError(t, err)
		assert.Equal(t, session, created)

		_, err = repos.Sessions.CreateSession(ctx, session)
		assert.ErrorIs(t, err, persistence.ErrDuplicate)

		blank := testfixtures.NewSession(employee.ID, time.Hour)
		blank.Token = ""
		_, err = repos.Sessions.CreateSession(ctx, blank)
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)

		rotated := session
		rotated.Token = "rotated-token"
		rotated.ExpiresAt = base.Add(2 * time.Hour)
		rotated.UpdatedAt = base.Add(time.Minute)
		_, err = repos.Sessions.UpdateSession(ctx, rotated)
		require.NoError(t, err)

		_, err = repos.Sessions.GetSession(ctx, session.Token)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
		fetched, err := repos.Sessions.GetSession(ctx, "rotated-token")
		require.NoError(t, err)
		assert.Equal(t, session.ID, fetched.ID)
		assert.True(t, fetched.ExpiresAt.Equal(rotated.ExpiresAt))

		ghost := rotated
		ghost.ID = "no-such-session"
		_, err = repos.Sessions.UpdateSession(ctx, ghost)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		revokedAt := base.Add(5 * time.Minute)
		revoked, err := repos.Sessions.RevokeSession(ctx, "rotated-token", revokedAt)
		require.NoError(t, err)
		require.NotNil(t, revoked.RevokedAt)
		assert.True(t, revoked.RevokedAt.Equal(revokedAt))
		assert.True(t, revoked.UpdatedAt.Equal(revokedAt))

		_, err = repos.Sessions.RevokeSession(ctx, "unknown", revokedAt)
		assert.ErrorIs(t, err, persistence.ErrNotFound)

		short := testfixtures.NewSession(employee.ID, time.Minute)
		_, err = repos.Sessions.CreateSession(ctx, short)
		require.NoError(t, err)

		require.NoError(t, repos.Sessions.DeleteExpiredSessions(ctx, base.Add(time.Minute)))
		_, err = repos.Sessions.GetSession(ctx, short.Token)
		assert.ErrorIs(t, err, persistence.ErrNotFound, "expiry at the reference instant counts as expired")
		_, err = repos.Sessions.GetSession(ctx, "rotated-token")
		assert.NoError(t, err)
	})
}

func TestAssetRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		first, err := repos.Assets.NextAssetSequence(ctx)
		require.NoError(t, err)
		second, err := repos.Assets.NextAssetSequence(ctx)
		require.NoError(t, err)
		assert.Equal(t, first+1, second)

		laptop := testfixtures.NewAssetFixture(testfixtures.WithAssetName("ThinkPad X1"), testfixtures.WithQuantity(3)).Persistence()
		laptop.SerialNumber = "SN-100%"
		laptop.CreatedAt = base.Add(-2 * time.Hour)
		laptop.UpdatedAt = laptop.CreatedAt
		laptop.PurchaseDate = ptr(testfixtures.Date(2024, time.March, 1))
		require.NoError(t, repos.Assets.CreateAsset(ctx, laptop))

		monitor := testfixtures.NewAssetFixture(testfixtures.WithAssetName("Dell Monitor"), testfixtures.WithCategory(persistence.CategoryMonitor)).Persistence()
		monitor.CreatedAt = base.Add(-time.Hour)
		monitor.UpdatedAt = monitor.CreatedAt
		require.NoError(t, repos.Assets.CreateAsset(ctx, monitor))

		retired := testfixtures.NewAssetFixture(testfixtures.Retired(), testfixtures.WithAssetStatus(persistence.AssetRetired)).Persistence()
		retired.CreatedAt = base
		retired.UpdatedAt = base
		require.NoError(t, repos.Assets.CreateAsset(ctx, retired))

		t.Run("create guards", func(t *testing.T) {
			assert.ErrorIs(t, repos.Assets.CreateAsset(ctx, laptop), persistence.ErrDuplicate)

			sameCode := testfixtures.NewAssetFixture().Persistence()
			sameCode.Code = laptop.Code
			assert.ErrorIs(t, repos.Assets.CreateAsset(ctx, sameCode), persistence.ErrDuplicate)

			over := testfixtures.NewAssetFixture().Persistence()
			over.QuantityAssigned = 2
			assert.ErrorIs(t, repos.Assets.CreateAsset(ctx, over), persistence.ErrConstraintViolation)
		})

		t.Run("get returns version one", func(t *testing.T) {
			fetched, err := repos.Assets.GetAsset(ctx, laptop.ID)
			require.NoError(t, err)
			assert.Equal(t, laptop, fetched)
			assert.EqualValues(t, 1, fetched.Version)

			_, err = repos.Assets.GetAsset(ctx, "missing")
			assert.ErrorIs(t, err, persistence.ErrNotFound)
		})

		t.Run("list filters and order", func(t *testing.T) {
			active, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{})
			require.NoError(t, err)
			require.Len(t, active, 2)
			assert.Equal(t, []string{monitor.ID, laptop.ID}, []string{active[0].ID, active[1].ID})

			everything, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{IncludeInactive: true})
			require.NoError(t, err)
			require.Len(t, everything, 3)
			assert.Equal(t, retired.ID, everything[0].ID)

			monitors, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{Category: persistence.CategoryMonitor})
			require.NoError(t, err)
			require.Len(t, monitors, 1)
			assert.Equal(t, monitor.ID, monitors[0].ID)

			bySerial, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{Search: "sn-100%"})
			require.NoError(t, err)
			require.Len(t, bySerial, 1)
			assert.Equal(t, laptop.ID, bySerial[0].ID)

			wildcard, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{Search: "%"})
			require.NoError(t, err)
			assert.Len(t, wildcard, 1, "wildcards match literally")

			byName, err := repos.Assets.ListAssets(ctx, persistence.AssetFilter{Search: "  thinkpad "})
			require.NoError(t, err)
			assert.Len(t, byName, 1)
		})

		t.Run("optimistic version guard", func(t *testing.T) {
			update := monitor
			update.Location = "Floor 3"
			update.Code = "IGNORED"
			update.UpdatedAt = base.Add(time.Minute)
			require.NoError(t, repos.Assets.UpdateAsset(ctx, update, 1))

			fetched, err := repos.Assets.GetAsset(ctx, monitor.ID)
			require.NoError(t, err)
			assert.EqualValues(t, 2, fetched.Version)
			assert.Equal(t, "Floor 3", fetched.Location)
			assert.Equal(t, monitor.Code, fetched.Code, "code is immutable")

			assert.ErrorIs(t, repos.Assets.UpdateAsset(ctx, update, 1), persistence.ErrVersionConflict)

			bad := fetched
			bad.QuantityAssigned = bad.Quantity + 1
			assert.ErrorIs(t, repos.Assets.UpdateAsset(ctx, bad, 2), persistence.ErrConstraintViolation)

			ghost := update
			ghost.ID = "missing"
			assert.ErrorIs(t, repos.Assets.UpdateAsset(ctx, ghost, 1), persistence.ErrNotFound)
		})

		t.Run("assign and return commit atomically", func(t *testing.T) {
			employee := seedEmployee(t, repos)
			assigned := laptop
			assigned.QuantityAssigned = 2
			assigned.Status = persistence.AssetAssigned
			assigned.UpdatedAt = base

			assignment := persistence.AssetAssignment{
				ID:                    "assign-1",
				AssetID:               laptop.ID,
				EmployeeID:            employee.ID,
				Quantity:              2,
				ConditionAtAssignment: persistence.ConditionGood,
				AssignedBy:            "admin",
				AssignedAt:            base,
				Status:                persistence.AssignmentActive,
				CreatedAt:             base,
				UpdatedAt:             base,
			}
			outbox := []persistence.OutboxMessage{{
				ID: "msg-assign", Kind: persistence.OutboxNotification, Payload: []byte(`{}`),
				AvailableAt: base, CreatedAt: base,
			}}

			stale := persistence.AssetMutation{Asset: assigned, ExpectedVersion: 7, Assignment: assignment, Outbox: outbox}
			assert.ErrorIs(t, repos.Assets.CommitAssign(ctx, stale), persistence.ErrVersionConflict)
			_, err := repos.Assets.GetAssignment(ctx, assignment.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound, "conflicting assign leaves no assignment")
			pending, err := repos.Outbox.ListOutbox(ctx, persistence.OutboxFilter{})
			require.NoError(t, err)
			assert.Empty(t, pending, "conflicting assign leaves no outbox message")

			require.NoError(t, repos.Assets.CommitAssign(ctx, persistence.AssetMutation{
				Asset: assigned, ExpectedVersion: 1, Assignment: assignment, Outbox: outbox,
			}))
			assert.ErrorIs(t, repos.Assets.CommitAssign(ctx, persistence.AssetMutation{
				Asset: assigned, ExpectedVersion: 2, Assignment: assignment,
			}), persistence.ErrDuplicate)

			stored, err := repos.Assets.GetAsset(ctx, laptop.ID)
			require.NoError(t, err)
			assert.Equal(t, 2, stored.QuantityAssigned)
			assert.EqualValues(t, 2, stored.Version)

			fetched, err := repos.Assets.GetAssignment(ctx, assignment.ID)
			require.NoError(t, err)
			assert.Equal(t, assignment, fetched)

			messages, err := repos.Outbox.ListOutbox(ctx, persistence.OutboxFilter{})
			require.NoError(t, err)
			require.Len(t, messages, 1)
			assert.Equal(t, persistence.OutboxPending, messages[0].Status)

			returned := assignment
			returned.Status = persistence.AssignmentReturned
			returned.ReturnDate = ptr(base.Add(time.Hour))
			returned.ConditionAtReturn = persistence.ConditionFair
			returned.ReturnNotes = "scratched lid"
			returned.ReturnedBy = "admin"
			returned.UpdatedAt = base.Add(time.Hour)
			released := stored
			released.QuantityAssigned = 0
			released.Status = persistence.AssetAvailable

			require.NoError(t, repos.Assets.CommitReturn(ctx, persistence.AssetMutation{
				Asset: released, ExpectedVersion: 2, Assignment: returned,
			}))
			fetched, err = repos.Assets.GetAssignment(ctx, assignment.ID)
			require.NoError(t, err)
			assert.Equal(t, returned, fetched)

			assert.ErrorIs(t, repos.Assets.CommitReturn(ctx, persistence.AssetMutation{
				Asset: released, ExpectedVersion: 3, Assignment: returned,
			}), persistence.ErrStaleState)

			missing := returned
			missing.ID = "assign-missing"
			assert.ErrorIs(t, repos.Assets.CommitReturn(ctx, persistence.AssetMutation{
				Asset: released, ExpectedVersion: 3, Assignment: missing,
			}), persistence.ErrNotFound)

			history, err := repos.Assets.ListAssignments(ctx, persistence.AssignmentFilter{AssetID: laptop.ID})
			require.NoError(t, err)
			require.Len(t, history, 1)
			active, err := repos.Assets.ListAssignments(ctx, persistence.AssignmentFilter{
				EmployeeID: employee.ID, Statuses: []persistence.AssignmentStatus{persistence.AssignmentActive},
			})
			require.NoError(t, err)
			assert.Empty(t, active)
		})
	})
}

func TestAssignmentListingOrder(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()
		asset := testfixtures.NewAssetFixture(testfixtures.WithQuantity(5)).Persistence()
		require.NoError(t, repos.Assets.CreateAsset(ctx, asset))

		for i, id := range []string{"a-1", "a-2", "a-3"} {
			current, err := repos.Assets.GetAsset(ctx, asset.ID)
			require.NoError(t, err)
			current.QuantityAssigned++
			at := base.Add(time.Duration(i) * time.Minute)
			require.NoError(t, repos.Assets.CommitAssign(ctx, persistence.AssetMutation{
				Asset:           current,
				ExpectedVersion: current.Version,
				Assignment: persistence.AssetAssignment{
					ID: id, AssetID: asset.ID, Room: "Lab", Quantity: 1,
					AssignedAt: at, Status: persistence.AssignmentActive, CreatedAt: at, UpdatedAt: at,
				},
			}))
		}

		listed, err := repos.Assets.ListAssignments(ctx, persistence.AssignmentFilter{AssetID: asset.ID, Limit: 2})
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, []string{"a-3", "a-2"}, []string{listed[0].ID, listed[1].ID})
	})
}

func TestLeaveRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		employee := seedEmployee(t, repos)
		base := testfixtures.ReferenceTime()

		june := testfixtures.NewLeave(employee.ID, testfixtures.Date(2025, time.June, 10), testfixtures.Date(2025, time.June, 12))
		july := testfixtures.NewLeave(employee.ID, testfixtures.Date(2025, time.July, 1), testfixtures.Date(2025, time.July, 1))
		july.CreatedAt = base.Add(time.Minute)
		require.NoError(t, repos.Leaves.CreateLeave(ctx, june))
		require.NoError(t, repos.Leaves.CreateLeave(ctx, july))

		backwards := testfixtures.NewLeave(employee.ID, testfixtures.Date(2025, time.June, 5), testfixtures.Date(2025, time.June, 4))
		assert.ErrorIs(t, repos.Leaves.CreateLeave(ctx, backwards), persistence.ErrConstraintViolation)
		assert.ErrorIs(t, repos.Leaves.CreateLeave(ctx, june), persistence.ErrDuplicate)

		fetched, err := repos.Leaves.GetLeave(ctx, june.ID)
		require.NoError(t, err)
		assert.Equal(t, june, fetched)
		assert.Equal(t, 3, fetched.Days())

		t.Run("overlap window is inclusive", func(t *testing.T) {
			cases := []struct {
				name     string
				from, to time.Time
				want     []string
			}{
				{"touches last day", testfixtures.Date(2025, time.June, 12), testfixtures.Date(2025, time.June, 20), []string{june.ID}},
				{"touches first day", testfixtures.Date(2025, time.June, 1), testfixtures.Date(2025, time.June, 10), []string{june.ID}},
				{"gap between leaves", testfixtures.Date(2025, time.June, 13), testfixtures.Date(2025, time.June, 30), nil},
				{"spans both", testfixtures.Date(2025, time.June, 1), testfixtures.Date(2025, time.July, 31), []string{july.ID, june.ID}},
			}
			for _, tc := range cases {
				leaves, err := repos.Leaves.ListLeaves(ctx, persistence.LeaveFilter{
					EmployeeID: employee.ID, OverlapsFrom: ptr(tc.from), OverlapsTo: ptr(tc.to),
				})
				require.NoError(t, err, tc.name)
				var ids []string
				for _, l := range leaves {
					ids = append(ids, l.ID)
				}
				assert.Equal(t, tc.want, ids, tc.name)
			}
		})

		t.Run("decision commits attendance and outbox", func(t *testing.T) {
			approved := june
			approved.Status = persistence.LeaveApproved
			approved.ApprovedBy = "manager-1"
			approved.ReviewedAt = ptr(base.Add(time.Hour))
			approved.UpdatedAt = base.Add(time.Hour)

			var rows []persistence.Attendance
			for d := 10; d <= 12; d++ {
				rows = append(rows, persistence.Attendance{
					EmployeeID: employee.ID, WorkDate: testfixtures.Date(2025, time.June, d),
					Status: persistence.AttendanceLeave, Source: persistence.SourceLeave, Remarks: "Annual leave",
					CreatedAt: base, UpdatedAt: base,
				})
			}
			require.NoError(t, repos.Leaves.CommitLeaveDecision(ctx, persistence.LeaveDecision{
				Leave:      approved,
				Attendance: rows,
				Outbox: []persistence.OutboxMessage{{
					ID: "leave-msg", Kind: persistence.OutboxAudit, Payload: []byte(`{}`), AvailableAt: base, CreatedAt: base,
				}},
			}))

			stored, err := repos.Leaves.GetLeave(ctx, june.ID)
			require.NoError(t, err)
			assert.Equal(t, approved, stored)

			attendance, err := repos.Attendance.ListAttendance(ctx, persistence.AttendanceFilter{EmployeeID: employee.ID})
			require.NoError(t, err)
			require.Len(t, attendance, 3)
			assert.True(t, attendance[0].WorkDate.Equal(testfixtures.Date(2025, time.June, 12)))

			counts, err := repos.Outbox.CountOutbox(ctx)
			require.NoError(t, err)
			assert.Equal(t, 1, counts[persistence.OutboxPending])

			err = repos.Leaves.CommitLeaveDecision(ctx, persistence.LeaveDecision{Leave: approved})
			assert.ErrorIs(t, err, persistence.ErrStaleState)

			approvedOnly, err := repos.Leaves.ListLeaves(ctx, persistence.LeaveFilter{Statuses: []persistence.LeaveStatus{persistence.LeaveApproved}})
			require.NoError(t, err)
			require.Len(t, approvedOnly, 1)
		})

		t.Run("delete guarded on status", func(t *testing.T) {
			assert.ErrorIs(t, repos.Leaves.DeleteLeave(ctx, june.ID, persistence.LeavePending), persistence.ErrStaleState)
			assert.ErrorIs(t, repos.Leaves.DeleteLeave(ctx, "missing", persistence.LeavePending), persistence.ErrNotFound)
			require.NoError(t, repos.Leaves.DeleteLeave(ctx, july.ID, persistence.LeavePending))
			_, err := repos.Leaves.GetLeave(ctx, july.ID)
			assert.ErrorIs(t, err, persistence.ErrNotFound)
		})
	})
}

func TestAttendanceRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		alice := seedEmployee(t, repos, testfixtures.WithEmployeeID("att-alice"))
		bob := seedEmployee(t, repos, testfixtures.WithEmployeeID("att-bob"))
		base := testfixtures.ReferenceTime()
		day := testfixtures.Date(2025, time.June, 2)

		_, err := repos.Attendance.UpsertAttendance(ctx, persistence.Attendance{WorkDate: day})
		assert.ErrorIs(t, err, persistence.ErrConstraintViolation)

		checkIn := day.Add(9*time.Hour + 40*time.Minute)
		late, err := repos.Attendance.UpsertAttendance(ctx, persistence.Attendance{
			EmployeeID: alice.ID, WorkDate: day, Status: persistence.AttendanceLate,
			CheckIn: &checkIn, Source: persistence.SourceDevice, CreatedAt: base, UpdatedAt: base,
		})
		require.NoError(t, err)
		require.NotEmpty(t, late.ID)

		t.Run("justification guarded on expected status", func(t *testing.T) {
			submitted := base.Add(time.Hour)
			require.NoError(t, repos.Attendance.CommitJustification(ctx, persistence.JustificationChange{
				AttendanceID: late.ID,
				Expected:     persistence.JustificationNone,
				Justification: persistence.Justification{
					Reason: "Train delay", Status: persistence.JustificationPending, SubmittedAt: &submitted,
				},
				UpdatedAt: submitted,
				Outbox: []persistence.OutboxMessage{{
					ID: "just-msg", Kind: persistence.OutboxNotification, Payload: []byte(`{}`), AvailableAt: submitted, CreatedAt: submitted,
				}},
			}))

			err := repos.Attendance.CommitJustification(ctx, persistence.JustificationChange{
				AttendanceID: late.ID, Expected: persistence.JustificationNone,
			})
			assert.ErrorIs(t, err, persistence.ErrStaleState)
			err = repos.Attendance.CommitJustification(ctx, persistence.JustificationChange{AttendanceID: "missing"})
			assert.ErrorIs(t, err, persistence.ErrNotFound)

			reviewed := base.Add(2 * time.Hour)
			require.NoError(t, repos.Attendance.CommitJustification(ctx, persistence.JustificationChange{
				AttendanceID: late.ID,
				Expected:     persistence.JustificationPending,
				Justification: persistence.Justification{
					Reason: "Train delay", Status: persistence.JustificationApproved, SubmittedAt: &submitted,
					ReviewedBy: "manager-1", ReviewedAt: &reviewed, ReviewNote: "ok",
				},
				Status:    persistence.AttendanceExcused,
				Remarks:   "Justified: Train delay",
				UpdatedAt: reviewed,
			}))

			row, err := repos.Attendance.GetAttendance(ctx, late.ID)
			require.NoError(t, err)
			assert.Equal(t, persistence.AttendanceExcused, row.Status)
			assert.Equal(t, persistence.JustificationApproved, row.Justification.Status)
			assert.Equal(t, "manager-1", row.Justification.ReviewedBy)
			assert.Equal(t, "Justified: Train delay", row.Remarks)
			require.NotNil(t, row.Justification.ReviewedAt)
			assert.True(t, row.Justification.ReviewedAt.Equal(reviewed))
		})

		t.Run("upsert keeps identity and justification", func(t *testing.T) {
			checkOut := day.Add(18 * time.Hour)
			again, err := repos.Attendance.UpsertAttendance(ctx, persistence.Attendance{
				ID: "ignored", EmployeeID: alice.ID, WorkDate: day, Status: persistence.AttendancePresent,
				CheckIn: &checkIn, CheckOut: &checkOut, Source: persistence.SourceManual,
				CreatedAt: base.Add(time.Hour), UpdatedAt: base.Add(3 * time.Hour),
			})
			require.NoError(t, err)
			assert.Equal(t, late.ID, again.ID)
			assert.True(t, again.CreatedAt.Equal(base))
			assert.Equal(t, persistence.JustificationApproved, again.Justification.Status)

			byDay, err := repos.Attendance.GetAttendanceByDay(ctx, alice.ID, day.Add(15*time.Hour))
			require.NoError(t, err)
			assert.Equal(t, persistence.AttendancePresent, byDay.Status)
			require.NotNil(t, byDay.CheckOut)
			assert.True(t, byDay.CheckOut.Equal(checkOut))
		})

		t.Run("device ingest advances the watermark forward only", func(t *testing.T) {
			watermark, err := repos.Attendance.DeviceWatermark(ctx, "dev-1")
			require.NoError(t, err)
			assert.True(t, watermark.IsZero())

			next := testfixtures.Date(2025, time.June, 3)
			punch := next.Add(8*time.Hour + 55*time.Minute)
			require.NoError(t, repos.Attendance.IngestDevice(ctx, persistence.DeviceIngest{
				DeviceID: "dev-1",
				Rows: []persistence.Attendance{
					{EmployeeID: alice.ID, WorkDate: next, Status: persistence.AttendancePresent, CheckIn: &punch, Source: persistence.SourceDevice, CreatedAt: base, UpdatedAt: base},
					{EmployeeID: bob.ID, WorkDate: next, Status: persistence.AttendanceLate, CheckIn: &punch, Source: persistence.SourceDevice, CreatedAt: base, UpdatedAt: base},
				},
				Watermark: punch,
				At:        base,
			}))

			require.NoError(t, repos.Attendance.IngestDevice(ctx, persistence.DeviceIngest{
				DeviceID: "dev-1", Watermark: punch.Add(-time.Hour), At: base,
			}))
			watermark, err = repos.Attendance.DeviceWatermark(ctx, "dev-1")
			require.NoError(t, err)
			assert.True(t, watermark.Equal(punch))
		})

		t.Run("list filters", func(t *testing.T) {
			all, err := repos.Attendance.ListAttendance(ctx, persistence.AttendanceFilter{})
			require.NoError(t, err)
			require.Len(t, all, 3)
			assert.Equal(t, []string{alice.ID, bob.ID, alice.ID}, []string{all[0].EmployeeID, all[1].EmployeeID, all[2].EmployeeID})

			onDay, err := repos.Attendance.ListAttendance(ctx, persistence.AttendanceFilter{From: ptr(day), To: ptr(day)})
			require.NoError(t, err)
			assert.Len(t, onDay, 1)

			late, err := repos.Attendance.ListAttendance(ctx, persistence.AttendanceFilter{Statuses: []persistence.AttendanceStatus{persistence.AttendanceLate}})
			require.NoError(t, err)
			require.Len(t, late, 1)
			assert.Equal(t, bob.ID, late[0].EmployeeID)

			approved, err := repos.Attendance.ListAttendance(ctx, persistence.AttendanceFilter{Justification: persistence.JustificationApproved})
			require.NoError(t, err)
			assert.Len(t, approved, 1)
		})
	})
}

func TestNotificationRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		notify := func(id, recipient string, offset time.Duration) persistence.Notification {
			return persistence.Notification{
				ID: id, RecipientID: recipient, Kind: persistence.NotifySystem,
				Title: "Title " + id, Message: "Body", Reference: persistence.LeaveRef("leave-" + id),
				CreatedAt: base.Add(offset),
			}
		}
		batch := []persistence.Notification{notify("n1", "alice", 0), notify("n2", "alice", time.Minute), notify("n3", "bob", 0)}
		require.NoError(t, repos.Notifications.CreateNotifications(ctx, batch))
		require.NoError(t, repos.Notifications.CreateNotifications(ctx, batch[:1]), "existing ids are skipped")
		assert.ErrorIs(t, repos.Notifications.CreateNotifications(ctx, []persistence.Notification{{ID: "x"}}), persistence.ErrConstraintViolation)

		listed, err := repos.Notifications.ListNotifications(ctx, persistence.NotificationFilter{RecipientID: "alice"})
		require.NoError(t, err)
		require.Len(t, listed, 2)
		assert.Equal(t, "n2", listed[0].ID)
		assert.Equal(t, &persistence.Reference{Kind: persistence.RefLeave, ID: "leave-n2"}, listed[0].Reference)

		limited, err := repos.Notifications.ListNotifications(ctx, persistence.NotificationFilter{RecipientID: "alice", Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		assert.ErrorIs(t, repos.Notifications.MarkNotificationRead(ctx, "n3", "alice", base), persistence.ErrNotFound)
		require.NoError(t, repos.Notifications.MarkNotificationRead(ctx, "n1", "alice", base))
		require.NoError(t, repos.Notifications.MarkNotificationRead(ctx, "n1", "alice", base.Add(time.Hour)))

		unread, err := repos.Notifications.CountUnread(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, 1, unread)

		onlyUnread, err := repos.Notifications.ListNotifications(ctx, persistence.NotificationFilter{RecipientID: "alice", UnreadOnly: true})
		require.NoError(t, err)
		require.Len(t, onlyUnread, 1)
		assert.Equal(t, "n2", onlyUnread[0].ID)

		marked, err := repos.Notifications.MarkAllNotificationsRead(ctx, "alice", base)
		require.NoError(t, err)
		assert.EqualValues(t, 1, marked)

		assert.ErrorIs(t, repos.Notifications.DeleteNotification(ctx, "n3", "alice"), persistence.ErrNotFound)
		require.NoError(t, repos.Notifications.DeleteNotification(ctx, "n3", "bob"))

		deleted, err := repos.Notifications.DeleteReadNotifications(ctx, "alice")
		require.NoError(t, err)
		assert.EqualValues(t, 2, deleted)
	})
}

func TestTodoAndFeedbackRepositories(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		todo := persistence.Todo{
			ID: "todo-1", OwnerID: "alice", Title: "Renew badge", Priority: persistence.PriorityHigh,
			Status: persistence.TodoPending, DueDate: ptr(base.Add(48 * time.Hour)), CreatedAt: base, UpdatedAt: base,
		}
		require.NoError(t, repos.Todos.CreateTodo(ctx, todo))
		assert.ErrorIs(t, repos.Todos.CreateTodo(ctx, todo), persistence.ErrDuplicate)

		done := todo
		done.Status = persistence.TodoCompleted
		done.CompletedAt = ptr(base.Add(time.Hour))
		done.UpdatedAt = base.Add(time.Hour)
		require.NoError(t, repos.Todos.UpdateTodo(ctx, done))
		fetched, err := repos.Todos.GetTodo(ctx, todo.ID)
		require.NoError(t, err)
		assert.Equal(t, done, fetched)

		completed, err := repos.Todos.ListTodos(ctx, persistence.TodoFilter{OwnerID: "alice", Status: persistence.TodoCompleted})
		require.NoError(t, err)
		assert.Len(t, completed, 1)

		require.NoError(t, repos.Todos.DeleteTodo(ctx, todo.ID))
		assert.ErrorIs(t, repos.Todos.DeleteTodo(ctx, todo.ID), persistence.ErrNotFound)
		assert.ErrorIs(t, repos.Todos.UpdateTodo(ctx, done), persistence.ErrNotFound)

		feedback := persistence.Feedback{
			ID: "fb-1", AuthorID: "alice", Category: persistence.FeedbackSuggestion, Subject: "Coffee",
			Message: "Better beans please", IsAnonymous: true, Status: persistence.FeedbackOpen,
			CreatedAt: base, UpdatedAt: base,
		}
		require.NoError(t, repos.Feedback.CreateFeedback(ctx, feedback))
		assert.ErrorIs(t, repos.Feedback.CreateFeedback(ctx, persistence.Feedback{ID: "fb-2"}), persistence.ErrConstraintViolation)

		responded := feedback
		responded.Status = persistence.FeedbackResolved
		responded.AdminResponse = "Ordered"
		responded.RespondedBy = "admin"
		responded.RespondedAt = ptr(base.Add(time.Hour))
		require.NoError(t, repos.Feedback.UpdateFeedback(ctx, responded))

		resolved, err := repos.Feedback.ListFeedback(ctx, persistence.FeedbackFilter{Status: persistence.FeedbackResolved})
		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, responded, resolved[0])

		require.NoError(t, repos.Feedback.DeleteFeedback(ctx, feedback.ID))
		_, err = repos.Feedback.GetFeedback(ctx, feedback.ID)
		assert.ErrorIs(t, err, persistence.ErrNotFound)
	})
}

func TestAuditRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		entries := []persistence.AuditEntry{
			{ID: "au-1", ActorID: "admin", Action: "asset.create", Reference: persistence.AssetRef("a1"), Summary: "Created", Metadata: map[string]string{"code": "AST-1"}, CreatedAt: base},
			{ID: "au-2", ActorID: "mgr", Action: "leave.approve", Reference: persistence.LeaveRef("l1"), CreatedAt: base.Add(time.Minute)},
			{ID: "au-3", ActorID: "admin", Action: "settings.update", CreatedAt: base.Add(2 * time.Minute)},
		}
		for _, entry := range entries {
			require.NoError(t, repos.Audit.AppendAudit(ctx, entry))
		}
		duplicate := entries[0]
		duplicate.Summary = "Overwritten"
		require.NoError(t, repos.Audit.AppendAudit(ctx, duplicate))
		assert.ErrorIs(t, repos.Audit.AppendAudit(ctx, persistence.AuditEntry{}), persistence.ErrConstraintViolation)

		all, err := repos.Audit.ListAudit(ctx, persistence.AuditFilter{})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, "au-3", all[0].ID)
		assert.Equal(t, entries[0], all[2], "append keeps the first write")

		byActor, err := repos.Audit.ListAudit(ctx, persistence.AuditFilter{ActorID: "admin", Limit: 1})
		require.NoError(t, err)
		require.Len(t, byActor, 1)
		assert.Equal(t, "au-3", byActor[0].ID)

		byEntity, err := repos.Audit.ListAudit(ctx, persistence.AuditFilter{Kind: persistence.RefLeave, EntityID: "l1"})
		require.NoError(t, err)
		require.Len(t, byEntity, 1)
		assert.Equal(t, "au-2", byEntity[0].ID)
	})
}

func TestOutboxRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		message := func(id string, created, available time.Time) persistence.OutboxMessage {
			return persistence.OutboxMessage{
				ID: id, Kind: persistence.OutboxNotification, Payload: []byte(`{"id":"` + id + `"}`),
				AvailableAt: available, CreatedAt: created,
			}
		}
		require.NoError(t, repos.Outbox.EnqueueOutbox(ctx, []persistence.OutboxMessage{
			message("m1", base, base),
			message("m2", base.Add(time.Second), base.Add(time.Hour)),
			message("m3", base.Add(2*time.Second), base),
		}))
		assert.ErrorIs(t, repos.Outbox.EnqueueOutbox(ctx, []persistence.OutboxMessage{{Kind: persistence.OutboxAudit}}), persistence.ErrConstraintViolation)

		due, err := repos.Outbox.ListDueOutbox(ctx, base, 10)
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, []string{"m1", "m3"}, []string{due[0].ID, due[1].ID})
		assert.Equal(t, `{"id":"m1"}`, string(due[0].Payload))
		assert.Equal(t, persistence.OutboxPending, due[0].Status)

		require.NoError(t, repos.Outbox.MarkOutboxDispatched(ctx, "m1", base))
		require.NoError(t, repos.Outbox.MarkOutboxAttempt(ctx, "m3", 1, "boom", base.Add(time.Minute)))
		require.NoError(t, repos.Outbox.MarkOutboxAttempt(ctx, "m2", 5, "gave up", time.Time{}))
		assert.ErrorIs(t, repos.Outbox.MarkOutboxDispatched(ctx, "missing", base), persistence.ErrNotFound)

		due, err = repos.Outbox.ListDueOutbox(ctx, base, 10)
		require.NoError(t, err)
		assert.Empty(t, due)
		due, err = repos.Outbox.ListDueOutbox(ctx, base.Add(time.Minute), 10)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, 1, due[0].Attempts)
		assert.Equal(t, "boom", due[0].LastError)

		counts, err := repos.Outbox.CountOutbox(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[persistence.OutboxStatus]int{
			persistence.OutboxDispatched: 1,
			persistence.OutboxPending:    1,
			persistence.OutboxFailed:     1,
		}, counts)

		newest, err := repos.Outbox.ListOutbox(ctx, persistence.OutboxFilter{Limit: 2})
		require.NoError(t, err)
		require.Len(t, newest, 2)
		assert.Equal(t, []string{"m3", "m2"}, []string{newest[0].ID, newest[1].ID})

		dispatched, err := repos.Outbox.ListOutbox(ctx, persistence.OutboxFilter{Status: persistence.OutboxDispatched})
		require.NoError(t, err)
		require.Len(t, dispatched, 1)
		require.NotNil(t, dispatched[0].DispatchedAt)
		assert.Empty(t, dispatched[0].LastError)
	})
}

func TestSettingsRepository(t *testing.T) {
	t.Parallel()

	forEachBackend(t, func(t *testing.T, repos persistence.Repositories) {
		ctx := context.Background()
		base := testfixtures.ReferenceTime()

		empty, err := repos.Settings.GetSettings(ctx)
		require.NoError(t, err)
		assert.Empty(t, empty)

		require.NoError(t, repos.Settings.PutSettings(ctx, map[string]string{"a": "1", "b": "2"}, base))
		require.NoError(t, repos.Settings.PutSettings(ctx, map[string]string{"b": "3"}, base.Add(time.Minute)))

		values, err := repos.Settings.GetSettings(ctx)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"a": "1", "b": "3"}, values)
	})
}

func TestErrorsAreDistinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		persistence.ErrNotFound,
		persistence.ErrDuplicate,
		persistence.ErrConstraintViolation,
		persistence.ErrVersionConflict,
		persistence.ErrStaleState,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.False(t, errors.Is(a, b), "%v must not match %v", a, b)
			}
		}
	}
}
