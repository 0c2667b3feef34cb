package application_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

func TestSettingsService_Defaults(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()

	values, err := h.Settings.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		application.SettingWorkdayStart:     "09:00",
		application.SettingLateGraceMinutes: "15",
		application.SettingTimezone:         "UTC",
		application.SettingAssetCodePrefix:  "AST",
	}, values)

	policy := h.Settings.AttendancePolicy(ctx)
	assert.Equal(t, application.DefaultAttendancePolicy().WorkdayStart, policy.WorkdayStart)
	assert.Equal(t, "AST", h.Settings.AssetCodePrefix(ctx))
}

func TestSettingsService_Put(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsAdmin()))
	manager := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsManager()))

	_, err := h.Settings.Put(ctx, manager, map[string]string{application.SettingLateGraceMinutes: "5"})
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = h.Settings.Put(ctx, admin, nil)
	assert.EqualError(t, err, "No settings provided.")

	_, err = h.Settings.Put(ctx, admin, map[string]string{
		application.SettingWorkdayStart:     "9am",
		application.SettingLateGraceMinutes: "-1",
		application.SettingTimezone:         "Mars/Olympus_Mons",
		application.SettingAssetCodePrefix:  "it",
		"theme":                             "dark",
	})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Invalid settings.", vErr.Message)
	assert.Equal(t, map[string]string{
		application.SettingWorkdayStart:     "must be a time of day as HH:MM",
		application.SettingLateGraceMinutes: "must be a whole number of minutes",
		application.SettingTimezone:         "must be an IANA time zone",
		application.SettingAssetCodePrefix:  "must be 2 to 8 upper-case letters",
		"theme":                             "unknown setting",
	}, vErr.FieldErrors)

	merged, err := h.Settings.Put(ctx, admin, map[string]string{
		application.SettingWorkdayStart:     " 08:30 ",
		application.SettingLateGraceMinutes: "5",
		application.SettingAssetCodePrefix:  "HW",
	})
	require.NoError(t, err)
	assert.Equal(t, "08:30", merged[application.SettingWorkdayStart])
	assert.Equal(t, "UTC", merged[application.SettingTimezone])

	policy := h.Settings.AttendancePolicy(ctx)
	assert.Equal(t, 8*time.Hour+30*time.Minute, policy.WorkdayStart)
	assert.Equal(t, 5*time.Minute, policy.LateGrace)
	assert.Equal(t, "HW", h.Settings.AssetCodePrefix(ctx))

	h.Drain(t)
	entries, err := h.Audit.List(ctx, admin, persistence.AuditFilter{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "Updated settings: assets.code_prefix, attendance.late_grace_minutes, attendance.workday_start", entries[0].Summary)
}

func TestParseClock(t *testing.T) {
	t.Parallel()

	d, err := application.ParseClock("17:45")
	require.NoError(t, err)
	assert.Equal(t, 17*time.Hour+45*time.Minute, d)

	for _, raw := range []string{"", "24:00", "7", "noon"} {
		_, err := application.ParseClock(raw)
		assert.Error(t, err, raw)
	}
}

func TestAuditService_List(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsAdmin()))

	for i := 0; i < 3; i++ {
		_, err := h.Settings.Put(ctx, admin, map[string]string{application.SettingLateGraceMinutes: "10"})
		require.NoError(t, err)
		h.Clock.Advance(time.Minute)
	}
	h.Drain(t)

	entries, err := h.Audit.List(ctx, admin, persistence.AuditFilter{Limit: 2})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.True(t, entries[0].CreatedAt.After(entries[1].CreatedAt) || entries[0].CreatedAt.Equal(entries[1].CreatedAt))

	_, err = h.Audit.List(ctx, admin, persistence.AuditFilter{Kind: "planet"})
	assert.EqualError(t, err, "Entity kind is invalid.")

	_, err = h.Audit.List(ctx, testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsManager())), persistence.AuditFilter{})
	assert.ErrorIs(t, err, application.ErrUnauthorized)
}
