package application_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
	"github.com/example/orgdesk/internal/testfixtures"
)

func TestEmployeeService_CreateEmployee(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsAdmin()))
	manager := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsManager()))

	input := application.EmployeeInput{
		Email:        " Nina.New@Example.com ",
		DisplayName:  "Nina New",
		Department:   "Finance",
		DeviceUserID: "017",
		Password:     "long-enough",
	}

	_, err := h.Employees.CreateEmployee(ctx, manager, input)
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	created, err := h.Employees.CreateEmployee(ctx, admin, input)
	require.NoError(t, err)
	assert.Equal(t, "nina.new@example.com", created.Email)
	assert.Equal(t, persistence.RoleEmployee, created.Role)
	assert.True(t, created.IsActive)
	assert.NotEqual(t, "long-enough", created.PasswordHash)

	login, err := h.Auth.Authenticate(ctx, application.AuthenticateParams{Email: "nina.new@example.com", Password: "long-enough"})
	require.NoError(t, err)
	assert.Equal(t, created.ID, login.Employee.ID)

	t.Run("duplicate email", func(t *testing.T) {
		_, err := h.Employees.CreateEmployee(ctx, admin, application.EmployeeInput{
			Email:       "NINA.NEW@example.com",
			DisplayName: "Nina Again",
			Password:    "long-enough",
		})
		assert.ErrorIs(t, err, application.ErrAlreadyExists)
	})

	t.Run("validation", func(t *testing.T) {
		_, err := h.Employees.CreateEmployee(ctx, admin, application.EmployeeInput{
			Email:    "not-an-address",
			Role:     "intern",
			Password: "short",
		})
		var vErr *application.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "Invalid employee details.", vErr.Message)
		assert.Equal(t, "email is invalid", vErr.FieldErrors["email"])
		assert.Equal(t, "display name is required", vErr.FieldErrors["displayName"])
		assert.Equal(t, "role is invalid", vErr.FieldErrors["role"])
		assert.Equal(t, "password must be at least 8 characters", vErr.FieldErrors["password"])
	})

	h.Drain(t)
	entries, err := h.Audit.List(ctx, admin, persistence.AuditFilter{Kind: persistence.RefEmployee})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "employee.create", entries[0].Action)
	assert.Equal(t, "Created employee account for nina.new@example.com.", entries[0].Summary)
}

func TestEmployeeService_UpdateAndDeactivate(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	adminEmployee := h.SeedEmployee(t, testfixtures.AsAdmin(), testfixtures.WithEmail("root@example.com"), testfixtures.WithDisplayName("Root"))
	admin := testfixtures.PrincipalOf(adminEmployee)
	target := h.SeedEmployee(t, testfixtures.WithEmail("tom@example.com"))

	promoted, err := h.Employees.UpdateEmployee(ctx, admin, target.ID, application.EmployeeInput{
		Email:       "tom@example.com",
		DisplayName: "Tom Lead",
		Role:        persistence.RoleManager,
		Position:    "Team lead",
	})
	require.NoError(t, err)
	assert.Equal(t, persistence.RoleManager, promoted.Role)
	assert.Equal(t, target.PasswordHash, promoted.PasswordHash)
	assert.True(t, promoted.IsActive)

	_, err = h.Employees.UpdateEmployee(ctx, admin, adminEmployee.ID, application.EmployeeInput{
		Email:       "root@example.com",
		DisplayName: "Root",
		Role:        persistence.RoleEmployee,
	})
	assert.EqualError(t, err, "You cannot remove your own administrator access.")

	_, err = h.Employees.UpdateEmployee(ctx, admin, "missing", application.EmployeeInput{Email: "x@example.com", DisplayName: "X"})
	assert.EqualError(t, err, "Employee not found.")

	assert.EqualError(t, h.Employees.DeactivateEmployee(ctx, admin, adminEmployee.ID), "You cannot deactivate your own account.")
	assert.ErrorIs(t, h.Employees.DeactivateEmployee(ctx, testfixtures.PrincipalOf(promoted), adminEmployee.ID), application.ErrUnauthorized)

	require.NoError(t, h.Employees.DeactivateEmployee(ctx, admin, target.ID))
	require.NoError(t, h.Employees.DeactivateEmployee(ctx, admin, target.ID))

	stored, err := h.Repos.Employees.GetEmployee(ctx, target.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	h.Drain(t)
	entries, err := h.Audit.List(ctx, admin, persistence.AuditFilter{EntityID: target.ID})
	require.NoError(t, err)
	actions := make([]string, 0, len(entries))
	for _, entry := range entries {
		actions = append(actions, entry.Action)
	}
	assert.ElementsMatch(t, []string{"employee.update", "employee.deactivate"}, actions)
}

func TestEmployeeService_Directory(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	manager := h.SeedEmployee(t, testfixtures.AsManager(), testfixtures.WithDisplayName("mia Manager"))
	worker := h.SeedEmployee(t, testfixtures.WithDisplayName("Bob Builder"))
	h.SeedEmployee(t, testfixtures.WithDisplayName("Zed Former"), testfixtures.Inactive())

	all, err := h.Employees.ListEmployees(ctx, testfixtures.PrincipalOf(manager), false)
	require.NoError(t, err)
	names := make([]string, 0, len(all))
	for _, employee := range all {
		names = append(names, employee.DisplayName)
	}
	assert.Equal(t, []string{"Bob Builder", "mia Manager", "Zed Former"}, names)

	active, err := h.Employees.ListEmployees(ctx, testfixtures.PrincipalOf(manager), true)
	require.NoError(t, err)
	assert.Len(t, active, 2)

	_, err = h.Employees.ListEmployees(ctx, testfixtures.PrincipalOf(worker), false)
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	self, err := h.Employees.GetEmployee(ctx, testfixtures.PrincipalOf(worker), worker.ID)
	require.NoError(t, err)
	assert.Equal(t, "Bob Builder", self.DisplayName)

	_, err = h.Employees.GetEmployee(ctx, testfixtures.PrincipalOf(worker), manager.ID)
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = h.Employees.GetEmployee(ctx, testfixtures.PrincipalOf(manager), worker.ID)
	assert.NoError(t, err)
}

func TestEmployeeService_EnsureBootstrapAdmin(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()

	created, err := h.Employees.EnsureBootstrapAdmin(ctx, "", "whatever-pass")
	require.NoError(t, err)
	assert.False(t, created)

	created, err = h.Employees.EnsureBootstrapAdmin(ctx, "admin@example.com", "change-me-now")
	require.NoError(t, err)
	assert.True(t, created)

	created, err = h.Employees.EnsureBootstrapAdmin(ctx, "second@example.com", "change-me-now")
	require.NoError(t, err)
	assert.False(t, created, "an administrator already exists")

	login, err := h.Auth.Authenticate(ctx, application.AuthenticateParams{Email: "admin@example.com", Password: "change-me-now"})
	require.NoError(t, err)
	assert.Equal(t, persistence.RoleAdmin, login.Employee.Role)
}
