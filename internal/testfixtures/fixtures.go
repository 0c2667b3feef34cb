package testfixtures

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

var (
	employeeCounter uint64
	assetCounter    uint64
	sessionCounter  uint64
	leaveCounter    uint64
)

// Monday 2 June 2025, 10:00 UTC.
var referenceTime = time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)

// ReferenceTime returns the baseline instant fixtures are stamped with.
func ReferenceTime() time.Time {
	return referenceTime
}

// Date returns midnight UTC of the given calendar date.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ----------------------------- Employee fixtures -----------------------------

// EmployeeFixture is a deterministic employee account.
type EmployeeFixture struct {
	ID           string
	Email        string
	DisplayName  string
	Role         persistence.Role
	Department   string
	Position     string
	DeviceUserID string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
}

// EmployeeOption configures an EmployeeFixture.
type EmployeeOption func(*EmployeeFixture)

// NewEmployeeFixture returns an active employee with generated identity.
func NewEmployeeFixture(opts ...EmployeeOption) EmployeeFixture {
	idx := atomic.AddUint64(&employeeCounter, 1)
	id := fmt.Sprintf("emp-%03d", idx)
	fixture := EmployeeFixture{
		ID:           id,
		Email:        fmt.Sprintf("%s@example.com", id),
		DisplayName:  fmt.Sprintf("Employee %03d", idx),
		Role:         persistence.RoleEmployee,
		Department:   "Operations",
		Position:     "Staff",
		PasswordHash: fmt.Sprintf("hash-%03d", idx),
		IsActive:     true,
		CreatedAt:    referenceTime.Add(-time.Duration(idx) * time.Hour),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithEmployeeID overrides the generated id.
func WithEmployeeID(id string) EmployeeOption {
	return func(f *EmployeeFixture) { f.ID = id }
}

// WithEmail overrides the generated email.
func WithEmail(email string) EmployeeOption {
	return func(f *EmployeeFixture) { f.Email = email }
}

// WithDisplayName overrides the generated display name.
func WithDisplayName(name string) EmployeeOption {
	return func(f *EmployeeFixture) { f.DisplayName = name }
}

// WithRole sets the employee role.
func WithRole(role persistence.Role) EmployeeOption {
	return func(f *EmployeeFixture) { f.Role = role }
}

// AsAdmin is shorthand for WithRole(persistence.RoleAdmin).
func AsAdmin() EmployeeOption { return WithRole(persistence.RoleAdmin) }

// AsManager is shorthand for WithRole(persistence.RoleManager).
func AsManager() EmployeeOption { return WithRole(persistence.RoleManager) }

// WithDepartment sets the department.
func WithDepartment(department string) EmployeeOption {
	return func(f *EmployeeFixture) { f.Department = department }
}

// WithDeviceUserID enrolls the employee on the biometric terminal.
func WithDeviceUserID(id string) EmployeeOption {
	return func(f *EmployeeFixture) { f.DeviceUserID = id }
}

// WithPasswordHash sets the stored password hash.
func WithPasswordHash(hash string) EmployeeOption {
	return func(f *EmployeeFixture) { f.PasswordHash = hash }
}

// Inactive marks the account deactivated.
func Inactive() EmployeeOption {
	return func(f *EmployeeFixture) { f.IsActive = false }
}

// Persistence returns the fixture as a stored employee.
func (f EmployeeFixture) Persistence() persistence.Employee {
	return persistence.Employee{
		ID:           f.ID,
		Email:        f.Email,
		DisplayName:  f.DisplayName,
		Role:         f.Role,
		Department:   f.Department,
		Position:     f.Position,
		DeviceUserID: f.DeviceUserID,
		PasswordHash: f.PasswordHash,
		IsActive:     f.IsActive,
		CreatedAt:    f.CreatedAt,
		UpdatedAt:    f.CreatedAt,
	}
}

// Principal returns the acting identity of the fixture.
func (f EmployeeFixture) Principal() application.Principal {
	return application.Principal{UserID: f.ID, Role: f.Role}
}

// PrincipalOf returns the acting identity of a stored employee.
func PrincipalOf(employee persistence.Employee) application.Principal {
	return application.Principal{UserID: employee.ID, Role: employee.Role}
}

// ----------------------------- Asset fixtures -----------------------------

// AssetFixture is a deterministic inventory item.
type AssetFixture struct {
	ID               string
	Code             string
	Name             string
	Category         persistence.AssetCategory
	Condition        persistence.AssetCondition
	Status           persistence.AssetStatus
	Quantity         int
	QuantityAssigned int
	SerialNumber     string
	Location         string
	IsActive         bool
	CreatedBy        string
	CreatedAt        time.Time
}

// AssetOption configures an AssetFixture.
type AssetOption func(*AssetFixture)

// NewAssetFixture returns an available single-unit laptop.
func NewAssetFixture(opts ...AssetOption) AssetFixture {
	idx := atomic.AddUint64(&assetCounter, 1)
	fixture := AssetFixture{
		ID:        fmt.Sprintf("asset-%03d", idx),
		Code:      fmt.Sprintf("AST-%05d", idx),
		Name:      fmt.Sprintf("Laptop %03d", idx),
		Category:  persistence.CategoryLaptop,
		Condition: persistence.ConditionGood,
		Status:    persistence.AssetAvailable,
		Quantity:  1,
		Location:  "HQ store room",
		IsActive:  true,
		CreatedAt: referenceTime.Add(-time.Duration(idx) * time.Minute),
	}
	for _, opt := range opts {
		opt(&fixture)
	}
	return fixture
}

// WithAssetID overrides the generated id.
func WithAssetID(id string) AssetOption {
	return func(f *AssetFixture) { f.ID = id }
}

// WithAssetName overrides the generated name.
func WithAssetName(name string) AssetOption {
	return func(f *AssetFixture) { f.Name = name }
}

// WithCategory sets the category.
func WithCategory(category persistence.AssetCategory) AssetOption {
	return func(f *AssetFixture) { f.Category = category }
}

// WithQuantity sets the number of units tracked.
func WithQuantity(quantity int) AssetOption {
	return func(f *AssetFixture) { f.Quantity = quantity }
}

// WithAssetStatus sets the stored status, e.g. a manual override.
func WithAssetStatus(status persistence.AssetStatus) AssetOption {
	return func(f *AssetFixture) { f.Status = status }
}

// WithCreatedBy records who created the asset.
func WithCreatedBy(id string) AssetOption {
	return func(f *AssetFixture) { f.CreatedBy = id }
}

// Retired soft deletes the asset.
func Retired() AssetOption {
	return func(f *AssetFixture) { f.IsActive = false }
}

// Persistence returns the fixture as a stored asset at version 1.
func (f AssetFixture) Persistence() persistence.Asset {
	return persistence.Asset{
		ID:               f.ID,
		Code:             f.Code,
		Name:             f.Name,
		Category:         f.Category,
		Condition:        f.Condition,
		Status:           f.Status,
		Quantity:         f.Quantity,
		QuantityAssigned: f.QuantityAssigned,
		SerialNumber:     f.SerialNumber,
		Location:         f.Location,
		IsActive:         f.IsActive,
		Version:          1,
		CreatedBy:        f.CreatedBy,
		CreatedAt:        f.CreatedAt,
		UpdatedAt:        f.CreatedAt,
	}
}

// Input returns the fixture as create/update input.
func (f AssetFixture) Input() application.AssetInput {
	return application.AssetInput{
		Name:         f.Name,
		Category:     f.Category,
		Condition:    f.Condition,
		Quantity:     f.Quantity,
		SerialNumber: f.SerialNumber,
		Location:     f.Location,
	}
}

// ----------------------------- Session fixtures -----------------------------

// NewSession returns an unrevoked session for employeeID valid for ttl after ReferenceTime.
func NewSession(employeeID string, ttl time.Duration) persistence.Session {
	idx := atomic.AddUint64(&sessionCounter, 1)
	return persistence.Session{
		ID:          fmt.Sprintf("session-%03d", idx),
		EmployeeID:  employeeID,
		Token:       fmt.Sprintf("token-%03d", idx),
		Fingerprint: "test-agent",
		ExpiresAt:   referenceTime.Add(ttl),
		CreatedAt:   referenceTime,
		UpdatedAt:   referenceTime,
	}
}

// ----------------------------- Leave fixtures -----------------------------

// NewLeave returns a pending annual leave for employeeID over the inclusive range.
func NewLeave(employeeID string, start, end time.Time) persistence.Leave {
	idx := atomic.AddUint64(&leaveCounter, 1)
	return persistence.Leave{
		ID:         fmt.Sprintf("leave-%03d", idx),
		EmployeeID: employeeID,
		LeaveType:  persistence.LeaveAnnual,
		StartDate:  start,
		EndDate:    end,
		Reason:     "Family trip",
		Status:     persistence.LeavePending,
		CreatedAt:  referenceTime,
		UpdatedAt:  referenceTime,
	}
}
