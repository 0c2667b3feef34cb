package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/orgdesk/internal/persistence"
)

const (
	defaultAssetCodePrefix = "AST"
	defaultConflictRetries = 3
	defaultConflictDelay   = 10 * time.Millisecond
)

// AssetCodePrefixSource supplies the prefix used for generated asset codes.
type AssetCodePrefixSource interface {
	AssetCodePrefix(ctx context.Context) string
}

// AssetService owns the asset catalog and the quantity reservation rules of
// the assignment ledger.
type AssetService struct {
	assets      persistence.AssetRepository
	employees   persistence.EmployeeRepository
	prefixes    AssetCodePrefixSource
	effects     sideEffects
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
	maxAttempts int
	retryDelay  time.Duration
}

// NewAssetService constructs an asset service with the provided dependencies.
func NewAssetService(assets persistence.AssetRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time) *AssetService {
	return NewAssetServiceWithLogger(assets, employees, outbox, nil, idGenerator, now, nil)
}

// NewAssetServiceWithLogger constructs an asset service with a code prefix source and logger.
func NewAssetServiceWithLogger(assets persistence.AssetRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, prefixes AssetCodePrefixSource, idGenerator func() string, now func() time.Time, logger *slog.Logger) *AssetService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &AssetService{
		assets:      assets,
		employees:   employees,
		prefixes:    prefixes,
		effects:     newSideEffects(outbox, idGenerator, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
		maxAttempts: defaultConflictRetries,
		retryDelay:  defaultConflictDelay,
	}
}

func (s *AssetService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "AssetService", operation, attrs...)
}

// ListAssets returns active assets matching the filter to any authenticated employee.
func (s *AssetService) ListAssets(ctx context.Context, principal Principal, filter persistence.AssetFilter) (assets []persistence.Asset, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "ListAssets", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list assets", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("count", len(assets)).DebugContext(ctx, "assets listed")
	}()

	filter.IncludeInactive = false
	assets, err = s.assets.ListAssets(ctx, filter)
	if err != nil {
		err = mapRepoError("Asset", err)
	}
	return
}

// GetAsset returns an active asset by id.
func (s *AssetService) GetAsset(ctx context.Context, principal Principal, assetID string) (persistence.Asset, error) {
	if s == nil {
		return persistence.Asset{}, fmt.Errorf("AssetService is nil")
	}
	asset, err := s.loadActiveAsset(ctx, assetID)
	if err != nil {
		s.loggerWith(ctx, "GetAsset", "principal_id", principal.UserID, "asset_id", assetID).
			ErrorContext(ctx, "failed to get asset", "error", err, "error_kind", ErrorKind(err))
	}
	return asset, err
}

// CreateAsset validates input and adds a catalog entry with a generated code.
func (s *AssetService) CreateAsset(ctx context.Context, principal Principal, input AssetInput) (asset persistence.Asset, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "CreateAsset", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create asset", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("asset_id", asset.ID, "asset_code", asset.Code).InfoContext(ctx, "asset created")
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	if vErr := validateAssetInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	var seq int64
	seq, err = s.assets.NextAssetSequence(ctx)
	if err != nil {
		err = fmt.Errorf("allocate asset code: %w", err)
		return
	}

	now := s.now()
	override := persistence.AssetStatus("")
	if input.Status.Manual() {
		override = input.Status
	}
	asset = persistence.Asset{
		ID:           s.idGenerator(),
		Code:         fmt.Sprintf("%s-%05d", s.codePrefix(ctx), seq),
		Name:         strings.TrimSpace(input.Name),
		Category:     input.Category,
		Condition:    input.Condition,
		Quantity:     input.Quantity,
		SerialNumber: strings.TrimSpace(input.SerialNumber),
		Location:     strings.TrimSpace(input.Location),
		Description:  strings.TrimSpace(input.Description),
		PurchaseDate: input.PurchaseDate,
		IsActive:     true,
		Version:      1,
		CreatedBy:    principal.UserID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	asset.Status = DeriveAssetStatus(asset.Quantity, 0, override)

	if err = s.assets.CreateAsset(ctx, asset); err != nil {
		err = mapRepoError("Asset", err)
		return
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "asset.create",
		Reference: persistence.AssetRef(asset.ID),
		Summary:   fmt.Sprintf("Created asset %s (%s) with %d unit(s).", asset.Name, asset.Code, asset.Quantity),
	}))
	return
}

// UpdateAsset replaces the editable fields of an active asset.
func (s *AssetService) UpdateAsset(ctx context.Context, principal Principal, assetID string, input AssetInput) (asset persistence.Asset, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	ctx, span := tracer().Start(ctx, "AssetService.UpdateAsset", trace.WithAttributes(attribute.String("asset.id", assetID)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "UpdateAsset", "principal_id", principal.UserID, "asset_id", assetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update asset", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "asset updated")
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	if vErr := validateAssetInput(input); vErr.HasErrors() {
		err = vErr
		return
	}

	err = s.withConflictRetry(ctx, span, func() error {
		existing, err := s.loadActiveAsset(ctx, assetID)
		if err != nil {
			return err
		}
		if input.Quantity < existing.QuantityAssigned {
			return invalid("Quantity cannot be less than the %d unit(s) currently assigned.", existing.QuantityAssigned)
		}

		override := statusOverride(existing)
		switch {
		case input.Status.Manual():
			override = input.Status
		case input.Status != "":
			override = ""
		}

		updated := existing
		updated.Name = strings.TrimSpace(input.Name)
		updated.Category = input.Category
		updated.Condition = input.Condition
		updated.Quantity = input.Quantity
		updated.SerialNumber = strings.TrimSpace(input.SerialNumber)
		updated.Location = strings.TrimSpace(input.Location)
		updated.Description = strings.TrimSpace(input.Description)
		updated.PurchaseDate = input.PurchaseDate
		updated.Status = DeriveAssetStatus(updated.Quantity, updated.QuantityAssigned, override)
		updated.UpdatedAt = s.now()

		if err := s.assets.UpdateAsset(ctx, updated, existing.Version); err != nil {
			return mapRepoError("Asset", err)
		}
		updated.Version = existing.Version + 1
		asset = updated
		return nil
	})
	if err != nil {
		return
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "asset.update",
		Reference: persistence.AssetRef(asset.ID),
		Summary:   fmt.Sprintf("Updated asset %s (%s).", asset.Name, asset.Code),
		Metadata:  map[string]string{"status": string(asset.Status), "quantity": strconv.Itoa(asset.Quantity)},
	}))
	return
}

// DeleteAsset soft-deletes an asset by clearing its active flag.
func (s *AssetService) DeleteAsset(ctx context.Context, principal Principal, assetID string) (err error) {
	if s == nil {
		return fmt.Errorf("AssetService is nil")
	}

	ctx, span := tracer().Start(ctx, "AssetService.DeleteAsset", trace.WithAttributes(attribute.String("asset.id", assetID)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "DeleteAsset", "principal_id", principal.UserID, "asset_id", assetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete asset", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "asset deactivated")
	}()

	if !principal.CanManage() {
		return ErrUnauthorized
	}

	var name string
	err = s.withConflictRetry(ctx, span, func() error {
		existing, err := s.loadActiveAsset(ctx, assetID)
		if err != nil {
			return err
		}
		updated := existing
		updated.IsActive = false
		updated.UpdatedAt = s.now()
		if err := s.assets.UpdateAsset(ctx, updated, existing.Version); err != nil {
			return mapRepoError("Asset", err)
		}
		name = existing.Name
		return nil
	})
	if err != nil {
		return err
	}

	s.effects.enqueue(ctx, logger, s.effects.audit(AuditIntent{
		ActorID:   principal.UserID,
		Action:    "asset.delete",
		Reference: persistence.AssetRef(assetID),
		Summary:   fmt.Sprintf("Deactivated asset %s.", name),
	}))
	return nil
}

// Assign reserves units of an asset for an employee or a room.
func (s *AssetService) Assign(ctx context.Context, params AssignParams) (result AssignmentResult, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	quantity := 1
	if params.Quantity != nil {
		quantity = *params.Quantity
	}

	ctx, span := tracer().Start(ctx, "AssetService.Assign", trace.WithAttributes(
		attribute.String("asset.id", params.AssetID),
		attribute.Int("assign.quantity", quantity),
	))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Assign",
		"principal_id", params.Principal.UserID,
		"asset_id", params.AssetID,
		"employee_id", params.EmployeeID,
		"quantity", quantity,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to assign asset", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("assignment_id", result.Assignment.ID, "remaining", result.Asset.Available()).InfoContext(ctx, "asset assigned")
	}()

	if !params.Principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	if params.Condition != "" && !params.Condition.Valid() {
		vErr := &ValidationError{}
		vErr.add("conditionAtAssignment", "condition is invalid")
		err = vErr
		return
	}

	employeeID := strings.TrimSpace(params.EmployeeID)
	room := strings.TrimSpace(params.Room)

	err = s.withConflictRetry(ctx, span, func() error {
		var attemptErr error
		result, attemptErr = s.tryAssign(ctx, params, employeeID, room, quantity)
		return attemptErr
	})
	if err == nil {
		span.SetAttributes(attribute.Int("asset.remaining", result.Asset.Available()))
	}
	return
}

func (s *AssetService) tryAssign(ctx context.Context, params AssignParams, employeeID, room string, quantity int) (AssignmentResult, error) {
	asset, err := s.loadActiveAsset(ctx, params.AssetID)
	if err != nil {
		return AssignmentResult{}, err
	}
	if quantity < 1 {
		return AssignmentResult{}, invalid("Quantity to assign must be at least 1.")
	}
	if employeeID == "" && room == "" {
		return AssignmentResult{}, invalid("Assign to an employee or provide a room.")
	}
	if available := asset.Available(); quantity > available {
		return AssignmentResult{}, invalid("Only %d unit(s) available. Cannot assign %d unit(s).", available, quantity)
	}

	var employee persistence.Employee
	if employeeID != "" {
		employee, err = s.employees.GetEmployee(ctx, employeeID)
		if err != nil {
			return AssignmentResult{}, mapRepoError("Employee", err)
		}
		if !employee.IsActive {
			return AssignmentResult{}, notFound("Employee")
		}
	}

	condition := params.Condition
	if condition == "" {
		condition = asset.Condition
	}

	now := s.now()
	updated := asset
	updated.QuantityAssigned += quantity
	updated.Status = DeriveAssetStatus(updated.Quantity, updated.QuantityAssigned, statusOverride(asset))
	updated.UpdatedAt = now

	assignment := persistence.AssetAssignment{
		ID:                    s.idGenerator(),
		AssetID:               asset.ID,
		EmployeeID:            employeeID,
		Room:                  room,
		Quantity:              quantity,
		ConditionAtAssignment: condition,
		Notes:                 strings.TrimSpace(params.Notes),
		AssignedBy:            params.Principal.UserID,
		AssignedAt:            now,
		Status:                persistence.AssignmentActive,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	holder := room
	if employeeID != "" {
		holder = employee.DisplayName
	}
	remaining := updated.Available()

	outbox := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   params.Principal.UserID,
		Action:    "asset.assign",
		Reference: persistence.AssignmentRef(assignment.ID),
		Summary:   fmt.Sprintf("Assigned %d unit(s) of %s (%s) to %s.", quantity, asset.Name, asset.Code, holder),
		Metadata: map[string]string{
			"asset_id":  asset.ID,
			"quantity":  strconv.Itoa(quantity),
			"remaining": strconv.Itoa(remaining),
		},
	})}
	outbox = append(outbox, s.effects.notify(NotificationIntent{
		SenderID:     params.Principal.UserID,
		RecipientIDs: []string{employeeID},
		Kind:         persistence.NotifyAssetAssigned,
		Title:        "Asset assigned",
		Message:      fmt.Sprintf("You have been assigned %d unit(s) of %s (%s).", quantity, asset.Name, asset.Code),
		Reference:    persistence.AssignmentRef(assignment.ID),
	})...)

	err = s.assets.CommitAssign(ctx, persistence.AssetMutation{
		Asset:           updated,
		ExpectedVersion: asset.Version,
		Assignment:      assignment,
		Outbox:          outbox,
	})
	if err != nil {
		return AssignmentResult{}, mapRepoError("Asset", err)
	}
	updated.Version = asset.Version + 1

	detail := AssignmentDetail{
		AssetAssignment: assignment,
		AssetName:       asset.Name,
		AssetCode:       asset.Code,
		EmployeeName:    employee.DisplayName,
		AssignedByName:  s.employeeName(ctx, params.Principal.UserID),
	}
	return AssignmentResult{
		Assignment: detail,
		Asset:      updated,
		Message:    fmt.Sprintf("Assigned %d unit(s) of %s. %d unit(s) remaining.", quantity, asset.Name, remaining),
	}, nil
}

// Return closes an active assignment and releases its units.
func (s *AssetService) Return(ctx context.Context, params ReturnParams) (result AssignmentResult, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	ctx, span := tracer().Start(ctx, "AssetService.Return", trace.WithAttributes(attribute.String("assignment.id", params.AssignmentID)))
	defer func() { endSpan(span, err) }()

	logger := s.loggerWith(ctx, "Return",
		"principal_id", params.Principal.UserID,
		"assignment_id", params.AssignmentID,
	)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to return asset", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("asset_id", result.Asset.ID, "status", result.Assignment.Status).InfoContext(ctx, "asset returned")
	}()

	if !params.Principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	status := params.Status
	if status == "" {
		status = persistence.AssignmentReturned
	}
	vErr := &ValidationError{}
	switch status {
	case persistence.AssignmentReturned, persistence.AssignmentDamaged, persistence.AssignmentLost:
	default:
		vErr.add("status", "status must be Returned, Damaged or Lost")
	}
	if !params.Condition.Valid() {
		vErr.add("conditionAtReturn", "condition is invalid")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid return request."
		err = vErr
		return
	}

	err = s.withConflictRetry(ctx, span, func() error {
		var attemptErr error
		result, attemptErr = s.tryReturn(ctx, params, status)
		return attemptErr
	})
	return
}

func (s *AssetService) tryReturn(ctx context.Context, params ReturnParams, status persistence.AssignmentStatus) (AssignmentResult, error) {
	assignment, err := s.assets.GetAssignment(ctx, params.AssignmentID)
	if err != nil {
		return AssignmentResult{}, mapRepoError("Assignment", err)
	}
	if assignment.Status != persistence.AssignmentActive {
		return AssignmentResult{}, invalid("Assignment is not active.")
	}

	asset, err := s.assets.GetAsset(ctx, assignment.AssetID)
	if err != nil {
		return AssignmentResult{}, mapRepoError("Asset", err)
	}

	now := s.now()
	override := statusOverride(asset)
	if status == persistence.AssignmentDamaged {
		override = persistence.AssetDamaged
	}
	updated := asset
	updated.QuantityAssigned = max(0, asset.QuantityAssigned-assignment.Quantity)
	updated.Status = DeriveAssetStatus(updated.Quantity, updated.QuantityAssigned, override)
	updated.UpdatedAt = now

	closed := assignment
	closed.Status = status
	closed.ReturnDate = &now
	closed.ConditionAtReturn = params.Condition
	closed.ReturnNotes = strings.TrimSpace(params.Notes)
	closed.ReturnedBy = params.Principal.UserID
	closed.UpdatedAt = now

	outbox := []persistence.OutboxMessage{s.effects.audit(AuditIntent{
		ActorID:   params.Principal.UserID,
		Action:    "asset.return",
		Reference: persistence.AssignmentRef(assignment.ID),
		Summary:   fmt.Sprintf("Closed assignment of %d unit(s) of %s (%s) as %s.", assignment.Quantity, asset.Name, asset.Code, status),
		Metadata: map[string]string{
			"asset_id":  asset.ID,
			"quantity":  strconv.Itoa(assignment.Quantity),
			"condition": string(params.Condition),
		},
	})}
	outbox = append(outbox, s.effects.notify(NotificationIntent{
		SenderID:     params.Principal.UserID,
		RecipientIDs: []string{assignment.EmployeeID},
		Kind:         persistence.NotifyAssetReturned,
		Title:        "Asset returned",
		Message:      fmt.Sprintf("Your assignment of %d unit(s) of %s (%s) was closed as %s.", assignment.Quantity, asset.Name, asset.Code, status),
		Reference:    persistence.AssignmentRef(assignment.ID),
	})...)

	err = s.assets.CommitReturn(ctx, persistence.AssetMutation{
		Asset:           updated,
		ExpectedVersion: asset.Version,
		Assignment:      closed,
		Outbox:          outbox,
	})
	if errors.Is(err, persistence.ErrStaleState) {
		return AssignmentResult{}, invalid("Assignment is not active.")
	}
	if err != nil {
		return AssignmentResult{}, mapRepoError("Asset", err)
	}
	updated.Version = asset.Version + 1

	names := s.employeeNames(ctx, closed.EmployeeID, closed.AssignedBy, closed.ReturnedBy)
	detail := AssignmentDetail{
		AssetAssignment: closed,
		AssetName:       asset.Name,
		AssetCode:       asset.Code,
		EmployeeName:    names[closed.EmployeeID],
		AssignedByName:  names[closed.AssignedBy],
		ReturnedByName:  names[closed.ReturnedBy],
	}
	return AssignmentResult{
		Assignment: detail,
		Asset:      updated,
		Message:    fmt.Sprintf("Returned %d unit(s) of %s. %d unit(s) available.", assignment.Quantity, asset.Name, updated.Available()),
	}, nil
}

// History lists every assignment of an asset, most recent first.
func (s *AssetService) History(ctx context.Context, principal Principal, assetID string) (history []AssignmentDetail, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "History", "principal_id", principal.UserID, "asset_id", assetID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load asset history", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.CanManage() {
		err = ErrUnauthorized
		return
	}

	var asset persistence.Asset
	asset, err = s.assets.GetAsset(ctx, assetID)
	if err != nil {
		err = mapRepoError("Asset", err)
		return
	}

	var assignments []persistence.AssetAssignment
	assignments, err = s.assets.ListAssignments(ctx, persistence.AssignmentFilter{AssetID: assetID})
	if err != nil {
		err = mapRepoError("Assignment", err)
		return
	}

	history = s.describe(ctx, assignments, map[string]persistence.Asset{asset.ID: asset})
	return
}

// EmployeeAssets lists the active assignments held by an employee. Employees
// may read their own holdings; supervisors may read anyone's.
func (s *AssetService) EmployeeAssets(ctx context.Context, principal Principal, employeeID string) (holdings []AssignmentDetail, err error) {
	if s == nil {
		err = fmt.Errorf("AssetService is nil")
		return
	}

	logger := s.loggerWith(ctx, "EmployeeAssets", "principal_id", principal.UserID, "employee_id", employeeID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to load employee assets", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if principal.UserID != employeeID && !principal.CanManage() {
		err = ErrUnauthorized
		return
	}
	if _, err = s.employees.GetEmployee(ctx, employeeID); err != nil {
		err = mapRepoError("Employee", err)
		return
	}

	var assignments []persistence.AssetAssignment
	assignments, err = s.assets.ListAssignments(ctx, persistence.AssignmentFilter{
		EmployeeID: employeeID,
		Statuses:   []persistence.AssignmentStatus{persistence.AssignmentActive},
	})
	if err != nil {
		err = mapRepoError("Assignment", err)
		return
	}

	holdings = s.describe(ctx, assignments, nil)
	return
}

// describe attaches asset and employee names to assignments. Assets missing
// from known are loaded on demand.
func (s *AssetService) describe(ctx context.Context, assignments []persistence.AssetAssignment, known map[string]persistence.Asset) []AssignmentDetail {
	if known == nil {
		known = make(map[string]persistence.Asset)
	}
	ids := make([]string, 0, len(assignments)*3)
	for _, a := range assignments {
		ids = append(ids, a.EmployeeID, a.AssignedBy, a.ReturnedBy)
		if _, ok := known[a.AssetID]; !ok {
			if asset, err := s.assets.GetAsset(ctx, a.AssetID); err == nil {
				known[a.AssetID] = asset
			}
		}
	}
	names := s.employeeNames(ctx, ids...)

	out := make([]AssignmentDetail, 0, len(assignments))
	for _, a := range assignments {
		asset := known[a.AssetID]
		out = append(out, AssignmentDetail{
			AssetAssignment: a,
			AssetName:       asset.Name,
			AssetCode:       asset.Code,
			EmployeeName:    names[a.EmployeeID],
			AssignedByName:  names[a.AssignedBy],
			ReturnedByName:  names[a.ReturnedBy],
		})
	}
	return out
}

func (s *AssetService) employeeName(ctx context.Context, id string) string {
	return s.employeeNames(ctx, id)[id]
}

func (s *AssetService) employeeNames(ctx context.Context, ids ...string) map[string]string {
	return lookupEmployeeNames(ctx, s.employees, ids...)
}

func (s *AssetService) loadActiveAsset(ctx context.Context, assetID string) (persistence.Asset, error) {
	asset, err := s.assets.GetAsset(ctx, assetID)
	if err != nil {
		return persistence.Asset{}, mapRepoError("Asset", err)
	}
	if !asset.IsActive {
		return persistence.Asset{}, notFound("Asset")
	}
	return asset, nil
}

func (s *AssetService) codePrefix(ctx context.Context) string {
	if s.prefixes != nil {
		if prefix := strings.TrimSpace(s.prefixes.AssetCodePrefix(ctx)); prefix != "" {
			return prefix
		}
	}
	return defaultAssetCodePrefix
}

// withConflictRetry re-runs fn while it loses optimistic version races.
func (s *AssetService) withConflictRetry(ctx context.Context, span trace.Span, fn func() error) error {
	delay := s.retryDelay
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, persistence.ErrVersionConflict) {
			return err
		}
		if attempt >= s.maxAttempts {
			return fmt.Errorf("%w: gave up after %d attempts", ErrConflict, attempt)
		}
		span.AddEvent("version_conflict", trace.WithAttributes(attribute.Int("attempt", attempt)))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay *= 2
	}
}

func validateAssetInput(input AssetInput) *ValidationError {
	vErr := &ValidationError{}
	if strings.TrimSpace(input.Name) == "" {
		vErr.add("name", "name is required")
	}
	if !input.Category.Valid() {
		vErr.add("category", "category is invalid")
	}
	if !input.Condition.Valid() {
		vErr.add("condition", "condition is invalid")
	}
	if input.Quantity < 1 {
		vErr.add("quantity", "quantity must be at least 1")
	}
	if input.Status != "" && !input.Status.Valid() {
		vErr.add("status", "status is invalid")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid asset details."
	}
	return vErr
}

// mapRepoError translates persistence sentinels into application errors.
// Version conflicts pass through untouched so callers can retry.
func mapRepoError(resource string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, persistence.ErrNotFound):
		return notFound(resource)
	case errors.Is(err, persistence.ErrDuplicate):
		return fmt.Errorf("%s: %w", strings.ToLower(resource), ErrAlreadyExists)
	case errors.Is(err, persistence.ErrConstraintViolation):
		return invalid("%s violates a storage constraint.", resource)
	default:
		return err
	}
}

func lookupEmployeeNames(ctx context.Context, employees persistence.EmployeeRepository, ids ...string) map[string]string {
	names := make(map[string]string, len(ids))
	if employees == nil {
		return names
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := names[id]; ok {
			continue
		}
		if employee, err := employees.GetEmployee(ctx, id); err == nil {
			names[id] = employee.DisplayName
		} else {
			names[id] = ""
		}
	}
	return names
}
