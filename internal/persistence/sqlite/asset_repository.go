package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/example/orgdesk/internal/persistence"
)

const assetColumns = `id, code, name, category, asset_condition, status, quantity, quantity_assigned,
	serial_number, location, description, purchase_date, is_active, version, created_by, created_at, updated_at`

const assignmentColumns = `id, asset_id, employee_id, room, quantity, condition_at_assignment, notes,
	assigned_by, assigned_at, status, return_date, condition_at_return, return_notes, returned_by,
	created_at, updated_at`

// AssetRepository implements persistence.AssetRepository using SQLite
type AssetRepository struct {
	repository
}

// NewAssetRepository creates a new SQLite asset repository
func NewAssetRepository(pool *ConnectionPool) *AssetRepository {
	return &AssetRepository{repository: newRepository(pool)}
}

// NextAssetSequence increments and returns the asset code sequence.
func (r *AssetRepository) NextAssetSequence(ctx context.Context) (int64, error) {
	var next int64
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return r.helper.QueryRowTx(ctx, tx,
			`UPDATE asset_sequence SET value = value + 1 WHERE id = 1 RETURNING value`).Scan(&next)
	})
	if err != nil {
		return 0, r.mapper.MapError(err)
	}
	return next, nil
}

// CreateAsset inserts a new asset at version 1.
func (r *AssetRepository) CreateAsset(ctx context.Context, asset persistence.Asset) error {
	if asset.ID == "" || asset.Quantity < 0 || asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}

	query := `INSERT INTO assets (` + assetColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?)`
	_, err := r.exec(ctx, query,
		asset.ID,
		asset.Code,
		asset.Name,
		string(asset.Category),
		string(asset.Condition),
		string(asset.Status),
		asset.Quantity,
		asset.QuantityAssigned,
		asset.SerialNumber,
		asset.Location,
		asset.Description,
		formatNullableTime(asset.PurchaseDate),
		asset.IsActive,
		asset.CreatedBy,
		formatTime(asset.CreatedAt),
		formatTime(asset.UpdatedAt),
	)
	return err
}

// UpdateAsset writes the asset when the stored version equals expectedVersion.
func (r *AssetRepository) UpdateAsset(ctx context.Context, asset persistence.Asset, expectedVersion int64) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		return r.writeAssetTx(ctx, tx, asset, expectedVersion)
	})
	return r.mapper.MapError(err)
}

// writeAssetTx applies the optimistic version guard and bumps the version.
// Code and creation fields are immutable and never written here.
func (r *AssetRepository) writeAssetTx(ctx context.Context, tx *sql.Tx, asset persistence.Asset, expectedVersion int64) error {
	var stored int64
	if err := r.helper.QueryRowTx(ctx, tx, `SELECT version FROM assets WHERE id = ?`, asset.ID).Scan(&stored); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.ErrNotFound
		}
		return err
	}
	if stored != expectedVersion {
		return persistence.ErrVersionConflict
	}
	if asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}

	query := `
		UPDATE assets
		SET name = ?, category = ?, asset_condition = ?, status = ?, quantity = ?, quantity_assigned = ?,
			serial_number = ?, location = ?, description = ?, purchase_date = ?, is_active = ?,
			version = ?, updated_at = ?
		WHERE id = ?
	`
	_, err := r.helper.ExecTx(ctx, tx, query,
		asset.Name,
		string(asset.Category),
		string(asset.Condition),
		string(asset.Status),
		asset.Quantity,
		asset.QuantityAssigned,
		asset.SerialNumber,
		asset.Location,
		asset.Description,
		formatNullableTime(asset.PurchaseDate),
		asset.IsActive,
		expectedVersion+1,
		formatTime(asset.UpdatedAt),
		asset.ID,
	)
	return err
}

// GetAsset retrieves an asset by id, including inactive ones.
func (r *AssetRepository) GetAsset(ctx context.Context, id string) (persistence.Asset, error) {
	asset, err := scanAsset(r.helper.QueryRow(ctx, `SELECT `+assetColumns+` FROM assets WHERE id = ?`, id))
	if err != nil {
		return persistence.Asset{}, r.mapper.MapError(err)
	}
	return asset, nil
}

// ListAssets returns matching assets, newest first.
func (r *AssetRepository) ListAssets(ctx context.Context, filter persistence.AssetFilter) ([]persistence.Asset, error) {
	var where whereClause
	if !filter.IncludeInactive {
		where.add("is_active = 1")
	}
	if filter.Status != "" {
		where.add("status = ?", string(filter.Status))
	}
	if filter.Category != "" {
		where.add("category = ?", string(filter.Category))
	}
	if search := strings.ToLower(strings.TrimSpace(filter.Search)); search != "" {
		pattern := "%" + escapeLike(search) + "%"
		where.add(`(LOWER(name) LIKE ? ESCAPE '\' OR LOWER(code) LIKE ? ESCAPE '\' OR LOWER(serial_number) LIKE ? ESCAPE '\')`,
			pattern, pattern, pattern)
	}

	rows, err := r.helper.Query(ctx, `SELECT `+assetColumns+` FROM assets`+where.String()+` ORDER BY created_at DESC, id DESC`, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	assets := make([]persistence.Asset, 0)
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, r.mapper.MapError(rows.Err())
}

// CommitAssign writes the asset, inserts the assignment and records the
// outbox messages in one transaction.
func (r *AssetRepository) CommitAssign(ctx context.Context, mutation persistence.AssetMutation) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := r.helper.QueryRowTx(ctx, tx, `SELECT 1 FROM asset_assignments WHERE id = ?`, mutation.Assignment.ID).Scan(&exists)
		switch {
		case err == nil:
			return persistence.ErrDuplicate
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}

		if err := r.writeAssetTx(ctx, tx, mutation.Asset, mutation.ExpectedVersion); err != nil {
			return err
		}
		if err := r.insertAssignmentTx(ctx, tx, mutation.Assignment); err != nil {
			return err
		}
		return enqueueOutboxTx(ctx, r.helper, tx, mutation.Outbox)
	})
	return r.mapper.MapError(err)
}

// CommitReturn closes an active assignment, writes the asset and records the
// outbox messages in one transaction.
func (r *AssetRepository) CommitReturn(ctx context.Context, mutation persistence.AssetMutation) error {
	err := r.inTx(ctx, func(tx *sql.Tx) error {
		var status string
		if err := r.helper.QueryRowTx(ctx, tx, `SELECT status FROM asset_assignments WHERE id = ?`, mutation.Assignment.ID).Scan(&status); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return persistence.ErrNotFound
			}
			return err
		}
		if persistence.AssignmentStatus(status) != persistence.AssignmentActive {
			return persistence.ErrStaleState
		}

		if err := r.writeAssetTx(ctx, tx, mutation.Asset, mutation.ExpectedVersion); err != nil {
			return err
		}

		a := mutation.Assignment
		query := `
			UPDATE asset_assignments
			SET quantity = ?, status = ?, return_date = ?, condition_at_return = ?, return_notes = ?,
				returned_by = ?, notes = ?, updated_at = ?
			WHERE id = ?
		`
		if _, err := r.helper.ExecTx(ctx, tx, query,
			a.Quantity,
			string(a.Status),
			formatNullableTime(a.ReturnDate),
			string(a.ConditionAtReturn),
			a.ReturnNotes,
			a.ReturnedBy,
			a.Notes,
			formatTime(a.UpdatedAt),
			a.ID,
		); err != nil {
			return err
		}
		return enqueueOutboxTx(ctx, r.helper, tx, mutation.Outbox)
	})
	return r.mapper.MapError(err)
}

func (r *AssetRepository) insertAssignmentTx(ctx context.Context, tx *sql.Tx, a persistence.AssetAssignment) error {
	query := `INSERT INTO asset_assignments (` + assignmentColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := r.helper.ExecTx(ctx, tx, query,
		a.ID,
		a.AssetID,
		a.EmployeeID,
		a.Room,
		a.Quantity,
		string(a.ConditionAtAssignment),
		a.Notes,
		a.AssignedBy,
		formatTime(a.AssignedAt),
		string(a.Status),
		formatNullableTime(a.ReturnDate),
		string(a.ConditionAtReturn),
		a.ReturnNotes,
		a.ReturnedBy,
		formatTime(a.CreatedAt),
		formatTime(a.UpdatedAt),
	)
	return err
}

// GetAssignment retrieves an assignment by id.
func (r *AssetRepository) GetAssignment(ctx context.Context, id string) (persistence.AssetAssignment, error) {
	assignment, err := scanAssignment(r.helper.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM asset_assignments WHERE id = ?`, id))
	if err != nil {
		return persistence.AssetAssignment{}, r.mapper.MapError(err)
	}
	return assignment, nil
}

// ListAssignments returns matching assignments, most recently assigned first.
func (r *AssetRepository) ListAssignments(ctx context.Context, filter persistence.AssignmentFilter) ([]persistence.AssetAssignment, error) {
	var where whereClause
	if filter.AssetID != "" {
		where.add("asset_id = ?", filter.AssetID)
	}
	if filter.EmployeeID != "" {
		where.add("employee_id = ?", filter.EmployeeID)
	}
	where.in("status", stringsOf(filter.Statuses))

	query := `SELECT ` + assignmentColumns + ` FROM asset_assignments` + where.String() +
		` ORDER BY assigned_at DESC, id DESC` + limitClause(filter.Limit)
	rows, err := r.helper.Query(ctx, query, where.args...)
	if err != nil {
		return nil, r.mapper.MapError(err)
	}
	defer rows.Close()

	assignments := make([]persistence.AssetAssignment, 0)
	for rows.Next() {
		assignment, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, assignment)
	}
	return assignments, r.mapper.MapError(rows.Err())
}

func scanAsset(row rowScanner) (persistence.Asset, error) {
	var (
		asset                       persistence.Asset
		category, condition, status string
		purchaseDate                sql.NullString
		createdAt, updatedAt        string
	)
	if err := row.Scan(
		&asset.ID,
		&asset.Code,
		&asset.Name,
		&category,
		&condition,
		&status,
		&asset.Quantity,
		&asset.QuantityAssigned,
		&asset.SerialNumber,
		&asset.Location,
		&asset.Description,
		&purchaseDate,
		&asset.IsActive,
		&asset.Version,
		&asset.CreatedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.Asset{}, err
	}

	var d decoder
	asset.Category = persistence.AssetCategory(category)
	asset.Condition = persistence.AssetCondition(condition)
	asset.Status = persistence.AssetStatus(status)
	asset.PurchaseDate = d.nullableTime("purchase_date", purchaseDate)
	asset.CreatedAt = d.time("created_at", createdAt)
	asset.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.Asset{}, fmt.Errorf("asset %s: %w", asset.ID, d.err)
	}
	return asset, nil
}

func scanAssignment(row rowScanner) (persistence.AssetAssignment, error) {
	var (
		a                                        persistence.AssetAssignment
		conditionAtAssignment, conditionAtReturn string
		status                                   string
		assignedAt, createdAt, updatedAt         string
		returnDate                               sql.NullString
	)
	if err := row.Scan(
		&a.ID,
		&a.AssetID,
		&a.EmployeeID,
		&a.Room,
		&a.Quantity,
		&conditionAtAssignment,
		&a.Notes,
		&a.AssignedBy,
		&assignedAt,
		&status,
		&returnDate,
		&conditionAtReturn,
		&a.ReturnNotes,
		&a.ReturnedBy,
		&createdAt,
		&updatedAt,
	); err != nil {
		return persistence.AssetAssignment{}, err
	}

	var d decoder
	a.ConditionAtAssignment = persistence.AssetCondition(conditionAtAssignment)
	a.ConditionAtReturn = persistence.AssetCondition(conditionAtReturn)
	a.Status = persistence.AssignmentStatus(status)
	a.AssignedAt = d.time("assigned_at", assignedAt)
	a.ReturnDate = d.nullableTime("return_date", returnDate)
	a.CreatedAt = d.time("created_at", createdAt)
	a.UpdatedAt = d.time("updated_at", updatedAt)
	if d.err != nil {
		return persistence.AssetAssignment{}, fmt.Errorf("assignment %s: %w", a.ID, d.err)
	}
	return a, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
