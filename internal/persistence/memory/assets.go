package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/example/orgdesk/internal/persistence"
)

// NextAssetSequence returns the next value of the asset code sequence.
func (s *Storage) NextAssetSequence(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.assetSequence++
	return s.assetSequence, nil
}

// CreateAsset stores a new asset at version 1.
func (s *Storage) CreateAsset(_ context.Context, asset persistence.Asset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if asset.ID == "" || asset.Quantity < 0 || asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}
	if _, ok := s.assets[asset.ID]; ok {
		return persistence.ErrDuplicate
	}
	for _, existing := range s.assets {
		if existing.Code == asset.Code {
			return persistence.ErrDuplicate
		}
	}
	asset.Version = 1
	s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

// UpdateAsset replaces the asset when expectedVersion matches.
func (s *Storage) UpdateAsset(_ context.Context, asset persistence.Asset, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.writeAssetLocked(asset, expectedVersion)
}

func (s *Storage) writeAssetLocked(asset persistence.Asset, expectedVersion int64) error {
	stored, ok := s.assets[asset.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.Version != expectedVersion {
		return persistence.ErrVersionConflict
	}
	if asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}
	asset.Code = stored.Code
	asset.CreatedAt = stored.CreatedAt
	asset.CreatedBy = stored.CreatedBy
	asset.Version = expectedVersion + 1
	s.assets[asset.ID] = cloneAsset(asset)
	return nil
}

// GetAsset retrieves an asset by id, including inactive ones.
func (s *Storage) GetAsset(_ context.Context, id string) (persistence.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	asset, ok := s.assets[id]
	if !ok {
		return persistence.Asset{}, persistence.ErrNotFound
	}
	return cloneAsset(asset), nil
}

// ListAssets returns matching assets, newest first.
func (s *Storage) ListAssets(_ context.Context, filter persistence.AssetFilter) ([]persistence.Asset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	search := strings.ToLower(strings.TrimSpace(filter.Search))
	assets := make([]persistence.Asset, 0, len(s.assets))
	for _, asset := range s.assets {
		if !filter.IncludeInactive && !asset.IsActive {
			continue
		}
		if filter.Status != "" && asset.Status != filter.Status {
			continue
		}
		if filter.Category != "" && asset.Category != filter.Category {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(asset.Name), search) &&
			!strings.Contains(strings.ToLower(asset.Code), search) &&
			!strings.Contains(strings.ToLower(asset.SerialNumber), search) {
			continue
		}
		assets = append(assets, cloneAsset(asset))
	}
	sort.Slice(assets, func(i, j int) bool {
		if assets[i].CreatedAt.Equal(assets[j].CreatedAt) {
			return assets[i].ID > assets[j].ID
		}
		return assets[i].CreatedAt.After(assets[j].CreatedAt)
	})
	return assets, nil
}

// CommitAssign writes the asset and inserts the assignment atomically.
func (s *Storage) CommitAssign(_ context.Context, mutation persistence.AssetMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.assignments[mutation.Assignment.ID]; ok {
		return persistence.ErrDuplicate
	}
	if err := s.writeAssetLocked(mutation.Asset, mutation.ExpectedVersion); err != nil {
		return err
	}
	s.assignments[mutation.Assignment.ID] = cloneAssignment(mutation.Assignment)
	s.enqueueLocked(mutation.Outbox)
	return nil
}

// CommitReturn closes an active assignment and writes the asset atomically.
func (s *Storage) CommitReturn(_ context.Context, mutation persistence.AssetMutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.assignments[mutation.Assignment.ID]
	if !ok {
		return persistence.ErrNotFound
	}
	if stored.Status != persistence.AssignmentActive {
		return persistence.ErrStaleState
	}
	if err := s.writeAssetLocked(mutation.Asset, mutation.ExpectedVersion); err != nil {
		return err
	}
	s.assignments[stored.ID] = cloneAssignment(mutation.Assignment)
	s.enqueueLocked(mutation.Outbox)
	return nil
}

// GetAssignment retrieves an assignment by id.
func (s *Storage) GetAssignment(_ context.Context, id string) (persistence.AssetAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assignment, ok := s.assignments[id]
	if !ok {
		return persistence.AssetAssignment{}, persistence.ErrNotFound
	}
	return cloneAssignment(assignment), nil
}

// ListAssignments returns matching assignments, most recently assigned first.
func (s *Storage) ListAssignments(_ context.Context, filter persistence.AssignmentFilter) ([]persistence.AssetAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]persistence.AssetAssignment, 0)
	for _, assignment := range s.assignments {
		if filter.AssetID != "" && assignment.AssetID != filter.AssetID {
			continue
		}
		if filter.EmployeeID != "" && assignment.EmployeeID != filter.EmployeeID {
			continue
		}
		if len(filter.Statuses) > 0 && !containsValue(filter.Statuses, assignment.Status) {
			continue
		}
		out = append(out, cloneAssignment(assignment))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].AssignedAt.Equal(out[j].AssignedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].AssignedAt.After(out[j].AssignedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func cloneAsset(asset persistence.Asset) persistence.Asset {
	asset.PurchaseDate = cloneTime(asset.PurchaseDate)
	return asset
}

func cloneAssignment(assignment persistence.AssetAssignment) persistence.AssetAssignment {
	assignment.ReturnDate = cloneTime(assignment.ReturnDate)
	return assignment
}
