package mongostore

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/orgdesk/internal/persistence"
)

type counterDoc struct {
	ID    string `bson:"_id"`
	Value int64  `bson:"value"`
}

// NextAssetSequence increments and returns the asset code sequence.
func (s *Store) NextAssetSequence(ctx context.Context) (int64, error) {
	var doc counterDoc
	err := s.collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": "asset_code"},
		bson.M{"$inc": bson.M{"value": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, mapError(err)
	}
	return doc.Value, nil
}

// CreateAsset inserts a new asset at version 1.
func (s *Store) CreateAsset(ctx context.Context, asset persistence.Asset) error {
	if asset.ID == "" || asset.Quantity < 0 || asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}
	asset.Version = 1
	_, err := s.collection(colAssets).InsertOne(ctx, toAssetDoc(asset))
	return mapError(err)
}

// UpdateAsset writes the asset when the stored version equals expectedVersion.
func (s *Store) UpdateAsset(ctx context.Context, asset persistence.Asset, expectedVersion int64) error {
	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		return s.writeAsset(sc, asset, expectedVersion)
	})
}

// writeAsset applies the optimistic version guard and bumps the version.
// Code and creation fields are immutable and never written here.
func (s *Store) writeAsset(ctx context.Context, asset persistence.Asset, expectedVersion int64) error {
	stored, err := findOne[assetDoc](ctx, s.collection(colAssets), bson.M{"_id": asset.ID})
	if err != nil {
		return err
	}
	if stored.Version != expectedVersion {
		return persistence.ErrVersionConflict
	}
	if asset.QuantityAssigned < 0 || asset.QuantityAssigned > asset.Quantity {
		return persistence.ErrConstraintViolation
	}

	set := bson.M{
		"name":              asset.Name,
		"category":          string(asset.Category),
		"condition":         string(asset.Condition),
		"status":            string(asset.Status),
		"quantity":          asset.Quantity,
		"quantity_assigned": asset.QuantityAssigned,
		"serial_number":     asset.SerialNumber,
		"location":          asset.Location,
		"description":       asset.Description,
		"is_active":         asset.IsActive,
		"version":           expectedVersion + 1,
		"updated_at":        asset.UpdatedAt,
	}
	update := bson.M{"$set": set}
	if asset.PurchaseDate != nil {
		set["purchase_date"] = *asset.PurchaseDate
	} else {
		update["$unset"] = bson.M{"purchase_date": ""}
	}

	result, err := s.collection(colAssets).UpdateOne(ctx,
		bson.M{"_id": asset.ID, "version": expectedVersion}, update)
	if err != nil {
		return mapError(err)
	}
	if result.MatchedCount == 0 {
		return persistence.ErrVersionConflict
	}
	return nil
}

// GetAsset retrieves an asset by id, including inactive ones.
func (s *Store) GetAsset(ctx context.Context, id string) (persistence.Asset, error) {
	doc, err := findOne[assetDoc](ctx, s.collection(colAssets), bson.M{"_id": id})
	if err != nil {
		return persistence.Asset{}, err
	}
	return doc.model(), nil
}

// ListAssets returns matching assets, newest first.
func (s *Store) ListAssets(ctx context.Context, filter persistence.AssetFilter) ([]persistence.Asset, error) {
	query := bson.M{}
	if !filter.IncludeInactive {
		query["is_active"] = true
	}
	if filter.Status != "" {
		query["status"] = string(filter.Status)
	}
	if filter.Category != "" {
		query["category"] = string(filter.Category)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		pattern := primitive.Regex{Pattern: regexp.QuoteMeta(search), Options: "i"}
		query["$or"] = bson.A{
			bson.M{"name": pattern},
			bson.M{"code": pattern},
			bson.M{"serial_number": pattern},
		}
	}

	docs, err := findAll[assetDoc](ctx, s.collection(colAssets), query, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, err
	}
	assets := make([]persistence.Asset, len(docs))
	for i, doc := range docs {
		assets[i] = doc.model()
	}
	return assets, nil
}

// CommitAssign writes the asset, inserts the assignment and records the
// outbox messages in one transaction.
func (s *Store) CommitAssign(ctx context.Context, mutation persistence.AssetMutation) error {
	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		_, err := findOne[assignmentDoc](sc, s.collection(colAssignments), bson.M{"_id": mutation.Assignment.ID})
		switch {
		case err == nil:
			return persistence.ErrDuplicate
		case !errors.Is(err, persistence.ErrNotFound):
			return err
		}

		if err := s.writeAsset(sc, mutation.Asset, mutation.ExpectedVersion); err != nil {
			return err
		}
		if _, err := s.collection(colAssignments).InsertOne(sc, toAssignmentDoc(mutation.Assignment)); err != nil {
			return mapError(err)
		}
		return s.enqueue(sc, mutation.Outbox)
	})
}

// CommitReturn closes an active assignment, writes the asset and records the
// outbox messages in one transaction.
func (s *Store) CommitReturn(ctx context.Context, mutation persistence.AssetMutation) error {
	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		stored, err := findOne[assignmentDoc](sc, s.collection(colAssignments), bson.M{"_id": mutation.Assignment.ID})
		if err != nil {
			return err
		}
		if persistence.AssignmentStatus(stored.Status) != persistence.AssignmentActive {
			return persistence.ErrStaleState
		}

		if err := s.writeAsset(sc, mutation.Asset, mutation.ExpectedVersion); err != nil {
			return err
		}
		result, err := s.collection(colAssignments).ReplaceOne(sc,
			bson.M{"_id": stored.ID, "status": string(persistence.AssignmentActive)},
			toAssignmentDoc(mutation.Assignment))
		if err != nil {
			return mapError(err)
		}
		if result.MatchedCount == 0 {
			return persistence.ErrStaleState
		}
		return s.enqueue(sc, mutation.Outbox)
	})
}

// GetAssignment retrieves an assignment by id.
func (s *Store) GetAssignment(ctx context.Context, id string) (persistence.AssetAssignment, error) {
	doc, err := findOne[assignmentDoc](ctx, s.collection(colAssignments), bson.M{"_id": id})
	if err != nil {
		return persistence.AssetAssignment{}, err
	}
	return doc.model(), nil
}

// ListAssignments returns matching assignments, most recently assigned first.
func (s *Store) ListAssignments(ctx context.Context, filter persistence.AssignmentFilter) ([]persistence.AssetAssignment, error) {
	query := bson.M{}
	if filter.AssetID != "" {
		query["asset_id"] = filter.AssetID
	}
	if filter.EmployeeID != "" {
		query["employee_id"] = filter.EmployeeID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = inValues(filter.Statuses)
	}

	opts := options.Find().SetSort(bson.D{{Key: "assigned_at", Value: -1}, {Key: "_id", Value: -1}})
	if filter.Limit > 0 {
		opts.SetLimit(int64(filter.Limit))
	}
	docs, err := findAll[assignmentDoc](ctx, s.collection(colAssignments), query, opts)
	if err != nil {
		return nil, err
	}
	assignments := make([]persistence.AssetAssignment, len(docs))
	for i, doc := range docs {
		assignments[i] = doc.model()
	}
	return assignments, nil
}
