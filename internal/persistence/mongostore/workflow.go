package mongostore

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/orgdesk/internal/persistence"
)

// --- LeaveRepository ---

// CreateLeave inserts a new leave request.
func (s *Store) CreateLeave(ctx context.Context, leave persistence.Leave) error {
	if leave.ID == "" || leave.EndDate.Before(leave.StartDate) {
		return persistence.ErrConstraintViolation
	}
	_, err := s.collection(colLeaves).InsertOne(ctx, toLeaveDoc(leave))
	return mapError(err)
}

// GetLeave retrieves a leave by id.
func (s *Store) GetLeave(ctx context.Context, id string) (persistence.Leave, error) {
	doc, err := findOne[leaveDoc](ctx, s.collection(colLeaves), bson.M{"_id": id})
	if err != nil {
		return persistence.Leave{}, err
	}
	return doc.model(), nil
}

// ListLeaves returns matching leaves, newest first.
func (s *Store) ListLeaves(ctx context.Context, filter persistence.LeaveFilter) ([]persistence.Leave, error) {
	query := bson.M{}
	if filter.EmployeeID != "" {
		query["employee_id"] = filter.EmployeeID
	}
	if len(filter.Statuses) > 0 {
		query["status"] = inValues(filter.Statuses)
	}
	if filter.OverlapsTo != nil {
		query["start_date"] = bson.M{"$lte": dayOf(*filter.OverlapsTo)}
	}
	if filter.OverlapsFrom != nil {
		query["end_date"] = bson.M{"$gte": dayOf(*filter.OverlapsFrom)}
	}

	docs, err := findAll[leaveDoc](ctx, s.collection(colLeaves), query, options.Find().SetSort(newestFirst()))
	if err != nil {
		return nil, err
	}
	leaves := make([]persistence.Leave, len(docs))
	for i, doc := range docs {
		leaves[i] = doc.model()
	}
	return leaves, nil
}

// DeleteLeave removes the leave while it is still in status.
func (s *Store) DeleteLeave(ctx context.Context, id string, status persistence.LeaveStatus) error {
	result, err := s.collection(colLeaves).DeleteOne(ctx, bson.M{"_id": id, "status": string(status)})
	if err != nil {
		return mapError(err)
	}
	if result.DeletedCount > 0 {
		return nil
	}
	if _, err := s.GetLeave(ctx, id); err != nil {
		return err
	}
	return persistence.ErrStaleState
}

// CommitLeaveDecision moves a pending leave to its reviewed status, upserts the
// attendance rows and records the outbox messages in one transaction.
func (s *Store) CommitLeaveDecision(ctx context.Context, decision persistence.LeaveDecision) error {
	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		stored, err := findOne[leaveDoc](sc, s.collection(colLeaves), bson.M{"_id": decision.Leave.ID})
		if err != nil {
			return err
		}
		if persistence.LeaveStatus(stored.Status) != persistence.LeavePending {
			return persistence.ErrStaleState
		}

		result, err := s.collection(colLeaves).ReplaceOne(sc,
			bson.M{"_id": stored.ID, "status": string(persistence.LeavePending)},
			toLeaveDoc(decision.Leave))
		if err != nil {
			return mapError(err)
		}
		if result.MatchedCount == 0 {
			return persistence.ErrStaleState
		}
		for _, row := range decision.Attendance {
			if _, err := s.upsertAttendance(sc, row); err != nil {
				return err
			}
		}
		return s.enqueue(sc, decision.Outbox)
	})
}

// --- AttendanceRepository ---

// UpsertAttendance inserts or replaces the row keyed by employee and work date.
func (s *Store) UpsertAttendance(ctx context.Context, row persistence.Attendance) (persistence.Attendance, error) {
	if row.EmployeeID == "" || row.WorkDate.IsZero() {
		return persistence.Attendance{}, persistence.ErrConstraintViolation
	}
	return s.upsertAttendance(ctx, row)
}

// upsertAttendance keeps the stored id, creation time and justification of an
// existing day row.
func (s *Store) upsertAttendance(ctx context.Context, row persistence.Attendance) (persistence.Attendance, error) {
	coll := s.collection(colAttendance)
	key := bson.M{"employee_id": row.EmployeeID, "work_date": dayOf(row.WorkDate)}

	existing, err := findOne[attendanceDoc](ctx, coll, key)
	switch {
	case err == nil:
		row.ID = existing.ID
		row.CreatedAt = existing.CreatedAt
		doc := toAttendanceDoc(row)
		doc.Justification = existing.Justification
		if _, err := coll.ReplaceOne(ctx, bson.M{"_id": existing.ID}, doc); err != nil {
			return persistence.Attendance{}, mapError(err)
		}
		return doc.model(), nil
	case errors.Is(err, persistence.ErrNotFound):
		if row.ID == "" {
			row.ID = uuid.NewString()
		}
		doc := toAttendanceDoc(row)
		if _, err := coll.InsertOne(ctx, doc); err != nil {
			return persistence.Attendance{}, mapError(err)
		}
		return doc.model(), nil
	default:
		return persistence.Attendance{}, err
	}
}

// GetAttendance retrieves an attendance row by id.
func (s *Store) GetAttendance(ctx context.Context, id string) (persistence.Attendance, error) {
	doc, err := findOne[attendanceDoc](ctx, s.collection(colAttendance), bson.M{"_id": id})
	if err != nil {
		return persistence.Attendance{}, err
	}
	return doc.model(), nil
}

// GetAttendanceByDay retrieves the row for an employee and work date.
func (s *Store) GetAttendanceByDay(ctx context.Context, employeeID string, workDate time.Time) (persistence.Attendance, error) {
	doc, err := findOne[attendanceDoc](ctx, s.collection(colAttendance),
		bson.M{"employee_id": employeeID, "work_date": dayOf(workDate)})
	if err != nil {
		return persistence.Attendance{}, err
	}
	return doc.model(), nil
}

// ListAttendance returns matching rows, latest work date first.
func (s *Store) ListAttendance(ctx context.Context, filter persistence.AttendanceFilter) ([]persistence.Attendance, error) {
	query := bson.M{}
	if filter.EmployeeID != "" {
		query["employee_id"] = filter.EmployeeID
	}
	dateRange := bson.M{}
	if filter.From != nil {
		dateRange["$gte"] = dayOf(*filter.From)
	}
	if filter.To != nil {
		dateRange["$lte"] = dayOf(*filter.To)
	}
	if len(dateRange) > 0 {
		query["work_date"] = dateRange
	}
	if len(filter.Statuses) > 0 {
		query["status"] = inValues(filter.Statuses)
	}
	if filter.Justification != "" {
		query["justification.status"] = string(filter.Justification)
	}

	docs, err := findAll[attendanceDoc](ctx, s.collection(colAttendance), query,
		options.Find().SetSort(bson.D{{Key: "work_date", Value: -1}, {Key: "employee_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	rows := make([]persistence.Attendance, len(docs))
	for i, doc := range docs {
		rows[i] = doc.model()
	}
	return rows, nil
}

// CommitJustification applies change while the stored justification status
// equals change.Expected.
func (s *Store) CommitJustification(ctx context.Context, change persistence.JustificationChange) error {
	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		coll := s.collection(colAttendance)
		stored, err := findOne[attendanceDoc](sc, coll, bson.M{"_id": change.AttendanceID})
		if err != nil {
			return err
		}
		if persistence.JustificationStatus(stored.Justification.Status) != change.Expected {
			return persistence.ErrStaleState
		}

		set := bson.M{
			"justification": toJustificationDoc(change.Justification),
			"remarks":       change.Remarks,
			"updated_at":    change.UpdatedAt,
		}
		if change.Status != "" {
			set["status"] = string(change.Status)
		}
		if _, err := coll.UpdateOne(sc, bson.M{"_id": stored.ID}, bson.M{"$set": set}); err != nil {
			return mapError(err)
		}
		return s.enqueue(sc, change.Outbox)
	})
}

type watermarkDoc struct {
	DeviceID  string    `bson:"_id"`
	Watermark time.Time `bson:"watermark"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// IngestDevice upserts the rows and advances the device watermark together.
// The watermark never moves backwards.
func (s *Store) IngestDevice(ctx context.Context, ingest persistence.DeviceIngest) error {
	for _, row := range ingest.Rows {
		if row.EmployeeID == "" || row.WorkDate.IsZero() {
			return persistence.ErrConstraintViolation
		}
	}

	return s.inTx(ctx, func(sc mongo.SessionContext) error {
		for _, row := range ingest.Rows {
			if _, err := s.upsertAttendance(sc, row); err != nil {
				return err
			}
		}
		if ingest.Watermark.IsZero() {
			return nil
		}

		coll := s.collection(colWatermarks)
		current, err := findOne[watermarkDoc](sc, coll, bson.M{"_id": ingest.DeviceID})
		switch {
		case err == nil && !ingest.Watermark.After(current.Watermark):
			return nil
		case err != nil && !errors.Is(err, persistence.ErrNotFound):
			return err
		}
		_, err = coll.UpdateOne(sc,
			bson.M{"_id": ingest.DeviceID},
			bson.M{"$set": bson.M{"watermark": ingest.Watermark, "updated_at": ingest.At}},
			options.Update().SetUpsert(true))
		return mapError(err)
	})
}

// DeviceWatermark returns the last ingested punch time, or the zero time for
// unknown devices.
func (s *Store) DeviceWatermark(ctx context.Context, deviceID string) (time.Time, error) {
	doc, err := findOne[watermarkDoc](ctx, s.collection(colWatermarks), bson.M{"_id": deviceID})
	if errors.Is(err, persistence.ErrNotFound) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	return doc.Watermark, nil
}
