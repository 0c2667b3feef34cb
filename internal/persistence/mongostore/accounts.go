package mongostore

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/orgdesk/internal/persistence"
)

// --- EmployeeRepository ---

// CreateEmployee inserts a new employee. Email and device user id are unique.
func (s *Store) CreateEmployee(ctx context.Context, employee persistence.Employee) error {
	if employee.ID == "" {
		return persistence.ErrConstraintViolation
	}
	_, err := s.collection(colEmployees).InsertOne(ctx, toEmployeeDoc(employee))
	return mapError(err)
}

// UpdateEmployee replaces an existing employee.
func (s *Store) UpdateEmployee(ctx context.Context, employee persistence.Employee) error {
	return requireMatched(s.collection(colEmployees).ReplaceOne(ctx,
		bson.M{"_id": employee.ID}, toEmployeeDoc(employee)))
}

// GetEmployee retrieves an employee by id.
func (s *Store) GetEmployee(ctx context.Context, id string) (persistence.Employee, error) {
	doc, err := findOne[employeeDoc](ctx, s.collection(colEmployees), bson.M{"_id": id})
	if err != nil {
		return persistence.Employee{}, err
	}
	return doc.model(), nil
}

// GetEmployeeByEmail retrieves an employee by case-insensitive email.
func (s *Store) GetEmployeeByEmail(ctx context.Context, email string) (persistence.Employee, error) {
	doc, err := findOne[employeeDoc](ctx, s.collection(colEmployees), bson.M{"email_key": strings.ToLower(email)})
	if err != nil {
		return persistence.Employee{}, err
	}
	return doc.model(), nil
}

// GetEmployeeByDeviceUserID retrieves the employee enrolled under deviceUserID.
func (s *Store) GetEmployeeByDeviceUserID(ctx context.Context, deviceUserID string) (persistence.Employee, error) {
	if deviceUserID == "" {
		return persistence.Employee{}, persistence.ErrNotFound
	}
	doc, err := findOne[employeeDoc](ctx, s.collection(colEmployees), bson.M{"device_user_id": deviceUserID})
	if err != nil {
		return persistence.Employee{}, err
	}
	return doc.model(), nil
}

// ListEmployees returns employees ordered by display name.
func (s *Store) ListEmployees(ctx context.Context, filter persistence.EmployeeFilter) ([]persistence.Employee, error) {
	query := bson.M{}
	if filter.ActiveOnly {
		query["is_active"] = true
	}
	if len(filter.Roles) > 0 {
		query["role"] = inValues(filter.Roles)
	}

	docs, err := findAll[employeeDoc](ctx, s.collection(colEmployees), query,
		options.Find().SetSort(bson.D{{Key: "display_name", Value: 1}, {Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	employees := make([]persistence.Employee, len(docs))
	for i, doc := range docs {
		employees[i] = doc.model()
	}
	return employees, nil
}

// --- SessionRepository ---

// CreateSession inserts a session. Tokens are unique.
func (s *Store) CreateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if session.Token == "" {
		return persistence.Session{}, persistence.ErrConstraintViolation
	}
	if _, err := s.collection(colSessions).InsertOne(ctx, toSessionDoc(session)); err != nil {
		return persistence.Session{}, mapError(err)
	}
	return session, nil
}

// GetSession retrieves a session by token.
func (s *Store) GetSession(ctx context.Context, token string) (persistence.Session, error) {
	doc, err := findOne[sessionDoc](ctx, s.collection(colSessions), bson.M{"token": token})
	if err != nil {
		return persistence.Session{}, err
	}
	return doc.model(), nil
}

// UpdateSession replaces the session with the same id.
func (s *Store) UpdateSession(ctx context.Context, session persistence.Session) (persistence.Session, error) {
	if err := requireMatched(s.collection(colSessions).ReplaceOne(ctx,
		bson.M{"_id": session.ID}, toSessionDoc(session))); err != nil {
		return persistence.Session{}, err
	}
	return session, nil
}

// RevokeSession marks the session revoked and returns it.
func (s *Store) RevokeSession(ctx context.Context, token string, revokedAt time.Time) (persistence.Session, error) {
	var doc sessionDoc
	err := s.collection(colSessions).FindOneAndUpdate(ctx,
		bson.M{"token": token},
		bson.M{"$set": bson.M{"revoked_at": revokedAt, "updated_at": revokedAt}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return persistence.Session{}, mapError(err)
	}
	return doc.model(), nil
}

// DeleteExpiredSessions removes sessions that expired at or before reference.
func (s *Store) DeleteExpiredSessions(ctx context.Context, reference time.Time) error {
	_, err := s.collection(colSessions).DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": reference}})
	return mapError(err)
}

// --- SettingsRepository ---

type settingDoc struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// GetSettings returns every stored setting.
func (s *Store) GetSettings(ctx context.Context) (map[string]string, error) {
	docs, err := findAll[settingDoc](ctx, s.collection(colSettings), bson.M{})
	if err != nil {
		return nil, err
	}
	values := make(map[string]string, len(docs))
	for _, doc := range docs {
		values[doc.Key] = doc.Value
	}
	return values, nil
}

// PutSettings merges values into the stored settings.
func (s *Store) PutSettings(ctx context.Context, values map[string]string, at time.Time) error {
	if len(values) == 0 {
		return nil
	}
	models := make([]mongo.WriteModel, 0, len(values))
	for key, value := range values {
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(bson.M{"_id": key}).
			SetUpdate(bson.M{"$set": bson.M{"value": value, "updated_at": at}}).
			SetUpsert(true))
	}
	_, err := s.collection(colSettings).BulkWrite(ctx, models)
	return mapError(err)
}
