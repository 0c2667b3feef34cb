package mongostore

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/example/orgdesk/internal/persistence"
)

func TestMapError(t *testing.T) {
	t.Parallel()

	duplicate := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	other := errors.New("socket closed")

	cases := []struct {
		name string
		in   error
		want error
	}{
		{name: "nil", in: nil, want: nil},
		{name: "no documents", in: mongo.ErrNoDocuments, want: persistence.ErrNotFound},
		{name: "duplicate key", in: duplicate, want: persistence.ErrDuplicate},
		{name: "sentinel passes through", in: fmt.Errorf("wrapped: %w", persistence.ErrVersionConflict), want: persistence.ErrVersionConflict},
		{name: "unknown kept", in: other, want: other},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := mapError(tc.in)
			if tc.want == nil {
				assert.NoError(t, got)
				return
			}
			assert.ErrorIs(t, got, tc.want)
		})
	}
}

func TestSetOnInsertDropsID(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.June, 2, 10, 0, 0, 0, time.UTC)
	fields, err := setOnInsert(toOutboxDoc(persistence.OutboxMessage{
		ID:          "msg-1",
		Kind:        persistence.OutboxAudit,
		Payload:     []byte(`{"id":"a"}`),
		AvailableAt: at,
		CreatedAt:   at,
	}))
	require.NoError(t, err)

	assert.NotContains(t, fields, "_id")
	assert.Equal(t, string(persistence.OutboxPending), fields["status"])
	assert.Equal(t, "audit", fields["kind"])
	assert.NotContains(t, fields, "dispatched_at")
}

func TestDocumentsRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, time.June, 2, 9, 41, 0, 0, time.UTC)
	submitted := at.Add(time.Hour)

	t.Run("attendance normalizes the work date", func(t *testing.T) {
		row := persistence.Attendance{
			ID:         "att-1",
			EmployeeID: "emp-1",
			WorkDate:   at,
			Status:     persistence.AttendanceLate,
			CheckIn:    &at,
			Source:     persistence.SourceDevice,
			Justification: persistence.Justification{
				Reason: "Train delay", Status: persistence.JustificationPending, SubmittedAt: &submitted,
			},
			CreatedAt: at,
			UpdatedAt: at,
		}

		raw, err := bson.Marshal(toAttendanceDoc(row))
		require.NoError(t, err)
		var decoded attendanceDoc
		require.NoError(t, bson.Unmarshal(raw, &decoded))

		got := decoded.model()
		assert.True(t, got.WorkDate.Equal(time.Date(2025, time.June, 2, 0, 0, 0, 0, time.UTC)))
		assert.Equal(t, row.Justification.Reason, got.Justification.Reason)
		require.NotNil(t, got.CheckIn)
		assert.True(t, got.CheckIn.Equal(at))
		assert.Nil(t, got.CheckOut)
	})

	t.Run("notification reference survives", func(t *testing.T) {
		raw, err := bson.Marshal(toNotificationDoc(persistence.Notification{
			ID: "n1", RecipientID: "emp-1", Kind: persistence.NotifySystem,
			Reference: persistence.LeaveRef("leave-1"), CreatedAt: at,
		}))
		require.NoError(t, err)
		var decoded notificationDoc
		require.NoError(t, bson.Unmarshal(raw, &decoded))
		assert.Equal(t, &persistence.Reference{Kind: persistence.RefLeave, ID: "leave-1"}, decoded.model().Reference)

		raw, err = bson.Marshal(toAuditDoc(persistence.AuditEntry{ID: "a1", CreatedAt: at}))
		require.NoError(t, err)
		var audit auditDoc
		require.NoError(t, bson.Unmarshal(raw, &audit))
		assert.Nil(t, audit.model().Reference)
		assert.Nil(t, audit.model().Metadata)
	})

	t.Run("employee email key is lower case", func(t *testing.T) {
		doc := toEmployeeDoc(persistence.Employee{ID: "emp-1", Email: "Alice@Example.COM"})
		assert.Equal(t, "alice@example.com", doc.EmailKey)
		assert.Equal(t, "Alice@Example.COM", doc.model().Email)
	})
}

func TestOpenRequiresURI(t *testing.T) {
	t.Parallel()

	_, err := Open(context.Background(), Config{}, nil)
	assert.Error(t, err)
}

func TestIndexModelsCoverUniqueKeys(t *testing.T) {
	t.Parallel()

	unique := map[string][]string{}
	for collection, models := range indexModels() {
		for _, model := range models {
			if model.Options != nil && model.Options.Unique != nil && *model.Options.Unique {
				unique[collection] = append(unique[collection], *model.Options.Name)
			}
		}
	}
	assert.ElementsMatch(t, []string{"ux_employees_email", "ux_employees_device_user"}, unique[colEmployees])
	assert.Equal(t, []string{"ux_sessions_token"}, unique[colSessions])
	assert.Equal(t, []string{"ux_assets_code"}, unique[colAssets])
	assert.Equal(t, []string{"ux_attendance_day"}, unique[colAttendance])
}
