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

func ptr[T any](v T) *T { return &v }

func TestFeedbackService_AnonymousSubmissions(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := h.SeedEmployee(t, testfixtures.AsAdmin())
	author := h.SeedEmployee(t, testfixtures.WithDisplayName("Quiet Quinn"))

	created, err := h.Feedback.Create(ctx, testfixtures.PrincipalOf(author), application.FeedbackInput{
		Category:    persistence.FeedbackComplaint,
		Subject:     "Coffee machine",
		Message:     "It has been broken for a week.",
		IsAnonymous: true,
	})
	require.NoError(t, err)
	assert.Equal(t, author.ID, created.AuthorID, "authors still see their own submissions")
	assert.Equal(t, "Quiet Quinn", created.AuthorName)
	assert.Equal(t, persistence.FeedbackOpen, created.Status)

	listed, err := h.Feedback.List(ctx, testfixtures.PrincipalOf(admin), "")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Empty(t, listed[0].AuthorID)
	assert.Equal(t, "An anonymous colleague", listed[0].AuthorName)

	h.Drain(t)
	inbox := h.NotificationsFor(t, admin.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, persistence.NotifyFeedbackReceived, inbox[0].Kind)
	assert.Empty(t, inbox[0].SenderID)
	assert.Equal(t, "An anonymous colleague submitted complaint feedback: Coffee machine", inbox[0].Message)
}

func TestFeedbackService_Lifecycle(t *testing.T) {
	t.Parallel()

	h := testfixtures.NewHarness(t)
	ctx := context.Background()
	admin := testfixtures.PrincipalOf(h.SeedEmployee(t, testfixtures.AsAdmin()))
	authorEmployee := h.SeedEmployee(t, testfixtures.WithDisplayName("Open Olive"))
	author := testfixtures.PrincipalOf(authorEmployee)
	colleague := testfixtures.PrincipalOf(h.SeedEmployee(t))

	_, err := h.Feedback.Create(ctx, author, application.FeedbackInput{Category: "rant"})
	var vErr *application.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "Invalid feedback.", vErr.Message)
	assert.Len(t, vErr.FieldErrors, 3)

	item, err := h.Feedback.Create(ctx, author, application.FeedbackInput{Subject: "Standing desks", Message: "Please."})
	require.NoError(t, err)
	assert.Equal(t, persistence.FeedbackOther, item.Category)

	_, err = h.Feedback.List(ctx, author, "")
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = h.Feedback.Update(ctx, colleague, item.ID, application.FeedbackUpdate{Subject: ptr("Hijacked")})
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	_, err = h.Feedback.Update(ctx, admin, item.ID, application.FeedbackUpdate{Message: ptr("Edited by admin")})
	assert.ErrorIs(t, err, application.ErrUnauthorized, "admins respond, they do not rewrite")

	_, err = h.Feedback.Update(ctx, author, item.ID, application.FeedbackUpdate{Status: ptr(persistence.FeedbackClosed)})
	assert.ErrorIs(t, err, application.ErrUnauthorized)

	edited, err := h.Feedback.Update(ctx, author, item.ID, application.FeedbackUpdate{
		Category: ptr(persistence.FeedbackSuggestion),
		Message:  ptr("Please consider standing desks for the design team."),
	})
	require.NoError(t, err)
	assert.Equal(t, persistence.FeedbackSuggestion, edited.Category)
	assert.Equal(t, "Standing desks", edited.Subject)

	_, err = h.Feedback.Update(ctx, admin, item.ID, application.FeedbackUpdate{Status: ptr(persistence.FeedbackStatus("archived"))})
	assert.EqualError(t, err, "Status is invalid.")

	responded, err := h.Feedback.Update(ctx, admin, item.ID, application.FeedbackUpdate{
		Status:        ptr(persistence.FeedbackInReview),
		AdminResponse: ptr(" Budget review in July. "),
	})
	require.NoError(t, err)
	assert.Equal(t, persistence.FeedbackInReview, responded.Status)
	assert.Equal(t, "Budget review in July.", responded.AdminResponse)
	assert.Equal(t, admin.UserID, responded.RespondedBy)
	assert.Equal(t, "Open Olive", responded.AuthorName)

	_, err = h.Feedback.Update(ctx, author, item.ID, application.FeedbackUpdate{Subject: ptr("Too late")})
	assert.EqualError(t, err, "Feedback can only be edited while it is open.")
	assert.EqualError(t, h.Feedback.Delete(ctx, author, item.ID), "Feedback can only be deleted while it is open.")

	inReview, err := h.Feedback.List(ctx, admin, persistence.FeedbackInReview)
	require.NoError(t, err)
	assert.Len(t, inReview, 1)
	_, err = h.Feedback.List(ctx, admin, "archived")
	assert.EqualError(t, err, "Status is invalid.")

	mine, err := h.Feedback.Mine(ctx, author)
	require.NoError(t, err)
	require.Len(t, mine, 1)

	h.Drain(t)
	inbox := h.NotificationsFor(t, authorEmployee.ID)
	require.Len(t, inbox, 1)
	assert.Equal(t, `Your feedback "Standing desks" is now in review. Response: Budget review in July.`, inbox[0].Message)

	entries, err := h.Audit.List(ctx, admin, persistence.AuditFilter{Kind: persistence.RefFeedback})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "feedback.respond", entries[0].Action)

	require.NoError(t, h.Feedback.Delete(ctx, admin, item.ID))
	mine, err = h.Feedback.Mine(ctx, author)
	require.NoError(t, err)
	assert.Empty(t, mine)
}
