package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/example/orgdesk/internal/persistence"
)

const anonymousAuthor = "An anonymous colleague"

// FeedbackView is a feedback record as shown to the caller. Anonymous
// submissions hide the author from everyone but the author.
type FeedbackView struct {
	persistence.Feedback
	AuthorName string
}

// FeedbackService handles employee feedback and the administrative response to it.
type FeedbackService struct {
	feedback    persistence.FeedbackRepository
	employees   persistence.EmployeeRepository
	effects     sideEffects
	idGenerator func() string
	now         func() time.Time
	logger      *slog.Logger
}

// NewFeedbackService constructs a feedback service.
func NewFeedbackService(feedback persistence.FeedbackRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time) *FeedbackService {
	return NewFeedbackServiceWithLogger(feedback, employees, outbox, idGenerator, now, nil)
}

// NewFeedbackServiceWithLogger constructs a feedback service with a specified logger.
func NewFeedbackServiceWithLogger(feedback persistence.FeedbackRepository, employees persistence.EmployeeRepository, outbox persistence.OutboxRepository, idGenerator func() string, now func() time.Time, logger *slog.Logger) *FeedbackService {
	if idGenerator == nil {
		idGenerator = func() string { return "" }
	}
	if now == nil {
		now = time.Now
	}
	return &FeedbackService{
		feedback:    feedback,
		employees:   employees,
		effects:     newSideEffects(outbox, idGenerator, now),
		idGenerator: idGenerator,
		now:         now,
		logger:      defaultLogger(logger),
	}
}

func (s *FeedbackService) loggerWith(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return serviceLogger(ctx, s.logger, "FeedbackService", operation, attrs...)
}

// Create records a submission and notifies administrators.
func (s *FeedbackService) Create(ctx context.Context, principal Principal, input FeedbackInput) (view FeedbackView, err error) {
	if s == nil {
		err = fmt.Errorf("FeedbackService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Create", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to create feedback", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.With("feedback_id", view.ID).InfoContext(ctx, "feedback created")
	}()

	input.Subject = strings.TrimSpace(input.Subject)
	input.Message = strings.TrimSpace(input.Message)
	if input.Category == "" {
		input.Category = persistence.FeedbackOther
	}
	vErr := &ValidationError{}
	if !input.Category.Valid() {
		vErr.add("category", "category is invalid")
	}
	if input.Subject == "" {
		vErr.add("subject", "subject is required")
	}
	if input.Message == "" {
		vErr.add("message", "message is required")
	}
	if vErr.HasErrors() {
		vErr.Message = "Invalid feedback."
		err = vErr
		return
	}

	now := s.now()
	item := persistence.Feedback{
		ID:          s.idGenerator(),
		AuthorID:    principal.UserID,
		Category:    input.Category,
		Subject:     input.Subject,
		Message:     input.Message,
		IsAnonymous: input.IsAnonymous,
		Status:      persistence.FeedbackOpen,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err = s.feedback.CreateFeedback(ctx, item); err != nil {
		err = mapRepoError("Feedback", err)
		return
	}

	author := anonymousAuthor
	if !item.IsAnonymous {
		author = lookupEmployeeNames(ctx, s.employees, principal.UserID)[principal.UserID]
	}
	sender := principal.UserID
	if item.IsAnonymous {
		sender = ""
	}
	messages := s.effects.notify(NotificationIntent{
		SenderID:     sender,
		RecipientIDs: s.adminIDs(ctx, logger),
		Kind:         persistence.NotifyFeedbackReceived,
		Title:        "New feedback received",
		Message:      fmt.Sprintf("%s submitted %s feedback: %s", author, item.Category, item.Subject),
		Reference:    persistence.FeedbackRef(item.ID),
	})
	s.effects.enqueue(ctx, logger, messages...)

	view = s.present(ctx, principal, item)
	return
}

// Mine lists the principal's own submissions.
func (s *FeedbackService) Mine(ctx context.Context, principal Principal) ([]FeedbackView, error) {
	if s == nil {
		return nil, fmt.Errorf("FeedbackService is nil")
	}
	items, err := s.feedback.ListFeedback(ctx, persistence.FeedbackFilter{AuthorID: principal.UserID})
	if err != nil {
		return nil, err
	}
	return s.presentAll(ctx, principal, items), nil
}

// List returns every submission for administrators.
func (s *FeedbackService) List(ctx context.Context, principal Principal, status persistence.FeedbackStatus) (views []FeedbackView, err error) {
	if s == nil {
		err = fmt.Errorf("FeedbackService is nil")
		return
	}

	logger := s.loggerWith(ctx, "List", "principal_id", principal.UserID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to list feedback", "error", err, "error_kind", ErrorKind(err))
		}
	}()

	if !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}
	if status != "" && !status.Valid() {
		err = invalid("Status is invalid.")
		return
	}
	var items []persistence.Feedback
	items, err = s.feedback.ListFeedback(ctx, persistence.FeedbackFilter{Status: status})
	if err != nil {
		return
	}
	views = s.presentAll(ctx, principal, items)
	return
}

// Update lets the author edit an open submission and lets administrators
// set status and response. The author is notified of administrative changes.
func (s *FeedbackService) Update(ctx context.Context, principal Principal, feedbackID string, update FeedbackUpdate) (view FeedbackView, err error) {
	if s == nil {
		err = fmt.Errorf("FeedbackService is nil")
		return
	}

	logger := s.loggerWith(ctx, "Update", "principal_id", principal.UserID, "feedback_id", feedbackID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to update feedback", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "feedback updated")
	}()

	var item persistence.Feedback
	item, err = s.feedback.GetFeedback(ctx, feedbackID)
	if err != nil {
		err = mapRepoError("Feedback", err)
		return
	}

	isAuthor := item.AuthorID == principal.UserID
	if !isAuthor && !principal.IsAdmin() {
		err = ErrUnauthorized
		return
	}

	editsContent := update.Category != nil || update.Subject != nil || update.Message != nil
	administers := update.Status != nil || update.AdminResponse != nil

	if editsContent {
		if !isAuthor {
			err = ErrUnauthorized
			return
		}
		if item.Status != persistence.FeedbackOpen {
			err = invalid("Feedback can only be edited while it is open.")
			return
		}
		vErr := &ValidationError{}
		if update.Category != nil {
			if !update.Category.Valid() {
				vErr.add("category", "category is invalid")
			}
			item.Category = *update.Category
		}
		if update.Subject != nil {
			if item.Subject = strings.TrimSpace(*update.Subject); item.Subject == "" {
				vErr.add("subject", "subject is required")
			}
		}
		if update.Message != nil {
			if item.Message = strings.TrimSpace(*update.Message); item.Message == "" {
				vErr.add("message", "message is required")
			}
		}
		if vErr.HasErrors() {
			vErr.Message = "Invalid feedback."
			err = vErr
			return
		}
	}

	now := s.now()
	if administers {
		if !principal.IsAdmin() {
			err = ErrUnauthorized
			return
		}
		if update.Status != nil {
			if !update.Status.Valid() {
				err = invalid("Status is invalid.")
				return
			}
			item.Status = *update.Status
		}
		if update.AdminResponse != nil {
			item.AdminResponse = strings.TrimSpace(*update.AdminResponse)
		}
		item.RespondedBy = principal.UserID
		item.RespondedAt = &now
	}

	item.UpdatedAt = now
	if err = s.feedback.UpdateFeedback(ctx, item); err != nil {
		err = mapRepoError("Feedback", err)
		return
	}

	if administers {
		message := fmt.Sprintf("Your feedback %q is now %s.", item.Subject, strings.ReplaceAll(string(item.Status), "_", " "))
		if item.AdminResponse != "" {
			message += " Response: " + item.AdminResponse
		}
		messages := s.effects.notify(NotificationIntent{
			SenderID:     principal.UserID,
			RecipientIDs: []string{item.AuthorID},
			Kind:         persistence.NotifyFeedbackUpdated,
			Title:        "Feedback updated",
			Message:      message,
			Reference:    persistence.FeedbackRef(item.ID),
		})
		messages = append(messages, s.effects.audit(AuditIntent{
			ActorID:   principal.UserID,
			Action:    "feedback.respond",
			Reference: persistence.FeedbackRef(item.ID),
			Summary:   fmt.Sprintf("Set feedback status to %s.", item.Status),
		}))
		s.effects.enqueue(ctx, logger, messages...)
	}

	view = s.present(ctx, principal, item)
	return
}

// Delete removes a submission: the author while it is open, or an administrator.
func (s *FeedbackService) Delete(ctx context.Context, principal Principal, feedbackID string) (err error) {
	if s == nil {
		return fmt.Errorf("FeedbackService is nil")
	}

	logger := s.loggerWith(ctx, "Delete", "principal_id", principal.UserID, "feedback_id", feedbackID)
	defer func() {
		if err != nil {
			logger.ErrorContext(ctx, "failed to delete feedback", "error", err, "error_kind", ErrorKind(err))
			return
		}
		logger.InfoContext(ctx, "feedback deleted")
	}()

	item, err := s.feedback.GetFeedback(ctx, feedbackID)
	if err != nil {
		return mapRepoError("Feedback", err)
	}
	switch {
	case principal.IsAdmin():
	case item.AuthorID != principal.UserID:
		return ErrUnauthorized
	case item.Status != persistence.FeedbackOpen:
		return invalid("Feedback can only be deleted while it is open.")
	}
	return mapRepoError("Feedback", s.feedback.DeleteFeedback(ctx, feedbackID))
}

func (s *FeedbackService) adminIDs(ctx context.Context, logger *slog.Logger) []string {
	admins, err := s.employees.ListEmployees(ctx, persistence.EmployeeFilter{
		Roles:      []persistence.Role{persistence.RoleAdmin},
		ActiveOnly: true,
	})
	if err != nil {
		logger.WarnContext(ctx, "failed to resolve administrators", "error", err)
		return nil
	}
	ids := make([]string, 0, len(admins))
	for _, admin := range admins {
		ids = append(ids, admin.ID)
	}
	return ids
}

func (s *FeedbackService) presentAll(ctx context.Context, principal Principal, items []persistence.Feedback) []FeedbackView {
	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.AuthorID)
	}
	names := lookupEmployeeNames(ctx, s.employees, ids...)
	views := make([]FeedbackView, 0, len(items))
	for _, item := range items {
		views = append(views, maskFeedback(principal, item, names[item.AuthorID]))
	}
	return views
}

func (s *FeedbackService) present(ctx context.Context, principal Principal, item persistence.Feedback) FeedbackView {
	return maskFeedback(principal, item, lookupEmployeeNames(ctx, s.employees, item.AuthorID)[item.AuthorID])
}

func maskFeedback(principal Principal, item persistence.Feedback, authorName string) FeedbackView {
	if item.IsAnonymous && item.AuthorID != principal.UserID {
		item.AuthorID = ""
		authorName = anonymousAuthor
	}
	return FeedbackView{Feedback: item, AuthorName: authorName}
}
