package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type attendanceService interface {
	DeviceCheckIn(ctx context.Context, deviceID string, punches []application.DevicePunch) (application.DeviceCheckInResult, error)
	DeviceWatermark(ctx context.Context, deviceID string) (time.Time, error)
	MyAttendance(ctx context.Context, principal application.Principal, query application.AttendanceQuery) ([]persistence.Attendance, error)
	ListAttendance(ctx context.Context, principal application.Principal, query application.AttendanceQuery) ([]persistence.Attendance, error)
	MarkAttendance(ctx context.Context, principal application.Principal, input application.ManualAttendanceInput) (persistence.Attendance, error)
	SubmitJustification(ctx context.Context, principal application.Principal, attendanceID, reason string) (persistence.Attendance, error)
	ReviewJustification(ctx context.Context, principal application.Principal, attendanceID string, approve bool, note string) (persistence.Attendance, error)
	Stats(ctx context.Context, principal application.Principal, query application.AttendanceQuery) (application.AttendanceStats, error)
}

// AttendanceHandler serves attendance listings, justification and device sync.
type AttendanceHandler struct {
	service   attendanceService
	responder responder
	logger    *slog.Logger
}

func NewAttendanceHandler(service attendanceService, logger *slog.Logger) *AttendanceHandler {
	base := defaultLogger(logger)
	return &AttendanceHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AttendanceHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AttendanceHandler", operation, attrs...)
}

type devicePunchRequest struct {
	DeviceUserID string `json:"deviceUserId" validate:"required"`
	Timestamp    string `json:"timestamp" validate:"required"`
	Punch        *int   `json:"punch,omitempty"`
}

type deviceCheckInRequest struct {
	DeviceID string               `json:"deviceId" validate:"required"`
	Records  []devicePunchRequest `json:"records" validate:"max=5000,dive"`
}

type deviceCheckInDTO struct {
	Processed int    `json:"processed"`
	Skipped   int    `json:"skipped"`
	Unmatched int    `json:"unmatched"`
	Watermark string `json:"watermark,omitempty"`
}

type watermarkDTO struct {
	DeviceID  string `json:"deviceId"`
	Watermark string `json:"watermark,omitempty"`
}

type manualAttendanceRequest struct {
	EmployeeID string `json:"employeeId" validate:"required"`
	WorkDate   string `json:"workDate" validate:"required,datetime=2006-01-02"`
	Status     string `json:"status" validate:"required"`
	CheckIn    string `json:"checkIn"`
	CheckOut   string `json:"checkOut"`
	Remarks    string `json:"remarks" validate:"max=1000"`
}

type justificationRequest struct {
	Reason string `json:"reason" validate:"required,max=2000"`
}

type justificationReviewRequest struct {
	Approved *bool  `json:"approved" validate:"required"`
	Note     string `json:"note" validate:"max=2000"`
}

// DeviceCheckIn ingests a batch of terminal punches for the authenticated device.
func (h *AttendanceHandler) DeviceCheckIn(w http.ResponseWriter, r *http.Request) {
	var req deviceCheckInRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	deviceID := strings.TrimSpace(req.DeviceID)
	if tokenDevice, _ := DeviceIDFromContext(r.Context()); tokenDevice != deviceID {
		h.responder.writeError(r.Context(), w, http.StatusForbidden, errors.New("Device token does not match the submitted device id."))
		return
	}

	punches := make([]application.DevicePunch, 0, len(req.Records))
	for i, record := range req.Records {
		ts, err := time.Parse(time.RFC3339, strings.TrimSpace(record.Timestamp))
		if err != nil {
			h.responder.writeValidation(r.Context(), w, "Validation failed.", map[string]string{
				"records": "record " + strconv.Itoa(i) + " has an invalid timestamp",
			})
			return
		}
		punches = append(punches, application.DevicePunch{
			DeviceUserID: strings.TrimSpace(record.DeviceUserID),
			Timestamp:    ts,
		})
	}

	logger := h.log(r.Context(), "DeviceCheckIn", "device_id", deviceID, "records", len(punches))
	result, err := h.service.DeviceCheckIn(r.Context(), deviceID, punches)
	if err != nil {
		logger.ErrorContext(r.Context(), "device ingest failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "device punches accepted", "processed", result.Processed, "skipped", result.Skipped, "unmatched", result.Unmatched)
	h.responder.writeData(r.Context(), w, http.StatusOK, deviceCheckInDTO{
		Processed: result.Processed,
		Skipped:   result.Skipped,
		Unmatched: result.Unmatched,
		Watermark: formatTime(result.Watermark),
	}, "Device records processed.")
}

// DeviceWatermark returns the newest punch already ingested for a device.
func (h *AttendanceHandler) DeviceWatermark(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "deviceId")
	if tokenDevice, _ := DeviceIDFromContext(r.Context()); tokenDevice != deviceID {
		h.responder.writeError(r.Context(), w, http.StatusForbidden, errors.New("Device token does not match the requested device id."))
		return
	}

	watermark, err := h.service.DeviceWatermark(r.Context(), deviceID)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, watermarkDTO{DeviceID: deviceID, Watermark: formatTime(watermark)}, "")
}

func (h *AttendanceHandler) Mine(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query, err := attendanceQuery(r)
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	rows, err := h.service.MyAttendance(r.Context(), principal, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(rows, toAttendanceDTO), len(rows))
}

func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query, err := attendanceQuery(r)
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	rows, err := h.service.ListAttendance(r.Context(), principal, query)
	if err != nil {
		h.log(r.Context(), "List").WarnContext(r.Context(), "attendance list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(rows, toAttendanceDTO), len(rows))
}

func (h *AttendanceHandler) Mark(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req manualAttendanceRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	workDate, _ := time.Parse(application.DateLayout, req.WorkDate)
	checkIn, err := optionalTime("checkIn", req.CheckIn)
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	checkOut, err := optionalTime("checkOut", req.CheckOut)
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Mark", "employee_id", req.EmployeeID, "work_date", req.WorkDate)
	row, err := h.service.MarkAttendance(r.Context(), principal, application.ManualAttendanceInput{
		EmployeeID: strings.TrimSpace(req.EmployeeID),
		WorkDate:   workDate,
		Status:     persistence.AttendanceStatus(strings.TrimSpace(req.Status)),
		CheckIn:    checkIn,
		CheckOut:   checkOut,
		Remarks:    req.Remarks,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "manual attendance failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "attendance marked")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAttendanceDTO(row), "Attendance updated.")
}

func (h *AttendanceHandler) SubmitJustification(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	attendanceID := chi.URLParam(r, "id")

	var req justificationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "SubmitJustification", "attendance_id", attendanceID)
	row, err := h.service.SubmitJustification(r.Context(), principal, attendanceID, req.Reason)
	if err != nil {
		logger.WarnContext(r.Context(), "justification submission failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "justification submitted")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAttendanceDTO(row), "Justification submitted.")
}

func (h *AttendanceHandler) ReviewJustification(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	attendanceID := chi.URLParam(r, "id")

	var req justificationReviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "ReviewJustification", "attendance_id", attendanceID, "approved", *req.Approved)
	row, err := h.service.ReviewJustification(r.Context(), principal, attendanceID, *req.Approved, req.Note)
	if err != nil {
		logger.WarnContext(r.Context(), "justification review failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	message := "Justification rejected."
	if *req.Approved {
		message = "Justification approved."
	}
	logger.InfoContext(r.Context(), "justification reviewed")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAttendanceDTO(row), message)
}

type employeeAttendanceDTO struct {
	EmployeeID   string         `json:"employeeId"`
	EmployeeName string         `json:"employeeName"`
	Days         int            `json:"days"`
	ByStatus     map[string]int `json:"byStatus"`
}

type attendanceStatsDTO struct {
	From      *string                 `json:"from,omitempty"`
	To        *string                 `json:"to,omitempty"`
	Days      int                     `json:"days"`
	ByStatus  map[string]int          `json:"byStatus"`
	Employees []employeeAttendanceDTO `json:"employees"`
}

func statusCounts(in map[persistence.AttendanceStatus]int) map[string]int {
	out := make(map[string]int, len(in))
	for status, n := range in {
		out[string(status)] = n
	}
	return out
}

func (h *AttendanceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query, err := attendanceQuery(r)
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	stats, err := h.service.Stats(r.Context(), principal, query)
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, attendanceStatsDTO{
		From:     formatDatePtr(stats.From),
		To:       formatDatePtr(stats.To),
		Days:     stats.Days,
		ByStatus: statusCounts(stats.ByStatus),
		Employees: mapAll(stats.Employees, func(e application.EmployeeAttendance) employeeAttendanceDTO {
			return employeeAttendanceDTO{
				EmployeeID:   e.EmployeeID,
				EmployeeName: e.EmployeeName,
				Days:         e.Days,
				ByStatus:     statusCounts(e.ByStatus),
			}
		}),
	}, "")
}

func attendanceQuery(r *http.Request) (application.AttendanceQuery, error) {
	from, err := queryDate(r, "from")
	if err != nil {
		return application.AttendanceQuery{}, err
	}
	to, err := queryDate(r, "to")
	if err != nil {
		return application.AttendanceQuery{}, err
	}
	query := r.URL.Query()
	return application.AttendanceQuery{
		EmployeeID: strings.TrimSpace(query.Get("employeeId")),
		From:       from,
		To:         to,
		Status:     persistence.AttendanceStatus(strings.TrimSpace(query.Get("status"))),
	}, nil
}
