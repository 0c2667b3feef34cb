package http

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/example/orgdesk/internal/application"
	"github.com/example/orgdesk/internal/persistence"
)

type assetService interface {
	ListAssets(ctx context.Context, principal application.Principal, filter persistence.AssetFilter) ([]persistence.Asset, error)
	GetAsset(ctx context.Context, principal application.Principal, assetID string) (persistence.Asset, error)
	CreateAsset(ctx context.Context, principal application.Principal, input application.AssetInput) (persistence.Asset, error)
	UpdateAsset(ctx context.Context, principal application.Principal, assetID string, input application.AssetInput) (persistence.Asset, error)
	DeleteAsset(ctx context.Context, principal application.Principal, assetID string) error
	Assign(ctx context.Context, params application.AssignParams) (application.AssignmentResult, error)
	Return(ctx context.Context, params application.ReturnParams) (application.AssignmentResult, error)
	History(ctx context.Context, principal application.Principal, assetID string) ([]application.AssignmentDetail, error)
	EmployeeAssets(ctx context.Context, principal application.Principal, employeeID string) ([]application.AssignmentDetail, error)
	AssetStats(ctx context.Context, principal application.Principal) (application.AssetStats, error)
	DetailedAnalytics(ctx context.Context, principal application.Principal) (application.DetailedAnalytics, error)
}

// AssetHandler serves the inventory, assignment ledger and analytics endpoints.
type AssetHandler struct {
	service   assetService
	responder responder
	logger    *slog.Logger
}

func NewAssetHandler(service assetService, logger *slog.Logger) *AssetHandler {
	base := defaultLogger(logger)
	return &AssetHandler{service: service, responder: newResponder(base), logger: base}
}

func (h *AssetHandler) log(ctx context.Context, operation string, attrs ...any) *slog.Logger {
	return handlerLogger(ctx, h.logger, "AssetHandler", operation, attrs...)
}

type assetRequest struct {
	Name         string `json:"name" validate:"required,max=200"`
	Category     string `json:"category" validate:"required"`
	Condition    string `json:"condition" validate:"required"`
	Quantity     int    `json:"quantity"`
	SerialNumber string `json:"serialNumber" validate:"max=120"`
	Location     string `json:"location" validate:"max=200"`
	Description  string `json:"description" validate:"max=2000"`
	PurchaseDate string `json:"purchaseDate"`
	Status       string `json:"status"`
}

func (r assetRequest) toInput() (application.AssetInput, error) {
	purchased, err := optionalDate("purchaseDate", r.PurchaseDate)
	if err != nil {
		return application.AssetInput{}, err
	}
	return application.AssetInput{
		Name:         strings.TrimSpace(r.Name),
		Category:     persistence.AssetCategory(strings.TrimSpace(r.Category)),
		Condition:    persistence.AssetCondition(strings.TrimSpace(r.Condition)),
		Quantity:     r.Quantity,
		SerialNumber: r.SerialNumber,
		Location:     r.Location,
		Description:  r.Description,
		PurchaseDate: purchased,
		Status:       persistence.AssetStatus(strings.TrimSpace(r.Status)),
	}, nil
}

type assignRequest struct {
	AssetID               string `json:"assetId" validate:"required"`
	EmployeeID            string `json:"employeeId"`
	Room                  string `json:"room" validate:"max=120"`
	QuantityToAssign      *int   `json:"quantityToAssign"`
	ConditionAtAssignment string `json:"conditionAtAssignment"`
	Notes                 string `json:"notes" validate:"max=2000"`
}

type returnRequest struct {
	AssignmentID      string `json:"assignmentId" validate:"required"`
	ConditionAtReturn string `json:"conditionAtReturn" validate:"required"`
	ReturnNotes       string `json:"returnNotes" validate:"max=2000"`
	Status            string `json:"status"`
}

func (h *AssetHandler) List(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	query := r.URL.Query()
	filter := persistence.AssetFilter{
		Status:   persistence.AssetStatus(strings.TrimSpace(query.Get("status"))),
		Category: persistence.AssetCategory(strings.TrimSpace(query.Get("category"))),
		Search:   strings.TrimSpace(query.Get("q")),
	}
	assets, err := h.service.ListAssets(r.Context(), principal, filter)
	if err != nil {
		h.log(r.Context(), "List").ErrorContext(r.Context(), "asset list failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(assets, toAssetDTO), len(assets))
}

func (h *AssetHandler) Get(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	asset, err := h.service.GetAsset(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toAssetDTO(asset), "")
}

func (h *AssetHandler) Create(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req assetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Create")
	asset, err := h.service.CreateAsset(r.Context(), principal, input)
	if err != nil {
		logger.ErrorContext(r.Context(), "asset creation failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("asset_id", asset.ID, "asset_code", asset.Code).InfoContext(r.Context(), "asset created")
	h.responder.writeData(r.Context(), w, http.StatusCreated, toAssetDTO(asset), "Asset created.")
}

func (h *AssetHandler) Update(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	assetID := chi.URLParam(r, "id")

	var req assetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}
	input, err := req.toInput()
	if err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Update", "asset_id", assetID)
	asset, err := h.service.UpdateAsset(r.Context(), principal, assetID, input)
	if err != nil {
		logger.ErrorContext(r.Context(), "asset update failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "asset updated")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAssetDTO(asset), "Asset updated.")
}

func (h *AssetHandler) Delete(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	assetID := chi.URLParam(r, "id")

	logger := h.log(r.Context(), "Delete", "asset_id", assetID)
	if err := h.service.DeleteAsset(r.Context(), principal, assetID); err != nil {
		logger.ErrorContext(r.Context(), "asset delete failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "asset deactivated")
	h.responder.writeMessage(r.Context(), w, http.StatusOK, "Asset deleted.")
}

func (h *AssetHandler) Assign(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req assignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Assign", "asset_id", req.AssetID)
	result, err := h.service.Assign(r.Context(), application.AssignParams{
		Principal:  principal,
		AssetID:    strings.TrimSpace(req.AssetID),
		EmployeeID: req.EmployeeID,
		Room:       req.Room,
		Quantity:   req.QuantityToAssign,
		Condition:  persistence.AssetCondition(strings.TrimSpace(req.ConditionAtAssignment)),
		Notes:      req.Notes,
	})
	if err != nil {
		logger.WarnContext(r.Context(), "asset assignment failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.With("assignment_id", result.Assignment.ID).InfoContext(r.Context(), "asset assigned")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAssignmentResultDTO(result), result.Message)
}

func (h *AssetHandler) Return(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())

	var req returnRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.responder.writeRequestError(w, r, err)
		return
	}

	logger := h.log(r.Context(), "Return", "assignment_id", req.AssignmentID)
	result, err := h.service.Return(r.Context(), application.ReturnParams{
		Principal:    principal,
		AssignmentID: strings.TrimSpace(req.AssignmentID),
		Condition:    persistence.AssetCondition(strings.TrimSpace(req.ConditionAtReturn)),
		Notes:        req.ReturnNotes,
		Status:       persistence.AssignmentStatus(strings.TrimSpace(req.Status)),
	})
	if err != nil {
		logger.WarnContext(r.Context(), "asset return failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}

	logger.InfoContext(r.Context(), "asset returned")
	h.responder.writeData(r.Context(), w, http.StatusOK, toAssignmentResultDTO(result), result.Message)
}

func (h *AssetHandler) History(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	history, err := h.service.History(r.Context(), principal, chi.URLParam(r, "id"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(history, toAssignmentDTO), len(history))
}

func (h *AssetHandler) EmployeeAssets(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	holdings, err := h.service.EmployeeAssets(r.Context(), principal, chi.URLParam(r, "employeeId"))
	if err != nil {
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeList(r.Context(), w, mapAll(holdings, toAssignmentDTO), len(holdings))
}

func (h *AssetHandler) Stats(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	stats, err := h.service.AssetStats(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "Stats").ErrorContext(r.Context(), "asset stats failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toAssetStatsDTO(stats), "")
}

func (h *AssetHandler) DetailedAnalytics(w http.ResponseWriter, r *http.Request) {
	principal, _ := PrincipalFromContext(r.Context())
	report, err := h.service.DetailedAnalytics(r.Context(), principal)
	if err != nil {
		h.log(r.Context(), "DetailedAnalytics").ErrorContext(r.Context(), "asset analytics failed", "error", err, "error_kind", application.ErrorKind(err))
		h.responder.handleServiceError(r.Context(), w, err)
		return
	}
	h.responder.writeData(r.Context(), w, http.StatusOK, toDetailedAnalyticsDTO(report), "")
}

type categoryStatDTO struct {
	Category           string  `json:"category"`
	Assets             int     `json:"assets"`
	Units              int     `json:"units"`
	AssignedUnits      int     `json:"assignedUnits"`
	UtilizationPercent float64 `json:"utilizationPercent"`
}

type assetStatsDTO struct {
	TotalAssets    int               `json:"totalAssets"`
	TotalUnits     int               `json:"totalUnits"`
	AssignedUnits  int               `json:"assignedUnits"`
	AvailableUnits int               `json:"availableUnits"`
	ByStatus       map[string]int    `json:"byStatus"`
	ByCategory     []categoryStatDTO `json:"byCategory"`
}

func toAssetStatsDTO(stats application.AssetStats) assetStatsDTO {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, n := range stats.ByStatus {
		byStatus[string(status)] = n
	}
	return assetStatsDTO{
		TotalAssets:    stats.TotalAssets,
		TotalUnits:     stats.TotalUnits,
		AssignedUnits:  stats.AssignedUnits,
		AvailableUnits: stats.AvailableUnits,
		ByStatus:       byStatus,
		ByCategory: mapAll(stats.ByCategory, func(c application.CategoryStat) categoryStatDTO {
			return categoryStatDTO{
				Category:           string(c.Category),
				Assets:             c.Assets,
				Units:              c.Units,
				AssignedUnits:      c.AssignedUnits,
				UtilizationPercent: math.Round(c.UtilizationPercent()*10) / 10,
			}
		}),
	}
}

type heldAssetDTO struct {
	AssignmentID string `json:"assignmentId"`
	AssetID      string `json:"assetId"`
	AssetCode    string `json:"assetCode"`
	AssetName    string `json:"assetName"`
	Quantity     int    `json:"quantity"`
}

func toHeldAssetDTO(a application.HeldAsset) heldAssetDTO {
	return heldAssetDTO{
		AssignmentID: a.AssignmentID,
		AssetID:      a.AssetID,
		AssetCode:    a.AssetCode,
		AssetName:    a.AssetName,
		Quantity:     a.Quantity,
	}
}

type holderDTO struct {
	EmployeeID   string         `json:"employeeId"`
	EmployeeName string         `json:"employeeName"`
	Department   string         `json:"department,omitempty"`
	Units        int            `json:"units"`
	Assets       []heldAssetDTO `json:"assets"`
}

type roomHoldingDTO struct {
	Room   string         `json:"room"`
	Units  int            `json:"units"`
	Assets []heldAssetDTO `json:"assets"`
}

type detailedAnalyticsDTO struct {
	Summary           assetStatsDTO    `json:"summary"`
	ByCondition       map[string]int   `json:"byCondition"`
	Holders           []holderDTO      `json:"holders"`
	Rooms             []roomHoldingDTO `json:"rooms"`
	ActiveAssignments int              `json:"activeAssignments"`
	RecentAssignments []assignmentDTO  `json:"recentAssignments"`
}

func toDetailedAnalyticsDTO(report application.DetailedAnalytics) detailedAnalyticsDTO {
	byCondition := make(map[string]int, len(report.ByCondition))
	for condition, n := range report.ByCondition {
		byCondition[string(condition)] = n
	}
	return detailedAnalyticsDTO{
		Summary:     toAssetStatsDTO(report.Summary),
		ByCondition: byCondition,
		Holders: mapAll(report.Holders, func(h application.HolderSummary) holderDTO {
			return holderDTO{
				EmployeeID:   h.EmployeeID,
				EmployeeName: h.EmployeeName,
				Department:   h.Department,
				Units:        h.Units,
				Assets:       mapAll(h.Assets, toHeldAssetDTO),
			}
		}),
		Rooms: mapAll(report.Rooms, func(r application.RoomHolding) roomHoldingDTO {
			return roomHoldingDTO{Room: r.Room, Units: r.Units, Assets: mapAll(r.Assets, toHeldAssetDTO)}
		}),
		ActiveAssignments: report.ActiveAssignments,
		RecentAssignments: mapAll(report.RecentAssignments, toAssignmentDTO),
	}
}
