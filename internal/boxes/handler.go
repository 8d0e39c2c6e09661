package boxes

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian-retail/internal/movement"
	"github.com/meridian-retail/meridian-retail/internal/platform/httpx"
)

type boxService interface {
	CreateBox(ctx context.Context, input CreateBoxInput) (Box, error)
	UpdateBox(ctx context.Context, loc movement.Location, boxNumber string, input UpdateBoxInput) (Box, error)
	DeleteBox(ctx context.Context, loc movement.Location, boxNumber string) error
	SmartCreateBoxes(ctx context.Context, input SmartCreateInput) (SmartCreateResult, error)
	AutoDistributeItems(ctx context.Context, loc movement.Location, itemID, quantity int64) (DistributeResult, error)
	RemoveItemsFromBoxes(ctx context.Context, loc movement.Location, itemID, quantity int64) (RemoveResult, error)
	GetBox(ctx context.Context, loc movement.Location, boxNumber string) (Box, error)
	ListBoxesByLocation(ctx context.Context, loc movement.Location) ([]Box, error)
	FindItemInBox(ctx context.Context, loc movement.Location, itemID int64) ([]Placement, error)
	GetItemDistribution(ctx context.Context, loc movement.Location, itemID int64) (Distribution, error)
}

// Handler wires HTTP endpoints for box placement.
type Handler struct {
	logger   *slog.Logger
	service  boxService
	validate *validator.Validate
}

// NewHandler constructs a box handler.
func NewHandler(logger *slog.Logger, service boxService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers box routes under a location scope.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/locations/{location}/boxes", func(r chi.Router) {
		r.Get("/", h.listBoxes)
		r.Post("/", h.createBox)
		r.Post("/smart-create", h.smartCreate)
		r.Post("/distribute", h.distribute)
		r.Post("/remove", h.remove)
		r.Get("/items/{itemID}", h.findItem)
		r.Get("/items/{itemID}/distribution", h.itemDistribution)
		r.Get("/{boxNumber}", h.showBox)
		r.Put("/{boxNumber}", h.updateBox)
		r.Delete("/{boxNumber}", h.deleteBox)
	})
}

func (h *Handler) listBoxes(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	list, err := h.service.ListBoxesByLocation(r.Context(), loc)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list)
}

func (h *Handler) createBox(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	var req createBoxRequest
	if !h.decode(w, r, &req) {
		return
	}
	box, err := h.service.CreateBox(r.Context(), req.toInput(loc))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, box)
}

func (h *Handler) smartCreate(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	var req smartCreateRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.SmartCreateBoxes(r.Context(), req.toInput(loc))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) distribute(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.AutoDistributeItems(r.Context(), loc, req.ItemID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	var req quantityRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.RemoveItemsFromBoxes(r.Context(), loc, req.ItemID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) showBox(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	box, err := h.service.GetBox(r.Context(), loc, chi.URLParam(r, "boxNumber"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, box)
}

func (h *Handler) updateBox(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	var req updateBoxRequest
	if !h.decode(w, r, &req) {
		return
	}
	box, err := h.service.UpdateBox(r.Context(), loc, chi.URLParam(r, "boxNumber"), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, box)
}

func (h *Handler) deleteBox(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteBox(r.Context(), loc, chi.URLParam(r, "boxNumber")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) findItem(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	placements, err := h.service.FindItemInBox(r.Context(), loc, itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, placements)
}

func (h *Handler) itemDistribution(w http.ResponseWriter, r *http.Request) {
	loc, ok := parseLocation(w, r)
	if !ok {
		return
	}
	itemID, ok := parseItemID(w, r)
	if !ok {
		return
	}
	dist, err := h.service.GetItemDistribution(r.Context(), loc, itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dist)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, target any) bool {
	if err := httpx.DecodeJSON(r, target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed request body")
		return false
	}
	if err := h.validate.Struct(target); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrBoxNotFound),
		errors.Is(err, movement.ErrItemNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateBox):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrBoxNotEmpty),
		errors.Is(err, ErrInvalidCapacity),
		errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidBoxCount),
		errors.Is(err, ErrNothingToBox),
		errors.Is(err, ErrUnknownStatus):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("box request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseLocation(w http.ResponseWriter, r *http.Request) (movement.Location, bool) {
	loc, err := movement.ParseLocation(strings.ToUpper(chi.URLParam(r, "location")))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "location must be WAREHOUSE, STORE or STORE2")
		return "", false
	}
	return loc, true
}

func parseItemID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil || itemID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be a positive integer")
		return 0, false
	}
	return itemID, true
}
