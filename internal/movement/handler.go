package movement

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-retail/meridian-retail/internal/platform/httpx"
	"github.com/meridian-retail/meridian-retail/internal/shared"
)

type movementService interface {
	RecordPurchase(ctx context.Context, input PurchaseInput) (Purchase, error)
	UpdatePurchase(ctx context.Context, id int64, input PurchaseInput) (Purchase, error)
	DeletePurchase(ctx context.Context, id int64) error
	RecordSale(ctx context.Context, input SaleInput) (Sale, error)
	RecordReturn(ctx context.Context, input ReturnInput) (Return, error)
	RecordTransfer(ctx context.Context, input TransferInput) (Transfer, error)
	UpdateTransfer(ctx context.Context, id int64, input TransferInput) (Transfer, error)
	DeleteTransfer(ctx context.Context, id int64) error
	GetStockLevels(ctx context.Context, itemID int64) ([]StockLevel, error)
	GetPurchase(ctx context.Context, id int64) (Purchase, error)
	GetTransfer(ctx context.Context, id int64) (Transfer, error)
	ListPurchases(ctx context.Context, limit, offset int) ([]Purchase, int, error)
	ListSales(ctx context.Context, store Location, limit, offset int) ([]Sale, int, error)
	ListReturns(ctx context.Context, store Location, limit, offset int) ([]Return, int, error)
	ListTransfers(ctx context.Context, limit, offset int) ([]Transfer, int, error)
}

// Handler wires HTTP endpoints for the movement engine.
type Handler struct {
	logger   *slog.Logger
	service  movementService
	validate *validator.Validate
}

// NewHandler constructs a movement handler.
func NewHandler(logger *slog.Logger, service movementService) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// MountRoutes registers movement routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Post("/", h.createPurchase)
		r.Get("/", h.listPurchases)
		r.Get("/{id}", h.showPurchase)
		r.Put("/{id}", h.updatePurchase)
		r.Delete("/{id}", h.deletePurchase)
	})
	r.Route("/stores/{store}", func(r chi.Router) {
		r.Post("/sales", h.createSale)
		r.Get("/sales", h.listSales)
		r.Post("/returns", h.createReturn)
		r.Get("/returns", h.listReturns)
	})
	r.Route("/transfers", func(r chi.Router) {
		r.Post("/", h.createTransfer)
		r.Get("/", h.listTransfers)
		r.Get("/{id}", h.showTransfer)
		r.Put("/{id}", h.updateTransfer)
		r.Delete("/{id}", h.deleteTransfer)
	})
	r.Get("/stock/{itemID}", h.showStock)
}

func (h *Handler) createPurchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	purchase, err := h.service.RecordPurchase(r.Context(), req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, purchase)
}

func (h *Handler) listPurchases(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	purchases, total, err := h.service.ListPurchases(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Purchase]{
		Data:       purchases,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) showPurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	purchase, err := h.service.GetPurchase(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) updatePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	var req purchaseRequest
	if !h.decode(w, r, &req) {
		return
	}
	purchase, err := h.service.UpdatePurchase(r.Context(), id, req.toInput())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, purchase)
}

func (h *Handler) deletePurchase(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeletePurchase(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) createSale(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStore(w, r)
	if !ok {
		return
	}
	var req saleRequest
	if !h.decode(w, r, &req) {
		return
	}
	sale, err := h.service.RecordSale(r.Context(), req.toInput(store))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

func (h *Handler) listSales(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStore(w, r)
	if !ok {
		return
	}
	page := parsePage(r)
	sales, total, err := h.service.ListSales(r.Context(), store, page.PerPage, page.Offset())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Sale]{
		Data:       sales,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) createReturn(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStore(w, r)
	if !ok {
		return
	}
	var req returnRequest
	if !h.decode(w, r, &req) {
		return
	}
	ret, err := h.service.RecordReturn(r.Context(), req.toInput(store))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, ret)
}

func (h *Handler) listReturns(w http.ResponseWriter, r *http.Request) {
	store, ok := parseStore(w, r)
	if !ok {
		return
	}
	page := parsePage(r)
	returns, total, err := h.service.ListReturns(r.Context(), store, page.PerPage, page.Offset())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Return]{
		Data:       returns,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	req, from, to, ok := h.decodeTransfer(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.RecordTransfer(r.Context(), req.toInput(from, to))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	page := parsePage(r)
	transfers, total, err := h.service.ListTransfers(r.Context(), page.PerPage, page.Offset())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse[Transfer]{
		Data:       transfers,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) showTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) updateTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	req, from, to, ok := h.decodeTransfer(w, r)
	if !ok {
		return
	}
	transfer, err := h.service.UpdateTransfer(r.Context(), id, req.toInput(from, to))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) deleteTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteTransfer(r.Context(), id); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) showStock(w http.ResponseWriter, r *http.Request) {
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "item id must be numeric")
		return
	}
	levels, err := h.service.GetStockLevels(r.Context(), itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	var onHand int64
	for _, level := range levels {
		onHand += level.Quantity
	}
	httpx.JSON(w, http.StatusOK, stockResponse{ItemID: itemID, OnHand: onHand, Levels: levels})
}

type listResponse[T any] struct {
	Data       []T               `json:"data"`
	Pagination shared.Pagination `json:"pagination"`
}

type stockResponse struct {
	ItemID int64        `json:"item_id"`
	OnHand int64        `json:"on_hand"`
	Levels []StockLevel `json:"levels"`
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

func (h *Handler) decodeTransfer(w http.ResponseWriter, r *http.Request) (transferRequest, Location, Location, bool) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return req, "", "", false
	}
	from, err := ParseLocation(strings.ToUpper(req.From))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, "", "", false
	}
	to, err := ParseLocation(strings.ToUpper(req.To))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, "", "", false
	}
	return req, from, to, true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, ErrItemNotFound),
		errors.Is(err, ErrCustomerNotFound),
		errors.Is(err, ErrPurchaseNotFound),
		errors.Is(err, ErrTransferNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicateInvoice):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient Stock", err.Error())
	case errors.Is(err, ErrInvalidQuantity),
		errors.Is(err, ErrInvalidUnitPrice),
		errors.Is(err, ErrNoLines),
		errors.Is(err, ErrSameLocation),
		errors.Is(err, ErrUnknownLocation),
		errors.Is(err, ErrStoreRequired),
		errors.Is(err, ErrInvoiceRequired):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("movement request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseStore(w http.ResponseWriter, r *http.Request) (Location, bool) {
	loc, err := ParseLocation(strings.ToUpper(chi.URLParam(r, "store")))
	if err != nil || !loc.IsStore() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "store must be STORE or STORE2")
		return "", false
	}
	return loc, true
}

func parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "id must be a positive integer")
		return 0, false
	}
	return id, true
}

func parsePage(r *http.Request) shared.Pagination {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	return shared.NewPagination(page, perPage, 0)
}
