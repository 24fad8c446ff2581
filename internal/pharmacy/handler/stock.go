package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-service/internal/pharmacy/repository"
	"github.com/medflow/pharmacy-service/internal/pharmacy/service"
	"github.com/medflow/pharmacy-service/pkg/errors"
	"github.com/medflow/pharmacy-service/pkg/httputil"
	"github.com/medflow/pharmacy-service/pkg/logger"
	"github.com/medflow/pharmacy-service/pkg/messaging"
	"github.com/medflow/pharmacy-service/pkg/tenant"
)

// StockService is the stock ledger as seen by the HTTP layer
type StockService interface {
	CreatePurchase(ctx context.Context, scope tenant.Scope, input service.CreatePurchaseInput) (*service.PurchaseResult, error)
	GetPurchase(ctx context.Context, scope tenant.Scope, purchaseID string) (*service.PurchaseResult, error)
	CreatePurchaseReturn(ctx context.Context, scope tenant.Scope, purchaseID string, input service.CreatePurchaseReturnInput) (*service.PurchaseReturnResult, error)
	ListReturns(ctx context.Context, scope tenant.Scope, purchaseID string) ([]*repository.PurchaseReturn, error)
	ListBatches(ctx context.Context, scope tenant.Scope, medicationID string) ([]*repository.Batch, error)
	ListLedger(ctx context.Context, scope tenant.Scope, medicationID string, limit int) ([]*repository.LedgerEntry, error)
	Reconcile(ctx context.Context, scope tenant.Scope, medicationID string) (*service.Reconciliation, error)
}

// StockHandler handles purchase, return and stock query endpoints
type StockHandler struct {
	service StockService
	logger  *logger.Logger
}

// NewStockHandler creates a new stock handler
func NewStockHandler(svc StockService, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service: svc,
		logger:  log.WithComponent("stock_handler"),
	}
}

// Routes mounts the stock endpoints on r
func (h *StockHandler) Routes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) {
		r.Post("/", h.CreatePurchase)
		r.Get("/{id}", h.GetPurchase)
		r.Post("/{id}/returns", h.CreateReturn)
		r.Get("/{id}/returns", h.ListReturns)
	})

	r.Route("/medications/{id}", func(r chi.Router) {
		r.Get("/batches", h.ListBatches)
		r.Get("/ledger", h.ListLedger)
		r.Get("/reconciliation", h.Reconcile)
	})
}

// CreatePurchase records a vendor purchase
func (h *StockHandler) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var input service.CreatePurchaseInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}

	purchase, err := h.service.CreatePurchase(correlated(r), scope, input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.Created(w, purchase)
}

// GetPurchase gets a purchase with its returnable quantity
func (h *StockHandler) GetPurchase(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	purchase, err := h.service.GetPurchase(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, purchase)
}

// CreateReturn returns stock from a purchase to its vendor
func (h *StockHandler) CreateReturn(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	var input service.CreatePurchaseReturnInput
	if err := httputil.DecodeJSON(r, &input); err != nil {
		httputil.Error(w, err)
		return
	}

	ret, err := h.service.CreatePurchaseReturn(correlated(r), scope, chi.URLParam(r, "id"), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.Created(w, ret)
}

// ListReturns lists the returns of a purchase
func (h *StockHandler) ListReturns(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	returns, err := h.service.ListReturns(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, returns)
}

// ListBatches lists a medication's lots in FEFO order
func (h *StockHandler) ListBatches(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	batches, err := h.service.ListBatches(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, batches)
}

// ListLedger lists a medication's ledger entries, newest first
func (h *StockHandler) ListLedger(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			httputil.Error(w, errors.Validation(map[string]string{"limit": "must be a positive integer"}))
			return
		}
		limit = n
	}

	entries, err := h.service.ListLedger(r.Context(), scope, chi.URLParam(r, "id"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, entries)
}

// Reconcile compares aggregate stock with lot totals and the ledger balance
func (h *StockHandler) Reconcile(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.scope(w, r)
	if !ok {
		return
	}

	rec, err := h.service.Reconcile(r.Context(), scope, chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httputil.JSON(w, http.StatusOK, rec)
}

func (h *StockHandler) scope(w http.ResponseWriter, r *http.Request) (tenant.Scope, bool) {
	scope, err := tenant.FromContext(r.Context())
	if err != nil {
		httputil.Error(w, errors.Forbidden("missing hospital scope"))
		return tenant.Scope{}, false
	}
	return scope, true
}

// correlated tags stock events published by this request with its request ID
func correlated(r *http.Request) context.Context {
	return messaging.WithCorrelationID(r.Context(), httputil.GetRequestID(r.Context()))
}

// fail writes err and logs it once when it is not a rejected request
func (h *StockHandler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var appErr *errors.AppError
	if !errors.As(err, &appErr) || appErr.StatusCode >= http.StatusInternalServerError {
		h.logger.WithRequestID(httputil.GetRequestID(r.Context())).Error().
			Err(err).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Msg("stock request failed")
	}
	httputil.Error(w, err)
}
