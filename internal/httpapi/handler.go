package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/safar/go-sql-marketplace/internal/models"
	"github.com/safar/go-sql-marketplace/internal/orders"
	"github.com/safar/go-sql-marketplace/internal/store"
	"github.com/sirupsen/logrus"
)

const maxRequestBodySize = 1 << 20

type OrderService interface {
	PlaceOrder(ctx context.Context, buyerID uuid.UUID, req models.CheckoutRequest) ([]models.Order, error)
	GetOrder(ctx context.Context, callerID, orderID uuid.UUID) (*models.Order, error)
	ListBuyerOrders(ctx context.Context, buyerID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error)
	ListBuyerOrdersCursor(ctx context.Context, buyerID uuid.UUID, cursor string, limit int) (*store.CursorPage[models.Order], error)
	ListSellerOrdersForUser(ctx context.Context, userID uuid.UUID, page, pageSize int) (*store.OffsetPage[models.Order], error)
	SellerOrderStats(ctx context.Context, userID uuid.UUID) (*models.OrderStats, error)
	TransitionOrderStatus(ctx context.Context, callerID, orderID uuid.UUID, req orders.TransitionRequest) (*models.Order, error)
	CancelOrder(ctx context.Context, buyerID, orderID uuid.UUID, reason string) (*models.Order, error)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

type Handler struct {
	svc      OrderService
	db       Pinger
	validate *validator.Validate
	log      *logrus.Logger
}

func NewHandler(svc OrderService, db Pinger, logger *logrus.Logger) *Handler {
	return &Handler{
		svc:      svc,
		db:       db,
		validate: validator.New(),
		log:      logger,
	}
}

type PlaceOrderResponse struct {
	Orders []models.Order `json:"orders"`
}

type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

type TransitionRequest struct {
	Status         models.OrderStatus `json:"status" validate:"required,oneof=pending processing shipped delivered cancelled"`
	TrackingNumber string             `json:"tracking_number" validate:"max=100"`
	Note           string             `json:"note" validate:"max=500"`
}

// GET /health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := h.db.PingContext(ctx); err != nil {
		h.log.WithError(err).Warn("Health check failed")
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// POST /api/v1/orders
func (h *Handler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req models.CheckoutRequest
	if !h.decode(w, r, &req) {
		return
	}

	placed, err := h.svc.PlaceOrder(r.Context(), userIDFromContext(r.Context()), req)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, PlaceOrderResponse{Orders: placed})
}

// GET /api/v1/orders
func (h *Handler) ListBuyerOrders(w http.ResponseWriter, r *http.Request) {
	buyerID := userIDFromContext(r.Context())
	q := r.URL.Query()

	if q.Has("cursor") || q.Has("limit") {
		limit, ok := intParam(w, q.Get("limit"), "limit")
		if !ok {
			return
		}
		page, err := h.svc.ListBuyerOrdersCursor(r.Context(), buyerID, q.Get("cursor"), limit)
		if err != nil {
			h.respondServiceError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, page)
		return
	}

	pageNum, pageSize, ok := pageParams(w, r)
	if !ok {
		return
	}
	page, err := h.svc.ListBuyerOrders(r.Context(), buyerID, pageNum, pageSize)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GET /api/v1/orders/{order_id}
func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.svc.GetOrder(r.Context(), userIDFromContext(r.Context()), orderID)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// POST /api/v1/orders/{order_id}/cancel
func (h *Handler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req CancelOrderRequest
	if r.ContentLength != 0 && !h.decodeValid(w, r, &req) {
		return
	}

	order, err := h.svc.CancelOrder(r.Context(), userIDFromContext(r.Context()), orderID, req.Reason)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// GET /api/v1/seller/orders
func (h *Handler) ListSellerOrders(w http.ResponseWriter, r *http.Request) {
	pageNum, pageSize, ok := pageParams(w, r)
	if !ok {
		return
	}

	page, err := h.svc.ListSellerOrdersForUser(r.Context(), userIDFromContext(r.Context()), pageNum, pageSize)
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

// GET /api/v1/seller/orders/stats
func (h *Handler) SellerOrderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.SellerOrderStats(r.Context(), userIDFromContext(r.Context()))
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

// PATCH /api/v1/seller/orders/{order_id}/status
func (h *Handler) TransitionOrderStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	var req TransitionRequest
	if !h.decodeValid(w, r, &req) {
		return
	}

	order, err := h.svc.TransitionOrderStatus(r.Context(), userIDFromContext(r.Context()), orderID, orders.TransitionRequest{
		Target:         req.Status,
		TrackingNumber: req.TrackingNumber,
		Note:           req.Note,
	})
	if err != nil {
		h.respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, order)
}

// decode reads a JSON body into dst. Checkout requests stop here: the
// service validates them with the full rule set.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_json", "request body is not valid JSON")
		return false
	}
	return true
}

func (h *Handler) decodeValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !h.decode(w, r, dst) {
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	orderID, err := uuid.Parse(chi.URLParam(r, "order_id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order_id must be a UUID")
		return uuid.Nil, false
	}
	return orderID, true
}

func pageParams(w http.ResponseWriter, r *http.Request) (int, int, bool) {
	q := r.URL.Query()
	page, ok := intParam(w, q.Get("page"), "page")
	if !ok {
		return 0, 0, false
	}
	pageSize, ok := intParam(w, q.Get("page_size"), "page_size")
	if !ok {
		return 0, 0, false
	}
	return page, pageSize, true
}

// intParam treats an absent value as 0, which the service replaces with
// its default.
func intParam(w http.ResponseWriter, raw, name string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		respondError(w, http.StatusBadRequest, "invalid_"+name, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
