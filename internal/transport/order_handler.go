package transport

import (
	"errors"
	"net/http"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/middleware"
	"stockroom/internal/repository"
	"stockroom/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CreateOrderRequest represents the order placement payload
type CreateOrderRequest struct {
	CustomerDocument string             `json:"customer_document" validate:"required,max=50"`
	SellerName       string             `json:"seller_name" validate:"required,max=255"`
	Items            []OrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// OrderItemRequest is one requested order line
type OrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
}

// OrderResponse represents a committed order
type OrderResponse struct {
	ID               string              `json:"id"`
	CustomerDocument string              `json:"customer_document"`
	SellerName       string              `json:"seller_name"`
	CreatedAt        time.Time           `json:"created_at"`
	Items            []OrderItemResponse `json:"items"`
}

// OrderItemResponse is one committed order line with its captured price
type OrderItemResponse struct {
	ID        string  `json:"id"`
	ProductID string  `json:"product_id"`
	Quantity  int     `json:"quantity"`
	UnitPrice float64 `json:"unit_price"`
}

// OrderHandler handles HTTP requests for order placement and lookup
type OrderHandler struct {
	orderService service.OrderService
	logger       *zap.Logger
}

// NewOrderHandler creates a new OrderHandler
func NewOrderHandler(orderService service.OrderService, logger *zap.Logger) *OrderHandler {
	return &OrderHandler{
		orderService: orderService,
		logger:       logger,
	}
}

// RegisterRoutes registers order routes, restricted to sellers and admins
func (h *OrderHandler) RegisterRoutes(r chi.Router, authMiddleware, sellerOrAdmin func(http.Handler) http.Handler) {
	r.Route("/orders", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(sellerOrAdmin)

		r.Post("/", h.Create)
		r.Get("/{id}", h.GetByID)
	})
}

// Create handles order placement
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	lines := make([]service.OrderLine, 0, len(req.Items))
	for _, item := range req.Items {
		productID, err := uuid.Parse(item.ProductID)
		if err != nil {
			middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
			return
		}
		lines = append(lines, service.OrderLine{
			ProductID: productID,
			Quantity:  item.Quantity,
		})
	}

	order, err := h.orderService.Place(r.Context(), req.CustomerDocument, req.SellerName, lines)
	if err != nil {
		h.respondPlacementError(w, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, toOrderResponse(order))
}

// GetByID handles order lookup
func (h *OrderHandler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid order ID")
		return
	}

	order, err := h.orderService.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOrderNotFound) {
			middleware.RespondWithError(w, http.StatusNotFound, "order not found")
			return
		}
		h.logger.Error("Order lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to get order")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, toOrderResponse(order))
}

// respondPlacementError maps the placement failure taxonomy to HTTP
// status codes. Client-input failures come back as 400 with an
// actionable message; exhausted commit retries come back as 503.
func (h *OrderHandler) respondPlacementError(w http.ResponseWriter, err error) {
	var insufficientStock *service.InsufficientStockError

	switch {
	case errors.Is(err, service.ErrNoItems):
		middleware.RespondWithError(w, http.StatusBadRequest, "order must contain at least one item")
	case errors.Is(err, service.ErrInvalidQuantity):
		middleware.RespondWithError(w, http.StatusBadRequest, "all quantities must be greater than zero")
	case errors.Is(err, service.ErrProductsNotFound):
		middleware.RespondWithError(w, http.StatusBadRequest, "some product(s) not found")
	case errors.As(err, &insufficientStock):
		middleware.RespondWithError(w, http.StatusBadRequest, insufficientStock.Error())
	case errors.Is(err, service.ErrInsufficientStock):
		middleware.RespondWithError(w, http.StatusBadRequest, "insufficient stock")
	case errors.Is(err, service.ErrPlacementConflict):
		middleware.RespondWithError(w, http.StatusServiceUnavailable, "order placement conflicted with concurrent updates, please retry")
	default:
		h.logger.Error("Order placement failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to place order")
	}
}

func toOrderResponse(order *domain.Order) OrderResponse {
	items := make([]OrderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemResponse{
			ID:        item.ID.String(),
			ProductID: item.ProductID.String(),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return OrderResponse{
		ID:               order.ID.String(),
		CustomerDocument: order.CustomerDocument,
		SellerName:       order.SellerName,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}
