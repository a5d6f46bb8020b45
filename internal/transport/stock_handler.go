package transport

import (
	"errors"
	"net/http"
	"time"

	"stockroom/internal/middleware"
	"stockroom/internal/repository"
	"stockroom/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StockEntryRequest represents the stock receipt payload
type StockEntryRequest struct {
	ProductID     string `json:"product_id" validate:"required,uuid"`
	Quantity      int    `json:"quantity" validate:"required,gt=0"`
	InvoiceNumber string `json:"invoice_number" validate:"required,max=100"`
}

// StockEntryResponse represents a persisted stock receipt
type StockEntryResponse struct {
	ID            string    `json:"id"`
	ProductID     string    `json:"product_id"`
	Quantity      int       `json:"quantity"`
	InvoiceNumber string    `json:"invoice_number"`
	Stock         int       `json:"stock"`
	CreatedAt     time.Time `json:"created_at"`
}

// StockHandler handles HTTP requests for stock receiving
type StockHandler struct {
	stockService service.StockService
	logger       *zap.Logger
}

// NewStockHandler creates a new StockHandler
func NewStockHandler(stockService service.StockService, logger *zap.Logger) *StockHandler {
	return &StockHandler{
		stockService: stockService,
		logger:       logger,
	}
}

// RegisterRoutes registers stock routes, restricted to admins
func (h *StockHandler) RegisterRoutes(r chi.Router, authMiddleware, adminOnly func(http.Handler) http.Handler) {
	r.Route("/stock", func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminOnly)

		r.Post("/entries", h.CreateEntry)
		r.Get("/entries/{productID}", h.ListEntries)
	})
}

// CreateEntry records a stock receipt and increments the product's stock
func (h *StockHandler) CreateEntry(w http.ResponseWriter, r *http.Request) {
	var req StockEntryRequest

	if err := middleware.DecodeAndValidate(r, &req); err != nil {
		if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
			middleware.RespondWithValidationErrors(w, validationErrors)
			return
		}
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	productID, err := uuid.Parse(req.ProductID)
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	entry, product, err := h.stockService.Receive(r.Context(), productID, req.Quantity, req.InvoiceNumber)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrProductNotFound):
			middleware.RespondWithError(w, http.StatusNotFound, "product not found")
		case errors.Is(err, service.ErrInvalidQuantity):
			middleware.RespondWithError(w, http.StatusBadRequest, "quantity must be greater than zero")
		case errors.Is(err, service.ErrInvoiceRequired):
			middleware.RespondWithError(w, http.StatusBadRequest, "invoice number is required")
		default:
			h.logger.Error("Stock receipt failed", zap.Error(err))
			middleware.RespondWithError(w, http.StatusInternalServerError, "failed to record stock entry")
		}
		return
	}

	response := StockEntryResponse{
		ID:            entry.ID.String(),
		ProductID:     entry.ProductID.String(),
		Quantity:      entry.Quantity,
		InvoiceNumber: entry.InvoiceNumber,
		Stock:         product.Stock,
		CreatedAt:     entry.CreatedAt,
	}

	middleware.RespondWithJSON(w, http.StatusCreated, response)
}

// ListEntries returns the receipt history for a product
func (h *StockHandler) ListEntries(w http.ResponseWriter, r *http.Request) {
	productID, err := uuid.Parse(chi.URLParam(r, "productID"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "invalid product ID")
		return
	}

	entries, err := h.stockService.History(r.Context(), productID)
	if err != nil {
		h.logger.Error("Stock history lookup failed", zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, "failed to list stock entries")
		return
	}

	response := make([]StockEntryResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, StockEntryResponse{
			ID:            entry.ID.String(),
			ProductID:     entry.ProductID.String(),
			Quantity:      entry.Quantity,
			InvoiceNumber: entry.InvoiceNumber,
			CreatedAt:     entry.CreatedAt,
		})
	}

	middleware.RespondWithJSON(w, http.StatusOK, response)
}
