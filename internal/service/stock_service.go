package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvoiceRequired = errors.New("invoice number is required")
)

// StockService defines the interface for receiving stock into the catalog
type StockService interface {
	Receive(ctx context.Context, productID uuid.UUID, quantity int, invoiceNumber string) (*domain.StockEntry, *domain.Product, error)
	History(ctx context.Context, productID uuid.UUID) ([]*domain.StockEntry, error)
}

type stockService struct {
	db      *sql.DB
	entries repository.StockEntryRepository
	logger  *zap.Logger
}

// NewStockService creates a new instance of StockService
func NewStockService(db *sql.DB, logger *zap.Logger) StockService {
	return &stockService{
		db:      db,
		entries: repository.NewStockEntryRepository(db),
		logger:  logger,
	}
}

// Receive appends a stock entry and increments the product's stock
// quantity in one transaction. The product row is locked for the duration
// so a concurrent order placement cannot read a stale quantity.
func (s *stockService) Receive(ctx context.Context, productID uuid.UUID, quantity int, invoiceNumber string) (*domain.StockEntry, *domain.Product, error) {
	if quantity <= 0 {
		return nil, nil, ErrInvalidQuantity
	}

	invoiceNumber = strings.TrimSpace(invoiceNumber)
	if invoiceNumber == "" {
		return nil, nil, ErrInvoiceRequired
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	productRepo := repository.NewProductRepository(tx)

	products, err := productRepo.FindByIDsForUpdate(ctx, []uuid.UUID{productID})
	if err != nil {
		return nil, nil, err
	}
	if len(products) == 0 {
		return nil, nil, repository.ErrProductNotFound
	}
	product := products[0]

	entry := &domain.StockEntry{
		ID:            uuid.New(),
		ProductID:     productID,
		Quantity:      quantity,
		InvoiceNumber: invoiceNumber,
		CreatedAt:     time.Now().UTC(),
	}

	if err := repository.NewStockEntryRepository(tx).Create(ctx, entry); err != nil {
		return nil, nil, err
	}

	product.Stock += quantity
	if err := productRepo.UpdateStock(ctx, product.ID, product.Stock); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit stock entry: %w", err)
	}

	s.logger.Info("Stock received",
		zap.String("product_id", productID.String()),
		zap.Int("quantity", quantity),
		zap.String("invoice_number", invoiceNumber),
	)

	return entry, product, nil
}

// History lists all receipts recorded for a product, newest first
func (s *stockService) History(ctx context.Context, productID uuid.UUID) ([]*domain.StockEntry, error) {
	return s.entries.ListByProduct(ctx, productID)
}
