package repository

import (
	"context"
	"fmt"

	"stockroom/internal/domain"

	"github.com/google/uuid"
)

// StockEntryRepository defines the interface for stock receipt data access.
// Entries are an append-only ledger, so there are no update or delete
// operations.
type StockEntryRepository interface {
	Create(ctx context.Context, entry *domain.StockEntry) error
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.StockEntry, error)
}

type stockEntryRepository struct {
	db DBTX
}

// NewStockEntryRepository creates a new instance of StockEntryRepository
func NewStockEntryRepository(db DBTX) StockEntryRepository {
	return &stockEntryRepository{db: db}
}

// Create inserts a new stock entry into the database using parameterized queries
func (r *stockEntryRepository) Create(ctx context.Context, entry *domain.StockEntry) error {
	query := `
		INSERT INTO stock_entries (id, product_id, quantity, invoice_number, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := r.db.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.ProductID,
		entry.Quantity,
		entry.InvoiceNumber,
		entry.CreatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create stock entry: %w", err)
	}

	return nil
}

// ListByProduct retrieves all receipts for a product, newest first
func (r *stockEntryRepository) ListByProduct(ctx context.Context, productID uuid.UUID) ([]*domain.StockEntry, error) {
	query := `
		SELECT id, product_id, quantity, invoice_number, created_at
		FROM stock_entries
		WHERE product_id = $1
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stock entries: %w", err)
	}
	defer rows.Close()

	entries := []*domain.StockEntry{}
	for rows.Next() {
		entry := &domain.StockEntry{}
		err := rows.Scan(
			&entry.ID,
			&entry.ProductID,
			&entry.Quantity,
			&entry.InvoiceNumber,
			&entry.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan stock entry: %w", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating stock entries: %w", err)
	}

	return entries, nil
}
