package domain

import (
	"time"

	"github.com/google/uuid"
)

// StockEntry is one receipt of goods against a product. Entries form an
// append-only ledger: they are never updated or deleted.
type StockEntry struct {
	ID            uuid.UUID `json:"id" db:"id"`
	ProductID     uuid.UUID `json:"product_id" db:"product_id"`
	Quantity      int       `json:"quantity" db:"quantity"`
	InvoiceNumber string    `json:"invoice_number" db:"invoice_number"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
