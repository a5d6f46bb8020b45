package domain

import (
	"time"

	"github.com/google/uuid"
)

// Product represents a sellable product in the catalog. Stock is the number
// of units currently available and must never go negative; it is mutated
// only by stock receiving (increment) and order placement (decrement).
type Product struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	Description string    `json:"description" db:"description"`
	Price       float64   `json:"price" db:"price"`
	Stock       int       `json:"stock" db:"stock"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}
