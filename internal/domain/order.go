package domain

import (
	"time"

	"github.com/google/uuid"
)

// Order is a committed sale. Orders are created exactly once by order
// placement and never mutated or deleted afterwards.
type Order struct {
	ID               uuid.UUID   `json:"id" db:"id"`
	CustomerDocument string      `json:"customer_document" db:"customer_document"`
	SellerName       string      `json:"seller_name" db:"seller_name"`
	CreatedAt        time.Time   `json:"created_at" db:"created_at"`
	Items            []OrderItem `json:"items"`
}

// OrderItem is one line of an order. UnitPrice is the product's price
// captured at the moment the order was committed; later catalog price
// changes do not affect it.
type OrderItem struct {
	ID        uuid.UUID `json:"id" db:"id"`
	OrderID   uuid.UUID `json:"order_id" db:"order_id"`
	ProductID uuid.UUID `json:"product_id" db:"product_id"`
	Quantity  int       `json:"quantity" db:"quantity"`
	UnitPrice float64   `json:"unit_price" db:"unit_price"`
}
