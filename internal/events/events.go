package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// TopicOrderCreated is the channel order placement publishes to
const TopicOrderCreated = "stock.orders.created"

// Publisher delivers domain notifications to an external sink. Delivery is
// fire-and-forget: implementations log failures and never report them to
// the caller, so a dead sink cannot fail or roll back a committed
// transaction.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any)
}

// OrderCreated describes a successfully committed order
type OrderCreated struct {
	OrderID          uuid.UUID          `json:"order_id"`
	CustomerDocument string             `json:"customer_document"`
	SellerName       string             `json:"seller_name"`
	CreatedAt        time.Time          `json:"created_at"`
	Items            []OrderItemPayload `json:"items"`
}

// OrderItemPayload is one line of a created order
type OrderItemPayload struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
	UnitPrice float64   `json:"unit_price"`
}
