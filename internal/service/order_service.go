package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockroom/internal/domain"
	"stockroom/internal/events"
	"stockroom/internal/repository"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	// maxPlacementAttempts bounds the retries against concurrent stock
	// updates before giving up
	maxPlacementAttempts = 3

	// publishTimeout caps how long the background event publish may hold
	// a connection to the sink
	publishTimeout = 5 * time.Second
)

var (
	ErrNoItems           = errors.New("order must contain at least one item")
	ErrInvalidQuantity   = errors.New("all quantities must be greater than zero")
	ErrProductsNotFound  = errors.New("some product(s) not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrPlacementConflict = errors.New("order placement conflicted with concurrent updates, please retry")
)

// InsufficientStockError reports the first order line (in input order)
// whose requested quantity exceeds the product's available stock.
type InsufficientStockError struct {
	ProductID   uuid.UUID
	ProductName string
	Available   int
	Required    int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %q: available %d, required %d",
		e.ProductName, e.Available, e.Required)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// OrderLine is one requested (product, quantity) pair
type OrderLine struct {
	ProductID uuid.UUID
	Quantity  int
}

// OrderService defines the interface for order placement and lookup
type OrderService interface {
	Place(ctx context.Context, customerDocument, sellerName string, lines []OrderLine) (*domain.Order, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
}

type orderService struct {
	db        *sql.DB
	orders    repository.OrderRepository
	publisher events.Publisher
	logger    *zap.Logger
}

// NewOrderService creates a new instance of OrderService
func NewOrderService(db *sql.DB, publisher events.Publisher, logger *zap.Logger) OrderService {
	return &orderService{
		db:        db,
		orders:    repository.NewOrderRepository(db),
		publisher: publisher,
		logger:    logger,
	}
}

// Place validates an order request against live inventory and, if every
// line can be satisfied, deducts stock and persists the order with its
// items in a single transaction.
//
// Validation short-circuits in a fixed sequence: no items, non-positive
// quantities, unknown products, insufficient stock. Every line's stock
// check runs against the quantities as loaded at the start of the
// transaction, never against values already decremented for an earlier
// line of the same request. Commit conflicts with concurrent placements
// or receipts are retried against a fresh read a bounded number of
// times; validation failures are never retried.
func (s *orderService) Place(ctx context.Context, customerDocument, sellerName string, lines []OrderLine) (*domain.Order, error) {
	customerDocument = strings.TrimSpace(customerDocument)
	sellerName = strings.TrimSpace(sellerName)

	if len(lines) == 0 {
		return nil, ErrNoItems
	}

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}

	seen := make(map[uuid.UUID]bool, len(lines))
	productIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ProductID] {
			seen[line.ProductID] = true
			productIDs = append(productIDs, line.ProductID)
		}
	}

	var order *domain.Order
	var err error
	for attempt := 1; attempt <= maxPlacementAttempts; attempt++ {
		order, err = s.placeOnce(ctx, customerDocument, sellerName, lines, productIDs)
		if err == nil {
			break
		}
		if !isRetryableTxError(err) {
			return nil, err
		}
		s.logger.Warn("Order placement lost a commit race, retrying",
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	if err != nil {
		return nil, ErrPlacementConflict
	}

	s.logger.Info("Order placed",
		zap.String("order_id", order.ID.String()),
		zap.Int("items", len(order.Items)),
	)

	// Best-effort notification, dispatched in the background so a slow or
	// unreachable sink never delays the response. The request context may
	// be cancelled as soon as the handler returns, so the publish runs on
	// a detached context with its own deadline.
	event := orderCreatedEvent(order)
	go func() {
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		defer cancel()
		s.publisher.Publish(publishCtx, events.TopicOrderCreated, event)
	}()

	return order, nil
}

// placeOnce runs one attempt of the placement transaction
func (s *orderService) placeOnce(ctx context.Context, customerDocument, sellerName string, lines []OrderLine, productIDs []uuid.UUID) (*domain.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	productRepo := repository.NewProductRepository(tx)

	// Row locks serialize competing placements and receipts per product,
	// across all service instances.
	products, err := productRepo.FindByIDsForUpdate(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	if len(products) != len(productIDs) {
		return nil, ErrProductsNotFound
	}

	byID := make(map[uuid.UUID]*domain.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	// Every line is checked against the stock snapshot just loaded, so a
	// later line never sees a deduction applied for an earlier one. The
	// first under-stocked line in input order is the one reported.
	for _, line := range lines {
		p := byID[line.ProductID]
		if p.Stock < line.Quantity {
			return nil, &InsufficientStockError{
				ProductID:   p.ID,
				ProductName: p.Name,
				Available:   p.Stock,
				Required:    line.Quantity,
			}
		}
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:               uuid.New(),
		CustomerDocument: customerDocument,
		SellerName:       sellerName,
		CreatedAt:        now,
		Items:            make([]domain.OrderItem, 0, len(lines)),
	}

	deducted := make(map[uuid.UUID]int, len(productIDs))
	for _, line := range lines {
		p := byID[line.ProductID]
		deducted[p.ID] += line.Quantity

		order.Items = append(order.Items, domain.OrderItem{
			ID:        uuid.New(),
			OrderID:   order.ID,
			ProductID: p.ID,
			Quantity:  line.Quantity,
			// Price captured at commit time; later catalog changes do
			// not touch it.
			UnitPrice: p.Price,
		})
	}

	for _, p := range products {
		if err := productRepo.UpdateStock(ctx, p.ID, p.Stock-deducted[p.ID]); err != nil {
			// The stock >= 0 check constraint backstops requests whose
			// duplicate lines individually pass the snapshot check but
			// collectively exceed the available quantity.
			if isCheckViolation(err) {
				return nil, fmt.Errorf("stock for product %q exhausted by combined lines: %w", p.Name, ErrInsufficientStock)
			}
			return nil, err
		}
	}

	if err := repository.NewOrderRepository(tx).Create(ctx, order); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit order: %w", err)
	}

	return order, nil
}

// GetByID retrieves a committed order with its items
func (s *orderService) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	return s.orders.FindByID(ctx, id)
}

func orderCreatedEvent(order *domain.Order) events.OrderCreated {
	items := make([]events.OrderItemPayload, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, events.OrderItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}
	return events.OrderCreated{
		OrderID:          order.ID,
		CustomerDocument: order.CustomerDocument,
		SellerName:       order.SellerName,
		CreatedAt:        order.CreatedAt,
		Items:            items,
	}
}

// isRetryableTxError reports whether the transaction failed because of a
// concurrent conflicting update (serialization failure or deadlock)
// rather than bad input.
func isRetryableTxError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// isCheckViolation reports whether the error is a CHECK constraint
// violation (SQLSTATE 23514), e.g. stock going negative.
func isCheckViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23514"
}
