package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"stockroom/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestOrderService(publisher events.Publisher) OrderService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return NewOrderService(testDB, publisher, zap.NewNop())
}

func TestPlaceRejectsEmptyOrder(t *testing.T) {
	// Validation failures short-circuit before any database access
	svc := NewOrderService(nil, events.NoopPublisher{}, zap.NewNop())

	_, err := svc.Place(context.Background(), "12345678900", "alice", nil)
	if !errors.Is(err, ErrNoItems) {
		t.Errorf("expected ErrNoItems, got %v", err)
	}
}

func TestPlaceRejectsNonPositiveQuantities(t *testing.T) {
	svc := NewOrderService(nil, events.NoopPublisher{}, zap.NewNop())

	for _, quantity := range []int{0, -1, -100} {
		_, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
			{ProductID: uuid.New(), Quantity: quantity},
		})
		if !errors.Is(err, ErrInvalidQuantity) {
			t.Errorf("quantity %d: expected ErrInvalidQuantity, got %v", quantity, err)
		}
	}
}

func TestPlaceRejectsUnknownProducts(t *testing.T) {
	svc := newTestOrderService(nil)

	known := insertTestProduct(t, "Known", 10.00, 5)

	_, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: known.ID, Quantity: 1},
		{ProductID: uuid.New(), Quantity: 1},
	})
	if !errors.Is(err, ErrProductsNotFound) {
		t.Fatalf("expected ErrProductsNotFound, got %v", err)
	}

	// The known product's stock must be untouched
	if got := productStock(t, known.ID); got != 5 {
		t.Errorf("expected stock 5, got %d", got)
	}
}

func TestPlaceDeductsStockAndCapturesPrices(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestOrderService(publisher)

	product := insertTestProduct(t, "Keyboard", 100.00, 10)

	order, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: product.ID, Quantity: 3},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	if got := productStock(t, product.ID); got != 7 {
		t.Errorf("expected stock 7 after placement, got %d", got)
	}

	if len(order.Items) != 1 {
		t.Fatalf("expected 1 item, got %d", len(order.Items))
	}
	if order.Items[0].UnitPrice != 100.00 {
		t.Errorf("expected captured unit price 100.00, got %f", order.Items[0].UnitPrice)
	}
	if order.Items[0].Quantity != 3 {
		t.Errorf("expected quantity 3, got %d", order.Items[0].Quantity)
	}

	// The committed order is readable back with the same values
	stored, err := svc.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to read back order: %v", err)
	}
	if stored.CustomerDocument != "12345678900" || stored.SellerName != "alice" {
		t.Errorf("unexpected order header: %q / %q", stored.CustomerDocument, stored.SellerName)
	}

	topics, published := publisher.waitForEvents(t, 1)
	if len(topics) != 1 || topics[0] != events.TopicOrderCreated {
		t.Fatalf("expected one event on %q, got %v", events.TopicOrderCreated, topics)
	}
	event, ok := published[0].(events.OrderCreated)
	if !ok {
		t.Fatalf("expected OrderCreated payload, got %T", published[0])
	}
	if event.OrderID != order.ID || len(event.Items) != 1 || event.Items[0].UnitPrice != 100.00 {
		t.Errorf("unexpected event payload: %+v", event)
	}
}

// stalledPublisher blocks inside Publish until released, standing in
// for a sink whose connection attempts hang.
type stalledPublisher struct {
	entered chan struct{}
	release chan struct{}
}

func newStalledPublisher() *stalledPublisher {
	return &stalledPublisher{
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
}

func (p *stalledPublisher) Publish(ctx context.Context, topic string, payload any) {
	close(p.entered)
	<-p.release
}

func TestPlaceReturnsWhileSinkIsStalled(t *testing.T) {
	publisher := newStalledPublisher()
	defer close(publisher.release)

	svc := newTestOrderService(publisher)
	product := insertTestProduct(t, "Prompt", 10.00, 5)

	// Place must come back with the committed order even though the
	// publisher is wedged; the notification is not a gate on success.
	order, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}
	if order == nil {
		t.Fatal("expected committed order")
	}
	if got := productStock(t, product.ID); got != 4 {
		t.Errorf("expected stock 4 after placement, got %d", got)
	}

	// The publish was still attempted in the background.
	select {
	case <-publisher.entered:
	case <-time.After(2 * time.Second):
		t.Error("expected a background publish attempt")
	}
}

func TestPlaceTrimsCustomerFields(t *testing.T) {
	svc := newTestOrderService(nil)

	product := insertTestProduct(t, "Tidy", 10.00, 5)

	order, err := svc.Place(context.Background(), "  12345678900  ", "\talice ", []OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	stored, err := svc.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to read back order: %v", err)
	}
	if stored.CustomerDocument != "12345678900" {
		t.Errorf("expected trimmed customer document, got %q", stored.CustomerDocument)
	}
	if stored.SellerName != "alice" {
		t.Errorf("expected trimmed seller name, got %q", stored.SellerName)
	}
}

func TestPlaceReportsFirstInsufficientLine(t *testing.T) {
	publisher := &recordingPublisher{}
	svc := newTestOrderService(publisher)

	empty := insertTestProduct(t, "Sold Out", 10.00, 0)

	_, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: empty.ID, Quantity: 1},
	})

	var insufficient *InsufficientStockError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected InsufficientStockError, got %v", err)
	}
	if !errors.Is(err, ErrInsufficientStock) {
		t.Error("expected error to unwrap to ErrInsufficientStock")
	}
	if insufficient.Available != 0 || insufficient.Required != 1 {
		t.Errorf("expected available 0 required 1, got %d / %d", insufficient.Available, insufficient.Required)
	}
	if insufficient.ProductID != empty.ID {
		t.Errorf("expected product %s reported, got %s", empty.ID, insufficient.ProductID)
	}

	// Nothing published on failure
	if topics, _ := publisher.published(); len(topics) != 0 {
		t.Errorf("expected no events, got %v", topics)
	}
}

func TestPlaceIsAllOrNothing(t *testing.T) {
	svc := newTestOrderService(nil)

	plenty := insertTestProduct(t, "Plenty", 10.00, 100)
	scarce := insertTestProduct(t, "Scarce", 10.00, 1)

	_, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: plenty.ID, Quantity: 5},
		{ProductID: scarce.ID, Quantity: 2},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}

	// The satisfiable line must not leave a partial deduction behind
	if got := productStock(t, plenty.ID); got != 100 {
		t.Errorf("expected stock 100 untouched, got %d", got)
	}
	if got := productStock(t, scarce.ID); got != 1 {
		t.Errorf("expected stock 1 untouched, got %d", got)
	}

	var count int
	if err := testDB.QueryRow(
		"SELECT COUNT(*) FROM order_items WHERE product_id IN ($1, $2)",
		plenty.ID, scarce.ID,
	).Scan(&count); err != nil {
		t.Fatalf("failed to count order items: %v", err)
	}
	if count != 0 {
		t.Errorf("expected no order items persisted, got %d", count)
	}
}

func TestPlaceSnapshotChecksIgnoreEarlierLines(t *testing.T) {
	svc := newTestOrderService(nil)

	// Two lines for the same product, each within the snapshot but
	// collectively over it. Per-line checks pass against the snapshot;
	// the deduction itself must still refuse to go negative.
	product := insertTestProduct(t, "Duplicated", 10.00, 5)

	_, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: product.ID, Quantity: 4},
		{ProductID: product.ID, Quantity: 4},
	})
	if !errors.Is(err, ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := productStock(t, product.ID); got != 5 {
		t.Errorf("expected stock 5 untouched, got %d", got)
	}
}

func TestPlaceDuplicateLinesWithinStock(t *testing.T) {
	svc := newTestOrderService(nil)

	product := insertTestProduct(t, "Split Lines", 10.00, 10)

	order, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: product.ID, Quantity: 3},
		{ProductID: product.ID, Quantity: 4},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	if len(order.Items) != 2 {
		t.Fatalf("expected 2 items, got %d", len(order.Items))
	}
	if got := productStock(t, product.ID); got != 3 {
		t.Errorf("expected stock 3 after combined deduction, got %d", got)
	}
}

func TestPlacedOrderKeepsPriceAfterCatalogChange(t *testing.T) {
	svc := newTestOrderService(nil)

	product := insertTestProduct(t, "Volatile", 50.00, 10)

	order, err := svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
		{ProductID: product.ID, Quantity: 1},
	})
	if err != nil {
		t.Fatalf("placement failed: %v", err)
	}

	if _, err := testDB.Exec("UPDATE products SET price = 75.00 WHERE id = $1", product.ID); err != nil {
		t.Fatalf("failed to change price: %v", err)
	}

	stored, err := svc.GetByID(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("failed to read back order: %v", err)
	}
	if stored.Items[0].UnitPrice != 50.00 {
		t.Errorf("expected captured price 50.00 to survive catalog change, got %f", stored.Items[0].UnitPrice)
	}
}

func TestConcurrentPlacementsNeverOversell(t *testing.T) {
	svc := newTestOrderService(nil)

	product := insertTestProduct(t, "Contended", 10.00, 10)

	const (
		workers     = 8
		perOrderQty = 3
	)

	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Place(context.Background(), "12345678900", "alice", []OrderLine{
				{ProductID: product.ID, Quantity: perOrderQty},
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrInsufficientStock):
		case errors.Is(err, ErrPlacementConflict):
		default:
			t.Errorf("unexpected placement error: %v", err)
		}
	}

	// 10 units, 3 per order: at most 3 placements can win
	if succeeded > 3 {
		t.Errorf("expected at most 3 successful placements, got %d", succeeded)
	}

	remaining := productStock(t, product.ID)
	if remaining != 10-succeeded*perOrderQty {
		t.Errorf("stock %d inconsistent with %d successful placements", remaining, succeeded)
	}
	if remaining < 0 {
		t.Error("stock went negative")
	}
}
