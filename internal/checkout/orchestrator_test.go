package checkout

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	carts    map[string]*models.Cart
	items    map[primitive.ObjectID]*models.Item
	orders   map[primitive.ObjectID]*models.Order
	payments map[primitive.ObjectID]*models.Payment

	healthErr     error
	failDecrement map[primitive.ObjectID]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		carts:         make(map[string]*models.Cart),
		items:         make(map[primitive.ObjectID]*models.Item),
		orders:        make(map[primitive.ObjectID]*models.Order),
		payments:      make(map[primitive.ObjectID]*models.Payment),
		failDecrement: make(map[primitive.ObjectID]bool),
	}
}

func (f *fakeStore) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeStore) FindCartByUser(ctx context.Context, userID string) (*models.Cart, error) {
	cart, ok := f.carts[userID]
	if !ok {
		return nil, nil
	}
	copied := *cart
	return &copied, nil
}

func (f *fakeStore) DeleteCartByID(ctx context.Context, id primitive.ObjectID) (bool, error) {
	for userID, cart := range f.carts {
		if cart.ID == id {
			delete(f.carts, userID)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) FindItemsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Item, error) {
	items := make([]models.Item, 0, len(ids))
	for _, id := range ids {
		if item, ok := f.items[id]; ok {
			items = append(items, *item)
		}
	}
	return items, nil
}

func (f *fakeStore) DecrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error {
	item, ok := f.items[itemID]
	if !ok {
		return apperr.NotFound(apperr.CodeItemNotFound, "item %s is not available", itemID.Hex())
	}
	if f.failDecrement[itemID] || item.Stock < qty {
		return apperr.Conflict(apperr.CodeInsufficientStock, "insufficient stock for %q", item.Title)
	}
	item.Stock -= qty
	return nil
}

func (f *fakeStore) IncrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error {
	if item, ok := f.items[itemID]; ok {
		item.Stock += qty
	}
	return nil
}

func (f *fakeStore) CreateOrder(ctx context.Context, order *models.Order) error {
	copied := *order
	f.orders[order.ID] = &copied
	return nil
}

func (f *fakeStore) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	order, ok := f.orders[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	copied := *order
	return &copied, nil
}

func (f *fakeStore) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	for _, order := range f.orders {
		if order.IdempotencyKey == key {
			copied := *order
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	for _, order := range f.orders {
		if order.UserID == userID {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (f *fakeStore) ListOrders(ctx context.Context, status models.OrderStatus, limit int64) ([]models.Order, error) {
	var orders []models.Order
	for _, order := range f.orders {
		if status == "" || order.OrderStatus == status {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

func (f *fakeStore) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, deliveredAt *time.Time) error {
	order, ok := f.orders[id]
	if !ok {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	order.OrderStatus = status
	order.DeliveredAt = deliveredAt
	return nil
}

func (f *fakeStore) UpdateOrderPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	order, ok := f.orders[id]
	if !ok {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	order.PaymentStatus = status
	return nil
}

func (f *fakeStore) CreatePayment(ctx context.Context, payment *models.Payment) error {
	copied := *payment
	f.payments[payment.ID] = &copied
	return nil
}

func (f *fakeStore) GetPaymentByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error) {
	for _, p := range f.payments {
		if p.OrderID == orderID {
			copied := *p
			return &copied, nil
		}
	}
	return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment for order %s not found", orderID.Hex())
}

func (f *fakeStore) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	stored, ok := f.payments[payment.ID]
	if !ok {
		return apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", payment.ID.Hex())
	}
	*stored = *payment
	return nil
}

type fakeLocker struct {
	held        map[string]string
	failAcquire bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: make(map[string]string)}
}

func (l *fakeLocker) AcquireCheckoutLock(ctx context.Context, userID, token string, ttl time.Duration) (bool, error) {
	if l.failAcquire {
		return false, nil
	}
	if _, taken := l.held[userID]; taken {
		return false, nil
	}
	l.held[userID] = token
	return true, nil
}

func (l *fakeLocker) ReleaseCheckoutLock(ctx context.Context, userID, token string) error {
	if l.held[userID] == token {
		delete(l.held, userID)
	}
	return nil
}

type fakePublisher struct {
	placed []*models.OrderPlacedEvent
}

func (p *fakePublisher) PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error {
	p.placed = append(p.placed, event)
	return nil
}

func newTestService(store *fakeStore) (*Service, *fakeLocker, *fakePublisher) {
	locker := newFakeLocker()
	publisher := &fakePublisher{}
	svc := NewService(store, locker, publisher,
		pricing.ShippingPolicy{FreeThreshold: 500, Fee: 50}, "INR", time.Minute)
	return svc, locker, publisher
}

func seedItem(store *fakeStore, price float64, stock int, discount float64) primitive.ObjectID {
	item := &models.Item{
		ID:       primitive.NewObjectID(),
		Title:    "seeded item",
		Price:    price,
		Stock:    stock,
		Discount: discount,
		IsActive: true,
	}
	store.items[item.ID] = item
	return item.ID
}

func seedCart(store *fakeStore, userID string, lines ...models.CartLine) {
	store.carts[userID] = &models.Cart{
		ID:     primitive.NewObjectID(),
		UserID: userID,
		Lines:  lines,
	}
}

func placeRequest(method models.PaymentMethod, key string) *PlaceOrderRequest {
	return &PlaceOrderRequest{
		ShippingAddress: validAddress(),
		PaymentMethod:   method,
		IdempotencyKey:  key,
	}
}

func TestPlaceOrderSuccessCOD(t *testing.T) {
	store := newFakeStore()
	svc, locker, publisher := newTestService(store)

	itemID := seedItem(store, 300, 5, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 2})

	resp, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-1"))
	require.NoError(t, err)

	assert.Equal(t, 600.0, resp.Order.TotalAmount)
	assert.Equal(t, models.OrderStatusPending, resp.Order.OrderStatus)
	assert.Equal(t, models.PaymentStatusPending, resp.Order.PaymentStatus)
	assert.Equal(t, models.PaymentStatusPending, resp.Payment.PaymentStatus)
	assert.Equal(t, 600.0, resp.Payment.Amount)

	assert.Equal(t, 3, store.items[itemID].Stock, "stock decremented by ordered quantity")
	assert.Nil(t, store.carts["user-1"], "cart removed after checkout")
	assert.Len(t, store.orders, 1)
	assert.Len(t, store.payments, 1)
	assert.Len(t, publisher.placed, 1)
	assert.Empty(t, locker.held, "lock released")

	for _, p := range store.payments {
		assert.Nil(t, p.PaymentDate, "cod has no payment date at placement")
		assert.Equal(t, "INR", p.Currency)
	}
}

func TestPlaceOrderPrepaidMarkedPaid(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemID := seedItem(store, 100, 10, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 1})

	resp, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodUPI, "key-2"))
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, resp.Payment.PaymentStatus)
	for _, p := range store.payments {
		assert.NotNil(t, p.PaymentDate, "prepaid is stamped paid at placement")
	}
}

func TestPlaceOrderShippingChargedBelowThreshold(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemID := seedItem(store, 100, 10, 50)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 1})

	resp, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCard, "key-3"))
	require.NoError(t, err)

	assert.Equal(t, 100.0, resp.Order.TotalAmount, "50 effective + 50 shipping")
	for _, order := range store.orders {
		assert.Equal(t, 50.0, order.Subtotal)
		assert.Equal(t, 50.0, order.ShippingCharges)
		assert.Equal(t, order.Subtotal+order.ShippingCharges, order.TotalAmount)
	}
}

func TestPlaceOrderEmptyCart(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-4"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeEmptyCart, apperr.As(err).Code)

	seedCart(store, "user-2")
	_, err = svc.PlaceOrder(context.Background(), "user-2", placeRequest(models.PaymentMethodCOD, "key-5"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeEmptyCart, apperr.As(err).Code)

	assert.Empty(t, store.orders)
	assert.Empty(t, store.payments)
}

func TestPlaceOrderInsufficientStockFailsFast(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemID := seedItem(store, 100, 2, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 5})

	_, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-6"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Equal(t, 2, store.items[itemID].Stock, "stock untouched")
	assert.Empty(t, store.orders, "no order persisted")
	assert.Empty(t, store.payments, "no payment persisted")
	assert.NotNil(t, store.carts["user-1"], "cart survives a failed checkout")
}

func TestPlaceOrderIdempotentRetry(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemID := seedItem(store, 300, 5, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 2})

	first, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "retry-key"))
	require.NoError(t, err)

	second, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "retry-key"))
	require.NoError(t, err)

	assert.Equal(t, first.Order.ID, second.Order.ID)
	assert.Equal(t, first.Order.OrderNumber, second.Order.OrderNumber)
	assert.Len(t, store.orders, 1, "retry does not create a second order")
	assert.Equal(t, 3, store.items[itemID].Stock, "retry does not decrement again")
}

func TestPlaceOrderLockContention(t *testing.T) {
	store := newFakeStore()
	svc, locker, _ := newTestService(store)
	locker.failAcquire = true

	itemID := seedItem(store, 100, 5, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 1})

	_, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-7"))
	require.Error(t, err)
	assert.Equal(t, apperr.CodeCheckoutInProgress, apperr.As(err).Code)
	assert.Empty(t, store.orders)
}

func TestPlaceOrderStorageUnavailable(t *testing.T) {
	store := newFakeStore()
	store.healthErr = apperr.Unavailable(nil, "storage backend unreachable")
	svc, _, _ := newTestService(store)

	_, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-8"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindUnavailable, apperr.KindOf(err))
}

func TestPlaceOrderCompensatesMidflightStockConflict(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemA := seedItem(store, 200, 10, 0)
	itemB := seedItem(store, 400, 10, 0)
	// Pricing sees enough stock, but the conditional decrement for B loses
	// a race against a concurrent checkout.
	store.failDecrement[itemB] = true

	seedCart(store, "user-1",
		models.CartLine{ItemID: itemA, Quantity: 2},
		models.CartLine{ItemID: itemB, Quantity: 1})

	_, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-9"))
	require.Error(t, err)
	assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))

	assert.Equal(t, 10, store.items[itemA].Stock, "earlier decrement compensated")
	assert.Equal(t, 10, store.items[itemB].Stock)

	require.Len(t, store.orders, 1)
	for _, order := range store.orders {
		assert.Equal(t, models.OrderStatusCancelled, order.OrderStatus)
		assert.Equal(t, models.PaymentStatusCancelled, order.PaymentStatus)
	}
	for _, p := range store.payments {
		assert.Equal(t, models.PaymentStatusCancelled, p.Status)
	}
	assert.NotNil(t, store.carts["user-1"], "cart not deleted on aborted checkout")
}

func TestUpdateOrderStatusTransitions(t *testing.T) {
	store := newFakeStore()
	svc, _, _ := newTestService(store)

	itemID := seedItem(store, 300, 5, 0)
	seedCart(store, "user-1", models.CartLine{ItemID: itemID, Quantity: 1})
	resp, err := svc.PlaceOrder(context.Background(), "user-1", placeRequest(models.PaymentMethodCOD, "key-10"))
	require.NoError(t, err)

	orderID, err := primitive.ObjectIDFromHex(resp.Order.ID)
	require.NoError(t, err)

	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusShipped)
	require.Error(t, err, "pending cannot jump to shipped")
	assert.Equal(t, apperr.CodeInvalidTransition, apperr.As(err).Code)

	for _, status := range []models.OrderStatus{
		models.OrderStatusConfirmed,
		models.OrderStatusProcessing,
		models.OrderStatusShipped,
	} {
		_, err = svc.UpdateOrderStatus(context.Background(), orderID, status)
		require.NoError(t, err)
	}

	order, err := svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusDelivered)
	require.NoError(t, err)
	assert.NotNil(t, order.DeliveredAt, "delivered stamps deliveredAt")

	_, err = svc.UpdateOrderStatus(context.Background(), orderID, models.OrderStatusCancelled)
	require.Error(t, err, "delivered is terminal")
}
