package checkout

import (
	"context"
	"math"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence capability the checkout workflow consumes.
type Store interface {
	Health(ctx context.Context) error

	FindCartByUser(ctx context.Context, userID string) (*models.Cart, error)
	DeleteCartByID(ctx context.Context, id primitive.ObjectID) (bool, error)

	FindItemsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Item, error)
	DecrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error
	IncrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error

	CreateOrder(ctx context.Context, order *models.Order) error
	GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error)
	GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error)
	ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error)
	ListOrders(ctx context.Context, status models.OrderStatus, limit int64) ([]models.Order, error)
	UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, deliveredAt *time.Time) error
	UpdateOrderPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	GetPaymentByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
}

// Locker guards the cart read-then-delete sequence per user.
type Locker interface {
	AcquireCheckoutLock(ctx context.Context, userID, token string, ttl time.Duration) (bool, error)
	ReleaseCheckoutLock(ctx context.Context, userID, token string) error
}

// EventPublisher emits the order-placed domain event.
type EventPublisher interface {
	PublishOrderPlaced(ctx context.Context, event *models.OrderPlacedEvent) error
}

// Service runs the checkout workflow: cart -> priced quote -> immutable order
// snapshot + payment record -> stock decrements -> cart deletion.
type Service struct {
	store     Store
	locker    Locker
	publisher EventPublisher
	shipping  pricing.ShippingPolicy
	currency  string
	lockTTL   time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

// NewService creates a new checkout service
func NewService(store Store, locker Locker, publisher EventPublisher, shipping pricing.ShippingPolicy, currency string, lockTTL time.Duration) *Service {
	return &Service{
		store:     store,
		locker:    locker,
		publisher: publisher,
		shipping:  shipping,
		currency:  currency,
		lockTTL:   lockTTL,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// PlaceOrderRequest is the checkout input. The caller is identified by an
// opaque user id carried outside the body.
type PlaceOrderRequest struct {
	ShippingAddress models.ShippingAddress `json:"shippingAddress" binding:"required"`
	PaymentMethod   models.PaymentMethod   `json:"paymentMethod" binding:"required"`
	Notes           string                 `json:"notes,omitempty"`
	IdempotencyKey  string                 `json:"idempotencyKey,omitempty"`
}

// OrderSummary is the order view returned from checkout.
type OrderSummary struct {
	ID            string               `json:"id"`
	OrderNumber   string               `json:"orderNumber"`
	TotalAmount   float64              `json:"totalAmount"`
	OrderStatus   models.OrderStatus   `json:"orderStatus"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	PlacedAt      time.Time            `json:"placedAt"`
}

// PaymentSummary is the payment view returned from checkout.
type PaymentSummary struct {
	ID            string               `json:"id"`
	PaymentStatus models.PaymentStatus `json:"paymentStatus"`
	PaymentMethod models.PaymentMethod `json:"paymentMethod"`
	Amount        float64              `json:"amount"`
}

// PlaceOrderResponse pairs the created order and payment summaries.
type PlaceOrderResponse struct {
	Order   OrderSummary   `json:"order"`
	Payment PaymentSummary `json:"payment"`
}

// PlaceOrder converts the user's cart into an order and a payment, decrements
// stock and deletes the cart. Every step validates before mutating; once the
// order is persisted, later failures are compensated (stock) or surfaced
// (cart deletion) rather than rolled back.
func (s *Service) PlaceOrder(ctx context.Context, userID string, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	ctx, span := util.StartSpan(ctx, "Checkout.PlaceOrder")
	defer span.End()

	util.CheckoutsTotal.Inc()
	start := time.Now()
	defer func() {
		util.CheckoutLatency.Observe(time.Since(start).Seconds())
	}()

	if err := s.store.Health(ctx); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("storage_unavailable").Inc()
		return nil, err
	}

	// Validate the request before touching any shared state.
	if err := validateShippingAddress(req.ShippingAddress); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_address").Inc()
		return nil, err
	}
	if !req.PaymentMethod.Valid() {
		util.CheckoutsFailedTotal.WithLabelValues("invalid_method").Inc()
		return nil, apperr.Validation(apperr.CodeInvalidPaymentMethod,
			"payment method %q is not supported", req.PaymentMethod)
	}

	if req.IdempotencyKey == "" {
		req.IdempotencyKey = uuid.New().String()
	}

	// At most one checkout per user may be in flight: the cart read and its
	// later deletion must not interleave with a concurrent attempt.
	token := uuid.New().String()
	acquired, err := s.locker.AcquireCheckoutLock(ctx, userID, token, s.lockTTL)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("lock_unavailable").Inc()
		return nil, apperr.Unavailable(err, "checkout lock backend unreachable")
	}
	if !acquired {
		util.CheckoutsFailedTotal.WithLabelValues("checkout_in_progress").Inc()
		return nil, apperr.Conflict(apperr.CodeCheckoutInProgress,
			"another checkout is already in progress for this user")
	}
	defer func() {
		if err := s.locker.ReleaseCheckoutLock(context.Background(), userID, token); err != nil {
			s.logger.Error("Failed to release checkout lock",
				zap.String("user_id", userID), zap.Error(err))
		}
	}()

	// A retried attempt with the same key returns the already-created order
	// instead of re-running the writes.
	existing, err := s.store.GetOrderByIdempotencyKey(ctx, req.IdempotencyKey)
	if err != nil {
		return nil, apperr.Internal(err, "failed to check idempotency key")
	}
	if existing != nil {
		s.logger.Info("Duplicate checkout attempt detected",
			zap.String("idempotency_key", req.IdempotencyKey),
			zap.String("order_number", existing.OrderNumber))
		payment, err := s.store.GetPaymentByOrderID(ctx, existing.ID)
		if err != nil {
			return nil, err
		}
		return s.summarize(existing, payment), nil
	}

	cart, err := s.store.FindCartByUser(ctx, userID)
	if err != nil {
		return nil, apperr.Internal(err, "failed to load cart")
	}
	if cart == nil || len(cart.Lines) == 0 {
		util.CheckoutsFailedTotal.WithLabelValues("empty_cart").Inc()
		return nil, apperr.Validation(apperr.CodeEmptyCart, "cart is empty")
	}

	items, err := s.resolveItems(ctx, cart.Lines)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("item_lookup").Inc()
		return nil, err
	}

	now := s.now()
	quote, err := pricing.Compute(cart.Lines, items, s.shipping, now)
	if err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("pricing").Inc()
		return nil, err
	}

	order, err := assembleOrder(userID, quote, req.ShippingAddress, req.PaymentMethod, req.Notes, req.IdempotencyKey, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateOrder(ctx, order); err != nil {
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, apperr.Internal(err, "failed to persist order")
	}
	s.logger.Info("Order created",
		zap.String("order_number", order.OrderNumber),
		zap.String("user_id", userID),
		zap.Float64("total_amount", order.TotalAmount))

	payment := s.paymentFor(order, now)
	if err := s.store.CreatePayment(ctx, payment); err != nil {
		// The order document exists without its payment; this gap is
		// surfaced on read rather than rolled back.
		s.logger.Error("Order persisted but payment creation failed",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
		util.CheckoutsFailedTotal.WithLabelValues("db_error").Inc()
		return nil, apperr.Internal(err, "failed to persist payment")
	}

	if err := s.decrementStock(ctx, order); err != nil {
		s.cancelAfterStockFailure(ctx, order, payment)
		util.CheckoutsFailedTotal.WithLabelValues("insufficient_stock").Inc()
		return nil, err
	}

	deleted, err := s.store.DeleteCartByID(ctx, cart.ID)
	if err != nil {
		s.logger.Error("Failed to delete cart after checkout",
			zap.String("user_id", userID), zap.Error(err))
	} else if !deleted {
		s.logger.Warn("Cart was already replaced during checkout",
			zap.String("user_id", userID))
	}

	s.publishOrderPlaced(ctx, order)
	util.OrdersPlacedTotal.Inc()

	return s.summarize(order, payment), nil
}

// resolveItems loads every distinct item referenced by the cart and fails
// with ItemNotFound when any reference does not resolve.
func (s *Service) resolveItems(ctx context.Context, lines []models.CartLine) (map[primitive.ObjectID]models.Item, error) {
	seen := make(map[primitive.ObjectID]bool, len(lines))
	ids := make([]primitive.ObjectID, 0, len(lines))
	for _, line := range lines {
		if !seen[line.ItemID] {
			seen[line.ItemID] = true
			ids = append(ids, line.ItemID)
		}
	}

	items, err := s.store.FindItemsByIDs(ctx, ids)
	if err != nil {
		return nil, apperr.Internal(err, "failed to resolve items")
	}

	itemMap := make(map[primitive.ObjectID]models.Item, len(items))
	for _, item := range items {
		itemMap[item.ID] = item
	}
	for _, id := range ids {
		if _, ok := itemMap[id]; !ok {
			return nil, apperr.NotFound(apperr.CodeItemNotFound,
				"item %s is not available", id.Hex())
		}
	}
	return itemMap, nil
}

// paymentFor builds the payment record mirroring the order's payment fields.
// Prepaid methods are treated as settled at placement; COD stays pending with
// no payment date.
func (s *Service) paymentFor(order *models.Order, now time.Time) *models.Payment {
	payment := &models.Payment{
		ID:          primitive.NewObjectID(),
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		Amount:      order.TotalAmount,
		Currency:    s.currency,
		Method:      order.PaymentMethod,
		Status:      order.PaymentStatus,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if order.PaymentMethod.Prepaid() {
		payment.PaymentDate = &now
	}
	return payment
}

// decrementStock applies the conditional per-item decrements. When one line
// fails, every decrement already applied is undone in reverse order before
// the error is returned, so no partial decrement stays visible.
func (s *Service) decrementStock(ctx context.Context, order *models.Order) error {
	for i, line := range order.Lines {
		if err := s.store.DecrementStock(ctx, line.ItemID, line.Quantity); err != nil {
			util.StockDecrementsFailed.Inc()
			s.compensateDecrements(ctx, order, i)
			return err
		}
	}
	return nil
}

// compensateDecrements re-increments the first n lines, newest first.
func (s *Service) compensateDecrements(ctx context.Context, order *models.Order, n int) {
	for i := n - 1; i >= 0; i-- {
		line := order.Lines[i]
		if err := s.store.IncrementStock(ctx, line.ItemID, line.Quantity); err != nil {
			s.logger.Error("Failed to compensate stock decrement",
				zap.String("order_number", order.OrderNumber),
				zap.String("item_id", line.ItemID.Hex()),
				zap.Error(err))
			continue
		}
		util.StockCompensationsTotal.Inc()
	}
}

// cancelAfterStockFailure marks the already-persisted order and payment
// cancelled after a stock conflict aborted the checkout.
func (s *Service) cancelAfterStockFailure(ctx context.Context, order *models.Order, payment *models.Payment) {
	if err := s.store.UpdateOrderStatus(ctx, order.ID, models.OrderStatusCancelled, nil); err != nil {
		s.logger.Error("Failed to cancel order after stock conflict",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
	if err := s.store.UpdateOrderPaymentStatus(ctx, order.ID, models.PaymentStatusCancelled); err != nil {
		s.logger.Error("Failed to mirror cancelled payment status",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
	payment.Status = models.PaymentStatusCancelled
	if err := s.store.UpdatePayment(ctx, payment); err != nil {
		s.logger.Error("Failed to cancel payment after stock conflict",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

func (s *Service) publishOrderPlaced(ctx context.Context, order *models.Order) {
	lines := make([]models.OrderLineData, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, models.OrderLineData{
			ItemID:          line.ItemID.Hex(),
			Quantity:        line.Quantity,
			DiscountedPrice: line.DiscountedPrice,
		})
	}

	event := &models.OrderPlacedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeOrderPlaced,
			Timestamp: s.now(),
		},
		OrderID:       order.ID.Hex(),
		OrderNumber:   order.OrderNumber,
		UserID:        order.UserID,
		TotalAmount:   order.TotalAmount,
		PaymentMethod: string(order.PaymentMethod),
		Lines:         lines,
	}

	if err := s.publisher.PublishOrderPlaced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderPlaced event",
			zap.String("order_number", order.OrderNumber), zap.Error(err))
	}
}

func (s *Service) summarize(order *models.Order, payment *models.Payment) *PlaceOrderResponse {
	return &PlaceOrderResponse{
		Order: OrderSummary{
			ID:            order.ID.Hex(),
			OrderNumber:   order.OrderNumber,
			TotalAmount:   round2(order.TotalAmount),
			OrderStatus:   order.OrderStatus,
			PaymentStatus: order.PaymentStatus,
			PlacedAt:      order.PlacedAt,
		},
		Payment: PaymentSummary{
			ID:            payment.ID.Hex(),
			PaymentStatus: payment.Status,
			PaymentMethod: payment.Method,
			Amount:        round2(payment.Amount),
		},
	}
}

// round2 rounds to two decimals at the response boundary; computation keeps
// full precision.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// GetOrder retrieves an order by id.
func (s *Service) GetOrder(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	return s.store.GetOrderByID(ctx, id)
}

// ListUserOrders retrieves the caller's orders, newest first.
func (s *Service) ListUserOrders(ctx context.Context, userID string) ([]models.Order, error) {
	return s.store.ListOrdersByUser(ctx, userID)
}

// ListOrders retrieves orders across users with an optional status filter.
func (s *Service) ListOrders(ctx context.Context, status models.OrderStatus, limit int64) ([]models.Order, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidState,
			"unknown order status %q", status)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListOrders(ctx, status, limit)
}

// UpdateOrderStatus applies one transition of the order state machine.
// delivered records deliveredAt; delivered and cancelled are terminal.
func (s *Service) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, next models.OrderStatus) (*models.Order, error) {
	ctx, span := util.StartSpan(ctx, "Checkout.UpdateOrderStatus")
	defer span.End()

	if !next.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidState,
			"unknown order status %q", next)
	}

	order, err := s.store.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !order.OrderStatus.CanTransitionTo(next) {
		return nil, apperr.Conflict(apperr.CodeInvalidTransition,
			"cannot move order from %s to %s", order.OrderStatus, next).WithDetails(map[string]interface{}{
			"currentStatus": order.OrderStatus,
		})
	}

	var deliveredAt *time.Time
	if next == models.OrderStatusDelivered {
		t := s.now()
		deliveredAt = &t
	}
	if err := s.store.UpdateOrderStatus(ctx, id, next, deliveredAt); err != nil {
		return nil, err
	}

	order.OrderStatus = next
	order.DeliveredAt = deliveredAt
	s.logger.Info("Order status updated",
		zap.String("order_number", order.OrderNumber),
		zap.String("status", string(next)))
	return order, nil
}
