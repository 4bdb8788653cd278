package payment

import (
	"context"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/util"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

// Store is the persistence capability the coordinator consumes. Payment owns
// the authoritative status; the order's field is a mirrored copy updated in
// the same call path.
type Store interface {
	GetPaymentByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error)
	GetPaymentByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error)
	ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error)
	ListPayments(ctx context.Context, status models.PaymentStatus, method models.PaymentMethod, limit int64) ([]models.Payment, error)
	UpdatePayment(ctx context.Context, payment *models.Payment) error
	UpdateOrderPaymentStatus(ctx context.Context, orderID primitive.ObjectID, status models.PaymentStatus) error
}

// EventPublisher emits payment domain events.
type EventPublisher interface {
	PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error
	PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error
}

// Coordinator transitions payment status and keeps the parent order's
// payment-status field mirrored.
type Coordinator struct {
	store     Store
	publisher EventPublisher
	logger    *zap.Logger
	now       func() time.Time
}

// NewCoordinator creates a new payment status coordinator
func NewCoordinator(store Store, publisher EventPublisher) *Coordinator {
	return &Coordinator{
		store:     store,
		publisher: publisher,
		logger:    util.GetLogger(),
		now:       time.Now,
	}
}

// UpdateStatusRequest carries a payment status transition.
type UpdateStatusRequest struct {
	Status          models.PaymentStatus   `json:"status" binding:"required"`
	TransactionID   string                 `json:"transactionId,omitempty"`
	Gateway         string                 `json:"gateway,omitempty"`
	PaymentDate     *time.Time             `json:"paymentDate,omitempty"`
	FailureReason   string                 `json:"failureReason,omitempty"`
	GatewayResponse map[string]interface{} `json:"gatewayResponse,omitempty"`
}

// RefundRequest carries a refund. Amount defaults to the full paid amount.
type RefundRequest struct {
	Amount *float64 `json:"amount,omitempty"`
	Reason string   `json:"reason,omitempty"`
}

// UpdateStatus applies a payment status transition and mirrors the result
// onto the parent order. Entering paid without an explicit date stamps
// paymentDate with now.
func (c *Coordinator) UpdateStatus(ctx context.Context, id primitive.ObjectID, req *UpdateStatusRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "Payment.UpdateStatus")
	defer span.End()

	if !req.Status.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidPaymentStatus,
			"unknown payment status %q", req.Status)
	}

	payment, err := c.store.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}

	payment.Status = req.Status
	if req.TransactionID != "" {
		payment.TransactionID = req.TransactionID
	}
	if req.Gateway != "" {
		payment.Gateway = req.Gateway
	}
	if req.FailureReason != "" {
		payment.FailureReason = req.FailureReason
	}
	if req.GatewayResponse != nil {
		payment.GatewayResponse = bson.M(req.GatewayResponse)
	}
	if req.PaymentDate != nil {
		payment.PaymentDate = req.PaymentDate
	} else if req.Status == models.PaymentStatusPaid && payment.PaymentDate == nil {
		now := c.now()
		payment.PaymentDate = &now
	}

	if err := c.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}
	util.PaymentStatusUpdatesTotal.WithLabelValues(string(payment.Status)).Inc()

	c.mirrorStatus(ctx, payment)
	c.publishStatusChanged(ctx, payment)

	c.logger.Info("Payment status updated",
		zap.String("payment_id", payment.ID.Hex()),
		zap.String("order_number", payment.OrderNumber),
		zap.String("status", string(payment.Status)))
	return payment, nil
}

// Refund records a refund against a paid payment. A full-amount refund moves
// the status to refunded; a partial refund records the amount and leaves the
// status at paid.
func (c *Coordinator) Refund(ctx context.Context, id primitive.ObjectID, req *RefundRequest) (*models.Payment, error) {
	ctx, span := util.StartSpan(ctx, "Payment.Refund")
	defer span.End()

	payment, err := c.store.GetPaymentByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Status != models.PaymentStatusPaid {
		return nil, apperr.Conflict(apperr.CodeInvalidState,
			"payment is %s, only paid payments can be refunded", payment.Status).WithDetails(map[string]interface{}{
			"currentStatus": payment.Status,
		})
	}

	amount := payment.Amount
	if req.Amount != nil {
		amount = *req.Amount
	}
	if amount <= 0 {
		return nil, apperr.Validation(apperr.CodeInvalidState,
			"refund amount must be positive")
	}
	if amount > payment.Amount {
		return nil, apperr.Conflict(apperr.CodeRefundExceedsPayment,
			"refund of %.2f exceeds payment amount", amount).WithDetails(map[string]interface{}{
			"paymentAmount": payment.Amount,
		})
	}

	now := c.now()
	payment.RefundAmount = amount
	payment.RefundDate = &now
	payment.RefundReason = req.Reason

	full := amount == payment.Amount
	if full {
		payment.Status = models.PaymentStatusRefunded
	}

	if err := c.store.UpdatePayment(ctx, payment); err != nil {
		return nil, err
	}

	kind := "partial"
	if full {
		kind = "full"
	}
	util.RefundsTotal.WithLabelValues(kind).Inc()

	c.mirrorStatus(ctx, payment)
	c.publishRefunded(ctx, payment, full)

	c.logger.Info("Refund recorded",
		zap.String("payment_id", payment.ID.Hex()),
		zap.Float64("refund_amount", amount),
		zap.Bool("full", full))
	return payment, nil
}

// GetPayment retrieves a payment by id.
func (c *Coordinator) GetPayment(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	return c.store.GetPaymentByID(ctx, id)
}

// GetPaymentByOrder retrieves the payment for an order.
func (c *Coordinator) GetPaymentByOrder(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error) {
	return c.store.GetPaymentByOrderID(ctx, orderID)
}

// ListUserPayments retrieves the caller's payments, newest first.
func (c *Coordinator) ListUserPayments(ctx context.Context, userID string) ([]models.Payment, error) {
	return c.store.ListPaymentsByUser(ctx, userID)
}

// ListPayments retrieves payments with optional status and method filters.
func (c *Coordinator) ListPayments(ctx context.Context, status models.PaymentStatus, method models.PaymentMethod, limit int64) ([]models.Payment, error) {
	if status != "" && !status.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidPaymentStatus,
			"unknown payment status %q", status)
	}
	if method != "" && !method.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidPaymentMethod,
			"payment method %q is not supported", method)
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return c.store.ListPayments(ctx, status, method, limit)
}

// mirrorStatus copies the payment status onto the parent order. Best-effort:
// a failed mirror is logged, the payment remains authoritative.
func (c *Coordinator) mirrorStatus(ctx context.Context, payment *models.Payment) {
	if err := c.store.UpdateOrderPaymentStatus(ctx, payment.OrderID, payment.Status); err != nil {
		c.logger.Error("Failed to mirror payment status onto order",
			zap.String("order_id", payment.OrderID.Hex()),
			zap.Error(err))
	}
}

func (c *Coordinator) publishStatusChanged(ctx context.Context, payment *models.Payment) {
	event := &models.PaymentStatusChangedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentStatusChanged,
			Timestamp: c.now(),
		},
		PaymentID:     payment.ID.Hex(),
		OrderID:       payment.OrderID.Hex(),
		OrderNumber:   payment.OrderNumber,
		Status:        string(payment.Status),
		TransactionID: payment.TransactionID,
	}
	if err := c.publisher.PublishPaymentStatusChanged(ctx, event); err != nil {
		c.logger.Error("Failed to publish PaymentStatusChanged event",
			zap.String("payment_id", payment.ID.Hex()), zap.Error(err))
	}
}

func (c *Coordinator) publishRefunded(ctx context.Context, payment *models.Payment, full bool) {
	event := &models.PaymentRefundedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypePaymentRefunded,
			Timestamp: c.now(),
		},
		PaymentID:    payment.ID.Hex(),
		OrderID:      payment.OrderID.Hex(),
		RefundAmount: payment.RefundAmount,
		FullRefund:   full,
		Reason:       payment.RefundReason,
	}
	if err := c.publisher.PublishPaymentRefunded(ctx, event); err != nil {
		c.logger.Error("Failed to publish PaymentRefunded event",
			zap.String("payment_id", payment.ID.Hex()), zap.Error(err))
	}
}
