package payment

import (
	"context"
	"testing"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type fakeStore struct {
	payments      map[primitive.ObjectID]*models.Payment
	orderStatuses map[primitive.ObjectID]models.PaymentStatus
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		payments:      make(map[primitive.ObjectID]*models.Payment),
		orderStatuses: make(map[primitive.ObjectID]models.PaymentStatus),
	}
}

func (f *fakeStore) GetPaymentByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	p, ok := f.payments[id]
	if !ok {
		return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", id.Hex())
	}
	copied := *p
	return &copied, nil
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

func (f *fakeStore) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	var payments []models.Payment
	for _, p := range f.payments {
		if p.UserID == userID {
			payments = append(payments, *p)
		}
	}
	return payments, nil
}

func (f *fakeStore) ListPayments(ctx context.Context, status models.PaymentStatus, method models.PaymentMethod, limit int64) ([]models.Payment, error) {
	var payments []models.Payment
	for _, p := range f.payments {
		if status != "" && p.Status != status {
			continue
		}
		if method != "" && p.Method != method {
			continue
		}
		payments = append(payments, *p)
	}
	return payments, nil
}

func (f *fakeStore) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	stored, ok := f.payments[payment.ID]
	if !ok {
		return apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", payment.ID.Hex())
	}
	*stored = *payment
	return nil
}

func (f *fakeStore) UpdateOrderPaymentStatus(ctx context.Context, orderID primitive.ObjectID, status models.PaymentStatus) error {
	f.orderStatuses[orderID] = status
	return nil
}

type fakePublisher struct {
	statusChanged []*models.PaymentStatusChangedEvent
	refunded      []*models.PaymentRefundedEvent
}

func (p *fakePublisher) PublishPaymentStatusChanged(ctx context.Context, event *models.PaymentStatusChangedEvent) error {
	p.statusChanged = append(p.statusChanged, event)
	return nil
}

func (p *fakePublisher) PublishPaymentRefunded(ctx context.Context, event *models.PaymentRefundedEvent) error {
	p.refunded = append(p.refunded, event)
	return nil
}

func seedPayment(store *fakeStore, status models.PaymentStatus, amount float64) *models.Payment {
	p := &models.Payment{
		ID:          primitive.NewObjectID(),
		OrderID:     primitive.NewObjectID(),
		OrderNumber: "ORD-TEST",
		UserID:      "user-1",
		Amount:      amount,
		Currency:    "INR",
		Method:      models.PaymentMethodUPI,
		Status:      status,
		CreatedAt:   time.Now(),
	}
	if status == models.PaymentStatusPaid {
		now := time.Now()
		p.PaymentDate = &now
	}
	store.payments[p.ID] = p
	return p
}

func newTestCoordinator(store *fakeStore) (*Coordinator, *fakePublisher) {
	publisher := &fakePublisher{}
	return NewCoordinator(store, publisher), publisher
}

func TestUpdateStatusToPaidStampsDateAndMirrors(t *testing.T) {
	store := newFakeStore()
	coordinator, publisher := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPending, 750)

	updated, err := coordinator.UpdateStatus(context.Background(), seeded.ID, &UpdateStatusRequest{
		Status:        models.PaymentStatusPaid,
		TransactionID: "txn-123",
		Gateway:       "razorpay",
	})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, updated.Status)
	assert.NotNil(t, updated.PaymentDate, "entering paid stamps paymentDate")
	assert.Equal(t, "txn-123", updated.TransactionID)
	assert.Equal(t, "razorpay", updated.Gateway)

	assert.Equal(t, models.PaymentStatusPaid, store.payments[seeded.ID].Status)
	assert.Equal(t, models.PaymentStatusPaid, store.orderStatuses[seeded.OrderID], "order mirror updated")
	require.Len(t, publisher.statusChanged, 1)
	assert.Equal(t, "txn-123", publisher.statusChanged[0].TransactionID)
}

func TestUpdateStatusKeepsExplicitPaymentDate(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPending, 100)

	explicit := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	updated, err := coordinator.UpdateStatus(context.Background(), seeded.ID, &UpdateStatusRequest{
		Status:      models.PaymentStatusPaid,
		PaymentDate: &explicit,
	})
	require.NoError(t, err)
	assert.Equal(t, explicit, *updated.PaymentDate)
}

func TestUpdateStatusToFailedRecordsReason(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPending, 100)

	updated, err := coordinator.UpdateStatus(context.Background(), seeded.ID, &UpdateStatusRequest{
		Status:        models.PaymentStatusFailed,
		FailureReason: "card declined",
	})
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusFailed, updated.Status)
	assert.Equal(t, "card declined", updated.FailureReason)
	assert.Nil(t, updated.PaymentDate, "failed payment has no payment date")
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPending, 100)

	_, err := coordinator.UpdateStatus(context.Background(), seeded.ID, &UpdateStatusRequest{Status: "settled"})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	assert.Equal(t, apperr.CodeInvalidPaymentStatus, apperr.As(err).Code)
}

func TestUpdateStatusPaymentNotFound(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)

	_, err := coordinator.UpdateStatus(context.Background(), primitive.NewObjectID(), &UpdateStatusRequest{
		Status: models.PaymentStatusPaid,
	})
	require.Error(t, err)
	assert.Equal(t, apperr.CodePaymentNotFound, apperr.As(err).Code)
}

func TestRefundFull(t *testing.T) {
	store := newFakeStore()
	coordinator, publisher := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPaid, 500)

	refunded, err := coordinator.Refund(context.Background(), seeded.ID, &RefundRequest{Reason: "damaged in transit"})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusRefunded, refunded.Status, "full refund moves status to refunded")
	assert.Equal(t, 500.0, refunded.RefundAmount)
	assert.NotNil(t, refunded.RefundDate)
	assert.Equal(t, "damaged in transit", refunded.RefundReason)

	assert.Equal(t, models.PaymentStatusRefunded, store.orderStatuses[seeded.OrderID])
	require.Len(t, publisher.refunded, 1)
	assert.True(t, publisher.refunded[0].FullRefund)
}

func TestRefundPartialStaysPaid(t *testing.T) {
	store := newFakeStore()
	coordinator, publisher := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPaid, 500)

	amount := 200.0
	refunded, err := coordinator.Refund(context.Background(), seeded.ID, &RefundRequest{Amount: &amount})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentStatusPaid, refunded.Status, "partial refund keeps status at paid")
	assert.Equal(t, 200.0, refunded.RefundAmount)
	require.Len(t, publisher.refunded, 1)
	assert.False(t, publisher.refunded[0].FullRefund)
}

func TestRefundExceedsPayment(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPaid, 500)

	amount := 600.0
	_, err := coordinator.Refund(context.Background(), seeded.ID, &RefundRequest{Amount: &amount})
	require.Error(t, err)

	e := apperr.As(err)
	assert.Equal(t, apperr.CodeRefundExceedsPayment, e.Code)
	assert.Equal(t, 500.0, e.Details["paymentAmount"])
	assert.Equal(t, models.PaymentStatusPaid, store.payments[seeded.ID].Status, "payment unchanged")
}

func TestRefundNonPositiveAmount(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)
	seeded := seedPayment(store, models.PaymentStatusPaid, 500)

	amount := 0.0
	_, err := coordinator.Refund(context.Background(), seeded.ID, &RefundRequest{Amount: &amount})
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRefundRequiresPaidStatus(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)

	for _, status := range []models.PaymentStatus{
		models.PaymentStatusPending,
		models.PaymentStatusFailed,
		models.PaymentStatusCancelled,
		models.PaymentStatusRefunded,
	} {
		seeded := seedPayment(store, status, 500)
		_, err := coordinator.Refund(context.Background(), seeded.ID, &RefundRequest{})
		require.Error(t, err, "refund from %s must be rejected", status)
		assert.Equal(t, apperr.KindConflict, apperr.KindOf(err))
		assert.Equal(t, apperr.CodeInvalidState, apperr.As(err).Code)
	}
}

func TestListPaymentsRejectsUnknownFilters(t *testing.T) {
	store := newFakeStore()
	coordinator, _ := newTestCoordinator(store)

	_, err := coordinator.ListPayments(context.Background(), "settled", "", 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	_, err = coordinator.ListPayments(context.Background(), "", "wallet", 10)
	require.Error(t, err)
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}
