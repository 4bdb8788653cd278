package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CreatePayment inserts a new payment document.
func (s *Store) CreatePayment(ctx context.Context, payment *models.Payment) error {
	if payment.ID.IsZero() {
		payment.ID = primitive.NewObjectID()
	}
	if _, err := s.payments.InsertOne(ctx, payment); err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// GetPaymentByID retrieves a payment by id.
func (s *Store) GetPaymentByID(ctx context.Context, id primitive.ObjectID) (*models.Payment, error) {
	var payment models.Payment
	err := s.payments.FindOne(ctx, bson.M{"_id": id}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// GetPaymentByOrderID retrieves the payment for an order.
func (s *Store) GetPaymentByOrderID(ctx context.Context, orderID primitive.ObjectID) (*models.Payment, error) {
	var payment models.Payment
	err := s.payments.FindOne(ctx, bson.M{"orderId": orderID}).Decode(&payment)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(apperr.CodePaymentNotFound,
			"payment for order %s not found", orderID.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load payment: %w", err)
	}
	return &payment, nil
}

// ListPaymentsByUser retrieves a user's payments, newest first.
func (s *Store) ListPaymentsByUser(ctx context.Context, userID string) ([]models.Payment, error) {
	opts := options.Find().SetSort(bson.M{"createdAt": -1})
	cursor, err := s.payments.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}

// ListPayments retrieves payments across users, optionally filtered by status
// and method, newest first, capped at limit.
func (s *Store) ListPayments(ctx context.Context, status models.PaymentStatus, method models.PaymentMethod, limit int64) ([]models.Payment, error) {
	filter := bson.M{}
	if status != "" {
		filter["status"] = status
	}
	if method != "" {
		filter["method"] = method
	}

	opts := options.Find().SetSort(bson.M{"createdAt": -1}).SetLimit(limit)
	cursor, err := s.payments.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer cursor.Close(ctx)

	var payments []models.Payment
	if err := cursor.All(ctx, &payments); err != nil {
		return nil, fmt.Errorf("failed to decode payments: %w", err)
	}
	return payments, nil
}

// UpdatePayment persists the mutable payment fields. Payments are never
// deleted; status history lives in the gateway response payload.
func (s *Store) UpdatePayment(ctx context.Context, payment *models.Payment) error {
	payment.UpdatedAt = time.Now()

	set := bson.M{
		"status":    payment.Status,
		"updatedAt": payment.UpdatedAt,
	}
	if payment.TransactionID != "" {
		set["transactionId"] = payment.TransactionID
	}
	if payment.Gateway != "" {
		set["gateway"] = payment.Gateway
	}
	if payment.PaymentDate != nil {
		set["paymentDate"] = *payment.PaymentDate
	}
	if payment.FailureReason != "" {
		set["failureReason"] = payment.FailureReason
	}
	if payment.RefundAmount > 0 {
		set["refundAmount"] = payment.RefundAmount
	}
	if payment.RefundDate != nil {
		set["refundDate"] = *payment.RefundDate
	}
	if payment.RefundReason != "" {
		set["refundReason"] = payment.RefundReason
	}
	if payment.GatewayResponse != nil {
		set["gatewayResponse"] = payment.GatewayResponse
	}

	res, err := s.payments.UpdateOne(ctx, bson.M{"_id": payment.ID}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(apperr.CodePaymentNotFound, "payment %s not found", payment.ID.Hex())
	}
	return nil
}
