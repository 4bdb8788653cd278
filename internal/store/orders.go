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

// CreateOrder inserts a new order document.
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	if order.ID.IsZero() {
		order.ID = primitive.NewObjectID()
	}
	if _, err := s.orders.InsertOne(ctx, order); err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by id.
func (s *Store) GetOrderByID(ctx context.Context, id primitive.ObjectID) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"_id": id}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return &order, nil
}

// GetOrderByIdempotencyKey returns the order created under key, or nil when
// no checkout attempt with that key has completed.
func (s *Store) GetOrderByIdempotencyKey(ctx context.Context, key string) (*models.Order, error) {
	var order models.Order
	err := s.orders.FindOne(ctx, bson.M{"idempotencyKey": key}).Decode(&order)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check idempotency key: %w", err)
	}
	return &order, nil
}

// ListOrdersByUser retrieves a user's orders, newest first.
func (s *Store) ListOrdersByUser(ctx context.Context, userID string) ([]models.Order, error) {
	opts := options.Find().SetSort(bson.M{"placedAt": -1})
	cursor, err := s.orders.Find(ctx, bson.M{"userId": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// ListOrders retrieves orders across users, optionally filtered by status,
// newest first, capped at limit.
func (s *Store) ListOrders(ctx context.Context, status models.OrderStatus, limit int64) ([]models.Order, error) {
	filter := bson.M{}
	if status != "" {
		filter["orderStatus"] = status
	}

	opts := options.Find().SetSort(bson.M{"placedAt": -1}).SetLimit(limit)
	cursor, err := s.orders.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	defer cursor.Close(ctx)

	var orders []models.Order
	if err := cursor.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

// UpdateOrderStatus sets the order status; deliveredAt is recorded when the
// transition is into delivered.
func (s *Store) UpdateOrderStatus(ctx context.Context, id primitive.ObjectID, status models.OrderStatus, deliveredAt *time.Time) error {
	set := bson.M{"orderStatus": status, "updatedAt": time.Now()}
	if deliveredAt != nil {
		set["deliveredAt"] = *deliveredAt
	}

	res, err := s.orders.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	return nil
}

// UpdateOrderPaymentStatus mirrors the authoritative payment status onto the
// parent order for read convenience.
func (s *Store) UpdateOrderPaymentStatus(ctx context.Context, id primitive.ObjectID, status models.PaymentStatus) error {
	res, err := s.orders.UpdateOne(ctx, bson.M{"_id": id},
		bson.M{"$set": bson.M{"paymentStatus": status, "updatedAt": time.Now()}})
	if err != nil {
		return fmt.Errorf("failed to mirror payment status: %w", err)
	}
	if res.MatchedCount == 0 {
		return apperr.NotFound(apperr.CodeOrderNotFound, "order %s not found", id.Hex())
	}
	return nil
}
