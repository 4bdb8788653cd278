package store

import (
	"context"
	"fmt"
	"time"

	"checkout-service/internal/apperr"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

type Store struct {
	client   *mongo.Client
	items    *mongo.Collection
	carts    *mongo.Collection
	orders   *mongo.Collection
	payments *mongo.Collection
}

// NewStore connects to MongoDB and binds the collections.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	db := client.Database(database)
	return &Store{
		client:   client,
		items:    db.Collection("items"),
		carts:    db.Collection("carts"),
		orders:   db.Collection("orders"),
		payments: db.Collection("payments"),
	}, nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Health pings the backend with a short deadline. Operations call this before
// mutating so an unreachable backend surfaces as Unavailable up front instead
// of failing mid-sequence.
func (s *Store) Health(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	if err := s.client.Ping(pingCtx, readpref.Primary()); err != nil {
		return apperr.Unavailable(err, "storage backend unreachable")
	}
	return nil
}

// EnsureIndexes creates the indexes the consistency guarantees rely on:
// unique order numbers, unique idempotency keys, one cart per user.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.orders.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.M{"orderNumber": 1},
			Options: options.Index().SetUnique(true).SetName("unique_order_number"),
		},
		{
			Keys:    bson.M{"idempotencyKey": 1},
			Options: options.Index().SetUnique(true).SetSparse(true).SetName("unique_idempotency_key"),
		},
		{
			Keys:    bson.M{"userId": 1, "placedAt": -1},
			Options: options.Index().SetName("user_placed_at"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}

	_, err = s.carts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"userId": 1},
		Options: options.Index().SetUnique(true).SetName("unique_cart_per_user"),
	})
	if err != nil {
		return fmt.Errorf("failed to create cart index: %w", err)
	}

	_, err = s.payments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.M{"orderId": 1},
		Options: options.Index().SetName("payment_order_id"),
	})
	if err != nil {
		return fmt.Errorf("failed to create payment index: %w", err)
	}
	return nil
}
