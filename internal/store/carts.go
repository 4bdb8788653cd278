package store

import (
	"context"
	"errors"
	"fmt"

	"checkout-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// FindCartByUser returns the user's cart, or nil when absent. Carts are
// created lazily by the cart service, so absence is not an error here.
func (s *Store) FindCartByUser(ctx context.Context, userID string) (*models.Cart, error) {
	var cart models.Cart
	err := s.carts.FindOne(ctx, bson.M{"userId": userID}).Decode(&cart)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cart: %w", err)
	}
	return &cart, nil
}

// DeleteCartByID deletes the exact cart document that was read at the start
// of checkout. Keying the delete on _id means a cart the cart service has
// since replaced is left alone. Returns whether a document was removed.
func (s *Store) DeleteCartByID(ctx context.Context, id primitive.ObjectID) (bool, error) {
	res, err := s.carts.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return false, fmt.Errorf("failed to delete cart: %w", err)
	}
	return res.DeletedCount > 0, nil
}
