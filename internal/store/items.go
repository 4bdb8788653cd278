package store

import (
	"context"
	"fmt"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// FindItemsByIDs resolves catalog items by id. Missing ids are simply absent
// from the result; callers decide whether that is an error.
func (s *Store) FindItemsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Item, error) {
	if len(ids) == 0 {
		return []models.Item{}, nil
	}

	cursor, err := s.items.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("failed to find items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.Item
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode items: %w", err)
	}
	return items, nil
}

// DecrementStock atomically decrements an item's stock, guarded at the
// storage layer so stock never goes negative: the update only matches when
// stock >= qty. Distinguishes a missing item from insufficient stock.
func (s *Store) DecrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error {
	res, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID, "stock": bson.M{"$gte": qty}},
		bson.M{"$inc": bson.M{"stock": -qty}})
	if err != nil {
		return fmt.Errorf("failed to decrement stock: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	var item models.Item
	err = s.items.FindOne(ctx, bson.M{"_id": itemID}).Decode(&item)
	if err != nil {
		return apperr.NotFound(apperr.CodeItemNotFound, "item %s is not available", itemID.Hex())
	}
	return apperr.Conflict(apperr.CodeInsufficientStock,
		"insufficient stock for %q", item.Title).WithDetails(map[string]interface{}{
		"itemId":    itemID.Hex(),
		"requested": qty,
		"available": item.Stock,
	})
}

// IncrementStock restores stock, used to compensate decrements when a later
// line of the same checkout fails.
func (s *Store) IncrementStock(ctx context.Context, itemID primitive.ObjectID, qty int) error {
	_, err := s.items.UpdateOne(ctx,
		bson.M{"_id": itemID},
		bson.M{"$inc": bson.M{"stock": qty}})
	if err != nil {
		return fmt.Errorf("failed to restore stock: %w", err)
	}
	return nil
}
