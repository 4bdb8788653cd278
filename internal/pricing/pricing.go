package pricing

import (
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// ShippingPolicy is the flat-fee shipping rule: free at or above the
// threshold, a fixed fee below it.
type ShippingPolicy struct {
	FreeThreshold float64
	Fee           float64
}

// Charge returns the shipping charge for a subtotal.
func (p ShippingPolicy) Charge(subtotal float64) float64 {
	if subtotal >= p.FreeThreshold {
		return 0
	}
	return p.Fee
}

// LineQuote is the priced result for one cart line.
type LineQuote struct {
	Item           models.Item
	Quantity       int
	CustomMessage  string
	UnitPrice      float64
	EffectivePrice float64
	LineTotal      float64
	LineDiscount   float64
}

// Quote is the priced result for a whole cart.
type Quote struct {
	Lines           []LineQuote
	Subtotal        float64
	TotalDiscount   float64
	ShippingCharges float64
	TotalAmount     float64
}

// Compute prices every cart line against the resolved items and applies the
// shipping policy. It fails fast, before any persistence: ItemNotFound when a
// referenced item is unresolved or not active for sale, InsufficientStock when
// any line exceeds available stock.
func Compute(lines []models.CartLine, items map[primitive.ObjectID]models.Item, policy ShippingPolicy, now time.Time) (*Quote, error) {
	quote := &Quote{Lines: make([]LineQuote, 0, len(lines))}

	for _, line := range lines {
		item, ok := items[line.ItemID]
		if !ok || !item.IsActive {
			return nil, apperr.NotFound(apperr.CodeItemNotFound,
				"item %s is not available", line.ItemID.Hex())
		}
		if item.Stock < line.Quantity {
			return nil, apperr.Conflict(apperr.CodeInsufficientStock,
				"insufficient stock for %q", item.Title).WithDetails(map[string]interface{}{
				"itemId":    item.ID.Hex(),
				"requested": line.Quantity,
				"available": item.Stock,
			})
		}

		effective := EffectivePrice(item, now)
		lq := LineQuote{
			Item:           item,
			Quantity:       line.Quantity,
			CustomMessage:  line.CustomMessage,
			UnitPrice:      item.Price,
			EffectivePrice: effective,
			LineTotal:      effective * float64(line.Quantity),
			LineDiscount:   (item.Price - effective) * float64(line.Quantity),
		}
		quote.Lines = append(quote.Lines, lq)
		quote.Subtotal += lq.LineTotal
		quote.TotalDiscount += lq.LineDiscount
	}

	quote.ShippingCharges = policy.Charge(quote.Subtotal)
	quote.TotalAmount = quote.Subtotal + quote.ShippingCharges
	return quote, nil
}
