package pricing

import (
	"time"

	"checkout-service/internal/models"
)

// DiscountActive reports whether the item's discount applies at now.
// A non-positive discount is never active. A positive discount with either
// window bound missing is always active; otherwise the window is inclusive
// on both ends.
func DiscountActive(item models.Item, now time.Time) bool {
	if item.Discount <= 0 {
		return false
	}
	if item.DiscountStart == nil || item.DiscountEnd == nil {
		return true
	}
	return !now.Before(*item.DiscountStart) && !now.After(*item.DiscountEnd)
}

// EffectivePrice returns the unit price after any currently-active discount.
// No rounding; rounding is deferred to response shaping.
func EffectivePrice(item models.Item, now time.Time) float64 {
	if !DiscountActive(item, now) {
		return item.Price
	}
	return item.Price * (100 - item.Discount) / 100
}
