package checkout

import (
	"strings"
	"time"

	"checkout-service/internal/apperr"
	"checkout-service/internal/models"
	"checkout-service/internal/pricing"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// newOrderNumber generates a human-readable, collision-resistant order
// number: an ORD prefix over an ObjectID, which is time-ordered and unique.
func newOrderNumber() string {
	return "ORD-" + strings.ToUpper(primitive.NewObjectID().Hex())
}

// validateShippingAddress checks that every required field is present.
// AddressLine2 is the only optional field.
func validateShippingAddress(addr models.ShippingAddress) error {
	required := map[string]string{
		"fullName":     addr.FullName,
		"phone":        addr.Phone,
		"email":        addr.Email,
		"addressLine1": addr.AddressLine1,
		"city":         addr.City,
		"state":        addr.State,
		"pincode":      addr.Pincode,
	}

	missing := make([]string, 0)
	for field, value := range required {
		if strings.TrimSpace(value) == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation(apperr.CodeInvalidShippingAddress,
			"shipping address is incomplete").WithDetails(map[string]interface{}{
			"missingFields": missing,
		})
	}
	return nil
}

// assembleOrder builds the order document from a priced quote: immutable
// line snapshots capturing title, prices, image and custom message at order
// time, so later item edits never alter the historical order.
func assembleOrder(userID string, quote *pricing.Quote, addr models.ShippingAddress, method models.PaymentMethod, notes, idempotencyKey string, now time.Time) (*models.Order, error) {
	if err := validateShippingAddress(addr); err != nil {
		return nil, err
	}
	if !method.Valid() {
		return nil, apperr.Validation(apperr.CodeInvalidPaymentMethod,
			"payment method %q is not supported", method)
	}

	lines := make([]models.OrderLine, 0, len(quote.Lines))
	for _, lq := range quote.Lines {
		lines = append(lines, models.OrderLine{
			ItemID:          lq.Item.ID,
			Title:           lq.Item.Title,
			Price:           lq.UnitPrice,
			DiscountedPrice: lq.EffectivePrice,
			Quantity:        lq.Quantity,
			CustomMessage:   lq.CustomMessage,
			Image:           lq.Item.Image,
		})
	}

	paymentStatus := models.PaymentStatusPaid
	if !method.Prepaid() {
		paymentStatus = models.PaymentStatusPending
	}

	return &models.Order{
		ID:              primitive.NewObjectID(),
		OrderNumber:     newOrderNumber(),
		UserID:          userID,
		Lines:           lines,
		ShippingAddress: addr,
		PaymentMethod:   method,
		OrderStatus:     models.OrderStatusPending,
		PaymentStatus:   paymentStatus,
		Subtotal:        quote.Subtotal,
		TotalDiscount:   quote.TotalDiscount,
		ShippingCharges: quote.ShippingCharges,
		TotalAmount:     quote.TotalAmount,
		Notes:           notes,
		IdempotencyKey:  idempotencyKey,
		PlacedAt:        now,
		UpdatedAt:       now,
	}, nil
}
