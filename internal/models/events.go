package models

import "time"

// Event types
const (
	EventTypeOrderPlaced          = "ORDER_PLACED"
	EventTypePaymentStatusChanged = "PAYMENT_STATUS_CHANGED"
	EventTypePaymentRefunded      = "PAYMENT_REFUNDED"
	EventTypeGatewayConfirmed     = "PAYMENT_CONFIRMED"
	EventTypeGatewayDeclined      = "PAYMENT_DECLINED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// OrderLineData represents line data in events
type OrderLineData struct {
	ItemID          string  `json:"item_id"`
	Quantity        int     `json:"quantity"`
	DiscountedPrice float64 `json:"discounted_price"`
}

// OrderPlacedEvent published when a checkout completes
type OrderPlacedEvent struct {
	BaseEvent
	OrderID       string          `json:"order_id"`
	OrderNumber   string          `json:"order_number"`
	UserID        string          `json:"user_id"`
	TotalAmount   float64         `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
	Lines         []OrderLineData `json:"lines"`
}

// PaymentStatusChangedEvent published when a payment status transition is applied
type PaymentStatusChangedEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	OrderID       string `json:"order_id"`
	OrderNumber   string `json:"order_number"`
	Status        string `json:"status"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// PaymentRefundedEvent published when a refund is recorded
type PaymentRefundedEvent struct {
	BaseEvent
	PaymentID    string  `json:"payment_id"`
	OrderID      string  `json:"order_id"`
	RefundAmount float64 `json:"refund_amount"`
	FullRefund   bool    `json:"full_refund"`
	Reason       string  `json:"reason,omitempty"`
}

// GatewayPaymentEvent is the inbound payment-gateway callback consumed by the
// worker. PAYMENT_CONFIRMED carries the transaction, PAYMENT_DECLINED a reason.
type GatewayPaymentEvent struct {
	BaseEvent
	PaymentID     string `json:"payment_id"`
	TransactionID string `json:"transaction_id,omitempty"`
	Gateway       string `json:"gateway,omitempty"`
	Reason        string `json:"reason,omitempty"`
}
