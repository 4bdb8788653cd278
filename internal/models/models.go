package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Item is a catalog item. This service reads it and decrements its stock;
// catalog management owns every other field.
type Item struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Title         string             `bson:"title" json:"title"`
	Price         float64            `bson:"price" json:"price"`
	Stock         int                `bson:"stock" json:"stock"`
	Discount      float64            `bson:"discount" json:"discount"`
	DiscountStart *time.Time         `bson:"discountStart,omitempty" json:"discountStart,omitempty"`
	DiscountEnd   *time.Time         `bson:"discountEnd,omitempty" json:"discountEnd,omitempty"`
	Image         string             `bson:"image,omitempty" json:"image,omitempty"`
	ImageType     string             `bson:"imageType,omitempty" json:"imageType,omitempty"`
	IsActive      bool               `bson:"isActive" json:"isActive"`
}

// CartLine is one item-quantity entry in a cart.
type CartLine struct {
	ItemID        primitive.ObjectID `bson:"itemId" json:"itemId"`
	Quantity      int                `bson:"quantity" json:"quantity"`
	CustomMessage string             `bson:"customMessage,omitempty" json:"customMessage,omitempty"`
	AddedAt       time.Time          `bson:"addedAt" json:"addedAt"`
}

// Cart is owned by the cart service, one document per user. Checkout reads it
// and deletes it on successful order placement.
type Cart struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"userId" json:"userId"`
	Lines     []CartLine         `bson:"lines" json:"lines"`
	UpdatedAt time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ShippingAddress is captured on the order at placement time.
type ShippingAddress struct {
	FullName     string `bson:"fullName" json:"fullName"`
	Phone        string `bson:"phone" json:"phone"`
	Email        string `bson:"email" json:"email"`
	AddressLine1 string `bson:"addressLine1" json:"addressLine1"`
	AddressLine2 string `bson:"addressLine2,omitempty" json:"addressLine2,omitempty"`
	City         string `bson:"city" json:"city"`
	State        string `bson:"state" json:"state"`
	Pincode      string `bson:"pincode" json:"pincode"`
}

// OrderLine is the immutable snapshot of a cart line at order time. Later
// item edits never alter it.
type OrderLine struct {
	ItemID          primitive.ObjectID `bson:"itemId" json:"itemId"`
	Title           string             `bson:"title" json:"title"`
	Price           float64            `bson:"price" json:"price"`
	DiscountedPrice float64            `bson:"discountedPrice" json:"discountedPrice"`
	Quantity        int                `bson:"quantity" json:"quantity"`
	CustomMessage   string             `bson:"customMessage,omitempty" json:"customMessage,omitempty"`
	Image           string             `bson:"image,omitempty" json:"image,omitempty"`
}

// Order is created exactly once per successful checkout. Immutable afterwards
// except orderStatus, paymentStatus and deliveredAt.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderNumber     string             `bson:"orderNumber" json:"orderNumber"`
	UserID          string             `bson:"userId" json:"userId"`
	Lines           []OrderLine        `bson:"lines" json:"lines"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	OrderStatus     OrderStatus        `bson:"orderStatus" json:"orderStatus"`
	PaymentStatus   PaymentStatus      `bson:"paymentStatus" json:"paymentStatus"`
	Subtotal        float64            `bson:"subtotal" json:"subtotal"`
	TotalDiscount   float64            `bson:"totalDiscount" json:"totalDiscount"`
	ShippingCharges float64            `bson:"shippingCharges" json:"shippingCharges"`
	TotalAmount     float64            `bson:"totalAmount" json:"totalAmount"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	IdempotencyKey  string             `bson:"idempotencyKey,omitempty" json:"-"`
	PlacedAt        time.Time          `bson:"placedAt" json:"placedAt"`
	DeliveredAt     *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Payment is 1:1 with an order and never deleted. Payment owns the
// authoritative payment status; the order's field is a mirrored copy.
type Payment struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	OrderID         primitive.ObjectID `bson:"orderId" json:"orderId"`
	OrderNumber     string             `bson:"orderNumber" json:"orderNumber"`
	UserID          string             `bson:"userId" json:"userId"`
	Amount          float64            `bson:"amount" json:"amount"`
	Currency        string             `bson:"currency" json:"currency"`
	Method          PaymentMethod      `bson:"method" json:"method"`
	Status          PaymentStatus      `bson:"status" json:"status"`
	TransactionID   string             `bson:"transactionId,omitempty" json:"transactionId,omitempty"`
	Gateway         string             `bson:"gateway,omitempty" json:"gateway,omitempty"`
	PaymentDate     *time.Time         `bson:"paymentDate,omitempty" json:"paymentDate,omitempty"`
	FailureReason   string             `bson:"failureReason,omitempty" json:"failureReason,omitempty"`
	RefundAmount    float64            `bson:"refundAmount,omitempty" json:"refundAmount,omitempty"`
	RefundDate      *time.Time         `bson:"refundDate,omitempty" json:"refundDate,omitempty"`
	RefundReason    string             `bson:"refundReason,omitempty" json:"refundReason,omitempty"`
	GatewayResponse bson.M             `bson:"gatewayResponse,omitempty" json:"gatewayResponse,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OrderStatus state machine:
// pending -> confirmed -> processing -> shipped -> delivered, with cancelled
// reachable from any non-terminal state.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusProcessing,
		OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed from s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether s -> next is a legal transition.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus state machine:
// pending -> paid -> refunded; failed and cancelled reachable from pending.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusPaid      PaymentStatus = "paid"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed,
		PaymentStatusRefunded, PaymentStatusCancelled:
		return true
	}
	return false
}

// PaymentMethod is how the order is paid for.
type PaymentMethod string

const (
	PaymentMethodCOD    PaymentMethod = "cod"
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodUPI    PaymentMethod = "upi"
	PaymentMethodCard   PaymentMethod = "card"
)

// Valid reports whether m is one of the accepted payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCOD, PaymentMethodOnline, PaymentMethodUPI, PaymentMethodCard:
		return true
	}
	return false
}

// Prepaid reports whether the method is settled before delivery.
func (m PaymentMethod) Prepaid() bool {
	return m != PaymentMethodCOD
}
