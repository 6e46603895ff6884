package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	OrderStatusPending        OrderStatus = "pending"
	OrderStatusAssigned       OrderStatus = "assigned"
	OrderStatusAccepted       OrderStatus = "accepted"
	OrderStatusPickedUp       OrderStatus = "picked_up"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// ActiveStatuses are the statuses in which an order holds its driver.
var ActiveStatuses = []OrderStatus{
	OrderStatusAssigned,
	OrderStatusAccepted,
	OrderStatusPickedUp,
	OrderStatusOutForDelivery,
}

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusAssigned, OrderStatusAccepted, OrderStatusPickedUp,
		OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Milestone names the per-transition timestamp field on an order.
type Milestone string

const (
	MilestoneAssigned       Milestone = "assignedAt"
	MilestoneAccepted       Milestone = "acceptedAt"
	MilestoneRejected       Milestone = "rejectedAt"
	MilestonePickedUp       Milestone = "pickedUpAt"
	MilestoneOutForDelivery Milestone = "outForDeliveryAt"
	MilestoneDelivered      Milestone = "deliveredAt"
	MilestoneCancelled      Milestone = "cancelledAt"
)

type OrderItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
}

// Payout is the driver earning recorded when an order is delivered.
// SettledAt stays nil until the driver's wallet has been credited.
type Payout struct {
	Amount    float64    `bson:"amount" json:"amount"`
	SettledAt *time.Time `bson:"settledAt" json:"settledAt,omitempty"`
	// SettleAttempts counts failed credits; the sweep stops retrying once it
	// reaches the configured maximum.
	SettleAttempts int    `bson:"settleAttempts,omitempty" json:"settleAttempts,omitempty"`
	LastError      string `bson:"lastError,omitempty" json:"lastError,omitempty"`
}

type Order struct {
	ID              primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	OrderID         string              `bson:"orderId" json:"orderId"`
	UserID          primitive.ObjectID  `bson:"userId" json:"userId"`
	Items           []OrderItem         `bson:"items" json:"items"`
	TotalItems      int                 `bson:"totalItems" json:"totalItems"`
	SubTotal        float64             `bson:"subTotal" json:"subTotal"`
	ShippingCharge  float64             `bson:"shippingCharge" json:"shippingCharge"`
	TotalPrice      float64             `bson:"totalPrice" json:"totalPrice"`
	PaymentMethod   string              `bson:"paymentMethod" json:"paymentMethod"`
	ShippingAddress string              `bson:"shippingAddress" json:"shippingAddress"`
	Status          OrderStatus         `bson:"status" json:"status"`
	AssignedDriver  *primitive.ObjectID `bson:"assignedDriverId,omitempty" json:"assignedDriverId,omitempty"`

	AssignedAt       *time.Time `bson:"assignedAt,omitempty" json:"assignedAt,omitempty"`
	AcceptedAt       *time.Time `bson:"acceptedAt,omitempty" json:"acceptedAt,omitempty"`
	RejectedAt       *time.Time `bson:"rejectedAt,omitempty" json:"rejectedAt,omitempty"`
	PickedUpAt       *time.Time `bson:"pickedUpAt,omitempty" json:"pickedUpAt,omitempty"`
	OutForDeliveryAt *time.Time `bson:"outForDeliveryAt,omitempty" json:"outForDeliveryAt,omitempty"`
	DeliveredAt      *time.Time `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	CancelledAt      *time.Time `bson:"cancelledAt,omitempty" json:"cancelledAt,omitempty"`

	// DeliveryOTP holds the hex sha256 of the handoff code, never the code itself.
	DeliveryOTP  string     `bson:"deliveryOTP,omitempty" json:"-"`
	OTPExpiresAt *time.Time `bson:"otpExpiresAt,omitempty" json:"otpExpiresAt,omitempty"`
	OTPAttempts  int        `bson:"otpAttempts" json:"otpAttempts"`

	Payout *Payout `bson:"payout,omitempty" json:"payout,omitempty"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}

// Stamp records t into the timestamp field named by m.
func (o *Order) Stamp(m Milestone, t time.Time) {
	at := t
	switch m {
	case MilestoneAssigned:
		o.AssignedAt = &at
	case MilestoneAccepted:
		o.AcceptedAt = &at
	case MilestoneRejected:
		o.RejectedAt = &at
	case MilestonePickedUp:
		o.PickedUpAt = &at
	case MilestoneOutForDelivery:
		o.OutForDeliveryAt = &at
	case MilestoneDelivered:
		o.DeliveredAt = &at
	case MilestoneCancelled:
		o.CancelledAt = &at
	}
}

// MilestoneAt returns the timestamp recorded for m, or nil.
func (o *Order) MilestoneAt(m Milestone) *time.Time {
	switch m {
	case MilestoneAssigned:
		return o.AssignedAt
	case MilestoneAccepted:
		return o.AcceptedAt
	case MilestoneRejected:
		return o.RejectedAt
	case MilestonePickedUp:
		return o.PickedUpAt
	case MilestoneOutForDelivery:
		return o.OutForDeliveryAt
	case MilestoneDelivered:
		return o.DeliveredAt
	case MilestoneCancelled:
		return o.CancelledAt
	}
	return nil
}

// IsAssignedTo reports whether driverID currently holds the order.
func (o *Order) IsAssignedTo(driverID primitive.ObjectID) bool {
	return o.AssignedDriver != nil && *o.AssignedDriver == driverID
}
