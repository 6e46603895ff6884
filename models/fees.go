package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const DefaultBaseDriverFare = 10.0

// Convenience is the singleton fee record read when a delivery is confirmed.
type Convenience struct {
	ID             primitive.ObjectID  `bson:"_id,omitempty" json:"id"`
	BaseDriverFare float64             `bson:"baseDriverFare" json:"baseDriverFare"`
	PerKmRate      float64             `bson:"perKmRate" json:"perKmRate"`
	LastUpdatedBy  *primitive.ObjectID `bson:"lastUpdatedBy,omitempty" json:"lastUpdatedBy,omitempty"`
	CreatedAt      time.Time           `bson:"createdAt" json:"createdAt"`
	UpdatedAt      time.Time           `bson:"updatedAt" json:"updatedAt"`
}

// Shipping is the singleton checkout shipping rule.
type Shipping struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	ShippingCharge    float64            `bson:"shippingCharge" json:"shippingCharge"`
	FreeShippingAbove float64            `bson:"freeShippingAbove" json:"freeShippingAbove"`
	UpdatedAt         time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// ChargeFor returns the shipping charge applied to an order subtotal.
func (s *Shipping) ChargeFor(subTotal float64) float64 {
	if s == nil {
		return 0
	}
	if s.FreeShippingAbove > 0 && subTotal >= s.FreeShippingAbove {
		return 0
	}
	return s.ShippingCharge
}
