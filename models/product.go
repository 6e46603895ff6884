package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type Product struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Name          string             `bson:"name" json:"name"`
	Description   string             `bson:"description" json:"description"`
	Category      string             `bson:"category,omitempty" json:"category,omitempty"`
	Unit          string             `bson:"unit,omitempty" json:"unit,omitempty"`
	CurrentPrice  float64            `bson:"currentPrice" json:"currentPrice"`
	OriginalPrice float64            `bson:"originalPrice" json:"originalPrice"`
	Images        []string           `bson:"images" json:"images"`
	Stock         int                `bson:"stock" json:"stock"`
	CreatedAt     time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt     time.Time          `bson:"updatedAt" json:"updatedAt"`
}

type CartItem struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Quantity  int                `bson:"quantity" json:"quantity"`
	Price     float64            `bson:"price" json:"price"`
	AddedAt   time.Time          `bson:"addedAt" json:"addedAt"`
}

type Cart struct {
	ID         primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID     primitive.ObjectID `bson:"userId" json:"userId"`
	Items      []CartItem         `bson:"items" json:"items"`
	TotalItems int                `bson:"totalItems" json:"totalItems"`
	TotalPrice float64            `bson:"totalPrice" json:"totalPrice"`
	CreatedAt  time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt  time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// Recalculate refreshes the cart totals from its items.
func (c *Cart) Recalculate() {
	c.TotalItems = 0
	c.TotalPrice = 0
	for _, it := range c.Items {
		c.TotalItems += it.Quantity
		c.TotalPrice += it.Price * float64(it.Quantity)
	}
}
