package delivery

import (
	"context"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// StatusChanged is emitted after an order transition has been committed.
type StatusChanged struct {
	EventID    string
	OrderID    string
	OrderRef   primitive.ObjectID
	CustomerID primitive.ObjectID
	DriverID   *primitive.ObjectID
	From       models.OrderStatus
	To         models.OrderStatus
	At         time.Time
	// Code is the plaintext delivery code, set only on out_for_delivery.
	Code string
}

// Publisher hands committed transitions to the notification side. It must
// not block for long and its failure never undoes a transition.
type Publisher interface {
	Publish(ctx context.Context, ev StatusChanged) error
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, StatusChanged) error { return nil }
