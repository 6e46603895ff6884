package notify

import (
	"context"
	"fmt"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
)

// Store is where notifications land. Insert must ignore a repeated event key.
type Store interface {
	Insert(ctx context.Context, n *models.Notification) error
}

// Outbox turns committed order transitions into stored notifications. Push
// delivery happens later, from the Dispatcher.
type Outbox struct {
	store Store
}

func NewOutbox(store Store) *Outbox {
	return &Outbox{store: store}
}

var _ delivery.Publisher = (*Outbox)(nil)

func (o *Outbox) Publish(ctx context.Context, ev delivery.StatusChanged) error {
	title, message := customerText(ev)
	if title != "" {
		if err := o.store.Insert(ctx, &models.Notification{
			EventKey:      ev.EventID + ":" + string(models.RecipientCustomer),
			RecipientID:   ev.CustomerID,
			RecipientKind: models.RecipientCustomer,
			Title:         title,
			Message:       message,
			Type:          models.NotificationOrder,
			RelatedID:     ev.OrderRef.Hex(),
		}); err != nil {
			return fmt.Errorf("store customer notification for %s: %w", ev.OrderID, err)
		}
	}

	if ev.To == models.OrderStatusAssigned && ev.DriverID != nil {
		if err := o.store.Insert(ctx, &models.Notification{
			EventKey:      ev.EventID + ":" + string(models.RecipientDriver),
			RecipientID:   *ev.DriverID,
			RecipientKind: models.RecipientDriver,
			Title:         "New order assigned",
			Message:       fmt.Sprintf("Order %s has been assigned to you. Accept or reject it.", ev.OrderID),
			Type:          models.NotificationDelivery,
			RelatedID:     ev.OrderRef.Hex(),
		}); err != nil {
			return fmt.Errorf("store driver notification for %s: %w", ev.OrderID, err)
		}
	}
	return nil
}

// OrderPlaced writes the checkout confirmation.
func (o *Outbox) OrderPlaced(ctx context.Context, order *models.Order) error {
	return o.store.Insert(ctx, &models.Notification{
		EventKey:      "placed:" + order.OrderID,
		RecipientID:   order.UserID,
		RecipientKind: models.RecipientCustomer,
		Title:         "Order placed",
		Message:       fmt.Sprintf("Your order %s has been placed successfully.", order.OrderID),
		Type:          models.NotificationOrder,
		RelatedID:     order.ID.Hex(),
	})
}

func customerText(ev delivery.StatusChanged) (string, string) {
	switch ev.To {
	case models.OrderStatusAssigned:
		return "Driver assigned", fmt.Sprintf("A delivery partner has been assigned to your order %s.", ev.OrderID)
	case models.OrderStatusAccepted:
		return "Order accepted", fmt.Sprintf("Your order %s has been accepted by the delivery partner.", ev.OrderID)
	case models.OrderStatusPending:
		if ev.From == models.OrderStatusAssigned {
			return "Finding a new driver", fmt.Sprintf("We are finding another delivery partner for your order %s.", ev.OrderID)
		}
	case models.OrderStatusPickedUp:
		return "Order picked up", fmt.Sprintf("Your order %s has been picked up.", ev.OrderID)
	case models.OrderStatusOutForDelivery:
		return "Out for delivery", fmt.Sprintf(
			"Your order %s is out for delivery. Share code %s with the delivery partner to receive it.", ev.OrderID, ev.Code)
	case models.OrderStatusDelivered:
		return "Order delivered", fmt.Sprintf("Your order %s has been delivered.", ev.OrderID)
	case models.OrderStatusCancelled:
		return "Order cancelled", fmt.Sprintf("Your order %s has been cancelled.", ev.OrderID)
	}
	return "", ""
}
