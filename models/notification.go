package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type NotificationType string

const (
	NotificationOrder    NotificationType = "order"
	NotificationDelivery NotificationType = "delivery"
	NotificationSystem   NotificationType = "system"
)

type RecipientKind string

const (
	RecipientCustomer RecipientKind = "customer"
	RecipientDriver   RecipientKind = "driver"
)

type Notification struct {
	ID            primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	EventKey      string             `bson:"eventKey,omitempty" json:"-"`
	RecipientID   primitive.ObjectID `bson:"recipientId" json:"recipientId"`
	RecipientKind RecipientKind      `bson:"recipientKind" json:"recipientKind"`
	Title         string             `bson:"title" json:"title"`
	Message       string             `bson:"message" json:"message"`
	Type          NotificationType   `bson:"type" json:"type"`
	RelatedID     string             `bson:"relatedId,omitempty" json:"relatedId,omitempty"`
	IsRead        bool               `bson:"isRead" json:"isRead"`

	// push bookkeeping, owned by the dispatch job
	PushedAt     *time.Time `bson:"pushedAt,omitempty" json:"-"`
	PushSkipped  bool       `bson:"pushSkipped,omitempty" json:"-"`
	PushAttempts int        `bson:"pushAttempts" json:"-"`
	LastError    string     `bson:"lastError,omitempty" json:"-"`
	LeaseUntil   *time.Time `bson:"leaseUntil,omitempty" json:"-"`

	CreatedAt time.Time `bson:"createdAt" json:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt" json:"updatedAt"`
}
