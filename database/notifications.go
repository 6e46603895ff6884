package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// NotificationRepository is both the in-app inbox and the push outbox. A
// notification is pending push until pushedAt is set or it is skipped.
type NotificationRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

func NewNotificationRepository(db *mongo.Database) *NotificationRepository {
	return &NotificationRepository{coll: db.Collection(notificationsCollection), now: time.Now}
}

// Insert stores n. A second insert with the same event key is a no-op.
func (r *NotificationRepository) Insert(ctx context.Context, n *models.Notification) error {
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	now := r.now()
	n.CreatedAt = now
	n.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, n); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

func (r *NotificationRepository) ListForRecipient(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID, page, limit int) ([]models.Notification, int64, error) {
	filter := bson.M{"recipientKind": kind, "recipientId": id}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	defer cursor.Close(ctx)

	list := []models.Notification{}
	if err := cursor.All(ctx, &list); err != nil {
		return nil, 0, err
	}
	return list, total, nil
}

func (r *NotificationRepository) UnreadCount(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error) {
	return r.coll.CountDocuments(ctx, bson.M{"recipientKind": kind, "recipientId": id, "isRead": false})
}

// MarkRead flags one notification as read if it belongs to the recipient.
func (r *NotificationRepository) MarkRead(ctx context.Context, kind models.RecipientKind, recipientID, id primitive.ObjectID) (*models.Notification, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var n models.Notification
	err := r.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "recipientKind": kind, "recipientId": recipientID},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": r.now()}},
		opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error) {
	res, err := r.coll.UpdateMany(ctx,
		bson.M{"recipientKind": kind, "recipientId": id, "isRead": false},
		bson.M{"$set": bson.M{"isRead": true, "updatedAt": r.now()}})
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount, nil
}

// Lease claims the oldest notification still waiting for push, hiding it from
// other workers until the lease runs out. It returns nil when nothing is due.
func (r *NotificationRepository) Lease(ctx context.Context, now time.Time, lease time.Duration, maxAttempts int) (*models.Notification, error) {
	filter := bson.M{
		"pushedAt":     bson.M{"$exists": false},
		"pushSkipped":  bson.M{"$ne": true},
		"pushAttempts": bson.M{"$lt": maxAttempts},
		"$or": bson.A{
			bson.M{"leaseUntil": bson.M{"$exists": false}},
			bson.M{"leaseUntil": bson.M{"$lte": now}},
		},
	}
	update := bson.M{
		"$set": bson.M{"leaseUntil": now.Add(lease)},
		"$inc": bson.M{"pushAttempts": 1},
	}
	opts := options.FindOneAndUpdate().
		SetSort(bson.D{{Key: "createdAt", Value: 1}}).
		SetReturnDocument(options.After)

	var n models.Notification
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&n)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (r *NotificationRepository) MarkPushed(ctx context.Context, id primitive.ObjectID, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"pushedAt": at, "updatedAt": at},
		"$unset": bson.M{"leaseUntil": "", "lastError": ""},
	})
	return err
}

func (r *NotificationRepository) MarkSkipped(ctx context.Context, id primitive.ObjectID, reason string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set":   bson.M{"pushSkipped": true, "lastError": reason, "updatedAt": r.now()},
		"$unset": bson.M{"leaseUntil": ""},
	})
	return err
}

// MarkFailed records the error. The lease is left to run out, which spaces
// out the retries.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"lastError": reason, "updatedAt": r.now()},
	})
	return err
}

// DeviceDirectory resolves push tokens for both kinds of recipient.
type DeviceDirectory struct {
	users   *UserRepository
	drivers *DriverRepository
}

func NewDeviceDirectory(users *UserRepository, drivers *DriverRepository) *DeviceDirectory {
	return &DeviceDirectory{users: users, drivers: drivers}
}

func (d *DeviceDirectory) DeviceToken(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (string, error) {
	switch kind {
	case models.RecipientCustomer:
		return d.users.DeviceToken(ctx, id)
	case models.RecipientDriver:
		return d.drivers.DeviceToken(ctx, id)
	}
	return "", fmt.Errorf("unknown recipient kind %q", kind)
}
