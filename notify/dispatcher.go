package notify

import (
	"context"
	"errors"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/metrics"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	MaxPushAttempts = 5
	// PushLease hides a claimed notification from other workers. A failed
	// push is retried once its lease has run out.
	PushLease = 30 * time.Second
)

// Queue is the push side of the notification store.
type Queue interface {
	Lease(ctx context.Context, now time.Time, lease time.Duration, maxAttempts int) (*models.Notification, error)
	MarkPushed(ctx context.Context, id primitive.ObjectID, at time.Time) error
	MarkSkipped(ctx context.Context, id primitive.ObjectID, reason string) error
	MarkFailed(ctx context.Context, id primitive.ObjectID, reason string) error
}

type Devices interface {
	DeviceToken(ctx context.Context, kind models.RecipientKind, id primitive.ObjectID) (string, error)
}

// Dispatcher pushes stored notifications to devices. Several dispatchers can
// share a queue; the lease keeps them off each other's work.
type Dispatcher struct {
	queue   Queue
	devices Devices
	sender  Sender
	now     func() time.Time
	logger  *zap.Logger
}

type DispatcherOption func(*Dispatcher)

func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) { d.now = now }
}

func NewDispatcher(queue Queue, devices Devices, sender Sender, logger *zap.Logger, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		queue:   queue,
		devices: devices,
		sender:  sender,
		now:     time.Now,
		logger:  logger.With(zap.String("component", "dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// RunOnce pushes up to batch notifications and reports how many went out.
func (d *Dispatcher) RunOnce(ctx context.Context, batch int) (int, error) {
	pushed := 0
	for i := 0; i < batch; i++ {
		if err := ctx.Err(); err != nil {
			return pushed, err
		}

		n, err := d.queue.Lease(ctx, d.now(), PushLease, MaxPushAttempts)
		if err != nil {
			return pushed, err
		}
		if n == nil {
			return pushed, nil
		}

		if d.push(ctx, n) {
			pushed++
		}
	}
	return pushed, nil
}

func (d *Dispatcher) push(ctx context.Context, n *models.Notification) bool {
	log := d.logger.With(zap.String("notificationId", n.ID.Hex()), zap.Int("attempt", n.PushAttempts))

	token, err := d.devices.DeviceToken(ctx, n.RecipientKind, n.RecipientID)
	if err != nil {
		d.fail(ctx, n, err, log)
		return false
	}
	if token == "" {
		d.skip(ctx, n, "recipient has no device token", log)
		return false
	}

	err = d.sender.Send(ctx, token, Message{
		Title: n.Title,
		Body:  n.Message,
		Data: map[string]string{
			"type":      string(n.Type),
			"relatedId": n.RelatedID,
		},
	})
	if errors.Is(err, ErrStaleToken) {
		d.skip(ctx, n, err.Error(), log)
		return false
	}
	if err != nil {
		d.fail(ctx, n, err, log)
		return false
	}

	if err := d.queue.MarkPushed(ctx, n.ID, d.now()); err != nil {
		log.Error("mark notification pushed", zap.Error(err))
	}
	metrics.NotificationPushes.WithLabelValues("pushed").Inc()
	return true
}

func (d *Dispatcher) skip(ctx context.Context, n *models.Notification, reason string, log *zap.Logger) {
	metrics.NotificationPushes.WithLabelValues("skipped").Inc()
	if err := d.queue.MarkSkipped(ctx, n.ID, reason); err != nil {
		log.Error("mark notification skipped", zap.Error(err))
	}
}

func (d *Dispatcher) fail(ctx context.Context, n *models.Notification, cause error, log *zap.Logger) {
	metrics.NotificationPushes.WithLabelValues("failed").Inc()
	if n.PushAttempts >= MaxPushAttempts {
		log.Warn("giving up on notification", zap.Error(cause))
	} else {
		log.Warn("push failed, will retry", zap.Error(cause))
	}
	if err := d.queue.MarkFailed(ctx, n.ID, cause.Error()); err != nil {
		log.Error("mark notification failed", zap.Error(err))
	}
}
