package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Notifications is an in-memory inbox and push queue.
type Notifications struct {
	mu    sync.Mutex
	items []*models.Notification
	now   func() time.Time
}

func NewNotifications() *Notifications {
	return &Notifications{now: time.Now}
}

// All returns copies of every stored notification in insertion order.
func (s *Notifications) All() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Notification, 0, len(s.items))
	for _, n := range s.items {
		out = append(out, *n)
	}
	return out
}

func (s *Notifications) Insert(_ context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n.EventKey != "" {
		for _, existing := range s.items {
			if existing.EventKey == n.EventKey {
				return nil
			}
		}
	}
	if n.ID.IsZero() {
		n.ID = primitive.NewObjectID()
	}
	now := s.now()
	n.CreatedAt = now
	n.UpdatedAt = now
	c := *n
	s.items = append(s.items, &c)
	return nil
}

func (s *Notifications) ListForRecipient(_ context.Context, kind models.RecipientKind, id primitive.ObjectID, page, limit int) ([]models.Notification, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mine := []models.Notification{}
	for _, n := range s.items {
		if n.RecipientKind == kind && n.RecipientID == id {
			mine = append(mine, *n)
		}
	}
	sort.SliceStable(mine, func(i, j int) bool { return mine[i].CreatedAt.After(mine[j].CreatedAt) })

	total := int64(len(mine))
	start := (page - 1) * limit
	if start >= len(mine) {
		return []models.Notification{}, total, nil
	}
	end := start + limit
	if end > len(mine) {
		end = len(mine)
	}
	return mine[start:end], total, nil
}

func (s *Notifications) UnreadCount(_ context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.RecipientKind == kind && item.RecipientID == id && !item.IsRead {
			n++
		}
	}
	return n, nil
}

func (s *Notifications) MarkRead(_ context.Context, kind models.RecipientKind, recipientID, id primitive.ObjectID) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id && item.RecipientKind == kind && item.RecipientID == recipientID {
			item.IsRead = true
			c := *item
			return &c, nil
		}
	}
	return nil, nil
}

func (s *Notifications) MarkAllRead(_ context.Context, kind models.RecipientKind, id primitive.ObjectID) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for _, item := range s.items {
		if item.RecipientKind == kind && item.RecipientID == id && !item.IsRead {
			item.IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Notifications) Lease(_ context.Context, now time.Time, lease time.Duration, maxAttempts int) (*models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.PushedAt != nil || item.PushSkipped || item.PushAttempts >= maxAttempts {
			continue
		}
		if item.LeaseUntil != nil && item.LeaseUntil.After(now) {
			continue
		}
		until := now.Add(lease)
		item.LeaseUntil = &until
		item.PushAttempts++
		c := *item
		return &c, nil
	}
	return nil, nil
}

func (s *Notifications) MarkPushed(_ context.Context, id primitive.ObjectID, at time.Time) error {
	s.update(id, func(n *models.Notification) {
		n.PushedAt = &at
		n.LeaseUntil = nil
		n.LastError = ""
	})
	return nil
}

func (s *Notifications) MarkSkipped(_ context.Context, id primitive.ObjectID, reason string) error {
	s.update(id, func(n *models.Notification) {
		n.PushSkipped = true
		n.LastError = reason
		n.LeaseUntil = nil
	})
	return nil
}

func (s *Notifications) MarkFailed(_ context.Context, id primitive.ObjectID, reason string) error {
	s.update(id, func(n *models.Notification) {
		n.LastError = reason
	})
	return nil
}

func (s *Notifications) update(id primitive.ObjectID, fn func(*models.Notification)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.ID == id {
			fn(item)
			return
		}
	}
}

// Devices maps recipients to push tokens.
type Devices struct {
	mu     sync.Mutex
	tokens map[primitive.ObjectID]string
	Err    error
}

func NewDevices() *Devices {
	return &Devices{tokens: map[primitive.ObjectID]string{}}
}

func (d *Devices) Set(id primitive.ObjectID, token string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[id] = token
}

func (d *Devices) DeviceToken(_ context.Context, _ models.RecipientKind, id primitive.ObjectID) (string, error) {
	if d.Err != nil {
		return "", d.Err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tokens[id], nil
}
