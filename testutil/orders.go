package testutil

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Orders is an in-memory order store with the same compare-and-set
// behaviour as the Mongo repository.
type Orders struct {
	mu     sync.Mutex
	orders map[string]*models.Order

	// BeforeUpdate runs ahead of every UpdateIf; a non-nil error is returned
	// as the store error. Tests use it to interleave writers.
	BeforeUpdate func(cond delivery.OrderCondition) error
}

func NewOrders() *Orders {
	return &Orders{orders: map[string]*models.Order{}}
}

// Put stores a copy of o, replacing any order with the same OrderID.
func (s *Orders) Put(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o.ID.IsZero() {
		o.ID = primitive.NewObjectID()
	}
	s.orders[o.OrderID] = cloneOrder(&o)
}

// Get returns a copy of the stored order.
func (s *Orders) Get(orderID string) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[orderID]
	if !ok {
		return nil
	}
	return cloneOrder(o)
}

func (s *Orders) Insert(_ context.Context, o *models.Order) error {
	s.Put(*o)
	return nil
}

func (s *Orders) FindByOrderID(_ context.Context, orderID string) (*models.Order, error) {
	return s.Get(orderID), nil
}

func (s *Orders) UpdateIf(_ context.Context, cond delivery.OrderCondition, patch delivery.OrderPatch) (*models.Order, error) {
	if s.BeforeUpdate != nil {
		if err := s.BeforeUpdate(cond); err != nil {
			return nil, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[cond.OrderID]
	if !ok || !cond.Matches(o) {
		return nil, nil
	}
	patch.Apply(o)
	return cloneOrder(o), nil
}

func (s *Orders) ListForDriver(_ context.Context, driverID primitive.ObjectID, statuses []models.OrderStatus, sortBy models.Milestone) ([]models.Order, error) {
	return s.list(func(o *models.Order) bool {
		return o.IsAssignedTo(driverID) && hasStatus(statuses, o.Status)
	}, func(o *models.Order) time.Time {
		if at := o.MilestoneAt(sortBy); at != nil {
			return *at
		}
		return time.Time{}
	}), nil
}

func (s *Orders) ListForCustomer(_ context.Context, customerID primitive.ObjectID, status models.OrderStatus) ([]models.Order, error) {
	return s.list(func(o *models.Order) bool {
		return o.UserID == customerID && (status == "" || o.Status == status)
	}, createdAt), nil
}

func (s *Orders) ListByStatus(_ context.Context, status models.OrderStatus, limit int) ([]models.Order, error) {
	out := s.list(func(o *models.Order) bool {
		return status == "" || o.Status == status
	}, createdAt)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Orders) ListUnsettled(_ context.Context, maxAttempts, limit int) ([]models.Order, error) {
	out := s.list(func(o *models.Order) bool {
		if o.Status != models.OrderStatusDelivered || o.Payout == nil || o.Payout.SettledAt != nil {
			return false
		}
		return maxAttempts <= 0 || o.Payout.SettleAttempts < maxAttempts
	}, createdAt)
	sort.SliceStable(out, func(i, j int) bool {
		if a, b := out[i].Payout.SettleAttempts, out[j].Payout.SettleAttempts; a != b {
			return a < b
		}
		return deliveredAt(&out[i]).Before(deliveredAt(&out[j]))
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Orders) MarkSettled(_ context.Context, orderID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok && o.Payout != nil && o.Payout.SettledAt == nil {
		settled := at
		o.Payout.SettledAt = &settled
	}
	return nil
}

func (s *Orders) RecordSettleFailure(_ context.Context, orderID, reason string, _ time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if o, ok := s.orders[orderID]; ok && o.Payout != nil && o.Payout.SettledAt == nil {
		o.Payout.SettleAttempts++
		o.Payout.LastError = reason
	}
	return nil
}

func (s *Orders) list(keep func(*models.Order) bool, key func(*models.Order) time.Time) []models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Order{}
	for _, o := range s.orders {
		if keep(o) {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return key(&out[i]).After(key(&out[j]))
	})
	return out
}

func createdAt(o *models.Order) time.Time { return o.CreatedAt }

func deliveredAt(o *models.Order) time.Time {
	if o.DeliveredAt == nil {
		return time.Time{}
	}
	return *o.DeliveredAt
}

func hasStatus(statuses []models.OrderStatus, s models.OrderStatus) bool {
	if len(statuses) == 0 {
		return true
	}
	for _, want := range statuses {
		if want == s {
			return true
		}
	}
	return false
}

func cloneOrder(o *models.Order) *models.Order {
	c := *o
	c.Items = append([]models.OrderItem(nil), o.Items...)
	if o.AssignedDriver != nil {
		id := *o.AssignedDriver
		c.AssignedDriver = &id
	}
	if o.Payout != nil {
		p := *o.Payout
		c.Payout = &p
	}
	return &c
}
