package delivery

import (
	"context"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// OrderCondition is the expected state an order must be in for an update to
// apply. Zero-valued fields are not checked, except Status which always is.
type OrderCondition struct {
	OrderID    string
	Status     models.OrderStatus
	DriverID   primitive.ObjectID
	CustomerID primitive.ObjectID
	OTPHash    string
	// MaxAttempts requires otpAttempts < MaxAttempts when positive.
	MaxAttempts int
	// NotExpiredAt requires otpExpiresAt > NotExpiredAt when set.
	NotExpiredAt time.Time
}

// OrderPatch describes the fields an accepted update writes.
type OrderPatch struct {
	Status      models.OrderStatus
	Milestone   models.Milestone
	At          time.Time
	DriverID    *primitive.ObjectID
	ClearDriver bool
	OTPHash     string
	OTPExpires  time.Time
	ClearOTP    bool
	IncAttempts bool
	Payout      *models.Payout
}

// OrderStore persists orders. UpdateIf is a compare-and-set: it returns
// (nil, nil) when no order matched the condition.
type OrderStore interface {
	FindByOrderID(ctx context.Context, orderID string) (*models.Order, error)
	UpdateIf(ctx context.Context, cond OrderCondition, patch OrderPatch) (*models.Order, error)
	ListForDriver(ctx context.Context, driverID primitive.ObjectID, statuses []models.OrderStatus, sortBy models.Milestone) ([]models.Order, error)
	// ListUnsettled returns delivered orders with an unstamped payout that
	// have failed fewer than maxAttempts times, fewest failures first.
	ListUnsettled(ctx context.Context, maxAttempts, limit int) ([]models.Order, error)
	MarkSettled(ctx context.Context, orderID string, at time.Time) error
	// RecordSettleFailure bumps the payout's failure count and keeps reason.
	RecordSettleFailure(ctx context.Context, orderID, reason string, at time.Time) error
}

// DriverStore holds the driver fields the engine is allowed to touch. Every
// mutating call is conditional and returns (nil, nil) when the driver was not
// in the expected state.
type DriverStore interface {
	FindByID(ctx context.Context, id primitive.ObjectID) (*models.Driver, error)
	// Reserve flips an available, verified, active driver to unavailable and
	// records orderID as the holder of the reservation.
	Reserve(ctx context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error)
	// Release flips an unavailable driver back to available, but only when
	// the reservation belongs to orderID. An empty orderID matches a driver
	// that went offline with no reservation.
	Release(ctx context.Context, id primitive.ObjectID, orderID string) (*models.Driver, error)
	// SetOffline flips an available driver to unavailable without reserving.
	SetOffline(ctx context.Context, id primitive.ObjectID) (*models.Driver, error)
	// Credit adds amount to the wallet once per orderID. It reports false
	// when the order was already credited.
	Credit(ctx context.Context, id primitive.ObjectID, orderID string, amount float64) (bool, error)
	Verify(ctx context.Context, id primitive.ObjectID) (*models.Driver, error)
}

// FeeLedger supplies the per-delivery driver payout.
type FeeLedger interface {
	BaseDriverFare(ctx context.Context) (float64, error)
}

// Matches reports whether o satisfies the condition. Stores that cannot push
// the condition down to the database evaluate it with this.
func (c OrderCondition) Matches(o *models.Order) bool {
	if o == nil || o.OrderID != c.OrderID || o.Status != c.Status {
		return false
	}
	if !c.DriverID.IsZero() && !o.IsAssignedTo(c.DriverID) {
		return false
	}
	if !c.CustomerID.IsZero() && o.UserID != c.CustomerID {
		return false
	}
	if c.OTPHash != "" && o.DeliveryOTP != c.OTPHash {
		return false
	}
	if c.MaxAttempts > 0 && o.OTPAttempts >= c.MaxAttempts {
		return false
	}
	if !c.NotExpiredAt.IsZero() && (o.OTPExpiresAt == nil || !o.OTPExpiresAt.After(c.NotExpiredAt)) {
		return false
	}
	return true
}

// Apply writes the patch into o.
func (p OrderPatch) Apply(o *models.Order) {
	if p.Status != "" {
		o.Status = p.Status
	}
	if p.Milestone != "" {
		o.Stamp(p.Milestone, p.At)
	}
	if p.DriverID != nil {
		id := *p.DriverID
		o.AssignedDriver = &id
	}
	if p.ClearDriver {
		o.AssignedDriver = nil
	}
	if p.OTPHash != "" {
		expires := p.OTPExpires
		o.DeliveryOTP = p.OTPHash
		o.OTPExpiresAt = &expires
		o.OTPAttempts = 0
	}
	if p.ClearOTP {
		o.DeliveryOTP = ""
		o.OTPExpiresAt = nil
	}
	if p.IncAttempts {
		o.OTPAttempts++
	}
	if p.Payout != nil {
		payout := *p.Payout
		o.Payout = &payout
	}
	if !p.At.IsZero() {
		o.UpdatedAt = p.At
	}
}
