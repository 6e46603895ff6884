package delivery_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/delivery"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/testutil"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	engine   *delivery.Engine
	orders   *testutil.Orders
	drivers  *testutil.Drivers
	fees     *testutil.Fees
	events   *testutil.Events
	clock    *clock
	customer primitive.ObjectID
}

func newFixture(t *testing.T, codes ...string) *fixture {
	t.Helper()
	if len(codes) == 0 {
		codes = []string{"4821"}
	}
	f := &fixture{
		orders:   testutil.NewOrders(),
		drivers:  testutil.NewDrivers(),
		fees:     &testutil.Fees{Fare: models.DefaultBaseDriverFare},
		events:   &testutil.Events{},
		clock:    &clock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		customer: primitive.NewObjectID(),
	}
	f.engine = delivery.NewEngine(f.orders, f.drivers, f.fees,
		delivery.WithPublisher(f.events),
		delivery.WithClock(f.clock.Now),
		delivery.WithCodeSource(testutil.NewFixedCodes(codes...)),
	)
	return f
}

func (f *fixture) pending(orderID string) {
	f.orders.Put(models.Order{
		OrderID:   orderID,
		UserID:    f.customer,
		Status:    models.OrderStatusPending,
		CreatedAt: f.clock.Now(),
	})
}

// outForDelivery walks orderID through to out_for_delivery for driverID.
func (f *fixture) outForDelivery(t *testing.T, orderID string, driverID primitive.ObjectID) {
	t.Helper()
	ctx := context.Background()
	f.pending(orderID)
	_, err := f.engine.AssignOrder(ctx, orderID, driverID)
	require.NoError(t, err)
	_, err = f.engine.RespondToOrder(ctx, orderID, driverID, delivery.ActionAccept)
	require.NoError(t, err)
	_, err = f.engine.MarkPickedUp(ctx, orderID, driverID)
	require.NoError(t, err)
	_, err = f.engine.BeginDelivery(ctx, orderID, driverID)
	require.NoError(t, err)
}

func TestDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()

	t.Run("should deliver ORD1 end to end and pay the driver", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")

		assigned, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusAssigned, assigned.Order.Status)
		assert.True(t, assigned.Order.IsAssignedTo(d1))
		assert.NotNil(t, assigned.Order.AssignedAt)
		assert.False(t, assigned.Driver.IsAvailable)

		accepted, err := f.engine.RespondToOrder(ctx, "ORD1", d1, delivery.ActionAccept)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusAccepted, accepted.Status)
		assert.NotNil(t, accepted.AcceptedAt)

		picked, err := f.engine.MarkPickedUp(ctx, "ORD1", d1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPickedUp, picked.Status)
		assert.NotNil(t, picked.PickedUpAt)

		out, err := f.engine.BeginDelivery(ctx, "ORD1", d1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusOutForDelivery, out.Status)
		assert.Equal(t, delivery.HashOTP("4821"), f.orders.Get("ORD1").DeliveryOTP)
		assert.Equal(t, f.clock.Now().Add(10*time.Minute), *out.OTPExpiresAt)
		assert.Zero(t, out.OTPAttempts)

		delivered, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
		assert.NotNil(t, delivered.DeliveredAt)
		assert.True(t, f.drivers.Get(d1).IsAvailable)
		assert.Empty(t, f.drivers.Get(d1).ReservedFor)

		stored := f.orders.Get("ORD1")
		assert.Empty(t, stored.DeliveryOTP)
		assert.Nil(t, stored.OTPExpiresAt)
		require.NotNil(t, stored.Payout)
		assert.Equal(t, models.DefaultBaseDriverFare, stored.Payout.Amount)
		assert.NotNil(t, stored.Payout.SettledAt)

		driver := f.drivers.Get(d1)
		assert.True(t, driver.IsAvailable)
		assert.Equal(t, models.DefaultBaseDriverFare, driver.WalletBalance)
	})

	t.Run("should only ever move along lifecycle edges", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		require.NoError(t, err)

		events := f.events.All()
		require.Len(t, events, 5)
		for _, ev := range events {
			assert.True(t, delivery.CanTransition(ev.From, ev.To), "%s -> %s", ev.From, ev.To)
		}
		assert.Equal(t, models.OrderStatusDelivered, events[4].To)
	})

	t.Run("should hand the plaintext code only to the out for delivery event", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)

		for _, ev := range f.events.All() {
			if ev.To == models.OrderStatusOutForDelivery {
				assert.Equal(t, "4821", ev.Code)
				assert.Equal(t, f.customer, ev.CustomerID)
			} else {
				assert.Empty(t, ev.Code)
			}
		}

		body, err := json.Marshal(f.orders.Get("ORD1"))
		require.NoError(t, err)
		assert.NotContains(t, string(body), "4821")
		assert.NotContains(t, string(body), delivery.HashOTP("4821"))
	})

	t.Run("should keep a committed transition when publishing fails", func(t *testing.T) {
		f := newFixture(t)
		f.events.Err = errors.New("outbox down")
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")

		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusAssigned, f.orders.Get("ORD1").Status)
	})
}

func TestAssignOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("should refuse an unavailable driver and leave ORD2 pending", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		f.pending("ORD2")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.AssignOrder(ctx, "ORD2", d1)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
		ord2 := f.orders.Get("ORD2")
		assert.Equal(t, models.OrderStatusPending, ord2.Status)
		assert.Nil(t, ord2.AssignedDriver)
	})

	t.Run("should refuse an unverified driver", func(t *testing.T) {
		f := newFixture(t)
		d := f.drivers.Put(models.Driver{Name: "new", IsAvailable: true, IsActive: true})
		f.pending("ORD1")

		_, err := f.engine.AssignOrder(ctx, "ORD1", d)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
	})

	t.Run("should refuse an order that is not pending", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		d2 := f.drivers.ReadyDriver("D2")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.AssignOrder(ctx, "ORD1", d2)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.True(t, f.drivers.Get(d2).IsAvailable)
	})

	t.Run("should report unknown order and driver", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")

		_, err := f.engine.AssignOrder(ctx, "ORD404", d1)
		assert.ErrorIs(t, err, utils.ErrNotFound)

		_, err = f.engine.AssignOrder(ctx, "ORD1", primitive.NewObjectID())
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("should validate input", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.AssignOrder(ctx, "", primitive.NewObjectID())
		assert.ErrorIs(t, err, utils.ErrValidation)
		_, err = f.engine.AssignOrder(ctx, "ORD1", primitive.NilObjectID)
		assert.ErrorIs(t, err, utils.ErrValidation)
	})

	t.Run("should release the driver when the order is taken first", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		f.orders.BeforeUpdate = func(cond delivery.OrderCondition) error {
			f.orders.BeforeUpdate = nil
			cancelled := f.orders.Get(cond.OrderID)
			cancelled.Status = models.OrderStatusCancelled
			f.orders.Put(*cancelled)
			return nil
		}

		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.True(t, f.drivers.Get(d1).IsAvailable)
	})

	t.Run("should release the driver when the order write fails", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		boom := errors.New("connection reset")
		f.orders.BeforeUpdate = func(delivery.OrderCondition) error { return boom }

		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		assert.ErrorIs(t, err, boom)
		assert.True(t, f.drivers.Get(d1).IsAvailable)
		assert.Equal(t, models.OrderStatusPending, f.orders.Get("ORD1").Status)
	})

	t.Run("should keep the driver reserved when they go online mid-assignment", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		f.pending("ORD2")
		var onlineErr error
		f.orders.BeforeUpdate = func(delivery.OrderCondition) error {
			f.orders.BeforeUpdate = nil
			_, onlineErr = f.engine.GoOnline(ctx, d1)
			return nil
		}

		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)
		assert.ErrorIs(t, onlineErr, utils.ErrOrderState)
		held := f.drivers.Get(d1)
		assert.False(t, held.IsAvailable)
		assert.Equal(t, "ORD1", held.ReservedFor)

		_, err = f.engine.AssignOrder(ctx, "ORD2", d1)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
		assert.Equal(t, models.OrderStatusPending, f.orders.Get("ORD2").Status)
	})

	t.Run("should clear the reservation when the order is handed back", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.RespondToOrder(ctx, "ORD1", d1, delivery.ActionReject)
		require.NoError(t, err)
		freed := f.drivers.Get(d1)
		assert.True(t, freed.IsAvailable)
		assert.Empty(t, freed.ReservedFor)
	})
}

func TestRespondToOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("should return ORD3 to the pool when rejected", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		d2 := f.drivers.ReadyDriver("D2")
		f.pending("ORD3")
		_, err := f.engine.AssignOrder(ctx, "ORD3", d1)
		require.NoError(t, err)

		rejected, err := f.engine.RespondToOrder(ctx, "ORD3", d1, delivery.ActionReject)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusPending, rejected.Status)
		assert.Nil(t, rejected.AssignedDriver)
		assert.NotNil(t, rejected.RejectedAt)
		assert.True(t, f.drivers.Get(d1).IsAvailable)

		again, err := f.engine.AssignOrder(ctx, "ORD3", d2)
		require.NoError(t, err)
		assert.True(t, again.Order.IsAssignedTo(d2))
	})

	t.Run("should refuse a driver the order is not assigned to", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		d2 := f.drivers.ReadyDriver("D2")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.RespondToOrder(ctx, "ORD1", d2, delivery.ActionAccept)
		assert.ErrorIs(t, err, utils.ErrForbidden)
		assert.Equal(t, models.OrderStatusAssigned, f.orders.Get("ORD1").Status)
	})

	t.Run("should refuse to respond twice", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)
		_, err = f.engine.RespondToOrder(ctx, "ORD1", d1, delivery.ActionAccept)
		require.NoError(t, err)

		_, err = f.engine.RespondToOrder(ctx, "ORD1", d1, delivery.ActionReject)
		assert.ErrorIs(t, err, utils.ErrOrderState)
	})

	t.Run("should reject an unknown action", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.RespondToOrder(ctx, "ORD1", primitive.NewObjectID(), delivery.Action("later"))
		assert.ErrorIs(t, err, utils.ErrValidation)
	})
}

func TestPickupAndDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("should not pick up an order that was never accepted", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.MarkPickedUp(ctx, "ORD1", d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
	})

	t.Run("should not skip from accepted to out for delivery", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)
		_, err = f.engine.RespondToOrder(ctx, "ORD1", d1, delivery.ActionAccept)
		require.NoError(t, err)

		_, err = f.engine.BeginDelivery(ctx, "ORD1", d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.Empty(t, f.orders.Get("ORD1").DeliveryOTP)
	})

	t.Run("should report a missing order", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.engine.MarkPickedUp(ctx, "ORD404", primitive.NewObjectID())
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})
}

func TestVerifyDelivery(t *testing.T) {
	ctx := context.Background()

	t.Run("should count wrong codes and lock after three", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)

		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "1111")
		assert.ErrorIs(t, err, utils.ErrOTPRejected)
		assert.Equal(t, 1, f.orders.Get("ORD1").OTPAttempts)

		_, err = f.engine.VerifyDelivery(ctx, "ORD1", d1, "2222")
		assert.ErrorIs(t, err, utils.ErrOTPRejected)

		_, err = f.engine.VerifyDelivery(ctx, "ORD1", d1, "3333")
		assert.ErrorIs(t, err, utils.ErrAttemptsExceeded)
		assert.Equal(t, 3, f.orders.Get("ORD1").OTPAttempts)

		_, err = f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		assert.ErrorIs(t, err, utils.ErrAttemptsExceeded)

		stored := f.orders.Get("ORD1")
		assert.Equal(t, models.OrderStatusOutForDelivery, stored.Status)
		assert.Equal(t, 3, stored.OTPAttempts)
		assert.False(t, f.drivers.Get(d1).IsAvailable)
	})

	t.Run("should refuse an expired code without spending an attempt", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		f.clock.Advance(10*time.Minute + time.Second)

		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		assert.ErrorIs(t, err, utils.ErrOTPRejected)
		assert.Equal(t, 0, f.orders.Get("ORD1").OTPAttempts)

		_, err = f.engine.VerifyDelivery(ctx, "ORD1", d1, "1234")
		assert.ErrorIs(t, err, utils.ErrOTPRejected)
		assert.Equal(t, 0, f.orders.Get("ORD1").OTPAttempts)
		assert.Equal(t, models.OrderStatusOutForDelivery, f.orders.Get("ORD1").Status)
	})

	t.Run("should give wrong and expired codes the same answer", func(t *testing.T) {
		f := newFixture(t, "4821", "5555")
		d1 := f.drivers.ReadyDriver("D1")
		d2 := f.drivers.ReadyDriver("D2")
		f.outForDelivery(t, "ORD1", d1)
		f.outForDelivery(t, "ORD2", d2)

		_, wrong := f.engine.VerifyDelivery(ctx, "ORD1", d1, "1111")
		f.clock.Advance(11 * time.Minute)
		_, expired := f.engine.VerifyDelivery(ctx, "ORD2", d2, "5555")

		var a, b *utils.ApiError
		require.ErrorAs(t, wrong, &a)
		require.ErrorAs(t, expired, &b)
		assert.Equal(t, a.StatusCode, b.StatusCode)
		assert.Equal(t, a.Code, b.Code)
		assert.Equal(t, a.Message, b.Message)
	})

	t.Run("should accept the code just before expiry", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		f.clock.Advance(10*time.Minute - time.Second)

		delivered, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
	})

	t.Run("should refuse a code from another driver", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)

		_, err := f.engine.VerifyDelivery(ctx, "ORD1", primitive.NewObjectID(), "4821")
		assert.ErrorIs(t, err, utils.ErrForbidden)
		assert.Zero(t, f.orders.Get("ORD1").OTPAttempts)
	})

	t.Run("should validate the code shape before touching the order", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)

		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "48a1")
		assert.ErrorIs(t, err, utils.ErrValidation)
		assert.Zero(t, f.orders.Get("ORD1").OTPAttempts)
	})

	t.Run("should leave the order in flight when the fare cannot be read", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		f.fees.Err = errors.New("fees unavailable")

		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		assert.Error(t, err)
		assert.Equal(t, models.OrderStatusOutForDelivery, f.orders.Get("ORD1").Status)
	})

	t.Run("should defer a failed credit to the settlement sweep and pay once", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		f.drivers.CreditErr = errors.New("write conflict")

		delivered, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusDelivered, delivered.Status)
		assert.True(t, f.drivers.Get(d1).IsAvailable)
		assert.Zero(t, f.drivers.Get(d1).WalletBalance)
		deferred := f.orders.Get("ORD1").Payout
		assert.Nil(t, deferred.SettledAt)
		assert.Equal(t, 1, deferred.SettleAttempts)
		assert.Contains(t, deferred.LastError, "write conflict")

		f.drivers.CreditErr = nil
		n, err := f.engine.SettlePending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, models.DefaultBaseDriverFare, f.drivers.Get(d1).WalletBalance)
		assert.NotNil(t, f.orders.Get("ORD1").Payout.SettledAt)

		n, err = f.engine.SettlePending(ctx, 10)
		require.NoError(t, err)
		assert.Zero(t, n)
		assert.Equal(t, models.DefaultBaseDriverFare, f.drivers.Get(d1).WalletBalance)
	})

	t.Run("should not double pay when settlement replays a credited order", func(t *testing.T) {
		f := newFixture(t, "4821")
		d1 := f.drivers.ReadyDriver("D1")
		f.outForDelivery(t, "ORD1", d1)
		_, err := f.engine.VerifyDelivery(ctx, "ORD1", d1, "4821")
		require.NoError(t, err)

		// simulate a crash after the credit but before the settled stamp
		stored := f.orders.Get("ORD1")
		stored.Payout.SettledAt = nil
		f.orders.Put(*stored)

		n, err := f.engine.SettlePending(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, models.DefaultBaseDriverFare, f.drivers.Get(d1).WalletBalance)
	})
}

func TestSettlePending(t *testing.T) {
	ctx := context.Background()

	t.Run("should park a payout that keeps failing and settle the rest", func(t *testing.T) {
		f := newFixture(t)
		engine := delivery.NewEngine(f.orders, f.drivers, f.fees,
			delivery.WithClock(f.clock.Now),
			delivery.WithSettleAttempts(3))
		d1 := f.drivers.ReadyDriver("D1")
		gone := primitive.NewObjectID()
		put := func(id string, driverID primitive.ObjectID, min int) {
			at := f.clock.Now().Add(time.Duration(min) * time.Minute)
			f.orders.Put(models.Order{
				OrderID:        id,
				UserID:         f.customer,
				Status:         models.OrderStatusDelivered,
				AssignedDriver: &driverID,
				DeliveredAt:    &at,
				Payout:         &models.Payout{Amount: 40},
			})
		}
		put("ORD1", gone, 1)
		put("ORD2", d1, 2)
		put("ORD3", d1, 3)

		sweep := func() int {
			n, err := engine.SettlePending(ctx, 1)
			require.NoError(t, err)
			return n
		}

		assert.Zero(t, sweep())
		assert.Equal(t, 1, sweep())
		assert.Equal(t, 1, sweep())
		assert.NotNil(t, f.orders.Get("ORD2").Payout.SettledAt)
		assert.NotNil(t, f.orders.Get("ORD3").Payout.SettledAt)
		assert.Equal(t, 80.0, f.drivers.Get(d1).WalletBalance)

		assert.Zero(t, sweep())
		assert.Zero(t, sweep())
		parked := f.orders.Get("ORD1").Payout
		assert.Equal(t, 3, parked.SettleAttempts)
		assert.Contains(t, parked.LastError, "not found")

		assert.Zero(t, sweep())
		assert.Equal(t, 3, f.orders.Get("ORD1").Payout.SettleAttempts)
		assert.Nil(t, f.orders.Get("ORD1").Payout.SettledAt)
	})
}

func TestCancelOrder(t *testing.T) {
	ctx := context.Background()

	t.Run("should let the owner cancel a pending order", func(t *testing.T) {
		f := newFixture(t)
		f.pending("ORD1")

		cancelled, err := f.engine.CancelOrder(ctx, "ORD1", f.customer)
		require.NoError(t, err)
		assert.Equal(t, models.OrderStatusCancelled, cancelled.Status)
		assert.NotNil(t, cancelled.CancelledAt)
	})

	t.Run("should refuse other customers", func(t *testing.T) {
		f := newFixture(t)
		f.pending("ORD1")

		_, err := f.engine.CancelOrder(ctx, "ORD1", primitive.NewObjectID())
		assert.ErrorIs(t, err, utils.ErrForbidden)
	})

	t.Run("should refuse once a driver holds the order", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.CancelOrder(ctx, "ORD1", f.customer)
		assert.ErrorIs(t, err, utils.ErrOrderState)
	})

	t.Run("should keep cancelled orders out of assignment", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.CancelOrder(ctx, "ORD1", f.customer)
		require.NoError(t, err)

		_, err = f.engine.AssignOrder(ctx, "ORD1", d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.True(t, f.drivers.Get(d1).IsAvailable)
	})
}

func TestDriverQueries(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	d1 := f.drivers.ReadyDriver("D1")
	base := f.clock.Now()
	at := func(min int) *time.Time {
		ts := base.Add(time.Duration(min) * time.Minute)
		return &ts
	}
	put := func(id string, status models.OrderStatus, assignedAt, deliveredAt *time.Time) {
		f.orders.Put(models.Order{
			OrderID:        id,
			UserID:         f.customer,
			Status:         status,
			AssignedDriver: &d1,
			AssignedAt:     assignedAt,
			DeliveredAt:    deliveredAt,
		})
	}
	put("ORD1", models.OrderStatusAssigned, at(1), nil)
	put("ORD2", models.OrderStatusAccepted, at(2), nil)
	put("ORD3", models.OrderStatusPickedUp, at(3), nil)
	put("ORD4", models.OrderStatusOutForDelivery, at(4), nil)
	put("ORD5", models.OrderStatusDelivered, at(5), at(30))
	put("ORD6", models.OrderStatusDelivered, at(6), at(20))
	f.orders.Put(models.Order{OrderID: "ORD7", Status: models.OrderStatusPending})

	count := func(filter delivery.StatusFilter) int {
		orders, err := f.engine.AssignedOrders(ctx, d1, filter)
		require.NoError(t, err)
		return len(orders)
	}

	t.Run("should filter assigned orders by phase", func(t *testing.T) {
		assert.Equal(t, 1, count(delivery.FilterNewOrder))
		assert.Equal(t, 3, count(delivery.FilterOngoing))
		assert.Equal(t, 2, count(delivery.FilterDelivered))
		assert.Equal(t, 6, count(delivery.FilterAll))
	})

	t.Run("should list history newest delivery first", func(t *testing.T) {
		history, err := f.engine.DeliveryHistory(ctx, d1)
		require.NoError(t, err)
		require.Len(t, history, 2)
		assert.Equal(t, "ORD5", history[0].OrderID)
		assert.Equal(t, "ORD6", history[1].OrderID)
	})
}

func TestDriverAvailability(t *testing.T) {
	ctx := context.Background()

	t.Run("should verify a driver once", func(t *testing.T) {
		f := newFixture(t)
		id := f.drivers.Put(models.Driver{Name: "new", IsActive: true})

		verified, err := f.engine.VerifyDriver(ctx, id)
		require.NoError(t, err)
		assert.True(t, verified.IsVerified)

		_, err = f.engine.VerifyDriver(ctx, id)
		assert.ErrorIs(t, err, utils.ErrAlreadyVerified)

		_, err = f.engine.VerifyDriver(ctx, primitive.NewObjectID())
		assert.ErrorIs(t, err, utils.ErrNotFound)
	})

	t.Run("should not bring a driver online while they hold an order", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.GoOnline(ctx, d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.False(t, f.drivers.Get(d1).IsAvailable)
	})

	t.Run("should refuse to take a driver offline while they hold an order", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		f.pending("ORD1")
		_, err := f.engine.AssignOrder(ctx, "ORD1", d1)
		require.NoError(t, err)

		_, err = f.engine.GoOffline(ctx, d1)
		assert.ErrorIs(t, err, utils.ErrOrderState)
		assert.Equal(t, "ORD1", f.drivers.Get(d1).ReservedFor)
	})

	t.Run("should return an offline idle driver unchanged", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")
		_, err := f.engine.GoOffline(ctx, d1)
		require.NoError(t, err)

		again, err := f.engine.GoOffline(ctx, d1)
		require.NoError(t, err)
		assert.False(t, again.IsAvailable)
	})

	t.Run("should toggle an idle verified driver", func(t *testing.T) {
		f := newFixture(t)
		d1 := f.drivers.ReadyDriver("D1")

		off, err := f.engine.GoOffline(ctx, d1)
		require.NoError(t, err)
		assert.False(t, off.IsAvailable)

		on, err := f.engine.GoOnline(ctx, d1)
		require.NoError(t, err)
		assert.True(t, on.IsAvailable)
	})

	t.Run("should keep unverified drivers offline", func(t *testing.T) {
		f := newFixture(t)
		id := f.drivers.Put(models.Driver{Name: "new", IsActive: true})

		_, err := f.engine.GoOnline(ctx, id)
		assert.ErrorIs(t, err, utils.ErrDriverUnavailable)
	})
}
