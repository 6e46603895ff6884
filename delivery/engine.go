package delivery

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/metrics"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/utils"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"
)

const (
	DefaultOTPTTL         = 10 * time.Minute
	DefaultMaxOTPAttempts = 3
	// DefaultSettleAttempts is how many failed credits park a payout.
	DefaultSettleAttempts = 5
)

// Engine owns the order lifecycle. Every transition is a single conditional
// write against the stores; the engine holds no locks of its own, so any
// number of instances can serve the same database.
type Engine struct {
	orders      OrderStore
	drivers     DriverStore
	fees        FeeLedger
	events      Publisher
	codes       CodeSource
	now         func() time.Time
	newEventID  func() string
	otpTTL      time.Duration
	maxAttempts int
	maxSettles  int
	logger      *zap.Logger
}

type Option func(*Engine)

func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.events = p }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithCodeSource(c CodeSource) Option {
	return func(e *Engine) { e.codes = c }
}

// WithOTPPolicy overrides the code lifetime and attempt ceiling. Non-positive
// values keep the defaults.
func WithOTPPolicy(ttl time.Duration, maxAttempts int) Option {
	return func(e *Engine) {
		if ttl > 0 {
			e.otpTTL = ttl
		}
		if maxAttempts > 0 {
			e.maxAttempts = maxAttempts
		}
	}
}

func WithSettleAttempts(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSettles = n
		}
	}
}

func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func NewEngine(orders OrderStore, drivers DriverStore, fees FeeLedger, opts ...Option) *Engine {
	e := &Engine{
		orders:      orders,
		drivers:     drivers,
		fees:        fees,
		events:      nopPublisher{},
		codes:       CryptoCodes{},
		now:         time.Now,
		newEventID:  uuid.NewString,
		otpTTL:      DefaultOTPTTL,
		maxAttempts: DefaultMaxOTPAttempts,
		maxSettles:  DefaultSettleAttempts,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With(zap.String("component", "delivery"))
	return e
}

type Assignment struct {
	Order  *models.Order  `json:"order"`
	Driver *models.Driver `json:"driver"`
}

// AssignOrder binds a pending order to a driver. The driver reservation is
// the race decider: only the caller whose Reserve succeeds goes on to write
// the order, and a failed order write hands the driver back.
func (e *Engine) AssignOrder(ctx context.Context, orderID string, driverID primitive.ObjectID) (*Assignment, error) {
	if orderID == "" {
		return nil, utils.NewValidationError("orderId is required")
	}
	if driverID.IsZero() {
		return nil, utils.NewValidationError("assignedDriverId is required")
	}

	order, err := e.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, utils.NewNotFoundError("Order not found")
	}
	if order.Status != models.OrderStatusPending {
		metrics.AssignConflicts.WithLabelValues("order_state").Inc()
		return nil, utils.NewConflictError(utils.CodeOrderState, "Order is not pending")
	}

	driver, err := e.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", driverID.Hex(), err)
	}
	if driver == nil {
		return nil, utils.NewNotFoundError("Driver not found")
	}

	reserved, err := e.drivers.Reserve(ctx, driverID, orderID)
	if err != nil {
		return nil, fmt.Errorf("reserve driver %s: %w", driverID.Hex(), err)
	}
	if reserved == nil {
		metrics.AssignConflicts.WithLabelValues("driver_unavailable").Inc()
		return nil, utils.NewConflictError(utils.CodeDriverUnavailable, "Driver is not available or not verified")
	}

	now := e.now()
	updated, err := e.orders.UpdateIf(ctx,
		OrderCondition{OrderID: orderID, Status: models.OrderStatusPending},
		OrderPatch{
			Status:    models.OrderStatusAssigned,
			Milestone: models.MilestoneAssigned,
			At:        now,
			DriverID:  &driverID,
		})
	if err != nil || updated == nil {
		e.releaseDriver(ctx, driverID, orderID)
		if err != nil {
			return nil, fmt.Errorf("assign order %s: %w", orderID, err)
		}
		metrics.AssignConflicts.WithLabelValues("order_state").Inc()
		return nil, utils.NewConflictError(utils.CodeOrderState, "Order is no longer pending")
	}

	e.committed(ctx, updated, models.OrderStatusPending, &driverID, "")
	return &Assignment{Order: updated, Driver: reserved}, nil
}

// RespondToOrder lets the assigned driver accept or hand back an order.
// A reject returns the order to the pending pool and frees the driver.
func (e *Engine) RespondToOrder(ctx context.Context, orderID string, driverID primitive.ObjectID, action Action) (*models.Order, error) {
	var patch OrderPatch
	now := e.now()
	switch action {
	case ActionAccept:
		patch = OrderPatch{Status: models.OrderStatusAccepted, Milestone: models.MilestoneAccepted, At: now}
	case ActionReject:
		patch = OrderPatch{Status: models.OrderStatusPending, Milestone: models.MilestoneRejected, At: now, ClearDriver: true}
	default:
		return nil, utils.NewValidationError("action must be accept or reject")
	}

	if _, err := e.loadForDriver(ctx, orderID, driverID, models.OrderStatusAssigned); err != nil {
		return nil, err
	}

	updated, err := e.orders.UpdateIf(ctx,
		OrderCondition{OrderID: orderID, Status: models.OrderStatusAssigned, DriverID: driverID},
		patch)
	if err != nil {
		return nil, fmt.Errorf("respond to order %s: %w", orderID, err)
	}
	if updated == nil {
		return nil, errConcurrentChange()
	}

	if action == ActionReject {
		e.releaseDriver(ctx, driverID, orderID)
	}
	e.committed(ctx, updated, models.OrderStatusAssigned, &driverID, "")
	return updated, nil
}

func (e *Engine) MarkPickedUp(ctx context.Context, orderID string, driverID primitive.ObjectID) (*models.Order, error) {
	return e.advance(ctx, orderID, driverID, models.OrderStatusAccepted, OrderPatch{
		Status:    models.OrderStatusPickedUp,
		Milestone: models.MilestonePickedUp,
		At:        e.now(),
	}, "")
}

// BeginDelivery moves a picked up order out for delivery and issues the
// handoff code. Only the code's hash is written; the plaintext goes to the
// customer through the published event and nowhere else.
func (e *Engine) BeginDelivery(ctx context.Context, orderID string, driverID primitive.ObjectID) (*models.Order, error) {
	code, err := e.codes.NewCode()
	if err != nil {
		return nil, fmt.Errorf("generate delivery code: %w", err)
	}
	if !ValidCode(code) {
		return nil, errors.New("code source produced a malformed delivery code")
	}

	now := e.now()
	return e.advance(ctx, orderID, driverID, models.OrderStatusPickedUp, OrderPatch{
		Status:     models.OrderStatusOutForDelivery,
		Milestone:  models.MilestoneOutForDelivery,
		At:         now,
		OTPHash:    HashOTP(code),
		OTPExpires: now.Add(e.otpTTL),
	}, code)
}

// VerifyDelivery closes an order with the code the customer relayed to the
// driver. Wrong and expired codes get the same answer; only wrong codes use
// up an attempt. Once the ceiling is hit even the right code is refused.
func (e *Engine) VerifyDelivery(ctx context.Context, orderID string, driverID primitive.ObjectID, code string) (*models.Order, error) {
	if !ValidCode(code) {
		return nil, utils.NewValidationError("otp must be a 4 digit code")
	}

	order, err := e.loadForDriver(ctx, orderID, driverID, models.OrderStatusOutForDelivery)
	if err != nil {
		return nil, err
	}
	if order.OTPAttempts >= e.maxAttempts {
		metrics.OTPFailures.WithLabelValues("exhausted").Inc()
		return nil, utils.NewAttemptsExceededError()
	}

	now := e.now()
	if order.OTPExpiresAt == nil || !now.Before(*order.OTPExpiresAt) {
		metrics.OTPFailures.WithLabelValues("expired").Inc()
		return nil, utils.NewOTPRejectedError()
	}

	supplied := HashOTP(code)
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(order.DeliveryOTP)) != 1 {
		metrics.OTPFailures.WithLabelValues("mismatch").Inc()
		counted, err := e.orders.UpdateIf(ctx,
			OrderCondition{
				OrderID:     orderID,
				Status:      models.OrderStatusOutForDelivery,
				DriverID:    driverID,
				OTPHash:     order.DeliveryOTP,
				MaxAttempts: e.maxAttempts,
			},
			OrderPatch{IncAttempts: true})
		if err != nil {
			return nil, fmt.Errorf("record otp attempt on %s: %w", orderID, err)
		}
		if counted != nil && counted.OTPAttempts >= e.maxAttempts {
			e.logger.Warn("delivery code attempts exhausted", zap.String("orderId", orderID))
			return nil, utils.NewAttemptsExceededError()
		}
		return nil, utils.NewOTPRejectedError()
	}

	fare, err := e.fees.BaseDriverFare(ctx)
	if err != nil {
		return nil, fmt.Errorf("read driver fare: %w", err)
	}

	delivered, err := e.orders.UpdateIf(ctx,
		OrderCondition{
			OrderID:      orderID,
			Status:       models.OrderStatusOutForDelivery,
			DriverID:     driverID,
			OTPHash:      supplied,
			MaxAttempts:  e.maxAttempts,
			NotExpiredAt: now,
		},
		OrderPatch{
			Status:    models.OrderStatusDelivered,
			Milestone: models.MilestoneDelivered,
			At:        now,
			ClearOTP:  true,
			Payout:    &models.Payout{Amount: fare},
		})
	if err != nil {
		return nil, fmt.Errorf("deliver order %s: %w", orderID, err)
	}
	if delivered == nil {
		return nil, errConcurrentChange()
	}

	e.releaseDriver(ctx, driverID, orderID)
	if err := e.settle(ctx, delivered); err != nil {
		e.logger.Warn("payout deferred to settlement sweep",
			zap.String("orderId", orderID), zap.Error(err))
	}
	e.committed(ctx, delivered, models.OrderStatusOutForDelivery, &driverID, "")
	return delivered, nil
}

// CancelOrder lets the owning customer withdraw an order nobody has taken yet.
func (e *Engine) CancelOrder(ctx context.Context, orderID string, customerID primitive.ObjectID) (*models.Order, error) {
	if orderID == "" {
		return nil, utils.NewValidationError("orderId is required")
	}

	order, err := e.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, utils.NewNotFoundError("Order not found")
	}
	if order.UserID != customerID {
		return nil, utils.NewForbiddenError("Not authorized to cancel this order")
	}
	if order.Status != models.OrderStatusPending {
		return nil, utils.NewConflictError(utils.CodeOrderState, "Cannot cancel non-pending order")
	}

	updated, err := e.orders.UpdateIf(ctx,
		OrderCondition{OrderID: orderID, Status: models.OrderStatusPending, CustomerID: customerID},
		OrderPatch{Status: models.OrderStatusCancelled, Milestone: models.MilestoneCancelled, At: e.now()})
	if err != nil {
		return nil, fmt.Errorf("cancel order %s: %w", orderID, err)
	}
	if updated == nil {
		return nil, errConcurrentChange()
	}

	e.committed(ctx, updated, models.OrderStatusPending, nil, "")
	return updated, nil
}

func (e *Engine) AssignedOrders(ctx context.Context, driverID primitive.ObjectID, filter StatusFilter) ([]models.Order, error) {
	orders, err := e.orders.ListForDriver(ctx, driverID, filter.Statuses(), models.MilestoneAssigned)
	if err != nil {
		return nil, fmt.Errorf("list orders for driver %s: %w", driverID.Hex(), err)
	}
	return orders, nil
}

// DeliveryHistory returns the driver's delivered orders, newest first.
func (e *Engine) DeliveryHistory(ctx context.Context, driverID primitive.ObjectID) ([]models.Order, error) {
	orders, err := e.orders.ListForDriver(ctx, driverID,
		[]models.OrderStatus{models.OrderStatusDelivered}, models.MilestoneDelivered)
	if err != nil {
		return nil, fmt.Errorf("delivery history for driver %s: %w", driverID.Hex(), err)
	}
	return orders, nil
}

func (e *Engine) VerifyDriver(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error) {
	driver, err := e.drivers.Verify(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("verify driver %s: %w", driverID.Hex(), err)
	}
	if driver != nil {
		e.logger.Info("driver verified", zap.String("driverId", driverID.Hex()))
		return driver, nil
	}

	existing, err := e.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", driverID.Hex(), err)
	}
	if existing == nil {
		return nil, utils.NewNotFoundError("Driver not found")
	}
	return nil, utils.NewConflictError(utils.CodeAlreadyVerified, "Driver is already verified")
}

// GoOnline marks a verified driver available. The flip only matches a
// driver with no reservation, so an assignment that lands after the
// active order check still keeps the driver busy.
func (e *Engine) GoOnline(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error) {
	driver, err := e.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", driverID.Hex(), err)
	}
	if driver == nil {
		return nil, utils.NewNotFoundError("Driver not found")
	}
	if !driver.IsVerified || !driver.IsActive {
		return nil, utils.NewConflictError(utils.CodeDriverUnavailable, "Driver is not verified")
	}
	if driver.IsAvailable {
		return driver, nil
	}
	if err := e.ensureIdle(ctx, driver); err != nil {
		return nil, err
	}

	released, err := e.drivers.Release(ctx, driverID, "")
	if err != nil {
		return nil, fmt.Errorf("release driver %s: %w", driverID.Hex(), err)
	}
	if released != nil {
		return released, nil
	}

	current, err := e.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", driverID.Hex(), err)
	}
	if current == nil {
		return nil, utils.NewNotFoundError("Driver not found")
	}
	if current.ReservedFor != "" {
		return nil, errOrderInProgress()
	}
	return current, nil
}

// GoOffline withdraws an available driver from assignment. A driver who is
// already offline is returned unchanged; one holding an order is refused.
func (e *Engine) GoOffline(ctx context.Context, driverID primitive.ObjectID) (*models.Driver, error) {
	driver, err := e.drivers.SetOffline(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("take driver %s offline: %w", driverID.Hex(), err)
	}
	if driver != nil {
		return driver, nil
	}

	existing, err := e.drivers.FindByID(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("find driver %s: %w", driverID.Hex(), err)
	}
	if existing == nil {
		return nil, utils.NewNotFoundError("Driver not found")
	}
	if err := e.ensureIdle(ctx, existing); err != nil {
		return nil, err
	}
	return existing, nil
}

// ensureIdle refuses a driver who holds a reservation or still has an
// order in an active status.
func (e *Engine) ensureIdle(ctx context.Context, driver *models.Driver) error {
	if driver.ReservedFor != "" {
		return errOrderInProgress()
	}
	active, err := e.orders.ListForDriver(ctx, driver.ID, models.ActiveStatuses, models.MilestoneAssigned)
	if err != nil {
		return fmt.Errorf("active orders for driver %s: %w", driver.ID.Hex(), err)
	}
	if len(active) > 0 {
		return errOrderInProgress()
	}
	return nil
}

func (e *Engine) advance(ctx context.Context, orderID string, driverID primitive.ObjectID, from models.OrderStatus, patch OrderPatch, code string) (*models.Order, error) {
	if !CanTransition(from, patch.Status) {
		return nil, fmt.Errorf("illegal transition %s -> %s", from, patch.Status)
	}
	if _, err := e.loadForDriver(ctx, orderID, driverID, from); err != nil {
		return nil, err
	}

	updated, err := e.orders.UpdateIf(ctx,
		OrderCondition{OrderID: orderID, Status: from, DriverID: driverID},
		patch)
	if err != nil {
		return nil, fmt.Errorf("move order %s to %s: %w", orderID, patch.Status, err)
	}
	if updated == nil {
		return nil, errConcurrentChange()
	}

	e.committed(ctx, updated, from, &driverID, code)
	return updated, nil
}

// loadForDriver classifies why a driver-scoped transition cannot run:
// unknown order, someone else's order, or the wrong status.
func (e *Engine) loadForDriver(ctx context.Context, orderID string, driverID primitive.ObjectID, want models.OrderStatus) (*models.Order, error) {
	if orderID == "" {
		return nil, utils.NewValidationError("orderId is required")
	}

	order, err := e.orders.FindByOrderID(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("find order %s: %w", orderID, err)
	}
	if order == nil {
		return nil, utils.NewNotFoundError("Order not found")
	}
	if !order.IsAssignedTo(driverID) {
		return nil, utils.NewForbiddenError("Order is not assigned to you")
	}
	if order.Status != want {
		return nil, utils.NewConflictError(utils.CodeOrderState,
			fmt.Sprintf("Order is %s, expected %s", order.Status, want))
	}
	return order, nil
}

// releaseDriver is the compensating write for a reservation the order no
// longer needs. It runs detached from the request so a client disconnect
// cannot strand the driver.
func (e *Engine) releaseDriver(ctx context.Context, driverID primitive.ObjectID, orderID string) {
	ctx = context.WithoutCancel(ctx)
	if _, err := e.drivers.Release(ctx, driverID, orderID); err != nil {
		e.logger.Error("release driver",
			zap.String("driverId", driverID.Hex()),
			zap.String("orderId", orderID),
			zap.Error(err))
	}
}

func (e *Engine) committed(ctx context.Context, order *models.Order, from models.OrderStatus, driverID *primitive.ObjectID, code string) {
	metrics.OrderTransitions.WithLabelValues(string(order.Status)).Inc()
	e.logger.Info("order transition",
		zap.String("orderId", order.OrderID),
		zap.String("from", string(from)),
		zap.String("to", string(order.Status)))

	ev := StatusChanged{
		EventID:    e.newEventID(),
		OrderID:    order.OrderID,
		OrderRef:   order.ID,
		CustomerID: order.UserID,
		DriverID:   driverID,
		From:       from,
		To:         order.Status,
		At:         e.now(),
		Code:       code,
	}
	if err := e.events.Publish(context.WithoutCancel(ctx), ev); err != nil {
		metrics.EventPublishFailures.Inc()
		e.logger.Error("publish status change",
			zap.String("orderId", order.OrderID),
			zap.String("to", string(order.Status)),
			zap.Error(err))
	}
}

func errConcurrentChange() error {
	return utils.NewConflictError(utils.CodeOrderState, "Order was changed by another request")
}

func errOrderInProgress() error {
	return utils.NewConflictError(utils.CodeOrderState, "Driver has an order in progress")
}
