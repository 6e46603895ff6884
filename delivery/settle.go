package delivery

import (
	"context"
	"fmt"

	"github.com/Madhav-Gupta-28/dropkart-backend-go/metrics"
	"github.com/Madhav-Gupta-28/dropkart-backend-go/models"
	"go.uber.org/zap"
)

// settle credits the payout recorded on a delivered order and stamps it as
// settled. Both steps are idempotent, so a crash between them is repaired by
// running settle again. A failure is counted against the payout.
func (e *Engine) settle(ctx context.Context, order *models.Order) error {
	if order.Payout == nil || order.Payout.SettledAt != nil || order.AssignedDriver == nil {
		return nil
	}
	if err := e.credit(ctx, order); err != nil {
		e.recordSettleFailure(ctx, order, err)
		return err
	}
	return nil
}

func (e *Engine) credit(ctx context.Context, order *models.Order) error {
	credited, err := e.drivers.Credit(ctx, *order.AssignedDriver, order.OrderID, order.Payout.Amount)
	if err != nil {
		return fmt.Errorf("credit driver for %s: %w", order.OrderID, err)
	}

	now := e.now()
	if err := e.orders.MarkSettled(ctx, order.OrderID, now); err != nil {
		return fmt.Errorf("mark %s settled: %w", order.OrderID, err)
	}
	order.Payout.SettledAt = &now

	if credited {
		metrics.PayoutsSettled.Inc()
	}
	return nil
}

func (e *Engine) recordSettleFailure(ctx context.Context, order *models.Order, cause error) {
	ctx = context.WithoutCancel(ctx)
	if err := e.orders.RecordSettleFailure(ctx, order.OrderID, cause.Error(), e.now()); err != nil {
		e.logger.Error("record settle failure", zap.String("orderId", order.OrderID), zap.Error(err))
		return
	}
	order.Payout.SettleAttempts++
	order.Payout.LastError = cause.Error()
	if order.Payout.SettleAttempts == e.maxSettles {
		metrics.PayoutsParked.Inc()
		e.logger.Error("payout parked after repeated failures",
			zap.String("orderId", order.OrderID),
			zap.Int("attempts", order.Payout.SettleAttempts),
			zap.Error(cause))
	}
}

// SettlePending replays settlement for delivered orders whose payout was
// never stamped. Payouts that failed maxSettles times are left parked for an
// operator. It returns how many orders it settled.
func (e *Engine) SettlePending(ctx context.Context, limit int) (int, error) {
	orders, err := e.orders.ListUnsettled(ctx, e.maxSettles, limit)
	if err != nil {
		return 0, fmt.Errorf("list unsettled orders: %w", err)
	}

	settled := 0
	for i := range orders {
		if err := e.settle(ctx, &orders[i]); err != nil {
			e.logger.Warn("settle order", zap.String("orderId", orders[i].OrderID), zap.Error(err))
			continue
		}
		settled++
	}
	return settled, nil
}
