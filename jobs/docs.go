// Package jobs runs the scheduled background work of the delivery backend
// on github.com/robfig/cron/v3.
//
// NotificationJob drains the notification outbox to device push, and
// SettlementJob credits drivers for delivered orders whose payout was
// recorded but not yet applied to the wallet. Both are safe to run on every
// instance: the outbox is leased per notification and settlement is
// idempotent per order.
//
//	jm := jobs.NewJobManager(dispatcher, engine, jobs.Schedules{
//		Notify:      "@every 5s",
//		NotifyBatch: 50,
//		Settle:      "@every 1m",
//	}, logger)
//	if err := jm.StartAll(); err != nil {
//		return err
//	}
//	defer jm.StopAll()
package jobs
