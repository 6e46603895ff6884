package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Dispatcher pushes a batch of stored notifications.
type Dispatcher interface {
	RunOnce(ctx context.Context, batch int) (int, error)
}

// NotificationJob drains the notification outbox on a schedule.
type NotificationJob struct {
	dispatcher Dispatcher
	schedule   string
	batch      int
	cron       *cron.Cron
	logger     *zap.Logger
}

func NewNotificationJob(dispatcher Dispatcher, schedule string, batch int, logger *zap.Logger) *NotificationJob {
	return &NotificationJob{
		dispatcher: dispatcher,
		schedule:   schedule,
		batch:      batch,
		cron:       cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:     logger.With(zap.String("component", "notification_job")),
	}
}

func (j *NotificationJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("notification job started", zap.String("schedule", j.schedule))
	return nil
}

// Stop waits for a running batch to finish.
func (j *NotificationJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("notification job stopped")
}

func (j *NotificationJob) run() {
	pushed, err := j.dispatcher.RunOnce(context.Background(), j.batch)
	if err != nil {
		j.logger.Error("notification job failed", zap.Error(err))
		return
	}
	if pushed > 0 {
		j.logger.Debug("notifications pushed", zap.Int("count", pushed))
	}
}
