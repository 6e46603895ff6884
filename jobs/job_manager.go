package jobs

import (
	"fmt"

	"go.uber.org/zap"
)

// JobManager starts and stops the background jobs with the server.
type JobManager struct {
	notificationJob *NotificationJob
	settlementJob   *SettlementJob
}

type Schedules struct {
	Notify      string
	NotifyBatch int
	Settle      string
}

func NewJobManager(dispatcher Dispatcher, settler Settler, s Schedules, logger *zap.Logger) *JobManager {
	return &JobManager{
		notificationJob: NewNotificationJob(dispatcher, s.Notify, s.NotifyBatch, logger),
		settlementJob:   NewSettlementJob(settler, s.Settle, logger),
	}
}

// StartAll starts every job. If one fails the ones already running are
// stopped again.
func (jm *JobManager) StartAll() error {
	if err := jm.notificationJob.Start(); err != nil {
		return fmt.Errorf("failed to start notification job: %w", err)
	}

	if err := jm.settlementJob.Start(); err != nil {
		jm.notificationJob.Stop()
		return fmt.Errorf("failed to start settlement job: %w", err)
	}

	return nil
}

func (jm *JobManager) StopAll() {
	jm.settlementJob.Stop()
	jm.notificationJob.Stop()
}
