package jobs

import (
	"context"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const settleBatch = 100

// Settler replays payouts that were recorded but never credited.
type Settler interface {
	SettlePending(ctx context.Context, limit int) (int, error)
}

type SettlementJob struct {
	settler  Settler
	schedule string
	cron     *cron.Cron
	logger   *zap.Logger
}

func NewSettlementJob(settler Settler, schedule string, logger *zap.Logger) *SettlementJob {
	return &SettlementJob{
		settler:  settler,
		schedule: schedule,
		cron:     cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger.With(zap.String("component", "settlement_job")),
	}
}

func (j *SettlementJob) Start() error {
	if _, err := j.cron.AddFunc(j.schedule, j.run); err != nil {
		return err
	}

	j.cron.Start()
	j.logger.Info("settlement job started", zap.String("schedule", j.schedule))
	return nil
}

func (j *SettlementJob) Stop() {
	<-j.cron.Stop().Done()
	j.logger.Info("settlement job stopped")
}

func (j *SettlementJob) run() {
	settled, err := j.settler.SettlePending(context.Background(), settleBatch)
	if err != nil {
		j.logger.Error("settlement job failed", zap.Error(err))
		return
	}
	if settled > 0 {
		j.logger.Info("settled delivered orders", zap.Int("count", settled))
	}
}
