package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type countingDispatcher struct {
	calls atomic.Int32
	batch atomic.Int32
	err   error
}

func (d *countingDispatcher) RunOnce(_ context.Context, batch int) (int, error) {
	d.calls.Add(1)
	d.batch.Store(int32(batch))
	return 1, d.err
}

type countingSettler struct {
	calls atomic.Int32
	limit atomic.Int32
}

func (s *countingSettler) SettlePending(_ context.Context, limit int) (int, error) {
	s.calls.Add(1)
	s.limit.Store(int32(limit))
	return 0, nil
}

func TestJobs(t *testing.T) {
	t.Run("should pass the configured batch to the dispatcher", func(t *testing.T) {
		d := &countingDispatcher{}
		job := NewNotificationJob(d, "@every 5s", 25, zap.NewNop())

		job.run()
		assert.EqualValues(t, 1, d.calls.Load())
		assert.EqualValues(t, 25, d.batch.Load())
	})

	t.Run("should survive a failing dispatch", func(t *testing.T) {
		d := &countingDispatcher{err: errors.New("mongo down")}
		job := NewNotificationJob(d, "@every 5s", 25, zap.NewNop())

		assert.NotPanics(t, job.run)
	})

	t.Run("should settle in fixed batches", func(t *testing.T) {
		s := &countingSettler{}
		job := NewSettlementJob(s, "@every 1m", zap.NewNop())

		job.run()
		assert.EqualValues(t, 1, s.calls.Load())
		assert.EqualValues(t, settleBatch, s.limit.Load())
	})
}

func TestJobManager(t *testing.T) {
	t.Run("should start and stop both jobs", func(t *testing.T) {
		jm := NewJobManager(&countingDispatcher{}, &countingSettler{},
			Schedules{Notify: "@every 1h", NotifyBatch: 10, Settle: "@every 1h"}, zap.NewNop())

		require.NoError(t, jm.StartAll())
		jm.StopAll()
	})

	t.Run("should reject a bad schedule", func(t *testing.T) {
		jm := NewJobManager(&countingDispatcher{}, &countingSettler{},
			Schedules{Notify: "@every 1h", NotifyBatch: 10, Settle: "not a schedule"}, zap.NewNop())

		err := jm.StartAll()
		assert.ErrorContains(t, err, "settlement job")
	})
}
