package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSchedulerService(t *testing.T) {
	t.Run("Schedule Sweep", func(t *testing.T) {
		svc := NewScheduler()
		svc.Start()
		defer svc.Stop()

		var runs atomic.Int32
		err := svc.ScheduleSweep(100*time.Millisecond, func() {
			runs.Add(1)
		})
		require.NoError(t, err)

		next := svc.NextSweep()
		require.False(t, next.IsZero())

		require.Eventually(t, func() bool {
			return runs.Load() >= 2
		}, 3*time.Second, 50*time.Millisecond, "sweep task did not run repeatedly")
	})

	t.Run("Reschedule Replaces Previous Job", func(t *testing.T) {
		svc := NewScheduler()
		svc.Start()
		defer svc.Stop()

		var first, second atomic.Int32
		require.NoError(t, svc.ScheduleSweep(50*time.Millisecond, func() { first.Add(1) }))
		require.NoError(t, svc.ScheduleSweep(50*time.Millisecond, func() { second.Add(1) }))

		require.Eventually(t, func() bool {
			return second.Load() >= 2
		}, 3*time.Second, 25*time.Millisecond)

		settled := first.Load()
		time.Sleep(200 * time.Millisecond)
		require.Equal(t, settled, first.Load(), "replaced job kept running")
	})

	t.Run("Invalid Interval", func(t *testing.T) {
		svc := NewScheduler()
		err := svc.ScheduleSweep(0, func() {})
		require.Error(t, err)
		require.True(t, svc.NextSweep().IsZero())
	})
}
