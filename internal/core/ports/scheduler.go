package ports

import (
	"time"
)

type SchedulerService interface {
	Start()
	Stop()
	// ScheduleSweep runs task every interval until the scheduler stops.
	ScheduleSweep(interval time.Duration, task func()) error
	NextSweep() time.Time
}
