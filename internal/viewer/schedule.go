package viewer

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const (
	everyScheduleFormat     = "@every %s"
	errMessageSchedule      = "schedule auto refresh"
	logMessageRefreshTick   = "auto refresh tick"
	logMessageRefreshMissed = "auto refresh tick dropped, previous tick pending"
	logFieldInterval        = "interval"
)

// refreshSchedule emits a tick every interval on a cron schedule. Ticks that arrive while an
// earlier one is still pending are dropped.
type refreshSchedule struct {
	scheduler *cron.Cron
	ticks     chan time.Time
}

func newRefreshSchedule(interval time.Duration, logger *zap.Logger) (*refreshSchedule, error) {
	schedule := &refreshSchedule{
		scheduler: cron.New(),
		ticks:     make(chan time.Time, 1),
	}
	_, err := schedule.scheduler.AddFunc(fmt.Sprintf(everyScheduleFormat, interval), func() {
		select {
		case schedule.ticks <- time.Now():
			logger.Debug(logMessageRefreshTick, zap.Duration(logFieldInterval, interval))
		default:
			logger.Debug(logMessageRefreshMissed, zap.Duration(logFieldInterval, interval))
		}
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errMessageSchedule, err)
	}
	schedule.scheduler.Start()
	return schedule, nil
}

func (schedule *refreshSchedule) Ticks() <-chan time.Time {
	return schedule.ticks
}

func (schedule *refreshSchedule) Stop() {
	<-schedule.scheduler.Stop().Done()
}
