package queue

import "time"

// CancelFunc aborts a scheduled callback. It reports whether the callback was
// cancelled before it started running.
type CancelFunc func() bool

// Scheduler schedules a callback after a delay. Abstracted so tests can
// capture the computed delays instead of sleeping through them.
type Scheduler interface {
	Schedule(delay time.Duration, fn func()) CancelFunc
}

// TimerScheduler is the default Scheduler backed by runtime timers.
type TimerScheduler struct{}

func (TimerScheduler) Schedule(delay time.Duration, fn func()) CancelFunc {
	t := time.AfterFunc(delay, fn)
	return t.Stop
}
