package config

import (
	"sync"
	"sync/atomic"
	"time"
)

const defaultVisitInterval = 15 * time.Minute

var (
	visitInterval       atomic.Value
	visitIntervalSubs   []chan time.Duration
	visitIntervalSubsMu sync.Mutex
)

func init() {
	visitInterval.Store(defaultVisitInterval)
}

// CalculateBetweenTime converts a timer to a duration of at least one second.
func CalculateBetweenTime(timer Timer) time.Duration {
	intervalMs := CalculateMillisecondsOfPeriod(timer)

	minInterval := uint64(1000)
	if intervalMs < minInterval {
		intervalMs = minInterval
	}

	return time.Duration(intervalMs) * time.Millisecond
}

func CalculateMillisecondsOfPeriod(timer Timer) uint64 {
	return uint64(timer.Days)*24*60*60*1000 +
		uint64(timer.Hours)*60*60*1000 +
		uint64(timer.Minutes)*60*1000 +
		uint64(timer.Seconds)*1000
}

func GetVisitInterval() time.Duration {
	return visitInterval.Load().(time.Duration)
}

// VisitIntervalUpdates returns a channel primed with the current interval that
// receives every later change.
func VisitIntervalUpdates() <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	visitIntervalSubsMu.Lock()
	visitIntervalSubs = append(visitIntervalSubs, ch)
	visitIntervalSubsMu.Unlock()

	ch <- GetVisitInterval()
	return ch
}

// GetVisitTimeout is the per-navigation timeout for capture seed visits.
func GetVisitTimeout() time.Duration {
	seconds := GetConfig().Capture.VisitTimeout
	if seconds == 0 {
		return 30 * time.Second
	}
	return time.Duration(seconds) * time.Second
}

func calculateVisitInterval(cfg Config) time.Duration {
	timer := cfg.Capture.VisitTimer
	if timer == (Timer{}) {
		return defaultVisitInterval
	}
	return CalculateBetweenTime(timer)
}

func setVisitInterval(interval time.Duration) {
	if interval <= 0 {
		interval = defaultVisitInterval
	}

	if GetVisitInterval() == interval {
		return
	}
	visitInterval.Store(interval)

	visitIntervalSubsMu.Lock()
	defer visitIntervalSubsMu.Unlock()
	for _, ch := range visitIntervalSubs {
		select {
		case ch <- interval:
		default:
		}
	}
}
