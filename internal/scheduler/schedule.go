package scheduler

import "time"

// MinInterval is the shortest period Every accepts. The scheduler only looks
// at due times once per tick, so anything shorter would fire every tick.
const MinInterval = time.Second

type interval time.Duration

// Every plans a run d after the previous one finished, e.g. the health watch.
// Periods below MinInterval are raised to it.
func Every(d time.Duration) Schedule {
	return interval(max(d, MinInterval))
}

func (i interval) Next(after time.Time) time.Time {
	return after.Add(time.Duration(i))
}

// wallClock fires once a day at a local time of day.
type wallClock struct {
	hour, minute int
}

// Daily plans a run at hour:minute local time, for maintenance that should
// happen off hours (audit prune, property snapshots). Out of range values
// wrap the way time.Date normalizes them.
func Daily(hour, minute int) Schedule {
	return wallClock{hour: hour, minute: minute}
}

// Next is the first hour:minute strictly after after.
func (w wallClock) Next(after time.Time) time.Time {
	y, m, d := after.Date()
	at := time.Date(y, m, d, w.hour, w.minute, 0, 0, after.Location())
	if at.After(after) {
		return at
	}
	return time.Date(y, m, d+1, w.hour, w.minute, 0, 0, after.Location())
}
