package perfstats

import (
	"sync"
	"time"
)

// Accumulate samples of how long something took.
// Safe for concurrent use.
type TimeAccumulator struct {
	lock    sync.Mutex
	samples int64
	total   time.Duration
}

func (a *TimeAccumulator) Reset() {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.samples = 0
	a.total = 0
}

func (a *TimeAccumulator) AddSample(v time.Duration) {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.samples++
	a.total += v
}

// Since adds the time elapsed since start
func (a *TimeAccumulator) Since(start time.Time) {
	a.AddSample(time.Since(start))
}

func (a *TimeAccumulator) Samples() int64 {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.samples
}

func (a *TimeAccumulator) Total() time.Duration {
	a.lock.Lock()
	defer a.lock.Unlock()
	return a.total
}

func (a *TimeAccumulator) Average() time.Duration {
	a.lock.Lock()
	defer a.lock.Unlock()
	if a.samples == 0 {
		return 0
	}
	return time.Duration(a.total.Nanoseconds() / a.samples)
}
