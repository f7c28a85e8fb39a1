package upload

import (
	"sync"
	"time"
)

// Progress is a point-in-time view of a transfer, delivered to per-file and
// batch progress callbacks.
type Progress struct {
	// PercentComplete is an integer in [0, 100].
	PercentComplete int
	BytesPerSecond  float64
	SpeedFormatted  string
}

// ProgressFunc receives throttled progress updates.
type ProgressFunc func(Progress)

// progressEmitter rate-limits callback invocations to one per interval.
// A forced emit always goes through, so the 100% update is never dropped.
type progressEmitter struct {
	mu       sync.Mutex
	fn       ProgressFunc
	interval time.Duration
	lastEmit time.Time
	now      func() time.Time
}

func newProgressEmitter(fn ProgressFunc, interval time.Duration) *progressEmitter {
	return &progressEmitter{
		fn:       fn,
		interval: interval,
		now:      time.Now,
	}
}

func (e *progressEmitter) emit(progress Progress, force bool) {
	if e.fn == nil {
		return
	}

	e.mu.Lock()
	now := e.now()
	if !force && now.Sub(e.lastEmit) < e.interval {
		e.mu.Unlock()
		return
	}
	e.lastEmit = now
	e.mu.Unlock()

	e.fn(progress)
}

// percentOf computes an integer percentage clamped to [0, 100].
// A zero total counts as fully done.
func percentOf(done, total int64) int {
	if total <= 0 {
		return 100
	}
	percent := int(done * 100 / total)
	if percent < 0 {
		return 0
	}
	if percent > 100 {
		return 100
	}
	return percent
}
