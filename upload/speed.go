package upload

import (
	"fmt"
	"sync"
	"time"

	"github.com/docker/go-units"
)

// SpeedTracker converts cumulative byte counts into throughput readings.
// The rate is averaged over the whole transfer rather than a sliding window,
// which smooths out short spikes.
type SpeedTracker struct {
	mu      sync.Mutex
	started time.Time
	bytes   int64
	now     func() time.Time
}

// NewSpeedTracker starts tracking from the current time.
func NewSpeedTracker() *SpeedTracker {
	return newSpeedTracker(time.Now)
}

func newSpeedTracker(now func() time.Time) *SpeedTracker {
	return &SpeedTracker{
		started: now(),
		now:     now,
	}
}

// Add records n more transferred bytes.
func (t *SpeedTracker) Add(n int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.bytes += n
}

// Bytes returns the total transferred so far.
func (t *SpeedTracker) Bytes() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.bytes
}

// BytesPerSecond returns the cumulative average throughput.
func (t *SpeedTracker) BytesPerSecond() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := t.now().Sub(t.started).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(t.bytes) / elapsed
}

// Format renders the current throughput as a human-readable string, e.g. "10.5MB/s".
func (t *SpeedTracker) Format() string {
	return FormatSpeed(t.BytesPerSecond())
}

// FormatSpeed renders a bytes-per-second value as a human-readable string.
func FormatSpeed(bytesPerSecond float64) string {
	return fmt.Sprintf("%s/s", units.HumanSizeWithPrecision(bytesPerSecond, 3))
}
