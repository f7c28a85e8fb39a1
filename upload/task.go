package upload

import (
	"sync/atomic"
)

// TaskState is the lifecycle state of one file's upload.
type TaskState int32

// Task lifecycle states.
const (
	TaskPending TaskState = iota
	TaskPresigning
	TaskTransferring
	TaskFinalizing
	TaskCompleted
	TaskFailed
	TaskCancelled
)

// String ...
func (s TaskState) String() string {
	switch s {
	case TaskPending:
		return "pending"
	case TaskPresigning:
		return "presigning"
	case TaskTransferring:
		return "transferring"
	case TaskFinalizing:
		return "finalizing"
	case TaskCompleted:
		return "completed"
	case TaskFailed:
		return "failed"
	case TaskCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Task tracks one file's upload lifecycle. It is owned by the orchestrator
// driving it; concurrent chunk uploads only touch the atomic byte counter, and
// other goroutines only read.
type Task struct {
	source   FileSource
	strategy Strategy
	speed    *SpeedTracker

	state         int32
	uploadedBytes int64

	// Remote identity, assigned exactly once at presign time by the
	// orchestrator goroutine.
	uploadID  string
	remoteKey string
	sessionID string
}

func newTask(source FileSource, strategy Strategy) *Task {
	return &Task{
		source:   source,
		strategy: strategy,
		speed:    NewSpeedTracker(),
	}
}

// Name returns the source file name.
func (t *Task) Name() string {
	return t.source.Name()
}

// Size returns the source file size in bytes.
func (t *Task) Size() int64 {
	return t.source.Size()
}

// Strategy returns the selected upload strategy.
func (t *Task) Strategy() Strategy {
	return t.strategy
}

// State returns the current lifecycle state.
func (t *Task) State() TaskState {
	return TaskState(atomic.LoadInt32(&t.state))
}

// UploadedBytes returns the bytes transferred so far. The counter never
// decreases while the task is active and never exceeds Size.
func (t *Task) UploadedBytes() int64 {
	return atomic.LoadInt64(&t.uploadedBytes)
}

// RemoteKey returns the object-store key, empty until presign succeeds.
func (t *Task) RemoteKey() string {
	return t.remoteKey
}

func (t *Task) setState(state TaskState) {
	atomic.StoreInt32(&t.state, int32(state))
}

func (t *Task) setRemote(key, uploadID string) {
	t.remoteKey = key
	t.uploadID = uploadID
}

func (t *Task) addBytes(n int64) {
	atomic.AddInt64(&t.uploadedBytes, n)
	t.speed.Add(n)
}

func (t *Task) progress() Progress {
	bps := t.speed.BytesPerSecond()
	return Progress{
		PercentComplete: percentOf(t.UploadedBytes(), t.Size()),
		BytesPerSecond:  bps,
		SpeedFormatted:  FormatSpeed(bps),
	}
}

// terminalStateFor maps an upload error to the failed or cancelled state.
func terminalStateFor(err error) TaskState {
	if IsCancelled(err) {
		return TaskCancelled
	}
	return TaskFailed
}
