package upload

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

// FileFailure records one file's terminal error within a batch.
type FileFailure struct {
	Name string
	Err  error
}

// BatchResult separates finalized records from per-file failures. A failed or
// cancelled file never blocks its siblings.
type BatchResult struct {
	Uploaded []FileRecord
	Failed   []FileFailure
}

// Coordinator is the top-level entry point: it uploads batches of files with
// bounded file-level concurrency and a single weighted progress signal.
type Coordinator struct {
	gateway   ObjectStoreGateway
	registrar MetadataRegistrar
	config    Config
	logger    log.Logger
	tracker   *uploadTracker
}

// NewCoordinator creates a batch upload coordinator. Zero-valued Config fields
// fall back to defaults.
func NewCoordinator(gateway ObjectStoreGateway, registrar MetadataRegistrar, config Config, envRepo env.Repository, logger log.Logger) *Coordinator {
	return &Coordinator{
		gateway:   gateway,
		registrar: registrar,
		config:    config.normalized(),
		logger:    logger,
		tracker:   newUploadTracker(envRepo, logger),
	}
}

// UploadFile uploads a single file into a folder, reporting throttled
// per-file progress. Cancellation of ctx surfaces as an error satisfying
// IsCancelled.
func (c *Coordinator) UploadFile(ctx context.Context, source FileSource, folderID string, onProgress ProgressFunc) (FileRecord, error) {
	orch := newOrchestrator(c.gateway, c.registrar, c.config, c.logger)
	task := orch.newTaskFor(source)
	return orch.run(ctx, task, folderID, onProgress, nil)
}

// UploadBatch uploads all sources into a folder. Files are dispatched smallest
// first so early completions reach the caller quickly, with at most
// Config.FileConcurrency files in flight; a finished file immediately frees
// its slot for the next one. onProgress receives the weighted aggregate
// signal across the whole batch.
//
// Cancelling ctx stops new dispatch, aborts in-flight transfers, cleans up
// open multipart sessions, and reports every unfinished file as failed with
// an error satisfying IsCancelled.
func (c *Coordinator) UploadBatch(ctx context.Context, sources []FileSource, folderID string, onProgress ProgressFunc) BatchResult {
	started := time.Now()

	sorted := make([]FileSource, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Size() < sorted[j].Size()
	})

	orch := newOrchestrator(c.gateway, c.registrar, c.config, c.logger)
	tasks := make([]*Task, len(sorted))
	for i, source := range sorted {
		tasks[i] = orch.newTaskFor(source)
	}

	agg := newAggregator(tasks)
	emitter := newProgressEmitter(onProgress, c.config.ProgressInterval)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var result BatchResult
	semaphore := make(chan struct{}, c.config.FileConcurrency)

	for _, task := range tasks {
		// Cancellation is checked before every new file starts.
		select {
		case <-ctx.Done():
			task.setState(TaskCancelled)
			mu.Lock()
			result.Failed = append(result.Failed, FileFailure{
				Name: task.Name(),
				Err:  fmt.Errorf("%w: %s", ErrUploadCancelled, ctx.Err()),
			})
			mu.Unlock()
			continue
		case semaphore <- struct{}{}:
		}

		wg.Add(1)
		go func(task *Task) {
			defer wg.Done()
			defer func() { <-semaphore }()

			record, err := orch.run(ctx, task, folderID, nil, func(n int64) {
				agg.addBytes(n)
				emitter.emit(agg.snapshot(), false)
			})
			if err != nil {
				if IsCancelled(err) {
					c.logger.Debugf("upload of %s cancelled", task.Name())
				} else {
					c.logger.Errorf("upload of %s failed: %s", task.Name(), err)
				}
				mu.Lock()
				result.Failed = append(result.Failed, FileFailure{Name: task.Name(), Err: err})
				mu.Unlock()
				return
			}

			agg.markCompleted()
			emitter.emit(agg.snapshot(), false)

			mu.Lock()
			result.Uploaded = append(result.Uploaded, record)
			mu.Unlock()
		}(task)
	}

	wg.Wait()
	emitter.emit(agg.snapshot(), true)

	c.tracker.logBatchFinished(time.Since(started), agg.uploadedTotal(), len(result.Uploaded), len(result.Failed))
	c.tracker.wait()

	return result
}

// aggregator folds per-task byte deltas into one weighted batch signal.
// The overall percentage is the larger of the completed-file fraction and the
// byte-weighted fraction, which keeps the signal from regressing when a large
// pending file sits behind several completed small ones.
type aggregator struct {
	mu             sync.Mutex
	totalBytes     int64
	uploadedBytes  int64
	totalFiles     int
	completedFiles int
	speed          *SpeedTracker
}

func newAggregator(tasks []*Task) *aggregator {
	var total int64
	for _, task := range tasks {
		total += task.Size()
	}
	return &aggregator{
		totalBytes: total,
		totalFiles: len(tasks),
		speed:      NewSpeedTracker(),
	}
}

func (a *aggregator) addBytes(n int64) {
	a.mu.Lock()
	a.uploadedBytes += n
	a.mu.Unlock()
	a.speed.Add(n)
}

func (a *aggregator) markCompleted() {
	a.mu.Lock()
	a.completedFiles++
	a.mu.Unlock()
}

func (a *aggregator) uploadedTotal() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.uploadedBytes
}

func (a *aggregator) snapshot() Progress {
	a.mu.Lock()
	completedPercent := 0
	if a.totalFiles > 0 {
		completedPercent = a.completedFiles * 100 / a.totalFiles
	}
	bytePercent := percentOf(a.uploadedBytes, a.totalBytes)
	a.mu.Unlock()

	percent := completedPercent
	if bytePercent > percent {
		percent = bytePercent
	}

	bps := a.speed.BytesPerSecond()
	return Progress{
		PercentComplete: percent,
		BytesPerSecond:  bps,
		SpeedFormatted:  FormatSpeed(bps),
	}
}
