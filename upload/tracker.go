package upload

import (
	"time"

	"github.com/bitrise-io/go-utils/v2/analytics"
	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/bitrise-io/go-utils/v2/log"
)

type uploadTracker struct {
	tracker analytics.Tracker
	logger  log.Logger
}

func newUploadTracker(envRepo env.Repository, logger log.Logger) *uploadTracker {
	p := analytics.Properties{
		"app_id":  envRepo.Get("GAMEVAULT_APP_ID"),
		"user_id": envRepo.Get("GAMEVAULT_USER_ID"),
	}
	return &uploadTracker{
		tracker: analytics.NewDefaultTracker(logger, p),
		logger:  logger,
	}
}

func (t *uploadTracker) logBatchFinished(uploadTime time.Duration, uploadedBytes int64, succeeded, failed int) {
	if t == nil {
		return
	}
	properties := analytics.Properties{
		"upload_time_s":   uploadTime.Truncate(time.Second).Seconds(),
		"uploaded_bytes":  uploadedBytes,
		"files_succeeded": succeeded,
		"files_failed":    failed,
	}
	t.tracker.Enqueue("upload_batch_finished", properties)
}

func (t *uploadTracker) wait() {
	if t == nil {
		return
	}
	t.tracker.Wait()
}
