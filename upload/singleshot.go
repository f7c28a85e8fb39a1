package upload

import (
	"context"

	"github.com/bitrise-io/go-utils/v2/log"
)

// uploadStrategy moves one file's bytes into the object store and records the
// remote identity on the task. Implementations clean up their own partial
// remote state on failure.
type uploadStrategy interface {
	upload(ctx context.Context, task *Task, onBytes func(int64)) error
}

// singleShotStrategy uploads the whole file through one presigned PUT.
// There is no partial remote state to clean up on failure: the PUT either
// stored the full object or nothing.
type singleShotStrategy struct {
	gateway  ObjectStoreGateway
	transfer *chunkTransfer
	logger   log.Logger
}

func (s *singleShotStrategy) upload(ctx context.Context, task *Task, onBytes func(int64)) error {
	source := task.source

	task.setState(TaskPresigning)
	presigned, err := s.gateway.PresignPut(ctx, source.Name(), source.ContentType(), source.Size())
	if err != nil {
		return &PresignError{Err: err}
	}
	task.setRemote(presigned.Key, presigned.UploadID)

	task.setState(TaskTransferring)
	body, err := source.ReadRange(0, source.Size())
	if err != nil {
		return &TransferError{Err: err}
	}

	s.logger.Debugf("uploading %s in a single PUT (%d bytes)", source.Name(), source.Size())
	_, err = s.transfer.put(ctx, presigned.URL, body, source.Size(), func(n int64) {
		task.addBytes(n)
		if onBytes != nil {
			onBytes(n)
		}
	})
	if err != nil {
		if IsCancelled(err) {
			return err
		}
		return &TransferError{Err: err}
	}

	return nil
}
