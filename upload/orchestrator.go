package upload

import (
	"context"

	"github.com/bitrise-io/go-utils/v2/log"
)

// orchestrator drives one file end to end: strategy selection, transfer,
// metadata finalization, and terminal-state bookkeeping. Cleanup of partial
// remote state is the strategy's job; the orchestrator guarantees the task
// lands in exactly one terminal state and the error reaches the caller.
type orchestrator struct {
	gateway   ObjectStoreGateway
	registrar MetadataRegistrar
	transfer  *chunkTransfer
	config    Config
	logger    log.Logger
}

func newOrchestrator(gateway ObjectStoreGateway, registrar MetadataRegistrar, config Config, logger log.Logger) *orchestrator {
	return &orchestrator{
		gateway:   gateway,
		registrar: registrar,
		transfer:  newChunkTransfer(config.HTTPClient, config.ChunkTimeout),
		config:    config,
		logger:    logger,
	}
}

func (o *orchestrator) newTaskFor(source FileSource) *Task {
	return newTask(source, SelectStrategy(source.Size(), o.config.MultipartThresholdBytes))
}

// run uploads one task's file. onProgress receives throttled per-file
// progress; onBytes receives raw byte deltas for batch-level aggregation.
func (o *orchestrator) run(ctx context.Context, task *Task, folderID string, onProgress ProgressFunc, onBytes func(int64)) (FileRecord, error) {
	emitter := newProgressEmitter(onProgress, o.config.ProgressInterval)
	reportBytes := func(n int64) {
		if onBytes != nil {
			onBytes(n)
		}
		emitter.emit(task.progress(), false)
	}

	var strategy uploadStrategy
	switch task.strategy {
	case StrategyMultipart:
		strategy = &multipartStrategy{
			gateway:  o.gateway,
			transfer: o.transfer,
			config:   o.config,
			logger:   o.logger,
		}
	default:
		strategy = &singleShotStrategy{
			gateway:  o.gateway,
			transfer: o.transfer,
			logger:   o.logger,
		}
	}

	o.logger.Debugf("uploading %s (%d bytes) via %s strategy", task.Name(), task.Size(), task.strategy)

	if err := strategy.upload(ctx, task, reportBytes); err != nil {
		task.setState(terminalStateFor(err))
		return FileRecord{}, err
	}
	emitter.emit(task.progress(), true)

	task.setState(TaskFinalizing)
	record, err := o.registrar.FinalizeFile(ctx, FileMetadata{
		UploadID:    task.uploadID,
		Key:         task.remoteKey,
		Name:        task.Name(),
		SizeBytes:   task.Size(),
		ContentType: task.source.ContentType(),
		FolderID:    folderID,
	})
	if err != nil {
		// The object itself is stored and valid; it is left for out-of-band
		// reconciliation rather than deleted over a metadata failure.
		task.setState(terminalStateFor(err))
		return FileRecord{}, &FinalizeError{Err: err}
	}

	task.setState(TaskCompleted)
	o.logger.Infof("uploaded %s to %s", task.Name(), task.remoteKey)

	return record, nil
}
