package upload

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
)

// multipartStrategy splits a file into fixed-size parts, keeps a bounded
// number of part PUTs in flight against cached presigned URLs, and completes
// the session with a part manifest sorted by part number. Any part failure or
// cancellation aborts the whole session: partial success is never reported as
// success.
type multipartStrategy struct {
	gateway  ObjectStoreGateway
	transfer *chunkTransfer
	config   Config
	logger   log.Logger
}

type partResult struct {
	part PartETag
	err  error
}

func (s *multipartStrategy) upload(ctx context.Context, task *Task, onBytes func(int64)) error {
	source := task.source

	task.setState(TaskPresigning)
	session, err := s.gateway.CreateMultipartSession(ctx, source.Name(), source.ContentType(), source.Size())
	if err != nil {
		return &PresignError{Err: err}
	}
	task.setRemote(session.Key, session.UploadID)
	task.sessionID = session.SessionID

	task.setState(TaskTransferring)
	parts, err := s.uploadParts(ctx, task, session, onBytes)
	if err != nil {
		s.abort(session)
		return err
	}

	// The store requires strictly increasing part numbers in the manifest;
	// concurrent parts complete in arbitrary order.
	sortParts(parts)

	if _, err := s.gateway.CompleteMultipartSession(ctx, session, parts); err != nil {
		s.abort(session)
		return &CompletionError{Err: err}
	}

	return nil
}

func (s *multipartStrategy) uploadParts(ctx context.Context, task *Task, session MultipartSession, onBytes func(int64)) ([]PartETag, error) {
	size := task.source.Size()
	chunkSize := s.config.ChunkSizeBytes
	totalParts := partCount(size, chunkSize)
	lookahead := int32(s.config.ChunkConcurrency)

	cache := newPresignedURLCache(s.gateway, session, totalParts, s.config.URLBatchSize)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan partResult, totalParts)
	semaphore := make(chan struct{}, s.config.ChunkConcurrency)

	go func() {
		for n := int32(1); n <= totalParts; n++ {
			// No new dispatch once cancellation or a failure is observed.
			if ctx.Err() != nil {
				return
			}

			if err := cache.ensureAhead(ctx, n, lookahead); err != nil {
				results <- partResult{err: &PresignError{Err: err}}
				return
			}
			target, ok := cache.take(n)
			if !ok {
				results <- partResult{err: &PresignError{Err: fmt.Errorf("no cached URL for part %d", n)}}
				return
			}

			select {
			case semaphore <- struct{}{}:
			case <-ctx.Done():
				return
			}

			go func(n int32, target UploadURL) {
				defer func() { <-semaphore }()

				etag, err := s.uploadPart(ctx, task, n, totalParts, target, onBytes)
				results <- partResult{
					part: PartETag{PartNumber: n, ETag: etag},
					err:  err,
				}
			}(n, target)
		}
	}()

	parts := make([]PartETag, 0, totalParts)
	for int32(len(parts)) < totalParts {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrUploadCancelled, ctx.Err())
		case result := <-results:
			if result.err != nil {
				return nil, result.err
			}
			parts = append(parts, result.part)
		}
	}

	return parts, nil
}

func (s *multipartStrategy) uploadPart(ctx context.Context, task *Task, partNumber, totalParts int32, target UploadURL, onBytes func(int64)) (string, error) {
	offset, length := partRange(partNumber, s.config.ChunkSizeBytes, task.source.Size())

	var lastErr error
	for attempt := 1; attempt <= s.config.MaxChunkRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", fmt.Errorf("%w: part %d: %s", ErrUploadCancelled, partNumber, err)
		}

		body, err := task.source.ReadRange(offset, length)
		if err != nil {
			return "", &TransferError{Part: partNumber, Err: err}
		}

		etag, err := s.transfer.put(ctx, target, body, length, nil)
		if err == nil && etag == "" {
			err = errors.New("no ETag in response")
		}
		if err == nil {
			task.addBytes(length)
			if onBytes != nil {
				onBytes(length)
			}
			s.logger.Debugf("part %d/%d of %s uploaded (%d bytes)", partNumber, totalParts, task.Name(), length)
			return etag, nil
		}
		if IsCancelled(err) {
			return "", err
		}

		lastErr = err
		s.logger.Warnf("part %d/%d of %s attempt %d/%d failed: %s",
			partNumber, totalParts, task.Name(), attempt, s.config.MaxChunkRetries, err)
	}

	return "", &TransferError{Part: partNumber, Err: lastErr}
}

// abort tears down the remote session, best effort. It runs on its own
// context so cleanup still happens when the triggering error was a
// cancellation. An abort failure only costs orphaned storage, so it is
// logged and never escalated.
func (s *multipartStrategy) abort(session MultipartSession) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.gateway.AbortMultipartSession(ctx, session); err != nil {
		s.logger.Warnf("abort multipart session %s: %s", session.SessionID, err)
	}
}

// sortParts orders a completion manifest ascending by part number.
func sortParts(parts []PartETag) {
	sort.Slice(parts, func(i, j int) bool {
		return parts[i].PartNumber < parts[j].PartNumber
	})
}

// partCount returns ceil(size/chunkSize).
func partCount(size, chunkSize int64) int32 {
	return int32((size + chunkSize - 1) / chunkSize)
}

// partRange returns the byte range [offset, offset+length) of a 1-based part
// number. The final part carries whatever remains.
func partRange(partNumber int32, chunkSize, size int64) (offset, length int64) {
	offset = int64(partNumber-1) * chunkSize
	length = chunkSize
	if offset+length > size {
		length = size - offset
	}
	return offset, length
}
