package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// chunkTransfer PUTs byte ranges to presigned URLs. It is the single transport
// primitive shared by both upload strategies.
type chunkTransfer struct {
	client  *http.Client
	timeout time.Duration
}

func newChunkTransfer(client *http.Client, timeout time.Duration) *chunkTransfer {
	return &chunkTransfer{
		client:  client,
		timeout: timeout,
	}
}

// put streams body to the presigned target and returns the ETag response
// header, which may be empty for stores that don't echo one on plain PUTs.
// onBytes, if set, is invoked with byte deltas as the body is consumed.
// Cancellation surfaces as ErrUploadCancelled, a request deadline as a plain
// error for the caller to classify.
func (t *chunkTransfer) put(ctx context.Context, target UploadURL, body io.Reader, size int64, onBytes func(int64)) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	if onBytes != nil {
		body = &countingReader{reader: body, onBytes: onBytes}
	}

	method := target.Method
	if method == "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, target.URL, body)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	for k, v := range target.Headers {
		req.Header.Set(k, v)
	}
	req.ContentLength = size

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return "", fmt.Errorf("%w: %s", ErrUploadCancelled, err)
		}
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errorBody := make([]byte, 1024)
		n, _ := io.ReadAtLeast(resp.Body, errorBody, 1)
		return "", fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(errorBody[:n]))
	}

	return resp.Header.Get("ETag"), nil
}

// countingReader reports byte deltas as they are read off the request body.
type countingReader struct {
	reader  io.Reader
	onBytes func(int64)
}

func (r *countingReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.onBytes(int64(n))
	}
	return n, err
}
