//go:build integration
// +build integration

package integration

import (
	"context"
	"math/rand"
	"testing"

	"github.com/bitrise-io/go-utils/v2/env"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamevault/uploadkit/upload"
)

func TestSingleShotUpload(t *testing.T) {
	// Given
	params := storeParamsFromEnv(t)
	gateway := newTestGateway(t, params)
	registrar := &recordingRegistrar{}

	payload := randomPayload(256 * 1024)
	source := upload.NewBytesSource("single-shot.bin", "application/octet-stream", payload)

	coordinator := upload.NewCoordinator(gateway, registrar, upload.DefaultConfig(), env.NewRepository(), logger)

	// When
	record, err := coordinator.UploadFile(context.Background(), source, "integration-folder", nil)

	// Then
	require.NoError(t, err)
	assert.Equal(t, int64(len(payload)), record.SizeBytes)

	stored, err := downloadObject(context.Background(), params, record.Key)
	require.NoError(t, err)
	assert.Equal(t, checksumOf(payload), checksumOf(stored))
}

func TestMultipartUpload(t *testing.T) {
	// Given
	params := storeParamsFromEnv(t)
	gateway := newTestGateway(t, params)
	registrar := &recordingRegistrar{}

	// 11 MiB across 5 MiB parts: the store enforces a 5 MiB minimum for all
	// parts except the last.
	payload := randomPayload(11 * 1024 * 1024)
	source := upload.NewBytesSource("multipart.bin", "application/octet-stream", payload)

	config := upload.DefaultConfig()
	config.MultipartThresholdBytes = 8 * 1024 * 1024
	config.ChunkSizeBytes = 5 * 1024 * 1024

	coordinator := upload.NewCoordinator(gateway, registrar, config, env.NewRepository(), logger)

	var percents []int
	// When
	record, err := coordinator.UploadFile(context.Background(), source, "integration-folder", func(p upload.Progress) {
		percents = append(percents, p.PercentComplete)
	})

	// Then
	require.NoError(t, err)

	stored, err := downloadObject(context.Background(), params, record.Key)
	require.NoError(t, err)
	assert.Equal(t, checksumOf(payload), checksumOf(stored))

	require.NotEmpty(t, percents)
	assert.Equal(t, 100, percents[len(percents)-1])
	assert.True(t, sortedAscending(percents))
}

func TestBatchUpload(t *testing.T) {
	// Given
	params := storeParamsFromEnv(t)
	gateway := newTestGateway(t, params)
	registrar := &recordingRegistrar{}

	config := upload.DefaultConfig()
	config.MultipartThresholdBytes = 8 * 1024 * 1024
	config.ChunkSizeBytes = 5 * 1024 * 1024

	sources := []upload.FileSource{
		upload.NewBytesSource("small.bin", "application/octet-stream", randomPayload(64*1024)),
		upload.NewBytesSource("medium.bin", "application/octet-stream", randomPayload(1024*1024)),
		upload.NewBytesSource("large.bin", "application/octet-stream", randomPayload(11*1024*1024)),
	}

	coordinator := upload.NewCoordinator(gateway, registrar, config, env.NewRepository(), logger)

	// When
	result := coordinator.UploadBatch(context.Background(), sources, "integration-folder", nil)

	// Then
	require.Empty(t, result.Failed)
	require.Len(t, result.Uploaded, 3)

	for _, record := range result.Uploaded {
		stored, err := downloadObject(context.Background(), params, record.Key)
		require.NoError(t, err)
		assert.Equal(t, record.SizeBytes, int64(len(stored)))
	}
}

func randomPayload(size int) []byte {
	payload := make([]byte, size)
	rand.New(rand.NewSource(42)).Read(payload)
	return payload
}

func sortedAscending(values []int) bool {
	for i := 1; i < len(values); i++ {
		if values[i] < values[i-1] {
			return false
		}
	}
	return true
}
