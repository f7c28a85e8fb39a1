//go:build integration
// +build integration

package integration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bitrise-io/go-utils/v2/log"

	"github.com/gamevault/uploadkit/upload"
	"github.com/gamevault/uploadkit/upload/network"
)

var logger = log.NewLogger()

// storeParams reads the S3-compatible test store location from the
// environment. Tests are skipped when no store is configured, so the suite
// stays runnable against MinIO, LocalStack or a real bucket alike.
type storeParams struct {
	endpoint        string
	region          string
	bucket          string
	accessKeyID     string
	secretAccessKey string
}

func storeParamsFromEnv(t *testing.T) storeParams {
	params := storeParams{
		endpoint:        os.Getenv("GAMEVAULT_TEST_S3_ENDPOINT"),
		region:          os.Getenv("GAMEVAULT_TEST_S3_REGION"),
		bucket:          os.Getenv("GAMEVAULT_TEST_S3_BUCKET"),
		accessKeyID:     os.Getenv("GAMEVAULT_TEST_S3_ACCESS_KEY"),
		secretAccessKey: os.Getenv("GAMEVAULT_TEST_S3_SECRET_KEY"),
	}
	if params.bucket == "" || params.region == "" {
		t.Skip("GAMEVAULT_TEST_S3_BUCKET and GAMEVAULT_TEST_S3_REGION must be set")
	}
	return params
}

func newTestGateway(t *testing.T, params storeParams) *network.S3Gateway {
	gateway, err := network.NewS3Gateway(context.Background(), network.S3Params{
		Bucket:          params.bucket,
		Region:          params.region,
		AccessKeyID:     params.accessKeyID,
		SecretAccessKey: params.secretAccessKey,
		Endpoint:        params.endpoint,
		UsePathStyle:    params.endpoint != "",
		KeyPrefix:       "integration/",
		PresignExpiry:   10 * time.Minute,
	}, logger)
	if err != nil {
		t.Fatalf("create gateway: %s", err)
	}
	return gateway
}

// downloadObject fetches a stored object directly, bypassing the upload
// pipeline, so the test verifies what actually landed in the store.
func downloadObject(ctx context.Context, params storeParams, key string) ([]byte, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(params.region),
	}
	if params.accessKeyID != "" && params.secretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(params.accessKeyID, params.secretAccessKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}

	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		if params.endpoint != "" {
			o.BaseEndpoint = aws.String(params.endpoint)
			o.UsePathStyle = true
		}
	})

	resp, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(params.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			logger.Warnf("close download body: %s", err)
		}
	}()
	return io.ReadAll(resp.Body)
}

func checksumOf(bytes []byte) string {
	hash := sha256.New()
	hash.Write(bytes)
	return hex.EncodeToString(hash.Sum(nil))
}

// recordingRegistrar stands in for the hosting service's metadata API, which
// is not part of the store-only integration environment.
type recordingRegistrar struct {
	mu      sync.Mutex
	records []upload.FileMetadata
}

func (r *recordingRegistrar) FinalizeFile(_ context.Context, meta upload.FileMetadata) (upload.FileRecord, error) {
	r.mu.Lock()
	r.records = append(r.records, meta)
	r.mu.Unlock()
	return upload.FileRecord{
		ID:          meta.UploadID,
		Name:        meta.Name,
		Key:         meta.Key,
		SizeBytes:   meta.SizeBytes,
		ContentType: meta.ContentType,
		FolderID:    meta.FolderID,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
