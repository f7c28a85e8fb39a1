package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/bitrise-io/go-utils/retry"
	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/google/uuid"

	"github.com/gamevault/uploadkit/upload"
)

const numS3Retries = 3

// S3Params ...
type S3Params struct {
	Bucket          string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	// Endpoint is an optional custom endpoint (MinIO, LocalStack).
	Endpoint string
	// UsePathStyle enables path-style addressing, required for MinIO.
	UsePathStyle bool
	// KeyPrefix is prepended to every generated object key.
	KeyPrefix string
	// PresignExpiry bounds how long issued URLs stay valid. Default 15m.
	PresignExpiry time.Duration
}

// S3Gateway issues presigned URLs and drives multipart sessions directly
// against an S3-compatible store, without the hosting service in the middle.
type S3Gateway struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	keyPrefix     string
	expiry        time.Duration
	logger        log.Logger
}

var _ upload.ObjectStoreGateway = (*S3Gateway)(nil)

// NewS3Gateway ...
func NewS3Gateway(ctx context.Context, params S3Params, logger log.Logger) (*S3Gateway, error) {
	if params.Bucket == "" {
		return nil, fmt.Errorf("bucket must not be empty")
	}

	cfg, err := loadAWSCredentials(ctx, params.Region, params.AccessKeyID, params.SecretAccessKey)
	if err != nil {
		return nil, fmt.Errorf("load aws credentials: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if params.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(params.Endpoint)
		})
	}
	if params.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	client := s3.NewFromConfig(*cfg, s3Opts...)

	expiry := params.PresignExpiry
	if expiry <= 0 {
		expiry = 15 * time.Minute
	}

	return &S3Gateway{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        params.Bucket,
		keyPrefix:     params.KeyPrefix,
		expiry:        expiry,
		logger:        logger,
	}, nil
}

func loadAWSCredentials(ctx context.Context, region, accessKeyID, secretKey string) (*aws.Config, error) {
	if region == "" {
		return nil, fmt.Errorf("region must not be empty")
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKeyID != "" && secretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// objectKey builds a date-sharded unique key so uploads of equally named
// files never collide.
func (g *S3Gateway) objectKey(name string) string {
	now := time.Now().UTC()
	return fmt.Sprintf("%sfiles/%d/%02d/%02d/%s/%s", g.keyPrefix, now.Year(), now.Month(), now.Day(), uuid.NewString(), name)
}

// PresignPut issues one presigned PUT URL for a whole-file upload.
func (g *S3Gateway) PresignPut(ctx context.Context, name, contentType string, sizeBytes int64) (upload.PresignedUpload, error) {
	key := g.objectKey(name)

	req, err := g.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(g.bucket),
		Key:           aws.String(key),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(sizeBytes),
	}, s3.WithPresignExpires(g.expiry))
	if err != nil {
		return upload.PresignedUpload{}, fmt.Errorf("presign put object: %w", err)
	}

	return upload.PresignedUpload{
		UploadID: uuid.NewString(),
		Key:      key,
		URL:      toUploadURL(req),
	}, nil
}

// CreateMultipartSession opens a multipart upload and returns its identifiers.
func (g *S3Gateway) CreateMultipartSession(ctx context.Context, name, contentType string, sizeBytes int64) (upload.MultipartSession, error) {
	key := g.objectKey(name)

	var sessionID string
	err := retry.Times(numS3Retries).Wait(5 * time.Second).TryWithAbort(func(attempt uint) (error, bool) {
		resp, err := g.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
			Bucket:      aws.String(g.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
		})
		if err != nil {
			if ctx.Err() != nil {
				return err, true
			}
			return fmt.Errorf("create multipart upload: %w", err), false
		}
		sessionID = aws.ToString(resp.UploadId)
		return nil, true
	})
	if err != nil {
		return upload.MultipartSession{}, err
	}

	return upload.MultipartSession{
		UploadID:  uuid.NewString(),
		Key:       key,
		SessionID: sessionID,
	}, nil
}

// PresignUploadParts issues a presigned URL per part number.
func (g *S3Gateway) PresignUploadParts(ctx context.Context, session upload.MultipartSession, partNumbers []int32) (map[int32]upload.UploadURL, error) {
	urls := make(map[int32]upload.UploadURL, len(partNumbers))
	for _, partNumber := range partNumbers {
		req, err := g.presignClient.PresignUploadPart(ctx, &s3.UploadPartInput{
			Bucket:     aws.String(g.bucket),
			Key:        aws.String(session.Key),
			UploadId:   aws.String(session.SessionID),
			PartNumber: aws.Int32(partNumber),
		}, s3.WithPresignExpires(g.expiry))
		if err != nil {
			return nil, fmt.Errorf("presign upload part %d: %w", partNumber, err)
		}
		urls[partNumber] = toUploadURL(req)
	}
	return urls, nil
}

// CompleteMultipartSession submits the sorted manifest and returns the final key.
func (g *S3Gateway) CompleteMultipartSession(ctx context.Context, session upload.MultipartSession, parts []upload.PartETag) (string, error) {
	completedParts := make([]types.CompletedPart, 0, len(parts))
	for _, part := range parts {
		completedParts = append(completedParts, types.CompletedPart{
			PartNumber: aws.Int32(part.PartNumber),
			ETag:       aws.String(part.ETag),
		})
	}

	resp, err := g.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.SessionID),
		MultipartUpload: &types.CompletedMultipartUpload{
			Parts: completedParts,
		},
	})
	if err != nil {
		return "", fmt.Errorf("complete multipart upload: %w", err)
	}

	return aws.ToString(resp.Key), nil
}

// AbortMultipartSession tears down an open multipart upload. A session the
// store no longer knows about counts as already aborted.
func (g *S3Gateway) AbortMultipartSession(ctx context.Context, session upload.MultipartSession) error {
	_, err := g.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(g.bucket),
		Key:      aws.String(session.Key),
		UploadId: aws.String(session.SessionID),
	})
	if err != nil {
		var apiError smithy.APIError
		if errors.As(err, &apiError) && apiError.ErrorCode() == "NoSuchUpload" {
			g.logger.Debugf("multipart session %s already gone", session.SessionID)
			return nil
		}
		return fmt.Errorf("abort multipart upload: %w", err)
	}
	return nil
}

func toUploadURL(req *v4.PresignedHTTPRequest) upload.UploadURL {
	headers := make(map[string]string, len(req.SignedHeader))
	for name, values := range req.SignedHeader {
		if len(values) > 0 {
			headers[http.CanonicalHeaderKey(name)] = values[0]
		}
	}
	return upload.UploadURL{
		Method:  req.Method,
		URL:     req.URL,
		Headers: headers,
	}
}
