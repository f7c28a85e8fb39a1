// Package network provides concrete gateways for the upload pipeline: the
// hosting service's REST API and a direct S3 connection.
package network

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/bitrise-io/go-utils/v2/log"
	"github.com/bitrise-io/go-utils/v2/retryhttp"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/gamevault/uploadkit/upload"
)

// APIParams ...
type APIParams struct {
	BaseURL string
	Token   string
}

// APIClient talks to the hosting service's upload endpoints. It acts as both
// the object-store gateway (the service brokers presigned URLs) and the
// metadata registrar.
type APIClient struct {
	httpClient  *retryablehttp.Client
	baseURL     string
	accessToken string
	logger      log.Logger
}

var _ upload.ObjectStoreGateway = (*APIClient)(nil)
var _ upload.MetadataRegistrar = (*APIClient)(nil)

// NewAPIClient ...
func NewAPIClient(params APIParams, logger log.Logger) *APIClient {
	return &APIClient{
		httpClient:  retryhttp.NewClient(logger),
		baseURL:     params.BaseURL,
		accessToken: params.Token,
		logger:      logger,
	}
}

type urlPayload struct {
	Method  string            `json:"method"`
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers"`
}

func (p urlPayload) toUploadURL() upload.UploadURL {
	return upload.UploadURL{
		Method:  p.Method,
		URL:     p.URL,
		Headers: p.Headers,
	}
}

type presignRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
	SizeInBytes int64  `json:"size_in_bytes"`
}

type presignResponse struct {
	UploadID string     `json:"upload_id"`
	Key      string     `json:"key"`
	URL      urlPayload `json:"url"`
}

type createSessionResponse struct {
	UploadID  string `json:"upload_id"`
	Key       string `json:"key"`
	SessionID string `json:"session_id"`
}

type partURLsRequest struct {
	Key         string  `json:"key"`
	PartNumbers []int32 `json:"part_numbers"`
}

type partURLsResponse struct {
	URLs []struct {
		PartNumber int32      `json:"part_number"`
		URL        urlPayload `json:"url"`
	} `json:"urls"`
}

type completeSessionRequest struct {
	Key   string        `json:"key"`
	Parts []partPayload `json:"parts"`
}

type partPayload struct {
	PartNumber int32  `json:"part_number"`
	ETag       string `json:"etag"`
}

type completeSessionResponse struct {
	Key string `json:"key"`
}

type abortSessionRequest struct {
	Key string `json:"key"`
}

type finalizeRequest struct {
	UploadID    string `json:"upload_id"`
	Key         string `json:"key"`
	Name        string `json:"name"`
	SizeInBytes int64  `json:"size_in_bytes"`
	ContentType string `json:"content_type"`
	FolderID    string `json:"folder_id"`
}

type fileRecordResponse struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Key         string    `json:"key"`
	SizeInBytes int64     `json:"size_in_bytes"`
	ContentType string    `json:"content_type"`
	FolderID    string    `json:"folder_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// PresignPut requests one presigned PUT URL for a whole-file upload.
func (c *APIClient) PresignPut(ctx context.Context, name, contentType string, sizeBytes int64) (upload.PresignedUpload, error) {
	var response presignResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/uploads/presign", c.baseURL), presignRequest{
		FileName:    name,
		ContentType: contentType,
		SizeInBytes: sizeBytes,
	}, http.StatusCreated, &response)
	if err != nil {
		return upload.PresignedUpload{}, err
	}

	return upload.PresignedUpload{
		UploadID: response.UploadID,
		Key:      response.Key,
		URL:      response.URL.toUploadURL(),
	}, nil
}

// CreateMultipartSession opens a multipart upload on the object store via the
// hosting service.
func (c *APIClient) CreateMultipartSession(ctx context.Context, name, contentType string, sizeBytes int64) (upload.MultipartSession, error) {
	var response createSessionResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/uploads/multipart", c.baseURL), presignRequest{
		FileName:    name,
		ContentType: contentType,
		SizeInBytes: sizeBytes,
	}, http.StatusCreated, &response)
	if err != nil {
		return upload.MultipartSession{}, err
	}

	return upload.MultipartSession{
		UploadID:  response.UploadID,
		Key:       response.Key,
		SessionID: response.SessionID,
	}, nil
}

// PresignUploadParts requests presigned URLs for a batch of part numbers.
func (c *APIClient) PresignUploadParts(ctx context.Context, session upload.MultipartSession, partNumbers []int32) (map[int32]upload.UploadURL, error) {
	var response partURLsResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/uploads/multipart/%s/urls", c.baseURL, session.SessionID), partURLsRequest{
		Key:         session.Key,
		PartNumbers: partNumbers,
	}, http.StatusOK, &response)
	if err != nil {
		return nil, err
	}

	urls := make(map[int32]upload.UploadURL, len(response.URLs))
	for _, entry := range response.URLs {
		urls[entry.PartNumber] = entry.URL.toUploadURL()
	}
	return urls, nil
}

// CompleteMultipartSession submits the sorted part manifest.
func (c *APIClient) CompleteMultipartSession(ctx context.Context, session upload.MultipartSession, parts []upload.PartETag) (string, error) {
	payload := completeSessionRequest{Key: session.Key}
	for _, part := range parts {
		payload.Parts = append(payload.Parts, partPayload{
			PartNumber: part.PartNumber,
			ETag:       part.ETag,
		})
	}

	var response completeSessionResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/uploads/multipart/%s/complete", c.baseURL, session.SessionID), payload, http.StatusOK, &response)
	if err != nil {
		return "", err
	}
	return response.Key, nil
}

// AbortMultipartSession tears down an open multipart upload.
func (c *APIClient) AbortMultipartSession(ctx context.Context, session upload.MultipartSession) error {
	return c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/uploads/multipart/%s/abort", c.baseURL, session.SessionID), abortSessionRequest{
		Key: session.Key,
	}, http.StatusOK, nil)
}

// FinalizeFile persists the file record now that the bytes are stored.
func (c *APIClient) FinalizeFile(ctx context.Context, meta upload.FileMetadata) (upload.FileRecord, error) {
	var response fileRecordResponse
	err := c.doJSON(ctx, http.MethodPost, fmt.Sprintf("%s/files", c.baseURL), finalizeRequest{
		UploadID:    meta.UploadID,
		Key:         meta.Key,
		Name:        meta.Name,
		SizeInBytes: meta.SizeBytes,
		ContentType: meta.ContentType,
		FolderID:    meta.FolderID,
	}, http.StatusCreated, &response)
	if err != nil {
		return upload.FileRecord{}, err
	}

	return upload.FileRecord{
		ID:          response.ID,
		Name:        response.Name,
		Key:         response.Key,
		SizeBytes:   response.SizeInBytes,
		ContentType: response.ContentType,
		FolderID:    response.FolderID,
		CreatedAt:   response.CreatedAt,
	}, nil
}

func (c *APIClient) doJSON(ctx context.Context, method, url string, requestBody interface{}, wantStatus int, responseBody interface{}) error {
	body, err := json.Marshal(requestBody)
	if err != nil {
		return err
	}

	req, err := retryablehttp.NewRequest(method, url, body)
	if err != nil {
		return err
	}
	req = req.WithContext(ctx)
	req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.accessToken))
	req.Header.Set("Content-type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func(body io.ReadCloser) {
		if err := body.Close(); err != nil {
			c.logger.Printf(err.Error())
		}
	}(resp.Body)

	if resp.StatusCode != wantStatus {
		return unwrapError(resp)
	}

	if responseBody == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(responseBody)
}

func unwrapError(resp *http.Response) error {
	errorResp, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, errorResp)
}
