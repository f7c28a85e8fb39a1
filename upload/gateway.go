package upload

import (
	"context"
	"time"
)

// UploadURL is a presigned request target for a single PUT.
type UploadURL struct {
	Method  string
	URL     string
	Headers map[string]string
}

// PartETag pairs a part number with the completion token the object store
// returned for that part's upload.
type PartETag struct {
	PartNumber int32
	ETag       string
}

// PresignedUpload is the gateway's answer to a single-shot presign request.
type PresignedUpload struct {
	UploadID string
	Key      string
	URL      UploadURL
}

// MultipartSession identifies an open multipart upload on the object store.
type MultipartSession struct {
	UploadID  string
	Key       string
	SessionID string
}

// FileMetadata is everything the registrar needs to persist a file record.
type FileMetadata struct {
	UploadID    string
	Key         string
	Name        string
	SizeBytes   int64
	ContentType string
	FolderID    string
}

// FileRecord is the persisted metadata row for a finalized upload.
type FileRecord struct {
	ID          string
	Name        string
	Key         string
	SizeBytes   int64
	ContentType string
	FolderID    string
	CreatedAt   time.Time
}

// ObjectStoreGateway issues presigned upload URLs and manages multipart
// sessions on the object store.
type ObjectStoreGateway interface {
	PresignPut(ctx context.Context, name, contentType string, sizeBytes int64) (PresignedUpload, error)

	CreateMultipartSession(ctx context.Context, name, contentType string, sizeBytes int64) (MultipartSession, error)

	// PresignUploadParts returns a presigned URL per requested part number.
	// Part numbers are 1-based.
	PresignUploadParts(ctx context.Context, session MultipartSession, partNumbers []int32) (map[int32]UploadURL, error)

	// CompleteMultipartSession submits the part manifest. The manifest must be
	// sorted strictly ascending by part number.
	CompleteMultipartSession(ctx context.Context, session MultipartSession, parts []PartETag) (string, error)

	AbortMultipartSession(ctx context.Context, session MultipartSession) error
}

// MetadataRegistrar persists the file record once the bytes are durably stored.
type MetadataRegistrar interface {
	FinalizeFile(ctx context.Context, meta FileMetadata) (FileRecord, error)
}
