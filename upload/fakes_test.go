package upload

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeGateway satisfies ObjectStoreGateway for tests. Part and PUT targets
// are built by the injected target function, usually pointing at an
// httptest server.
type fakeGateway struct {
	mu sync.Mutex

	// target builds the URL a given file name / part number should be PUT to.
	// Part number 0 means a single-shot upload.
	target func(name string, partNumber int32) UploadURL

	presignErr  error
	createErr   error
	partURLsErr error
	completeErr error
	abortErr    error

	presignedFiles   []string
	openedSessions   []string
	presignedBatches [][]int32
	completedParts   []PartETag
	completeCalls    int
	abortCalls       int
}

func (g *fakeGateway) PresignPut(ctx context.Context, name, contentType string, sizeBytes int64) (PresignedUpload, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.presignErr != nil {
		return PresignedUpload{}, g.presignErr
	}
	g.presignedFiles = append(g.presignedFiles, name)
	return PresignedUpload{
		UploadID: "upload-" + name,
		Key:      "files/" + name,
		URL:      g.target(name, 0),
	}, nil
}

func (g *fakeGateway) CreateMultipartSession(ctx context.Context, name, contentType string, sizeBytes int64) (MultipartSession, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.createErr != nil {
		return MultipartSession{}, g.createErr
	}
	g.openedSessions = append(g.openedSessions, name)
	return MultipartSession{
		UploadID:  "upload-" + name,
		Key:       "files/" + name,
		SessionID: "session-" + name,
	}, nil
}

func (g *fakeGateway) PresignUploadParts(ctx context.Context, session MultipartSession, partNumbers []int32) (map[int32]UploadURL, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.partURLsErr != nil {
		return nil, g.partURLsErr
	}

	batch := make([]int32, len(partNumbers))
	copy(batch, partNumbers)
	g.presignedBatches = append(g.presignedBatches, batch)

	name := sessionName(session)
	urls := make(map[int32]UploadURL, len(partNumbers))
	for _, n := range partNumbers {
		urls[n] = g.target(name, n)
	}
	return urls, nil
}

func (g *fakeGateway) CompleteMultipartSession(ctx context.Context, session MultipartSession, parts []PartETag) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.completeCalls++
	if g.completeErr != nil {
		return "", g.completeErr
	}
	g.completedParts = append([]PartETag(nil), parts...)
	return session.Key, nil
}

func (g *fakeGateway) AbortMultipartSession(ctx context.Context, session MultipartSession) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.abortCalls++
	return g.abortErr
}

func (g *fakeGateway) presignBatchCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.presignedBatches)
}

func (g *fakeGateway) abortCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.abortCalls
}

func (g *fakeGateway) completeCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.completeCalls
}

func (g *fakeGateway) manifest() []PartETag {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]PartETag(nil), g.completedParts...)
}

func sessionName(session MultipartSession) string {
	return session.SessionID[len("session-"):]
}

// fakeRegistrar records finalize calls.
type fakeRegistrar struct {
	mu sync.Mutex

	finalizeErr error
	finalized   []FileMetadata
}

func (r *fakeRegistrar) FinalizeFile(ctx context.Context, meta FileMetadata) (FileRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.finalizeErr != nil {
		return FileRecord{}, r.finalizeErr
	}
	r.finalized = append(r.finalized, meta)
	return FileRecord{
		ID:          fmt.Sprintf("file-%d", len(r.finalized)),
		Name:        meta.Name,
		Key:         meta.Key,
		SizeBytes:   meta.SizeBytes,
		ContentType: meta.ContentType,
		FolderID:    meta.FolderID,
		CreatedAt:   time.Now(),
	}, nil
}

func (r *fakeRegistrar) finalizedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.finalized)
}

type fakeEnvRepo struct {
	envVars map[string]string
}

func (repo fakeEnvRepo) Get(key string) string {
	return repo.envVars[key]
}

func (repo fakeEnvRepo) Set(key, value string) error {
	repo.envVars[key] = value
	return nil
}

func (repo fakeEnvRepo) Unset(key string) error {
	delete(repo.envVars, key)
	return nil
}

func (repo fakeEnvRepo) List() []string {
	envs := []string{}
	for k, v := range repo.envVars {
		envs = append(envs, fmt.Sprintf("%s=%s", k, v))
	}
	return envs
}
