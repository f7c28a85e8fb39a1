package upload

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
)

// uploadSink is a presigned-URL stand-in: it records PUT bodies per path and
// can fail or stall selected parts.
type uploadSink struct {
	mu     sync.Mutex
	bodies map[string][]byte

	// failPaths respond with HTTP 500 after consuming the body.
	failPaths map[string]bool
	// stallPaths block until the client goes away.
	stallPaths map[string]bool
	// noETag suppresses the ETag response header.
	noETag bool
}

func newUploadSink() *uploadSink {
	return &uploadSink{
		bodies:     map[string][]byte{},
		failPaths:  map[string]bool{},
		stallPaths: map[string]bool{},
	}
}

func (s *uploadSink) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	s.mu.Lock()
	s.bodies[r.URL.Path] = body
	fail := s.failPaths[r.URL.Path]
	stall := s.stallPaths[r.URL.Path]
	noETag := s.noETag
	s.mu.Unlock()

	if stall {
		<-r.Context().Done()
		return
	}
	if fail {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, "injected failure")
		return
	}

	if !noETag {
		w.Header().Set("ETag", fmt.Sprintf("%q", "etag"+r.URL.Path))
	}
	w.WriteHeader(http.StatusOK)
}

func (s *uploadSink) body(path string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.bodies[path]
	return body, ok
}

func (s *uploadSink) receivedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.bodies))
	for path := range s.bodies {
		paths = append(paths, path)
	}
	return paths
}

func (s *uploadSink) receivedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bodies)
}

// sinkPath is the path a given file name / part number is PUT to.
// Part 0 is the single-shot path.
func sinkPath(name string, partNumber int32) string {
	return "/" + name + "/" + strconv.Itoa(int(partNumber))
}

// newSinkServer starts an uploadSink server and returns a gateway target
// function pointing at it.
func newSinkServer(t interface{ Cleanup(func()) }) (*uploadSink, *httptest.Server, func(name string, partNumber int32) UploadURL) {
	sink := newUploadSink()
	server := httptest.NewServer(sink)
	t.Cleanup(server.Close)

	target := func(name string, partNumber int32) UploadURL {
		return UploadURL{
			Method: http.MethodPut,
			URL:    server.URL + sinkPath(name, partNumber),
		}
	}
	return sink, server, target
}
