package upload

import (
	"context"
	"fmt"
	"sync"
)

// presignedURLCache holds presigned part-upload URLs ahead of consumption so
// chunk dispatch never waits on a presign round-trip between parts. URLs are
// fetched in batches and each entry is single-use. One cache belongs to one
// multipart session; entries stay valid for the session's lifetime, so nothing
// is ever evicted before it is taken.
type presignedURLCache struct {
	mu         sync.Mutex
	gateway    ObjectStoreGateway
	session    MultipartSession
	totalParts int32
	batchSize  int32

	urls map[int32]UploadURL
	// highestFetched is the highest part number ever requested from the
	// gateway. Taken entries below it are never re-fetched.
	highestFetched int32
}

func newPresignedURLCache(gateway ObjectStoreGateway, session MultipartSession, totalParts int32, batchSize int) *presignedURLCache {
	return &presignedURLCache{
		gateway:    gateway,
		session:    session,
		totalParts: totalParts,
		batchSize:  int32(batchSize),
		urls:       make(map[int32]UploadURL),
	}
}

// ensureAhead guarantees URLs are cached for [next, next+lookahead), clamped
// to the part plan, fetching only the gap. The refill fetches a full batch at
// a time so the cache runs ahead of consumption instead of topping up one
// entry per call.
func (c *presignedURLCache) ensureAhead(ctx context.Context, next, lookahead int32) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	want := next + lookahead - 1
	if want > c.totalParts {
		want = c.totalParts
	}
	if c.highestFetched >= want {
		return nil
	}

	from := c.highestFetched + 1
	to := from + c.batchSize - 1
	if to < want {
		to = want
	}
	if to > c.totalParts {
		to = c.totalParts
	}

	partNumbers := make([]int32, 0, to-from+1)
	for n := from; n <= to; n++ {
		partNumbers = append(partNumbers, n)
	}

	urls, err := c.gateway.PresignUploadParts(ctx, c.session, partNumbers)
	if err != nil {
		return fmt.Errorf("presign parts %d-%d: %w", from, to, err)
	}

	for _, n := range partNumbers {
		url, ok := urls[n]
		if !ok {
			return fmt.Errorf("gateway returned no URL for part %d", n)
		}
		c.urls[n] = url
	}
	c.highestFetched = to

	return nil
}

// take removes and returns the cached URL for a part.
func (c *presignedURLCache) take(partNumber int32) (UploadURL, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	url, ok := c.urls[partNumber]
	if ok {
		delete(c.urls, partNumber)
	}
	return url, ok
}

// cached returns the number of entries currently held.
func (c *presignedURLCache) cached() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.urls)
}
