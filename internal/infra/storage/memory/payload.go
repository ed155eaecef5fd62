package memory

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/infra/storage"
)

type cachedPayload struct {
	data      []byte
	expiresAt time.Time
}

// PayloadCache is an in-process storage.PayloadCache with per-entry expiry.
type PayloadCache struct {
	ttl     time.Duration
	now     func() time.Time
	entries map[common.Hash]cachedPayload
	mu      sync.Mutex
}

// NewPayloadCache creates a cache whose entries expire after ttl. A ttl of
// zero or less keeps entries forever.
func NewPayloadCache(ttl time.Duration) *PayloadCache {
	return &PayloadCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[common.Hash]cachedPayload),
	}
}

func (c *PayloadCache) Put(ctx context.Context, root common.Hash, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry := cachedPayload{data: append([]byte(nil), payload...)}
	if c.ttl > 0 {
		entry.expiresAt = c.now().Add(c.ttl)
	}
	c.entries[root] = entry
	return nil
}

func (c *PayloadCache) Get(ctx context.Context, root common.Hash) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[root]
	if !ok {
		return nil, storage.ErrPayloadNotFound
	}
	if !entry.expiresAt.IsZero() && !c.now().Before(entry.expiresAt) {
		delete(c.entries, root)
		return nil, storage.ErrPayloadNotFound
	}
	return append([]byte(nil), entry.data...), nil
}
