package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/vietddude/batcher/internal/infra/storage"
)

// DefaultBatchTTL is how long a batch payload stays cached when no TTL is
// configured.
const DefaultBatchTTL = 24 * time.Hour

// BatchStore caches serialized batches keyed by their merkle root.
type BatchStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewBatchStore creates a Redis-backed batch payload cache.
func NewBatchStore(client *Client, ttl time.Duration) *BatchStore {
	if ttl <= 0 {
		ttl = DefaultBatchTTL
	}
	return &BatchStore{rdb: client.rdb, ttl: ttl}
}

func batchKey(root common.Hash) string {
	return fmt.Sprintf("batch:%x", root.Bytes())
}

// Put stores payload under root. An existing entry is overwritten and its
// TTL restarted.
func (s *BatchStore) Put(ctx context.Context, root common.Hash, payload []byte) error {
	if err := s.rdb.Set(ctx, batchKey(root), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache batch: %w", err)
	}
	return nil
}

// Get returns the payload cached under root.
func (s *BatchStore) Get(ctx context.Context, root common.Hash) ([]byte, error) {
	payload, err := s.rdb.Get(ctx, batchKey(root)).Bytes()
	if err == redis.Nil {
		return nil, storage.ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached batch: %w", err)
	}
	return payload, nil
}
