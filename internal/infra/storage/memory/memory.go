package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/infra/storage"
)

type BatchRepo struct {
	batches map[common.Hash]*domain.Batch
	mu      sync.RWMutex
}

func NewBatchRepo() *BatchRepo {
	return &BatchRepo{
		batches: make(map[common.Hash]*domain.Batch),
	}
}

func (r *BatchRepo) Save(ctx context.Context, batch *domain.Batch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.batches[batch.Root]; ok {
		return nil
	}
	stored := *batch
	stored.Payload = append([]byte(nil), batch.Payload...)
	r.batches[batch.Root] = &stored
	return nil
}

func (r *BatchRepo) GetByRoot(ctx context.Context, root common.Hash) (*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.batches[root]
	if !ok {
		return nil, storage.ErrBatchNotFound
	}
	out := *b
	out.Payload = append([]byte(nil), b.Payload...)
	return &out, nil
}

func (r *BatchRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]*domain.Batch, 0, len(r.batches))
	for _, b := range r.batches {
		out := *b
		out.Payload = nil
		result = append(result, &out)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (r *BatchRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var deleted int64
	for root, b := range r.batches {
		if b.CreatedAt.Before(cutoff) {
			delete(r.batches, root)
			deleted++
		}
	}
	return deleted, nil
}
