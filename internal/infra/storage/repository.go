package storage

import (
	"context"
	"errors"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/core/domain"
)

var (
	// ErrBatchNotFound is returned when no batch is archived under a root
	ErrBatchNotFound = errors.New("batch not found")

	// ErrPayloadNotFound is returned when a root has no cached payload
	ErrPayloadNotFound = errors.New("batch payload not found")
)

// BatchRepository archives committed batches
type BatchRepository interface {
	// Save stores a batch. Saving the same root twice keeps the first record.
	Save(ctx context.Context, batch *domain.Batch) error

	// GetByRoot retrieves a batch together with its payload
	GetByRoot(ctx context.Context, root common.Hash) (*domain.Batch, error)

	// ListRecent returns up to limit batches, newest first, without payloads
	ListRecent(ctx context.Context, limit int) ([]*domain.Batch, error)

	// DeleteOlderThan removes batches created before the cutoff and returns
	// how many were removed
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// PayloadCache keeps serialized batches for a bounded time so they can be
// re-verified without touching the archive
type PayloadCache interface {
	Put(ctx context.Context, root common.Hash, payload []byte) error
	Get(ctx context.Context, root common.Hash) ([]byte, error)
}
