package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/infra/storage"
)

// BatchRepo implements storage.BatchRepository using PostgreSQL.
type BatchRepo struct {
	db *DB
}

// NewBatchRepo creates a new PostgreSQL batch repository.
func NewBatchRepo(db *DB) *BatchRepo {
	return &BatchRepo{db: db}
}

type batchRow struct {
	MerkleRoot []byte    `db:"merkle_root"`
	ItemCount  int       `db:"item_count"`
	SizeBytes  int       `db:"size_bytes"`
	Payload    []byte    `db:"payload"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r batchRow) toDomain() *domain.Batch {
	return &domain.Batch{
		Root:      common.BytesToHash(r.MerkleRoot),
		ItemCount: r.ItemCount,
		SizeBytes: r.SizeBytes,
		Payload:   r.Payload,
		CreatedAt: r.CreatedAt,
	}
}

// Save saves a batch to the database.
func (r *BatchRepo) Save(ctx context.Context, batch *domain.Batch) error {
	query := `
		INSERT INTO batches (merkle_root, item_count, size_bytes, payload, created_at)
		VALUES (:merkle_root, :item_count, :size_bytes, :payload, :created_at)
		ON CONFLICT (merkle_root) DO NOTHING
	`

	createdAt := batch.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	payload := batch.Payload
	if payload == nil {
		payload = []byte{}
	}

	_, err := r.db.NamedExecContext(ctx, query, batchRow{
		MerkleRoot: batch.Root.Bytes(),
		ItemCount:  batch.ItemCount,
		SizeBytes:  batch.SizeBytes,
		Payload:    payload,
		CreatedAt:  createdAt,
	})
	if err != nil {
		return fmt.Errorf("failed to save batch: %w", err)
	}
	return nil
}

// GetByRoot retrieves a batch by its merkle root.
func (r *BatchRepo) GetByRoot(ctx context.Context, root common.Hash) (*domain.Batch, error) {
	query := `
		SELECT merkle_root, item_count, size_bytes, payload, created_at
		FROM batches
		WHERE merkle_root = $1
	`

	var row batchRow
	err := r.db.GetContext(ctx, &row, query, root.Bytes())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrBatchNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get batch: %w", err)
	}
	return row.toDomain(), nil
}

// ListRecent retrieves the newest batches without their payloads.
func (r *BatchRepo) ListRecent(ctx context.Context, limit int) ([]*domain.Batch, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT merkle_root, item_count, size_bytes, created_at
		FROM batches
		ORDER BY created_at DESC
		LIMIT $1
	`

	var rows []batchRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}

	batches := make([]*domain.Batch, 0, len(rows))
	for _, row := range rows {
		batches = append(batches, row.toDomain())
	}
	return batches, nil
}

// DeleteOlderThan deletes batches created before cutoff.
func (r *BatchRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, "DELETE FROM batches WHERE created_at < $1", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete old batches: %w", err)
	}
	return res.RowsAffected()
}
