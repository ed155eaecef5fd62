package worker

import (
	"context"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/infra/storage/memory"
)

func TestPruner_Prune(t *testing.T) {
	repo := memory.NewBatchRepo()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)

	_ = repo.Save(ctx, &domain.Batch{Root: common.HexToHash("0x01"), CreatedAt: now.Add(-48 * time.Hour)})
	_ = repo.Save(ctx, &domain.Batch{Root: common.HexToHash("0x02"), CreatedAt: now.Add(-time.Hour)})

	p := NewPruner(24*time.Hour, repo)
	p.now = func() time.Time { return now }
	p.prune(ctx)

	list, _ := repo.ListRecent(ctx, 10)
	if len(list) != 1 || list[0].Root != common.HexToHash("0x02") {
		t.Errorf("expected only the recent batch to remain, got %+v", list)
	}
}

func TestPruner_StartDisabled(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewPruner(0, memory.NewBatchRepo()).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pruner should return immediately")
	}
}
