package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/infra/storage"
)

func TestPayloadCache_Expiry(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	cache := NewPayloadCache(time.Minute)
	cache.now = func() time.Time { return now }

	ctx := context.Background()
	root := common.HexToHash("0x0a")
	if err := cache.Put(ctx, root, []byte("batch")); err != nil {
		t.Fatalf("put failed: %v", err)
	}

	got, err := cache.Get(ctx, root)
	if err != nil || string(got) != "batch" {
		t.Fatalf("expected cached payload, got %q, %v", got, err)
	}

	now = now.Add(time.Minute)
	if _, err := cache.Get(ctx, root); !errors.Is(err, storage.ErrPayloadNotFound) {
		t.Errorf("expected expired entry, got %v", err)
	}
}

func TestPayloadCache_NoTTL(t *testing.T) {
	cache := NewPayloadCache(0)
	ctx := context.Background()
	root := common.HexToHash("0x0b")
	_ = cache.Put(ctx, root, []byte("forever"))

	cache.now = func() time.Time { return time.Now().Add(1000 * time.Hour) }
	if _, err := cache.Get(ctx, root); err != nil {
		t.Errorf("entry without ttl expired: %v", err)
	}
}
