package batcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/vietddude/batcher/internal/commitment"
	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/core/retry"
	"github.com/vietddude/batcher/internal/ffi"
	"github.com/vietddude/batcher/internal/infra/storage/memory"
	"github.com/vietddude/batcher/internal/infra/ws"
)

func TestMain(m *testing.M) {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
	os.Exit(m.Run())
}

var fastRetry = retry.Policy{MinDelay: time.Millisecond, Factor: 2, MaxAttempts: 3}

type fixture struct {
	svc      *Service
	payment  *mockPayment
	fallback *mockPayment
	gas      *mockGas
	repo     *memory.BatchRepo
	cache    *memory.PayloadCache
}

func newFixture(t *testing.T, cfg Config) *fixture {
	t.Helper()
	f := &fixture{
		payment:  newMockPayment(1_000_000, 0, 0),
		fallback: newMockPayment(1_000_000, 0, 0),
		gas:      &mockGas{price: uint256.NewInt(25_000_000_000)},
		repo:     memory.NewBatchRepo(),
		cache:    memory.NewPayloadCache(time.Hour),
	}
	svc, err := NewService(Options{
		Config:          cfg,
		Retry:           fastRetry,
		Payment:         f.payment,
		PaymentFallback: f.fallback,
		Gas:             f.gas,
		GasFallback:     &mockGas{err: errNodeDown},
		Repository:      f.repo,
		Cache:           f.cache,
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	f.svc = svc
	return f
}

func submission(i int) domain.VerificationData {
	return domain.VerificationData{
		ProvingSystem:      domain.Risc0,
		Proof:              domain.Bytes{byte(i), 0xde, 0xad, 0xbe, 0xef},
		PubInput:           domain.Bytes{byte(i), 1},
		VMProgramCode:      domain.Bytes{0x7f, 0x45, 0x4c, 0x46},
		ProofGeneratorAddr: testAddr,
	}
}

func decodeResponse(t *testing.T, payload []byte) domain.BatchInclusionData {
	t.Helper()
	var resp domain.BatchInclusionData
	if err := ws.Decode(payload, &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestNewService_RequiresProviders(t *testing.T) {
	if _, err := NewService(Options{}); err == nil {
		t.Errorf("expected error without payment services")
	}
	if _, err := NewService(Options{Payment: newMockPayment(0, 0, 0), PaymentFallback: newMockPayment(0, 0, 0)}); err == nil {
		t.Errorf("expected error without gas providers")
	}
}

func TestSubmit_RejectsInsufficientBalance(t *testing.T) {
	f := newFixture(t, Config{})
	f.payment.balance = uint256.NewInt(0)

	err := f.svc.Submit(context.Background(), submission(0), newMockSink())
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.svc.Pending() != 0 {
		t.Errorf("rejected submission must not be queued")
	}
}

func TestSubmit_RejectsUnlockedBalance(t *testing.T) {
	f := newFixture(t, Config{})
	f.payment.unlock = uint256.NewInt(19_000_000)

	err := f.svc.Submit(context.Background(), submission(0), newMockSink())
	if !errors.Is(err, ErrBalanceUnlocked) {
		t.Fatalf("expected ErrBalanceUnlocked, got %v", err)
	}
}

func TestSubmit_RejectsOversizedItem(t *testing.T) {
	f := newFixture(t, Config{MaxBatchBytes: 16})

	err := f.svc.Submit(context.Background(), submission(0), newMockSink())
	if !errors.Is(err, ErrBatchTooLarge) {
		t.Fatalf("expected ErrBatchTooLarge, got %v", err)
	}
	if f.payment.totalCalls() != 0 {
		t.Errorf("oversized submission must be rejected before any rpc call")
	}
}

func TestSubmit_StateUnavailable(t *testing.T) {
	f := newFixture(t, Config{})
	f.payment.err = errNodeDown
	f.fallback.err = errNodeDown

	err := f.svc.Submit(context.Background(), submission(0), newMockSink())
	if !retry.IsTransient(err) {
		t.Fatalf("expected exhausted transient error, got %v", err)
	}
}

func TestSubmit_UsesFallbackState(t *testing.T) {
	f := newFixture(t, Config{})
	f.payment.err = errNodeDown

	if err := f.svc.Submit(context.Background(), submission(0), newMockSink()); err != nil {
		t.Fatalf("expected fallback to serve submitter state, got %v", err)
	}
	if f.fallback.totalCalls() != 3 {
		t.Errorf("expected balance, nonce and unlock reads from fallback, got %d", f.fallback.totalCalls())
	}
}

func TestFlush_Empty(t *testing.T) {
	f := newFixture(t, Config{})
	batch, err := f.svc.Flush(context.Background())
	if batch != nil || err != nil {
		t.Errorf("expected nothing to flush, got %+v, %v", batch, err)
	}
}

func TestFlush_CommitsAndResponds(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	observer := newMockSink()
	f.svc.AttachSink(observer)
	if _, err := f.svc.RefreshGasPrice(ctx); err != nil {
		t.Fatalf("gas refresh failed: %v", err)
	}

	sinks := make([]*mockSink, 3)
	items := make([]domain.VerificationData, 3)
	for i := range sinks {
		sinks[i] = newMockSink()
		items[i] = submission(i)
		if err := f.svc.Submit(ctx, items[i], sinks[i]); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	batch, err := f.svc.Flush(ctx)
	if err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if batch.ItemCount != 3 || f.svc.Pending() != 0 {
		t.Fatalf("expected 3 committed items and an empty queue, got %d / %d", batch.ItemCount, f.svc.Pending())
	}

	tree, err := commitment.FromBatch(items)
	if err != nil {
		t.Fatalf("FromBatch failed: %v", err)
	}
	if batch.Root != tree.Root() {
		t.Fatalf("root mismatch: %s vs %s", batch.Root.Hex(), tree.Root().Hex())
	}
	if !ffi.VerifyBytes(batch.Payload, batch.Root) {
		t.Errorf("archived payload does not verify against its root")
	}

	leaves := commitment.Leaves(items)
	for i, sink := range sinks {
		responses, _, _ := sink.snapshot()
		if len(responses) != 1 {
			t.Fatalf("sink %d: expected one response, got %d", i, len(responses))
		}
		resp := decodeResponse(t, responses[0])
		if resp.IndexInBatch != uint64(i) || common.Hash(resp.BatchMerkleRoot) != batch.Root {
			t.Errorf("sink %d: unexpected response %+v", i, resp)
		}
		if !commitment.VerifyProof(batch.Root, leaves[i], i, resp.BatchInclusionProof.MerklePath) {
			t.Errorf("sink %d: inclusion proof does not verify", i)
		}
	}

	_, messages, _ := observer.snapshot()
	if len(messages) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(messages))
	}
	notice, ok := messages[0].(domain.NewBatchNotice)
	if !ok {
		t.Fatalf("expected NewBatchNotice, got %T", messages[0])
	}
	if notice.ItemCount != 3 || common.Hash(notice.BatchMerkleRoot) != batch.Root {
		t.Errorf("unexpected notice %+v", notice)
	}
	if new(uint256.Int).SetBytes(notice.GasPrice).Uint64() != 25_000_000_000 {
		t.Errorf("notice carries wrong gas price %x", notice.GasPrice)
	}

	archived, err := f.repo.GetByRoot(ctx, batch.Root)
	if err != nil || archived.ItemCount != 3 {
		t.Errorf("batch not archived: %+v, %v", archived, err)
	}
	cached, err := f.cache.Get(ctx, batch.Root)
	if err != nil || string(cached) != string(batch.Payload) {
		t.Errorf("payload not cached: %v", err)
	}
}

func TestSubmit_CommitsWhenFull(t *testing.T) {
	size, err := itemSize(submission(0))
	if err != nil {
		t.Fatalf("itemSize failed: %v", err)
	}
	// Room for exactly two submissions of the same size.
	f := newFixture(t, Config{MaxBatchBytes: 2*(size+1) + 1})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := f.svc.Submit(ctx, submission(i), newMockSink()); err != nil {
			t.Fatalf("submit %d failed: %v", i, err)
		}
	}

	if f.svc.Pending() != 1 {
		t.Errorf("expected the third submission to start a new batch, pending %d", f.svc.Pending())
	}
	batches, _ := f.repo.ListRecent(ctx, 10)
	if len(batches) != 1 || batches[0].ItemCount != 2 {
		t.Fatalf("expected one committed batch of 2, got %+v", batches)
	}
	if batches[0].SizeBytes > 2*(size+1)+1 {
		t.Errorf("committed batch exceeds the limit: %d bytes", batches[0].SizeBytes)
	}
}

func TestFlush_RetriesTransientSend(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	sink := newMockSink()
	sink.errs = []error{retry.Transient(errors.New("stall")), nil}
	if err := f.svc.Submit(ctx, submission(0), sink); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.svc.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	responses, _, attempts := sink.snapshot()
	if attempts != 2 || len(responses) != 1 {
		t.Errorf("expected delivery on the second attempt, got %d attempts and %d responses", attempts, len(responses))
	}
}

func TestFlush_DoesNotRetryClosedSink(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	sink := newMockSink()
	sink.errs = []error{retry.Permanent(ws.ErrSinkClosed), nil, nil}
	if err := f.svc.Submit(ctx, submission(0), sink); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.svc.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	responses, _, attempts := sink.snapshot()
	if attempts != 1 || len(responses) != 0 {
		t.Errorf("expected a single attempt, got %d attempts and %d responses", attempts, len(responses))
	}
}

func TestDetachSink_StopsBroadcasts(t *testing.T) {
	f := newFixture(t, Config{})
	ctx := context.Background()

	observer := newMockSink()
	f.svc.AttachSink(observer)
	f.svc.DetachSink(observer.ID())

	if err := f.svc.Submit(ctx, submission(0), nil); err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := f.svc.Flush(ctx); err != nil {
		t.Fatalf("flush failed: %v", err)
	}
	if _, messages, _ := observer.snapshot(); len(messages) != 0 {
		t.Errorf("detached sink received %d broadcasts", len(messages))
	}
}

func TestRefreshGasPrice_Fallback(t *testing.T) {
	f := newFixture(t, Config{})
	f.svc.gas = &mockGas{err: errNodeDown}
	f.svc.gasFallback = &mockGas{price: uint256.NewInt(7)}

	if f.svc.GasPrice() != nil {
		t.Fatalf("expected no gas price before the first refresh")
	}
	price, err := f.svc.RefreshGasPrice(context.Background())
	if err != nil || price.Uint64() != 7 || f.svc.GasPrice().Uint64() != 7 {
		t.Errorf("expected fallback gas price 7, got %v, %v", price, err)
	}
}

func TestUserState(t *testing.T) {
	f := newFixture(t, Config{})
	f.payment.nonce = uint256.NewInt(12)

	state, err := f.svc.UserState(context.Background(), testAddr)
	if err != nil {
		t.Fatalf("UserState failed: %v", err)
	}
	if state.Balance.Uint64() != 1_000_000 || state.Nonce.Uint64() != 12 || state.Unlocked {
		t.Errorf("unexpected state %+v", state)
	}
}

func TestRun_FlushesOnTickAndShutdown(t *testing.T) {
	f := newFixture(t, Config{BatchInterval: 10 * time.Millisecond, GasPriceInterval: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.svc.Run(ctx) }()

	sink := newMockSink()
	if err := f.svc.Submit(ctx, submission(0), sink); err != nil {
		t.Fatalf("submit failed: %v", err)
	}

	select {
	case <-sink.delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a ticked flush")
	}

	late := newMockSink()
	f.svc.mu.Lock()
	f.svc.pending = append(f.svc.pending, pendingItem{data: submission(1), sink: late})
	f.svc.mu.Unlock()
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}

	if f.gas.calls.Load() == 0 {
		t.Errorf("expected an initial gas price refresh")
	}
	if responses, _, _ := late.snapshot(); len(responses) != 1 {
		t.Errorf("expected pending submission to be flushed on shutdown")
	}
}
