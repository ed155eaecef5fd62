// Package batcher collects verification submissions, commits them into
// merkle batches and reports inclusion back to each submitter.
//
// Submitter state is read from the payment contract through a primary and a
// fallback endpoint. Each read is one dual-source attempt, repeated over
// time by retry.Do with the configured policy.
package batcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/holiman/uint256"
	"golang.org/x/sync/errgroup"

	"github.com/vietddude/batcher/internal/commitment"
	"github.com/vietddude/batcher/internal/core/domain"
	"github.com/vietddude/batcher/internal/core/retry"
	"github.com/vietddude/batcher/internal/infra/storage"
	"github.com/vietddude/batcher/internal/infra/ws"
	"github.com/vietddude/batcher/internal/metrics"
)

var (
	ErrBatchTooLarge       = errors.New("batcher: submission exceeds max batch size")
	ErrInsufficientBalance = errors.New("batcher: insufficient balance")
	ErrBalanceUnlocked     = errors.New("batcher: balance is unlocked")
)

const (
	DefaultBatchInterval    = 12 * time.Second
	DefaultGasPriceInterval = 30 * time.Second
	DefaultMaxBatchBytes    = 2 * 1024 * 1024 * 10

	responseConcurrency = 16
)

// Sink is the outbound side of a peer connection. *ws.Sink satisfies it.
type Sink interface {
	ID() uuid.UUID
	SendMessage(ctx context.Context, msg any)
	SendResponseRetryable(ctx context.Context, payload []byte) error
}

// Config controls batching cadence and limits.
type Config struct {
	BatchInterval    time.Duration `yaml:"batch_interval"`
	GasPriceInterval time.Duration `yaml:"gas_price_interval"`
	MaxBatchBytes    int           `yaml:"max_batch_bytes"`
	// ArchiveRetention is how long committed batches stay archived. Zero
	// keeps them forever.
	ArchiveRetention time.Duration `yaml:"archive_retention"`
}

// Options wires the service to its collaborators. Repository and Cache are
// optional.
type Options struct {
	Config          Config
	Retry           retry.Policy
	Payment         PaymentService
	PaymentFallback PaymentService
	Gas             GasPriceProvider
	GasFallback     GasPriceProvider
	Repository      storage.BatchRepository
	Cache           storage.PayloadCache
}

// UserState is the on-chain payment state of a submitter.
type UserState struct {
	Balance  *uint256.Int
	Nonce    *uint256.Int
	Unlocked bool
}

type pendingItem struct {
	data domain.VerificationData
	sink Sink
}

// Service accumulates submissions and commits them in batches.
type Service struct {
	cfg   Config
	retry retry.Policy

	payment, paymentFallback PaymentService
	gas, gasFallback         GasPriceProvider
	repo                     storage.BatchRepository
	cache                    storage.PayloadCache

	mu           sync.Mutex
	pending      []pendingItem
	pendingBytes int

	sinksMu sync.RWMutex
	sinks   map[uuid.UUID]Sink

	gasPrice atomic.Pointer[uint256.Int]
}

// NewService creates a batch service.
func NewService(opts Options) (*Service, error) {
	if opts.Payment == nil || opts.PaymentFallback == nil {
		return nil, errors.New("batcher: payment service and fallback are required")
	}
	if opts.Gas == nil || opts.GasFallback == nil {
		return nil, errors.New("batcher: gas price provider and fallback are required")
	}

	cfg := opts.Config
	if cfg.BatchInterval <= 0 {
		cfg.BatchInterval = DefaultBatchInterval
	}
	if cfg.GasPriceInterval <= 0 {
		cfg.GasPriceInterval = DefaultGasPriceInterval
	}
	if cfg.MaxBatchBytes <= 0 {
		cfg.MaxBatchBytes = DefaultMaxBatchBytes
	}

	return &Service{
		cfg:             cfg,
		retry:           opts.Retry,
		payment:         opts.Payment,
		paymentFallback: opts.PaymentFallback,
		gas:             opts.Gas,
		gasFallback:     opts.GasFallback,
		repo:            opts.Repository,
		cache:           opts.Cache,
		sinks:           make(map[uuid.UUID]Sink),
	}, nil
}

// AttachSink registers a peer for batch broadcasts.
func (s *Service) AttachSink(sink Sink) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	s.sinks[sink.ID()] = sink
}

// DetachSink removes a peer. Responses already queued for it are still
// attempted and fail permanently once its connection is closed.
func (s *Service) DetachSink(id uuid.UUID) {
	s.sinksMu.Lock()
	defer s.sinksMu.Unlock()
	delete(s.sinks, id)
}

// Pending returns the number of submissions waiting for the next batch.
func (s *Service) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// GasPrice returns the last gas price read, or nil before the first refresh.
func (s *Service) GasPrice() *uint256.Int {
	return s.gasPrice.Load()
}

// UserState reads balance, nonce and unlock state of addr concurrently,
// each through retry.Do.
func (s *Service) UserState(ctx context.Context, addr common.Address) (UserState, error) {
	var state UserState
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		v, err := retry.Do(gctx, s.retry, func(ctx context.Context) (*uint256.Int, error) {
			return GetUserBalanceRetryable(ctx, addr, s.payment, s.paymentFallback)
		}, retry.WithName("user_balance"))
		state.Balance = v
		return err
	})
	g.Go(func() error {
		v, err := retry.Do(gctx, s.retry, func(ctx context.Context) (*uint256.Int, error) {
			return GetUserNonceRetryable(ctx, addr, s.payment, s.paymentFallback)
		}, retry.WithName("user_nonce"))
		state.Nonce = v
		return err
	})
	g.Go(func() error {
		v, err := retry.Do(gctx, s.retry, func(ctx context.Context) (bool, error) {
			return UserBalanceIsUnlockedRetryable(ctx, addr, s.payment, s.paymentFallback)
		}, retry.WithName("user_unlock_state"))
		state.Unlocked = v
		return err
	})

	if err := g.Wait(); err != nil {
		return UserState{}, err
	}
	return state, nil
}

// Submit validates the submitter and queues data for the next batch. The
// inclusion response is sent to sink once the batch is committed. When the
// submission does not fit the current batch, the current batch is
// committed first.
func (s *Service) Submit(ctx context.Context, data domain.VerificationData, sink Sink) error {
	size, err := itemSize(data)
	if err != nil {
		return err
	}
	if size+2 > s.cfg.MaxBatchBytes {
		return ErrBatchTooLarge
	}

	state, err := s.UserState(ctx, data.ProofGeneratorAddr)
	if err != nil {
		return fmt.Errorf("read submitter state: %w", err)
	}
	if state.Balance.IsZero() {
		return ErrInsufficientBalance
	}
	if state.Unlocked {
		return ErrBalanceUnlocked
	}

	s.mu.Lock()
	var full []pendingItem
	if len(s.pending) > 0 && s.pendingBytes+size+1 > s.cfg.MaxBatchBytes {
		full = s.takeLocked()
	}
	if len(s.pending) == 0 {
		s.pendingBytes = 1
	}
	s.pending = append(s.pending, pendingItem{data: data, sink: sink})
	s.pendingBytes += size + 1
	s.mu.Unlock()

	if full != nil {
		if _, err := s.commit(ctx, full); err != nil {
			slog.Error("Failed to commit full batch", "error", err)
		}
	}
	return nil
}

// Flush commits every pending submission. It returns nil and no error when
// nothing is pending.
func (s *Service) Flush(ctx context.Context) (*domain.Batch, error) {
	s.mu.Lock()
	items := s.takeLocked()
	s.mu.Unlock()

	if len(items) == 0 {
		return nil, nil
	}
	return s.commit(ctx, items)
}

// RefreshGasPrice reads the gas price through retry.Do and caches it.
func (s *Service) RefreshGasPrice(ctx context.Context) (*uint256.Int, error) {
	price, err := retry.Do(ctx, s.retry, func(ctx context.Context) (*uint256.Int, error) {
		return GetGasPriceRetryable(ctx, s.gas, s.gasFallback)
	}, retry.WithName("gas_price"))
	if err != nil {
		return nil, err
	}
	s.gasPrice.Store(price)
	metrics.GasPriceWei.Set(price.Float64())
	return price, nil
}

// Run refreshes the gas price and flushes batches on their intervals until
// ctx is done. Pending submissions are flushed once more on the way out.
func (s *Service) Run(ctx context.Context) error {
	if _, err := s.RefreshGasPrice(ctx); err != nil {
		slog.Warn("Initial gas price refresh failed", "error", err)
	}

	batchTicker := time.NewTicker(s.cfg.BatchInterval)
	defer batchTicker.Stop()
	gasTicker := time.NewTicker(s.cfg.GasPriceInterval)
	defer gasTicker.Stop()

	slog.Info("Batcher started",
		"batch_interval", s.cfg.BatchInterval,
		"max_batch_bytes", s.cfg.MaxBatchBytes,
	)

	for {
		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()
			if _, err := s.Flush(shutdownCtx); err != nil {
				slog.Error("Final flush failed", "error", err)
			}
			slog.Info("Batcher stopped")
			return nil
		case <-gasTicker.C:
			if _, err := s.RefreshGasPrice(ctx); err != nil {
				slog.Warn("Gas price refresh failed", "error", err)
			}
		case <-batchTicker.C:
			if _, err := s.Flush(ctx); err != nil {
				slog.Error("Batch flush failed", "error", err)
			}
		}
	}
}

func (s *Service) takeLocked() []pendingItem {
	items := s.pending
	s.pending = nil
	s.pendingBytes = 0
	return items
}

func (s *Service) commit(ctx context.Context, items []pendingItem) (*domain.Batch, error) {
	batch := make([]domain.VerificationData, len(items))
	for i, it := range items {
		batch[i] = it.data
	}

	payload, err := domain.EncodeBatch(batch)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	tree, err := commitment.FromBatch(batch)
	if err != nil {
		return nil, err
	}

	record := &domain.Batch{
		Root:      tree.Root(),
		ItemCount: len(batch),
		SizeBytes: len(payload),
		Payload:   payload,
		CreatedAt: time.Now().UTC(),
	}
	s.archive(ctx, record)

	metrics.BatchesCommitted.Inc()
	metrics.BatchSizeBytes.Observe(float64(len(payload)))
	slog.Info("Batch committed",
		"root", record.Root.Hex(),
		"items", record.ItemCount,
		"bytes", record.SizeBytes,
	)

	s.sendResponses(ctx, tree, items)
	s.broadcast(ctx, record)
	return record, nil
}

func (s *Service) archive(ctx context.Context, record *domain.Batch) {
	if s.repo != nil {
		if err := s.repo.Save(ctx, record); err != nil {
			slog.Error("Failed to archive batch", "root", record.Root.Hex(), "error", err)
		}
	}
	if s.cache != nil {
		if err := s.cache.Put(ctx, record.Root, record.Payload); err != nil {
			slog.Warn("Failed to cache batch payload", "root", record.Root.Hex(), "error", err)
		}
	}
}

func (s *Service) sendResponses(ctx context.Context, tree *commitment.Tree, items []pendingItem) {
	root := tree.Root()
	var g errgroup.Group
	g.SetLimit(responseConcurrency)

	for i, it := range items {
		if it.sink == nil {
			continue
		}
		path, err := tree.Proof(i)
		if err != nil {
			slog.Error("Failed to build inclusion proof", "index", i, "error", err)
			continue
		}
		payload, err := ws.Encode(domain.BatchInclusionData{
			BatchMerkleRoot:     root,
			BatchInclusionProof: domain.InclusionProof{MerklePath: path},
			IndexInBatch:        uint64(i),
		})
		if err != nil {
			slog.Error("Failed to encode inclusion response", "index", i, "error", err)
			continue
		}

		sink := it.sink
		g.Go(func() error {
			_, err := retry.Do(ctx, s.retry, func(ctx context.Context) (struct{}, error) {
				return struct{}{}, sink.SendResponseRetryable(ctx, payload)
			}, retry.WithName("send_response"))
			if err != nil {
				slog.Error("Failed to send inclusion response",
					"peer", sink.ID().String(),
					"index", i,
					"error", err,
				)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Service) broadcast(ctx context.Context, record *domain.Batch) {
	notice := domain.NewBatchNotice{
		BatchMerkleRoot: record.Root,
		ItemCount:       uint64(record.ItemCount),
	}
	if gp := s.gasPrice.Load(); gp != nil {
		notice.GasPrice = gp.Bytes()
	}

	s.sinksMu.RLock()
	sinks := make([]Sink, 0, len(s.sinks))
	for _, sink := range s.sinks {
		sinks = append(sinks, sink)
	}
	s.sinksMu.RUnlock()

	for _, sink := range sinks {
		sink.SendMessage(ctx, notice)
	}
}

// itemSize is the length of data inside an encoded batch, without the
// separating comma.
func itemSize(data domain.VerificationData) (int, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return 0, fmt.Errorf("encode submission: %w", err)
	}
	return len(b), nil
}
