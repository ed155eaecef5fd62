package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/batcher/internal/core/config"
	"github.com/vietddude/batcher/internal/infra/eth"
	redisclient "github.com/vietddude/batcher/internal/infra/redis"
	"github.com/vietddude/batcher/internal/infra/rpc/provider"
	"github.com/vietddude/batcher/internal/infra/storage"
	"github.com/vietddude/batcher/internal/infra/storage/memory"
	"github.com/vietddude/batcher/internal/infra/storage/postgres"
)

// EthClients holds the primary and fallback bindings to the backend.
type EthClients struct {
	Primary         *provider.HTTPProvider
	Fallback        *provider.HTTPProvider
	Payment         *eth.PaymentService
	PaymentFallback *eth.PaymentService
	Gas             *eth.GasOracle
	GasFallback     *eth.GasOracle
}

// NewEthClients builds both endpoints and binds the payment contract on each.
func NewEthClients(cfg config.EthConfig) (*EthClients, error) {
	if cfg.RPCURL == "" || cfg.RPCURLFallback == "" {
		return nil, errors.New("both eth.rpc_url and eth.rpc_url_fallback are required")
	}
	if !common.IsHexAddress(cfg.PaymentServiceAddress) {
		return nil, fmt.Errorf("invalid payment service address %q", cfg.PaymentServiceAddress)
	}
	addr := common.HexToAddress(cfg.PaymentServiceAddress)

	primary := provider.NewHTTPProvider("primary", cfg.RPCURL, cfg.RequestTimeout)
	fallback := provider.NewHTTPProvider("fallback", cfg.RPCURLFallback, cfg.RequestTimeout)

	return &EthClients{
		Primary:         primary,
		Fallback:        fallback,
		Payment:         eth.NewPaymentService(primary, addr),
		PaymentFallback: eth.NewPaymentService(fallback, addr),
		Gas:             eth.NewGasOracle(primary),
		GasFallback:     eth.NewGasOracle(fallback),
	}, nil
}

// Close releases idle connections of both providers.
func (c *EthClients) Close() {
	_ = c.Primary.Close()
	_ = c.Fallback.Close()
}

// Stores holds the batch archive and the payload cache.
type Stores struct {
	Repo  storage.BatchRepository
	Cache storage.PayloadCache
	DB    *postgres.DB
	Redis *redisclient.Client
}

// OpenStores connects to PostgreSQL and Redis when configured, falling back
// to in-memory stores otherwise.
func OpenStores(ctx context.Context, cfg *config.AppConfig) (*Stores, error) {
	s := &Stores{}

	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
		s.DB = db
		s.Repo = postgres.NewBatchRepo(db)
		slog.Info("Using PostgreSQL batch archive")
	} else {
		s.Repo = memory.NewBatchRepo()
		slog.Info("Using memory batch archive")
	}

	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("Failed to connect to Redis, using memory payload cache", "error", err)
		} else {
			s.Redis = client
			s.Cache = redisclient.NewBatchStore(client, cfg.Redis.BatchTTL)
		}
	}
	if s.Cache == nil {
		ttl := cfg.Redis.BatchTTL
		if ttl <= 0 {
			ttl = redisclient.DefaultBatchTTL
		}
		s.Cache = memory.NewPayloadCache(ttl)
	}

	return s, nil
}

// Close closes every open connection.
func (s *Stores) Close() {
	if s.Redis != nil {
		if err := s.Redis.Close(); err != nil {
			slog.Warn("Failed to close Redis", "error", err)
		}
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			slog.Warn("Failed to close database", "error", err)
		}
	}
}
