package control

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/vietddude/batcher/internal/batcher"
	"github.com/vietddude/batcher/internal/core/config"
	"github.com/vietddude/batcher/internal/core/worker"
	"github.com/vietddude/batcher/internal/health"
	"github.com/vietddude/batcher/internal/infra/rpc/provider"
)

// App is the main application struct that manages the batcher lifecycle.
type App struct {
	cfg          *config.AppConfig
	eth          *EthClients
	stores       *Stores
	service      *batcher.Service
	pruner       *worker.Pruner
	healthServer *health.Server
	log          *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewApp creates a new App with all dependencies initialized.
func NewApp(ctx context.Context, cfg *config.AppConfig) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ethClients, err := NewEthClients(cfg.Eth)
	if err != nil {
		return nil, err
	}

	stores, err := OpenStores(ctx, cfg)
	if err != nil {
		ethClients.Close()
		return nil, err
	}

	service, err := batcher.NewService(batcher.Options{
		Config:          cfg.Batcher,
		Retry:           cfg.Retry,
		Payment:         ethClients.Payment,
		PaymentFallback: ethClients.PaymentFallback,
		Gas:             ethClients.Gas,
		GasFallback:     ethClients.GasFallback,
		Repository:      stores.Repo,
		Cache:           stores.Cache,
	})
	if err != nil {
		stores.Close()
		ethClients.Close()
		return nil, err
	}

	healthServer := health.NewServer(cfg.Server.Port)
	healthServer.AddCheck("eth", true, func(ctx context.Context) error {
		if !ethClients.Primary.GetHealth().Available && !ethClients.Fallback.GetHealth().Available {
			return errors.New("primary and fallback rpc unavailable")
		}
		return nil
	})
	healthServer.AddCheck("eth_primary", false, providerCheck(ethClients.Primary))
	healthServer.AddCheck("eth_fallback", false, providerCheck(ethClients.Fallback))
	if stores.DB != nil {
		healthServer.AddCheck("postgres", true, stores.DB.Health)
	}
	if stores.Redis != nil {
		healthServer.AddCheck("redis", false, stores.Redis.Health)
	}

	return &App{
		cfg:          cfg,
		eth:          ethClients,
		stores:       stores,
		service:      service,
		pruner:       worker.NewPruner(cfg.Batcher.ArchiveRetention, stores.Repo),
		healthServer: healthServer,
		log:          slog.Default(),
	}, nil
}

func providerCheck(p provider.RPCProvider) health.CheckFunc {
	return func(ctx context.Context) error {
		if h := p.GetHealth(); !h.Available {
			return errors.New(p.GetName() + " rpc unavailable")
		}
		return nil
	}
}

// Service returns the batch service so the session layer can attach sinks
// and submit work.
func (a *App) Service() *batcher.Service {
	return a.service
}

// Start starts the batcher and all its components.
func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// Start Health Server
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if a.stores.DB != nil {
		a.stores.DB.StartMetricsCollector(ctx)
	}

	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		if err := a.service.Run(ctx); err != nil {
			a.log.Error("Batcher failed", "error", err)
		}
	}()
	go func() {
		defer a.wg.Done()
		a.pruner.Start(ctx)
	}()

	return nil
}

// Stop stops the batcher, flushing pending submissions first.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping batcher...")

	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	var stopErr error
	select {
	case <-done:
	case <-ctx.Done():
		stopErr = ctx.Err()
	}

	if err := a.healthServer.Stop(ctx); err != nil {
		a.log.Warn("Failed to stop health server", "error", err)
	}
	a.stores.Close()
	a.eth.Close()

	a.log.Info("Batcher stopped")
	return stopErr
}
