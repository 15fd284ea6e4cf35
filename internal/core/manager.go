package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/eleven-am/chainflow/internal/adapters/aptoswallet"
	"github.com/eleven-am/chainflow/internal/adapters/decibel"
	"github.com/eleven-am/chainflow/internal/adapters/engine"
	"github.com/eleven-am/chainflow/internal/adapters/health"
	"github.com/eleven-am/chainflow/internal/adapters/httpapi"
	"github.com/eleven-am/chainflow/internal/adapters/node_registry"
	"github.com/eleven-am/chainflow/internal/adapters/nodes"
	"github.com/eleven-am/chainflow/internal/adapters/photon"
	"github.com/eleven-am/chainflow/internal/adapters/rate_limiter"
	"github.com/eleven-am/chainflow/internal/adapters/scheduler"
	"github.com/eleven-am/chainflow/internal/adapters/shutdown"
	"github.com/eleven-am/chainflow/internal/adapters/storage"
	"github.com/eleven-am/chainflow/internal/domain"
	"github.com/eleven-am/chainflow/internal/ports"
)

// Manager owns every long-lived component of a chainflow process and is the
// single entry point for triggers.
type Manager struct {
	config *domain.Config
	logger *slog.Logger

	store      ports.Store
	registry   *node_registry.Manager
	engine     *engine.Engine
	metrics    *engine.Metrics
	prometheus *prometheus.Registry
	wallet     *aptoswallet.Wallet
	photon     *photon.Client

	decibelLimiter *rate_limiter.Limiter
	webhookLimiter *rate_limiter.Limiter

	scheduler *scheduler.Scheduler
	health    *health.Checker
	drain     *shutdown.GracefulShutdownManager
	http      *httpapi.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	workers sync.WaitGroup
}

type options struct {
	store ports.Store
	chain aptoswallet.Chain
}

type Option func(*options)

// WithStore replaces the configured store. The manager still closes it.
func WithStore(store ports.Store) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithChain replaces the Aptos SDK client, skipping signer construction.
func WithChain(chain aptoswallet.Chain) Option {
	return func(o *options) {
		o.chain = chain
	}
}

func NewWithConfig(ctx context.Context, config *domain.Config, opts ...Option) (*Manager, error) {
	if config == nil {
		config = domain.DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "chainflow")

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	m := &Manager{
		config:     config,
		logger:     logger,
		prometheus: prometheus.NewRegistry(),
		drain:      shutdown.NewGracefulShutdownManager(logger),
	}
	m.drain.SetDrainTimeout(config.HTTP.ShutdownTimeout)
	m.prometheus.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.metrics = engine.NewMetrics(m.prometheus)

	store := o.store
	if store == nil {
		var err error
		if store, err = storage.New(ctx, config.Store, logger); err != nil {
			return nil, fmt.Errorf("open store: %w", err)
		}
	}
	m.store = store

	if err := m.buildWallet(o.chain); err != nil {
		_ = store.Close()
		return nil, err
	}

	if err := m.buildEngine(); err != nil {
		_ = store.Close()
		return nil, err
	}

	m.health = health.NewHealthChecker(m.drain, logger)
	m.health.AddProbe("store", func(ctx context.Context) error {
		_, err := m.store.ListRuns(ctx, "", 1)
		return err
	})
	m.health.AddDetail("active_runs", func() interface{} { return m.drain.Active() })
	if m.photon != nil {
		m.health.AddDetail("photon_breaker", func() interface{} { return m.photon.BreakerState().String() })
	}

	m.scheduler = scheduler.NewScheduler(m, m.store, config.Scheduler, logger)

	m.webhookLimiter = rate_limiter.NewRateLimiter("webhook", ports.RateLimiterConfig{
		RequestsPerSecond: config.HTTP.WebhookRequestsPerSecond,
		BurstSize:         config.HTTP.WebhookBurst,
	}, logger)
	m.http = httpapi.NewServer(config.HTTP, m, logger,
		httpapi.WithGatherer(m.prometheus),
		httpapi.WithWebhookLimiter(m.webhookLimiter),
		httpapi.WithReadiness(m.health.IsReady),
	)

	return m, nil
}

func (m *Manager) buildWallet(chain aptoswallet.Chain) error {
	ephemeral := m.config.Aptos.PrivateKey == ""
	if chain == nil {
		signer, err := aptoswallet.NewSignerFromConfig(m.config.Aptos, m.logger)
		if err != nil {
			return err
		}
		sdk, err := aptoswallet.NewSDKChain(m.config.Aptos, signer)
		if err != nil {
			return err
		}
		chain, ephemeral = sdk, signer.Ephemeral
	}

	m.wallet = aptoswallet.NewWallet(chain, m.config.Aptos, ephemeral, m.logger)
	return nil
}

func (m *Manager) buildEngine() error {
	cfg := m.config

	m.decibelLimiter = rate_limiter.NewRateLimiter("decibel", ports.RateLimiterConfig{
		RequestsPerSecond: cfg.Decibel.RequestsPerSecond,
		BurstSize:         cfg.Decibel.Burst,
		WaitTimeout:       cfg.Decibel.RequestTimeout,
	}, m.logger)

	quoter := decibel.NewQuoter(cfg.Decibel, m.decibelLimiter, m.logger)
	swapper := decibel.NewSwapper(m.wallet, cfg.Decibel, m.decibelLimiter, m.logger,
		decibel.WithSwapperMetrics(m.metrics))

	deps := nodes.Dependencies{
		Transfers:       m.wallet,
		Quotes:          quoter,
		Swaps:           swapper,
		SwapDestination: cfg.Decibel.DestinationAddress,
		RewardEvent:     cfg.Photon.DefaultEvent,
		Logger:          m.logger,
	}
	if cfg.Photon.Configured() {
		m.photon = photon.NewClient(cfg.Photon, m.logger)
		deps.Rewards = m.photon
	} else {
		m.logger.Info("photon api key not configured, photonReward nodes return placeholder output")
	}

	m.registry = node_registry.NewManager(m.logger)
	if err := nodes.RegisterAll(m.registry, deps); err != nil {
		return fmt.Errorf("register node handlers: %w", err)
	}

	dispatcher := engine.NewDispatcher(m.registry, m.store, m.logger,
		engine.WithRecordTimeout(cfg.Engine.RecordTimeout),
		engine.WithDispatcherMetrics(m.metrics))

	m.engine = engine.NewEngine(dispatcher, m.store, engine.Config{
		RunTimeout:    cfg.Engine.RunTimeout,
		RecordTimeout: cfg.Engine.RecordTimeout,
	}, m.logger, engine.WithMetrics(m.metrics))
	return nil
}

// Start launches the scheduler and HTTP API according to config. It does
// not block.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.cancel != nil {
		m.mu.Unlock()
		return domain.ErrAlreadyStarted
	}
	m.ctx, m.cancel = context.WithCancel(ctx)
	runCtx := m.ctx
	m.mu.Unlock()

	info, err := m.wallet.Info(runCtx)
	if err != nil {
		m.logger.Warn("wallet info unavailable", "error", err.Error())
	} else {
		m.logger.Info("execution wallet ready",
			"address", info.Address,
			"network", info.Network,
			"balance_octas", info.Balance,
			"ephemeral", info.Ephemeral)
	}

	if m.config.Aptos.FundOnStartup {
		if err := m.wallet.Fund(runCtx, aptoswallet.OctasPerAPT); err != nil {
			m.logger.Warn("faucet funding failed", "error", err.Error())
		}
	}

	if m.config.Scheduler.Enabled {
		if err := m.scheduler.Start(runCtx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
	}

	if m.config.HTTP.Enabled {
		m.workers.Add(1)
		go func() {
			defer m.workers.Done()
			if err := m.http.Start(runCtx); err != nil {
				m.logger.Error("http api stopped", "error", err.Error())
			}
		}()
	}

	m.logger.Info("chainflow started",
		"store", m.config.Store.Driver,
		"http", m.config.HTTP.Enabled,
		"scheduler", m.config.Scheduler.Enabled)
	return nil
}

// Stop refuses new runs, waits for in-flight runs up to the shutdown
// timeout, then releases every resource.
func (m *Manager) Stop() error {
	ctx := context.Background()
	if err := m.drain.InitiateGracefulShutdown(ctx); err != nil {
		m.logger.Warn("stopping with runs still in flight", "active_runs", m.drain.Active())
	}

	if m.config.Scheduler.Enabled {
		if err := m.scheduler.Stop(); err != nil && !errors.Is(err, domain.ErrNotStarted) {
			m.logger.Warn("scheduler stop failed", "error", err.Error())
		}
	}

	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.workers.Wait()

	m.decibelLimiter.Close()
	m.webhookLimiter.Close()

	if err := m.store.Close(); err != nil {
		return fmt.Errorf("close store: %w", err)
	}

	m.logger.Info("chainflow stopped")
	return nil
}

// Handler exposes the HTTP API for embedding in another server.
func (m *Manager) Handler() http.Handler {
	return m.http.Handler()
}

func (m *Manager) Registry() prometheus.Gatherer {
	return m.prometheus
}

func (m *Manager) WalletInfo(ctx context.Context) (ports.WalletInfo, error) {
	return m.wallet.Info(ctx)
}

func (m *Manager) FundWallet(ctx context.Context, octas uint64) error {
	return m.wallet.Fund(ctx, octas)
}
