// Package control wires the transport layer into a runnable application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/portalgate/internal/core/clock"
	"github.com/vietddude/portalgate/internal/core/config"
	"github.com/vietddude/portalgate/internal/health"
	"github.com/vietddude/portalgate/internal/infra/auth"
	"github.com/vietddude/portalgate/internal/infra/cache"
	"github.com/vietddude/portalgate/internal/infra/gql"
	redisclient "github.com/vietddude/portalgate/internal/infra/redis"
	"github.com/vietddude/portalgate/internal/infra/storage/sqlstore"
	"github.com/vietddude/portalgate/internal/pipeline"
	"github.com/vietddude/portalgate/internal/resilience/lifecycle"
	"github.com/vietddude/portalgate/internal/resilience/retry"
)

// grpcHealthInterval is how often the gRPC health status is refreshed.
const grpcHealthInterval = 15 * time.Second

// App owns every long-lived component: the request pipeline, the retry
// sweeper, the lifecycle scheduler and the operational servers.
type App struct {
	cfg          *config.AppConfig
	client       *pipeline.Client
	coord        *retry.Coordinator
	sweeper      *retry.Sweeper
	scheduler    *lifecycle.Scheduler
	invalidator  *cache.Invalidator
	cacheStore   *cache.Closable
	endpoint     *gql.EndpointMonitor
	credentials  auth.Provider
	token        *auth.Mutable
	healthMon    *health.Monitor
	healthServer *health.Server
	grpcServer   *health.GRPCServer
	db           *sqlstore.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	group   *errgroup.Group
	runCtx  context.Context
}

// Option customizes NewApp.
type Option func(*options)

type options struct {
	clock    clock.Clock
	log      *slog.Logger
	observer func(lifecycle.Event)
}

// WithClock replaces the wall clock for retries, sweeps and the scheduler.
func WithClock(clk clock.Clock) Option {
	return func(o *options) { o.clock = clk }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithInvalidationObserver registers a callback run after each lifecycle
// invalidation.
func WithInvalidationObserver(fn func(lifecycle.Event)) Option {
	return func(o *options) { o.observer = fn }
}

// NewApp creates an App with all dependencies initialized. Nothing runs
// until Start.
func NewApp(ctx context.Context, cfg *config.AppConfig, opts ...Option) (*App, error) {
	o := options{clock: clock.Real(), log: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{cfg: cfg, log: o.log}

	// 1. Result cache backend
	backend, ping, err := a.openCache(ctx)
	if err != nil {
		return nil, err
	}
	a.cacheStore = cache.NewClosable(backend)
	store := a.cacheStore

	// 2. Credentials
	if cfg.Auth.OAuth2.Enabled() {
		a.credentials = auth.ClientCredentials(ctx, cfg.Auth.OAuth2)
		a.log.Info("Using OAuth2 client credentials", "token_url", cfg.Auth.OAuth2.TokenURL)
	} else {
		a.token = auth.NewMutable(cfg.Auth.Token)
		a.credentials = a.token
	}

	// 3. Pipeline
	a.invalidator = cache.NewInvalidator(store, a.log)
	a.endpoint = gql.NewEndpointMonitor()
	a.coord = retry.NewCoordinator(
		cfg.RetryPolicy(),
		retry.WithClock(o.clock),
		retry.WithLogger(a.log),
	)
	a.client = pipeline.New(pipeline.Config{
		Transport:   gql.NewHTTPTransport(cfg.Endpoint.URL, cfg.Endpoint.Timeout, a.credentials),
		Coordinator: a.coord,
		Results:     cache.NewResults(store, a.log),
		Invalidator: a.invalidator,
		Recorder:    a.endpoint,
		Logger:      a.log,
	})

	// 4. Background maintenance
	a.sweeper = retry.NewSweeper(a.coord, cfg.Retry.SweepInterval, cfg.Retry.StaleAfter, o.clock)
	a.scheduler = lifecycle.NewScheduler(a.invalidator, lifecycle.Config{
		Interval: cfg.Cache.InvalidationInterval,
		Initial:  lifecycle.StateActive,
		Observer: o.observer,
		Clock:    o.clock,
		Logger:   a.log,
	})

	// 5. Operational servers
	a.healthMon = health.NewMonitor(health.MonitorConfig{
		Retries:       a.coord,
		Invalidations: a.invalidator,
		Lifecycle:     a.scheduler,
		Endpoint:      a.endpoint,
		CacheBackend:  cfg.Cache.Backend,
		CachePing:     ping,
	})
	a.healthServer = health.NewServer(a.healthMon, health.Controls{
		Retries:     a.coord,
		Lifecycle:   a.scheduler,
		Invalidator: a.invalidator,
	}, cfg.Server.Port)
	if cfg.Server.GRPCPort > 0 {
		a.grpcServer = health.NewGRPCServer(cfg.Server.GRPCPort)
		a.grpcServer.Follow(a.healthMon)
	}

	a.log.Info("Pipeline initialized",
		"endpoint", cfg.Endpoint.URL,
		"cache", cfg.Cache.Backend,
		"retry_ceiling", a.coord.Config().Ceiling,
		"base_delay", a.coord.Config().BaseDelay,
	)
	return a, nil
}

func (a *App) openCache(ctx context.Context) (cache.Store, health.Pinger, error) {
	switch a.cfg.Cache.Backend {
	case config.CacheRedis:
		client, err := redisclient.NewClient(a.cfg.Redis)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
		a.redisClient = client
		a.log.Info("Using Redis result cache")
		return redisclient.NewResultCache(client, a.cfg.Cache.Namespace, a.cfg.Cache.TTL), client, nil

	case config.CacheSQL:
		db, err := sqlstore.NewDB(ctx, a.cfg.Database)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to init db: %w", err)
		}
		a.db = db
		a.log.Info("Using SQL result cache", "driver", a.cfg.Database.Driver)
		return sqlstore.NewResultCache(db, a.cfg.Cache.TTL), health.PingFunc(db.Health), nil

	default:
		a.log.Info("Using memory result cache")
		return cache.NewMemoryStore(a.cfg.Cache.TTL), nil, nil
	}
}

// Client returns the request pipeline.
func (a *App) Client() *pipeline.Client {
	return a.client
}

// Scheduler returns the lifecycle cache scheduler.
func (a *App) Scheduler() *lifecycle.Scheduler {
	return a.scheduler
}

// Invalidator returns the cache invalidator.
func (a *App) Invalidator() *cache.Invalidator {
	return a.invalidator
}

// SetToken replaces the bearer token used by every later attempt, including
// retries already scheduled. It fails when OAuth2 manages the credential.
func (a *App) SetToken(token string) error {
	if a.token == nil {
		return errors.New("credentials are managed by oauth2")
	}
	a.token.Set(token)
	return nil
}

// Start launches the background components and servers. It returns
// immediately.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return errors.New("app already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)

	if err := a.scheduler.Start(gctx, nil); err != nil {
		cancel()
		return fmt.Errorf("failed to start lifecycle scheduler: %w", err)
	}

	g.Go(func() error {
		a.sweeper.Start(gctx)
		return nil
	})

	g.Go(func() error {
		a.log.Info("Health server listening", "port", a.cfg.Server.Port)
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	if a.grpcServer != nil {
		g.Go(func() error {
			a.log.Info("gRPC health server listening", "port", a.cfg.Server.GRPCPort)
			if err := a.grpcServer.Start(); err != nil {
				return fmt.Errorf("grpc health server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			a.grpcServer.Run(gctx, grpcHealthInterval)
			return nil
		})
	}

	if a.db != nil {
		a.db.StartMetricsCollector(gctx)
	}

	a.started = true
	a.cancel = cancel
	a.group = g
	a.runCtx = gctx
	return nil
}

// Done is closed when the app's run context ends: the parent context was
// cancelled or a server failed.
func (a *App) Done() <-chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.runCtx == nil {
		return nil
	}
	return a.runCtx.Done()
}

// Stop shuts down servers and background components and closes backends.
// Retries already scheduled are not cancelled; they keep running without the
// result cache, which is detached before its backend is closed.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	started := a.started
	a.started = false
	a.mu.Unlock()

	a.log.Info("Stopping pipeline...")

	var errs []error
	if started {
		a.scheduler.Stop()
		if a.grpcServer != nil {
			a.grpcServer.Stop()
		}
		if err := a.healthServer.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop health server: %w", err))
		}
		a.cancel()
		if err := a.group.Wait(); err != nil {
			errs = append(errs, err)
		}
	}

	a.cacheStore.Close()
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}

	return errors.Join(errs...)
}
