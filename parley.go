package parley

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/aretw0/parley/internal/apicall"
	"github.com/aretw0/parley/internal/config"
	"github.com/aretw0/parley/internal/handlers"
	"github.com/aretw0/parley/internal/interact"
	"github.com/aretw0/parley/internal/logging"
	"github.com/aretw0/parley/internal/runtime"
	"github.com/aretw0/parley/pkg/adapters/bolt"
	"github.com/aretw0/parley/pkg/adapters/file"
	httpAdapter "github.com/aretw0/parley/pkg/adapters/http"
	"github.com/aretw0/parley/pkg/adapters/memory"
	redisAdapter "github.com/aretw0/parley/pkg/adapters/redis"
	"github.com/aretw0/parley/pkg/ai"
	"github.com/aretw0/parley/pkg/domain"
	"github.com/aretw0/parley/pkg/nlu"
	"github.com/aretw0/parley/pkg/observability"
	"github.com/aretw0/parley/pkg/persistence/middleware"
	"github.com/aretw0/parley/pkg/ports"
	"github.com/aretw0/parley/pkg/session"
	goredis "github.com/redis/go-redis/v9"
)

// App is a fully wired conversation engine: project data, session storage, outbound
// integrations and observability, built from a config.Config.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Data     *memory.CachedDataAPI
	Engine   *interact.Interactor
	Sessions *session.Manager
	// Metrics is nil when server.metrics is disabled.
	Metrics *observability.Metrics

	closers []func() error
}

// Option customizes how New wires the App.
type Option func(*options)

type options struct {
	logger *slog.Logger
	data   ports.DataAPI
	store  ports.StateStore
	redis  goredis.UniversalClient
	hooks  []domain.LifecycleHooks
	client *http.Client
}

// WithLogger overrides the logger built from the log section.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDataAPI replaces the project directory as the source of versions and programs.
func WithDataAPI(api ports.DataAPI) Option {
	return func(o *options) {
		o.data = api
	}
}

// WithStateStore replaces the configured session store. Encryption and PII masking
// still apply on top of it.
func WithStateStore(store ports.StateStore) Option {
	return func(o *options) {
		o.store = store
	}
}

// WithRedisClient reuses an existing client instead of dialing redis.addr.
func WithRedisClient(client goredis.UniversalClient) Option {
	return func(o *options) {
		o.redis = client
	}
}

// WithLifecycleHooks adds hooks after the built-in logging and metrics hooks.
func WithLifecycleHooks(hooks domain.LifecycleHooks) Option {
	return func(o *options) {
		o.hooks = append(o.hooks, hooks)
	}
}

// WithAPIHTTPClient replaces the hardened client used by api nodes.
// Meant for tests against local servers, which the default security policy rejects.
func WithAPIHTTPClient(c *http.Client) Option {
	return func(o *options) {
		o.client = c
	}
}

// New wires an App. Watching the project directory, when enabled, lasts until ctx is done.
// Call Close to release the session store and redis connection.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	app := &App{Config: cfg, Logger: o.logger}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	if app.Logger == nil {
		level, err := logging.ParseLevel(cfg.Log.Level)
		if err != nil {
			return nil, err
		}
		app.Logger = logging.New(level, cfg.Log.Format)
	}
	logger := app.Logger

	// Project data
	backend := o.data
	if backend == nil {
		backend = file.NewDataAPI(cfg.Data.Dir, file.WithLogger(logger))
	}
	app.Data = memory.NewCachedDataAPI(backend, memory.WithCacheLogger(logger))
	if cfg.Data.Watch {
		if err := app.Data.InvalidateOnChange(ctx); err != nil {
			return nil, fmt.Errorf("failed to watch project data: %w", err)
		}
	}

	client := o.redis
	if client == nil && cfg.UsesRedis() {
		c := redisAdapter.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		app.closers = append(app.closers, c.Close)
		if err := c.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("failed to reach redis at %s: %w", cfg.Redis.Addr, err)
		}
		client = c
	}

	// Sessions
	store := o.store
	if store == nil {
		if store, err = app.openStore(cfg, client); err != nil {
			return nil, err
		}
	}
	if store, err = wrapStore(store, cfg.Session); err != nil {
		return nil, err
	}
	sessionOpts := []session.Option{
		session.WithLogger(logger),
		session.WithLockTTL(cfg.Session.LockTTL),
	}
	if cfg.Session.DistributedLock {
		sessionOpts = append(sessionOpts, session.WithLocker(redisAdapter.NewLocker(client, cfg.Redis.Prefix)))
	}
	app.Sessions = session.NewManager(store, sessionOpts...)

	// Observability
	chain := []domain.LifecycleHooks{observability.LogHooks(logger)}
	if cfg.Server.Metrics {
		app.Metrics = observability.NewMetrics()
		chain = append(chain, app.Metrics.Hooks())
	}
	hooks := observability.Chain(append(chain, o.hooks...)...)

	// Integrations
	invoker, err := newInvoker(cfg.API, cfg.Redis.Prefix, client, o.client, logger, hooks)
	if err != nil {
		return nil, err
	}
	deps := handlers.Dependencies{API: invoker}
	if cfg.AI.Endpoint != "" {
		model := ai.WithTimeout(ai.NewHTTPModel(cfg.AI.Endpoint,
			ai.WithAPIKey(cfg.AI.APIKey),
			ai.WithDefaultModel(cfg.AI.Model),
		), cfg.AI.Timeout)
		deps.Model = model
		deps.Generator = ai.NewNoMatchGenerator(model,
			ai.WithPlanGate(ai.PlanGate{
				Enabled:          cfg.AI.PlanGate.Enabled,
				AllowedPlans:     cfg.AI.PlanGate.AllowedPlans,
				RestrictedModels: cfg.AI.PlanGate.RestrictedModels,
				Message:          cfg.AI.PlanGate.Message,
			}),
			ai.WithLogger(logger),
		)
	}

	engineOpts := []interact.Option{
		interact.WithLogger(logger),
		interact.WithRegistry(handlers.NewRegistry(deps)),
		interact.WithMaxInputSize(cfg.Runtime.MaxInput),
		interact.WithRuntimeOptions(
			runtime.WithLogger(logger),
			runtime.WithLifecycleHooks(hooks),
			runtime.WithMaxSteps(cfg.Runtime.MaxSteps),
			runtime.WithMaxStackDepth(cfg.Runtime.MaxDepth),
			runtime.WithDebugTraces(cfg.Runtime.DebugTraces),
		),
	}
	if cfg.NLU.Endpoint != "" {
		nluClient := nlu.NewClient(cfg.NLU.Endpoint,
			nlu.WithHTTPClient(&http.Client{Timeout: cfg.NLU.Timeout}),
			nlu.WithLogger(logger),
		)
		engineOpts = append(engineOpts, interact.WithClassifier(interact.RemoteClassifier{Client: nluClient}))
	}
	app.Engine = interact.New(app.Data, engineOpts...)

	logger.Info("parley ready",
		"data", cfg.Data.Dir,
		"session_store", cfg.Session.Store,
		"nlu", cfg.NLU.Endpoint != "",
		"ai", cfg.AI.Endpoint != "",
	)
	return app, nil
}

func (a *App) openStore(cfg *config.Config, client goredis.UniversalClient) (ports.StateStore, error) {
	switch cfg.Session.Store {
	case config.StoreMemory:
		return memory.NewStore(), nil
	case config.StoreFile:
		return file.NewStore(cfg.Session.Path), nil
	case config.StoreBolt:
		if err := os.MkdirAll(filepath.Dir(cfg.Session.Path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create session directory: %w", err)
		}
		s, err := bolt.Open(cfg.Session.Path)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case config.StoreRedis:
		return redisAdapter.NewStore(client,
			redisAdapter.WithPrefix(cfg.Redis.Prefix),
			redisAdapter.WithTTL(cfg.Session.TTL),
		), nil
	default:
		return nil, fmt.Errorf("unknown session store %q", cfg.Session.Store)
	}
}

// wrapStore masks PII before encrypting, so masked values are what reaches the backend.
func wrapStore(store ports.StateStore, cfg config.SessionConfig) (ports.StateStore, error) {
	var mws []middleware.Middleware
	if len(cfg.PIIPatterns) > 0 {
		pii, err := middleware.NewPIIMiddleware(cfg.PIIPatterns)
		if err != nil {
			return nil, fmt.Errorf("session.pii_patterns: %w", err)
		}
		mws = append(mws, pii)
	}
	if cfg.EncryptionKey != "" {
		active, fallback, err := cfg.Keys()
		if err != nil {
			return nil, err
		}
		enc, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{
			ActiveKey:    active,
			FallbackKeys: fallback,
		})
		if err != nil {
			return nil, err
		}
		mws = append(mws, enc)
	}
	return middleware.Wrap(store, mws...), nil
}

func newInvoker(cfg config.APIConfig, redisPrefix string, client goredis.UniversalClient, httpClient *http.Client, logger *slog.Logger, hooks domain.LifecycleHooks) (*apicall.Invoker, error) {
	blocklist, err := apicall.CompileBlocklist(cfg.Blocklist)
	if err != nil {
		return nil, fmt.Errorf("api.blocklist: %w", err)
	}
	policy := apicall.NewSecurityPolicy(apicall.WithBlocklist(blocklist...))
	if httpClient == nil {
		httpClient = apicall.NewHTTPClient(policy)
	}

	var limiter ports.RateLimiter
	switch cfg.RateLimiter {
	case config.StoreRedis:
		limiter = redisAdapter.NewRateLimiter(client, redisPrefix, cfg.ThrottleThreshold, cfg.ThrottleWindow)
	default:
		limiter = apicall.NewMemoryRateLimiter(cfg.ThrottleThreshold, cfg.ThrottleWindow)
	}

	return apicall.NewInvoker(
		apicall.WithSecurityPolicy(policy),
		apicall.WithRateLimiter(limiter),
		apicall.WithHTTPClient(httpClient),
		apicall.WithResponseConfig(apicall.ResponseConfig{
			Timeout:               cfg.Timeout,
			MaxRequestBodyLength:  cfg.MaxRequestLength,
			MaxResponseBodyLength: cfg.MaxResponseLength,
		}),
		apicall.WithThrottleDelay(cfg.ThrottleDelay),
		apicall.WithLogger(logger),
		apicall.WithLifecycleHooks(hooks),
	), nil
}

// Handler returns the HTTP API of the app: stateless and session-backed endpoints, plus
// /metrics when metrics are enabled.
func (a *App) Handler() http.Handler {
	opts := []httpAdapter.Option{
		httpAdapter.WithSessions(a.Sessions),
		httpAdapter.WithLogger(a.Logger),
		httpAdapter.WithMaxBodyBytes(a.Config.Server.MaxBodyBytes),
	}
	if a.Metrics != nil {
		opts = append(opts, httpAdapter.WithMetricsHandler(a.Metrics.Handler()))
	}
	return httpAdapter.NewHandler(a.Engine, opts...)
}

// Turn runs one turn of the session-backed conversation sessionID with versionID,
// starting the conversation when the session does not exist yet.
func (a *App) Turn(ctx context.Context, sessionID, versionID string, req *domain.Request) ([]domain.Trace, error) {
	var traces []domain.Trace
	_, err := a.Sessions.Update(ctx, sessionID,
		func(ctx context.Context) (*domain.State, error) {
			return a.Engine.InitialState(ctx, versionID)
		},
		func(ctx context.Context, state *domain.State) (*domain.State, error) {
			out, err := a.Engine.Interact(ctx, interact.Input{VersionID: versionID, State: state, Request: req})
			if err != nil {
				return nil, err
			}
			traces = out.Trace
			return out.State, nil
		},
	)
	return traces, err
}

// Close releases the resources opened by New.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
