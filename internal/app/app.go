// Package app wires configuration, the entity service, persistence and
// observability into one runnable unit.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"golang.org/x/sync/errgroup"

	"rollcall/internal/config"
	"rollcall/internal/core"
	"rollcall/internal/observability"
	"rollcall/internal/persist"
)

// InitFunc is a platform initialisation step that must finish before the
// service reports ready.
type InitFunc func(ctx context.Context) error

// App holds the wired service and its collaborators.
type App struct {
	Config  config.Config
	Service *core.Service
	Metrics *observability.PrometheusRecorder
	Logger  *slog.Logger

	backend  persist.Backend
	provider *sdktrace.TracerProvider

	mu       sync.Mutex
	mirror   *persist.Mirror
	ready    chan struct{}
	booted   bool
	closed   bool
	hydrated []persist.Bucket
}

// Option customises New.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	backend persist.Backend
	clock   core.Clock
	tracing bool
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithBackend supplies an already opened backend instead of opening the one
// named in the config.
func WithBackend(backend persist.Backend) Option {
	return func(o *options) { o.backend = backend }
}

// WithClock overrides the service clock.
func WithClock(clock core.Clock) Option {
	return func(o *options) { o.clock = clock }
}

// WithoutTracing skips the SDK tracer provider.
func WithoutTracing() Option {
	return func(o *options) { o.tracing = false }
}

// New opens the persistence backend and builds the service. The returned App
// is not ready until Boot succeeds.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	o := options{logger: slog.Default(), tracing: true}
	for _, opt := range opts {
		opt(&o)
	}
	backend := o.backend
	if backend == nil {
		var err error
		backend, err = persist.Open(ctx, cfg.Persist())
		if err != nil {
			return nil, fmt.Errorf("open %s backend: %w", cfg.StorageDriver, err)
		}
	}

	metrics := observability.NewPrometheusRecorder()
	serviceOpts := []core.ServiceOption{
		core.WithLogger(o.logger),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(observability.NewLogAuditRecorder(o.logger)),
	}
	if o.clock != nil {
		serviceOpts = append(serviceOpts, core.WithClock(o.clock))
	}

	var provider *sdktrace.TracerProvider
	if o.tracing {
		var err error
		provider, err = observability.NewTracerProvider(ctx, observability.TracingConfig{
			ServiceName:    "rollcall",
			ServiceVersion: cfg.ServiceVersion,
			Endpoint:       cfg.OTLPEndpoint,
			Insecure:       cfg.OTLPInsecure,
		})
		if err != nil {
			_ = backend.Close()
			return nil, err
		}
		serviceOpts = append(serviceOpts, core.WithTracer(observability.NewOTelTracer(provider)))
	}

	svc := core.NewInMemoryService(core.NewDefaultRulesEngine(), serviceOpts...)
	metrics.RegisterBadges(svc)

	return &App{
		Config:   cfg,
		Service:  svc,
		Metrics:  metrics,
		Logger:   o.logger,
		backend:  backend,
		provider: provider,
		ready:    make(chan struct{}),
	}, nil
}

// Boot runs initFns and hydration concurrently. Ready closes once every one
// of them has succeeded; the persistence mirror is attached at the same point
// so no write can precede hydration.
func (a *App) Boot(ctx context.Context, initFns ...InitFunc) error {
	a.mu.Lock()
	if a.booted {
		a.mu.Unlock()
		return errors.New("app already booted")
	}
	a.booted = true
	a.mu.Unlock()

	store, ok := a.Service.Store().(persist.Snapshotter)
	if !ok {
		return errors.New("store does not support snapshots")
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, fn := range initFns {
		if fn == nil {
			continue
		}
		i, fn := i, fn
		g.Go(func() error {
			if err := fn(gctx); err != nil {
				return fmt.Errorf("init %d: %w", i, err)
			}
			return nil
		})
	}
	var hydrated []persist.Bucket
	g.Go(func() error {
		found, err := persist.Hydrate(gctx, a.backend, store, a.Config.Whitelist)
		if err != nil {
			return fmt.Errorf("hydrate: %w", err)
		}
		hydrated = found
		return nil
	})
	if err := g.Wait(); err != nil {
		a.Logger.Error("boot failed", "error", err)
		return err
	}

	mirror := persist.NewMirror(a.backend, store,
		persist.WithMirrorLogger(a.Logger),
		persist.WithMirrorMetrics(a.Metrics),
		persist.WithWhitelist(a.Config.Whitelist),
		persist.WithWriteTimeout(a.Config.MirrorTimeout),
	)
	a.Service.AddCommitHook(mirror.Notify)

	a.mu.Lock()
	a.mirror = mirror
	a.hydrated = hydrated
	close(a.ready)
	a.mu.Unlock()

	a.Logger.Info("rollcall ready",
		"driver", a.Config.StorageDriver,
		"buckets", a.Config.Whitelist.String(),
		"hydrated", len(hydrated),
		"people", len(a.Service.ListPeople()),
		"events", len(a.Service.ListEvents()),
	)
	return nil
}

// Ready closes once Boot has succeeded.
func (a *App) Ready() <-chan struct{} { return a.ready }

// IsReady reports whether Ready has closed.
func (a *App) IsReady() bool {
	select {
	case <-a.ready:
		return true
	default:
		return false
	}
}

// Hydrated lists the buckets found in the backend during Boot.
func (a *App) Hydrated() []persist.Bucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]persist.Bucket(nil), a.hydrated...)
}

// Mirror returns the persistence mirror, nil before Boot succeeds.
func (a *App) Mirror() *persist.Mirror {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.mirror
}

// Close flushes the mirror, closes the backend and shuts tracing down.
func (a *App) Close(ctx context.Context) error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	mirror := a.mirror
	a.mu.Unlock()

	var errs []error
	if mirror != nil {
		if err := mirror.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("final mirror write: %w", err))
		}
	}
	if err := a.backend.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close backend: %w", err))
	}
	if a.provider != nil {
		if err := a.provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
	}
	return errors.Join(errs...)
}

// Boot builds an App from cfg and boots it synchronously.
func Boot(ctx context.Context, cfg config.Config, initFns ...InitFunc) (*App, error) {
	a, err := New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := a.Boot(ctx, initFns...); err != nil {
		_ = a.Close(ctx)
		return nil, err
	}
	return a, nil
}
