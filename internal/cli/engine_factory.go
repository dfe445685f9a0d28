package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aretw0/redline"
	"github.com/aretw0/redline/pkg/adapters/file"
	loamadapter "github.com/aretw0/redline/pkg/adapters/loam"
	"github.com/aretw0/redline/pkg/adapters/memory"
	"github.com/aretw0/redline/pkg/adapters/redis"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/graphs"
	"github.com/aretw0/redline/pkg/observability"
	"github.com/aretw0/redline/pkg/persistence/middleware"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// App is a configured engine plus the adapters the commands share.
type App struct {
	Engine     *redline.Engine
	Identities ports.IdentityResolver
	Registry   *prometheus.Registry
	Logger     *slog.Logger

	loam    *loamadapter.Loader
	closers []func() error
}

// NewApp builds the engine described by cfg.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Identities: memory.NewIdentities(cfg.Identities),
		Registry:   prometheus.NewRegistry(),
		Logger:     logger,
	}
	app.Registry.MustRegister(collectors.NewGoCollector())
	metrics := observability.NewMetrics(app.Registry)

	loader, err := app.newLoader(cfg.Graphs)
	if err != nil {
		return nil, err
	}

	opts := []redline.Option{
		redline.WithLoader(loader),
		redline.WithLogger(logger),
		redline.WithLifecycleHooks(metrics.Hooks()),
		redline.WithLifecycleHooks(createDebugHooks(logger)),
	}
	var store redline.Store = memory.NewStore()
	if cfg.Store.Backend == StoreRedis {
		rs := redis.New(cfg.Store.Address, cfg.Store.Password, cfg.Store.DB, redis.WithPrefix(cfg.Store.Prefix))
		app.closers = append(app.closers, rs.Close)
		store = rs
		opts = append(opts, redline.WithDistributedLocker(redis.NewLocker(rs.Client(), cfg.Store.Prefix), cfg.Store.LockTTL))
	}
	opts = append(opts, redline.WithStore(store))
	if cfg.Store.EncryptionKey != "" {
		keys, err := middleware.ParseKeys(cfg.Store.EncryptionKey, cfg.Store.FallbackKeys...)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		encrypt, err := middleware.NewEncryptionMiddleware(keys)
		if err != nil {
			_ = app.Close()
			return nil, err
		}
		opts = append(opts, redline.WithDocumentStore(middleware.Chain(store, encrypt)))
	}

	app.Engine, err = redline.New(opts...)
	if err != nil {
		_ = app.Close()
		return nil, fmt.Errorf("error initializing engine: %w", err)
	}
	logger.Debug("Engine ready",
		"graphs", cfg.Graphs.Source,
		"store", cfg.Store.Backend,
		"identities", len(cfg.Identities),
		"encrypted", cfg.Store.EncryptionKey != "",
	)
	return app, nil
}

func (a *App) newLoader(cfg GraphsConfig) (ports.GraphLoader, error) {
	switch cfg.Source {
	case GraphsFile:
		return file.New(cfg.Dir, file.WithLogger(a.Logger), file.WithStrict(cfg.Strict)), nil
	case GraphsLoam:
		l, err := loamadapter.Open(cfg.Dir, loamadapter.WithLogger(a.Logger))
		if err != nil {
			return nil, fmt.Errorf("failed to open loam repository %s: %w", cfg.Dir, err)
		}
		a.loam = l
		return l, nil
	}
	return graphs.Loader(), nil
}

// Watch invalidates cached graphs when a loam-backed source changes. It
// returns immediately for other sources.
func (a *App) Watch(ctx context.Context) error {
	if a.loam == nil {
		return nil
	}
	events, err := a.loam.Watch(ctx)
	if err != nil {
		return fmt.Errorf("failed to watch graphs: %w", err)
	}
	go func() {
		for id := range events {
			a.Logger.Debug("Stage graph cache invalidated", "document", id)
		}
	}()
	return nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

func createDebugHooks(logger *slog.Logger) domain.LifecycleHooks {
	return domain.LifecycleHooks{
		OnTransition: func(ctx context.Context, e *domain.TransitionEvent) {
			logger.Debug("Transition", "instance_id", e.InstanceID, "kind", e.Record.Kind, "to", e.Record.To)
		},
		OnProposal: func(ctx context.Context, e *domain.ProposalEvent) {
			logger.Debug("Proposal", "document_id", e.DocumentID, "feedback_id", e.FeedbackID, "outcome", e.Outcome)
		},
		OnConflict: func(ctx context.Context, e *domain.ConflictEvent) {
			logger.Debug("Conflict", "conflict_id", e.Conflict.ID, "status", e.Conflict.Status)
		},
	}
}
