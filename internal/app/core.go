package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/donorhub/donorhub/internal/access"
	"github.com/donorhub/donorhub/internal/archive"
	"github.com/donorhub/donorhub/internal/audit"
	"github.com/donorhub/donorhub/internal/docstore"
	"github.com/donorhub/donorhub/internal/donations"
	"github.com/donorhub/donorhub/internal/permissions"
	"github.com/donorhub/donorhub/internal/platform/cache"
	"github.com/donorhub/donorhub/internal/platform/db"
	"github.com/donorhub/donorhub/internal/shared"
	"github.com/donorhub/donorhub/internal/users"
)

// Backend is an opened document store with its release hook.
type Backend struct {
	Store docstore.Store
	Redis *redis.Client
	close []func()
}

// Close releases every connection held by the backend.
func (b *Backend) Close() {
	for i := len(b.close) - 1; i >= 0; i-- {
		b.close[i]()
	}
}

// OpenBackend connects the document store selected by STORE_DRIVER. The
// postgres driver also needs Redis for its change feed.
func OpenBackend(ctx context.Context, cfg *Config, logger *slog.Logger) (*Backend, error) {
	if cfg.StoreDriver == StoreMemory {
		mem := docstore.NewMemoryStore()
		return &Backend{Store: mem, close: []func(){mem.Close}}, nil
	}

	b := &Backend{}
	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, err
	}
	b.close = append(b.close, pool.Close)

	client, err := cache.New(ctx, cfg.RedisAddr, 5*time.Second)
	if err != nil {
		b.Close()
		return nil, err
	}
	b.Redis = client
	b.close = append(b.close, func() {
		if err := client.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	})

	store := docstore.NewPostgresStore(pool, docstore.NewFeed(client, logger), logger)
	if err := store.EnsureSchema(ctx); err != nil {
		b.Close()
		return nil, err
	}
	b.Store = store
	return b, nil
}

// Core holds the wired domain services.
type Core struct {
	Roots       permissions.RootIdentities
	Config      *permissions.ConfigStore
	Guard       *permissions.Guard
	Permissions *permissions.Service
	UserRepo    *users.Repository
	Users       *users.Service
	Donations   *donations.Service
	Access      *access.Manager
	Queue       *access.Queue
	Archive     *archive.Manager
	Audit       *audit.Logger
	Timeline    *audit.Service
}

// CoreOptions carries the collaborators NewCore does not build itself.
type CoreOptions struct {
	Store      docstore.Store
	AuditSink  audit.Sink
	Registerer prometheus.Registerer
	Clock      shared.Clock
	Logger     *slog.Logger
}

// NewCore wires the permission, access, archive and audit services over one
// document store.
func NewCore(cfg *Config, opts CoreOptions) (*Core, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("app: document store required")
	}
	if opts.Clock == nil {
		opts.Clock = shared.SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AuditSink == nil {
		opts.AuditSink = audit.NewStoreSink(opts.Store)
	}
	registry, err := archive.NewRegistry(cfg.ArchivePurgeCategories)
	if err != nil {
		return nil, fmt.Errorf("app: archive purge categories: %w", err)
	}

	auditLogger := audit.NewLogger(opts.AuditSink, audit.LoggerOptions{
		Clock:   opts.Clock,
		Logger:  opts.Logger,
		Metrics: audit.NewMetrics(opts.Registerer),
		Timeout: cfg.AuditTimeout,
		Detach:  true,
	})

	roots := permissions.NewRootIdentities(cfg.RootEmails...)
	resolver := permissions.NewResolver(roots)
	configStore := permissions.NewConfigStore(opts.Store, opts.Logger, opts.Clock)
	userRepo := users.NewRepository(opts.Store, opts.Clock)
	guard := permissions.NewGuard(resolver, configStore, userRepo)
	donationRepo := donations.NewRepository(opts.Store)

	return &Core{
		Roots:       roots,
		Config:      configStore,
		Guard:       guard,
		Permissions: permissions.NewService(resolver, configStore, userRepo, auditLogger, opts.Logger),
		UserRepo:    userRepo,
		Users:       users.NewService(userRepo, roots, guard, auditLogger, opts.Clock, opts.Logger),
		Donations:   donations.NewService(donationRepo, guard, auditLogger, opts.Clock),
		Access:      access.NewManager(userRepo, guard, auditLogger, opts.Clock, opts.Logger),
		Queue:       access.NewQueue(userRepo, donationRepo, opts.Store, opts.Logger),
		Archive:     archive.NewManager(opts.Store, registry, guard, auditLogger, opts.Clock, opts.Logger),
		Audit:       auditLogger,
		Timeline:    audit.NewService(opts.Store),
	}, nil
}
