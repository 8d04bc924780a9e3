package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/auth"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/cluster"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/config"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/core"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store/gormstore"
	"github.com/DarkZangetsu/Marketplace-GreenTech/internal/store/sqlite"
	transporthttp "github.com/DarkZangetsu/Marketplace-GreenTech/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	log             *zerolog.Logger
}

// OpenStore opens and migrates the configured durable store.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Driver {
	case config.DriverSQLite:
		st, err = sqlite.New(cfg.DSN)
	case config.DriverPostgres:
		st, err = gormstore.OpenPostgres(cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}

	if err := st.Migrate(ctx); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return st, nil
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	opts := core.HubOptions{
		Users:                 st,
		Messages:              st,
		AllowMultipleSessions: cfg.WS.AllowMultipleSessions,
		Logger:                logger,
	}

	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(ctx).Err(); err != nil {
			rdb.Close()
			st.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		opts.Counter = cluster.NewPresenceCounter(rdb, cfg.Redis.ChannelPrefix)
		opts.Bus = cluster.NewBus(rdb, cfg.Redis.ChannelPrefix, logger)
		logger.Info().Str("addr", cfg.Redis.Addr).Msg("cluster mode enabled")
	}

	hub := core.NewHub(opts)
	resolver := auth.NewResolver(cfg.JWT)
	if !resolver.Enabled() {
		logger.Warn().Msg("jwt.secret is empty, trusting user ids from the connection path")
	}

	return &App{
		server:          transporthttp.NewServer(hub, resolver, cfg, logger),
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		redis:           rdb,
		log:             logger,
	}, nil
}

// Run starts the hub and the HTTP server and blocks until ctx is cancelled or either fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	// Open WebSocket sessions outlive Shutdown unless their contexts end with it.
	a.server.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		return a.hub.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-a.hub.Ready():
		case <-gctx.Done():
			return nil
		}
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		// Returns once every WebSocket session has unregistered, so cleanup cannot cut off presence updates.
		a.log.Info().Msg("shutting down http server")
		return a.server.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
