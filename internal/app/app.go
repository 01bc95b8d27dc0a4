package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/chatnest-server/internal/auth"
	"github.com/vovakirdan/chatnest-server/internal/blob"
	"github.com/vovakirdan/chatnest-server/internal/config"
	"github.com/vovakirdan/chatnest-server/internal/core"
	"github.com/vovakirdan/chatnest-server/internal/events"
	"github.com/vovakirdan/chatnest-server/internal/presence"
	"github.com/vovakirdan/chatnest-server/internal/service/delivery"
	"github.com/vovakirdan/chatnest-server/internal/store"
	"github.com/vovakirdan/chatnest-server/internal/store/mongodb"
	"github.com/vovakirdan/chatnest-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatnest-server/internal/transport/http"
)

const startupTimeout = 30 * time.Second

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             core.Hub
	store           store.Store
	mirror          *presence.RedisMirror
	redis           *redis.Client
	publisher       *events.NATSPublisher
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
// Optional integrations (Redis, NATS) are enabled only when configured.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		log:             logger,
	}

	st, err := openStore(startCtx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.store = st

	var sink core.PresenceSink
	if cfg.Redis.Addr != "" {
		rdb, err := presence.Connect(startCtx, presence.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init presence mirror: %w", err)
		}
		a.redis = rdb
		a.mirror = presence.NewRedisMirror(rdb, cfg.Redis.Key, logger)
		sink = a.mirror
		logger.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.Key).Msg("presence mirror enabled")
	}

	a.hub = core.NewHub(logger, sink)

	blobs := blob.NewOS(cfg.Uploads.Dir)
	router := delivery.New(st, blobs, a.hub, logger)

	if cfg.NATS.URL != "" {
		pub, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init message events: %w", err)
		}
		a.publisher = pub
		router.WithPublisher(pub)
		logger.Info().Str("url", cfg.NATS.URL).Str("subject", cfg.NATS.Subject).Msg("message events enabled")
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:    a.hub,
		Auth:   authService,
		Store:  st,
		Blobs:  blobs,
		Router: router,
	}, cfg, logger)

	return a, nil
}

func openStore(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (store.Store, error) {
	switch cfg.Store.Driver {
	case "mongo":
		st, err := mongodb.New(ctx, mongodb.Config{
			URI:      cfg.Store.MongoURI,
			Database: cfg.Store.MongoDatabase,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init mongo store: %w", err)
		}
		logger.Info().Str("database", cfg.Store.MongoDatabase).Msg("mongo store initialized")
		return st, nil
	default:
		st, err := sqlite.New(cfg.Store.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("init store: %w", err)
		}
		logger.Info().Str("db_path", cfg.Store.SQLitePath).Msg("database initialized")
		return st, nil
	}
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go a.hub.Run(hubCtx)

	mirrorDone := make(chan struct{})
	if a.mirror != nil {
		go func() {
			a.mirror.Run(hubCtx)
			close(mirrorDone)
		}()
	} else {
		close(mirrorDone)
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	var runErr error
	select {
	case runErr = <-serverErr:
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Shutdown does not wait for hijacked websocket connections; stopping
		// the hub closes their event streams.
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			runErr = err
		}
		stopHub()
		<-mirrorDone
		if err := <-serverErr; err != nil && runErr == nil {
			runErr = err
		}
	}

	stopHub()
	<-mirrorDone
	a.cleanup()
	return runErr
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close nats connection")
		}
	}
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
