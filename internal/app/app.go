package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/vovakirdan/chatline-server/internal/auth"
	"github.com/vovakirdan/chatline-server/internal/config"
	"github.com/vovakirdan/chatline-server/internal/core"
	logpkg "github.com/vovakirdan/chatline-server/internal/log"
	"github.com/vovakirdan/chatline-server/internal/service/chats"
	"github.com/vovakirdan/chatline-server/internal/store"
	"github.com/vovakirdan/chatline-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/chatline-server/internal/transport/http"
)

// App wires together storage, the real-time core and the transport layer.
type App struct {
	server          *transporthttp.Server
	shutdownTimeout time.Duration
	gateway         *core.Gateway
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})
	authenticator := auth.NewAuthenticator(authService, st)

	coreLog := logpkg.Component(logger, "core")
	emitter := core.NewEmitter(cfg.WriteTimeout, coreLog)
	registry := core.NewRegistry(emitter, coreLog)
	router := core.NewRouter(st, registry, coreLog)
	resolver := core.NewIdentityResolver(authenticator, authenticator, cfg.AccessCookieName)
	gateway := core.NewGateway(resolver, registry, emitter, router, coreLog)

	chatService := chats.New(st, router, logpkg.Component(logger, "chats"))
	server := transporthttp.NewServer(gateway, authService, chatService, cfg, logpkg.Component(logger, "http"))

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		gateway:         gateway,
		store:           st,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().
			Int("connections", a.gateway.Registry().ConnCount()).
			Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		a.log.Info().Int("connections", a.gateway.Registry().ConnCount()).Msg("sockets drained")
		return nil
	})

	// Shutdown has drained every socket handler before the store is closed.
	err := g.Wait()
	a.cleanup()
	return err
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
