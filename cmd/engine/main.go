package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"investafrik-messaging/internal/auth"
	"investafrik-messaging/internal/config"
	"investafrik-messaging/internal/database"
	"investafrik-messaging/internal/engine"
	"investafrik-messaging/internal/handlers"
	"investafrik-messaging/internal/logging"
	"investafrik-messaging/internal/middleware"
	"investafrik-messaging/internal/notify"
	"investafrik-messaging/internal/session"
	"investafrik-messaging/internal/utils"
	"investafrik-messaging/internal/websocket"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	store, err := database.Open(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, store, logger)
	if err != nil {
		store.Close(context.Background())
		return err
	}

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           a.server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(a.server.CloseConnections)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.run(gctx)
		return nil
	})
	g.Go(func() error {
		logger.Info("starting server", "addr", httpServer.Addr, "store", cfg.Database.Type, "registry", cfg.Registry.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		err := httpServer.Shutdown(shutdownCtx)
		a.close(shutdownCtx)
		return err
	})
	return g.Wait()
}

// app is everything behind the HTTP server.
type app struct {
	system   *actor.ActorSystem
	engine   *engine.Engine
	hub      *websocket.Hub
	redis    *redis.Client
	remote   *websocket.RedisRegistry
	server   *handlers.Server
	registry websocket.Registry
	logger   *slog.Logger
}

func newApp(ctx context.Context, cfg *config.Config, store database.Store, logger *slog.Logger) (*app, error) {
	var metrics *utils.MetricsCollector
	if cfg.Server.MetricsEnabled {
		metrics = utils.NewMetricsCollector()
	}

	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, store, cfg.Realtime.StoreWorkers, cfg.Realtime.StoreTimeout, metrics, logger)

	a := &app{system: system, engine: eng, hub: websocket.NewHub(logger), logger: logger}
	a.registry = a.hub
	if cfg.Registry.Backend == config.RegistryRedis {
		client, err := websocket.NewRedisClient(cfg.Registry.RedisURL)
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.remote = websocket.NewRedisRegistry(ctx, client, a.hub, logger)
		a.registry = a.remote
	}

	deps := session.Deps{
		Store:          eng,
		Guard:          auth.NewGuard(eng, logger),
		Registry:       a.registry,
		Metrics:        metrics,
		Logger:         logger,
		TypingInterval: cfg.Realtime.TypingInterval,
	}
	clientOptions := websocket.Options{
		SendBuffer:     cfg.Realtime.SendBuffer,
		MaxMessageSize: cfg.Realtime.MaxMessageSize,
		PongWait:       cfg.Realtime.PongWait,
		WriteWait:      cfg.Realtime.WriteWait,
	}
	a.server = handlers.NewServer(
		eng,
		deps,
		middleware.NewTokenResolver(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
		notify.NewPublisher(eng, a.registry, metrics, logger),
		metrics,
		middleware.DefaultCORSConfig(cfg.AllowedOrigins),
		clientOptions,
		cfg.Auth.InternalAPIKey,
		logger,
	)
	a.server.RequestTimeout = cfg.Realtime.StoreTimeout
	return a, nil
}

// run drives the registry loops until ctx is cancelled.
func (a *app) run(ctx context.Context) {
	if a.remote != nil {
		go a.remote.Run(ctx)
	}
	a.hub.Run(ctx)
}

func (a *app) close(ctx context.Context) {
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			a.logger.Warn("close redis subscription", "error", err)
		}
	}
	if a.redis != nil {
		a.redis.Close()
	}
	if err := a.engine.Close(ctx); err != nil {
		a.logger.Warn("close store", "error", err)
	}
	a.system.Shutdown()
}
