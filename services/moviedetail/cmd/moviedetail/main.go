package main

import (
	"context"
	"net"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/reflection"

	"github.com/example/movie-discovery/internal/platform/analytics"
	"github.com/example/movie-discovery/internal/platform/auth"
	"github.com/example/movie-discovery/internal/platform/db"
	"github.com/example/movie-discovery/internal/platform/httpserver"
	"github.com/example/movie-discovery/internal/platform/logging"
	"github.com/example/movie-discovery/internal/platform/natsconn"
	"github.com/example/movie-discovery/internal/platform/run"
	"github.com/example/movie-discovery/services/moviedetail/internal/cache"
	"github.com/example/movie-discovery/services/moviedetail/internal/config"
	"github.com/example/movie-discovery/services/moviedetail/internal/handlers"
	"github.com/example/movie-discovery/services/moviedetail/internal/health"
	"github.com/example/movie-discovery/services/moviedetail/internal/interaction"
	"github.com/example/movie-discovery/services/moviedetail/internal/metadata"
	"github.com/example/movie-discovery/services/moviedetail/internal/prefs"
	"github.com/example/movie-discovery/services/moviedetail/internal/upstream"
	"github.com/example/movie-discovery/services/moviedetail/internal/view"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := logging.New(cfg.LogLevel, cfg.ServiceName)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	nc := initNATS(cfg, log)
	if nc != nil {
		defer nc.Close()
	}
	events := initAnalytics(nc, log)

	collapsePrefs, closePrefs := initPrefs(cfg, log)
	if closePrefs != nil {
		defer closePrefs()
	}
	movieCache, closeCache := initCache(cfg, nc, log)
	defer closeCache()

	interactionCB := upstream.NewBreaker("interaction", cfg.Breaker, log)
	metadataCB := upstream.NewBreaker("metadata", cfg.Breaker, log)

	interactionClient := interaction.New(cfg.InteractionBaseURL,
		interaction.WithCircuitBreaker(interactionCB), interaction.WithLogger(log))
	movies := metadata.New(cfg.MetadataBaseURL,
		metadata.WithCircuitBreaker(metadataCB), metadata.WithCache(movieCache), metadata.WithLogger(log))

	reg := view.NewRegistry(view.Deps{
		Interaction: interactionClient,
		Movies:      movies,
		Prefs:       collapsePrefs,
		Events:      events,
		Logger:      log,
	}, cfg.ViewIdleTTL)

	monitor := health.NewMonitor(log,
		health.Dependency{Name: "interaction", Breaker: interactionCB, Critical: true},
		health.Dependency{Name: "metadata", Breaker: metadataCB},
	)

	verifier := auth.JWTVerifier{Secret: []byte(cfg.JWTSecret)}
	r := chi.NewRouter()
	httpserver.SetupRouter(r, httpserver.RouterConfig{ReadyFunc: monitor.Ready, Logger: log})
	r.Group(func(r chi.Router) {
		r.Use(auth.OptionalUser(verifier))
		handlers.Mount(r, reg, interactionClient, log)
	})

	srv := httpserver.New(httpserver.Options{Addr: cfg.HTTP.Addr, Logger: log, Router: r})

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Error("grpc listen", zap.Error(err))
		run.Exit(1)
	}
	grpcSrv := grpc.NewServer()
	monitor.Register(grpcSrv)
	reflection.Register(grpcSrv)
	go func() {
		log.Info("grpc server starting", zap.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(lis); err != nil {
			log.Error("grpc serve", zap.Error(err))
		}
	}()

	runner := run.New(log)
	code := runner.WithSignals(func(ctx context.Context) error {
		go reg.Run(ctx, cfg.SweepInterval)
		go monitor.Run(ctx, 5*time.Second)
		return srv.Start(log)
	})

	runner.Graceful("http", srv.Shutdown)
	runner.Graceful("grpc", func(ctx context.Context) error {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
		}
		return nil
	})
	reg.CloseAll()

	log.Info("exit", zap.Int("code", code))
	_ = log.Sync()
	run.Exit(code)
}

// initNATS is best effort: without NATS the service runs with no analytics
// and a process-local cache.
func initNATS(cfg config.Config, log *zap.Logger) *nats.Conn {
	nc, err := natsconn.Connect(natsconn.Options{URL: cfg.NATSURL, Name: cfg.ServiceName, Logger: log})
	if err != nil {
		log.Warn("nats unavailable, analytics and cache invalidation disabled", zap.Error(err))
		return nil
	}
	return nc
}

func initAnalytics(nc *nats.Conn, log *zap.Logger) *analytics.Publisher {
	if nc == nil {
		return analytics.New(nil, log)
	}
	js, err := nc.JetStream()
	if err != nil {
		log.Warn("jetstream unavailable, analytics disabled", zap.Error(err))
		return analytics.New(nil, log)
	}
	return analytics.New(js, log)
}

// initPrefs selects the collapse preference backend.
// In production a configured DATABASE_URL must work; the process exits otherwise.
func initPrefs(cfg config.Config, log *zap.Logger) (prefs.CollapseStore, func()) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, using in-memory collapse prefs (development only)")
		return prefs.NewMemoryCollapseStore(), nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		if cfg.IsProduction() {
			log.Error("postgres is required in production but unavailable", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("postgres unavailable, falling back to in-memory collapse prefs", zap.Error(err))
		return prefs.NewMemoryCollapseStore(), nil
	}

	store := prefs.NewPostgresCollapseStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		if cfg.IsProduction() {
			log.Error("collapse prefs schema", zap.Error(err))
			_ = log.Sync()
			run.Exit(1)
		}
		log.Warn("collapse prefs schema failed, falling back to in-memory", zap.Error(err))
		return prefs.NewMemoryCollapseStore(), nil
	}

	log.Info("collapse prefs: postgres")
	return store, pool.Close
}

// initCache prefers Redis and falls back to a process-local TTL cache that
// listens for invalidations on NATS.
func initCache(cfg config.Config, nc *nats.Conn, log *zap.Logger) (cache.Cache, func()) {
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedisCache(cfg.RedisURL, cfg.CacheTTL)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			err = rc.Ping(ctx)
			cancel()
			if err == nil {
				log.Info("metadata cache: redis")
				return rc, func() { _ = rc.Close() }
			}
			_ = rc.Close()
		}
		log.Warn("redis unavailable, falling back to in-memory cache", zap.Error(err))
	}

	tc, err := cache.NewTTLCache(cfg.CacheTTL, nc, cache.InvalidateSubject)
	if err != nil {
		log.Warn("cache invalidation subscribe failed", zap.Error(err))
		tc, _ = cache.NewTTLCache(cfg.CacheTTL, nil, "")
	}
	log.Info("metadata cache: memory")
	return tc, func() { _ = tc.Close() }
}
