// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	_ "go.uber.org/automaxprocs"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Shivanand-hulikatti/program-registrations/internal/auth"
	"github.com/Shivanand-hulikatti/program-registrations/internal/config"
	"github.com/Shivanand-hulikatti/program-registrations/internal/database"
	"github.com/Shivanand-hulikatti/program-registrations/internal/handler"
	"github.com/Shivanand-hulikatti/program-registrations/internal/logger"
	"github.com/Shivanand-hulikatti/program-registrations/internal/notify"
	"github.com/Shivanand-hulikatti/program-registrations/internal/repository"
	"github.com/Shivanand-hulikatti/program-registrations/internal/service"
	"github.com/Shivanand-hulikatti/program-registrations/internal/stats"
	"github.com/Shivanand-hulikatti/program-registrations/internal/tracing"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load("")
	if err != nil {
		// No logger yet.
		_, _ = os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log, sync := logger.New(cfg.Log)
	defer sync()

	if err := run(cfg, log); err != nil {
		log.Error("fatal", zap.Error(err))
		sync()
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── 1. Storage ────────────────────────────────────────────────────────
	health := map[string]handler.PingFunc{}
	var store repository.Store
	switch cfg.DB.Driver {
	case "postgres":
		pool, err := database.NewPool(ctx, cfg.DB, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.DB.AutoMigrate {
			if err := database.Migrate(ctx, pool); err != nil {
				return err
			}
			log.Info("schema migrated")
		}
		store = repository.NewPostgresStore(pool)
		log.Info("connected to postgres")
	default:
		store = repository.NewMemoryStore()
		log.Warn("using in-memory store; data is lost on restart")
	}

	// ── 2. Side-effect events ─────────────────────────────────────────────
	var pub notify.Publisher = notify.NewLogPublisher(log)
	if cfg.Redis.Addr != "" {
		rdb := notify.NewRedisClient(cfg.Redis)
		defer rdb.Close()
		health["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
		if cfg.Notify.Backend == "redis" {
			pub = notify.NewRedisPublisher(rdb, cfg.Notify.Queue)
		}
		logRedis(ctx, log, rdb)
	}
	events := notify.NewDispatcher(pub, cfg.Notify.BufferSize, log)

	// ── 3. Tracing ────────────────────────────────────────────────────────
	tp, err := tracing.NewProvider(cfg.Tracing, cfg.App.Name, os.Stdout)
	if err != nil {
		return err
	}

	// ── 4. Wire up layers ─────────────────────────────────────────────────
	svc := service.NewRegistrationService(store, service.Options{
		Logger: log,
		Tracer: tp.Tracer(),
		Events: events,
		Stats:  stats.NewProjector(store, cfg.Stats.TTL, nil),
	})

	if cfg.Auth.Secret == "" {
		log.Warn("auth.secret is empty; admin routes will reject every request")
	}
	router := handler.NewRouter(handler.Deps{
		Service: svc,
		JWT: &auth.JWTer{
			Secret: []byte(cfg.Auth.Secret),
			Issuer: cfg.Auth.Issuer,
			TTL:    cfg.Auth.TTL,
		},
		Logger:         log,
		Limits:         cfg.Limits,
		RequestTimeout: cfg.HTTP.RequestTimeout,
		CORSOrigin:     cfg.HTTP.CORSOrigin,
		TrustProxy:     cfg.HTTP.TrustProxy,
		Health:         health,
	})

	// ── 5. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(cfg.HTTP.IdleTimeoutSec) * time.Second,
		ErrorLog:     logger.StdLogger(log, zapcore.WarnLevel),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server listening", zap.String("addr", srv.Addr), zap.String("env", cfg.App.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := events.Close(shutdownCtx); err != nil {
		log.Warn("event dispatcher did not drain", zap.Error(err))
	}
	if err := tp.Shutdown(shutdownCtx); err != nil {
		log.Warn("tracer shutdown", zap.Error(err))
	}
	log.Info("server stopped")
	return nil
}

// logRedis reports whether redis answers at startup. The service keeps
// running either way; /health reflects the live state.
func logRedis(ctx context.Context, log *zap.Logger, rdb *redis.Client) {
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		log.Warn("redis unreachable", zap.String("addr", rdb.Options().Addr), zap.Error(err))
		return
	}
	log.Info("connected to redis", zap.String("addr", rdb.Options().Addr))
}
