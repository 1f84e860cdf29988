package main

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/solutions/todolist/libs/config"
	"github.com/solutions/todolist/libs/db"
	"github.com/solutions/todolist/libs/httpx"
	otelx "github.com/solutions/todolist/libs/otel"
	"github.com/solutions/todolist/libs/runtime"
	"github.com/solutions/todolist/services/todo-service/internal/cache"
	"github.com/solutions/todolist/services/todo-service/internal/handlers"
	"github.com/solutions/todolist/services/todo-service/internal/outbox"
	"github.com/solutions/todolist/services/todo-service/internal/read"
	"github.com/solutions/todolist/services/todo-service/internal/sessions"
	"github.com/solutions/todolist/services/todo-service/internal/storage"
)

func main() {
	service := config.String("SERVICE_NAME", "todo-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		panic(err)
	}

	pool, err := db.Open(ctx, dbURL)
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	mux := runtime.NewBaseMuxWithReady(
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
	)

	hotTTL, err := config.Duration("HOT_CACHE_TTL", cache.DefaultTTL)
	if err != nil {
		logger.Error("invalid hot cache ttl", "err", err)
		panic(err)
	}
	hot := cache.NewHot(hotTTL)
	go hot.Janitor(ctx, time.Minute)

	reader := read.NewReader(pool)
	cacheSvc := cache.NewService(hot, reader)

	outboxRepo := outbox.NewRepository(pool)
	todoRepo := storage.NewTodoRepository(pool, outboxRepo)
	userRepo := storage.NewUserRepository(pool)
	refreshRepo := sessions.NewRefreshRepository(pool)

	batchSize, err := config.Int("OUTBOX_BATCH_SIZE", 20)
	if err != nil {
		logger.Error("invalid outbox batch size", "err", err)
		panic(err)
	}
	pollEvery, err := config.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	if err != nil {
		logger.Error("invalid outbox poll interval", "err", err)
		panic(err)
	}
	dispatcher := outbox.NewDispatcher(outboxRepo, cacheSvc, logger, outbox.DispatcherConfig{
		BatchSize:    batchSize,
		PollInterval: pollEvery,
	})
	go dispatcher.Run(ctx)

	signer, err := buildSigner()
	if err != nil {
		logger.Error("failed to init jwt signer", "err", err)
		panic(err)
	}

	accessTTL, err := config.Duration("ACCESS_TTL", 15*time.Minute)
	if err != nil {
		logger.Error("invalid access ttl", "err", err)
		panic(err)
	}
	refreshTTL, err := config.Duration("REFRESH_TTL", 720*time.Hour)
	if err != nil {
		logger.Error("invalid refresh ttl", "err", err)
		panic(err)
	}

	authHandler := handlers.NewAuthHandler(signer, userRepo, refreshRepo, accessTTL, refreshTTL)
	todoHandler := handlers.NewTodoHandler(todoRepo, cacheSvc, logger)
	requireUser := handlers.RequireUser(signer)

	mux.HandleFunc("/api/v1/auth/register", authHandler.Register)
	mux.HandleFunc("/api/v1/auth/login", authHandler.Login)
	mux.HandleFunc("/api/v1/auth/refresh", authHandler.Refresh)
	mux.HandleFunc("/api/v1/auth/logout", authHandler.Logout)
	mux.Handle("/api/v1/auth/me", requireUser(http.HandlerFunc(authHandler.Me)))
	mux.HandleFunc("/.well-known/jwks.json", authHandler.JWKS)

	mux.Handle("/api/v1/todos", requireUser(http.HandlerFunc(todoHandler.Collection)))
	mux.Handle("/api/v1/todos/", requireUser(http.HandlerFunc(todoHandler.Item)))
	mux.Handle("/api/v1/todos/batch", requireUser(http.HandlerFunc(todoHandler.BatchCreate)))
	mux.Handle("/api/v1/todos/batch/done", requireUser(http.HandlerFunc(todoHandler.BatchMarkDone)))
	mux.Handle("/api/v1/todos/batch/delete", requireUser(http.HandlerFunc(todoHandler.BatchDelete)))

	mux.Handle("/metrics", promhttp.Handler())

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		buildRateLimit(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: splitList(config.String("CORS_ORIGINS", "")),
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE"},
			AllowedHeaders: []string{"Authorization", "Content-Type"},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithAccessLog(logger),
	)
	handler = otelhttp.NewHandler(handler, "todo")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}

func buildSigner() (handlers.TokenSigner, error) {
	if privatePEM := config.String("JWT_PRIVATE_KEY_PEM", ""); privatePEM != "" {
		return handlers.NewRS256Signer([]byte(privatePEM), config.String("JWT_KID", ""))
	}
	return handlers.NewHS256Signer(config.String("JWT_SECRET", "dev-secret")), nil
}

// buildRateLimit prefers a Redis-backed limiter when REDIS_ADDR is set so the
// limit holds across replicas; otherwise it falls back to the in-process one.
func buildRateLimit(logger *slog.Logger) httpx.Middleware {
	limit, err := config.Int("RATE_LIMIT_PER_MINUTE", 300)
	if err != nil || limit <= 0 {
		limit = 300
	}
	if addr := config.String("REDIS_ADDR", ""); addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: addr})
		return httpx.NewRedisRateLimiter(rdb, limit, time.Minute, "todo:rl").Middleware(logger, true)
	}
	return httpx.NewRateLimiter(limit, time.Minute).Middleware()
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
