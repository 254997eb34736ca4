package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	apppkg "github.com/mark3748/helpdesk-sla/cmd/api/app"
	"github.com/mark3748/helpdesk-sla/cmd/api/migrations"
	"github.com/mark3748/helpdesk-sla/cmd/api/ws"
	"github.com/mark3748/helpdesk-sla/internal/metrics"
	"github.com/mark3748/helpdesk-sla/internal/reports"
	"github.com/mark3748/helpdesk-sla/internal/telemetry"
)

func setupLogging(cfg apppkg.Config) {
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}
	if cfg.Env == "dev" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
}

func main() {
	_ = godotenv.Load()
	cfg := apppkg.GetConfig()
	setupLogging(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing := telemetry.Setup("helpdesk-sla-api")
	defer func() { _ = shutdownTracing(context.Background()) }()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("db connect")
	}
	defer pool.Close()
	metrics.RegisterPgxPoolMetrics(pool)

	if err := migrations.Up(ctx, cfg.DatabaseURL); err != nil {
		log.Fatal().Err(err).Msg("migrate up")
	}

	var keyf jwt.Keyfunc
	if cfg.JWKSURL != "" {
		keyf, err = jwksKeyfunc(ctx, cfg.JWKSURL, 10*time.Minute)
		if err != nil {
			log.Fatal().Err(err).Str("jwks_url", cfg.JWKSURL).Msg("fetch jwks")
		}
	}

	objects, err := reports.Open(ctx, reports.Options{
		MinIOEndpoint: cfg.MinIOEndpoint,
		MinIOAccess:   cfg.MinIOAccess,
		MinIOSecret:   cfg.MinIOSecret,
		MinIOUseSSL:   cfg.MinIOUseSSL,
		Bucket:        cfg.ReportsBucket,
		FileStorePath: cfg.FileStorePath,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("object store init")
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Error().Err(err).Msg("redis ping")
		}
		defer rdb.Close()
	}

	a := apppkg.NewApp(cfg, pool, keyf, objects, rdb)
	hub := ws.NewHub(rdb)
	go hub.Run(ctx)
	registerRoutes(a, hub)

	srv := &http.Server{
		Addr:           cfg.Addr,
		Handler:        otelhttp.NewHandler(a.R, "helpdesk-sla-api"),
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	log.Info().Str("addr", cfg.Addr).Msg("api listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("listen")
	}
}
