package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/leavend/genstudio/internal/adapter/repo"
	"github.com/leavend/genstudio/internal/bootstrap"
	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/http/handlers"
	"github.com/leavend/genstudio/internal/http/httpapi"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/infra/credentials"
	"github.com/leavend/genstudio/internal/infra/geoip"
	"github.com/leavend/genstudio/internal/middleware"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/relay"
)

const resubscribeDelay = 2 * time.Second

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)
	if err := cfg.RequireJWT(); err != nil {
		logger.Fatal().Err(err).Msg("api: invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to connect database")
	}
	defer pool.Close()
	sqlRunner := infra.NewSQLRunner(pool, logger)
	generations := repo.NewGenerationRepository(sqlRunner)
	notifications := repo.NewNotificationRepository(sqlRunner)

	redisClient, err := infra.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid redis configuration")
	}
	defer redisClient.Close()
	if err := infra.PingRedis(ctx, redisClient); err != nil {
		// Submissions fall back to inline execution until redis returns.
		logger.Warn().Err(err).Msg("api: redis unreachable")
	}

	q, err := bootstrap.Queue(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid queue configuration")
	}
	events, err := bootstrap.Relay(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.RelayDriver).Msg("api: failed to open event relay")
	}
	defer events.Close()

	store, err := bootstrap.FileStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}
	creds := credentials.NewStore(sqlRunner)
	exec, err := bootstrap.Providers(cfg, bootstrap.QwenKeys(creds, cfg.QwenAPIKey), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: invalid provider chains")
	}

	hub := notify.NewHub(logger, cfg.CORSOrigins)
	go runHub(ctx, hub, events, logger)

	dispatcher := notify.NewDispatcher(notifications, events, logger)
	runner := generation.NewRunner(generations, exec, store, dispatcher, logger)
	svc := generation.NewService(generations, q, runner, logger)

	var lookup middleware.CountryLookup
	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", cfg.GeoIPDBPath).Msg("api: geoip database unavailable")
	} else if geo != nil {
		defer geo.Close()
		lookup = geo.CountryCode
	}

	app := handlers.NewApp(svc, q, notifications, hub, logger)
	router := httpapi.NewRouter(app, httpapi.Options{
		JWTSecret:       cfg.JWTSecret,
		CORSOrigins:     cfg.CORSOrigins,
		CountryLookup:   lookup,
		StreamRateLimit: cfg.RateLimitPerMin,
		Static:          store.Handler(),
	})
	server := infra.NewHTTPServer(cfg, cfg.Port, router)

	go func() {
		logger.Info().Str("addr", server.Addr()).Str("relay", cfg.RelayDriver).Msg("api: listening")
		if err := server.Start(); err != nil {
			logger.Error().Err(err).Msg("api: http server failed")
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api: failed to shutdown server")
	}
	logger.Info().Msg("api: stopped")
}

// runHub keeps the hub subscribed, retrying while the relay is unreachable.
func runHub(ctx context.Context, hub *notify.Hub, sub relay.Subscriber, logger infra.Logger) {
	for {
		err := hub.Run(ctx, sub)
		if ctx.Err() != nil {
			return
		}
		logger.Warn().Err(err).Dur("retry_in", resubscribeDelay).Msg("api: relay subscription ended")
		select {
		case <-ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}
