package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/leavend/genstudio/internal/adapter/repo"
	"github.com/leavend/genstudio/internal/bootstrap"
	"github.com/leavend/genstudio/internal/generation"
	"github.com/leavend/genstudio/internal/infra"
	"github.com/leavend/genstudio/internal/infra/credentials"
	"github.com/leavend/genstudio/internal/notify"
	"github.com/leavend/genstudio/internal/queue"
	"github.com/leavend/genstudio/internal/worker"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: db connection failed")
	}
	defer pool.Close()
	sqlRunner := infra.NewSQLRunner(pool, logger)
	generations := repo.NewGenerationRepository(sqlRunner)
	notifications := repo.NewNotificationRepository(sqlRunner)

	redisClient, err := infra.NewRedisClient(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid redis configuration")
	}
	defer redisClient.Close()
	if err := infra.PingRedis(ctx, redisClient); err != nil {
		logger.Fatal().Err(err).Msg("worker: redis unreachable")
	}

	q, err := bootstrap.Queue(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid queue configuration")
	}
	events, err := bootstrap.Relay(cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.RelayDriver).Msg("worker: failed to open event relay")
	}
	defer events.Close()

	store, err := bootstrap.FileStore(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to configure storage")
	}
	creds := credentials.NewStore(sqlRunner)
	exec, err := bootstrap.Providers(cfg, bootstrap.QwenKeys(creds, cfg.QwenAPIKey), logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: invalid provider chains")
	}
	for _, capability := range exec.Capabilities() {
		logger.Info().Str("capability", capability).Strs("chain", exec.Chain(capability)).Msg("worker: provider chain")
	}

	dispatcher := notify.NewDispatcher(notifications, events, logger)
	runner := generation.NewRunner(generations, exec, store, dispatcher, logger)
	reg := worker.NewRegistry(q, logger)
	if err := generation.Register(reg, runner, generation.NewFanoutHandler(dispatcher, logger)); err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to register handlers")
	}
	workers, err := reg.Initialize(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("worker: failed to start pools")
	}

	health := infra.NewHTTPServer(cfg, cfg.WorkerHealthPort, healthRouter(q, workers))
	go func() {
		logger.Info().Str("addr", health.Addr()).Msg("worker: health server listening")
		if err := health.Start(); err != nil {
			logger.Error().Err(err).Msg("worker: health server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Dur("drain", cfg.WorkerDrain).Msg("worker: shutting down")

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.WorkerDrain)
	defer cancel()
	_ = workers.Shutdown(drainCtx)
	if err := health.Shutdown(drainCtx); err != nil {
		logger.Error().Err(err).Msg("worker: failed to shutdown health server")
	}
	logger.Info().Msg("worker: stopped")
}

func healthRouter(q *queue.Queue, workers *worker.Workers) http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := q.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/v1/workers", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"queues": workers.Stats()})
	})
	return r
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
