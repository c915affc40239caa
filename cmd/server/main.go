package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/database"
	"github.com/stemsi/mockexam-backend/internal/event"
	"github.com/stemsi/mockexam-backend/internal/handler"
	"github.com/stemsi/mockexam-backend/internal/logger"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/router"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
	"github.com/stemsi/mockexam-backend/internal/widget"
	"github.com/stemsi/mockexam-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting mock exam backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to RabbitMQ ───────────────────────────────────────────
	publisher, err := event.NewAMQPPublisher(cfg.AMQPURL, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to RabbitMQ")
	}
	defer publisher.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	learnerRepo := repository.NewLearnerRepository(pool)
	examRepo := repository.NewExamRepository(pool)
	questionRepo := repository.NewQuestionRepository(pool)
	attemptRepo := repository.NewAttemptRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb, learnerRepo)
	examService := service.NewExamService(examRepo, questionRepo, rdb, log)
	attemptService := service.NewAttemptService(cfg, examService, attemptRepo,
		service.NewRedisAttemptSink(rdb), publisher, log)
	widgetService := service.NewWidgetService(widget.NewRedisStore(rdb, log), widget.DefaultZones, log)

	answersQueue := worker.NewRedisQueue(rdb, config.WorkerKey.PersistAnswersQueue)
	resultsQueue := worker.NewRedisQueue(rdb, config.WorkerKey.PersistResultsQueue)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService),
		Exam:    handler.NewExamHandler(examService),
		Attempt: handler.NewAttemptHandler(attemptService),
		Widget:  handler.NewWidgetHandler(widgetService),
		WS:      handler.NewWSHandler(attemptService, log, cfg.AllowedOrigins),
		System: handler.NewSystemHandler(
			map[string]handler.HealthCheck{
				"postgres": pool.Ping,
				"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
			},
			map[string]handler.QueueDepth{
				answersQueue.Name(): func(ctx context.Context) (int64, error) { return rdb.LLen(ctx, answersQueue.Name()).Result() },
				resultsQueue.Name(): func(ctx context.Context) (int64, error) { return rdb.LLen(ctx, resultsQueue.Name()).Result() },
			},
			log,
		),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	answerWorker := worker.NewAnswerWorker(answersQueue, attemptRepo, log)
	resultWorker := worker.NewResultWorker(resultsQueue, attemptRepo, rdb, log)

	workers.Add(3)
	go func() { defer workers.Done(); answerWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()
	go func() { defer workers.Done(); attemptService.RunReaper(workerCtx, time.Minute) }()

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load every question bank into Redis BEFORE accepting traffic, so the
	// first wave of attempts does not stampede PostgreSQL.
	if err := examService.PrewarmAllCaches(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(ctx, authService, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop live attempt clocks. Unfinished attempts resume from the
	// mirror on the next start.
	attemptService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
