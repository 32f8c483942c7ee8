package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/finsync/internal/aggregator"
	"github.com/avolkov/finsync/internal/api/handlers"
	"github.com/avolkov/finsync/internal/api/middleware"
	"github.com/avolkov/finsync/internal/categorize"
	"github.com/avolkov/finsync/internal/config"
	"github.com/avolkov/finsync/internal/events"
	eventskafka "github.com/avolkov/finsync/internal/events/kafka"
	"github.com/avolkov/finsync/internal/infra/postgres"
	"github.com/avolkov/finsync/internal/jobs"
	jobsinmemory "github.com/avolkov/finsync/internal/jobs/inmemory"
	"github.com/avolkov/finsync/internal/logger"
	statepostgres "github.com/avolkov/finsync/internal/statestore/postgres"
	"github.com/avolkov/finsync/internal/summary"
	"github.com/avolkov/finsync/internal/syncer"
	_ "github.com/lib/pq"
)

func main() {
	// Initialize logger
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if cfg.DatabaseURL == "" {
		log.Fatal().Msg("DATABASE_URL is required")
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer db.Close()

	store := postgres.NewStore(db)
	state := statepostgres.NewStore(db)

	// Completion events are optional; without brokers the orchestrator
	// simply skips publishing.
	var publisher events.Publisher
	if len(cfg.KafkaBrokers) > 0 {
		kp := eventskafka.NewPublisher(cfg.KafkaBrokers)
		defer kp.Close()
		publisher = kp
	}

	fetcher := aggregator.NewClient(cfg.AggregatorBaseURL, cfg.AggregatorToken)
	categorizer := categorize.NewRuleCategorizer(nil, store, state, cfg.StatusTTL, log)
	computer := summary.NewComputer(store, store, log)

	orch := syncer.NewOrchestrator(
		store, store, fetcher, categorizer, computer, state, publisher,
		syncer.Config{StatusTTL: cfg.StatusTTL, MaxConcurrent: cfg.MaxConcurrent},
		log,
	)

	// Initialize job infrastructure
	jobStore := jobsinmemory.NewStore()
	jobQueue := jobsinmemory.NewQueue(cfg.QueueBuffer, cfg.MaxConcurrent, jobStore)

	// Start worker in background to process jobs
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
		syncJob, ok := job.(*jobs.SyncAccountsJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", syncJob.JobID).
			Str("member_id", syncJob.MemberID).
			Msg("Processing sync job")

		return orch.SyncAndWait(ctx, syncJob.MemberID, syncJob.Request)
	}

	go func() {
		log.Info().Msg("Starting job worker")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job worker stopped with error")
		}
	}()

	// Initialize handlers
	syncHandler := handlers.NewSyncHandler(jobQueue, jobStore, state, log)
	dataHandler := handlers.NewDataHandler(store, log)

	// Create router
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			syncHandler.StartSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/sync/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			syncHandler.SyncStatus(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			syncHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/transactions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			dataHandler.ListTransactions(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/summaries", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			dataHandler.ListSummaries(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", handlers.Health)

	// Apply middleware
	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.CORS(mux),
		),
	)

	server := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: handler,
	}

	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during HTTP shutdown")
	}

	cancelWorker()
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	log.Info().Msg("API server exited")
}
