package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/finsync/internal/aggregator"
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

	// Initialize job store and queue
	jobStore := jobsinmemory.NewStore()
	jobQueue := jobsinmemory.NewQueue(cfg.QueueBuffer, cfg.MaxConcurrent, jobStore)

	log.Info().Msg("Starting worker service")

	// Create context that cancels on interrupt
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	handler := func(ctx context.Context, job jobs.Job) error {
		syncJob, ok := job.(*jobs.SyncAccountsJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", syncJob.JobID).
			Str("member_id", syncJob.MemberID).
			Msg("Processing sync job")

		if err := orch.SyncAndWait(ctx, syncJob.MemberID, syncJob.Request); err != nil {
			log.Error().
				Err(err).
				Str("job_id", syncJob.JobID).
				Str("member_id", syncJob.MemberID).
				Msg("Sync job failed")
			return err
		}

		log.Info().
			Str("job_id", syncJob.JobID).
			Str("member_id", syncJob.MemberID).
			Msg("Sync job completed successfully")

		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	log.Info().Msg("Worker service exited")
}
