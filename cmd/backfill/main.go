package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/analytics"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/backfill"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/config"
	persistence "github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence/postgres"
)

func main() {
	var (
		startDate = flag.String("start", "", "start date YYYY-MM-DD (required)")
		endDate   = flag.String("end", "", "end date YYYY-MM-DD (required)")
		batchSize = flag.Int("batch", 0, "users per batch (default from BACKFILL_BATCH_SIZE)")
		offset    = flag.Int("offset", 0, "resume offset from a previous report")
		resume    = flag.Bool("resume", false, "keep running batches until no users remain")
	)
	flag.Parse()

	if *startDate == "" || *endDate == "" {
		flag.Usage()
		os.Exit(2)
	}
	for _, date := range []string{*startDate, *endDate} {
		if _, err := time.Parse("2006-01-02", date); err != nil {
			log.Fatalf("invalid date %q: %v", date, err)
		}
	}

	cfg := config.Load()
	if *batchSize <= 0 {
		*batchSize = cfg.BackfillBatchSize
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		log.Println("backfill cancellation requested")
		cancel()
	}()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)
	service := analytics.NewService(repo)
	runner := backfill.NewRunner(repo, service)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	current := *offset
	for {
		report, err := runner.Run(ctx, backfill.Params{
			StartDate: *startDate,
			EndDate:   *endDate,
			BatchSize: *batchSize,
			Offset:    current,
		})
		if report != nil {
			if encErr := enc.Encode(report); encErr != nil {
				log.Printf("encode report: %v", encErr)
			}
		}
		if err != nil {
			log.Fatalf("backfill batch failed: %v", err)
		}
		if !*resume || report.NextOffset == nil {
			return
		}
		current = *report.NextOffset
	}
}
