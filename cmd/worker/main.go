package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/analytics"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/config"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/consumer"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/events"
	persistence "github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence/postgres"
)

func main() {
	cfg := config.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		log.Fatalf("failed to connect to postgres: %v", err)
	}
	defer pool.Close()

	repo := persistence.NewRepository(pool)

	opts := []analytics.Option{}
	if cfg.PublishEvents {
		producer := events.NewKafkaProducer(cfg.KafkaBrokers)
		defer producer.Close()
		opts = append(opts, analytics.WithPublisher(events.NewEmitter(producer)))
	}
	service := analytics.NewService(repo, opts...)
	handler := consumer.NewRecomputeHandler(service)

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: promhttp.Handler()}

	go func() {
		log.Printf("worker metrics listening on %s", cfg.MetricsAddress)
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()

	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:         cfg.KafkaBrokers,
		GroupID:         cfg.ConsumerGroup,
		Topic:           cfg.ConsumerTopic,
		MinBytes:        1e3,
		MaxBytes:        10e6,
		CommitInterval:  time.Second,
		RetentionTime:   24 * time.Hour,
		ReadLagInterval: -1,
	})
	defer reader.Close()

	proc := consumer.NewProcessor(reader, handler)

	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("worker started (topic=%s, group=%s)", cfg.ConsumerTopic, cfg.ConsumerGroup)
		if err := proc.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("worker stopped with error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Println("worker shutdown requested")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Printf("metrics server shutdown error: %v", err)
	}

	<-done
}
