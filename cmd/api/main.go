package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/analytics"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/api"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/backfill"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/config"
	"github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/events"
	persistence "github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/persistence/postgres"
	httptransport "github.com/somosconsumidores/biopeak-performance-ai-sub003/internal/transport/http"
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
	runner := backfill.NewRunner(repo, service)

	handler := api.NewHandler(service, runner)
	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	mux.Handle("/metrics", promhttp.Handler())

	// Basic request logger
	logger := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			log.Printf("%s %s", r.Method, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}

	server := httptransport.NewServer(httptransport.ServerConfig{
		Address:      cfg.HTTPAddress,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}, logger(mux))

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("analytics-service listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-shutdownCh
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
