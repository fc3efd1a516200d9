package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"rewards.ledger/internal/api"
	"rewards.ledger/internal/cache"
	"rewards.ledger/internal/config"
	"rewards.ledger/internal/credits"
	"rewards.ledger/internal/events"
	"rewards.ledger/internal/logger"
	"rewards.ledger/internal/store"
	"rewards.ledger/internal/tracing"
)

const serviceName = "rewards-ledger"

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logger.New(serviceName, "info")
		l.Fatal().Err(err).Msg("config error")
	}
	log := logger.New(serviceName, cfg.LogLevel)

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := tracing.Init(serviceName, cfg.Tracing.JaegerEndpoint)
	if err != nil {
		return errors.Wrap(err, "init tracing")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("tracer shutdown failed")
		}
	}()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return errors.Wrap(err, "connect database")
	}
	defer pool.Close()
	st := store.New(pool)

	var opts []api.Option
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr})
		defer rdb.Close()
		opts = append(opts, api.WithLeaderboardCache(cache.NewLeaderboard(rdb, cfg.Redis.LeaderboardTTL)))
		log.Info().Str("addr", cfg.Redis.Addr).Msg("leaderboard cache enabled")
	}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		opts = append(opts, api.WithEvents(publisher))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("event publishing enabled")
	}

	srv := api.NewServer(st, cfg.AuthSecret, log, opts...)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("addr", httpServer.Addr).Msg("listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(sctx)
	})

	if cfg.RabbitMQ.URL != "" {
		consumer := credits.NewConsumer(credits.Config{
			URL:      cfg.RabbitMQ.URL,
			Queue:    cfg.RabbitMQ.Queue,
			Workers:  cfg.RabbitMQ.Workers,
			Prefetch: cfg.RabbitMQ.Prefetch,
		}, st, srv.CreditApplied, log)
		g.Go(func() error {
			return consumer.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info().Msg("shutdown complete")
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
