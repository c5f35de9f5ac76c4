package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
	"github.com/matuskudlac/mediguide-inventory/internal/config"
	kafkax "github.com/matuskudlac/mediguide-inventory/internal/kafka"
	"github.com/matuskudlac/mediguide-inventory/internal/ledger"
	"github.com/matuskudlac/mediguide-inventory/internal/postgres"
	"github.com/matuskudlac/mediguide-inventory/internal/redisx"
)

// The worker applies the storefront's order lifecycle events to the stock
// ledger: item-added decrements, order-cancelled restores.
func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalw("db connect", "err", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalw("db migrate", "err", err)
	}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pAdj := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicStockAdjusted, 1024, log)
	pAdj.Start(ctx)
	pRej := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicStockRejected, 1024, log)
	pRej.Start(ctx)

	hook := &ledger.Hook{
		Store:       &ledger.PostgresStore{DB: db},
		Redis:       rdb,
		Adjusted:    pAdj,
		Rejected:    pRej,
		ServiceName: cfg.ServiceName + "-worker",
		Log:         log,
	}

	// one consumer per order topic, both feeding the same hook
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range []string{catalog.TopicOrderItemAdded, catalog.TopicOrderCancelled} {
		topic := topic
		cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.ConsumerGroup, topic, cfg.Workers, log)
		g.Go(func() error {
			log.Infow("consumer started", "group", cfg.ConsumerGroup, "topic", topic, "workers", cfg.Workers)
			return cons.Start(gctx, hook.HandleOrderEvent)
		})
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
		log.Info("shutting down consumers...")
	case <-gctx.Done():
	}
	cancel()
	if err := g.Wait(); err != nil {
		log.Warnw("consumer exit", "err", err)
	}
	// producers flush and exit on ctx cancel
	pAdj.WaitClosed()
	pRej.WaitClosed()
}
