package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/matuskudlac/mediguide-inventory/internal/audit"
	"github.com/matuskudlac/mediguide-inventory/internal/catalog"
	"github.com/matuskudlac/mediguide-inventory/internal/config"
	"github.com/matuskudlac/mediguide-inventory/internal/httpx"
	kafkax "github.com/matuskudlac/mediguide-inventory/internal/kafka"
	"github.com/matuskudlac/mediguide-inventory/internal/ledger"
	"github.com/matuskudlac/mediguide-inventory/internal/postgres"
	"github.com/matuskudlac/mediguide-inventory/internal/redisx"
	"github.com/matuskudlac/mediguide-inventory/internal/reports"
)

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

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalw("db connect", "err", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalw("db migrate", "err", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers
	pAdj := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicStockAdjusted, 1024, log)
	pAdj.Start(ctx)
	pRej := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicStockRejected, 1024, log)
	pRej.Start(ctx)
	pPrice := kafkax.NewProducer(cfg.KafkaBrokers, catalog.TopicPriceChanged, 1024, log)
	pPrice.Start(ctx)

	// Engine components
	store := &ledger.PostgresStore{DB: db}
	hook := &ledger.Hook{
		Store:       store,
		Redis:       rdb,
		Adjusted:    pAdj,
		Rejected:    pRej,
		ServiceName: cfg.ServiceName,
		Log:         log,
	}
	auditLog := &audit.PostgresLog{DB: db}
	reporting := &reports.Engine{DB: db, Log: log}

	// Router & handlers
	router := httpx.NewRouter()
	eh := &httpx.EngineHandler{
		Hook:     hook,
		Stock:    store,
		Audit:    auditLog,
		Producer: pPrice,
		Service:  cfg.ServiceName,
	}
	eh.Register(router)
	rh := &httpx.ReportsHandler{Reports: reporting}
	rh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Infow("HTTP listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("listen", "err", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	pAdj.Close()
	pRej.Close()
	pPrice.Close()
	pAdj.WaitClosed()
	pRej.WaitClosed()
	pPrice.WaitClosed()
}
