package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/app"
	"github.com/simonkvalheim/fjord-ledger/internal/config"
	"github.com/simonkvalheim/fjord-ledger/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	if cfg.DatabaseURL == "" {
		// the api would never see the worker's postings
		log.Fatal("the worker needs DATABASE_URL; the in-memory store is per process")
	}

	ledgerApp, err := app.Open(context.Background(), cfg, log, app.Options{NeedRedis: true})
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer ledgerApp.Close()

	worker := queue.NewWorker(ledgerApp.Redis, ledgerApp.Transfers, log)

	// Create context that cancels on shutdown signal
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Info("shutdown signal received, stopping worker...")
		cancel()
		worker.Stop()
	}()

	worker.Start(ctx)
	log.Info("worker stopped")
}
