package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/simonkvalheim/fjord-ledger/internal/app"
	"github.com/simonkvalheim/fjord-ledger/internal/auth"
	"github.com/simonkvalheim/fjord-ledger/internal/config"
	"github.com/simonkvalheim/fjord-ledger/internal/handler"
	"github.com/simonkvalheim/fjord-ledger/internal/middleware"
	"github.com/simonkvalheim/fjord-ledger/internal/queue"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}
	log := cfg.NewLogger()

	if cfg.UsingDevSecret() {
		log.Warn("using default JWT_SECRET for development; set JWT_SECRET in production")
	}

	ctx := context.Background()
	ledgerApp, err := app.Open(ctx, cfg, log, app.Options{NeedRedis: cfg.AsyncMode, Migrate: true})
	if err != nil {
		log.WithError(err).Fatal("failed to start")
	}
	defer ledgerApp.Close()

	var publisher *queue.Publisher
	if cfg.AsyncMode {
		publisher = queue.NewPublisher(ledgerApp.Redis)
		log.Info("async mode enabled, transfers are queued for the worker")
	} else {
		log.Info("running in sync mode (set ASYNC_MODE=true for async processing)")
	}

	authService := auth.NewService(auth.DefaultConfig(cfg.JWTSecret))

	router := handler.NewRouter(log,
		middleware.NewAuthMiddleware(authService, log),
		healthHandler(ledgerApp),
		handler.NewAccountHandler(ledgerApp.Ledger, log),
		handler.NewTransferHandler(ledgerApp.Ledger, ledgerApp.Transfers, publisher, log),
		handler.NewLoanHandler(ledgerApp.Loans, ledgerApp.Ledger, log),
	)

	if len(cfg.CORSAllowedOrigins) > 0 {
		router = middleware.CORS(middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			MaxAge:         24 * time.Hour,
		})(router)
	}

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")

	// Give outstanding requests 30 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server forced to shutdown")
	}
	log.Info("server stopped")
}

// healthHandler reports whether the database and redis connections respond
func healthHandler(a *app.App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		w.Header().Set("Content-Type", "application/json")
		if err := a.Ping(ctx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			fmt.Fprintf(w, `{"status": "unhealthy"}`)
			return
		}
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, `{"status": "healthy"}`)
	}
}
