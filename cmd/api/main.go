package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpadapter "github.com/kirillkom/praxis-intake/internal/adapters/http"
	"github.com/kirillkom/praxis-intake/internal/bootstrap"
	"github.com/kirillkom/praxis-intake/internal/config"
	"github.com/kirillkom/praxis-intake/internal/observability/logging"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		logging.NewJSONLogger("praxis-api", "info").Error("dotenv_load_failed", "error", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := logging.NewJSONLogger("praxis-api", cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap_failed", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	opts := []httpadapter.Option{
		httpadapter.WithMetrics(app.Metrics),
		httpadapter.WithLogger(logger),
	}
	if app.History != nil {
		opts = append(opts, httpadapter.WithHistory(app.History))
	}
	router := httpadapter.NewRouter(cfg, app.Forwarder, app.Coordinator, app.Coordinator, opts...).Handler()

	// Classifier calls may take up to the configured timeout, so the write
	// deadline has to outlast it.
	writeTimeout := time.Duration(cfg.ClassifierTimeoutSeconds)*time.Second + 30*time.Second
	server := &http.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("api_listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api_server_failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("api_shutdown_failed", "error", err)
	}
	logger.Info("api_stopped")
}
