package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-sync/internal/config"
	"storefront-sync/internal/middleware"
	"storefront-sync/internal/observability"
	"storefront-sync/internal/stubapi"
)

func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "json"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting storefront stub")

	store := stubapi.NewStore()
	seedAccounts(store)

	srv := stubapi.NewServer(store, cfg)

	validator := middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig())
	handler := validator(srv.Handler())

	httpSrv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("storefront stub listening", slog.String("port", cfg.Port))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down storefront stub")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	slog.Info("storefront stub stopped gracefully")
}

// seedAccounts creates the development accounts (idempotent per process).
func seedAccounts(store *stubapi.Store) {
	accounts := []struct {
		email    string
		name     string
		password string
	}{
		{"ada@example.com", "Ada", "correct-horse"},
		{"grace@example.com", "Grace", "battery-staple"},
	}

	for _, a := range accounts {
		user, err := store.SeedUser(a.email, a.name, a.password)
		if err != nil {
			slog.Error("failed to seed account",
				slog.String("email", a.email),
				slog.String("error", err.Error()))
			continue
		}
		slog.Info("seeded account",
			slog.String("email", user.Email),
			slog.String("id", user.ID))
	}
}
