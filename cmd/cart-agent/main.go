package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"storefront-sync/internal/abandon"
	"storefront-sync/internal/api"
	"storefront-sync/internal/cart"
	"storefront-sync/internal/config"
	"storefront-sync/internal/credstore"
	"storefront-sync/internal/dedup"
	"storefront-sync/internal/lifecycle"
	"storefront-sync/internal/observability"
	"storefront-sync/internal/search"
	"storefront-sync/internal/session"
)

// cart-agent is a headless storefront client: it restores or establishes a
// session, mirrors the server cart, and reports abandonment on shutdown.
// It doubles as a smoke client for the storefront stub.
func main() {
	cfg := config.Load()

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}
	logFormat := os.Getenv("LOG_FORMAT")
	if logFormat == "" {
		logFormat = "text"
	}
	observability.InitLogger(logLevel, logFormat)

	slog.Info("starting cart agent", slog.String("storefront", cfg.StorefrontURL))

	manager := session.NewManager(credstore.NewStore(cfg.CredentialsPath))
	defer manager.Close()

	client := api.NewClient(cfg.StorefrontURL, cfg.RequestTimeout, manager.Token)
	client.OnAuthFailure(manager.Invalidate)

	guard := dedup.NewGuard()
	defer guard.Stop()

	synchronizer := cart.NewSynchronizer(client, manager, guard, cfg.DedupWindow)
	manager.OnExpired(synchronizer.Clear)
	manager.OnRedirect(func() {
		slog.Info("session expired, login required")
	})

	if err := manager.Bootstrap(); err != nil {
		slog.Error("session bootstrap failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if !manager.Valid() {
		if err := login(manager, client); err != nil {
			slog.Error("login failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := synchronizer.Load(ctx); err != nil {
		slog.Error("initial cart load failed", slog.String("error", err.Error()))
	} else {
		slog.Info("cart mirrored", slog.Int("lines", len(synchronizer.Lines())))
	}

	searcher := search.NewSearcher(client, cfg.SearchDebounce, func(r search.Results) {
		slog.Info("search settled",
			slog.String("query", r.Query),
			slog.Int("page", r.Page),
			slog.Int("results", len(r.Products)))
	})
	defer searcher.Stop()

	signals := lifecycle.NewSignals()
	detector := abandon.NewDetector(client, signals)

	if checkoutID := os.Getenv("CHECKOUT_ID"); checkoutID != "" {
		if header := synchronizer.Header(); header != nil {
			detector.Arm(checkoutID, header.CartID)
		} else {
			slog.Warn("no cart to arm abandonment for", slog.String("checkout_id", checkoutID))
		}
	}

	go refreshLoop(ctx, synchronizer)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down cart agent")

	// Process teardown is the unload event: the armed detector gets its
	// one chance to report before everything stops.
	signals.NotifyUnload()

	cancel()
	time.Sleep(100 * time.Millisecond)

	slog.Info("cart agent stopped")
}

// login establishes a fresh session from environment credentials.
func login(manager *session.Manager, client *api.Client) error {
	email := os.Getenv("STOREFRONT_EMAIL")
	password := os.Getenv("STOREFRONT_PASSWORD")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res, err := client.Login(ctx, email, password)
	if err != nil {
		return err
	}
	if err := manager.SetToken(res.Token, &res.User); err != nil {
		return err
	}

	slog.Info("logged in", slog.String("subject", manager.SubjectID()))
	return nil
}

// refreshLoop re-mirrors the cart periodically while the session holds.
// The dedup guard absorbs overlap with any on-demand loads.
func refreshLoop(ctx context.Context, synchronizer *cart.Synchronizer) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := synchronizer.Load(ctx); err != nil {
				slog.Warn("cart refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}
