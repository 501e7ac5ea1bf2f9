package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"shopcore/internal/api"
	"shopcore/internal/auth"
	"shopcore/internal/authz"
	"shopcore/internal/config"
	"shopcore/internal/counter"
	"shopcore/internal/domain"
	"shopcore/internal/gateway"
	"shopcore/internal/notify"
	"shopcore/internal/payment"
	"shopcore/internal/persistence"
	"shopcore/internal/store"
)

// logSender is the development OTP delivery path: codes go to the log
// instead of an SMS provider.
type logSender struct{ logger *slog.Logger }

func (s logSender) SendCode(phone, code string) error {
	s.logger.Info("OTP code issued", "phone", phone, "code", code)
	return nil
}

// textQREncoder renders a plain-text QR payload. The real provider SDK
// replaces it via SHOPCORE_MERCHANT_NAME-configured deployments.
type textQREncoder struct{}

func (textQREncoder) Encode(req payment.QRRequest) (string, error) {
	return "PAY|" + req.Merchant + "|" + req.BillNumber + "|" + req.Currency, nil
}

// startupIndexes are the field indexes built before serving, covering
// the ownership-scoped lookups on the hot paths.
var startupIndexes = map[string][]string{
	domain.ColFavorite: {domain.FieldUserID, domain.FieldProductID},
	domain.ColCart:     {domain.FieldUserID, domain.FieldProductID},
	domain.ColOrder:    {domain.FieldUserID},
	domain.ColUser:     {"phone"},
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// .env is optional; environment variables win either way.
	if err := godotenv.Load(); err == nil {
		slog.Info("Loaded environment from .env")
	}
	cfg := config.LoadConfig()

	// 1. Storage: file-backed snapshots under the manager's async queue.
	storage, err := persistence.NewFileStorage(cfg.DataDir)
	if err != nil {
		slog.Error("Cannot prepare data directory", "error", err)
		os.Exit(1)
	}
	manager := store.NewManager(storage, cfg.NumShards)
	if err := storage.LoadAll(manager); err != nil {
		slog.Error("Cannot load persisted collections", "error", err)
		os.Exit(1)
	}

	// 2. Field indexes for the ownership lookups.
	for collection, fields := range startupIndexes {
		col := manager.Collection(collection)
		for _, field := range fields {
			col.CreateIndex(field)
		}
	}

	// 3. Change notifier.
	hub := notify.NewHub(logger)
	go hub.Run()

	// 4. Core services.
	resolver := authz.NewResolver()
	gw := gateway.New(manager, resolver, hub, logger)
	counters := counter.NewService(manager, logger)
	tokens := auth.NewTokenIssuer(cfg.JwtSecret, cfg.TokenTtl)
	otp := auth.NewOTPService(manager, logSender{logger: logger}, cfg.OtpTtl, logger)
	authSvc := auth.NewService(manager, tokens, otp, logger)
	payments := payment.NewService(gw, counters, textQREncoder{}, cfg.MerchantName, logger)

	// 5. Background maintenance: periodic snapshots and TTL sweeping.
	scheduler := persistence.NewSnapshotScheduler(manager, cfg.SnapshotInterval, cfg.EnableSnapshots)
	go scheduler.Start()
	ttlTicker := time.NewTicker(cfg.TtlCleanInterval)
	ttlDone := make(chan struct{})
	go func() {
		for {
			select {
			case <-ttlTicker.C:
				manager.CleanExpiredItemsAndSave()
			case <-ttlDone:
				return
			}
		}
	}()

	// 6. HTTP server.
	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      api.NewServer(cfg, gw, authSvc, payments, counters, hub, logger).Handler(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	go func() {
		slog.Info("Server listening", "addr", cfg.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Could not start server", "error", err)
			os.Exit(1)
		}
	}()

	// 7. Graceful shutdown: stop accepting requests, then flush storage.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan
	slog.Info("Termination signal received. Attempting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	} else {
		slog.Info("HTTP server gracefully stopped")
	}

	ttlTicker.Stop()
	close(ttlDone)
	scheduler.Stop()

	// Queue a final snapshot of every collection, then drain the
	// persistence worker.
	for _, name := range manager.ListCollections() {
		manager.EnqueueSave(name, manager.Collection(name))
	}
	manager.Wait()
	slog.Info("Data saved. Application exiting.")
}
