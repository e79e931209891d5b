// Package main starts the bridge daemon: one queue worker, the contract
// notification stream, and the HTTP ingress.
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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/lootmarkets/ledgerbridge"
	"github.com/lootmarkets/ledgerbridge/cache"
	"github.com/lootmarkets/ledgerbridge/config"
	"github.com/lootmarkets/ledgerbridge/httpapi"
	"github.com/lootmarkets/ledgerbridge/ledger/evm"
)

func main() {
	if err := run(); err != nil {
		slog.Error("bridge exited", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := cache.OpenBadger(cache.BadgerConfig{Path: cfg.DataDir, Logger: logger.With("component", "badger")})
	if err != nil {
		return err
	}
	defer store.Close()

	bus := ledgerbridge.NewBus()
	ledgerClient, err := evm.NewClient(ctx, cfg.LedgerRPCURL, cfg.ContractAddress, cfg.OperatorKey,
		logger.With("component", "ledger"), evm.WithBus(bus))
	if err != nil {
		return err
	}
	wallet := evm.NewWallet(ledgerClient.EthClient(), ledgerClient.Operator(), cfg.FeeAsset, logger.With("component", "wallet"))

	registry := prometheus.NewRegistry()
	metrics := ledgerbridge.NewMetrics(registry)

	bridge, err := ledgerbridge.NewBridge(ledgerbridge.Deps{
		Ledger:      ledgerClient,
		Wallet:      wallet,
		Bus:         bus,
		Store:       store,
		Logger:      logger,
		Contract:    cfg.ContractAddress,
		Marketplace: cfg.Marketplace,
		WalletPath:  cfg.WalletPath,
		WalletPass:  cfg.WalletPassphrase,
	},
		ledgerbridge.WithMetrics(metrics),
		ledgerbridge.WithQueueOptions(
			ledgerbridge.WithRetryBackoff(cfg.RetryBackoff),
			ledgerbridge.WithMaxAttempts(cfg.MaxAttempts),
			ledgerbridge.WithDeadLetter(func(op *ledgerbridge.Operation, err error) {
				logger.Error("operation abandoned", "operation", op.Name, "correlationKey", op.CorrelationKey, "error", err)
			}),
		),
		ledgerbridge.WithGateOptions(
			ledgerbridge.WithFeeAsset(cfg.FeeAsset),
			ledgerbridge.WithSyncCeiling(cfg.SyncWaitCeiling),
		),
		ledgerbridge.WithSubmitterOptions(
			ledgerbridge.WithConfirmationWindow(cfg.ConfirmPoll, cfg.ConfirmCeiling),
		),
		ledgerbridge.WithProjectorOptions(
			ledgerbridge.WithAddressDecoder(evm.DecodeAddress),
		),
	)
	if err != nil {
		return err
	}

	api := httpapi.NewServer(bridge, logger.With("component", "httpapi"),
		httpapi.WithAuthToken(cfg.APIToken),
		httpapi.WithPrometheus(registry),
	)
	httpServer := &http.Server{Addr: cfg.ListenAddr, Handler: api.Router()}

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return bridge.Run(ctx)
	})
	group.Go(func() error {
		return ledgerClient.StreamNotifications(ctx, bus)
	})
	group.Go(func() error {
		logger.Info("ingress listening", "addr", cfg.ListenAddr)
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return group.Wait()
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
