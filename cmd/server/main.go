package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"blaffapay/internal/config"
	"blaffapay/internal/db"
	"blaffapay/internal/handlers"
	"blaffapay/internal/paynet"
	"blaffapay/internal/services"
	"blaffapay/internal/store"
	"blaffapay/internal/websocket"

	"github.com/shopspring/decimal"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	defaultDeposit, err := decimal.NewFromString(cfg.DefaultDepositRate)
	if err != nil {
		log.Fatalf("invalid default deposit rate: %v", err)
	}
	defaultWithdrawal, err := decimal.NewFromString(cfg.DefaultWithdrawalRate)
	if err != nil {
		log.Fatalf("invalid default withdrawal rate: %v", err)
	}

	partners := store.NewPartnerStore(database)
	platforms := store.NewPlatformStore(database)
	permissions := store.NewPermissionStore(database)
	commissionConfigs := store.NewCommissionConfigStore(database)
	transactions := store.NewTransactionStore(database)
	payouts := store.NewPayoutStore(database)
	accounts := store.NewAccountStore(database)
	admin := store.NewAdminStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)
	hub := websocket.NewHub()
	dispatcher := paynet.NewClient(cfg.PaymentAPIURL, cfg.PaymentAPIKey, cfg.DispatchTimeout)

	permissionService := services.NewPermissionService(txRunner, permissions, platforms, audit)
	commissionService := services.NewCommissionConfigService(txRunner, commissionConfigs, audit, defaultDeposit, defaultWithdrawal)
	ledger := services.NewCommissionLedger(txRunner, transactions, partners, accounts, payouts, audit, hub)
	settlements := services.NewSettlementService(txRunner, transactions, partners, platforms, permissionService, commissionService, ledger, accounts, audit, dispatcher, hub, services.SettlementConfig{
		RetryLimit:      cfg.RetryLimit,
		DispatchTimeout: cfg.DispatchTimeout,
		StaleAfter:      cfg.StaleAfter,
	})

	handler := handlers.New(txRunner, cfg, partners, platforms, accounts, admin, audit, transactions, permissionService, commissionService, ledger, settlements, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()
	go runTimeoutSweep(sweepCtx, settlements)

	go func() {
		log.Printf("settlement API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	stopSweep()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

func runTimeoutSweep(ctx context.Context, settlements *services.SettlementService) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			swept, err := settlements.SweepTimeouts(ctx)
			if err != nil {
				log.Printf("timeout sweep failed: %v", err)
				continue
			}
			if swept > 0 {
				log.Printf("timed out %d stale transactions", swept)
			}
		}
	}
}
