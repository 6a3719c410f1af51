package handlers

import (
	"net/http"

	"blaffapay/internal/config"
	"blaffapay/internal/db"
	"blaffapay/internal/middleware"
	"blaffapay/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	partners     PartnerStore
	platforms    PlatformStore
	accounts     AccountStore
	admin        AdminStore
	audit        AuditStore
	transactions TransactionStore
	permissions  PermissionService
	commissions  CommissionConfigService
	ledger       CommissionLedger
	settlements  SettlementService
	hub          *websocket.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, partners PartnerStore, platforms PlatformStore, accounts AccountStore, admin AdminStore, audit AuditStore, transactions TransactionStore, permissions PermissionService, commissions CommissionConfigService, ledger CommissionLedger, settlements SettlementService, hub *websocket.Hub) *Handler {
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		partners:     partners,
		platforms:    platforms,
		accounts:     accounts,
		admin:        admin,
		audit:        audit,
		transactions: transactions,
		permissions:  permissions,
		commissions:  commissions,
		ledger:       ledger,
		settlements:  settlements,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Post("/callbacks/payment", h.PaymentCallback)
	router.Get("/ws/settlements", h.WSSettlements)

	router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))

		r.With(middleware.RequireAdmin(h.admin, "CanManagePermissions")).Post("/permissions", h.GrantPermission)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePermissions")).Put("/permissions/{id}", h.UpdatePermission)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Post("/permissions/check", h.CheckPermission)

		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners", h.ListPartners)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}", h.GetPartner)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePermissions")).Put("/partners/{id}/active", h.SetPartnerActive)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}/permissions", h.ListPartnerPermissions)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}/commission-config", h.GetCommissionConfig)
		r.With(middleware.RequireAdmin(h.admin, "CanManageCommissions")).Put("/partners/{id}/commission-config", h.UpsertCommissionConfig)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}/commission-stats", h.PartnerCommissionStats)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}/payouts", h.ListPayouts)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/partners/{id}/entries", h.ListAccountEntries)
		r.With(middleware.RequireAdmin(h.admin, "CanManageCommissions")).Post("/payouts", h.PayCommissions)

		r.With(middleware.RequireAdmin(h.admin, "CanManagePlatforms")).Post("/platforms", h.CreatePlatform)
		r.With(middleware.RequireAdmin(h.admin, "CanManagePlatforms")).Put("/platforms/{id}", h.UpdatePlatform)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/platforms", h.ListPlatforms)

		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/settle", h.Settle)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/transactions", h.ListTransactions)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/transactions/{id}", h.GetTransaction)
		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/{id}/retry", h.RetryTransaction)
		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/{id}/cancel", h.CancelTransaction)
		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/{id}/mark-success", h.MarkTransactionSuccess)
		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/{id}/mark-failed", h.MarkTransactionFailed)
		r.With(middleware.RequireAdmin(h.admin, "CanManageTransactions")).Post("/transactions/{id}/process-cancellation", h.ProcessCancellation)

		r.With(middleware.RequireAdmin(h.admin, "")).Post("/roles/grant", h.GrantRole)
		r.With(middleware.RequireAdmin(h.admin, "CanViewReports")).Get("/audit", h.ListAuditLogs)
	})

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}

func (h *Handler) WSSettlements(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWS(w, r, h.hub)
}
