package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"zenux/internal/config"
	"zenux/internal/db"
	"zenux/internal/metrics"
	"zenux/internal/middleware"
	"zenux/internal/relay"
)

type Handler struct {
	txRunner     db.TxRunner
	cfg          config.Config
	users        UserStore
	transactions TransactionStore
	wallets      WalletStore
	chats        ChatStore
	audit        AuditStore
	service      TransactionService
	policy       PolicyEngine
	cipher       MessageCipher
	hub          *relay.Hub
}

func New(txRunner db.TxRunner, cfg config.Config, users UserStore, transactions TransactionStore, wallets WalletStore, chats ChatStore, audit AuditStore, service TransactionService, policy PolicyEngine, cipher MessageCipher, hub *relay.Hub) *Handler {
	return &Handler{
		txRunner:     txRunner,
		cfg:          cfg,
		users:        users,
		transactions: transactions,
		wallets:      wallets,
		chats:        chats,
		audit:        audit,
		service:      service,
		policy:       policy,
		cipher:       cipher,
		hub:          hub,
	}
}

func (h *Handler) Routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{h.cfg.AllowedOrigins},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.With(middleware.Auth(h.cfg.JWTSecret)).Get("/me", h.Me)
	})

	router.Group(func(r chi.Router) {
		r.Use(middleware.Auth(h.cfg.JWTSecret))
		r.Post("/transactions", h.CreateTransaction)
		r.Get("/transactions", h.ListTransactions)

		r.Post("/wallets", h.CreateWallet)
		r.Get("/wallets", h.ListWallets)
		r.Get("/wallets/{id}/balance", h.WalletBalance)
		r.Get("/wallets/{id}/members", h.ListWalletMembers)
		r.With(middleware.RequireWalletAdmin(h.wallets)).Post("/wallets/{id}/members", h.AddWalletMember)
		r.With(middleware.RequireWalletAdmin(h.wallets)).Delete("/wallets/{id}", h.RetireWallet)

		r.Post("/chats", h.CreateChat)
		r.Get("/chats", h.ListChats)
		r.Post("/chats/{id}/messages", h.CreateMessage)
		r.Get("/chats/{id}/messages", h.ListMessages)

		r.Post("/ai/validate-transaction", h.ValidateTransaction)
		r.Post("/ai/confirmation-prompt", h.ConfirmationPrompt)
	})

	router.With(middleware.Auth(h.cfg.JWTSecret)).Get("/ws", h.WSRelay)
	router.Handle("/metrics", metrics.Handler())
	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return router
}
