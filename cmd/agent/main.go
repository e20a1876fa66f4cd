// The agent is the device side of the pipeline. It keeps a durable local
// transaction log, builds records from user intent, and dispatches them to
// the API when a connectivity probe says the server is reachable. While
// offline, submissions queue locally and drain in order on reconnect.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"zenux/internal/config"
	"zenux/internal/db"
	"zenux/internal/gateway"
	"zenux/internal/models"
	"zenux/internal/money"
	"zenux/internal/pipeline"
	"zenux/internal/store"
	"zenux/internal/wallet"
)

func main() {
	cfg := config.Load()
	if cfg.AgentUserID == "" {
		log.Fatal("AGENT_USER_ID is required")
	}
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect local database: %v", err)
	}
	defer database.Close()

	transactions := store.NewTransactionStore(database)
	validator := gateway.NewClient(cfg.ServerURL, cfg.AgentToken, cfg.DispatchTimeout)
	dispatcher := pipeline.NewHTTPDispatcher(cfg.ServerURL, cfg.AgentToken, cfg.DispatchTimeout)
	coordinator := pipeline.NewCoordinator(transactions, validator, dispatcher, pipeline.Options{
		Retries:        cfg.DispatchRetries,
		AttemptTimeout: cfg.DispatchTimeout,
	})
	builder := pipeline.NewBuilder(transactions, coordinator)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coordinator.Run(ctx)
	go probeConnectivity(ctx, dispatcher, coordinator, cfg.ProbeInterval)

	agent := &agentAPI{
		builder:     builder,
		coordinator: coordinator,
		gateway:     validator,
		store:       transactions,
		userID:      cfg.AgentUserID,
	}
	server := &http.Server{
		Addr:         "127.0.0.1:" + cfg.AgentPort,
		Handler:      agent.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("zenux agent listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("agent error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}

// probeConnectivity polls the server's health endpoint and feeds the result
// to the coordinator. The offline-to-online edge triggers a queue drain.
func probeConnectivity(ctx context.Context, dispatcher *pipeline.HTTPDispatcher, coordinator *pipeline.Coordinator, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		probeCtx, cancel := context.WithTimeout(ctx, interval)
		online := dispatcher.Healthy(probeCtx)
		cancel()
		if online != coordinator.Online() {
			log.Printf("connectivity: online=%v", online)
		}
		coordinator.SetOnline(online)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

type agentAPI struct {
	builder     *pipeline.Builder
	coordinator *pipeline.Coordinator
	gateway     *gateway.Client
	store       *store.TransactionStore
	userID      string
}

func (a *agentAPI) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Post("/local/transactions", a.createTransaction)
	router.Get("/local/transactions", a.listQueue)
	router.Post("/local/transactions/{id}/abandon", a.abandonTransaction)
	router.Get("/local/wallets/{id}/balance", a.walletBalance)
	router.Get("/local/status", a.status)
	return router
}

type createRequest struct {
	WalletID      *string           `json:"wallet_id"`
	Amount        string            `json:"amount"`
	Currency      string            `json:"currency"`
	Type          string            `json:"type"`
	PaymentMethod string            `json:"payment_method"`
	Metadata      map[string]string `json:"metadata"`
}

func (a *agentAPI) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := money.ParseMinor(req.Amount)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rec, err := a.builder.Build(r.Context(), pipeline.BuildRequest{
		ActorID:       a.userID,
		WalletID:      req.WalletID,
		AmountMinor:   amount,
		Currency:      req.Currency,
		Type:          req.Type,
		PaymentMethod: req.PaymentMethod,
		Metadata:      req.Metadata,
	})
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	magnitude := rec.Amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	prompt := a.gateway.Explain(r.Context(), gateway.Draft{
		AmountMinor:   magnitude,
		Currency:      rec.Currency,
		PaymentMethod: rec.PaymentMethod,
	})

	resolved, err := a.coordinator.Submit(r.Context(), rec)
	if err != nil {
		var rejection *pipeline.RejectionError
		if errors.As(err, &rejection) {
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":       rejection.Reason,
				"transaction": resolved,
			})
			return
		}
		// The coordinator already resolved the record durably: failed
		// once the retry budget ran out, or still queued if connectivity
		// flapped mid-submit. Re-read and report whatever it settled on.
		log.Printf("submit %s: %v", rec.ID, err)
		current, gerr := a.store.Get(r.Context(), rec.ID)
		if gerr == nil {
			resolved = current
		}
	}
	respondJSON(w, http.StatusCreated, map[string]any{
		"transaction": resolved,
		"prompt":      prompt,
	})
}

func (a *agentAPI) listQueue(w http.ResponseWriter, r *http.Request) {
	records, err := a.store.ListUnresolved(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list queue")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": records})
}

func (a *agentAPI) abandonTransaction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.coordinator.Abandon(r.Context(), id)
	switch {
	case err == nil:
		respondJSON(w, http.StatusOK, map[string]string{"status": models.StatusFailed})
	case errors.Is(err, pipeline.ErrAlreadyResolved):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusNotFound, "transaction not found")
	}
}

func (a *agentAPI) walletBalance(w http.ResponseWriter, r *http.Request) {
	walletID := chi.URLParam(r, "id")
	txs, err := a.store.ListByWallet(r.Context(), walletID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load transactions")
		return
	}
	balance := wallet.Project(walletID, txs)
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id": walletID,
		"balance":   balance,
		"formatted": money.FormatMinor(balance),
	})
}

func (a *agentAPI) status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"online": a.coordinator.Online()})
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
