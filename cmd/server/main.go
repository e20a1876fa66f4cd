package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"zenux/internal/ai"
	"zenux/internal/config"
	"zenux/internal/crypt"
	"zenux/internal/db"
	"zenux/internal/handlers"
	"zenux/internal/relay"
	"zenux/internal/services"
	"zenux/internal/store"
)

func main() {
	cfg := config.Load()
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}
	defer database.Close()

	users := store.NewUserStore(database)
	transactions := store.NewTransactionStore(database)
	wallets := store.NewWalletStore(database)
	chats := store.NewChatStore(database)
	audit := store.NewAuditStore(database)
	txRunner := db.NewTxRunner(database)

	hub := relay.NewHub()
	if cfg.NATSURL != "" {
		bridge, err := relay.NewBridge(cfg.NATSURL, cfg.InstanceID, hub)
		if err != nil {
			log.Fatalf("failed to connect relay bridge: %v", err)
		}
		defer bridge.Close()
		log.Printf("relay bridge connected to %s as %s", cfg.NATSURL, cfg.InstanceID)
	}

	policy := ai.NewClient(cfg.AIServiceURL, cfg.AIServiceKey, cfg.AIModel, cfg.AITimeout)
	service := services.NewTransactionService(txRunner, transactions, wallets, audit, policy, hub)

	var cipher handlers.MessageCipher
	if cfg.MessageKey != "" {
		c, err := crypt.New(cfg.MessageKey)
		if err != nil {
			log.Fatalf("failed to initialise message cipher: %v", err)
		}
		cipher = c
	}

	handler := handlers.New(txRunner, cfg, users, transactions, wallets, chats, audit, service, policy, cipher, hub)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("zenux API listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)
	<-shutdown

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
