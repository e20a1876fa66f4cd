// Package pipeline implements the device-side transaction pipeline: intent
// construction, the durable offline queue, and serialized dispatch with
// reconciliation against the server's authoritative state.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"zenux/internal/models"
	"zenux/internal/validator"
	"zenux/internal/wallet"
)

var (
	ErrInvalidAmount     = errors.New("amount must be positive")
	ErrInsufficientFunds = errors.New("insufficient projected balance")
	ErrMissingRecipient  = errors.New("recipient is required")
	ErrMissingWallet     = errors.New("wallet is required")
)

// Connectivity is the surrounding online/offline signal. The pipeline only
// reads it; detection lives with the caller.
type Connectivity interface {
	Online() bool
}

// LocalStore is the durable device store consumed by the pipeline.
type LocalStore interface {
	Append(ctx context.Context, rec models.TransactionRecord) error
	Get(ctx context.Context, id string) (models.TransactionRecord, error)
	ListByWallet(ctx context.Context, walletID string) ([]models.TransactionRecord, error)
	ListUnresolved(ctx context.Context) ([]models.TransactionRecord, error)
	PatchStatus(ctx context.Context, id, status string, aiValidated bool, metadataPatch string) (int64, error)
}

type BuildRequest struct {
	ActorID       string
	WalletID      *string
	AmountMinor   int64
	Currency      string
	Type          string
	PaymentMethod string
	Metadata      map[string]string
}

// Builder constructs TransactionRecords from user intent. Identity and
// creation time are fixed here, before any network round-trip, so the record
// is stable across offline/online transitions. Nothing is persisted: a
// rejected intent leaves no trace.
type Builder struct {
	store LocalStore
	conn  Connectivity
	now   func() time.Time
	newID func() string
}

func NewBuilder(store LocalStore, conn Connectivity) *Builder {
	return &Builder{
		store: store,
		conn:  conn,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

func (b *Builder) Build(ctx context.Context, req BuildRequest) (models.TransactionRecord, error) {
	if req.AmountMinor <= 0 {
		return models.TransactionRecord{}, ErrInvalidAmount
	}
	if err := validator.ValidateTransactionType(req.Type); err != nil {
		return models.TransactionRecord{}, err
	}
	if err := validator.ValidateCurrency(req.Currency); err != nil {
		return models.TransactionRecord{}, err
	}
	outgoing := models.Outgoing(req.Type)
	if req.Type == models.TypeP2P {
		if req.WalletID == nil {
			return models.TransactionRecord{}, ErrMissingWallet
		}
		if req.Metadata["recipient"] == "" {
			return models.TransactionRecord{}, ErrMissingRecipient
		}
	}
	// Advisory funds check against the projected balance. The server stays
	// authoritative; this only keeps obviously invalid intents out of the
	// queue.
	if outgoing && req.WalletID != nil {
		txs, err := b.store.ListByWallet(ctx, *req.WalletID)
		if err != nil {
			return models.TransactionRecord{}, err
		}
		if req.AmountMinor > wallet.Project(*req.WalletID, txs) {
			return models.TransactionRecord{}, ErrInsufficientFunds
		}
	}

	amount := req.AmountMinor
	if outgoing {
		amount = -amount
	}
	online := b.conn.Online()
	status := models.StatusPending
	if !online {
		status = models.StatusQueued
	}
	metadata := "{}"
	if len(req.Metadata) > 0 {
		encoded, err := json.Marshal(req.Metadata)
		if err != nil {
			return models.TransactionRecord{}, err
		}
		metadata = string(encoded)
	}
	return models.TransactionRecord{
		ID:            b.newID(),
		FromUserID:    req.ActorID,
		WalletID:      req.WalletID,
		Amount:        amount,
		Currency:      req.Currency,
		Type:          req.Type,
		Status:        status,
		PaymentMethod: req.PaymentMethod,
		AIValidated:   false,
		OfflineQueued: !online,
		Metadata:      metadata,
		CreatedAt:     b.now().UTC(),
	}, nil
}
