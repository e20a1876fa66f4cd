package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/jmoiron/sqlx"

	"zenux/internal/ai"
	"zenux/internal/db"
	"zenux/internal/metrics"
	"zenux/internal/models"
	"zenux/internal/relay"
	"zenux/internal/store"
)

var (
	ErrInvalidRecord  = errors.New("invalid transaction record")
	ErrUnknownType    = errors.New("unknown transaction type")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletRetired  = errors.New("wallet is retired")
)

// PolicyRejectionError carries the validation verdict's reason; it is
// surfaced to the user verbatim and the transaction is never retried.
type PolicyRejectionError struct {
	Reason string
}

func (e *PolicyRejectionError) Error() string {
	return "transaction rejected: " + e.Reason
}

type TransactionStore interface {
	Get(ctx context.Context, id string) (models.TransactionRecord, error)
	Create(ctx context.Context, tx store.Execer, rec models.TransactionRecord) error
	NextSeq(ctx context.Context, tx store.Getter, walletID string) (int64, error)
	WalletBalance(ctx context.Context, walletID string) (int64, error)
}

type WalletStore interface {
	GetByID(ctx context.Context, walletID string) (models.WalletBalance, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

type PolicyEngine interface {
	ValidateTransaction(ctx context.Context, req ai.ValidationRequest) (ai.Verdict, error)
}

type RelayHub interface {
	Publish(scope, eventType string, payload any)
}

// TransactionService is the authoritative side of the pipeline. The client
// owns identity and creation time; the server owns the final status and the
// per-wallet sequence number.
type TransactionService struct {
	txRunner db.TxRunner
	txStore  TransactionStore
	wallets  WalletStore
	audit    AuditStore
	policy   PolicyEngine
	hub      RelayHub
}

func NewTransactionService(txRunner db.TxRunner, txStore TransactionStore, wallets WalletStore, audit AuditStore, policy PolicyEngine, hub RelayHub) *TransactionService {
	return &TransactionService{
		txRunner: txRunner,
		txStore:  txStore,
		wallets:  wallets,
		audit:    audit,
		policy:   policy,
		hub:      hub,
	}
}

// Submit resolves a dispatched record to a terminal state. Replaying a known
// id returns the stored record unchanged: the amount is never applied twice
// and a terminal status never regresses.
func (s *TransactionService) Submit(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	if rec.ID == "" || rec.FromUserID == "" || rec.Amount == 0 {
		return models.TransactionRecord{}, ErrInvalidRecord
	}
	if !models.IsKnownType(rec.Type) {
		return models.TransactionRecord{}, ErrUnknownType
	}
	// The sign was fixed at creation; reconciliation only ever touches
	// status, ai_validated and metadata.
	if models.Outgoing(rec.Type) != (rec.Amount < 0) {
		return models.TransactionRecord{}, ErrInvalidRecord
	}

	existing, err := s.txStore.Get(ctx, rec.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return models.TransactionRecord{}, err
	}

	var balance int64
	if rec.WalletID != nil {
		walletRec, err := s.wallets.GetByID(ctx, *rec.WalletID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return models.TransactionRecord{}, ErrWalletNotFound
			}
			return models.TransactionRecord{}, err
		}
		if walletRec.RetiredAt != nil {
			return models.TransactionRecord{}, ErrWalletRetired
		}
		if balance, err = s.txStore.WalletBalance(ctx, *rec.WalletID); err != nil {
			return models.TransactionRecord{}, err
		}
	}

	magnitude := rec.Amount
	if magnitude < 0 {
		magnitude = -magnitude
	}
	verdict, err := s.policy.ValidateTransaction(ctx, ai.ValidationRequest{
		AmountMinor:   magnitude,
		Currency:      rec.Currency,
		Type:          rec.Type,
		PaymentMethod: rec.PaymentMethod,
		BalanceMinor:  balance,
	})
	if err != nil {
		return models.TransactionRecord{}, err
	}

	if !verdict.IsValid {
		metrics.ValidationRejections.Inc()
		failed, err := s.persistFailed(ctx, rec, verdict.Reason)
		if err != nil {
			return models.TransactionRecord{}, err
		}
		s.hub.Publish(scopeFor(failed), relay.EventTransactionUpdate, failed)
		return failed, &PolicyRejectionError{Reason: verdict.Reason}
	}

	rec.Status = models.StatusConfirmed
	rec.AIValidated = true
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if rec.WalletID != nil {
			seq, err := s.txStore.NextSeq(ctx, tx, *rec.WalletID)
			if err != nil {
				return err
			}
			rec.Seq = &seq
		}
		if err := s.txStore.Create(ctx, tx, rec); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"type": rec.Type, "status": rec.Status})
		return s.audit.Log(ctx, tx, rec.FromUserID, "transaction_confirm", "transaction", rec.ID, string(data))
	})
	if err != nil {
		return models.TransactionRecord{}, err
	}
	metrics.TransactionsConfirmed.Inc()
	s.hub.Publish(scopeFor(rec), relay.EventTransactionUpdate, rec)
	return rec, nil
}

func (s *TransactionService) persistFailed(ctx context.Context, rec models.TransactionRecord, reason string) (models.TransactionRecord, error) {
	if reason == "" {
		reason = "declined by policy"
	}
	rec.Status = models.StatusFailed
	rec.AIValidated = false
	rec.Seq = nil
	rec.Metadata = mergeReason(rec.Metadata, reason)
	err := s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.txStore.Create(ctx, tx, rec); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"reason": reason})
		return s.audit.Log(ctx, tx, rec.FromUserID, "transaction_reject", "transaction", rec.ID, string(data))
	})
	if err != nil {
		return models.TransactionRecord{}, err
	}
	metrics.TransactionsFailed.Inc()
	return rec, nil
}

func scopeFor(rec models.TransactionRecord) string {
	if rec.WalletID != nil {
		return "wallet:" + *rec.WalletID
	}
	return "user:" + rec.FromUserID
}

func mergeReason(metadata, reason string) string {
	parsed := map[string]any{}
	if metadata != "" {
		_ = json.Unmarshal([]byte(metadata), &parsed)
	}
	parsed["failure_reason"] = reason
	merged, err := json.Marshal(parsed)
	if err != nil {
		return metadata
	}
	return string(merged)
}
