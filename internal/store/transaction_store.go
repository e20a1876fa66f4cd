package store

import (
	"context"
	"time"

	"zenux/internal/models"
)

// TransactionStore is the durable append log for transaction records. The
// offline queue is not a separate structure: it is the set of unresolved
// rows in creation order.
type TransactionStore struct {
	db DB
}

func NewTransactionStore(db DB) *TransactionStore {
	return &TransactionStore{db: db}
}

type transactionRow struct {
	ID            string    `db:"id"`
	FromUserID    string    `db:"from_user_id"`
	WalletID      *string   `db:"wallet_id"`
	Amount        int64     `db:"amount"`
	Currency      string    `db:"currency"`
	Type          string    `db:"type"`
	Status        string    `db:"status"`
	PaymentMethod string    `db:"payment_method"`
	AIValidated   bool      `db:"ai_validated"`
	OfflineQueued bool      `db:"offline_queued"`
	Metadata      string    `db:"metadata"`
	Seq           *int64    `db:"seq"`
	CreatedAt     time.Time `db:"created_at"`
}

const transactionColumns = `id, from_user_id, wallet_id, amount, currency, type, status, payment_method, ai_validated, offline_queued, metadata, seq, created_at`

func (s *TransactionStore) Create(ctx context.Context, tx Execer, rec models.TransactionRecord) error {
	metadata := rec.Metadata
	if metadata == "" {
		metadata = "{}"
	}
	query := `
		INSERT INTO transactions (id, from_user_id, wallet_id, amount, currency, type, status, payment_method, ai_validated, offline_queued, metadata, seq, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := tx.ExecContext(ctx, query,
		rec.ID, rec.FromUserID, rec.WalletID, rec.Amount, rec.Currency, rec.Type, rec.Status,
		rec.PaymentMethod, rec.AIValidated, rec.OfflineQueued, metadata, rec.Seq, rec.CreatedAt,
	)
	return err
}

// Append writes a record outside any surrounding transaction. The device
// pipeline writes locally first, before any network round-trip.
func (s *TransactionStore) Append(ctx context.Context, rec models.TransactionRecord) error {
	return s.Create(ctx, s.db, rec)
}

// PatchStatus is UpdateStatus against the bare connection.
func (s *TransactionStore) PatchStatus(ctx context.Context, id, status string, aiValidated bool, metadataPatch string) (int64, error) {
	return s.UpdateStatus(ctx, s.db, id, status, aiValidated, metadataPatch)
}

func (s *TransactionStore) Get(ctx context.Context, id string) (models.TransactionRecord, error) {
	var row transactionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	return rowToRecord(row), nil
}

func (s *TransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error) {
	var rows []transactionRow
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE from_user_id = $1`
	args := []any{userID}
	if txType != "" {
		query += ` AND type = $2 ORDER BY created_at DESC LIMIT $3 OFFSET $4`
		args = append(args, txType, limit, offset)
	} else {
		query += ` ORDER BY created_at DESC LIMIT $2 OFFSET $3`
		args = append(args, limit, offset)
	}
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, err
	}
	return rowsToRecords(rows), nil
}

func (s *TransactionStore) ListByWallet(ctx context.Context, walletID string) ([]models.TransactionRecord, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE wallet_id = $1
		ORDER BY created_at ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	return rowsToRecords(rows), nil
}

// ListUnresolved returns every queued or pending record in creation order.
// Queue drain and crash recovery both start from this list.
func (s *TransactionStore) ListUnresolved(ctx context.Context) ([]models.TransactionRecord, error) {
	var rows []transactionRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE status IN ('queued', 'pending')
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	return rowsToRecords(rows), nil
}

// UpdateStatus moves a record to a new status unless it is already terminal.
// metadataPatch, when non-empty, is a JSON object merged over the stored
// metadata. Returns the number of rows changed; zero means the record was
// terminal (or missing) and was left untouched.
func (s *TransactionStore) UpdateStatus(ctx context.Context, tx Execer, id, status string, aiValidated bool, metadataPatch string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2,
		    ai_validated = $3,
		    metadata = CASE WHEN $4 = '' THEN metadata ELSE metadata::jsonb || $4::jsonb END
		WHERE id = $1 AND status NOT IN ('confirmed', 'failed')
	`, id, status, aiValidated, metadataPatch)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

// WalletBalance folds every non-failed transaction referencing the wallet.
func (s *TransactionStore) WalletBalance(ctx context.Context, walletID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = $1 AND status <> 'failed'
	`, walletID)
	return balance, err
}

func (s *TransactionStore) WalletConfirmedBalance(ctx context.Context, walletID string) (int64, error) {
	var balance int64
	err := s.db.GetContext(ctx, &balance, `
		SELECT COALESCE(SUM(amount), 0) FROM transactions
		WHERE wallet_id = $1 AND status = 'confirmed'
	`, walletID)
	return balance, err
}

// NextSeq allocates the wallet's next monotonic sequence number. Callers run
// it inside a serializable transaction, so concurrent confirms against the
// same wallet cannot observe the same maximum.
func (s *TransactionStore) NextSeq(ctx context.Context, tx Getter, walletID string) (int64, error) {
	var seq int64
	err := tx.GetContext(ctx, &seq, `
		SELECT COALESCE(MAX(seq), 0) + 1 FROM transactions WHERE wallet_id = $1
	`, walletID)
	return seq, err
}

func rowToRecord(row transactionRow) models.TransactionRecord {
	return models.TransactionRecord{
		ID:            row.ID,
		FromUserID:    row.FromUserID,
		WalletID:      row.WalletID,
		Amount:        row.Amount,
		Currency:      row.Currency,
		Type:          row.Type,
		Status:        row.Status,
		PaymentMethod: row.PaymentMethod,
		AIValidated:   row.AIValidated,
		OfflineQueued: row.OfflineQueued,
		Metadata:      row.Metadata,
		Seq:           row.Seq,
		CreatedAt:     row.CreatedAt,
	}
}

func rowsToRecords(rows []transactionRow) []models.TransactionRecord {
	records := make([]models.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, rowToRecord(row))
	}
	return records
}
