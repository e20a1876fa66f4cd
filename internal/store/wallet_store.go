package store

import (
	"context"
	"time"

	"zenux/internal/models"
)

type WalletStore struct {
	db DB
}

func NewWalletStore(db DB) *WalletStore {
	return &WalletStore{db: db}
}

type walletRow struct {
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	Currency  string     `db:"currency"`
	RetiredAt *time.Time `db:"retired_at"`
	CreatedAt time.Time  `db:"created_at"`
}

type walletMemberRow struct {
	ID           string    `db:"id"`
	WalletID     string    `db:"wallet_id"`
	UserID       string    `db:"user_id"`
	Username     string    `db:"username"`
	Role         string    `db:"role"`
	Contribution int64     `db:"contribution"`
	JoinedAt     time.Time `db:"joined_at"`
}

func (s *WalletStore) Create(ctx context.Context, tx Execer, id, name, currency string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallets (id, name, currency) VALUES ($1, $2, $3)
	`, id, name, currency)
	return err
}

func (s *WalletStore) GetByID(ctx context.Context, walletID string) (models.WalletBalance, error) {
	var row walletRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, name, currency, retired_at, created_at FROM wallets WHERE id = $1
	`, walletID)
	if err != nil {
		return models.WalletBalance{}, err
	}
	return walletFromRow(row), nil
}

func (s *WalletStore) ListByUser(ctx context.Context, userID string) ([]models.WalletBalance, error) {
	var rows []walletRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT w.id, w.name, w.currency, w.retired_at, w.created_at
		FROM wallets w
		JOIN wallet_members m ON m.wallet_id = w.id
		WHERE m.user_id = $1 AND w.retired_at IS NULL
		ORDER BY w.created_at ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	wallets := make([]models.WalletBalance, 0, len(rows))
	for _, row := range rows {
		wallets = append(wallets, walletFromRow(row))
	}
	return wallets, nil
}

func (s *WalletStore) AddMember(ctx context.Context, tx Execer, member models.WalletMember) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO wallet_members (id, wallet_id, user_id, username, role)
		VALUES ($1, $2, $3, $4, $5)
	`, member.ID, member.WalletID, member.UserID, member.Username, member.Role)
	return err
}

// Members lists the wallet's members in join order. Contribution is derived
// from each member's confirmed wallet contributions, never stored.
func (s *WalletStore) Members(ctx context.Context, walletID string) ([]models.WalletMember, error) {
	var rows []walletMemberRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT m.id, m.wallet_id, m.user_id, m.username, m.role, m.joined_at,
		       COALESCE((
		           SELECT SUM(t.amount) FROM transactions t
		           WHERE t.wallet_id = m.wallet_id
		             AND t.from_user_id = m.user_id
		             AND t.type = 'wallet_contribution'
		             AND t.status = 'confirmed'
		       ), 0) AS contribution
		FROM wallet_members m
		WHERE m.wallet_id = $1
		ORDER BY m.joined_at ASC
	`, walletID)
	if err != nil {
		return nil, err
	}
	members := make([]models.WalletMember, 0, len(rows))
	for _, row := range rows {
		members = append(members, models.WalletMember(row))
	}
	return members, nil
}

func (s *WalletStore) MemberRole(ctx context.Context, walletID, userID string) (string, error) {
	var role string
	err := s.db.GetContext(ctx, &role, `
		SELECT role FROM wallet_members WHERE wallet_id = $1 AND user_id = $2
	`, walletID, userID)
	return role, err
}

// Retire soft-retires a wallet. Wallets referenced by transactions are never
// hard-deleted.
func (s *WalletStore) Retire(ctx context.Context, tx Execer, walletID string) (int64, error) {
	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET retired_at = now() WHERE id = $1 AND retired_at IS NULL
	`, walletID)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func walletFromRow(row walletRow) models.WalletBalance {
	return models.WalletBalance{
		ID:        row.ID,
		Name:      row.Name,
		Currency:  row.Currency,
		RetiredAt: row.RetiredAt,
		CreatedAt: row.CreatedAt,
	}
}
