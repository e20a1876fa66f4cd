package models

import "time"

const (
	TypeWalletContribution = "wallet_contribution"
	TypeP2P                = "p2p"
	TypeQRPayment          = "qr_payment"
)

const (
	StatusQueued    = "queued"
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusFailed    = "failed"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"
)

// IsTerminalStatus reports whether a transaction can no longer change status.
func IsTerminalStatus(status string) bool {
	return status == StatusConfirmed || status == StatusFailed
}

func IsKnownType(txType string) bool {
	switch txType {
	case TypeWalletContribution, TypeP2P, TypeQRPayment:
		return true
	}
	return false
}

// Outgoing reports whether a transaction type moves money out of the wallet.
// The amount sign is fixed from this at creation and never flipped afterwards.
func Outgoing(txType string) bool {
	return txType == TypeP2P || txType == TypeQRPayment
}

type User struct {
	ID           string    `db:"id" json:"id"`
	Username     string    `db:"username" json:"username"`
	Email        string    `db:"email" json:"email"`
	PasswordHash string    `db:"password_hash" json:"-"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// TransactionRecord is the unit of monetary intent. Identity is assigned on
// the device at creation time, so the record is stable across offline/online
// transitions. Amount is in signed minor units; negative means outgoing.
type TransactionRecord struct {
	ID            string    `db:"id" json:"id"`
	FromUserID    string    `db:"from_user_id" json:"from_user_id"`
	WalletID      *string   `db:"wallet_id" json:"wallet_id,omitempty"`
	Amount        int64     `db:"amount" json:"amount"`
	Currency      string    `db:"currency" json:"currency"`
	Type          string    `db:"type" json:"type"`
	Status        string    `db:"status" json:"status"`
	PaymentMethod string    `db:"payment_method" json:"payment_method"`
	AIValidated   bool      `db:"ai_validated" json:"ai_validated"`
	OfflineQueued bool      `db:"offline_queued" json:"offline_queued"`
	Metadata      string    `db:"metadata" json:"metadata"`
	Seq           *int64    `db:"seq" json:"seq,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// WalletBalance is a named pool of funds. Balance is never a stored column:
// it is the fold over the wallet's non-failed transactions.
type WalletBalance struct {
	ID        string     `db:"id" json:"id"`
	Name      string     `db:"name" json:"name"`
	Currency  string     `db:"currency" json:"currency"`
	RetiredAt *time.Time `db:"retired_at" json:"retired_at,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`

	Balance int64          `db:"-" json:"balance"`
	Members []WalletMember `db:"-" json:"members,omitempty"`
}

type WalletMember struct {
	ID           string    `db:"id" json:"id"`
	WalletID     string    `db:"wallet_id" json:"wallet_id"`
	UserID       string    `db:"user_id" json:"user_id"`
	Username     string    `db:"username" json:"username"`
	Role         string    `db:"role" json:"role"`
	Contribution int64     `db:"contribution" json:"contribution"`
	JoinedAt     time.Time `db:"joined_at" json:"joined_at"`
}

// ChatSession is exclusively owned by its creating user.
type ChatSession struct {
	ID        string    `db:"id" json:"id"`
	UserID    string    `db:"user_id" json:"user_id"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Message struct {
	ID          string    `db:"id" json:"id"`
	ChatID      string    `db:"chat_id" json:"chat_id"`
	Role        string    `db:"role" json:"role"`
	Content     string    `db:"content" json:"content"`
	MessageType string    `db:"message_type" json:"message_type"`
	Encrypted   bool      `db:"encrypted" json:"encrypted"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}
