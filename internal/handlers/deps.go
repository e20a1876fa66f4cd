package handlers

import (
	"context"

	"zenux/internal/ai"
	"zenux/internal/models"
	"zenux/internal/store"
)

type UserStore interface {
	Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	GetByEmail(ctx context.Context, email string) (models.User, error)
	GetByUsername(ctx context.Context, username string) (models.User, error)
	GetByID(ctx context.Context, userID string) (models.User, error)
}

type TransactionStore interface {
	ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error)
	WalletBalance(ctx context.Context, walletID string) (int64, error)
	WalletConfirmedBalance(ctx context.Context, walletID string) (int64, error)
}

type WalletStore interface {
	Create(ctx context.Context, tx store.Execer, id, name, currency string) error
	GetByID(ctx context.Context, walletID string) (models.WalletBalance, error)
	ListByUser(ctx context.Context, userID string) ([]models.WalletBalance, error)
	AddMember(ctx context.Context, tx store.Execer, member models.WalletMember) error
	Members(ctx context.Context, walletID string) ([]models.WalletMember, error)
	MemberRole(ctx context.Context, walletID, userID string) (string, error)
	Retire(ctx context.Context, tx store.Execer, walletID string) (int64, error)
}

type ChatStore interface {
	CreateChat(ctx context.Context, tx store.Execer, id, userID, title string) error
	GetChat(ctx context.Context, chatID string) (models.ChatSession, error)
	ListChatsByUser(ctx context.Context, userID string) ([]models.ChatSession, error)
	CreateMessage(ctx context.Context, tx store.Execer, msg models.Message) error
	ListMessages(ctx context.Context, chatID string) ([]models.Message, error)
}

type AuditStore interface {
	Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
	List(ctx context.Context, limit, offset int) ([]map[string]any, error)
}

type TransactionService interface {
	Submit(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error)
}

type PolicyEngine interface {
	ValidateTransaction(ctx context.Context, req ai.ValidationRequest) (ai.Verdict, error)
	ConfirmationPrompt(ctx context.Context, req ai.PromptRequest) (string, error)
}

type MessageCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encoded string) (string, error)
}
