package store

import (
	"context"
	"time"

	"zenux/internal/models"
)

type ChatStore struct {
	db DB
}

func NewChatStore(db DB) *ChatStore {
	return &ChatStore{db: db}
}

type chatRow struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Title     string    `db:"title"`
	CreatedAt time.Time `db:"created_at"`
}

type messageRow struct {
	ID          string    `db:"id"`
	ChatID      string    `db:"chat_id"`
	Role        string    `db:"role"`
	Content     string    `db:"content"`
	MessageType string    `db:"message_type"`
	Encrypted   bool      `db:"encrypted"`
	CreatedAt   time.Time `db:"created_at"`
}

func (s *ChatStore) CreateChat(ctx context.Context, tx Execer, id, userID, title string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title) VALUES ($1, $2, $3)
	`, id, userID, title)
	return err
}

func (s *ChatStore) GetChat(ctx context.Context, chatID string) (models.ChatSession, error) {
	var row chatRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, title, created_at FROM chats WHERE id = $1
	`, chatID)
	if err != nil {
		return models.ChatSession{}, err
	}
	return models.ChatSession(row), nil
}

func (s *ChatStore) ListChatsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	var rows []chatRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, title, created_at FROM chats
		WHERE user_id = $1
		ORDER BY created_at DESC
	`, userID)
	if err != nil {
		return nil, err
	}
	chats := make([]models.ChatSession, 0, len(rows))
	for _, row := range rows {
		chats = append(chats, models.ChatSession(row))
	}
	return chats, nil
}

func (s *ChatStore) CreateMessage(ctx context.Context, tx Execer, msg models.Message) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content, message_type, encrypted, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, msg.ID, msg.ChatID, msg.Role, msg.Content, msg.MessageType, msg.Encrypted, msg.CreatedAt)
	return err
}

func (s *ChatStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	var rows []messageRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, chat_id, role, content, message_type, encrypted, created_at
		FROM messages
		WHERE chat_id = $1
		ORDER BY created_at ASC
	`, chatID)
	if err != nil {
		return nil, err
	}
	messages := make([]models.Message, 0, len(rows))
	for _, row := range rows {
		messages = append(messages, models.Message(row))
	}
	return messages, nil
}
