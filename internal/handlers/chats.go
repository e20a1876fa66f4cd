package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"zenux/internal/models"
	"zenux/internal/relay"
)

type createChatRequest struct {
	Title string `json:"title"`
}

func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	var req createChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Title == "" {
		req.Title = "New chat"
	}
	chatID := uuid.NewString()
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.chats.CreateChat(r.Context(), tx, chatID, userID, req.Title)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create chat")
		return
	}
	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load chat")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"chat": chat})
}

func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	chats, err := h.chats.ListChatsByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list chats")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"chats": chats})
}

// ownedChat loads the chat and enforces that the caller created it. Chats are
// single-owner; there is no sharing model.
func (h *Handler) ownedChat(w http.ResponseWriter, r *http.Request, userID string) (models.ChatSession, bool) {
	chatID := chi.URLParam(r, "id")
	chat, err := h.chats.GetChat(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "chat not found")
		} else {
			respondError(w, http.StatusInternalServerError, "failed to load chat")
		}
		return models.ChatSession{}, false
	}
	if chat.UserID != userID {
		respondError(w, http.StatusForbidden, "not your chat")
		return models.ChatSession{}, false
	}
	return chat, true
}

type createMessageRequest struct {
	Role        string `json:"role"`
	Content     string `json:"content"`
	MessageType string `json:"message_type"`
}

// CreateMessage stores a chat message, encrypting the content at rest. The
// stored ciphertext is decrypted again on read, so clients only ever see
// plaintext.
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	chat, ok := h.ownedChat(w, r, userID)
	if !ok {
		return
	}
	var req createMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, "message content is required")
		return
	}
	if req.Role != "user" && req.Role != "assistant" {
		respondError(w, http.StatusBadRequest, "role must be user or assistant")
		return
	}
	if req.MessageType == "" {
		req.MessageType = "text"
	}

	stored := req.Content
	encrypted := false
	if h.cipher != nil {
		ciphertext, err := h.cipher.Encrypt(req.Content)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to store message")
			return
		}
		stored = ciphertext
		encrypted = true
	}
	msg := models.Message{
		ID:          uuid.NewString(),
		ChatID:      chat.ID,
		Role:        req.Role,
		Content:     stored,
		MessageType: req.MessageType,
		Encrypted:   encrypted,
		CreatedAt:   time.Now().UTC(),
	}
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		return h.chats.CreateMessage(r.Context(), tx, msg)
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to store message")
		return
	}

	msg.Content = req.Content
	msg.Encrypted = false
	if h.hub != nil {
		h.hub.Publish("chat:"+chat.ID, relay.EventChatMessage, msg)
	}
	respondJSON(w, http.StatusCreated, map[string]any{"message": msg})
}

func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	chat, ok := h.ownedChat(w, r, userID)
	if !ok {
		return
	}
	messages, err := h.chats.ListMessages(r.Context(), chat.ID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}
	for i := range messages {
		if !messages[i].Encrypted || h.cipher == nil {
			continue
		}
		plaintext, err := h.cipher.Decrypt(messages[i].Content)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to read message")
			return
		}
		messages[i].Content = plaintext
		messages[i].Encrypted = false
	}
	respondJSON(w, http.StatusOK, map[string]any{"messages": messages})
}
