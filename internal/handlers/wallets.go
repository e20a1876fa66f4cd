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
	"github.com/lib/pq"

	"zenux/internal/models"
	"zenux/internal/validator"
)

type createWalletRequest struct {
	Name     string `json:"name"`
	Currency string `json:"currency"`
}

func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	var req createWalletRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "wallet name is required")
		return
	}
	if err := validator.ValidateCurrency(req.Currency); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	creator, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusUnauthorized, "user not found")
		return
	}

	walletID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.wallets.Create(r.Context(), tx, walletID, req.Name, req.Currency); err != nil {
			return err
		}
		member := models.WalletMember{
			ID:       uuid.NewString(),
			WalletID: walletID,
			UserID:   userID,
			Username: creator.Username,
			Role:     models.RoleAdmin,
			JoinedAt: time.Now().UTC(),
		}
		if err := h.wallets.AddMember(r.Context(), tx, member); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"name": req.Name, "currency": req.Currency})
		return h.audit.Log(r.Context(), tx, userID, "wallet_create", "wallet", walletID, string(data))
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create wallet")
		return
	}
	wallet, err := h.wallets.GetByID(r.Context(), walletID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to load wallet")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"wallet": wallet})
}

// ListWallets returns the caller's wallets with balances folded from their
// transaction history. A first-time caller gets a personal wallet created on
// the spot so the client always has somewhere to put money.
func (h *Handler) ListWallets(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	wallets, err := h.wallets.ListByUser(r.Context(), userID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list wallets")
		return
	}
	if len(wallets) == 0 {
		wallet, err := h.createPersonalWallet(r, userID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to create personal wallet")
			return
		}
		wallets = append(wallets, wallet)
	}
	for i := range wallets {
		balance, err := h.transactions.WalletBalance(r.Context(), wallets[i].ID)
		if err != nil {
			respondError(w, http.StatusInternalServerError, "failed to compute balance")
			return
		}
		wallets[i].Balance = balance
	}
	respondJSON(w, http.StatusOK, map[string]any{"wallets": wallets})
}

func (h *Handler) createPersonalWallet(r *http.Request, userID string) (models.WalletBalance, error) {
	owner, err := h.users.GetByID(r.Context(), userID)
	if err != nil {
		return models.WalletBalance{}, err
	}
	walletID := uuid.NewString()
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.wallets.Create(r.Context(), tx, walletID, "Personal", "USD"); err != nil {
			return err
		}
		member := models.WalletMember{
			ID:       uuid.NewString(),
			WalletID: walletID,
			UserID:   userID,
			Username: owner.Username,
			Role:     models.RoleAdmin,
			JoinedAt: time.Now().UTC(),
		}
		return h.wallets.AddMember(r.Context(), tx, member)
	})
	if err != nil {
		return models.WalletBalance{}, err
	}
	return h.wallets.GetByID(r.Context(), walletID)
}

// WalletBalance reports both the projected balance (queued and pending
// included) and the confirmed-only balance, so clients can show optimistic
// and settled views side by side.
func (h *Handler) WalletBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	walletID := chi.URLParam(r, "id")
	if _, err := h.wallets.MemberRole(r.Context(), walletID, userID); err != nil {
		respondError(w, http.StatusForbidden, "not a wallet member")
		return
	}
	projected, err := h.transactions.WalletBalance(r.Context(), walletID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute balance")
		return
	}
	confirmed, err := h.transactions.WalletConfirmedBalance(r.Context(), walletID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to compute balance")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"wallet_id": walletID,
		"balance":   projected,
		"confirmed": confirmed,
	})
}

func (h *Handler) ListWalletMembers(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	walletID := chi.URLParam(r, "id")
	if _, err := h.wallets.MemberRole(r.Context(), walletID, userID); err != nil {
		respondError(w, http.StatusForbidden, "not a wallet member")
		return
	}
	members, err := h.wallets.Members(r.Context(), walletID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list members")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"members": members})
}

type addMemberRequest struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

func (h *Handler) AddWalletMember(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	walletID := chi.URLParam(r, "id")
	var req addMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	if req.Role == "" {
		req.Role = models.RoleMember
	}
	if req.Role != models.RoleAdmin && req.Role != models.RoleMember {
		respondError(w, http.StatusBadRequest, "unknown role")
		return
	}
	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "user not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to look up user")
		return
	}
	member := models.WalletMember{
		ID:       uuid.NewString(),
		WalletID: walletID,
		UserID:   user.ID,
		Username: user.Username,
		Role:     req.Role,
		JoinedAt: time.Now().UTC(),
	}
	err = h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		if err := h.wallets.AddMember(r.Context(), tx, member); err != nil {
			return err
		}
		data, _ := json.Marshal(map[string]string{"user_id": user.ID, "role": req.Role})
		return h.audit.Log(r.Context(), tx, actorID, "wallet_member_add", "wallet", walletID, string(data))
	})
	if err != nil {
		if pgErr, ok := err.(*pq.Error); ok && pgErr.Code == "23505" {
			respondError(w, http.StatusConflict, "user is already a member")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to add member")
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"member": member})
}

// RetireWallet soft-deletes: the wallet stops accepting transactions but its
// history and fold stay queryable.
func (h *Handler) RetireWallet(w http.ResponseWriter, r *http.Request) {
	actorID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	walletID := chi.URLParam(r, "id")
	var affected int64
	err := h.txRunner.WithTx(r.Context(), func(tx *sqlx.Tx) error {
		var err error
		if affected, err = h.wallets.Retire(r.Context(), tx, walletID); err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		return h.audit.Log(r.Context(), tx, actorID, "wallet_retire", "wallet", walletID, "{}")
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to retire wallet")
		return
	}
	if affected == 0 {
		respondError(w, http.StatusNotFound, "wallet not found or already retired")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "retired"})
}
