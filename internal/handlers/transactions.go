package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"zenux/internal/models"
	"zenux/internal/services"
	"zenux/internal/validator"
)

// CreateTransaction reconciles a device-built record. The client owns the id
// and created_at; the server decides the final status. Replays of a known id
// return the stored record with 200 instead of creating anything.
func (h *Handler) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	var rec models.TransactionRecord
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	rec.FromUserID = userID
	if err := validator.ValidateCurrency(rec.Currency); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	resolved, err := h.service.Submit(r.Context(), rec)
	if err != nil {
		var rejection *services.PolicyRejectionError
		switch {
		case errors.As(err, &rejection):
			respondJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":       rejection.Reason,
				"transaction": resolved,
			})
		case errors.Is(err, services.ErrInvalidRecord), errors.Is(err, services.ErrUnknownType):
			respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, services.ErrWalletNotFound):
			respondError(w, http.StatusNotFound, err.Error())
		case errors.Is(err, services.ErrWalletRetired):
			respondError(w, http.StatusConflict, err.Error())
		default:
			respondError(w, http.StatusBadGateway, "transaction could not be resolved")
		}
		return
	}
	respondJSON(w, http.StatusCreated, map[string]any{"transaction": resolved})
}

func (h *Handler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := userFromRequest(w, r)
	if !ok {
		return
	}
	txType := r.URL.Query().Get("type")
	if txType != "" && !models.IsKnownType(txType) {
		respondError(w, http.StatusBadRequest, "unknown transaction type")
		return
	}
	limit := parseInt(r.URL.Query().Get("limit"), 50)
	offset := parseInt(r.URL.Query().Get("offset"), 0)

	records, err := h.transactions.ListByUser(r.Context(), userID, txType, limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list transactions")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"transactions": records})
}
