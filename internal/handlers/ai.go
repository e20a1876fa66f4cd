package handlers

import (
	"encoding/json"
	"net/http"

	"zenux/internal/ai"
	"zenux/internal/validator"
)

type validateTransactionRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Type          string `json:"type"`
	PaymentMethod string `json:"payment_method"`
	UserBalance   string `json:"user_balance"`
}

// ValidateTransaction proxies a draft to the policy engine without touching
// storage. Devices call it pre-flight; the authoritative check still happens
// on submission.
func (h *Handler) ValidateTransaction(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromRequest(w, r); !ok {
		return
	}
	var req validateTransactionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil || amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	balance, err := parseAmountMinor(req.UserBalance)
	if err != nil {
		respondError(w, http.StatusBadRequest, "balance must be a decimal")
		return
	}
	if err := validator.ValidateCurrency(req.Currency); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validator.ValidateTransactionType(req.Type); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	verdict, err := h.policy.ValidateTransaction(r.Context(), ai.ValidationRequest{
		AmountMinor:   amount,
		Currency:      req.Currency,
		Type:          req.Type,
		PaymentMethod: req.PaymentMethod,
		BalanceMinor:  balance,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "validation service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, verdict)
}

type confirmationPromptRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) ConfirmationPrompt(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromRequest(w, r); !ok {
		return
	}
	var req confirmationPromptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	amount, err := parseAmountMinor(req.Amount)
	if err != nil || amount <= 0 {
		respondError(w, http.StatusBadRequest, "amount must be a positive decimal")
		return
	}
	prompt, err := h.policy.ConfirmationPrompt(r.Context(), ai.PromptRequest{
		AmountMinor:   amount,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
	})
	if err != nil {
		respondError(w, http.StatusBadGateway, "prompt service unavailable")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"prompt": prompt})
}
