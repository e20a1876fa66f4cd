package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"zenux/internal/models"
	"zenux/internal/services"
)

func TestCreateTransactionConfirmed(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		service: stubService{
			submitFn: func(_ context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
				if rec.FromUserID != "user-1" {
					t.Fatalf("actor must come from the token, got %q", rec.FromUserID)
				}
				rec.Status = models.StatusConfirmed
				rec.AIValidated = true
				return rec, nil
			},
		},
	})
	body := []byte(`{"id":"tx-1","amount":-1500,"currency":"USD","type":"qr_payment","payment_method":"wallet","status":"pending"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/transactions", body))
	if rr.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		Transaction models.TransactionRecord `json:"transaction"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Transaction.Status != models.StatusConfirmed || !resp.Transaction.AIValidated {
		t.Fatalf("unexpected transaction: %#v", resp.Transaction)
	}
}

func TestCreateTransactionPolicyRejection(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		service: stubService{
			submitFn: func(_ context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
				rec.Status = models.StatusFailed
				return rec, &services.PolicyRejectionError{Reason: "amount exceeds balance"}
			},
		},
	})
	body := []byte(`{"id":"tx-1","amount":-999999,"currency":"USD","type":"qr_payment","status":"pending"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/transactions", body))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", rr.Code)
	}
	var resp map[string]any
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["error"] != "amount exceeds balance" {
		t.Fatalf("rejection reason must be surfaced: %#v", resp)
	}
}

func TestCreateTransactionWalletNotFound(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		service: stubService{
			submitFn: func(context.Context, models.TransactionRecord) (models.TransactionRecord, error) {
				return models.TransactionRecord{}, services.ErrWalletNotFound
			},
		},
	})
	body := []byte(`{"id":"tx-1","amount":-100,"currency":"USD","type":"p2p","wallet_id":"missing","status":"pending"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/transactions", body))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCreateTransactionRetiredWallet(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		service: stubService{
			submitFn: func(context.Context, models.TransactionRecord) (models.TransactionRecord, error) {
				return models.TransactionRecord{}, services.ErrWalletRetired
			},
		},
	})
	body := []byte(`{"id":"tx-1","amount":-100,"currency":"USD","type":"p2p","wallet_id":"w1","status":"pending"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/transactions", body))
	if rr.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rr.Code)
	}
}

func TestCreateTransactionBadCurrency(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		service: stubService{
			submitFn: func(context.Context, models.TransactionRecord) (models.TransactionRecord, error) {
				t.Fatal("service must not be reached with a bad currency")
				return models.TransactionRecord{}, nil
			},
		},
	})
	body := []byte(`{"id":"tx-1","amount":-100,"currency":"dollars","type":"p2p","status":"pending"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/transactions", body))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}

func TestCreateTransactionUnauthorized(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	req := authedRequest(t, http.MethodPost, "/transactions", []byte(`{}`))
	req.Header.Del("Authorization")
	rr := serve(handler, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestListTransactionsFiltersByType(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		txs: stubTransactionStore{
			listByUserFn: func(_ context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error) {
				if userID != "user-1" || txType != "p2p" || limit != 10 || offset != 0 {
					t.Fatalf("unexpected query: %s %s %d %d", userID, txType, limit, offset)
				}
				return []models.TransactionRecord{{ID: "tx-1"}}, nil
			},
		},
	})
	rr := serve(handler, authedRequest(t, http.MethodGet, "/transactions?type=p2p&limit=10", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestListTransactionsRejectsUnknownType(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	rr := serve(handler, authedRequest(t, http.MethodGet, "/transactions?type=teleport", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
}
