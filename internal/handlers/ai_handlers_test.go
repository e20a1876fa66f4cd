package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"zenux/internal/ai"
)

func TestValidateTransactionProxy(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		policy: stubPolicy{
			validateFn: func(_ context.Context, req ai.ValidationRequest) (ai.Verdict, error) {
				if req.AmountMinor != 1250 || req.BalanceMinor != 10000 {
					t.Fatalf("major-unit strings must convert to minor units: %#v", req)
				}
				return ai.Verdict{IsValid: true}, nil
			},
		},
	})
	body := []byte(`{"amount":"12.50","currency":"USD","type":"qr_payment","payment_method":"wallet","user_balance":"100.00"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/ai/validate-transaction", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var verdict ai.Verdict
	_ = json.Unmarshal(rr.Body.Bytes(), &verdict)
	if !verdict.IsValid {
		t.Fatalf("unexpected verdict: %#v", verdict)
	}
}

func TestValidateTransactionRejectsBadAmount(t *testing.T) {
	handler := newTestHandler(handlerStubs{})
	for _, amount := range []string{"-5.00", "0", "1.005", "abc"} {
		body := []byte(`{"amount":"` + amount + `","currency":"USD","type":"qr_payment","user_balance":"10.00"}`)
		rr := serve(handler, authedRequest(t, http.MethodPost, "/ai/validate-transaction", body))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("amount %q: expected 400, got %d", amount, rr.Code)
		}
	}
}

func TestValidateTransactionServiceDown(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		policy: stubPolicy{
			validateFn: func(context.Context, ai.ValidationRequest) (ai.Verdict, error) {
				return ai.Verdict{}, errors.New("connection refused")
			},
		},
	})
	body := []byte(`{"amount":"12.50","currency":"USD","type":"qr_payment","user_balance":"100.00"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/ai/validate-transaction", body))
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
}

func TestConfirmationPromptProxy(t *testing.T) {
	handler := newTestHandler(handlerStubs{
		policy: stubPolicy{
			promptFn: func(_ context.Context, req ai.PromptRequest) (string, error) {
				if req.AmountMinor != 1250 {
					t.Fatalf("unexpected request: %#v", req)
				}
				return "Send $12.50 via wallet?", nil
			},
		},
	})
	body := []byte(`{"amount":"12.50","currency":"USD","payment_method":"wallet"}`)
	rr := serve(handler, authedRequest(t, http.MethodPost, "/ai/confirmation-prompt", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(rr.Body.Bytes(), &resp)
	if resp["prompt"] != "Send $12.50 via wallet?" {
		t.Fatalf("unexpected prompt: %#v", resp)
	}
}
