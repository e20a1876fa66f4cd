// Package gateway is the device-side client for the transaction validation
// service. It is purely advisory: neither call touches local state.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"zenux/internal/money"
)

var ErrUnavailable = errors.New("validation service unavailable")

// Draft carries the fields the policy engine judges a transaction by.
// Amounts are unsigned magnitudes in minor units.
type Draft struct {
	AmountMinor   int64
	Currency      string
	Type          string
	PaymentMethod string
	BalanceMinor  int64
}

type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason,omitempty"`
}

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type validateRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	Type          string `json:"type"`
	PaymentMethod string `json:"payment_method"`
	UserBalance   string `json:"user_balance"`
}

// Validate asks the policy engine to approve or reject the draft. The
// verdict applies to this exact amount, currency and type only.
func (c *Client) Validate(ctx context.Context, draft Draft) (Verdict, error) {
	body := validateRequest{
		Amount:        money.FormatMinor(draft.AmountMinor),
		Currency:      draft.Currency,
		Type:          draft.Type,
		PaymentMethod: draft.PaymentMethod,
		UserBalance:   money.FormatMinor(draft.BalanceMinor),
	}
	var verdict Verdict
	if err := c.post(ctx, "/ai/validate-transaction", body, &verdict); err != nil {
		return Verdict{}, err
	}
	return verdict, nil
}

type promptRequest struct {
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	PaymentMethod string `json:"payment_method"`
}

type promptResponse struct {
	Prompt string `json:"prompt"`
}

// Explain produces the confirmation sentence shown before final commit.
// Failure is non-fatal: a generic sentence is returned instead.
func (c *Client) Explain(ctx context.Context, draft Draft) string {
	body := promptRequest{
		Amount:        money.FormatMinor(draft.AmountMinor),
		Currency:      draft.Currency,
		PaymentMethod: draft.PaymentMethod,
	}
	var resp promptResponse
	if err := c.post(ctx, "/ai/confirmation-prompt", body, &resp); err != nil || resp.Prompt == "" {
		return fmt.Sprintf("Confirm payment of %s %s via %s?",
			money.FormatMinor(draft.AmountMinor), draft.Currency, draft.PaymentMethod)
	}
	return resp.Prompt
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
