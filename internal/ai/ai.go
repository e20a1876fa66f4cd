// Package ai wraps the opaque reasoning service behind the transaction
// policy endpoints. The service judges drafts against policy (balance
// sufficiency, anomaly heuristics) and writes confirmation sentences; this
// client only shapes requests and parses the strict JSON verdicts back out.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var ErrBadVerdict = errors.New("reasoning service returned an unusable verdict")

type Client struct {
	baseURL string
	apiKey  string
	model   string
	http    *http.Client
}

func NewClient(baseURL, apiKey, model string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		http:    &http.Client{Timeout: timeout},
	}
}

type ValidationRequest struct {
	AmountMinor   int64
	Currency      string
	Type          string
	PaymentMethod string
	BalanceMinor  int64
}

type Verdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

const validationSystemPrompt = `You are a payment policy engine. Judge the transaction for balance sufficiency and anomalies (unusually large amounts, implausible payment methods). Respond with a single JSON object {"is_valid": bool, "reason": string} and nothing else. Reason must be a short human-readable sentence when is_valid is false.`

// ValidateTransaction asks the reasoning service for an approve/reject
// verdict. There is no fallback policy: an unreachable service or an
// unusable answer is an error, never an implicit approval.
func (c *Client) ValidateTransaction(ctx context.Context, req ValidationRequest) (Verdict, error) {
	user := fmt.Sprintf(
		"amount=%s %s type=%s payment_method=%s available_balance=%s",
		major(req.AmountMinor), req.Currency, req.Type, req.PaymentMethod, major(req.BalanceMinor),
	)
	content, err := c.complete(ctx, validationSystemPrompt, user)
	if err != nil {
		return Verdict{}, err
	}
	var verdict Verdict
	if err := json.Unmarshal([]byte(extractJSON(content)), &verdict); err != nil {
		return Verdict{}, fmt.Errorf("%w: %v", ErrBadVerdict, err)
	}
	if !verdict.IsValid && verdict.Reason == "" {
		verdict.Reason = "transaction declined by policy"
	}
	return verdict, nil
}

type PromptRequest struct {
	AmountMinor   int64
	Currency      string
	PaymentMethod string
}

const confirmationSystemPrompt = `Write one short, friendly confirmation sentence for the payment described by the user. Mention amount, currency and payment method. Plain text only.`

func (c *Client) ConfirmationPrompt(ctx context.Context, req PromptRequest) (string, error) {
	user := fmt.Sprintf("amount=%s currency=%s payment_method=%s",
		major(req.AmountMinor), req.Currency, req.PaymentMethod)
	content, err := c.complete(ctx, confirmationSystemPrompt, user)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(content), nil
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	payload, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reasoning service status %d", resp.StatusCode)
	}
	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", err
	}
	if len(parsed.Choices) == 0 {
		return "", ErrBadVerdict
	}
	return parsed.Choices[0].Message.Content, nil
}

// extractJSON tolerates models that wrap the verdict in prose or fences.
func extractJSON(content string) string {
	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return content
	}
	return content[start : end+1]
}

func major(minor int64) string {
	return decimal.NewFromInt(minor).Shift(-2).StringFixed(2)
}
