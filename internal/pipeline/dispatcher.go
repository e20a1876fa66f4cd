package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"zenux/internal/models"
)

// RejectionError is a permanent refusal: validation or server policy
// declined this exact transaction. It is never retried.
type RejectionError struct {
	Reason string
}

func (e *RejectionError) Error() string {
	return "transaction rejected: " + e.Reason
}

// Dispatcher sends a record to the authoritative server and returns the
// server's echo of it. Any error that is not a RejectionError is transient.
type Dispatcher interface {
	Dispatch(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error)
}

type HTTPDispatcher struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewHTTPDispatcher(baseURL, token string, timeout time.Duration) *HTTPDispatcher {
	return &HTTPDispatcher{
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

type dispatchResponse struct {
	Transaction models.TransactionRecord `json:"transaction"`
}

type dispatchError struct {
	Error string `json:"error"`
}

func (d *HTTPDispatcher) Dispatch(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/transactions", bytes.NewReader(payload))
	if err != nil {
		return models.TransactionRecord{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return models.TransactionRecord{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		var parsed dispatchResponse
		if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
			return models.TransactionRecord{}, err
		}
		return parsed.Transaction, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusRequestTimeout && resp.StatusCode != http.StatusTooManyRequests:
		var parsed dispatchError
		_ = json.NewDecoder(resp.Body).Decode(&parsed)
		if parsed.Error == "" {
			parsed.Error = fmt.Sprintf("rejected with status %d", resp.StatusCode)
		}
		return models.TransactionRecord{}, &RejectionError{Reason: parsed.Error}
	default:
		return models.TransactionRecord{}, fmt.Errorf("dispatch status %d", resp.StatusCode)
	}
}

// Healthy probes the server; the agent's connectivity monitor polls it.
func (d *HTTPDispatcher) Healthy(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := d.http.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}
