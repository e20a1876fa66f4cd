package pipeline

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"zenux/internal/gateway"
	"zenux/internal/models"
)

// memStore is an in-memory LocalStore with the same terminal-status guard as
// the SQL store: PatchStatus never touches a confirmed or failed row.
type memStore struct {
	mu      sync.Mutex
	records map[string]models.TransactionRecord
	order   []string
}

func newMemStore() *memStore {
	return &memStore{records: make(map[string]models.TransactionRecord)}
}

func (m *memStore) Append(_ context.Context, rec models.TransactionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.ID] = rec
	m.order = append(m.order, rec.ID)
	return nil
}

func (m *memStore) Get(_ context.Context, id string) (models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok {
		return models.TransactionRecord{}, sql.ErrNoRows
	}
	return rec, nil
}

func (m *memStore) ListByWallet(_ context.Context, walletID string) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionRecord
	for _, id := range m.order {
		rec := m.records[id]
		if rec.WalletID != nil && *rec.WalletID == walletID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) ListUnresolved(_ context.Context) ([]models.TransactionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.TransactionRecord
	for _, id := range m.order {
		rec := m.records[id]
		if rec.Status == models.StatusQueued || rec.Status == models.StatusPending {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *memStore) PatchStatus(_ context.Context, id, status string, aiValidated bool, metadataPatch string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	if !ok || models.IsTerminalStatus(rec.Status) {
		return 0, nil
	}
	rec.Status = status
	rec.AIValidated = aiValidated
	if metadataPatch != "" {
		merged := map[string]any{}
		_ = json.Unmarshal([]byte(rec.Metadata), &merged)
		patch := map[string]any{}
		_ = json.Unmarshal([]byte(metadataPatch), &patch)
		for k, v := range patch {
			merged[k] = v
		}
		encoded, _ := json.Marshal(merged)
		rec.Metadata = string(encoded)
	}
	m.records[id] = rec
	return 1, nil
}

type stubValidator struct {
	verdict gateway.Verdict
	err     error
	calls   int
}

func (s *stubValidator) Validate(context.Context, gateway.Draft) (gateway.Verdict, error) {
	s.calls++
	return s.verdict, s.err
}

type stubDispatcher struct {
	mu    sync.Mutex
	calls []string
	fn    func(rec models.TransactionRecord) (models.TransactionRecord, error)
}

func (s *stubDispatcher) Dispatch(_ context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	s.mu.Lock()
	s.calls = append(s.calls, rec.ID)
	s.mu.Unlock()
	if s.fn == nil {
		rec.Status = models.StatusConfirmed
		rec.AIValidated = true
		return rec, nil
	}
	return s.fn(rec)
}

func (s *stubDispatcher) dispatched() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func approve() *stubValidator {
	return &stubValidator{verdict: gateway.Verdict{IsValid: true}}
}

func fastOpts() Options {
	return Options{Retries: 3, Backoff: time.Millisecond, AttemptTimeout: time.Second}
}

func queuedRecord(id string, amount int64, created time.Time) models.TransactionRecord {
	walletID := "wallet-1"
	return models.TransactionRecord{
		ID:            id,
		FromUserID:    "user-1",
		WalletID:      &walletID,
		Amount:        amount,
		Currency:      "USD",
		Type:          models.TypeQRPayment,
		Status:        models.StatusQueued,
		PaymentMethod: "wallet",
		OfflineQueued: true,
		Metadata:      "{}",
		CreatedAt:     created,
	}
}

func TestSubmitOfflineStaysQueued(t *testing.T) {
	store := newMemStore()
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())

	rec, err := c.Submit(context.Background(), queuedRecord("tx-1", -500, time.Now()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Status != models.StatusQueued {
		t.Fatalf("offline submit must leave the record queued, got %s", rec.Status)
	}
	if len(dispatcher.dispatched()) != 0 {
		t.Fatal("nothing may be dispatched while offline")
	}
}

func TestDrainResolvesQueueInOrder(t *testing.T) {
	store := newMemStore()
	base := time.Now()
	for i, id := range []string{"tx-1", "tx-2", "tx-3"} {
		rec := queuedRecord(id, -100, base.Add(time.Duration(i)*time.Second))
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatal(err)
		}
	}
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)

	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	calls := dispatcher.dispatched()
	if len(calls) != 3 || calls[0] != "tx-1" || calls[1] != "tx-2" || calls[2] != "tx-3" {
		t.Fatalf("queue must drain in creation order, got %v", calls)
	}
	for _, id := range calls {
		rec, _ := store.Get(context.Background(), id)
		if rec.Status != models.StatusConfirmed || !rec.AIValidated {
			t.Fatalf("%s not confirmed after drain: %#v", id, rec)
		}
	}
}

func TestDrainSkipsTerminalRecords(t *testing.T) {
	store := newMemStore()
	done := queuedRecord("tx-1", -100, time.Now())
	done.Status = models.StatusConfirmed
	_ = store.Append(context.Background(), done)
	_ = store.Append(context.Background(), queuedRecord("tx-2", -100, time.Now().Add(time.Second)))

	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	calls := dispatcher.dispatched()
	if len(calls) != 1 || calls[0] != "tx-2" {
		t.Fatalf("terminal record must not be re-dispatched, got %v", calls)
	}
}

func TestDrainIsIdempotent(t *testing.T) {
	store := newMemStore()
	_ = store.Append(context.Background(), queuedRecord("tx-1", -100, time.Now()))
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)

	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("first drain: %v", err)
	}
	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("second drain: %v", err)
	}
	if calls := dispatcher.dispatched(); len(calls) != 1 {
		t.Fatalf("second drain must be a no-op, got %v", calls)
	}
}

func TestValidationRejectionFailsWithoutRetry(t *testing.T) {
	store := newMemStore()
	rec := queuedRecord("tx-1", -100, time.Now())
	_ = store.Append(context.Background(), rec)

	validator := &stubValidator{verdict: gateway.Verdict{IsValid: false, Reason: "amount exceeds balance"}}
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, validator, dispatcher, fastOpts())
	c.SetOnline(true)

	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if validator.calls != 1 {
		t.Fatalf("rejection must not be retried, validated %d times", validator.calls)
	}
	if len(dispatcher.dispatched()) != 0 {
		t.Fatal("rejected record must never reach the server")
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != models.StatusFailed || stored.AIValidated {
		t.Fatalf("expected failed un-validated record, got %#v", stored)
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(stored.Metadata), &meta); err != nil {
		t.Fatalf("metadata not JSON: %v", err)
	}
	if meta["failure_reason"] != "amount exceeds balance" {
		t.Fatalf("rejection reason not recorded: %#v", meta)
	}
}

func TestTransientErrorsRetryThenFail(t *testing.T) {
	store := newMemStore()
	_ = store.Append(context.Background(), queuedRecord("tx-1", -100, time.Now()))
	dispatcher := &stubDispatcher{
		fn: func(models.TransactionRecord) (models.TransactionRecord, error) {
			return models.TransactionRecord{}, errors.New("connection reset")
		},
	}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)

	if err := c.Drain(context.Background()); err != nil {
		t.Fatalf("drain: %v", err)
	}
	if calls := dispatcher.dispatched(); len(calls) != 3 {
		t.Fatalf("expected 3 attempts, got %d", len(calls))
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != models.StatusFailed {
		t.Fatalf("exhausted budget must fail the record, got %s", stored.Status)
	}
}

func TestServerRejectionFailsPermanently(t *testing.T) {
	store := newMemStore()
	dispatcher := &stubDispatcher{
		fn: func(models.TransactionRecord) (models.TransactionRecord, error) {
			return models.TransactionRecord{}, &RejectionError{Reason: "wallet is retired"}
		},
	}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)

	_, err := c.Submit(context.Background(), queuedRecord("tx-1", -100, time.Now()))
	var rejection *RejectionError
	if !errors.As(err, &rejection) {
		t.Fatalf("expected RejectionError, got %v", err)
	}
	if calls := dispatcher.dispatched(); len(calls) != 1 {
		t.Fatalf("server rejection must not be retried, got %d dispatches", len(calls))
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != models.StatusFailed {
		t.Fatalf("expected failed, got %s", stored.Status)
	}
}

func TestSubmitOnlineConfirmsImmediately(t *testing.T) {
	store := newMemStore()
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())
	c.SetOnline(true)

	rec := queuedRecord("tx-1", -100, time.Now())
	rec.Status = models.StatusPending
	rec.OfflineQueued = false
	resolved, err := c.Submit(context.Background(), rec)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Status != models.StatusConfirmed || !resolved.AIValidated {
		t.Fatalf("expected confirmed record, got %#v", resolved)
	}
}

func TestAbandonQueuedRecord(t *testing.T) {
	store := newMemStore()
	_ = store.Append(context.Background(), queuedRecord("tx-1", -100, time.Now()))
	c := NewCoordinator(store, approve(), &stubDispatcher{}, fastOpts())

	if err := c.Abandon(context.Background(), "tx-1"); err != nil {
		t.Fatalf("abandon: %v", err)
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != models.StatusFailed {
		t.Fatalf("abandoned record must be failed, got %s", stored.Status)
	}
}

func TestAbandonTerminalRecord(t *testing.T) {
	store := newMemStore()
	rec := queuedRecord("tx-1", -100, time.Now())
	rec.Status = models.StatusConfirmed
	_ = store.Append(context.Background(), rec)
	c := NewCoordinator(store, approve(), &stubDispatcher{}, fastOpts())

	if err := c.Abandon(context.Background(), "tx-1"); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved, got %v", err)
	}
	stored, _ := store.Get(context.Background(), "tx-1")
	if stored.Status != models.StatusConfirmed {
		t.Fatalf("terminal status regressed to %s", stored.Status)
	}
}

func TestReconnectEdgeWakesDrain(t *testing.T) {
	store := newMemStore()
	_ = store.Append(context.Background(), queuedRecord("tx-1", -100, time.Now()))
	dispatcher := &stubDispatcher{}
	c := NewCoordinator(store, approve(), dispatcher, fastOpts())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	c.SetOnline(true)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		stored, _ := store.Get(context.Background(), "tx-1")
		if stored.Status == models.StatusConfirmed {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("queued record was not drained after reconnect")
}
