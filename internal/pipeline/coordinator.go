package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"zenux/internal/gateway"
	"zenux/internal/metrics"
	"zenux/internal/models"
	"zenux/internal/wallet"
)

var ErrAlreadyResolved = errors.New("transaction already resolved")

// Validator is the gateway contract the coordinator re-runs before every
// dispatch: offline time may have invalidated balance assumptions.
type Validator interface {
	Validate(ctx context.Context, draft gateway.Draft) (gateway.Verdict, error)
}

type Options struct {
	Retries        int
	Backoff        time.Duration
	AttemptTimeout time.Duration
}

// Coordinator decides, per transaction, whether to dispatch now or leave it
// queued, and drains the queue on reconnect. Exactly one dispatch is in
// flight at any time: overlapping dispatches could both pass a sufficient
// funds check against the same pre-deduction balance.
type Coordinator struct {
	store      LocalStore
	validator  Validator
	dispatcher Dispatcher

	retries        int
	backoff        time.Duration
	attemptTimeout time.Duration

	online atomic.Bool
	wake   chan struct{}
	mu     sync.Mutex
}

func NewCoordinator(store LocalStore, validator Validator, dispatcher Dispatcher, opts Options) *Coordinator {
	if opts.Retries <= 0 {
		opts.Retries = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	if opts.AttemptTimeout <= 0 {
		opts.AttemptTimeout = 10 * time.Second
	}
	return &Coordinator{
		store:          store,
		validator:      validator,
		dispatcher:     dispatcher,
		retries:        opts.Retries,
		backoff:        opts.Backoff,
		attemptTimeout: opts.AttemptTimeout,
		wake:           make(chan struct{}, 1),
	}
}

func (c *Coordinator) Online() bool {
	return c.online.Load()
}

// SetOnline records the connectivity signal. An offline-to-online transition
// wakes the drain worker.
func (c *Coordinator) SetOnline(online bool) {
	was := c.online.Swap(online)
	if online && !was {
		select {
		case c.wake <- struct{}{}:
		default:
		}
	}
}

// Run is the single drain worker. It blocks until ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-c.wake:
			if err := c.Drain(ctx); err != nil && ctx.Err() == nil {
				log.Printf("queue drain: %v", err)
			}
		}
	}
}

// Submit durably appends the record, then dispatches it when online. While
// offline the record simply stays queued; the next drain picks it up.
func (c *Coordinator) Submit(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	if err := c.store.Append(ctx, rec); err != nil {
		return models.TransactionRecord{}, err
	}
	if !c.online.Load() {
		return rec, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resolve(ctx, rec)
}

// Drain replays every unresolved record in creation order, one full
// resolution at a time. A record that fails validation is marked failed and
// drained permanently; the drain then moves on rather than aborting.
func (c *Coordinator) Drain(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	unresolved, err := c.store.ListUnresolved(ctx)
	if err != nil {
		return err
	}
	for _, rec := range unresolved {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !c.online.Load() {
			return nil
		}
		current, err := c.store.Get(ctx, rec.ID)
		if err != nil {
			return err
		}
		if models.IsTerminalStatus(current.Status) {
			continue
		}
		if _, err := c.resolve(ctx, current); err != nil {
			var rejection *RejectionError
			if !errors.As(err, &rejection) && ctx.Err() == nil {
				log.Printf("drain %s: %v", rec.ID, err)
			}
		}
	}
	return nil
}

// Abandon cancels a transaction that has not been acknowledged yet. Terminal
// records never regress; a dispatch in flight cannot be interrupted.
func (c *Coordinator) Abandon(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return err
	}
	if models.IsTerminalStatus(rec.Status) {
		return ErrAlreadyResolved
	}
	rows, err := c.store.PatchStatus(ctx, id, models.StatusFailed, false, reasonPatch("abandoned by user"))
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

// resolve runs one transaction to a durable outcome. Callers hold c.mu.
func (c *Coordinator) resolve(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	if rec.Status == models.StatusQueued {
		rows, err := c.store.PatchStatus(ctx, rec.ID, models.StatusPending, rec.AIValidated, "")
		if err != nil {
			return rec, err
		}
		if rows == 0 {
			return rec, ErrAlreadyResolved
		}
		rec.Status = models.StatusPending
	}

	draft, err := c.draft(ctx, rec)
	if err != nil {
		return rec, err
	}

	var lastErr error
	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			metrics.DispatchRetries.Inc()
			if err := c.wait(ctx, attempt-1); err != nil {
				return rec, err
			}
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
		verdict, err := c.validator.Validate(attemptCtx, draft)
		if err != nil {
			cancel()
			lastErr = err
			continue
		}
		if !verdict.IsValid {
			cancel()
			return c.fail(ctx, rec, verdict.Reason)
		}

		echo, err := c.dispatcher.Dispatch(attemptCtx, rec)
		cancel()
		if err != nil {
			var rejection *RejectionError
			if errors.As(err, &rejection) {
				_, ferr := c.fail(ctx, rec, rejection.Reason)
				if ferr != nil {
					return rec, ferr
				}
				rec.Status = models.StatusFailed
				return rec, err
			}
			lastErr = err
			continue
		}

		// The server is authoritative on status; the guard inside
		// PatchStatus keeps a terminal status we did not set from
		// regressing.
		status := echo.Status
		if status == "" {
			status = models.StatusConfirmed
		}
		if _, err := c.store.PatchStatus(ctx, rec.ID, status, echo.AIValidated, ""); err != nil {
			return rec, err
		}
		rec.Status = status
		rec.AIValidated = echo.AIValidated
		rec.Seq = echo.Seq
		return rec, nil
	}

	// Retry budget exhausted: escalate to failed with a generic reason.
	failed, ferr := c.fail(ctx, rec, "dispatch failed after retries")
	if ferr != nil {
		return rec, ferr
	}
	if lastErr == nil {
		lastErr = errors.New("dispatch retry budget exhausted")
	}
	return failed, lastErr
}

func (c *Coordinator) fail(ctx context.Context, rec models.TransactionRecord, reason string) (models.TransactionRecord, error) {
	if reason == "" {
		reason = "declined by validation"
	}
	metrics.TransactionsFailed.Inc()
	if _, err := c.store.PatchStatus(ctx, rec.ID, models.StatusFailed, false, reasonPatch(reason)); err != nil {
		return rec, err
	}
	rec.Status = models.StatusFailed
	rec.AIValidated = false
	return rec, &RejectionError{Reason: reason}
}

func (c *Coordinator) draft(ctx context.Context, rec models.TransactionRecord) (gateway.Draft, error) {
	var balance int64
	if rec.WalletID != nil {
		txs, err := c.store.ListByWallet(ctx, *rec.WalletID)
		if err != nil {
			return gateway.Draft{}, err
		}
		balance = wallet.Project(*rec.WalletID, txs)
	}
	amount := rec.Amount
	if amount < 0 {
		amount = -amount
	}
	return gateway.Draft{
		AmountMinor:   amount,
		Currency:      rec.Currency,
		Type:          rec.Type,
		PaymentMethod: rec.PaymentMethod,
		BalanceMinor:  balance,
	}, nil
}

func (c *Coordinator) wait(ctx context.Context, attempt int) error {
	backoff := c.backoff << (attempt - 1)
	jitter := time.Duration(rand.Int63n(int64(c.backoff) / 2))
	timer := time.NewTimer(backoff + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func reasonPatch(reason string) string {
	patch, _ := json.Marshal(map[string]string{"failure_reason": reason})
	return string(patch)
}
