package handlers

import (
	"bytes"
	"context"
	"database/sql"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"

	"zenux/internal/ai"
	"zenux/internal/auth"
	"zenux/internal/config"
	"zenux/internal/models"
	"zenux/internal/relay"
	"zenux/internal/store"
)

type fakeTxRunner struct {
	err error
}

func (f fakeTxRunner) WithTx(ctx context.Context, fn func(*sqlx.Tx) error) error {
	if f.err != nil {
		return f.err
	}
	return fn(nil)
}

type stubUserStore struct {
	createFn        func(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error
	getByEmailFn    func(ctx context.Context, email string) (models.User, error)
	getByUsernameFn func(ctx context.Context, username string) (models.User, error)
	getByIDFn       func(ctx context.Context, userID string) (models.User, error)
}

func (s stubUserStore) Create(ctx context.Context, tx store.Execer, id, username, email, passwordHash string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, username, email, passwordHash)
}

func (s stubUserStore) GetByEmail(ctx context.Context, email string) (models.User, error) {
	if s.getByEmailFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByEmailFn(ctx, email)
}

func (s stubUserStore) GetByUsername(ctx context.Context, username string) (models.User, error) {
	if s.getByUsernameFn == nil {
		return models.User{}, sql.ErrNoRows
	}
	return s.getByUsernameFn(ctx, username)
}

func (s stubUserStore) GetByID(ctx context.Context, userID string) (models.User, error) {
	if s.getByIDFn == nil {
		return models.User{ID: userID, Username: "tester"}, nil
	}
	return s.getByIDFn(ctx, userID)
}

type stubTransactionStore struct {
	listByUserFn       func(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error)
	balanceFn          func(ctx context.Context, walletID string) (int64, error)
	confirmedBalanceFn func(ctx context.Context, walletID string) (int64, error)
}

func (s stubTransactionStore) ListByUser(ctx context.Context, userID, txType string, limit, offset int) ([]models.TransactionRecord, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID, txType, limit, offset)
}

func (s stubTransactionStore) WalletBalance(ctx context.Context, walletID string) (int64, error) {
	if s.balanceFn == nil {
		return 0, nil
	}
	return s.balanceFn(ctx, walletID)
}

func (s stubTransactionStore) WalletConfirmedBalance(ctx context.Context, walletID string) (int64, error) {
	if s.confirmedBalanceFn == nil {
		return 0, nil
	}
	return s.confirmedBalanceFn(ctx, walletID)
}

type stubWalletStore struct {
	createFn     func(ctx context.Context, tx store.Execer, id, name, currency string) error
	getByIDFn    func(ctx context.Context, walletID string) (models.WalletBalance, error)
	listByUserFn func(ctx context.Context, userID string) ([]models.WalletBalance, error)
	addMemberFn  func(ctx context.Context, tx store.Execer, member models.WalletMember) error
	membersFn    func(ctx context.Context, walletID string) ([]models.WalletMember, error)
	memberRoleFn func(ctx context.Context, walletID, userID string) (string, error)
	retireFn     func(ctx context.Context, tx store.Execer, walletID string) (int64, error)
}

func (s stubWalletStore) Create(ctx context.Context, tx store.Execer, id, name, currency string) error {
	if s.createFn == nil {
		return nil
	}
	return s.createFn(ctx, tx, id, name, currency)
}

func (s stubWalletStore) GetByID(ctx context.Context, walletID string) (models.WalletBalance, error) {
	if s.getByIDFn == nil {
		return models.WalletBalance{ID: walletID}, nil
	}
	return s.getByIDFn(ctx, walletID)
}

func (s stubWalletStore) ListByUser(ctx context.Context, userID string) ([]models.WalletBalance, error) {
	if s.listByUserFn == nil {
		return nil, nil
	}
	return s.listByUserFn(ctx, userID)
}

func (s stubWalletStore) AddMember(ctx context.Context, tx store.Execer, member models.WalletMember) error {
	if s.addMemberFn == nil {
		return nil
	}
	return s.addMemberFn(ctx, tx, member)
}

func (s stubWalletStore) Members(ctx context.Context, walletID string) ([]models.WalletMember, error) {
	if s.membersFn == nil {
		return nil, nil
	}
	return s.membersFn(ctx, walletID)
}

func (s stubWalletStore) MemberRole(ctx context.Context, walletID, userID string) (string, error) {
	if s.memberRoleFn == nil {
		return models.RoleAdmin, nil
	}
	return s.memberRoleFn(ctx, walletID, userID)
}

func (s stubWalletStore) Retire(ctx context.Context, tx store.Execer, walletID string) (int64, error) {
	if s.retireFn == nil {
		return 1, nil
	}
	return s.retireFn(ctx, tx, walletID)
}

type stubChatStore struct {
	createChatFn    func(ctx context.Context, tx store.Execer, id, userID, title string) error
	getChatFn       func(ctx context.Context, chatID string) (models.ChatSession, error)
	listChatsFn     func(ctx context.Context, userID string) ([]models.ChatSession, error)
	createMessageFn func(ctx context.Context, tx store.Execer, msg models.Message) error
	listMessagesFn  func(ctx context.Context, chatID string) ([]models.Message, error)
}

func (s stubChatStore) CreateChat(ctx context.Context, tx store.Execer, id, userID, title string) error {
	if s.createChatFn == nil {
		return nil
	}
	return s.createChatFn(ctx, tx, id, userID, title)
}

func (s stubChatStore) GetChat(ctx context.Context, chatID string) (models.ChatSession, error) {
	if s.getChatFn == nil {
		return models.ChatSession{ID: chatID, UserID: "user-1"}, nil
	}
	return s.getChatFn(ctx, chatID)
}

func (s stubChatStore) ListChatsByUser(ctx context.Context, userID string) ([]models.ChatSession, error) {
	if s.listChatsFn == nil {
		return nil, nil
	}
	return s.listChatsFn(ctx, userID)
}

func (s stubChatStore) CreateMessage(ctx context.Context, tx store.Execer, msg models.Message) error {
	if s.createMessageFn == nil {
		return nil
	}
	return s.createMessageFn(ctx, tx, msg)
}

func (s stubChatStore) ListMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	if s.listMessagesFn == nil {
		return nil, nil
	}
	return s.listMessagesFn(ctx, chatID)
}

type stubAuditStore struct {
	logFn func(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error
}

func (s stubAuditStore) Log(ctx context.Context, tx store.Execer, actorID, action, entityType, entityID, data string) error {
	if s.logFn == nil {
		return nil
	}
	return s.logFn(ctx, tx, actorID, action, entityType, entityID, data)
}

func (s stubAuditStore) List(ctx context.Context, limit, offset int) ([]map[string]any, error) {
	return nil, nil
}

type stubService struct {
	submitFn func(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error)
}

func (s stubService) Submit(ctx context.Context, rec models.TransactionRecord) (models.TransactionRecord, error) {
	if s.submitFn == nil {
		return rec, nil
	}
	return s.submitFn(ctx, rec)
}

type stubPolicy struct {
	validateFn func(ctx context.Context, req ai.ValidationRequest) (ai.Verdict, error)
	promptFn   func(ctx context.Context, req ai.PromptRequest) (string, error)
}

func (s stubPolicy) ValidateTransaction(ctx context.Context, req ai.ValidationRequest) (ai.Verdict, error) {
	if s.validateFn == nil {
		return ai.Verdict{IsValid: true}, nil
	}
	return s.validateFn(ctx, req)
}

func (s stubPolicy) ConfirmationPrompt(ctx context.Context, req ai.PromptRequest) (string, error) {
	if s.promptFn == nil {
		return "Confirm?", nil
	}
	return s.promptFn(ctx, req)
}

// reversingCipher is a stand-in cipher: visible transformation, trivially
// reversible in assertions.
type reversingCipher struct{}

func (reversingCipher) Encrypt(plaintext string) (string, error) { return "enc:" + plaintext, nil }

func (reversingCipher) Decrypt(encoded string) (string, error) {
	if len(encoded) > 4 && encoded[:4] == "enc:" {
		return encoded[4:], nil
	}
	return encoded, nil
}

type handlerStubs struct {
	txRunner fakeTxRunner
	users    UserStore
	txs      TransactionStore
	wallets  WalletStore
	chats    ChatStore
	audit    AuditStore
	service  TransactionService
	policy   PolicyEngine
	cipher   MessageCipher
}

func newTestHandler(stubs handlerStubs) *Handler {
	if stubs.users == nil {
		stubs.users = stubUserStore{}
	}
	if stubs.txs == nil {
		stubs.txs = stubTransactionStore{}
	}
	if stubs.wallets == nil {
		stubs.wallets = stubWalletStore{}
	}
	if stubs.chats == nil {
		stubs.chats = stubChatStore{}
	}
	if stubs.audit == nil {
		stubs.audit = stubAuditStore{}
	}
	if stubs.service == nil {
		stubs.service = stubService{}
	}
	if stubs.policy == nil {
		stubs.policy = stubPolicy{}
	}
	cfg := config.Config{JWTSecret: "secret", TokenTTL: time.Minute}
	return New(stubs.txRunner, cfg, stubs.users, stubs.txs, stubs.wallets, stubs.chats, stubs.audit, stubs.service, stubs.policy, stubs.cipher, relay.NewHub())
}

func authedRequest(t *testing.T, method, target string, body []byte) *http.Request {
	t.Helper()
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	token, err := auth.GenerateToken("secret", "user-1", time.Minute)
	if err != nil {
		t.Fatalf("failed to generate token: %v", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return req
}

func serve(handler *Handler, req *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler.Routes().ServeHTTP(rr, req)
	return rr
}
