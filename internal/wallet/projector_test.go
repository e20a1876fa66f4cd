package wallet

import (
	"math/rand"
	"testing"

	"zenux/internal/models"
)

func ref(id string) *string { return &id }

func TestProjectExcludesFailed(t *testing.T) {
	txs := []models.TransactionRecord{
		{WalletID: ref("w1"), Amount: 5000, Status: models.StatusConfirmed},
		{WalletID: ref("w1"), Amount: -1200, Status: models.StatusPending},
		{WalletID: ref("w1"), Amount: -9999, Status: models.StatusFailed},
		{WalletID: ref("w1"), Amount: 300, Status: models.StatusQueued},
	}
	if got := Project("w1", txs); got != 4100 {
		t.Fatalf("expected 4100, got %d", got)
	}
}

func TestProjectIgnoresOtherWallets(t *testing.T) {
	txs := []models.TransactionRecord{
		{WalletID: ref("w1"), Amount: 1000, Status: models.StatusConfirmed},
		{WalletID: ref("w2"), Amount: 7777, Status: models.StatusConfirmed},
		{WalletID: nil, Amount: 5555, Status: models.StatusConfirmed},
	}
	if got := Project("w1", txs); got != 1000 {
		t.Fatalf("expected 1000, got %d", got)
	}
}

func TestProjectOrderIndependent(t *testing.T) {
	txs := []models.TransactionRecord{
		{WalletID: ref("w1"), Amount: 5000, Status: models.StatusConfirmed},
		{WalletID: ref("w1"), Amount: -1200, Status: models.StatusConfirmed},
		{WalletID: ref("w1"), Amount: 300, Status: models.StatusPending},
		{WalletID: ref("w1"), Amount: -450, Status: models.StatusQueued},
	}
	want := Project("w1", txs)
	rng := rand.New(rand.NewSource(42))
	for i := 0; i < 20; i++ {
		rng.Shuffle(len(txs), func(a, b int) { txs[a], txs[b] = txs[b], txs[a] })
		if got := Project("w1", txs); got != want {
			t.Fatalf("projection depends on order: want %d, got %d", want, got)
		}
	}
}

func TestProjectConvergesOnceResolved(t *testing.T) {
	txs := []models.TransactionRecord{
		{WalletID: ref("w1"), Amount: 5000, Status: models.StatusConfirmed},
		{WalletID: ref("w1"), Amount: -1200, Status: models.StatusPending},
	}
	if Project("w1", txs) == ProjectConfirmed("w1", txs) {
		t.Fatal("optimistic and confirmed views should differ while pending")
	}
	txs[1].Status = models.StatusConfirmed
	if Project("w1", txs) != ProjectConfirmed("w1", txs) {
		t.Fatal("views must converge once every record is terminal")
	}
}

func TestProjectConfirmedOnly(t *testing.T) {
	txs := []models.TransactionRecord{
		{WalletID: ref("w1"), Amount: 5000, Status: models.StatusConfirmed},
		{WalletID: ref("w1"), Amount: -1200, Status: models.StatusPending},
		{WalletID: ref("w1"), Amount: 999, Status: models.StatusQueued},
	}
	if got := ProjectConfirmed("w1", txs); got != 5000 {
		t.Fatalf("expected 5000, got %d", got)
	}
}

func TestProjectEmpty(t *testing.T) {
	if got := Project("w1", nil); got != 0 {
		t.Fatalf("empty log must project zero, got %d", got)
	}
}
