// Package wallet derives wallet balances as a pure fold over the
// transaction log. There is no mutable balance anywhere: optimistic and
// confirmed views are both recomputed from the same append-only records, so
// they converge once in-flight transactions resolve.
package wallet

import "zenux/internal/models"

// Project sums every transaction referencing the wallet whose status is not
// failed: confirmed amounts plus the optimistic queued/pending ones.
// Summation is commutative, so the result is independent of record order.
func Project(walletID string, txs []models.TransactionRecord) int64 {
	var sum int64
	for _, tx := range txs {
		if !references(tx, walletID) || tx.Status == models.StatusFailed {
			continue
		}
		sum += tx.Amount
	}
	return sum
}

// ProjectConfirmed sums confirmed transactions only. Once every in-flight
// record reaches a terminal state, Project equals ProjectConfirmed.
func ProjectConfirmed(walletID string, txs []models.TransactionRecord) int64 {
	var sum int64
	for _, tx := range txs {
		if !references(tx, walletID) || tx.Status != models.StatusConfirmed {
			continue
		}
		sum += tx.Amount
	}
	return sum
}

func references(tx models.TransactionRecord, walletID string) bool {
	return tx.WalletID != nil && *tx.WalletID == walletID
}
