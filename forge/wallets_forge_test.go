package forge

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalletTransferCompletes(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	_, err := e.wallets.Post(ctx, "u1", "xp", 100, WalletTxEarned, "seed", "")
	require.NoError(t, err)

	transfer, err := e.wallets.Transfer(ctx, "u1", "u2", "xp", 30)
	require.NoError(t, err)
	assert.Equal(t, TransferStatusCompleted, transfer.Status)
	require.NotNil(t, transfer.CompletedAt)

	from, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	to, err := e.wallets.GetWallet(ctx, "u2", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(70), from.Balance)
	assert.Equal(t, int64(30), to.Balance)

	// Conservation: the pair nets to zero and references the transfer.
	outTxns, err := e.wallets.ListTransactions(ctx, "u1", "xp", 10, 0)
	require.NoError(t, err)
	require.Len(t, outTxns, 2)
	assert.Equal(t, WalletTxTransferOut, outTxns[0].Type)
	assert.Equal(t, int64(-30), outTxns[0].Amount)
	assert.Equal(t, transfer.Id, outTxns[0].ReferenceId)

	inTxns, err := e.wallets.ListTransactions(ctx, "u2", "xp", 10, 0)
	require.NoError(t, err)
	require.Len(t, inTxns, 1)
	assert.Equal(t, WalletTxTransferIn, inTxns[0].Type)
	assert.Equal(t, int64(30), inTxns[0].Amount)
	assert.Equal(t, transfer.Id, inTxns[0].ReferenceId)
}

func TestWalletTransferDoubleExecutionFails(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	_, err := e.wallets.Post(ctx, "u1", "xp", 100, WalletTxEarned, "seed", "")
	require.NoError(t, err)

	transfer, err := e.wallets.Transfer(ctx, "u1", "u2", "xp", 30)
	require.NoError(t, err)

	_, err = e.wallets.ExecuteTransfer(ctx, transfer.Id)
	assert.ErrorIs(t, err, ErrTransferState)

	// Balances are unchanged by the failed replay.
	from, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(70), from.Balance)
}

func TestWalletTransferInsufficientBalance(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	transfer, err := e.wallets.CreateTransfer(ctx, "u1", "u2", "xp", 30)
	require.NoError(t, err)
	_, err = e.wallets.ExecuteTransfer(ctx, transfer.Id)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	stored, err := e.wallets.GetTransfer(ctx, transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, TransferStatusFailed, stored.Status)
	assert.NotEmpty(t, stored.FailureReason)
	assert.NotNil(t, stored.CompletedAt)
}

func TestWalletTransferValidation(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	_, err := e.wallets.CreateTransfer(ctx, "u1", "u1", "xp", 10)
	assert.Error(t, err)

	_, err = e.wallets.CreateTransfer(ctx, "u1", "u2", "xp", 0)
	assert.Error(t, err)

	// Non-spendable categories have no wallets.
	_, err = e.wallets.CreateTransfer(ctx, "u1", "u2", "karma", 10)
	assert.ErrorIs(t, err, ErrWalletNotSpendable)
}

func TestWalletCancelTransfer(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	transfer, err := e.wallets.CreateTransfer(ctx, "u1", "u2", "xp", 10)
	require.NoError(t, err)

	cancelled, err := e.wallets.CancelTransfer(ctx, transfer.Id)
	require.NoError(t, err)
	assert.Equal(t, TransferStatusCancelled, cancelled.Status)

	_, err = e.wallets.ExecuteTransfer(ctx, transfer.Id)
	assert.ErrorIs(t, err, ErrTransferState)

	_, err = e.wallets.CancelTransfer(ctx, transfer.Id)
	assert.ErrorIs(t, err, ErrTransferState)
}

func TestWalletSpend(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	_, err := e.wallets.Post(ctx, "u1", "xp", 50, WalletTxEarned, "seed", "")
	require.NoError(t, err)

	txn, err := e.wallets.Spend(ctx, "u1", "xp", 20, "hat")
	require.NoError(t, err)
	assert.Equal(t, WalletTxSpent, txn.Type)
	assert.Equal(t, int64(-20), txn.Amount)

	wallet, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(30), wallet.Balance)

	_, err = e.wallets.Spend(ctx, "u1", "xp", 31, "too much")
	assert.ErrorIs(t, err, ErrInsufficientBalance)
}

func TestWalletNonNegativeInvariant(t *testing.T) {
	e := newTestEngine(t, testEngineOpts{catalog: spendableCatalog()})
	ctx := context.Background()

	_, err := e.wallets.Post(ctx, "u1", "xp", -1, WalletTxPenalty, "impossible", "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	wallet, err := e.wallets.GetWallet(ctx, "u1", "xp")
	require.NoError(t, err)
	assert.Equal(t, int64(0), wallet.Balance)
}

func TestWalletListWallets(t *testing.T) {
	catalog := spendableCatalog()
	catalog.Categories = append(catalog.Categories, &PointCategory{Id: "gems", IsSpendable: true})
	e := newTestEngine(t, testEngineOpts{catalog: catalog})
	ctx := context.Background()

	_, err := e.wallets.Post(ctx, "u1", "xp", 5, WalletTxEarned, "", "")
	require.NoError(t, err)
	_, err = e.wallets.Post(ctx, "u1", "gems", 7, WalletTxEarned, "", "")
	require.NoError(t, err)

	wallets, err := e.wallets.ListWallets(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, wallets, 2)
	assert.Equal(t, "gems", wallets[0].CategoryId)
	assert.Equal(t, "xp", wallets[1].CategoryId)
}
