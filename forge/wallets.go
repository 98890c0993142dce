package forge

import (
	"context"
	"time"
)

// Wallet transaction types.
const (
	WalletTxEarned      = "Earned"
	WalletTxSpent       = "Spent"
	WalletTxTransferOut = "TransferOut"
	WalletTxTransferIn  = "TransferIn"
	WalletTxRefund      = "Refund"
	WalletTxPenalty     = "Penalty"
	WalletTxAdjustment  = "Adjustment"
)

// Wallet transfer states.
const (
	TransferStatusPending   = "Pending"
	TransferStatusCompleted = "Completed"
	TransferStatusFailed    = "Failed"
	TransferStatusCancelled = "Cancelled"
)

// Wallet is the spendable balance of one user in one category.
type Wallet struct {
	UserId     string `json:"userId"`
	CategoryId string `json:"categoryId"`
	Balance    int64  `json:"balance"`
}

// WalletTransaction is one signed ledger entry against a wallet.
type WalletTransaction struct {
	Id          string    `json:"id"`
	UserId      string    `json:"userId"`
	CategoryId  string    `json:"categoryId"`
	Amount      int64     `json:"amount"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	ReferenceId string    `json:"referenceId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// WalletTransfer moves a positive amount between two users' wallets in the
// same category. Transitions are allowed only out of Pending.
type WalletTransfer struct {
	Id            string     `json:"id"`
	FromUserId    string     `json:"fromUserId"`
	ToUserId      string     `json:"toUserId"`
	CategoryId    string     `json:"categoryId"`
	Amount        int64      `json:"amount"`
	Status        string     `json:"status"`
	FailureReason string     `json:"failureReason,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// WalletsConfig is the data definition for the WalletsSystem type.
type WalletsConfig struct{}

// The WalletsSystem keeps ledger-backed balances for spendable categories.
type WalletsSystem interface {
	System

	// GetWallet returns the wallet for a user and category; wallets that were
	// never credited resolve to a zero balance.
	GetWallet(ctx context.Context, userId, categoryId string) (*Wallet, error)

	// ListWallets returns every wallet a user holds.
	ListWallets(ctx context.Context, userId string) ([]*Wallet, error)

	// ListTransactions returns a wallet's ledger, newest first.
	ListTransactions(ctx context.Context, userId, categoryId string, limit, offset int) ([]*WalletTransaction, error)

	// Post applies one signed ledger entry of the given transaction type.
	// Debits fail with ErrInsufficientBalance when they would take a
	// no-negative category below zero.
	Post(ctx context.Context, userId, categoryId string, amount int64, txType, description, referenceId string) (*WalletTransaction, error)

	// Spend debits a positive amount from a wallet.
	Spend(ctx context.Context, userId, categoryId string, amount int64, description string) (*WalletTransaction, error)

	// Adjust posts a signed administrative correction.
	Adjust(ctx context.Context, userId, categoryId string, amount int64, description string) (*WalletTransaction, error)

	// CreateTransfer records a pending transfer of a positive amount between
	// two users in one category.
	CreateTransfer(ctx context.Context, fromUserId, toUserId, categoryId string, amount int64) (*WalletTransfer, error)

	// ExecuteTransfer settles a pending transfer: both wallets are updated
	// atomically with paired TransferOut/TransferIn entries referencing the
	// transfer id, and the transfer moves to Completed, or to Failed when the
	// debit cannot be covered. Transfers not in Pending fail with
	// ErrTransferState.
	ExecuteTransfer(ctx context.Context, id string) (*WalletTransfer, error)

	// Transfer is CreateTransfer followed by ExecuteTransfer.
	Transfer(ctx context.Context, fromUserId, toUserId, categoryId string, amount int64) (*WalletTransfer, error)

	// GetTransfer returns a transfer by id.
	GetTransfer(ctx context.Context, id string) (*WalletTransfer, error)

	// CancelTransfer cancels a pending transfer.
	CancelTransfer(ctx context.Context, id string) (*WalletTransfer, error)
}
