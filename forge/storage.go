package forge

import (
	"context"
	"time"
)

// EventRepository persists the immutable event log.
type EventRepository interface {
	Store(ctx context.Context, event *Event) error
	GetById(ctx context.Context, id string) (*Event, error)
	// ListByUser returns the user's events ordered by occurrence time
	// ascending.
	ListByUser(ctx context.Context, userId string, limit, offset int) ([]*Event, error)
	ListByType(ctx context.Context, eventType string, limit, offset int) ([]*Event, error)
	// RecentByUser returns up to limit of the user's most recent events, in
	// ascending occurrence order.
	RecentByUser(ctx context.Context, userId string, limit int) ([]*Event, error)
	// PurgeOlderThan drops events that occurred before the cutoff and
	// returns how many were removed.
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// UserStateRepository persists per-user aggregates.
type UserStateRepository interface {
	// Get returns the stored state, or nil when the user has none yet.
	Get(ctx context.Context, userId string) (*UserState, error)
	Save(ctx context.Context, state *UserState) error
	ListAll(ctx context.Context) ([]*UserState, error)
}

// RuleRepository persists rule configuration.
type RuleRepository interface {
	List(ctx context.Context) ([]*Rule, error)
	GetById(ctx context.Context, id string) (*Rule, error)
	Create(ctx context.Context, rule *Rule) error
	Update(ctx context.Context, rule *Rule) error
	Delete(ctx context.Context, id string) error
}

// RewardHistoryRepository persists the append-only reward log.
type RewardHistoryRepository interface {
	Append(ctx context.Context, entry *RewardHistoryEntry) error
	ExistsById(ctx context.Context, id string) (bool, error)
	// ListByUser returns entries newest first with the total count.
	ListByUser(ctx context.Context, userId string, page, pageSize int) ([]*RewardHistoryEntry, int64, error)
	ListByUserAndType(ctx context.Context, userId, rewardType string, page, pageSize int) ([]*RewardHistoryEntry, int64, error)
	// ListByRange streams every entry awarded within [start, end) regardless
	// of user, for leaderboard windowing.
	ListByRange(ctx context.Context, start, end time.Time) ([]*RewardHistoryEntry, error)
}

// WalletRepository persists wallet balances and their ledgers. Post and
// PostPair are atomic over (balance, ledger).
type WalletRepository interface {
	Get(ctx context.Context, userId, categoryId string) (*Wallet, error)
	ListByUser(ctx context.Context, userId string) ([]*Wallet, error)
	// Post appends a transaction and applies its amount to the balance.
	Post(ctx context.Context, txn *WalletTransaction) error
	// PostPair appends two transactions, applying both balance changes, with
	// all-or-nothing semantics.
	PostPair(ctx context.Context, out, in *WalletTransaction) error
	ListTransactions(ctx context.Context, userId, categoryId string, limit, offset int) ([]*WalletTransaction, error)
}

// TransferRepository persists wallet transfers.
type TransferRepository interface {
	Create(ctx context.Context, transfer *WalletTransfer) error
	GetById(ctx context.Context, id string) (*WalletTransfer, error)
	Update(ctx context.Context, transfer *WalletTransfer) error
}

// Repositories bundles every port the systems depend on.
type Repositories struct {
	Events    EventRepository
	States    UserStateRepository
	Rules     RuleRepository
	History   RewardHistoryRepository
	Wallets   WalletRepository
	Transfers TransferRepository
}
