package forge

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// MeritWalletsSystem implements the WalletsSystem interface over the wallet
// and transfer repositories. Balance checks and ledger posts for one user
// run under a per-user lock; transfers hold both users' locks, smaller
// userId first, so two opposing transfers cannot deadlock.
type MeritWalletsSystem struct {
	config    *WalletsConfig
	catalog   *Catalog
	wallets   WalletRepository
	transfers TransferRepository
	logger    *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewMeritWalletsSystem creates the wallet system.
func NewMeritWalletsSystem(config *WalletsConfig, catalog *Catalog, wallets WalletRepository, transfers TransferRepository, logger *zap.Logger) *MeritWalletsSystem {
	if config == nil {
		config = &WalletsConfig{}
	}
	return &MeritWalletsSystem{
		config:    config,
		catalog:   catalog,
		wallets:   wallets,
		transfers: transfers,
		logger:    logger,
		locks:     make(map[string]*sync.Mutex),
	}
}

func (s *MeritWalletsSystem) GetType() SystemType {
	return SystemTypeWallets
}

func (s *MeritWalletsSystem) GetConfig() any {
	return s.config
}

func (s *MeritWalletsSystem) userLock(userId string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[userId]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[userId] = lock
	}
	return lock
}

// lockPair acquires both users' locks in lexical order and returns the
// unlock function.
func (s *MeritWalletsSystem) lockPair(a, b string) func() {
	if a == b {
		lock := s.userLock(a)
		lock.Lock()
		return lock.Unlock
	}
	first, second := a, b
	if second < first {
		first, second = second, first
	}
	firstLock, secondLock := s.userLock(first), s.userLock(second)
	firstLock.Lock()
	secondLock.Lock()
	return func() {
		secondLock.Unlock()
		firstLock.Unlock()
	}
}

func (s *MeritWalletsSystem) GetWallet(ctx context.Context, userId, categoryId string) (*Wallet, error) {
	return s.wallets.Get(ctx, userId, categoryId)
}

func (s *MeritWalletsSystem) ListWallets(ctx context.Context, userId string) ([]*Wallet, error) {
	return s.wallets.ListByUser(ctx, userId)
}

func (s *MeritWalletsSystem) ListTransactions(ctx context.Context, userId, categoryId string, limit, offset int) ([]*WalletTransaction, error) {
	return s.wallets.ListTransactions(ctx, userId, categoryId, limit, offset)
}

func (s *MeritWalletsSystem) Post(ctx context.Context, userId, categoryId string, amount int64, txType, description, referenceId string) (*WalletTransaction, error) {
	if userId == "" || categoryId == "" {
		return nil, ErrBadInput
	}
	lock := s.userLock(userId)
	lock.Lock()
	defer lock.Unlock()
	return s.postLocked(ctx, userId, categoryId, amount, txType, description, referenceId)
}

// postLocked assumes the user's lock is held.
func (s *MeritWalletsSystem) postLocked(ctx context.Context, userId, categoryId string, amount int64, txType, description, referenceId string) (*WalletTransaction, error) {
	category := s.catalog.Category(categoryId)
	if amount < 0 && !category.NegativeBalanceAllowed {
		wallet, err := s.wallets.Get(ctx, userId, categoryId)
		if err != nil {
			return nil, err
		}
		if wallet.Balance+amount < 0 {
			return nil, ErrInsufficientBalance
		}
	}
	txn := &WalletTransaction{
		Id:          uuid.NewString(),
		UserId:      userId,
		CategoryId:  categoryId,
		Amount:      amount,
		Type:        txType,
		Description: description,
		ReferenceId: referenceId,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.wallets.Post(ctx, txn); err != nil {
		return nil, err
	}
	return txn, nil
}

func (s *MeritWalletsSystem) Spend(ctx context.Context, userId, categoryId string, amount int64, description string) (*WalletTransaction, error) {
	if amount <= 0 {
		return nil, NewError("spend amount must be positive", INVALID_ARGUMENT_ERROR_CODE)
	}
	if !s.catalog.Category(categoryId).IsSpendable {
		return nil, ErrWalletNotSpendable
	}
	lock := s.userLock(userId)
	lock.Lock()
	defer lock.Unlock()
	wallet, err := s.wallets.Get(ctx, userId, categoryId)
	if err != nil {
		return nil, err
	}
	if wallet.Balance < amount {
		return nil, ErrInsufficientBalance
	}
	return s.postLocked(ctx, userId, categoryId, -amount, WalletTxSpent, description, "")
}

func (s *MeritWalletsSystem) Adjust(ctx context.Context, userId, categoryId string, amount int64, description string) (*WalletTransaction, error) {
	if amount == 0 {
		return nil, NewError("adjustment amount must not be zero", INVALID_ARGUMENT_ERROR_CODE)
	}
	return s.Post(ctx, userId, categoryId, amount, WalletTxAdjustment, description, "")
}

func (s *MeritWalletsSystem) CreateTransfer(ctx context.Context, fromUserId, toUserId, categoryId string, amount int64) (*WalletTransfer, error) {
	if fromUserId == "" || toUserId == "" || categoryId == "" {
		return nil, ErrBadInput
	}
	if fromUserId == toUserId {
		return nil, NewError("cannot transfer to the same user", INVALID_ARGUMENT_ERROR_CODE)
	}
	if amount <= 0 {
		return nil, NewError("transfer amount must be positive", INVALID_ARGUMENT_ERROR_CODE)
	}
	if !s.catalog.Category(categoryId).IsSpendable {
		return nil, ErrWalletNotSpendable
	}
	transfer := &WalletTransfer{
		Id:         uuid.NewString(),
		FromUserId: fromUserId,
		ToUserId:   toUserId,
		CategoryId: categoryId,
		Amount:     amount,
		Status:     TransferStatusPending,
		CreatedAt:  time.Now().UTC(),
	}
	if err := s.transfers.Create(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *MeritWalletsSystem) ExecuteTransfer(ctx context.Context, id string) (*WalletTransfer, error) {
	transfer, err := s.transfers.GetById(ctx, id)
	if err != nil {
		return nil, err
	}

	unlock := s.lockPair(transfer.FromUserId, transfer.ToUserId)
	defer unlock()

	// Re-read under the locks so two racing executions observe the state
	// transition of the other.
	transfer, err = s.transfers.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Status != TransferStatusPending {
		return nil, ErrTransferState
	}

	now := time.Now().UTC()
	from, err := s.wallets.Get(ctx, transfer.FromUserId, transfer.CategoryId)
	if err != nil {
		return nil, err
	}
	if from.Balance < transfer.Amount {
		transfer.Status = TransferStatusFailed
		transfer.FailureReason = ErrInsufficientBalance.Message
		transfer.CompletedAt = &now
		if err := s.transfers.Update(ctx, transfer); err != nil {
			return nil, err
		}
		return transfer, ErrInsufficientBalance
	}

	out := &WalletTransaction{
		Id:          uuid.NewString(),
		UserId:      transfer.FromUserId,
		CategoryId:  transfer.CategoryId,
		Amount:      -transfer.Amount,
		Type:        WalletTxTransferOut,
		Description: "transfer to " + transfer.ToUserId,
		ReferenceId: transfer.Id,
		CreatedAt:   now,
	}
	in := &WalletTransaction{
		Id:          uuid.NewString(),
		UserId:      transfer.ToUserId,
		CategoryId:  transfer.CategoryId,
		Amount:      transfer.Amount,
		Type:        WalletTxTransferIn,
		Description: "transfer from " + transfer.FromUserId,
		ReferenceId: transfer.Id,
		CreatedAt:   now,
	}
	if err := s.wallets.PostPair(ctx, out, in); err != nil {
		transfer.Status = TransferStatusFailed
		transfer.FailureReason = err.Error()
		transfer.CompletedAt = &now
		if updateErr := s.transfers.Update(ctx, transfer); updateErr != nil {
			s.logger.Error("failed to record transfer failure", zap.String("transfer_id", id), zap.Error(updateErr))
		}
		return nil, err
	}

	transfer.Status = TransferStatusCompleted
	transfer.CompletedAt = &now
	if err := s.transfers.Update(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}

func (s *MeritWalletsSystem) Transfer(ctx context.Context, fromUserId, toUserId, categoryId string, amount int64) (*WalletTransfer, error) {
	transfer, err := s.CreateTransfer(ctx, fromUserId, toUserId, categoryId, amount)
	if err != nil {
		return nil, err
	}
	return s.ExecuteTransfer(ctx, transfer.Id)
}

func (s *MeritWalletsSystem) GetTransfer(ctx context.Context, id string) (*WalletTransfer, error) {
	return s.transfers.GetById(ctx, id)
}

func (s *MeritWalletsSystem) CancelTransfer(ctx context.Context, id string) (*WalletTransfer, error) {
	transfer, err := s.transfers.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.lockPair(transfer.FromUserId, transfer.ToUserId)
	defer unlock()
	transfer, err = s.transfers.GetById(ctx, id)
	if err != nil {
		return nil, err
	}
	if transfer.Status != TransferStatusPending {
		return nil, ErrTransferState
	}
	now := time.Now().UTC()
	transfer.Status = TransferStatusCancelled
	transfer.CompletedAt = &now
	if err := s.transfers.Update(ctx, transfer); err != nil {
		return nil, err
	}
	return transfer, nil
}
