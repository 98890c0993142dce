package forge

import (
	"context"
	"sort"
	"sync"
	"time"
)

// NewMemoryRepositories returns a repository set backed by process memory,
// suitable for development and tests.
func NewMemoryRepositories() *Repositories {
	return &Repositories{
		Events:    newMemoryEventRepository(),
		States:    newMemoryUserStateRepository(),
		Rules:     newMemoryRuleRepository(),
		History:   newMemoryRewardHistoryRepository(),
		Wallets:   newMemoryWalletRepository(),
		Transfers: newMemoryTransferRepository(),
	}
}

type memoryEventRepository struct {
	sync.RWMutex
	byId   map[string]*Event
	events []*Event
}

func newMemoryEventRepository() *memoryEventRepository {
	return &memoryEventRepository{byId: make(map[string]*Event)}
}

func (r *memoryEventRepository) Store(ctx context.Context, event *Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.byId[event.Id]; ok {
		// The log is immutable, a replayed id is a no-op.
		return nil
	}
	r.byId[event.Id] = event
	// Keep the slice ordered by occurrence time so reads stay cheap.
	idx := sort.Search(len(r.events), func(i int) bool {
		return r.events[i].OccurredAt.After(event.OccurredAt)
	})
	r.events = append(r.events, nil)
	copy(r.events[idx+1:], r.events[idx:])
	r.events[idx] = event
	return nil
}

func (r *memoryEventRepository) GetById(ctx context.Context, id string) (*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	event, ok := r.byId[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (r *memoryEventRepository) ListByUser(ctx context.Context, userId string, limit, offset int) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	return filterEvents(r.events, func(e *Event) bool { return e.UserId == userId }, limit, offset), nil
}

func (r *memoryEventRepository) ListByType(ctx context.Context, eventType string, limit, offset int) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	return filterEvents(r.events, func(e *Event) bool { return e.EventType == eventType }, limit, offset), nil
}

func (r *memoryEventRepository) RecentByUser(ctx context.Context, userId string, limit int) ([]*Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	matched := make([]*Event, 0)
	for _, e := range r.events {
		if e.UserId == userId {
			matched = append(matched, e)
		}
	}
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	out := make([]*Event, len(matched))
	copy(out, matched)
	return out, nil
}

func (r *memoryEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.Lock()
	defer r.Unlock()
	kept := r.events[:0]
	var purged int64
	for _, e := range r.events {
		if e.OccurredAt.Before(cutoff) {
			delete(r.byId, e.Id)
			purged++
			continue
		}
		kept = append(kept, e)
	}
	r.events = kept
	return purged, nil
}

func filterEvents(events []*Event, match func(*Event) bool, limit, offset int) []*Event {
	out := make([]*Event, 0)
	skipped := 0
	for _, e := range events {
		if !match(e) {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, e)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

type memoryUserStateRepository struct {
	sync.RWMutex
	states map[string]*UserState
}

func newMemoryUserStateRepository() *memoryUserStateRepository {
	return &memoryUserStateRepository{states: make(map[string]*UserState)}
}

func (r *memoryUserStateRepository) Get(ctx context.Context, userId string) (*UserState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	return r.states[userId].Clone(), nil
}

func (r *memoryUserStateRepository) Save(ctx context.Context, state *UserState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	r.states[state.UserId] = state.Clone()
	return nil
}

func (r *memoryUserStateRepository) ListAll(ctx context.Context) ([]*UserState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	out := make([]*UserState, 0, len(r.states))
	for _, s := range r.states {
		out = append(out, s.Clone())
	}
	return out, nil
}

type memoryRuleRepository struct {
	sync.RWMutex
	rules map[string]*Rule
}

func newMemoryRuleRepository() *memoryRuleRepository {
	return &memoryRuleRepository{rules: make(map[string]*Rule)}
}

func (r *memoryRuleRepository) List(ctx context.Context) ([]*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	out := make([]*Rule, 0, len(r.rules))
	for _, rule := range r.rules {
		out = append(out, rule)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Id < out[j].Id })
	return out, nil
}

func (r *memoryRuleRepository) GetById(ctx context.Context, id string) (*Rule, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	rule, ok := r.rules[id]
	if !ok {
		return nil, ErrRuleNotFound
	}
	return rule, nil
}

func (r *memoryRuleRepository) Create(ctx context.Context, rule *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.rules[rule.Id]; ok {
		return NewError("rule id already exists", INVALID_ARGUMENT_ERROR_CODE)
	}
	r.rules[rule.Id] = rule
	return nil
}

func (r *memoryRuleRepository) Update(ctx context.Context, rule *Rule) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.rules[rule.Id]; !ok {
		return ErrRuleNotFound
	}
	r.rules[rule.Id] = rule
	return nil
}

func (r *memoryRuleRepository) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.rules[id]; !ok {
		return ErrRuleNotFound
	}
	delete(r.rules, id)
	return nil
}

type memoryRewardHistoryRepository struct {
	sync.RWMutex
	byId    map[string]*RewardHistoryEntry
	entries []*RewardHistoryEntry
}

func newMemoryRewardHistoryRepository() *memoryRewardHistoryRepository {
	return &memoryRewardHistoryRepository{byId: make(map[string]*RewardHistoryEntry)}
}

func (r *memoryRewardHistoryRepository) Append(ctx context.Context, entry *RewardHistoryEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.byId[entry.Id]; ok {
		return nil
	}
	r.byId[entry.Id] = entry
	r.entries = append(r.entries, entry)
	return nil
}

func (r *memoryRewardHistoryRepository) ExistsById(ctx context.Context, id string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.RLock()
	defer r.RUnlock()
	_, ok := r.byId[id]
	return ok, nil
}

func (r *memoryRewardHistoryRepository) ListByUser(ctx context.Context, userId string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return r.list(ctx, func(e *RewardHistoryEntry) bool { return e.UserId == userId }, page, pageSize)
}

func (r *memoryRewardHistoryRepository) ListByUserAndType(ctx context.Context, userId, rewardType string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return r.list(ctx, func(e *RewardHistoryEntry) bool {
		return e.UserId == userId && e.RewardType == rewardType
	}, page, pageSize)
}

func (r *memoryRewardHistoryRepository) list(ctx context.Context, match func(*RewardHistoryEntry) bool, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.RLock()
	defer r.RUnlock()
	matched := make([]*RewardHistoryEntry, 0)
	for _, e := range r.entries {
		if match(e) {
			matched = append(matched, e)
		}
	}
	// Newest first.
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].AwardedAt.After(matched[j].AwardedAt) })
	total := int64(len(matched))
	start := (page - 1) * pageSize
	if start >= len(matched) {
		return []*RewardHistoryEntry{}, total, nil
	}
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (r *memoryRewardHistoryRepository) ListByRange(ctx context.Context, start, end time.Time) ([]*RewardHistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	out := make([]*RewardHistoryEntry, 0)
	for _, e := range r.entries {
		if !e.AwardedAt.Before(start) && e.AwardedAt.Before(end) {
			out = append(out, e)
		}
	}
	return out, nil
}

type memoryWalletRepository struct {
	sync.RWMutex
	balances map[string]int64 // userId + "\x00" + categoryId
	ledger   []*WalletTransaction
}

func newMemoryWalletRepository() *memoryWalletRepository {
	return &memoryWalletRepository{balances: make(map[string]int64)}
}

func walletKey(userId, categoryId string) string {
	return userId + "\x00" + categoryId
}

func (r *memoryWalletRepository) Get(ctx context.Context, userId, categoryId string) (*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	return &Wallet{UserId: userId, CategoryId: categoryId, Balance: r.balances[walletKey(userId, categoryId)]}, nil
}

func (r *memoryWalletRepository) ListByUser(ctx context.Context, userId string) ([]*Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	prefix := userId + "\x00"
	out := make([]*Wallet, 0)
	for key, balance := range r.balances {
		if len(key) > len(prefix) && key[:len(prefix)] == prefix {
			out = append(out, &Wallet{UserId: userId, CategoryId: key[len(prefix):], Balance: balance})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CategoryId < out[j].CategoryId })
	return out, nil
}

func (r *memoryWalletRepository) Post(ctx context.Context, txn *WalletTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	r.balances[walletKey(txn.UserId, txn.CategoryId)] += txn.Amount
	r.ledger = append(r.ledger, txn)
	return nil
}

func (r *memoryWalletRepository) PostPair(ctx context.Context, out, in *WalletTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	r.balances[walletKey(out.UserId, out.CategoryId)] += out.Amount
	r.balances[walletKey(in.UserId, in.CategoryId)] += in.Amount
	r.ledger = append(r.ledger, out, in)
	return nil
}

func (r *memoryWalletRepository) ListTransactions(ctx context.Context, userId, categoryId string, limit, offset int) ([]*WalletTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	matched := make([]*WalletTransaction, 0)
	for i := len(r.ledger) - 1; i >= 0; i-- {
		txn := r.ledger[i]
		if txn.UserId == userId && txn.CategoryId == categoryId {
			matched = append(matched, txn)
		}
	}
	if offset >= len(matched) {
		return []*WalletTransaction{}, nil
	}
	matched = matched[offset:]
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

type memoryTransferRepository struct {
	sync.RWMutex
	transfers map[string]*WalletTransfer
}

func newMemoryTransferRepository() *memoryTransferRepository {
	return &memoryTransferRepository{transfers: make(map[string]*WalletTransfer)}
}

func (r *memoryTransferRepository) Create(ctx context.Context, transfer *WalletTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.transfers[transfer.Id]; ok {
		return NewError("transfer id already exists", INVALID_ARGUMENT_ERROR_CODE)
	}
	clone := *transfer
	r.transfers[transfer.Id] = &clone
	return nil
}

func (r *memoryTransferRepository) GetById(ctx context.Context, id string) (*WalletTransfer, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.RLock()
	defer r.RUnlock()
	transfer, ok := r.transfers[id]
	if !ok {
		return nil, ErrTransferNotFound
	}
	clone := *transfer
	return &clone, nil
}

func (r *memoryTransferRepository) Update(ctx context.Context, transfer *WalletTransfer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.Lock()
	defer r.Unlock()
	if _, ok := r.transfers[transfer.Id]; !ok {
		return ErrTransferNotFound
	}
	clone := *transfer
	r.transfers[transfer.Id] = &clone
	return nil
}
