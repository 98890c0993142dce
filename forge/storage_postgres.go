package forge

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
)

// NewPostgresRepositories returns a repository set backed by Postgres.
func NewPostgresRepositories(db *sqlx.DB) *Repositories {
	return &Repositories{
		Events:    &pgEventRepository{db: db},
		States:    &pgUserStateRepository{db: db},
		Rules:     &pgRuleRepository{db: db},
		History:   &pgRewardHistoryRepository{db: db},
		Wallets:   &pgWalletRepository{db: db},
		Transfers: &pgTransferRepository{db: db},
	}
}

// EnsureSchema creates the engine tables if they do not exist yet. It is
// idempotent and safe to run at every startup.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS events (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			user_id TEXT NOT NULL,
			occurred_at TIMESTAMPTZ NOT NULL,
			attributes JSONB
		)`,
		`CREATE INDEX IF NOT EXISTS idx_events_user ON events (user_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_events_type ON events (event_type, occurred_at)`,
		`CREATE TABLE IF NOT EXISTS user_states (
			user_id TEXT PRIMARY KEY,
			state JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS rules (
			id TEXT PRIMARY KEY,
			rule JSONB NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS reward_history (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			reward_type TEXT NOT NULL,
			details JSONB,
			success BOOLEAN NOT NULL,
			failure_reason TEXT,
			awarded_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_user ON reward_history (user_id, awarded_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_history_awarded ON reward_history (awarded_at)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			user_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			balance BIGINT NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, category_id)
		)`,
		`CREATE TABLE IF NOT EXISTS wallet_transactions (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			tx_type TEXT NOT NULL,
			description TEXT,
			reference_id TEXT,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallet_tx_user ON wallet_transactions (user_id, category_id, created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS wallet_transfers (
			id TEXT PRIMARY KEY,
			from_user_id TEXT NOT NULL,
			to_user_id TEXT NOT NULL,
			category_id TEXT NOT NULL,
			amount BIGINT NOT NULL,
			status TEXT NOT NULL,
			failure_reason TEXT,
			created_at TIMESTAMPTZ NOT NULL,
			completed_at TIMESTAMPTZ
		)`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

type pgEvent struct {
	Id         string    `db:"id"`
	EventType  string    `db:"event_type"`
	UserId     string    `db:"user_id"`
	OccurredAt time.Time `db:"occurred_at"`
	Attributes []byte    `db:"attributes"`
}

func (r pgEvent) toDomain() (*Event, error) {
	event := &Event{Id: r.Id, EventType: r.EventType, UserId: r.UserId, OccurredAt: r.OccurredAt.UTC()}
	if len(r.Attributes) > 0 {
		if err := json.Unmarshal(r.Attributes, &event.Attributes); err != nil {
			return nil, err
		}
	}
	return event, nil
}

type pgEventRepository struct {
	db *sqlx.DB
}

func (r *pgEventRepository) Store(ctx context.Context, event *Event) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO events (id, event_type, user_id, occurred_at, attributes)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT (id) DO NOTHING`,
		event.Id, event.EventType, event.UserId, event.OccurredAt, attrs)
	return err
}

func (r *pgEventRepository) GetById(ctx context.Context, id string) (*Event, error) {
	var row pgEvent
	err := r.db.GetContext(ctx, &row,
		`SELECT id, event_type, user_id, occurred_at, attributes FROM events WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toDomain()
}

func (r *pgEventRepository) ListByUser(ctx context.Context, userId string, limit, offset int) ([]*Event, error) {
	var rows []pgEvent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, event_type, user_id, occurred_at, attributes FROM events
		 WHERE user_id = $1 ORDER BY occurred_at, id LIMIT $2 OFFSET $3`, userId, limit, offset)
	if err != nil {
		return nil, err
	}
	return toDomainEvents(rows)
}

func (r *pgEventRepository) ListByType(ctx context.Context, eventType string, limit, offset int) ([]*Event, error) {
	var rows []pgEvent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, event_type, user_id, occurred_at, attributes FROM events
		 WHERE event_type = $1 ORDER BY occurred_at, id LIMIT $2 OFFSET $3`, eventType, limit, offset)
	if err != nil {
		return nil, err
	}
	return toDomainEvents(rows)
}

func (r *pgEventRepository) RecentByUser(ctx context.Context, userId string, limit int) ([]*Event, error) {
	var rows []pgEvent
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, event_type, user_id, occurred_at, attributes FROM (
			SELECT * FROM events WHERE user_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2
		 ) recent ORDER BY occurred_at, id`, userId, limit)
	if err != nil {
		return nil, err
	}
	return toDomainEvents(rows)
}

func (r *pgEventRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM events WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func toDomainEvents(rows []pgEvent) ([]*Event, error) {
	out := make([]*Event, 0, len(rows))
	for _, row := range rows {
		event, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, event)
	}
	return out, nil
}

type pgUserStateRepository struct {
	db *sqlx.DB
}

func (r *pgUserStateRepository) Get(ctx context.Context, userId string) (*UserState, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT state FROM user_states WHERE user_id = $1`, userId)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	state := &UserState{}
	if err := json.Unmarshal(raw, state); err != nil {
		return nil, err
	}
	return state, nil
}

func (r *pgUserStateRepository) Save(ctx context.Context, state *UserState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO user_states (user_id, state) VALUES ($1, $2)
		 ON CONFLICT (user_id) DO UPDATE SET state = EXCLUDED.state`,
		state.UserId, raw)
	return err
}

func (r *pgUserStateRepository) ListAll(ctx context.Context) ([]*UserState, error) {
	var raws [][]byte
	if err := r.db.SelectContext(ctx, &raws, `SELECT state FROM user_states`); err != nil {
		return nil, err
	}
	out := make([]*UserState, 0, len(raws))
	for _, raw := range raws {
		state := &UserState{}
		if err := json.Unmarshal(raw, state); err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, nil
}

type pgRuleRepository struct {
	db *sqlx.DB
}

func (r *pgRuleRepository) List(ctx context.Context) ([]*Rule, error) {
	var raws [][]byte
	if err := r.db.SelectContext(ctx, &raws, `SELECT rule FROM rules ORDER BY id`); err != nil {
		return nil, err
	}
	out := make([]*Rule, 0, len(raws))
	for _, raw := range raws {
		rule := &Rule{}
		if err := json.Unmarshal(raw, rule); err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}

func (r *pgRuleRepository) GetById(ctx context.Context, id string) (*Rule, error) {
	var raw []byte
	err := r.db.GetContext(ctx, &raw, `SELECT rule FROM rules WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	rule := &Rule{}
	if err := json.Unmarshal(raw, rule); err != nil {
		return nil, err
	}
	return rule, nil
}

func (r *pgRuleRepository) Create(ctx context.Context, rule *Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO rules (id, rule) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING`, rule.Id, raw)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return NewError("rule id already exists", INVALID_ARGUMENT_ERROR_CODE)
	}
	return nil
}

func (r *pgRuleRepository) Update(ctx context.Context, rule *Rule) error {
	raw, err := json.Marshal(rule)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `UPDATE rules SET rule = $2 WHERE id = $1`, rule.Id, raw)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *pgRuleRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM rules WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type pgRewardHistoryEntry struct {
	Id            string         `db:"id"`
	UserId        string         `db:"user_id"`
	RewardType    string         `db:"reward_type"`
	Details       []byte         `db:"details"`
	Success       bool           `db:"success"`
	FailureReason sql.NullString `db:"failure_reason"`
	AwardedAt     time.Time      `db:"awarded_at"`
}

func (r pgRewardHistoryEntry) toDomain() (*RewardHistoryEntry, error) {
	entry := &RewardHistoryEntry{
		Id:            r.Id,
		UserId:        r.UserId,
		RewardType:    r.RewardType,
		Success:       r.Success,
		FailureReason: r.FailureReason.String,
		AwardedAt:     r.AwardedAt.UTC(),
	}
	if len(r.Details) > 0 {
		if err := json.Unmarshal(r.Details, &entry.Details); err != nil {
			return nil, err
		}
	}
	return entry, nil
}

type pgRewardHistoryRepository struct {
	db *sqlx.DB
}

func (r *pgRewardHistoryRepository) Append(ctx context.Context, entry *RewardHistoryEntry) error {
	details, err := json.Marshal(entry.Details)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx,
		`INSERT INTO reward_history (id, user_id, reward_type, details, success, failure_reason, awarded_at)
		 VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7) ON CONFLICT (id) DO NOTHING`,
		entry.Id, entry.UserId, entry.RewardType, details, entry.Success, entry.FailureReason, entry.AwardedAt)
	return err
}

func (r *pgRewardHistoryRepository) ExistsById(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM reward_history WHERE id = $1)`, id)
	return exists, err
}

func (r *pgRewardHistoryRepository) ListByUser(ctx context.Context, userId string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return r.page(ctx,
		`SELECT id, user_id, reward_type, details, success, failure_reason, awarded_at FROM reward_history
		 WHERE user_id = $1 ORDER BY awarded_at DESC, id LIMIT $2 OFFSET $3`,
		`SELECT COUNT(*) FROM reward_history WHERE user_id = $1`,
		[]any{userId}, page, pageSize)
}

func (r *pgRewardHistoryRepository) ListByUserAndType(ctx context.Context, userId, rewardType string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return r.page(ctx,
		`SELECT id, user_id, reward_type, details, success, failure_reason, awarded_at FROM reward_history
		 WHERE user_id = $1 AND reward_type = $2 ORDER BY awarded_at DESC, id LIMIT $3 OFFSET $4`,
		`SELECT COUNT(*) FROM reward_history WHERE user_id = $1 AND reward_type = $2`,
		[]any{userId, rewardType}, page, pageSize)
}

func (r *pgRewardHistoryRepository) page(ctx context.Context, listQuery, countQuery string, args []any, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, err
	}
	listArgs := append(append([]any{}, args...), pageSize, (page-1)*pageSize)
	var rows []pgRewardHistoryEntry
	if err := r.db.SelectContext(ctx, &rows, listQuery, listArgs...); err != nil {
		return nil, 0, err
	}
	out := make([]*RewardHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, 0, err
		}
		out = append(out, entry)
	}
	return out, total, nil
}

func (r *pgRewardHistoryRepository) ListByRange(ctx context.Context, start, end time.Time) ([]*RewardHistoryEntry, error) {
	var rows []pgRewardHistoryEntry
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, reward_type, details, success, failure_reason, awarded_at FROM reward_history
		 WHERE awarded_at >= $1 AND awarded_at < $2 ORDER BY awarded_at`, start, end)
	if err != nil {
		return nil, err
	}
	out := make([]*RewardHistoryEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	return out, nil
}

type pgWalletRepository struct {
	db *sqlx.DB
}

func (r *pgWalletRepository) Get(ctx context.Context, userId, categoryId string) (*Wallet, error) {
	wallet := &Wallet{UserId: userId, CategoryId: categoryId}
	err := r.db.GetContext(ctx, &wallet.Balance,
		`SELECT balance FROM wallets WHERE user_id = $1 AND category_id = $2`, userId, categoryId)
	if errors.Is(err, sql.ErrNoRows) {
		return wallet, nil
	}
	if err != nil {
		return nil, err
	}
	return wallet, nil
}

func (r *pgWalletRepository) ListByUser(ctx context.Context, userId string) ([]*Wallet, error) {
	var wallets []*Wallet
	err := r.db.SelectContext(ctx, &wallets,
		`SELECT user_id AS "userid", category_id AS "categoryid", balance FROM wallets WHERE user_id = $1 ORDER BY category_id`, userId)
	if err != nil {
		return nil, err
	}
	return wallets, nil
}

func (r *pgWalletRepository) Post(ctx context.Context, txn *WalletTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := postTx(ctx, tx, txn); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *pgWalletRepository) PostPair(ctx context.Context, out, in *WalletTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := postTx(ctx, tx, out); err != nil {
		return err
	}
	if err := postTx(ctx, tx, in); err != nil {
		return err
	}
	return tx.Commit()
}

func postTx(ctx context.Context, tx *sqlx.Tx, txn *WalletTransaction) error {
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO wallets (user_id, category_id, balance) VALUES ($1, $2, $3)
		 ON CONFLICT (user_id, category_id) DO UPDATE SET balance = wallets.balance + EXCLUDED.balance`,
		txn.UserId, txn.CategoryId, txn.Amount); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO wallet_transactions (id, user_id, category_id, amount, tx_type, description, reference_id, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8)`,
		txn.Id, txn.UserId, txn.CategoryId, txn.Amount, txn.Type, txn.Description, txn.ReferenceId, txn.CreatedAt)
	return err
}

type pgWalletTransaction struct {
	Id          string         `db:"id"`
	UserId      string         `db:"user_id"`
	CategoryId  string         `db:"category_id"`
	Amount      int64          `db:"amount"`
	Type        string         `db:"tx_type"`
	Description sql.NullString `db:"description"`
	ReferenceId sql.NullString `db:"reference_id"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r *pgWalletRepository) ListTransactions(ctx context.Context, userId, categoryId string, limit, offset int) ([]*WalletTransaction, error) {
	var rows []pgWalletTransaction
	err := r.db.SelectContext(ctx, &rows,
		`SELECT id, user_id, category_id, amount, tx_type, description, reference_id, created_at
		 FROM wallet_transactions WHERE user_id = $1 AND category_id = $2
		 ORDER BY created_at DESC, id LIMIT $3 OFFSET $4`, userId, categoryId, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]*WalletTransaction, 0, len(rows))
	for _, row := range rows {
		out = append(out, &WalletTransaction{
			Id:          row.Id,
			UserId:      row.UserId,
			CategoryId:  row.CategoryId,
			Amount:      row.Amount,
			Type:        row.Type,
			Description: row.Description.String,
			ReferenceId: row.ReferenceId.String,
			CreatedAt:   row.CreatedAt.UTC(),
		})
	}
	return out, nil
}

type pgWalletTransfer struct {
	Id            string         `db:"id"`
	FromUserId    string         `db:"from_user_id"`
	ToUserId      string         `db:"to_user_id"`
	CategoryId    string         `db:"category_id"`
	Amount        int64          `db:"amount"`
	Status        string         `db:"status"`
	FailureReason sql.NullString `db:"failure_reason"`
	CreatedAt     time.Time      `db:"created_at"`
	CompletedAt   sql.NullTime   `db:"completed_at"`
}

type pgTransferRepository struct {
	db *sqlx.DB
}

func (r *pgTransferRepository) Create(ctx context.Context, transfer *WalletTransfer) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO wallet_transfers (id, from_user_id, to_user_id, category_id, amount, status, failure_reason, created_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8, $9)`,
		transfer.Id, transfer.FromUserId, transfer.ToUserId, transfer.CategoryId,
		transfer.Amount, transfer.Status, transfer.FailureReason, transfer.CreatedAt, transfer.CompletedAt)
	return err
}

func (r *pgTransferRepository) GetById(ctx context.Context, id string) (*WalletTransfer, error) {
	var row pgWalletTransfer
	err := r.db.GetContext(ctx, &row,
		`SELECT id, from_user_id, to_user_id, category_id, amount, status, failure_reason, created_at, completed_at
		 FROM wallet_transfers WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransferNotFound
	}
	if err != nil {
		return nil, err
	}
	transfer := &WalletTransfer{
		Id:            row.Id,
		FromUserId:    row.FromUserId,
		ToUserId:      row.ToUserId,
		CategoryId:    row.CategoryId,
		Amount:        row.Amount,
		Status:        row.Status,
		FailureReason: row.FailureReason.String,
		CreatedAt:     row.CreatedAt.UTC(),
	}
	if row.CompletedAt.Valid {
		completed := row.CompletedAt.Time.UTC()
		transfer.CompletedAt = &completed
	}
	return transfer, nil
}

func (r *pgTransferRepository) Update(ctx context.Context, transfer *WalletTransfer) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE wallet_transfers SET status = $2, failure_reason = NULLIF($3, ''), completed_at = $4 WHERE id = $1`,
		transfer.Id, transfer.Status, transfer.FailureReason, transfer.CompletedAt)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrTransferNotFound
	}
	return nil
}
