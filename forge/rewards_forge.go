package forge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MeritRewardsSystem implements the RewardsSystem interface: it is the only
// writer of user state and the reward history log.
type MeritRewardsSystem struct {
	config  *RewardsConfig
	catalog *Catalog
	states  UserStateRepository
	history RewardHistoryRepository
	wallets WalletsSystem
	logger  *zap.Logger
	metrics *Metrics

	publishers []Publisher
}

// NewMeritRewardsSystem creates the reward applier.
func NewMeritRewardsSystem(config *RewardsConfig, catalog *Catalog, states UserStateRepository, history RewardHistoryRepository, wallets WalletsSystem, logger *zap.Logger, metrics *Metrics) *MeritRewardsSystem {
	if config == nil {
		config = &RewardsConfig{}
	}
	return &MeritRewardsSystem{
		config:  config,
		catalog: catalog,
		states:  states,
		history: history,
		wallets: wallets,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *MeritRewardsSystem) GetType() SystemType {
	return SystemTypeRewards
}

func (s *MeritRewardsSystem) GetConfig() any {
	return s.config
}

// AddPublisher registers a target for reward events.
func (s *MeritRewardsSystem) AddPublisher(publisher Publisher) {
	s.publishers = append(s.publishers, publisher)
}

// GetCatalog exposes the descriptor set in use.
func (s *MeritRewardsSystem) GetCatalog() *Catalog {
	return s.catalog
}

func (s *MeritRewardsSystem) Apply(ctx context.Context, instructions []*RewardInstruction) error {
	for _, instr := range instructions {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.applyOne(ctx, instr); err != nil {
			return err
		}
	}
	return nil
}

// historyEntryId composes the idempotency key: replays of the same triple
// resolve to the same history id and are skipped.
func historyEntryId(instr *RewardInstruction) string {
	return fmt.Sprintf("%s:%s:%d", instr.RuleId, instr.EventId, instr.RewardIndex)
}

func (s *MeritRewardsSystem) applyOne(ctx context.Context, instr *RewardInstruction) error {
	entryId := historyEntryId(instr)
	exists, err := s.history.ExistsById(ctx, entryId)
	if err != nil {
		return err
	}
	if exists {
		s.logger.Debug("reward already applied, skipping replay", zap.String("entry_id", entryId))
		return nil
	}

	entry := &RewardHistoryEntry{
		Id:         entryId,
		UserId:     instr.UserId,
		RewardType: instr.Reward.Type,
		AwardedAt:  time.Now().UTC(),
		Details: map[string]any{
			"ruleId":      instr.RuleId,
			"eventId":     instr.EventId,
			"rewardIndex": instr.RewardIndex,
		},
		Success: true,
	}

	var applyErr error
	switch instr.Reward.Type {
	case RewardTypePoints:
		applyErr = s.applyPoints(ctx, instr, entry, false)
	case RewardTypeBadge:
		applyErr = s.applyBadge(ctx, instr, entry)
	case RewardTypeTrophy:
		applyErr = s.applyTrophy(ctx, instr, entry)
	case RewardTypeLevel:
		applyErr = s.applyLevel(ctx, instr, entry)
	case RewardTypePenalty:
		applyErr = s.applyPenalty(ctx, instr, entry)
	default:
		applyErr = NewError(fmt.Sprintf("unknown reward type %q", instr.Reward.Type), INVALID_ARGUMENT_ERROR_CODE)
	}

	if applyErr != nil {
		if errors.Is(applyErr, ErrInsufficientBalance) || isInvalidArgument(applyErr) {
			// Recorded as a failed attempt; the engine moves on to the next
			// reward.
			entry.Success = false
			entry.FailureReason = applyErr.Error()
			s.logger.Warn("reward not applied",
				zap.String("entry_id", entryId),
				zap.String("reward_type", instr.Reward.Type),
				zap.Error(applyErr))
		} else {
			return applyErr
		}
	}

	if err := s.history.Append(ctx, entry); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RewardsApplied.WithLabelValues(instr.Reward.Type, fmt.Sprintf("%t", entry.Success)).Inc()
	}
	if entry.Success {
		s.publish(ctx, instr, entry)
	}
	return nil
}

func isInvalidArgument(err error) bool {
	var fe *Error
	return errors.As(err, &fe) && fe.Code == INVALID_ARGUMENT_ERROR_CODE
}

// applyPoints mutates the category total according to the category's
// aggregation mode. Spendable categories additionally post a wallet
// transaction; a wallet failure leaves user state untouched.
func (s *MeritRewardsSystem) applyPoints(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry, penalty bool) error {
	categoryId := instr.Reward.TargetId
	if categoryId == "" {
		categoryId = paramStringDefault(instr.Reward.Parameters, "category", "")
	}
	if categoryId == "" {
		return NewError("points reward requires a category", INVALID_ARGUMENT_ERROR_CODE)
	}
	category := s.catalog.Category(categoryId)

	amount := instr.Reward.Amount
	if multiplier, ok := paramFloat64(instr.Reward.Parameters, "multiplier"); ok {
		amount = int64(float64(amount) * multiplier)
	}
	if penalty && amount > 0 {
		amount = -amount
	}

	state, err := s.loadState(ctx, instr.UserId)
	if err != nil {
		return err
	}

	current := state.PointsByCategory[categoryId]
	updated := current
	switch category.Aggregation {
	case AggregationMax:
		if amount > current {
			updated = amount
		}
	case AggregationLast:
		updated = amount
	default:
		updated = current + amount
	}
	delta := updated - current

	if updated < 0 && !category.NegativeBalanceAllowed {
		return ErrInsufficientBalance
	}

	entry.Details["category"] = categoryId
	entry.Details["amount"] = amount

	if category.IsSpendable && delta != 0 {
		txType := WalletTxEarned
		if penalty {
			txType = WalletTxPenalty
		}
		description := fmt.Sprintf("rule %s", instr.RuleId)
		if _, err := s.wallets.Post(ctx, instr.UserId, categoryId, delta, txType, description, entry.Id); err != nil {
			return err
		}
	}

	state.PointsByCategory[categoryId] = updated
	if s.catalog.HasLevels(categoryId) {
		s.recomputeLevel(state, categoryId, entry)
	}
	return s.states.Save(ctx, state)
}

func (s *MeritRewardsSystem) applyBadge(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry) error {
	badgeId := instr.Reward.TargetId
	if badgeId == "" {
		return NewError("badge reward requires a targetId", INVALID_ARGUMENT_ERROR_CODE)
	}
	state, err := s.loadState(ctx, instr.UserId)
	if err != nil {
		return err
	}
	entry.Details["badgeId"] = badgeId
	if state.BadgeIds[badgeId] {
		// Granting an already-held badge is a successful no-op.
		entry.Details["duplicate"] = true
		return nil
	}
	state.BadgeIds[badgeId] = true
	return s.states.Save(ctx, state)
}

func (s *MeritRewardsSystem) applyTrophy(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry) error {
	trophyId := instr.Reward.TargetId
	if trophyId == "" {
		return NewError("trophy reward requires a targetId", INVALID_ARGUMENT_ERROR_CODE)
	}
	state, err := s.loadState(ctx, instr.UserId)
	if err != nil {
		return err
	}
	entry.Details["trophyId"] = trophyId
	if state.TrophyIds[trophyId] {
		entry.Details["duplicate"] = true
		return nil
	}
	state.TrophyIds[trophyId] = true
	return s.states.Save(ctx, state)
}

func (s *MeritRewardsSystem) applyLevel(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry) error {
	categoryId := instr.Reward.TargetId
	if categoryId == "" {
		return NewError("level reward requires a category", INVALID_ARGUMENT_ERROR_CODE)
	}
	state, err := s.loadState(ctx, instr.UserId)
	if err != nil {
		return err
	}
	entry.Details["category"] = categoryId
	s.recomputeLevel(state, categoryId, entry)
	return s.states.Save(ctx, state)
}

// applyPenalty revokes a badge when a badgeId parameter is present,
// otherwise it applies negative points.
func (s *MeritRewardsSystem) applyPenalty(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry) error {
	if badgeId, ok := paramString(instr.Reward.Parameters, "badgeId"); ok {
		state, err := s.loadState(ctx, instr.UserId)
		if err != nil {
			return err
		}
		entry.Details["badgeId"] = badgeId
		entry.Details["revoked"] = true
		if !state.BadgeIds[badgeId] {
			entry.Details["revoked"] = false
			return nil
		}
		delete(state.BadgeIds, badgeId)
		return s.states.Save(ctx, state)
	}
	return s.applyPoints(ctx, instr, entry, true)
}

func (s *MeritRewardsSystem) recomputeLevel(state *UserState, categoryId string, entry *RewardHistoryEntry) {
	levelId := s.catalog.LevelFor(categoryId, state.PointsByCategory[categoryId])
	previous := state.CurrentLevelByCategory[categoryId]
	if levelId == "" {
		delete(state.CurrentLevelByCategory, categoryId)
	} else {
		state.CurrentLevelByCategory[categoryId] = levelId
	}
	if previous != levelId {
		entry.Details["levelChanged"] = true
		entry.Details["level"] = levelId
	}
}

func (s *MeritRewardsSystem) loadState(ctx context.Context, userId string) (*UserState, error) {
	state, err := s.states.Get(ctx, userId)
	if err != nil {
		return nil, err
	}
	if state == nil {
		state = NewUserState(userId)
	}
	return state, nil
}

func (s *MeritRewardsSystem) GetUserState(ctx context.Context, userId string) (*UserState, error) {
	return s.loadState(ctx, userId)
}

func (s *MeritRewardsSystem) GetHistory(ctx context.Context, userId string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return s.history.ListByUser(ctx, userId, page, pageSize)
}

func (s *MeritRewardsSystem) GetHistoryByType(ctx context.Context, userId, rewardType string, page, pageSize int) ([]*RewardHistoryEntry, int64, error) {
	return s.history.ListByUserAndType(ctx, userId, rewardType, page, pageSize)
}

func (s *MeritRewardsSystem) publish(ctx context.Context, instr *RewardInstruction, entry *RewardHistoryEntry) {
	if len(s.publishers) == 0 {
		return
	}
	event := &PublisherEvent{
		Name:      "reward_granted",
		Id:        entry.Id,
		Timestamp: entry.AwardedAt.Unix(),
		SourceId:  instr.RuleId,
		Metadata: map[string]string{
			"rewardType": instr.Reward.Type,
			"targetId":   instr.Reward.TargetId,
		},
	}
	for _, publisher := range s.publishers {
		publisher.Send(ctx, s.logger, instr.UserId, []*PublisherEvent{event})
	}
}
