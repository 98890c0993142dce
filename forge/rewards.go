package forge

import (
	"context"
	"time"
)

// RewardHistoryEntry is one append-only record of a reward application
// attempt, successful or not.
type RewardHistoryEntry struct {
	Id            string         `json:"id"`
	UserId        string         `json:"userId"`
	RewardType    string         `json:"rewardType"`
	Details       map[string]any `json:"details,omitempty"`
	Success       bool           `json:"success"`
	FailureReason string         `json:"failureReason,omitempty"`
	AwardedAt     time.Time      `json:"awardedAt"`
}

// RewardsConfig is the data definition for the RewardsSystem type.
type RewardsConfig struct {
	Catalog *CatalogConfig `json:"catalog,omitempty"`
}

// The RewardsSystem applies reward instructions to user state, wallets and
// the reward history log.
type RewardsSystem interface {
	System

	// Apply executes the instructions in order. Every attempt writes one
	// history entry. Applying the same (ruleId, eventId, rewardIndex) triple
	// twice is a no-op on the second attempt.
	Apply(ctx context.Context, instructions []*RewardInstruction) error

	// GetUserState returns a copy of the user's aggregate state. Users that
	// never earned anything resolve to an empty state.
	GetUserState(ctx context.Context, userId string) (*UserState, error)

	// GetHistory returns the user's reward history, newest first, with the
	// total entry count.
	GetHistory(ctx context.Context, userId string, page, pageSize int) ([]*RewardHistoryEntry, int64, error)

	// GetHistoryByType filters the user's history by reward type.
	GetHistoryByType(ctx context.Context, userId, rewardType string, page, pageSize int) ([]*RewardHistoryEntry, int64, error)

	// GetCatalog exposes the descriptor set in use.
	GetCatalog() *Catalog
}
