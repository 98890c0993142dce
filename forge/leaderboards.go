package forge

import (
	"context"
	"fmt"
	"time"
)

// Leaderboard projection types.
const (
	LeaderboardTypePoints   = "points"
	LeaderboardTypeBadges   = "badges"
	LeaderboardTypeTrophies = "trophies"
	LeaderboardTypeLevel    = "level"
)

// Leaderboard time ranges.
const (
	TimeRangeDaily   = "daily"
	TimeRangeWeekly  = "weekly"
	TimeRangeMonthly = "monthly"
	TimeRangeAllTime = "alltime"
)

// LeaderboardQuery selects one ranked projection.
type LeaderboardQuery struct {
	Type          string    `json:"type"`
	Category      string    `json:"category,omitempty"`
	TimeRange     string    `json:"timeRange"`
	ReferenceDate time.Time `json:"referenceDate"`
	Page          int       `json:"page"`
	PageSize      int       `json:"pageSize"`
}

// Validate normalizes the query and checks its invariants.
func (q *LeaderboardQuery) Validate() error {
	switch q.Type {
	case LeaderboardTypePoints, LeaderboardTypeLevel:
		if q.Category == "" {
			return NewError(fmt.Sprintf("leaderboard type %q requires a category", q.Type), INVALID_ARGUMENT_ERROR_CODE)
		}
	case LeaderboardTypeBadges, LeaderboardTypeTrophies:
		if q.Category != "" {
			return NewError(fmt.Sprintf("leaderboard type %q does not accept a category", q.Type), INVALID_ARGUMENT_ERROR_CODE)
		}
	default:
		return NewError(fmt.Sprintf("unknown leaderboard type %q", q.Type), INVALID_ARGUMENT_ERROR_CODE)
	}
	switch q.TimeRange {
	case TimeRangeDaily, TimeRangeWeekly, TimeRangeMonthly, TimeRangeAllTime:
	default:
		return NewError(fmt.Sprintf("unknown time range %q", q.TimeRange), INVALID_ARGUMENT_ERROR_CODE)
	}
	if q.Page < 1 {
		return NewError("page must be >= 1", INVALID_ARGUMENT_ERROR_CODE)
	}
	if q.PageSize < 1 || q.PageSize > 1000 {
		return NewError("pageSize must be between 1 and 1000", INVALID_ARGUMENT_ERROR_CODE)
	}
	return nil
}

// CacheKey is the composite cache key for the query's full (unpaginated)
// result set. Reference dates participate at day precision.
func (q *LeaderboardQuery) CacheKey() string {
	return fmt.Sprintf("%s:%s:%s:%s", q.Type, q.Category, q.TimeRange, q.ReferenceDate.UTC().Format("2006-01-02"))
}

// LeaderboardEntry is one ranked row.
type LeaderboardEntry struct {
	UserId string `json:"userId"`
	Score  int64  `json:"score"`
	Rank   int    `json:"rank"`
}

// LeaderboardResult is one page of a ranked projection.
type LeaderboardResult struct {
	Entries     []*LeaderboardEntry `json:"entries"`
	TotalCount  int                 `json:"totalCount"`
	Page        int                 `json:"page"`
	PageSize    int                 `json:"pageSize"`
	TopEntry    *LeaderboardEntry   `json:"topEntry,omitempty"`
	GeneratedAt time.Time           `json:"generatedAt"`
}

// LeaderboardCache stores fully ranked result sets by composite key. A cache
// is best effort: a miss regenerates.
type LeaderboardCache interface {
	Get(ctx context.Context, key string) ([]*LeaderboardEntry, bool)
	Set(ctx context.Context, key string, entries []*LeaderboardEntry)
	Delete(ctx context.Context, key string)
	Clear(ctx context.Context)
}

// LeaderboardsConfig is the data definition for the LeaderboardsSystem type.
type LeaderboardsConfig struct {
	CacheTTLSec   int `json:"cache_ttl_sec,omitempty"`
	CacheMaxEntries int `json:"cache_max_entries,omitempty"`
}

// The LeaderboardsSystem projects user state or windowed reward history into
// ranked, paginated, cached result sets.
type LeaderboardsSystem interface {
	System

	// GetLeaderboard returns the requested page, generating and caching the
	// full result set if needed.
	GetLeaderboard(ctx context.Context, query *LeaderboardQuery) (*LeaderboardResult, error)

	// GetUserRank returns the user's 1-based rank, or false when the user is
	// not present in the projection.
	GetUserRank(ctx context.Context, userId string, query *LeaderboardQuery) (int, bool, error)

	// GetUserContext returns contextSize entries centered on the user.
	GetUserContext(ctx context.Context, userId string, query *LeaderboardQuery, contextSize int) ([]*LeaderboardEntry, error)

	// Refresh invalidates the cache entry for the query so the next read
	// regenerates it.
	Refresh(ctx context.Context, query *LeaderboardQuery) error

	// Clear invalidates every cached result set.
	Clear(ctx context.Context)
}
