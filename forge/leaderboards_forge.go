package forge

import (
	"context"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// MeritLeaderboardsSystem implements the LeaderboardsSystem interface. All-time
// boards project current user state; windowed boards aggregate successful
// reward history inside UTC day/week/month boundaries.
//
// Ranking is dense: tied scores share a rank and the next distinct score is
// ranked 1 + the number of users ahead of it. The alternative per-index
// strict ranking was rejected so equal scores never order arbitrarily.
type MeritLeaderboardsSystem struct {
	config  *LeaderboardsConfig
	states  UserStateRepository
	history RewardHistoryRepository
	cache   LeaderboardCache
	logger  *zap.Logger
	metrics *Metrics
}

// NewMeritLeaderboardsSystem creates the leaderboard engine.
func NewMeritLeaderboardsSystem(config *LeaderboardsConfig, states UserStateRepository, history RewardHistoryRepository, cache LeaderboardCache, logger *zap.Logger, metrics *Metrics) *MeritLeaderboardsSystem {
	if config == nil {
		config = &LeaderboardsConfig{}
	}
	return &MeritLeaderboardsSystem{
		config:  config,
		states:  states,
		history: history,
		cache:   cache,
		logger:  logger,
		metrics: metrics,
	}
}

func (s *MeritLeaderboardsSystem) GetType() SystemType {
	return SystemTypeLeaderboards
}

func (s *MeritLeaderboardsSystem) GetConfig() any {
	return s.config
}

func (s *MeritLeaderboardsSystem) GetLeaderboard(ctx context.Context, query *LeaderboardQuery) (*LeaderboardResult, error) {
	entries, err := s.ranked(ctx, query)
	if err != nil {
		return nil, err
	}

	result := &LeaderboardResult{
		Entries:     []*LeaderboardEntry{},
		TotalCount:  len(entries),
		Page:        query.Page,
		PageSize:    query.PageSize,
		GeneratedAt: time.Now().UTC(),
	}
	if len(entries) > 0 {
		result.TopEntry = entries[0]
	}
	start := (query.Page - 1) * query.PageSize
	if start < len(entries) {
		end := start + query.PageSize
		if end > len(entries) {
			end = len(entries)
		}
		result.Entries = entries[start:end]
	}
	return result, nil
}

func (s *MeritLeaderboardsSystem) GetUserRank(ctx context.Context, userId string, query *LeaderboardQuery) (int, bool, error) {
	entries, err := s.ranked(ctx, query)
	if err != nil {
		return 0, false, err
	}
	for _, e := range entries {
		if e.UserId == userId {
			return e.Rank, true, nil
		}
	}
	return 0, false, nil
}

func (s *MeritLeaderboardsSystem) GetUserContext(ctx context.Context, userId string, query *LeaderboardQuery, contextSize int) ([]*LeaderboardEntry, error) {
	if contextSize < 1 {
		return nil, NewError("contextSize must be >= 1", INVALID_ARGUMENT_ERROR_CODE)
	}
	entries, err := s.ranked(ctx, query)
	if err != nil {
		return nil, err
	}
	idx := -1
	for i, e := range entries {
		if e.UserId == userId {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, ErrUserNotFound
	}
	start := idx - contextSize/2
	if start < 0 {
		start = 0
	}
	end := start + contextSize
	if end > len(entries) {
		end = len(entries)
		if start = end - contextSize; start < 0 {
			start = 0
		}
	}
	return entries[start:end], nil
}

func (s *MeritLeaderboardsSystem) Refresh(ctx context.Context, query *LeaderboardQuery) error {
	if err := query.Validate(); err != nil {
		return err
	}
	s.cache.Delete(ctx, s.normalize(query).CacheKey())
	return nil
}

func (s *MeritLeaderboardsSystem) Clear(ctx context.Context) {
	s.cache.Clear(ctx)
}

// normalize pins the reference date so cache keys and window math agree.
func (s *MeritLeaderboardsSystem) normalize(query *LeaderboardQuery) *LeaderboardQuery {
	q := *query
	if q.ReferenceDate.IsZero() {
		q.ReferenceDate = time.Now().UTC()
	}
	q.ReferenceDate = q.ReferenceDate.UTC()
	return &q
}

// ranked returns the full ranked projection for a query, consulting the
// cache first. Pagination happens after this.
func (s *MeritLeaderboardsSystem) ranked(ctx context.Context, query *LeaderboardQuery) ([]*LeaderboardEntry, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}
	q := s.normalize(query)
	key := q.CacheKey()
	if entries, ok := s.cache.Get(ctx, key); ok {
		if s.metrics != nil {
			s.metrics.LeaderboardCacheHits.Inc()
		}
		return entries, nil
	}
	if s.metrics != nil {
		s.metrics.LeaderboardCacheMisses.Inc()
	}

	var scores map[string]int64
	var err error
	if q.TimeRange == TimeRangeAllTime {
		scores, err = s.projectStates(ctx, q)
	} else {
		scores, err = s.aggregateHistory(ctx, q)
	}
	if err != nil {
		return nil, err
	}

	entries := rankEntries(scores)
	s.cache.Set(ctx, key, entries)
	return entries, nil
}

// projectStates scores every user from current state.
func (s *MeritLeaderboardsSystem) projectStates(ctx context.Context, q *LeaderboardQuery) (map[string]int64, error) {
	states, err := s.states.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	scores := make(map[string]int64, len(states))
	for _, state := range states {
		var score int64
		switch q.Type {
		case LeaderboardTypePoints, LeaderboardTypeLevel:
			score = state.PointsByCategory[q.Category]
		case LeaderboardTypeBadges:
			score = int64(len(state.BadgeIds))
		case LeaderboardTypeTrophies:
			score = int64(len(state.TrophyIds))
		}
		if includeScore(q.Type, score) {
			scores[state.UserId] = score
		}
	}
	return scores, nil
}

// aggregateHistory scores users from successful reward history inside the
// query window. Badge and trophy boards only see grants that produced a
// history entry; grants predating history retention are invisible here.
func (s *MeritLeaderboardsSystem) aggregateHistory(ctx context.Context, q *LeaderboardQuery) (map[string]int64, error) {
	start, end := timeWindow(q.TimeRange, q.ReferenceDate)
	entries, err := s.history.ListByRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	points := make(map[string]int64)
	grants := make(map[string]map[string]bool)
	for _, entry := range entries {
		if !entry.Success {
			continue
		}
		switch entry.RewardType {
		case RewardTypePoints, RewardTypePenalty:
			if q.Type != LeaderboardTypePoints && q.Type != LeaderboardTypeLevel {
				continue
			}
			category, _ := entry.Details["category"].(string)
			if category != q.Category {
				continue
			}
			points[entry.UserId] += detailAmount(entry.Details)
		case RewardTypeBadge:
			if q.Type != LeaderboardTypeBadges {
				continue
			}
			recordGrant(grants, entry, "badgeId")
		case RewardTypeTrophy:
			if q.Type != LeaderboardTypeTrophies {
				continue
			}
			recordGrant(grants, entry, "trophyId")
		}
	}

	scores := make(map[string]int64)
	switch q.Type {
	case LeaderboardTypePoints, LeaderboardTypeLevel:
		for userId, score := range points {
			if includeScore(q.Type, score) {
				scores[userId] = score
			}
		}
	default:
		for userId, ids := range grants {
			if len(ids) > 0 {
				scores[userId] = int64(len(ids))
			}
		}
	}
	return scores, nil
}

// recordGrant counts distinct grants per user, skipping duplicate re-grants.
func recordGrant(grants map[string]map[string]bool, entry *RewardHistoryEntry, idKey string) {
	if dup, _ := entry.Details["duplicate"].(bool); dup {
		return
	}
	id, _ := entry.Details[idKey].(string)
	if id == "" {
		return
	}
	if grants[entry.UserId] == nil {
		grants[entry.UserId] = make(map[string]bool)
	}
	grants[entry.UserId][id] = true
}

func detailAmount(details map[string]any) int64 {
	if f, ok := toFloat(details["amount"]); ok {
		return int64(f)
	}
	return 0
}

// includeScore drops non-positive scores: zero or negative totals never rank.
func includeScore(queryType string, score int64) bool {
	return score > 0
}

// rankEntries sorts by score descending, userId ascending, and assigns dense
// ranks: tied scores share a rank.
func rankEntries(scores map[string]int64) []*LeaderboardEntry {
	entries := make([]*LeaderboardEntry, 0, len(scores))
	for userId, score := range scores {
		entries = append(entries, &LeaderboardEntry{UserId: userId, Score: score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return strings.Compare(entries[i].UserId, entries[j].UserId) < 0
	})
	for i, e := range entries {
		if i > 0 && e.Score == entries[i-1].Score {
			e.Rank = entries[i-1].Rank
		} else {
			e.Rank = i + 1
		}
	}
	return entries
}

// timeWindow computes the [start, end) UTC window for a reference date.
// Weeks start on Monday.
func timeWindow(timeRange string, reference time.Time) (time.Time, time.Time) {
	ref := reference.UTC()
	day := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, time.UTC)
	switch timeRange {
	case TimeRangeDaily:
		return day, day.AddDate(0, 0, 1)
	case TimeRangeWeekly:
		weekday := int(day.Weekday())
		// time.Weekday has Sunday == 0.
		offset := (weekday + 6) % 7
		start := day.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7)
	case TimeRangeMonthly:
		start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
		return start, start.AddDate(0, 1, 0)
	default:
		return time.Time{}, time.Time{}
	}
}
