package forge

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *apiServer) handleUserState(w http.ResponseWriter, r *http.Request) {
	state, err := s.forge.GetRewardsSystem().GetUserState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":                 state.UserId,
		"pointsByCategory":       state.PointsByCategory,
		"badgeIds":               state.BadgeList(),
		"trophyIds":              state.TrophyList(),
		"currentLevelByCategory": state.CurrentLevelByCategory,
	})
}

func (s *apiServer) handleUserPoints(w http.ResponseWriter, r *http.Request) {
	state, err := s.forge.GetRewardsSystem().GetUserState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if category := chi.URLParam(r, "category"); category != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":   state.UserId,
			"category": category,
			"points":   state.PointsByCategory[category],
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":           state.UserId,
		"pointsByCategory": state.PointsByCategory,
	})
}

func (s *apiServer) handleUserBadges(w http.ResponseWriter, r *http.Request) {
	state, err := s.forge.GetRewardsSystem().GetUserState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": state.UserId, "badgeIds": state.BadgeList()})
}

func (s *apiServer) handleUserTrophies(w http.ResponseWriter, r *http.Request) {
	state, err := s.forge.GetRewardsSystem().GetUserState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"userId": state.UserId, "trophyIds": state.TrophyList()})
}

func (s *apiServer) handleUserLevels(w http.ResponseWriter, r *http.Request) {
	state, err := s.forge.GetRewardsSystem().GetUserState(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	if category := chi.URLParam(r, "category"); category != "" {
		writeJSON(w, http.StatusOK, map[string]any{
			"userId":   state.UserId,
			"category": category,
			"level":    state.CurrentLevelByCategory[category],
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":                 state.UserId,
		"currentLevelByCategory": state.CurrentLevelByCategory,
	})
}

func (s *apiServer) handleUserRewardHistory(w http.ResponseWriter, r *http.Request) {
	page, err := queryInt(r, "page", 1, 1, 0)
	if err != nil {
		s.writeError(w, err)
		return
	}
	pageSize, err := queryInt(r, "pageSize", 50, 1, 1000)
	if err != nil {
		s.writeError(w, err)
		return
	}
	userId := chi.URLParam(r, "userId")
	rewards := s.forge.GetRewardsSystem()

	var entries []*RewardHistoryEntry
	var total int64
	if rewardType := r.URL.Query().Get("type"); rewardType != "" {
		entries, total, err = rewards.GetHistoryByType(r.Context(), userId, rewardType, page, pageSize)
	} else {
		entries, total, err = rewards.GetHistory(r.Context(), userId, page, pageSize)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries":    entries,
		"totalCount": total,
		"page":       page,
		"pageSize":   pageSize,
	})
}
