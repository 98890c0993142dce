package forge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// leaderboardQuery builds the query from request parameters; the type and
// category may be forced by typed convenience routes.
func leaderboardQuery(r *http.Request, forcedType, forcedCategory string) (*LeaderboardQuery, error) {
	q := &LeaderboardQuery{
		Type:      forcedType,
		Category:  forcedCategory,
		TimeRange: r.URL.Query().Get("timeRange"),
	}
	if q.Type == "" {
		q.Type = r.URL.Query().Get("type")
	}
	if q.Category == "" {
		q.Category = r.URL.Query().Get("category")
	}
	if q.TimeRange == "" {
		q.TimeRange = TimeRangeAllTime
	}
	if raw := r.URL.Query().Get("referenceDate"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			parsed, err = time.Parse(time.RFC3339, raw)
		}
		if err != nil {
			return nil, NewError("referenceDate must be an ISO date", INVALID_ARGUMENT_ERROR_CODE)
		}
		q.ReferenceDate = parsed.UTC()
	}
	page, err := queryInt(r, "page", 1, 1, 0)
	if err != nil {
		return nil, err
	}
	pageSize, err := queryInt(r, "pageSize", 50, 1, 1000)
	if err != nil {
		return nil, err
	}
	q.Page = page
	q.PageSize = pageSize
	return q, nil
}

func (s *apiServer) serveLeaderboard(w http.ResponseWriter, r *http.Request, forcedType, forcedCategory string) {
	query, err := leaderboardQuery(r, forcedType, forcedCategory)
	if err != nil {
		s.writeError(w, err)
		return
	}
	result, err := s.forge.GetLeaderboardsSystem().GetLeaderboard(r.Context(), query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *apiServer) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, "", "")
}

func (s *apiServer) handleLeaderboardPoints(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, LeaderboardTypePoints, chi.URLParam(r, "category"))
}

func (s *apiServer) handleLeaderboardLevels(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, LeaderboardTypeLevel, chi.URLParam(r, "category"))
}

func (s *apiServer) handleLeaderboardBadges(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, LeaderboardTypeBadges, "")
}

func (s *apiServer) handleLeaderboardTrophies(w http.ResponseWriter, r *http.Request) {
	s.serveLeaderboard(w, r, LeaderboardTypeTrophies, "")
}

func (s *apiServer) handleLeaderboardUserRank(w http.ResponseWriter, r *http.Request) {
	query, err := leaderboardQuery(r, "", "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	userId := chi.URLParam(r, "userId")
	rank, present, err := s.forge.GetLeaderboardsSystem().GetUserRank(r.Context(), userId, query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"userId":  userId,
		"rank":    rank,
		"present": present,
	})
}

func (s *apiServer) handleLeaderboardUserContext(w http.ResponseWriter, r *http.Request) {
	query, err := leaderboardQuery(r, "", "")
	if err != nil {
		s.writeError(w, err)
		return
	}
	size, err := queryInt(r, "size", 5, 1, 100)
	if err != nil {
		s.writeError(w, err)
		return
	}
	entries, err := s.forge.GetLeaderboardsSystem().GetUserContext(r.Context(), chi.URLParam(r, "userId"), query, size)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *apiServer) handleLeaderboardRefresh(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Type          string `json:"type,omitempty"`
		Category      string `json:"category,omitempty"`
		TimeRange     string `json:"timeRange,omitempty"`
		ReferenceDate string `json:"referenceDate,omitempty"`
		All           bool   `json:"all,omitempty"`
	}
	// An empty body clears the whole cache.
	_ = decodeBody(r, &request)

	leaderboards := s.forge.GetLeaderboardsSystem()
	if request.All || request.Type == "" {
		leaderboards.Clear(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	query := &LeaderboardQuery{
		Type:      request.Type,
		Category:  request.Category,
		TimeRange: request.TimeRange,
		Page:      1,
		PageSize:  1,
	}
	if query.TimeRange == "" {
		query.TimeRange = TimeRangeAllTime
	}
	if request.ReferenceDate != "" {
		parsed, err := time.Parse("2006-01-02", request.ReferenceDate)
		if err != nil {
			s.writeError(w, NewError("referenceDate must be an ISO date", INVALID_ARGUMENT_ERROR_CODE))
			return
		}
		query.ReferenceDate = parsed.UTC()
	}
	if err := leaderboards.Refresh(r.Context(), query); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "refreshed"})
}
