package forge

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// apiServer adapts HTTP requests onto the engine systems.
type apiServer struct {
	forge   Forge
	logger  *zap.Logger
	metrics *Metrics
}

// NewRouter builds the full HTTP surface of the engine.
func NewRouter(f Forge, logger *zap.Logger, metrics *Metrics) http.Handler {
	s := &apiServer{forge: f, logger: logger, metrics: metrics}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
	r.Get("/api/status", s.handleStatus)

	r.Route("/api/events", func(r chi.Router) {
		r.Post("/", s.handleEventIngest)
		r.Get("/catalog", s.handleEventCatalog)
		r.Post("/sandbox/dry-run", s.handleDryRun)
		r.Get("/user/{userId}", s.handleEventsByUser)
		r.Get("/type/{eventType}", s.handleEventsByType)
		r.Get("/{eventId}", s.handleEventGet)
	})

	r.Route("/api/users/{userId}", func(r chi.Router) {
		r.Get("/state", s.handleUserState)
		r.Get("/points", s.handleUserPoints)
		r.Get("/points/{category}", s.handleUserPoints)
		r.Get("/badges", s.handleUserBadges)
		r.Get("/trophies", s.handleUserTrophies)
		r.Get("/levels", s.handleUserLevels)
		r.Get("/levels/{category}", s.handleUserLevels)
		r.Get("/rewards/history", s.handleUserRewardHistory)
	})

	r.Route("/api/rules", func(r chi.Router) {
		r.Get("/", s.handleRulesList)
		r.Post("/", s.handleRuleCreate)
		r.Get("/active", s.handleRulesActive)
		r.Get("/trigger/{eventType}", s.handleRulesByTrigger)
		r.Get("/{id}", s.handleRuleGet)
		r.Put("/{id}", s.handleRuleUpdate)
		r.Delete("/{id}", s.handleRuleDelete)
		r.Post("/{id}/activate", s.handleRuleActivate)
		r.Post("/{id}/deactivate", s.handleRuleDeactivate)
	})

	r.Route("/api/leaderboards", func(r chi.Router) {
		r.Get("/", s.handleLeaderboard)
		r.Post("/refresh", s.handleLeaderboardRefresh)
		r.Get("/points/{category}", s.handleLeaderboardPoints)
		r.Get("/levels/{category}", s.handleLeaderboardLevels)
		r.Get("/badges", s.handleLeaderboardBadges)
		r.Get("/trophies", s.handleLeaderboardTrophies)
		r.Get("/user/{userId}/rank", s.handleLeaderboardUserRank)
		r.Get("/user/{userId}/context", s.handleLeaderboardUserContext)
	})

	r.Route("/api/wallets", func(r chi.Router) {
		r.Post("/spend", s.handleWalletSpend)
		r.Post("/adjust", s.handleWalletAdjust)
		r.Post("/transfers", s.handleTransferCreate)
		r.Get("/transfers/{id}", s.handleTransferGet)
		r.Post("/transfers/{id}/execute", s.handleTransferExecute)
		r.Post("/transfers/{id}/cancel", s.handleTransferCancel)
		r.Get("/{userId}", s.handleWalletsList)
		r.Get("/{userId}/{category}", s.handleWalletGet)
		r.Get("/{userId}/{category}/transactions", s.handleWalletTransactions)
	})

	return r
}

func (s *apiServer) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		duration := time.Since(start)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", duration))
		if s.metrics != nil {
			route := chi.RouteContext(r.Context()).RoutePattern()
			if route == "" {
				route = r.URL.Path
			}
			s.metrics.RequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(ww.Status())).Inc()
			s.metrics.RequestDuration.WithLabelValues(r.Method, route).Observe(duration.Seconds())
		}
	})
}

func (s *apiServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	processor := s.forge.Processor()
	writeJSON(w, http.StatusOK, map[string]any{
		"processedEventCount": processor.ProcessedEventCount(),
		"isProcessing":        processor.IsProcessing(),
		"isRunning":           processor.IsRunning(),
		"queueDepth":          s.forge.GetEventsSystem().QueueDepth(),
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *apiServer) writeError(w http.ResponseWriter, err error) {
	status := httpStatus(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decodeBody(r *http.Request, into any) error {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		return ErrPayloadDecode
	}
	return nil
}

// queryInt parses an integer query parameter with a default and bounds.
func queryInt(r *http.Request, key string, fallback, min, max int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, NewError(key+" must be an integer", INVALID_ARGUMENT_ERROR_CODE)
	}
	if n < min || (max > 0 && n > max) {
		return 0, NewError(key+" is out of range", INVALID_ARGUMENT_ERROR_CODE)
	}
	return n, nil
}
