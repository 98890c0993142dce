package forge

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *apiServer) handleRulesList(w http.ResponseWriter, r *http.Request) {
	rules, err := s.forge.GetRulesSystem().ListRules(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *apiServer) handleRulesActive(w http.ResponseWriter, r *http.Request) {
	rules, err := s.forge.GetRulesSystem().ListActiveRules(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *apiServer) handleRulesByTrigger(w http.ResponseWriter, r *http.Request) {
	rules, err := s.forge.GetRulesSystem().ListRulesByTrigger(r.Context(), chi.URLParam(r, "eventType"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func (s *apiServer) handleRuleGet(w http.ResponseWriter, r *http.Request) {
	rule, err := s.forge.GetRulesSystem().GetRule(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}

func (s *apiServer) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	rule := &Rule{}
	if err := decodeBody(r, rule); err != nil {
		s.writeError(w, err)
		return
	}
	created, err := s.forge.GetRulesSystem().CreateRule(r.Context(), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/rules/"+created.Id)
	writeJSON(w, http.StatusCreated, created)
}

func (s *apiServer) handleRuleUpdate(w http.ResponseWriter, r *http.Request) {
	rule := &Rule{}
	if err := decodeBody(r, rule); err != nil {
		s.writeError(w, err)
		return
	}
	rule.Id = chi.URLParam(r, "id")
	updated, err := s.forge.GetRulesSystem().UpdateRule(r.Context(), rule)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *apiServer) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.forge.GetRulesSystem().DeleteRule(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleRuleActivate(w http.ResponseWriter, r *http.Request) {
	s.setRuleActive(w, r, true)
}

func (s *apiServer) handleRuleDeactivate(w http.ResponseWriter, r *http.Request) {
	s.setRuleActive(w, r, false)
}

func (s *apiServer) setRuleActive(w http.ResponseWriter, r *http.Request, active bool) {
	rule, err := s.forge.GetRulesSystem().SetRuleActive(r.Context(), chi.URLParam(r, "id"), active)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rule)
}
