package forge

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *apiServer) handleEventIngest(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EventId    string         `json:"eventId,omitempty"`
		EventType  string         `json:"eventType"`
		UserId     string         `json:"userId"`
		OccurredAt *time.Time     `json:"occurredAt,omitempty"`
		Attributes map[string]any `json:"attributes,omitempty"`
	}
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, err)
		return
	}
	event := &Event{
		Id:         request.EventId,
		EventType:  request.EventType,
		UserId:     request.UserId,
		Attributes: request.Attributes,
	}
	if request.OccurredAt != nil {
		event.OccurredAt = *request.OccurredAt
	}
	accepted, err := s.forge.GetEventsSystem().Ingest(r.Context(), event)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Location", "/api/events/"+accepted.Id)
	writeJSON(w, http.StatusCreated, accepted)
}

func (s *apiServer) handleEventGet(w http.ResponseWriter, r *http.Request) {
	event, err := s.forge.GetEventsSystem().GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

func (s *apiServer) handleEventsByUser(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.forge.GetEventsSystem().ListByUser(r.Context(), chi.URLParam(r, "userId"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "limit": limit, "offset": offset})
}

func (s *apiServer) handleEventsByType(w http.ResponseWriter, r *http.Request) {
	limit, offset, err := pageParams(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events, err := s.forge.GetEventsSystem().ListByType(r.Context(), chi.URLParam(r, "eventType"), limit, offset)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "limit": limit, "offset": offset})
}

func (s *apiServer) handleEventCatalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"eventTypes": s.forge.GetEventsSystem().Catalog(r.Context()),
	})
}

func (s *apiServer) handleDryRun(w http.ResponseWriter, r *http.Request) {
	var request struct {
		EventId    string         `json:"eventId,omitempty"`
		EventType  string         `json:"eventType"`
		UserId     string         `json:"userId"`
		OccurredAt *time.Time     `json:"occurredAt,omitempty"`
		Attributes map[string]any `json:"attributes,omitempty"`
	}
	if err := decodeBody(r, &request); err != nil {
		s.writeError(w, err)
		return
	}
	event := &Event{
		Id:         request.EventId,
		EventType:  request.EventType,
		UserId:     request.UserId,
		Attributes: request.Attributes,
	}
	if request.OccurredAt != nil {
		event.OccurredAt = *request.OccurredAt
	}
	trace, err := s.forge.GetSandboxSystem().DryRun(r.Context(), event)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, trace)
}

func pageParams(r *http.Request) (limit, offset int, err error) {
	limit, err = queryInt(r, "limit", 100, 1, 1000)
	if err != nil {
		return 0, 0, err
	}
	offset, err = queryInt(r, "offset", 0, 0, 0)
	if err != nil {
		return 0, 0, err
	}
	return limit, offset, nil
}
