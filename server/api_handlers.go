package server

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/storage"
)

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	limit := storage.ClampLimit(queryInt(r, "limit", 0))
	locs, err := s.narration.ListLocations(r.Context(), limit)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"locations": locs, "count": len(locs)})
}

func (s *Server) listNarrations(w http.ResponseWriter, r *http.Request) {
	limit := storage.ClampLimit(queryInt(r, "limit", 0))
	locationID := int64(queryInt(r, "location_id", 0))
	qs, err := s.narration.ListNarrations(r.Context(), locationID, limit)
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"narrations": qs, "count": len(qs)})
}

func (s *Server) deleteLocation(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		core.WriteError(w, http.StatusBadRequest, "invalid location id")
		return
	}
	if err := s.narration.DeleteLocation(r.Context(), id); err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) similarNarrations(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		core.WriteError(w, http.StatusBadRequest, "invalid narration id")
		return
	}
	similar, err := s.narration.SimilarNarrations(r.Context(), id, queryInt(r, "k", 5))
	if err != nil {
		s.writeAPIError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, map[string]any{"query_id": id, "similar": similar})
}

func (s *Server) writeAPIError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.StatusFor(err)
	switch {
	case errors.Is(err, core.ErrUnsupported):
		core.WriteError(w, status, "similarity search requires the postgres store")
	case storage.IsNotFound(err):
		core.WriteError(w, status, "not found")
	case errors.Is(err, core.ErrValidation):
		core.WriteError(w, status, core.UserMessage(err, "invalid request"))
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("api request failed")
		core.WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}
