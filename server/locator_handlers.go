package server

import (
	"errors"
	"net/http"
	"strings"

	"constellationFinder/core"
	"constellationFinder/logging"
)

// maxJSONBody 普通 JSON 接口的请求体上限
const maxJSONBody = 64 << 10

func (s *Server) saveLocation(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req core.SaveLocationRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.WriteEnvelope(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	owner := strings.TrimSpace(r.Header.Get(s.cfg.Server.OwnerHeader))
	loc, err := s.narration.SaveLocation(r.Context(), owner, req)
	if err != nil {
		s.writeLocatorError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, core.SaveLocationResponse{
		Status:     "success",
		LocationID: loc.ID,
		Message:    "Location saved successfully",
	})
}

func (s *Server) findConstellations(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req core.FindConstellationsRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.WriteEnvelope(w, http.StatusBadRequest, "Invalid JSON data")
		return
	}

	resp, err := s.narration.FindConstellations(r.Context(), req.LocationID)
	if err != nil {
		s.writeLocatorError(w, r, err)
		return
	}
	core.WriteJSON(w, http.StatusOK, resp)
}

// writeLocatorError 定位接口统一使用 {"status":"error"} 格式
func (s *Server) writeLocatorError(w http.ResponseWriter, r *http.Request, err error) {
	status := core.StatusFor(err)
	switch {
	case errors.Is(err, core.ErrValidation):
		core.WriteEnvelope(w, status, core.UserMessage(err, "Invalid request"))
	case errors.Is(err, core.ErrNotFound):
		core.WriteEnvelope(w, status, "Location not found")
	case errors.Is(err, core.ErrUpstreamUnavailable):
		core.WriteEnvelope(w, status, "Narration service is temporarily unavailable")
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("locator request failed")
		core.WriteEnvelope(w, http.StatusInternalServerError, "Internal server error")
	}
}
