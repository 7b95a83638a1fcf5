package server

import (
	"encoding/base64"
	"errors"
	"net/http"

	"constellationFinder/core"
	"constellationFinder/logging"
)

const maxAudioUpload = 25 << 20

func (s *Server) ask(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req core.AskRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.WriteError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	reply, err := s.assistant.Ask(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			core.WriteError(w, http.StatusBadRequest, core.UserMessage(err, "Invalid request"))
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("ask failed")
		core.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	core.WriteJSON(w, http.StatusOK, core.AskResponse{Reply: reply, Success: true})
}

func (s *Server) speechToText(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxAudioUpload)
	file, header, err := r.FormFile("audio")
	if err != nil {
		if formErrorStatus(err) == http.StatusRequestEntityTooLarge {
			core.WriteError(w, http.StatusRequestEntityTooLarge, "Audio file too large")
			return
		}
		core.WriteError(w, http.StatusBadRequest, "No audio file provided")
		return
	}
	defer file.Close()
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	res, err := s.assistant.SpeechToText(r.Context(), file, header.Filename, r.FormValue("language"))
	switch {
	case err == nil:
		core.WriteJSON(w, http.StatusOK, core.SpeechToTextResponse{
			Transcript:       res.Text,
			DetectedLanguage: res.Language,
			Success:          true,
		})
	case errors.Is(err, core.ErrValidation):
		core.WriteError(w, http.StatusBadRequest, core.UserMessage(err, "Invalid audio"))
	case errors.Is(err, core.ErrUpstreamUnavailable):
		logging.Ctx(r.Context()).Warn().Err(err).Msg("speech recognition unavailable")
		core.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error":   "Speech recognition service is temporarily unavailable. Please try again.",
			"details": err.Error(),
		})
	default:
		logging.Ctx(r.Context()).Error().Err(err).Msg("speech to text failed")
		core.WriteError(w, http.StatusInternalServerError, "Failed to process audio")
	}
}

func (s *Server) textToSpeech(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req core.TextToSpeechRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.WriteError(w, http.StatusBadRequest, "Invalid JSON in request body")
		return
	}
	audio, err := s.assistant.TextToSpeech(r.Context(), req.Text, req.Language)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			core.WriteError(w, http.StatusBadRequest, core.UserMessage(err, "Invalid request"))
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("text to speech failed")
		core.WriteError(w, http.StatusInternalServerError, "Failed to generate speech")
		return
	}
	core.WriteJSON(w, http.StatusOK, core.TextToSpeechResponse{
		AudioData: base64.StdEncoding.EncodeToString(audio),
		Success:   true,
	})
}
