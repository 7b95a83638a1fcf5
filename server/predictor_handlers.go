package server

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"constellationFinder/core"
	"constellationFinder/logging"
	"constellationFinder/metrics"
	"constellationFinder/processors"
)

// multipartOverhead 表单边界和其他字段的额外空间
const multipartOverhead = 1 << 20

// processFrame 实时帧标注，被节流或推理繁忙时返回 204 丢帧
func (s *Server) processFrame(w http.ResponseWriter, r *http.Request) {
	if !s.throttle.Allow() {
		metrics.RecordFrame(metrics.FrameThrottled)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if !s.gate.TryAcquire() {
		metrics.RecordFrame(metrics.FrameBusy)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	defer s.gate.Release()

	limit := s.cfg.Pipeline.StreamMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	file, _, err := r.FormFile("frame")
	if err != nil {
		metrics.RecordFrame(metrics.FrameRejected)
		w.WriteHeader(formErrorStatus(err))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		metrics.RecordFrame(metrics.FrameRejected)
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	out, err := s.annotator.ProcessFrame(r.Context(), data)
	if err != nil {
		status := core.StatusFor(err)
		if status >= 500 {
			// upstream failures are plain 500s on this endpoint
			status = http.StatusInternalServerError
			metrics.RecordFrame(metrics.FrameFailed)
			logging.Ctx(r.Context()).Warn().Err(err).Msg("frame processing failed")
		} else {
			metrics.RecordFrame(metrics.FrameRejected)
		}
		w.WriteHeader(status)
		return
	}

	metrics.RecordFrame(metrics.FrameProcessed)
	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out)
}

// formErrorStatus distinguishes an oversized body from a missing field.
func formErrorStatus(err error) int {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) || strings.Contains(err.Error(), "request body too large") {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// processUpload 批量上传；浏览器走 flash + 303，API 客户端走 JSON
func (s *Server) processUpload(w http.ResponseWriter, r *http.Request) {
	fail := func(status int, msg string) {
		if wantsJSON(r) {
			core.WriteError(w, status, msg)
			return
		}
		setFlash(w, msg)
		http.Redirect(w, r, "/upload/", http.StatusSeeOther)
	}

	limit := s.cfg.Pipeline.BatchMaxBytes
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		if formErrorStatus(err) == http.StatusRequestEntityTooLarge {
			fail(http.StatusRequestEntityTooLarge, processors.MsgFileTooLarge)
			return
		}
		fail(http.StatusBadRequest, processors.MsgNoImage)
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("image")
	if err != nil {
		fail(http.StatusBadRequest, processors.MsgNoImage)
		return
	}
	defer file.Close()

	res, err := s.annotator.ProcessUpload(r.Context(), uploadInput(r, file, header))
	if err != nil {
		var ve *core.ValidationError
		if errors.As(err, &ve) {
			fail(core.StatusFor(err), ve.Message)
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Str("file", header.Filename).Msg("upload processing failed")
		fail(http.StatusInternalServerError, processors.MsgProcessingFail)
		return
	}

	if wantsJSON(r) {
		core.WriteJSON(w, http.StatusOK, res)
		return
	}
	s.pages.render(w, r, "result.html", pageData{Title: "Analysis Result", Result: res})
}

func uploadInput(r *http.Request, file multipart.File, header *multipart.FileHeader) processors.UploadInput {
	return processors.UploadInput{
		File:        file,
		Filename:    header.Filename,
		Size:        header.Size,
		Location:    strings.TrimSpace(r.FormValue("location")),
		CaptureTime: strings.TrimSpace(r.FormValue("capture_time")),
	}
}

func (s *Server) constellationInfo(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	var req core.ConstellationInfoRequest
	if err := core.DecodeJSON(r, &req); err != nil {
		core.WriteError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}
	res, err := s.info.Lookup(r.Context(), req.ConstellationName)
	if err != nil {
		if errors.Is(err, core.ErrValidation) {
			core.WriteError(w, http.StatusBadRequest, core.UserMessage(err, "Invalid request"))
			return
		}
		logging.Ctx(r.Context()).Error().Err(err).Msg("constellation info failed")
		core.WriteError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	core.WriteJSON(w, http.StatusOK, res)
}
