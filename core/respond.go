package core

import (
	"net/http"

	"github.com/goccy/go-json"
)

// WriteJSON 写 JSON 响应，不转义 HTML 字符
func WriteJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.MarshalWithOption(v, json.DisableHTMLEscape())
	if err != nil {
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteError writes {"error": msg}.
func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// WriteEnvelope writes the {"status":"error","message":...} envelope used by the locator endpoints.
func WriteEnvelope(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, ErrorEnvelope{Status: "error", Message: msg})
}

// DecodeJSON 解码请求体
func DecodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
