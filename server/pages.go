package server

import (
	"bytes"
	"embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"net/http"

	"constellationFinder/core"
	"constellationFinder/logging"
)

//go:embed templates/*.html
var templateFS embed.FS

const flashCookie = "flash"

type pageData struct {
	Title  string
	Flash  string
	Result *core.UploadResult
}

type pageRenderer struct {
	pages map[string]*template.Template
}

func newPageRenderer() (*pageRenderer, error) {
	pr := &pageRenderer{pages: map[string]*template.Template{}}
	for _, name := range []string{"index.html", "upload.html", "result.html"} {
		t, err := template.New("base.html").Funcs(template.FuncMap{
			"pct": func(f float64) string { return fmt.Sprintf("%.1f%%", f*100) },
		}).ParseFS(templateFS, "templates/base.html", "templates/"+name)
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		pr.pages[name] = t
	}
	return pr, nil
}

// render 先写入缓冲区，模板出错时不会输出半个页面
func (p *pageRenderer) render(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	t, ok := p.pages[name]
	if !ok {
		http.Error(w, "page not found", http.StatusNotFound)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "base.html", data); err != nil {
		logging.Ctx(r.Context()).Error().Err(err).Str("page", name).Msg("render failed")
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func setFlash(w http.ResponseWriter, msg string) {
	http.SetCookie(w, &http.Cookie{
		Name:     flashCookie,
		Value:    base64.RawURLEncoding.EncodeToString([]byte(msg)),
		Path:     "/",
		MaxAge:   60,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// popFlash reads and clears the flash cookie.
func popFlash(w http.ResponseWriter, r *http.Request) string {
	c, err := r.Cookie(flashCookie)
	if err != nil {
		return ""
	}
	http.SetCookie(w, &http.Cookie{Name: flashCookie, Path: "/", MaxAge: -1})
	msg, err := base64.RawURLEncoding.DecodeString(c.Value)
	if err != nil {
		return ""
	}
	return string(msg)
}

func (s *Server) indexPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, "index.html", pageData{Title: "Constellation Finder", Flash: popFlash(w, r)})
}

func (s *Server) uploadPage(w http.ResponseWriter, r *http.Request) {
	s.pages.render(w, r, "upload.html", pageData{Title: "Upload a Sky Photo", Flash: popFlash(w, r)})
}
