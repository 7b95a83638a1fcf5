package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"constellationFinder/config"
	"constellationFinder/processors"
	"constellationFinder/storage"
)

// Deps 路由依赖的全部服务
type Deps struct {
	Config    *config.Config
	Store     storage.Store
	Narration *processors.NarrationService
	Annotator *processors.Annotator
	Throttle  *processors.FrameThrottle
	Gate      *processors.InferenceGate
	Info      *processors.InfoService
	Assistant *processors.Assistant
	Providers *processors.Providers
}

// Server holds the HTTP handlers.
type Server struct {
	cfg        *config.Config
	store      storage.Store
	narration  *processors.NarrationService
	annotator  *processors.Annotator
	throttle   *processors.FrameThrottle
	gate       *processors.InferenceGate
	info       *processors.InfoService
	assistant  *processors.Assistant
	pages      *pageRenderer
	monitoring *MonitoringHandlers
}

func New(d Deps) (*Server, error) {
	if d.Config == nil || d.Store == nil || d.Narration == nil || d.Annotator == nil ||
		d.Info == nil || d.Assistant == nil {
		return nil, fmt.Errorf("server: missing dependency")
	}
	if d.Throttle == nil {
		d.Throttle = processors.NewFrameThrottleFrom(d.Config)
	}
	if d.Gate == nil {
		d.Gate = processors.NewInferenceGate(d.Config.Pipeline.MaxInflightFrames)
	}
	pages, err := newPageRenderer()
	if err != nil {
		return nil, err
	}
	return &Server{
		cfg:        d.Config,
		store:      d.Store,
		narration:  d.Narration,
		annotator:  d.Annotator,
		throttle:   d.Throttle,
		gate:       d.Gate,
		info:       d.Info,
		assistant:  d.Assistant,
		pages:      pages,
		monitoring: NewMonitoringHandlers(d.Store, d.Providers, d.Throttle, d.Gate),
	}, nil
}

// Router builds the chi route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDWithLogging())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.Server.CORSOrigins,
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID", s.cfg.Server.OwnerHeader},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))
	r.Use(PrometheusMetrics)
	r.Use(AccessLog)

	limit := s.rateLimit()

	// 页面
	r.Get("/", s.indexPage)
	r.Get("/upload/", s.uploadPage)

	r.Route("/locator", func(r chi.Router) {
		r.Use(limit)
		r.Post("/save-location/", s.saveLocation)
		r.Post("/find-constellations/", s.findConstellations)
	})

	// 帧接口由 FrameThrottle 和 InferenceGate 限流
	r.Post("/detect/process/", s.processFrame)
	r.With(limit).Post("/process-upload/", s.processUpload)
	r.With(limit).Post("/get-constellation-info/", s.constellationInfo)

	r.Route("/chatbot", func(r chi.Router) {
		r.Use(limit)
		r.Post("/api/ask/", s.ask)
		r.Post("/speech_to_text/", s.speechToText)
		r.Post("/text_to_speech/", s.textToSpeech)
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(limit)
		r.Get("/locations", s.listLocations)
		r.Delete("/locations/{id}", s.deleteLocation)
		r.Get("/narrations", s.listNarrations)
		r.Get("/narrations/{id}/similar", s.similarNarrations)
	})

	r.Get("/health", s.monitoring.HealthCheckHandler)
	r.Get("/stats", s.monitoring.StatsHandler)
	r.Handle("/metrics", promhttp.Handler())

	return r
}

func (s *Server) rateLimit() func(http.Handler) http.Handler {
	if s.cfg.Server.RateLimit <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(
		s.cfg.Server.RateLimit,
		time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByRealIP),
	)
}

// NewHTTPServer wraps the router with the configured timeouts.
func (s *Server) NewHTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.cfg.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}
}
