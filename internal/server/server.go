package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"kila/internal/auth"
	"kila/internal/config"
	"kila/internal/pipeline"
	"kila/internal/storage"
)

// Server is the thin HTTP layer over the validation pipeline. Handlers
// delegate to the service and storage and keep transport concerns here.
type Server struct {
	cfg     config.Config
	db      *storage.DB
	service *pipeline.ValidationService
	tokens  *auth.Tokens
	log     zerolog.Logger
}

func New(cfg config.Config, db *storage.DB, service *pipeline.ValidationService, log zerolog.Logger) *Server {
	return &Server{
		cfg:     cfg,
		db:      db,
		service: service,
		tokens:  auth.NewTokens(cfg.JWTSecret, cfg.JWTTTLHours),
		log:     log.With().Str("component", "http").Logger(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", s.handleHealth)

		api.Post("/auth/signup", s.handleSignup)
		api.Post("/auth/login", s.handleLogin)

		api.With(s.optionalAuth).Post("/validate", s.handleValidate)

		api.Group(func(protected chi.Router) {
			protected.Use(s.requireAuth)
			protected.Get("/validations", s.handleListValidations)
			protected.Get("/validations/{id}", s.handleGetValidation)
			protected.Delete("/validations/{id}", s.handleDeleteValidation)
			protected.Get("/stats", s.handleStats)
		})
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
