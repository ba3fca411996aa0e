package slave

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"uptimefleet/internal/domain"
	"uptimefleet/internal/middleware"
)

// Server is the slave's operator/master-facing HTTP surface.
type Server struct {
	Logger   *zap.Logger
	Registry *Registry
	APIKey   string
}

func NewServer(logger *zap.Logger, registry *Registry, apiKey string) *Server {
	return &Server{Logger: logger, Registry: registry, APIKey: apiKey}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(g chi.Router) {
		g.Use(middleware.RequireKey(s.APIKey))
		g.Post("/service", s.handleAddService)
		g.Delete("/service/{id}", s.handleRemoveService)
		g.Get("/services", s.handleListServices)
	})

	return r
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	var cfg domain.ServiceConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := domain.Validate(cfg); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.Registry.Add(cfg); err != nil {
		if errors.Is(err, ErrDuplicateService) {
			writeError(w, http.StatusConflict, "service id already registered")
			return
		}
		s.Logger.Error("service_add_failed", zap.String("service_id", cfg.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not register service")
		return
	}

	writeJSON(w, http.StatusCreated, cfg)
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.Registry.Remove(id); err != nil {
		if errors.Is(err, ErrUnknownService) {
			writeError(w, http.StatusNotFound, "unknown service id")
			return
		}
		s.Logger.Error("service_remove_failed", zap.String("service_id", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not remove service")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Registry.List())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
