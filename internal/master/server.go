package master

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"uptimefleet/internal/domain"
	"uptimefleet/internal/middleware"
)

// Saver receives snapshots for durable persistence (debounced downstream).
type Saver interface {
	Save(domain.StorageSnapshot)
}

// Server is the coordinator's HTTP surface: heartbeat/report ingestion,
// service assignment, and read endpoints.
type Server struct {
	Logger *zap.Logger
	Engine *Engine
	Slaves *SlaveRegistry
	Hub    *Hub
	Store  Saver
	APIKey string

	// Client for pushing assignments to slaves.
	Client *http.Client

	now func() time.Time
}

func NewServer(logger *zap.Logger, engine *Engine, slaves *SlaveRegistry, hub *Hub, store Saver, apiKey string) *Server {
	return &Server{
		Logger: logger,
		Engine: engine,
		Slaves: slaves,
		Hub:    hub,
		Store:  store,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 10 * time.Second},
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(cors.AllowAll().Handler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Browsers cannot set headers on the upgrade request, so /ws also
	// accepts the key as a query parameter.
	r.Get("/ws", s.handleWS)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.RequireKey(s.APIKey))
		api.Use(middleware.RateLimit(600, 120))

		api.Post("/heartbeat", s.handleHeartbeat)
		api.Post("/report", s.handleReport)

		api.Post("/services", s.handleAddService)
		api.Delete("/services/{id}", s.handleRemoveService)
		api.Get("/services", s.handleListServices)
		api.Get("/services/{id}", s.handleGetService)

		api.Get("/slaves", s.handleListSlaves)
	})

	return r
}

func (s *Server) handleHeartbeat(w http.ResponseWriter, r *http.Request) {
	var hb domain.Heartbeat
	if err := json.NewDecoder(r.Body).Decode(&hb); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if hb.SlaveID == "" {
		hb.SlaveID = r.Header.Get("X-Slave-ID")
	}
	if hb.SlaveName == "" {
		hb.SlaveName = r.Header.Get("X-Slave-Name")
	}
	if hb.SlaveID == "" {
		writeError(w, http.StatusBadRequest, "slaveId is required")
		return
	}

	now := s.now()
	missing := s.Slaves.Observe(hb, now)

	// The master's assignment is authoritative: anything assigned but not
	// reported gets re-pushed (the slave likely restarted).
	if len(missing) > 0 {
		if sl, ok := s.Slaves.Get(hb.SlaveID, now); ok {
			for _, serviceID := range missing {
				if cfg, ok := s.Engine.Config(serviceID); ok {
					go s.pushAssignment(sl, cfg)
				}
			}
		}
	}

	s.Logger.Debug("heartbeat_observed",
		zap.String("slave_id", hb.SlaveID),
		zap.Int("reported", len(hb.Services)),
		zap.Int("repushed", len(missing)),
	)
	s.persist()
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	var rep domain.Report
	if err := json.NewDecoder(r.Body).Decode(&rep); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if rep.ServiceID == "" {
		writeError(w, http.StatusBadRequest, "serviceId is required")
		return
	}

	st, err := s.Engine.Apply(rep.MonitoringResult, s.now())
	if err != nil {
		if errors.Is(err, ErrUnknownService) {
			// Removed or never registered; the in-flight result is dropped.
			writeError(w, http.StatusNotFound, "unknown service id")
			return
		}
		s.Logger.Error("report_apply_failed", zap.String("service_id", rep.ServiceID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not apply result")
		return
	}

	s.Logger.Debug("report_ingested",
		zap.String("service_id", rep.ServiceID),
		zap.String("slave_id", rep.SlaveID),
		zap.Bool("success", rep.Success),
		zap.Float64("duration_ms", rep.Duration),
	)

	if s.Hub != nil {
		s.Hub.Broadcast(st)
	}
	s.persist()
	writeJSON(w, http.StatusOK, st)
}

type addServicePayload struct {
	domain.ServiceConfig
	SlaveID string `json:"slaveId,omitempty"`
}

func (s *Server) handleAddService(w http.ResponseWriter, r *http.Request) {
	var p addServicePayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := domain.Validate(p.ServiceConfig); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	now := s.now()
	var target domain.SlaveStatus
	if p.SlaveID != "" {
		sl, ok := s.Slaves.Get(p.SlaveID, now)
		if !ok || !sl.IsActive {
			writeError(w, http.StatusServiceUnavailable, "requested slave is not active")
			return
		}
		target = sl
	} else {
		sl, ok := s.Slaves.PickActive(now)
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "no active slave available")
			return
		}
		target = sl
	}

	st, err := s.Engine.Register(p.ServiceConfig, now)
	if err != nil {
		if errors.Is(err, ErrDuplicateService) {
			writeError(w, http.StatusConflict, "service id already registered")
			return
		}
		writeError(w, http.StatusInternalServerError, "could not register service")
		return
	}

	if err := s.pushAssignment(target, p.ServiceConfig); err != nil {
		s.Engine.Remove(p.ID)
		writeError(w, http.StatusBadGateway, "could not hand service to slave")
		return
	}

	s.Slaves.Assign(target.ID, p.ID)
	s.Engine.SetAssignment(p.ID, []string{target.ID})
	st.AssignedSlaves = []string{target.ID}

	s.Logger.Info("service_assigned",
		zap.String("service_id", p.ID),
		zap.String("slave_id", target.ID),
	)
	s.persist()
	writeJSON(w, http.StatusCreated, st)
}

func (s *Server) handleRemoveService(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !s.Engine.Remove(id) {
		writeError(w, http.StatusNotFound, "unknown service id")
		return
	}

	for _, sl := range s.Slaves.Unassign(id) {
		go s.pushRemoval(sl, id)
	}

	s.Logger.Info("service_deleted", zap.String("service_id", id))
	s.persist()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Engine.Statuses())
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	st, ok := s.Engine.Status(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, http.StatusNotFound, "unknown service id")
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handleListSlaves(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Slaves.List(s.now()))
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if s.APIKey != "" && r.URL.Query().Get("key") != s.APIKey {
		guarded := middleware.RequireKey(s.APIKey)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s.Hub.ServeHTTP(w, r)
		}))
		guarded.ServeHTTP(w, r)
		return
	}
	s.Hub.ServeHTTP(w, r)
}

// persist hands the current state to the debounced store. Never blocks
// ingestion; save failures surface in the store's own logs.
func (s *Server) persist() {
	if s.Store == nil {
		return
	}
	configs, statuses := s.Engine.Export()
	s.Store.Save(domain.StorageSnapshot{
		ServiceConfigs:  configs,
		ServiceStatuses: statuses,
		SlaveStatuses:   s.Slaves.Export(s.now()),
	})
}

func (s *Server) pushAssignment(sl domain.SlaveStatus, cfg domain.ServiceConfig) error {
	body, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	url := fmt.Sprintf("http://%s:%d/service", sl.Host, sl.Port)
	err = s.slaveCall(http.MethodPost, url, body)
	if err != nil {
		s.Logger.Warn("assignment_push_failed",
			zap.String("service_id", cfg.ID),
			zap.String("slave_id", sl.ID),
			zap.Error(err),
		)
	}
	return err
}

func (s *Server) pushRemoval(sl domain.SlaveStatus, serviceID string) {
	url := fmt.Sprintf("http://%s:%d/service/%s", sl.Host, sl.Port, serviceID)
	if err := s.slaveCall(http.MethodDelete, url, nil); err != nil {
		s.Logger.Warn("removal_push_failed",
			zap.String("service_id", serviceID),
			zap.String("slave_id", sl.ID),
			zap.Error(err),
		)
	}
}

func (s *Server) slaveCall(method, url string, body []byte) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.APIKey)

	resp, err := s.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	// 409 means the slave already runs the service; that's converged.
	if resp.StatusCode/100 != 2 && resp.StatusCode != http.StatusConflict {
		return fmt.Errorf("slave returned %s", resp.Status)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
