// Package api provides the HTTP server for viralsim.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/nvandessel/viralsim/internal/config"
	"github.com/nvandessel/viralsim/internal/logging"
	"github.com/nvandessel/viralsim/internal/network"
	"github.com/nvandessel/viralsim/internal/ratelimit"
	"github.com/nvandessel/viralsim/internal/service"
	"github.com/nvandessel/viralsim/internal/visualization"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 32 << 20

// Server is the viralsim HTTP API server.
type Server struct {
	svc     *service.Service
	cfg     config.ServerConfig
	version string
	logger  *slog.Logger
	limiter *ratelimit.Limiter
}

// NewServer creates a new API server over svc.
func NewServer(svc *service.Service, cfg config.ServerConfig, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		svc:     svc,
		cfg:     cfg,
		version: version,
		logger:  logger,
		limiter: ratelimit.PerMinute(cfg.SimulationsPerMinute, cfg.SimulationBurst),
	}
}

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout()))
	r.Use(s.logRequests)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status":  "ok",
			"version": s.version,
		})
	})

	r.Route("/v1", func(r chi.Router) {
		r.With(s.limiter.Middleware).Post("/simulations", s.handleSimulate)
		r.Post("/projections", s.handleProject)
		r.Get("/social-proof", s.handleSocialProof)
		r.Get("/config", s.handleGetConfig)
		r.Patch("/config", s.handlePatchConfig)
	})

	if rec := s.svc.Recorder(); rec != nil {
		r.Handle("/metrics", rec.Handler())
	}

	return r
}

// ListenAndServe serves the API on the configured address until ctx is
// cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api listening", "addr", s.cfg.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	s.logger.Info("api shutting down")
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) requestTimeout() time.Duration {
	if s.cfg.WriteTimeout > 0 {
		return s.cfg.WriteTimeout
	}
	return time.Minute
}

// simulateRequest extends the service request with a rendering format.
type simulateRequest struct {
	service.SimulateRequest

	// Format "dot" returns the referral graph as Graphviz text instead of JSON.
	Format string `json:"format,omitempty"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req simulateRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if req.Format == string(visualization.FormatDOT) {
		req.IncludeGraph = true
	}
	resp, err := s.svc.Simulate(r.Context(), req.SimulateRequest)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	switch req.Format {
	case "", string(visualization.FormatJSON):
		writeJSON(w, http.StatusOK, resp)
	case string(visualization.FormatDOT):
		w.Header().Set("Content-Type", "text/vnd.graphviz; charset=utf-8")
		w.Header().Set("X-Run-Id", resp.Run.RunID)
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, visualization.RenderDOT(resp.Graph))
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q (valid: json, dot)", req.Format))
	}
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	var req service.ProjectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	resp, err := s.svc.Project(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSocialProof(w http.ResponseWriter, r *http.Request) {
	size, err := queryInt(r, "network_size", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	connections, err := queryFloat(r, "connections", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cohort, err := queryInt(r, "cohort_size", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	target, err := queryFloat(r, "target_rate", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.SocialProof(service.SocialProofRequest{
		NetworkSize: size,
		Connections: connections,
		CohortSize:  cohort,
		TargetRate:  target,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Config())
}

func (s *Server) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	var patch network.ConfigPatch
	if err := decodeBody(w, r, &patch); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cfg, err := s.svc.UpdateConfig(patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// writeServiceError maps caller errors to 400 and everything else to 500.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrInvalidRequest) || errors.Is(err, network.ErrInvalidConfig) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Error("request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// logRequests logs each request at debug level with its request id.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func queryFloat(r *http.Request, key string, def float64) (float64, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return v, nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    http.StatusText(status),
		},
	})
}
