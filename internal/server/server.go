// Package server exposes runs, renders and the edit version chain over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oklog/ulid/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/ivlev/democlip/internal/director"
	"github.com/ivlev/democlip/internal/edits"
	"github.com/ivlev/democlip/internal/logging"
	"github.com/ivlev/democlip/internal/engine"
	"github.com/ivlev/democlip/internal/metrics"
	"github.com/ivlev/democlip/internal/model"
	"github.com/ivlev/democlip/internal/storage"
)

const maxBodyBytes = 1 << 20

// Renderer runs renders in the background. *engine.Compositor implements it.
type Renderer interface {
	Render(ctx context.Context, req engine.RenderRequest) (*engine.Result, error)
	RenderVersion(ctx context.Context, versionID string) (*engine.Result, error)
}

// Server is the HTTP front of the compositor.
type Server struct {
	router    chi.Router
	store     storage.Store
	chain     *edits.Chain
	validator *edits.Validator
	renderer  Renderer
	metrics   *metrics.Metrics
	logger    zerolog.Logger

	// renders bounds concurrently executing pipelines; jobs wait for a slot.
	renders *semaphore.Weighted
	wg      sync.WaitGroup
}

// New wires the routes. maxRenders below 1 means one render at a time.
func New(store storage.Store, chain *edits.Chain, renderer Renderer, m *metrics.Metrics, maxRenders int, logger zerolog.Logger) (*Server, error) {
	validator, err := edits.NewValidator()
	if err != nil {
		return nil, err
	}
	if m == nil {
		m = metrics.NewMetrics()
	}
	if maxRenders < 1 {
		maxRenders = 1
	}

	s := &Server{
		store:     store,
		chain:     chain,
		validator: validator,
		renderer:  renderer,
		metrics:   m,
		logger:    logging.WithComponent(logger, "http"),
		renders:   semaphore.NewWeighted(int64(maxRenders)),
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.observe)

	r.Get("/healthz", s.handleHealthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Post("/runs", s.handleCreateRun)
		r.Route("/runs/{runID}", func(r chi.Router) {
			r.Get("/", s.handleGetRun)
			r.Post("/render", s.handleRender)
			r.Post("/edits", s.handleApplyEdit)
			r.Post("/revert", s.handleRevert)
			r.Get("/versions", s.handleListVersions)
		})
		r.Get("/versions/{versionID}", s.handleGetVersion)
	})
	s.router = r
	return s, nil
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Wait blocks until every background render has returned or ctx is done.
func (s *Server) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// observe logs and times every request under its route pattern.
func (s *Server) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.ObserveHTTP(r.Method, route, status, elapsed)

		event := s.logger.Debug()
		if status >= http.StatusInternalServerError {
			event = s.logger.Error()
		}
		event.Str("method", r.Method).
			Str("route", route).
			Int("status", status).
			Dur("elapsed", elapsed).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("request served")
	})
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := *classify(err)
	apiErr.RequestID = middleware.GetReqID(r.Context())
	status := statusFor(apiErr.Code)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
	}
	writeJSON(w, status, apiErr)
}

func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return newError(CodeBadRequest, "could not read request body")
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return newError(CodeBadRequest, "malformed JSON: "+err.Error())
	}
	return nil
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		s.fail(w, r, newError(CodeUnavailable, "storage unreachable: "+err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type createRunRequest struct {
	ID        string `json:"id"`
	SourceURL string `json:"sourceUrl"`
}

func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if err := decode(r, &req); err != nil {
		s.fail(w, r, err)
		return
	}
	if req.SourceURL == "" {
		s.fail(w, r, newError(CodeBadRequest, "sourceUrl is required"))
		return
	}
	if req.ID == "" {
		req.ID = ulid.Make().String()
	}

	now := time.Now().UTC()
	run := &model.Run{ID: req.ID, SourceURL: req.SourceURL, Status: model.RunQueued, CreatedAt: now, UpdatedAt: now}
	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.fail(w, r, err)
		return
	}
	s.logger.Info().Str("run_id", run.ID).Msg("run registered")
	writeJSON(w, http.StatusCreated, run)
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

type renderRequest struct {
	Sections   []director.AnnotationSection `json:"sections"`
	Operations []json.RawMessage            `json:"operations"`
	Preset     string                       `json:"preset"`
	LinkURL    string                       `json:"linkUrl"`
}

func (s *Server) handleRender(w http.ResponseWriter, r *http.Request) {
	var body renderRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	ops := make([]model.Operation, 0, len(body.Operations))
	for _, raw := range body.Operations {
		op, err := s.validator.Parse(raw)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		ops = append(ops, op)
	}

	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if run.Status != model.RunQueued {
		s.fail(w, r, newError(CodeConflict, "run "+run.ID+" is already "+string(run.Status)))
		return
	}

	req := engine.RenderRequest{
		RunID:         run.ID,
		InputVideoURL: run.SourceURL,
		Sections:      body.Sections,
		Operations:    ops,
		Preset:        body.Preset,
		LinkURL:       body.LinkURL,
	}
	s.background(r.Context(), "render", run.ID, func(ctx context.Context) error {
		_, err := s.renderer.Render(ctx, req)
		return err
	})
	writeJSON(w, http.StatusAccepted, run)
}

type applyEditRequest struct {
	ParentVersionID *string         `json:"parentVersionId"`
	Operation       json.RawMessage `json:"operation"`
}

func (s *Server) handleApplyEdit(w http.ResponseWriter, r *http.Request) {
	var body applyEditRequest
	if err := decode(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if len(body.Operation) == 0 {
		s.fail(w, r, newError(CodeBadRequest, "operation is required"))
		return
	}
	op, err := s.validator.Parse(body.Operation)
	if err != nil {
		s.metrics.ObserveEdit("invalid", err)
		s.fail(w, r, err)
		return
	}

	v, err := s.chain.ApplyEdit(r.Context(), chi.URLParam(r, "runID"), body.ParentVersionID, op)
	s.metrics.ObserveEdit(string(op.Type), err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderVersion(r.Context(), v)
	writeJSON(w, http.StatusAccepted, v)
}

func (s *Server) handleRevert(w http.ResponseWriter, r *http.Request) {
	v, err := s.chain.Revert(r.Context(), chi.URLParam(r, "runID"))
	s.metrics.ObserveEdit("revert", err)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.renderVersion(r.Context(), v)
	writeJSON(w, http.StatusAccepted, v)
}

func (s *Server) renderVersion(ctx context.Context, v *model.Version) {
	id := v.ID
	s.background(ctx, "render_version", v.RunID, func(ctx context.Context) error {
		_, err := s.renderer.RenderVersion(ctx, id)
		return err
	})
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.chain.ListVersions(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"versions": versions})
}

type versionResponse struct {
	*model.Version
	EffectiveOperations []model.Operation `json:"effectiveOperations"`
}

func (s *Server) handleGetVersion(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "versionID")
	v, err := s.chain.Get(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ops, err := s.chain.Resolve(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, versionResponse{Version: v, EffectiveOperations: ops})
}

// background runs fn once a render slot is free. The job outlives the
// request, so it runs on a context that is never cancelled by the client.
func (s *Server) background(parent context.Context, kind, runID string, fn func(context.Context) error) {
	ctx := context.WithoutCancel(parent)
	logger := s.logger.With().Str("job", kind).Str("run_id", runID).Logger()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.renders.Acquire(ctx, 1); err != nil {
			logger.Error().Err(err).Msg("no render slot")
			return
		}
		defer s.renders.Release(1)

		if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("background job failed")
		}
	}()
}
