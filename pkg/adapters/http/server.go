package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/baton/internal/logging"
	"github.com/aretw0/baton/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// maxBody bounds request bodies. Stage requests carry routing hints only.
const maxBody = 1 << 20

// Pipeline is what the entry points drive.
type Pipeline interface {
	Invoke(ctx context.Context, stage string, req domain.InvocationRequest) (domain.Response, error)
	Trigger(ctx context.Context, req domain.TriggerRequest) (domain.Response, error)
	Graph() *domain.StageGraph
}

// Server exposes a pipeline over HTTP the way a function gateway would:
// every stage is reachable at /function/<stage>.
type Server struct {
	Pipeline Pipeline
	// Stages restricts the served stages. Empty serves every stage of the graph.
	Stages  map[string]bool
	logger  *slog.Logger
	metrics http.Handler
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// WithStages restricts the server to the named stages (single-stage deployments).
func WithStages(names ...string) Option {
	return func(s *Server) {
		if len(names) == 0 {
			return
		}
		s.Stages = make(map[string]bool, len(names))
		for _, n := range names {
			s.Stages[n] = true
		}
	}
}

// NewHandler creates the HTTP handler for the pipeline. Requests to /function/* are
// validated against the embedded OpenAPI document.
func NewHandler(p Pipeline, opts ...Option) (http.Handler, error) {
	s := &Server{
		Pipeline: p,
		logger:   logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	doc, err := LoadSpec(context.Background())
	if err != nil {
		return nil, err
	}
	validate, err := validator(doc, s.logger)
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.GetHealth)
	r.Get("/graph", s.GetGraph)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(Spec())
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Group(func(r chi.Router) {
		r.Use(validate)
		r.Get("/function/{stage}", s.Function)
		r.Post("/function/{stage}", s.Function)
	})
	return r, nil
}

// Function handles GET and POST /function/{stage}. A POST to the trigger function
// hands the trigger off; anything else runs the stage.
func (s *Server) Function(w http.ResponseWriter, r *http.Request) {
	stage := chi.URLParam(r, "stage")
	body, err := decodeBody(r)
	if err != nil {
		s.fail(w, "decode request", fmt.Errorf("%w: %w", domain.ErrInvalidRequest, err))
		return
	}

	if stage == s.Pipeline.Graph().TriggerStage() {
		if r.Method != http.MethodPost {
			writeJSON(w, s.logger, domain.Response{StatusCode: http.StatusMethodNotAllowed, Message: "trigger accepts POST only"})
			return
		}
		s.trigger(w, r, domain.TriggerRequest{
			CurrentStage: body.CurrentStage,
			NextStage:    body.NextStage,
			RunID:        body.RunID,
		})
		return
	}

	if s.Stages != nil && !s.Stages[stage] {
		s.fail(w, "invoke", fmt.Errorf("%w: %s is not served here", domain.ErrStageNotFound, stage))
		return
	}

	req := domain.InvocationRequest{
		NextStage: body.NextStage,
		RunID:     body.RunID,
		Params:    body.Params,
	}
	q := r.URL.Query()
	if v := q.Get(domain.FieldNextStage); v != "" {
		req.NextStage = v
	}
	if v := q.Get(domain.FieldRunID); v != "" {
		req.RunID = v
	}
	if err := req.Validate(); err != nil {
		s.fail(w, "invoke", err)
		return
	}

	resp, err := s.Pipeline.Invoke(r.Context(), stage, req)
	if err != nil {
		s.logger.Error("stage invocation failed", "stage", stage, "error", err)
	}
	writeJSON(w, s.logger, resp)
}

func (s *Server) trigger(w http.ResponseWriter, r *http.Request, req domain.TriggerRequest) {
	resp, err := s.Pipeline.Trigger(r.Context(), req)
	if err != nil {
		s.logger.Warn("trigger refused", "next_stage", req.NextStage, "error", err)
	}
	writeJSON(w, s.logger, resp)
}

// GetGraph handles the GET /graph request.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Pipeline.Graph()); err != nil {
		s.logger.Error("GetGraph response encode failed", "error", err)
	}
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	s.logger.Warn(op+" failed", "error", err)
	writeJSON(w, s.logger, domain.ErrorResponse(err))
}

type stageRequest struct {
	CurrentStage string            `json:"current_stage"`
	NextStage    string            `json:"next_stage"`
	RunID        string            `json:"run_id"`
	Params       map[string]string `json:"params"`
}

// decodeBody reads an optional JSON body. An empty body is a zero request.
func decodeBody(r *http.Request) (stageRequest, error) {
	var body stageRequest
	if r.Body == nil {
		return body, nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, maxBody)).Decode(&body)
	if err != nil && !errors.Is(err, io.EOF) {
		return body, err
	}
	return body, nil
}
