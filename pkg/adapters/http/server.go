// Package http exposes the review engine as a JSON API.
package http

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/redline/internal/logging"
	"github.com/aretw0/redline/pkg/domain"
	"github.com/aretw0/redline/pkg/ports"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

//go:embed openapi.yaml
var openapiDoc []byte

// GetSwagger parses the embedded OpenAPI document.
func GetSwagger() (*openapi3.T, error) {
	return openapi3.NewLoader().LoadFromData(openapiDoc)
}

// Server serves the review API.
type Server struct {
	svc        ports.ReviewService
	identities ports.IdentityResolver
	streams    *StreamManager
	gatherer   prometheus.Gatherer
	logger     *slog.Logger
	version    string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes g at /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithVersion sets the application version reported by /info.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = strings.TrimSpace(v)
	}
}

// NewHandler creates a new HTTP handler for the service. Every API route
// requires an "Authorization: Bearer <token>" header resolved by identities.
func NewHandler(svc ports.ReviewService, identities ports.IdentityResolver, opts ...Option) http.Handler {
	s := &Server{
		svc:        svc,
		identities: identities,
		logger:     logging.NewNop(),
		version:    "unknown",
	}
	for _, opt := range opts {
		opt(s)
	}
	s.streams = NewStreamManager(s.logger)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.GetHealth)
	r.Get("/info", s.GetInfo)
	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		_, _ = w.Write(openapiDoc)
	})
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/graphs", s.ListGraphs)
		r.Get("/graphs/{graphID}", s.GetGraph)

		r.Post("/workflows", s.StartWorkflow)
		r.Get("/workflows/{instanceID}", s.GetWorkflowStatus)
		r.Post("/workflows/{instanceID}/advance", s.AdvanceWorkflow)
		r.Post("/workflows/{instanceID}/reset", s.ResetWorkflow)
		r.Get("/workflows/{instanceID}/events", s.SubscribeEvents)

		r.Post("/documents", s.CreateDocument)
		r.Get("/documents/{documentID}", s.GetDocument)
		r.Get("/documents/{documentID}/workflow", s.GetDocumentWorkflow)
		r.Get("/documents/{documentID}/versions/{version}", s.GetVersion)
		r.Get("/documents/{documentID}/versions/{version}/patch", s.GetVersionPatch)
		r.Get("/documents/{documentID}/feedback", s.GetFeedback)
		r.Post("/documents/{documentID}/feedback", s.SubmitFeedback)
		r.Post("/documents/{documentID}/feedback/{feedbackID}/propose", s.ProposePending)
		r.Post("/documents/{documentID}/proposals", s.ProposeFeedback)
		r.Get("/documents/{documentID}/conflicts", s.GetConflicts)

		r.Post("/conflicts/{conflictID}/resolve", s.ResolveConflict)
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
		)
	})
}

// --- identity ---

type actorKey struct{}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			s.writeError(w, r, domain.ErrUnauthenticated)
			return
		}
		actor, err := s.identities.Resolve(r.Context(), strings.TrimSpace(token))
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), actorKey{}, actor)))
	})
}

func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}

// --- binding helpers ---

func (s *Server) pathString(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.badRequest(w, r, "Invalid path parameter "+name, err)
		return "", false
	}
	return v, true
}

func (s *Server) pathInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	var v int
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		s.badRequest(w, r, "Invalid path parameter "+name, err)
		return 0, false
	}
	return v, true
}

func (s *Server) queryString(w http.ResponseWriter, r *http.Request, name string, dest *string) bool {
	if err := runtime.BindQueryParameter("form", true, false, name, r.URL.Query(), dest); err != nil {
		s.badRequest(w, r, "Invalid query parameter "+name, err)
		return false
	}
	return true
}

// decode reads and validates a JSON body. It writes the error reply itself.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		s.badRequest(w, r, "Invalid request body", err)
		return false
	}
	if err := validate.Struct(dest); err != nil {
		s.writeError(w, r, errors.Join(domain.ErrInvalidRequest, err))
		return false
	}
	return true
}

// --- meta ---

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"app":         "redline-http",
		"version":     s.version,
		"api_version": apiVersion,
	})
}

// --- graphs ---

// ListGraphs handles GET /graphs.
func (s *Server) ListGraphs(w http.ResponseWriter, r *http.Request) {
	ids, err := s.svc.ListGraphs(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"graphs": ids})
}

// GetGraph handles GET /graphs/{graphID}.
func (s *Server) GetGraph(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "graphID")
	if !ok {
		return
	}
	g, err := s.svc.Graph(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

// --- workflows ---

// StartWorkflow handles POST /workflows.
func (s *Server) StartWorkflow(w http.ResponseWriter, r *http.Request) {
	var body StartWorkflowRequest
	if !s.decode(w, r, &body) {
		return
	}
	inst, err := s.svc.StartWorkflow(r.Context(), body.GraphID, body.DocumentID, actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(nil, inst)
	writeJSON(w, http.StatusCreated, inst)
}

// GetWorkflowStatus handles GET /workflows/{instanceID}.
func (s *Server) GetWorkflowStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "instanceID")
	if !ok {
		return
	}
	inst, err := s.svc.WorkflowStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// AdvanceWorkflow handles POST /workflows/{instanceID}/advance.
func (s *Server) AdvanceWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "instanceID")
	if !ok {
		return
	}
	var body AdvanceWorkflowRequest
	if !s.decode(w, r, &body) {
		return
	}

	before, err := s.svc.WorkflowStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.svc.AdvanceWorkflow(r.Context(), domain.AdvanceRequest{
		InstanceID: id,
		Action:     domain.Action(body.Action),
		Actor:      actorFrom(r.Context()),
		StageID:    domain.StageID(body.StageID),
		Metadata:   domain.RecordMetadata{Comment: body.Comment, Justification: body.Justification},
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(before, res.Instance)
	writeJSON(w, http.StatusOK, res)
}

// ResetWorkflow handles POST /workflows/{instanceID}/reset.
func (s *Server) ResetWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "instanceID")
	if !ok {
		return
	}
	var body ResetWorkflowRequest
	if !s.decode(w, r, &body) {
		return
	}

	before, err := s.svc.WorkflowStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	inst, err := s.svc.ResetWorkflow(r.Context(), id, actorFrom(r.Context()),
		domain.RecordMetadata{Comment: body.Comment, Justification: body.Justification})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.publish(before, inst)
	writeJSON(w, http.StatusOK, inst)
}

// --- documents ---

// CreateDocument handles POST /documents.
func (s *Server) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var body CreateDocumentRequest
	if !s.decode(w, r, &body) {
		return
	}
	v, err := s.svc.CreateDocument(r.Context(), body.DocumentID, body.Body)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// GetDocument handles GET /documents/{documentID}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	v, err := s.svc.Document(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetDocumentWorkflow handles GET /documents/{documentID}/workflow.
func (s *Server) GetDocumentWorkflow(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	inst, err := s.svc.WorkflowForDocument(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, inst)
}

// GetVersion handles GET /documents/{documentID}/versions/{version}.
func (s *Server) GetVersion(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	n, ok := s.pathInt(w, r, "version")
	if !ok {
		return
	}
	v, err := s.svc.Version(r.Context(), id, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

// GetVersionPatch handles GET /documents/{documentID}/versions/{version}/patch.
func (s *Server) GetVersionPatch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	n, ok := s.pathInt(w, r, "version")
	if !ok {
		return
	}
	patch, err := s.svc.Patch(r.Context(), id, n)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-diff")
	_, _ = w.Write([]byte(patch))
}

// --- feedback ---

// GetFeedback handles GET /documents/{documentID}/feedback?status=.
func (s *Server) GetFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	var status string
	if !s.queryString(w, r, "status", &status) {
		return
	}
	items, err := s.svc.Feedback(r.Context(), id, domain.FeedbackStatus(status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*domain.FeedbackItem{"feedback": items})
}

// SubmitFeedback handles POST /documents/{documentID}/feedback. A stale
// anchor is not an error here: the item is stored with status stale.
func (s *Server) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	var body FeedbackRequest
	if !s.decode(w, r, &body) {
		return
	}
	item, err := s.svc.SubmitFeedback(r.Context(), body.toDomain(id, actorFrom(r.Context())))
	if err != nil && !(errors.Is(err, domain.ErrStaleAnchor) && item != nil) {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// ProposeFeedback handles POST /documents/{documentID}/proposals.
func (s *Server) ProposeFeedback(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	var body FeedbackRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.svc.ProposeFeedback(r.Context(), body.toDomain(id, actorFrom(r.Context())))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ProposePending handles POST /documents/{documentID}/feedback/{feedbackID}/propose.
func (s *Server) ProposePending(w http.ResponseWriter, r *http.Request) {
	docID, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	feedbackID, ok := s.pathString(w, r, "feedbackID")
	if !ok {
		return
	}
	res, err := s.svc.ProposePending(r.Context(), docID, feedbackID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// GetConflicts handles GET /documents/{documentID}/conflicts?status=.
func (s *Server) GetConflicts(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "documentID")
	if !ok {
		return
	}
	var status string
	if !s.queryString(w, r, "status", &status) {
		return
	}
	conflicts, err := s.svc.Conflicts(r.Context(), id, domain.ConflictStatus(status))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]*domain.Conflict{"conflicts": conflicts})
}

// ResolveConflict handles POST /conflicts/{conflictID}/resolve.
func (s *Server) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathString(w, r, "conflictID")
	if !ok {
		return
	}
	var body ResolveConflictRequest
	if !s.decode(w, r, &body) {
		return
	}
	res, err := s.svc.ResolveConflict(r.Context(), id,
		domain.Decision{Resolution: domain.Resolution(body.Resolution), Text: body.Text},
		actorFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
