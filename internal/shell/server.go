package shell

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/ahrav/go-trustrag/internal/domain"
	"github.com/ahrav/go-trustrag/internal/ports"
)

// Routes served by the web shell.
const (
	PathChat     = "/api/chat"
	PathEvaluate = "/api/evaluate"
	PathHealth   = "/healthz"
	PathMetrics  = "/metrics"
)

// RequestIDHeader carries the per-request id on responses.
const RequestIDHeader = "X-Request-ID"

// maxBodyBytes bounds decoded request bodies.
const maxBodyBytes = 1 << 20

//go:embed web/index.html.tmpl
var webFS embed.FS

var indexTemplate = template.Must(template.ParseFS(webFS, "web/index.html.tmpl"))

// ServerOptions configures a Server.
type ServerOptions struct {
	// AllowedOrigins lists CORS origins. Empty allows none.
	AllowedOrigins []string
	// Evaluator, when set, is exposed on POST /api/evaluate.
	Evaluator ports.EvaluationService
	// Metrics serves /metrics. Nil uses the default Prometheus gatherer.
	Metrics http.Handler
	Logger  *zap.Logger
	// Title is shown on the chat page.
	Title string
}

// Server is the HTTP chat shell.
type Server struct {
	svc       ports.QueryService
	evaluator ports.EvaluationService
	metrics   http.Handler
	origins   []string
	logger    *zap.Logger
	title     string
}

// NewServer returns a server answering chat requests with svc.
func NewServer(svc ports.QueryService, opts ServerOptions) (*Server, error) {
	if svc == nil {
		return nil, errors.New("query service cannot be nil")
	}

	s := &Server{
		svc:       svc,
		evaluator: opts.Evaluator,
		metrics:   opts.Metrics,
		origins:   opts.AllowedOrigins,
		logger:    opts.Logger,
		title:     opts.Title,
	}
	if s.metrics == nil {
		s.metrics = promhttp.Handler()
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.title == "" {
		s.title = "RAG Chat Interface"
	}
	return s, nil
}

// Handler builds the routed, instrumented handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(requestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{RequestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", s.handleIndex)
	r.Get(PathHealth, handleHealth)
	r.Handle(PathMetrics, s.metrics)
	r.Post(PathChat, s.handleChat)
	if s.evaluator != nil {
		r.Post(PathEvaluate, s.handleEvaluate)
	}

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "endpoint not found")
	})

	return otelhttp.NewHandler(r, "chat_web",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}))
}

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse is the reply to POST /api/chat. Messages holds the rendered
// turn and Result the structured response it was rendered from.
type ChatResponse struct {
	Messages []ChatMessage   `json:"messages"`
	Result   domain.Response `json:"result"`
}

func (s *Server) handleIndex(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := indexTemplate.Execute(w, map[string]string{
		"Title":       s.title,
		"Description": "This application uses RAG (Retrieval-Augmented Generation) to answer your questions.",
		"ChatPath":    PathChat,
	})
	if err != nil {
		s.logger.Error("render index", zap.Error(err))
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	resp, err := s.svc.Query(r.Context(), req.Message)
	if err != nil {
		status := http.StatusInternalServerError
		var stageErr *ports.StageError
		switch {
		case errors.Is(err, domain.ErrEmptyQuestion):
			status = http.StatusBadRequest
		case errors.As(err, &stageErr):
			status = http.StatusBadGateway
		}
		s.logger.Warn("chat query failed",
			zap.String("request_id", RequestID(r)),
			zap.Error(err))
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, ChatResponse{Messages: RenderTurn(resp), Result: resp})
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req ports.EvaluationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	raw, err := s.evaluator.Evaluate(r.Context(), req)
	if err != nil {
		s.logger.Warn("evaluation failed",
			zap.String("request_id", RequestID(r)),
			zap.Error(err))
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, raw)
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is empty")
		}
		return errors.New("invalid JSON body: " + err.Error())
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// requestID tags each request with a UUID, reusing a well-formed incoming
// X-Request-ID.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

type requestIDKey struct{}

// RequestID returns the id assigned to r, or "".
func RequestID(r *http.Request) string {
	id, _ := r.Context().Value(requestIDKey{}).(string)
	return id
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		defer func() {
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			s.logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", status),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", RequestID(r)))
		}()
		next.ServeHTTP(ww, r)
	})
}
