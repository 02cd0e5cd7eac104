package httpadapter

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
	"github.com/kirillkom/agentic-rag/internal/core/ports"
	"github.com/kirillkom/agentic-rag/internal/observability/metrics"
)

const maxUploadBytes = 64 << 20

type RouterConfig struct {
	Service          string
	RateLimitRPS     float64
	RateLimitBurst   int
	MaxInFlight      int
	BackpressureWait time.Duration
}

type Router struct {
	cfg      RouterConfig
	answerer ports.QuestionAnswerer
	ingestor ports.DocumentIngestor
	docs     ports.DocumentReader
	metrics  *metrics.HTTPServerMetrics
}

func NewRouter(
	cfg RouterConfig,
	answerer ports.QuestionAnswerer,
	ingestor ports.DocumentIngestor,
	docs ports.DocumentReader,
	httpMetrics *metrics.HTTPServerMetrics,
) *Router {
	if cfg.Service == "" {
		cfg.Service = "api"
	}
	return &Router{
		cfg:      cfg,
		answerer: answerer,
		ingestor: ingestor,
		docs:     docs,
		metrics:  httpMetrics,
	}
}

// Handler assembles the API. Probes and /metrics bypass traffic control and
// request validation.
func (rt *Router) Handler() (http.Handler, error) {
	validate, err := newRequestValidator()
	if err != nil {
		return nil, err
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(accessLogMiddleware)
	r.Use(middleware.Recoverer)
	if rt.metrics != nil {
		r.Use(func(next http.Handler) http.Handler {
			return rt.metrics.Middleware(rt.cfg.Service, next)
		})
		r.Method(http.MethodGet, "/metrics", rt.metrics.Handler())
	}

	r.Get("/healthz", rt.healthz)
	r.Get("/health", rt.healthz)

	r.Group(func(api chi.Router) {
		api.Use(func(next http.Handler) http.Handler {
			return rateLimitMiddleware(next, rt.cfg.RateLimitRPS, rt.cfg.RateLimitBurst)
		})
		api.Use(func(next http.Handler) http.Handler {
			return backpressureMiddleware(next, rt.cfg.MaxInFlight, rt.cfg.BackpressureWait)
		})
		api.Use(validate)

		api.Post("/v1/ask", rt.ask)
		api.Post("/ask", rt.ask)
		if rt.ingestor != nil {
			api.Post("/v1/documents", rt.uploadDocument)
		}
		if rt.docs != nil {
			api.Get("/v1/documents/{id}", rt.getDocumentByID)
		}
	})

	return r, nil
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type askRequest struct {
	Question string `json:"question"`
}

func (rt *Router) ask(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "decode ask request", err))
		return
	}

	start := time.Now()
	result, err := rt.answerer.Answer(r.Context(), req.Question)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordAnswer(rt.cfg.Service, "ask", result, time.Since(start))
	}
	writeJSON(w, http.StatusOK, result)
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "read multipart field 'file'", err))
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		writeError(w, r, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("document id is required")))
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := mapErrorToHTTPStatus(err)
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request_failed", "path", r.URL.Path, "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{
		"error":      err.Error(),
		"request_id": domain.RequestIDFromContext(r.Context()),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
