package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/agentic-rag/internal/core/domain"
)

func scrape(t *testing.T, handler http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	raw, _ := io.ReadAll(rec.Body)
	return string(raw)
}

func TestRecordAnswerExportsOutcome(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.RecordAnswer("api", "/v1/ask", &domain.AnswerResult{
		Outcome:      domain.OutcomeVerified,
		BestScore:    0.2,
		VariantIndex: 2,
		Sources:      []domain.SourceScore{{File: "a.txt"}},
	}, 1500*time.Millisecond)

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `arag_rag_answers_total{endpoint="/v1/ask",outcome="verified",service="api"} 1`) {
		t.Fatalf("answers counter missing:\n%s", body)
	}
	if !strings.Contains(body, `arag_rag_selected_variant_total{service="api",variant="2"} 1`) {
		t.Fatalf("variant counter missing:\n%s", body)
	}
}

func TestMiddlewareNormalizesDocumentPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	handler := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/documents/abc", nil))

	body := scrape(t, m.Handler())
	if !strings.Contains(body, `path="/v1/documents/{document_id}",service="api",status="404"`) {
		t.Fatalf("normalized path missing:\n%s", body)
	}
}

func TestWorkerMetricsAndResilienceHooks(t *testing.T) {
	m := NewWorkerMetrics("worker")
	hooks := NewResilienceHooks(m.Registry(), "worker")

	m.StartDocument()
	m.FinishDocument("worker", time.Second, errors.New("boom"))
	m.AddIndexedChunks("worker", 4)
	hooks.OnRetry("qdrant.upsert", 1)
	hooks.OnStateChange("qdrant.upsert", "closed", "open")

	body := scrape(t, m.Handler())
	for _, want := range []string{
		`arag_worker_document_process_total{service="worker",status="error"} 1`,
		`arag_worker_chunks_indexed_total{service="worker"} 4`,
		`arag_resilience_retries_total{operation="qdrant.upsert",service="worker"} 1`,
		`arag_resilience_breaker_transitions_total{operation="qdrant.upsert",service="worker",to="open"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("missing %s in:\n%s", want, body)
		}
	}
}
