package search

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/medicsearch/medic-search/internal/latency"
)

func newTestHandler(provider *fakeProvider, store *fakeStore) *Handler {
	svc := newTestService(provider, store)
	health := NewHealthChecker(store, nil, svc.monitor)
	return NewHandler(svc, health, svc.monitor, "test")
}

func newTestMux(h *Handler) *http.ServeMux {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return mux
}

func TestHandleSearch(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, &fakeStore{chunks: dosingChunks()})
	mux := newTestMux(h)

	body := `{"query": "epi dose anaphylaxis", "limit": 5}`
	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(body))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp Response
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Intent != "medication_dosing" {
		t.Fatalf("intent = %q", resp.Intent)
	}
	if len(resp.Chunks) == 0 {
		t.Fatal("expected results")
	}
	if resp.ModelTier == "" {
		t.Fatal("model tier missing from response")
	}
}

func TestHandleSearchInvalidBody(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, &fakeStore{})
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleSearchEmptyQuery(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, &fakeStore{})
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query": "   "}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "INVALID_QUERY") {
		t.Fatalf("body missing error code: %s", rec.Body.String())
	}
}

func TestHandleSearchUpstreamFailure(t *testing.T) {
	provider := &fakeProvider{failErr: http.ErrHandlerTimeout}
	h := newTestHandler(provider, &fakeStore{})
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query": "cardiac arrest"}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EMBEDDING_UNAVAILABLE") {
		t.Fatalf("body missing error code: %s", rec.Body.String())
	}
}

func TestHandleHealth(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, &fakeStore{})
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("body = %s", rec.Body.String())
	}
}

func TestHandleHealthUnreachableStore(t *testing.T) {
	store := &fakeStore{failErr: http.ErrServerClosed}
	h := newTestHandler(&fakeProvider{}, store)
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want 503", rec.Code)
	}
}

func TestHandleLatency(t *testing.T) {
	h := newTestHandler(&fakeProvider{}, &fakeStore{})
	h.monitor.Record(latency.StageTotal, 100*time.Millisecond)
	mux := newTestMux(h)

	req := httptest.NewRequest(http.MethodGet, "/v1/latency", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var report latency.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &report); err != nil {
		t.Fatalf("decoding report: %v", err)
	}
	if !report.Healthy {
		t.Fatal("expected healthy report")
	}
	if report.Stages[latency.StageTotal].Count != 1 {
		t.Fatalf("total count = %d, want 1", report.Stages[latency.StageTotal].Count)
	}
}
