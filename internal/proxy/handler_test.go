package proxy

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db/models"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/session"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/settings"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/tokenizer"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/upstream"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

func newTestInterceptor(t *testing.T, backend http.Handler) (*Interceptor, *session.Aggregator, func()) {
	t.Helper()
	database, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := database.AutoMigrate(&models.SessionRecord{}, &models.DailyHistory{}, &models.Setting{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	database.Where("1 = 1").Delete(&models.SessionRecord{})
	database.Where("1 = 1").Delete(&models.DailyHistory{})
	database.Where("1 = 1").Delete(&models.Setting{})

	server := httptest.NewServer(backend)
	store := settings.NewStore(database)
	agg := session.NewAggregator(database, store)
	ic := NewInterceptor(upstream.NewClientWithBase(server.URL), agg, store, nil, nil)
	return ic, agg, server.Close
}

func sseBackend(frames ...string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for _, frame := range frames {
			io.WriteString(w, frame)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func TestEndToEndMeteredExchange(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, sseBackend(
		"data: {\"delta\":{\"content\":\"Hel\"}}\n\n",
		"data: {\"delta\":{\"content\":\"lo\"}}\n\n",
		"data: [DONE]\n\n",
	))
	defer closeBackend()

	reqBody := `{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`
	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation", strings.NewReader(reqBody))
	req.Header.Set(TabHeader, "tab-e2e")
	rec := httptest.NewRecorder()

	ic.ServeHTTP(rec, req)

	// Pass-through side is byte-identical.
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"Hel"`) || !strings.Contains(body, "data: [DONE]") {
		t.Errorf("response not passed through verbatim:\n%s", body)
	}

	// Accounting side saw the full assistant text.
	snapshot, ok := agg.GetSession("tab-e2e")
	if !ok {
		t.Fatal("expected session after exchange")
	}
	wantCompletion := tokenizer.Count("Hello", "gpt-4")
	if snapshot.TotalCompletionTokens != wantCompletion {
		t.Errorf("expected %d completion tokens, got %d", wantCompletion, snapshot.TotalCompletionTokens)
	}
	if snapshot.TotalPromptTokens == 0 {
		t.Error("expected non-zero prompt tokens")
	}
	if snapshot.TotalCostUSD <= 0 {
		t.Errorf("expected positive cost, got %f", snapshot.TotalCostUSD)
	}
	if snapshot.Model != "gpt-4" {
		t.Errorf("expected gpt-4 session, got %q", snapshot.Model)
	}

	history := agg.History("tab-e2e", 10)
	if len(history) != 1 || history[0].Status != "ok" {
		t.Fatalf("expected one ok exchange, got %+v", history)
	}
	if history[0].LatencyMs < 0 || history[0].TTFBMs < 0 {
		t.Errorf("timing must be non-negative: %+v", history[0])
	}
}

func TestMalformedFramesNeverBreakPassthrough(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, sseBackend(
		"data: {not json}\n\n",
		"data: {\"delta\":{\"content\":\"ok\"}}\n\n",
		"data: [DONE]\n\n",
	))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodPost, "/backend-api/f/conversation",
		strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if !strings.Contains(rec.Body.String(), "{not json}") {
		t.Error("malformed frame must still pass through")
	}
	snapshot, _ := agg.GetSession("default")
	if snapshot.TotalCompletionTokens != tokenizer.Count("ok", "gpt-4") {
		t.Errorf("valid frames after a malformed one must still count, got %d", snapshot.TotalCompletionTokens)
	}
}

func TestNonOKResponseBypassesAccounting(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		io.WriteString(w, `{"error":"rate limited"}`)
	}))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation",
		strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"hi there"}]}`))
	req.Header.Set(TabHeader, "tab-429")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	// Status and body still reach the client.
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429 passed through, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "rate limited") {
		t.Errorf("error body must pass through, got %q", rec.Body.String())
	}

	// But the session never learns the exchange happened.
	if _, ok := agg.GetSession("tab-429"); ok {
		t.Error("non-OK response must not create a session")
	}
	if history := agg.History("tab-429", 10); len(history) != 0 {
		t.Errorf("non-OK response must not be recorded, got %+v", history)
	}
}

func TestNonStreamResponseBypassesAccounting(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"detail":"conversation archived"}`)
	}))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation",
		strings.NewReader(`{"model":"gpt-4","messages":[{"role":"user","content":"hi"}]}`))
	req.Header.Set(TabHeader, "tab-json")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "archived") {
		t.Errorf("non-stream body must pass through: %d %q", rec.Code, rec.Body.String())
	}
	if _, ok := agg.GetSession("tab-json"); ok {
		t.Error("a response without an event stream must not be accounted")
	}
}

func TestUnreachableUpstreamReturnsBadGateway(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, http.NotFoundHandler())
	closeBackend() // kill the backend before the request

	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation",
		strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	req.Header.Set(TabHeader, "tab-down")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
	if history := agg.History("tab-down", 10); len(history) != 0 {
		t.Errorf("a request that never streamed must not be recorded: %+v", history)
	}
}

func TestMidStreamFailureFinalizesError(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		io.WriteString(w, "data: {\"delta\":{\"content\":\"par\"}}\n\n")
		flusher.Flush()
		panic(http.ErrAbortHandler) // cut the connection mid-stream
	}))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation",
		strings.NewReader(`{"model":"gpt-4","messages":[]}`))
	req.Header.Set(TabHeader, "tab-cut")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	history := agg.History("tab-cut", 10)
	if len(history) != 1 {
		t.Fatalf("a broken stream must still finalize, got %+v", history)
	}
	if history[0].Status != "error" || history[0].ErrorMessage == "" {
		t.Errorf("expected error status with message, got %+v", history[0])
	}
	if want := tokenizer.Count("par", "gpt-4"); history[0].CompletionTokens != want {
		t.Errorf("text received before the failure must be counted: got %d, want %d",
			history[0].CompletionTokens, want)
	}
}

func TestNonMatchingPathPassesThroughUnmetered(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "plain response")
	}))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodGet, "/backend-api/models", nil)
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Body.String() != "plain response" {
		t.Errorf("unexpected body: %q", rec.Body.String())
	}
	if _, ok := agg.GetSession("default"); ok {
		t.Error("non-chat traffic must not create sessions")
	}

	// A POST elsewhere is also unmetered.
	req = httptest.NewRequest(http.MethodPost, "/backend-api/settings", strings.NewReader("{}"))
	rec = httptest.NewRecorder()
	ic.ServeHTTP(rec, req)
	if _, ok := agg.GetSession("default"); ok {
		t.Error("POST outside the chat endpoints must not be metered")
	}
}

func TestUnparsableRequestBodyStillStreams(t *testing.T) {
	ic, agg, closeBackend := newTestInterceptor(t, sseBackend(
		"data: {\"delta\":{\"content\":\"hi\"}}\n\n",
		"data: [DONE]\n\n",
	))
	defer closeBackend()

	req := httptest.NewRequest(http.MethodPost, "/backend-api/conversation",
		strings.NewReader("this is not json"))
	req.Header.Set(TabHeader, "tab-raw")
	rec := httptest.NewRecorder()
	ic.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	snapshot, ok := agg.GetSession("tab-raw")
	if !ok {
		t.Fatal("expected session")
	}
	if snapshot.Model != "gpt-4" {
		t.Errorf("unparsable body meters against the default model, got %q", snapshot.Model)
	}
	if snapshot.TotalPromptTokens != 0 {
		t.Errorf("no parsed messages means zero prompt tokens, got %d", snapshot.TotalPromptTokens)
	}
}
