package upstream

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/logging"
)

func TestForwardPreservesPathQueryAndBody(t *testing.T) {
	var gotPath, gotQuery, gotBody, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithBase(server.URL)
	headers := http.Header{}
	headers.Set("Authorization", "Bearer user-token")
	headers.Set("X-Meter-Tab", "tab-1")
	headers.Set("Connection", "keep-alive")

	query := url.Values{}
	query.Set("stream", "true")

	resp, err := client.Forward(context.Background(), http.MethodPost,
		"/backend-api/conversation", query, headers, []byte(`{"model":"gpt-4"}`))
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	resp.Body.Close()

	if gotPath != "/backend-api/conversation" {
		t.Errorf("path not preserved: %q", gotPath)
	}
	if gotQuery != "stream=true" {
		t.Errorf("query not preserved: %q", gotQuery)
	}
	if gotBody != `{"model":"gpt-4"}` {
		t.Errorf("body not preserved: %q", gotBody)
	}
	if gotAuth != "Bearer user-token" {
		t.Errorf("client credentials must pass through, got %q", gotAuth)
	}
}

func TestForwardStripsControlHeaders(t *testing.T) {
	var gotTab, gotConn string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTab = r.Header.Get("X-Meter-Tab")
		gotConn = r.Header.Get("Proxy-Connection")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	headers := http.Header{}
	headers.Set("X-Meter-Tab", "tab-1")
	headers.Set("Proxy-Connection", "keep-alive")

	client := NewClientWithBase(server.URL)
	resp, err := client.Forward(context.Background(), http.MethodPost, "/x", nil, headers, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	resp.Body.Close()

	if gotTab != "" || gotConn != "" {
		t.Errorf("control headers leaked upstream: tab=%q conn=%q", gotTab, gotConn)
	}
}

func TestForwardCarriesCorrelationID(t *testing.T) {
	var gotID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotID = r.Header.Get(logging.HeaderName)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClientWithBase(server.URL)
	id := logging.GenerateRequestID()
	ctx := logging.WithRequestID(context.Background(), id)

	resp, err := client.Forward(ctx, http.MethodPost, "/backend-api/conversation", nil, http.Header{}, nil)
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	resp.Body.Close()

	if gotID != id {
		t.Errorf("upstream request must carry the correlation ID: got %q, want %q", gotID, id)
	}
}

func TestCopyResponseHeadersDropsHopByHop(t *testing.T) {
	src := http.Header{}
	src.Set("Content-Type", "text/event-stream")
	src.Set("Transfer-Encoding", "chunked")
	src.Set("Content-Length", "123")

	dst := http.Header{}
	CopyResponseHeaders(dst, src)

	if dst.Get("Content-Type") != "text/event-stream" {
		t.Error("content type should be copied")
	}
	if dst.Get("Transfer-Encoding") != "" || dst.Get("Content-Length") != "" {
		t.Error("hop-by-hop headers should be dropped")
	}
}
