package proxy

import (
	"io"
	"net/http"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/session"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/upstream"
)

// handlePassthrough relays any non-metered request untouched.
func (ic *Interceptor) handlePassthrough(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	resp, err := ic.client.Forward(r.Context(), r.Method, r.URL.Path, r.URL.Query(), r.Header, body)
	if err != nil {
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	upstream.CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	relayBody(w, resp.Body)
}

// relayBody copies an upstream body to the client, flushing as chunks land.
func relayBody(w http.ResponseWriter, body io.Reader) {
	flusher, canFlush := w.(http.Flusher)
	buf := make([]byte, 32*1024)
	for {
		n, readErr := body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				return
			}
			if canFlush {
				flusher.Flush()
			}
		}
		if readErr != nil {
			return
		}
	}
}

// partialPayload is the advisory overlay update pushed while a response is
// still streaming.
func partialPayload(snapshot meter.ExchangeMetrics, totals session.Snapshot) map[string]interface{} {
	totalTokens := snapshot.TotalTokens()
	return map[string]interface{}{
		"model":               snapshot.Model,
		"promptTokens":        snapshot.PromptTokens,
		"completionTokens":    snapshot.CompletionTokens,
		"totalTokens":         totalTokens,
		"totalCostUSD":        snapshot.TotalCostUSD,
		"contextLimit":        pricing.ContextLimit(snapshot.Model),
		"contextUsagePercent": pricing.ContextUsagePercent(snapshot.Model, totalTokens),
		"sessionTotals":       totals,
	}
}
