// Package proxy intercepts chat-completion traffic on its way to the real
// backend. The response streams through byte-for-byte while an independent
// accounting pipeline estimates tokens and cost; accounting failures never
// reach the pass-through side.
package proxy

import (
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/logging"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/metrics"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/overlay"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/session"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/settings"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/upstream"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/util"
)

// TabHeader carries the tab identity through the proxy.
const TabHeader = "X-Meter-Tab"

// Paths worth metering: the two chat-completion endpoints the backend uses.
var meteredFragments = []string{
	"/backend-api/conversation",
	"/backend-api/f/conversation",
}

// Interceptor is the metering reverse proxy handler.
type Interceptor struct {
	client   *upstream.Client
	sessions *session.Aggregator
	settings *settings.Store
	hub      *overlay.Hub
	metrics  *metrics.Metrics
}

// NewInterceptor wires the proxy to its collaborators. hub and m may be nil
// in tests; the pipeline degrades to accounting only.
func NewInterceptor(client *upstream.Client, sessions *session.Aggregator, store *settings.Store, hub *overlay.Hub, m *metrics.Metrics) *Interceptor {
	return &Interceptor{
		client:   client,
		sessions: sessions,
		settings: store,
		hub:      hub,
		metrics:  m,
	}
}

// ServeHTTP dispatches between the metered chat endpoints and generic
// pass-through for everything else.
func (ic *Interceptor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if ic.shouldMeter(r) {
		ic.handleMetered(w, r)
		return
	}
	ic.handlePassthrough(w, r)
}

func (ic *Interceptor) shouldMeter(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	for _, fragment := range meteredFragments {
		if strings.Contains(r.URL.Path, fragment) {
			return true
		}
	}
	return false
}

func tabIDFrom(r *http.Request) string {
	if tab := strings.TrimSpace(r.Header.Get(TabHeader)); tab != "" {
		return tab
	}
	return "default"
}

func (ic *Interceptor) handleMetered(w http.ResponseWriter, r *http.Request) {
	tabID := tabIDFrom(r)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	// Request parsing is best-effort: an unrecognized body still streams
	// through, it just meters against the default model with zero prompt.
	req := meter.ParseExchangeRequest(body)
	state := newStreamState(tabID, req, ic.settings.Pricing())
	state.countPrompt(req)
	state.onFrames = ic.countFrames
	state.partial = func(snapshot meter.ExchangeMetrics) {
		partial := ic.sessions.RecordPartial(tabID, snapshot)
		if ic.hub != nil {
			ic.hub.Broadcast(overlay.EventPartial, tabID, partialPayload(snapshot, partial))
		}
	}

	if ic.metrics != nil {
		ic.metrics.ActiveExchanges.Inc()
		defer ic.metrics.ActiveExchanges.Dec()
	}

	requestID := logging.GenerateRequestID()
	ctx := logging.WithRequestID(r.Context(), requestID)
	if util.IsVerbose() {
		log.Printf("🚀 [Proxy] [%s] %s %s (tab: %s, model: %s)",
			requestID, r.Method, r.URL.Path, tabID, state.exchange.Model)
	}

	resp, err := ic.client.Forward(ctx, r.Method, r.URL.Path, r.URL.Query(), r.Header, body)
	if err != nil {
		// Transport failure before any stream started: nothing to account.
		log.Printf("❌ [Proxy] [%s] upstream request failed: %v", requestID, err)
		http.Error(w, "upstream request failed", http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()

	upstream.CopyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)

	// Non-OK and non-stream responses relay through with zero accounting:
	// the session never learns the exchange happened. Status "error" is
	// reserved for failures after a stream has started.
	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	if !ok || !strings.Contains(resp.Header.Get("Content-Type"), "text/event-stream") {
		relayBody(w, resp.Body)
		return
	}

	flusher, canFlush := w.(http.Flusher)

	var streamErr error
	buf := make([]byte, 32*1024)
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				streamErr = writeErr
				break
			}
			if canFlush {
				flusher.Flush()
			}
			state.Observe(buf[:n])
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			streamErr = readErr
			break
		}
	}

	ic.finalize(tabID, state, streamErr)
}

// finalize closes out the exchange: final tokenization, costs, session
// update, overlay broadcast, and instrumentation.
func (ic *Interceptor) finalize(tabID string, state *streamState, streamErr error) {
	final := state.Finalize(streamErr)
	snapshot := ic.sessions.RecordFinal(tabID, final)

	if ic.hub != nil {
		ic.hub.Broadcast(overlay.EventFinal, tabID, map[string]interface{}{
			"metrics": final,
			"totals":  snapshot,
		})
	}
	if ic.metrics != nil {
		ic.metrics.ObserveExchange(final.Model, final.Status,
			time.Duration(final.LatencyMs)*time.Millisecond, state.TTFB(),
			final.PromptTokens, final.CompletionTokens, final.TotalCostUSD)
	}

	if streamErr != nil {
		log.Printf("❌ [Proxy] [%s] exchange finished with error: %v", final.ID, streamErr)
	} else if util.IsVerbose() {
		log.Printf("✅ [Proxy] [%s] %d prompt + %d completion tokens, $%.6f",
			final.ID, final.PromptTokens, final.CompletionTokens, final.TotalCostUSD)
	}
}

func (ic *Interceptor) countFrames(frames, deltas int) {
	if ic.metrics == nil {
		return
	}
	ic.metrics.FramesDecodedTotal.Add(float64(frames))
	ic.metrics.DeltasTotal.Add(float64(deltas))
}
