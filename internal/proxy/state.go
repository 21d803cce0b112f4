package proxy

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/extract"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/sse"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/tokenizer"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/util"
)

// streamState is the accounting side of one intercepted exchange. The
// pass-through side never waits on it: Observe does only cheap frame decoding
// inline, and tokenization runs on the throttle's timer goroutine.
type streamState struct {
	mu sync.Mutex

	tabID     string
	exchange  meter.ExchangeMetrics
	startedAt time.Time
	firstByte time.Time

	text         strings.Builder
	deltaCount   int
	frameCount   int
	imageOutputs int

	decoder  *sse.Decoder
	throttle *throttle
	onFrames func(frames, deltas int)
	partial  func(snapshot meter.ExchangeMetrics)
	rules    []pricing.Rule
}

func newStreamState(tabID string, req meter.ExchangeRequest, rules []pricing.Rule) *streamState {
	model := req.Model
	if model == "" {
		model = meter.DefaultModel
	}
	s := &streamState{
		tabID:     tabID,
		startedAt: time.Now(),
		decoder:   sse.NewDecoder(),
		rules:     rules,
		exchange: meter.ExchangeMetrics{
			ID:             meter.NewExchangeID(),
			ConversationID: req.ConversationID,
			Model:          model,
			Status:         "ok",
		},
	}
	s.throttle = newThrottle(partialInterval, s.tokenizePartial)
	return s
}

// countPrompt attributes prompt-side tokens and image inputs from the
// request body before the stream starts.
func (s *streamState) countPrompt(req meter.ExchangeRequest) {
	serialized := meter.SerializeMessages(req.Messages)
	s.exchange.PromptTokens = tokenizer.Count(serialized, s.exchange.Model)
	s.exchange.ImageInputCount = meter.CountImageInputs(req.Messages)
}

// Observe feeds one response chunk through the frame decoder. A panic while
// decoding one chunk is contained here; the pass-through copy has already
// happened by the time Observe runs.
func (s *streamState) Observe(chunk []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Proxy] Recovered observing chunk for %s: %v", s.exchange.ID, r)
		}
	}()

	if util.IsVerbose() {
		log.Printf("📦 [Proxy] [%s] chunk: %s", s.exchange.ID, util.TruncateBytes(chunk))
	}

	s.mu.Lock()
	if s.firstByte.IsZero() {
		s.firstByte = time.Now()
	}
	events := s.decoder.Feed(chunk)
	s.frameCount += len(events)
	added := 0
	for _, event := range events {
		if event.Data == nil {
			continue
		}
		if delta, ok := extract.Delta(event.Type, event.Data); ok && delta != "" {
			s.text.WriteString(delta)
			added++
		}
		s.imageOutputs += extract.ImageOutputs(event.Data)
	}
	s.deltaCount += added
	frames := len(events)
	s.mu.Unlock()

	if s.onFrames != nil && frames > 0 {
		s.onFrames(frames, added)
	}
	if added > 0 {
		s.throttle.Trigger()
	}
}

// tokenizePartial runs on the throttle goroutine with whatever text has
// accumulated by fire time.
func (s *streamState) tokenizePartial() {
	s.mu.Lock()
	text := s.text.String()
	snapshot := s.exchange
	s.mu.Unlock()

	snapshot.CompletionTokens = tokenizer.Count(text, snapshot.Model)
	snapshot.EstimatedReasoningTokens = pricing.EstimateReasoningTokens(snapshot.Model, snapshot.CompletionTokens, s.rules)
	snapshot.ApplyCosts(pricing.Price(snapshot.Model, snapshot.PromptTokens, snapshot.CompletionTokens,
		snapshot.ImageInputCount, 0, snapshot.EstimatedReasoningTokens, s.rules))
	snapshot.Timestamp = time.Now().UnixMilli()

	if util.IsVerbose() {
		log.Printf("📦 [Proxy] [%s] partial: %d completion tokens", snapshot.ID, snapshot.CompletionTokens)
	}
	if s.partial != nil {
		s.partial(snapshot)
	}
}

// Finalize stops partial updates and produces the exchange's final metrics.
func (s *streamState) Finalize(streamErr error) meter.ExchangeMetrics {
	s.throttle.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	m := &s.exchange
	m.CompletionTokens = tokenizer.Count(s.text.String(), m.Model)
	m.EstimatedReasoningTokens = pricing.EstimateReasoningTokens(m.Model, m.CompletionTokens, s.rules)
	m.ImageOutputCount = s.imageOutputs
	m.ApplyCosts(pricing.Price(m.Model, m.PromptTokens, m.CompletionTokens,
		m.ImageInputCount, m.ImageOutputCount, m.EstimatedReasoningTokens, s.rules))
	m.LatencyMs = time.Since(s.startedAt).Milliseconds()
	if !s.firstByte.IsZero() {
		m.TTFBMs = s.firstByte.Sub(s.startedAt).Milliseconds()
	}
	m.Timestamp = time.Now().UnixMilli()
	if streamErr != nil {
		m.Status = "error"
		m.ErrorMessage = streamErr.Error()
	}
	return *m
}

// TTFB returns the observed time to first byte, zero before any byte arrived.
func (s *streamState) TTFB() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.firstByte.IsZero() {
		return 0
	}
	return s.firstByte.Sub(s.startedAt)
}
