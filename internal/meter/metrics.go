// Package meter defines the exchange-level data model: the captured outgoing
// request and the finalized metrics record for one request/response round
// trip.
package meter

import (
	"encoding/json"
	"strings"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
	"github.com/google/uuid"
)

// DefaultModel is assumed when the request body does not name one.
const DefaultModel = "gpt-4"

// Message is one chat message from the outgoing request. Content may be a
// plain string, an array of typed parts, or a single object depending on the
// client, so it stays untyped until serialization.
type Message struct {
	Role    string      `json:"role"`
	Content interface{} `json:"content"`
}

// ExchangeRequest is the parsed outgoing payload, captured once at request
// time and immutable afterwards.
type ExchangeRequest struct {
	Model          string
	Messages       []Message
	ConversationID string
	RequestID      string
}

// ParseExchangeRequest parses a request body best-effort. An unparsable body
// yields a request with the default model and no messages; it is never an
// error, since metering must not interfere with the exchange itself.
func ParseExchangeRequest(body []byte) ExchangeRequest {
	req := ExchangeRequest{Model: DefaultModel}
	if len(body) == 0 {
		return req
	}

	var raw struct {
		Model           string    `json:"model"`
		Messages        []Message `json:"messages"`
		ConversationID  string    `json:"conversation_id"`
		ConversationID2 string    `json:"conversationId"`
		MessageID       string    `json:"message_id"`
		RequestID       string    `json:"request_id"`
	}
	if err := json.Unmarshal(body, &raw); err != nil {
		return req
	}

	if raw.Model != "" {
		req.Model = raw.Model
	}
	req.Messages = raw.Messages
	req.ConversationID = raw.ConversationID
	if req.ConversationID == "" {
		req.ConversationID = raw.ConversationID2
	}
	req.RequestID = raw.MessageID
	if req.RequestID == "" {
		req.RequestID = raw.RequestID
	}
	return req
}

// SerializeMessages flattens chat messages into the text that is tokenized
// as the prompt: "role:\ncontent" blocks joined by blank lines.
func SerializeMessages(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(messages))
	for _, m := range messages {
		blocks = append(blocks, m.Role+":\n"+ContentText(m.Content))
	}
	return strings.Join(blocks, "\n\n")
}

// ContentText extracts plain text from a message content value in any of its
// observed forms.
func ContentText(content interface{}) string {
	switch c := content.(type) {
	case string:
		return c
	case []interface{}:
		var b strings.Builder
		for _, part := range c {
			switch p := part.(type) {
			case string:
				b.WriteString(p)
			case map[string]interface{}:
				if s, ok := p["text"].(string); ok {
					b.WriteString(s)
				} else if s, ok := p["content"].(string); ok {
					b.WriteString(s)
				}
			}
		}
		return b.String()
	case map[string]interface{}:
		if s, ok := c["text"].(string); ok {
			return s
		}
		if s, ok := c["content"].(string); ok {
			return s
		}
	}
	return ""
}

// CountImageInputs counts image attachments across the request's message
// content parts.
func CountImageInputs(messages []Message) int {
	count := 0
	for _, m := range messages {
		parts, ok := m.Content.([]interface{})
		if !ok {
			continue
		}
		for _, part := range parts {
			p, ok := part.(map[string]interface{})
			if !ok {
				continue
			}
			if ct, _ := p["content_type"].(string); ct == "image_asset_pointer" {
				count++
				continue
			}
			if typ, _ := p["type"].(string); typ == "image_url" {
				count++
				continue
			}
			if _, ok := p["asset_pointer"]; ok {
				count++
			}
		}
	}
	return count
}

// ExchangeMetrics is the finalized record for one exchange. Created once per
// completed (or errored) exchange and immutable after creation.
type ExchangeMetrics struct {
	ID                       string  `json:"id"`
	ConversationID           string  `json:"conversationId,omitempty"`
	Model                    string  `json:"model"`
	PromptTokens             int     `json:"promptTokens"`
	CompletionTokens         int     `json:"completionTokens"`
	EstimatedReasoningTokens int     `json:"estimatedReasoningTokens"`
	ImageInputCount          int     `json:"imageInputCount"`
	ImageOutputCount         int     `json:"imageOutputCount"`
	InputCostUSD             float64 `json:"inputCostUSD"`
	OutputCostUSD            float64 `json:"outputCostUSD"`
	ImageCostUSD             float64 `json:"imageCostUSD"`
	ReasoningCostUSD         float64 `json:"reasoningCostUSD"`
	TotalCostUSD             float64 `json:"totalCostUSD"`
	LatencyMs                int64   `json:"latencyMs"`
	TTFBMs                   int64   `json:"ttfbMs"`
	Timestamp                int64   `json:"timestamp"`
	Status                   string  `json:"status"`
	ErrorMessage             string  `json:"errorMessage,omitempty"`
}

// ApplyCosts copies a pricing breakdown onto the metrics record.
func (m *ExchangeMetrics) ApplyCosts(b pricing.Breakdown) {
	m.InputCostUSD = b.InputCostUSD
	m.OutputCostUSD = b.OutputCostUSD
	m.ImageCostUSD = b.ImageCostUSD
	m.ReasoningCostUSD = b.ReasoningCostUSD
	m.TotalCostUSD = b.TotalCostUSD
}

// TotalTokens is the visible token volume of the exchange, reasoning
// estimate included.
func (m *ExchangeMetrics) TotalTokens() int {
	return m.PromptTokens + m.CompletionTokens + m.EstimatedReasoningTokens
}

// NewExchangeID mints the unique ID for one exchange record.
func NewExchangeID() string {
	return uuid.New().String()
}
