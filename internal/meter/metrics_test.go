package meter

import (
	"testing"
)

func TestParseExchangeRequest_FullBody(t *testing.T) {
	body := []byte(`{"model":"gpt-3.5-turbo","messages":[{"role":"user","content":"hi"}],"conversation_id":"c-1","message_id":"m-1"}`)
	req := ParseExchangeRequest(body)

	if req.Model != "gpt-3.5-turbo" {
		t.Errorf("Model = %q", req.Model)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" {
		t.Errorf("Messages = %+v", req.Messages)
	}
	if req.ConversationID != "c-1" {
		t.Errorf("ConversationID = %q", req.ConversationID)
	}
	if req.RequestID != "m-1" {
		t.Errorf("RequestID = %q", req.RequestID)
	}
}

func TestParseExchangeRequest_UnparsableBody(t *testing.T) {
	for _, body := range [][]byte{nil, {}, []byte("not json"), []byte("[1,2]")} {
		req := ParseExchangeRequest(body)
		if req.Model != DefaultModel {
			t.Errorf("unparsable body should default model, got %q", req.Model)
		}
		if len(req.Messages) != 0 {
			t.Errorf("unparsable body should have no messages")
		}
	}
}

func TestSerializeMessages(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: "hello"},
		{Role: "assistant", Content: []interface{}{
			"part1 ",
			map[string]interface{}{"text": "part2"},
		}},
		{Role: "user", Content: map[string]interface{}{"content": "obj"}},
	}
	want := "user:\nhello\n\nassistant:\npart1 part2\n\nuser:\nobj"
	if got := SerializeMessages(msgs); got != want {
		t.Errorf("SerializeMessages() = %q, want %q", got, want)
	}
}

func TestSerializeMessages_Empty(t *testing.T) {
	if got := SerializeMessages(nil); got != "" {
		t.Errorf("expected empty string, got %q", got)
	}
}

func TestCountImageInputs(t *testing.T) {
	msgs := []Message{
		{Role: "user", Content: []interface{}{
			map[string]interface{}{"content_type": "image_asset_pointer", "asset_pointer": "file://a"},
			map[string]interface{}{"type": "image_url", "image_url": map[string]interface{}{"url": "https://x"}},
			map[string]interface{}{"text": "caption"},
		}},
		{Role: "user", Content: "no images here"},
	}
	if got := CountImageInputs(msgs); got != 2 {
		t.Errorf("CountImageInputs() = %d, want 2", got)
	}
}

func TestExchangeMetrics_TotalTokens(t *testing.T) {
	m := ExchangeMetrics{PromptTokens: 10, CompletionTokens: 20, EstimatedReasoningTokens: 40}
	if got := m.TotalTokens(); got != 70 {
		t.Errorf("TotalTokens() = %d, want 70", got)
	}
}
