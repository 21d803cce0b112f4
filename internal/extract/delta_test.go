package extract

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, raw string) map[string]interface{} {
	t.Helper()
	var evt map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &evt); err != nil {
		t.Fatalf("bad fixture: %v", err)
	}
	return evt
}

func TestDelta_KnownShapes(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		raw       string
		want      string
	}{
		{
			name: "message content parts",
			raw:  `{"message":{"content":{"parts":["Hel","lo"]}}}`,
			want: "Hello",
		},
		{
			name: "input_message assistant parts",
			raw:  `{"input_message":{"author":{"role":"assistant"},"content":{"parts":["Hi"]}}}`,
			want: "Hi",
		},
		{
			name: "message content string",
			raw:  `{"message":{"content":"plain"}}`,
			want: "plain",
		},
		{
			name: "delta content",
			raw:  `{"delta":{"content":"frag"}}`,
			want: "frag",
		},
		{
			name: "delta text",
			raw:  `{"delta":{"text":"frag2"}}`,
			want: "frag2",
		},
		{
			name: "choices delta content",
			raw:  `{"choices":[{"delta":{"content":"chunk"}}]}`,
			want: "chunk",
		},
		{
			name: "choices text",
			raw:  `{"choices":[{"text":"legacy"}]}`,
			want: "legacy",
		},
		{
			name: "top level text",
			raw:  `{"text":"bare"}`,
			want: "bare",
		},
		{
			name:      "patch envelope",
			eventType: "delta",
			raw:       `{"p":"","o":"add","v":{"message":{"author":{"role":"assistant"},"content":{"parts":["patched"]}}}}`,
			want:      "patched",
		},
		{
			name: "deep parts fallback",
			raw:  `{"wrapper":{"inner":{"parts":["deep","ly"]}}}`,
			want: "deeply",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Delta(tt.eventType, decode(t, tt.raw))
			if !ok {
				t.Fatal("expected a delta")
			}
			if got != tt.want {
				t.Errorf("Delta() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDelta_UserEchoSkipped(t *testing.T) {
	evt := decode(t, `{"input_message":{"author":{"role":"user"},"content":{"parts":["typed by user"]}}}`)
	// The user echo should not match the input_message rule; the deep search
	// still finds the parts array, matching the original extractor's order.
	got, ok := Delta("", evt)
	if !ok || got != "typed by user" {
		t.Errorf("expected deep-search fallback to find parts, got %q ok=%v", got, ok)
	}
}

func TestDelta_NoMatchIsNotError(t *testing.T) {
	for _, raw := range []string{
		`{}`,
		`{"conversation_id":"abc"}`,
		`{"message":{"status":"in_progress"}}`,
		`{"delta":{"content":""}}`,
	} {
		if got, ok := Delta("", decode(t, raw)); ok {
			t.Errorf("expected no delta for %s, got %q", raw, got)
		}
	}
}

func TestDelta_DepthBound(t *testing.T) {
	// parts nested 5 levels deep is beyond the search bound.
	evt := decode(t, `{"a":{"b":{"c":{"d":{"e":{"parts":["too deep"]}}}}}}`)
	if _, ok := Delta("", evt); ok {
		t.Error("expected depth-bounded search to miss deeply nested parts")
	}
}

func TestImageOutputs(t *testing.T) {
	evt := decode(t, `{"message":{"content":{"content_type":"multimodal_text","parts":[{"content_type":"image_asset_pointer","asset_pointer":"file-service://x"}]}}}`)
	if got := ImageOutputs(evt); got != 1 {
		t.Errorf("ImageOutputs() = %d, want 1", got)
	}

	plain := decode(t, `{"message":{"content":{"parts":["just text"]}}}`)
	if got := ImageOutputs(plain); got != 0 {
		t.Errorf("ImageOutputs() on text = %d, want 0", got)
	}
}
