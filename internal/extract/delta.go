// Package extract locates assistant text fragments inside streamed chat
// events. Upstream payload shapes drift frequently, so extraction is a
// first-match-wins cascade over known shapes with a bounded recursive
// fallback, and a miss is a normal outcome rather than an error.
package extract

import "strings"

// matcher inspects one decoded event and returns the text fragment it
// recognizes, if any.
type matcher func(evt map[string]interface{}) (string, bool)

// Ordered from most to least specific. First match wins.
var matchers = []matcher{
	matchInputMessageParts,
	matchMessageParts,
	matchMessageContentString,
	matchDeltaContent,
	matchDeltaText,
	matchChoiceDeltaContent,
	matchChoiceText,
	matchTopLevelText,
	matchTopLevelContent,
}

// Delta returns the newly produced assistant text fragment in evt, or
// ("", false) when the event carries none. eventType is the frame's optional
// event label, used to unwrap patch envelopes before the standard cascade.
func Delta(eventType string, evt map[string]interface{}) (string, bool) {
	if evt == nil {
		return "", false
	}

	// Patch envelope: {p, o, v: {message: {...}}} with event label "delta".
	// Re-wrap so the standard input_message rules apply.
	if eventType == "delta" {
		if v := getMap(evt, "v"); v != nil {
			if msg := getMap(v, "message"); msg != nil {
				if content := getMap(msg, "content"); content != nil {
					if _, ok := content["parts"]; ok {
						evt = map[string]interface{}{"input_message": msg}
					}
				}
			}
		}
	}

	for _, m := range matchers {
		if text, ok := m(evt); ok {
			return text, true
		}
	}

	// Last resort: any "parts" array within reach.
	if text, ok := findParts(evt, 0); ok {
		return text, true
	}
	return "", false
}

// input_message.content.parts, but only when not authored by the user --
// these frames echo the prompt back.
func matchInputMessageParts(evt map[string]interface{}) (string, bool) {
	msg := getMap(evt, "input_message")
	if msg == nil {
		return "", false
	}
	content := getMap(msg, "content")
	if content == nil {
		return "", false
	}
	parts, ok := content["parts"]
	if !ok {
		return "", false
	}
	if author := getMap(msg, "author"); author != nil {
		if role, _ := author["role"].(string); role == "user" {
			return "", false
		}
	}
	return joinParts(parts)
}

func matchMessageParts(evt map[string]interface{}) (string, bool) {
	msg := getMap(evt, "message")
	if msg == nil {
		return "", false
	}
	content := getMap(msg, "content")
	if content == nil {
		return "", false
	}
	parts, ok := content["parts"]
	if !ok {
		return "", false
	}
	return joinParts(parts)
}

func matchMessageContentString(evt map[string]interface{}) (string, bool) {
	msg := getMap(evt, "message")
	if msg == nil {
		return "", false
	}
	if s, ok := msg["content"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchDeltaContent(evt map[string]interface{}) (string, bool) {
	delta := getMap(evt, "delta")
	if delta == nil {
		return "", false
	}
	if s, ok := delta["content"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchDeltaText(evt map[string]interface{}) (string, bool) {
	delta := getMap(evt, "delta")
	if delta == nil {
		return "", false
	}
	if s, ok := delta["text"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchChoiceDeltaContent(evt map[string]interface{}) (string, bool) {
	choice := firstChoice(evt)
	if choice == nil {
		return "", false
	}
	delta := getMap(choice, "delta")
	if delta == nil {
		return "", false
	}
	if s, ok := delta["content"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchChoiceText(evt map[string]interface{}) (string, bool) {
	choice := firstChoice(evt)
	if choice == nil {
		return "", false
	}
	if s, ok := choice["text"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchTopLevelText(evt map[string]interface{}) (string, bool) {
	if s, ok := evt["text"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

func matchTopLevelContent(evt map[string]interface{}) (string, bool) {
	if s, ok := evt["content"].(string); ok && s != "" {
		return s, true
	}
	return "", false
}

const maxSearchDepth = 3

// findParts searches any value for a "parts" array, depth-limited so
// adversarial or cyclic-looking payloads stay cheap.
func findParts(v interface{}, depth int) (string, bool) {
	if depth > maxSearchDepth {
		return "", false
	}
	switch x := v.(type) {
	case []interface{}:
		for _, item := range x {
			if text, ok := findParts(item, depth+1); ok {
				return text, true
			}
		}
	case map[string]interface{}:
		if parts, ok := x["parts"].([]interface{}); ok {
			return joinStringParts(parts), true
		}
		for _, val := range x {
			if text, ok := findParts(val, depth+1); ok {
				return text, true
			}
		}
	}
	return "", false
}

// ImageOutputs counts generated-image markers in one event. These markers are
// sparse and vendor-specific, so the count is best-effort.
func ImageOutputs(evt map[string]interface{}) int {
	return countImageMarkers(evt, 0)
}

func countImageMarkers(v interface{}, depth int) int {
	if depth > maxSearchDepth+1 {
		return 0
	}
	count := 0
	switch x := v.(type) {
	case []interface{}:
		for _, item := range x {
			count += countImageMarkers(item, depth+1)
		}
	case map[string]interface{}:
		if ct, _ := x["content_type"].(string); ct == "image_asset_pointer" {
			return 1
		}
		if _, ok := x["asset_pointer"]; ok {
			return 1
		}
		for _, val := range x {
			count += countImageMarkers(val, depth+1)
		}
	}
	return count
}

// joinParts concatenates a parts value that may be an array or a bare string.
func joinParts(parts interface{}) (string, bool) {
	switch p := parts.(type) {
	case string:
		return p, true
	case []interface{}:
		return joinStringParts(p), true
	}
	return "", false
}

func joinStringParts(parts []interface{}) string {
	var b strings.Builder
	for _, p := range parts {
		if s, ok := p.(string); ok {
			b.WriteString(s)
		}
	}
	return b.String()
}

func firstChoice(evt map[string]interface{}) map[string]interface{} {
	choices, ok := evt["choices"].([]interface{})
	if !ok || len(choices) == 0 {
		return nil
	}
	choice, _ := choices[0].(map[string]interface{})
	return choice
}

func getMap(m map[string]interface{}, key string) map[string]interface{} {
	v, _ := m[key].(map[string]interface{})
	return v
}
