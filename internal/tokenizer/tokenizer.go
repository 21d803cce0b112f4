// Package tokenizer converts text to token counts. An exact tiktoken encoder
// is loaded once per process in the background; until it is ready, and
// whenever loading fails, counting falls back to a deterministic
// 4-characters-per-token approximation.
package tokenizer

import (
	"log"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

const (
	encodingStandard  = "cl100k_base"
	encodingReasoning = "o200k_base"
)

var (
	mu       sync.RWMutex
	encoders map[string]*tiktoken.Tiktoken
	loadOnce sync.Once
)

// Init starts the one-time background load of the exact encoders. Safe to
// call from multiple goroutines; callers never block on it.
func Init() {
	loadOnce.Do(func() {
		go load()
	})
}

func load() {
	loaded := make(map[string]*tiktoken.Tiktoken, 2)
	for _, name := range []string{encodingStandard, encodingReasoning} {
		enc, err := tiktoken.GetEncoding(name)
		if err != nil {
			// Permanent for this process lifetime; every Count call falls
			// back to approximate counting.
			log.Printf("[Tokenizer] Failed to load %s encoding, using approximate counting: %v", name, err)
			return
		}
		loaded[name] = enc
	}

	mu.Lock()
	encoders = loaded
	mu.Unlock()
	log.Printf("[Tokenizer] Exact encoders ready")
}

// Count returns the token count of text for model. Uses the exact encoder
// when it has finished loading, the fallback otherwise. Never fails.
func Count(text, model string) int {
	if text == "" {
		return 0
	}

	mu.RLock()
	enc := encoders[encodingFor(model)]
	mu.RUnlock()

	if enc == nil {
		if OnFallback != nil {
			OnFallback()
		}
		return FallbackCount(text)
	}
	return len(enc.Encode(text, nil, nil))
}

// OnFallback, when set, is invoked once per count that used the approximate
// path instead of an exact encoder. Set it before serving starts.
var OnFallback func()

// FallbackCount approximates tokens as ceil(len/4) over characters.
func FallbackCount(text string) int {
	n := utf8.RuneCountInString(text)
	return (n + 3) / 4
}

// IsReasoningModel reports whether the model family bills hidden reasoning
// tokens and uses the o200k encoding.
func IsReasoningModel(model string) bool {
	return len(model) >= 2 && model[0] == 'o' && model[1] >= '1' && model[1] <= '9'
}

func encodingFor(model string) string {
	if IsReasoningModel(model) {
		return encodingReasoning
	}
	return encodingStandard
}
