package upstream

import "net/http"

// CopyForwardHeaders copies client request headers onto the upstream request,
// dropping hop-by-hop headers and the meter's own control headers. The
// client's Authorization header passes through untouched; the meter never
// substitutes credentials.
func CopyForwardHeaders(dst, src http.Header) {
	for k, values := range src {
		canonical := http.CanonicalHeaderKey(k)
		if shouldSkipRequestHeader(canonical) {
			continue
		}
		for _, v := range values {
			dst.Add(canonical, v)
		}
	}
}

func shouldSkipRequestHeader(header string) bool {
	switch header {
	case "X-Meter-Tab",
		"Accept-Encoding",
		"Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Host":
		return true
	default:
		return false
	}
}

// CopyResponseHeaders copies upstream response headers downstream, dropping
// hop-by-hop headers so chunked streaming is re-negotiated per hop.
func CopyResponseHeaders(dst, src http.Header) {
	for k, values := range src {
		canonical := http.CanonicalHeaderKey(k)
		if shouldSkipResponseHeader(canonical) {
			continue
		}
		for _, v := range values {
			dst.Add(canonical, v)
		}
	}
}

func shouldSkipResponseHeader(header string) bool {
	switch header {
	case "Connection",
		"Proxy-Connection",
		"Keep-Alive",
		"Transfer-Encoding",
		"Te",
		"Trailer",
		"Upgrade",
		"Proxy-Authenticate",
		"Proxy-Authorization",
		"Content-Length":
		return true
	default:
		return false
	}
}
