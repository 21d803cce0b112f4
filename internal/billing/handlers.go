package billing

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]interface{}{"ok": false, "error": err.Error()})
}

// Mount exposes the read-only billing surface. All handlers proxy the
// dashboard API with the server-side key; the key itself never leaves the
// process.
func Mount(r chi.Router, client *Client) {
	r.Get("/usage", func(w http.ResponseWriter, req *http.Request) {
		start := req.URL.Query().Get("startDate")
		end := req.URL.Query().Get("endDate")
		if start == "" || end == "" {
			writeJSON(w, http.StatusBadRequest, map[string]interface{}{
				"ok": false, "error": "startDate and endDate are required",
			})
			return
		}
		usage, err := client.Usage(req.Context(), start, end)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		parsed := ParseUsage(usage)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"usage": parsed,
			"stats": CalculateStats(parsed),
		})
	})

	r.Get("/subscription", func(w http.ResponseWriter, req *http.Request) {
		sub, err := client.BillingSubscription(req.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "subscription": sub})
	})

	r.Get("/validate", func(w http.ResponseWriter, req *http.Request) {
		valid, err := client.ValidateKey(req.Context())
		payload := map[string]interface{}{"ok": true, "valid": valid}
		if err != nil {
			payload["error"] = err.Error()
		}
		writeJSON(w, http.StatusOK, payload)
	})

	r.Get("/month", func(w http.ResponseWriter, req *http.Request) {
		month, err := client.CurrentMonthUsage(req.Context())
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true, "month": month})
	})

	r.Get("/daily", func(w http.ResponseWriter, req *http.Request) {
		days := 30
		if raw := req.URL.Query().Get("days"); raw != "" {
			if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
				days = parsed
			}
		}
		usage, err := client.DailyUsage(req.Context(), days)
		if err != nil {
			writeError(w, http.StatusBadGateway, err)
			return
		}
		parsed := ParseUsage(usage)
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":    true,
			"usage": parsed,
			"stats": CalculateStats(parsed),
		})
	})
}
