// Package api exposes the metering message contract over HTTP: session
// queries, settings and tag management, and report generation for the popup
// and options UIs.
package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/overlay"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/session"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/settings"
)

// TabHeader selects which tab's session an API call addresses.
const TabHeader = "X-Meter-Tab"

// recentMessages is how many history entries session responses carry.
const recentMessages = 10

func tabIDFrom(r *http.Request) string {
	if tab := strings.TrimSpace(r.Header.Get(TabHeader)); tab != "" {
		return tab
	}
	return "default"
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// FinalHandler applies a finalized exchange from an out-of-process tap.
func FinalHandler(agg *session.Aggregator, hub *overlay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Metrics meter.ExchangeMetrics `json:"metrics"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}

		tabID := tabIDFrom(r)
		totals := agg.RecordFinal(tabID, payload.Metrics)
		if hub != nil {
			hub.Broadcast(overlay.EventFinal, tabID, map[string]interface{}{
				"metrics": payload.Metrics,
				"totals":  totals,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":         true,
			"totals":     totals,
			"perMessage": agg.History(tabID, recentMessages),
		})
	}
}

// PartialHandler reports an in-flight exchange without mutating totals.
func PartialHandler(agg *session.Aggregator, hub *overlay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Metrics meter.ExchangeMetrics `json:"metrics"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}

		tabID := tabIDFrom(r)
		totals := agg.RecordPartial(tabID, payload.Metrics)
		if hub != nil {
			hub.Broadcast(overlay.EventPartial, tabID, map[string]interface{}{
				"metrics": payload.Metrics,
				"totals":  totals,
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":     true,
			"totals": totals,
		})
	}
}

// ResetHandler clears the tab's session.
func ResetHandler(agg *session.Aggregator, hub *overlay.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tabID := tabIDFrom(r)
		agg.Reset(tabID)
		if hub != nil {
			hub.Broadcast(overlay.EventReset, tabID, nil)
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

// GetSessionHandler returns the tab's running totals and recent history.
func GetSessionHandler(agg *session.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tabID := tabIDFrom(r)
		totals, ok := agg.GetSession(tabID)
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{"ok": false})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":         true,
			"totals":     totals,
			"perMessage": agg.History(tabID, recentMessages),
		})
	}
}

// GetSettingsHandler returns the full settings document.
func GetSettingsHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":       true,
			"settings": store.Get(),
		})
	}
}

// UpdateSettingsHandler replaces the settings document.
func UpdateSettingsHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var doc settings.Settings
		if err := json.NewDecoder(r.Body).Decode(&doc); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}
		updated, err := store.Update(doc)
		if err != nil {
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":       true,
			"settings": updated,
		})
	}
}

// GetTagsHandler lists configured tags.
func GetTagsHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":   true,
			"tags": store.Tags(),
		})
	}
}

// CreateTagHandler adds a tag.
func CreateTagHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tag settings.Tag
		if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}
		created, err := store.CreateTag(tag)
		if err != nil {
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusConflict)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]interface{}{
			"ok":  true,
			"tag": created,
		})
	}
}

// UpdateTagHandler renames or recolors a tag; the ID is immutable.
func UpdateTagHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var tag settings.Tag
		if err := json.NewDecoder(r.Body).Decode(&tag); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}
		updated, err := store.UpdateTag(chi.URLParam(r, "id"), tag)
		if err != nil {
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":  true,
			"tag": updated,
		})
	}
}

// DeleteTagHandler removes a tag, leaving its history attributable by ID.
func DeleteTagHandler(store *settings.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeleteTag(chi.URLParam(r, "id")); err != nil {
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"ok": true})
	}
}

// SetTagHandler assigns (or clears, with an empty tagId) the tab's tag.
func SetTagHandler(agg *session.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			TagID string `json:"tagId"`
		}
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			http.Error(w, `{"error": "Invalid request body"}`, http.StatusBadRequest)
			return
		}
		totals, err := agg.SetTag(tabIDFrom(r), payload.TagID)
		if err != nil {
			http.Error(w, `{"error": "`+err.Error()+`"}`, http.StatusBadRequest)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":     true,
			"totals": totals,
		})
	}
}

// TagReportHandler aggregates per-tag totals over an inclusive date range.
func TagReportHandler(agg *session.Aggregator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := r.URL.Query().Get("startDate")
		end := r.URL.Query().Get("endDate")
		if start == "" || end == "" {
			http.Error(w, `{"error": "startDate and endDate are required"}`, http.StatusBadRequest)
			return
		}
		report, err := agg.TagReport(start, end)
		if err != nil {
			http.Error(w, `{"error": "Failed to build report"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"ok":     true,
			"report": report,
		})
	}
}

// Mount attaches the message contract under /api.
func Mount(r chi.Router, agg *session.Aggregator, store *settings.Store, hub *overlay.Hub) {
	r.Route("/session", func(r chi.Router) {
		r.Get("/", GetSessionHandler(agg))
		r.Post("/final", FinalHandler(agg, hub))
		r.Post("/partial", PartialHandler(agg, hub))
		r.Post("/reset", ResetHandler(agg, hub))
		r.Post("/tag", SetTagHandler(agg))
	})
	r.Route("/settings", func(r chi.Router) {
		r.Get("/", GetSettingsHandler(store))
		r.Put("/", UpdateSettingsHandler(store))
	})
	r.Route("/tags", func(r chi.Router) {
		r.Get("/", GetTagsHandler(store))
		r.Post("/", CreateTagHandler(store))
		r.Put("/{id}", UpdateTagHandler(store))
		r.Delete("/{id}", DeleteTagHandler(store))
	})
	r.Get("/reports/tags", TagReportHandler(agg))
}
