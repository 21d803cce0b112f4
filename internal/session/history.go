package session

import (
	"encoding/json"
	"log"
	"sort"

	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/db/models"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/meter"
	"github.com/bailey-caldwell-sb/revenium-chatgpt-meter/internal/pricing"
)

// untaggedKey buckets exchanges recorded with no tag assigned.
const untaggedKey = "untagged"

// dayTotals is one model's or tag's share of a calendar day.
type dayTotals struct {
	CostUSD          float64 `json:"costUSD"`
	PromptTokens     int     `json:"promptTokens"`
	CompletionTokens int     `json:"completionTokens"`
	Messages         int     `json:"messages"`
}

// TagReportDay is one day's contribution within a report entry.
type TagReportDay struct {
	Date     string  `json:"date"`
	CostUSD  float64 `json:"costUSD"`
	Tokens   int     `json:"tokens"`
	Messages int     `json:"messages"`
}

// TagReportEntry aggregates one tag across the requested range.
type TagReportEntry struct {
	TagID        string         `json:"tagId"`
	TagName      string         `json:"tagName"`
	TagColor     string         `json:"tagColor,omitempty"`
	TotalCostUSD float64        `json:"totalCostUSD"`
	TotalTokens  int            `json:"totalTokens"`
	MessageCount int            `json:"messageCount"`
	Days         []TagReportDay `json:"days"`
}

// rollupLocked folds a finalized exchange into today's rollup. Skipped when
// the privacy settings disable history tracking.
func (a *Aggregator) rollupLocked(m meter.ExchangeMetrics, tagID string) {
	if !a.settings.Get().Privacy.StoreHistory {
		return
	}

	date := a.now().Format("2006-01-02")
	entry, err := db.LoadDailyHistory(a.db, date)
	if err != nil {
		log.Printf("[Session] Failed to load rollup for %s: %v", date, err)
		return
	}
	if entry == nil {
		entry = &models.DailyHistory{Date: date, ModelTotals: "{}", TagTotals: "{}"}
	}

	modelTotals := decodeTotals(entry.ModelTotals)
	model := m.Model
	if model == "" {
		model = meter.DefaultModel
	}
	addTotals(modelTotals, model, m)
	entry.ModelTotals = encodeTotals(modelTotals)

	tagTotals := decodeTotals(entry.TagTotals)
	if tagID == "" {
		tagID = untaggedKey
	}
	addTotals(tagTotals, tagID, m)
	entry.TagTotals = encodeTotals(tagTotals)

	if err := db.SaveDailyHistory(a.db, entry); err != nil {
		log.Printf("[Session] Failed to save rollup for %s: %v", date, err)
	}
}

// TagReport aggregates per-tag totals over an inclusive date range. Every
// configured tag gets an entry, zeros included; days with no stored rollup
// contribute nothing.
func (a *Aggregator) TagReport(startDate, endDate string) ([]TagReportEntry, error) {
	entries, err := db.LoadDailyHistoryRange(a.db, startDate, endDate)
	if err != nil {
		return nil, err
	}

	byTag := make(map[string]*TagReportEntry)
	order := []string{}
	ensure := func(tagID string) *TagReportEntry {
		report, ok := byTag[tagID]
		if !ok {
			report = &TagReportEntry{TagID: tagID, Days: []TagReportDay{}}
			byTag[tagID] = report
			order = append(order, tagID)
		}
		return report
	}

	// Every configured tag appears in the report, zero-usage ones included.
	for _, tag := range a.settings.Tags() {
		ensure(tag.ID)
	}
	ensure(untaggedKey)

	for _, day := range entries {
		for tagID, totals := range decodeTotals(day.TagTotals) {
			report := ensure(tagID)
			tokens := totals.PromptTokens + totals.CompletionTokens
			report.TotalCostUSD = pricing.Round6(report.TotalCostUSD + totals.CostUSD)
			report.TotalTokens += tokens
			report.MessageCount += totals.Messages
			report.Days = append(report.Days, TagReportDay{
				Date:     day.Date,
				CostUSD:  totals.CostUSD,
				Tokens:   tokens,
				Messages: totals.Messages,
			})
		}
	}

	sort.Strings(order)
	result := make([]TagReportEntry, 0, len(order))
	for _, tagID := range order {
		report := byTag[tagID]
		if tagID == untaggedKey {
			report.TagName = "Untagged"
		} else if tag, ok := a.settings.FindTag(tagID); ok {
			report.TagName = tag.Name
			report.TagColor = tag.Color
		} else {
			// Deleted tags keep their rollups attributable by ID.
			report.TagName = tagID
		}
		result = append(result, *report)
	}
	return result, nil
}

func decodeTotals(raw string) map[string]dayTotals {
	totals := make(map[string]dayTotals)
	if raw == "" {
		return totals
	}
	if err := json.Unmarshal([]byte(raw), &totals); err != nil {
		log.Printf("[Session] Failed to decode rollup totals: %v", err)
	}
	return totals
}

func encodeTotals(totals map[string]dayTotals) string {
	data, err := json.Marshal(totals)
	if err != nil {
		log.Printf("[Session] Failed to encode rollup totals: %v", err)
		return "{}"
	}
	return string(data)
}

func addTotals(totals map[string]dayTotals, key string, m meter.ExchangeMetrics) {
	entry := totals[key]
	entry.CostUSD = pricing.Round6(entry.CostUSD + m.TotalCostUSD)
	entry.PromptTokens += m.PromptTokens
	entry.CompletionTokens += m.CompletionTokens
	entry.Messages++
	totals[key] = entry
}
