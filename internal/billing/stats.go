package billing

import "time"

// DayUsage is one parsed day, in dollars.
type DayUsage struct {
	Date     time.Time `json:"date"`
	CostUSD  float64   `json:"costUSD"`
	Requests int       `json:"requests"`
}

// ParsedUsage is the dashboard response reduced to dollars and days.
type ParsedUsage struct {
	TotalCostUSD  float64    `json:"totalCostUSD"`
	TotalRequests int        `json:"totalRequests"`
	Daily         []DayUsage `json:"daily"`
}

// ParseUsage flattens a usage response, converting the dashboard's cents to
// dollars.
func ParseUsage(usage *UsageResponse) *ParsedUsage {
	if usage == nil || len(usage.DailyCosts) == 0 {
		return nil
	}

	parsed := &ParsedUsage{}
	for _, day := range usage.DailyCosts {
		var dayCost float64
		var dayRequests int
		for _, item := range day.LineItems {
			dayCost += item.Cost
			dayRequests += item.NRequests
		}
		parsed.TotalCostUSD += dayCost
		parsed.TotalRequests += dayRequests
		parsed.Daily = append(parsed.Daily, DayUsage{
			Date:     time.Unix(int64(day.Timestamp), 0),
			CostUSD:  dayCost / 100,
			Requests: dayRequests,
		})
	}
	parsed.TotalCostUSD /= 100
	return parsed
}

// Trend labels for Stats.
const (
	TrendIncreasing = "increasing"
	TrendDecreasing = "decreasing"
	TrendStable     = "stable"
)

// Stats summarizes parsed usage.
type Stats struct {
	AvgDailyCostUSD  float64  `json:"avgDailyCostUSD"`
	AvgDailyRequests int      `json:"avgDailyRequests"`
	PeakDay          DayUsage `json:"peakDay"`
	Trend            string   `json:"trend"`
	TrendValue       float64  `json:"trendValue"`
}

// CalculateStats derives averages, the peak day, and a spend trend from the
// slope of a least-squares line over the daily costs.
func CalculateStats(parsed *ParsedUsage) *Stats {
	if parsed == nil || len(parsed.Daily) == 0 {
		return nil
	}

	n := len(parsed.Daily)
	peak := parsed.Daily[0]
	var sumX, sumY, sumXY, sumX2 float64
	for i, day := range parsed.Daily {
		if day.CostUSD > peak.CostUSD {
			peak = day
		}
		x := float64(i)
		sumX += x
		sumY += day.CostUSD
		sumXY += x * day.CostUSD
		sumX2 += x * x
	}

	nf := float64(n)
	var slope float64
	if denom := nf*sumX2 - sumX*sumX; denom != 0 {
		slope = (nf*sumXY - sumX*sumY) / denom
	}

	trend := TrendStable
	if slope > 0 {
		trend = TrendIncreasing
	} else if slope < 0 {
		trend = TrendDecreasing
	}

	return &Stats{
		AvgDailyCostUSD:  parsed.TotalCostUSD / nf,
		AvgDailyRequests: int(float64(parsed.TotalRequests)/nf + 0.5),
		PeakDay:          peak,
		Trend:            trend,
		TrendValue:       slope,
	}
}
