// Package billing reads usage and subscription data from the OpenAI
// dashboard API for the options UI's spend view.
package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/oauth2"
)

// DefaultBaseURL is the dashboard API root.
const DefaultBaseURL = "https://api.openai.com/v1"

// Client is an authenticated dashboard API client.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient builds a client whose requests carry the API key as a Bearer
// token via an oauth2 static token source.
func NewClient(apiKey string) *Client {
	source := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: apiKey})
	return &Client{
		baseURL: DefaultBaseURL,
		httpClient: &http.Client{
			Transport: &oauth2.Transport{Source: source},
			Timeout:   30 * time.Second,
		},
	}
}

// NewClientWithBase overrides the API root, for tests.
func NewClientWithBase(apiKey, baseURL string) *Client {
	c := NewClient(apiKey)
	c.baseURL = baseURL
	return c
}

// apiError is the dashboard's error envelope.
type apiError struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) get(ctx context.Context, endpoint string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+endpoint, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("billing request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read billing response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var envelope apiError
		if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
			return fmt.Errorf("billing API error: %s", envelope.Error.Message)
		}
		return fmt.Errorf("billing API request failed: %d", resp.StatusCode)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode billing response: %w", err)
	}
	return nil
}

// LineItem is one model family's share of a day's spend, in cents.
type LineItem struct {
	Name      string  `json:"name"`
	Cost      float64 `json:"cost"`
	NRequests int     `json:"n_requests"`
}

// DailyCost is one day of dashboard usage.
type DailyCost struct {
	Timestamp float64    `json:"timestamp"`
	LineItems []LineItem `json:"line_items"`
}

// UsageResponse is the /dashboard/billing/usage payload. TotalUsage and all
// line item costs are denominated in cents.
type UsageResponse struct {
	TotalUsage float64     `json:"total_usage"`
	DailyCosts []DailyCost `json:"daily_costs"`
}

// Subscription is the /dashboard/billing/subscription payload.
type Subscription struct {
	HasPaymentMethod bool    `json:"has_payment_method"`
	HardLimitUSD     float64 `json:"hard_limit_usd"`
	SoftLimitUSD     float64 `json:"soft_limit_usd"`
	PlanTitle        string  `json:"plan,omitempty"`
	AccessUntil      float64 `json:"access_until"`
}

// Usage fetches usage for an inclusive date range (YYYY-MM-DD).
func (c *Client) Usage(ctx context.Context, startDate, endDate string) (*UsageResponse, error) {
	var usage UsageResponse
	endpoint := fmt.Sprintf("/dashboard/billing/usage?start_date=%s&end_date=%s", startDate, endDate)
	if err := c.get(ctx, endpoint, &usage); err != nil {
		return nil, err
	}
	return &usage, nil
}

// BillingSubscription fetches plan limits and payment state.
func (c *Client) BillingSubscription(ctx context.Context) (*Subscription, error) {
	var sub Subscription
	if err := c.get(ctx, "/dashboard/billing/subscription", &sub); err != nil {
		return nil, err
	}
	return &sub, nil
}

// ValidateKey checks the API key by listing models.
func (c *Client) ValidateKey(ctx context.Context) (bool, error) {
	var models struct {
		Data []json.RawMessage `json:"data"`
	}
	if err := c.get(ctx, "/models", &models); err != nil {
		return false, err
	}
	return true, nil
}

// MonthUsage bundles usage with subscription for one billing period.
type MonthUsage struct {
	Usage        *UsageResponse `json:"usage"`
	Subscription *Subscription  `json:"subscription,omitempty"`
	PeriodStart  string         `json:"periodStart"`
	PeriodEnd    string         `json:"periodEnd"`
}

// CurrentMonthUsage fetches the current calendar month. A subscription fetch
// failure is tolerated; usage alone is still useful.
func (c *Client) CurrentMonthUsage(ctx context.Context) (*MonthUsage, error) {
	now := time.Now()
	firstDay := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	lastDay := firstDay.AddDate(0, 1, -1)

	start := firstDay.Format("2006-01-02")
	end := lastDay.Format("2006-01-02")

	usage, err := c.Usage(ctx, start, end)
	if err != nil {
		return nil, err
	}
	sub, err := c.BillingSubscription(ctx)
	if err != nil {
		sub = nil
	}
	return &MonthUsage{
		Usage:        usage,
		Subscription: sub,
		PeriodStart:  start,
		PeriodEnd:    end,
	}, nil
}

// DailyUsage fetches the trailing N days.
func (c *Client) DailyUsage(ctx context.Context, days int) (*UsageResponse, error) {
	end := time.Now()
	start := end.AddDate(0, 0, -days)
	return c.Usage(ctx, start.Format("2006-01-02"), end.Format("2006-01-02"))
}
