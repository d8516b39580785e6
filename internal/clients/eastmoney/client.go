// Package eastmoney provides a client for the Eastmoney public fund endpoints
package eastmoney

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/ldsbg/fundkeeper/internal/common"
	"github.com/ldsbg/fundkeeper/internal/interfaces"
	"github.com/ldsbg/fundkeeper/internal/models"
)

const (
	DefaultBaseURL        = "http://fundgz.1234567.com.cn"
	DefaultHistoryBaseURL = "http://api.fund.eastmoney.com"
	DefaultTimeout        = 10 * time.Second
	DefaultRateLimit      = 10 // requests per second

	// The endpoints reject requests without a browser UA and referer.
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"
	referer   = "http://fund.eastmoney.com/"
)

// Client implements the FundDataClient interface
type Client struct {
	baseURL        string
	historyBaseURL string
	httpClient     *http.Client
	logger         *common.Logger
	limiter        *rate.Limiter
}

// ClientOption configures the client
type ClientOption func(*Client)

// WithBaseURL sets the quote endpoint base URL
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHistoryBaseURL sets the NAV history endpoint base URL
func WithHistoryBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.historyBaseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithLogger sets the logger
func WithLogger(logger *common.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithRateLimit sets the rate limit
func WithRateLimit(requestsPerSecond int) ClientOption {
	return func(c *Client) {
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), requestsPerSecond)
	}
}

// WithTimeout sets the HTTP timeout
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.httpClient.Timeout = timeout
	}
}

// NewClient creates a new Eastmoney client
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:        DefaultBaseURL,
		historyBaseURL: DefaultHistoryBaseURL,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter: rate.NewLimiter(rate.Limit(DefaultRateLimit), DefaultRateLimit),
		logger:  common.NewSilentLogger(),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// APIError represents an upstream API error
type APIError struct {
	StatusCode int
	Message    string
	Endpoint   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("eastmoney API error: %s (status: %d, endpoint: %s)", e.Message, e.StatusCode, e.Endpoint)
}

// get performs a rate-limited GET with the browser headers the
// endpoints require, returning the raw body.
func (c *Client) get(ctx context.Context, reqURL, endpoint string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	c.logger.Debug().Str("url", reqURL).Msg("Eastmoney API request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Endpoint:   endpoint,
		}
	}

	return body, nil
}

// quoteResponse is the payload inside the jsonpgz(...) wrapper.
// Every numeric field arrives as a string.
type quoteResponse struct {
	FundCode string `json:"fundcode"`
	Name     string `json:"name"`
	NavDate  string `json:"jzrq"`
	PriorNav string `json:"dwjz"`
	Estimate string `json:"gsz"`
	ChangePc string `json:"gszzl"`
	Time     string `json:"gztime"`
}

// GetQuote retrieves the near-real-time valuation for a fund.
func (c *Client) GetQuote(ctx context.Context, fundID string) (*models.FundQuote, error) {
	reqURL := fmt.Sprintf("%s/js/%s.js?rt=%d", c.baseURL, fundID, time.Now().UnixMilli())

	body, err := c.get(ctx, reqURL, "/js/"+fundID+".js")
	if err != nil {
		return nil, err
	}

	payload, err := unwrapJSONP(body)
	if err != nil {
		return nil, fmt.Errorf("fund %s: %w", fundID, err)
	}

	var raw quoteResponse
	if err := json.Unmarshal(payload, &raw); err != nil {
		return nil, fmt.Errorf("fund %s: failed to decode quote: %w", fundID, err)
	}
	if raw.FundCode == "" {
		return nil, fmt.Errorf("fund %s: empty quote payload", fundID)
	}

	priorNav, err := strconv.ParseFloat(raw.PriorNav, 64)
	if err != nil {
		return nil, fmt.Errorf("fund %s: bad prior nav %q: %w", fundID, raw.PriorNav, err)
	}
	estimate, err := strconv.ParseFloat(raw.Estimate, 64)
	if err != nil {
		return nil, fmt.Errorf("fund %s: bad estimate %q: %w", fundID, raw.Estimate, err)
	}
	changePct, err := strconv.ParseFloat(strings.TrimSuffix(raw.ChangePc, "%"), 64)
	if err != nil {
		return nil, fmt.Errorf("fund %s: bad change pct %q: %w", fundID, raw.ChangePc, err)
	}

	quote := &models.FundQuote{
		FundID:    raw.FundCode,
		Name:      raw.Name,
		NavDate:   raw.NavDate,
		PriorNav:  priorNav,
		Estimate:  estimate,
		ChangePct: changePct,
		QuoteTime: raw.Time,
		Retrieved: time.Now(),
	}

	c.logger.Debug().
		Str("fund", quote.FundID).
		Float64("estimate", quote.Estimate).
		Float64("change_pct", quote.ChangePct).
		Msg("Quote retrieved")

	return quote, nil
}

// unwrapJSONP extracts the JSON object from a jsonpgz({...}); envelope.
func unwrapJSONP(body []byte) ([]byte, error) {
	s := string(body)
	open := strings.Index(s, "(")
	end := strings.LastIndex(s, ")")
	if open < 0 || end < 0 || end <= open+1 {
		return nil, fmt.Errorf("malformed JSONP envelope")
	}
	return []byte(s[open+1 : end]), nil
}

// historyResponse is the f10/lsjz payload. NAVs arrive as strings.
type historyResponse struct {
	Data struct {
		LSJZList []struct {
			Date string `json:"FSRQ"`
			Nav  string `json:"DWJZ"`
		} `json:"LSJZList"`
	} `json:"Data"`
}

// GetNavHistory retrieves published NAVs covering the lookback window,
// sorted ascending by date. The endpoint pages newest-first, so the page
// size is padded to cover non-trading days inside the window.
func (c *Client) GetNavHistory(ctx context.Context, fundID string, days int) ([]models.NavPoint, error) {
	if days <= 0 {
		days = 30
	}

	reqURL := fmt.Sprintf("%s/f10/lsjz?fundCode=%s&pageIndex=1&pageSize=%d", c.historyBaseURL, fundID, days+20)

	body, err := c.get(ctx, reqURL, "/f10/lsjz")
	if err != nil {
		return nil, err
	}

	var raw historyResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("fund %s: failed to decode history: %w", fundID, err)
	}

	cutoff := time.Now().AddDate(0, 0, -days)
	points := make([]models.NavPoint, 0, len(raw.Data.LSJZList))
	for _, row := range raw.Data.LSJZList {
		date, err := time.Parse("2006-01-02", row.Date)
		if err != nil {
			continue
		}
		if date.Before(cutoff) {
			continue
		}
		nav, err := strconv.ParseFloat(row.Nav, 64)
		if err != nil {
			continue
		}
		points = append(points, models.NavPoint{Date: date, Nav: nav})
	}

	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	c.logger.Debug().
		Str("fund", fundID).
		Int("days", days).
		Int("points", len(points)).
		Msg("NAV history retrieved")

	return points, nil
}

// Ensure Client implements FundDataClient
var _ interfaces.FundDataClient = (*Client)(nil)
