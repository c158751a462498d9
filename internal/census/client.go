package census

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lox/shrimpwatch/internal/httputil"
	"github.com/lox/shrimpwatch/internal/logger"
	"github.com/lox/shrimpwatch/internal/metrics"
	"github.com/lox/shrimpwatch/internal/models"
)

const (
	// DefaultBaseURL is the HS-level monthly imports time series.
	DefaultBaseURL = "https://api.census.gov/data/timeseries/intltrade/imports/hs"

	// Endpoint names the dataset in audit records.
	Endpoint = "timeseries/intltrade/imports/hs"
)

// Query selects one commodity code over an inclusive month range.
type Query struct {
	CommodityCode string
	From          string // YYYY-MM
	To            string // YYYY-MM
	Fields        []string
}

// Result is a parsed response plus what the audit ledger needs about the exchange.
// It is returned alongside errors whenever a response was received.
type Result struct {
	Table      Table
	Body       []byte
	HTTPStatus int
	Duration   time.Duration
}

// Client calls the Census international trade API.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewClient returns a client for baseURL (DefaultBaseURL if empty).
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  strings.TrimSpace(apiKey),
		client:  httputil.NewClient(timeout),
	}
}

// Fetch issues a single request covering every month in the query range.
// A 204 response is a valid empty result.
func (c *Client) Fetch(ctx context.Context, q Query) (*Result, error) {
	if c.apiKey == "" {
		return nil, ErrMissingAPIKey
	}

	reqURL, err := c.buildURL(q)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", httputil.UserAgent)

	logger.L().Debug().Str("commodity", q.CommodityCode).Str("from", q.From).Str("to", q.To).Msg("census: fetching")

	start := time.Now()
	resp, err := c.client.Do(req)
	elapsed := time.Since(start)
	metrics.CensusAPILatency.WithLabelValues(q.CommodityCode).Observe(elapsed.Seconds())
	if err != nil {
		metrics.CensusAPICallsTotal.WithLabelValues(q.CommodityCode, "error").Inc()
		return nil, fmt.Errorf("fetch %s: %w", q.CommodityCode, err)
	}
	defer resp.Body.Close()

	metrics.CensusAPICallsTotal.WithLabelValues(q.CommodityCode, strconv.Itoa(resp.StatusCode)).Inc()

	body, err := io.ReadAll(resp.Body)
	result := &Result{Body: body, HTTPStatus: resp.StatusCode, Duration: elapsed}
	if err != nil {
		return result, fmt.Errorf("read body: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusNoContent:
		return result, nil
	case http.StatusOK:
	default:
		return result, &FetchError{StatusCode: resp.StatusCode, Body: truncate(string(body), bodyExcerptLen)}
	}

	table, err := parseTable(body)
	if err != nil {
		return result, err
	}
	result.Table = table
	return result, nil
}

func (c *Client) buildURL(q Query) (string, error) {
	months, err := MonthRange(q.From, q.To)
	if err != nil {
		return "", err
	}

	fields := q.Fields
	if len(fields) == 0 {
		fields = models.RequestFields
	}

	params := url.Values{}
	params.Set("get", strings.Join(fields, ","))
	params.Set(models.ColCommodity, q.CommodityCode)
	params.Set("key", c.apiKey)
	for _, ym := range months {
		params.Add(models.ColYear, strconv.Itoa(ym.Year))
		params.Add(models.ColMonth, fmt.Sprintf("%02d", int(ym.Month)))
	}

	return c.baseURL + "?" + params.Encode(), nil
}
