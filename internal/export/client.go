// Package export implements the backend inventory-store client and the
// idempotent export engine that drives it.
package export

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jonesrussell/ml-inventory/internal/domain"
	"github.com/jonesrussell/ml-inventory/internal/fetcher"
	"github.com/jonesrussell/ml-inventory/internal/logger"
	"github.com/jonesrussell/ml-inventory/internal/retry"
)

const (
	// DefaultBaseURL is the default backend base URL.
	DefaultBaseURL = "https://smartloansbackend.azurewebsites.net"
	// DefaultTimeout is the default timeout for backend requests.
	DefaultTimeout = 30 * time.Second
	// DefaultPageSize is the page size used when walking the query endpoint.
	DefaultPageSize = 200
	// fxWalkBackDays is how far back the FX lookup walks when the backend has
	// no rate for a given day.
	fxWalkBackDays = 7
)

// Client is an HTTP client for the backend inventory store.
//
// The query endpoints are public; only the upsert endpoint carries the
// worker credential header.
type Client struct {
	baseURL      string
	workerKey    string
	httpClient   *http.Client
	queryPolicy  retry.Policy
	upsertPolicy retry.Policy
	log          logger.Interface
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithBaseURL sets the backend base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) { c.baseURL = baseURL }
}

// WithWorkerKey sets the X-Worker-Key credential for mutating calls.
func WithWorkerKey(key string) Option {
	return func(c *Client) { c.workerKey = key }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) { c.httpClient = httpClient }
}

// WithTimeout sets the timeout for backend requests.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) { c.httpClient.Timeout = timeout }
}

// WithQueryPolicy sets the transport retry policy for read calls.
func WithQueryPolicy(p retry.Policy) Option {
	return func(c *Client) { c.queryPolicy = p }
}

// WithUpsertPolicy sets the transport retry policy for the upsert call.
func WithUpsertPolicy(p retry.Policy) Option {
	return func(c *Client) { c.upsertPolicy = p }
}

// WithLogger sets the logger.
func WithLogger(log logger.Interface) Option {
	return func(c *Client) { c.log = log }
}

// errMalformedBody marks a 2xx response whose body did not decode. Permanent:
// retrying will not fix a backend that answers with garbage.
var errMalformedBody = errors.New("malformed response body")

func isRetryable(err error) bool {
	if errors.Is(err, errMalformedBody) {
		return false
	}
	return fetcher.IsRetryable(err)
}

// NewClient creates a backend client.
func NewClient(opts ...Option) *Client {
	queryPolicy := retry.DefaultPolicy()
	queryPolicy.IsRetryable = isRetryable

	upsertPolicy := queryPolicy
	upsertPolicy.MaxAttempts = 5
	upsertPolicy.MaxDelay = 60 * time.Second

	client := &Client{
		baseURL:      DefaultBaseURL,
		httpClient:   &http.Client{Timeout: DefaultTimeout},
		queryPolicy:  queryPolicy,
		upsertPolicy: upsertPolicy,
		log:          logger.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client
}

// QueryRow is one row of the backend's sell-listing query responses.
type QueryRow struct {
	TotalRows     int     `json:"totalRows"`
	Page          int     `json:"page"`
	PageSize      int     `json:"pageSize"`
	SellListingID int64   `json:"sellListingId"`
	Channel       string  `json:"channel"`
	Market        string  `json:"market"`
	ChannelItemID string  `json:"channelItemId"`
	Title         string  `json:"title"`
	SellPriceUSD  float64 `json:"sellPriceUsd"`
	FxAsOfDate    string  `json:"fxAsOfDate"`
	UpdatedAt     string  `json:"updatedAt"`
}

// UpsertResult reports the outcome of one upsert call.
type UpsertResult struct {
	OK            bool
	StatusCode    int
	ExportedCount int
	Message       string
}

type queryFilter struct {
	Channel  string `json:"channel"`
	Market   string `json:"market"`
	Page     int    `json:"page"`
	PageSize int    `json:"pageSize"`
}

type queryRequest struct {
	SellListings []queryFilter `json:"sellListings"`
}

type queryResponse struct {
	Error int        `json:"error"`
	Msg   string     `json:"msg"`
	Rows  []QueryRow `json:"sellListingsQuery"`
}

type allResponse struct {
	Error int        `json:"error"`
	Msg   string     `json:"msg"`
	Rows  []QueryRow `json:"sellListings"`
}

type upsertRequest struct {
	SellListings []domain.SellListing `json:"sellListings"`
}

type upsertResponse struct {
	Error   int    `json:"error"`
	Msg     string `json:"msg"`
	Message string `json:"message"`
}

type fxRequest struct {
	ExchangeRates []fxFilter `json:"exchangeRates"`
}

type fxFilter struct {
	AsOfDate string `json:"asOfDate"`
}

type fxResponse struct {
	Error         int      `json:"error"`
	ExchangeRates []fxRate `json:"exchangeRates"`
}

type fxRate struct {
	AsOfDate string   `json:"asOfDate"`
	Rate     *float64 `json:"rate"`
}

// QuerySellListings fetches one page of listings for a channel/market.
func (c *Client) QuerySellListings(ctx context.Context, channel, market string, page, pageSize int) ([]QueryRow, error) {
	body := queryRequest{SellListings: []queryFilter{{
		Channel:  channel,
		Market:   market,
		Page:     page,
		PageSize: pageSize,
	}}}

	var resp queryResponse
	err := retry.Do(ctx, c.queryPolicy, func() error {
		return c.doJSON(ctx, http.MethodPost, "/query_sellListings", body, &resp, false)
	})
	if err != nil {
		return nil, fmt.Errorf("query sell listings: %w", err)
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("backend error %d: %s", resp.Error, resp.Msg)
	}

	return resp.Rows, nil
}

// ExistingChannelKeys walks every query page and returns the set of channel
// keys the backend already knows for this channel/market.
func (c *Client) ExistingChannelKeys(ctx context.Context, channel, market string) (map[string]struct{}, error) {
	keys := make(map[string]struct{})

	for page := 1; ; page++ {
		rows, err := c.QuerySellListings(ctx, channel, market, page, DefaultPageSize)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			break
		}

		for _, row := range rows {
			if row.ChannelItemID != "" {
				keys[row.ChannelItemID] = struct{}{}
			}
		}

		if len(keys) >= rows[0].TotalRows || len(rows) < DefaultPageSize {
			break
		}
	}

	return keys, nil
}

// AllSellListings fetches every listing the backend stores, across channels.
func (c *Client) AllSellListings(ctx context.Context) ([]QueryRow, error) {
	var resp allResponse
	err := retry.Do(ctx, c.queryPolicy, func() error {
		return c.doJSON(ctx, http.MethodGet, "/all_sellListings", nil, &resp, false)
	})
	if err != nil {
		return nil, fmt.Errorf("all sell listings: %w", err)
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("backend error %d: %s", resp.Error, resp.Msg)
	}

	return resp.Rows, nil
}

// PostSellListings upserts listings. The only mutating call; it carries the
// worker credential header. An application-level error in the response body
// is reported in the result, not as a transport error.
func (c *Client) PostSellListings(ctx context.Context, listings []domain.SellListing) (*UpsertResult, error) {
	body := upsertRequest{SellListings: listings}

	var resp upsertResponse
	var statusCode int
	err := retry.Do(ctx, c.upsertPolicy, func() error {
		code, doErr := c.doJSONStatus(ctx, http.MethodPost, "/sellListings", body, &resp, true)
		statusCode = code
		return doErr
	})
	if err != nil {
		return nil, fmt.Errorf("post sell listings: %w", err)
	}

	if resp.Error != 0 {
		msg := resp.Msg
		if msg == "" {
			msg = resp.Message
		}
		c.log.Error("backend rejected upsert", "error_code", resp.Error, "message", msg)
		return &UpsertResult{OK: false, StatusCode: statusCode, Message: msg}, nil
	}

	return &UpsertResult{OK: true, StatusCode: statusCode, ExportedCount: len(listings)}, nil
}

// GetExchangeRate fetches the MXN to USD rate for one calendar day.
// Returns false when the backend has no rate for that day.
func (c *Client) GetExchangeRate(ctx context.Context, asOfDate string) (float64, bool, error) {
	body := fxRequest{ExchangeRates: []fxFilter{{AsOfDate: asOfDate}}}

	var resp fxResponse
	if err := c.doJSON(ctx, http.MethodPost, "/exchange_rate_by_day", body, &resp, false); err != nil {
		return 0, false, fmt.Errorf("exchange rate for %s: %w", asOfDate, err)
	}

	if resp.Error != 0 || len(resp.ExchangeRates) == 0 || resp.ExchangeRates[0].Rate == nil {
		return 0, false, nil
	}

	return *resp.ExchangeRates[0].Rate, true, nil
}

// ExchangeRateWalkBack tries today's rate first and walks back up to seven
// days, returning the rate and the date it was obtained for.
func (c *Client) ExchangeRateWalkBack(ctx context.Context, now time.Time) (float64, string, error) {
	var lastErr error

	for daysBack := 0; daysBack <= fxWalkBackDays; daysBack++ {
		candidate := now.UTC().AddDate(0, 0, -daysBack).Format("2006-01-02")

		rate, found, err := c.GetExchangeRate(ctx, candidate)
		if err != nil {
			lastErr = err
			continue
		}
		if found {
			if daysBack > 0 {
				c.log.Warn("fx rate is stale", "as_of", candidate, "days_back", daysBack)
			}
			return rate, candidate, nil
		}
	}

	if lastErr != nil {
		return 0, "", fmt.Errorf("no fx rate in the last %d days: %w", fxWalkBackDays+1, lastErr)
	}
	return 0, "", fmt.Errorf("no fx rate in the last %d days", fxWalkBackDays+1)
}

// doJSON performs one JSON request/response exchange.
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, respBody any, withWorkerKey bool) error {
	_, err := c.doJSONStatus(ctx, method, path, reqBody, respBody, withWorkerKey)
	return err
}

func (c *Client) doJSONStatus(ctx context.Context, method, path string, reqBody, respBody any, withWorkerKey bool) (int, error) {
	var reader io.Reader = http.NoBody
	if reqBody != nil {
		encoded, err := json.Marshal(reqBody)
		if err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if withWorkerKey && c.workerKey != "" {
		req.Header.Set("X-Worker-Key", c.workerKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("backend request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return resp.StatusCode, &fetcher.StatusError{Code: resp.StatusCode, URL: c.baseURL + path}
	}

	if decodeErr := json.NewDecoder(resp.Body).Decode(respBody); decodeErr != nil {
		return resp.StatusCode, fmt.Errorf("%w: %w", errMalformedBody, decodeErr)
	}

	return resp.StatusCode, nil
}
