// Package gsheets wraps the Google Sheets v4 values API for row-oriented
// table access.
package gsheets

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/time/rate"
)

// Default base URL for the Sheets v4 API.
const defaultBaseURL = "https://sheets.googleapis.com/v4"

// Client defines the Sheets operations used by the lead store.
type Client interface {
	GetValues(ctx context.Context, spreadsheetID, sheetName string) ([][]string, error)
	AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error
	UpdateCell(ctx context.Context, spreadsheetID, sheetName string, row, col int, value string) error
	AddSheet(ctx context.Context, spreadsheetID, title string) error
}

// APIError is returned when the Sheets API responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gsheets: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsMissingSheet reports whether err is the Sheets error for a range that
// names a worksheet the spreadsheet does not have.
func IsMissingSheet(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) &&
		apiErr.StatusCode == http.StatusBadRequest &&
		strings.Contains(apiErr.Body, "Unable to parse range")
}

// Option configures the httpClient.
type Option func(*httpClient)

// WithBaseURL overrides the default base URL.
func WithBaseURL(url string) Option {
	return func(c *httpClient) {
		c.baseURL = url
	}
}

// WithHTTPClient sets a custom *http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *httpClient) {
		c.http = hc
	}
}

// WithRateLimit overrides the default request rate (1 req/s sustained).
func WithRateLimit(rps float64) Option {
	return func(c *httpClient) {
		if rps > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(rps), max(int(rps), 1))
		} else {
			c.limiter = nil
		}
	}
}

// httpClient implements Client using net/http.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewClient creates a new Sheets client authenticated with an OAuth bearer
// token. Requests are throttled to the per-user Sheets quota (60 req/min)
// with a small burst allowance.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		limiter: rate.NewLimiter(1, 5),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// wait blocks until the rate limiter allows one event, or ctx is cancelled.
func (c *httpClient) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// valueRange mirrors the Sheets ValueRange resource. The default render
// option returns every cell as a formatted string.
type valueRange struct {
	Range  string     `json:"range,omitempty"`
	Values [][]string `json:"values,omitempty"`
}

type updateResponse struct {
	UpdatedCells int `json:"updatedCells"`
}

type appendResponse struct {
	Updates updateResponse `json:"updates"`
}

type sheetProperties struct {
	Title string `json:"title"`
}

type addSheetRequest struct {
	Properties sheetProperties `json:"properties"`
}

type batchUpdateEntry struct {
	AddSheet *addSheetRequest `json:"addSheet,omitempty"`
}

type batchUpdateRequest struct {
	Requests []batchUpdateEntry `json:"requests"`
}

func (c *httpClient) GetValues(ctx context.Context, spreadsheetID, sheetName string) ([][]string, error) {
	path := fmt.Sprintf("/spreadsheets/%s/values/%s", spreadsheetID, url.PathEscape(quoteSheet(sheetName)))

	var resp valueRange
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("gsheets: get values %s", sheetName))
	}
	return resp.Values, nil
}

func (c *httpClient) AppendRow(ctx context.Context, spreadsheetID, sheetName string, row []string) error {
	path := fmt.Sprintf("/spreadsheets/%s/values/%s:append?valueInputOption=RAW&insertDataOption=INSERT_ROWS",
		spreadsheetID, url.PathEscape(quoteSheet(sheetName)))

	var resp appendResponse
	if err := c.post(ctx, path, valueRange{Values: [][]string{row}}, &resp); err != nil {
		return eris.Wrap(err, fmt.Sprintf("gsheets: append row to %s", sheetName))
	}
	return nil
}

func (c *httpClient) UpdateCell(ctx context.Context, spreadsheetID, sheetName string, row, col int, value string) error {
	ref := fmt.Sprintf("%s!%s%d", quoteSheet(sheetName), colName(col), row)
	path := fmt.Sprintf("/spreadsheets/%s/values/%s?valueInputOption=RAW", spreadsheetID, url.PathEscape(ref))

	var resp updateResponse
	if err := c.put(ctx, path, valueRange{Values: [][]string{{value}}}, &resp); err != nil {
		return eris.Wrap(err, fmt.Sprintf("gsheets: update cell %s", ref))
	}
	return nil
}

func (c *httpClient) AddSheet(ctx context.Context, spreadsheetID, title string) error {
	req := batchUpdateRequest{Requests: []batchUpdateEntry{
		{AddSheet: &addSheetRequest{Properties: sheetProperties{Title: title}}},
	}}

	var resp json.RawMessage
	if err := c.post(ctx, fmt.Sprintf("/spreadsheets/%s:batchUpdate", spreadsheetID), req, &resp); err != nil {
		return eris.Wrap(err, fmt.Sprintf("gsheets: add sheet %s", title))
	}
	return nil
}

// quoteSheet wraps a worksheet name in single quotes for A1 references.
func quoteSheet(name string) string {
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

// colName converts a 1-based column index to A1 letter form (1 -> A, 27 -> AA).
func colName(col int) string {
	name := ""
	for col > 0 {
		col--
		name = string(rune('A'+col%26)) + name
		col /= 26
	}
	return name
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	return c.send(ctx, http.MethodPost, path, body, out)
}

func (c *httpClient) put(ctx context.Context, path string, body any, out any) error {
	return c.send(ctx, http.MethodPut, path, body, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) send(ctx context.Context, method, path string, body any, out any) error {
	if err := c.wait(ctx); err != nil {
		return eris.Wrap(err, "rate limit")
	}

	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return eris.Wrap(err, "execute request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrap(err, "read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{
			StatusCode: resp.StatusCode,
			Body:       string(data),
		}
	}

	if err := json.Unmarshal(data, out); err != nil {
		return eris.Wrap(err, "decode response")
	}

	return nil
}
