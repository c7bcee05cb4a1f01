package apify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// Default base URL for the Apify v2 API.
const defaultBaseURL = "https://api.apify.com/v2"

// Actor run states. Everything except READY and RUNNING is terminal.
const (
	RunStatusReady     = "READY"
	RunStatusRunning   = "RUNNING"
	RunStatusSucceeded = "SUCCEEDED"
	RunStatusFailed    = "FAILED"
	RunStatusTimedOut  = "TIMED-OUT"
	RunStatusAborted   = "ABORTED"
)

// Client defines the Apify API operations used by the review pipeline.
type Client interface {
	StartRun(ctx context.Context, actor string, input RunInput) (*Run, error)
	GetRun(ctx context.Context, id string) (*Run, error)
	ListDatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]ReviewItem, error)
}

// RunInput is the actor input for the Google Maps reviews scraper.
type RunInput struct {
	PlaceIDs   []string `json:"placeIds"`
	MaxReviews int      `json:"maxReviews"`
	Language   string   `json:"language"`
}

// Run describes an actor run.
type Run struct {
	ID               string `json:"id"`
	ActID            string `json:"actId"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

// Finished reports whether the run has reached a terminal state.
func (r *Run) Finished() bool {
	return r.Status != RunStatusReady && r.Status != RunStatusRunning
}

// ReviewItem is the dataset item shape produced by the reviews scraper.
// The actor emits many more fields; only the ones the pipeline consumes
// are decoded.
type ReviewItem struct {
	PlaceID string `json:"placeId"`
	Title   string `json:"title"`
	Name    string `json:"name"`
	Text    string `json:"text"`
}

// APIError is returned when Apify responds with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("apify: HTTP %d: %s", e.StatusCode, e.Body)
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

// httpClient implements Client using net/http.
type httpClient struct {
	token   string
	baseURL string
	http    *http.Client
}

// NewClient creates a new Apify client.
func NewClient(token string, opts ...Option) Client {
	c := &httpClient{
		token:   token,
		baseURL: defaultBaseURL,
		http: &http.Client{
			Timeout: 60 * time.Second,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 20,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// runEnvelope wraps single-resource responses, which Apify nests under "data".
type runEnvelope struct {
	Data Run `json:"data"`
}

func (c *httpClient) StartRun(ctx context.Context, actor string, input RunInput) (*Run, error) {
	// Path-form actor IDs use "~" between user and actor name.
	actorPath := strings.ReplaceAll(actor, "/", "~")

	var resp runEnvelope
	if err := c.post(ctx, fmt.Sprintf("/acts/%s/runs", url.PathEscape(actorPath)), input, &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: start run of %s", actor))
	}
	return &resp.Data, nil
}

func (c *httpClient) GetRun(ctx context.Context, id string) (*Run, error) {
	var resp runEnvelope
	if err := c.get(ctx, fmt.Sprintf("/actor-runs/%s", id), &resp); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: get run %s", id))
	}
	return &resp.Data, nil
}

func (c *httpClient) ListDatasetItems(ctx context.Context, datasetID string, offset, limit int) ([]ReviewItem, error) {
	path := fmt.Sprintf("/datasets/%s/items?clean=true&format=json&offset=%d&limit=%d", datasetID, offset, limit)

	var items []ReviewItem
	if err := c.get(ctx, path, &items); err != nil {
		return nil, eris.Wrap(err, fmt.Sprintf("apify: list dataset items %s", datasetID))
	}
	return items, nil
}

func (c *httpClient) post(ctx context.Context, path string, body any, out any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return eris.Wrap(err, "marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(buf))
	if err != nil {
		return eris.Wrap(err, "create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)

	return c.do(req, out)
}

func (c *httpClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return eris.Wrap(err, "create request")
	}
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
