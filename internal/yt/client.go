package yt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ytcollector/internal/clock"
	"ytcollector/internal/logger"
)

// DefaultBaseURL is the production YouTube Data API v3 endpoint.
const DefaultBaseURL = "https://www.googleapis.com/youtube/v3"

// Throttler gates outbound requests per tenant. Satisfied by
// limiter.Limiter.
type Throttler interface {
	Throttle(ctx context.Context, tenantID string, maxRequests int, period time.Duration) error
}

// ClientOptions tune the fault-tolerant API client.
type ClientOptions struct {
	BaseURL        string
	MaxRetries     int
	InitialBackoff time.Duration
	BackoffFactor  float64
	ThrottleMax    int
	ThrottlePeriod time.Duration
	HTTPClient     *http.Client
	Logger         logger.Logger
}

// Client is a fault-tolerant facade over the YouTube Data API v3. Every
// endpoint call goes through one execute pass: per-tenant throttling, key
// acquisition, transport, and error classification with quota-aware key
// rotation. The transport is rebound to a fresh key on every attempt.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	rotator        *KeyRotator
	throttler      Throttler
	clk            clock.Clock
	log            logger.Logger
	maxRetries     int
	initialBackoff time.Duration
	backoffFactor  float64
	throttleMax    int
	throttlePeriod time.Duration
	jitter         func() float64
}

// NewClient builds a Client over the given rotator and throttler.
func NewClient(rotator *KeyRotator, throttler Throttler, clk clock.Clock, opts ClientOptions) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = maxRetries
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = initialBackoff
	}
	if opts.BackoffFactor <= 0 {
		opts.BackoffFactor = backoffFactor
	}
	if opts.ThrottleMax <= 0 {
		opts.ThrottleMax = 5
	}
	if opts.ThrottlePeriod <= 0 {
		opts.ThrottlePeriod = time.Second
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	return &Client{
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		httpClient:     opts.HTTPClient,
		rotator:        rotator,
		throttler:      throttler,
		clk:            clk,
		log:            opts.Logger,
		maxRetries:     opts.MaxRetries,
		initialBackoff: opts.InitialBackoff,
		backoffFactor:  opts.BackoffFactor,
		throttleMax:    opts.ThrottleMax,
		throttlePeriod: opts.ThrottlePeriod,
		jitter:         defaultJitter,
	}
}

// ChannelsListParams are the channels.list query parameters the collector
// uses. Zero values are omitted from the request.
type ChannelsListParams struct {
	Part        string
	ForUsername string
	ForHandle   string
	ID          string
	MaxResults  int
}

// ChannelsList calls the channels.list endpoint once through the retry
// pipeline and returns the decoded response body.
func (c *Client) ChannelsList(ctx context.Context, tenantID string, p ChannelsListParams) (map[string]any, error) {
	q := url.Values{}
	setIf(q, "part", p.Part)
	setIf(q, "forUsername", p.ForUsername)
	setIf(q, "forHandle", p.ForHandle)
	setIf(q, "id", p.ID)
	if p.MaxResults > 0 {
		q.Set("maxResults", strconv.Itoa(p.MaxResults))
	}
	return c.execute(ctx, tenantID, "channels", q)
}

// PlaylistItemsListParams are the playlistItems.list query parameters.
type PlaylistItemsListParams struct {
	Part       string
	PlaylistID string
	MaxResults int
	PageToken  string
}

// PlaylistItemsList calls the playlistItems.list endpoint.
func (c *Client) PlaylistItemsList(ctx context.Context, tenantID string, p PlaylistItemsListParams) (map[string]any, error) {
	q := url.Values{}
	setIf(q, "part", p.Part)
	setIf(q, "playlistId", p.PlaylistID)
	setIf(q, "pageToken", p.PageToken)
	if p.MaxResults > 0 {
		q.Set("maxResults", strconv.Itoa(p.MaxResults))
	}
	return c.execute(ctx, tenantID, "playlistItems", q)
}

// VideosListParams are the videos.list query parameters.
type VideosListParams struct {
	Part       string
	ID         string
	MaxResults int
}

// VideosList calls the videos.list endpoint.
func (c *Client) VideosList(ctx context.Context, tenantID string, p VideosListParams) (map[string]any, error) {
	q := url.Values{}
	setIf(q, "part", p.Part)
	setIf(q, "id", p.ID)
	if p.MaxResults > 0 {
		q.Set("maxResults", strconv.Itoa(p.MaxResults))
	}
	return c.execute(ctx, tenantID, "videos", q)
}

func setIf(q url.Values, key, value string) {
	if value != "" {
		q.Set(key, value)
	}
}

// doRequest performs one transport round trip bound to the given API key
// and decodes the body. Non-2xx responses come back as classified
// *APIError values.
func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, apiKey string) (map[string]any, error) {
	q := url.Values{}
	for k, vs := range params {
		q[k] = vs
	}
	q.Set("key", apiKey)

	reqURL := c.baseURL + "/" + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, &APIError{Kind: KindFatalClient, Err: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &APIError{Kind: KindCancelled, Err: ctx.Err()}
		}
		// Network-level failures get the transient treatment.
		return nil, &APIError{Kind: KindTransient, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, &APIError{Kind: KindTransient, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		reasons, message := parseErrorBody(body)
		return nil, classifyStatus(resp.StatusCode, reasons, message)
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, &APIError{Kind: KindTransient, Err: fmt.Errorf("decode response: %w", err)}
	}
	return payload, nil
}

// apiErrorBody mirrors the error envelope the API wraps failures in.
type apiErrorBody struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Errors  []struct {
			Reason string `json:"reason"`
		} `json:"errors"`
	} `json:"error"`
}

func parseErrorBody(body []byte) (reasons []string, message string) {
	var envelope apiErrorBody
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, strings.TrimSpace(string(body))
	}
	for _, e := range envelope.Error.Errors {
		if e.Reason != "" {
			reasons = append(reasons, e.Reason)
		}
	}
	return reasons, envelope.Error.Message
}
