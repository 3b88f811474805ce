package yt

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ytcollector/internal/clock"
)

type stubThrottler struct {
	mu    sync.Mutex
	calls int
}

func (s *stubThrottler) Throttle(ctx context.Context, tenantID string, maxRequests int, period time.Duration) error {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	return ctx.Err()
}

// scriptedServer plays back canned responses in order, recording the API
// key of every request. The last response repeats once the script runs out.
type scriptedServer struct {
	mu        sync.Mutex
	responses []scriptedResponse
	keys      []string
	requests  int
}

type scriptedResponse struct {
	status int
	body   string
}

func (s *scriptedServer) handler(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.keys = append(s.keys, r.URL.Query().Get("key"))
	idx := s.requests
	if idx >= len(s.responses) {
		idx = len(s.responses) - 1
	}
	resp := s.responses[idx]
	s.requests++
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(resp.status)
	fmt.Fprint(w, resp.body)
}

const (
	okBody        = `{"items":[{"id":"UCX6OQ3DkcsbYNE6H8uQQuVA"}]}`
	quotaBody     = `{"error":{"code":403,"message":"quota","errors":[{"reason":"quotaExceeded"}]}}`
	backendBody   = `{"error":{"code":503,"message":"backend error","errors":[{"reason":"backendError"}]}}`
	badReqBody    = `{"error":{"code":400,"message":"bad request","errors":[{"reason":"invalidParameter"}]}}`
	forbiddenBody = `{"error":{"code":403,"message":"forbidden","errors":[{"reason":"forbidden"}]}}`
)

func newTestClient(t *testing.T, srv *scriptedServer, keys ...string) (*Client, *clock.Manual, *stubThrottler, *KeyRotator) {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(srv.handler))
	t.Cleanup(ts.Close)

	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	rotator, err := NewKeyRotator(keys, time.Minute, clk, nil)
	require.NoError(t, err)

	throttler := &stubThrottler{}
	client := NewClient(rotator, throttler, clk, ClientOptions{BaseURL: ts.URL})
	client.jitter = func() float64 { return 0 }
	return client, clk, throttler, rotator
}

func TestChannelsListSuccess(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{200, okBody}}}
	client, clk, throttler, _ := newTestClient(t, srv, "k1")

	payload, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "MrBeast"})
	require.NoError(t, err)

	items := payload["items"].([]any)
	require.Len(t, items, 1)
	assert.Equal(t, "UCX6OQ3DkcsbYNE6H8uQQuVA", items[0].(map[string]any)["id"])
	assert.Equal(t, 1, throttler.calls)
	assert.Equal(t, 1, srv.requests)
	assert.Empty(t, clk.Slept)
}

func TestQuotaErrorRotatesKeyWithoutSleeping(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{403, quotaBody},
		{200, okBody},
	}}
	client, clk, _, rotator := newTestClient(t, srv, "k1", "k2")

	payload, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "MrBeast"})
	require.NoError(t, err)
	assert.NotNil(t, payload["items"])

	assert.Equal(t, []string{"k1", "k2"}, srv.keys)
	assert.Empty(t, clk.Slept, "quota rotation must not back off")
	assert.Equal(t, 1, rotator.LiveKeys(), "k1 must be on cooldown")
}

func TestQuotaWithSingleKeyYieldsNoKeys(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{403, quotaBody}}}
	client, clk, _, rotator := newTestClient(t, srv, "k1")

	_, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindNoKeys), "got %v", err)
	assert.Equal(t, 1, srv.requests)

	// After the cooldown the key is usable again.
	clk.Advance(time.Minute)
	assert.Equal(t, 1, rotator.LiveKeys())
}

func TestTransientErrorRetriesWithBackoff(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{
		{503, backendBody},
		{503, backendBody},
		{200, okBody},
	}}
	client, clk, throttler, _ := newTestClient(t, srv, "k1")

	_, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	require.NoError(t, err)

	require.Len(t, clk.Slept, 2)
	assert.Equal(t, time.Second, clk.Slept[0], "first backoff")
	assert.Equal(t, 2*time.Second, clk.Slept[1], "second backoff doubles")
	assert.Equal(t, 3, throttler.calls, "every attempt is throttled")
}

func TestFatalClientErrorFailsFast(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{400, badReqBody}}}
	client, clk, _, _ := newTestClient(t, srv, "k1")

	_, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindFatalClient), "got %v", err)
	assert.Equal(t, 1, srv.requests, "no retries for client errors")
	assert.Empty(t, clk.Slept)
}

func TestNonQuota403IsFatal(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{403, forbiddenBody}}}
	client, _, _, rotator := newTestClient(t, srv, "k1")

	_, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	assert.True(t, IsKind(err, KindFatalClient), "got %v", err)
	assert.Equal(t, 1, rotator.LiveKeys(), "key must not be cooled down")
}

func TestRetriesExhausted(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{503, backendBody}}}
	client, clk, _, _ := newTestClient(t, srv, "k1")

	_, err := client.ChannelsList(context.Background(), "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindRetriesExhausted), "got %v", err)
	assert.Equal(t, maxRetries, srv.requests)
	assert.Len(t, clk.Slept, maxRetries-1, "the final failure does not sleep")
}

func TestCancelledContextSurfacesAsCancelled(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{200, okBody}}}
	client, _, _, _ := newTestClient(t, srv, "k1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.ChannelsList(ctx, "tenant-a", ChannelsListParams{Part: "id", ForHandle: "x"})
	require.Error(t, err)
	assert.True(t, IsKind(err, KindCancelled), "got %v", err)
	assert.Equal(t, 0, srv.requests)
}

func TestVideosAndPlaylistEndpoints(t *testing.T) {
	srv := &scriptedServer{responses: []scriptedResponse{{200, `{"items":[]}`}}}
	client, _, _, _ := newTestClient(t, srv, "k1")
	ctx := context.Background()

	_, err := client.VideosList(ctx, "tenant-a", VideosListParams{Part: "snippet", ID: "abc"})
	require.NoError(t, err)
	_, err = client.PlaylistItemsList(ctx, "tenant-a", PlaylistItemsListParams{Part: "snippet", PlaylistID: "PL1", MaxResults: 50})
	require.NoError(t, err)
	assert.Equal(t, 2, srv.requests)
}
