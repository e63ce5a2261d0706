package overpass

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const shopResponse = `{
	"elements": [
		{"type": "node", "id": 1, "lat": 52.5, "lon": 13.4,
		 "tags": {"shop": "bakery", "name": "Backhaus"}},
		{"type": "way", "id": 2, "center": {"lat": 52.51, "lon": 13.41},
		 "tags": {"shop": "supermarket"}},
		{"type": "way", "id": 3, "tags": {"shop": "kiosk"}}
	]
}`

var testBox = BBox{South: 52.3, West: 13.1, North: 52.7, East: 13.8}

func fastClient(opts ...Option) *client {
	c := NewClient(opts...).(*client)
	c.retry.InitialBackoff = time.Millisecond
	c.retry.MaxBackoff = 2 * time.Millisecond
	return c
}

func TestPOIs(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		form, err := url.ParseQuery(string(body))
		require.NoError(t, err)
		gotQuery = form.Get("data")
		w.Write([]byte(shopResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	c := fastClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithQueryTimeout(30))
	pois, err := c.POIs(context.Background(), testBox, "shop")
	require.NoError(t, err)

	require.Len(t, pois, 2, "way without center is dropped")
	assert.Equal(t, "Backhaus", pois[0].Name)
	assert.Equal(t, "bakery", pois[0].Category)
	assert.Equal(t, 52.51, pois[1].Lat, "way uses its center")
	assert.Equal(t, "supermarket", pois[1].Category)

	assert.Contains(t, gotQuery, `[timeout:30]`)
	assert.Contains(t, gotQuery, `node["shop"]`)
	assert.Contains(t, gotQuery, `way["shop"]`)
	assert.Contains(t, gotQuery, "out center")
}

func TestPOIsValidatesInput(t *testing.T) {
	c := fastClient()

	_, err := c.POIs(context.Background(), testBox, "")
	assert.Error(t, err)

	_, err = c.POIs(context.Background(), BBox{South: 53, North: 52, West: 13, East: 14}, "shop")
	assert.Error(t, err)
}

func TestPOIsRetriesRateLimiting(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		if calls == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(shopResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	c := fastClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	pois, err := c.POIs(context.Background(), testBox, "shop")
	require.NoError(t, err)
	assert.Len(t, pois, 2)
	assert.Equal(t, 2, calls)
}

func TestPOIsGivesUpAfterMaxAttempts(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusGatewayTimeout)
	}))
	defer srv.Close()

	c := fastClient(WithBaseURL(srv.URL), WithRateLimit(1000), WithMaxAttempts(3))
	_, err := c.POIs(context.Background(), testBox, "shop")
	require.Error(t, err)
	assert.Equal(t, 3, calls)
}

func TestPOIsBadQueryNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	c := fastClient(WithBaseURL(srv.URL), WithRateLimit(1000))
	_, err := c.POIs(context.Background(), testBox, "shop")
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type memCache struct {
	mu      sync.Mutex
	entries map[string][]byte
}

func (m *memCache) Get(_ context.Context, service, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.entries[service+"/"+key]
	return v, ok, nil
}

func (m *memCache) Put(_ context.Context, service, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service+"/"+key] = payload
	return nil
}

func TestPOIsUsesCache(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls++
		w.Write([]byte(shopResponse)) //nolint:errcheck
	}))
	defer srv.Close()

	c := fastClient(
		WithBaseURL(srv.URL),
		WithRateLimit(1000),
		WithCache(&memCache{entries: map[string][]byte{}}),
	)

	first, err := c.POIs(context.Background(), testBox, "shop")
	require.NoError(t, err)
	second, err := c.POIs(context.Background(), testBox, "shop")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, first, second)
}

func TestBuildQueryDifferentKeysDifferentCacheKeys(t *testing.T) {
	q1 := buildQuery(testBox, "shop", 25)
	q2 := buildQuery(testBox, "amenity", 25)
	assert.NotEqual(t, queryCacheKey(q1), queryCacheKey(q2))
	assert.True(t, strings.HasPrefix(q1, "[out:json]"))
}
