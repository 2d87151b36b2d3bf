package geocode

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"pickup-map-api-server/config"
)

const searchBody = `[
  {"place_id": 101, "display_name": "Austin, Travis County, Texas, United States", "lat": "30.2711286", "lon": "-97.7436995",
   "address": {"city": "Austin", "county": "Travis County", "state": "Texas", "country": "United States"}},
  {"place_id": 102, "display_name": "Austin Street", "lat": "1.0", "lon": "2.0",
   "address": {"road": "Austin Street"}},
  {"place_id": 103, "display_name": "Austin, Mower County, Minnesota", "lat": "43.6666", "lon": "-92.9746",
   "address": {"town": "Austin", "state": "Minnesota", "country": "United States"}}
]`

// newTestLimiter creates a rate limiter that effectively does not limit for tests.
func newTestLimiter() *rate.Limiter {
	return rate.NewLimiter(rate.Inf, 1)
}

func newTestClient(t *testing.T, handler http.HandlerFunc, opts ...Option) (*Client, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	cfg := config.NominatimConfig{
		BaseURL:      srv.URL + "/",
		UserAgent:    "30MinPickup-test/1.0",
		CountryCodes: "us",
	}
	opts = append([]Option{WithRateLimiter(newTestLimiter())}, opts...)
	return NewClient(cfg, opts...), &hits
}

func TestSearch(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "json", q.Get("format"))
		assert.Equal(t, "austin", q.Get("q"))
		assert.Equal(t, "1", q.Get("addressdetails"))
		assert.Equal(t, "5", q.Get("limit"))
		assert.Equal(t, "us", q.Get("countrycodes"))
		assert.Equal(t, "30MinPickup-test/1.0", r.Header.Get("User-Agent"))
		fmt.Fprint(w, searchBody)
	})

	got, err := c.Search(context.Background(), "  austin ")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, int64(101), got[0].PlaceID)
	assert.Equal(t, "Austin, Texas, United States", got[0].Label)
	assert.InDelta(t, 30.2711286, got[0].Latitude, 1e-9)
	assert.InDelta(t, -97.7436995, got[0].Longitude, 1e-9)

	assert.Equal(t, int64(103), got[1].PlaceID)
	assert.Equal(t, "Austin, Minnesota, United States", got[1].Label)
}

func TestSearch_ShortQuerySkipsProvider(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchBody)
	})

	for _, q := range []string{"", "a", " ab ", "é"} {
		got, err := c.Search(context.Background(), q)
		require.NoError(t, err)
		assert.NotNil(t, got)
		assert.Empty(t, got)
	}
	assert.Zero(t, atomic.LoadInt32(hits))
}

func TestSearch_ProviderErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
	}{
		{"server error", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}},
		{"throttled", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
		}},
		{"bad json", func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, "<html>oops</html>")
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := newTestClient(t, tt.handler)
			_, err := c.Search(context.Background(), "berlin")
			assert.ErrorIs(t, err, ErrProvider)
		})
	}
}

func TestSearch_Unreachable(t *testing.T) {
	c := NewClient(config.NominatimConfig{BaseURL: "http://127.0.0.1:1"},
		WithRateLimiter(newTestLimiter()),
		WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := c.Search(context.Background(), "berlin")
	assert.ErrorIs(t, err, ErrProvider)
}

func TestSearch_UsesRedisCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchBody)
	}, WithCache(rdb, time.Hour))

	first, err := c.Search(context.Background(), "Austin")
	require.NoError(t, err)
	second, err := c.Search(context.Background(), "austin")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	key := cacheKey("search", "austin", "us")
	assert.True(t, mr.Exists(key))
	assert.Equal(t, time.Hour, mr.TTL(key))

	mr.FastForward(2 * time.Hour)
	_, err = c.Search(context.Background(), "austin")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))
}

func TestSearch_ErrorsAreNotCached(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}, WithCache(rdb, time.Hour))

	_, err := c.Search(context.Background(), "austin")
	require.Error(t, err)
	assert.Empty(t, mr.Keys())
}

func TestReverse(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "40.7128", r.URL.Query().Get("lat"))
		assert.Equal(t, "-74.006", r.URL.Query().Get("lon"))
		fmt.Fprint(w, `{"place_id": 7, "address": {"city": "New York", "state": "New York", "country": "United States"}}`)
	})

	label, err := c.Reverse(context.Background(), 40.7128, -74.006)
	require.NoError(t, err)
	assert.Equal(t, "New York, New York, United States", label)
}

func TestReverse_NothingThere(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"error": "Unable to geocode"}`)
	})

	label, err := c.Reverse(context.Background(), 0, -140)
	require.NoError(t, err)
	assert.Empty(t, label)
}

func TestCacheKey(t *testing.T) {
	a := cacheKey("search", "austin", "us")
	assert.Equal(t, a, cacheKey("search", "austin", "us"))
	assert.NotEqual(t, a, cacheKey("search", "austin", "ca"))
	assert.NotEqual(t, a, cacheKey("reverse", "austin", "us"))
	assert.Len(t, a, len("geocode:search:")+64)
}

func TestSearch_CoalescesConcurrentCallers(t *testing.T) {
	release := make(chan struct{})
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, searchBody)
	})

	type result struct {
		out []Suggestion
		err error
	}
	first := make(chan result, 1)
	second := make(chan result, 1)

	go func() {
		out, err := c.Search(context.Background(), "austin")
		first <- result{out, err}
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(hits) == 1 }, 2*time.Second, 5*time.Millisecond)
	go func() {
		out, err := c.Search(context.Background(), "Austin")
		second <- result{out, err}
	}()
	time.Sleep(50 * time.Millisecond)
	close(release)

	for _, ch := range []chan result{first, second} {
		res := <-ch
		require.NoError(t, res.err)
		assert.Len(t, res.out, 2)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestSearch_CancelledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, searchBody)
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Search(ctxA, "austin")
		errA <- err
	}()
	require.Eventually(t, func() bool { return atomic.LoadInt32(hits) == 1 }, 2*time.Second, 5*time.Millisecond)

	outB := make(chan []Suggestion, 1)
	errB := make(chan error, 1)
	go func() {
		out, err := c.Search(context.Background(), "austin")
		outB <- out
		errB <- err
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	err := <-errA
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrProvider)

	close(release)
	require.NoError(t, <-errB)
	assert.Len(t, <-outB, 2)
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))
}

func TestReverse_CancelledCallerDoesNotFailOthers(t *testing.T) {
	release := make(chan struct{})
	c, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		<-release
		fmt.Fprint(w, `{"address": {"city": "Austin", "state": "Texas", "country": "United States"}}`)
	})

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := c.Reverse(ctxA, 30.2711, -97.7437)
		errA <- err
	}()
	time.Sleep(50 * time.Millisecond)

	labelB := make(chan string, 1)
	go func() {
		label, err := c.Reverse(context.Background(), 30.2711, -97.7437)
		assert.NoError(t, err)
		labelB <- label
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	assert.ErrorIs(t, <-errA, context.Canceled)
	close(release)
	assert.Equal(t, "Austin, Texas, United States", <-labelB)
}

func TestSearch_RateLimiterRefusalIsProviderError(t *testing.T) {
	c, hits := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, searchBody)
	}, WithRateLimiter(rate.NewLimiter(rate.Every(time.Hour), 0)))

	_, err := c.Search(context.Background(), "austin")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProvider)
	assert.Equal(t, int32(0), atomic.LoadInt32(hits))
}
