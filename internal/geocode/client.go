// Package geocode talks to a Nominatim server for address autocomplete and
// reverse lookups.
package geocode

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"pickup-map-api-server/config"
)

// ErrProvider is returned when Nominatim cannot be reached or answers badly.
var ErrProvider = eris.New("geocode: provider unavailable")

const (
	// MinQueryLength is the shortest query sent upstream.
	MinQueryLength = 3
	searchLimit    = 5
	cachePrefix    = "geocode:"
)

// Suggestion is one autocomplete entry.
type Suggestion struct {
	PlaceID     int64   `json:"place_id"`
	DisplayName string  `json:"display_name"`
	Label       string  `json:"label"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Address     Address `json:"address"`
}

type place struct {
	PlaceID     int64   `json:"place_id"`
	DisplayName string  `json:"display_name"`
	Lat         string  `json:"lat"`
	Lon         string  `json:"lon"`
	Address     Address `json:"address"`
	Error       string  `json:"error,omitempty"`
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRateLimiter replaces the limiter built from the configured rate.
func WithRateLimiter(l *rate.Limiter) Option {
	return func(c *Client) {
		c.limiter = l
	}
}

// WithCache stores results in Redis for ttl.
func WithCache(rdb redis.Cmdable, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = rdb
		c.cacheTTL = ttl
	}
}

type Client struct {
	baseURL      string
	userAgent    string
	countryCodes string
	httpClient   *http.Client
	limiter      *rate.Limiter
	cache        redis.Cmdable
	cacheTTL     time.Duration
	timeout      time.Duration
	group        singleflight.Group
}

func NewClient(cfg config.NominatimConfig, opts ...Option) *Client {
	rps := cfg.RateLimit
	if rps <= 0 {
		rps = 1
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	c := &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		userAgent:    cfg.UserAgent,
		countryCodes: cfg.CountryCodes,
		httpClient:   &http.Client{Timeout: timeout},
		limiter:      rate.NewLimiter(rate.Limit(rps), burst),
		timeout:      timeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Search returns up to five suggestions for a free-text query. Queries
// shorter than MinQueryLength return an empty list without a request.
func (c *Client) Search(ctx context.Context, query string) ([]Suggestion, error) {
	query = strings.TrimSpace(query)
	if len([]rune(query)) < MinQueryLength {
		return []Suggestion{}, nil
	}

	key := cacheKey("search", strings.ToLower(query), c.countryCodes)
	var cached []Suggestion
	if c.getCached(ctx, key, &cached) {
		return cached, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		out, err := c.search(ctx, query)
		if err != nil {
			return nil, err
		}
		c.setCached(ctx, key, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]Suggestion), nil
}

func (c *Client) search(ctx context.Context, query string) ([]Suggestion, error) {
	params := url.Values{}
	params.Set("format", "json")
	params.Set("q", query)
	params.Set("addressdetails", "1")
	params.Set("limit", strconv.Itoa(searchLimit))
	params.Set("countrycodes", c.countryCodes)

	var places []place
	if err := c.get(ctx, "/search", params, &places); err != nil {
		return nil, err
	}

	out := make([]Suggestion, 0, len(places))
	for _, p := range places {
		if !p.Address.Locatable() {
			continue
		}
		lat, errLat := strconv.ParseFloat(p.Lat, 64)
		lng, errLng := strconv.ParseFloat(p.Lon, 64)
		if errLat != nil || errLng != nil {
			zap.L().Debug("skipping place with unparsable coordinates",
				zap.Int64("place_id", p.PlaceID), zap.String("lat", p.Lat), zap.String("lon", p.Lon))
			continue
		}
		out = append(out, Suggestion{
			PlaceID:     p.PlaceID,
			DisplayName: p.DisplayName,
			Label:       p.Address.Label(),
			Latitude:    lat,
			Longitude:   lng,
			Address:     p.Address,
		})
	}
	return out, nil
}

// Reverse returns the "City, State, Country" label for a coordinate, or an
// empty string when Nominatim knows nothing there.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := cacheKey("reverse", strconv.FormatFloat(lat, 'f', 5, 64), strconv.FormatFloat(lng, 'f', 5, 64))
	var cached string
	if c.getCached(ctx, key, &cached) {
		return cached, nil
	}

	v, err := c.shared(ctx, key, func(ctx context.Context) (interface{}, error) {
		params := url.Values{}
		params.Set("format", "json")
		params.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
		params.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))
		params.Set("addressdetails", "1")

		var p place
		if err := c.get(ctx, "/reverse", params, &p); err != nil {
			return "", err
		}
		label := ""
		if p.Error == "" {
			label = p.Address.Label()
		}
		c.setCached(ctx, key, label)
		return label, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// shared runs fn once per key for all concurrent callers. The upstream call
// is detached from any single caller's cancellation and bounded by the client
// timeout; each caller still returns as soon as its own ctx is done.
func (c *Client) shared(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	ch := c.group.DoChan(key, func() (interface{}, error) {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return fn(callCtx)
	})
	select {
	case res := <-ch:
		return res.Val, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return eris.Wrapf(ErrProvider, "rate limiter: %v", err)
	}

	endpoint := fmt.Sprintf("%s%s?%s", c.baseURL, path, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return eris.Wrap(err, "geocode: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return eris.Wrapf(ErrProvider, "request %s: %v", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return eris.Wrapf(ErrProvider, "%s returned status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return eris.Wrapf(ErrProvider, "decode %s response: %v", path, err)
	}
	return nil
}

// cacheKey returns "geocode:<kind>:<sha256 hex of parts>".
func cacheKey(kind string, parts ...string) string {
	h := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return fmt.Sprintf("%s%s:%x", cachePrefix, kind, h)
}

func (c *Client) getCached(ctx context.Context, key string, out interface{}) bool {
	if c.cache == nil {
		return false
	}
	raw, err := c.cache.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			zap.L().Warn("geocode cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		zap.L().Warn("geocode cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Client) setCached(ctx context.Context, key string, v interface{}) {
	if c.cache == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, raw, c.cacheTTL).Err(); err != nil {
		zap.L().Warn("geocode cache write failed", zap.String("key", key), zap.Error(err))
	}
}
