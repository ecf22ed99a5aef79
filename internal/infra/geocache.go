package infra

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// GeoInfo is the coarse location resolved for a client IP.
type GeoInfo struct {
	Country     string `json:"country"`
	CountryCode string `json:"countryCode"`
	Region      string `json:"regionName"`
	City        string `json:"city"`
}

type geoEntry struct {
	info      GeoInfo
	expiresAt time.Time
}

// GeoCache keeps lookups per IP for TTL. Build one per process and pass it to
// whoever needs it.
type GeoCache struct {
	TTL time.Duration

	mu      sync.Mutex
	entries map[string]geoEntry
	now     func() time.Time
}

func NewGeoCache(ttl time.Duration) *GeoCache {
	return &GeoCache{TTL: ttl, entries: make(map[string]geoEntry), now: time.Now}
}

// Get returns the cached info for ip if it has not expired.
func (c *GeoCache) Get(ip string) (GeoInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[ip]
	if !ok {
		return GeoInfo{}, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, ip)
		return GeoInfo{}, false
	}
	return e.info, true
}

// Set stores info for ip. A non-positive TTL disables caching.
func (c *GeoCache) Set(ip string, info GeoInfo) {
	if c.TTL <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[ip] = geoEntry{info: info, expiresAt: c.now().Add(c.TTL)}
}

// Purge drops expired entries and returns how many were removed.
func (c *GeoCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	n := 0
	for ip, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, ip)
			n++
		}
	}
	return n
}

// StartPurge drops expired entries every interval until ctx is done.
func (c *GeoCache) StartPurge(ctx context.Context, every time.Duration) {
	if every <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := c.Purge(); n > 0 {
					log.Debug().Int("purged", n).Msg("geoip: expired entries purged")
				}
			}
		}
	}()
}

// GeoIPClient resolves client IPs through an ip-api compatible service.
type GeoIPClient struct {
	http  *resty.Client
	cache *GeoCache
}

func NewGeoIPClient(baseURL string, cache *GeoCache) *GeoIPClient {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(3 * time.Second).
		SetRetryCount(1).
		SetRetryWaitTime(200 * time.Millisecond)
	return &GeoIPClient{http: c, cache: cache}
}

// Lookup returns the location of ip, from the cache when possible.
func (g *GeoIPClient) Lookup(ctx context.Context, ip string) (GeoInfo, error) {
	if info, ok := g.cache.Get(ip); ok {
		return info, nil
	}

	var out struct {
		GeoInfo
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	resp, err := g.http.R().
		SetContext(ctx).
		SetPathParam("ip", ip).
		SetResult(&out).
		Get("/json/{ip}")
	if err != nil {
		return GeoInfo{}, fmt.Errorf("geoip request: %w", err)
	}
	if resp.IsError() {
		return GeoInfo{}, fmt.Errorf("geoip returned %d", resp.StatusCode())
	}
	if out.Status == "fail" {
		return GeoInfo{}, fmt.Errorf("geoip lookup %s: %s", ip, out.Message)
	}

	g.cache.Set(ip, out.GeoInfo)
	return out.GeoInfo, nil
}
