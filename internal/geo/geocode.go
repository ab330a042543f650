package geo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ezyy-cloud/newsbot/internal/cache"
	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/metrics"
)

// Location is a resolved coordinate pair. Precise=false means the match is
// approximate ("fuzzy"), which is all free-text extraction ever yields.
// Never mutated after creation.
type Location struct {
	Name      string  `json:"name"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Precise   bool    `json:"precise"`
	Source    string  `json:"source"` // text | country | origin-source
}

const (
	geocodeCacheTTL = 24 * time.Hour
	geocodeCacheCap = 512
)

// Geocoder forward-geocodes free-text names with a small cache in front of
// the external provider.
type Geocoder struct {
	apiKey  string
	baseURL string
	http    *http.Client
	cache   *cache.Cache[Location]
}

func NewGeocoder(apiKey string, timeout time.Duration) *Geocoder {
	return &Geocoder{
		apiKey:  apiKey,
		baseURL: "https://geocode.maps.co/search",
		http:    &http.Client{Timeout: timeout},
		cache:   cache.New[Location](time.Hour, geocodeCacheCap),
	}
}

// SetBaseURL points the geocoder at a different endpoint. Tests use this.
func (g *Geocoder) SetBaseURL(u string) {
	g.baseURL = u
}

func (g *Geocoder) Close() {
	g.cache.Stop()
}

type geocodeResult struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

// Lookup geocodes a name, consulting the cache first. An empty provider
// result is a miss, not an error.
func (g *Geocoder) Lookup(ctx context.Context, name string) (Location, bool) {
	key := normalizeName(name)
	if key == "" {
		return Location{}, false
	}

	if cached, ok := g.cache.Get(key); ok && len(cached) > 0 {
		return cached[0], true
	}

	loc, ok := g.query(ctx, name)
	if !ok {
		return Location{}, false
	}
	g.cache.Put(key, []Location{loc}, geocodeCacheTTL)
	return loc, true
}

func (g *Geocoder) query(ctx context.Context, name string) (Location, bool) {
	q := url.Values{}
	q.Set("q", name)
	if g.apiKey != "" {
		q.Set("api_key", g.apiKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return Location{}, false
	}

	metrics.Global.IncrementGeocodeCalls()
	resp, err := g.http.Do(req)
	if err != nil {
		logger.Debug("geocode request failed", "name", name, "error", err)
		return Location{}, false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		logger.Debug("geocode provider error", "name", name, "status", resp.StatusCode)
		return Location{}, false
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Location{}, false
	}

	var results []geocodeResult
	if err := json.Unmarshal(body, &results); err != nil || len(results) == 0 {
		return Location{}, false
	}

	lat, latErr := strconv.ParseFloat(results[0].Lat, 64)
	lon, lonErr := strconv.ParseFloat(results[0].Lon, 64)
	if latErr != nil || lonErr != nil {
		return Location{}, false
	}

	return Location{
		Name:      name,
		Latitude:  lat,
		Longitude: lon,
	}, true
}

func normalizeName(name string) string {
	return strings.Join(strings.Fields(strings.ToLower(name)), " ")
}
