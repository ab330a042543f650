package geo

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ezyy-cloud/newsbot/internal/news"
)

// fakeGeocode answers only for the given names, everything else is empty.
func fakeGeocode(t *testing.T, known map[string][2]string, calls *atomic.Int32) *Geocoder {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			calls.Add(1)
		}
		coords, ok := known[r.URL.Query().Get("q")]
		if !ok {
			fmt.Fprint(w, `[]`)
			return
		}
		fmt.Fprintf(w, `[{"lat":%q,"lon":%q,"display_name":"match"}]`, coords[0], coords[1])
	}))
	t.Cleanup(server.Close)

	g := NewGeocoder("", 5*time.Second)
	g.SetBaseURL(server.URL)
	t.Cleanup(g.Close)
	return g
}

func TestResolveFromText(t *testing.T) {
	g := fakeGeocode(t, map[string][2]string{
		"Queensland": {"-20.92", "142.70"},
	}, nil)
	r := NewResolver(g)

	loc, ok := r.Resolve(context.Background(), news.Item{
		Title: "Cyclone Alfred batters Queensland coastline",
	})

	require.True(t, ok)
	assert.Equal(t, "Queensland", loc.Name)
	assert.Equal(t, "text", loc.Source)
	assert.False(t, loc.Precise, "free-text matches are always fuzzy")
	assert.InDelta(t, -20.92, loc.Latitude, 0.001)
	assert.InDelta(t, 142.70, loc.Longitude, 0.001)
}

func TestResolveFallsBackToOriginCountry(t *testing.T) {
	g := fakeGeocode(t, map[string][2]string{
		"Australia": {"-25.27", "133.77"},
	}, nil)
	r := NewResolver(g)

	loc, ok := r.Resolve(context.Background(), news.Item{
		Title:         "Markets rally on rate cut hopes",
		OriginCountry: []string{"au"},
	})

	require.True(t, ok)
	assert.Equal(t, "country", loc.Source)
	assert.Equal(t, "Australia", loc.Name)
}

func TestResolveFallsBackToSourceOrigin(t *testing.T) {
	g := fakeGeocode(t, map[string][2]string{
		"United Kingdom": {"55.37", "-3.43"},
	}, nil)
	r := NewResolver(g)

	loc, ok := r.Resolve(context.Background(), news.Item{
		Title:    "Markets rally on rate cut hopes",
		SourceID: "bbc",
	})

	require.True(t, ok)
	assert.Equal(t, "origin-source", loc.Source)
}

func TestResolveNothingResolves(t *testing.T) {
	g := fakeGeocode(t, nil, nil)
	r := NewResolver(g)

	loc, ok := r.Resolve(context.Background(), news.Item{
		Title:    "Markets rally on rate cut hopes",
		SourceID: "unknown-wire",
	})

	assert.False(t, ok)
	assert.Zero(t, loc)
}

func TestLookupCachesResults(t *testing.T) {
	var calls atomic.Int32
	g := fakeGeocode(t, map[string][2]string{
		"Nairobi": {"-1.29", "36.82"},
	}, &calls)

	ctx := context.Background()

	_, ok := g.Lookup(ctx, "Nairobi")
	require.True(t, ok)
	_, ok = g.Lookup(ctx, "  nairobi ")
	require.True(t, ok, "cache key is case and whitespace insensitive")

	assert.Equal(t, int32(1), calls.Load())
}

func TestLookupUnparseableCoordinates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"lat":"not-a-number","lon":"0"}]`)
	}))
	t.Cleanup(server.Close)

	g := NewGeocoder("", 5*time.Second)
	g.SetBaseURL(server.URL)
	t.Cleanup(g.Close)

	_, ok := g.Lookup(context.Background(), "Somewhere")
	assert.False(t, ok)
}
