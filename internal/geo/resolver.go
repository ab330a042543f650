package geo

import (
	"context"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ezyy-cloud/newsbot/internal/logger"
	"github.com/ezyy-cloud/newsbot/internal/news"
)

// countryNames maps the provider's two-letter codes to geocodable names.
// Covers the rotation list plus common origins; overridable via YAML.
var countryNames = map[string]string{
	"au": "Australia",
	"br": "Brazil",
	"ca": "Canada",
	"cn": "China",
	"de": "Germany",
	"es": "Spain",
	"fr": "France",
	"gb": "United Kingdom",
	"in": "India",
	"it": "Italy",
	"jp": "Japan",
	"ke": "Kenya",
	"mx": "Mexico",
	"ng": "Nigeria",
	"nz": "New Zealand",
	"ph": "Philippines",
	"sg": "Singapore",
	"us": "United States",
	"za": "South Africa",
}

// sourceOrigins maps a publishing source id to the country it reports
// from, for items whose text and metadata both yield nothing.
var sourceOrigins = map[string]string{
	"abcnews":   "Australia",
	"bbc":       "United Kingdom",
	"cbc":       "Canada",
	"cnn":       "United States",
	"dw":        "Germany",
	"lemonde":   "France",
	"nhk":       "Japan",
	"reuters":   "United Kingdom",
	"rte":       "Ireland",
	"news18":    "India",
	"straitstimes": "Singapore",
}

// MapsConfig is the optional YAML override file:
//
// countries:
//   au: Australia
// sources:
//   bbc: United Kingdom
type MapsConfig struct {
	Countries map[string]string `yaml:"countries"`
	Sources   map[string]string `yaml:"sources"`
}

// LoadMaps merges overrides from path into the built-in tables.
func LoadMaps(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var cfg MapsConfig
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return err
	}
	for code, name := range cfg.Countries {
		countryNames[code] = name
	}
	for id, name := range cfg.Sources {
		sourceOrigins[id] = name
	}
	return nil
}

// Resolver produces at most one Location per item by trying strategies in
// order: text extraction, declared origin country, known source origin.
type Resolver struct {
	geocoder *Geocoder
}

func NewResolver(geocoder *Geocoder) *Resolver {
	return &Resolver{geocoder: geocoder}
}

// Resolve returns the item's location or false. Geocoding failures are
// never fatal; the resolver just advances to the next candidate.
func (r *Resolver) Resolve(ctx context.Context, item news.Item) (Location, bool) {
	for _, candidate := range ExtractCandidates(item.Title + " " + item.Body) {
		if loc, ok := r.geocoder.Lookup(ctx, candidate); ok {
			loc.Source = "text"
			loc.Precise = false
			logger.Debug("resolved location from text", "name", loc.Name, "title", item.Title)
			return loc, true
		}
	}

	for _, code := range item.OriginCountry {
		name, known := countryNames[code]
		if !known {
			continue
		}
		if loc, ok := r.geocoder.Lookup(ctx, name); ok {
			loc.Source = "country"
			loc.Precise = false
			return loc, true
		}
	}

	if name, known := sourceOrigins[item.SourceID]; known {
		if loc, ok := r.geocoder.Lookup(ctx, name); ok {
			loc.Source = "origin-source"
			loc.Precise = false
			return loc, true
		}
	}

	logger.Debug("no location resolved", "title", item.Title)
	return Location{}, false
}
