package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"github.com/cespare/xxhash/v2"
	"go.uber.org/zap"
)

// DefaultTTL of a cached place
const DefaultTTL = 30 * 24 * time.Hour

// Entry is a cached geocoding result
type Entry struct {
	BBox      [4]float64 `json:"bbox"`
	PlaceName string     `json:"place_name"`
	Timestamp time.Time  `json:"timestamp"`
}

// Store persists the entries. A missing key returns (nil, nil).
type Store interface {
	Load(ctx context.Context, key string) (*Entry, error)
	Save(ctx context.Context, key string, e Entry, ttl time.Duration) error
}

// Key returns the key of a place name: the hash of its normalized name
func Key(place string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(geocoder.NormalizeName(place)))
}

// Geocoder is a geocoder.Geocoder caching the results of another Geocoder.
// The cache is advisory: any failure of the store is logged and falls back to the geocoder.
type Geocoder struct {
	Geocoder geocoder.Geocoder
	Store    Store
	TTL      time.Duration
	Now      func() time.Time
}

// New returns a caching geocoder
func New(g geocoder.Geocoder, s Store, ttl time.Duration) *Geocoder {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Geocoder{Geocoder: g, Store: s, TTL: ttl, Now: time.Now}
}

// Geocode implements geocoder.Geocoder
func (g *Geocoder) Geocode(ctx context.Context, place string) (*geocoder.Place, error) {
	key := Key(place)
	now := g.Now()
	e, err := g.Store.Load(ctx, key)
	switch {
	case err != nil:
		log.Logger(ctx).Warn("geocoding cache", zap.String("place", place), zap.Error(err))
	case e != nil && now.Sub(e.Timestamp) < g.TTL:
		log.Logger(ctx).Sugar().Debugf("geocoding cache hit: %s", place)
		return &geocoder.Place{Name: e.PlaceName, BBox: e.BBox}, nil
	}

	p, err := g.Geocoder.Geocode(ctx, place)
	if err != nil {
		return nil, err
	}
	if err := g.Store.Save(ctx, key, Entry{BBox: p.BBox, PlaceName: p.Name, Timestamp: now}, g.TTL); err != nil {
		log.Logger(ctx).Warn("geocoding cache", zap.String("place", place), zap.Error(err))
	}
	return p, nil
}

// Open returns the store of the uri: redis://host:port/db or the path of a JSON file
func Open(ctx context.Context, uri string) (Store, error) {
	if uri == "" {
		return nil, errors.New("Open: empty cache uri")
	}
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		s, err := NewRedisStore(ctx, uri)
		if err != nil {
			return nil, fmt.Errorf("Open.%w", err)
		}
		return s, nil
	}
	return NewFileStore(uri), nil
}
