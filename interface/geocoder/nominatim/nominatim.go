package nominatim

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/airbusgeo/stac-fetcher/interface/geocoder"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"golang.org/x/time/rate"
)

// DefaultURL is the public OpenStreetMap Nominatim server
const DefaultURL = "https://nominatim.openstreetmap.org"

// The usage policy of the public server allows an absolute maximum of 1 request per second
const minDelay = time.Second

type place struct {
	DisplayName string   `json:"display_name"`
	BoundingBox []string `json:"boundingbox"` // south, north, west, east
}

// Client is a Nominatim geocoder, rate limited
type Client struct {
	URL     string
	Retries int
	limiter *rate.Limiter
}

// New returns a Nominatim client (DefaultURL if empty)
func New(nominatimURL string) *Client {
	if nominatimURL == "" {
		nominatimURL = DefaultURL
	}
	return &Client{
		URL:     strings.TrimSuffix(nominatimURL, "/"),
		Retries: 2,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
	}
}

// Geocode implements geocoder.Geocoder
func (c *Client) Geocode(ctx context.Context, name string) (*geocoder.Place, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("Geocode: %w", geocoder.ErrNotFound)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("Geocode.Wait: %w", err)
	}
	params := url.Values{}
	params.Set("q", name)
	params.Set("format", "jsonv2")
	params.Set("limit", "1")

	var places []place
	if err := service.GetJSON(ctx, c.URL+"/search?"+params.Encode(), nil, &places, c.Retries); err != nil {
		return nil, fmt.Errorf("Geocode(%s): %w", name, err)
	}
	if len(places) == 0 || len(places[0].BoundingBox) != 4 {
		return nil, fmt.Errorf("Geocode(%s): %w", name, geocoder.ErrNotFound)
	}
	var bb [4]float64
	for i, s := range places[0].BoundingBox {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("Geocode(%s).ParseFloat: %w", name, err)
		}
		bb[i] = v
	}
	p := &geocoder.Place{
		Name: places[0].DisplayName,
		BBox: [4]float64{bb[2], bb[0], bb[3], bb[1]},
	}
	log.Logger(ctx).Sugar().Debugf("geocoded %s: %s %v", name, p.Name, p.BBox)
	return p, nil
}
