package stac

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// PlanetaryComputerURL is the STAC API of the Microsoft Planetary Computer
const PlanetaryComputerURL = "https://planetarycomputer.microsoft.com/api/stac/v1"

// maxPages bounds the number of pages followed by a search
const maxPages = 20

type link struct {
	Body   map[string]interface{} `json:"body"`
	Href   string                 `json:"href"`
	Method string                 `json:"method"`
	Rel    string                 `json:"rel"`
}

type itemCollection struct {
	Features []catalog.Item `json:"features"`
	Links    []link         `json:"links"`
}

// Client is a STAC API client implementing catalog.Client
type Client struct {
	URL    string
	Signer *Signer
	// Searches are not retried
	SearchRetries int
	Retries       int
}

// New returns a client of the STAC API (PlanetaryComputerURL if empty)
func New(stacURL string, signer *Signer) *Client {
	if stacURL == "" {
		stacURL = PlanetaryComputerURL
	}
	return &Client{URL: strings.TrimSuffix(stacURL, "/"), Signer: signer, Retries: 3}
}

// Search implements catalog.Client, following the next links until params.Limit items are retrieved
func (c *Client) Search(ctx context.Context, params catalog.SearchParams) ([]catalog.Item, error) {
	var items []catalog.Item
	method, url := http.MethodPost, c.URL+"/search"
	var body interface{} = params
	for page := 0; page < maxPages; page++ {
		var res itemCollection
		var err error
		if method == http.MethodGet {
			err = service.GetJSON(ctx, url, nil, &res, c.SearchRetries)
		} else {
			err = service.PostJSON(ctx, url, nil, body, &res, c.SearchRetries)
		}
		if err != nil {
			return nil, fmt.Errorf("Search: %w", err)
		}
		items = append(items, res.Features...)
		if params.Limit > 0 && len(items) >= params.Limit {
			items = items[:params.Limit]
			break
		}
		next := nextLink(res.Links)
		if next == nil || len(res.Features) == 0 {
			break
		}
		url, method = next.Href, strings.ToUpper(next.Method)
		if method == "" {
			method = http.MethodGet
		}
		if next.Body != nil {
			body = next.Body
		}
	}
	log.Logger(ctx).Sugar().Debugf("search %v: %d items", params.Collections, len(items))
	return items, nil
}

func nextLink(links []link) *link {
	for i := range links {
		if links[i].Rel == "next" {
			return &links[i]
		}
	}
	return nil
}

// Sign implements catalog.Client
func (c *Client) Sign(ctx context.Context, item catalog.Item) (catalog.Item, error) {
	if c.Signer == nil {
		return item, nil
	}
	assets, err := c.Signer.SignAssets(ctx, item.Assets)
	if err != nil {
		return item, fmt.Errorf("Sign[%s].%w", item.ID, err)
	}
	item.Assets = assets
	return item, nil
}

// Collection implements catalog.Client
func (c *Client) Collection(ctx context.Context, id string) (*catalog.Collection, error) {
	var col catalog.Collection
	if err := service.GetJSON(ctx, c.URL+"/collections/"+id, nil, &col, c.Retries); err != nil {
		return nil, fmt.Errorf("Collection: %w", err)
	}
	if c.Signer != nil {
		assets, err := c.Signer.SignAssets(ctx, col.Assets)
		if err != nil {
			return nil, fmt.Errorf("Collection[%s].%w", id, err)
		}
		col.Assets = assets
	}
	return &col, nil
}
