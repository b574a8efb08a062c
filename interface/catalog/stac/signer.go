package stac

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	// PlanetaryComputerSASURL is the token endpoint of the Planetary Computer
	PlanetaryComputerSASURL = "https://planetarycomputer.microsoft.com/api/sas/v1"
	blobSuffix              = ".blob.core.windows.net"
	tokenCacheSize          = 256
	tokenTTL                = 30 * time.Minute
	// Tokens expiring sooner than this are not cached
	tokenMinValidity = 5 * time.Minute
)

type sasToken struct {
	Expiry string `json:"msft:expiry"`
	Token  string `json:"token"`
}

// Signer adds short-lived SAS tokens to the Azure Blob Storage assets
type Signer struct {
	URL             string
	SubscriptionKey string // Optional, raises the rate limits
	Retries         int
	tokens          *expirable.LRU[string, string]
}

// NewSigner returns a signer using the token endpoint sasURL (PlanetaryComputerSASURL if empty)
func NewSigner(sasURL, subscriptionKey string) *Signer {
	if sasURL == "" {
		sasURL = PlanetaryComputerSASURL
	}
	return &Signer{
		URL:             strings.TrimSuffix(sasURL, "/"),
		SubscriptionKey: subscriptionKey,
		Retries:         3,
		tokens:          expirable.NewLRU[string, string](tokenCacheSize, nil, tokenTTL),
	}
}

// Token returns a SAS token to read the container of the storage account
func (s *Signer) Token(ctx context.Context, account, container string) (string, error) {
	key := account + "/" + container
	if t, ok := s.tokens.Get(key); ok {
		return t, nil
	}
	var header service.Header
	if s.SubscriptionKey != "" {
		header = service.Header{"Ocp-Apim-Subscription-Key": s.SubscriptionKey}
	}
	var t sasToken
	if err := service.GetJSON(ctx, fmt.Sprintf("%s/token/%s/%s", s.URL, account, container), header, &t, s.Retries); err != nil {
		return "", fmt.Errorf("Token(%s): %w", key, err)
	}
	if t.Token == "" {
		return "", fmt.Errorf("Token(%s): empty token", key)
	}
	if expiry, err := time.Parse(time.RFC3339Nano, t.Expiry); err != nil || time.Until(expiry) > tokenMinValidity {
		s.tokens.Add(key, t.Token)
	}
	return t.Token, nil
}

// SignHref appends a SAS token to an url of Azure Blob Storage.
// Other urls and already signed urls are returned as is.
func (s *Signer) SignHref(ctx context.Context, href string) (string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("SignHref: %w", err)
	}
	if u.Scheme != "https" || !strings.HasSuffix(u.Host, blobSuffix) || u.Query().Get("sig") != "" {
		return href, nil
	}
	account := strings.TrimSuffix(u.Host, blobSuffix)
	container := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	token, err := s.Token(ctx, account, container)
	if err != nil {
		return "", fmt.Errorf("SignHref.%w", err)
	}
	if u.RawQuery != "" {
		u.RawQuery += "&" + token
	} else {
		u.RawQuery = token
	}
	return u.String(), nil
}

// signOptions adds the credential to storage options referring to an account_name.
// The container is the host of abfs://container/path
func (s *Signer) signOptions(ctx context.Context, href string, options map[string]interface{}) (map[string]interface{}, error) {
	account, _ := options["account_name"].(string)
	if account == "" {
		return options, nil
	}
	if c, _ := options["credential"].(string); c != "" {
		return options, nil
	}
	u, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("signOptions: %w", err)
	}
	container := u.Host
	if u.Scheme == "https" {
		container = strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)[0]
	}
	token, err := s.Token(ctx, account, container)
	if err != nil {
		return nil, fmt.Errorf("signOptions.%w", err)
	}
	signed := make(map[string]interface{}, len(options)+1)
	for k, v := range options {
		signed[k] = v
	}
	signed["credential"] = token
	return signed, nil
}

// SignAsset signs the href and the storage options of the asset
func (s *Signer) SignAsset(ctx context.Context, a catalog.Asset) (catalog.Asset, error) {
	var err error
	if a.Href, err = s.SignHref(ctx, a.Href); err != nil {
		return a, err
	}
	if a.TableStorageOptions != nil {
		if a.TableStorageOptions, err = s.signOptions(ctx, a.Href, a.TableStorageOptions); err != nil {
			return a, err
		}
	}
	if a.XarrayStorageOptions != nil {
		if a.XarrayStorageOptions, err = s.signOptions(ctx, a.Href, a.XarrayStorageOptions); err != nil {
			return a, err
		}
	}
	return a, nil
}

// SignAssets signs all the assets
func (s *Signer) SignAssets(ctx context.Context, assets map[string]catalog.Asset) (map[string]catalog.Asset, error) {
	signed := make(map[string]catalog.Asset, len(assets))
	for k, a := range assets {
		sa, err := s.SignAsset(ctx, a)
		if err != nil {
			return nil, fmt.Errorf("SignAssets[%s].%w", k, err)
		}
		signed[k] = sa
	}
	return signed, nil
}
