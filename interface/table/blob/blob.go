package blob

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
)

// DefaultEndpoint is the blob service of an Azure storage account
const DefaultEndpoint = "https://%s.blob.core.windows.net"

const (
	optionAccount    = "account_name"
	optionCredential = "credential"
	blobSuffix       = ".blob.core.windows.net"
)

// Lister lists the blobs of an Azure Blob Storage container with the REST API
type Lister struct {
	// Endpoint is the format of the url of an account, taking the account name
	Endpoint string
	Retries  int
}

// New returns a Lister of the public Azure cloud
func New() *Lister {
	return &Lister{Endpoint: DefaultEndpoint, Retries: 2}
}

// Location is a prefix in a container
type Location struct {
	Account    string
	Container  string
	Path       string
	Credential string // SAS token, without leading '?'
}

// Parse returns the location of abfs://container/path (the account comes from the storage options)
// or https://account.blob.core.windows.net/container/path?sas
func Parse(href string, options map[string]interface{}) (Location, error) {
	u, err := url.Parse(href)
	if err != nil {
		return Location{}, fmt.Errorf("Parse: %w", err)
	}
	var loc Location
	loc.Account, _ = options[optionAccount].(string)
	loc.Credential, _ = options[optionCredential].(string)
	switch u.Scheme {
	case "abfs", "abfss", "az":
		loc.Container, loc.Path = u.Host, strings.TrimPrefix(u.Path, "/")
		if u.User != nil {
			// abfs://container@account.dfs.core.windows.net/path
			loc.Account = strings.SplitN(u.Host, ".", 2)[0]
			loc.Container = u.User.Username()
		}
	case "https", "http":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		loc.Container = parts[0]
		if len(parts) == 2 {
			loc.Path = parts[1]
		}
		if strings.HasSuffix(u.Host, blobSuffix) {
			loc.Account = strings.TrimSuffix(u.Host, blobSuffix)
		}
		if u.RawQuery != "" && loc.Credential == "" {
			loc.Credential = u.RawQuery
		}
	default:
		return Location{}, fmt.Errorf("Parse: unsupported scheme %q", u.Scheme)
	}
	loc.Credential = strings.TrimPrefix(loc.Credential, "?")
	if loc.Account == "" || loc.Container == "" {
		return Location{}, fmt.Errorf("Parse(%s): missing account or container", service.RedactURL(href))
	}
	return loc, nil
}

func (l *Lister) containerURL(loc Location) string {
	endpoint := l.Endpoint
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	return fmt.Sprintf(endpoint, loc.Account) + "/" + loc.Container
}

// URL returns the signed https url of a blob
func (l *Lister) URL(loc Location, name string) string {
	u := l.containerURL(loc) + "/" + (&url.URL{Path: name}).EscapedPath()
	if loc.Credential != "" {
		u += "?" + loc.Credential
	}
	return u
}

type enumerationResults struct {
	XMLName    xml.Name `xml:"EnumerationResults"`
	NextMarker string   `xml:"NextMarker"`
	Blobs      []struct {
		Name string `xml:"Name"`
	} `xml:"Blobs>Blob"`
}

// List returns the names of the blobs under the prefix, following the continuation markers
func (l *Lister) List(ctx context.Context, loc Location) ([]string, error) {
	prefix := loc.Path
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	var names []string
	marker := ""
	for page := 0; ; page++ {
		q := url.Values{}
		q.Set("restype", "container")
		q.Set("comp", "list")
		if prefix != "" {
			q.Set("prefix", prefix)
		}
		if marker != "" {
			q.Set("marker", marker)
		}
		u := l.containerURL(loc) + "?" + q.Encode()
		if loc.Credential != "" {
			u += "&" + loc.Credential
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("List.NewRequest: %w", err)
		}
		req.Header.Set("User-Agent", service.UserAgent)
		req.Header.Set("x-ms-version", "2020-10-02")
		body, err := service.GetBodyRetryReq(req, l.Retries)
		if err != nil {
			return nil, fmt.Errorf("List(%s/%s): %w", loc.Container, prefix, err)
		}
		var res enumerationResults
		if err := xml.Unmarshal(body, &res); err != nil {
			return nil, fmt.Errorf("List(%s/%s).Unmarshal: %w", loc.Container, prefix, err)
		}
		for _, b := range res.Blobs {
			names = append(names, b.Name)
		}
		if marker = res.NextMarker; marker == "" {
			log.Logger(ctx).Sugar().Debugf("listed %d blobs in %s/%s (%d pages)", len(names), loc.Container, prefix, page+1)
			return names, nil
		}
	}
}

// Files returns the signed urls of the blobs under the prefix with the extension (all of them if empty).
// It implements the listing part of table.Source.
func (l *Lister) Files(ctx context.Context, href string, options map[string]interface{}, ext string) ([]string, error) {
	loc, err := Parse(href, options)
	if err != nil {
		return nil, fmt.Errorf("Files.%w", err)
	}
	names, err := l.List(ctx, loc)
	if err != nil {
		return nil, fmt.Errorf("Files.%w", err)
	}
	var urls []string
	for _, name := range names {
		if ext == "" || strings.HasSuffix(name, ext) {
			urls = append(urls, l.URL(loc, name))
		}
	}
	return urls, nil
}
