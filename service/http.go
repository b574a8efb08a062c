package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// UserAgent is sent with every request of the fetcher
const UserAgent = "stac-fetcher/1.0 (+https://github.com/airbusgeo/stac-fetcher)"

// Header is a set of additional request headers
type Header map[string]string

// GetJSON GETs url and decodes the JSON response into out
func GetJSON(ctx context.Context, url string, header Header, out interface{}, nbRetries int) error {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return fmt.Errorf("GetJSON.NewRequest: %w", err)
	}
	setHeaders(req, header)
	body, err := GetBodyRetryReq(req, nbRetries)
	if err != nil {
		return fmt.Errorf("GetJSON: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("GetJSON.Unmarshal(%s): %w", RedactURL(url), err)
	}
	return nil
}

// PostJSON POSTs the JSON encoding of payload to url and decodes the response into out
func PostJSON(ctx context.Context, url string, header Header, payload, out interface{}, nbRetries int) error {
	b, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("PostJSON.Marshal: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("PostJSON.NewRequest: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	setHeaders(req, header)
	body, err := GetBodyRetryReq(req, nbRetries)
	if err != nil {
		return fmt.Errorf("PostJSON: %w", err)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("PostJSON.Unmarshal(%s): %w", RedactURL(url), err)
	}
	return nil
}

func setHeaders(req *http.Request, header Header) {
	req.Header.Set("User-Agent", UserAgent)
	for k, v := range header {
		req.Header.Set(k, v)
	}
}
