package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StringSet is a set of strings (all elements are unique)
type StringSet map[string]struct{}

// Push adds the string to the set if not already exists
func (ss StringSet) Push(s string) {
	ss[s] = struct{}{}
}

// Exists returns true if the string already exists in the Set
func (ss StringSet) Exists(s string) bool {
	_, ok := ss[s]
	return ok
}

// HTTPClient is the client used by the helpers of this package
var HTTPClient = &http.Client{Timeout: 5 * time.Minute}

// GetBodyRetry: simple GET with N retries in case of temporary errors
func GetBodyRetry(ctx context.Context, url string, nbRetries int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("NewRequest: %w", err)
	}
	setHeaders(req, nil)
	return GetBodyRetryReq(req, nbRetries)
}

// GetBodyRetryReq executes the request with N retries in case of temporary errors.
// A request with a body must define GetBody to be retried.
func GetBodyRetryReq(req *http.Request, nbRetries int) ([]byte, error) {
	var err error
	for i := range nbRetries + 1 {
		if i > 0 {
			select {
			case <-req.Context().Done():
				return nil, req.Context().Err()
			case <-time.After(((1 << i) - 1) * time.Second): // Exponential backoff
			}
			if req.GetBody != nil {
				if req.Body, err = req.GetBody(); err != nil {
					return nil, err
				}
			}
		}
		var body []byte
		if body, err = doRequest(req); err == nil {
			return body, nil
		}
		if !Temporary(err) || req.Context().Err() != nil {
			return nil, err
		}
	}
	return nil, err
}

func doRequest(req *http.Request) ([]byte, error) {
	resp, err := HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, NewStatusError(req.URL.String(), resp.StatusCode, body)
	}
	if err != nil {
		return nil, MakeTemporary(fmt.Errorf("read body: %w", err))
	}
	return body, nil
}
