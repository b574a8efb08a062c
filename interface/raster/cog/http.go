package cog

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"syscall"

	"github.com/airbusgeo/stac-fetcher/service"
)

// httpStreamer implements osio.KeyStreamerAt with HTTP range requests. Keys are urls.
// Requests are bound to ctx.
type httpStreamer struct {
	ctx    context.Context
	client *http.Client
}

// StreamAt returns n bytes of key at offset off and the size of the object
func (h httpStreamer) StreamAt(key string, off int64, n int64) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, key, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("StreamAt.NewRequest: %w", err)
	}
	req.Header.Set("User-Agent", service.UserAgent)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+n-1))
	resp, err := h.client.Do(req)
	if err != nil {
		return nil, 0, service.MakeTemporary(fmt.Errorf("StreamAt: %w", err))
	}
	switch resp.StatusCode {
	case http.StatusPartialContent:
		size, err := contentRangeSize(resp.Header.Get("Content-Range"))
		if err != nil {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("StreamAt(%s): %w", service.RedactURL(key), err)
		}
		return resp.Body, size, nil
	case http.StatusOK:
		// Ranges are not supported by the server
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			resp.Body.Close()
			return nil, 0, fmt.Errorf("StreamAt(%s): %w", service.RedactURL(key), err)
		}
		return readCloser{io.LimitReader(resp.Body, n), resp.Body}, resp.ContentLength, nil
	case http.StatusRequestedRangeNotSatisfiable:
		resp.Body.Close()
		size, _ := contentRangeSize(resp.Header.Get("Content-Range"))
		return nil, size, io.EOF
	case http.StatusNotFound:
		resp.Body.Close()
		return nil, 0, fmt.Errorf("StreamAt(%s): %w", service.RedactURL(key), syscall.ENOENT)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
	resp.Body.Close()
	return nil, 0, service.NewStatusError(key, resp.StatusCode, body)
}

type readCloser struct {
	io.Reader
	io.Closer
}

// contentRangeSize parses "bytes start-end/size"
func contentRangeSize(cr string) (int64, error) {
	i := strings.LastIndex(cr, "/")
	if i < 0 || cr[i+1:] == "*" {
		return 0, fmt.Errorf("invalid Content-Range: %q", cr)
	}
	return strconv.ParseInt(cr[i+1:], 10, 64)
}
