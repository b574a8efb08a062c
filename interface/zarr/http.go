package zarr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/table/blob"
	"github.com/airbusgeo/stac-fetcher/service"
	"github.com/airbusgeo/stac-fetcher/service/log"
	"golang.org/x/sync/errgroup"
)

const (
	metadataKey    = ".zmetadata"
	defaultWorkers = 8
)

// HTTPOpener opens consolidated zarr v2 stores over HTTP(S).
// abfs:// urls are converted to signed urls of Azure Blob Storage.
type HTTPOpener struct {
	Blob    *blob.Lister
	Workers int // Concurrent chunk downloads
	Retries int
}

// NewHTTPOpener returns an opener of stores of the public Azure cloud
func NewHTTPOpener() *HTTPOpener {
	return &HTTPOpener{Blob: blob.New(), Workers: defaultWorkers, Retries: 2}
}

// HTTPStore is a consolidated zarr v2 store read over HTTP. It implements Store.
type HTTPStore struct {
	base    string // url of the root of the store, without query
	query   string // credentials
	arrays  map[string]*array
	attrs   map[string]interface{}
	workers int
	retries int
}

type consolidated struct {
	Metadata map[string]json.RawMessage `json:"metadata"`
}

// storeURL returns the url of the root of the store and its query
func (o *HTTPOpener) storeURL(href string, options map[string]interface{}) (string, string, error) {
	u, err := url.Parse(href)
	if err != nil {
		return "", "", fmt.Errorf("storeURL: %w", err)
	}
	switch u.Scheme {
	case "abfs", "abfss", "az":
		loc, err := blob.Parse(href, options)
		if err != nil {
			return "", "", fmt.Errorf("storeURL.%w", err)
		}
		lister := o.Blob
		if lister == nil {
			lister = blob.New()
		}
		href = lister.URL(loc, loc.Path)
		if u, err = url.Parse(href); err != nil {
			return "", "", fmt.Errorf("storeURL: %w", err)
		}
	case "http", "https":
		if c, _ := options["credential"].(string); c != "" && u.RawQuery == "" {
			u.RawQuery = strings.TrimPrefix(c, "?")
		}
	default:
		return "", "", fmt.Errorf("storeURL: unsupported scheme %q", u.Scheme)
	}
	query := u.RawQuery
	u.RawQuery = ""
	return strings.TrimSuffix(u.String(), "/"), query, nil
}

func (s *HTTPStore) url(key string) string {
	if s.query == "" {
		return s.base + "/" + key
	}
	return s.base + "/" + key + "?" + s.query
}

func (s *HTTPStore) get(ctx context.Context, key string) ([]byte, error) {
	return service.GetBodyRetry(ctx, s.url(key), s.retries)
}

func notFound(err error) bool {
	var se service.StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// Open implements Opener. The store must have consolidated metadata.
func (o *HTTPOpener) Open(ctx context.Context, href string, options map[string]interface{}) (Store, error) {
	base, query, err := o.storeURL(href, options)
	if err != nil {
		return nil, fmt.Errorf("Open.%w", err)
	}
	s := &HTTPStore{base: base, query: query, arrays: map[string]*array{}, attrs: map[string]interface{}{}, workers: o.Workers, retries: o.Retries}
	if s.workers <= 0 {
		s.workers = defaultWorkers
	}
	body, err := s.get(ctx, metadataKey)
	if err != nil {
		return nil, fmt.Errorf("Open(%s): %w", base, err)
	}
	var c consolidated
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fmt.Errorf("Open(%s).Unmarshal: %w", base, err)
	}
	if raw, ok := c.Metadata[".zattrs"]; ok {
		json.Unmarshal(raw, &s.attrs)
	}
	for key, raw := range c.Metadata {
		name, ok := strings.CutSuffix(key, "/.zarray")
		if !ok {
			continue
		}
		var meta arrayMeta
		if err := json.Unmarshal(raw, &meta); err != nil {
			return nil, fmt.Errorf("Open(%s).Unmarshal[%s]: %w", base, key, err)
		}
		var attrs map[string]interface{}
		if rawAttrs, ok := c.Metadata[name+"/.zattrs"]; ok {
			json.Unmarshal(rawAttrs, &attrs)
		}
		a, err := newArray(name, meta, attrs)
		if err != nil {
			// Arrays that cannot be decoded are ignored: other variables may be read
			log.Logger(ctx).Sugar().Debugf("zarr %s: skipping array: %v", base, err)
			continue
		}
		s.arrays[name] = a
	}
	if len(s.arrays) == 0 {
		return nil, fmt.Errorf("Open(%s): no readable array", base)
	}
	log.Logger(ctx).Sugar().Debugf("opened zarr store %s: %d arrays", base, len(s.arrays))
	return s, nil
}

// DataVariables implements Store
func (s *HTTPStore) DataVariables() []string {
	coords := map[string]struct{}{}
	for _, a := range s.arrays {
		for _, d := range a.dims {
			coords[d] = struct{}{}
		}
		if c, ok := a.attrs["coordinates"].(string); ok {
			for _, n := range strings.Fields(c) {
				coords[n] = struct{}{}
			}
		}
	}
	var names []string
	for name := range s.arrays {
		if _, ok := coords[name]; !ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// Array implements Store
func (s *HTTPStore) Array(name string) (Info, bool) {
	a, ok := s.arrays[name]
	if !ok {
		return Info{}, false
	}
	return Info{Dims: append([]string(nil), a.dims...), Shape: append([]int(nil), a.meta.Shape...), Attrs: a.attrs}, true
}

// Read implements Store
func (s *HTTPStore) Read(ctx context.Context, name string, sel map[string]Range) (*Variable, error) {
	a, ok := s.arrays[name]
	if !ok {
		return nil, fmt.Errorf("Read: no array %s", name)
	}
	ndim := len(a.meta.Shape)
	ranges := make([]Range, ndim)
	shape := make([]int, ndim)
	n := 1
	for i, d := range a.dims {
		r, ok := sel[d]
		if !ok {
			r = Range{0, a.meta.Shape[i]}
		}
		r.Start, r.Stop = max(r.Start, 0), min(r.Stop, a.meta.Shape[i])
		if r.Stop < r.Start {
			r.Stop = r.Start
		}
		ranges[i], shape[i] = r, r.Len()
		n *= shape[i]
	}
	v := &Variable{Name: name, Dims: append([]string(nil), a.dims...), Shape: shape, Data: make([]float64, n), Attrs: a.attrs}
	if n > 0 {
		if err := s.readChunks(ctx, a, ranges, v); err != nil {
			return nil, fmt.Errorf("Read[%s].%w", name, err)
		}
	}
	a.unpack(v.Data)
	if ndim == 1 && IsTime(a.attrs) {
		times, err := DecodeTimes(v.Data, a.attrs)
		if err != nil {
			return nil, fmt.Errorf("Read[%s].%w", name, err)
		}
		v.Times = times
	}
	return v, nil
}

// chunkIndices returns all the indices of the chunks intersecting the ranges
func chunkIndices(a *array, ranges []Range) [][]int {
	first, last := make([]int, len(ranges)), make([]int, len(ranges))
	for i, r := range ranges {
		first[i], last[i] = r.Start/a.meta.Chunks[i], (r.Stop-1)/a.meta.Chunks[i]
	}
	var all [][]int
	cur := append([]int(nil), first...)
	for {
		all = append(all, append([]int(nil), cur...))
		d := len(cur) - 1
		for ; d >= 0; d-- {
			if cur[d] < last[d] {
				cur[d]++
				break
			}
			cur[d] = first[d]
		}
		if d < 0 {
			return all
		}
	}
}

func (s *HTTPStore) readChunks(ctx context.Context, a *array, ranges []Range, v *Variable) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for _, idx := range chunkIndices(a, ranges) {
		g.Go(func() error {
			key := a.name + "/" + a.chunkKey(idx)
			body, err := s.get(ctx, key)
			var values []float64
			switch {
			case notFound(err):
				values = a.fillChunk()
			case err != nil:
				return fmt.Errorf("readChunks[%s]: %w", key, err)
			default:
				if values, err = a.decodeChunk(body); err != nil {
					return fmt.Errorf("readChunks[%s].%w", key, err)
				}
			}
			// Chunks write disjoint parts of the output
			copyChunk(a.meta.Chunks, idx, values, ranges, v.Shape, v.Data)
			return nil
		})
	}
	return g.Wait()
}

// copyChunk copies the intersection of the chunk and the selection into out
func copyChunk(chunks, idx []int, values []float64, ranges []Range, outShape []int, out []float64) {
	ndim := len(chunks)
	if ndim == 0 {
		out[0] = values[0]
		return
	}
	lo, hi := make([]int, ndim), make([]int, ndim)
	for i := range chunks {
		c0 := idx[i] * chunks[i]
		lo[i] = max(ranges[i].Start, c0)
		hi[i] = min(ranges[i].Stop, c0+chunks[i])
		if hi[i] <= lo[i] {
			return
		}
	}
	cur := append([]int(nil), lo...)
	last := ndim - 1
	run := hi[last] - lo[last]
	for {
		src, dst := 0, 0
		for i := 0; i < ndim; i++ {
			src = src*chunks[i] + cur[i] - idx[i]*chunks[i]
			dst = dst*outShape[i] + cur[i] - ranges[i].Start
		}
		copy(out[dst:dst+run], values[src:src+run])
		d := last - 1
		for ; d >= 0; d-- {
			if cur[d]+1 < hi[d] {
				cur[d]++
				break
			}
			cur[d] = lo[d]
		}
		if d < 0 {
			return
		}
	}
}
