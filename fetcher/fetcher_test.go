package fetcher_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/fetcher"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/packager"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	"github.com/airbusgeo/stac-fetcher/resolver"
	"github.com/gorilla/mux"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Fetcher", func() {
	var (
		ctx       = context.Background()
		cat       *MokeCatalog
		geo       *MokeGeocoder
		pixels    *MokePixels
		tables    *MokeTables
		metrics   *fetcher.Metrics
		f         *fetcher.Fetcher
		outputDir string
		res       *packager.FetchResult
		err       error
	)

	BeforeEach(func() {
		cat = &MokeCatalog{}
		geo = &MokeGeocoder{places: map[string][4]float64{"paris, france": {2.224, 48.815, 2.469, 48.902}}}
		pixels = &MokePixels{value: 10}
		tables = &MokeTables{}
		metrics = fetcher.NewMetrics()
		outputDir, err = os.MkdirTemp("", "fetcher")
		Expect(err).NotTo(HaveOccurred())
		f = &fetcher.Fetcher{
			Registry:   registry.Default(),
			Normalizer: aoi.Normalizer{Geocoder: geo},
			Planner:    &planner.Planner{Policy: planner.DefaultPolicy(), Now: func() time.Time { return time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC) }},
			Dispatcher: &dispatcher.Dispatcher{Catalog: cat, Pixels: pixels, Tables: tables},
			Packager:   packager.New(""),
			Metrics:    metrics,
		}
	})

	AfterEach(func() {
		os.RemoveAll(outputDir)
	})

	Describe("DownloadData", func() {
		var req fetcher.DataRequest

		JustBeforeEach(func() {
			req.OutputDir = outputDir
			res, err = f.DownloadData(ctx, req)
		})

		Context("land cover over Los Angeles without time range", func() {
			BeforeEach(func() {
				cat.items = []catalog.Item{item("ESA_WorldCover_10m_2021_v200_N33W120", "map")}
				req = fetcher.DataRequest{Query: "land cover", AOI: aoi.Box(-118.3, 34.0, -118.2, 34.1)}
			})
			It("should resolve, plan, fetch and package esa-worldcover", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(res.DatasetID).To(Equal(registry.ESAWorldCover))
				Expect(res.Metadata[common.MetaCollection]).To(Equal(registry.ESAWorldCover))
				Expect(res.Metadata[common.MetaBBox]).To(Equal([]float64{-118.3, 34.0, -118.2, 34.1}))
				Expect(res.RawPath).To(Equal(filepath.Join(outputDir, "esa-worldcover_-118.3000_34.0000_-118.2000_34.1000.tif")))
				Expect(res.RawPath).To(BeAnExistingFile())
				Expect(res.VisualizationPath).To(BeAnExistingFile())
			})
			It("should search the default time window", func() {
				Expect(cat.searches).To(HaveLen(1))
				Expect(cat.searches[0].Collections).To(Equal([]string{registry.ESAWorldCover}))
				Expect(cat.searches[0].Datetime).To(Equal("2024-06-08T00:00:00Z/2024-06-15T23:59:59Z"))
				Expect(res.Warnings).To(ContainElement(ContainSubstring("No time range specified")))
				Expect(pixels.loads).To(Equal(1))
			})
			It("should not geocode a bounding box", func() {
				Expect(geo.calls).To(BeZero())
			})
		})

		Context("ambiguous query", func() {
			BeforeEach(func() {
				req = fetcher.DataRequest{Query: "ambiguous: satellite data", AOI: aoi.Place("Paris, France")}
			})
			It("should return the suggestions without any remote call", func() {
				var amb *resolver.ErrAmbiguous
				Expect(errors.As(err, &amb)).To(BeTrue())
				Expect(len(amb.Suggestions)).To(BeNumerically("<=", 3))
				Expect(cat.calls).To(BeZero())
				Expect(geo.calls).To(BeZero())
				Expect(pixels.loads).To(BeZero())
			})
		})

		Context("elevation over a geocoded place", func() {
			BeforeEach(func() {
				cat.items = []catalog.Item{item("Copernicus_DSM_COG_10_N48_00_E002_00_DEM", "data")}
				tr := "2021-04-22"
				req = fetcher.DataRequest{Query: "elevation", AOI: aoi.Place("Paris, France"), TimeRange: &tr}
			})
			It("should search the geocoded bbox", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(geo.calls).To(Equal(1))
				Expect(res.DatasetID).To(Equal(registry.CopernicusDEM))
				Expect(cat.searches[0].BBox).To(Equal([]float64{2.224, 48.815, 2.469, 48.902}))
				Expect(res.DownloadInfo).NotTo(BeNil())
			})
		})

		Context("unknown place", func() {
			BeforeEach(func() {
				req = fetcher.DataRequest{Query: "elevation", AOI: aoi.Place("Atlantis")}
			})
			It("should return an invalid AOI before any catalog call", func() {
				var invalid *aoi.ErrInvalidAOI
				Expect(errors.As(err, &invalid)).To(BeTrue())
				Expect(invalid.Place).To(Equal("Atlantis"))
				Expect(cat.calls).To(BeZero())
			})
		})

		Context("AOI too large", func() {
			BeforeEach(func() {
				req = fetcher.DataRequest{Query: "sentinel-2 imagery", AOI: aoi.Box(-120, 30, -110, 40)}
			})
			It("should fail before any catalog call", func() {
				var tooLarge *planner.ErrAOITooLarge
				Expect(errors.As(err, &tooLarge)).To(BeTrue())
				Expect(cat.calls).To(BeZero())
			})
		})

		Context("no data in the default window", func() {
			BeforeEach(func() {
				req = fetcher.DataRequest{Query: "sentinel-2 imagery", AOI: aoi.Box(2.35, 48.85, 2.36, 48.86)}
			})
			It("should suggest a wider window", func() {
				s := fetcher.ToStructured(err)
				Expect(s.Kind).To(Equal(fetcher.KindNoDataFound))
				Expect(s.Suggestion).NotTo(BeNil())
				Expect(s.Suggestion.SuggestedDays).To(Equal(14))
				Expect(s.Suggestion.SuggestedTimeRange).To(Equal("2024-06-01/2024-06-15"))
			})
			It("should filter the clouds with the default cover", func() {
				Expect(cat.searches).To(HaveLen(1))
				Expect(cat.searches[0].Query).To(HaveKey(common.PropCloudCover))
			})
		})

		Context("vector collection", func() {
			BeforeEach(func() {
				req = fetcher.DataRequest{Query: "building footprints", AOI: aoi.Box(2.35, 48.85, 2.36, 48.86)}
			})
			It("should be rejected", func() {
				var unsupported *dispatcher.ErrUnsupportedShape
				Expect(errors.As(err, &unsupported)).To(BeTrue())
				Expect(unsupported.Collection).To(Equal(registry.MSBuildings))
				Expect(cat.calls).To(BeZero())
			})
		})
	})

	Describe("DownloadGeometries", func() {
		var req fetcher.GeometriesRequest

		JustBeforeEach(func() {
			req.OutputDir = outputDir
			res, err = f.DownloadGeometries(ctx, req)
		})

		Context("buildings outside the regional partitions", func() {
			BeforeEach(func() {
				cat.items = []catalog.Item{item("Paris_1", common.AssetData), item("Paris_2", common.AssetData)}
				req = fetcher.GeometriesRequest{Collection: registry.MSBuildings, AOI: aoi.Box(2.35, 48.85, 2.36, 48.86)}
			})
			It("should read the partitions of the items", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(tables.reads).To(Equal(2))
				Expect(res.Metadata[common.MetaCount]).To(Equal(2))
				Expect(res.Metadata[common.MetaDegraded]).To(BeFalse())
				Expect(res.RawPath).To(HaveSuffix(".parquet"))
				Expect(res.RawPath).To(BeAnExistingFile())
				Expect(res.Warnings).To(BeEmpty())
			})
			Context("with a limit", func() {
				BeforeEach(func() {
					req.Limit = 1
				})
				It("should truncate the features", func() {
					Expect(err).NotTo(HaveOccurred())
					Expect(res.Metadata[common.MetaCount]).To(Equal(1))
				})
			})
		})

		Context("grid collection", func() {
			BeforeEach(func() {
				req = fetcher.GeometriesRequest{Collection: registry.ESAWorldCover, AOI: aoi.Box(2.35, 48.85, 2.36, 48.86)}
			})
			It("should be rejected", func() {
				var unsupported *dispatcher.ErrUnsupportedShape
				Expect(errors.As(err, &unsupported)).To(BeTrue())
			})
		})

		Context("unknown collection", func() {
			BeforeEach(func() {
				req = fetcher.GeometriesRequest{Collection: "osm-roads", AOI: aoi.Box(2.35, 48.85, 2.36, 48.86)}
			})
			It("should list the available categories", func() {
				s := fetcher.ToStructured(err)
				Expect(s.Kind).To(Equal(fetcher.KindNoResolutionMatch))
				Expect(s.AvailableCategories).NotTo(BeEmpty())
			})
		})
	})

	Describe("HTTP shell", func() {
		var (
			server *httptest.Server
			resp   *http.Response
			body   []byte
		)

		BeforeEach(func() {
			r := mux.NewRouter()
			f.AddHandler(r)
			server = httptest.NewServer(r)
		})

		AfterEach(func() {
			server.Close()
		})

		post := func(path string, v interface{}) {
			b, err := json.Marshal(v)
			Expect(err).NotTo(HaveOccurred())
			resp, err = http.Post(server.URL+path, "application/json", bytes.NewReader(b))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			body, err = io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
		}

		It("should return the structured error of an ambiguous query", func() {
			post("/download/data", map[string]interface{}{"query": "satellite imagery", "aoi": []float64{2.35, 48.85, 2.36, 48.86}})
			Expect(resp.StatusCode).To(Equal(http.StatusConflict))
			var s map[string]interface{}
			Expect(json.Unmarshal(body, &s)).To(Succeed())
			Expect(s["kind"]).To(Equal(fetcher.KindAmbiguousResolution))
			Expect(s["suggestions"]).To(HaveLen(3))
		})

		It("should download data", func() {
			cat.items = []catalog.Item{item("ESA_WorldCover_10m_2021_v200_N48E000", "map")}
			post("/download/data", map[string]interface{}{"query": "land cover", "aoi": "Paris, France", "time_range": "2021-01-01/2021-12-31", "output_dir": outputDir})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var fr packager.FetchResult
			Expect(json.Unmarshal(body, &fr)).To(Succeed())
			Expect(fr.DatasetID).To(Equal(registry.ESAWorldCover))
			Expect(fr.RawPath).To(BeAnExistingFile())
		})

		It("should reject a malformed request", func() {
			post("/download/geometries", "not an object")
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(string(body)).To(ContainSubstring(fetcher.KindInvalidRequest))
		})

		It("should expose the metrics", func() {
			post("/download/data", map[string]interface{}{"query": "xyz123 nonsense", "aoi": []float64{2.35, 48.85, 2.36, 48.86}})
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			mresp, err := http.Get(server.URL + "/metrics")
			Expect(err).NotTo(HaveOccurred())
			defer mresp.Body.Close()
			b, err := io.ReadAll(mresp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.Contains(string(b), `fetcher_requests_total{operation="download_data",outcome="no_resolution_match"} 1`)).To(BeTrue())
			Expect(string(b)).To(ContainSubstring("go_goroutines"))
		})
	})
})
