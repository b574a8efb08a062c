package dispatcher_test

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	"github.com/airbusgeo/stac-fetcher/aoi"
	"github.com/airbusgeo/stac-fetcher/common"
	"github.com/airbusgeo/stac-fetcher/dispatcher"
	"github.com/airbusgeo/stac-fetcher/interface/catalog"
	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/planner"
	"github.com/airbusgeo/stac-fetcher/registry"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var reg = registry.Default()

func entry(id string) registry.Entry {
	e, ok := reg.Get(id)
	Expect(ok).To(BeTrue())
	return e
}

func plan(e registry.Entry, a aoi.AOI, timeRange *string) *planner.FetchPlan {
	p := planner.Planner{
		Policy: planner.DefaultPolicy(),
		Now:    func() time.Time { return time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC) },
	}
	fp, err := p.Plan(e, a, timeRange, 20)
	Expect(err).NotTo(HaveOccurred())
	return fp
}

func mustAOI(w, s, e, n float64) aoi.AOI {
	a, err := aoi.New(w, s, e, n)
	Expect(err).NotTo(HaveOccurred())
	return a
}

func item(id string, assets ...string) catalog.Item {
	it := catalog.Item{ID: id, Properties: map[string]interface{}{}, Assets: map[string]catalog.Asset{}}
	for _, key := range assets {
		it.Assets[key] = catalog.Asset{Href: "https://example.com/" + id + "/" + key + ".tif", Type: "image/tiff; application=geotiff", Roles: []string{"data"}}
	}
	return it
}

var _ = Describe("Quadkeys", func() {
	It("should format the quadkeys with their leading zeros", func() {
		Expect(dispatcher.Quadkeys(mustAOI(-170.5, 79.5, -169.5, 80.5), 3)).To(Equal([]string{"000"}))
		Expect(dispatcher.Quadkeys(mustAOI(9.9, 9.9, 10.1, 10.1), 2)).To(Equal([]string{"12"}))
	})
	It("should cover the AOI", func() {
		keys := dispatcher.Quadkeys(mustAOI(0.5, 0.5, 1.5, 1.5), 9)
		Expect(keys).To(HaveLen(9))
		for _, k := range keys {
			Expect(k).To(HaveLen(9))
		}
	})
})

var _ = Describe("Region", func() {
	It("should find the region of the south-west corner", func() {
		Expect(dispatcher.Region(mustAOI(-122.35, 47.60, -122.33, 47.62))).To(Equal(dispatcher.RegionUnitedStates))
		Expect(dispatcher.Region(mustAOI(-130, 55, -129.9, 55.1))).To(Equal(dispatcher.RegionCanada))
		Expect(dispatcher.Region(mustAOI(2.3, 48.8, 2.4, 48.9))).To(BeEmpty())
	})
})

var _ = Describe("Dispatcher", func() {
	var (
		ctx    = context.Background()
		cat    *MokeCatalog
		pixels *MokePixels
		tables *MokeTables
		stores *MokeStores
		d      *dispatcher.Dispatcher
	)

	BeforeEach(func() {
		cat = &MokeCatalog{}
		pixels = &MokePixels{}
		tables = &MokeTables{}
		stores = &MokeStores{Opener: zarr.NewHTTPOpener()}
		d = &dispatcher.Dispatcher{Catalog: cat, Pixels: pixels, Tables: tables, Stores: stores, Workers: 2}
	})

	Context("without strategy for the shape", func() {
		It("should return ErrUnsupportedShape", func() {
			d.Pixels = nil
			e := entry(registry.Sentinel2)
			a := mustAOI(2.3, 48.8, 2.31, 48.81)
			_, err := d.Fetch(ctx, e, a, plan(e, a, nil))
			var unsupported *dispatcher.ErrUnsupportedShape
			Expect(errors.As(err, &unsupported)).To(BeTrue())
			Expect(unsupported.Shape).To(Equal(common.ShapeGrid))
			Expect(cat.searches).To(BeEmpty())

			e.Shape = common.ShapeUnknown
			_, err = d.Fetch(ctx, e, a, plan(e, a, nil))
			Expect(errors.As(err, &unsupported)).To(BeTrue())
		})
	})

	Context("grid", func() {
		a := mustAOI(2.3, 48.8, 2.31, 48.81)

		It("should search the most recent clear items and compose the bands", func() {
			cat.items = []catalog.Item{item("s2-b", "B02", "B03", "B04"), item("s2-a", "B02", "B03", "B04")}
			e := entry(registry.Sentinel2)
			tr := "2024-06-01/2024-06-30"
			res, err := d.Fetch(ctx, e, a, plan(e, a, &tr))
			Expect(err).NotTo(HaveOccurred())

			Expect(cat.searches).To(HaveLen(1))
			params := cat.searches[0]
			Expect(params.Collections).To(Equal([]string{registry.Sentinel2}))
			Expect(params.BBox).To(Equal(a.BBox()))
			Expect(params.Datetime).To(Equal("2024-06-01T00:00:00Z/2024-06-30T23:59:59Z"))
			Expect(params.Limit).To(Equal(1))
			Expect(params.Query[common.PropCloudCover]).To(HaveKeyWithValue("lt", 20))
			Expect(params.SortBy).To(Equal([]catalog.SortBy{{Field: "datetime", Direction: "desc"}}))

			Expect(pixels.loads).To(Equal(1))
			Expect(pixels.assets).To(Equal([]string{"B04", "B03", "B02"}))
			Expect(cat.signs).To(Equal(2))
			Expect(pixels.hrefs).To(HaveLen(6))
			for _, href := range pixels.hrefs {
				Expect(href).To(HaveSuffix(".tif?sig"))
			}
			grid, ok := res.(*dispatcher.Grid)
			Expect(ok).To(BeTrue())
			Expect(grid.Raster).To(BeAssignableToTypeOf(&raster.MultiBand{}))
			Expect(grid.Items).To(HaveLen(2))
		})

		It("should use the data assets of the item when the entry has none", func() {
			it := item("dem", "data")
			it.Assets["rendered_preview"] = catalog.Asset{Href: "https://example.com/preview.png", Type: "image/png", Roles: []string{"overview"}}
			cat.items = []catalog.Item{it}
			e := entry(registry.CopernicusDEM)
			e.Assets = nil
			res, err := d.Fetch(ctx, e, a, plan(e, a, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(pixels.assets).To(Equal([]string{"data"}))
			Expect(res.(*dispatcher.Grid).Raster).To(BeAssignableToTypeOf(&raster.SingleBand{}))
		})

		It("should read the multi-band asset of the first item holding it", func() {
			cat.items = []catalog.Item{item("naip-1", "thumbnail"), item("naip-2", "image")}
			e := entry(registry.NAIP)
			a := mustAOI(-122.35, 47.60, -122.3499, 47.6001)
			res, err := d.Fetch(ctx, e, a, plan(e, a, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(pixels.loads).To(Equal(0))
			Expect(pixels.hrefs).To(Equal([]string{"https://example.com/naip-2/image.tif?sig"}))
			Expect(cat.searches[0].Query).To(BeEmpty())
			var names []string
			for _, b := range res.(*dispatcher.Grid).Raster.BandList() {
				names = append(names, b.Name)
			}
			Expect(names).To(Equal([]string{"red", "green", "blue", "nir"}))
		})

		It("should suggest a wider window only when the default one was used", func() {
			e := entry(registry.Sentinel2)
			_, err := d.Fetch(ctx, e, a, plan(e, a, nil))
			var noData *dispatcher.ErrNoData
			Expect(errors.As(err, &noData)).To(BeTrue())
			Expect(noData.Collection).To(Equal(registry.Sentinel2))
			Expect(noData.Suggestion).NotTo(BeNil())
			Expect(noData.Suggestion.SuggestedDays).To(Equal(14))
			Expect(noData.Suggestion.SuggestedTimeRange).To(Equal("2024-06-01/2024-06-15"))
			Expect(noData.Message).To(ContainSubstring("last 7 days"))

			tr := "2020-01-01/2020-01-31"
			_, err = d.Fetch(ctx, e, a, plan(e, a, &tr))
			Expect(errors.As(err, &noData)).To(BeTrue())
			Expect(noData.Suggestion).To(BeNil())
			Expect(noData.Message).To(ContainSubstring("2020-01-01/2020-01-31"))
			Expect(pixels.loads).To(Equal(0))
		})
	})

	Context("vector", func() {
		e := entry(registry.MSBuildings)
		seattle := mustAOI(-122.35, 47.60, -122.33, 47.62)
		base := "abfs://footprints/delta/2023-04-25/ml-buildings.parquet/RegionName=United States"

		regionItem := func() catalog.Item {
			return catalog.Item{ID: "United States", Assets: map[string]catalog.Asset{
				common.AssetData: {Href: base, TableStorageOptions: map[string]interface{}{"account_name": "bingmlbuildings"}},
			}}
		}

		It("should read the quadkey partitions of the region in parallel", func() {
			cat.items = []catalog.Item{regionItem()}
			keys := dispatcher.Quadkeys(seattle, dispatcher.DefaultQuadkeyZoom)
			tables.files = map[string][]string{base + "/quadkey=" + keys[0]: {"part-0.parquet", "part-1.parquet", "part-2.parquet"}}
			tables.features = map[string]int{"part-0.parquet": 3, "part-1.parquet": 2, "part-2.parquet": 4}
			tables.failing = map[string]bool{"part-1.parquet": true}

			res, err := d.Fetch(ctx, e, seattle, plan(e, seattle, nil), dispatcher.WithLimit(5))
			Expect(err).NotTo(HaveOccurred())
			Expect(cat.searches).To(HaveLen(1))
			Expect(cat.searches[0].Limit).To(Equal(1))
			Expect(cat.searches[0].Query[common.PropBuildingsRegion]).To(HaveKeyWithValue("eq", dispatcher.RegionUnitedStates))
			Expect(cat.signs).To(Equal(1))
			Expect(tables.listed).To(HaveLen(len(keys)))
			Expect(tables.listed[0]).To(Equal(base + "/quadkey=" + keys[0] + "?sig"))
			Expect(tables.reads).To(Equal(3))

			t, ok := res.(*dispatcher.Table)
			Expect(ok).To(BeTrue())
			Expect(t.Region).To(Equal(dispatcher.RegionUnitedStates))
			Expect(t.Partitions).To(Equal(3))
			Expect(t.Degraded()).To(BeTrue())
			Expect(t.FailedPartitions).To(Equal(1))
			Expect(t.Diagnostics).To(HaveLen(1))
			Expect(t.Diagnostics[0].Error()).To(ContainSubstring("corrupted"))
			Expect(t.Err()).To(MatchError(ContainSubstring("corrupted")))
			Expect(t.Table.Len()).To(Equal(5))
		})

		It("should list the data assets of the items outside the known regions", func() {
			paris := mustAOI(2.3, 48.8, 2.31, 48.81)
			cat.items = []catalog.Item{{ID: "fr", Assets: map[string]catalog.Asset{common.AssetData: {Href: "abfs://footprints/fr"}}}}
			tables.files = map[string][]string{"abfs://footprints/fr": {"fr.parquet"}}
			tables.features = map[string]int{"fr.parquet": 2}

			res, err := d.Fetch(ctx, e, paris, plan(e, paris, nil))
			Expect(err).NotTo(HaveOccurred())
			Expect(cat.searches).To(HaveLen(1))
			Expect(cat.searches[0].Query).To(BeEmpty())
			t := res.(*dispatcher.Table)
			Expect(t.Region).To(BeEmpty())
			Expect(t.Degraded()).To(BeFalse())
			Expect(t.Table.Len()).To(Equal(2))
		})

		It("should return ErrNoData when every partition fails", func() {
			cat.items = []catalog.Item{regionItem()}
			keys := dispatcher.Quadkeys(seattle, dispatcher.DefaultQuadkeyZoom)
			files := []string{"part-0.parquet", "part-1.parquet"}
			tables.files = map[string][]string{base + "/quadkey=" + keys[0]: files}
			tables.failing = map[string]bool{"part-0.parquet": true, "part-1.parquet": true}

			_, err := d.Fetch(ctx, e, seattle, plan(e, seattle, nil))
			var noData *dispatcher.ErrNoData
			Expect(errors.As(err, &noData)).To(BeTrue())
			Expect(noData.Collection).To(Equal(registry.MSBuildings))
			Expect(noData.FailedPartitions).To(Equal(len(files)))
			Expect(noData.Message).To(ContainSubstring("2 of 2 partitions failed"))
			Expect(noData.Suggestion).To(BeNil())
			Expect(tables.reads).To(Equal(len(files)))
		})

		It("should return ErrNoData when no feature intersects", func() {
			cat.items = []catalog.Item{regionItem()}
			_, err := d.Fetch(ctx, e, seattle, plan(e, seattle, nil))
			var noData *dispatcher.ErrNoData
			Expect(errors.As(err, &noData)).To(BeTrue())
			Expect(noData.Suggestion).To(BeNil())
			Expect(noData.Message).To(ContainSubstring("features found in this area"))
			Expect(tables.reads).To(Equal(0))
		})
	})

	Context("multidim", func() {
		var (
			srv *httptest.Server
			dir string
		)
		e := entry(registry.GridMET)
		a := mustAOI(1.95, 48.05, 2.05, 48.15)

		BeforeEach(func() {
			var err error
			dir, err = os.MkdirTemp("", "dispatcher")
			Expect(err).NotTo(HaveOccurred())

			times := &zarr.Variable{Name: "time", Dims: []string{"time"}, Shape: []int{4}, Data: []float64{0, 1, 2, 3},
				Attrs: map[string]interface{}{"units": "days since 2020-01-01"}}
			lat := &zarr.Variable{Name: "lat", Dims: []string{"lat"}, Shape: []int{3}, Data: []float64{48.2, 48.1, 48.0}}
			lon := &zarr.Variable{Name: "lon", Dims: []string{"lon"}, Shape: []int{2}, Data: []float64{2.0, 2.1}}
			air := &zarr.Variable{Name: "air_temperature", Dims: []string{"time", "lat", "lon"}, Shape: []int{4, 3, 2},
				Attrs: map[string]interface{}{"units": "K"}}
			wind := &zarr.Variable{Name: "wind_speed", Dims: []string{"time", "lat", "lon"}, Shape: []int{4, 3, 2}}
			for i := 0; i < 24; i++ {
				air.Data = append(air.Data, 270+float64(i))
				wind.Data = append(wind.Data, float64(i))
			}
			ds := &zarr.Dataset{Coords: []*zarr.Variable{times, lat, lon}, Variables: []*zarr.Variable{air, wind}}
			Expect(zarr.Write(filepath.Join(dir, "gridmet.zarr"), ds)).To(Succeed())

			srv = httptest.NewServer(http.FileServer(http.Dir(dir)))
			cat.collection = &catalog.Collection{ID: registry.GridMET, Assets: map[string]catalog.Asset{
				common.AssetZarrABFS:  {Href: "abfs://gridmet/gridmet.zarr"},
				common.AssetZarrHTTPS: {Href: srv.URL + "/gridmet.zarr"},
			}}
		})

		AfterEach(func() {
			srv.Close()
			os.RemoveAll(dir)
		})

		It("should subset the default variables in time and space", func() {
			tr := "2020-01-02/2020-01-03"
			res, err := d.Fetch(ctx, e, a, plan(e, a, &tr))
			Expect(err).NotTo(HaveOccurred())
			Expect(cat.collections).To(Equal(1))
			Expect(stores.opened).To(Equal([]string{srv.URL + "/gridmet.zarr"}))

			cube, ok := res.(*dispatcher.Cube)
			Expect(ok).To(BeTrue())
			Expect(cube.Coords).To(Equal(registry.Coords{Time: "time", Lat: "lat", Lon: "lon"}))
			ds := cube.Dataset
			Expect(ds.VariableNames()).To(Equal([]string{"air_temperature"}))
			Expect(ds.Sizes()).To(Equal(map[string]int{"time": 2, "lat": 1, "lon": 1}))
			Expect(ds.Variables[0].Data).To(Equal([]float64{278, 284}))
			Expect(ds.Coord("lat").Data).To(Equal([]float64{48.1}))
			Expect(ds.Coord("time").Times[0]).To(BeTemporally("==", time.Date(2020, 1, 2, 0, 0, 0, 0, time.UTC)))
		})

		It("should fail fast on unknown variables", func() {
			tr := "2020-01-02"
			_, err := d.Fetch(ctx, e, a, plan(e, a, &tr), dispatcher.WithVariables("air_temperature", "tmax"))
			var unknown *dispatcher.ErrUnknownVariables
			Expect(errors.As(err, &unknown)).To(BeTrue())
			Expect(unknown.Unknown).To(Equal([]string{"tmax"}))
			Expect(unknown.Available).To(Equal([]string{"air_temperature", "wind_speed"}))
		})

		It("should read the requested variables", func() {
			tr := "2020-01-01/.."
			res, err := d.Fetch(ctx, e, a, plan(e, a, &tr), dispatcher.WithVariables("wind_speed"))
			Expect(err).NotTo(HaveOccurred())
			v := res.(*dispatcher.Cube).Dataset.Variables[0]
			Expect(v.Name).To(Equal("wind_speed"))
			Expect(v.Shape).To(Equal([]int{4, 1, 1}))
			Expect(math.IsNaN(v.Data[0])).To(BeFalse())
		})

		It("should return ErrNoData outside of the time coverage", func() {
			tr := "2021-01-01/2021-12-31"
			_, err := d.Fetch(ctx, e, a, plan(e, a, &tr))
			var noData *dispatcher.ErrNoData
			Expect(errors.As(err, &noData)).To(BeTrue())
			Expect(noData.Suggestion).To(BeNil())
		})
	})
})
