package registry

import (
	"github.com/airbusgeo/stac-fetcher/common"
)

// Collections of the Microsoft Planetary Computer
const (
	Sentinel2     = "sentinel-2-l2a"
	Landsat       = "landsat-c2-l2"
	NAIP          = "naip"
	Sentinel1     = "sentinel-1-rtc"
	CopernicusDEM = "cop-dem-glo-30"
	AlosDEM       = "alos-dem"
	ESAWorldCover = "esa-worldcover"
	EsriLULC      = "io-lulc-annual-v02"
	GridMET       = "gridmet"
	TerraClimate  = "terraclimate"
	DaymetDaily   = "daymet-daily-na"
	MSBuildings   = "ms-buildings"
)

var latLon = Coords{Time: "time", Lat: "lat", Lon: "lon"}

// DefaultEntries returns the supported collections
func DefaultEntries() []Entry {
	return []Entry{
		{
			ID:               Sentinel2,
			Name:             "Sentinel-2 L2A",
			Description:      "10m optical imagery, global, 5-day revisit",
			Keywords:         []string{Sentinel2, "sentinel-2", "sentinel", "optical", "multispectral"},
			Category:         common.CategoryOptical,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.0001,
			Bands:            3,
			BytesPerPixel:    2,
			Assets:           []string{"B04", "B03", "B02"},
			CloudCover:       true,
			Visualization:    VisualizationRGB,
		},
		{
			ID:               Landsat,
			Name:             "Landsat Collection 2 L2",
			Description:      "30m optical imagery, global, 16-day revisit",
			Keywords:         []string{Landsat, "landsat", "landsat-8", "landsat-9"},
			Category:         common.CategoryOptical,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.00027,
			Bands:            3,
			BytesPerPixel:    2,
			Assets:           []string{"red", "green", "blue"},
			CloudCover:       true,
			Visualization:    VisualizationRGB,
		},
		{
			ID:               NAIP,
			Name:             "NAIP Aerial Imagery",
			Description:      "0.6-1m aerial photos, US only, updated every 2-3 years",
			Keywords:         []string{NAIP, "aerial", "high-resolution", "usda"},
			Category:         common.CategoryOptical,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.000003,
			Bands:            4,
			BytesPerPixel:    1,
			MultiBandAsset:   "image",
			BandNames:        []string{"red", "green", "blue", "nir"},
			Visualization:    VisualizationRGB,
		},
		{
			ID:               Sentinel1,
			Name:             "Sentinel-1 RTC",
			Description:      "10m radar imagery, global, works through clouds",
			Keywords:         []string{Sentinel1, "sentinel-1", "sar", "radar", "microwave"},
			Category:         common.CategorySar,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.0001,
			Bands:            2,
			BytesPerPixel:    4,
			Assets:           []string{"vv", "vh"},
			Visualization:    VisualizationRGB,
		},
		{
			ID:               CopernicusDEM,
			Name:             "Copernicus DEM 30m",
			Description:      "30m global elevation model",
			Keywords:         []string{CopernicusDEM, "dem", "elevation", "terrain", "copernicus", "height"},
			Category:         common.CategoryElevation,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.00027,
			Bands:            1,
			BytesPerPixel:    4,
			Assets:           []string{"data"},
			Visualization:    VisualizationTerrain,
		},
		{
			ID:               AlosDEM,
			Name:             "ALOS World 3D DEM",
			Description:      "30m global elevation from JAXA",
			Keywords:         []string{AlosDEM, "alos", "dem", "elevation", "jaxa"},
			Category:         common.CategoryElevation,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.00027,
			Bands:            1,
			BytesPerPixel:    4,
			Assets:           []string{"data"},
			Visualization:    VisualizationTerrain,
		},
		{
			ID:               ESAWorldCover,
			Name:             "ESA WorldCover",
			Description:      "10m global land cover classification",
			Keywords:         []string{ESAWorldCover, "worldcover", "land cover", "landcover", "esa", "classification"},
			Category:         common.CategoryLandCover,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.0001,
			Bands:            1,
			BytesPerPixel:    1,
			Assets:           []string{"map"},
			Visualization:    VisualizationClassified,
		},
		{
			ID:               EsriLULC,
			Name:             "Esri Land Use/Land Cover",
			Description:      "10m annual global land use classification",
			Keywords:         []string{EsriLULC, "lulc", "land use", "esri", "annual"},
			Category:         common.CategoryLandCover,
			Shape:            common.ShapeGrid,
			NativeResolution: 0.0001,
			Bands:            1,
			BytesPerPixel:    1,
			Assets:           []string{"data"},
			Visualization:    VisualizationClassified,
		},
		{
			ID:               GridMET,
			Name:             "gridMET",
			Description:      "4km daily climate data for CONUS (1979-present)",
			Keywords:         []string{GridMET, "climate", "weather", "temperature", "precipitation", "conus"},
			Category:         common.CategoryClimate,
			Shape:            common.ShapeMultidim,
			NativeResolution: 0.036,
			Bands:            1,
			BytesPerPixel:    4,
			Variables:        []string{"air_temperature", "precipitation_amount"},
			Coords:           latLon,
			Visualization:    VisualizationHeatmap,
		},
		{
			ID:               TerraClimate,
			Name:             "TerraClimate",
			Description:      "4km monthly climate data, global (1958-present)",
			Keywords:         []string{TerraClimate, "climate", "monthly", "global"},
			Category:         common.CategoryClimate,
			Shape:            common.ShapeMultidim,
			NativeResolution: 0.036,
			Bands:            1,
			BytesPerPixel:    4,
			Variables:        []string{"tmax", "tmin", "ppt"},
			Coords:           latLon,
			Visualization:    VisualizationHeatmap,
		},
		{
			ID:               DaymetDaily,
			Name:             "Daymet Daily",
			Description:      "1km daily weather data for North America",
			Keywords:         []string{DaymetDaily, "daymet", "weather", "daily", "north america"},
			Category:         common.CategoryClimate,
			Shape:            common.ShapeMultidim,
			NativeResolution: 0.009,
			Bands:            1,
			BytesPerPixel:    4,
			Variables:        []string{"tmax", "tmin", "prcp"},
			Coords:           latLon, // 2-D lat/lon: no spatial subsetting
			Visualization:    VisualizationHeatmap,
		},
		{
			ID:            MSBuildings,
			Name:          "Microsoft Building Footprints",
			Description:   "AI-derived building polygons, global coverage",
			Keywords:      []string{MSBuildings, "building", "buildings", "footprint", "footprints", "microsoft"},
			Category:      common.CategoryVector,
			Shape:         common.ShapeVector,
			Visualization: VisualizationFootprints,
		},
	}
}

// DefaultTables returns the keyword tables of the default collections
func DefaultTables() Tables {
	return Tables{
		Aliases: []Alias{
			{"sentinel-1", Sentinel1},
			{"sentinel", Sentinel2},
			{"sentinel-2", Sentinel2},
			{"naip", NAIP},
			{"aerial", NAIP},
			{"landsat", Landsat},
			{"dem", CopernicusDEM},
			{"elevation", CopernicusDEM},
			{"terrain", CopernicusDEM},
			{"copernicus", CopernicusDEM},
			{"alos", AlosDEM},
			{"land cover", ESAWorldCover},
			{"landcover", ESAWorldCover},
			{"lulc", EsriLULC},
			{"land use", EsriLULC},
			{"worldcover", ESAWorldCover},
			{"building", MSBuildings},
			{"buildings", MSBuildings},
			{"footprint", MSBuildings},
			{"sar", Sentinel1},
			{"radar", Sentinel1},
			{"gridmet", GridMET},
			{"terraclimate", TerraClimate},
			{"daymet", DaymetDaily},
			{"climate", GridMET},
			{"weather", GridMET},
			{"temperature", GridMET},
			{"precipitation", GridMET},
		},
		// Order matters: suggestions keep the order of the first matching keywords
		Ambiguous: []AmbiguousKeyword{
			{"imagery", []string{Sentinel2, Landsat, NAIP}},
			{"image", []string{Sentinel2, Landsat, NAIP}},
			{"optical", []string{Sentinel2, Landsat, NAIP}},
			{"satellite", []string{Sentinel2, Landsat, Sentinel1}},
			{"remote sensing", []string{Sentinel2, Landsat, Sentinel1}},
		},
		Categories: []string{
			"optical imagery (sentinel-2, landsat, naip)",
			"radar/SAR (sentinel-1)",
			"elevation/DEM (copernicus dem, alos dem)",
			"land cover (esa worldcover, esri lulc)",
			"climate/weather (gridmet, terraclimate, daymet)",
			"building footprints (ms-buildings)",
		},
	}
}

// Default returns the registry of the Planetary Computer collections
func Default() *Registry {
	r, err := New(DefaultEntries(), DefaultTables())
	if err != nil {
		panic(err)
	}
	return r
}
