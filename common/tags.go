package common

// Metadata keys of a FetchResult
const (
	MetaCollection       = "collection"
	MetaBBox             = "bbox"
	MetaDatetime         = "datetime"
	MetaSizeEstimate     = "size_estimate"
	MetaDownloadInfo     = "download_info"
	MetaWidth            = "width"
	MetaHeight           = "height"
	MetaBands            = "bands"
	MetaResolution       = "resolution_deg"
	MetaCRS              = "crs"
	MetaBounds           = "bounds"
	MetaItems            = "items"
	MetaVariables        = "variables"
	MetaDimensions       = "dimensions"
	MetaCoordinates      = "coordinates"
	MetaTimeRange        = "time_range"
	MetaLatRange         = "lat_range"
	MetaLonRange         = "lon_range"
	MetaCount            = "count"
	MetaColumns          = "columns"
	MetaGeometryTypes    = "geometry_types"
	MetaDegraded         = "degraded"
	MetaFailedPartitions = "failed_partitions"
	MetaAnimation        = "animation"
)

// STAC properties
const (
	PropDatetime        = "datetime"
	PropStartDatetime   = "start_datetime"
	PropCloudCover      = "eo:cloud_cover"
	PropBuildingsRegion = "msbuildings:region"
)

// STAC assets
const (
	AssetData      = "data"
	AssetZarrHTTPS = "zarr-https"
	AssetZarrABFS  = "zarr-abfs"
)

// CRS of every artifact produced by the fetcher
const CRS = "EPSG:4326"
