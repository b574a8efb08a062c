package common

//go:generate go run github.com/dmarkham/enumer -type Category -json -text -trimprefix Category -transform snake

// Category is the thematic family of a dataset
type Category int

const (
	CategoryUnknown Category = iota
	CategoryOptical
	CategorySar
	CategoryElevation
	CategoryLandCover
	CategoryClimate
	CategoryVector
)

//go:generate go run github.com/dmarkham/enumer -type ShapeType -json -text -trimprefix Shape -transform snake

// ShapeType is the structure of the data of a dataset. It drives the retrieval strategy.
type ShapeType int

const (
	ShapeUnknown ShapeType = iota
	ShapeGrid              // Tiled rasters (Cloud Optimized GeoTIFF)
	ShapeVector            // Partitioned vector features (GeoParquet)
	ShapeMultidim          // Multidimensional arrays (Zarr)
)
