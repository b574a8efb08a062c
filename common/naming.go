package common

import (
	"fmt"
)

// BaseName returns the name of the artifacts of a request, without extension.
// Requests on distinct AOIs written in the same directory do not overwrite each other.
func BaseName(collection string, west, south, east, north float64) string {
	return fmt.Sprintf("%s_%.4f_%.4f_%.4f_%.4f", collection, west, south, east, north)
}

// Artifact names of a grid request
func GridFileNames(collection string, west, south, east, north float64) (raw, visualization string) {
	base := BaseName(collection, west, south, east, north)
	return base + ".tif", base + "_viz.jpg"
}

// Artifact names of a multidim request. The raw store is a directory, zipped when saved.
func CubeFileNames(collection string, west, south, east, north float64) (raw, visualization, animation string) {
	base := BaseName(collection, west, south, east, north)
	return base + ".zarr", base + "_viz.jpg", base + "_animation.gif"
}

// Artifact names of a vector request
func VectorFileNames(collection string, west, south, east, north float64) (raw, visualization string) {
	base := BaseName(collection, west, south, east, north)
	return base + ".parquet", base + "_viz.jpg"
}
