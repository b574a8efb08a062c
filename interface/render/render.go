package render

import (
	"fmt"
	"image"
	"image/color"
	"image/gif"
	"image/jpeg"
	"math"
	"os"
	"strings"

	"github.com/airbusgeo/stac-fetcher/interface/raster"
	"github.com/airbusgeo/stac-fetcher/interface/zarr"
	"github.com/airbusgeo/stac-fetcher/registry"
	"go.uber.org/multierr"
)

const kelvin = 273.15

// Renderer writes the previews of the results
type Renderer struct {
	Quality   int // JPEG quality
	MinSize   int // Heatmaps smaller than this are upscaled (pixels)
	MaxFrames int // Frames of an animation
	Width     int // Width of the footprints images
}

// New returns a renderer with the default options
func New() *Renderer {
	return &Renderer{Quality: 90, MinSize: 256, MaxFrames: 10, Width: 800}
}

func (r *Renderer) writeJPEG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("writeJPEG: %w", err)
	}
	if err := multierr.Append(jpeg.Encode(f, img, &jpeg.Options{Quality: r.Quality}), f.Close()); err != nil {
		return fmt.Errorf("writeJPEG: %w", err)
	}
	return nil
}

// Raster renders a grid result as a RGB composite, a classified map or a terrain map
func (r *Renderer) Raster(res raster.Result, vis registry.Visualization, path string) error {
	g, bands := res.Georef(), res.BandList()
	if len(bands) == 0 || g.Width == 0 || g.Height == 0 {
		return fmt.Errorf("Raster: empty result")
	}
	img := image.NewRGBA(image.Rect(0, 0, g.Width, g.Height))
	switch vis {
	case registry.VisualizationClassified:
		for i, v := range bands[0].Data {
			img.SetRGBA(i%g.Width, i/g.Width, WorldCover.At(float64(v)))
		}
	case registry.VisualizationTerrain, registry.VisualizationHeatmap:
		cmap := Terrain
		if vis == registry.VisualizationHeatmap {
			cmap = Heat
		}
		lo, hi, ok := percentiles(bands[0].Data, 0, 100)
		if !ok || hi <= lo {
			hi = lo + 1
		}
		for i, v := range bands[0].Data {
			img.SetRGBA(i%g.Width, i/g.Width, cmap.At(normalize(float64(v), lo, hi)))
		}
	default:
		rgb := rgbBands(bands)
		var lo, hi [3]float64
		for c, b := range rgb {
			lo[c], hi[c] = stretch(b.Data)
		}
		for i := range rgb[0].Data {
			var px [3]uint8
			for c, b := range rgb {
				if v := normalize(float64(b.Data[i]), lo[c], hi[c]); !math.IsNaN(v) {
					px[c] = uint8(math.Round(v * 255))
				}
			}
			img.SetRGBA(i%g.Width, i/g.Width, color.RGBA{px[0], px[1], px[2], 255})
		}
	}
	if err := r.writeJPEG(path, img); err != nil {
		return fmt.Errorf("Raster.%w", err)
	}
	return nil
}

// rgbBands returns the three bands of the composite: the first three bands,
// (b1, b2, b1) for dual polarization, the band repeated for a single band.
func rgbBands(bands []raster.Band) [3]raster.Band {
	switch len(bands) {
	case 1:
		return [3]raster.Band{bands[0], bands[0], bands[0]}
	case 2:
		return [3]raster.Band{bands[0], bands[1], bands[0]}
	}
	return [3]raster.Band{bands[0], bands[1], bands[2]}
}

// frames gives access to the 2-D slices of a variable along its first (time) dimension
type frames struct {
	v             *zarr.Variable
	count         int
	width, height int
	celsius       bool
	flip          bool
}

func newFrames(v *zarr.Variable, flip bool) (*frames, error) {
	f := &frames{v: v, count: 1, flip: flip}
	switch n := len(v.Shape); {
	case n == 0:
		return nil, fmt.Errorf("scalar variable %s", v.Name)
	case n == 1:
		f.width, f.height = v.Shape[0], 1
	case n == 2:
		f.height, f.width = v.Shape[0], v.Shape[1]
	default:
		f.count, f.height, f.width = v.Shape[0], v.Shape[n-2], v.Shape[n-1]
	}
	if f.count == 0 || f.width == 0 || f.height == 0 {
		return nil, fmt.Errorf("empty variable %s", v.Name)
	}
	f.celsius = v.Units() == "K" && strings.Contains(strings.ToLower(v.Name), "temperature")
	return f, nil
}

// frame returns the values of the i-th time step (other leading dimensions at index 0)
func (f *frames) frame(i int) []float64 {
	stride := 1
	if len(f.v.Shape) > 2 {
		for _, s := range f.v.Shape[1:] {
			stride *= s
		}
	}
	n := f.width * f.height
	out := make([]float64, n)
	copy(out, f.v.Data[i*stride:i*stride+n])
	if f.flip {
		for row := 0; row < f.height/2; row++ {
			a, b := out[row*f.width:(row+1)*f.width], out[(f.height-1-row)*f.width:(f.height-row)*f.width]
			for c := range a {
				a[c], b[c] = b[c], a[c]
			}
		}
	}
	if f.celsius {
		for j := range out {
			out[j] -= kelvin
		}
	}
	return out
}

func minMax(values ...[]float64) (float64, float64) {
	lo, hi := math.Inf(1), math.Inf(-1)
	for _, vs := range values {
		for _, v := range vs {
			if !math.IsNaN(v) {
				lo, hi = math.Min(lo, v), math.Max(hi, v)
			}
		}
	}
	if math.IsInf(lo, 1) {
		return 0, 1
	}
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func (r *Renderer) scale(w, h int) int {
	if m := max(w, h); m < r.MinSize {
		return (r.MinSize + m - 1) / m
	}
	return 1
}

// heatPalette has the no-data color at index 0
func heatPalette() color.Palette {
	p := color.Palette{noDataColor}
	for i := 1; i < 256; i++ {
		p = append(p, Heat.At(float64(i-1)/254))
	}
	return p
}

func (r *Renderer) paletted(f *frames, values []float64, lo, hi float64, pal color.Palette) *image.Paletted {
	k := r.scale(f.width, f.height)
	img := image.NewPaletted(image.Rect(0, 0, f.width*k, f.height*k), pal)
	for y := 0; y < f.height*k; y++ {
		for x := 0; x < f.width*k; x++ {
			v := values[(y/k)*f.width+x/k]
			idx := uint8(0)
			if !math.IsNaN(v) {
				idx = 1 + uint8(math.Round(normalize(v, lo, hi)*254))
			}
			img.SetColorIndex(x, y, idx)
		}
	}
	return img
}

// Cube renders the middle time step of the variable as a heatmap and, if there are more than
// three time steps, an animation of at most MaxFrames time steps sampled evenly.
// flip must be true if the rows are ordered by increasing latitude.
// It returns true if the animation was written.
func (r *Renderer) Cube(v *zarr.Variable, flip bool, path, animationPath string) (bool, error) {
	f, err := newFrames(v, flip)
	if err != nil {
		return false, fmt.Errorf("Cube: %w", err)
	}
	pal := heatPalette()
	middle := r.frameAt(f, f.count/2)
	lo, hi := minMax(middle)
	if err := r.writeJPEG(path, r.paletted(f, middle, lo, hi, pal)); err != nil {
		return false, fmt.Errorf("Cube.%w", err)
	}
	if f.count <= 3 || animationPath == "" {
		return false, nil
	}

	n := max(min(f.count, r.MaxFrames), 2)
	values := make([][]float64, n)
	for i := range values {
		values[i] = r.frameAt(f, i*(f.count-1)/(n-1))
	}
	lo, hi = minMax(values...)
	anim := &gif.GIF{}
	for _, vs := range values {
		anim.Image = append(anim.Image, r.paletted(f, vs, lo, hi, pal))
		anim.Delay = append(anim.Delay, 50)
	}
	out, err := os.Create(animationPath)
	if err != nil {
		return false, fmt.Errorf("Cube: %w", err)
	}
	if err := multierr.Append(gif.EncodeAll(out, anim), out.Close()); err != nil {
		return false, fmt.Errorf("Cube: %w", err)
	}
	return true, nil
}

func (r *Renderer) frameAt(f *frames, i int) []float64 {
	return f.frame(min(i, f.count-1))
}
