package render

import (
	"image/color"
	"math"
	"sort"
)

// Colormap maps a normalized value in [0, 1] to a color
type Colormap []color.RGBA

// At interpolates linearly between the stops of the colormap
func (c Colormap) At(t float64) color.RGBA {
	if math.IsNaN(t) {
		return noDataColor
	}
	t = math.Max(0, math.Min(1, t))
	pos := t * float64(len(c)-1)
	i := int(pos)
	if i >= len(c)-1 {
		return c[len(c)-1]
	}
	f := pos - float64(i)
	a, b := c[i], c[i+1]
	lerp := func(x, y uint8) uint8 { return uint8(math.Round(float64(x) + f*(float64(y)-float64(x)))) }
	return color.RGBA{lerp(a.R, b.R), lerp(a.G, b.G), lerp(a.B, b.B), 255}
}

var noDataColor = color.RGBA{0, 0, 0, 255}

// Terrain goes from blue (low) to green, yellow, brown and white (high)
var Terrain = Colormap{
	{0, 0, 255, 255},
	{0, 100, 255, 255},
	{0, 200, 255, 255},
	{0, 255, 200, 255},
	{0, 255, 0, 255},
	{100, 255, 0, 255},
	{200, 255, 0, 255},
	{255, 255, 0, 255},
	{255, 200, 0, 255},
	{255, 150, 0, 255},
	{255, 100, 0, 255},
	{200, 100, 0, 255},
	{150, 75, 0, 255},
	{100, 50, 0, 255},
	{255, 255, 255, 255},
}

// Heat is the reversed red-yellow-blue diverging colormap: cold values are blue, warm values red
var Heat = Colormap{
	{0x31, 0x36, 0x95, 255},
	{0x45, 0x75, 0xb4, 255},
	{0x74, 0xad, 0xd1, 255},
	{0xab, 0xd9, 0xe9, 255},
	{0xe0, 0xf3, 0xf8, 255},
	{0xff, 0xff, 0xbf, 255},
	{0xfe, 0xe0, 0x90, 255},
	{0xfd, 0xae, 0x61, 255},
	{0xf4, 0x6d, 0x43, 255},
	{0xd7, 0x30, 0x27, 255},
	{0xa5, 0x00, 0x26, 255},
}

// Palette maps class values to colors
type Palette map[int]color.RGBA

// WorldCover is the palette of the ESA WorldCover classes
var WorldCover = Palette{
	10:  {0, 100, 0, 255},     // Tree cover
	20:  {255, 187, 34, 255},  // Shrubland
	30:  {255, 255, 76, 255},  // Grassland
	40:  {240, 150, 255, 255}, // Cropland
	50:  {250, 0, 0, 255},     // Built-up
	60:  {180, 180, 180, 255}, // Bare / sparse vegetation
	70:  {240, 240, 240, 255}, // Snow and ice
	80:  {0, 100, 200, 255},   // Permanent water bodies
	90:  {0, 150, 160, 255},   // Herbaceous wetland
	95:  {0, 207, 117, 255},   // Mangroves
	100: {250, 230, 160, 255}, // Moss and lichen
}

// At returns the color of the greatest class lower or equal to the value.
// Values lower than every class take the color of the first class.
func (p Palette) At(v float64) color.RGBA {
	if math.IsNaN(v) || len(p) == 0 {
		return noDataColor
	}
	classes := make([]int, 0, len(p))
	for k := range p {
		classes = append(classes, k)
	}
	sort.Ints(classes)
	i := sort.Search(len(classes), func(i int) bool { return float64(classes[i]) > v })
	if i == 0 {
		return p[classes[0]]
	}
	return p[classes[i-1]]
}

// percentiles returns the p-th and q-th percentiles of the valid values
func percentiles(data []float32, p, q float64) (float64, float64, bool) {
	valid := make([]float64, 0, len(data))
	for _, v := range data {
		if !math.IsNaN(float64(v)) && !math.IsInf(float64(v), 0) {
			valid = append(valid, float64(v))
		}
	}
	if len(valid) == 0 {
		return 0, 0, false
	}
	sort.Float64s(valid)
	at := func(pct float64) float64 {
		// Linear interpolation between the closest ranks
		pos := pct / 100 * float64(len(valid)-1)
		i := int(pos)
		if i >= len(valid)-1 {
			return valid[len(valid)-1]
		}
		return valid[i] + (pos-float64(i))*(valid[i+1]-valid[i])
	}
	return at(p), at(q), true
}

// stretch returns the normalization bounds of a band: 2%-98% percentiles, or min-max when they are equal
func stretch(data []float32) (lo, hi float64) {
	lo, hi, ok := percentiles(data, 2, 98)
	if !ok {
		return 0, 1
	}
	if hi > lo {
		return lo, hi
	}
	lo, hi, _ = percentiles(data, 0, 100)
	if hi <= lo {
		hi = lo + 1
	}
	return lo, hi
}

func normalize(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return math.NaN()
	}
	return math.Max(0, math.Min(1, (v-lo)/(hi-lo)))
}
