package colormap

import (
	"fmt"
	"image/color"
	"sort"
	"strings"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/mazznoer/colorgrad"
)

// LUTSize is the number of entries of a lookup table
const LUTSize = 256

// LUT is a colour lookup table sampled regularly from a gradient on [0, 1]
type LUT []colorful.Color

// segment is a piecewise-linear channel definition: x, y pairs with increasing x
type segment [][2]float64

func (s segment) at(x float64) float64 {
	for i := 1; i < len(s); i++ {
		if x <= s[i][0] {
			x0, x1 := s[i-1][0], s[i][0]
			if x1 == x0 {
				return s[i][1]
			}
			return s[i-1][1] + (x-x0)/(x1-x0)*(s[i][1]-s[i-1][1])
		}
	}
	return s[len(s)-1][1]
}

var jetSegments = [3]segment{
	{{0, 0}, {0.35, 0}, {0.66, 1}, {0.89, 1}, {1, 0.5}},
	{{0, 0}, {0.125, 0}, {0.375, 1}, {0.64, 1}, {0.91, 0}, {1, 0}},
	{{0, 0.5}, {0.11, 1}, {0.34, 1}, {0.65, 0}, {1, 0}},
}

// segmentedGradient builds a linear RGB gradient going through every breakpoint of the channels
func segmentedGradient(channels [3]segment) (colorgrad.Gradient, error) {
	var pos []float64
	seen := map[float64]bool{}
	for _, ch := range channels {
		for _, p := range ch {
			if !seen[p[0]] {
				seen[p[0]] = true
				pos = append(pos, p[0])
			}
		}
	}
	sort.Float64s(pos)
	colors := make([]color.Color, len(pos))
	for i, x := range pos {
		colors[i] = colorful.Color{R: channels[0].at(x), G: channels[1].at(x), B: channels[2].at(x)}
	}
	return colorgrad.NewGradient().Colors(colors...).Domain(pos...).Mode(colorgrad.BlendRgb).Build()
}

// The perceptual palettes are colorgrad's presets, within 2 units per channel of the matplotlib tables.
var palettes = map[string]func() (colorgrad.Gradient, error){
	"gray": func() (colorgrad.Gradient, error) {
		return colorgrad.NewGradient().HtmlColors("#000000", "#ffffff").Mode(colorgrad.BlendRgb).Build()
	},
	"jet":     func() (colorgrad.Gradient, error) { return segmentedGradient(jetSegments) },
	"inferno": func() (colorgrad.Gradient, error) { return colorgrad.Inferno(), nil },
	"plasma":  func() (colorgrad.Gradient, error) { return colorgrad.Plasma(), nil },
	"viridis": func() (colorgrad.Gradient, error) { return colorgrad.Viridis(), nil },
	"magma":   func() (colorgrad.Gradient, error) { return colorgrad.Magma(), nil },
	"turbo":   func() (colorgrad.Gradient, error) { return colorgrad.Turbo(), nil },
	"cividis": func() (colorgrad.Gradient, error) { return colorgrad.Cividis(), nil },
}

// Palettes returns the names of the supported palettes
func Palettes() []string {
	names := make([]string, 0, len(palettes))
	for name := range palettes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// NewLUT samples the named palette into a lookup table of n entries
func NewLUT(name string, n int) (LUT, error) {
	name = strings.ToLower(name)
	if name == "grey" {
		name = "gray"
	}
	newGradient, ok := palettes[name]
	if !ok {
		return nil, fmt.Errorf("NewLUT: unknown palette %s (must be one of %v)", name, Palettes())
	}
	if n < 2 {
		return nil, fmt.Errorf("NewLUT: at least 2 entries are required (got %d)", n)
	}
	g, err := newGradient()
	if err != nil {
		return nil, fmt.Errorf("NewLUT[%s]: %w", name, err)
	}
	lut := make(LUT, n)
	for i := range lut {
		lut[i] = g.At(float64(i) / float64(n-1)).Clamped()
	}
	return lut, nil
}

// Index returns the entry of the table for a normalised coordinate.
// Coordinates outside [0, 1] are clipped to the first or last entry.
func (l LUT) Index(x float64) int {
	n := len(l)
	i := int(x * float64(n))
	if x < 0 || i < 0 {
		return 0
	}
	if i >= n {
		return n - 1
	}
	return i
}

// At returns the colour of a normalised coordinate
func (l LUT) At(x float64) colorful.Color {
	return l[l.Index(x)]
}

// RGB returns the 8-bit channels of the colour of a normalised coordinate (truncated, not rounded)
func (l LUT) RGB(x float64) (r, g, b uint8) {
	c := l.At(x)
	return to8bits(c.R), to8bits(c.G), to8bits(c.B)
}

func to8bits(c float64) uint8 {
	return uint8(c * 255)
}

// Sample returns n colours of the named palette taken at regular intervals on [0, 1]
func Sample(name string, n int) ([]color.NRGBA, error) {
	lut, err := NewLUT(name, LUTSize)
	if err != nil {
		return nil, fmt.Errorf("Sample.%w", err)
	}
	colors := make([]color.NRGBA, n)
	for i := range colors {
		x := 0.0
		if n > 1 {
			x = float64(i) / float64(n-1)
		}
		r, g, b := lut.RGB(x)
		colors[i] = color.NRGBA{R: r, G: g, B: b, A: 255}
	}
	return colors, nil
}
