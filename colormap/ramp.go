package colormap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/scottyhq/dinoSARaws/service"
)

// Norm is the normalisation of the values of a ramp before the colour lookup
type Norm string

// Supported normalisations
const (
	NormLinear  Norm = "linear"
	NormLog     Norm = "log"
	NormWrapped Norm = "wrapped"
)

// NoDataRow terminates every colour ramp file: nodata is fully transparent
const NoDataRow = "nv 0 0 0 0 \n"

// RampConfig describes a colour ramp
type RampConfig struct {
	// Product is the raster coloured by the ramp (e.g. amplitude-cog.tif)
	Product string  `json:"product"`
	File    string  `json:"file"`
	Palette string  `json:"palette"`
	Norm    Norm    `json:"norm"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Stops   int     `json:"stops"`
	// Period of the wrapped normalisation (e.g. 2*pi for a phase in radians)
	Period float64 `json:"period,omitempty"`
}

// Stop is a step of a colour ramp
type Stop struct {
	Value   float64
	R, G, B uint8
	// Coord is the normalised coordinate used for the colour lookup
	Coord float64
}

// Ramp is an ordered list of stops, written with a nodata row
type Ramp struct {
	Name  string
	Stops []Stop
}

// DefaultRamps returns the ramps of the browse images of an interferogram
func DefaultRamps() []RampConfig {
	return []RampConfig{
		{Product: "amplitude-cog.tif", File: "amplitude-cog.cpt", Palette: "gray", Norm: NormLog, Min: 1, Max: 1e5, Stops: 64},
		{Product: "coherence-cog.tif", File: "coherence-cog.cpt", Palette: "inferno", Norm: NormLinear, Min: 1e-5, Max: 1, Stops: 64},
		{Product: "unwrapped-phase-cog.tif", File: "unwrapped-phase-cog.cpt", Palette: "plasma", Norm: NormWrapped, Min: -50, Max: 50, Stops: 64, Period: 6.28},
	}
}

// LoadRamps reads a list of RampConfig from a json file (local or remote)
func LoadRamps(ctx context.Context, file string) ([]RampConfig, error) {
	b, err := service.ReadFile(ctx, file)
	if err != nil {
		return nil, fmt.Errorf("LoadRamps[%s]: %w", file, err)
	}
	var ramps []RampConfig
	if err := json.Unmarshal(b, &ramps); err != nil {
		return nil, fmt.Errorf("LoadRamps[%s]: %w", file, err)
	}
	for i, r := range ramps {
		if r.File == "" {
			ramps[i].File = service.WithExt(r.Product, service.ExtensionCPT)
		}
	}
	return ramps, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Validate checks the consistency of the configuration
func (c RampConfig) Validate() error {
	if !finite(c.Min) || !finite(c.Max) {
		return fmt.Errorf("bounds must be finite (got %v, %v)", c.Min, c.Max)
	}
	if c.Min >= c.Max {
		return fmt.Errorf("min must be lower than max (got %v >= %v)", c.Min, c.Max)
	}
	if c.Stops < 2 {
		return fmt.Errorf("at least 2 stops are required (got %d)", c.Stops)
	}
	switch c.Norm {
	case NormLinear:
	case NormLog:
		if c.Min <= 0 {
			return fmt.Errorf("log normalisation requires positive bounds (got min=%v)", c.Min)
		}
	case NormWrapped:
		if !finite(c.Period) || c.Period <= 0 {
			return fmt.Errorf("wrapped normalisation requires a positive period (got %v)", c.Period)
		}
	default:
		return fmt.Errorf("unknown normalisation: %s", c.Norm)
	}
	return nil
}

// Linspace returns n values evenly spaced over [min, max], the last one being exactly max
func Linspace(min, max float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	vals := make([]float64, n)
	if n == 1 {
		vals[0] = min
		return vals
	}
	step := (max - min) / float64(n-1)
	for i := range vals {
		vals[i] = float64(i)*step + min
	}
	vals[n-1] = max
	return vals
}

// Wrap returns the remainder of v by period, with the sign of the period: the result is in [0, period)
func Wrap(v, period float64) float64 {
	r := math.Mod(v, period)
	if r != 0 && (r < 0) != (period < 0) {
		r += period
	}
	if r >= period {
		r = 0
	}
	return r
}

// normalize returns the coordinate of v in [0, 1] (outside for out-of-range values)
func (c RampConfig) normalize(v float64) float64 {
	switch c.Norm {
	case NormLog:
		lmin, lmax := math.Log10(c.Min), math.Log10(c.Max)
		return (math.Log10(v) - lmin) / (lmax - lmin)
	case NormWrapped:
		return Wrap(v, c.Period) / c.Period
	default:
		return (v - c.Min) / (c.Max - c.Min)
	}
}

// Build computes the stops of the ramp.
// Values are evenly spaced over [Min, Max]; the normalisation only changes the colour lookup.
func Build(c RampConfig) (Ramp, error) {
	if err := c.Validate(); err != nil {
		return Ramp{}, fmt.Errorf("Build[%s]: %w", c.File, err)
	}
	lut, err := NewLUT(c.Palette, LUTSize)
	if err != nil {
		return Ramp{}, fmt.Errorf("Build[%s].%w", c.File, err)
	}

	ramp := Ramp{Name: c.File}
	for _, v := range Linspace(c.Min, c.Max, c.Stops) {
		x := c.normalize(v)
		r, g, b := lut.RGB(x)
		ramp.Stops = append(ramp.Stops, Stop{Value: v, R: r, G: g, B: b, Coord: x})
	}
	return ramp, nil
}

// FormatValue prints a float in its shortest round-trip form.
// Integral values keep a trailing ".0"; exponents are used below 1e-4 and from 1e16.
func FormatValue(v float64) string {
	switch {
	case math.IsNaN(v):
		return "nan"
	case math.IsInf(v, 1):
		return "inf"
	case math.IsInf(v, -1):
		return "-inf"
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	if exp, err := strconv.Atoi(s[strings.IndexByte(s, 'e')+1:]); err == nil && (exp < -4 || exp >= 16) {
		return s
	}
	s = strconv.FormatFloat(v, 'f', -1, 64)
	if !strings.ContainsAny(s, ".") {
		s += ".0"
	}
	return s
}

// WriteCPT writes the ramp in the gdaldem color-relief text format: "value R G B" rows and a nodata row
func (r Ramp) WriteCPT(w io.Writer) error {
	for _, s := range r.Stops {
		if _, err := fmt.Fprintf(w, "%s %d %d %d \n", FormatValue(s.Value), s.R, s.G, s.B); err != nil {
			return fmt.Errorf("WriteCPT: %w", err)
		}
	}
	if _, err := io.WriteString(w, NoDataRow); err != nil {
		return fmt.Errorf("WriteCPT: %w", err)
	}
	return nil
}

// Save writes the ramp in dir and returns the path of the file
func (r Ramp) Save(dir string) (string, error) {
	file := filepath.Join(dir, r.Name)
	f, err := os.Create(file)
	if err != nil {
		return "", fmt.Errorf("Save: %w", err)
	}
	if err := r.WriteCPT(f); err != nil {
		f.Close()
		return "", fmt.Errorf("Save.%w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("Save: %w", err)
	}
	return file, nil
}

// BuildAll builds and saves all the ramps in dir.
// Returns a map product -> ramp file
func BuildAll(ramps []RampConfig, dir string) (map[string]string, error) {
	files := map[string]string{}
	for _, c := range ramps {
		ramp, err := Build(c)
		if err != nil {
			return nil, fmt.Errorf("BuildAll.%w", err)
		}
		file, err := ramp.Save(dir)
		if err != nil {
			return nil, fmt.Errorf("BuildAll[%s].%w", c.File, err)
		}
		files[c.Product] = file
	}
	return files, nil
}
