package colormap

import (
	"bytes"
	"context"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFormatValue(t *testing.T) {
	tests := []struct {
		v    float64
		want string
	}{
		{1, "1.0"},
		{-50, "-50.0"},
		{0, "0.0"},
		{1e5, "100000.0"},
		{1e-5, "1e-05"},
		{1e-4, "0.0001"},
		{0.5, "0.5"},
		{1e16, "1e+16"},
		{123456789012345.0, "123456789012345.0"},
		{-48.41269841269841, "-48.41269841269841"},
		{math.Inf(1), "inf"},
		{math.NaN(), "nan"},
	}
	for _, test := range tests {
		if got := FormatValue(test.v); got != test.want {
			t.Errorf("FormatValue(%v): got %s, want %s", test.v, got, test.want)
		}
	}
}

func TestLinspace(t *testing.T) {
	vals := Linspace(-50, 50, 64)
	if len(vals) != 64 {
		t.Fatalf("expecting 64 values, got %d", len(vals))
	}
	if vals[0] != -50 || vals[63] != 50 {
		t.Errorf("bounds: got %v, %v", vals[0], vals[63])
	}
	step := 100.0 / 63
	for i := 1; i < len(vals); i++ {
		if vals[i] <= vals[i-1] {
			t.Fatalf("values must strictly increase: %v <= %v", vals[i], vals[i-1])
		}
		if math.Abs(vals[i]-vals[i-1]-step) > 1e-9 {
			t.Errorf("values must be evenly spaced: %v", vals[i]-vals[i-1])
		}
	}
}

func TestWrap(t *testing.T) {
	period := 6.28
	wraps := 0
	prev := Wrap(-50, period)
	for _, v := range Linspace(-50, 50, 1001) {
		w := Wrap(v, period)
		if w < 0 || w >= period {
			t.Fatalf("Wrap(%v) = %v not in [0, %v)", v, w, period)
		}
		if w < prev {
			wraps++
		}
		prev = w
	}
	// 100 / 6.28 periods
	if wraps < 15 || wraps > 16 {
		t.Errorf("expecting one discontinuity per period, got %d", wraps)
	}
	if w := Wrap(-1, 6.28); math.Abs(w-5.28) > 1e-12 {
		t.Errorf("Wrap(-1): got %v", w)
	}
}

func TestBuildDefaultRamps(t *testing.T) {
	for _, c := range DefaultRamps() {
		ramp, err := Build(c)
		if err != nil {
			t.Fatalf("%s: %v", c.File, err)
		}
		if len(ramp.Stops) != c.Stops {
			t.Fatalf("%s: expecting %d stops, got %d", c.File, c.Stops, len(ramp.Stops))
		}
		if ramp.Stops[0].Value != c.Min || ramp.Stops[len(ramp.Stops)-1].Value != c.Max {
			t.Errorf("%s: stops must span the domain", c.File)
		}
		for i, s := range ramp.Stops {
			if i > 0 && s.Value <= ramp.Stops[i-1].Value {
				t.Errorf("%s: values must strictly increase", c.File)
			}
			if c.Norm == NormWrapped && (s.Coord < 0 || s.Coord >= 1) {
				t.Errorf("%s: wrapped coordinate %v not in [0, 1)", c.File, s.Coord)
			}
		}
	}
}

func TestAmplitudeRamp(t *testing.T) {
	ramp, err := Build(DefaultRamps()[0])
	if err != nil {
		t.Fatal(err)
	}
	first, last := ramp.Stops[0], ramp.Stops[len(ramp.Stops)-1]
	if first.R != 0 || first.G != 0 || first.B != 0 {
		t.Errorf("first stop must be black: %+v", first)
	}
	if last.R != 255 || last.G != 255 || last.B != 255 {
		t.Errorf("last stop must be white: %+v", last)
	}
	for _, s := range ramp.Stops {
		if s.R != s.G || s.G != s.B {
			t.Errorf("gray ramp must have equal channels: %+v", s)
		}
	}
	// log normalisation: the second stop (~1588) is already at 64% of the ramp
	if ramp.Stops[1].Coord < 0.6 || ramp.Stops[1].Coord > 0.7 {
		t.Errorf("unexpected log coordinate: %v", ramp.Stops[1].Coord)
	}
}

func TestBuildErrors(t *testing.T) {
	valid := RampConfig{File: "test.cpt", Palette: "viridis", Norm: NormLinear, Min: 0, Max: 1, Stops: 8}
	if _, err := Build(valid); err != nil {
		t.Fatal(err)
	}
	tests := map[string]func(c *RampConfig){
		"nan":          func(c *RampConfig) { c.Min = math.NaN() },
		"inf":          func(c *RampConfig) { c.Max = math.Inf(1) },
		"min>=max":     func(c *RampConfig) { c.Min = 1 },
		"stops":        func(c *RampConfig) { c.Stops = 1 },
		"log":          func(c *RampConfig) { c.Norm = NormLog },
		"period":       func(c *RampConfig) { c.Norm = NormWrapped },
		"palette":      func(c *RampConfig) { c.Palette = "rainbow-unicorn" },
		"unknown norm": func(c *RampConfig) { c.Norm = "sqrt" },
	}
	for name, modify := range tests {
		c := valid
		modify(&c)
		if _, err := Build(c); err == nil {
			t.Errorf("%s: expecting an error", name)
		}
	}
}

func TestWriteCPT(t *testing.T) {
	ramp := Ramp{Name: "test.cpt", Stops: []Stop{{Value: 1, R: 0, G: 0, B: 0}, {Value: 1e-5, R: 10, G: 20, B: 30}}}
	var buf bytes.Buffer
	if err := ramp.WriteCPT(&buf); err != nil {
		t.Fatal(err)
	}
	want := "1.0 0 0 0 \n1e-05 10 20 30 \nnv 0 0 0 0 \n"
	if buf.String() != want {
		t.Errorf("got %q, want %q", buf.String(), want)
	}
}

func TestBuildAll(t *testing.T) {
	dir := t.TempDir()
	files, err := BuildAll(DefaultRamps(), dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 3 {
		t.Fatalf("expecting 3 ramps, got %d", len(files))
	}
	b, err := os.ReadFile(files["coherence-cog.tif"])
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSuffix(string(b), "\n"), "\n")
	if len(lines) != 65 {
		t.Fatalf("expecting 64 stops and a nodata row, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[0], "1e-05 ") {
		t.Errorf("unexpected first row: %s", lines[0])
	}
	if !strings.HasPrefix(lines[63], "1.0 25") {
		t.Errorf("unexpected last row: %s", lines[63])
	}
	if lines[64]+"\n" != NoDataRow {
		t.Errorf("missing nodata row: %s", lines[64])
	}
}

func TestLoadRamps(t *testing.T) {
	file := filepath.Join(t.TempDir(), "ramps.json")
	json := `[{"product": "elevation-cog.tif", "palette": "turbo", "norm": "linear", "min": 0, "max": 3000, "stops": 32}]`
	if err := os.WriteFile(file, []byte(json), 0644); err != nil {
		t.Fatal(err)
	}
	ramps, err := LoadRamps(context.Background(), file)
	if err != nil {
		t.Fatal(err)
	}
	if len(ramps) != 1 || ramps[0].File != "elevation-cog.cpt" || ramps[0].Stops != 32 {
		t.Errorf("unexpected ramps: %+v", ramps)
	}
}

func TestSample(t *testing.T) {
	colors, err := Sample("jet", 3)
	if err != nil {
		t.Fatal(err)
	}
	if c := colors[0]; c.R != 0 || c.G != 0 || c.B != 127 {
		t.Errorf("jet(0): got %+v", c)
	}
	if c := colors[2]; c.R != 127 || c.G != 0 || c.B != 0 {
		t.Errorf("jet(1): got %+v", c)
	}
	if c := colors[1]; c.G < 250 {
		t.Errorf("jet(0.5) should be green-ish: %+v", c)
	}
	if _, err := Sample("unknown", 3); err == nil {
		t.Error("expecting an error")
	}
}

func TestLUTIndex(t *testing.T) {
	lut, err := NewLUT("gray", LUTSize)
	if err != nil {
		t.Fatal(err)
	}
	tests := map[float64]int{-0.5: 0, 0: 0, 0.5: 128, 0.999: 255, 1: 255, 2: 255}
	for x, want := range tests {
		if got := lut.Index(x); got != want {
			t.Errorf("Index(%v): got %d, want %d", x, got, want)
		}
	}
}

func TestPerceptualPalettes(t *testing.T) {
	// matplotlib reference colours
	tests := []struct {
		palette string
		x       float64
		rgb     [3]int
	}{
		{"plasma", 0, [3]int{12, 7, 134}},
		{"inferno", 0.5, [3]int{187, 55, 84}},
	}
	for _, tt := range tests {
		lut, err := NewLUT(tt.palette, LUTSize)
		if err != nil {
			t.Fatal(err)
		}
		r, g, b := lut.RGB(tt.x)
		for i, c := range []uint8{r, g, b} {
			if d := int(c) - tt.rgb[i]; d < -2 || d > 2 {
				t.Errorf("%s(%v): got %d,%d,%d, expected %v within 2 units", tt.palette, tt.x, r, g, b, tt.rgb)
				break
			}
		}
	}
}
