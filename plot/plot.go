package plot

import (
	"bytes"
	"context"
	"fmt"
	"image/color"
	"io"
	"math"
	"path/filepath"
	"strconv"

	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/paulsmith/gogeos/geos"
	"github.com/scottyhq/dinoSARaws/catalog/entities"
	"github.com/scottyhq/dinoSARaws/colormap"
	"github.com/scottyhq/dinoSARaws/service"
	"github.com/scottyhq/dinoSARaws/service/geometry"
	"github.com/scottyhq/dinoSARaws/service/log"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Files written by Inventory
const (
	MapFile      = "map_coverage.pdf"
	TimelineFile = "timeline.pdf"
)

const (
	// PaletteName is the colour map of the orbits
	PaletteName = "jet"
	// MapPadding is the margin around the footprints (degrees)
	MapPadding = 1.0
)

// Palette assigns a colour to each relative orbit
type Palette struct {
	Orbits []int // Ascending order
	Colors []color.NRGBA
}

// NewPalette samples the jet colour map at linspace(0, 1, n) and assigns the i-th colour to the i-th orbit in ascending order
func NewPalette(scenes entities.Scenes) (Palette, error) {
	orbits := scenes.Orbits()
	if len(orbits) == 0 {
		return Palette{}, fmt.Errorf("NewPalette: empty inventory")
	}
	colors, err := colormap.Sample(PaletteName, len(orbits))
	if err != nil {
		return Palette{}, fmt.Errorf("NewPalette.%w", err)
	}
	return Palette{Orbits: orbits, Colors: colors}, nil
}

// Index returns the index of the orbit in the palette or -1
func (p Palette) Index(orbit int) int {
	for i, o := range p.Orbits {
		if o == orbit {
			return i
		}
	}
	return -1
}

// Color returns the colour of the orbit (black if the orbit is unknown)
func (p Palette) Color(orbit int) color.NRGBA {
	if i := p.Index(orbit); i >= 0 {
		return p.Colors[i]
	}
	return color.NRGBA{A: 255}
}

var magenta = color.NRGBA{R: 255, B: 255, A: 255}

// OrbitCoverage is the union of the footprints of a relative orbit
type OrbitCoverage struct {
	Orbit     int
	Ascending bool
	Shells    [][]geos.Coord
	Bounds    [4]float64 // minx, miny, maxx, maxy
	CentroidX float64
}

// LabelPosition returns the position of the label of the orbit: centroid x at the top of the coverage for ascending orbits, at the bottom otherwise
func (c OrbitCoverage) LabelPosition() (float64, float64) {
	if c.Ascending {
		return c.CentroidX, c.Bounds[3]
	}
	return c.CentroidX, c.Bounds[1]
}

// Coverages computes the union of the footprints per orbit, in the order of the palette
func Coverages(scenes entities.Scenes, palette Palette) ([]OrbitCoverage, error) {
	coverages := make([]OrbitCoverage, 0, len(palette.Orbits))
	for _, orbit := range palette.Orbits {
		orbitScenes := scenes.Filter(orbit, "")
		geoms := make([]*geos.Geometry, 0, len(orbitScenes))
		for _, s := range orbitScenes {
			g, err := geos.FromWKT(s.GeometryWKT)
			if err != nil {
				return nil, fmt.Errorf("Coverages[%s].FromWKT: %w", s.GranuleName, err)
			}
			geoms = append(geoms, g)
		}
		union, err := geometry.UnaryUnion(geoms)
		if err != nil {
			return nil, fmt.Errorf("Coverages[%d].%w", orbit, err)
		}
		c := OrbitCoverage{Orbit: orbit, Ascending: orbitScenes[0].FlightDirection.Ascending()}
		if c.Shells, err = geometry.Shells(union); err != nil {
			return nil, fmt.Errorf("Coverages[%d].%w", orbit, err)
		}
		if c.Bounds, err = geometry.Bounds(union); err != nil {
			return nil, fmt.Errorf("Coverages[%d].%w", orbit, err)
		}
		if c.CentroidX, _, err = geometry.Centroid(union); err != nil {
			return nil, fmt.Errorf("Coverages[%d].%w", orbit, err)
		}
		coverages = append(coverages, c)
	}
	return coverages, nil
}

func shellXYs(shell []geos.Coord) plotter.XYs {
	xys := make(plotter.XYs, len(shell))
	for i, c := range shell {
		xys[i].X, xys[i].Y = c.X, c.Y
	}
	return xys
}

func outline(shell []geos.Coord, c color.Color, dashed bool) (*plotter.Line, error) {
	l, err := plotter.NewLine(shellXYs(shell))
	if err != nil {
		return nil, err
	}
	l.LineStyle.Color = c
	l.LineStyle.Width = vg.Points(2)
	if dashed {
		l.LineStyle.Dashes = []vg.Length{vg.Points(6), vg.Points(4)}
	}
	return l, nil
}

func extend(b *[4]float64, o [4]float64) {
	b[0], b[1] = math.Min(b[0], o[0]), math.Min(b[1], o[1])
	b[2], b[3] = math.Max(b[2], o[2]), math.Max(b[3], o[3])
}

// Map renders the union of the footprints of each orbit (dashed for ascending orbits) with its label,
// and the region of interest (optional WKT) in magenta dashed
func Map(scenes entities.Scenes, palette Palette, roiWKT string) (*plot.Plot, error) {
	coverages, err := Coverages(scenes, palette)
	if err != nil {
		return nil, fmt.Errorf("Map.%w", err)
	}

	p := plot.New()
	p.Title.Text = "Sentinel-1 Orbits"
	p.X.Label.Text = "Longitude"
	p.Y.Label.Text = "Latitude"
	p.Add(plotter.NewGrid())

	bounds := coverages[0].Bounds
	labels := plotter.XYLabels{}
	var labelColors []color.Color
	for _, c := range coverages {
		col := palette.Color(c.Orbit)
		for _, shell := range c.Shells {
			l, err := outline(shell, col, c.Ascending)
			if err != nil {
				return nil, fmt.Errorf("Map.%w", err)
			}
			p.Add(l)
		}
		extend(&bounds, c.Bounds)
		x, y := c.LabelPosition()
		labels.XYs = append(labels.XYs, plotter.XY{X: x, Y: y})
		labels.Labels = append(labels.Labels, strconv.Itoa(c.Orbit))
		labelColors = append(labelColors, col)
	}

	l, err := plotter.NewLabels(labels)
	if err != nil {
		return nil, fmt.Errorf("Map.NewLabels: %w", err)
	}
	for i := range l.TextStyle {
		l.TextStyle[i].Color = labelColors[i]
		l.TextStyle[i].Font.Size = vg.Points(16)
		l.TextStyle[i].XAlign = draw.XCenter
	}
	p.Add(l)

	if roiWKT != "" {
		roi, err := geos.FromWKT(roiWKT)
		if err != nil {
			return nil, fmt.Errorf("Map.FromWKT: %w", err)
		}
		shells, err := geometry.Shells(roi)
		if err != nil {
			return nil, fmt.Errorf("Map.%w", err)
		}
		for _, shell := range shells {
			l, err := outline(shell, magenta, true)
			if err != nil {
				return nil, fmt.Errorf("Map.%w", err)
			}
			p.Add(l)
		}
	}

	p.X.Min, p.X.Max = bounds[0]-MapPadding, bounds[2]+MapPadding
	p.Y.Min, p.Y.Max = bounds[1]-MapPadding, bounds[3]+MapPadding
	return p, nil
}

// diamondGlyph draws a diamond, filled or not
type diamondGlyph struct {
	filled bool
}

// DrawGlyph implements draw.GlyphDrawer
func (d diamondGlyph) DrawGlyph(c *draw.Canvas, sty draw.GlyphStyle, pt vg.Point) {
	r := sty.Radius
	var path vg.Path
	path.Move(vg.Point{X: pt.X, Y: pt.Y + r})
	path.Line(vg.Point{X: pt.X + r, Y: pt.Y})
	path.Line(vg.Point{X: pt.X, Y: pt.Y - r})
	path.Line(vg.Point{X: pt.X - r, Y: pt.Y})
	path.Close()
	if d.filled {
		c.SetColor(sty.Color)
		c.Fill(path)
		return
	}
	c.SetLineStyle(draw.LineStyle{Color: sty.Color, Width: vg.Points(1)})
	c.Stroke(path)
}

// Marker returns the glyph of an acquisition: circle for S1A, diamond for S1B, hollow for ascending passes
func Marker(platform string, ascending bool) draw.GlyphDrawer {
	if platform == entities.PlatformS1B {
		return diamondGlyph{filled: !ascending}
	}
	if ascending {
		return draw.RingGlyph{}
	}
	return draw.CircleGlyph{}
}

// Timeline renders one marker per acquisition at (date, orbit index). Y ticks are labelled with the orbit numbers
func Timeline(scenes entities.Scenes, palette Palette) (*plot.Plot, error) {
	p := plot.New()
	p.Title.Text = "Sentinel-1 timeline"
	p.Y.Label.Text = "Orbit Number"
	p.X.Tick.Marker = plot.TimeTicks{Format: "2006-01"}
	p.Add(plotter.NewGrid())

	for _, s := range scenes {
		i := palette.Index(s.RelativeOrbit)
		if i < 0 {
			return nil, fmt.Errorf("Timeline: orbit %d of %s not in palette", s.RelativeOrbit, s.GranuleName)
		}
		sc, err := plotter.NewScatter(plotter.XYs{{X: float64(s.SceneDate.Unix()), Y: float64(i)}})
		if err != nil {
			return nil, fmt.Errorf("Timeline.NewScatter: %w", err)
		}
		sc.GlyphStyle = draw.GlyphStyle{
			Color:  palette.Colors[i],
			Radius: vg.Points(4),
			Shape:  Marker(s.Platform, s.FlightDirection.Ascending()),
		}
		p.Add(sc)
	}

	ticks := make([]plot.Tick, len(palette.Orbits))
	for i, o := range palette.Orbits {
		ticks[i] = plot.Tick{Value: float64(i), Label: strconv.Itoa(o)}
	}
	p.Y.Tick.Marker = plot.ConstantTicks(ticks)
	p.Y.Min, p.Y.Max = -1, float64(len(palette.Orbits))
	return p, nil
}

// Figure size
var (
	MapSize      = [2]vg.Length{8 * vg.Inch, 8 * vg.Inch}
	TimelineSize = [2]vg.Length{11 * vg.Inch, 8.5 * vg.Inch}
)

// WritePDF writes the plot as PDF
func WritePDF(w io.Writer, p *plot.Plot, size [2]vg.Length) error {
	wt, err := p.WriterTo(size[0], size[1], "pdf")
	if err != nil {
		return fmt.Errorf("WritePDF: %w", err)
	}
	if _, err := wt.WriteTo(w); err != nil {
		return fmt.Errorf("WritePDF: %w", err)
	}
	return nil
}

// Inventory renders map_coverage.pdf and timeline.pdf in dir
func Inventory(ctx context.Context, scenes entities.Scenes, roiWKT, dir string) error {
	palette, err := NewPalette(scenes)
	if err != nil {
		return fmt.Errorf("Inventory.%w", err)
	}
	m, err := Map(scenes, palette, roiWKT)
	if err != nil {
		return fmt.Errorf("Inventory.%w", err)
	}
	if err := m.Save(MapSize[0], MapSize[1], filepath.Join(dir, MapFile)); err != nil {
		return fmt.Errorf("Inventory.Save: %w", err)
	}
	t, err := Timeline(scenes, palette)
	if err != nil {
		return fmt.Errorf("Inventory.%w", err)
	}
	if err := t.Save(TimelineSize[0], TimelineSize[1], filepath.Join(dir, TimelineFile)); err != nil {
		return fmt.Errorf("Inventory.Save: %w", err)
	}
	log.Logger(ctx).Sugar().Infof("%d orbits plotted in %s and %s", len(palette.Orbits), MapFile, TimelineFile)
	return nil
}

// LoadROI reads a region of interest (GeoJSON or WKT, local or remote) and returns it as WKT
func LoadROI(ctx context.Context, file string) (string, error) {
	b, err := service.ReadFile(ctx, file)
	if err != nil {
		return "", fmt.Errorf("LoadROI.%w", err)
	}
	if b = bytes.TrimSpace(b); len(b) == 0 || b[0] != '{' {
		return string(b), nil
	}
	g, err := service.UnmarshalGeometry(b)
	if err != nil {
		return "", fmt.Errorf("LoadROI.UnmarshalGeometry: %w", err)
	}
	s, err := wkt.EncodeString(g)
	if err != nil {
		return "", fmt.Errorf("LoadROI.Encode: %w", err)
	}
	return s, nil
}
