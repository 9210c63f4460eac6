package graph

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Product is a raster extracted from a band of an ISCE output
type Product struct {
	Name   string `json:"name"`   // Output file (e.g. amplitude-cog.tif)
	Source string `json:"source"` // Input raster (e.g. merged/filt_topophase.unw.geo.vrt)
	Band   int    `json:"band"`   // Band of the source (starting at 1)
	Ramp   string `json:"ramp,omitempty"`
}

// Base returns the name of the product without extension
func (p Product) Base() string {
	return strings.TrimSuffix(filepath.Base(p.Name), filepath.Ext(p.Name))
}

// TmpFile returns the name of the intermediate file of the product
func (p Product) TmpFile() string {
	return "tmp-" + p.Base() + ".vrt"
}

// ISCEProducts returns the products extracted from the merged outputs of topsApp
func ISCEProducts() []Product {
	return []Product{
		{Name: "amplitude-cog.tif", Source: "merged/filt_topophase.unw.geo.vrt", Band: 1},
		{Name: "unwrapped-phase-cog.tif", Source: "merged/filt_topophase.unw.geo.vrt", Band: 2},
		{Name: "coherence-cog.tif", Source: "merged/phsig.cor.geo.vrt", Band: 1},
		{Name: "incidence-cog.tif", Source: "merged/los.rdr.geo.vrt", Band: 1},
		{Name: "heading-cog.tif", Source: "merged/los.rdr.geo.vrt", Band: 2},
		{Name: "elevation-cog.tif", Source: "merged/dem.crop.vrt", Band: 1},
	}
}

// WithRamps returns the products having a ramp, given a map product -> ramp file
func WithRamps(products []Product, ramps map[string]string) []Product {
	var res []Product
	for _, p := range products {
		if ramp, ok := ramps[p.Name]; ok {
			p.Ramp = ramp
			res = append(res, p)
		}
	}
	return res
}

// ValidateProducts checks that the products define the fields used by the graph
func ValidateProducts(g *ProcessingGraph, products []Product) error {
	fields := g.requiredFields()
	derived := fields[productTmp] || fields[productRGB] || fields[productThumbLarge] || fields[productThumbSmall] || fields[productTiles]
	names := map[string]bool{}
	bases := map[string]string{}
	for i, p := range products {
		if p.Name == "" {
			return fmt.Errorf("product %d: empty name", i)
		}
		if names[p.Name] {
			return fmt.Errorf("product %s: duplicated name", p.Name)
		}
		names[p.Name] = true
		if derived {
			// intermediate and browse files are named after the base of the product
			if other, ok := bases[p.Base()]; ok {
				return fmt.Errorf("products %s and %s: same intermediate files (%s)", other, p.Name, p.TmpFile())
			}
			bases[p.Base()] = p.Name
		}
		if fields[productSource] && p.Source == "" {
			return fmt.Errorf("product %s: empty source", p.Name)
		}
		if fields[productBand] && p.Band < 1 {
			return fmt.Errorf("product %s: band must be >= 1 (got %d)", p.Name, p.Band)
		}
		if fields[productRamp] && p.Ramp == "" {
			return fmt.Errorf("product %s: no colour ramp", p.Name)
		}
	}
	return nil
}
