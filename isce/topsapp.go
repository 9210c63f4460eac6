package isce

import (
	"encoding/xml"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// TopsAppFile is the name of the configuration file of topsApp.py
const TopsAppFile = "topsApp.xml"

const indent = "    "

// Config of a topsApp.py run
type Config struct {
	ReferenceScenes []string // SAFE files of the main date
	SecondaryScenes []string // SAFE files of the secondary date
	OrbitDir        string
	AuxDir          string
	Swaths          []int
	ROI             *[4]float64 // South, North, West, East
	GeocodeBox      *[4]float64 // South, North, West, East
	DEM             string
}

// Property of a component
type Property struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value"`
}

// Component is a named group of components and properties
type Component struct {
	Name       string      `xml:"name,attr"`
	Components []Component `xml:"component"`
	Properties []Property  `xml:"property"`
}

// TopsApp is the root of topsApp.xml
type TopsApp struct {
	XMLName   xml.Name  `xml:"topsApp"`
	Component Component `xml:"component"`
}

// Validate checks the configuration
func (c Config) Validate() error {
	if len(c.ReferenceScenes) == 0 || len(c.SecondaryScenes) == 0 {
		return fmt.Errorf("reference and secondary scenes are required")
	}
	if len(c.Swaths) == 0 {
		return fmt.Errorf("at least one swath is required")
	}
	seen := map[int]bool{}
	for _, s := range c.Swaths {
		if s < 1 || s > 3 || seen[s] {
			return fmt.Errorf("invalid swaths %v: must be distinct values in 1..3", c.Swaths)
		}
		seen[s] = true
	}
	for name, box := range map[string]*[4]float64{"region of interest": c.ROI, "geocode bounding box": c.GeocodeBox} {
		if err := ValidateSNWE(box); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// ValidateSNWE checks a South, North, West, East box (nil is valid)
func ValidateSNWE(box *[4]float64) error {
	if box == nil {
		return nil
	}
	for _, v := range box {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("non-finite bound in %v", *box)
		}
	}
	if box[0] >= box[1] || box[2] >= box[3] {
		return fmt.Errorf("expecting S<N and W<E (got %v)", *box)
	}
	if box[0] < -90 || box[1] > 90 || box[2] < -180 || box[3] > 180 {
		return fmt.Errorf("bounds out of range (got %v)", *box)
	}
	return nil
}

// TopsApp returns the component tree of the configuration
func (c Config) TopsApp() TopsApp {
	var common []Property
	if c.OrbitDir != "" {
		common = append(common, Property{"orbit directory", c.OrbitDir})
	}
	if c.AuxDir != "" {
		common = append(common, Property{"auxiliary data directory", c.AuxDir})
	}
	if c.ROI != nil {
		common = append(common, Property{"region of interest", formatFloats(c.ROI[:])})
	}
	scene := func(name string, safes []string) Component {
		return Component{
			Name: name,
			Properties: append([]Property{
				{"safe", formatStrings(safes)},
				{"output directory", name},
			}, common...),
		}
	}

	insar := Component{
		Name: "topsinsar",
		Components: []Component{
			scene("reference", c.ReferenceScenes),
			scene("secondary", c.SecondaryScenes),
		},
		Properties: []Property{
			{"sensor name", "SENTINEL1"},
			{"do unwrap", "True"},
			{"unwrapper name", "snaphu_mcf"},
			{"swaths", formatInts(c.Swaths)},
		},
	}
	if c.GeocodeBox != nil {
		insar.Properties = append(insar.Properties, Property{"geocode bounding box", formatFloats(c.GeocodeBox[:])})
	}
	if c.DEM != "" {
		insar.Properties = append(insar.Properties, Property{"demfilename", c.DEM})
	}
	return TopsApp{Component: insar}
}

var unescape = strings.NewReplacer("&#39;", "'", "&#34;", `"`)

// Marshal returns topsApp.xml, indented with 4 spaces
func (c Config) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("Marshal: %w", err)
	}
	b, err := xml.MarshalIndent(c.TopsApp(), "", indent)
	if err != nil {
		return nil, fmt.Errorf("Marshal: %w", err)
	}
	// Quotes do not need to be escaped in text nodes
	return []byte(unescape.Replace(string(b)) + "\n"), nil
}

// Write writes topsApp.xml in dir and returns its path
func (c Config) Write(dir string) (string, error) {
	b, err := c.Marshal()
	if err != nil {
		return "", fmt.Errorf("Write.%w", err)
	}
	file := filepath.Join(dir, TopsAppFile)
	if err := os.WriteFile(file, b, 0644); err != nil {
		return "", fmt.Errorf("Write: %w", err)
	}
	return file, nil
}

// ReadTopsApp parses a topsApp.xml file
func ReadTopsApp(file string) (TopsApp, error) {
	var t TopsApp
	b, err := os.ReadFile(file)
	if err != nil {
		return t, fmt.Errorf("ReadTopsApp: %w", err)
	}
	if err := xml.Unmarshal(b, &t); err != nil {
		return t, fmt.Errorf("ReadTopsApp[%s]: %w", file, err)
	}
	return t, nil
}

// Property returns the value of the property of the component
func (c Component) Property(name string) (string, bool) {
	for _, p := range c.Properties {
		if p.Name == name {
			return p.Value, true
		}
	}
	return "", false
}

// Component returns the sub-component
func (c Component) Component(name string) (Component, bool) {
	for _, sc := range c.Components {
		if sc.Name == name {
			return sc, true
		}
	}
	return Component{}, false
}

// formatStrings formats a list the way topsApp parses it: ['a', 'b']
func formatStrings(values []string) string {
	quoted := make([]string, len(values))
	for i, v := range values {
		quoted[i] = "'" + v + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}

func formatInts(values []int) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.Itoa(v)
	}
	return "[" + strings.Join(s, ", ") + "]"
}

func formatFloats(values []float64) string {
	s := make([]string, len(values))
	for i, v := range values {
		s[i] = strconv.FormatFloat(v, 'f', -1, 64)
		if !strings.Contains(s[i], ".") {
			s[i] += ".0"
		}
	}
	return "[" + strings.Join(s, ", ") + "]"
}
