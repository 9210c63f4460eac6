package common

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

const (
	ResultTypePair = "pair"
)

// Pair of acquisitions of the same relative orbit
type Pair struct {
	Main      string `json:"main"`      // YYYYMMDD
	Secondary string `json:"secondary"` // YYYYMMDD
	Path      int    `json:"path"`      // Relative orbit
}

// IntName returns the name of the interferogram of the pair
func (p Pair) IntName() string {
	return IntName(p.Main, p.Secondary)
}

// StackName returns the name of the processing stack of the pair
func (p Pair) StackName() string {
	return StackName(p.Main, p.Secondary)
}

// PairAttrs are the processing parameters of a pair
type PairAttrs struct {
	Swaths          []int       `json:"swaths"`
	ROI             *[4]float64 `json:"roi,omitempty"`  // South, North, West, East
	GeocodeBox      *[4]float64 `json:"gbox,omitempty"` // South, North, West, East
	MainScenes      []string    `json:"main_scenes"`
	SecondaryScenes []string    `json:"secondary_scenes"`
	DEM             string      `json:"dem,omitempty"`
	OutputURI       string      `json:"output_uri,omitempty"`
}

// PairToProcess is the payload of a processing job
type PairToProcess struct {
	ID int `json:"id"`
	Pair
	Data PairAttrs `json:"data"`
}

// PairToIngest is a pair to add to the workflow
type PairToIngest struct {
	Pair
	Data       PairAttrs `json:"data"`
	RetryCount int       `json:"retry_count"`
}

// Result of a processing job
type Result struct {
	Type    string   `json:"type"` // pair (ResultTypePair)
	ID      int      `json:"id"`
	Status  Status   `json:"status"`
	Message string   `json:"message"`
	Outputs []string `json:"outputs,omitempty"`
}

// Value implements the driver.Value interface
func (a PairAttrs) Value() (driver.Value, error) {
	return json.Marshal(a)
}

// Scan implements the sql.Scanner interface.
func (a *PairAttrs) Scan(value interface{}) error {
	if value == nil {
		*a = PairAttrs{}
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}
	return json.Unmarshal(b, &a)
}
