package common

//go:generate go run github.com/dmarkham/enumer -json -sql -type Direction -trimprefix Direction

// Direction is the flight direction of the satellite
type Direction int

const (
	DirectionASCENDING Direction = iota
	DirectionDESCENDING
)

// Ascending returns true for an ascending pass
func (d Direction) Ascending() bool {
	return d == DirectionASCENDING
}
