package world

import "strings"

// Direction represents a compass direction
type Direction int

// Direction constants
const (
	North Direction = iota
	East
	South
	West
	NorthEast
	SouthEast
	SouthWest
	NorthWest
)

// CardinalDirections returns the four orthogonal directions for iteration
func CardinalDirections() []Direction {
	return []Direction{North, East, South, West}
}

// AllDirections returns all eight compass directions
func AllDirections() []Direction {
	return []Direction{North, East, South, West, NorthEast, SouthEast, SouthWest, NorthWest}
}

// String returns the string representation of a direction
func (d Direction) String() string {
	switch d {
	case North:
		return "north"
	case East:
		return "east"
	case South:
		return "south"
	case West:
		return "west"
	case NorthEast:
		return "northeast"
	case SouthEast:
		return "southeast"
	case SouthWest:
		return "southwest"
	case NorthWest:
		return "northwest"
	default:
		return "unknown"
	}
}

// Opposite returns the opposite direction
func (d Direction) Opposite() Direction {
	switch d {
	case North:
		return South
	case South:
		return North
	case East:
		return West
	case West:
		return East
	case NorthEast:
		return SouthWest
	case SouthWest:
		return NorthEast
	case SouthEast:
		return NorthWest
	case NorthWest:
		return SouthEast
	default:
		return d
	}
}

// Delta returns the column and row offsets for this direction.
// North is toward row 0.
func (d Direction) Delta() (dx, dy int) {
	switch d {
	case North:
		return 0, -1
	case East:
		return 1, 0
	case South:
		return 0, 1
	case West:
		return -1, 0
	case NorthEast:
		return 1, -1
	case SouthEast:
		return 1, 1
	case SouthWest:
		return -1, 1
	case NorthWest:
		return -1, -1
	default:
		return 0, 0
	}
}

// Step moves p by n tiles in this direction
func (d Direction) Step(p Point, n int) Point {
	dx, dy := d.Delta()
	return p.Add(dx*n, dy*n)
}

var directionAliases = map[string]Direction{
	"north": North, "n": North, "up": North, "above": North,
	"south": South, "s": South, "down": South, "below": South,
	"east": East, "e": East, "right": East,
	"west": West, "w": West, "left": West,
	"northeast": NorthEast, "ne": NorthEast,
	"northwest": NorthWest, "nw": NorthWest,
	"southeast": SouthEast, "se": SouthEast,
	"southwest": SouthWest, "sw": SouthWest,
}

// ParseDirection accepts compass names, up/down/left/right and
// hyphenated or spaced diagonals such as "north-east" or "south west".
func ParseDirection(s string) (Direction, bool) {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "", " ", "", "_", "").Replace(key)
	d, ok := directionAliases[key]
	return d, ok
}
