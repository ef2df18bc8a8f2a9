// Package world provides generic 2D grid-based map primitives.
// These are engine-level constructs: tiles, points, rectangles, zones,
// landmarks and reachability over a bounded rectangular grid.
package world

import "fmt"

// TileKind is the passability classification of one grid cell.
type TileKind uint8

// Tile kinds
const (
	Wall TileKind = iota
	Floor
	Door
	Water
)

// AllTileKinds returns every tile kind in a stable order
func AllTileKinds() []TileKind {
	return []TileKind{Wall, Floor, Door, Water}
}

// String returns the lower-case name of the tile kind
func (k TileKind) String() string {
	switch k {
	case Wall:
		return "wall"
	case Floor:
		return "floor"
	case Door:
		return "door"
	case Water:
		return "water"
	default:
		return "unknown"
	}
}

// Symbol returns the single-character map symbol for the tile kind.
func (k TileKind) Symbol() byte {
	switch k {
	case Floor:
		return '.'
	case Door:
		return '+'
	case Water:
		return '~'
	default:
		return '#'
	}
}

// TileKindFromSymbol parses a map symbol back into a tile kind.
func TileKindFromSymbol(b byte) (TileKind, bool) {
	switch b {
	case '#':
		return Wall, true
	case '.':
		return Floor, true
	case '+':
		return Door, true
	case '~':
		return Water, true
	default:
		return Wall, false
	}
}

// Passable returns true for floor, door and water tiles
func (k TileKind) Passable() bool {
	return k == Floor || k == Door || k == Water
}

// Point is a grid coordinate. X is the column, Y is the row, both 0-based.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Pt is shorthand for Point{X: x, Y: y}
func Pt(x, y int) Point {
	return Point{X: x, Y: y}
}

// Add returns p offset by the given deltas
func (p Point) Add(dx, dy int) Point {
	return Point{X: p.X + dx, Y: p.Y + dy}
}

// String formats the point as (x,y)
func (p Point) String() string {
	return fmt.Sprintf("(%d,%d)", p.X, p.Y)
}

// ManhattanDistance returns |dx| + |dy| between two points
func ManhattanDistance(a, b Point) int {
	dx := a.X - b.X
	dy := a.Y - b.Y
	if dx < 0 {
		dx = -dx
	}
	if dy < 0 {
		dy = -dy
	}
	return dx + dy
}

// Rect is an inclusive rectangle (X1,Y1)-(X2,Y2).
type Rect struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// RectFromSize builds the inclusive rectangle with top-left (x,y) and the given size
func RectFromSize(x, y, width, height int) Rect {
	return Rect{X1: x, Y1: y, X2: x + width - 1, Y2: y + height - 1}
}

// Width returns the number of columns covered
func (r Rect) Width() int {
	return r.X2 - r.X1 + 1
}

// Height returns the number of rows covered
func (r Rect) Height() int {
	return r.Y2 - r.Y1 + 1
}

// Contains reports whether p lies inside the rectangle
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X1 && p.X <= r.X2 && p.Y >= r.Y1 && p.Y <= r.Y2
}

// Center returns the canonical center, rounding toward the lower bound.
func (r Rect) Center() Point {
	return Point{X: floorMid(r.X1, r.X2), Y: floorMid(r.Y1, r.Y2)}
}

// Interior returns the rectangle shrunk by one tile on every side.
// The second result is false when nothing is left.
func (r Rect) Interior() (Rect, bool) {
	in := Rect{X1: r.X1 + 1, Y1: r.Y1 + 1, X2: r.X2 - 1, Y2: r.Y2 - 1}
	return in, in.X1 <= in.X2 && in.Y1 <= in.Y2
}

// Overlaps reports whether two rectangles share at least one tile
func (r Rect) Overlaps(o Rect) bool {
	return r.X1 <= o.X2 && o.X1 <= r.X2 && r.Y1 <= o.Y2 && o.Y1 <= r.Y2
}

// String formats the rectangle as x1,y1-x2,y2
func (r Rect) String() string {
	return fmt.Sprintf("(%d,%d)-(%d,%d)", r.X1, r.Y1, r.X2, r.Y2)
}

// floorMid returns floor((lo+hi)/2), also for negative sums
func floorMid(lo, hi int) int {
	s := lo + hi
	if s < 0 && s%2 != 0 {
		return s/2 - 1
	}
	return s / 2
}
