package world

import (
	"strings"
)

// Default grid dimensions
const (
	DefaultWidth  = 20
	DefaultHeight = 15
)

// Grid is a bounded rectangular tile matrix, default-initialized to wall.
type Grid struct {
	tiles  [][]TileKind
	width  int
	height int
}

// NewGrid creates a new all-wall grid with the given dimensions
func NewGrid(width, height int) *Grid {
	g := &Grid{}
	g.Build(width, height)
	return g
}

// Build (re)initializes the grid with the given dimensions
func (g *Grid) Build(width, height int) {
	if width <= 0 || height <= 0 {
		panic("Grid dimensions must be positive")
	}

	g.width = width
	g.height = height
	g.tiles = make([][]TileKind, height)
	for y := 0; y < height; y++ {
		g.tiles[y] = make([]TileKind, width)
	}
}

// Width returns the number of columns in the grid
func (g *Grid) Width() int {
	return g.width
}

// Height returns the number of rows in the grid
func (g *Grid) Height() int {
	return g.height
}

// Bounds returns the rectangle covering the whole grid
func (g *Grid) Bounds() Rect {
	return Rect{X1: 0, Y1: 0, X2: g.width - 1, Y2: g.height - 1}
}

// InBounds checks if a position is within grid bounds
func (g *Grid) InBounds(p Point) bool {
	return p.X >= 0 && p.X < g.width && p.Y >= 0 && p.Y < g.height
}

// ContainsRect checks if every tile of r is within grid bounds
func (g *Grid) ContainsRect(r Rect) bool {
	return r.X1 <= r.X2 && r.Y1 <= r.Y2 && g.InBounds(Pt(r.X1, r.Y1)) && g.InBounds(Pt(r.X2, r.Y2))
}

// IsOnPerimeter checks if a position is on the edge of the grid
func (g *Grid) IsOnPerimeter(p Point) bool {
	return g.InBounds(p) && (p.X == 0 || p.Y == 0 || p.X == g.width-1 || p.Y == g.height-1)
}

// At returns the tile at p. Out-of-bounds positions read as wall.
func (g *Grid) At(p Point) TileKind {
	if !g.InBounds(p) {
		return Wall
	}
	return g.tiles[p.Y][p.X]
}

// Set writes a tile, returning false if p is out of bounds
func (g *Grid) Set(p Point, k TileKind) bool {
	if !g.InBounds(p) {
		return false
	}
	g.tiles[p.Y][p.X] = k
	return true
}

// IsPassable reports whether the tile at p can be walked through
func (g *Grid) IsPassable(p Point) bool {
	return g.At(p).Passable()
}

// Neighbors returns the in-bounds 4-neighbours of p in N, E, S, W order
func (g *Grid) Neighbors(p Point) []Point {
	out := make([]Point, 0, 4)
	for _, dir := range CardinalDirections() {
		n := dir.Step(p, 1)
		if g.InBounds(n) {
			out = append(out, n)
		}
	}
	return out
}

// ForEach iterates over all tiles row by row
func (g *Grid) ForEach(fn func(p Point, k TileKind)) {
	for y := 0; y < g.height; y++ {
		for x := 0; x < g.width; x++ {
			fn(Pt(x, y), g.tiles[y][x])
		}
	}
}

// Count returns how many tiles have the given kind
func (g *Grid) Count(k TileKind) int {
	n := 0
	g.ForEach(func(_ Point, t TileKind) {
		if t == k {
			n++
		}
	})
	return n
}

// Clone returns a deep copy of the grid
func (g *Grid) Clone() *Grid {
	c := &Grid{width: g.width, height: g.height, tiles: make([][]TileKind, g.height)}
	for y := range g.tiles {
		c.tiles[y] = append([]TileKind(nil), g.tiles[y]...)
	}
	return c
}

// Rows returns the grid as one string per row using tile symbols
func (g *Grid) Rows() []string {
	rows := make([]string, g.height)
	var sb strings.Builder
	for y := 0; y < g.height; y++ {
		sb.Reset()
		for x := 0; x < g.width; x++ {
			sb.WriteByte(g.tiles[y][x].Symbol())
		}
		rows[y] = sb.String()
	}
	return rows
}

// GridFromRows parses rows of tile symbols. All rows must share one width.
func GridFromRows(rows []string) (*Grid, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, Errorf(KindSchemaValidation, "empty tile matrix")
	}
	g := NewGrid(len(rows[0]), len(rows))
	for y, row := range rows {
		if len(row) != g.width {
			return nil, Errorf(KindSchemaValidation, "row %d has width %d, want %d", y, len(row), g.width)
		}
		for x := 0; x < len(row); x++ {
			k, ok := TileKindFromSymbol(row[x])
			if !ok {
				return nil, Errorf(KindSchemaValidation, "unknown tile symbol %q at (%d,%d)", row[x], x, y)
			}
			g.tiles[y][x] = k
		}
	}
	return g, nil
}

// Equal reports whether two grids have the same size and tiles
func (g *Grid) Equal(o *Grid) bool {
	if o == nil || g.width != o.width || g.height != o.height {
		return false
	}
	for y := range g.tiles {
		for x := range g.tiles[y] {
			if g.tiles[y][x] != o.tiles[y][x] {
				return false
			}
		}
	}
	return true
}
