package builder

import (
	"regexp"
	"strings"

	"mapforge/pkg/engine/world"
)

var betweenPattern = regexp.MustCompile(`(?i)^\s*between\s+(?:the\s+)?(.+?)\s+and\s+(?:the\s+)?(.+?)\s*$`)

// PlaceDoor sets a boundary tile to door. The tile must be wall or floor and
// join two distinct areas, or one area and the map edge. The position is
// either any resolvable expression or "between A and B".
func (b *Builder) PlaceDoor(expr string) (Door, error) {
	if err := b.ready(); err != nil {
		return Door{}, err
	}

	if m := betweenPattern.FindStringSubmatch(expr); m != nil {
		return b.placeDoorBetween(m[1], m[2])
	}

	p, err := b.resolver.ResolvePoint(expr)
	if err != nil {
		return Door{}, err
	}
	switch b.grid.At(p) {
	case world.Wall, world.Floor:
	default:
		return Door{}, world.Errorf(world.KindInvalidPlacement, "%v is %s, a door needs a wall or floor tile", p, b.grid.At(p))
	}

	connects := b.doorAreas(p)
	switch {
	case len(connects) == 0:
		return Door{}, world.Errorf(world.KindInvalidPlacement, "%v does not touch any passable tile", p)
	case b.openOnAllSides(p):
		return Door{}, world.Errorf(world.KindInvalidPlacement, "%v is inside an open area, not on a boundary", p)
	case len(connects) < 2:
		return Door{}, world.Errorf(world.KindInvalidPlacement,
			"%v only opens onto %s; a door must join two areas or an area and the map edge", p, connects[0])
	}
	return b.setDoor(p, connects), nil
}

func (b *Builder) setDoor(p world.Point, connects []string) Door {
	b.grid.Set(p, world.Door)
	d := Door{Point: p, Connects: connects}
	b.doors = append(b.doors, d)
	b.opCount++
	return d
}

// doorAreas labels the areas around p: rooms by id, other passable tiles
// as corridor, and the map edge when p is on the perimeter.
func (b *Builder) doorAreas(p world.Point) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(label string) {
		if !seen[label] {
			seen[label] = true
			out = append(out, label)
		}
	}
	for _, n := range b.grid.Neighbors(p) {
		if !b.grid.IsPassable(n) {
			continue
		}
		if id, ok := b.roomAt(n); ok {
			add(id)
			continue
		}
		add(AreaCorridor)
	}
	if len(out) > 0 && b.grid.IsOnPerimeter(p) {
		add(AreaMapEdge)
	}
	return out
}

func (b *Builder) openOnAllSides(p world.Point) bool {
	open := 0
	for _, n := range b.grid.Neighbors(p) {
		if b.grid.IsPassable(n) {
			open++
		}
	}
	return open == 4
}

// landmarkArea is the set of tiles a landmark occupies for door search:
// a room's interior, another region as is, or the single reference point.
func landmarkArea(lm world.Landmark) world.Rect {
	if lm.Region == nil {
		return world.Rect{X1: lm.Point.X, Y1: lm.Point.Y, X2: lm.Point.X, Y2: lm.Point.Y}
	}
	if lm.Kind == world.LandmarkRoom {
		if in, ok := lm.Region.Interior(); ok {
			return in
		}
	}
	return *lm.Region
}

// placeDoorBetween finds a wall or floor tile with one 4-neighbour in A and
// the opposite neighbour in B, closest to the midpoint of the two reference
// points. Ties go to the lower row, then the lower column.
func (b *Builder) placeDoorBetween(nameA, nameB string) (Door, error) {
	a, err := b.landmarks.Lookup(nameA)
	if err != nil {
		return Door{}, world.Wrap(world.KindPositionResolution, err, "cannot place door between %q and %q", nameA, nameB)
	}
	c, err := b.landmarks.Lookup(nameB)
	if err != nil {
		return Door{}, world.Wrap(world.KindPositionResolution, err, "cannot place door between %q and %q", nameA, nameB)
	}
	if strings.EqualFold(a.Name, c.Name) {
		return Door{}, world.Errorf(world.KindInvalidPlacement, "a door needs two different landmarks")
	}

	areaA, areaB := landmarkArea(a), landmarkArea(c)
	midX2 := a.Point.X + c.Point.X
	midY2 := a.Point.Y + c.Point.Y

	best := world.Point{}
	bestDist := -1
	b.grid.ForEach(func(p world.Point, k world.TileKind) {
		if k != world.Wall && k != world.Floor {
			return
		}
		if areaA.Contains(p) || areaB.Contains(p) {
			return
		}
		if !bridges(p, areaA, areaB) {
			return
		}
		d := abs(2*p.X-midX2) + abs(2*p.Y-midY2)
		if bestDist < 0 || d < bestDist {
			best, bestDist = p, d
		}
	})
	if bestDist < 0 {
		return Door{}, world.Errorf(world.KindInvalidPlacement,
			"%s and %s share no wall tile; connect them with place_corridor first", a.Name, c.Name)
	}
	return b.setDoor(best, []string{a.Name, c.Name}), nil
}

// bridges reports whether p has opposite 4-neighbours in ra and rb
func bridges(p world.Point, ra, rb world.Rect) bool {
	for _, dir := range []world.Direction{world.North, world.East} {
		n1 := dir.Step(p, 1)
		n2 := dir.Opposite().Step(p, 1)
		if (ra.Contains(n1) && rb.Contains(n2)) || (ra.Contains(n2) && rb.Contains(n1)) {
			return true
		}
	}
	return false
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
