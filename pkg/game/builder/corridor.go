package builder

import (
	"mapforge/pkg/engine/world"
)

// PlaceCorridor carves an L-shaped path between two endpoints: horizontally
// along the start row, then vertically along the end column. Walls become
// floor; door and water tiles are kept. Endpoints are landmark names, or
// any position expression when no landmark has that name.
func (b *Builder) PlaceCorridor(from, to string) (Corridor, error) {
	if err := b.ready(); err != nil {
		return Corridor{}, err
	}
	start, err := b.endpoint(from)
	if err != nil {
		return Corridor{}, err
	}
	end, err := b.endpoint(to)
	if err != nil {
		return Corridor{}, err
	}

	path := LPath(start, end)
	for _, p := range path {
		if b.grid.At(p) == world.Wall {
			b.grid.Set(p, world.Floor)
		}
	}

	c := Corridor{From: from, To: to, Path: path}
	b.corridors = append(b.corridors, c)
	b.opCount++
	return c, nil
}

func (b *Builder) endpoint(name string) (world.Point, error) {
	if lm, err := b.landmarks.Lookup(name); err == nil {
		return lm.Point, nil
	}
	p, err := b.resolver.ResolvePoint(name)
	if err != nil {
		return world.Point{}, world.Wrap(world.KindUnknownLandmark, err, "corridor endpoint %q is not a landmark", name)
	}
	return p, nil
}

// LPath returns the tiles from a to b, horizontal run first, both ends included
func LPath(a, b world.Point) []world.Point {
	path := []world.Point{a}
	cur := a
	for cur.X != b.X {
		cur.X += sign(b.X - cur.X)
		path = append(path, cur)
	}
	for cur.Y != b.Y {
		cur.Y += sign(b.Y - cur.Y)
		path = append(path, cur)
	}
	return path
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
