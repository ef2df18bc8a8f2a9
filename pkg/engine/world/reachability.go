package world

import (
	"sort"

	"github.com/zyedidia/generic/mapset"
	"github.com/zyedidia/generic/queue"
)

// Region is a connected group of passable tiles not reachable from the start
type Region struct {
	Size     int   `json:"size"`
	Centroid Point `json:"centroid"`
}

// ConnectivityReport describes how much of the passable area the player can reach
type ConnectivityReport struct {
	Start     Point    `json:"start"`
	HasStart  bool     `json:"has_start"`
	Reachable int      `json:"reachable"`
	Passable  int      `json:"passable"`
	Connected bool     `json:"connected"`
	Percent   float64  `json:"percent"`
	Regions   []Region `json:"isolated_regions,omitempty"`
}

// Reachable returns the set of passable tiles reachable from start over the
// 4-neighbourhood. An impassable or out-of-bounds start reaches nothing.
func Reachable(g *Grid, start Point) mapset.Set[Point] {
	visited := mapset.New[Point]()
	if !g.IsPassable(start) {
		return visited
	}

	frontier := queue.New[Point]()
	frontier.Enqueue(start)
	visited.Put(start)
	for !frontier.Empty() {
		current := frontier.Dequeue()
		for _, n := range g.Neighbors(current) {
			if visited.Has(n) || !g.IsPassable(n) {
				continue
			}
			visited.Put(n)
			frontier.Enqueue(n)
		}
	}
	return visited
}

// CheckConnectivity runs a BFS from start and reports reachable versus total
// passable tiles plus every isolated region, largest first.
// Without a start every passable tile counts as unreachable.
func CheckConnectivity(g *Grid, start Point, hasStart bool) ConnectivityReport {
	rep := ConnectivityReport{Start: start, HasStart: hasStart}

	reached := mapset.New[Point]()
	if hasStart {
		reached = Reachable(g, start)
	}
	rep.Reachable = reached.Size()

	g.ForEach(func(_ Point, k TileKind) {
		if k.Passable() {
			rep.Passable++
		}
	})

	rep.Connected = hasStart && rep.Passable > 0 && rep.Reachable == rep.Passable
	if rep.Passable > 0 {
		rep.Percent = float64(rep.Reachable) * 100 / float64(rep.Passable)
	}
	if !rep.Connected {
		rep.Regions = isolatedRegions(g, reached)
	}
	return rep
}

// isolatedRegions labels the passable tiles outside seen, in scan order
func isolatedRegions(g *Grid, seen mapset.Set[Point]) []Region {
	var regions []Region
	g.ForEach(func(p Point, k TileKind) {
		if !k.Passable() || seen.Has(p) {
			return
		}
		part := Reachable(g, p)
		sumX, sumY := 0, 0
		part.Each(func(q Point) {
			seen.Put(q)
			sumX += q.X
			sumY += q.Y
		})
		n := part.Size()
		regions = append(regions, Region{Size: n, Centroid: Pt(sumX/n, sumY/n)})
	})
	sort.SliceStable(regions, func(i, j int) bool {
		return regions[i].Size > regions[j].Size
	})
	return regions
}
