package world

import (
	"sort"
	"strings"
)

// Zone is a named rectangular region derived from grid dimensions
type Zone struct {
	Name   string `json:"name"`
	Bounds Rect   `json:"bounds"`
	Center Point  `json:"center"`
}

// Zone names
const (
	ZoneNorthwest = "northwest"
	ZoneNortheast = "northeast"
	ZoneSouthwest = "southwest"
	ZoneSoutheast = "southeast"
	ZoneCenter    = "center"
	ZoneNorth     = "north"
	ZoneSouth     = "south"
	ZoneEast      = "east"
	ZoneWest      = "west"
)

// ZoneTable partitions a grid of fixed size into named zones. It is a pure
// function of (width, height) and is never mutated after construction.
type ZoneTable struct {
	width  int
	height int
	zones  map[string]Zone
}

var zoneAliases = map[string]string{
	"centre":      ZoneCenter,
	"middle":      ZoneCenter,
	"top":         ZoneNorth,
	"bottom":      ZoneSouth,
	"right":       ZoneEast,
	"left":        ZoneWest,
	"topleft":     ZoneNorthwest,
	"topright":    ZoneNortheast,
	"bottomleft":  ZoneSouthwest,
	"bottomright": ZoneSoutheast,
}

// NewZoneTable computes the zones for a width x height grid.
// Corners split the grid in halves, cardinal bands take a third of the
// height or a quarter of the width, center drops a quarter on each side.
func NewZoneTable(width, height int) *ZoneTable {
	zt := &ZoneTable{width: width, height: height, zones: make(map[string]Zone, 9)}

	midX := (width - 1) / 2
	midY := (height - 1) / 2
	qx := width / 4
	third := height / 3
	if third < 1 {
		third = 1
	}
	if qx < 1 {
		qx = 1
	}

	zt.add(ZoneNorthwest, Rect{0, 0, midX, midY})
	zt.add(ZoneNortheast, Rect{midX + 1, 0, width - 1, midY})
	zt.add(ZoneSouthwest, Rect{0, midY + 1, midX, height - 1})
	zt.add(ZoneSoutheast, Rect{midX + 1, midY + 1, width - 1, height - 1})
	zt.add(ZoneCenter, Rect{width / 4, height / 4, width - 1 - width/4, height - 1 - height/4})
	zt.add(ZoneNorth, Rect{0, 0, width - 1, third - 1})
	zt.add(ZoneSouth, Rect{0, height - third, width - 1, height - 1})
	zt.add(ZoneEast, Rect{width - qx, 0, width - 1, height - 1})
	zt.add(ZoneWest, Rect{0, 0, qx - 1, height - 1})

	return zt
}

func (zt *ZoneTable) add(name string, r Rect) {
	zt.zones[name] = Zone{Name: name, Bounds: r, Center: r.Center()}
}

// Lookup returns the zone for a name or alias, ignoring case, spaces and hyphens
func (zt *ZoneTable) Lookup(name string) (Zone, bool) {
	key := strings.NewReplacer("-", "", " ", "", "_", "").Replace(strings.ToLower(strings.TrimSpace(name)))
	if alias, ok := zoneAliases[key]; ok {
		key = alias
	}
	z, ok := zt.zones[key]
	return z, ok
}

// Names returns the canonical zone names sorted alphabetically
func (zt *ZoneTable) Names() []string {
	names := make([]string, 0, len(zt.zones))
	for n := range zt.zones {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Zones returns all zones sorted by name
func (zt *ZoneTable) Zones() []Zone {
	out := make([]Zone, 0, len(zt.zones))
	for _, n := range zt.Names() {
		out = append(out, zt.zones[n])
	}
	return out
}

// EdgePoint returns the zone center or the midpoint of one of its edges.
// Accepted edges: center, north/top, south/bottom, east/right, west/left.
func (z Zone) EdgePoint(edge string) (Point, bool) {
	switch strings.ToLower(strings.TrimSpace(edge)) {
	case "", "center", "centre", "middle":
		return z.Center, true
	case "north", "top":
		return Pt(z.Center.X, z.Bounds.Y1), true
	case "south", "bottom":
		return Pt(z.Center.X, z.Bounds.Y2), true
	case "east", "right":
		return Pt(z.Bounds.X2, z.Center.Y), true
	case "west", "left":
		return Pt(z.Bounds.X1, z.Center.Y), true
	default:
		return Point{}, false
	}
}
