// Package builder implements the map construction session: a mutable grid,
// its rooms, doors, corridors, water, entities and landmarks, driven one
// operation at a time and frozen by Finalize.
package builder

import (
	"regexp"
	"sort"
	"strings"

	"mapforge/pkg/engine/world"
)

// Properties is a free-form attribute bag attached to rooms and entities
type Properties map[string]any

func (p Properties) clone() Properties {
	if p == nil {
		return nil
	}
	out := make(Properties, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Room is a rectangular area whose interior was carved to floor
type Room struct {
	ID         string     `json:"id"`
	Bounds     world.Rect `json:"bounds"`
	Properties Properties `json:"properties,omitempty"`
}

// Door is a single door tile and the labels of the areas it joins
type Door struct {
	Point    world.Point `json:"position"`
	Connects []string    `json:"connects,omitempty"`
}

// Corridor is the ordered path carved between two endpoints
type Corridor struct {
	From string        `json:"from"`
	To   string        `json:"to"`
	Path []world.Point `json:"path"`
}

// WaterBody is a rectangle filled with water
type WaterBody struct {
	ID     string     `json:"id,omitempty"`
	Bounds world.Rect `json:"bounds"`
}

// Entity is something placed on a non-wall tile
type Entity struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Point      world.Point `json:"position"`
	Properties Properties  `json:"properties,omitempty"`
}

// PlayerType is the entity type that must appear exactly once
const PlayerType = "player"

// Labels used in Door.Connects for areas that are not rooms
const (
	AreaCorridor = "corridor"
	AreaMapEdge  = "map_edge"
)

var entityTypePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// NormalizeEntityType lower-cases a type and joins words with underscores.
// The second result is false when the type is not a valid identifier.
func NormalizeEntityType(t string) (string, bool) {
	n := strings.ToLower(strings.TrimSpace(t))
	n = strings.Join(strings.Fields(n), "_")
	n = strings.ReplaceAll(n, "-", "_")
	return n, entityTypePattern.MatchString(n)
}

// CountByType tallies entities per type
func CountByType(entities []Entity) map[string]int {
	out := make(map[string]int)
	for _, e := range entities {
		out[e.Type]++
	}
	return out
}

// SortedTypes returns the keys of a count map in alphabetical order
func SortedTypes(counts map[string]int) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// RoomSpec describes a place_room request
type RoomSpec struct {
	Position   string
	Width      int
	Height     int
	ID         string
	Properties Properties
}

// WaterSpec describes a place_water request
type WaterSpec struct {
	Position string
	Width    int
	Height   int
	ID       string
}

// EntitySpec describes a place_entity request
type EntitySpec struct {
	Type       string
	Position   string
	ID         string
	Properties Properties
}

// Status is a read-only deep copy of the session state
type Status struct {
	HasGrid   bool             `json:"has_grid"`
	Width     int              `json:"width"`
	Height    int              `json:"height"`
	Tiles     []string         `json:"tiles,omitempty"`
	Rooms     []Room           `json:"rooms"`
	Doors     []Door           `json:"doors"`
	Corridors []Corridor       `json:"corridors"`
	Water     []WaterBody      `json:"water,omitempty"`
	Entities  []Entity         `json:"entities"`
	Landmarks []world.Landmark `json:"landmarks"`
	Warnings  []world.Warning  `json:"warnings,omitempty"`
	OpCount   int              `json:"op_count"`
	Finalized bool             `json:"finalized"`
}

// LandmarkNames lists landmark names in registration order
func (s Status) LandmarkNames() []string {
	out := make([]string, 0, len(s.Landmarks))
	for _, lm := range s.Landmarks {
		out = append(out, lm.Name)
	}
	return out
}
