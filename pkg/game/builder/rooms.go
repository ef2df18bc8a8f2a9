package builder

import (
	"strings"

	"mapforge/pkg/engine/world"
)

// MinRoomSize is the smallest room side; a 3x3 room has a single floor tile
const MinRoomSize = 3

// PlaceRoom carves the interior of a rectangle to floor and registers the
// room as a landmark. The border ring is left untouched. Interior tiles that
// were already non-wall are overwritten and reported as one overlap warning.
func (b *Builder) PlaceRoom(spec RoomSpec) (Room, []world.Warning, error) {
	if err := b.ready(); err != nil {
		return Room{}, nil, err
	}
	if spec.Width < MinRoomSize || spec.Height < MinRoomSize {
		return Room{}, nil, world.Errorf(world.KindSchemaValidation,
			"room size %dx%d too small, minimum is %dx%d", spec.Width, spec.Height, MinRoomSize, MinRoomSize)
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = nextID("room", len(b.rooms)+1, b.landmarks.Has)
	}
	if b.landmarks.Has(id) {
		return Room{}, nil, world.Errorf(world.KindDuplicateLandmark, "landmark %q already exists", id)
	}

	target, err := b.resolver.Resolve(spec.Position)
	if err != nil {
		return Room{}, nil, err
	}
	bounds := anchor(target, spec.Width, spec.Height)
	if !b.grid.ContainsRect(bounds) {
		return Room{}, nil, world.Errorf(world.KindBounds, "room %s at %v does not fit the %dx%d grid",
			id, bounds, b.grid.Width(), b.grid.Height())
	}

	interior, _ := bounds.Interior()
	overlapped := 0
	for y := interior.Y1; y <= interior.Y2; y++ {
		for x := interior.X1; x <= interior.X2; x++ {
			p := world.Pt(x, y)
			if b.grid.At(p) != world.Wall {
				overlapped++
			}
			b.grid.Set(p, world.Floor)
		}
	}
	b.removeDoorsIn(interior)

	room := Room{ID: id, Bounds: bounds, Properties: spec.Properties.clone()}
	region := bounds
	if err := b.landmarks.Add(world.Landmark{Name: id, Kind: world.LandmarkRoom, Point: bounds.Center(), Region: &region}); err != nil {
		return Room{}, nil, err
	}
	b.rooms = append(b.rooms, room)
	b.opCount++

	var warnings []world.Warning
	if overlapped > 0 {
		warnings = append(warnings, b.warn("place_room", "room %s overwrote %d existing non-wall tiles", id, overlapped))
	}
	return room, warnings, nil
}

// PlaceWater fills a rectangle with water. It is anchored like a room and
// an id registers the area as a landmark.
func (b *Builder) PlaceWater(spec WaterSpec) (WaterBody, []world.Warning, error) {
	if err := b.ready(); err != nil {
		return WaterBody{}, nil, err
	}
	if spec.Width < 1 || spec.Height < 1 {
		return WaterBody{}, nil, world.Errorf(world.KindSchemaValidation, "water size %dx%d must be positive", spec.Width, spec.Height)
	}
	id := strings.TrimSpace(spec.ID)
	if id != "" && b.landmarks.Has(id) {
		return WaterBody{}, nil, world.Errorf(world.KindDuplicateLandmark, "landmark %q already exists", id)
	}

	target, err := b.resolver.Resolve(spec.Position)
	if err != nil {
		return WaterBody{}, nil, err
	}
	bounds := anchor(target, spec.Width, spec.Height)
	if !b.grid.ContainsRect(bounds) {
		return WaterBody{}, nil, world.Errorf(world.KindBounds, "water at %v does not fit the %dx%d grid",
			bounds, b.grid.Width(), b.grid.Height())
	}

	overlapped := 0
	for y := bounds.Y1; y <= bounds.Y2; y++ {
		for x := bounds.X1; x <= bounds.X2; x++ {
			p := world.Pt(x, y)
			if b.grid.At(p) != world.Wall {
				overlapped++
			}
			b.grid.Set(p, world.Water)
		}
	}
	b.removeDoorsIn(bounds)

	if id != "" {
		region := bounds
		if err := b.landmarks.Add(world.Landmark{Name: id, Kind: world.LandmarkWater, Point: bounds.Center(), Region: &region}); err != nil {
			return WaterBody{}, nil, err
		}
	}
	body := WaterBody{ID: id, Bounds: bounds}
	b.water = append(b.water, body)
	b.opCount++

	var warnings []world.Warning
	if overlapped > 0 {
		label := id
		if label == "" {
			label = bounds.String()
		}
		warnings = append(warnings, b.warn("place_water", "water %s overwrote %d existing non-wall tiles", label, overlapped))
	}
	return body, warnings, nil
}

// roomAt returns the id of the room whose interior contains p
func (b *Builder) roomAt(p world.Point) (string, bool) {
	for i := len(b.rooms) - 1; i >= 0; i-- {
		if in, ok := b.rooms[i].Bounds.Interior(); ok && in.Contains(p) {
			return b.rooms[i].ID, true
		}
	}
	return "", false
}
