package builder

import (
	"strings"

	"mapforge/pkg/engine/world"
)

// PlaceEntity puts an entity on a non-wall tile. A second player is an
// error, never an overwrite. Stacking on an occupied tile is allowed and
// recorded as an overlap warning.
func (b *Builder) PlaceEntity(spec EntitySpec) (Entity, []world.Warning, error) {
	if err := b.ready(); err != nil {
		return Entity{}, nil, err
	}
	typ, ok := NormalizeEntityType(spec.Type)
	if !ok {
		return Entity{}, nil, world.Errorf(world.KindSchemaValidation,
			"entity type %q must start with a letter and use only letters, digits and underscores", spec.Type)
	}
	if typ == PlayerType {
		if b.hasPlayer {
			return Entity{}, nil, world.Errorf(world.KindDuplicatePlayer, "a player already exists at %v", b.entities[b.playerIdx].Point)
		}
		if b.landmarks.Has(PlayerType) {
			return Entity{}, nil, world.Errorf(world.KindDuplicateLandmark, "landmark %q already exists", PlayerType)
		}
	}

	id := strings.TrimSpace(spec.ID)
	if id == "" {
		id = nextID(typ, b.countType(typ)+1, func(s string) bool { return b.entityIDs[s] })
	}
	if b.entityIDs[id] {
		return Entity{}, nil, world.Errorf(world.KindDuplicateEntity, "entity id %q already used", id)
	}

	p, err := b.resolver.ResolvePoint(spec.Position)
	if err != nil {
		return Entity{}, nil, err
	}
	if b.grid.At(p) == world.Wall {
		return Entity{}, nil, world.Errorf(world.KindInvalidPlacement, "%v is a wall; entities need floor, door or water", p)
	}

	var warnings []world.Warning
	for _, other := range b.entities {
		if other.Point == p {
			warnings = append(warnings, b.warn("place_entity", "%s shares %v with %s", id, p, other.ID))
			break
		}
	}

	e := Entity{ID: id, Type: typ, Point: p, Properties: spec.Properties.clone()}
	if typ == PlayerType {
		if err := b.landmarks.Add(world.Landmark{Name: PlayerType, Kind: world.LandmarkPlayer, Point: p}); err != nil {
			return Entity{}, nil, err
		}
		b.hasPlayer = true
		b.playerIdx = len(b.entities)
	}
	b.entities = append(b.entities, e)
	b.entityIDs[id] = true
	b.opCount++
	return e, warnings, nil
}

// PlaceEntities applies each spec in order. It is not atomic: earlier
// placements stay when a later one fails. The error slice is parallel to specs.
func (b *Builder) PlaceEntities(specs []EntitySpec) ([]Entity, []world.Warning, []error) {
	placed := make([]Entity, 0, len(specs))
	var warnings []world.Warning
	errs := make([]error, len(specs))
	for i, spec := range specs {
		e, w, err := b.PlaceEntity(spec)
		if err != nil {
			errs[i] = err
			continue
		}
		placed = append(placed, e)
		warnings = append(warnings, w...)
	}
	return placed, warnings, errs
}

func (b *Builder) countType(typ string) int {
	n := 0
	for _, e := range b.entities {
		if e.Type == typ {
			n++
		}
	}
	return n
}
