package builder

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"mapforge/pkg/engine/world"
)

// Artifact is a finished, immutable map handed to verification, storage
// and rendering.
type Artifact struct {
	ID           string                   `json:"id"`
	Prompt       string                   `json:"prompt"`
	Width        int                      `json:"width"`
	Height       int                      `json:"height"`
	Tiles        []string                 `json:"tiles"`
	TilesRLE     string                   `json:"tiles_rle"`
	Entities     []Entity                 `json:"entities"`
	Rooms        []Room                   `json:"rooms"`
	Doors        []Door                   `json:"doors"`
	Corridors    []Corridor               `json:"corridors"`
	Water        []WaterBody              `json:"water,omitempty"`
	Landmarks    []world.Landmark         `json:"landmarks"`
	Connected    bool                     `json:"connected"`
	Connectivity world.ConnectivityReport `json:"connectivity"`
	Warnings     []world.Warning          `json:"warnings,omitempty"`
	Generator    string                   `json:"generator,omitempty"`
	OpCount      int                      `json:"op_count"`
	GeneratedAt  time.Time                `json:"generated_at"`
}

// Artifact snapshots a finalized session
func (b *Builder) Artifact(prompt, generator string) (*Artifact, error) {
	if !b.finalized {
		return nil, world.Errorf(world.KindSchemaValidation, "session is not finalized")
	}
	st := b.Status()
	rep := b.Connectivity()
	return &Artifact{
		ID:           ulid.Make().String(),
		Prompt:       prompt,
		Width:        st.Width,
		Height:       st.Height,
		Tiles:        st.Tiles,
		TilesRLE:     EncodeRLE(st.Tiles),
		Entities:     st.Entities,
		Rooms:        st.Rooms,
		Doors:        st.Doors,
		Corridors:    st.Corridors,
		Water:        st.Water,
		Landmarks:    st.Landmarks,
		Connected:    rep.Connected,
		Connectivity: rep,
		Warnings:     st.Warnings,
		Generator:    generator,
		OpCount:      st.OpCount,
		GeneratedAt:  b.now().UTC(),
	}, nil
}

// Grid rebuilds the tile grid, from Tiles or from TilesRLE when Tiles is empty
func (a *Artifact) Grid() (*world.Grid, error) {
	rows := a.Tiles
	if len(rows) == 0 && a.TilesRLE != "" {
		var err error
		rows, err = DecodeRLE(a.TilesRLE, a.Width, a.Height)
		if err != nil {
			return nil, err
		}
	}
	g, err := world.GridFromRows(rows)
	if err != nil {
		return nil, err
	}
	if g.Width() != a.Width || g.Height() != a.Height {
		return nil, world.Errorf(world.KindSchemaValidation, "tiles are %dx%d, header says %dx%d",
			g.Width(), g.Height(), a.Width, a.Height)
	}
	return g, nil
}

// Player returns the single player entity
func (a *Artifact) Player() (Entity, bool) {
	for _, e := range a.Entities {
		if e.Type == PlayerType {
			return e, true
		}
	}
	return Entity{}, false
}

// CountByType tallies the artifact's entities per type
func (a *Artifact) CountByType() map[string]int {
	return CountByType(a.Entities)
}

// Validate checks the structural guarantees of a finished map: coordinates
// in bounds, no entity on a wall, exactly one player, rooms inside the grid.
func (a *Artifact) Validate() error {
	g, err := a.Grid()
	if err != nil {
		return err
	}
	players := 0
	for _, e := range a.Entities {
		if !g.InBounds(e.Point) {
			return world.Errorf(world.KindBounds, "entity %s at %v is outside the grid", e.ID, e.Point)
		}
		if g.At(e.Point) == world.Wall {
			return world.Errorf(world.KindInvalidPlacement, "entity %s at %v is on a wall", e.ID, e.Point)
		}
		if e.Type == PlayerType {
			players++
		}
	}
	if players != 1 {
		return world.Errorf(world.KindMissingPlayer, "found %d player entities, want exactly 1", players)
	}
	for _, d := range a.Doors {
		if !g.InBounds(d.Point) {
			return world.Errorf(world.KindBounds, "door at %v is outside the grid", d.Point)
		}
	}
	for _, r := range a.Rooms {
		if !g.ContainsRect(r.Bounds) {
			return world.Errorf(world.KindBounds, "room %s %v exceeds the grid", r.ID, r.Bounds)
		}
	}
	return nil
}

// Marshal encodes the artifact as indented JSON
func (a *Artifact) Marshal() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// DecodeArtifact parses JSON produced by Marshal and checks that the tile
// matrix and run-length form agree.
func DecodeArtifact(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if len(a.Tiles) == 0 && a.TilesRLE != "" {
		rows, err := DecodeRLE(a.TilesRLE, a.Width, a.Height)
		if err != nil {
			return nil, err
		}
		a.Tiles = rows
	}
	if a.TilesRLE != "" && EncodeRLE(a.Tiles) != a.TilesRLE {
		return nil, world.Errorf(world.KindSchemaValidation, "tiles and tiles_rle disagree")
	}
	if _, err := a.Grid(); err != nil {
		return nil, err
	}
	return &a, nil
}
