// Package render turns finished maps into text: plain symbol grids, ANSI
// coloured grids for terminals, and a longer description for judges.
package render

import (
	"fmt"
	"strings"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// PlayerIcon is drawn for the player entity
const PlayerIcon = '@'

// fixed glyphs for well-known entity types; others use their first letter
var entityGlyphs = map[string]rune{
	builder.PlayerType: PlayerIcon,
	"ogre":             'O',
	"goblin":           'g',
	"shop":             '$',
	"chest":            'c',
	"tomb":             't',
	"spirit":           's',
	"human":            'h',
	"monster":          'M',
}

// Glyph returns the single character drawn for an entity type
func Glyph(entityType string) rune {
	if g, ok := entityGlyphs[entityType]; ok {
		return g
	}
	for _, r := range entityType {
		return r
	}
	return '?'
}

// Renderer draws an artifact as text
type Renderer interface {
	Name() string
	Render(a *builder.Artifact) (string, error)
}

// Layer is the resolved character grid of a map: tiles with the first
// entity on each tile drawn on top, the player always winning
type Layer struct {
	Width, Height int
	Tiles         [][]world.TileKind
	Entities      map[world.Point]builder.Entity
}

// NewLayer builds the overlay for an artifact
func NewLayer(a *builder.Artifact) (*Layer, error) {
	g, err := a.Grid()
	if err != nil {
		return nil, err
	}
	l := &Layer{
		Width:    g.Width(),
		Height:   g.Height(),
		Tiles:    make([][]world.TileKind, g.Height()),
		Entities: make(map[world.Point]builder.Entity),
	}
	for y := range l.Tiles {
		l.Tiles[y] = make([]world.TileKind, g.Width())
		for x := range l.Tiles[y] {
			l.Tiles[y][x] = g.At(world.Pt(x, y))
		}
	}
	for _, e := range a.Entities {
		cur, taken := l.Entities[e.Point]
		if !taken || (e.Type == builder.PlayerType && cur.Type != builder.PlayerType) {
			l.Entities[e.Point] = e
		}
	}
	return l, nil
}

// Rune returns the character at p
func (l *Layer) Rune(p world.Point) rune {
	if e, ok := l.Entities[p]; ok {
		return Glyph(e.Type)
	}
	return rune(l.Tiles[p.Y][p.X].Symbol())
}

// TextRenderer draws plain symbols, optionally with grid reference labels
type TextRenderer struct {
	Labels bool
}

func (TextRenderer) Name() string { return "text" }

// Render draws the map one row per line
func (t TextRenderer) Render(a *builder.Artifact) (string, error) {
	l, err := NewLayer(a)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if t.Labels {
		writeColumnHeader(&sb, l.Width)
	}
	for y := 0; y < l.Height; y++ {
		if t.Labels {
			fmt.Fprintf(&sb, "%3d ", y+1)
		}
		for x := 0; x < l.Width; x++ {
			sb.WriteRune(l.Rune(world.Pt(x, y)))
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// writeColumnHeader writes the column letters, one line per letter place
func writeColumnHeader(sb *strings.Builder, width int) {
	labels := make([]string, width)
	depth := 0
	for x := 0; x < width; x++ {
		labels[x] = position.IndexToLetters(x)
		if len(labels[x]) > depth {
			depth = len(labels[x])
		}
	}
	for d := 0; d < depth; d++ {
		sb.WriteString("    ")
		for _, lbl := range labels {
			pad := depth - len(lbl)
			if d < pad {
				sb.WriteByte(' ')
				continue
			}
			sb.WriteByte(lbl[d-pad])
		}
		sb.WriteByte('\n')
	}
}

// Legend lists the symbols used in a map, tiles first then entities
func Legend(a *builder.Artifact) []string {
	var out []string
	for _, k := range world.AllTileKinds() {
		out = append(out, fmt.Sprintf("%c %s", k.Symbol(), k))
	}
	for _, typ := range builder.SortedTypes(a.CountByType()) {
		out = append(out, fmt.Sprintf("%c %s", Glyph(typ), typ))
	}
	return out
}
