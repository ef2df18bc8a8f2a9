package render

import (
	"fmt"
	"strings"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// Describe produces the textual rendering a judge reads: the labelled map,
// a legend, then rooms, entities and connectivity in words
func Describe(a *builder.Artifact) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Map %dx%d\n\n", a.Width, a.Height)

	grid, err := TextRenderer{Labels: true}.Render(a)
	if err != nil {
		fmt.Fprintf(&sb, "(map unavailable: %v)\n", err)
	} else {
		sb.WriteString(grid)
	}

	sb.WriteString("\nLegend: ")
	sb.WriteString(strings.Join(Legend(a), ", "))
	sb.WriteString("\n")

	if len(a.Rooms) > 0 {
		sb.WriteString("\nRooms:\n")
		for _, r := range a.Rooms {
			fmt.Fprintf(&sb, "- %s: %dx%d at %s to %s\n", r.ID, r.Bounds.Width(), r.Bounds.Height(),
				position.GridRef(world.Pt(r.Bounds.X1, r.Bounds.Y1)), position.GridRef(world.Pt(r.Bounds.X2, r.Bounds.Y2)))
		}
	}

	if len(a.Water) > 0 {
		sb.WriteString("\nWater:\n")
		for _, w := range a.Water {
			fmt.Fprintf(&sb, "- %s %dx%d at %s\n", waterName(w), w.Bounds.Width(), w.Bounds.Height(),
				position.GridRef(world.Pt(w.Bounds.X1, w.Bounds.Y1)))
		}
	}

	counts := a.CountByType()
	if len(counts) > 0 {
		sb.WriteString("\nEntities:\n")
		for _, typ := range builder.SortedTypes(counts) {
			var at []string
			for _, e := range a.Entities {
				if e.Type == typ {
					at = append(at, position.GridRef(e.Point))
				}
			}
			fmt.Fprintf(&sb, "- %d %s (%s)\n", counts[typ], typ, strings.Join(at, ", "))
		}
	}

	rep := a.Connectivity
	sb.WriteString("\nConnectivity: ")
	if a.Connected {
		fmt.Fprintf(&sb, "all %d walkable tiles reachable from the player\n", rep.Passable)
	} else {
		fmt.Fprintf(&sb, "%d of %d walkable tiles reachable, %d isolated areas\n",
			rep.Reachable, rep.Passable, len(rep.Regions))
	}
	return sb.String()
}

func waterName(w builder.WaterBody) string {
	if w.ID == "" {
		return "pool"
	}
	return w.ID
}
