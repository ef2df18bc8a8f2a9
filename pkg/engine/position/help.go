package position

import (
	"fmt"
	"strings"
)

// Help describes every position form the resolver accepts, with the zones
// and landmarks that exist right now.
func (r *Resolver) Help() string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "Grid: %dx%d, x is the column (0..%d), y is the row (0..%d).\n",
		r.width, r.height, r.width-1, r.height-1)
	fmt.Fprintf(&sb, "Grid references: columns A..%s, rows 1..%d, e.g. B3 = (1,2).\n",
		IndexToLetters(r.width-1), r.height)
	sb.WriteString("Raw coordinates: (x,y) or x,y.\n")
	sb.WriteString("Zones (a room placed in a zone is centred in it):\n")
	for _, z := range r.zones.Zones() {
		fmt.Fprintf(&sb, "  %-10s x %d-%d, y %d-%d, center %v\n",
			z.Name, z.Bounds.X1, z.Bounds.X2, z.Bounds.Y1, z.Bounds.Y2, z.Center)
	}
	sb.WriteString("Zone edges: '<zone> top|bottom|left|right|center'.\n")
	sb.WriteString("Relative: 'N tiles <direction> of <landmark>' (8 directions, up/down/left/right), 'center of <landmark>'.\n")

	names := r.landmarks.Names()
	if len(names) == 0 {
		sb.WriteString("Landmarks: none yet. Rooms and the player register themselves.\n")
		return sb.String()
	}
	sb.WriteString("Landmarks:\n")
	for _, lm := range r.landmarks.All() {
		if lm.Region != nil {
			fmt.Fprintf(&sb, "  %s (%s) at %v, bounds %v\n", lm.Name, lm.Kind, lm.Point, *lm.Region)
			continue
		}
		fmt.Fprintf(&sb, "  %s (%s) at %v\n", lm.Name, lm.Kind, lm.Point)
	}
	return sb.String()
}
