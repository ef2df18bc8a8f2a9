// Package position turns symbolic position expressions into grid coordinates.
//
// Four forms are understood, tried in this order: raw coordinates ("(3,4)",
// "3,4"), grid references ("B3"), relative expressions ("2 tiles east of
// hall", "center of hall") and zone names ("northwest", "north top").
// A bare landmark name resolves to that landmark's reference point.
package position

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"mapforge/pkg/engine/world"
)

// Form identifies which expression syntax produced a Target
type Form int

// Expression forms
const (
	FormRaw Form = iota
	FormGridRef
	FormRelative
	FormLandmark
	FormZone
)

// String returns the form name
func (f Form) String() string {
	switch f {
	case FormRaw:
		return "raw"
	case FormGridRef:
		return "grid_ref"
	case FormRelative:
		return "relative"
	case FormLandmark:
		return "landmark"
	case FormZone:
		return "zone"
	default:
		return "unknown"
	}
}

// Target is the result of resolving an expression. Region is set for
// zones and for landmarks that carry a bounding region.
type Target struct {
	Expr   string
	Form   Form
	Point  world.Point
	Region *world.Rect
	Zone   string
}

// IsZone reports whether the target names a whole zone (no edge qualifier)
func (t Target) IsZone() bool {
	return t.Form == FormZone && t.Region != nil
}

var (
	rawPattern      = regexp.MustCompile(`^\(?\s*(-?\d+)\s*,\s*(-?\d+)\s*\)?$`)
	gridRefPattern  = regexp.MustCompile(`^([A-Za-z]{1,3})(\d+)$`)
	centerPattern   = regexp.MustCompile(`^(?:the\s+)?(?:center|centre|middle)\s+of\s+(?:the\s+)?(.+)$`)
	relativePattern = regexp.MustCompile(`^(?:(\d+)\s+)?(?:tiles?\s+)?([a-z][a-z\- ]*?)\s+(?:of|from)\s+(?:the\s+)?(.+)$`)
)

// Resolver resolves expressions against one session's grid size and landmarks.
// It never mutates either.
type Resolver struct {
	width     int
	height    int
	zones     *world.ZoneTable
	landmarks *world.LandmarkRegistry
}

// NewResolver creates a resolver for a width x height grid
func NewResolver(width, height int, landmarks *world.LandmarkRegistry) *Resolver {
	if landmarks == nil {
		landmarks = world.NewLandmarkRegistry()
	}
	return &Resolver{
		width:     width,
		height:    height,
		zones:     world.NewZoneTable(width, height),
		landmarks: landmarks,
	}
}

// Zones returns the zone table for the resolver's grid size
func (r *Resolver) Zones() *world.ZoneTable {
	return r.zones
}

func (r *Resolver) inBounds(p world.Point) bool {
	return p.X >= 0 && p.X < r.width && p.Y >= 0 && p.Y < r.height
}

// Resolve turns an expression into a Target or a structured error
func (r *Resolver) Resolve(expr string) (Target, error) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return Target{}, world.Errorf(world.KindPositionResolution, "empty position")
	}

	if m := rawPattern.FindStringSubmatch(s); m != nil {
		x, _ := strconv.Atoi(m[1])
		y, _ := strconv.Atoi(m[2])
		p := world.Pt(x, y)
		if !r.inBounds(p) {
			return Target{}, world.Errorf(world.KindBounds, "coordinate %v outside %dx%d grid", p, r.width, r.height)
		}
		return Target{Expr: expr, Form: FormRaw, Point: p}, nil
	}

	if m := gridRefPattern.FindStringSubmatch(s); m != nil {
		p, err := r.gridRef(m[1], m[2])
		switch {
		case err == nil:
			return Target{Expr: expr, Form: FormGridRef, Point: p}, nil
		case !r.landmarks.Has(s):
			return Target{}, err
		}
		// landmark names like "cell12" fall through to the landmark lookup
	}

	lower := strings.ToLower(s)

	if m := centerPattern.FindStringSubmatch(lower); m != nil {
		lm, err := r.landmark(m[1], expr)
		if err != nil {
			return Target{}, err
		}
		return Target{Expr: expr, Form: FormLandmark, Point: lm.Point, Region: lm.Region}, nil
	}

	if m := relativePattern.FindStringSubmatch(lower); m != nil {
		if dir, ok := world.ParseDirection(m[2]); ok {
			return r.relative(expr, m[1], dir, m[3])
		}
	}

	if t, ok := r.zone(expr, lower); ok {
		return t, nil
	}

	if r.landmarks.Has(s) {
		lm, _ := r.landmarks.Lookup(s)
		return Target{Expr: expr, Form: FormLandmark, Point: lm.Point, Region: lm.Region}, nil
	}

	return Target{}, world.Errorf(world.KindPositionResolution,
		"cannot resolve %q: use a grid reference like B3, a zone like northwest, "+
			"'N tiles <direction> of <landmark>', 'center of <landmark>' or (x,y)", expr)
}

// ResolvePoint resolves an expression to a single coordinate
func (r *Resolver) ResolvePoint(expr string) (world.Point, error) {
	t, err := r.Resolve(expr)
	if err != nil {
		return world.Point{}, err
	}
	return t.Point, nil
}

func (r *Resolver) landmark(name, expr string) (world.Landmark, error) {
	lm, err := r.landmarks.Lookup(name)
	if err != nil {
		return world.Landmark{}, world.Wrap(world.KindPositionResolution, err, "cannot resolve %q", expr)
	}
	return lm, nil
}

func (r *Resolver) relative(expr, count string, dir world.Direction, name string) (Target, error) {
	n := 1
	if count != "" {
		n, _ = strconv.Atoi(count)
	}
	lm, err := r.landmark(name, expr)
	if err != nil {
		return Target{}, err
	}
	p := dir.Step(lm.Point, n)
	if !r.inBounds(p) {
		return Target{}, world.Errorf(world.KindBounds, "%q lands on %v outside %dx%d grid", expr, p, r.width, r.height)
	}
	return Target{Expr: expr, Form: FormRelative, Point: p}, nil
}

func (r *Resolver) zone(expr, lower string) (Target, bool) {
	if z, ok := r.zones.Lookup(lower); ok {
		region := z.Bounds
		return Target{Expr: expr, Form: FormZone, Point: z.Center, Region: &region, Zone: z.Name}, true
	}
	// "<zone> <edge>", "<zone> side" and "<zone> edge"
	i := strings.LastIndexByte(lower, ' ')
	if i < 0 {
		return Target{}, false
	}
	head, tail := strings.TrimSpace(lower[:i]), lower[i+1:]
	z, ok := r.zones.Lookup(head)
	if !ok {
		return Target{}, false
	}
	if tail == "side" || tail == "edge" || tail == "area" || tail == "corner" || tail == "zone" {
		region := z.Bounds
		return Target{Expr: expr, Form: FormZone, Point: z.Center, Region: &region, Zone: z.Name}, true
	}
	p, ok := z.EdgePoint(tail)
	if !ok {
		return Target{}, false
	}
	return Target{Expr: expr, Form: FormZone, Point: p, Zone: z.Name}, true
}

func (r *Resolver) gridRef(letters, digits string) (world.Point, error) {
	col := LettersToIndex(letters)
	row, err := strconv.Atoi(digits)
	if err != nil {
		return world.Point{}, world.Errorf(world.KindPositionResolution, "malformed grid reference %s%s", letters, digits)
	}
	row--
	p := world.Pt(col, row)
	if row < 0 || !r.inBounds(p) {
		return world.Point{}, world.Errorf(world.KindPositionResolution,
			"grid reference out of range: %s%s (valid A1 to %s)", strings.ToUpper(letters), digits, r.lastRef())
	}
	return p, nil
}

func (r *Resolver) lastRef() string {
	return GridRef(world.Pt(r.width-1, r.height-1))
}

// LettersToIndex converts column letters to a 0-based index: A=0, Z=25, AA=26.
func LettersToIndex(letters string) int {
	idx := 0
	for _, c := range strings.ToUpper(letters) {
		idx = idx*26 + int(c-'A'+1)
	}
	return idx - 1
}

// IndexToLetters is the inverse of LettersToIndex
func IndexToLetters(idx int) string {
	var buf []byte
	for n := idx + 1; n > 0; n = (n - 1) / 26 {
		buf = append([]byte{byte('A' + (n-1)%26)}, buf...)
	}
	return string(buf)
}

// GridRef formats a coordinate as a grid reference such as B3
func GridRef(p world.Point) string {
	return fmt.Sprintf("%s%d", IndexToLetters(p.X), p.Y+1)
}
