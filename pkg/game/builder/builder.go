package builder

import (
	"fmt"
	"time"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/engine/world"
)

// Limits bounds the grid sizes create_grid accepts
type Limits struct {
	MinSize int
	MaxSize int
}

// DefaultLimits allows grids from 5x5 up to 64x64
func DefaultLimits() Limits {
	return Limits{MinSize: 5, MaxSize: 64}
}

// Builder owns one generation session. It is not safe for concurrent use;
// operations must be applied in the order the agent emits them.
type Builder struct {
	limits Limits
	now    func() time.Time

	grid      *world.Grid
	landmarks *world.LandmarkRegistry
	resolver  *position.Resolver

	rooms     []Room
	doors     []Door
	corridors []Corridor
	water     []WaterBody
	entities  []Entity
	warnings  []world.Warning

	entityIDs map[string]bool
	hasPlayer bool
	playerIdx int

	opCount   int
	finalized bool
}

// New creates a session without a grid; CreateGrid must come first
func New(limits Limits) *Builder {
	if limits.MinSize <= 0 {
		limits.MinSize = DefaultLimits().MinSize
	}
	if limits.MaxSize < limits.MinSize {
		limits.MaxSize = DefaultLimits().MaxSize
	}
	return &Builder{limits: limits, now: time.Now}
}

// SetClock overrides the time source used for artifact timestamps
func (b *Builder) SetClock(now func() time.Time) {
	b.now = now
}

// Limits returns the accepted grid size range
func (b *Builder) Limits() Limits {
	return b.limits
}

func (b *Builder) ready() error {
	if b.finalized {
		return world.Errorf(world.KindSessionFinalized, "session is finalized; no further changes are accepted")
	}
	if b.grid == nil {
		return world.Errorf(world.KindNoGrid, "call create_grid first")
	}
	return nil
}

func (b *Builder) warn(op, format string, args ...any) world.Warning {
	w := world.Warning{Kind: world.WarnOverlap, Op: op, Message: fmt.Sprintf(format, args...)}
	b.warnings = append(b.warnings, w)
	return w
}

// CreateGrid starts a fresh all-wall grid, discarding any previous state
func (b *Builder) CreateGrid(width, height int) error {
	if b.finalized {
		return world.Errorf(world.KindSessionFinalized, "session is finalized; no further changes are accepted")
	}
	if width < b.limits.MinSize || width > b.limits.MaxSize || height < b.limits.MinSize || height > b.limits.MaxSize {
		return world.Errorf(world.KindSchemaValidation, "grid size %dx%d outside %d..%d",
			width, height, b.limits.MinSize, b.limits.MaxSize)
	}

	b.grid = world.NewGrid(width, height)
	b.landmarks = world.NewLandmarkRegistry()
	b.resolver = position.NewResolver(width, height, b.landmarks)
	b.rooms = nil
	b.doors = nil
	b.corridors = nil
	b.water = nil
	b.entities = nil
	b.warnings = nil
	b.entityIDs = make(map[string]bool)
	b.hasPlayer = false
	b.opCount = 1
	return nil
}

// HasGrid reports whether create_grid has been applied
func (b *Builder) HasGrid() bool {
	return b.grid != nil
}

// Finalized reports whether the session is frozen
func (b *Builder) Finalized() bool {
	return b.finalized
}

// HasPlayer reports whether a player entity exists
func (b *Builder) HasPlayer() bool {
	return b.hasPlayer
}

// OpCount returns how many operations changed the session
func (b *Builder) OpCount() int {
	return b.opCount
}

// Resolve exposes the session's position resolver without mutating anything
func (b *Builder) Resolve(expr string) (position.Target, error) {
	if b.grid == nil {
		return position.Target{}, world.Errorf(world.KindNoGrid, "call create_grid first")
	}
	return b.resolver.Resolve(expr)
}

// PositioningHelp describes the accepted position forms for the current grid
func (b *Builder) PositioningHelp() (string, error) {
	if b.grid == nil {
		return "", world.Errorf(world.KindNoGrid, "call create_grid first")
	}
	return b.resolver.Help(), nil
}

// AddLandmark registers a named reference point at a resolved position
func (b *Builder) AddLandmark(name, expr string) (world.Landmark, error) {
	if err := b.ready(); err != nil {
		return world.Landmark{}, err
	}
	if b.landmarks.Has(name) {
		return world.Landmark{}, world.Errorf(world.KindDuplicateLandmark, "landmark %q already exists", name)
	}
	p, err := b.resolver.ResolvePoint(expr)
	if err != nil {
		return world.Landmark{}, err
	}
	lm := world.Landmark{Name: name, Kind: world.LandmarkCustom, Point: p}
	if err := b.landmarks.Add(lm); err != nil {
		return world.Landmark{}, err
	}
	b.opCount++
	got, _ := b.landmarks.Lookup(name)
	return got, nil
}

// Player returns the player entity if one has been placed
func (b *Builder) Player() (Entity, bool) {
	if !b.hasPlayer {
		return Entity{}, false
	}
	return b.entities[b.playerIdx], true
}

// Connectivity computes reachability from the player on the current grid
func (b *Builder) Connectivity() world.ConnectivityReport {
	if b.grid == nil {
		return world.ConnectivityReport{}
	}
	p, ok := b.Player()
	return world.CheckConnectivity(b.grid, p.Point, ok)
}

// Finalize freezes the session. It fails without a player so the agent can
// still add one.
func (b *Builder) Finalize() (world.ConnectivityReport, error) {
	if err := b.ready(); err != nil {
		return world.ConnectivityReport{}, err
	}
	if !b.hasPlayer {
		return world.ConnectivityReport{}, world.Errorf(world.KindMissingPlayer, "place exactly one player entity before finalizing")
	}
	b.finalized = true
	b.opCount++
	return b.Connectivity(), nil
}

// Status returns a deep copy of the session state. It never fails.
func (b *Builder) Status() Status {
	st := Status{
		OpCount:   b.opCount,
		Finalized: b.finalized,
		Rooms:     []Room{},
		Doors:     []Door{},
		Corridors: []Corridor{},
		Entities:  []Entity{},
		Landmarks: []world.Landmark{},
	}
	if b.grid == nil {
		return st
	}
	st.HasGrid = true
	st.Width = b.grid.Width()
	st.Height = b.grid.Height()
	st.Tiles = b.grid.Rows()
	for _, r := range b.rooms {
		r.Properties = r.Properties.clone()
		st.Rooms = append(st.Rooms, r)
	}
	for _, d := range b.doors {
		d.Connects = append([]string(nil), d.Connects...)
		st.Doors = append(st.Doors, d)
	}
	for _, c := range b.corridors {
		c.Path = append([]world.Point(nil), c.Path...)
		st.Corridors = append(st.Corridors, c)
	}
	st.Water = append([]WaterBody(nil), b.water...)
	for _, e := range b.entities {
		e.Properties = e.Properties.clone()
		st.Entities = append(st.Entities, e)
	}
	st.Landmarks = b.landmarks.Clone().All()
	st.Warnings = append([]world.Warning(nil), b.warnings...)
	return st
}

// Grid returns a copy of the current tile grid, or nil before create_grid
func (b *Builder) Grid() *world.Grid {
	if b.grid == nil {
		return nil
	}
	return b.grid.Clone()
}

// anchor turns a resolved target into the top-left corner of a w x h area.
// Whole zones centre the area inside the zone range; every other target is
// the top-left corner itself.
func anchor(t position.Target, w, h int) world.Rect {
	if t.IsZone() {
		z := *t.Region
		x := z.X1 + floorDiv(z.Width()-w, 2)
		y := z.Y1 + floorDiv(z.Height()-h, 2)
		return world.RectFromSize(x, y, w, h)
	}
	return world.RectFromSize(t.Point.X, t.Point.Y, w, h)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// nextID returns prefix_N for the first N >= 1 that taken does not report
func nextID(prefix string, start int, taken func(string) bool) string {
	for n := start; ; n++ {
		id := fmt.Sprintf("%s_%d", prefix, n)
		if !taken(id) {
			return id
		}
	}
}

// removeDoorsIn drops door records whose tile was overwritten inside r
func (b *Builder) removeDoorsIn(r world.Rect) {
	kept := b.doors[:0]
	for _, d := range b.doors {
		if !r.Contains(d.Point) {
			kept = append(kept, d)
		}
	}
	b.doors = kept
}
