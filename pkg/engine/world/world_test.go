package world

import (
	"errors"
	"fmt"
	"testing"
)

func TestNewGridIsAllWall(t *testing.T) {
	g := NewGrid(DefaultWidth, DefaultHeight)
	if g.Width() != 20 || g.Height() != 15 {
		t.Fatalf("size = %dx%d, want 20x15", g.Width(), g.Height())
	}
	if got := g.Count(Wall); got != 20*15 {
		t.Errorf("Count(Wall) = %d, want %d", got, 20*15)
	}
	if g.At(Pt(-1, 0)) != Wall || g.At(Pt(20, 0)) != Wall {
		t.Error("out-of-bounds reads should be wall")
	}
	if g.Set(Pt(20, 14), Floor) {
		t.Error("Set out of bounds = true, want false")
	}
}

func TestGridRowsRoundTrip(t *testing.T) {
	g := NewGrid(4, 3)
	g.Set(Pt(1, 1), Floor)
	g.Set(Pt(2, 1), Door)
	g.Set(Pt(2, 2), Water)

	rows := g.Rows()
	want := []string{"####", "#.+#", "##~#"}
	for i := range want {
		if rows[i] != want[i] {
			t.Errorf("Rows()[%d] = %q, want %q", i, rows[i], want[i])
		}
	}

	back, err := GridFromRows(rows)
	if err != nil {
		t.Fatalf("GridFromRows: %v", err)
	}
	if !back.Equal(g) {
		t.Error("GridFromRows(Rows()) differs from original")
	}

	if _, err := GridFromRows([]string{"##", "#"}); !errors.Is(err, ErrSchemaValidation) {
		t.Errorf("ragged rows err = %v, want SchemaValidationError", err)
	}
	if _, err := GridFromRows([]string{"#x"}); err == nil {
		t.Error("unknown symbol should fail")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	g := NewGrid(5, 5)
	c := g.Clone()
	c.Set(Pt(2, 2), Floor)
	if g.At(Pt(2, 2)) != Wall {
		t.Error("mutating the clone changed the original")
	}
}

func TestRectHelpers(t *testing.T) {
	r := RectFromSize(7, 5, 6, 4)
	if r != (Rect{7, 5, 12, 8}) {
		t.Fatalf("RectFromSize = %v", r)
	}
	if c := r.Center(); c != Pt(9, 6) {
		t.Errorf("Center() = %v, want (9,6)", c)
	}
	in, ok := r.Interior()
	if !ok || in != (Rect{8, 6, 11, 7}) {
		t.Errorf("Interior() = %v,%v", in, ok)
	}
	if _, ok := RectFromSize(0, 0, 2, 2).Interior(); ok {
		t.Error("2x2 rect should have no interior")
	}
	if !r.Overlaps(Rect{12, 8, 14, 9}) || r.Overlaps(Rect{13, 0, 14, 4}) {
		t.Error("Overlaps mismatch")
	}
}

func TestParseDirection(t *testing.T) {
	tests := map[string]Direction{
		"north":      North,
		"UP":         North,
		"left":       West,
		"north-east": NorthEast,
		"south west": SouthWest,
		"se":         SouthEast,
	}
	for in, want := range tests {
		got, ok := ParseDirection(in)
		if !ok || got != want {
			t.Errorf("ParseDirection(%q) = %v,%v, want %v", in, got, ok, want)
		}
	}
	if _, ok := ParseDirection("sideways"); ok {
		t.Error("ParseDirection(sideways) should fail")
	}
	for _, d := range AllDirections() {
		if d.Opposite().Opposite() != d {
			t.Errorf("%v.Opposite().Opposite() != %v", d, d)
		}
		dx, dy := d.Delta()
		ox, oy := d.Opposite().Delta()
		if dx != -ox || dy != -oy {
			t.Errorf("%v delta not mirrored by opposite", d)
		}
	}
}

func TestZoneTable20x15(t *testing.T) {
	zt := NewZoneTable(20, 15)
	tests := []struct {
		name   string
		bounds Rect
		center Point
	}{
		{ZoneNorthwest, Rect{0, 0, 9, 7}, Pt(4, 3)},
		{ZoneNortheast, Rect{10, 0, 19, 7}, Pt(14, 3)},
		{ZoneSouthwest, Rect{0, 8, 9, 14}, Pt(4, 11)},
		{ZoneSoutheast, Rect{10, 8, 19, 14}, Pt(14, 11)},
		{ZoneCenter, Rect{5, 3, 14, 11}, Pt(9, 7)},
		{ZoneNorth, Rect{0, 0, 19, 4}, Pt(9, 2)},
		{ZoneSouth, Rect{0, 10, 19, 14}, Pt(9, 12)},
		{ZoneEast, Rect{15, 0, 19, 14}, Pt(17, 7)},
		{ZoneWest, Rect{0, 0, 4, 14}, Pt(2, 7)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			z, ok := zt.Lookup(tt.name)
			if !ok {
				t.Fatalf("Lookup(%q) missing", tt.name)
			}
			if z.Bounds != tt.bounds {
				t.Errorf("Bounds = %v, want %v", z.Bounds, tt.bounds)
			}
			if z.Center != tt.center {
				t.Errorf("Center = %v, want %v", z.Center, tt.center)
			}
		})
	}
	if z, ok := zt.Lookup("Centre"); !ok || z.Name != ZoneCenter {
		t.Error("alias centre should resolve to center")
	}
	if len(zt.Names()) != 9 {
		t.Errorf("len(Names()) = %d, want 9", len(zt.Names()))
	}
}

func TestZonesStayInsideGrid(t *testing.T) {
	for _, size := range [][2]int{{5, 5}, {7, 5}, {20, 15}, {33, 17}, {64, 64}} {
		g := NewGrid(size[0], size[1])
		for _, z := range NewZoneTable(size[0], size[1]).Zones() {
			if !g.ContainsRect(z.Bounds) {
				t.Errorf("%dx%d zone %s bounds %v outside grid", size[0], size[1], z.Name, z.Bounds)
			}
			if !z.Bounds.Contains(z.Center) {
				t.Errorf("%dx%d zone %s center %v outside bounds", size[0], size[1], z.Name, z.Center)
			}
		}
	}
}

func TestZoneEdgePoint(t *testing.T) {
	z, _ := NewZoneTable(20, 15).Lookup("northwest")
	tests := map[string]Point{
		"":       Pt(4, 3),
		"top":    Pt(4, 0),
		"bottom": Pt(4, 7),
		"east":   Pt(9, 3),
		"left":   Pt(0, 3),
	}
	for edge, want := range tests {
		got, ok := z.EdgePoint(edge)
		if !ok || got != want {
			t.Errorf("EdgePoint(%q) = %v, want %v", edge, got, want)
		}
	}
}

func TestLandmarkRegistry(t *testing.T) {
	r := NewLandmarkRegistry()
	region := Rect{1, 1, 4, 4}
	if err := r.Add(Landmark{Name: "Throne Room", Kind: LandmarkRoom, Point: region.Center(), Region: &region}); err != nil {
		t.Fatal(err)
	}
	if err := r.Add(Landmark{Name: "throne room", Point: Pt(0, 0)}); !errors.Is(err, ErrDuplicateLandmark) {
		t.Errorf("duplicate add err = %v, want DuplicateLandmarkError", err)
	}
	lm, err := r.Lookup("THRONE ROOM")
	if err != nil {
		t.Fatal(err)
	}
	if lm.Name != "Throne Room" || lm.Point != Pt(2, 2) {
		t.Errorf("Lookup = %+v", lm)
	}
	if _, err := r.Lookup("crypt"); !errors.Is(err, ErrUnknownLandmark) {
		t.Errorf("Lookup(crypt) err = %v, want UnknownLandmarkError", err)
	}

	c := r.Clone()
	c.byKey["throne room"].Region.X1 = 99
	if lm, _ := r.Lookup("throne room"); lm.Region.X1 != 1 {
		t.Error("Clone shares region pointers")
	}
}

func TestErrorKinds(t *testing.T) {
	inner := Errorf(KindUnknownLandmark, "unknown landmark %q", "x")
	err := Wrap(KindPositionResolution, inner, "cannot resolve")
	if !errors.Is(err, ErrPositionResolution) || !errors.Is(err, ErrUnknownLandmark) {
		t.Errorf("wrapped error should match both kinds: %v", err)
	}
	if errors.Is(err, ErrBounds) {
		t.Error("should not match BoundsError")
	}
	if KindOf(fmt.Errorf("turn 3: %w", err)) != KindPositionResolution {
		t.Error("KindOf should see through fmt wrapping")
	}

	ext := &Error{Kind: KindExternalService, Msg: "503", Transient: true}
	if !IsTransient(fmt.Errorf("call: %w", ext)) {
		t.Error("transient flag lost through wrapping")
	}
	if IsTransient(Errorf(KindExternalService, "401")) {
		t.Error("permanent error reported transient")
	}
}

func TestConnectivityDoorBetweenRooms(t *testing.T) {
	g := NewGrid(11, 5)
	for x := 1; x <= 3; x++ {
		for y := 1; y <= 3; y++ {
			g.Set(Pt(x, y), Floor)
			g.Set(Pt(x+6, y), Floor)
		}
	}

	rep := CheckConnectivity(g, Pt(2, 2), true)
	if rep.Connected {
		t.Fatal("two separate rooms reported connected")
	}
	if len(rep.Regions) != 1 || rep.Regions[0].Size != 9 || rep.Regions[0].Centroid != Pt(8, 2) {
		t.Errorf("Regions = %+v", rep.Regions)
	}

	g.Set(Pt(4, 2), Floor)
	g.Set(Pt(5, 2), Door)
	g.Set(Pt(6, 2), Floor)
	rep = CheckConnectivity(g, Pt(2, 2), true)
	if !rep.Connected || rep.Reachable != rep.Passable || rep.Percent != 100 {
		t.Errorf("door link not traversed: %+v", rep)
	}
}

func TestConnectivityWaterIsPassable(t *testing.T) {
	g, _ := GridFromRows([]string{
		"#####",
		"#.~.#",
		"#####",
	})
	rep := CheckConnectivity(g, Pt(1, 1), true)
	if !rep.Connected || rep.Reachable != 3 {
		t.Errorf("report = %+v, want 3 reachable and connected", rep)
	}
}

func TestConnectivityWithoutStart(t *testing.T) {
	g, _ := GridFromRows([]string{
		"#####",
		"#..##",
		"###.#",
		"#####",
	})
	rep := CheckConnectivity(g, Point{}, false)
	if rep.Connected || rep.Reachable != 0 || rep.Passable != 3 {
		t.Errorf("report = %+v", rep)
	}
	if len(rep.Regions) != 2 || rep.Regions[0].Size != 2 {
		t.Errorf("Regions = %+v, want sizes [2 1]", rep.Regions)
	}
}

func TestReachableFromWall(t *testing.T) {
	g := NewGrid(5, 5)
	if n := Reachable(g, Pt(2, 2)).Size(); n != 0 {
		t.Errorf("Reachable from wall = %d, want 0", n)
	}
}
