package agent

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/scanner"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/verify"
)

// DSL compiles a small map program into protocol calls. One command per
// line, written as a call:
//
//	grid(20, 15)
//	room("main", 2, 2, 16, 8)
//	corridor(18, 8, 18, 10)
//	door(18, 9)
//	spawn(player, 10, 5)
//	water_area(10, 8, "circle", radius=2)
//	river([(2,3), (9,6)], width=3)
//	checkpoint("connected")
//
// Coordinates are tile positions. Each checkpoint asks for the grid status
// and ends a step; the last step finalizes.
type DSL struct {
	width, height int
	steps         [][]protocol.Call
	labels        []string
}

// dslValue is one argument: an integer, a word or string, or a point list
type dslValue struct {
	text   string
	num    int
	isNum  bool
	points []world.Point
}

type dslCommand struct {
	line   int
	name   string
	args   []dslValue
	kwargs map[string]dslValue
}

// LoadDSL reads and compiles a program. Lines starting with # are comments.
func LoadDSL(r io.Reader) (*DSL, error) {
	var cmds []dslCommand
	sc := bufio.NewScanner(r)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := parseDSLLine(line)
		if err != nil {
			return nil, fmt.Errorf("dsl line %d: %w", n, err)
		}
		cmd.line = n
		cmds = append(cmds, cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read dsl: %w", err)
	}
	return compileDSL(cmds)
}

// ParseDSL compiles a program held in a string
func ParseDSL(program string) (*DSL, error) {
	return LoadDSL(strings.NewReader(program))
}

// Name returns the backend name
func (d *DSL) Name() string {
	return ProviderDSL
}

// Steps returns the number of steps the program compiles to
func (d *DSL) Steps() int {
	return len(d.steps)
}

// Step returns the calls up to the next checkpoint. The program's grid must
// match the size the session asks for.
func (d *DSL) Step(ctx context.Context, conv *Conversation) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if conv.Width > 0 && conv.Height > 0 && (conv.Width != d.width || conv.Height != d.height) {
		return Reply{}, world.Errorf(world.KindSchemaValidation, "program grid is %dx%d, session wants %dx%d",
			d.width, d.height, conv.Width, conv.Height)
	}
	i := len(conv.Exchanges)
	if i >= len(d.steps) {
		return Reply{}, nil
	}
	return Reply{Text: d.labels[i], Calls: append([]protocol.Call(nil), d.steps[i]...)}, nil
}

type dslParser struct {
	s   scanner.Scanner
	tok rune
	err error
}

func (p *dslParser) next() {
	p.tok = p.s.Scan()
}

func (p *dslParser) expect(r rune) error {
	if p.tok != r {
		return p.unexpected(scanner.TokenString(r))
	}
	p.next()
	return nil
}

func (p *dslParser) unexpected(want string) error {
	if p.tok == scanner.EOF {
		return fmt.Errorf("expected %s, found end of line", want)
	}
	return fmt.Errorf("expected %s, found %q", want, p.s.TokenText())
}

func parseDSLLine(line string) (dslCommand, error) {
	p := &dslParser{}
	p.s.Init(strings.NewReader(line))
	p.s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanStrings | scanner.ScanRawStrings
	p.s.Error = func(s *scanner.Scanner, msg string) {
		if p.err == nil {
			p.err = errors.New(msg)
		}
	}
	p.next()

	cmd, err := p.command()
	if p.err != nil {
		return dslCommand{}, p.err
	}
	return cmd, err
}

func (p *dslParser) command() (dslCommand, error) {
	if p.tok != scanner.Ident {
		return dslCommand{}, p.unexpected("a command")
	}
	cmd := dslCommand{name: strings.ToLower(p.s.TokenText()), kwargs: map[string]dslValue{}}
	p.next()
	if err := p.expect('('); err != nil {
		return dslCommand{}, err
	}
	for p.tok != ')' {
		if err := p.arg(&cmd); err != nil {
			return dslCommand{}, err
		}
		if p.tok != ',' {
			break
		}
		p.next()
	}
	if err := p.expect(')'); err != nil {
		return dslCommand{}, err
	}
	if p.tok != scanner.EOF {
		return dslCommand{}, fmt.Errorf("unexpected %q after the call", p.s.TokenText())
	}
	return cmd, nil
}

// arg reads a positional value or key=value
func (p *dslParser) arg(cmd *dslCommand) error {
	if p.tok == scanner.Ident {
		word := p.s.TokenText()
		p.next()
		if p.tok != '=' {
			if len(cmd.kwargs) > 0 {
				return errors.New("positional argument after a keyword argument")
			}
			cmd.args = append(cmd.args, dslValue{text: word})
			return nil
		}
		p.next()
		v, err := p.value()
		if err != nil {
			return err
		}
		cmd.kwargs[strings.ToLower(word)] = v
		return nil
	}
	if len(cmd.kwargs) > 0 {
		return errors.New("positional argument after a keyword argument")
	}
	v, err := p.value()
	if err != nil {
		return err
	}
	cmd.args = append(cmd.args, v)
	return nil
}

func (p *dslParser) value() (dslValue, error) {
	switch p.tok {
	case scanner.Int, '-':
		n, err := p.integer()
		return dslValue{num: n, isNum: true, text: strconv.Itoa(n)}, err
	case scanner.String, scanner.RawString:
		s, err := strconv.Unquote(p.s.TokenText())
		if err != nil {
			return dslValue{}, fmt.Errorf("bad string %s", p.s.TokenText())
		}
		p.next()
		return dslValue{text: s}, nil
	case scanner.Ident:
		v := dslValue{text: p.s.TokenText()}
		p.next()
		return v, nil
	case '[':
		p.next()
		var pts []world.Point
		for p.tok != ']' {
			pt, err := p.point()
			if err != nil {
				return dslValue{}, err
			}
			pts = append(pts, pt)
			if p.tok != ',' {
				break
			}
			p.next()
		}
		return dslValue{points: pts}, p.expect(']')
	default:
		return dslValue{}, p.unexpected("a value")
	}
}

func (p *dslParser) integer() (int, error) {
	neg := p.tok == '-'
	if neg {
		p.next()
	}
	if p.tok != scanner.Int {
		return 0, p.unexpected("an integer")
	}
	n, err := strconv.Atoi(p.s.TokenText())
	if err != nil {
		return 0, fmt.Errorf("bad integer %s", p.s.TokenText())
	}
	p.next()
	if neg {
		n = -n
	}
	return n, nil
}

func (p *dslParser) point() (world.Point, error) {
	if err := p.expect('('); err != nil {
		return world.Point{}, err
	}
	x, err := p.integer()
	if err != nil {
		return world.Point{}, err
	}
	if err := p.expect(','); err != nil {
		return world.Point{}, err
	}
	y, err := p.integer()
	if err != nil {
		return world.Point{}, err
	}
	return world.Pt(x, y), p.expect(')')
}

// lookup returns positional argument i, or the keyword key
func (c dslCommand) lookup(i int, key string) (dslValue, bool) {
	if i >= 0 && i < len(c.args) {
		return c.args[i], true
	}
	v, ok := c.kwargs[key]
	return v, ok
}

func (c dslCommand) num(i int, key string) (int, error) {
	v, ok := c.lookup(i, key)
	if !ok {
		return 0, fmt.Errorf("%s needs %s", c.name, key)
	}
	if !v.isNum {
		return 0, fmt.Errorf("%s: %s must be an integer, got %q", c.name, key, v.text)
	}
	return v.num, nil
}

func (c dslCommand) numOr(i int, key string, def int) (int, error) {
	if _, ok := c.lookup(i, key); !ok {
		return def, nil
	}
	return c.num(i, key)
}

func (c dslCommand) str(i int, key string) (string, error) {
	v, ok := c.lookup(i, key)
	if !ok || v.points != nil {
		return "", fmt.Errorf("%s needs %s", c.name, key)
	}
	return v.text, nil
}

func (c dslCommand) strOr(i int, key, def string) string {
	v, ok := c.lookup(i, key)
	if !ok || v.points != nil {
		return def
	}
	return v.text
}

func (c dslCommand) point(ix, iy int) (world.Point, error) {
	x, err := c.num(ix, "x")
	if err != nil {
		return world.Point{}, err
	}
	y, err := c.num(iy, "y")
	if err != nil {
		return world.Point{}, err
	}
	return world.Pt(x, y), nil
}

// extras returns the keyword arguments not named in skip as properties
func (c dslCommand) extras(skip ...string) map[string]any {
	var out map[string]any
	for k, v := range c.kwargs {
		if contains(skip, k) {
			continue
		}
		if out == nil {
			out = map[string]any{}
		}
		switch {
		case v.isNum:
			out[k] = v.num
		case v.points != nil:
			out[k] = v.points
		case strings.EqualFold(v.text, "true"):
			out[k] = true
		case strings.EqualFold(v.text, "false"):
			out[k] = false
		default:
			out[k] = v.text
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

type dslCompiler struct {
	p      planner
	dsl    *DSL
	start  int
	hasGrid bool
}

func compileDSL(cmds []dslCommand) (*DSL, error) {
	c := &dslCompiler{p: planner{prefix: "dsl"}, dsl: &DSL{}}
	for _, cmd := range cmds {
		if err := c.exec(cmd); err != nil {
			return nil, fmt.Errorf("dsl line %d: %w", cmd.line, err)
		}
		if c.p.err != nil {
			return nil, fmt.Errorf("dsl line %d: %w", cmd.line, c.p.err)
		}
	}
	if !c.hasGrid {
		return nil, errors.New("dsl program has no grid command")
	}
	c.p.add(protocol.OpFinalize, nil)
	c.cut("complete")
	return c.dsl, c.p.err
}

// cut ends the current step
func (c *dslCompiler) cut(label string) {
	c.dsl.steps = append(c.dsl.steps, append([]protocol.Call(nil), c.p.calls[c.start:]...))
	c.dsl.labels = append(c.dsl.labels, label)
	c.start = len(c.p.calls)
}

func (c *dslCompiler) exec(cmd dslCommand) error {
	if cmd.name == "grid" {
		return c.grid(cmd)
	}
	if !c.hasGrid {
		return fmt.Errorf("%s before grid", cmd.name)
	}
	switch cmd.name {
	case "room":
		return c.room(cmd)
	case "corridor":
		return c.corridor(cmd)
	case "door":
		pt, err := cmd.point(0, 1)
		if err != nil {
			return err
		}
		c.p.add(protocol.OpPlaceDoor, protocol.PlaceDoor{Position: pt.String()})
		return nil
	case "spawn":
		return c.spawn(cmd)
	case "water_area":
		return c.waterArea(cmd)
	case "river":
		return c.river(cmd)
	case "checkpoint":
		name, err := cmd.str(0, "name")
		if err != nil {
			return err
		}
		c.p.add(protocol.OpGetGridStatus, nil)
		c.cut("checkpoint " + name)
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd.name)
	}
}

func (c *dslCompiler) grid(cmd dslCommand) error {
	if c.hasGrid {
		return errors.New("grid given twice")
	}
	w, err := cmd.num(0, "width")
	if err != nil {
		return err
	}
	h, err := cmd.num(1, "height")
	if err != nil {
		return err
	}
	if w < 1 || h < 1 {
		return fmt.Errorf("grid %dx%d must be positive", w, h)
	}
	c.dsl.width, c.dsl.height, c.hasGrid = w, h, true
	c.p.add(protocol.OpCreateGrid, protocol.CreateGrid{Width: w, Height: h})
	return nil
}

func (c *dslCompiler) room(cmd dslCommand) error {
	name, err := cmd.str(0, "name")
	if err != nil {
		return err
	}
	pt, err := cmd.point(1, 2)
	if err != nil {
		return err
	}
	w, err := cmd.num(3, "width")
	if err != nil {
		return err
	}
	h, err := cmd.num(4, "height")
	if err != nil {
		return err
	}
	c.p.add(protocol.OpPlaceRoom, protocol.PlaceRoom{
		Position:   pt.String(),
		Width:      w,
		Height:     h,
		ID:         name,
		Properties: cmd.extras("name", "x", "y", "width", "height"),
	})
	return nil
}

// corridor runs along y1 first, then x2, like an L
func (c *dslCompiler) corridor(cmd dslCommand) error {
	from, err := cmd.point(0, 1)
	if err != nil {
		return err
	}
	x2, err := cmd.num(2, "x2")
	if err != nil {
		return err
	}
	y2, err := cmd.num(3, "y2")
	if err != nil {
		return err
	}
	c.p.add(protocol.OpPlaceCorridor, protocol.PlaceCorridor{From: from.String(), To: world.Pt(x2, y2).String()})
	return nil
}

// spawn accepts synonyms such as ghost or treasure; other types pass
// through in lower case
func (c *dslCompiler) spawn(cmd dslCommand) error {
	typ, err := cmd.str(0, "type")
	if err != nil {
		return err
	}
	if canon, ok := verify.CanonicalEntity(typ); ok {
		typ = canon
	}
	pt, err := cmd.point(1, 2)
	if err != nil {
		return err
	}
	c.p.add(protocol.OpPlaceEntity, protocol.PlaceEntity{
		Type:       strings.ToLower(typ),
		Position:   pt.String(),
		ID:         cmd.strOr(-1, "id", ""),
		Properties: cmd.extras("type", "x", "y", "id"),
	})
	return nil
}

// waterArea fills a circle or a rectangle centred on (x,y). A rectangle is
// one place_water call and may carry an id; a circle becomes one call per
// row.
func (c *dslCompiler) waterArea(cmd dslCommand) error {
	center, err := cmd.point(0, 1)
	if err != nil {
		return err
	}
	switch shape := strings.ToLower(cmd.strOr(2, "shape", "circle")); shape {
	case "circle":
		r, err := cmd.numOr(3, "radius", 3)
		if err != nil {
			return err
		}
		if r < 0 {
			return fmt.Errorf("radius %d is negative", r)
		}
		tiles := map[world.Point]bool{}
		for y := center.Y - r; y <= center.Y+r; y++ {
			for x := center.X - r; x <= center.X+r; x++ {
				dx, dy := x-center.X, y-center.Y
				if dx*dx+dy*dy <= r*r {
					c.addWater(tiles, world.Pt(x, y))
				}
			}
		}
		c.emitWater(tiles)
	case "rectangle":
		w, err := cmd.numOr(-1, "width", 6)
		if err != nil {
			return err
		}
		h, err := cmd.numOr(-1, "height", 4)
		if err != nil {
			return err
		}
		rect := world.RectFromSize(center.X-w/2, center.Y-h/2, w, h)
		rect.X1, rect.Y1 = max(rect.X1, 1), max(rect.Y1, 1)
		rect.X2, rect.Y2 = min(rect.X2, c.dsl.width-2), min(rect.Y2, c.dsl.height-2)
		if rect.X2 < rect.X1 || rect.Y2 < rect.Y1 {
			return nil
		}
		c.p.add(protocol.OpPlaceWater, protocol.PlaceWater{
			Position: world.Pt(rect.X1, rect.Y1).String(),
			Width:    rect.X2 - rect.X1 + 1,
			Height:   rect.Y2 - rect.Y1 + 1,
			ID:       cmd.strOr(-1, "id", ""),
		})
	default:
		return fmt.Errorf("unknown water shape %q", shape)
	}
	return nil
}

// river draws a line of the given width through each pair of points
func (c *dslCompiler) river(cmd dslCommand) error {
	v, ok := cmd.lookup(0, "points")
	if !ok || len(v.points) < 2 {
		return errors.New("river needs at least 2 points")
	}
	w, err := cmd.numOr(1, "width", 2)
	if err != nil {
		return err
	}
	half := max(0, (w-1)/2)
	tiles := map[world.Point]bool{}
	for i := 0; i+1 < len(v.points); i++ {
		for _, p := range line(v.points[i], v.points[i+1]) {
			for oy := -half; oy <= half; oy++ {
				for ox := -half; ox <= half; ox++ {
					c.addWater(tiles, world.Pt(p.X+ox, p.Y+oy))
				}
			}
		}
	}
	c.emitWater(tiles)
	return nil
}

// addWater keeps water off the outer ring
func (c *dslCompiler) addWater(tiles map[world.Point]bool, p world.Point) {
	if p.X > 0 && p.Y > 0 && p.X < c.dsl.width-1 && p.Y < c.dsl.height-1 {
		tiles[p] = true
	}
}

// emitWater places tiles as horizontal runs, top to bottom
func (c *dslCompiler) emitWater(tiles map[world.Point]bool) {
	pts := make([]world.Point, 0, len(tiles))
	for p := range tiles {
		pts = append(pts, p)
	}
	sort.Slice(pts, func(i, j int) bool {
		if pts[i].Y != pts[j].Y {
			return pts[i].Y < pts[j].Y
		}
		return pts[i].X < pts[j].X
	})
	for i := 0; i < len(pts); {
		j := i + 1
		for j < len(pts) && pts[j].Y == pts[i].Y && pts[j].X == pts[j-1].X+1 {
			j++
		}
		c.p.add(protocol.OpPlaceWater, protocol.PlaceWater{Position: pts[i].String(), Width: j - i, Height: 1})
		i = j
	}
}

// line returns the Bresenham line from a to b, both ends included
func line(a, b world.Point) []world.Point {
	dx, dy := abs(b.X-a.X), -abs(b.Y-a.Y)
	sx, sy := 1, 1
	if a.X > b.X {
		sx = -1
	}
	if a.Y > b.Y {
		sy = -1
	}
	err := dx + dy
	var out []world.Point
	for p := a; ; {
		out = append(out, p)
		if p == b {
			return out
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			p.X += sx
		}
		if e2 <= dx {
			err += dx
			p.Y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
