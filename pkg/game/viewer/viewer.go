// Package viewer is an interactive terminal browser for finished maps.
// Arrow keys pan, n and p switch maps, l toggles the legend, q quits.
package viewer

import (
	"context"
	"fmt"

	"github.com/gdamore/tcell/v2"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/render"
)

const legendWidth = 22

var (
	styleWall   = tcell.StyleDefault.Foreground(tcell.ColorGray)
	styleFloor  = tcell.StyleDefault.Foreground(tcell.ColorWhite)
	styleDoor   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Bold(true)
	styleWater  = tcell.StyleDefault.Foreground(tcell.ColorAqua)
	stylePlayer = tcell.StyleDefault.Foreground(tcell.ColorGreen).Bold(true)
	styleEntity = tcell.StyleDefault.Foreground(tcell.ColorFuchsia).Bold(true)
	styleStatus = tcell.StyleDefault.Reverse(true)
	styleBad    = tcell.StyleDefault.Foreground(tcell.ColorRed).Bold(true)
)

type page struct {
	art   *builder.Artifact
	layer *render.Layer
}

// Viewer draws one map at a time onto a tcell screen
type Viewer struct {
	screen tcell.Screen
	pages  []page

	current    int
	offX, offY int
	legend     bool
}

// New prepares a viewer over already initialized screen
func New(screen tcell.Screen, arts ...*builder.Artifact) (*Viewer, error) {
	if len(arts) == 0 {
		return nil, fmt.Errorf("nothing to view")
	}
	v := &Viewer{screen: screen, legend: true}
	for _, a := range arts {
		l, err := render.NewLayer(a)
		if err != nil {
			return nil, fmt.Errorf("map %s: %w", a.ID, err)
		}
		v.pages = append(v.pages, page{art: a, layer: l})
	}
	return v, nil
}

// Current returns the artifact on screen
func (v *Viewer) Current() *builder.Artifact {
	return v.pages[v.current].art
}

// Offset returns the top-left map tile on screen
func (v *Viewer) Offset() world.Point {
	return world.Pt(v.offX, v.offY)
}

func tileStyle(k world.TileKind) tcell.Style {
	switch k {
	case world.Floor:
		return styleFloor
	case world.Door:
		return styleDoor
	case world.Water:
		return styleWater
	default:
		return styleWall
	}
}

func (v *Viewer) mapArea() (w, h int) {
	sw, sh := v.screen.Size()
	w, h = sw, sh-1
	if v.legend {
		w -= legendWidth
	}
	return max(w, 0), max(h, 0)
}

// Draw renders the current map, legend and status line
func (v *Viewer) Draw() {
	v.screen.Clear()
	p := v.pages[v.current]
	l := p.layer
	w, h := v.mapArea()

	for sy := 0; sy < h && v.offY+sy < l.Height; sy++ {
		for sx := 0; sx < w && v.offX+sx < l.Width; sx++ {
			pt := world.Pt(v.offX+sx, v.offY+sy)
			style := tileStyle(l.Tiles[pt.Y][pt.X])
			if e, ok := l.Entities[pt]; ok {
				style = styleEntity
				if e.Type == builder.PlayerType {
					style = stylePlayer
				}
			}
			v.screen.SetContent(sx, sy, l.Rune(pt), nil, style)
		}
	}

	if v.legend {
		x := w + 1
		for i, line := range render.Legend(p.art) {
			if i >= h {
				break
			}
			v.drawText(x, i, tcell.StyleDefault, line)
		}
	}

	sw, sh := v.screen.Size()
	rep := p.art.Connectivity
	status := fmt.Sprintf(" %d/%d  %dx%d  reachable %d/%d (%.0f%%)  %s",
		v.current+1, len(v.pages), l.Width, l.Height, rep.Reachable, rep.Passable, rep.Percent, p.art.Prompt)
	style := styleStatus
	if !rep.Connected {
		style = styleBad.Reverse(true)
	}
	for x := 0; x < sw; x++ {
		v.screen.SetContent(x, sh-1, ' ', nil, style)
	}
	v.drawText(0, sh-1, style, status)
	v.screen.Show()
}

func (v *Viewer) drawText(x, y int, style tcell.Style, s string) {
	sw, _ := v.screen.Size()
	for _, r := range s {
		if x >= sw {
			return
		}
		v.screen.SetContent(x, y, r, nil, style)
		x++
	}
}

func (v *Viewer) pan(dx, dy int) {
	l := v.pages[v.current].layer
	w, h := v.mapArea()
	v.offX = min(max(v.offX+dx, 0), max(l.Width-w, 0))
	v.offY = min(max(v.offY+dy, 0), max(l.Height-h, 0))
}

func (v *Viewer) turn(delta int) {
	v.current = (v.current + delta + len(v.pages)) % len(v.pages)
	v.offX, v.offY = 0, 0
}

// HandleEvent applies one event. It returns false when the viewer should close.
func (v *Viewer) HandleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		switch ev.Key() {
		case tcell.KeyEscape, tcell.KeyCtrlC:
			return false
		case tcell.KeyLeft:
			v.pan(-1, 0)
		case tcell.KeyRight:
			v.pan(1, 0)
		case tcell.KeyUp:
			v.pan(0, -1)
		case tcell.KeyDown:
			v.pan(0, 1)
		case tcell.KeyRune:
			switch ev.Rune() {
			case 'q':
				return false
			case 'n':
				v.turn(1)
			case 'p':
				v.turn(-1)
			case 'l':
				v.legend = !v.legend
				v.pan(0, 0)
			}
		}
	case *tcell.EventResize:
		v.screen.Sync()
		v.pan(0, 0)
	case *tcell.EventInterrupt:
		return false
	}
	return true
}

// Run draws and handles events until the user quits or ctx is done
func (v *Viewer) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		_ = v.screen.PostEvent(tcell.NewEventInterrupt(nil))
	})
	defer stop()

	v.Draw()
	for {
		ev := v.screen.PollEvent()
		if ev == nil {
			return ctx.Err()
		}
		if !v.HandleEvent(ev) {
			return ctx.Err()
		}
		v.Draw()
	}
}

// Show opens the terminal, runs a viewer over arts and restores the terminal
func Show(ctx context.Context, arts ...*builder.Artifact) error {
	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}
	defer screen.Fini()

	v, err := New(screen, arts...)
	if err != nil {
		return err
	}
	return v.Run(ctx)
}
