package render

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/gookit/color"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
)

// TextStyle names a colour role
type TextStyle int

const (
	StyleNormal TextStyle = iota
	StyleWall
	StyleFloor
	StyleDoor
	StyleWater
	StylePlayer
	StyleEntity
	StyleSubtle
	StyleHeading
	StyleOK
	StyleDenied
)

// Palette maps styles to ANSI colours. A disabled palette returns text
// unchanged.
type Palette struct {
	enabled bool
	styles  map[TextStyle]color.Style

	regexpStringFunctions *regexp.Regexp
}

// NewPalette creates the standard palette
func NewPalette(enabled bool) *Palette {
	return &Palette{
		enabled: enabled,
		styles: map[TextStyle]color.Style{
			StyleWall:    {color.FgGray},
			StyleFloor:   {color.FgWhite},
			StyleDoor:    {color.FgYellow, color.OpBold},
			StyleWater:   {color.FgCyan},
			StylePlayer:  {color.FgGreen, color.BgBlack, color.OpBold},
			StyleEntity:  {color.FgMagenta, color.OpBold},
			StyleSubtle:  {color.FgGray, color.OpBold},
			StyleHeading: {color.FgBlue, color.OpBold},
			StyleOK:      {color.FgGreen},
			StyleDenied:  {color.FgRed, color.OpBold},
		},
		regexpStringFunctions: regexp.MustCompile(`([A-Z_]+){([^{}]*)}`),
	}
}

// Enabled reports whether colour codes are emitted
func (p *Palette) Enabled() bool {
	return p.enabled
}

// StyleText applies a style to text
func (p *Palette) StyleText(text string, style TextStyle) string {
	if !p.enabled {
		return text
	}
	s, ok := p.styles[style]
	if !ok {
		return text
	}
	return s.Sprint(text)
}

// FormatText formats a message and expands markup: OK{..}, FAIL{..},
// SUBTLE{..}, HEAD{..} and ENTITY{..}
func (p *Palette) FormatText(msg string, args ...any) string {
	ret := fmt.Sprintf(msg, args...)

	for _, match := range p.regexpStringFunctions.FindAllStringSubmatch(ret, -1) {
		function := match[1]
		operand := match[2]

		var val string
		switch function {
		case "OK":
			val = p.StyleText(operand, StyleOK)
		case "FAIL":
			val = p.StyleText(operand, StyleDenied)
		case "SUBTLE":
			val = p.StyleText(operand, StyleSubtle)
		case "HEAD":
			val = p.StyleText(operand, StyleHeading)
		case "ENTITY":
			val = p.StyleText(operand, StyleEntity)
		default:
			continue
		}
		ret = strings.Replace(ret, match[0], val, 1)
	}
	return ret
}

// ANSIRenderer draws the map with coloured tiles and entity glyphs
type ANSIRenderer struct {
	Palette *Palette
	Labels  bool
}

func (ANSIRenderer) Name() string { return "ansi" }

// Render draws the map one row per line
func (r ANSIRenderer) Render(a *builder.Artifact) (string, error) {
	pal := r.Palette
	if pal == nil {
		pal = NewPalette(true)
	}
	l, err := NewLayer(a)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	if r.Labels {
		var hdr strings.Builder
		writeColumnHeader(&hdr, l.Width)
		sb.WriteString(pal.StyleText(hdr.String(), StyleSubtle))
	}
	for y := 0; y < l.Height; y++ {
		if r.Labels {
			sb.WriteString(pal.StyleText(fmt.Sprintf("%3d ", y+1), StyleSubtle))
		}
		for x := 0; x < l.Width; x++ {
			sb.WriteString(r.cell(pal, l, world.Pt(x, y)))
		}
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

func (r ANSIRenderer) cell(pal *Palette, l *Layer, p world.Point) string {
	ch := string(l.Rune(p))
	if e, ok := l.Entities[p]; ok {
		if e.Type == builder.PlayerType {
			return pal.StyleText(ch, StylePlayer)
		}
		return pal.StyleText(ch, StyleEntity)
	}
	switch l.Tiles[p.Y][p.X] {
	case world.Wall:
		return pal.StyleText(ch, StyleWall)
	case world.Door:
		return pal.StyleText(ch, StyleDoor)
	case world.Water:
		return pal.StyleText(ch, StyleWater)
	default:
		return pal.StyleText(ch, StyleFloor)
	}
}

// StripANSI removes colour codes
func StripANSI(s string) string {
	return color.ClearCode(s)
}
