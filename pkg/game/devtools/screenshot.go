package devtools

import (
	"fmt"
	"html"
	"io"
	"os"
	"strings"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/render"
)

// WriteHTML writes a standalone HTML page showing the map in colour
func WriteHTML(w io.Writer, a *builder.Artifact) error {
	layer, err := render.NewLayer(a)
	if err != nil {
		return err
	}

	var sb strings.Builder
	sb.WriteString(`<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>mapforge - map</title>
    <style>
        body {
            background-color: #1a1a2e;
            color: #eee;
            font-family: 'Courier New', monospace;
            padding: 20px;
        }
        .header {
            color: #bb86fc;
            font-size: 18px;
            margin-bottom: 10px;
        }
        .prompt {
            color: #888;
            margin-bottom: 20px;
        }
        .map-container {
            background-color: #0f0f1a;
            padding: 20px;
            border-radius: 8px;
            display: inline-block;
            margin: 20px 0;
        }
        .map-row {
            white-space: pre;
            line-height: 1.2;
            font-size: 16px;
        }
        .player { color: #00ff00; font-weight: bold; }
        .entity { color: #ff66ff; font-weight: bold; }
        .wall { color: #666; }
        .floor { color: #888; }
        .door { color: #ffff00; font-weight: bold; }
        .water { color: #00ffff; }
        .status { margin-top: 20px; color: #888; }
        .disconnected { color: #ff4444; }
    </style>
</head>
<body>
`)

	sb.WriteString(fmt.Sprintf(`    <div class="header">Map %dx%d</div>`+"\n", a.Width, a.Height))
	sb.WriteString(fmt.Sprintf(`    <div class="prompt">%s</div>`+"\n", html.EscapeString(a.Prompt)))

	sb.WriteString(`    <div class="map-container">` + "\n")
	for y := 0; y < layer.Height; y++ {
		sb.WriteString(`        <div class="map-row">`)
		for x := 0; x < layer.Width; x++ {
			p := world.Pt(x, y)
			sb.WriteString(fmt.Sprintf(`<span class="%s">%s</span>`, cellClass(layer, p),
				html.EscapeString(string(layer.Rune(p)))))
		}
		sb.WriteString("</div>\n")
	}
	sb.WriteString(`    </div>` + "\n")

	sb.WriteString(`    <div class="status">`)
	sb.WriteString(html.EscapeString(strings.Join(render.Legend(a), "  ")))
	sb.WriteString(`</div>` + "\n")
	if a.Connected {
		sb.WriteString(`    <div class="status">connected</div>` + "\n")
	} else {
		sb.WriteString(fmt.Sprintf(`    <div class="status disconnected">disconnected: %d/%d reachable</div>`+"\n",
			a.Connectivity.Reachable, a.Connectivity.Passable))
	}

	sb.WriteString(`</body>
</html>
`)
	_, err = io.WriteString(w, sb.String())
	return err
}

// SaveHTML writes the HTML page to path
func SaveHTML(a *builder.Artifact, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := WriteHTML(f, a); err != nil {
		return err
	}
	return f.Sync()
}

func cellClass(l *render.Layer, p world.Point) string {
	if e, ok := l.Entities[p]; ok {
		if e.Type == builder.PlayerType {
			return "player"
		}
		return "entity"
	}
	return l.Tiles[p.Y][p.X].String()
}
