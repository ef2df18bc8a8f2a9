// Package devtools provides developer tools for testing and debugging.
package devtools

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/render"
)

const mapDumpFilename = "map.txt"

// DumpArtifact writes a full debug dump: metadata, legend, map, then rooms,
// doors, corridors, water, entities, landmarks, warnings and connectivity.
// Format is human- and LLM-readable (sections, key: value, consistent structure).
func DumpArtifact(w io.Writer, a *builder.Artifact) error {
	grid, err := render.TextRenderer{Labels: true}.Render(a)
	if err != nil {
		return err
	}
	f := bufio.NewWriter(w)

	// --- Metadata ---
	fmt.Fprintln(f, "=== MAP DUMP DEBUG (layout, entities, connectivity) ===")
	fmt.Fprintln(f, "")
	fmt.Fprintln(f, "--- Metadata ---")
	fmt.Fprintf(f, "id: %s\n", a.ID)
	fmt.Fprintf(f, "prompt: %q\n", a.Prompt)
	fmt.Fprintf(f, "generator: %s\n", a.Generator)
	fmt.Fprintf(f, "generated_at: %s\n", a.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(f, "grid_width: %d\n", a.Width)
	fmt.Fprintf(f, "grid_height: %d\n", a.Height)
	fmt.Fprintf(f, "coordinate_system: x,y (0-based, x=column, y=row); grid refs A1 = (0,0)\n")
	fmt.Fprintf(f, "op_count: %d\n", a.OpCount)
	fmt.Fprintf(f, "tiles_rle: %s\n", a.TilesRLE)
	fmt.Fprintln(f, "")

	// --- Legend ---
	fmt.Fprintln(f, "--- Legend (tile and entity symbols) ---")
	fmt.Fprintln(f, strings.Join(render.Legend(a), "  "))
	fmt.Fprintln(f, "")

	// --- Map ---
	fmt.Fprintln(f, "--- Map ---")
	fmt.Fprint(f, grid)
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Rooms ---")
	if len(a.Rooms) == 0 {
		fmt.Fprintln(f, "  (none)")
	}
	for _, r := range a.Rooms {
		fmt.Fprintf(f, "  id: %q bounds: %s size: %dx%d center: %s%s\n", r.ID, r.Bounds, r.Bounds.Width(),
			r.Bounds.Height(), r.Bounds.Center(), formatProperties(r.Properties))
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Doors ---")
	if len(a.Doors) == 0 {
		fmt.Fprintln(f, "  (none)")
	}
	for _, d := range a.Doors {
		fmt.Fprintf(f, "  position: %s ref: %s connects: %s\n", d.Point, position.GridRef(d.Point), strings.Join(d.Connects, ","))
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Corridors ---")
	if len(a.Corridors) == 0 {
		fmt.Fprintln(f, "  (none)")
	}
	for _, c := range a.Corridors {
		fmt.Fprintf(f, "  from: %q to: %q length: %d\n", c.From, c.To, len(c.Path))
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Water ---")
	if len(a.Water) == 0 {
		fmt.Fprintln(f, "  (none)")
	}
	for _, wb := range a.Water {
		fmt.Fprintf(f, "  id: %q bounds: %s\n", wb.ID, wb.Bounds)
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Entities ---")
	counts := a.CountByType()
	for _, typ := range builder.SortedTypes(counts) {
		fmt.Fprintf(f, "%s (%d):\n", typ, counts[typ])
		for _, e := range a.Entities {
			if e.Type != typ {
				continue
			}
			fmt.Fprintf(f, "  id: %q position: %s ref: %s%s\n", e.ID, e.Point, position.GridRef(e.Point), formatProperties(e.Properties))
		}
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Landmarks ---")
	for _, lm := range a.Landmarks {
		region := ""
		if lm.Region != nil {
			region = " region: " + lm.Region.String()
		}
		fmt.Fprintf(f, "  name: %q kind: %s point: %s%s\n", lm.Name, lm.Kind, lm.Point, region)
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "--- Warnings ---")
	if len(a.Warnings) == 0 {
		fmt.Fprintln(f, "  (none)")
	}
	for _, wn := range a.Warnings {
		fmt.Fprintf(f, "  kind: %s op: %s message: %q\n", wn.Kind, wn.Op, wn.Message)
	}
	fmt.Fprintln(f, "")

	rep := a.Connectivity
	fmt.Fprintln(f, "--- Connectivity ---")
	fmt.Fprintf(f, "connected: %v\n", a.Connected)
	fmt.Fprintf(f, "start: %s\n", rep.Start)
	fmt.Fprintf(f, "reachable: %d\n", rep.Reachable)
	fmt.Fprintf(f, "passable: %d\n", rep.Passable)
	fmt.Fprintf(f, "percent: %.1f\n", rep.Percent)
	for _, r := range rep.Regions {
		fmt.Fprintf(f, "  isolated_region size: %d centroid: %s\n", r.Size, r.Centroid)
	}
	fmt.Fprintln(f, "")

	fmt.Fprintln(f, "=== END MAP DUMP ===")
	return f.Flush()
}

// DumpArtifactToFile writes the dump to path, or map.txt when path is empty,
// and returns the absolute path written
func DumpArtifactToFile(a *builder.Artifact, path string) (string, error) {
	if path == "" {
		path = mapDumpFilename
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	f, err := os.Create(absPath)
	if err != nil {
		return "", err
	}
	defer f.Close()

	if err := DumpArtifact(f, a); err != nil {
		return absPath, err
	}
	if err := f.Sync(); err != nil {
		return absPath, err
	}
	return absPath, nil
}

func formatProperties(p builder.Properties) string {
	if len(p) == 0 {
		return ""
	}
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%v", k, p[k])
	}
	return " properties: " + strings.Join(parts, ",")
}
