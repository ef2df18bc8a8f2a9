package builder

import (
	"strconv"
	"strings"

	"mapforge/pkg/engine/world"
)

// EncodeRLE compresses tile rows into runs such as "3#4.1+", one run list
// per row, rows joined by '/'.
func EncodeRLE(rows []string) string {
	var sb strings.Builder
	for y, row := range rows {
		if y > 0 {
			sb.WriteByte('/')
		}
		for i := 0; i < len(row); {
			j := i
			for j < len(row) && row[j] == row[i] {
				j++
			}
			sb.WriteString(strconv.Itoa(j - i))
			sb.WriteByte(row[i])
			i = j
		}
	}
	return sb.String()
}

// DecodeRLE expands an EncodeRLE string and checks it against width x height
func DecodeRLE(s string, width, height int) ([]string, error) {
	parts := strings.Split(s, "/")
	if len(parts) != height {
		return nil, world.Errorf(world.KindSchemaValidation, "rle has %d rows, want %d", len(parts), height)
	}
	rows := make([]string, 0, height)
	var sb strings.Builder
	for y, part := range parts {
		sb.Reset()
		n := 0
		for i := 0; i < len(part); i++ {
			c := part[i]
			if c >= '0' && c <= '9' {
				n = n*10 + int(c-'0')
				if n > width {
					return nil, world.Errorf(world.KindSchemaValidation, "rle row %d: run longer than width %d", y, width)
				}
				continue
			}
			if _, ok := world.TileKindFromSymbol(c); !ok || n == 0 {
				return nil, world.Errorf(world.KindSchemaValidation, "rle row %d: bad run at %q", y, part[i:])
			}
			if sb.Len()+n > width {
				return nil, world.Errorf(world.KindSchemaValidation, "rle row %d decodes past width %d", y, width)
			}
			sb.WriteString(strings.Repeat(string(c), n))
			n = 0
		}
		if n != 0 || sb.Len() != width {
			return nil, world.Errorf(world.KindSchemaValidation, "rle row %d decodes to %d tiles, want %d", y, sb.Len(), width)
		}
		rows = append(rows, sb.String())
	}
	return rows, nil
}
