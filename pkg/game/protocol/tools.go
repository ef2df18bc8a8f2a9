package protocol

// ToolSpec describes one operation to an agent: a name, a description and
// a JSON schema for its arguments.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

const positionHelp = "Grid reference like 'B3', zone like 'northwest' or 'center', " +
	"'<n> tiles <direction> of <landmark>', 'center of <landmark>', or '(x,y)'."

func str(desc string) map[string]any {
	return map[string]any{"type": "string", "description": desc}
}

func integer(desc string) map[string]any {
	return map[string]any{"type": "integer", "minimum": 1, "description": desc}
}

func object(props map[string]any, required ...string) map[string]any {
	if required == nil {
		required = []string{}
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"required":             required,
		"additionalProperties": false,
	}
}

func entityProps() map[string]any {
	return map[string]any{
		"type":       str("Entity type, lower case: player, ogre, goblin, shop, chest, tomb, spirit, human, ..."),
		"position":   str(positionHelp),
		"id":         str("Optional unique id, defaults to <type>_<n>."),
		"properties": map[string]any{"type": "object", "description": "Optional free-form attributes."},
	}
}

// Tools returns the tool specs for every operation, in a stable order
func Tools() []ToolSpec {
	return []ToolSpec{
		{
			Name:        OpCreateGrid,
			Description: "Create an all-wall grid. Must be the first call; calling it again starts over.",
			InputSchema: object(map[string]any{
				"width":  integer("Columns, default 20."),
				"height": integer("Rows, default 15."),
			}, "width", "height"),
		},
		{
			Name: OpPlaceRoom,
			Description: "Place a rectangular room. The interior becomes floor, the border stays wall. " +
				"A zone position centres the room in the zone; any other position is the top-left corner. " +
				"The room becomes a landmark named by its id.",
			InputSchema: object(map[string]any{
				"position":   str(positionHelp),
				"width":      integer("Width including walls, at least 3."),
				"height":     integer("Height including walls, at least 3."),
				"id":         str("Optional unique room name, defaults to room_<n>."),
				"properties": map[string]any{"type": "object", "description": "Optional free-form attributes."},
			}, "position", "width", "height"),
		},
		{
			Name: OpPlaceDoor,
			Description: "Turn a wall or floor tile next to a passable tile into a door. " +
				"Use 'between <A> and <B>' to find the shared wall of two adjacent rooms.",
			InputSchema: object(map[string]any{
				"position": str(positionHelp + " Or 'between <A> and <B>'."),
			}, "position"),
		},
		{
			Name:        OpPlaceCorridor,
			Description: "Carve an L-shaped corridor between two landmarks: horizontal first, then vertical.",
			InputSchema: object(map[string]any{
				"from": str("Start landmark name."),
				"to":   str("End landmark name."),
			}, "from", "to"),
		},
		{
			Name:        OpPlaceEntity,
			Description: "Place one entity on a floor, door or water tile. Exactly one player is required.",
			InputSchema: object(entityProps(), "type", "position"),
		},
		{
			Name:        OpPlaceEntities,
			Description: "Place several entities in order. Each succeeds or fails on its own.",
			InputSchema: object(map[string]any{
				"entities": map[string]any{
					"type":  "array",
					"items": object(entityProps(), "type", "position"),
				},
			}, "entities"),
		},
		{
			Name:        OpPlaceWater,
			Description: "Fill a rectangle with water. Water is passable. An id registers it as a landmark.",
			InputSchema: object(map[string]any{
				"position": str(positionHelp),
				"width":    integer("Width in tiles."),
				"height":   integer("Height in tiles."),
				"id":       str("Optional landmark name."),
			}, "position", "width", "height"),
		},
		{
			Name:        OpAddLandmark,
			Description: "Name a position so later calls can refer to it.",
			InputSchema: object(map[string]any{
				"name":     str("Unique landmark name."),
				"position": str(positionHelp),
			}, "name", "position"),
		},
		{
			Name:        OpGetGridStatus,
			Description: "Return the current tiles, rooms, entities and landmarks. Never changes anything.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        OpGetPositioningHelp,
			Description: "Explain grid references, zones and landmarks for the current grid.",
			InputSchema: object(map[string]any{}),
		},
		{
			Name:        OpFinalize,
			Description: "Finish the map. Fails if there is no player. Reports connectivity.",
			InputSchema: object(map[string]any{}),
		},
	}
}
