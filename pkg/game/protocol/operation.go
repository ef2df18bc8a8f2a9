// Package protocol is the tool-call boundary between a generating agent and
// a map construction session. Calls arrive as a name plus a JSON argument
// object, are parsed into a closed set of typed operations and validated
// before any session state is touched.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"mapforge/pkg/engine/world"
)

// Operation names
const (
	OpCreateGrid         = "create_grid"
	OpPlaceRoom          = "place_room"
	OpPlaceDoor          = "place_door"
	OpPlaceCorridor      = "place_corridor"
	OpPlaceEntity        = "place_entity"
	OpPlaceEntities      = "place_entities"
	OpPlaceWater         = "place_water"
	OpAddLandmark        = "add_landmark"
	OpGetGridStatus      = "get_grid_status"
	OpGetPositioningHelp = "get_positioning_help"
	OpFinalize           = "finalize"
)

// Call is one tool invocation emitted by the agent
type Call struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Args json.RawMessage `json:"args,omitempty"`
}

// NewCall builds a Call from a Go value for the arguments
func NewCall(id, name string, args any) (Call, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Call{}, err
	}
	return Call{ID: id, Name: name, Args: raw}, nil
}

// Operation is the closed set of typed operations
type Operation interface {
	OpName() string
	validate() error
}

// CreateGrid starts a fresh all-wall grid, discarding anything placed so far
type CreateGrid struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// PlaceRoom carves a walled room anchored at a position
type PlaceRoom struct {
	Position   string         `json:"position"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PlaceDoor turns a boundary tile into a door
type PlaceDoor struct {
	Position string `json:"position"`
}

// PlaceCorridor carves an L-shaped floor path between two landmarks or points
type PlaceCorridor struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// PlaceEntity puts one entity on a passable tile
type PlaceEntity struct {
	Type       string         `json:"type"`
	Position   string         `json:"position"`
	ID         string         `json:"id,omitempty"`
	Properties map[string]any `json:"properties,omitempty"`
}

// PlaceEntities places several entities in order; a failed entry does not undo the others
type PlaceEntities struct {
	Entities []PlaceEntity `json:"entities"`
}

// PlaceWater fills a rectangle with water
type PlaceWater struct {
	Position string `json:"position"`
	Width    int    `json:"width"`
	Height   int    `json:"height"`
	ID       string `json:"id,omitempty"`
}

// AddLandmark names a point so later positions can refer to it
type AddLandmark struct {
	Name     string `json:"name"`
	Position string `json:"position"`
}

// GetGridStatus asks for a snapshot of the session
type GetGridStatus struct{}

// GetPositioningHelp asks for the accepted position forms and known landmarks
type GetPositioningHelp struct{}

// Finalize closes the session and produces the map
type Finalize struct{}

// OpName returns the wire name of each operation
func (CreateGrid) OpName() string         { return OpCreateGrid }
func (PlaceRoom) OpName() string          { return OpPlaceRoom }
func (PlaceDoor) OpName() string          { return OpPlaceDoor }
func (PlaceCorridor) OpName() string      { return OpPlaceCorridor }
func (PlaceEntity) OpName() string        { return OpPlaceEntity }
func (PlaceEntities) OpName() string      { return OpPlaceEntities }
func (PlaceWater) OpName() string         { return OpPlaceWater }
func (AddLandmark) OpName() string        { return OpAddLandmark }
func (GetGridStatus) OpName() string      { return OpGetGridStatus }
func (GetPositioningHelp) OpName() string { return OpGetPositioningHelp }
func (Finalize) OpName() string           { return OpFinalize }

func schemaErr(op, format string, args ...any) error {
	return world.Errorf(world.KindSchemaValidation, "%s: %s", op, fmt.Sprintf(format, args...))
}

func (o CreateGrid) validate() error {
	if o.Width <= 0 || o.Height <= 0 {
		return schemaErr(OpCreateGrid, "width and height are required positive integers")
	}
	return nil
}

func (o PlaceRoom) validate() error {
	if strings.TrimSpace(o.Position) == "" {
		return schemaErr(OpPlaceRoom, "position is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return schemaErr(OpPlaceRoom, "width and height are required positive integers")
	}
	return nil
}

func (o PlaceDoor) validate() error {
	if strings.TrimSpace(o.Position) == "" {
		return schemaErr(OpPlaceDoor, "position is required")
	}
	return nil
}

func (o PlaceCorridor) validate() error {
	if strings.TrimSpace(o.From) == "" || strings.TrimSpace(o.To) == "" {
		return schemaErr(OpPlaceCorridor, "from and to are required")
	}
	return nil
}

func (o PlaceEntity) validate() error {
	if strings.TrimSpace(o.Type) == "" {
		return schemaErr(OpPlaceEntity, "type is required")
	}
	if strings.TrimSpace(o.Position) == "" {
		return schemaErr(OpPlaceEntity, "position is required")
	}
	return nil
}

func (o PlaceEntities) validate() error {
	if len(o.Entities) == 0 {
		return schemaErr(OpPlaceEntities, "entities must be a non-empty list")
	}
	for i, e := range o.Entities {
		if err := e.validate(); err != nil {
			return schemaErr(OpPlaceEntities, "entities[%d]: %v", i, err)
		}
	}
	return nil
}

func (o PlaceWater) validate() error {
	if strings.TrimSpace(o.Position) == "" {
		return schemaErr(OpPlaceWater, "position is required")
	}
	if o.Width <= 0 || o.Height <= 0 {
		return schemaErr(OpPlaceWater, "width and height are required positive integers")
	}
	return nil
}

func (o AddLandmark) validate() error {
	if strings.TrimSpace(o.Name) == "" || strings.TrimSpace(o.Position) == "" {
		return schemaErr(OpAddLandmark, "name and position are required")
	}
	return nil
}

func (GetGridStatus) validate() error      { return nil }
func (GetPositioningHelp) validate() error { return nil }
func (Finalize) validate() error           { return nil }

// argAliases maps argument names used by older tool schemas to current ones
var argAliases = map[string]string{
	"room_name":   "id",
	"room_id":     "id",
	"entity_id":   "id",
	"entity_type": "type",
	"start_pos":   "from",
	"end_pos":     "to",
	"start":       "from",
	"end":         "to",
	"landmark":    "name",
}

func newOperation(name string) (Operation, bool) {
	switch name {
	case OpCreateGrid:
		return &CreateGrid{}, true
	case OpPlaceRoom:
		return &PlaceRoom{}, true
	case OpPlaceDoor:
		return &PlaceDoor{}, true
	case OpPlaceCorridor:
		return &PlaceCorridor{}, true
	case OpPlaceEntity:
		return &PlaceEntity{}, true
	case OpPlaceEntities:
		return &PlaceEntities{}, true
	case OpPlaceWater:
		return &PlaceWater{}, true
	case OpAddLandmark:
		return &AddLandmark{}, true
	case OpGetGridStatus:
		return &GetGridStatus{}, true
	case OpGetPositioningHelp:
		return &GetPositioningHelp{}, true
	case OpFinalize:
		return &Finalize{}, true
	default:
		return nil, false
	}
}

// Parse validates a call and returns its typed operation. Unknown names,
// unknown fields, wrong types and missing required fields are all
// SchemaValidationErrors.
func Parse(call Call) (Operation, error) {
	name := strings.TrimSpace(call.Name)
	ptr, ok := newOperation(name)
	if !ok {
		return nil, world.Errorf(world.KindSchemaValidation, "unknown operation %q", call.Name)
	}

	args, err := normalizeArgs(name, call.Args)
	if err != nil {
		return nil, err
	}
	dec := json.NewDecoder(bytes.NewReader(args))
	dec.DisallowUnknownFields()
	if err := dec.Decode(ptr); err != nil {
		return nil, schemaErr(name, "invalid arguments: %v", err)
	}

	op := deref(ptr)
	if err := op.validate(); err != nil {
		return nil, err
	}
	return op, nil
}

// normalizeArgs rewrites aliased keys, including inside place_entities items
func normalizeArgs(name string, raw json.RawMessage) ([]byte, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return []byte("{}"), nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &obj); err != nil {
		return nil, schemaErr(name, "arguments must be a JSON object")
	}
	obj, err := renameAliases(name, obj)
	if err != nil {
		return nil, err
	}
	if items, ok := obj["entities"]; ok && name == OpPlaceEntities {
		var list []map[string]json.RawMessage
		if err := json.Unmarshal(items, &list); err != nil {
			return nil, schemaErr(name, "entities must be a list of objects")
		}
		for i := range list {
			if list[i], err = renameAliases(name, list[i]); err != nil {
				return nil, err
			}
		}
		if obj["entities"], err = json.Marshal(list); err != nil {
			return nil, err
		}
	}
	return json.Marshal(obj)
}

func renameAliases(name string, obj map[string]json.RawMessage) (map[string]json.RawMessage, error) {
	for alias, canonical := range argAliases {
		v, ok := obj[alias]
		if !ok {
			continue
		}
		if _, clash := obj[canonical]; clash {
			return nil, schemaErr(name, "both %q and %q given", alias, canonical)
		}
		delete(obj, alias)
		obj[canonical] = v
	}
	return obj, nil
}

func deref(op Operation) Operation {
	switch o := op.(type) {
	case *CreateGrid:
		return *o
	case *PlaceRoom:
		return *o
	case *PlaceDoor:
		return *o
	case *PlaceCorridor:
		return *o
	case *PlaceEntity:
		return *o
	case *PlaceEntities:
		return *o
	case *PlaceWater:
		return *o
	case *AddLandmark:
		return *o
	case *GetGridStatus:
		return *o
	case *GetPositioningHelp:
		return *o
	case *Finalize:
		return *o
	default:
		return op
	}
}
