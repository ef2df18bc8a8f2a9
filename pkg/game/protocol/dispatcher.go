package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"mapforge/pkg/engine/position"
	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
)

// ErrorInfo is the structured error sent back to the agent
type ErrorInfo struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Result is the answer to one call. OK results carry Data; failed ones
// carry Error. Warnings never make a result fail.
type Result struct {
	CallID   string          `json:"call_id,omitempty"`
	Op       string          `json:"op"`
	OK       bool            `json:"ok"`
	Message  string          `json:"message"`
	Error    *ErrorInfo      `json:"error,omitempty"`
	Data     any             `json:"data,omitempty"`
	Warnings []world.Warning `json:"warnings,omitempty"`
}

// JSON encodes the result for a tool_result payload
func (r Result) JSON() string {
	b, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"ok":false,"op":%q,"message":"unencodable result"}`, r.Op)
	}
	return string(b)
}

// Dispatcher applies calls to one builder session, strictly in order
type Dispatcher struct {
	b   *builder.Builder
	msg *i18n.Catalog
}

// NewDispatcher wires a dispatcher to a session and a message catalogue
func NewDispatcher(b *builder.Builder, msg *i18n.Catalog) *Dispatcher {
	return &Dispatcher{b: b, msg: msg}
}

// Builder returns the underlying session
func (d *Dispatcher) Builder() *builder.Builder {
	return d.b
}

// Dispatch parses and applies one call
func (d *Dispatcher) Dispatch(call Call) Result {
	op, err := Parse(call)
	if err != nil {
		res := d.fail(call.Name, err)
		res.CallID = call.ID
		return res
	}
	res := d.Apply(op)
	res.CallID = call.ID
	return res
}

// Apply runs an already-parsed operation against the session
func (d *Dispatcher) Apply(op Operation) Result {
	name := op.OpName()
	switch o := op.(type) {
	case CreateGrid:
		if err := d.b.CreateGrid(o.Width, o.Height); err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, map[string]int{"width": o.Width, "height": o.Height}, nil,
			d.msg.Get("GRID_CREATED", o.Width, o.Height))

	case PlaceRoom:
		room, warnings, err := d.b.PlaceRoom(builder.RoomSpec{
			Position: o.Position, Width: o.Width, Height: o.Height, ID: o.ID, Properties: o.Properties,
		})
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, room, warnings, d.msg.Get("ROOM_PLACED", room.ID, room.Bounds.String()))

	case PlaceDoor:
		door, err := d.b.PlaceDoor(o.Position)
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, door, nil, d.msg.Get("DOOR_PLACED", door.Point.String()))

	case PlaceCorridor:
		c, err := d.b.PlaceCorridor(o.From, o.To)
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, c, nil, d.msg.Get("CORRIDOR_PLACED", c.From, c.To, len(c.Path)))

	case PlaceEntity:
		e, warnings, err := d.b.PlaceEntity(entitySpec(o))
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, e, warnings, d.msg.Get("ENTITY_PLACED", e.Type, e.ID, e.Point.String()))

	case PlaceEntities:
		return d.placeEntities(o)

	case PlaceWater:
		w, warnings, err := d.b.PlaceWater(builder.WaterSpec{Position: o.Position, Width: o.Width, Height: o.Height, ID: o.ID})
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, w, warnings, d.msg.Get("WATER_PLACED", w.Bounds.String()))

	case AddLandmark:
		lm, err := d.b.AddLandmark(o.Name, o.Position)
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, lm, nil, d.msg.Get("LANDMARK_ADDED", lm.Name, lm.Point.String()))

	case GetGridStatus:
		st := d.b.Status()
		if !st.HasGrid {
			return d.ok(name, st, nil, d.msg.Get("STATUS_EMPTY"))
		}
		return d.ok(name, st, nil, d.msg.Get("STATUS_READY", st.Width, st.Height, len(st.Rooms), len(st.Entities), len(st.Landmarks)))

	case GetPositioningHelp:
		help, err := d.b.PositioningHelp()
		if err != nil {
			return d.fail(name, err)
		}
		return d.ok(name, map[string]string{"help": help}, nil, d.msg.Get("HELP_READY"))

	case Finalize:
		rep, err := d.b.Finalize()
		if err != nil {
			return d.fail(name, err)
		}
		if rep.Connected {
			return d.ok(name, rep, nil, d.msg.Get("FINALIZED_CONNECTED", rep.Passable))
		}
		return d.ok(name, rep, nil, d.msg.Get("FINALIZED_DISCONNECTED", rep.Reachable, rep.Passable))

	default:
		return d.fail(name, world.Errorf(world.KindSchemaValidation, "unsupported operation %q", name))
	}
}

func (d *Dispatcher) placeEntities(o PlaceEntities) Result {
	specs := make([]builder.EntitySpec, len(o.Entities))
	for i, e := range o.Entities {
		specs[i] = entitySpec(e)
	}
	placed, warnings, errs := d.b.PlaceEntities(specs)

	items := make([]Result, len(specs))
	var failures []string
	next := 0
	for i, err := range errs {
		if err != nil {
			items[i] = d.fail(OpPlaceEntity, err)
			failures = append(failures, fmt.Sprintf("entities[%d]: %v", i, err))
			continue
		}
		e := placed[next]
		next++
		items[i] = d.ok(OpPlaceEntity, e, nil, d.msg.Get("ENTITY_PLACED", e.Type, e.ID, e.Point.String()))
	}

	res := d.ok(OpPlaceEntities, map[string]any{"results": items}, warnings,
		d.msg.Get("ENTITIES_PLACED", len(placed), len(specs)))
	if len(failures) > 0 {
		res.OK = false
		res.Error = &ErrorInfo{Kind: string(world.KindOf(firstErr(errs))), Message: strings.Join(failures, "; ")}
	}
	return res
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}

func entitySpec(o PlaceEntity) builder.EntitySpec {
	return builder.EntitySpec{Type: o.Type, Position: o.Position, ID: o.ID, Properties: o.Properties}
}

func (d *Dispatcher) ok(op string, data any, warnings []world.Warning, msg string) Result {
	return Result{Op: op, OK: true, Message: msg, Data: data, Warnings: warnings}
}

func (d *Dispatcher) fail(op string, err error) Result {
	kind := world.KindOf(err)
	if kind == "" {
		kind = world.KindSchemaValidation
	}
	var hint string
	if errors.Is(err, world.ErrPositionResolution) || errors.Is(err, world.ErrBounds) {
		if d.b.HasGrid() {
			hint = " (call get_positioning_help for valid positions)"
		}
	}
	return Result{
		Op:      op,
		OK:      false,
		Message: d.msg.Get("OPERATION_FAILED", op, err.Error()+hint),
		Error:   &ErrorInfo{Kind: string(kind), Message: err.Error()},
	}
}

// Describe turns a resolved target into a short human string; used by
// CLI tools that preview positions.
func Describe(t position.Target) string {
	if t.Region != nil {
		return fmt.Sprintf("%s %v in %v", t.Form, t.Point, *t.Region)
	}
	return fmt.Sprintf("%s %v", t.Form, t.Point)
}
