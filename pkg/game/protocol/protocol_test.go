package protocol

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
)

func call(name, args string) Call {
	return Call{ID: "c1", Name: name, Args: json.RawMessage(args)}
}

func TestParseVariants(t *testing.T) {
	tests := []struct {
		name string
		args string
		want Operation
	}{
		{OpCreateGrid, `{"width":20,"height":15}`, CreateGrid{Width: 20, Height: 15}},
		{OpPlaceRoom, `{"position":"center","width":6,"height":4,"room_name":"main"}`,
			PlaceRoom{Position: "center", Width: 6, Height: 4, ID: "main"}},
		{OpPlaceDoor, `{"position":"between a and b"}`, PlaceDoor{Position: "between a and b"}},
		{OpPlaceCorridor, `{"start_pos":"a","end_pos":"b"}`, PlaceCorridor{From: "a", To: "b"}},
		{OpPlaceEntity, `{"entity_type":"ogre","position":"B3"}`, PlaceEntity{Type: "ogre", Position: "B3"}},
		{OpGetGridStatus, ``, GetGridStatus{}},
		{OpFinalize, `null`, Finalize{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(call(tt.name, tt.args))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			gotJSON, _ := json.Marshal(got)
			wantJSON, _ := json.Marshal(tt.want)
			if got.OpName() != tt.want.OpName() || string(gotJSON) != string(wantJSON) {
				t.Errorf("Parse = %s %s, want %s %s", got.OpName(), gotJSON, tt.want.OpName(), wantJSON)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		desc string
		name string
		args string
	}{
		{"unknown op", "delete_everything", `{}`},
		{"unknown field", OpPlaceDoor, `{"position":"B3","color":"red"}`},
		{"wrong type", OpCreateGrid, `{"width":"20","height":15}`},
		{"missing field", OpPlaceRoom, `{"position":"center","width":6}`},
		{"not an object", OpPlaceDoor, `["B3"]`},
		{"alias clash", OpPlaceEntity, `{"type":"ogre","entity_type":"goblin","position":"B3"}`},
		{"empty entities", OpPlaceEntities, `{"entities":[]}`},
		{"bad entity item", OpPlaceEntities, `{"entities":[{"type":"ogre"}]}`},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			_, err := Parse(call(tt.name, tt.args))
			if !errors.Is(err, world.ErrSchemaValidation) {
				t.Errorf("Parse(%s, %s) err = %v, want SchemaValidationError", tt.name, tt.args, err)
			}
		})
	}
}

func TestParsePlaceEntitiesAliases(t *testing.T) {
	op, err := Parse(call(OpPlaceEntities, `{"entities":[{"entity_type":"goblin","position":"B3"},{"type":"chest","position":"C4","id":"loot"}]}`))
	if err != nil {
		t.Fatal(err)
	}
	pe := op.(PlaceEntities)
	if len(pe.Entities) != 2 || pe.Entities[0].Type != "goblin" || pe.Entities[1].ID != "loot" {
		t.Errorf("entities = %+v", pe.Entities)
	}
}

func newDispatcher() *Dispatcher {
	return NewDispatcher(builder.New(builder.DefaultLimits()), i18n.MustLoad("en"))
}

func TestDispatchSequence(t *testing.T) {
	d := newDispatcher()
	steps := []struct {
		c      Call
		wantOK bool
		kind   string
	}{
		{call(OpPlaceRoom, `{"position":"center","width":6,"height":4}`), false, string(world.KindNoGrid)},
		{call(OpCreateGrid, `{"width":20,"height":15}`), true, ""},
		{call(OpPlaceRoom, `{"position":"center","width":6,"height":4,"id":"main"}`), true, ""},
		{call(OpPlaceEntity, `{"type":"player","position":"center of main"}`), true, ""},
		{call(OpPlaceEntity, `{"type":"player","position":"center of main"}`), false, string(world.KindDuplicatePlayer)},
		{call(OpPlaceEntity, `{"type":"ogre","position":"Z99"}`), false, string(world.KindPositionResolution)},
		{call(OpPlaceEntity, `{"type":"ogre","position":"2 tiles west of crypt"}`), false, string(world.KindPositionResolution)},
		{call(OpPlaceDoor, `{"position":"(12,6)"}`), false, string(world.KindInvalidPlacement)},
		{call("teleport", `{}`), false, string(world.KindSchemaValidation)},
		{call(OpFinalize, ``), true, ""},
		{call(OpPlaceEntity, `{"type":"chest","position":"center of main"}`), false, string(world.KindSessionFinalized)},
		{call(OpGetGridStatus, ``), true, ""},
	}
	for i, s := range steps {
		res := d.Dispatch(s.c)
		if res.OK != s.wantOK {
			t.Fatalf("step %d %s: ok = %v, want %v (%s)", i, s.c.Name, res.OK, s.wantOK, res.Message)
		}
		if res.CallID != "c1" {
			t.Errorf("step %d: call id not echoed", i)
		}
		if !s.wantOK && (res.Error == nil || res.Error.Kind != s.kind) {
			t.Errorf("step %d %s: error = %+v, want kind %s", i, s.c.Name, res.Error, s.kind)
		}
	}
}

func TestDispatchResultPayloads(t *testing.T) {
	d := newDispatcher()
	d.Dispatch(call(OpCreateGrid, `{"width":20,"height":15}`))

	res := d.Dispatch(call(OpPlaceRoom, `{"position":"(1,1)","width":6,"height":6,"id":"a"}`))
	room, ok := res.Data.(builder.Room)
	if !ok || room.ID != "a" {
		t.Fatalf("place_room data = %#v", res.Data)
	}
	if !strings.Contains(res.Message, "Placed room a") {
		t.Errorf("message = %q", res.Message)
	}

	res = d.Dispatch(call(OpPlaceRoom, `{"position":"(3,3)","width":6,"height":6,"id":"b"}`))
	if !res.OK || len(res.Warnings) != 1 {
		t.Errorf("overlap result ok=%v warnings=%v", res.OK, res.Warnings)
	}

	res = d.Dispatch(call(OpGetPositioningHelp, ``))
	if help := res.Data.(map[string]string)["help"]; !strings.Contains(help, "northwest") {
		t.Errorf("help = %q", help)
	}

	res = d.Dispatch(call(OpPlaceEntities, `{"entities":[{"type":"goblin","position":"(2,2)"},{"type":"goblin","position":"(0,0)"}]}`))
	if res.OK || res.Error == nil || res.Error.Kind != string(world.KindInvalidPlacement) {
		t.Errorf("partial batch = %+v", res)
	}
	items := res.Data.(map[string]any)["results"].([]Result)
	if len(items) != 2 || !items[0].OK || items[1].OK {
		t.Errorf("items = %+v", items)
	}

	res = d.Dispatch(call(OpFinalize, ``))
	if res.OK || res.Error.Kind != string(world.KindMissingPlayer) {
		t.Errorf("finalize without player = %+v", res)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(res.JSON()), &decoded); err != nil || decoded["ok"] != false {
		t.Errorf("JSON() = %s, %v", res.JSON(), err)
	}
}

func TestDisconnectedFinalizeStillSucceeds(t *testing.T) {
	d := newDispatcher()
	d.Dispatch(call(OpCreateGrid, `{"width":20,"height":15}`))
	d.Dispatch(call(OpPlaceRoom, `{"position":"northwest","width":5,"height":5,"id":"a"}`))
	d.Dispatch(call(OpPlaceRoom, `{"position":"southeast","width":5,"height":5,"id":"b"}`))
	d.Dispatch(call(OpPlaceEntity, `{"type":"player","position":"center of a"}`))
	res := d.Dispatch(call(OpFinalize, ``))
	if !res.OK {
		t.Fatalf("finalize = %+v", res)
	}
	rep := res.Data.(world.ConnectivityReport)
	if rep.Connected || len(rep.Regions) != 1 {
		t.Errorf("report = %+v", rep)
	}
}

func TestToolsCoverEveryOperation(t *testing.T) {
	seen := map[string]bool{}
	for _, tool := range Tools() {
		if _, ok := newOperation(tool.Name); !ok {
			t.Errorf("tool %q has no operation", tool.Name)
		}
		if tool.InputSchema["type"] != "object" {
			t.Errorf("tool %q schema type = %v", tool.Name, tool.InputSchema["type"])
		}
		seen[tool.Name] = true
	}
	for _, name := range []string{OpCreateGrid, OpPlaceRoom, OpPlaceDoor, OpPlaceCorridor, OpPlaceEntity, OpGetGridStatus} {
		if !seen[name] {
			t.Errorf("missing tool %q", name)
		}
	}
}
