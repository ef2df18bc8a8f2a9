package devtools

import (
	"fmt"

	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/i18n"
	"mapforge/pkg/game/protocol"
)

// SamplePrompt is the prompt attached to the developer sample map
const SamplePrompt = "A small crypt: a hall with the player, a tomb room with a spirit, 2 goblins and a chest"

// SampleCalls is a hard-coded developer session that touches every
// operation: zones, grid references, relative positions, a shared-wall
// door, a corridor, water and a batch placement
func SampleCalls() []protocol.Call {
	raw := []struct {
		name string
		args string
	}{
		{protocol.OpCreateGrid, `{"width":20,"height":15}`},
		{protocol.OpPlaceRoom, `{"position":"(2,2)","width":7,"height":6,"id":"hall"}`},
		{protocol.OpPlaceRoom, `{"position":"(8,2)","width":6,"height":6,"id":"tomb_room"}`},
		{protocol.OpPlaceDoor, `{"position":"between hall and tomb_room"}`},
		{protocol.OpPlaceRoom, `{"position":"southeast","width":6,"height":5,"id":"vault"}`},
		{protocol.OpPlaceCorridor, `{"from":"tomb_room","to":"vault"}`},
		{protocol.OpPlaceWater, `{"position":"(3,3)","width":2,"height":1,"id":"pool"}`},
		{protocol.OpAddLandmark, `{"name":"altar","position":"center of tomb_room"}`},
		{protocol.OpPlaceEntity, `{"type":"player","position":"center of hall"}`},
		{protocol.OpPlaceEntity, `{"type":"tomb","position":"altar"}`},
		{protocol.OpPlaceEntities, `{"entities":[` +
			`{"type":"spirit","position":"1 tile north of altar"},` +
			`{"type":"goblin","position":"center of vault"},` +
			`{"type":"goblin","position":"1 tile east of vault"},` +
			`{"type":"chest","position":"1 tile south of vault","properties":{"locked":true}}]}`},
		{protocol.OpGetGridStatus, ``},
		{protocol.OpFinalize, ``},
	}
	calls := make([]protocol.Call, len(raw))
	for i, c := range raw {
		calls[i] = protocol.Call{ID: fmt.Sprintf("sample_%02d", i+1), Name: c.name}
		if c.args != "" {
			calls[i].Args = []byte(c.args)
		}
	}
	return calls
}

// BuildSample replays SampleCalls into a fresh session and returns the
// finished artifact. Any failed call is an error.
func BuildSample() (*builder.Artifact, error) {
	d := protocol.NewDispatcher(builder.New(builder.DefaultLimits()), i18n.MustLoad("en"))
	for _, c := range SampleCalls() {
		res := d.Dispatch(c)
		if !res.OK {
			return nil, fmt.Errorf("sample call %s (%s): %s", c.ID, c.Name, res.Message)
		}
	}
	return d.Builder().Artifact(SamplePrompt, "sample")
}
