package agent

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"regexp"
	"strings"

	"mapforge/pkg/engine/world"
	"mapforge/pkg/game/builder"
	"mapforge/pkg/game/protocol"
	"mapforge/pkg/game/verify"
)

// Procedural lays out rooms with binary space partitioning and emits the
// same protocol calls an agent would. The layout is seeded from the prompt,
// so one prompt and seed always produce the same map.
type Procedural struct {
	seed int64
}

// NewProcedural returns a procedural generator
func NewProcedural(seed int64) *Procedural {
	return &Procedural{seed: seed}
}

// Name returns the backend name
func (g *Procedural) Name() string {
	return ProviderProcedural
}

// bspNode represents a node in the BSP tree
type bspNode struct {
	x, y, width, height int
	left, right         *bspNode
	room                *bspRoom
}

// bspRoom is a room rectangle including its wall ring
type bspRoom struct {
	x, y, width, height int
	id                  string
}

func (r *bspRoom) interior() []world.Point {
	var pts []world.Point
	for y := r.y + 1; y < r.y+r.height-1; y++ {
		for x := r.x + 1; x < r.x+r.width-1; x++ {
			pts = append(pts, world.Pt(x, y))
		}
	}
	return pts
}

// Room names for generated layouts
var roomNames = []string{
	"hall", "crypt", "armory", "library", "shrine", "barracks",
	"cellar", "vault", "kitchen", "chapel", "gallery", "den",
}

// Constants for BSP generation
const (
	minNodeSize = 6 // Minimum size of a BSP node side before splitting
	minRoomSize = 4 // Minimum room side including walls
)

var waterPattern = regexp.MustCompile(`\b(water|lake|pool|pond|river|flooded|moat)s?\b`)

// Step emits the whole plan on the first step and stops afterwards; the
// layout is connected by construction so there is nothing to repair
func (g *Procedural) Step(ctx context.Context, conv *Conversation) (Reply, error) {
	if err := ctx.Err(); err != nil {
		return Reply{}, err
	}
	if len(conv.Exchanges) > 0 {
		return Reply{}, nil
	}
	calls, err := g.Plan(conv.Prompt, conv.Width, conv.Height)
	if err != nil {
		return Reply{}, err
	}
	return Reply{Text: fmt.Sprintf("procedural layout with %d calls", len(calls)), Calls: calls}, nil
}

// Plan returns the complete call sequence for a prompt
func (g *Procedural) Plan(prompt string, width, height int) ([]protocol.Call, error) {
	if width <= 0 {
		width = 20
	}
	if height <= 0 {
		height = 15
	}
	rng := rand.New(rand.NewSource(g.seedFor(prompt)))
	manifest := verify.DeriveManifest(prompt)

	root := &bspNode{x: 0, y: 0, width: width, height: height}
	splitBSP(rng, root, minNodeSize)
	used := map[string]int{}
	createRooms(rng, root, manifest.Density, used)
	rooms := collectRooms(root)
	if len(rooms) == 0 {
		return nil, fmt.Errorf("grid %dx%d too small for a room", width, height)
	}

	p := &planner{prefix: "proc"}
	p.add(protocol.OpCreateGrid, protocol.CreateGrid{Width: width, Height: height})
	for _, r := range rooms {
		p.add(protocol.OpPlaceRoom, protocol.PlaceRoom{
			Position: world.Pt(r.x, r.y).String(),
			Width:    r.width,
			Height:   r.height,
			ID:       r.id,
		})
	}
	connectRooms(rng, root, p)

	if waterPattern.MatchString(strings.ToLower(prompt)) {
		largest := rooms[0]
		for _, r := range rooms[1:] {
			if r.width*r.height > largest.width*largest.height {
				largest = r
			}
		}
		p.add(protocol.OpPlaceWater, protocol.PlaceWater{
			Position: world.Pt(largest.x+1, largest.y+1).String(),
			Width:    max(1, (largest.width-2)/2),
			Height:   1,
			ID:       "pool",
		})
	}

	start := rooms[rng.Intn(len(rooms))]
	p.add(protocol.OpPlaceEntity, protocol.PlaceEntity{Type: builder.PlayerType, Position: "center of " + start.id})
	startPoint := world.Rect{X1: start.x, Y1: start.y, X2: start.x + start.width - 1, Y2: start.y + start.height - 1}.Center()

	var spots []world.Point
	for _, r := range rooms {
		for _, pt := range r.interior() {
			if pt != startPoint {
				spots = append(spots, pt)
			}
		}
	}
	rng.Shuffle(len(spots), func(i, j int) { spots[i], spots[j] = spots[j], spots[i] })

	var batch []protocol.PlaceEntity
	for _, exp := range manifest.Entries {
		if exp.EntityType == builder.PlayerType {
			continue
		}
		for i := 0; i < exp.Expected && len(spots) > 0; i++ {
			pt := spots[len(batch)%len(spots)]
			batch = append(batch, protocol.PlaceEntity{Type: exp.EntityType, Position: pt.String()})
		}
	}
	if len(batch) > 0 {
		p.add(protocol.OpPlaceEntities, protocol.PlaceEntities{Entities: batch})
	}
	p.add(protocol.OpFinalize, nil)
	return p.calls, p.err
}

func (g *Procedural) seedFor(prompt string) int64 {
	h := fnv.New64a()
	h.Write([]byte(prompt))
	return int64(h.Sum64()) ^ g.seed
}

// planner collects calls with sequential ids
type planner struct {
	prefix string
	calls  []protocol.Call
	err    error
}

func (p *planner) add(name string, args any) {
	if p.err != nil {
		return
	}
	id := fmt.Sprintf("%s_%02d", p.prefix, len(p.calls)+1)
	if args == nil {
		p.calls = append(p.calls, protocol.Call{ID: id, Name: name})
		return
	}
	c, err := protocol.NewCall(id, name, args)
	if err != nil {
		p.err = fmt.Errorf("encode %s: %w", name, err)
		return
	}
	p.calls = append(p.calls, c)
}

// splitBSP recursively splits a BSP node
func splitBSP(rng *rand.Rand, node *bspNode, minSize int) {
	canH := node.height >= minSize*2
	canV := node.width >= minSize*2

	var splitHorizontal bool
	switch {
	case canH && canV:
		if node.width > node.height {
			splitHorizontal = false
		} else if node.height > node.width {
			splitHorizontal = true
		} else {
			splitHorizontal = rng.Intn(2) == 0
		}
	case canV:
		splitHorizontal = false
	case canH:
		splitHorizontal = true
	default:
		return // Too small to split
	}

	if splitHorizontal {
		splitPoint := minSize + rng.Intn(node.height-minSize*2+1)
		node.left = &bspNode{x: node.x, y: node.y, width: node.width, height: splitPoint}
		node.right = &bspNode{x: node.x, y: node.y + splitPoint, width: node.width, height: node.height - splitPoint}
	} else {
		splitPoint := minSize + rng.Intn(node.width-minSize*2+1)
		node.left = &bspNode{x: node.x, y: node.y, width: splitPoint, height: node.height}
		node.right = &bspNode{x: node.x + splitPoint, y: node.y, width: node.width - splitPoint, height: node.height}
	}

	splitBSP(rng, node.left, minSize)
	splitBSP(rng, node.right, minSize)
}

// createRooms creates one room per leaf. Dense maps get the smallest
// rooms, open maps fill their leaf.
func createRooms(rng *rand.Rand, node *bspNode, density string, used map[string]int) {
	if node.left != nil || node.right != nil {
		if node.left != nil {
			createRooms(rng, node.left, density, used)
		}
		if node.right != nil {
			createRooms(rng, node.right, density, used)
		}
		return
	}
	if node.width < minRoomSize || node.height < minRoomSize {
		return
	}

	maxW, maxH := node.width, node.height
	if density == verify.DensityDense {
		maxW, maxH = min(maxW, minRoomSize+1), min(maxH, minRoomSize+1)
	}
	roomWidth := minRoomSize + rng.Intn(maxW-minRoomSize+1)
	roomHeight := minRoomSize + rng.Intn(maxH-minRoomSize+1)
	if density == verify.DensityOpen {
		roomWidth, roomHeight = node.width, node.height
	}

	roomX := node.x + rng.Intn(node.width-roomWidth+1)
	roomY := node.y + rng.Intn(node.height-roomHeight+1)

	name := roomNames[rng.Intn(len(roomNames))]
	used[name]++
	if used[name] > 1 {
		name = fmt.Sprintf("%s_%d", name, used[name])
	}
	node.room = &bspRoom{x: roomX, y: roomY, width: roomWidth, height: roomHeight, id: name}
}

// connectRooms joins one room of each subtree with a corridor, then
// recurses, so the rooms form a connected tree
func connectRooms(rng *rand.Rand, node *bspNode, p *planner) {
	if node.left == nil || node.right == nil {
		return
	}
	leftRoom := getRoom(rng, node.left)
	rightRoom := getRoom(rng, node.right)
	if leftRoom != nil && rightRoom != nil {
		p.add(protocol.OpPlaceCorridor, protocol.PlaceCorridor{From: leftRoom.id, To: rightRoom.id})
	}
	connectRooms(rng, node.left, p)
	connectRooms(rng, node.right, p)
}

// getRoom returns a room from a subtree (picks randomly from leaves)
func getRoom(rng *rand.Rand, node *bspNode) *bspRoom {
	if node.room != nil {
		return node.room
	}
	var leftRoom, rightRoom *bspRoom
	if node.left != nil {
		leftRoom = getRoom(rng, node.left)
	}
	if node.right != nil {
		rightRoom = getRoom(rng, node.right)
	}
	if leftRoom != nil && rightRoom != nil {
		if rng.Intn(2) == 0 {
			return leftRoom
		}
		return rightRoom
	}
	if leftRoom != nil {
		return leftRoom
	}
	return rightRoom
}

// collectRooms collects all rooms from the BSP tree in leaf order
func collectRooms(node *bspNode) []*bspRoom {
	var rooms []*bspRoom
	if node.room != nil {
		rooms = append(rooms, node.room)
	}
	if node.left != nil {
		rooms = append(rooms, collectRooms(node.left)...)
	}
	if node.right != nil {
		rooms = append(rooms, collectRooms(node.right)...)
	}
	return rooms
}
