package agent

import (
	"fmt"
	"strings"
)

// SystemPrompt is sent to language model generators before the first step
const SystemPrompt = `You build roguelike maps on a tile grid by calling tools.

Rules:
- Start with create_grid. Every other call needs a grid.
- Rooms are rectangles: the border stays wall and the interior becomes floor. A room id becomes a landmark.
- Rooms are not connected by default. Join them with place_door ("between A and B") or place_corridor.
- Place exactly one entity of type "player" on a floor, door or water tile.
- Positions can be grid references (B3), zones (northwest, center), "center of <landmark>",
  "<n> tiles <direction> of <landmark>" or raw coordinates "(x,y)".
- Call finalize when the map matches the request. Avoid needless status checks.`

// UserPrompt is the first user turn for a map request
func UserPrompt(prompt string, width, height int) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Create a roguelike map for this request: %q\n\n", prompt)
	fmt.Fprintf(&sb, "Use create_grid(%d, %d). ", width, height)
	sb.WriteString("Every floor tile must be reachable from the player. ")
	sb.WriteString("Place exactly one player. Finish with finalize.")
	return sb.String()
}

// JudgePrompt asks a judge to grade a rendered map against its request
func JudgePrompt(prompt, rendering string) string {
	return fmt.Sprintf(`Original request: %q

Generated map:
%s

Evaluate whether this map matches the request. Consider:
1. Do the entity types and counts match?
2. Does the layout fit the description?
3. Are entities placed sensibly?
4. Does the overall atmosphere match?

Respond with JSON only:
{
  "matches_request": true,
  "confidence": 1-10,
  "positive_aspects": ["..."],
  "negative_aspects": ["..."]
}`, prompt, rendering)
}

// JudgeSystemPrompt frames the judge
const JudgeSystemPrompt = "You are a strict reviewer of generated game maps. Answer with a single JSON object."
